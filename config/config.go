package config

import (
	"fmt"
	"os"
	"time"

	"github.com/alejandrodnm/polysim/internal/domain"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config es la configuración completa del simulador.
type Config struct {
	Simulation SimulationConfig          `yaml:"simulation"`
	Accounting AccountingConfig          `yaml:"accounting"`
	Pool       PoolConfig                `yaml:"pool"`
	Strategies map[string]StrategyConfig `yaml:"strategies"`
	API        APIConfig                 `yaml:"api"`
	Storage    StorageConfig             `yaml:"storage"`
	Metrics    MetricsConfig             `yaml:"metrics"`
	Log        LogConfig                 `yaml:"log"`
}

// SimulationConfig controla el driver de simulación.
type SimulationConfig struct {
	IntervalSeconds  int `yaml:"interval_seconds"`
	MaxOpenPositions int `yaml:"max_open_positions"` // 0 = sin límite global
}

// AccountingConfig controla la cuenta de equity.
type AccountingConfig struct {
	InitialCapital      float64 `yaml:"initial_capital"`
	AllowNegativeEquity bool    `yaml:"allow_negative_equity"`
}

// PoolConfig controla la elegibilidad y limpieza del pool de candidatos.
type PoolConfig struct {
	ExpireMinutes int     `yaml:"expire_minutes"`
	EndLeadHours  float64 `yaml:"end_lead_hours"`
	MinVolume24h  float64 `yaml:"min_volume_24h"`
	MinLiquidity  float64 `yaml:"min_liquidity"`
	MaxSpread     float64 `yaml:"max_spread"`
	MaxCandidates int     `yaml:"max_candidates"` // 0 = sin tope
}

// StrategyConfig es la forma cruda del bloque YAML por estrategia. Se
// normaliza una sola vez con Normalize; el core nunca ve esta forma.
type StrategyConfig struct {
	Enabled         bool    `yaml:"enabled"`
	MaxPositions    int     `yaml:"max_positions"`
	MaxPositionSize float64 `yaml:"max_position_size"`
	StopLoss        float64 `yaml:"stop_loss"`      // opcional, negativo, %
	TakeProfit      float64 `yaml:"take_profit"`    // opcional, positivo, %
	TrailingStop    float64 `yaml:"trailing_stop"`  // opcional, %
	MaxHoldingHours float64 `yaml:"max_holding_hours"`
	CooldownMinutes int     `yaml:"cooldown_minutes"`
	EndWindowHours  float64 `yaml:"end_window_hours"` // solo convergence
}

// APIConfig contiene los base URLs de las APIs.
type APIConfig struct {
	CLOBBase  string `yaml:"clob_base"`
	GammaBase string `yaml:"gamma_base"`
}

// StorageConfig controla dónde se persisten los datos.
type StorageConfig struct {
	DSN string `yaml:"dsn"` // ruta al archivo SQLite, o ":memory:"
}

// MetricsConfig controla el endpoint de Prometheus en modo live.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"` // p.ej. ":9090"
}

// LogConfig controla el formato y nivel de logging.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // text | json
}

// Load carga la configuración desde el archivo YAML y el archivo .env si existe.
// Las variables de entorno sobreescriben el YAML para las keys que correspondan.
func Load(path string) (*Config, error) {
	// Cargar .env si existe (silencia error si no hay archivo)
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config.Load: read %q: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config.Load: parse YAML: %w", err)
	}

	applyEnvOverrides(&cfg)
	setDefaults(&cfg)

	return &cfg, nil
}

// PollInterval devuelve el intervalo de polling como time.Duration.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Simulation.IntervalSeconds) * time.Second
}

// PoolExpiry devuelve el TTL de candidatos como time.Duration.
func (c *Config) PoolExpiry() time.Duration {
	return time.Duration(c.Pool.ExpireMinutes) * time.Minute
}

// EndLead devuelve el margen mínimo hasta la resolución como time.Duration.
func (c *Config) EndLead() time.Duration {
	return time.Duration(c.Pool.EndLeadHours * float64(time.Hour))
}

// Strategy devuelve la config normalizada de una estrategia. La segunda
// devolución es false si el bloque no existe en el YAML.
func (c *Config) Strategy(name domain.StrategyType) (domain.StrategyConfig, bool) {
	raw, ok := c.Strategies[string(name)]
	if !ok {
		return domain.StrategyConfig{}, false
	}
	return raw.Normalize(), true
}

// Normalize convierte el bloque YAML crudo a la forma que consume el core.
func (sc StrategyConfig) Normalize() domain.StrategyConfig {
	return domain.StrategyConfig{
		Enabled:         sc.Enabled,
		MaxPositions:    sc.MaxPositions,
		MaxPositionSize: sc.MaxPositionSize,
		StopLossPct:     sc.StopLoss,
		TakeProfitPct:   sc.TakeProfit,
		TrailingStopPct: sc.TrailingStop,
		MaxHoldingHours: sc.MaxHoldingHours,
		CooldownMinutes: sc.CooldownMinutes,
		EndWindowHours:  sc.EndWindowHours,
	}
}

// applyEnvOverrides sobreescribe valores con variables de entorno si están presentes.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
	if v := os.Getenv("POLYSIM_DB"); v != "" {
		cfg.Storage.DSN = v
	}
}

// setDefaults asegura que los valores requeridos tengan valores sensatos.
func setDefaults(cfg *Config) {
	if cfg.Simulation.IntervalSeconds <= 0 {
		cfg.Simulation.IntervalSeconds = 60
	}
	if cfg.Accounting.InitialCapital <= 0 {
		cfg.Accounting.InitialCapital = 1000
	}
	if cfg.Pool.ExpireMinutes <= 0 {
		cfg.Pool.ExpireMinutes = 30
	}
	if cfg.Pool.EndLeadHours <= 0 {
		cfg.Pool.EndLeadHours = 6
	}
	if cfg.Pool.MinVolume24h <= 0 {
		cfg.Pool.MinVolume24h = 500
	}
	if cfg.Pool.MinLiquidity <= 0 {
		cfg.Pool.MinLiquidity = 1000
	}
	if cfg.Pool.MaxSpread <= 0 {
		cfg.Pool.MaxSpread = 0.10
	}
	if cfg.Strategies == nil {
		cfg.Strategies = map[string]StrategyConfig{}
	}
	if _, ok := cfg.Strategies[string(domain.StrategyReversal)]; !ok {
		cfg.Strategies[string(domain.StrategyReversal)] = StrategyConfig{
			Enabled: true, MaxPositions: 5, MaxPositionSize: 0.05,
		}
	}
	if _, ok := cfg.Strategies[string(domain.StrategyConvergence)]; !ok {
		cfg.Strategies[string(domain.StrategyConvergence)] = StrategyConfig{
			Enabled: true, MaxPositions: 3, MaxPositionSize: 0.10, EndWindowHours: 2,
		}
	}
	if cfg.API.CLOBBase == "" {
		cfg.API.CLOBBase = "https://clob.polymarket.com"
	}
	if cfg.API.GammaBase == "" {
		cfg.API.GammaBase = "https://gamma-api.polymarket.com"
	}
	if cfg.Storage.DSN == "" {
		cfg.Storage.DSN = "polysim.db"
	}
	if cfg.Metrics.Addr == "" {
		cfg.Metrics.Addr = ":9090"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
}
