package engine

import (
	"github.com/alejandrodnm/polysim/internal/domain"
	"github.com/alejandrodnm/polysim/internal/strategy"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	ticksTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "polysim_ticks_total",
		Help: "Ticks processed, by driver.",
	}, []string{"driver"})

	positionsOpened = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "polysim_positions_opened_total",
		Help: "Positions opened, by strategy.",
	}, []string{"strategy"})

	positionsClosed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "polysim_positions_closed_total",
		Help: "Positions closed, by strategy and exit rule.",
	}, []string{"strategy", "rule"})

	equityGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "polysim_equity_usdc",
		Help: "Realized equity in USDC.",
	})

	floatingGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "polysim_floating_pnl_usdc",
		Help: "Unrealized P&L of open positions in USDC.",
	})

	poolGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "polysim_candidate_pool_size",
		Help: "Candidates currently in the pool.",
	})
)

func init() {
	prometheus.MustRegister(
		ticksTotal,
		positionsOpened,
		positionsClosed,
		equityGauge,
		floatingGauge,
		poolGauge,
	)
}

func observeTick(driver string, stats domain.Statistics, poolSize int) {
	ticksTotal.WithLabelValues(driver).Inc()
	equityGauge.Set(stats.Equity)
	floatingGauge.Set(stats.FloatingPnL)
	poolGauge.Set(float64(poolSize))
}

func observeOpen(p *domain.Position) {
	positionsOpened.WithLabelValues(string(p.Strategy)).Inc()
}

func observeClose(p *domain.Position) {
	positionsClosed.WithLabelValues(string(p.Strategy), strategy.RuleLabel(p.ExitReason)).Inc()
}
