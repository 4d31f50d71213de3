package domain

import "time"

// EventType tags a progress event. Consumers must ignore unknown types.
type EventType string

const (
	EventTick     EventType = "tick"
	EventOpened   EventType = "opened"
	EventClosed   EventType = "closed"
	EventComplete EventType = "complete"
	EventError    EventType = "error"
)

// Event is the tagged union emitted by the simulation drivers. Only the
// fields relevant to the Type are populated.
type Event struct {
	Type EventType
	Time time.Time

	// tick / complete
	Tick        int
	Candidates  int
	OpenCount   int
	Equity      float64
	FloatingPnL float64
	Progress    float64 // 0..1, replay only

	// opened / closed — a copy, never the ledger's record
	Position *Position
	Reason   string

	// error
	Err string
}
