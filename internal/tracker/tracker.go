// Package tracker emits experiment exposure events to an external event
// stream. Delivery is strictly best-effort and non-blocking: a
// recommendation response must succeed even when tracking infrastructure is
// unavailable, so failures are logged and discarded, never propagated.
package tracker

import "time"

// Event is one exposure record. It is serialized to JSON and published to
// the configured stream subject.
type Event struct {
	EventID        string    `json:"eventId"`
	ExperimentID   string    `json:"experimentId"`
	Feature        string    `json:"feature"`
	Name           string    `json:"name"`
	Type           string    `json:"type"`
	VariationIndex int       `json:"variationIndex"`
	UserID         string    `json:"userId"`
	ItemIDs        []string  `json:"itemIds,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}

// Tracker is the minimal exposure-logging contract experiments depend on.
type Tracker interface {
	LogExposure(event Event)
}
