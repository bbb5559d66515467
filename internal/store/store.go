// Package store persists experiment configurations and their per-variation
// exposure/conversion counters.
//
// Counters are the only durable state the experimentation core mutates, and
// they are only ever mutated through atomic increments scoped to one
// (experiment, variation, field) triple - never by read-modify-write of the
// whole record - so concurrent requests across many processes stay safe.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/mbolshakov/gotrial/internal/audience"
	"github.com/mbolshakov/gotrial/internal/resolver"
)

// Experiment statuses. At most one experiment per feature may be ACTIVE;
// SetStatus and Create enforce this at activation time.
const (
	StatusDraft   = "DRAFT"
	StatusActive  = "ACTIVE"
	StatusExpired = "EXPIRED"
)

// Experiment type tags, mapped to concrete implementations by the
// experiment manager's registry.
const (
	TypeAB           = "ab"
	TypeInterleaving = "interleaving"
	TypeMAB          = "mab"
	TypeExternal     = "external"
)

// Interleaving merge methods.
const (
	MethodBalanced  = "balanced"
	MethodTeamDraft = "team-draft"
)

// ErrNotFound is returned when no experiment exists for the given id.
var ErrNotFound = errors.New("experiment not found")

// ErrVariationOutOfRange is returned when a counter increment names a
// variation index outside the experiment's variation list.
var ErrVariationOutOfRange = errors.New("variation index out of range")

// ErrFeatureHasActive is returned when activating an experiment for a
// feature that already has an active one.
var ErrFeatureHasActive = errors.New("feature already has an active experiment")

// Variation is one resolver configuration within an experiment. Its position
// in the experiment's list is its variation index, which correlation tokens
// encode positionally; the list order must never change for the lifetime of
// the experiment.
type Variation struct {
	resolver.Config `yaml:",inline"`

	Exposures   int64 `json:"exposures" yaml:"exposures"`
	Conversions int64 `json:"conversions" yaml:"conversions"`
}

// Audience restricts which users an experiment applies to. Both parts are
// optional; when present, a user must satisfy the expression and all
// conditions to be enrolled.
type Audience struct {
	Expression string               `json:"expression,omitempty" yaml:"expression,omitempty"`
	Conditions []audience.Condition `json:"conditions,omitempty" yaml:"conditions,omitempty"`
}

// Experiment is a persisted experiment configuration.
type Experiment struct {
	ID         string      `json:"id" yaml:"id"`
	Feature    string      `json:"feature" yaml:"feature"`
	Name       string      `json:"name" yaml:"name"`
	Type       string      `json:"type" yaml:"type"`
	Status     string      `json:"status" yaml:"status"`
	Method     string      `json:"method,omitempty" yaml:"method,omitempty"` // interleaving only
	Audience   *Audience   `json:"audience,omitempty" yaml:"audience,omitempty"`
	Variations []Variation `json:"variations" yaml:"variations"`
	UpdatedAt  time.Time   `json:"updatedAt" yaml:"updatedAt"`
}

// Store defines the interface for experiment persistence.
// Implementations must be safe for concurrent use.
type Store interface {
	// GetByID retrieves an experiment by primary key.
	// Returns ErrNotFound if it does not exist.
	GetByID(ctx context.Context, id string) (*Experiment, error)

	// GetActiveByFeature returns the single active experiment for a feature,
	// or (nil, nil) when the feature has no active experiment.
	GetActiveByFeature(ctx context.Context, feature string) (*Experiment, error)

	// List returns experiments, optionally filtered by feature (empty = all).
	List(ctx context.Context, feature string) ([]Experiment, error)

	// Create persists a new experiment. Creating directly in ACTIVE status
	// fails with ErrFeatureHasActive if the feature already has one.
	Create(ctx context.Context, exp Experiment) error

	// SetStatus transitions an experiment's status. Activation fails with
	// ErrFeatureHasActive if another experiment for the same feature is
	// already active.
	SetStatus(ctx context.Context, id, status string) error

	// Delete removes an experiment. Deleting a missing experiment is not an
	// error (idempotent).
	Delete(ctx context.Context, id string) error

	// IncrementExposures atomically adds delta to a variation's exposure
	// counter and returns the new count.
	IncrementExposures(ctx context.Context, id string, variation int, delta int64) (int64, error)

	// IncrementConversions atomically adds delta to a variation's conversion
	// counter and returns the new count.
	IncrementConversions(ctx context.Context, id string, variation int, delta int64) (int64, error)

	// Close releases any resources held by the store.
	Close() error
}

// ValidateDefinition checks the invariants every persisted experiment must
// satisfy, including the validating decode of each variation's resolver
// config. It is called at the write boundary so malformed configuration never
// reaches request handling.
func ValidateDefinition(exp *Experiment) error {
	if exp.ID == "" {
		return errors.New("experiment id is required")
	}
	if exp.Feature == "" {
		return errors.New("experiment feature is required")
	}
	if exp.Name == "" {
		return errors.New("experiment name is required")
	}
	switch exp.Type {
	case TypeAB, TypeMAB:
		if len(exp.Variations) < 2 {
			return errors.New("experiment requires at least 2 variations")
		}
	case TypeInterleaving:
		if len(exp.Variations) < 2 {
			return errors.New("experiment requires at least 2 variations")
		}
		if exp.Method != MethodBalanced && exp.Method != MethodTeamDraft {
			return errors.New("interleaving experiment requires method 'balanced' or 'team-draft'")
		}
	case TypeExternal:
		if len(exp.Variations) == 0 {
			return errors.New("experiment requires at least 1 variation")
		}
	default:
		return errors.New("unknown experiment type: " + exp.Type)
	}
	for i := range exp.Variations {
		if err := exp.Variations[i].Config.Validate(); err != nil {
			return err
		}
	}
	return nil
}
