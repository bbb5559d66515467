package store

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-memory implementation of the Store interface.
// It uses a map guarded by a mutex for thread-safe concurrent access.
// Suitable for development, testing, or single-instance demo deployments.
type MemoryStore struct {
	mu          sync.RWMutex
	experiments map[string]*Experiment // id -> experiment
}

// NewMemoryStore creates a new in-memory experiment store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		experiments: make(map[string]*Experiment),
	}
}

// GetByID retrieves an experiment by id.
func (m *MemoryStore) GetByID(ctx context.Context, id string) (*Experiment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	exp, ok := m.experiments[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := cloneExperiment(exp)
	return &cp, nil
}

// GetActiveByFeature returns the active experiment for a feature, or nil.
func (m *MemoryStore) GetActiveByFeature(ctx context.Context, feature string) (*Experiment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, exp := range m.experiments {
		if exp.Feature == feature && exp.Status == StatusActive {
			cp := cloneExperiment(exp)
			return &cp, nil
		}
	}
	return nil, nil
}

// List returns experiments, optionally filtered by feature.
func (m *MemoryStore) List(ctx context.Context, feature string) ([]Experiment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]Experiment, 0, len(m.experiments))
	for _, exp := range m.experiments {
		if feature != "" && exp.Feature != feature {
			continue
		}
		result = append(result, cloneExperiment(exp))
	}
	return result, nil
}

// Create persists a new experiment.
func (m *MemoryStore) Create(ctx context.Context, exp Experiment) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if exp.Status == StatusActive {
		if err := m.checkNoActiveLocked(exp.Feature, exp.ID); err != nil {
			return err
		}
	}

	exp.UpdatedAt = time.Now().UTC()
	cp := cloneExperiment(&exp)
	m.experiments[exp.ID] = &cp
	return nil
}

// SetStatus transitions an experiment's status.
func (m *MemoryStore) SetStatus(ctx context.Context, id, status string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	exp, ok := m.experiments[id]
	if !ok {
		return ErrNotFound
	}
	if status == StatusActive {
		if err := m.checkNoActiveLocked(exp.Feature, id); err != nil {
			return err
		}
	}
	exp.Status = status
	exp.UpdatedAt = time.Now().UTC()
	return nil
}

// Delete removes an experiment. Idempotent.
func (m *MemoryStore) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.experiments, id)
	return nil
}

// IncrementExposures atomically adds delta to a variation's exposure counter.
func (m *MemoryStore) IncrementExposures(ctx context.Context, id string, variation int, delta int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	exp, ok := m.experiments[id]
	if !ok {
		return 0, ErrNotFound
	}
	if variation < 0 || variation >= len(exp.Variations) {
		return 0, ErrVariationOutOfRange
	}
	exp.Variations[variation].Exposures += delta
	return exp.Variations[variation].Exposures, nil
}

// IncrementConversions atomically adds delta to a variation's conversion counter.
func (m *MemoryStore) IncrementConversions(ctx context.Context, id string, variation int, delta int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	exp, ok := m.experiments[id]
	if !ok {
		return 0, ErrNotFound
	}
	if variation < 0 || variation >= len(exp.Variations) {
		return 0, ErrVariationOutOfRange
	}
	exp.Variations[variation].Conversions += delta
	return exp.Variations[variation].Conversions, nil
}

// Close is a no-op for MemoryStore as there are no resources to release.
func (m *MemoryStore) Close() error {
	return nil
}

// checkNoActiveLocked enforces the at-most-one-active-per-feature invariant.
// Caller must hold the write lock.
func (m *MemoryStore) checkNoActiveLocked(feature, excludeID string) error {
	for _, other := range m.experiments {
		if other.ID != excludeID && other.Feature == feature && other.Status == StatusActive {
			return ErrFeatureHasActive
		}
	}
	return nil
}

// cloneExperiment deep-copies an experiment so callers never alias the
// store's internal state.
func cloneExperiment(exp *Experiment) Experiment {
	cp := *exp
	cp.Variations = make([]Variation, len(exp.Variations))
	copy(cp.Variations, exp.Variations)
	if exp.Audience != nil {
		aud := *exp.Audience
		aud.Conditions = append(aud.Conditions[:0:0], exp.Audience.Conditions...)
		cp.Audience = &aud
	}
	return cp
}
