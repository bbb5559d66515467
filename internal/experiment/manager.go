package experiment

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/mbolshakov/gotrial/internal/evaluator"
	"github.com/mbolshakov/gotrial/internal/resolver"
	"github.com/mbolshakov/gotrial/internal/store"
	"github.com/mbolshakov/gotrial/internal/tracker"
)

// Constructor builds an experiment strategy from its persisted definition.
type Constructor func(def *store.Experiment) (Experiment, error)

// ManagerOptions are the dependencies a Manager wires into the experiments
// it builds. Evaluator may be nil when no external engine is configured, in
// which case external experiments fail to build.
type ManagerOptions struct {
	Store     store.Store
	Factory   *resolver.Factory
	Tracker   tracker.Tracker
	Evaluator evaluator.Evaluator
	Logger    zerolog.Logger
}

// Manager loads experiment definitions and instantiates the strategy each
// definition's type tag names. The type registry is populated with the
// built-in strategies at construction; additional types can be registered.
type Manager struct {
	store    store.Store
	factory  *resolver.Factory
	tracker  tracker.Tracker
	eval     evaluator.Evaluator
	log      zerolog.Logger
	registry map[string]Constructor

	configOnce sync.Once
	configured bool
}

// NewManager creates a manager with every built-in experiment type
// registered.
func NewManager(opts ManagerOptions) *Manager {
	m := &Manager{
		store:    opts.Store,
		factory:  opts.Factory,
		tracker:  opts.Tracker,
		eval:     opts.Evaluator,
		log:      opts.Logger,
		registry: make(map[string]Constructor),
	}

	m.Register(store.TypeAB, func(def *store.Experiment) (Experiment, error) {
		b, err := m.newBase(def)
		if err != nil {
			return nil, err
		}
		return &ABExperiment{base: b}, nil
	})
	m.Register(store.TypeInterleaving, func(def *store.Experiment) (Experiment, error) {
		b, err := m.newBase(def)
		if err != nil {
			return nil, err
		}
		return &InterleavingExperiment{
			base: b,
			rng:  rand.New(rand.NewSource(time.Now().UnixNano())),
		}, nil
	})
	m.Register(store.TypeMAB, func(def *store.Experiment) (Experiment, error) {
		b, err := m.newBase(def)
		if err != nil {
			return nil, err
		}
		return &BanditExperiment{base: b}, nil
	})
	m.Register(store.TypeExternal, func(def *store.Experiment) (Experiment, error) {
		if m.eval == nil {
			return nil, fmt.Errorf("experiment %s: no external evaluator configured", def.ID)
		}
		b, err := m.newBase(def)
		if err != nil {
			return nil, err
		}
		return &ExternalExperiment{base: b, eval: m.eval, factory: m.factory}, nil
	})

	return m
}

// Register adds or replaces the constructor for an experiment type tag.
func (m *Manager) Register(typeTag string, c Constructor) {
	m.registry[typeTag] = c
}

// IsConfigured reports whether experimentation is available: a store was
// configured (the experiment table is resolvable from central configuration,
// in which case main wires one in) and it answers a probe. The probe runs
// once; a process that starts without a working store serves default
// resolvers for its lifetime.
func (m *Manager) IsConfigured(ctx context.Context) bool {
	m.configOnce.Do(func() {
		if m.store == nil {
			return
		}
		if _, err := m.store.List(ctx, ""); err != nil {
			m.log.Warn().Err(err).Msg("experiment store unreachable, experimentation disabled")
			return
		}
		m.configured = true
	})
	return m.configured
}

// GetActive returns the strategy for the feature's active experiment, or
// (nil, nil) when the feature has none or experimentation is not configured.
func (m *Manager) GetActive(ctx context.Context, feature string) (Experiment, error) {
	if m.store == nil {
		return nil, nil
	}
	def, err := m.store.GetActiveByFeature(ctx, feature)
	if err != nil {
		return nil, err
	}
	if def == nil {
		return nil, nil
	}
	return m.build(def)
}

// GetByID returns the strategy for one experiment regardless of status.
// Returns store.ErrNotFound when it does not exist or experimentation is
// not configured.
func (m *Manager) GetByID(ctx context.Context, id string) (Experiment, error) {
	if m.store == nil {
		return nil, store.ErrNotFound
	}
	def, err := m.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return m.build(def)
}

// DefaultTracker returns the exposure tracker experiments built by this
// manager emit to. May be nil.
func (m *Manager) DefaultTracker() tracker.Tracker { return m.tracker }

func (m *Manager) build(def *store.Experiment) (Experiment, error) {
	ctor, ok := m.registry[def.Type]
	if !ok {
		return nil, fmt.Errorf("unknown experiment type %q", def.Type)
	}
	return ctor(def)
}

func (m *Manager) newBase(def *store.Experiment) (base, error) {
	return newBase(def, m.store, m.factory, m.tracker, m.log)
}
