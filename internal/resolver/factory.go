package resolver

import (
	"errors"
	"fmt"
)

// Constructor builds a Resolver from a validated variation config.
type Constructor func(cfg Config) (Resolver, error)

// Factory is an explicit registry from resolver type tag to constructor.
// It is populated once at process start; experiment configuration persisted
// as plain data names a resolver by tag and the factory instantiates the
// concrete type, so experiment code needs no compile-time knowledge of every
// resolver.
type Factory struct {
	endpoints    Endpoints
	constructors map[string]Constructor
}

// NewFactory creates a factory with every built-in resolver type registered.
func NewFactory(endpoints Endpoints) *Factory {
	f := &Factory{
		endpoints:    endpoints,
		constructors: make(map[string]Constructor),
	}

	f.Register(TypeProduct, func(Config) (Resolver, error) {
		return NewProductResolver(endpoints.CatalogURL), nil
	})
	f.Register(TypeSimilar, func(Config) (Resolver, error) {
		return NewSimilarProductsResolver(endpoints.SearchURL), nil
	})
	f.Register(TypeRecommendations, func(cfg Config) (Resolver, error) {
		return NewRecommendationsResolver(endpoints.InferenceURL, cfg.CampaignARN, cfg.FilterARN)
	})
	f.Register(TypeRanking, func(cfg Config) (Resolver, error) {
		return NewRankingResolver(endpoints.InferenceURL, cfg.CampaignARN)
	})
	f.Register(TypeRankingNoOp, func(Config) (Resolver, error) {
		return NewRankingNoOpResolver(), nil
	})
	f.Register(TypeHTTP, func(cfg Config) (Resolver, error) {
		return NewHTTPResolver(cfg)
	})

	return f
}

// Register adds or replaces the constructor for a resolver type tag.
func (f *Factory) Register(typeTag string, c Constructor) {
	f.constructors[typeTag] = c
}

// New validates cfg and instantiates the resolver its type tag names.
// An unregistered tag is an error identifying the bad tag.
func (f *Factory) New(cfg Config) (Resolver, error) {
	c, ok := f.constructors[cfg.Type]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, cfg.Type)
	}
	// Validate covers the built-in tags; a tag registered by the caller is
	// already vouched for by its presence in the registry.
	if err := cfg.Validate(); err != nil && !errors.Is(err, ErrUnknownType) {
		return nil, err
	}
	return c(cfg)
}
