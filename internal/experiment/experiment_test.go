package experiment

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/mbolshakov/gotrial/internal/resolver"
	"github.com/mbolshakov/gotrial/internal/store"
)

// staticResolver serves a fixed item list, truncated to the requested count.
type staticResolver struct {
	ids []string
}

func (s *staticResolver) GetItems(_ context.Context, p resolver.Params) ([]resolver.Item, error) {
	n := p.NumResults
	if n <= 0 || n > len(s.ids) {
		n = len(s.ids)
	}
	items := make([]resolver.Item, n)
	for i := 0; i < n; i++ {
		items[i] = resolver.Item{ItemID: s.ids[i]}
	}
	return items, nil
}

// testFactory returns a factory with a "static" resolver type whose item
// list is selected by the config's BaseURL field.
func testFactory(lists map[string][]string) *resolver.Factory {
	f := resolver.NewFactory(resolver.Endpoints{})
	f.Register("static", func(cfg resolver.Config) (resolver.Resolver, error) {
		return &staticResolver{ids: lists[cfg.BaseURL]}, nil
	})
	return f
}

func staticVariation(key string) store.Variation {
	return store.Variation{Config: resolver.Config{Type: "static", BaseURL: key}}
}

func testManager(st store.Store, lists map[string][]string) *Manager {
	return NewManager(ManagerOptions{
		Store:   st,
		Factory: testFactory(lists),
		Logger:  zerolog.Nop(),
	})
}
