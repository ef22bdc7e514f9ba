// Package fetcher provides the source adapters: feed-based, REST-API-based,
// and HTML-scraping-based producers behind the single ports.Fetcher contract.
// Adapters never fail upward: any network or parse error is logged and an
// empty batch is returned.
package fetcher

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"newspulse/internal/ports"
)

const userAgent = "newspulse/1.0"

// Options carries everything a factory needs to build one adapter instance.
type Options struct {
	URL    string
	Lang   string
	Client *http.Client
	Logger *slog.Logger
}

// Factory builds an adapter for one configured source.
type Factory func(sourceID string, opts Options) ports.Fetcher

// Registry keeps a mapping from source type names to adapter factories.
type Registry struct {
	factories map[string]Factory
}

// NewRegistry builds a registry with all built-in source types registered.
func NewRegistry() *Registry {
	r := &Registry{factories: map[string]Factory{}}
	r.Register("rss", func(id string, opts Options) ports.Fetcher { return NewRSS(id, opts) })
	r.Register("trending", func(id string, opts Options) ports.Fetcher { return NewTrending(id, opts) })
	r.Register("catalog", func(id string, opts Options) ports.Fetcher { return NewCatalog(id, opts) })
	return r
}

// Register adds or replaces a source type factory.
func (r *Registry) Register(typ string, factory Factory) {
	if r.factories == nil {
		r.factories = map[string]Factory{}
	}
	r.factories[typ] = factory
}

// Build resolves the type and constructs an adapter for the source.
func (r *Registry) Build(typ, sourceID string, opts Options) (ports.Fetcher, error) {
	factory, ok := r.factories[typ]
	if !ok {
		return nil, fmt.Errorf("source type %q is not registered", typ)
	}
	return factory(sourceID, opts), nil
}

func defaultClient(client *http.Client) *http.Client {
	if client == nil {
		return &http.Client{Timeout: 20 * time.Second}
	}
	return client
}
