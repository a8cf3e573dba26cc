package agent

import (
	"errors"
	"fmt"
)

// ErrUnknownAgent is returned when a provider id is not registered.
var ErrUnknownAgent = errors.New("unknown agent provider")

// FallbackID is assumed for sessions that carry no agent tag.
const FallbackID = "claude"

// Registry is an immutable id -> Provider table.
type Registry struct {
	providers map[string]*Provider
	order     []*Provider
}

// NewRegistry builds a registry. Later providers with a duplicate id replace earlier ones.
func NewRegistry(providers ...*Provider) *Registry {
	r := &Registry{providers: make(map[string]*Provider, len(providers))}
	for _, p := range providers {
		if _, dup := r.providers[p.ID]; !dup {
			r.order = append(r.order, p)
		} else {
			for i, existing := range r.order {
				if existing.ID == p.ID {
					r.order[i] = p
				}
			}
		}
		r.providers[p.ID] = p
	}
	return r
}

// Lookup returns the provider for id or an error wrapping ErrUnknownAgent.
func (r *Registry) Lookup(id string) (*Provider, error) {
	p, ok := r.providers[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAgent, id)
	}
	return p, nil
}

// All returns providers in registration order.
func (r *Registry) All() []*Provider {
	return append([]*Provider(nil), r.order...)
}

// Resolve is Lookup with untagged ids mapped to FallbackID. Unknown tags
// also resolve to the fallback so an old or foreign tag never hides a session.
func (r *Registry) Resolve(id string) *Provider {
	if p, ok := r.providers[id]; ok {
		return p
	}
	if p, ok := r.providers[FallbackID]; ok {
		return p
	}
	if len(r.order) > 0 {
		return r.order[0]
	}
	return nil
}

var defaultRegistry = NewRegistry(Claude, Codex)

// Default returns the built-in registry.
func Default() *Registry { return defaultRegistry }

// Lookup resolves id against the built-in registry.
func Lookup(id string) (*Provider, error) { return defaultRegistry.Lookup(id) }

// All lists the built-in providers.
func All() []*Provider { return defaultRegistry.All() }
