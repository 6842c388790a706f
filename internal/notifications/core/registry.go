// Package core provides the shared notification infrastructure: template
// rendering, the dispatcher registry, provider error normalization, and the
// orchestrator that fans a rendered alert out to a certificate's linked
// channels.
package core

import (
	"certsentry/internal/types"
)

// Registry maps channel types to their dispatcher implementations. Adding a
// new channel variant means registering a new dispatcher, not growing a
// type switch in the orchestrator.
type Registry struct {
	dispatchers map[types.ChannelType]types.ChannelDispatcher
}

// NewRegistry creates a Registry from the given dispatchers, keyed by each
// dispatcher's declared type.
func NewRegistry(dispatchers ...types.ChannelDispatcher) *Registry {
	r := &Registry{dispatchers: make(map[types.ChannelType]types.ChannelDispatcher, len(dispatchers))}
	for _, d := range dispatchers {
		r.dispatchers[d.Type()] = d
	}
	return r
}

// Get returns the dispatcher for the channel type, or nil if the type is
// not supported by this deployment.
func (r *Registry) Get(t types.ChannelType) types.ChannelDispatcher {
	return r.dispatchers[t]
}
