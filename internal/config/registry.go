package config

import (
	"errors"
	"fmt"
	"sync"

	"github.com/MrWong99/squawkbox/internal/playback"
)

// ErrSinkNotRegistered is returned by [Registry.CreateSink] when no factory
// has been registered under the requested sink name.
var ErrSinkNotRegistered = errors.New("config: audio sink not registered")

// Registry maps audio sink names to their constructor functions so the config
// file can select the playback backend by name. It is safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	sinks map[string]func(AudioConfig) (playback.Sink, error)
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{
		sinks: make(map[string]func(AudioConfig) (playback.Sink, error)),
	}
}

// RegisterSink registers an audio sink factory under name.
// Subsequent calls with the same name overwrite the previous registration.
func (r *Registry) RegisterSink(name string, factory func(AudioConfig) (playback.Sink, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sinks[name] = factory
}

// CreateSink instantiates the audio sink named by cfg.Sink.
// Returns [ErrSinkNotRegistered] if no factory has been registered for that name.
func (r *Registry) CreateSink(cfg AudioConfig) (playback.Sink, error) {
	r.mu.RLock()
	factory, ok := r.sinks[cfg.Sink]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrSinkNotRegistered, cfg.Sink)
	}
	return factory(cfg)
}
