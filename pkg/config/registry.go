// Copyright 2026 The dictlearn Authors. SPDX-License-Identifier: Apache-2.0

package config

import (
	"maps"
	"slices"
	"sync"

	"github.com/pkg/errors"
)

// RootName is the name of the root configuration in a Registry.
const RootName = "root"

// ErrUnknownConfig is returned by Registry.Get for names not registered.
var ErrUnknownConfig = errors.New("unknown configuration")

// Registry of named configurations. It is safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	configs map[string]Config
}

// NewRegistry creates a registry with the given root configuration, registered as RootName.
func NewRegistry(root Config) *Registry {
	return &Registry{configs: map[string]Config{RootName: root}}
}

// Root returns the root configuration.
func (r *Registry) Root() Config {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.configs[RootName]
}

// Set registers cfg under name, replacing any previous configuration with the same name.
func (r *Registry) Set(name string, cfg Config) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.configs[name] = cfg
}

// Get returns the configuration registered with name.
func (r *Registry) Get(name string) (Config, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cfg, found := r.configs[name]
	if !found {
		return Config{}, errors.Wrapf(ErrUnknownConfig, "%q (registered: %v)", name, r.namesLocked())
	}
	return cfg, nil
}

// Names returns the sorted names of the registered configurations.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.namesLocked()
}

func (r *Registry) namesLocked() []string {
	return slices.Sorted(maps.Keys(r.configs))
}

// NLIESIM returns the registry of the ESIM natural language inference experiments:
//
//   - "root" and "baseline": the root configuration.
//   - "baseline_glove": fixed pre-trained GloVe embeddings.
//   - "baseline_3k": only the 3000 most frequent words are used as inputs.
func NLIESIM() *Registry {
	root := Root()
	r := NewRegistry(root)
	r.Set("baseline", root)
	r.Set("baseline_glove", root.With(func(c *Config) {
		c.TrainEmb = false
		c.EmbeddingPath = "data/snli/glove.840B.300d.npy"
	}))
	r.Set("baseline_3k", root.With(func(c *Config) {
		c.NumInputWords = 3000
	}))
	return r
}
