// Package session publishes loaded runs by run id for the lifetime of a
// visualization session.
package session

import (
	"context"
	"sort"
	"sync"

	"evovis/internal/ingest"
	"evovis/internal/run"
)

// Registry holds at most one run per id. A run becomes visible only after
// its load succeeded; a failed reload leaves the previous run in place.
type Registry struct {
	mu   sync.RWMutex
	runs map[string]*run.Run
}

func NewRegistry() *Registry {
	return &Registry{runs: make(map[string]*run.Run)}
}

// Load ingests path and publishes the result, replacing any run with the
// same id.
func (r *Registry) Load(ctx context.Context, path string, opts ingest.Options) (*run.Run, error) {
	loaded, err := ingest.LoadRun(ctx, path, opts)
	if err != nil {
		return nil, err
	}
	r.Publish(loaded)
	return loaded, nil
}

// Publish stores a fully constructed run and returns the run it replaced.
func (r *Registry) Publish(loaded *run.Run) *run.Run {
	r.mu.Lock()
	defer r.mu.Unlock()

	previous := r.runs[loaded.ID()]
	r.runs[loaded.ID()] = loaded
	return previous
}

func (r *Registry) Get(id string) (*run.Run, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	loaded, ok := r.runs[id]
	return loaded, ok
}

// IDs returns the published run ids in ascending order.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.runs))
	for id := range r.runs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (r *Registry) Remove(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, ok := r.runs[id]
	delete(r.runs, id)
	return ok
}
