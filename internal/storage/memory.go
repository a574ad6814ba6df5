package storage

import (
	"context"
	"errors"
	"sort"
	"sync"

	"evovis/internal/model"
)

type MemoryStore struct {
	mu          sync.RWMutex
	initialized bool
	seq         int
	summaries   map[string]storedSummary
	snapshots   map[string][]byte
}

type storedSummary struct {
	summary model.RunSummary
	seq     int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Init(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.initialized = true
	s.summaries = make(map[string]storedSummary)
	s.snapshots = make(map[string][]byte)
	return nil
}

// SaveRun keeps the snapshot encoded so callers never share nested maps with
// the store.
func (s *MemoryStore) SaveRun(_ context.Context, summary model.RunSummary, snapshot model.RunSnapshot) error {
	payload, err := EncodeRunSnapshot(snapshot)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return errors.New("store is not initialized")
	}
	s.seq++
	summary.Objectives = append([]string(nil), summary.Objectives...)
	s.summaries[summary.RunID] = storedSummary{summary: summary, seq: s.seq}
	s.snapshots[summary.RunID] = payload
	return nil
}

func (s *MemoryStore) GetRunSummary(_ context.Context, runID string) (model.RunSummary, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stored, ok := s.summaries[runID]
	if !ok {
		return model.RunSummary{}, false, nil
	}
	summary := stored.summary
	summary.Objectives = append([]string(nil), summary.Objectives...)
	return summary, true, nil
}

func (s *MemoryStore) GetRunSnapshot(_ context.Context, runID string) (model.RunSnapshot, bool, error) {
	s.mu.RLock()
	payload, ok := s.snapshots[runID]
	s.mu.RUnlock()

	if !ok {
		return model.RunSnapshot{}, false, nil
	}
	snapshot, err := DecodeRunSnapshot(payload)
	if err != nil {
		return model.RunSnapshot{}, false, err
	}
	return snapshot, true, nil
}

func (s *MemoryStore) ListRuns(_ context.Context, limit int) ([]model.RunSummary, error) {
	s.mu.RLock()
	stored := make([]storedSummary, 0, len(s.summaries))
	for _, item := range s.summaries {
		stored = append(stored, item)
	}
	s.mu.RUnlock()

	sort.Slice(stored, func(i, j int) bool {
		if stored[i].summary.LoadedAtUTC == stored[j].summary.LoadedAtUTC {
			// Prefer later saves for equal timestamps.
			return stored[i].seq > stored[j].seq
		}
		return stored[i].summary.LoadedAtUTC > stored[j].summary.LoadedAtUTC
	})
	if limit > 0 && len(stored) > limit {
		stored = stored[:limit]
	}

	out := make([]model.RunSummary, 0, len(stored))
	for _, item := range stored {
		summary := item.summary
		summary.Objectives = append([]string(nil), summary.Objectives...)
		out = append(out, summary)
	}
	return out, nil
}

func (s *MemoryStore) DeleteRun(_ context.Context, runID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.summaries, runID)
	delete(s.snapshots, runID)
	return nil
}
