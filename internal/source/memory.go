package source

import (
	"context"
	"fmt"
	"sort"

	"evovis/internal/model"
	"evovis/internal/runerr"
)

// Memory is a Source over records already held in memory. Generations are
// keyed by index; records are copied out on every call.
type Memory struct {
	Name        string
	Config      model.HyperparameterConfig
	Space       model.SearchSpace
	Generations map[int][]model.IndividualRecord
	Log         []model.CrossoverRecord
}

func (m *Memory) Location() string {
	if m.Name == "" {
		return "memory"
	}
	return m.Name
}

func (m *Memory) Hyperparameters(_ context.Context) (model.HyperparameterConfig, error) {
	return m.Config.Clone(), nil
}

func (m *Memory) SearchSpace(_ context.Context) (model.SearchSpace, error) {
	if m.Space.Rules == nil {
		return model.SearchSpace{}, runerr.Missing(m.Location() + "/search_space")
	}
	return m.Space, nil
}

func (m *Memory) GenerationIndices(_ context.Context) ([]int, error) {
	if len(m.Generations) == 0 {
		return nil, runerr.New(runerr.MissingArtifact, m.Location(), "", "no generations recorded")
	}
	indices := make([]int, 0, len(m.Generations))
	for index := range m.Generations {
		indices = append(indices, index)
	}
	sort.Ints(indices)
	return indices, nil
}

func (m *Memory) Individuals(_ context.Context, generation int) ([]model.IndividualRecord, error) {
	records, ok := m.Generations[generation]
	if !ok {
		return nil, runerr.Missing(fmt.Sprintf("%s/generation/%d", m.Location(), generation))
	}
	out := make([]model.IndividualRecord, len(records))
	for i, record := range records {
		record.Generation = generation
		out[i] = record
	}
	return out, nil
}

func (m *Memory) CrossoverLog(_ context.Context) ([]model.CrossoverRecord, error) {
	return append([]model.CrossoverRecord(nil), m.Log...), nil
}
