// Package source defines the capability set an ENAS run adapter provides to
// the ingestion pipeline, with a directory adapter for the on-disk layout and
// an in-memory adapter for algorithms that hand over their records directly.
package source

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"evovis/internal/codec"
	"evovis/internal/model"
	"evovis/internal/runerr"
	"evovis/internal/schema"
)

// Source provides the records of one run. Implementations report failures as
// *runerr.Error values naming the artifact they concern.
type Source interface {
	// Location identifies the run in error messages, e.g. the run directory.
	Location() string
	Hyperparameters(ctx context.Context) (model.HyperparameterConfig, error)
	SearchSpace(ctx context.Context) (model.SearchSpace, error)
	// GenerationIndices lists the generations of the run in ascending order.
	GenerationIndices(ctx context.Context) ([]int, error)
	Individuals(ctx context.Context, generation int) ([]model.IndividualRecord, error)
	CrossoverLog(ctx context.Context) ([]model.CrossoverRecord, error)
}

// Dir reads a validated run directory.
type Dir struct {
	manifest    schema.Manifest
	generations map[int]schema.GenerationDir
}

func NewDir(manifest schema.Manifest) *Dir {
	generations := make(map[int]schema.GenerationDir, len(manifest.Generations))
	for _, generation := range manifest.Generations {
		generations[generation.Index] = generation
	}
	return &Dir{manifest: manifest, generations: generations}
}

func (d *Dir) Location() string {
	return d.manifest.RunDir
}

func (d *Dir) Manifest() schema.Manifest {
	return d.manifest
}

// GenerationPath returns the directory of a generation, or "" if the run has
// no such generation.
func (d *Dir) GenerationPath(index int) string {
	return d.generations[index].Path
}

func (d *Dir) Hyperparameters(_ context.Context) (model.HyperparameterConfig, error) {
	data, err := codec.ReadFile(d.manifest.ConfigPath)
	if err != nil {
		return model.HyperparameterConfig{}, err
	}
	return codec.DecodeConfig(d.manifest.ConfigPath, data)
}

func (d *Dir) SearchSpace(_ context.Context) (model.SearchSpace, error) {
	data, err := codec.ReadFile(d.manifest.SearchSpacePath)
	if err != nil {
		return model.SearchSpace{}, err
	}
	return codec.DecodeSearchSpace(d.manifest.SearchSpacePath, data)
}

func (d *Dir) GenerationIndices(_ context.Context) ([]int, error) {
	indices := make([]int, 0, len(d.manifest.Generations))
	for _, generation := range d.manifest.Generations {
		indices = append(indices, generation.Index)
	}
	return indices, nil
}

func (d *Dir) Individuals(ctx context.Context, index int) ([]model.IndividualRecord, error) {
	generation, ok := d.generations[index]
	if !ok {
		return nil, runerr.Missing(filepath.Join(d.manifest.RunDir, fmt.Sprintf("Generation_%d", index)))
	}

	records := make([]model.IndividualRecord, 0, len(generation.Individuals))
	for _, entry := range generation.Individuals {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		record, err := readIndividual(entry)
		if err != nil {
			return nil, err
		}
		record.Generation = index
		records = append(records, record)
	}
	return records, nil
}

func (d *Dir) CrossoverLog(_ context.Context) ([]model.CrossoverRecord, error) {
	file, err := os.Open(d.manifest.CrossoverLogPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, runerr.Missing(d.manifest.CrossoverLogPath)
		}
		return nil, runerr.Malformed(d.manifest.CrossoverLogPath, err, "open: %v", err)
	}
	defer file.Close()
	return codec.ReadCrossoverLog(d.manifest.CrossoverLogPath, file)
}

func readIndividual(entry schema.IndividualEntry) (model.IndividualRecord, error) {
	record := model.IndividualRecord{ID: entry.ID, Path: entry.Path}

	if entry.Form == schema.FormFile {
		data, err := codec.ReadFile(entry.Path)
		if err != nil {
			return model.IndividualRecord{}, err
		}
		chromosome, results, err := codec.DecodeIndividualFile(entry.Path, data)
		if err != nil {
			return model.IndividualRecord{}, err
		}
		record.Chromosome = chromosome
		record.Results = results
		return record, nil
	}

	data, err := codec.ReadFile(entry.ChromosomePath())
	if err != nil {
		return model.IndividualRecord{}, err
	}
	chromosome, err := codec.DecodeChromosome(entry.ChromosomePath(), data)
	if err != nil {
		return model.IndividualRecord{}, err
	}
	data, err = codec.ReadFile(entry.ResultsPath())
	if err != nil {
		return model.IndividualRecord{}, err
	}
	results, err := codec.DecodeResults(entry.ResultsPath(), data)
	if err != nil {
		return model.IndividualRecord{}, err
	}
	record.Chromosome = chromosome
	record.Results = results
	return record, nil
}
