// Package generation turns the individual records of an adapter into
// validated generations.
package generation

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"evovis/internal/model"
	"evovis/internal/runerr"
	"evovis/internal/source"
)

// ChromosomeValidator checks a chromosome against the gene pool.
type ChromosomeValidator interface {
	ValidateChromosome(model.Chromosome) error
}

type generationLocator interface {
	GenerationPath(index int) string
}

type Loader struct {
	Config model.HyperparameterConfig
	// Validator is optional; without it chromosomes are not checked.
	Validator ChromosomeValidator
	// Strict turns an invalid chromosome into InvalidChromosome instead of a
	// warning.
	Strict bool
	Logger *zap.Logger
}

type Result struct {
	Generations []model.Generation
	Warnings    []string
}

// Load reads every generation of src in ascending order. The first failing
// record aborts the load. ctx is checked between generations.
func (l Loader) Load(ctx context.Context, src source.Source) (Result, error) {
	logger := l.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	indices, err := src.GenerationIndices(ctx)
	if err != nil {
		return Result{}, err
	}
	if err := checkContiguous(src.Location(), indices); err != nil {
		return Result{}, err
	}

	objectives := l.Config.ObjectiveNames()
	seen := make(map[string]string)
	result := Result{Generations: make([]model.Generation, 0, len(indices))}

	for _, index := range indices {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		records, err := src.Individuals(ctx, index)
		if err != nil {
			return Result{}, err
		}

		generation := model.Generation{Index: index, Individuals: make([]model.Individual, 0, len(records))}
		if located, ok := src.(generationLocator); ok {
			generation.Path = located.GenerationPath(index)
		}
		for _, record := range records {
			if first, dup := seen[record.ID]; dup {
				return Result{}, runerr.New(runerr.DuplicateIndividualID, record.Path, record.ID, "also defined at %s", first)
			}
			seen[record.ID] = recordLocation(src, record)

			individual, err := Convert(record, objectives)
			if err != nil {
				return Result{}, err
			}
			if l.Validator != nil {
				if err := l.Validator.ValidateChromosome(individual.Chromosome); err != nil {
					if l.Strict {
						return Result{}, runerr.New(runerr.InvalidChromosome, record.Path, record.ID, "%v", err)
					}
					warning := fmt.Sprintf("individual %s: invalid chromosome: %v", record.ID, err)
					result.Warnings = append(result.Warnings, warning)
					logger.Warn("invalid chromosome",
						zap.String("individual", record.ID),
						zap.Int("generation", index),
						zap.Error(err))
				}
			}
			if !individual.Healthy {
				logger.Debug("unhealthy individual",
					zap.String("individual", record.ID),
					zap.String("error", individual.Error))
			}
			generation.Individuals = append(generation.Individuals, individual)
		}
		sort.Slice(generation.Individuals, func(i, j int) bool {
			return generation.Individuals[i].ID < generation.Individuals[j].ID
		})
		logger.Debug("generation loaded", zap.Int("generation", index), zap.Int("individuals", len(generation.Individuals)))
		result.Generations = append(result.Generations, generation)
	}
	return result, nil
}

func checkContiguous(location string, indices []int) error {
	if len(indices) == 0 {
		return runerr.New(runerr.MissingArtifact, location, "", "no generations found")
	}
	if indices[0] != 0 && indices[0] != 1 {
		return runerr.Malformed(location, nil, "first generation is %d, expected 0 or 1", indices[0])
	}
	for i := 1; i < len(indices); i++ {
		if indices[i] != indices[i-1]+1 {
			return runerr.Malformed(location, nil, "generation %d follows generation %d", indices[i], indices[i-1])
		}
	}
	return nil
}

func recordLocation(src source.Source, record model.IndividualRecord) string {
	if record.Path != "" {
		return record.Path
	}
	return fmt.Sprintf("%s generation %d", src.Location(), record.Generation)
}
