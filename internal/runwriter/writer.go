// Package runwriter writes run directories in the layout the ingestion
// pipeline reads. It backs the sample command and the test fixtures of the
// other packages.
package runwriter

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"evovis/internal/codec"
	"evovis/internal/model"
	"evovis/internal/schema"
)

type Individual struct {
	ID         string
	Chromosome model.Chromosome
	Results    map[string]any
	SingleFile bool
}

type Generation struct {
	Index       int
	Individuals []Individual
}

type Layout struct {
	RunID           string
	Hyperparameters map[string]any
	Objectives      map[string]map[string]any
	SearchSpace     model.SearchSpace
	Crossover       []model.CrossoverRecord
	Generations     []Generation
}

// WriteRun writes layout under baseDir/<RunID> and returns the run directory.
func WriteRun(baseDir string, layout Layout) (string, error) {
	if layout.RunID == "" {
		return "", fmt.Errorf("run id is required")
	}

	runDir := filepath.Join(baseDir, layout.RunID)
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return "", err
	}

	params := make(map[string]any, len(layout.Hyperparameters))
	for name, value := range layout.Hyperparameters {
		params[name] = map[string]any{"value": value}
	}
	objectives := layout.Objectives
	if objectives == nil {
		objectives = map[string]map[string]any{}
	}
	if err := writeJSON(filepath.Join(runDir, schema.ConfigFile), map[string]any{
		"hyperparameters": params,
		"results":         objectives,
	}); err != nil {
		return "", err
	}

	space, err := codec.EncodeSearchSpace(layout.SearchSpace)
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(filepath.Join(runDir, schema.SearchSpaceFile), space, 0o644); err != nil {
		return "", err
	}

	var log bytes.Buffer
	if err := codec.WriteCrossoverLog(&log, layout.Crossover); err != nil {
		return "", err
	}
	if err := os.WriteFile(filepath.Join(runDir, schema.CrossoverLogFile), log.Bytes(), 0o644); err != nil {
		return "", err
	}

	for _, generation := range layout.Generations {
		if err := WriteGeneration(runDir, generation); err != nil {
			return "", err
		}
	}
	return runDir, nil
}

// WriteGeneration adds one generation directory to an existing run.
func WriteGeneration(runDir string, generation Generation) error {
	genDir := filepath.Join(runDir, fmt.Sprintf("Generation_%d", generation.Index))
	if err := os.MkdirAll(genDir, 0o755); err != nil {
		return err
	}
	for _, ind := range generation.Individuals {
		if err := writeIndividual(genDir, ind); err != nil {
			return err
		}
	}
	return nil
}

// AppendCrossover appends records to the run's crossover log.
func AppendCrossover(runDir string, records []model.CrossoverRecord) error {
	file, err := os.OpenFile(filepath.Join(runDir, schema.CrossoverLogFile), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	if err := codec.WriteCrossoverLog(file, records); err != nil {
		_ = file.Close()
		return err
	}
	return file.Close()
}

func writeIndividual(genDir string, ind Individual) error {
	chromosome := make([]map[string]any, 0, len(ind.Chromosome))
	for _, gene := range ind.Chromosome {
		fields := map[string]any{"layer": gene.Layer}
		if gene.Group != "" {
			fields["group"] = gene.Group
		}
		for k, v := range gene.Params {
			fields[k] = v
		}
		chromosome = append(chromosome, fields)
	}
	results := ind.Results
	if results == nil {
		results = map[string]any{}
	}

	if ind.SingleFile {
		return writeJSON(filepath.Join(genDir, "individual_"+ind.ID+".json"), map[string]any{
			"chromosome": chromosome,
			"results":    results,
		})
	}

	indDir := filepath.Join(genDir, ind.ID)
	if err := os.MkdirAll(indDir, 0o755); err != nil {
		return err
	}
	if err := writeJSON(filepath.Join(indDir, schema.ChromosomeFile), chromosome); err != nil {
		return err
	}
	return writeJSON(filepath.Join(indDir, schema.ResultsFile), results)
}

func writeJSON(path string, value any) error {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	return os.WriteFile(path, data, 0o644)
}
