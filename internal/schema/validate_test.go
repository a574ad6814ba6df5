package schema_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"evovis/internal/runerr"
	"evovis/internal/runwriter"
	"evovis/internal/schema"
)

func writeSample(t *testing.T) string {
	t.Helper()
	dir, err := runwriter.WriteRun(t.TempDir(), runwriter.Sample("run-1"))
	if err != nil {
		t.Fatalf("write sample run: %v", err)
	}
	return dir
}

func TestValidateSampleRun(t *testing.T) {
	dir := writeSample(t)

	manifest, err := schema.Validate(context.Background(), dir)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if manifest.CrossoverLogPath != filepath.Join(dir, schema.CrossoverLogFile) {
		t.Fatalf("unexpected crossover log path: %s", manifest.CrossoverLogPath)
	}
	if len(manifest.Generations) != 3 {
		t.Fatalf("expected 3 generations, got %d", len(manifest.Generations))
	}
	for i, generation := range manifest.Generations {
		if generation.Index != i+1 {
			t.Fatalf("generation %d has index %d", i, generation.Index)
		}
	}
	if manifest.IndividualCount() != 8 {
		t.Fatalf("expected 8 individuals, got %d", manifest.IndividualCount())
	}

	last := manifest.Generations[2].Individuals
	if last[0].ID != "ind_7" || last[0].Form != schema.FormDir || last[1].ID != "ind_8" || last[1].Form != schema.FormFile {
		t.Fatalf("unexpected individuals in last generation: %+v", last)
	}
	if last[1].ResultsPath() != last[1].Path || last[0].ChromosomePath() != filepath.Join(last[0].Path, schema.ChromosomeFile) {
		t.Fatalf("unexpected artifact paths: %+v", last)
	}
}

func TestValidateMissingCrossoverLog(t *testing.T) {
	dir := writeSample(t)
	if err := os.Remove(filepath.Join(dir, schema.CrossoverLogFile)); err != nil {
		t.Fatal(err)
	}

	_, err := schema.Validate(context.Background(), dir)
	if !errors.Is(err, runerr.ErrMissingArtifact) {
		t.Fatalf("expected missing artifact, got %v", err)
	}
	if got := runerr.PathOf(err); got != filepath.Join(dir, schema.CrossoverLogFile) {
		t.Fatalf("expected crossover log path, got %q", got)
	}
	for _, name := range []string{schema.CrossoverLogFile, schema.CrossoverLogAlias} {
		if !strings.Contains(err.Error(), name) {
			t.Fatalf("error should name %s: %v", name, err)
		}
	}
}

func TestValidateAcceptsCrossoverLogAlias(t *testing.T) {
	dir := writeSample(t)
	if err := os.Rename(filepath.Join(dir, schema.CrossoverLogFile), filepath.Join(dir, schema.CrossoverLogAlias)); err != nil {
		t.Fatal(err)
	}

	manifest, err := schema.Validate(context.Background(), dir)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if filepath.Base(manifest.CrossoverLogPath) != schema.CrossoverLogAlias {
		t.Fatalf("expected alias log path, got %s", manifest.CrossoverLogPath)
	}
}

func TestValidateMissingArtifacts(t *testing.T) {
	cases := map[string]func(dir string) (string, error){
		"config": func(dir string) (string, error) {
			path := filepath.Join(dir, schema.ConfigFile)
			return path, os.Remove(path)
		},
		"search space": func(dir string) (string, error) {
			path := filepath.Join(dir, schema.SearchSpaceFile)
			return path, os.Remove(path)
		},
		"results": func(dir string) (string, error) {
			path := filepath.Join(dir, "Generation_2", "ind_4", schema.ResultsFile)
			return path, os.Remove(path)
		},
		"chromosome": func(dir string) (string, error) {
			path := filepath.Join(dir, "Generation_1", "ind_1", schema.ChromosomeFile)
			return path, os.Remove(path)
		},
		"run directory": func(dir string) (string, error) {
			return dir, os.RemoveAll(dir)
		},
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			dir := writeSample(t)
			path, err := mutate(dir)
			if err != nil {
				t.Fatal(err)
			}
			_, err = schema.Validate(context.Background(), dir)
			if !errors.Is(err, runerr.ErrMissingArtifact) {
				t.Fatalf("expected missing artifact, got %v", err)
			}
			if runerr.PathOf(err) != path {
				t.Fatalf("expected %s on error, got %q", path, runerr.PathOf(err))
			}
		})
	}
}

func TestValidateNoGenerations(t *testing.T) {
	layout := runwriter.Sample("run-empty")
	layout.Generations = nil
	dir, err := runwriter.WriteRun(t.TempDir(), layout)
	if err != nil {
		t.Fatal(err)
	}

	_, err = schema.Validate(context.Background(), dir)
	if !errors.Is(err, runerr.ErrMissingArtifact) {
		t.Fatalf("expected missing artifact, got %v", err)
	}
}

func TestValidateRejectsGenerationGap(t *testing.T) {
	dir := writeSample(t)
	if err := os.Rename(filepath.Join(dir, "Generation_2"), filepath.Join(dir, "Generation_5")); err != nil {
		t.Fatal(err)
	}

	_, err := schema.Validate(context.Background(), dir)
	if !errors.Is(err, runerr.ErrMalformedArtifact) {
		t.Fatalf("expected malformed artifact for gap, got %v", err)
	}
}

func TestValidateRejectsMalformedTopLevelArtifacts(t *testing.T) {
	cases := map[string]string{
		schema.ConfigFile:       `{"hyperparameters": {"population_size": 10}, "results": {}}`,
		schema.SearchSpaceFile:  `{"gene_pool": {}, "rule_set": {"NotStart": {"rule": []}}}`,
		schema.CrossoverLogFile: "Generation,Parent_1,New_Individual\n",
	}
	for file, content := range cases {
		t.Run(file, func(t *testing.T) {
			dir := writeSample(t)
			path := filepath.Join(dir, file)
			if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
				t.Fatal(err)
			}
			_, err := schema.Validate(context.Background(), dir)
			if !errors.Is(err, runerr.ErrMalformedArtifact) {
				t.Fatalf("expected malformed artifact, got %v", err)
			}
			if runerr.PathOf(err) != path {
				t.Fatalf("expected %s on error, got %q", path, runerr.PathOf(err))
			}
		})
	}
}

func TestValidateDuplicateIndividualWithinGeneration(t *testing.T) {
	dir := writeSample(t)
	dup := filepath.Join(dir, "Generation_1", "individual_ind_1.json")
	if err := os.WriteFile(dup, []byte(`{"chromosome": [], "results": {}}`), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := schema.Validate(context.Background(), dir)
	if !errors.Is(err, runerr.ErrDuplicateIndividualID) {
		t.Fatalf("expected duplicate individual id, got %v", err)
	}
}

func TestValidateEmptyGenerationAccepted(t *testing.T) {
	dir := writeSample(t)
	if err := os.MkdirAll(filepath.Join(dir, "Generation_4"), 0o755); err != nil {
		t.Fatal(err)
	}

	manifest, err := schema.Validate(context.Background(), dir)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if got := len(manifest.Generations[3].Individuals); got != 0 {
		t.Fatalf("expected empty generation, got %d individuals", got)
	}
}

func TestValidateHonoursCancellation(t *testing.T) {
	dir := writeSample(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := schema.Validate(ctx, dir); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context cancellation, got %v", err)
	}
}
