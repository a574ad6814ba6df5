package generation

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"evovis/internal/genepool"
	"evovis/internal/model"
	"evovis/internal/runerr"
	"evovis/internal/runwriter"
	"evovis/internal/schema"
	"evovis/internal/source"
)

func objectivesConfig(names ...string) model.HyperparameterConfig {
	cfg := model.HyperparameterConfig{
		Parameters: map[string]model.Hyperparameter{},
		Objectives: map[string]model.Objective{},
	}
	for _, name := range names {
		cfg.Objectives[name] = model.Objective{Name: name, DisplayName: name, RunResultPlot: true, Goal: model.GoalMax}
	}
	return cfg
}

func sampleSource(t *testing.T) (*source.Dir, model.HyperparameterConfig) {
	t.Helper()
	dir, err := runwriter.WriteRun(t.TempDir(), runwriter.Sample("run-1"))
	if err != nil {
		t.Fatalf("write sample: %v", err)
	}
	manifest, err := schema.Validate(context.Background(), dir)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	src := source.NewDir(manifest)
	cfg, err := src.Hyperparameters(context.Background())
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	return src, cfg
}

func TestLoadSampleRun(t *testing.T) {
	src, cfg := sampleSource(t)

	result, err := Loader{Config: cfg}.Load(context.Background(), src)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(result.Generations) != 3 {
		t.Fatalf("expected 3 generations, got %d", len(result.Generations))
	}
	if result.Generations[0].Path != filepath.Join(src.Location(), "Generation_1") {
		t.Fatalf("unexpected generation path %q", result.Generations[0].Path)
	}

	last := result.Generations[2].Individuals
	if last[1].ID != "ind_8" || last[1].Fitness["latency"] != 9 {
		t.Fatalf("expected per-fold latency averaged, got %+v", last[1])
	}

	first := result.Generations[0].Individuals[0]
	if diff := cmp.Diff(map[string]float64{"power": 3.2}, first.Metrics); diff != "" {
		t.Fatalf("metrics (-want +got):\n%s", diff)
	}

	unhealthy := result.Generations[1].Individuals[2]
	if unhealthy.ID != "ind_6" || unhealthy.Healthy || unhealthy.Error != "Model failed to converge" {
		t.Fatalf("expected ind_6 unhealthy, got %+v", unhealthy)
	}
	if len(unhealthy.Fitness) != 0 {
		t.Fatalf("unhealthy individual should carry no fitness, got %v", unhealthy.Fitness)
	}
}

func TestLoadMissingObjective(t *testing.T) {
	src := &source.Memory{
		Generations: map[int][]model.IndividualRecord{
			1: {{ID: "ind_1", Results: map[string]any{"accuracy": 0.5, "latency": 10.0}}},
			2: {{ID: "ind_7", Path: "Generation_2/ind_7/results.json", Results: map[string]any{"accuracy": 0.8}}},
		},
	}

	_, err := Loader{Config: objectivesConfig("accuracy", "latency")}.Load(context.Background(), src)
	if !errors.Is(err, runerr.ErrInvalidFitnessRecord) {
		t.Fatalf("expected invalid fitness record, got %v", err)
	}
	if !errors.Is(err, &runerr.Error{Kind: runerr.InvalidFitnessRecord, ID: "ind_7", Path: "Generation_2/ind_7/results.json"}) {
		t.Fatalf("expected ind_7 and its results path on error, got %v", err)
	}
}

func TestLoadNonNumericObjective(t *testing.T) {
	src := &source.Memory{
		Generations: map[int][]model.IndividualRecord{
			0: {{ID: "a", Results: map[string]any{"accuracy": "high"}}},
		},
	}
	_, err := Loader{Config: objectivesConfig("accuracy")}.Load(context.Background(), src)
	if !errors.Is(err, runerr.ErrInvalidFitnessRecord) {
		t.Fatalf("expected invalid fitness record, got %v", err)
	}
}

func TestLoadDuplicateAcrossGenerations(t *testing.T) {
	src, cfg := sampleSource(t)
	dup := filepath.Join(src.Location(), "Generation_3", "individual_ind_1.json")
	if err := os.WriteFile(dup, []byte(`{"chromosome": [], "results": {"accuracy": 1, "latency": 1}}`), 0o644); err != nil {
		t.Fatal(err)
	}
	manifest, err := schema.Validate(context.Background(), src.Location())
	if err != nil {
		t.Fatalf("validate: %v", err)
	}

	_, err = Loader{Config: cfg}.Load(context.Background(), source.NewDir(manifest))
	if !errors.Is(err, runerr.ErrDuplicateIndividualID) {
		t.Fatalf("expected duplicate individual id, got %v", err)
	}
	if runerr.PathOf(err) != dup {
		t.Fatalf("expected duplicate path %s, got %q", dup, runerr.PathOf(err))
	}
}

func TestLoadRejectsNonContiguousGenerations(t *testing.T) {
	src := &source.Memory{
		Generations: map[int][]model.IndividualRecord{
			1: {{ID: "a", Results: map[string]any{}}},
			3: {{ID: "b", Results: map[string]any{}}},
		},
	}
	if _, err := (Loader{}).Load(context.Background(), src); !errors.Is(err, runerr.ErrMalformedArtifact) {
		t.Fatalf("expected malformed artifact, got %v", err)
	}

	src.Generations = map[int][]model.IndividualRecord{2: {{ID: "a"}}}
	if _, err := (Loader{}).Load(context.Background(), src); !errors.Is(err, runerr.ErrMalformedArtifact) {
		t.Fatalf("expected malformed artifact for late start, got %v", err)
	}
}

func TestLoadChromosomeValidationModes(t *testing.T) {
	graph, err := genepool.Build(runwriter.SampleSearchSpace(), "search_space.json")
	if err != nil {
		t.Fatalf("build gene pool: %v", err)
	}
	src := &source.Memory{
		Generations: map[int][]model.IndividualRecord{
			0: {{
				ID:         "bad",
				Path:       "Generation_0/bad",
				Chromosome: model.Chromosome{{Layer: "GAP"}, {Layer: "STFT_2D"}},
				Results:    map[string]any{"accuracy": 0.5},
			}},
		},
	}
	cfg := objectivesConfig("accuracy")

	_, err = Loader{Config: cfg, Validator: graph, Strict: true}.Load(context.Background(), src)
	if !errors.Is(err, runerr.ErrInvalidChromosome) {
		t.Fatalf("expected invalid chromosome in strict mode, got %v", err)
	}

	core, logs := observer.New(zapcore.WarnLevel)
	result, err := Loader{Config: cfg, Validator: graph, Logger: zap.New(core)}.Load(context.Background(), src)
	if err != nil {
		t.Fatalf("advisory load: %v", err)
	}
	if len(result.Warnings) != 1 {
		t.Fatalf("expected one warning, got %v", result.Warnings)
	}
	if logs.FilterMessage("invalid chromosome").Len() != 1 {
		t.Fatalf("expected a logged warning, got %v", logs.All())
	}
}

func TestLoadHonoursCancellation(t *testing.T) {
	src, cfg := sampleSource(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := (Loader{Config: cfg}).Load(ctx, src); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation, got %v", err)
	}
}

func TestConvertHealthMarkers(t *testing.T) {
	cases := []struct {
		name    string
		value   any
		healthy bool
		message string
	}{
		{name: "absent", value: nil, healthy: true},
		{name: "empty string", value: "", healthy: true},
		{name: "false", value: false, healthy: true},
		{name: "message", value: "OOM", healthy: false, message: "OOM"},
		{name: "true", value: true, healthy: false, message: "training failed"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			results := map[string]any{"accuracy": 0.4}
			if tc.value != nil {
				results[ErrorKey] = tc.value
			}
			individual, err := Convert(model.IndividualRecord{ID: "x", Results: results}, []string{"accuracy"})
			if err != nil {
				t.Fatalf("convert: %v", err)
			}
			if individual.Healthy != tc.healthy || individual.Error != tc.message {
				t.Fatalf("got healthy=%v error=%q", individual.Healthy, individual.Error)
			}
		})
	}
}

func TestConvertAveragesNestedResults(t *testing.T) {
	record := model.IndividualRecord{ID: "x", Results: map[string]any{
		"accuracy": map[string]any{"fold1": 0.5, "fold2": map[string]any{"a": 0.7, "b": 0.9}},
		"memory":   []any{100.0, 200.0, "n/a"},
		"note":     "not a number",
	}}
	individual, err := Convert(record, []string{"accuracy"})
	if err != nil {
		t.Fatalf("convert: %v", err)
	}
	if got := individual.Fitness["accuracy"]; got < 0.6999 || got > 0.7001 {
		t.Fatalf("expected accuracy 0.7, got %v", got)
	}
	if diff := cmp.Diff(map[string]float64{"memory": 150}, individual.Metrics); diff != "" {
		t.Fatalf("metrics (-want +got):\n%s", diff)
	}
}

func TestConvertNestedResultsAreStable(t *testing.T) {
	record := model.IndividualRecord{ID: "x", Results: map[string]any{
		"accuracy": map[string]any{"f1": 1e16, "f2": 1.0, "f3": -1e16, "f4": 0.1, "f5": 0.2, "f6": 0.3},
	}}
	first, err := Convert(record, []string{"accuracy"})
	if err != nil {
		t.Fatalf("convert: %v", err)
	}
	for i := 0; i < 500; i++ {
		again, err := Convert(record, []string{"accuracy"})
		if err != nil {
			t.Fatalf("convert %d: %v", i, err)
		}
		if again.Fitness["accuracy"] != first.Fitness["accuracy"] {
			t.Fatalf("conversion %d gave %v, first gave %v", i, again.Fitness["accuracy"], first.Fitness["accuracy"])
		}
	}
}
