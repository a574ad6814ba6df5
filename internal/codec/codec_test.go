package codec

import (
	"bytes"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"evovis/internal/model"
	"evovis/internal/runerr"
)

func TestDecodeConfigAppliesObjectiveDefaults(t *testing.T) {
	data := []byte(`{
		"hyperparameters": {
			"population_size": {"value": 10, "description": "individuals per generation"},
			"mutation_rate": {"value": 0.1}
		},
		"results": {
			"accuracy": {"displayname": "Accuracy", "unit": "%", "min-boundary": 0, "max-boundary": 100},
			"loss": {"displayname": "Loss", "unit": null, "goal": "min", "run-result-plot": false},
			"fitness": {}
		}
	}`)

	cfg, err := DecodeConfig("config.json", data)
	if err != nil {
		t.Fatalf("decode config: %v", err)
	}
	if got := cfg.Parameters["population_size"].Value; got != float64(10) {
		t.Fatalf("unexpected population_size: %v", got)
	}
	if cfg.Parameters["population_size"].Description == "" {
		t.Fatal("expected description to be kept")
	}
	if diff := cmp.Diff([]string{"accuracy", "fitness", "loss"}, cfg.ObjectiveNames()); diff != "" {
		t.Fatalf("objective names (-want +got):\n%s", diff)
	}

	accuracy := cfg.Objectives["accuracy"]
	if accuracy.Unit == nil || *accuracy.Unit != "%" || !accuracy.RunResultPlot || accuracy.Goal != model.GoalMax {
		t.Fatalf("unexpected accuracy info: %+v", accuracy)
	}
	if accuracy.MinBoundary == nil || *accuracy.MaxBoundary != 100 {
		t.Fatalf("expected boundaries on accuracy: %+v", accuracy)
	}
	loss := cfg.Objectives["loss"]
	if loss.Unit != nil || loss.RunResultPlot || loss.Goal != model.GoalMin {
		t.Fatalf("unexpected loss info: %+v", loss)
	}
	if fitness := cfg.Objectives["fitness"]; fitness.DisplayName != "fitness" || !fitness.RunResultPlot {
		t.Fatalf("expected defaults on fitness: %+v", fitness)
	}
}

func TestDecodeConfigRejectsInvalidStructure(t *testing.T) {
	cases := map[string]string{
		"not json":            `{invalid json}`,
		"scalar parameter":    `{"hyperparameters": {"population_size": 10}, "results": {}}`,
		"missing value key":   `{"hyperparameters": {"mutation_rate": {"no_value_key": 0.1}}, "results": {}}`,
		"missing results key": `{"hyperparameters": {}}`,
		"unknown goal":        `{"hyperparameters": {}, "results": {"acc": {"goal": "sideways"}}}`,
	}
	for name, data := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := DecodeConfig("run/config.json", []byte(data))
			if !errors.Is(err, runerr.ErrMalformedArtifact) {
				t.Fatalf("expected malformed artifact, got %v", err)
			}
			if runerr.PathOf(err) != "run/config.json" {
				t.Fatalf("expected path on error, got %q", runerr.PathOf(err))
			}
		})
	}
}

func TestDecodeSearchSpace(t *testing.T) {
	data := []byte(`{
		"gene_pool": {
			"Feature Extraction": [
				{"layer": "STFT_2D", "f_name": "stft_2d"},
				{"layer": "MAG_2D", "f_name": "mag_2d", "exclude": true}
			]
		},
		"rule_set": {"Start": {"rule": ["Feature Extraction"]}},
		"rule_set_group": [{"group": "Feature Extraction", "rule": ["Feature Extraction"]}]
	}`)

	space, err := DecodeSearchSpace("search_space.json", data)
	if err != nil {
		t.Fatalf("decode search space: %v", err)
	}
	genes := space.GenePool["Feature Extraction"]
	if len(genes) != 2 || genes[0].Layer != "STFT_2D" || !genes[1].Exclude {
		t.Fatalf("unexpected genes: %+v", genes)
	}
	if diff := cmp.Diff([]string{"Feature Extraction"}, space.Rules[StartNode].Targets); diff != "" {
		t.Fatalf("start rule (-want +got):\n%s", diff)
	}
	if len(space.GroupRules) != 1 || space.GroupRules[0].Group != "Feature Extraction" {
		t.Fatalf("unexpected group rules: %+v", space.GroupRules)
	}
}

func TestDecodeSearchSpaceRejectsInvalidStructure(t *testing.T) {
	cases := map[string]string{
		"missing f_name":  `{"gene_pool": {"G": [{"layer": "A"}]}, "rule_set": {"Start": {"rule": ["A"]}}}`,
		"gene not a dict": `{"gene_pool": {"G": ["not_a_dict"]}, "rule_set": {"Start": {"rule": []}}}`,
		"missing start":   `{"gene_pool": {"G": [{"layer": "A", "f_name": "a"}]}, "rule_set": {"NotStart": {"rule": ["A"]}}}`,
		"duplicate layer": `{"gene_pool": {"G": [{"layer": "A", "f_name": "a"}], "H": [{"layer": "A", "f_name": "a"}]}, "rule_set": {"Start": {"rule": []}}}`,
		"no rule_set":     `{"gene_pool": {}}`,
	}
	for name, data := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := DecodeSearchSpace("search_space.json", []byte(data)); !errors.Is(err, runerr.ErrMalformedArtifact) {
				t.Fatalf("expected malformed artifact, got %v", err)
			}
		})
	}
}

func TestEncodeSearchSpaceIsStable(t *testing.T) {
	space := model.SearchSpace{
		GenePool: map[string][]model.GeneSpec{
			"G": {{Layer: "B", FName: "b"}, {Layer: "A", FName: "a"}},
		},
		Rules: map[string]model.Rule{
			StartNode: {Targets: []string{"B", "A"}},
		},
	}
	first, err := EncodeSearchSpace(space)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	decoded, err := DecodeSearchSpace("x", first)
	if err != nil {
		t.Fatalf("decode encoded: %v", err)
	}
	second, err := EncodeSearchSpace(decoded)
	if err != nil {
		t.Fatalf("re-encode: %v", err)
	}
	if !bytes.Equal(first, second) {
		t.Fatalf("encoding not stable:\n%s\n%s", first, second)
	}
}

func TestDecodeChromosomeKeepsParams(t *testing.T) {
	chromosome, err := DecodeChromosome("chromosome.json", []byte(`[
		{"layer": "STFT_2D", "group": "Feature Extraction 2D", "n_fft": 256},
		{"layer": "MAG_2D"}
	]`))
	if err != nil {
		t.Fatalf("decode chromosome: %v", err)
	}
	if diff := cmp.Diff([]string{"STFT_2D", "MAG_2D"}, chromosome.Layers()); diff != "" {
		t.Fatalf("layers (-want +got):\n%s", diff)
	}
	if chromosome[0].Group != "Feature Extraction 2D" || chromosome[0].Params["n_fft"] != float64(256) {
		t.Fatalf("unexpected first gene: %+v", chromosome[0])
	}
	if chromosome[1].Params != nil {
		t.Fatalf("expected no params on second gene: %+v", chromosome[1])
	}

	if _, err := DecodeChromosome("chromosome.json", []byte(`{"layer": "x"}`)); !errors.Is(err, runerr.ErrMalformedArtifact) {
		t.Fatalf("expected malformed chromosome, got %v", err)
	}
	if _, err := DecodeChromosome("chromosome.json", []byte(`[{"group": "x"}]`)); !errors.Is(err, runerr.ErrMalformedArtifact) {
		t.Fatalf("expected missing layer error, got %v", err)
	}
}

func TestDecodeIndividualFile(t *testing.T) {
	chromosome, results, err := DecodeIndividualFile("individual_a.json", []byte(`{
		"chromosome": [{"layer": "A"}],
		"results": {"accuracy": 0.9}
	}`))
	if err != nil {
		t.Fatalf("decode individual: %v", err)
	}
	if len(chromosome) != 1 || results["accuracy"] != 0.9 {
		t.Fatalf("unexpected individual: %+v %+v", chromosome, results)
	}
	if _, _, err := DecodeIndividualFile("individual_a.json", []byte(`{"results": {}}`)); !errors.Is(err, runerr.ErrMalformedArtifact) {
		t.Fatalf("expected missing chromosome error, got %v", err)
	}
}

func TestReadFileMissing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "absent.json")
	_, err := ReadFile(path)
	if !errors.Is(err, runerr.ErrMissingArtifact) {
		t.Fatalf("expected missing artifact, got %v", err)
	}
	if !strings.Contains(err.Error(), path) {
		t.Fatalf("expected path in error message: %v", err)
	}
}

func TestReadCrossoverLog(t *testing.T) {
	in := strings.NewReader(strings.Join([]string{
		"Generation: 1,Parent_1: (ind1, 2),Parent_2: (ind2, 3),New_Individual: new_ind",
		"",
		"Generation: 2,Parent_1: new_ind,New_Individual: mutant",
		`Generation: 2,"Parent_1: (ind1, 2)","Parent_2: (ind1, 2)",New_Individual: clone,Operation: crossover`,
	}, "\n"))

	records, err := ReadCrossoverLog("crossover_parents.csv", in)
	if err != nil {
		t.Fatalf("read crossover log: %v", err)
	}
	want := []model.CrossoverRecord{
		{
			Row:        1,
			Generation: 1,
			Parents:    []model.ParentRef{{ID: "ind1", Annotation: "2"}, {ID: "ind2", Annotation: "3"}},
			Child:      "new_ind",
			Operation:  model.OpCrossover,
		},
		{
			Row:        2,
			Generation: 2,
			Parents:    []model.ParentRef{{ID: "new_ind"}},
			Child:      "mutant",
			Operation:  model.OpMutation,
		},
		{
			Row:        3,
			Generation: 2,
			Parents:    []model.ParentRef{{ID: "ind1", Annotation: "2"}},
			Child:      "clone",
			Operation:  model.OpCrossover,
		},
	}
	if diff := cmp.Diff(want, records); diff != "" {
		t.Fatalf("records (-want +got):\n%s", diff)
	}
}

func TestReadCrossoverLogRejectsMalformedRows(t *testing.T) {
	cases := map[string]string{
		"no child":        "Generation: 1,Parent_1: a\n",
		"no parents":      "Generation: 1,New_Individual: b\n",
		"bad generation":  "Generation: one,Parent_1: a,New_Individual: b\n",
		"header row":      "Generation,Parent_1,Parent_2,New_Individual\n",
		"unknown column":  "Generation: 1,Parent_1: a,New_Individual: b,Colour: red\n",
		"bad operation":   "Generation: 1,Parent_1: a,New_Individual: b,Operation: fusion\n",
		"open tuple":      "Generation: 1,Parent_1: (a,New_Individual: b\n",
		"empty parent id": "Generation: 1,Parent_1: ( , 2),New_Individual: b\n",
	}
	for name, data := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := ReadCrossoverLog("log.csv", strings.NewReader(data)); !errors.Is(err, runerr.ErrMalformedArtifact) {
				t.Fatalf("expected malformed artifact, got %v", err)
			}
		})
	}
}

func TestReadCrossoverLogEmpty(t *testing.T) {
	records, err := ReadCrossoverLog("log.csv", strings.NewReader(""))
	if err != nil {
		t.Fatalf("read empty log: %v", err)
	}
	if len(records) != 0 {
		t.Fatalf("expected no records, got %+v", records)
	}
}

func TestWriteCrossoverLogIsReadable(t *testing.T) {
	records := []model.CrossoverRecord{{
		Row:        1,
		Generation: 3,
		Parents:    []model.ParentRef{{ID: "p1", Annotation: "0.5"}, {ID: "p2"}},
		Child:      "c1",
		Operation:  model.OpCrossover,
	}}
	var buf bytes.Buffer
	if err := WriteCrossoverLog(&buf, records); err != nil {
		t.Fatalf("write log: %v", err)
	}
	got, err := ReadCrossoverLog("log.csv", &buf)
	if err != nil {
		t.Fatalf("read written log: %v", err)
	}
	if diff := cmp.Diff(records, got); diff != "" {
		t.Fatalf("records (-want +got):\n%s", diff)
	}
}
