package runwriter

import "evovis/internal/model"

// SampleSearchSpace is a small audio-classification search space: a fixed
// feature-extraction stem, a repeatable processing block and a classifier
// head.
func SampleSearchSpace() model.SearchSpace {
	return model.SearchSpace{
		GenePool: map[string][]model.GeneSpec{
			"Feature Extraction 2D": {
				{Layer: "STFT_2D", FName: "stft_2d"},
				{Layer: "MAG_2D", FName: "mag_2d"},
			},
			"Processing 2D": {
				{Layer: "C_2D", FName: "c_2d"},
				{Layer: "DC_2D", FName: "dc_2d"},
			},
			"Classification": {
				{Layer: "GAP", FName: "gap"},
				{Layer: "DENSE", FName: "dense"},
			},
		},
		Rules: map[string]model.Rule{
			"Start":   {Targets: []string{"STFT_2D"}},
			"STFT_2D": {Targets: []string{"MAG_2D"}},
			"MAG_2D":  {Targets: []string{"Processing 2D"}},
			"C_2D":    {Targets: []string{"GAP"}},
			"DC_2D":   {Targets: []string{"GAP"}},
			"GAP":     {Targets: []string{"DENSE"}},
		},
		GroupRules: []model.GroupRule{
			{Group: "Processing 2D", Targets: []string{"Processing 2D"}},
		},
	}
}

func chromosome(layers ...string) model.Chromosome {
	out := make(model.Chromosome, len(layers))
	for i, layer := range layers {
		out[i] = model.Gene{Layer: layer}
	}
	return out
}

// Sample returns a three-generation run with crossover and mutation lineage,
// an unhealthy individual and per-fold latency results.
func Sample(runID string) Layout {
	short := chromosome("STFT_2D", "MAG_2D", "C_2D", "GAP", "DENSE")
	deep := chromosome("STFT_2D", "MAG_2D", "DC_2D", "C_2D", "GAP", "DENSE")
	repeated := chromosome("STFT_2D", "MAG_2D", "C_2D", "C_2D", "GAP", "DENSE")

	return Layout{
		RunID: runID,
		Hyperparameters: map[string]any{
			"population_size": 3,
			"generations":     3,
			"mutation_rate":   0.2,
			"crossover_rate":  0.8,
			"objectives":      []string{"accuracy", "latency"},
		},
		Objectives: map[string]map[string]any{
			"accuracy": {"displayname": "Accuracy", "unit": "%", "min-boundary": 0, "max-boundary": 1},
			"latency":  {"displayname": "Latency", "unit": "ms", "goal": "min"},
		},
		SearchSpace: SampleSearchSpace(),
		Crossover: []model.CrossoverRecord{
			{Generation: 1, Parents: []model.ParentRef{{ID: "ind_2", Annotation: "2"}, {ID: "ind_3", Annotation: "3"}}, Child: "ind_4"},
			{Generation: 1, Parents: []model.ParentRef{{ID: "ind_1"}}, Child: "ind_5", Operation: model.OpMutation},
			{Generation: 1, Parents: []model.ParentRef{{ID: "ind_3"}}, Child: "ind_6", Operation: model.OpMutation},
			{Generation: 2, Parents: []model.ParentRef{{ID: "ind_4", Annotation: "1"}, {ID: "ind_5", Annotation: "2"}}, Child: "ind_7"},
			{Generation: 2, Parents: []model.ParentRef{{ID: "ind_4"}}, Child: "ind_8", Operation: model.OpMutation},
		},
		Generations: []Generation{
			{Index: 1, Individuals: []Individual{
				{ID: "ind_1", Chromosome: short, Results: map[string]any{"accuracy": 0.61, "latency": 12.0, "power": 3.2}},
				{ID: "ind_2", Chromosome: deep, Results: map[string]any{"accuracy": 0.70, "latency": 15.0, "memory": 128.0}},
				{ID: "ind_3", Chromosome: short, Results: map[string]any{"accuracy": 0.70, "latency": 9.0}},
			}},
			{Index: 2, Individuals: []Individual{
				{ID: "ind_4", Chromosome: deep, Results: map[string]any{"accuracy": 0.75, "latency": 11.0}},
				{ID: "ind_5", Chromosome: repeated, Results: map[string]any{"accuracy": 0.64, "latency": 10.0}},
				{ID: "ind_6", Chromosome: short, Results: map[string]any{"error": "Model failed to converge"}},
			}},
			{Index: 3, Individuals: []Individual{
				{ID: "ind_7", Chromosome: deep, Results: map[string]any{"accuracy": 0.81, "latency": 13.0}},
				{ID: "ind_8", Chromosome: repeated, Results: map[string]any{"accuracy": 0.79, "latency": map[string]any{"fold1": 8.0, "fold2": 10.0}}, SingleFile: true},
			}},
		},
	}
}
