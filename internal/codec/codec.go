// Package codec decodes run artifacts into model records. Decoding errors are
// reported as MalformedArtifact naming the artifact path.
package codec

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"sort"
	"strings"

	"evovis/internal/model"
	"evovis/internal/runerr"
)

const StartNode = "Start"

// ReadFile reads an artifact, mapping a missing file to MissingArtifact.
func ReadFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, runerr.Missing(path)
		}
		return nil, runerr.Malformed(path, err, "read: %v", err)
	}
	return data, nil
}

func DecodeConfig(path string, data []byte) (model.HyperparameterConfig, error) {
	top, err := decodeObject(path, data, "config")
	if err != nil {
		return model.HyperparameterConfig{}, err
	}

	rawParams, ok := top["hyperparameters"]
	if !ok {
		return model.HyperparameterConfig{}, runerr.Malformed(path, nil, "missing 'hyperparameters' key")
	}
	var params map[string]json.RawMessage
	if err := json.Unmarshal(rawParams, &params); err != nil || params == nil {
		return model.HyperparameterConfig{}, runerr.Malformed(path, err, "'hyperparameters' must be a dictionary")
	}

	cfg := model.HyperparameterConfig{
		Parameters: make(map[string]model.Hyperparameter, len(params)),
		Objectives: make(map[string]model.Objective),
	}
	for name, raw := range params {
		var entry map[string]json.RawMessage
		if err := json.Unmarshal(raw, &entry); err != nil || entry == nil {
			return model.HyperparameterConfig{}, runerr.Malformed(path, err, "hyperparameter %q must be a dictionary", name)
		}
		rawValue, ok := entry["value"]
		if !ok {
			return model.HyperparameterConfig{}, runerr.Malformed(path, nil, "hyperparameter %q: missing 'value' key", name)
		}
		var hp model.Hyperparameter
		if err := json.Unmarshal(rawValue, &hp.Value); err != nil {
			return model.HyperparameterConfig{}, runerr.Malformed(path, err, "hyperparameter %q: invalid value", name)
		}
		if rawDesc, ok := entry["description"]; ok {
			if err := json.Unmarshal(rawDesc, &hp.Description); err != nil {
				return model.HyperparameterConfig{}, runerr.Malformed(path, err, "hyperparameter %q: description must be a string", name)
			}
		}
		cfg.Parameters[name] = hp
	}

	rawResults, ok := top["results"]
	if !ok {
		return model.HyperparameterConfig{}, runerr.Malformed(path, nil, "missing 'results' key")
	}
	var results map[string]json.RawMessage
	if err := json.Unmarshal(rawResults, &results); err != nil || results == nil {
		return model.HyperparameterConfig{}, runerr.Malformed(path, err, "'results' must be a dictionary")
	}
	for name, raw := range results {
		objective, err := decodeObjective(path, name, raw)
		if err != nil {
			return model.HyperparameterConfig{}, err
		}
		cfg.Objectives[name] = objective
	}
	return cfg, nil
}

func decodeObjective(path, name string, raw json.RawMessage) (model.Objective, error) {
	var info struct {
		DisplayName   *string  `json:"displayname"`
		Unit          *string  `json:"unit"`
		MinBoundary   *float64 `json:"min-boundary"`
		MaxBoundary   *float64 `json:"max-boundary"`
		RunResultPlot *bool    `json:"run-result-plot"`
		Goal          string   `json:"goal"`
	}
	if err := json.Unmarshal(raw, &info); err != nil {
		return model.Objective{}, runerr.Malformed(path, err, "result %q: %v", name, err)
	}

	objective := model.Objective{
		Name:          name,
		DisplayName:   name,
		Unit:          info.Unit,
		MinBoundary:   info.MinBoundary,
		MaxBoundary:   info.MaxBoundary,
		RunResultPlot: true,
		Goal:          model.GoalMax,
	}
	if info.DisplayName != nil {
		objective.DisplayName = *info.DisplayName
	}
	if info.RunResultPlot != nil {
		objective.RunResultPlot = *info.RunResultPlot
	}
	switch strings.ToLower(strings.TrimSpace(info.Goal)) {
	case "", "max", "maximize":
	case "min", "minimize":
		objective.Goal = model.GoalMin
	default:
		return model.Objective{}, runerr.Malformed(path, nil, "result %q: unsupported goal %q", name, info.Goal)
	}
	return objective, nil
}

func DecodeSearchSpace(path string, data []byte) (model.SearchSpace, error) {
	top, err := decodeObject(path, data, "search space")
	if err != nil {
		return model.SearchSpace{}, err
	}

	rawPool, ok := top["gene_pool"]
	if !ok {
		return model.SearchSpace{}, runerr.Malformed(path, nil, "missing 'gene_pool' key")
	}
	var groups map[string][]json.RawMessage
	if err := json.Unmarshal(rawPool, &groups); err != nil || groups == nil {
		return model.SearchSpace{}, runerr.Malformed(path, err, "'gene_pool' must map groups to lists of genes")
	}

	space := model.SearchSpace{
		GenePool: make(map[string][]model.GeneSpec, len(groups)),
		Rules:    make(map[string]model.Rule),
	}
	seen := make(map[string]string)
	for _, group := range sortedKeys(groups) {
		genes := make([]model.GeneSpec, 0, len(groups[group]))
		for i, raw := range groups[group] {
			var gene struct {
				Layer   *string `json:"layer"`
				FName   *string `json:"f_name"`
				Exclude bool    `json:"exclude"`
			}
			if err := json.Unmarshal(raw, &gene); err != nil {
				return model.SearchSpace{}, runerr.Malformed(path, err, "gene %d of group %q must be a dictionary", i, group)
			}
			if gene.Layer == nil || strings.TrimSpace(*gene.Layer) == "" {
				return model.SearchSpace{}, runerr.Malformed(path, nil, "gene %d of group %q: missing 'layer' key", i, group)
			}
			if gene.FName == nil || strings.TrimSpace(*gene.FName) == "" {
				return model.SearchSpace{}, runerr.Malformed(path, nil, "gene %q of group %q: missing 'f_name' key", *gene.Layer, group)
			}
			if *gene.Layer == StartNode {
				return model.SearchSpace{}, runerr.Malformed(path, nil, "gene %q in group %q: %q is reserved", *gene.Layer, group, StartNode)
			}
			if other, dup := seen[*gene.Layer]; dup {
				return model.SearchSpace{}, runerr.Malformed(path, nil, "layer %q declared in groups %q and %q", *gene.Layer, other, group)
			}
			seen[*gene.Layer] = group
			genes = append(genes, model.GeneSpec{Layer: *gene.Layer, FName: *gene.FName, Exclude: gene.Exclude})
		}
		space.GenePool[group] = genes
	}

	rawRules, ok := top["rule_set"]
	if !ok {
		return model.SearchSpace{}, runerr.Malformed(path, nil, "missing 'rule_set' key")
	}
	var rules map[string]json.RawMessage
	if err := json.Unmarshal(rawRules, &rules); err != nil || rules == nil {
		return model.SearchSpace{}, runerr.Malformed(path, err, "'rule_set' must be a dictionary")
	}
	if _, ok := rules[StartNode]; !ok {
		return model.SearchSpace{}, runerr.Malformed(path, nil, "'rule_set' is missing the %q rule", StartNode)
	}
	for source, raw := range rules {
		var rule struct {
			Targets []string `json:"rule"`
			Exclude bool     `json:"exclude"`
		}
		if err := json.Unmarshal(raw, &rule); err != nil {
			return model.SearchSpace{}, runerr.Malformed(path, err, "rule %q must be a dictionary with a 'rule' list", source)
		}
		space.Rules[source] = model.Rule{Targets: rule.Targets, Exclude: rule.Exclude}
	}

	if rawGroupRules, ok := top["rule_set_group"]; ok {
		var groupRules []model.GroupRule
		if err := json.Unmarshal(rawGroupRules, &groupRules); err != nil {
			return model.SearchSpace{}, runerr.Malformed(path, err, "'rule_set_group' must be a list of group rules")
		}
		for i, rule := range groupRules {
			if rule.Group == "" {
				return model.SearchSpace{}, runerr.Malformed(path, nil, "group rule %d: missing 'group' key", i)
			}
		}
		space.GroupRules = groupRules
	}
	return space, nil
}

// EncodeSearchSpace renders a search space in the layout DecodeSearchSpace
// reads, with groups, rules and targets in stable order.
func EncodeSearchSpace(space model.SearchSpace) ([]byte, error) {
	out := model.SearchSpace{
		GenePool:   make(map[string][]model.GeneSpec, len(space.GenePool)),
		Rules:      make(map[string]model.Rule, len(space.Rules)),
		GroupRules: append([]model.GroupRule(nil), space.GroupRules...),
	}
	for group, genes := range space.GenePool {
		sorted := append([]model.GeneSpec(nil), genes...)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i].Layer < sorted[j].Layer })
		out.GenePool[group] = sorted
	}
	for source, rule := range space.Rules {
		targets := append([]string{}, rule.Targets...)
		sort.Strings(targets)
		out.Rules[source] = model.Rule{Targets: targets, Exclude: rule.Exclude}
	}
	sort.Slice(out.GroupRules, func(i, j int) bool { return out.GroupRules[i].Group < out.GroupRules[j].Group })

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

func DecodeResults(path string, data []byte) (map[string]any, error) {
	var results map[string]any
	if err := json.Unmarshal(data, &results); err != nil {
		return nil, runerr.Malformed(path, err, "invalid JSON format: %v", err)
	}
	if results == nil {
		return nil, runerr.Malformed(path, nil, "results must be a dictionary")
	}
	return results, nil
}

func DecodeChromosome(path string, data []byte) (model.Chromosome, error) {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, runerr.Malformed(path, err, "invalid JSON format: chromosome must be a list of genes")
	}
	return decodeGenes(path, raw)
}

// DecodeIndividualFile decodes the single-file individual form
// {"chromosome": [...], "results": {...}}.
func DecodeIndividualFile(path string, data []byte) (model.Chromosome, map[string]any, error) {
	top, err := decodeObject(path, data, "individual")
	if err != nil {
		return nil, nil, err
	}
	rawChromosome, ok := top["chromosome"]
	if !ok {
		return nil, nil, runerr.Malformed(path, nil, "missing 'chromosome' key")
	}
	rawResults, ok := top["results"]
	if !ok {
		return nil, nil, runerr.Malformed(path, nil, "missing 'results' key")
	}
	chromosome, err := DecodeChromosome(path, rawChromosome)
	if err != nil {
		return nil, nil, err
	}
	results, err := DecodeResults(path, rawResults)
	if err != nil {
		return nil, nil, err
	}
	return chromosome, results, nil
}

func decodeGenes(path string, raw []json.RawMessage) (model.Chromosome, error) {
	chromosome := make(model.Chromosome, 0, len(raw))
	for i, item := range raw {
		var fields map[string]any
		if err := json.Unmarshal(item, &fields); err != nil || fields == nil {
			return nil, runerr.Malformed(path, err, "gene %d must be a dictionary", i)
		}
		layer, ok := fields["layer"].(string)
		if !ok || layer == "" {
			return nil, runerr.Malformed(path, nil, "gene %d: missing 'layer' key", i)
		}
		gene := model.Gene{Layer: layer}
		if group, ok := fields["group"].(string); ok {
			gene.Group = group
		}
		delete(fields, "layer")
		delete(fields, "group")
		if len(fields) > 0 {
			gene.Params = fields
		}
		chromosome = append(chromosome, gene)
	}
	return chromosome, nil
}

func decodeObject(path string, data []byte, what string) (map[string]json.RawMessage, error) {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(data, &top); err != nil {
		return nil, runerr.Malformed(path, err, "invalid JSON format: %v", err)
	}
	if top == nil {
		return nil, runerr.Malformed(path, nil, "%s must be a dictionary", what)
	}
	return top, nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
