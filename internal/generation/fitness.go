package generation

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"

	"evovis/internal/model"
	"evovis/internal/runerr"
)

// ErrorKey marks an individual whose training failed.
const ErrorKey = "error"

// Convert turns an adapter record into an Individual. A healthy individual
// must carry every declared objective as a number; nested objects such as
// per-fold results collapse to the mean of their numeric leaves. Numeric
// results that are not objectives become metrics.
func Convert(record model.IndividualRecord, objectives []string) (model.Individual, error) {
	individual := model.Individual{
		ID:         record.ID,
		Generation: record.Generation,
		Path:       record.Path,
		Chromosome: append(model.Chromosome(nil), record.Chromosome...),
		Fitness:    make(map[string]float64, len(objectives)),
		Healthy:    true,
	}
	if message, failed := healthError(record.Results[ErrorKey]); failed {
		individual.Healthy = false
		individual.Error = message
	}

	declared := make(map[string]bool, len(objectives))
	for _, name := range objectives {
		declared[name] = true
		raw, present := record.Results[name]
		value, numeric := numericValue(raw)
		if present && numeric {
			individual.Fitness[name] = value
			continue
		}
		if !individual.Healthy {
			continue
		}
		if !present {
			return model.Individual{}, runerr.New(runerr.InvalidFitnessRecord, record.Path, record.ID, "missing objective %q", name)
		}
		return model.Individual{}, runerr.New(runerr.InvalidFitnessRecord, record.Path, record.ID, "objective %q is not numeric: %v", name, raw)
	}

	keys := make([]string, 0, len(record.Results))
	for key := range record.Results {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		if declared[key] || key == ErrorKey {
			continue
		}
		if value, ok := numericValue(record.Results[key]); ok {
			if individual.Metrics == nil {
				individual.Metrics = make(map[string]float64)
			}
			individual.Metrics[key] = value
		}
	}
	return individual, nil
}

func healthError(raw any) (string, bool) {
	switch v := raw.(type) {
	case nil:
		return "", false
	case bool:
		if v {
			return "training failed", true
		}
		return "", false
	case string:
		return v, v != ""
	default:
		return fmt.Sprint(v), true
	}
}

// numericValue reports the value of a scalar number, or the mean of the
// numeric leaves of a nested object or list.
func numericValue(raw any) (float64, bool) {
	sum, count := numericLeaves(raw)
	if count == 0 {
		return 0, false
	}
	mean := sum / float64(count)
	if math.IsNaN(mean) || math.IsInf(mean, 0) {
		return 0, false
	}
	return mean, true
}

func numericLeaves(raw any) (float64, int) {
	switch v := raw.(type) {
	case float64:
		return v, 1
	case float32:
		return float64(v), 1
	case int:
		return float64(v), 1
	case int64:
		return float64(v), 1
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return 0, 0
		}
		return f, 1
	case map[string]any:
		var sum float64
		var count int
		// Fixed key order keeps the floating point sum identical across loads.
		keys := make([]string, 0, len(v))
		for key := range v {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		for _, key := range keys {
			s, c := numericLeaves(v[key])
			sum += s
			count += c
		}
		return sum, count
	case []any:
		var sum float64
		var count int
		for _, nested := range v {
			s, c := numericLeaves(nested)
			sum += s
			count += c
		}
		return sum, count
	default:
		return 0, 0
	}
}
