package run

import (
	"fmt"
	"math"
)

// GenerationStats summarizes one objective over the healthy individuals of a
// generation.
type GenerationStats struct {
	Generation int     `json:"generation"`
	Count      int     `json:"count"`
	Mean       float64 `json:"mean"`
	Std        float64 `json:"std"`
	Min        float64 `json:"min"`
	Max        float64 `json:"max"`
}

// Best returns the healthy individual of a generation with the best value of
// objective under its goal. Ties go to the smallest id. An empty or fully
// unhealthy generation has no best.
func (r *Run) Best(index int, objective string) (string, bool, error) {
	obj, ok := r.config.Objectives[objective]
	if !ok {
		return "", false, fmt.Errorf("unknown objective: %s", objective)
	}
	ids, ok := r.generations[index]
	if !ok {
		return "", false, fmt.Errorf("unknown generation: %d", index)
	}

	best := ""
	bestValue := 0.0
	for _, id := range ids {
		individual := r.individuals[id]
		if !individual.Healthy {
			continue
		}
		value, ok := individual.Fitness[objective]
		if !ok {
			continue
		}
		// ids are sorted, so only a strictly better value replaces the
		// current best.
		if best == "" || obj.Better(value, bestValue) {
			best = id
			bestValue = value
		}
	}
	return best, best != "", nil
}

// BestPerGeneration maps each generation that has a best individual to its
// id.
func (r *Run) BestPerGeneration(objective string) (map[int]string, error) {
	if _, ok := r.config.Objectives[objective]; !ok {
		return nil, fmt.Errorf("unknown objective: %s", objective)
	}
	out := make(map[int]string, len(r.indices))
	for _, index := range r.indices {
		id, ok, err := r.Best(index, objective)
		if err != nil {
			return nil, err
		}
		if ok {
			out[index] = id
		}
	}
	return out, nil
}

// ObjectiveStats returns one entry per generation in ascending order.
// Generations without healthy values report a zero count.
func (r *Run) ObjectiveStats(objective string) ([]GenerationStats, error) {
	if _, ok := r.config.Objectives[objective]; !ok {
		return nil, fmt.Errorf("unknown objective: %s", objective)
	}
	out := make([]GenerationStats, 0, len(r.indices))
	for _, index := range r.indices {
		var values []float64
		for _, id := range r.generations[index] {
			individual := r.individuals[id]
			if !individual.Healthy {
				continue
			}
			if value, ok := individual.Fitness[objective]; ok {
				values = append(values, value)
			}
		}
		stats := GenerationStats{Generation: index, Count: len(values)}
		if len(values) > 0 {
			stats.Mean, stats.Std = avgStd(values)
			stats.Min, stats.Max = minMax(values)
		}
		out = append(out, stats)
	}
	return out, nil
}

// avgStd returns the mean and population standard deviation.
func avgStd(values []float64) (float64, float64) {
	if len(values) == 0 {
		return 0, 0
	}
	sum := 0.0
	for _, value := range values {
		sum += value
	}
	mean := sum / float64(len(values))
	sq := 0.0
	for _, value := range values {
		diff := mean - value
		sq += diff * diff
	}
	return mean, math.Sqrt(sq / float64(len(values)))
}

func minMax(values []float64) (float64, float64) {
	min, max := values[0], values[0]
	for _, value := range values[1:] {
		if value < min {
			min = value
		}
		if value > max {
			max = value
		}
	}
	return min, max
}
