// Package lineage links the individuals of a run through the parent/child
// edges recorded in its crossover log.
package lineage

import (
	"sort"
	"strings"

	"evovis/internal/model"
	"evovis/internal/runerr"
)

// Lineage is the resolved edge set with adjacency in both directions.
type Lineage struct {
	edges    []model.LineageEdge
	parents  map[string][]string
	children map[string][]string
}

type edgeKey struct {
	child  string
	parent string
}

// Resolve validates every crossover record against the loaded generations.
// Parents come from an earlier or the same generation and never equal the
// child; same-generation edges must not form a cycle; every individual
// outside the first generation needs at least one parent.
func Resolve(records []model.CrossoverRecord, generations []model.Generation, logPath string) (*Lineage, error) {
	individuals := make(map[string]model.Individual)
	first := 0
	for i, generation := range generations {
		if i == 0 {
			first = generation.Index
		}
		for _, individual := range generation.Individuals {
			individuals[individual.ID] = individual
		}
	}

	l := &Lineage{
		parents:  make(map[string][]string),
		children: make(map[string][]string),
	}
	seen := make(map[edgeKey]bool)

	for _, record := range records {
		child, ok := individuals[record.Child]
		if !ok {
			return nil, runerr.New(runerr.DanglingLineageReference, logPath, record.Child, "row %d: child is not a loaded individual", record.Row)
		}
		operation := record.Operation
		if operation == "" {
			operation = InferOperation(record.Parents)
		}
		for _, ref := range record.Parents {
			parent, ok := individuals[ref.ID]
			if !ok {
				return nil, runerr.New(runerr.DanglingLineageReference, logPath, ref.ID, "row %d: parent of %s is not a loaded individual", record.Row, record.Child)
			}
			if parent.ID == child.ID {
				return nil, runerr.New(runerr.LineageCycleDetected, logPath, child.ID, "row %d: individual is its own parent", record.Row)
			}
			if parent.Generation > child.Generation {
				return nil, runerr.New(runerr.LineageCycleDetected, logPath, child.ID,
					"row %d: parent %s from generation %d is later than child generation %d", record.Row, parent.ID, parent.Generation, child.Generation)
			}

			key := edgeKey{child: child.ID, parent: parent.ID}
			if seen[key] {
				continue
			}
			seen[key] = true
			l.edges = append(l.edges, model.LineageEdge{
				Child:            child.ID,
				Parent:           parent.ID,
				Operation:        operation,
				LoggedGeneration: record.Generation,
				Annotation:       ref.Annotation,
			})
			l.parents[child.ID] = append(l.parents[child.ID], parent.ID)
			l.children[parent.ID] = append(l.children[parent.ID], child.ID)
		}
	}

	sort.Slice(l.edges, func(i, j int) bool {
		if l.edges[i].Child != l.edges[j].Child {
			return l.edges[i].Child < l.edges[j].Child
		}
		return l.edges[i].Parent < l.edges[j].Parent
	})
	for id := range l.parents {
		sort.Strings(l.parents[id])
	}
	for id := range l.children {
		sort.Strings(l.children[id])
	}

	if err := l.checkSameGenerationCycles(individuals, logPath); err != nil {
		return nil, err
	}

	for _, generation := range generations {
		if generation.Index == first {
			continue
		}
		for _, individual := range generation.Individuals {
			if len(l.parents[individual.ID]) == 0 {
				return nil, runerr.New(runerr.OrphanIndividual, individual.Path, individual.ID,
					"generation %d individual has no parent in %s", generation.Index, logPath)
			}
		}
	}
	return l, nil
}

// InferOperation is mutation for a single distinct parent and crossover
// otherwise.
func InferOperation(parents []model.ParentRef) model.Operation {
	distinct := make(map[string]bool, len(parents))
	for _, p := range parents {
		distinct[p.ID] = true
	}
	if len(distinct) == 1 {
		return model.OpMutation
	}
	return model.OpCrossover
}

// checkSameGenerationCycles topologically sorts the edges whose endpoints
// share a generation. Cross-generation edges always point backwards in time
// and cannot close a cycle.
func (l *Lineage) checkSameGenerationCycles(individuals map[string]model.Individual, logPath string) error {
	indegree := make(map[string]int)
	next := make(map[string][]string)
	for _, edge := range l.edges {
		if individuals[edge.Parent].Generation != individuals[edge.Child].Generation {
			continue
		}
		if _, ok := indegree[edge.Parent]; !ok {
			indegree[edge.Parent] = 0
		}
		indegree[edge.Child]++
		next[edge.Parent] = append(next[edge.Parent], edge.Child)
	}
	if len(indegree) == 0 {
		return nil
	}

	var queue []string
	for id, degree := range indegree {
		if degree == 0 {
			queue = append(queue, id)
		}
	}
	visited := 0
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		visited++
		for _, child := range next[current] {
			indegree[child]--
			if indegree[child] == 0 {
				queue = append(queue, child)
			}
		}
	}
	if visited == len(indegree) {
		return nil
	}

	var cycle []string
	for id, degree := range indegree {
		if degree > 0 {
			cycle = append(cycle, id)
		}
	}
	sort.Strings(cycle)
	return runerr.New(runerr.LineageCycleDetected, logPath, cycle[0], "cycle among %s", strings.Join(cycle, ", "))
}

// Edges returns the de-duplicated edges ordered by child then parent.
func (l *Lineage) Edges() []model.LineageEdge {
	return append([]model.LineageEdge(nil), l.edges...)
}

func (l *Lineage) Parents(id string) []string {
	return append([]string(nil), l.parents[id]...)
}

func (l *Lineage) Children(id string) []string {
	return append([]string(nil), l.children[id]...)
}
