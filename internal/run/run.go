// Package run holds the immutable aggregate of one ingested ENAS run and the
// read-only queries visualization consumers use.
package run

import (
	"sort"
	"time"

	"github.com/google/uuid"

	"evovis/internal/genepool"
	"evovis/internal/lineage"
	"evovis/internal/model"
	"evovis/internal/storage"
)

// LoadedAtLayout is fixed width so stored timestamps sort as strings.
const LoadedAtLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Params are the validated parts a Run is composed from.
type Params struct {
	ID           string
	Dir          string
	Config       model.HyperparameterConfig
	Generations  []model.Generation
	Lineage      *lineage.Lineage
	GenePool     *genepool.Graph
	Warnings     []string
	LoadedAt     time.Time
	LoadDuration time.Duration
}

// Run is safe for concurrent reads; nothing mutates it after New returns.
type Run struct {
	id           string
	loadID       string
	dir          string
	config       model.HyperparameterConfig
	indices      []int
	generations  map[int][]string
	genPaths     map[int]string
	individuals  map[string]model.Individual
	lineage      *lineage.Lineage
	genePool     *genepool.Graph
	warnings     []string
	loadedAt     time.Time
	loadDuration time.Duration
}

func New(p Params) *Run {
	r := &Run{
		id:           p.ID,
		loadID:       uuid.NewString(),
		dir:          p.Dir,
		config:       p.Config.Clone(),
		generations:  make(map[int][]string, len(p.Generations)),
		genPaths:     make(map[int]string, len(p.Generations)),
		individuals:  make(map[string]model.Individual),
		lineage:      p.Lineage,
		genePool:     p.GenePool,
		warnings:     append([]string(nil), p.Warnings...),
		loadedAt:     p.LoadedAt.UTC(),
		loadDuration: p.LoadDuration,
	}
	for _, generation := range p.Generations {
		r.indices = append(r.indices, generation.Index)
		r.genPaths[generation.Index] = generation.Path
		ids := make([]string, 0, len(generation.Individuals))
		for _, individual := range generation.Individuals {
			ids = append(ids, individual.ID)
			r.individuals[individual.ID] = individual.Clone()
		}
		sort.Strings(ids)
		r.generations[generation.Index] = ids
	}
	sort.Ints(r.indices)
	return r
}

func (r *Run) ID() string     { return r.id }
func (r *Run) LoadID() string { return r.loadID }
func (r *Run) Dir() string    { return r.dir }

func (r *Run) Hyperparameters() model.HyperparameterConfig {
	return r.config.Clone()
}

// Objectives returns the declared objectives ordered by name.
func (r *Run) Objectives() []model.Objective {
	names := r.config.ObjectiveNames()
	out := make([]model.Objective, 0, len(names))
	for _, name := range names {
		out = append(out, r.config.Objectives[name].Clone())
	}
	return out
}

func (r *Run) Objective(name string) (model.Objective, bool) {
	objective, ok := r.config.Objectives[name]
	return objective.Clone(), ok
}

func (r *Run) GenerationIndices() []int {
	return append([]int(nil), r.indices...)
}

func (r *Run) Generation(index int) (model.Generation, bool) {
	ids, ok := r.generations[index]
	if !ok {
		return model.Generation{}, false
	}
	generation := model.Generation{
		Index:       index,
		Path:        r.genPaths[index],
		Individuals: make([]model.Individual, 0, len(ids)),
	}
	for _, id := range ids {
		generation.Individuals = append(generation.Individuals, r.individuals[id].Clone())
	}
	return generation, true
}

func (r *Run) Individual(id string) (model.Individual, bool) {
	individual, ok := r.individuals[id]
	if !ok {
		return model.Individual{}, false
	}
	return individual.Clone(), true
}

func (r *Run) IndividualCount() int {
	return len(r.individuals)
}

func (r *Run) Parents(id string) []string {
	return r.lineage.Parents(id)
}

func (r *Run) Children(id string) []string {
	return r.lineage.Children(id)
}

// Ancestors returns every individual reachable through parent edges, ordered
// by id. The individual itself is never included.
func (r *Run) Ancestors(id string) []string {
	return r.walk(id, r.lineage.Parents)
}

// Descendants is the inverse of Ancestors.
func (r *Run) Descendants(id string) []string {
	return r.walk(id, r.lineage.Children)
}

func (r *Run) walk(id string, next func(string) []string) []string {
	if _, ok := r.individuals[id]; !ok {
		return nil
	}
	visited := map[string]bool{id: true}
	queue := []string{id}
	var out []string
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		for _, neighbour := range next(current) {
			if visited[neighbour] {
				continue
			}
			visited[neighbour] = true
			out = append(out, neighbour)
			queue = append(queue, neighbour)
		}
	}
	sort.Strings(out)
	return out
}

func (r *Run) LineageEdges() []model.LineageEdge {
	return r.lineage.Edges()
}

func (r *Run) GenePool() *genepool.Graph {
	return r.genePool
}

func (r *Run) Warnings() []string {
	return append([]string(nil), r.warnings...)
}

func (r *Run) Summary() model.RunSummary {
	unhealthy := 0
	for _, individual := range r.individuals {
		if !individual.Healthy {
			unhealthy++
		}
	}
	return model.RunSummary{
		VersionedRecord: storage.CurrentVersion(),
		RunID:           r.id,
		Dir:             r.dir,
		LoadID:          r.loadID,
		Generations:     len(r.indices),
		Individuals:     len(r.individuals),
		Unhealthy:       unhealthy,
		Objectives:      r.config.ObjectiveNames(),
		LineageEdges:    len(r.lineage.Edges()),
		GenePoolNodes:   len(r.genePool.Nodes()),
		Warnings:        len(r.warnings),
		LoadedAtUTC:     r.loadedAt.Format(LoadedAtLayout),
		LoadDurationMS:  r.loadDuration.Milliseconds(),
	}
}

// Snapshot is the structural content of the run. It omits the load id and
// timings, so loading an unchanged directory twice gives equal snapshots.
func (r *Run) Snapshot() model.RunSnapshot {
	snapshot := model.RunSnapshot{
		VersionedRecord: storage.CurrentVersion(),
		RunID:           r.id,
		Hyperparameters: r.config.Clone(),
		Generations:     make([]model.Generation, 0, len(r.indices)),
		Lineage:         r.lineage.Edges(),
		GenePoolNodes:   r.genePool.Nodes(),
		GenePoolEdges:   r.genePool.Edges(),
		Warnings:        r.Warnings(),
	}
	for _, index := range r.indices {
		generation, _ := r.Generation(index)
		snapshot.Generations = append(snapshot.Generations, generation)
	}
	return snapshot
}
