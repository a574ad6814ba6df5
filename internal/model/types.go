package model

import "sort"

// VersionedRecord captures schema and codec evolution for persistent data.
type VersionedRecord struct {
	SchemaVersion int `json:"schema_version"`
	CodecVersion  int `json:"codec_version"`
}

type Hyperparameter struct {
	Value       any    `json:"value"`
	Description string `json:"description,omitempty"`
}

type Goal string

const (
	GoalMax Goal = "max"
	GoalMin Goal = "min"
)

// Objective is the measurement info of one declared result key.
type Objective struct {
	Name          string   `json:"name"`
	DisplayName   string   `json:"displayname"`
	Unit          *string  `json:"unit"`
	MinBoundary   *float64 `json:"min-boundary,omitempty"`
	MaxBoundary   *float64 `json:"max-boundary,omitempty"`
	RunResultPlot bool     `json:"run-result-plot"`
	Goal          Goal     `json:"goal"`
}

// Better reports whether a beats b under the objective's goal.
func (o Objective) Better(a, b float64) bool {
	if o.Goal == GoalMin {
		return a < b
	}
	return a > b
}

type HyperparameterConfig struct {
	Parameters map[string]Hyperparameter `json:"hyperparameters"`
	Objectives map[string]Objective      `json:"results"`
}

// ObjectiveNames returns the declared objectives in ascending order.
func (c HyperparameterConfig) ObjectiveNames() []string {
	names := make([]string, 0, len(c.Objectives))
	for name := range c.Objectives {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (c HyperparameterConfig) Clone() HyperparameterConfig {
	out := HyperparameterConfig{
		Parameters: make(map[string]Hyperparameter, len(c.Parameters)),
		Objectives: make(map[string]Objective, len(c.Objectives)),
	}
	for k, v := range c.Parameters {
		out.Parameters[k] = Hyperparameter{Value: CloneValue(v.Value), Description: v.Description}
	}
	for k, v := range c.Objectives {
		out.Objectives[k] = v.Clone()
	}
	return out
}

func (o Objective) Clone() Objective {
	out := o
	out.Unit = clonePtr(o.Unit)
	out.MinBoundary = clonePtr(o.MinBoundary)
	out.MaxBoundary = clonePtr(o.MaxBoundary)
	return out
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// CloneValue deep-copies a decoded JSON value.
func CloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, nested := range t {
			out[k] = CloneValue(nested)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, nested := range t {
			out[i] = CloneValue(nested)
		}
		return out
	case []string:
		return append([]string(nil), t...)
	default:
		return v
	}
}

type Gene struct {
	Layer  string         `json:"layer"`
	Group  string         `json:"group,omitempty"`
	Params map[string]any `json:"params,omitempty"`
}

func (g Gene) Clone() Gene {
	out := g
	if g.Params != nil {
		out.Params = CloneValue(g.Params).(map[string]any)
	}
	return out
}

type Chromosome []Gene

func (c Chromosome) Clone() Chromosome {
	if c == nil {
		return nil
	}
	out := make(Chromosome, len(c))
	for i, gene := range c {
		out[i] = gene.Clone()
	}
	return out
}

func (c Chromosome) Layers() []string {
	layers := make([]string, len(c))
	for i, gene := range c {
		layers[i] = gene.Layer
	}
	return layers
}

// IndividualRecord is an individual as read by an adapter, before fitness
// validation.
type IndividualRecord struct {
	ID         string         `json:"id"`
	Generation int            `json:"generation"`
	Path       string         `json:"path,omitempty"`
	Chromosome Chromosome     `json:"chromosome"`
	Results    map[string]any `json:"results"`
}

type Individual struct {
	ID         string             `json:"id"`
	Generation int                `json:"generation"`
	Path       string             `json:"path,omitempty"`
	Chromosome Chromosome         `json:"chromosome"`
	Fitness    map[string]float64 `json:"fitness"`
	Metrics    map[string]float64 `json:"metrics,omitempty"`
	Healthy    bool               `json:"healthy"`
	Error      string             `json:"error,omitempty"`
}

func (i Individual) Clone() Individual {
	out := i
	out.Chromosome = i.Chromosome.Clone()
	out.Fitness = make(map[string]float64, len(i.Fitness))
	for k, v := range i.Fitness {
		out.Fitness[k] = v
	}
	if i.Metrics != nil {
		out.Metrics = make(map[string]float64, len(i.Metrics))
		for k, v := range i.Metrics {
			out.Metrics[k] = v
		}
	}
	return out
}

type Generation struct {
	Index       int          `json:"index"`
	Path        string       `json:"path,omitempty"`
	Individuals []Individual `json:"individuals"`
}

type Operation string

const (
	OpCrossover Operation = "crossover"
	OpMutation  Operation = "mutation"
)

type ParentRef struct {
	ID         string `json:"id"`
	Annotation string `json:"annotation,omitempty"`
}

// CrossoverRecord is one row of the crossover log.
type CrossoverRecord struct {
	Row        int         `json:"row"`
	Generation int         `json:"generation"`
	Parents    []ParentRef `json:"parents"`
	Child      string      `json:"child"`
	Operation  Operation   `json:"operation,omitempty"`
}

type LineageEdge struct {
	Child            string    `json:"child"`
	Parent           string    `json:"parent"`
	Operation        Operation `json:"operation"`
	LoggedGeneration int       `json:"logged_generation"`
	Annotation       string    `json:"annotation,omitempty"`
}

type GeneSpec struct {
	Layer   string `json:"layer"`
	FName   string `json:"f_name"`
	Exclude bool   `json:"exclude,omitempty"`
}

type Rule struct {
	Targets []string `json:"rule"`
	Exclude bool     `json:"exclude,omitempty"`
}

type GroupRule struct {
	Group   string   `json:"group"`
	Targets []string `json:"rule"`
	Exclude bool     `json:"exclude,omitempty"`
}

type SearchSpace struct {
	GenePool   map[string][]GeneSpec `json:"gene_pool"`
	Rules      map[string]Rule       `json:"rule_set"`
	GroupRules []GroupRule           `json:"rule_set_group,omitempty"`
}

type GenePoolNode struct {
	Name  string `json:"name"`
	Group string `json:"group,omitempty"`
	FName string `json:"f_name,omitempty"`
}

type GenePoolEdge struct {
	From string `json:"from"`
	To   string `json:"to"`
}

type RunSummary struct {
	VersionedRecord
	RunID          string   `json:"run_id"`
	Dir            string   `json:"dir"`
	LoadID         string   `json:"load_id"`
	Generations    int      `json:"generations"`
	Individuals    int      `json:"individuals"`
	Unhealthy      int      `json:"unhealthy"`
	Objectives     []string `json:"objectives"`
	LineageEdges   int      `json:"lineage_edges"`
	GenePoolNodes  int      `json:"gene_pool_nodes"`
	Warnings       int      `json:"warnings"`
	LoadedAtUTC    string   `json:"loaded_at_utc"`
	LoadDurationMS int64    `json:"load_duration_ms"`
}

// RunSnapshot is the structural content of a run. Two loads of the same
// directory produce equal snapshots.
type RunSnapshot struct {
	VersionedRecord
	RunID           string               `json:"run_id"`
	Hyperparameters HyperparameterConfig `json:"hyperparameters"`
	Generations     []Generation         `json:"generations"`
	Lineage         []LineageEdge        `json:"lineage"`
	GenePoolNodes   []GenePoolNode       `json:"gene_pool_nodes"`
	GenePoolEdges   []GenePoolEdge       `json:"gene_pool_edges"`
	Warnings        []string             `json:"warnings,omitempty"`
}
