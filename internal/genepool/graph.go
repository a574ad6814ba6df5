// Package genepool builds the directed acyclic graph of allowed layer
// compositions from a run's search space.
package genepool

import (
	"fmt"
	"sort"
	"strings"

	"evovis/internal/codec"
	"evovis/internal/model"
	"evovis/internal/runerr"
)

// Graph is the static gene pool of a run. Nodes are Start plus every gene
// reachable from it; edges are the layer-level compositions of the rule set.
type Graph struct {
	nodes       map[string]model.GenePoolNode
	order       []string
	successors  map[string][]string
	inputs      map[string][]string
	groupOf     map[string]string
	groups      map[string][]string
	groupEdges  map[string][]string
	genes       map[string]model.GeneSpec
	unreachable []string
}

// Build parses the search space into a Graph. Excluded genes and rules are
// dropped before the graph is formed. Rules that name unknown layers or groups
// are MalformedArtifact; a composition cycle is CyclicGenePool.
func Build(space model.SearchSpace, path string) (*Graph, error) {
	g := &Graph{
		nodes:      make(map[string]model.GenePoolNode),
		successors: make(map[string][]string),
		inputs:     make(map[string][]string),
		groupOf:    make(map[string]string),
		groups:     make(map[string][]string),
		groupEdges: make(map[string][]string),
		genes:      make(map[string]model.GeneSpec),
	}

	excludedLayers := make(map[string]bool)
	declaredGroups := make(map[string]bool, len(space.GenePool))
	for group, genes := range space.GenePool {
		declaredGroups[group] = true
		g.groups[group] = nil
		for _, gene := range genes {
			if gene.Exclude {
				excludedLayers[gene.Layer] = true
				continue
			}
			g.genes[gene.Layer] = gene
			g.groupOf[gene.Layer] = group
			g.groups[group] = append(g.groups[group], gene.Layer)
		}
	}
	for group := range g.groups {
		sort.Strings(g.groups[group])
	}

	// Layer-level relation over every declared gene, before reachability.
	edges := make(map[string]map[string]bool)
	for _, source := range sortedKeys(space.Rules) {
		rule := space.Rules[source]
		if rule.Exclude || excludedLayers[source] {
			continue
		}
		if source != codec.StartNode {
			if _, ok := g.genes[source]; !ok {
				return nil, runerr.Malformed(path, nil, "rule_set source %q is not a declared layer", source)
			}
		}
		for _, target := range rule.Targets {
			layers, err := g.expandTarget(target, excludedLayers, declaredGroups)
			if err != nil {
				return nil, runerr.Malformed(path, nil, "rule_set %q: %v", source, err)
			}
			for _, layer := range layers {
				if edges[source] == nil {
					edges[source] = make(map[string]bool)
				}
				edges[source][layer] = true
			}
		}
	}

	for _, rule := range space.GroupRules {
		if rule.Exclude {
			continue
		}
		if !declaredGroups[rule.Group] {
			return nil, runerr.Malformed(path, nil, "rule_set_group names unknown group %q", rule.Group)
		}
		for _, target := range rule.Targets {
			if !declaredGroups[target] {
				return nil, runerr.Malformed(path, nil, "rule_set_group %q targets unknown group %q", rule.Group, target)
			}
			if !contains(g.groupEdges[rule.Group], target) {
				g.groupEdges[rule.Group] = append(g.groupEdges[rule.Group], target)
			}
		}
	}
	for group := range g.groupEdges {
		sort.Strings(g.groupEdges[group])
	}

	if err := checkAcyclic(edges, g.genes, path); err != nil {
		return nil, err
	}

	reachable := map[string]bool{codec.StartNode: true}
	queue := []string{codec.StartNode}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		for _, next := range sortedKeys(edges[current]) {
			if !reachable[next] {
				reachable[next] = true
				queue = append(queue, next)
			}
		}
	}

	g.nodes[codec.StartNode] = model.GenePoolNode{Name: codec.StartNode}
	for layer, gene := range g.genes {
		if !reachable[layer] {
			g.unreachable = append(g.unreachable, layer)
			continue
		}
		g.nodes[layer] = model.GenePoolNode{Name: layer, Group: g.groupOf[layer], FName: gene.FName}
	}
	sort.Strings(g.unreachable)

	for source := range g.nodes {
		for _, target := range sortedKeys(edges[source]) {
			g.successors[source] = append(g.successors[source], target)
			g.inputs[target] = append(g.inputs[target], source)
		}
	}
	for node := range g.inputs {
		sort.Strings(g.inputs[node])
	}

	g.order = topologicalOrder(g.nodes, g.successors)
	return g, nil
}

func (g *Graph) expandTarget(target string, excluded, declaredGroups map[string]bool) ([]string, error) {
	if target == codec.StartNode {
		return nil, fmt.Errorf("%s cannot be a target", codec.StartNode)
	}
	if _, ok := g.genes[target]; ok {
		return []string{target}, nil
	}
	if excluded[target] {
		return nil, nil
	}
	if declaredGroups[target] {
		return g.groups[target], nil
	}
	return nil, fmt.Errorf("unknown target %q", target)
}

// checkAcyclic runs Kahn's algorithm over the full layer relation and names
// the nodes that remain once no zero-indegree node is left.
func checkAcyclic(edges map[string]map[string]bool, genes map[string]model.GeneSpec, path string) error {
	indegree := map[string]int{codec.StartNode: 0}
	for layer := range genes {
		indegree[layer] = 0
	}
	for _, targets := range edges {
		for target := range targets {
			indegree[target]++
		}
	}

	queue := make([]string, 0, len(indegree))
	for node, degree := range indegree {
		if degree == 0 {
			queue = append(queue, node)
		}
	}
	visited := 0
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		visited++
		for target := range edges[current] {
			indegree[target]--
			if indegree[target] == 0 {
				queue = append(queue, target)
			}
		}
	}
	if visited == len(indegree) {
		return nil
	}

	cycle := make([]string, 0, len(indegree)-visited)
	for node, degree := range indegree {
		if degree > 0 {
			cycle = append(cycle, node)
		}
	}
	sort.Strings(cycle)
	return runerr.New(runerr.CyclicGenePool, path, "", "composition cycle through %s", strings.Join(cycle, ", "))
}

// topologicalOrder is Kahn's algorithm with a sorted frontier so the order is
// stable across loads.
func topologicalOrder(nodes map[string]model.GenePoolNode, successors map[string][]string) []string {
	indegree := make(map[string]int, len(nodes))
	for node := range nodes {
		indegree[node] += 0
		for _, target := range successors[node] {
			indegree[target]++
		}
	}
	var frontier []string
	for node, degree := range indegree {
		if degree == 0 {
			frontier = append(frontier, node)
		}
	}
	sort.Strings(frontier)

	order := make([]string, 0, len(nodes))
	for len(frontier) > 0 {
		current := frontier[0]
		frontier = frontier[1:]
		order = append(order, current)
		released := false
		for _, target := range successors[current] {
			indegree[target]--
			if indegree[target] == 0 {
				frontier = append(frontier, target)
				released = true
			}
		}
		if released {
			sort.Strings(frontier)
		}
	}
	return order
}

// Nodes returns the graph nodes in topological order, Start first.
func (g *Graph) Nodes() []model.GenePoolNode {
	out := make([]model.GenePoolNode, 0, len(g.order))
	for _, name := range g.order {
		out = append(out, g.nodes[name])
	}
	return out
}

// Edges returns every composition edge ordered by source then target.
func (g *Graph) Edges() []model.GenePoolEdge {
	var out []model.GenePoolEdge
	for _, source := range sortedKeys(g.successors) {
		for _, target := range g.successors[source] {
			out = append(out, model.GenePoolEdge{From: source, To: target})
		}
	}
	return out
}

func (g *Graph) Has(name string) bool {
	_, ok := g.nodes[name]
	return ok
}

func (g *Graph) HasEdge(from, to string) bool {
	return contains(g.successors[from], to)
}

func (g *Graph) Successors(name string) []string {
	return append([]string(nil), g.successors[name]...)
}

func (g *Graph) Inputs(name string) []string {
	return append([]string(nil), g.inputs[name]...)
}

func (g *Graph) TopologicalOrder() []string {
	return append([]string(nil), g.order...)
}

// GroupOf returns the gene pool group a layer was declared in.
func (g *Graph) GroupOf(layer string) (string, bool) {
	group, ok := g.groupOf[layer]
	return group, ok
}

func (g *Graph) Groups() []string {
	return sortedKeys(g.groups)
}

func (g *Graph) GroupLayers(group string) []string {
	return append([]string(nil), g.groups[group]...)
}

// GroupEdges returns the group-level compositions. Unlike layer edges these
// may be self-referential.
func (g *Graph) GroupEdges() []model.GenePoolEdge {
	var out []model.GenePoolEdge
	for _, group := range sortedKeys(g.groupEdges) {
		for _, target := range g.groupEdges[group] {
			out = append(out, model.GenePoolEdge{From: group, To: target})
		}
	}
	return out
}

// Unreachable lists declared, non-excluded genes that no path from Start
// reaches.
func (g *Graph) Unreachable() []string {
	return append([]string(nil), g.unreachable...)
}

// ValidateChromosome reports whether the chromosome is a traversal of the
// graph: non-empty, every gene a node, starting at a successor of Start, and
// every consecutive pair joined by a layer edge or a group composition.
func (g *Graph) ValidateChromosome(chromosome model.Chromosome) error {
	if len(chromosome) == 0 {
		return fmt.Errorf("empty chromosome")
	}
	for i, gene := range chromosome {
		if gene.Layer == codec.StartNode || !g.Has(gene.Layer) {
			return fmt.Errorf("gene %d: layer %q is not in the gene pool", i, gene.Layer)
		}
	}
	if first := chromosome[0].Layer; !g.HasEdge(codec.StartNode, first) {
		return fmt.Errorf("gene 0: layer %q cannot follow %s", first, codec.StartNode)
	}
	for i := 1; i < len(chromosome); i++ {
		from, to := chromosome[i-1].Layer, chromosome[i].Layer
		if g.HasEdge(from, to) || g.groupComposes(from, to) {
			continue
		}
		return fmt.Errorf("gene %d: layer %q cannot follow %q", i, to, from)
	}
	return nil
}

func (g *Graph) groupComposes(from, to string) bool {
	fromGroup, ok := g.groupOf[from]
	if !ok {
		return false
	}
	toGroup, ok := g.groupOf[to]
	if !ok {
		return false
	}
	return contains(g.groupEdges[fromGroup], toGroup)
}

func contains(values []string, want string) bool {
	for _, v := range values {
		if v == want {
			return true
		}
	}
	return false
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
