package genepool

import (
	"fmt"
	"io"
	"strings"

	"evovis/internal/codec"
	"evovis/internal/model"
)

// Encode turns a graph back into a search space. Rules are emitted at layer
// level with groups already expanded, so Build(Encode(g)) has the same nodes
// and edges as g. Unreachable genes keep their gene pool entry.
func Encode(g *Graph) model.SearchSpace {
	space := model.SearchSpace{
		GenePool: make(map[string][]model.GeneSpec, len(g.groups)),
		Rules:    make(map[string]model.Rule, len(g.successors)+1),
	}
	for _, group := range sortedKeys(g.groups) {
		space.GenePool[group] = []model.GeneSpec{}
		for _, layer := range g.groups[group] {
			space.GenePool[group] = append(space.GenePool[group], g.genes[layer])
		}
	}
	for _, node := range g.order {
		targets := g.successors[node]
		if len(targets) == 0 && node != codec.StartNode {
			continue
		}
		space.Rules[node] = model.Rule{Targets: append([]string{}, targets...)}
	}
	for _, group := range sortedKeys(g.groupEdges) {
		space.GroupRules = append(space.GroupRules, model.GroupRule{
			Group:   group,
			Targets: append([]string(nil), g.groupEdges[group]...),
		})
	}
	return space
}

// WriteDOT renders the graph in Graphviz dot syntax, clustering layers by
// group.
func WriteDOT(w io.Writer, g *Graph) error {
	var b strings.Builder
	b.WriteString("digraph genepool {\n")
	b.WriteString("  rankdir=LR;\n")
	fmt.Fprintf(&b, "  %q [shape=circle];\n", codec.StartNode)
	for i, group := range g.Groups() {
		fmt.Fprintf(&b, "  subgraph cluster_%d {\n", i)
		fmt.Fprintf(&b, "    label=%q;\n", group)
		for _, layer := range g.groups[group] {
			if !g.Has(layer) {
				fmt.Fprintf(&b, "    %q [shape=box, style=dashed];\n", layer)
				continue
			}
			fmt.Fprintf(&b, "    %q [shape=box];\n", layer)
		}
		b.WriteString("  }\n")
	}
	for _, edge := range g.Edges() {
		fmt.Fprintf(&b, "  %q -> %q;\n", edge.From, edge.To)
	}
	b.WriteString("}\n")
	_, err := io.WriteString(w, b.String())
	return err
}
