package genepool

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"evovis/internal/codec"
	"evovis/internal/model"
	"evovis/internal/runerr"
	"evovis/internal/runwriter"
)

func layers(names ...string) model.Chromosome {
	out := make(model.Chromosome, len(names))
	for i, name := range names {
		out[i] = model.Gene{Layer: name}
	}
	return out
}

func TestBuildSampleSearchSpace(t *testing.T) {
	g, err := Build(runwriter.SampleSearchSpace(), "search_space.json")
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	wantOrder := []string{"Start", "STFT_2D", "MAG_2D", "C_2D", "DC_2D", "GAP", "DENSE"}
	if diff := cmp.Diff(wantOrder, g.TopologicalOrder()); diff != "" {
		t.Fatalf("topological order (-want +got):\n%s", diff)
	}
	if len(g.Edges()) != 7 {
		t.Fatalf("expected 7 edges, got %+v", g.Edges())
	}
	if diff := cmp.Diff([]string{"C_2D", "DC_2D"}, g.Successors("MAG_2D")); diff != "" {
		t.Fatalf("group target expansion (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"C_2D", "DC_2D"}, g.Inputs("GAP")); diff != "" {
		t.Fatalf("inputs (-want +got):\n%s", diff)
	}
	if group, ok := g.GroupOf("DC_2D"); !ok || group != "Processing 2D" {
		t.Fatalf("unexpected group for DC_2D: %q %v", group, ok)
	}
	if diff := cmp.Diff([]model.GenePoolEdge{{From: "Processing 2D", To: "Processing 2D"}}, g.GroupEdges()); diff != "" {
		t.Fatalf("group edges (-want +got):\n%s", diff)
	}
	if len(g.Unreachable()) != 0 {
		t.Fatalf("expected every gene reachable, got %v", g.Unreachable())
	}
	if g.Nodes()[0].Name != codec.StartNode {
		t.Fatalf("expected Start first, got %+v", g.Nodes()[0])
	}
}

func TestBuildDetectsCycle(t *testing.T) {
	space := model.SearchSpace{
		GenePool: map[string][]model.GeneSpec{
			"Blocks": {{Layer: "A", FName: "a"}, {Layer: "B", FName: "b"}, {Layer: "C", FName: "c"}},
		},
		Rules: map[string]model.Rule{
			"Start": {Targets: []string{"A"}},
			"A":     {Targets: []string{"B"}},
			"B":     {Targets: []string{"C"}},
			"C":     {Targets: []string{"A"}},
		},
	}

	_, err := Build(space, "search_space.json")
	if !errors.Is(err, runerr.ErrCyclicGenePool) {
		t.Fatalf("expected cyclic gene pool, got %v", err)
	}
	for _, node := range []string{"A", "B", "C"} {
		if !strings.Contains(err.Error(), node) {
			t.Fatalf("expected %s named in %q", node, err.Error())
		}
	}
}

func TestBuildSelfGroupRuleIsNotACycle(t *testing.T) {
	space := runwriter.SampleSearchSpace()
	space.GroupRules = append(space.GroupRules, model.GroupRule{Group: "Classification", Targets: []string{"Classification"}})
	if _, err := Build(space, "search_space.json"); err != nil {
		t.Fatalf("group-level self composition should be accepted: %v", err)
	}
}

func TestBuildExclusionsAndReachability(t *testing.T) {
	space := runwriter.SampleSearchSpace()
	space.GenePool["Processing 2D"] = []model.GeneSpec{
		{Layer: "C_2D", FName: "c_2d"},
		{Layer: "DC_2D", FName: "dc_2d", Exclude: true},
	}
	space.GenePool["Extra"] = []model.GeneSpec{{Layer: "LSTM", FName: "lstm"}}
	space.Rules["LSTM"] = model.Rule{Targets: []string{"GAP"}}
	space.Rules["GAP"] = model.Rule{Targets: []string{"DENSE"}, Exclude: true}

	g, err := Build(space, "search_space.json")
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if g.Has("DC_2D") {
		t.Fatal("excluded gene must not be a node")
	}
	if diff := cmp.Diff([]string{"DENSE", "LSTM"}, g.Unreachable()); diff != "" {
		t.Fatalf("unreachable (-want +got):\n%s", diff)
	}
	if g.HasEdge("LSTM", "GAP") {
		t.Fatal("edges of unreachable genes must not be in the graph")
	}
}

func TestBuildRejectsUnknownReferences(t *testing.T) {
	cases := map[string]func(*model.SearchSpace){
		"unknown target": func(s *model.SearchSpace) {
			s.Rules["GAP"] = model.Rule{Targets: []string{"SOFTMAX"}}
		},
		"unknown source": func(s *model.SearchSpace) {
			s.Rules["SOFTMAX"] = model.Rule{Targets: []string{"GAP"}}
		},
		"start as target": func(s *model.SearchSpace) {
			s.Rules["GAP"] = model.Rule{Targets: []string{"Start"}}
		},
		"unknown group rule": func(s *model.SearchSpace) {
			s.GroupRules = append(s.GroupRules, model.GroupRule{Group: "Recurrent", Targets: []string{"Classification"}})
		},
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			space := runwriter.SampleSearchSpace()
			mutate(&space)
			if _, err := Build(space, "search_space.json"); !errors.Is(err, runerr.ErrMalformedArtifact) {
				t.Fatalf("expected malformed artifact, got %v", err)
			}
		})
	}
}

func TestValidateChromosome(t *testing.T) {
	g, err := Build(runwriter.SampleSearchSpace(), "search_space.json")
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	valid := []model.Chromosome{
		layers("STFT_2D", "MAG_2D", "C_2D", "GAP", "DENSE"),
		layers("STFT_2D", "MAG_2D", "DC_2D", "C_2D", "GAP", "DENSE"),
		layers("STFT_2D", "MAG_2D", "C_2D", "C_2D", "GAP", "DENSE"),
		layers("STFT_2D", "MAG_2D"),
	}
	for _, chromosome := range valid {
		if err := g.ValidateChromosome(chromosome); err != nil {
			t.Fatalf("expected %v valid: %v", chromosome.Layers(), err)
		}
	}

	invalid := map[string]model.Chromosome{
		"empty":          nil,
		"unknown layer":  layers("STFT_2D", "LSTM"),
		"wrong first":    layers("MAG_2D", "C_2D"),
		"skipped layer":  layers("STFT_2D", "C_2D", "GAP"),
		"backwards":      layers("STFT_2D", "MAG_2D", "C_2D", "GAP", "C_2D"),
		"start as gene":  layers("Start", "STFT_2D"),
		"group mismatch": layers("STFT_2D", "MAG_2D", "GAP"),
	}
	for name, chromosome := range invalid {
		if err := g.ValidateChromosome(chromosome); err == nil {
			t.Fatalf("%s: expected %v invalid", name, chromosome.Layers())
		}
	}
}

func TestEncodeRoundTrip(t *testing.T) {
	original := runwriter.SampleSearchSpace()
	original.GenePool["Extra"] = []model.GeneSpec{{Layer: "LSTM", FName: "lstm"}}

	g, err := Build(original, "search_space.json")
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	data, err := codec.EncodeSearchSpace(Encode(g))
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	decoded, err := codec.DecodeSearchSpace("encoded.json", data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	again, err := Build(decoded, "encoded.json")
	if err != nil {
		t.Fatalf("rebuild: %v", err)
	}

	if diff := cmp.Diff(g.Nodes(), again.Nodes()); diff != "" {
		t.Fatalf("nodes differ after round trip (-first +second):\n%s", diff)
	}
	if diff := cmp.Diff(g.Edges(), again.Edges()); diff != "" {
		t.Fatalf("edges differ after round trip (-first +second):\n%s", diff)
	}
	if diff := cmp.Diff(g.GroupEdges(), again.GroupEdges()); diff != "" {
		t.Fatalf("group edges differ after round trip (-first +second):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"LSTM"}, again.Unreachable()); diff != "" {
		t.Fatalf("unreachable (-want +got):\n%s", diff)
	}
}

func TestWriteDOT(t *testing.T) {
	g, err := Build(runwriter.SampleSearchSpace(), "search_space.json")
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	var buf bytes.Buffer
	if err := WriteDOT(&buf, g); err != nil {
		t.Fatalf("write dot: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"digraph genepool {", `"Start" -> "STFT_2D";`, `label="Processing 2D";`} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in dot output:\n%s", want, out)
		}
	}
}
