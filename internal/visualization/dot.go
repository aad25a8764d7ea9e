// Package visualization renders the connectivity graph of a simulation in
// various output formats.
package visualization

import (
	"fmt"
	"strings"

	"github.com/intentsim/bloomcascade/internal/agent"
	"github.com/intentsim/bloomcascade/internal/graph"
)

// Format specifies the output format for graph rendering.
type Format string

const (
	FormatDOT  Format = "dot"
	FormatJSON Format = "json"
)

// ParseFormat validates a format name.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(s)); f {
	case FormatDOT, FormatJSON:
		return f, nil
	default:
		return "", fmt.Errorf("unknown graph format %q (valid: dot, json)", s)
	}
}

// edgeStyles maps connection content to DOT styles.
var edgeStyles = map[graph.Content]string{
	graph.Factual:   "solid",
	graph.Narrative: "dashed",
}

// RenderDOT produces an undirected Graphviz DOT graph. Agents are pinned
// at their positions (render with neato -n) and shaded by resonance; edge
// width follows connection weight.
func RenderDOT(agents []agent.Agent, conns []graph.Connection) string {
	var b strings.Builder
	b.WriteString("graph bloomcascade {\n")
	b.WriteString("  node [shape=circle, style=filled, fixedsize=true, width=0.3, fontname=\"Helvetica\", fontsize=8];\n")
	b.WriteString("  edge [color=\"#4a4a4a80\"];\n\n")

	for _, a := range agents {
		fmt.Fprintf(&b, "  %d [pos=\"%.2f,%.2f!\", fillcolor=%q, tooltip=\"resonance=%.2f information=%.2f\"];\n",
			a.ID, a.Position.X, a.Position.Y, resonanceColor(a.Resonance), a.Resonance, a.Information)
	}
	b.WriteString("\n")

	for _, c := range CollectEdges(len(agents), conns) {
		fmt.Fprintf(&b, "  %d -- %d [style=%s, penwidth=\"%.2f\"];\n",
			c.Source, c.Target, edgeStyles[c.Content], 0.5+2*c.Weight)
	}

	b.WriteString("}\n")
	return b.String()
}

// Node is an agent in the JSON graph.
type Node struct {
	ID          int     `json:"id"`
	X           float64 `json:"x"`
	Y           float64 `json:"y"`
	Alignment   float64 `json:"alignment"`
	Information float64 `json:"information"`
	Resonance   float64 `json:"resonance"`
	Degree      int     `json:"degree"`
}

// Edge is a connection in the JSON graph.
type Edge struct {
	Source  int     `json:"source"`
	Target  int     `json:"target"`
	Weight  float64 `json:"weight"`
	Age     int     `json:"age"`
	Content string  `json:"content"`
}

// Graph is the JSON graph representation.
type Graph struct {
	Nodes     []Node `json:"nodes"`
	Edges     []Edge `json:"edges"`
	NodeCount int    `json:"node_count"`
	EdgeCount int    `json:"edge_count"`
}

// RenderJSON produces a JSON graph representation with nodes and edges
// arrays. Degrees count the rendered edges.
func RenderJSON(agents []agent.Agent, conns []graph.Connection) Graph {
	edges := CollectEdges(len(agents), conns)
	degree := make([]int, len(agents))
	jsonEdges := make([]Edge, 0, len(edges))
	for _, c := range edges {
		degree[c.Source]++
		degree[c.Target]++
		jsonEdges = append(jsonEdges, Edge{
			Source:  c.Source,
			Target:  c.Target,
			Weight:  c.Weight,
			Age:     c.Age,
			Content: c.Content.String(),
		})
	}

	jsonNodes := make([]Node, 0, len(agents))
	for i, a := range agents {
		jsonNodes = append(jsonNodes, Node{
			ID:          a.ID,
			X:           a.Position.X,
			Y:           a.Position.Y,
			Alignment:   a.Alignment,
			Information: a.Information,
			Resonance:   a.Resonance,
			Degree:      degree[i],
		})
	}

	return Graph{
		Nodes:     jsonNodes,
		Edges:     jsonEdges,
		NodeCount: len(jsonNodes),
		EdgeCount: len(jsonEdges),
	}
}

// CollectEdges returns the connections that can be drawn: both endpoints
// inside a population of n agents, no self-loops, and each unordered pair
// once. Order is preserved.
func CollectEdges(n int, conns []graph.Connection) []graph.Connection {
	type pair struct{ a, b int }
	seen := make(map[pair]bool, len(conns))
	result := make([]graph.Connection, 0, len(conns))
	for _, c := range conns {
		if c.Source < 0 || c.Target < 0 || c.Source >= n || c.Target >= n || c.Source == c.Target {
			continue
		}
		key := pair{min(c.Source, c.Target), max(c.Source, c.Target)}
		if seen[key] {
			continue
		}
		seen[key] = true
		result = append(result, c)
	}
	return result
}

// resonanceColor shades from pale to saturated blue as resonance rises,
// as a Graphviz HSV triple.
func resonanceColor(r float64) string {
	r = max(0, min(1, r))
	return fmt.Sprintf("0.600 %.3f 1.000", 0.1+0.9*r)
}
