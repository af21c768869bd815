// Package kg holds the knowledge graph data model: the ontology that guides
// extraction, the nodes and edges produced by it, and the append-only Graph
// that accumulates them across a conversation.
package kg

import (
	"encoding/json"
	"fmt"
	"slices"
	"sort"
)

// EmptyGraphSentinel is the single node name reported for a graph without
// edges, so the list can be embedded in a prompt as-is.
const EmptyGraphSentinel = "The graph is empty"

// NotPresentMessage returns the relationship list entry reported when no edge
// touches name.
func NotPresentMessage(name string) string {
	return fmt.Sprintf("Node %q is not present in the graph", name)
}

// Node is an entity identified by its label and name.
type Node struct {
	Label string `json:"label"`
	Name  string `json:"name"`
}

// Edge is a free-text relationship between two nodes.
type Edge struct {
	Node1        Node   `json:"node_1"`
	Node2        Node   `json:"node_2"`
	Relationship string `json:"relationship"`
}

// String renders the edge as "<n1> (<label1>) - <n2> (<label2>) -> <relationship>".
func (e Edge) String() string {
	return fmt.Sprintf("%s (%s) - %s (%s) -> %s",
		e.Node1.Name, e.Node1.Label, e.Node2.Name, e.Node2.Label, e.Relationship)
}

// Touches reports whether either endpoint is named name.
func (e Edge) Touches(name string) bool {
	return e.Node1.Name == name || e.Node2.Name == name
}

// Graph is an ordered sequence of edges. It only grows: edges are appended by
// Merge and never edited or removed. A Graph is not safe for concurrent use.
type Graph struct {
	edges []Edge
}

// NewGraph returns a graph holding a copy of edges.
func NewGraph(edges ...Edge) *Graph {
	return &Graph{edges: slices.Clone(edges)}
}

// Edges returns a copy of the edge sequence.
func (g *Graph) Edges() []Edge {
	if g == nil {
		return nil
	}
	return slices.Clone(g.edges)
}

// Len returns the number of edges.
func (g *Graph) Len() int {
	if g == nil {
		return 0
	}
	return len(g.edges)
}

// IsEmpty reports whether the graph has no edges.
func (g *Graph) IsEmpty() bool { return g.Len() == 0 }

// Merge appends the edges of other, in order. Duplicates are kept.
// Merging a nil or empty graph is a no-op even on a nil receiver; otherwise
// g must not be nil, since a nil graph has nowhere to keep the edges.
func (g *Graph) Merge(other *Graph) {
	if other.Len() == 0 {
		return
	}
	if g == nil {
		panic("kg: Merge into a nil *Graph")
	}
	g.edges = append(g.edges, other.edges...)
}

// NodeNames returns the distinct endpoint names, sorted. An empty graph
// yields []string{EmptyGraphSentinel}.
func (g *Graph) NodeNames() []string {
	if g.IsEmpty() {
		return []string{EmptyGraphSentinel}
	}
	seen := make(map[string]struct{}, 2*len(g.edges))
	for _, e := range g.edges {
		seen[e.Node1.Name] = struct{}{}
		seen[e.Node2.Name] = struct{}{}
	}
	names := make([]string, 0, len(seen))
	for n := range seen {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Nodes returns the distinct (label, name) nodes in first-seen order.
func (g *Graph) Nodes() []Node {
	if g == nil {
		return nil
	}
	seen := make(map[Node]bool)
	var nodes []Node
	for _, e := range g.edges {
		for _, n := range [2]Node{e.Node1, e.Node2} {
			if !seen[n] {
				seen[n] = true
				nodes = append(nodes, n)
			}
		}
	}
	return nodes
}

// RelationshipsOf returns, in edge order, the rendered relationships whose
// endpoints include name (exact match). When none match, the single entry
// NotPresentMessage(name) is returned.
func (g *Graph) RelationshipsOf(name string) []string {
	var out []string
	if g != nil {
		for _, e := range g.edges {
			if e.Touches(name) {
				out = append(out, e.String())
			}
		}
	}
	if len(out) == 0 {
		return []string{NotPresentMessage(name)}
	}
	return out
}

type graphJSON struct {
	Edges []Edge `json:"edges"`
}

// MarshalJSON encodes the graph as {"edges": [...]}.
func (g *Graph) MarshalJSON() ([]byte, error) {
	edges := g.Edges()
	if edges == nil {
		edges = []Edge{}
	}
	return json.Marshal(graphJSON{Edges: edges})
}

// UnmarshalJSON replaces the receiver's edges with the decoded ones.
func (g *Graph) UnmarshalJSON(data []byte) error {
	var raw graphJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	g.edges = raw.Edges
	return nil
}

// Decode parses a graph artifact produced by json.Marshal.
func Decode(data []byte) (*Graph, error) {
	g := &Graph{}
	if err := json.Unmarshal(data, g); err != nil {
		return nil, fmt.Errorf("decoding graph: %w", err)
	}
	if err := g.Validate(); err != nil {
		return nil, err
	}
	return g, nil
}

// Validate checks that every edge names both endpoints.
func (g *Graph) Validate() error {
	for i, e := range g.Edges() {
		if e.Node1.Name == "" || e.Node2.Name == "" {
			return fmt.Errorf("edge %d: both endpoints need a name", i)
		}
	}
	return nil
}
