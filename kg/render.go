package kg

import (
	"bytes"
	"encoding/json"
	"fmt"
	"html/template"
	"sort"
)

// palette is assigned to labels in first-seen order and wraps around.
var palette = []string{
	"#00bfff", // DeepSkyBlue
	"#ff7f50", // Coral
	"#32cd32", // LimeGreen
	"#ff69b4", // HotPink
	"#8a2be2", // BlueViolet
	"#ff4500", // OrangeRed
	"#2e8b57", // SeaGreen
	"#dda0dd", // Plum
	"#ff6347", // Tomato
	"#4682b4", // SteelBlue
	"#9acd32", // YellowGreen
	"#ff1493", // DeepPink
	"#00ced1", // DarkTurquoise
	"#7b68ee", // MediumSlateBlue
	"#dc143c", // Crimson
}

// nodeSizeFactor scales a node's multiplicity to its drawn size.
const nodeSizeFactor = 10

// NodeRow is one distinct (label, name) node in the render table.
type NodeRow struct {
	ID    int    `json:"id"`
	Label string `json:"label"`
	Name  string `json:"name"`
	Count int    `json:"count"`
	Color string `json:"color"`
}

// EdgeRow is one edge in the render table, with endpoints resolved to node IDs.
type EdgeRow struct {
	SourceID     int    `json:"source_id"`
	TargetID     int    `json:"target_id"`
	Source       string `json:"source"`
	Target       string `json:"target"`
	Relationship string `json:"relationship"`
}

// Tables builds the node and edge tables used for rendering. Nodes are
// deduplicated by (label, name) and ordered by multiplicity, most frequent
// first, ties broken by first appearance. Edge endpoints are resolved by name
// to the first node row carrying that name.
func (g *Graph) Tables() ([]NodeRow, []EdgeRow) {
	if g.IsEmpty() {
		return nil, nil
	}

	counts := make(map[Node]int)
	var order []Node
	for _, e := range g.edges {
		for _, n := range [2]Node{e.Node1, e.Node2} {
			if counts[n] == 0 {
				order = append(order, n)
			}
			counts[n]++
		}
	}
	sort.SliceStable(order, func(i, j int) bool {
		return counts[order[i]] > counts[order[j]]
	})

	colors := make(map[string]string)
	nodes := make([]NodeRow, len(order))
	idByName := make(map[string]int)
	for i, n := range order {
		color, ok := colors[n.Label]
		if !ok {
			color = palette[len(colors)%len(palette)]
			colors[n.Label] = color
		}
		nodes[i] = NodeRow{ID: i, Label: n.Label, Name: n.Name, Count: counts[n], Color: color}
		if _, ok := idByName[n.Name]; !ok {
			idByName[n.Name] = i
		}
	}

	edges := make([]EdgeRow, len(g.edges))
	for i, e := range g.edges {
		edges[i] = EdgeRow{
			SourceID:     idByName[e.Node1.Name],
			TargetID:     idByName[e.Node2.Name],
			Source:       e.Node1.Name,
			Target:       e.Node2.Name,
			Relationship: e.Relationship,
		}
	}
	return nodes, edges
}

type visNode struct {
	ID    int    `json:"id"`
	Label string `json:"label"`
	Title string `json:"title"`
	Color string `json:"color"`
	Size  int    `json:"size"`
}

type visEdge struct {
	From  int    `json:"from"`
	To    int    `json:"to"`
	Label string `json:"label"`
	Arrow string `json:"arrows"`
}

var htmlTemplate = template.Must(template.New("graph").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
<script src="https://unpkg.com/vis-network/standalone/umd/vis-network.min.js"></script>
<style>
html, body { margin: 0; height: 100%; }
#network { width: 100%; height: 100%; border: 1px solid lightgray; }
</style>
</head>
<body>
<div id="network"></div>
<script>
var nodes = new vis.DataSet({{.Nodes}});
var edges = new vis.DataSet({{.Edges}});
new vis.Network(document.getElementById("network"), {nodes: nodes, edges: edges}, {
  physics: {stabilization: true},
  edges: {font: {size: 10, align: "middle"}, smooth: {type: "dynamic"}}
});
</script>
</body>
</html>
`))

// RenderHTML returns a self-contained vis-network document: nodes colored by
// label and sized by multiplicity, edges labeled with the relationship text.
// An empty graph renders to "".
func (g *Graph) RenderHTML() (string, error) {
	nodes, edges := g.Tables()
	if len(nodes) == 0 {
		return "", nil
	}

	vn := make([]visNode, len(nodes))
	for i, n := range nodes {
		vn[i] = visNode{
			ID:    n.ID,
			Label: n.Name,
			Title: n.Label,
			Color: n.Color,
			Size:  n.Count * nodeSizeFactor,
		}
	}
	ve := make([]visEdge, len(edges))
	for i, e := range edges {
		ve[i] = visEdge{From: e.SourceID, To: e.TargetID, Label: e.Relationship, Arrow: "to"}
	}

	nodesJSON, err := json.Marshal(vn)
	if err != nil {
		return "", fmt.Errorf("encoding nodes: %w", err)
	}
	edgesJSON, err := json.Marshal(ve)
	if err != nil {
		return "", fmt.Errorf("encoding edges: %w", err)
	}

	var buf bytes.Buffer
	err = htmlTemplate.Execute(&buf, map[string]any{
		"Title": "Knowledge Graph",
		"Nodes": template.JS(nodesJSON),
		"Edges": template.JS(edgesJSON),
	})
	if err != nil {
		return "", fmt.Errorf("rendering graph html: %w", err)
	}
	return buf.String(), nil
}
