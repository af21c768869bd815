package kg

import (
	"encoding/json"
	"reflect"
	"sort"
	"strings"
	"testing"
)

func edge(l1, n1, l2, n2, rel string) Edge {
	return Edge{Node1: Node{Label: l1, Name: n1}, Node2: Node{Label: l2, Name: n2}, Relationship: rel}
}

func TestMergeAppendsInOrder(t *testing.T) {
	g := NewGraph(
		edge("Person", "Alice", "Place", "Rome", "lives in"),
		edge("Person", "Bob", "Place", "Milan", "works in"),
	)
	h := NewGraph(
		edge("Person", "Alice", "Person", "Bob", "knows"),
		edge("Person", "Alice", "Place", "Rome", "lives in"),
	)

	g.Merge(h)

	want := []Edge{
		edge("Person", "Alice", "Place", "Rome", "lives in"),
		edge("Person", "Bob", "Place", "Milan", "works in"),
		edge("Person", "Alice", "Person", "Bob", "knows"),
		edge("Person", "Alice", "Place", "Rome", "lives in"),
	}
	if got := g.Edges(); !reflect.DeepEqual(got, want) {
		t.Errorf("Edges() = %v, want %v", got, want)
	}
	if h.Len() != 2 {
		t.Errorf("merge mutated its argument: len = %d", h.Len())
	}
}

func TestMergeEmptyIsNoop(t *testing.T) {
	g := NewGraph(edge("Person", "Alice", "Place", "Rome", "lives in"))
	g.Merge(NewGraph())
	g.Merge(nil)
	if g.Len() != 1 {
		t.Errorf("Len() = %d, want 1", g.Len())
	}
}

func TestMergeIntoNilGraph(t *testing.T) {
	var g *Graph
	g.Merge(nil)
	g.Merge(NewGraph())
	if g.Len() != 0 {
		t.Errorf("Len() = %d, want 0", g.Len())
	}

	defer func() {
		if r := recover(); r == nil {
			t.Error("merging edges into a nil graph did not panic")
		}
	}()
	g.Merge(NewGraph(edge("Person", "Alice", "Place", "Rome", "lives in")))
}

func TestMergeNodeNamesUnion(t *testing.T) {
	tests := []struct {
		name string
		g, h []Edge
	}{
		{
			name: "disjoint",
			g:    []Edge{edge("Person", "Alice", "Place", "Rome", "lives in")},
			h:    []Edge{edge("Person", "Bob", "Place", "Milan", "works in")},
		},
		{
			name: "overlapping names with different labels",
			g:    []Edge{edge("Person", "Paris", "Place", "Rome", "visited")},
			h:    []Edge{edge("Place", "Paris", "Place", "Lyon", "near")},
		},
		{
			name: "left empty",
			h:    []Edge{edge("Person", "Bob", "Place", "Milan", "works in")},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, h := NewGraph(tt.g...), NewGraph(tt.h...)
			union := map[string]bool{}
			for _, x := range []*Graph{g, h} {
				if x.IsEmpty() {
					continue
				}
				for _, n := range x.NodeNames() {
					union[n] = true
				}
			}
			var want []string
			for n := range union {
				want = append(want, n)
			}
			sort.Strings(want)

			g.Merge(h)
			if got := g.NodeNames(); !reflect.DeepEqual(got, want) {
				t.Errorf("NodeNames() = %v, want %v", got, want)
			}
		})
	}
}

func TestNodeNamesEmptySentinel(t *testing.T) {
	got := NewGraph().NodeNames()
	if len(got) != 1 || got[0] != EmptyGraphSentinel {
		t.Errorf("NodeNames() on empty graph = %v, want [%q]", got, EmptyGraphSentinel)
	}
}

func TestRelationshipsOf(t *testing.T) {
	g := NewGraph(edge("Person", "Alice", "Place", "Rome", "lives in"))

	got := g.RelationshipsOf("Alice")
	if len(got) != 1 {
		t.Fatalf("RelationshipsOf(Alice) = %v, want one entry", got)
	}
	for _, part := range []string{"Alice", "Person", "Rome", "Place", "lives in"} {
		if !strings.Contains(got[0], part) {
			t.Errorf("relationship %q does not mention %q", got[0], part)
		}
	}
	if want := "Alice (Person) - Rome (Place) -> lives in"; got[0] != want {
		t.Errorf("relationship = %q, want %q", got[0], want)
	}

	missing := g.RelationshipsOf("Bob")
	if len(missing) != 1 || missing[0] != NotPresentMessage("Bob") {
		t.Errorf("RelationshipsOf(Bob) = %v, want not-present sentinel", missing)
	}
}

func TestRelationshipsOfExactMatchOrder(t *testing.T) {
	g := NewGraph(
		edge("Person", "Alice", "Place", "Rome", "lives in"),
		edge("Person", "Alicia", "Place", "Rome", "lives in"),
		edge("Person", "Bob", "Person", "Alice", "knows"),
	)
	got := g.RelationshipsOf("Alice")
	want := []string{
		"Alice (Person) - Rome (Place) -> lives in",
		"Bob (Person) - Alice (Person) -> knows",
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("RelationshipsOf(Alice) = %v, want %v", got, want)
	}
}

func TestGraphJSONRoundTrip(t *testing.T) {
	tests := []struct {
		name  string
		edges []Edge
	}{
		{name: "empty"},
		{
			name: "duplicates preserved in order",
			edges: []Edge{
				edge("Person", "Alice", "Place", "Rome", "lives in"),
				edge("Person", "Alice", "Place", "Rome", "lives in"),
				edge("Azienda", "Medicolavoro.org", "Persona", "Stefano", "qualifica le richieste"),
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := NewGraph(tt.edges...)
			data, err := json.Marshal(g)
			if err != nil {
				t.Fatalf("marshal: %v", err)
			}
			back, err := Decode(data)
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			if back.Len() != g.Len() {
				t.Fatalf("Len() = %d, want %d", back.Len(), g.Len())
			}
			for i, e := range back.Edges() {
				if e != tt.edges[i] {
					t.Errorf("edge %d = %v, want %v", i, e, tt.edges[i])
				}
			}
		})
	}
}

func TestGraphJSONShape(t *testing.T) {
	data, err := json.Marshal(NewGraph(edge("Person", "Alice", "Place", "Rome", "lives in")))
	if err != nil {
		t.Fatal(err)
	}
	want := `{"edges":[{"node_1":{"label":"Person","name":"Alice"},"node_2":{"label":"Place","name":"Rome"},"relationship":"lives in"}]}`
	if string(data) != want {
		t.Errorf("json = %s, want %s", data, want)
	}

	empty, _ := json.Marshal(NewGraph())
	if string(empty) != `{"edges":[]}` {
		t.Errorf("empty graph json = %s", empty)
	}
}

func TestDecodeRejectsInvalid(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"not json", `{edges`},
		{"missing name", `{"edges":[{"node_1":{"label":"Person","name":""},"node_2":{"label":"Place","name":"Rome"},"relationship":"x"}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Decode([]byte(tt.input)); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestNodesFirstSeen(t *testing.T) {
	g := NewGraph(
		edge("Person", "Alice", "Place", "Rome", "lives in"),
		edge("Person", "Bob", "Person", "Alice", "knows"),
	)
	want := []Node{{"Person", "Alice"}, {"Place", "Rome"}, {"Person", "Bob"}}
	if got := g.Nodes(); !reflect.DeepEqual(got, want) {
		t.Errorf("Nodes() = %v, want %v", got, want)
	}
}
