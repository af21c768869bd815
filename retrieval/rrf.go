// Package retrieval combines ranked node lists from independent search
// methods into one ranking.
package retrieval

import (
	"sort"

	"github.com/brunobiangulo/kgchat/store"
)

const rrfK = 60 // RRF constant (standard value from literature)

// Method names reported in Result.Methods.
const (
	MethodVector  = "vector"
	MethodLexical = "lexical"
)

// Ranking is one method's results, best first.
type Ranking struct {
	Method  string
	Weight  float64
	Results []store.NodeMatch
}

// Result is a fused node with the methods that contributed to it.
type Result struct {
	store.NodeMatch
	Methods []string `json:"methods"`
}

// Fuse implements Reciprocal Rank Fusion: a node's score is
// sum(weight_i / (k + rank_i)) over the rankings it appears in. Nodes are
// keyed by ID. Ties keep first-seen order.
func Fuse(maxResults int, rankings ...Ranking) []Result {
	type fusedEntry struct {
		result Result
		score  float64
		order  int
	}

	fused := make(map[int64]*fusedEntry)
	for _, r := range rankings {
		for rank, m := range r.Results {
			entry, ok := fused[m.ID]
			if !ok {
				entry = &fusedEntry{result: Result{NodeMatch: m}, order: len(fused)}
				fused[m.ID] = entry
			}
			entry.score += r.Weight / float64(rrfK+rank+1)
			entry.result.Methods = append(entry.result.Methods, r.Method)
		}
	}

	entries := make([]*fusedEntry, 0, len(fused))
	for _, e := range fused {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].score != entries[j].score {
			return entries[i].score > entries[j].score
		}
		return entries[i].order < entries[j].order
	})

	if maxResults > 0 && len(entries) > maxResults {
		entries = entries[:maxResults]
	}

	results := make([]Result, len(entries))
	for i, e := range entries {
		results[i] = e.result
		results[i].Score = e.score
	}
	return results
}
