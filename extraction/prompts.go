package extraction

// buildGraphPrompt instructs the model to extract edges from the user text
// under an ontology, or to explore known nodes first. The placeholders are
// the ontology JSON, the known node names, the explorations so far and the
// explore instructions.
const buildGraphPrompt = `You build knowledge graphs from text.

ONTOLOGY:
%s

The user sends a piece of text. Extract every entity and every relationship the text states or clearly implies.
Rules:
- Use only what the text says. Do not bring in outside knowledge.
- The same pair of entities may be linked by several explicit or implied relationships; emit one edge for each.
- When the ontology lists labels, every node label must be one of them. When it lists relationships, describe edges in those terms.
- When the ontology has no labels, choose short, general labels yourself.

NODES ALREADY IN THE GRAPH:
%s

Reuse the exact name of an existing node when the text refers to the same entity.
%s
EXPLORATIONS SO FAR:
%s

OUTPUT FORMAT:
Reply with a single JSON object and nothing else:
{"edges": [
  {"node_1": {"label": "<label>", "name": "<entity name>"},
   "node_2": {"label": "<label>", "name": "<entity name>"},
   "relationship": "<a sentence or two describing how node_1 relates to node_2 in this text>"}
]}
If the text contains nothing to extract, reply {"edges": []}.`

// nativeExploreHint is used when the explore tool is advertised through
// function calling.
const nativeExploreHint = `
You may call the explore_graph tool to read the relationships of an existing node. Call it only when you cannot decide how to connect the text to the graph without it; otherwise answer with the edges directly.
`

// textExploreHint is used for providers without function calling.
const textExploreHint = `
To read the relationships of existing nodes before answering, reply instead with {"explore": ["<node name>", ...]} and nothing else. Do this only when you cannot decide how to connect the text to the graph without it. Never combine "explore" and "edges" in one reply.
`
