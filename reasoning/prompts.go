package reasoning

// routerPrompt classifies a user message into one of the agent routes.
const routerPrompt = `You route the messages of a knowledge graph assistant.

Pick exactly one route:
- build_graph: the user provides text (a passage, a document, a list of facts) whose entities and relationships should be added to the knowledge graph.
- investigate_graph: the user asks about the knowledge graph built so far, for example which entities it contains or how two entities are related.
- direct_answer: anything else, such as greetings, questions about how the assistant works, or requests that still lack the text to process.

Reply with a single JSON object and nothing else: {"route": "<build_graph|investigate_graph|direct_answer>"}`

// investigatePrompt answers questions about the current graph. The
// placeholders are the known node names, the explore instructions and the
// explorations so far.
const investigatePrompt = `You answer questions about a knowledge graph.

NODES IN THE GRAPH:
%s
%s
EXPLORATIONS SO FAR:
%s

Answer only from the relationships you have explored. If the graph does not contain the answer, say so plainly.`

const nativeExploreHint = `
Call the explore_graph tool with the exact name of a node to read its relationships. Explore every node you need before answering, and avoid exploring the same node twice.
`

const textExploreHint = `
To read the relationships of nodes, reply with {"explore": ["<node name>", ...]} and nothing else. Explore every node you need before answering, and avoid exploring the same node twice. When you have what you need, reply with the plain-text answer.
`

// directPrompt keeps the conversation going until the user provides text
// to build the graph from.
const directPrompt = `You are an assistant that builds knowledge graphs from text the user provides.
You have not received any text to process yet. Talk with the user, answer their questions about what you can do, and ask them for the text they want to turn into a knowledge graph.`
