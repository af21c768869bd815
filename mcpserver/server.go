// Package mcpserver exposes a kgchat engine over the Model Context Protocol:
// conversations, chat and graph operations become tools, and conversation
// graphs become resources.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/brunobiangulo/kgchat"
	"github.com/brunobiangulo/kgchat/kg"
)

const (
	conversationsURI = "kgchat://conversations"
	graphURIPrefix   = "kgchat://conversations/"
	graphURISuffix   = "/graph"
)

// Server adapts a kgchat engine to MCP.
type Server struct {
	mcpServer *server.MCPServer
	engine    kgchat.Engine
}

// New creates an MCP server backed by engine.
func New(engine kgchat.Engine, version string) *Server {
	s := &Server{
		mcpServer: server.NewMCPServer(
			"kgchat",
			version,
			server.WithToolCapabilities(false),
			server.WithResourceCapabilities(false, false),
		),
		engine: engine,
	}
	s.registerResources()
	s.registerTools()
	return s
}

// Serve runs the server on stdio until stdin closes.
func (s *Server) Serve() error {
	return server.ServeStdio(s.mcpServer)
}

// --- Resources ---

func (s *Server) registerResources() {
	s.mcpServer.AddResource(mcp.NewResource(
		conversationsURI,
		"Conversations",
		mcp.WithResourceDescription("Every knowledge graph conversation with its ontology and edge count"),
		mcp.WithMIMEType("application/json"),
	), s.handleReadConversations)

	s.mcpServer.AddResourceTemplate(mcp.NewResourceTemplate(
		graphURIPrefix+"{id}"+graphURISuffix,
		"Conversation graph",
		mcp.WithTemplateDescription("The knowledge graph of a conversation as {\"edges\": [...]}"),
		mcp.WithTemplateMIMEType("application/json"),
	), s.handleReadGraph)
}

// --- Tools ---

func (s *Server) registerTools() {
	convID := mcp.WithString("conversation_id", mcp.Required(), mcp.Description("Conversation ID"))

	s.mcpServer.AddTool(mcp.NewTool(
		"create_conversation",
		mcp.WithDescription("Start a knowledge graph conversation with the default ontology."),
		mcp.WithString("name", mcp.Description("Optional display name")),
	), s.handleCreateConversation)

	s.mcpServer.AddTool(mcp.NewTool(
		"chat",
		mcp.WithDescription("Send a message. Text is turned into graph edges, questions about the graph are answered by exploring it."),
		convID,
		mcp.WithString("query", mcp.Required(), mcp.Description("The user message")),
	), s.handleChat)

	s.mcpServer.AddTool(mcp.NewTool(
		"build_graph",
		mcp.WithDescription("Extract edges from text without routing the message."),
		convID,
		mcp.WithString("text", mcp.Required(), mcp.Description("Text to extract entities and relationships from")),
	), s.handleBuildGraph)

	s.mcpServer.AddTool(mcp.NewTool(
		"explore_node",
		mcp.WithDescription("List the relationships of a node, by exact name."),
		convID,
		mcp.WithString("name", mcp.Required(), mcp.Description("Node name")),
	), s.handleExploreNode)

	s.mcpServer.AddTool(mcp.NewTool(
		"search_nodes",
		mcp.WithDescription("Find the nodes whose names are semantically closest to a query."),
		convID,
		mcp.WithString("query", mcp.Required(), mcp.Description("Search text")),
		mcp.WithNumber("k", mcp.Description("Number of results (default 5)")),
	), s.handleSearchNodes)

	s.mcpServer.AddTool(mcp.NewTool(
		"add_label",
		mcp.WithDescription("Add an entity label to the conversation ontology."),
		convID,
		mcp.WithString("name", mcp.Required(), mcp.Description("Label name")),
		mcp.WithString("description", mcp.Description("Optional label description")),
	), s.handleAddLabel)

	s.mcpServer.AddTool(mcp.NewTool(
		"remove_label",
		mcp.WithDescription("Remove an entity label from the conversation ontology."),
		convID,
		mcp.WithString("name", mcp.Required(), mcp.Description("Label name")),
	), s.handleRemoveLabel)

	s.mcpServer.AddTool(mcp.NewTool(
		"add_relationship",
		mcp.WithDescription("Add a relationship type to the conversation ontology."),
		convID,
		mcp.WithString("relationship", mcp.Required(), mcp.Description("Relationship type")),
	), s.handleAddRelationship)

	s.mcpServer.AddTool(mcp.NewTool(
		"remove_relationship",
		mcp.WithDescription("Remove a relationship type from the conversation ontology."),
		convID,
		mcp.WithString("relationship", mcp.Required(), mcp.Description("Relationship type")),
	), s.handleRemoveRelationship)
}

// --- Resource handlers ---

func (s *Server) handleReadConversations(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	list, err := s.engine.ListConversations(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing conversations: %w", err)
	}
	if list == nil {
		list = []kgchat.Conversation{}
	}
	return jsonResource(request.Params.URI, list)
}

func (s *Server) handleReadGraph(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	id, ok := graphID(request.Params.URI)
	if !ok {
		return nil, fmt.Errorf("not a graph resource: %s", request.Params.URI)
	}
	data, err := s.engine.ExportGraph(ctx, id)
	if err != nil {
		return nil, err
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      request.Params.URI,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}

// graphID extracts the conversation ID from kgchat://conversations/{id}/graph.
func graphID(uri string) (string, bool) {
	if !strings.HasPrefix(uri, graphURIPrefix) || !strings.HasSuffix(uri, graphURISuffix) {
		return "", false
	}
	id := strings.TrimSuffix(strings.TrimPrefix(uri, graphURIPrefix), graphURISuffix)
	return id, id != "" && !strings.Contains(id, "/")
}

func jsonResource(uri string, v any) ([]mcp.ResourceContents, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding resource: %w", err)
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{URI: uri, MIMEType: "application/json", Text: string(data)},
	}, nil
}

// --- Tool handlers ---

func (s *Server) handleCreateConversation(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	c, err := s.engine.NewConversation(ctx, request.GetString("name", ""), nil)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(c)
}

func (s *Server) handleChat(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, query, errResult := requireTwo(request, "conversation_id", "query")
	if errResult != nil {
		return errResult, nil
	}
	reply, err := s.engine.Chat(ctx, id, query)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(reply.Generation), nil
}

func (s *Server) handleBuildGraph(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, text, errResult := requireTwo(request, "conversation_id", "text")
	if errResult != nil {
		return errResult, nil
	}
	reply, err := s.engine.BuildGraph(ctx, id, []string{text})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("%s (%d edges added)", reply.Generation, reply.EdgesAdded)), nil
}

func (s *Server) handleExploreNode(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, name, errResult := requireTwo(request, "conversation_id", "name")
	if errResult != nil {
		return errResult, nil
	}
	rels, err := s.engine.ExploreNode(ctx, id, name)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(strings.Join(rels, "\n")), nil
}

func (s *Server) handleSearchNodes(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, query, errResult := requireTwo(request, "conversation_id", "query")
	if errResult != nil {
		return errResult, nil
	}
	matches, err := s.engine.SearchNodes(ctx, id, query, request.GetInt("k", 5))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(matches)
}

func (s *Server) handleAddLabel(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, name, errResult := requireTwo(request, "conversation_id", "name")
	if errResult != nil {
		return errResult, nil
	}
	o, err := s.engine.AddLabel(ctx, id, kg.Label{Name: name, Description: request.GetString("description", "")})
	return ontologyResult(o, err)
}

func (s *Server) handleRemoveLabel(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, name, errResult := requireTwo(request, "conversation_id", "name")
	if errResult != nil {
		return errResult, nil
	}
	return ontologyResult(s.engine.RemoveLabel(ctx, id, name))
}

func (s *Server) handleAddRelationship(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, rel, errResult := requireTwo(request, "conversation_id", "relationship")
	if errResult != nil {
		return errResult, nil
	}
	return ontologyResult(s.engine.AddRelationship(ctx, id, rel))
}

func (s *Server) handleRemoveRelationship(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, rel, errResult := requireTwo(request, "conversation_id", "relationship")
	if errResult != nil {
		return errResult, nil
	}
	return ontologyResult(s.engine.RemoveRelationship(ctx, id, rel))
}

func requireTwo(request mcp.CallToolRequest, a, b string) (string, string, *mcp.CallToolResult) {
	va, err := request.RequireString(a)
	if err != nil {
		return "", "", mcp.NewToolResultError(err.Error())
	}
	vb, err := request.RequireString(b)
	if err != nil {
		return "", "", mcp.NewToolResultError(err.Error())
	}
	return va, vb, nil
}

func ontologyResult(o kg.Ontology, err error) (*mcp.CallToolResult, error) {
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(o.PromptString()), nil
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding result: %w", err)
	}
	return mcp.NewToolResultText(string(data)), nil
}
