package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/brunobiangulo/kgchat"
	"github.com/brunobiangulo/kgchat/agent"
	"github.com/brunobiangulo/kgchat/kg"
)

type handler struct {
	engine kgchat.Engine
}

func newHandler(e kgchat.Engine) *handler {
	return &handler{engine: e}
}

func (h *handler) routes(mux *http.ServeMux) {
	mux.HandleFunc("POST /conversations", h.handleCreateConversation)
	mux.HandleFunc("GET /conversations", h.handleListConversations)
	mux.HandleFunc("GET /conversations/{id}", h.handleGetConversation)
	mux.HandleFunc("DELETE /conversations/{id}", h.handleDeleteConversation)
	mux.HandleFunc("POST /conversations/{id}/chat", h.handleChat)
	mux.HandleFunc("GET /conversations/{id}/messages", h.handleMessages)
	mux.HandleFunc("GET /conversations/{id}/runs", h.handleRuns)
	mux.HandleFunc("GET /conversations/{id}/ontology", h.handleGetOntology)
	mux.HandleFunc("POST /conversations/{id}/ontology/labels", h.handleAddLabel)
	// Names that contain "/" can only be passed as query parameters.
	mux.HandleFunc("DELETE /conversations/{id}/ontology/labels", h.handleRemoveLabel)
	mux.HandleFunc("DELETE /conversations/{id}/ontology/labels/{name}", h.handleRemoveLabel)
	mux.HandleFunc("POST /conversations/{id}/ontology/relationships", h.handleAddRelationship)
	mux.HandleFunc("DELETE /conversations/{id}/ontology/relationships", h.handleRemoveRelationship)
	mux.HandleFunc("DELETE /conversations/{id}/ontology/relationships/{relationship}", h.handleRemoveRelationship)
	mux.HandleFunc("GET /conversations/{id}/graph", h.handleExportGraph)
	mux.HandleFunc("PUT /conversations/{id}/graph", h.handleImportGraph)
	mux.HandleFunc("GET /conversations/{id}/graph.html", h.handleRenderGraph)
	// /nodes?name= reaches any node, including one named "search".
	mux.HandleFunc("GET /conversations/{id}/nodes", h.handleExploreNode)
	mux.HandleFunc("GET /conversations/{id}/nodes/search", h.handleSearchNodes)
	mux.HandleFunc("GET /conversations/{id}/nodes/{name}", h.handleExploreNode)
	mux.HandleFunc("POST /conversations/{id}/ingest", h.handleIngest)
	mux.HandleFunc("GET /stats", h.handleStats)
	mux.HandleFunc("GET /health", h.handleHealth)
}

// POST /conversations
func (h *handler) handleCreateConversation(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name     string       `json:"name"`
		Ontology *kg.Ontology `json:"ontology,omitempty"`
	}
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			writeError(w, http.StatusBadRequest, "invalid JSON")
			return
		}
	}
	c, err := h.engine.NewConversation(r.Context(), req.Name, req.Ontology)
	if err != nil {
		h.fail(w, "create conversation", err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

// GET /conversations
func (h *handler) handleListConversations(w http.ResponseWriter, r *http.Request) {
	list, err := h.engine.ListConversations(r.Context())
	if err != nil {
		h.fail(w, "list conversations", err)
		return
	}
	if list == nil {
		list = []kgchat.Conversation{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"conversations": list})
}

// GET /conversations/{id}
func (h *handler) handleGetConversation(w http.ResponseWriter, r *http.Request) {
	c, err := h.engine.Conversation(r.Context(), r.PathValue("id"))
	if err != nil {
		h.fail(w, "get conversation", err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// DELETE /conversations/{id}
func (h *handler) handleDeleteConversation(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.DeleteConversation(r.Context(), r.PathValue("id")); err != nil {
		h.fail(w, "delete conversation", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// POST /conversations/{id}/chat
func (h *handler) handleChat(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Minute)
	defer cancel()

	var req struct {
		Query string `json:"query"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	reply, err := h.engine.Chat(ctx, r.PathValue("id"), req.Query)
	if err != nil {
		h.fail(w, "chat", err)
		return
	}
	writeJSON(w, http.StatusOK, reply)
}

// GET /conversations/{id}/messages
func (h *handler) handleMessages(w http.ResponseWriter, r *http.Request) {
	msgs, err := h.engine.Messages(r.Context(), r.PathValue("id"))
	if err != nil {
		h.fail(w, "messages", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": msgs})
}

// GET /conversations/{id}/runs?limit=
func (h *handler) handleRuns(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit < 0 || limit > 500 {
		limit = 0 // use default
	}
	runs, err := h.engine.RunLogs(r.Context(), r.PathValue("id"), limit)
	if err != nil {
		h.fail(w, "runs", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

// GET /conversations/{id}/ontology
func (h *handler) handleGetOntology(w http.ResponseWriter, r *http.Request) {
	o, err := h.engine.Ontology(r.Context(), r.PathValue("id"))
	if err != nil {
		h.fail(w, "ontology", err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

// POST /conversations/{id}/ontology/labels
func (h *handler) handleAddLabel(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name        string `json:"name"`
		Description string `json:"description,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	o, err := h.engine.AddLabel(r.Context(), r.PathValue("id"), kg.Label{Name: req.Name, Description: req.Description})
	if err != nil {
		h.fail(w, "add label", err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

// DELETE /conversations/{id}/ontology/labels/{name}
// DELETE /conversations/{id}/ontology/labels?name=
func (h *handler) handleRemoveLabel(w http.ResponseWriter, r *http.Request) {
	name, ok := nameParam(w, r, "name")
	if !ok {
		return
	}
	o, err := h.engine.RemoveLabel(r.Context(), r.PathValue("id"), name)
	if err != nil {
		h.fail(w, "remove label", err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

// POST /conversations/{id}/ontology/relationships
func (h *handler) handleAddRelationship(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Relationship string `json:"relationship"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	o, err := h.engine.AddRelationship(r.Context(), r.PathValue("id"), req.Relationship)
	if err != nil {
		h.fail(w, "add relationship", err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

// DELETE /conversations/{id}/ontology/relationships/{relationship}
// DELETE /conversations/{id}/ontology/relationships?relationship=
func (h *handler) handleRemoveRelationship(w http.ResponseWriter, r *http.Request) {
	rel, ok := nameParam(w, r, "relationship")
	if !ok {
		return
	}
	o, err := h.engine.RemoveRelationship(r.Context(), r.PathValue("id"), rel)
	if err != nil {
		h.fail(w, "remove relationship", err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

// GET /conversations/{id}/graph
func (h *handler) handleExportGraph(w http.ResponseWriter, r *http.Request) {
	data, err := h.engine.ExportGraph(r.Context(), r.PathValue("id"))
	if err != nil {
		h.fail(w, "export graph", err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

// PUT /conversations/{id}/graph
func (h *handler) handleImportGraph(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 50<<20))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read body")
		return
	}
	g, err := h.engine.ImportGraph(r.Context(), r.PathValue("id"), data)
	if err != nil {
		h.fail(w, "import graph", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"edges": g.Len()})
}

// GET /conversations/{id}/graph.html
func (h *handler) handleRenderGraph(w http.ResponseWriter, r *http.Request) {
	page, err := h.engine.RenderGraph(r.Context(), r.PathValue("id"))
	if err != nil {
		h.fail(w, "render graph", err)
		return
	}
	if page == "" {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="knowledge_graph.html"`)
	w.WriteHeader(http.StatusOK)
	io.WriteString(w, page)
}

// GET /conversations/{id}/nodes/{name}
// GET /conversations/{id}/nodes?name=
func (h *handler) handleExploreNode(w http.ResponseWriter, r *http.Request) {
	name, ok := nameParam(w, r, "name")
	if !ok {
		return
	}
	rels, err := h.engine.ExploreNode(r.Context(), r.PathValue("id"), name)
	if err != nil {
		h.fail(w, "explore node", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"node": name, "relationships": rels})
}

// GET /conversations/{id}/nodes/search?q=&k=
func (h *handler) handleSearchNodes(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	k, _ := strconv.Atoi(r.URL.Query().Get("k"))
	if k < 0 || k > 100 {
		k = 0 // use default
	}
	matches, err := h.engine.SearchNodes(r.Context(), r.PathValue("id"), q, k)
	if err != nil {
		h.fail(w, "search nodes", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"matches": matches})
}

// POST /conversations/{id}/ingest
// Accepts multipart file upload or JSON with file path.
func (h *handler) handleIngest(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Minute)
	defer cancel()
	id := r.PathValue("id")

	// Try multipart upload first
	if err := r.ParseMultipartForm(100 << 20); err == nil { // 100MB max
		file, header, err := r.FormFile("file")
		if err == nil {
			defer file.Close()

			tmpDir, err := os.MkdirTemp("", "kgchat-ingest-")
			if err != nil {
				writeError(w, http.StatusInternalServerError, "failed to process file")
				slog.Error("creating temp dir", "error", err)
				return
			}
			defer os.RemoveAll(tmpDir)

			// Sanitise filename to prevent path traversal.
			safeName := filepath.Base(header.Filename)
			tmpPath := filepath.Join(tmpDir, safeName)
			dst, err := os.Create(tmpPath)
			if err != nil {
				writeError(w, http.StatusInternalServerError, "failed to process file")
				slog.Error("creating temp file", "error", err)
				return
			}
			if _, err := io.Copy(dst, file); err != nil {
				dst.Close()
				writeError(w, http.StatusInternalServerError, "failed to save file")
				slog.Error("saving uploaded file", "error", err)
				return
			}
			dst.Close()

			reply, err := h.engine.Ingest(ctx, id, tmpPath)
			if err != nil {
				h.fail(w, "ingest", err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"filename": safeName, "reply": reply})
			return
		}
	}

	// Try JSON body with path
	var req struct {
		Path string `json:"path"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request: expected multipart file or JSON with 'path'")
		return
	}
	if req.Path == "" {
		writeError(w, http.StatusBadRequest, "path is required")
		return
	}

	// Validate that path is a real file (prevents directory traversal probing).
	absPath, err := filepath.Abs(req.Path)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid path")
		return
	}
	info, err := os.Stat(absPath)
	if err != nil || info.IsDir() {
		writeError(w, http.StatusBadRequest, "path must be an existing file")
		return
	}

	reply, err := h.engine.Ingest(ctx, id, absPath)
	if err != nil {
		h.fail(w, "ingest", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"path": absPath, "reply": reply})
}

// GET /stats
func (h *handler) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.engine.Stats(r.Context())
	if err != nil {
		h.fail(w, "stats", err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// GET /health
func (h *handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
	})
}

// fail logs err and writes it with the status its sentinel maps to.
func (h *handler) fail(w http.ResponseWriter, op string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		slog.Error(op+" error", "error", err)
	} else {
		slog.Warn(op+" rejected", "status", status, "error", err)
	}
	writeError(w, status, err.Error())
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, kgchat.ErrConversationNotFound):
		return http.StatusNotFound
	case errors.Is(err, kgchat.ErrEmptyQuery),
		errors.Is(err, kgchat.ErrInvalidGraph),
		errors.Is(err, kgchat.ErrInvalidConfig),
		errors.Is(err, kgchat.ErrUnsupportedFormat):
		return http.StatusBadRequest
	case errors.Is(err, kgchat.ErrParsingFailed):
		return http.StatusUnprocessableEntity
	case errors.Is(err, kgchat.ErrEmbeddingUnavailable):
		return http.StatusNotImplemented
	case errors.Is(err, agent.ErrStepLimit),
		errors.Is(err, agent.ErrContractViolation),
		errors.Is(err, agent.ErrUnknownRoute):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// nameParam reads key from the path wildcard, falling back to the query
// string. It writes a 400 and reports false when both are empty.
func nameParam(w http.ResponseWriter, r *http.Request, key string) (string, bool) {
	v := r.PathValue(key)
	if v == "" {
		v = r.URL.Query().Get(key)
	}
	if v == "" {
		writeError(w, http.StatusBadRequest, key+" is required")
		return "", false
	}
	return v, true
}
