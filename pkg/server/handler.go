package server

import (
	"context"
	"encoding/json"
	"log"
	"net/http"

	"github.com/jason-chang/openapi-mcp/pkg/engine"
	"github.com/jason-chang/openapi-mcp/pkg/examples"
	"github.com/jason-chang/openapi-mcp/pkg/resources"
	"github.com/jason-chang/openapi-mcp/pkg/search"
	"github.com/jason-chang/openapi-mcp/pkg/security"
)

// ReloadFunc re-fetches the upstream document and refreshes the engine. It
// returns summary information about the loaded document.
type ReloadFunc func(ctx context.Context) (map[string]any, error)

// Handler exposes the engine over HTTP.
type Handler struct {
	engine *engine.Engine
	reload ReloadFunc
	mux    *http.ServeMux
}

// NewHandler wires the HTTP routes. reload may be nil; POST /reload then
// returns 501.
func NewHandler(eng *engine.Engine, reload ReloadFunc) *Handler {
	h := &Handler{engine: eng, reload: reload, mux: http.NewServeMux()}
	h.mux.HandleFunc("/health", h.handleHealth)
	h.mux.HandleFunc("/resource", h.handleResource)
	h.mux.HandleFunc("/tools/search", h.handleSearch)
	h.mux.HandleFunc("/tools/examples", h.handleExamples)
	h.mux.HandleFunc("/reload", h.handleReload)
	h.mux.HandleFunc("/cache/invalidate", h.handleInvalidate)
	h.mux.HandleFunc("/stats", h.handleStats)
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r.WithContext(callerContext(r)))
}

// callerContext tags the request context with the caller identity for audit
// records.
func callerContext(r *http.Request) context.Context {
	caller := r.Header.Get("X-Caller-ID")
	if caller == "" {
		caller = r.RemoteAddr
	}
	return security.WithCaller(r.Context(), caller)
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "healthy"
	if h.engine.Index() == nil {
		status = "loading"
	}
	writeSuccessResponse(w, map[string]any{
		"status":  status,
		"service": "openapi-mcp",
	})
}

func (h *Handler) handleResource(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeErrorResponse(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	uri := r.URL.Query().Get("uri")
	if uri == "" {
		writeErrorResponse(w, http.StatusBadRequest, "missing uri parameter")
		return
	}

	payload, err := h.engine.ResolveResource(r.Context(), uri)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	rendered, err := resources.Render(payload, r.URL.Query().Get("format"))
	if err != nil {
		writeEngineError(w, err)
		return
	}
	w.Header().Set("Content-Type", rendered.MIMEType)
	if _, err := w.Write([]byte(rendered.Content)); err != nil {
		log.Printf("Failed to write resource response: %v", err)
	}
}

func (h *Handler) handleSearch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeErrorResponse(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var q search.Query
	if err := json.NewDecoder(r.Body).Decode(&q); err != nil {
		writeErrorResponse(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	page, err := h.engine.Search(r.Context(), q)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeSuccessResponse(w, page)
}

// examplesRequest is the body of POST /tools/examples.
type examplesRequest struct {
	Model   string   `json:"model,omitempty"`
	Path    string   `json:"path,omitempty"`
	Method  string   `json:"method,omitempty"`
	Formats []string `json:"formats,omitempty"`
}

func (h *Handler) handleExamples(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeErrorResponse(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req examplesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorResponse(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	ref := examples.Ref{Model: req.Model, Path: req.Path, Method: req.Method}
	out, err := h.engine.GenerateExamples(r.Context(), ref, req.Formats)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeSuccessResponse(w, map[string]any{"examples": out})
}

func (h *Handler) handleReload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeErrorResponse(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if h.reload == nil {
		writeErrorResponse(w, http.StatusNotImplemented, "reload is not configured")
		return
	}

	info, err := h.reload(r.Context())
	if err != nil {
		log.Printf("Reload failed: %v", err)
		writeEngineError(w, err)
		return
	}
	log.Printf("Reload succeeded: %v", info)
	writeSuccessResponse(w, info)
}

func (h *Handler) handleInvalidate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeErrorResponse(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req struct {
		Scope string `json:"scope"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorResponse(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	dropped := h.engine.Invalidate(req.Scope)
	writeSuccessResponse(w, map[string]any{"scope": req.Scope, "dropped": dropped})
}

func (h *Handler) handleStats(w http.ResponseWriter, r *http.Request) {
	stats := map[string]any{"cache": h.engine.CacheStats()}
	if ix := h.engine.Index(); ix != nil {
		stats["index"] = map[string]any{
			"version":   ix.SourceVersion,
			"endpoints": len(ix.Endpoints),
			"models":    len(ix.Models),
			"tags":      len(ix.Tags),
		}
	}
	writeSuccessResponse(w, stats)
}

// statusForError maps engine error kinds to HTTP status codes.
func statusForError(err error) int {
	if engine.NotFound(err) {
		return http.StatusNotFound
	}
	switch engine.KindOf(err) {
	case engine.KindInvalidQuery:
		return http.StatusBadRequest
	case engine.KindTimeout:
		return http.StatusGatewayTimeout
	case engine.KindBackpressure:
		return http.StatusTooManyRequests
	case engine.KindUnresolvableReference, engine.KindIndexBuild:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeEngineError(w http.ResponseWriter, err error) {
	writeErrorKindResponse(w, statusForError(err), string(engine.KindOf(err)), err.Error())
}

func writeSuccessResponse(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	response := map[string]any{
		"success": true,
		"data":    data,
	}
	if err := json.NewEncoder(w).Encode(response); err != nil {
		log.Printf("Failed to encode response: %v", err)
	}
}

func writeErrorResponse(w http.ResponseWriter, status int, message string) {
	writeErrorKindResponse(w, status, "", message)
}

func writeErrorKindResponse(w http.ResponseWriter, status int, kind, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	response := map[string]any{
		"success": false,
		"error":   message,
	}
	if kind != "" {
		response["kind"] = kind
	}
	if err := json.NewEncoder(w).Encode(response); err != nil {
		log.Printf("Failed to encode error response: %v", err)
	}
}
