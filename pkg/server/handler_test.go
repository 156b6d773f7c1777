package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jason-chang/openapi-mcp/pkg/engine"
)

func testEngine(t *testing.T) *engine.Engine {
	t.Helper()
	eng := engine.New(engine.Config{CacheTTL: time.Minute})
	t.Cleanup(eng.Close)
	require.NoError(t, eng.Refresh(context.Background(), map[string]any{
		"openapi": "3.0.0",
		"info":    map[string]any{"title": "Orders API", "version": "1.0.0"},
		"paths": map[string]any{
			"/orders": map[string]any{
				"get": map[string]any{
					"operationId": "listOrders",
					"summary":     "List orders",
					"tags":        []any{"orders"},
				},
			},
		},
		"components": map[string]any{
			"schemas": map[string]any{
				"Order": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"id": map[string]any{"type": "string"},
					},
				},
			},
		},
	}))
	return eng
}

func doRequest(t *testing.T, h *Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var envelope map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	return envelope
}

func TestHealth(t *testing.T) {
	h := NewHandler(testEngine(t), nil)
	rec := doRequest(t, h, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)

	envelope := decodeEnvelope(t, rec)
	require.Equal(t, true, envelope["success"])
	data := envelope["data"].(map[string]any)
	require.Equal(t, "healthy", data["status"])
}

func TestResourceEndpoint(t *testing.T) {
	h := NewHandler(testEngine(t), nil)

	rec := doRequest(t, h, http.MethodGet, "/resource?uri=openapi://models/Order", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	rec = doRequest(t, h, http.MethodGet, "/resource", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(t, h, http.MethodGet, "/resource?uri=openapi://models/Ghost", "")
	require.Equal(t, http.StatusNotFound, rec.Code)
	envelope := decodeEnvelope(t, rec)
	require.Equal(t, false, envelope["success"])
	require.Equal(t, "not_found", envelope["kind"])
}

func TestResourceFormats(t *testing.T) {
	h := NewHandler(testEngine(t), nil)

	rec := doRequest(t, h, http.MethodGet, "/resource?uri=openapi://models/Order&format=markdown", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "text/markdown", rec.Header().Get("Content-Type"))
	require.Contains(t, rec.Body.String(), "**name**: Order")

	rec = doRequest(t, h, http.MethodGet, "/resource?uri=openapi://models/Order&format=plain", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "text/plain", rec.Header().Get("Content-Type"))

	rec = doRequest(t, h, http.MethodGet, "/resource?uri=openapi://models/Order&format=toml", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	envelope := decodeEnvelope(t, rec)
	require.Equal(t, "invalid_query", envelope["kind"])
}

func TestSearchEndpoint(t *testing.T) {
	h := NewHandler(testEngine(t), nil)

	rec := doRequest(t, h, http.MethodPost, "/tools/search", `{"text":"orders"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	envelope := decodeEnvelope(t, rec)
	data := envelope["data"].(map[string]any)
	require.Equal(t, float64(1), data["total"])

	rec = doRequest(t, h, http.MethodPost, "/tools/search", `{"path_pattern":"["}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(t, h, http.MethodGet, "/tools/search", "")
	require.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestExamplesEndpoint(t *testing.T) {
	h := NewHandler(testEngine(t), nil)

	rec := doRequest(t, h, http.MethodPost, "/tools/examples", `{"model":"Order","formats":["json"]}`)
	require.Equal(t, http.StatusOK, rec.Code)
	envelope := decodeEnvelope(t, rec)
	data := envelope["data"].(map[string]any)
	rendered := data["examples"].(map[string]any)
	require.Contains(t, rendered["json"], "id")

	rec = doRequest(t, h, http.MethodPost, "/tools/examples", `{"model":"Ghost"}`)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestReloadEndpoint(t *testing.T) {
	eng := testEngine(t)

	h := NewHandler(eng, nil)
	rec := doRequest(t, h, http.MethodPost, "/reload", "")
	require.Equal(t, http.StatusNotImplemented, rec.Code)

	h = NewHandler(eng, func(ctx context.Context) (map[string]any, error) {
		return map[string]any{"source": "test"}, nil
	})
	rec = doRequest(t, h, http.MethodPost, "/reload", "")
	require.Equal(t, http.StatusOK, rec.Code)

	h = NewHandler(eng, func(ctx context.Context) (map[string]any, error) {
		return nil, errors.New("upstream unreachable")
	})
	rec = doRequest(t, h, http.MethodPost, "/reload", "")
	require.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestInvalidateAndStats(t *testing.T) {
	h := NewHandler(testEngine(t), nil)

	rec := doRequest(t, h, http.MethodPost, "/cache/invalidate", `{"scope":"all"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	envelope := decodeEnvelope(t, rec)
	data := envelope["data"].(map[string]any)
	require.Equal(t, float64(-1), data["dropped"])

	rec = doRequest(t, h, http.MethodGet, "/stats", "")
	require.Equal(t, http.StatusOK, rec.Code)
	envelope = decodeEnvelope(t, rec)
	data = envelope["data"].(map[string]any)
	require.Contains(t, data, "cache")
	require.Contains(t, data, "index")
}

func TestStatusForError(t *testing.T) {
	tests := []struct {
		kind   engine.Kind
		status int
	}{
		{engine.KindNotFound, http.StatusNotFound},
		{engine.KindUnknownModel, http.StatusNotFound},
		{engine.KindUnknownEndpoint, http.StatusNotFound},
		{engine.KindInvalidQuery, http.StatusBadRequest},
		{engine.KindTimeout, http.StatusGatewayTimeout},
		{engine.KindBackpressure, http.StatusTooManyRequests},
		{engine.KindIndexBuild, http.StatusBadGateway},
		{engine.KindUnresolvableReference, http.StatusBadGateway},
		{engine.KindInternal, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			err := &engine.Error{Kind: tt.kind, Message: "x"}
			require.Equal(t, tt.status, statusForError(err))
		})
	}
}
