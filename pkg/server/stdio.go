package server

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"sync"

	"github.com/jason-chang/openapi-mcp/pkg/engine"
	"github.com/jason-chang/openapi-mcp/pkg/examples"
	"github.com/jason-chang/openapi-mcp/pkg/resources"
	"github.com/jason-chang/openapi-mcp/pkg/search"
)

// stdioRequest is one newline-delimited JSON request.
type stdioRequest struct {
	ID string `json:"id,omitempty"`
	Op string `json:"op"`

	URI     string       `json:"uri,omitempty"`
	Format  string       `json:"format,omitempty"`
	Query   search.Query `json:"query,omitempty"`
	Model   string       `json:"model,omitempty"`
	Path    string       `json:"path,omitempty"`
	Method  string       `json:"method,omitempty"`
	Formats []string     `json:"formats,omitempty"`
	Scope   string       `json:"scope,omitempty"`
}

// stdioResponse mirrors the HTTP envelope on the stdio transport.
type stdioResponse struct {
	ID     string      `json:"id,omitempty"`
	OK     bool        `json:"ok"`
	Result any         `json:"result,omitempty"`
	Error  *stdioError `json:"error,omitempty"`
}

type stdioError struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// StdioServer serves engine operations over newline-delimited JSON, one
// request per line on in and one response per line on out.
type StdioServer struct {
	engine *engine.Engine
	reload ReloadFunc

	mu sync.Mutex // serializes writes to out
}

func NewStdioServer(eng *engine.Engine, reload ReloadFunc) *StdioServer {
	return &StdioServer{engine: eng, reload: reload}
}

// Serve reads requests until in is exhausted or ctx is cancelled. Requests
// are handled concurrently; the engine applies its own concurrency limits.
func (s *StdioServer) Serve(ctx context.Context, in io.Reader, out io.Writer) error {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	var wg sync.WaitGroup
	for scanner.Scan() {
		if ctx.Err() != nil {
			break
		}
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var req stdioRequest
		if err := json.Unmarshal(line, &req); err != nil {
			s.write(out, stdioResponse{OK: false, Error: &stdioError{
				Kind:    string(engine.KindInvalidQuery),
				Message: "invalid request: " + err.Error(),
			}})
			continue
		}

		wg.Add(1)
		go func(req stdioRequest) {
			defer wg.Done()
			s.write(out, s.handle(ctx, req))
		}(req)
	}
	wg.Wait()

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading stdio requests: %w", err)
	}
	return ctx.Err()
}

func (s *StdioServer) handle(ctx context.Context, req stdioRequest) stdioResponse {
	var (
		result any
		err    error
	)
	switch req.Op {
	case "resource":
		var payload *resources.Payload
		payload, err = s.engine.ResolveResource(ctx, req.URI)
		switch {
		case err != nil:
		case req.Format != "":
			result, err = resources.Render(payload, req.Format)
		default:
			result = payload
		}
	case "search":
		result, err = s.engine.Search(ctx, req.Query)
	case "examples":
		ref := examples.Ref{Model: req.Model, Path: req.Path, Method: req.Method}
		result, err = s.engine.GenerateExamples(ctx, ref, req.Formats)
	case "invalidate":
		result = map[string]any{"dropped": s.engine.Invalidate(req.Scope)}
	case "reload":
		if s.reload == nil {
			err = &engine.Error{Kind: engine.KindInternal, Message: "reload is not configured"}
		} else {
			result, err = s.reload(ctx)
		}
	case "stats":
		result = s.engine.CacheStats()
	default:
		err = &engine.Error{Kind: engine.KindInvalidQuery, Message: fmt.Sprintf("unknown op %q", req.Op)}
	}

	if err != nil {
		return stdioResponse{ID: req.ID, OK: false, Error: &stdioError{
			Kind:    string(engine.KindOf(err)),
			Message: err.Error(),
		}}
	}
	return stdioResponse{ID: req.ID, OK: true, Result: result}
}

func (s *StdioServer) write(out io.Writer, resp stdioResponse) {
	data, err := json.Marshal(resp)
	if err != nil {
		log.Printf("Failed to encode stdio response: %v", err)
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := out.Write(append(data, '\n')); err != nil {
		log.Printf("Failed to write stdio response: %v", err)
	}
}
