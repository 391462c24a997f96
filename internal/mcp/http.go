package mcp

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/mpetralia/anima/internal/httpkit"
)

// HTTPConfig configures an HTTP transport for a remote tool server.
// Each JSON-RPC request is an HTTP POST; the response arrives either as
// a plain JSON body or as a server-sent event stream, depending on what
// the server speaks.
type HTTPConfig struct {
	URL string

	// Headers are sent with every request (e.g. Authorization).
	Headers map[string]string

	// SSE requests event-stream responses up front, for servers that
	// only speak SSE.
	SSE bool

	Logger *slog.Logger
}

// HTTPTransport communicates with a tool server over streamable HTTP.
type HTTPTransport struct {
	url        string
	headers    map[string]string
	sse        bool
	httpClient *http.Client
	logger     *slog.Logger

	mu        sync.RWMutex
	sessionID string // Mcp-Session header for session affinity
}

// NewHTTPTransport creates an HTTP transport for the given config.
func NewHTTPTransport(cfg HTTPConfig) *HTTPTransport {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPTransport{
		url:        cfg.URL,
		headers:    cfg.Headers,
		sse:        cfg.SSE,
		httpClient: httpkit.NewClient(),
		logger:     logger,
	}
}

// Send posts a JSON-RPC request and decodes the response from either a
// JSON body or an SSE stream.
func (t *HTTPTransport) Send(ctx context.Context, req *Request) (*Response, error) {
	httpResp, err := t.post(ctx, req)
	if err != nil {
		return nil, err
	}
	defer httpkit.DrainAndClose(httpResp.Body, 1<<20)

	if sid := httpResp.Header.Get("Mcp-Session"); sid != "" {
		t.mu.Lock()
		t.sessionID = sid
		t.mu.Unlock()
	}

	if httpResp.StatusCode != http.StatusOK {
		errBody := httpkit.ReadErrorBody(httpResp.Body, 1<<20)
		return nil, fmt.Errorf("tool server returned %d: %s", httpResp.StatusCode, errBody)
	}

	var body []byte
	if strings.HasPrefix(httpResp.Header.Get("Content-Type"), "text/event-stream") {
		body, err = readSSEData(httpResp.Body, req.ID)
	} else {
		body, err = io.ReadAll(io.LimitReader(httpResp.Body, 10<<20))
	}
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	var resp Response
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}
	return &resp, nil
}

// Notify posts a JSON-RPC notification. 200 and 202 are accepted.
func (t *HTTPTransport) Notify(ctx context.Context, notif *Notification) error {
	httpResp, err := t.post(ctx, notif)
	if err != nil {
		return err
	}
	defer httpkit.DrainAndClose(httpResp.Body, 1<<20)

	if httpResp.StatusCode != http.StatusOK && httpResp.StatusCode != http.StatusAccepted {
		errBody := httpkit.ReadErrorBody(httpResp.Body, 1<<20)
		return fmt.Errorf("tool server returned %d for notification: %s", httpResp.StatusCode, errBody)
	}
	return nil
}

// Close is a no-op; the shared HTTP client manages its connection pool.
func (t *HTTPTransport) Close() error {
	return nil
}

func (t *HTTPTransport) post(ctx context.Context, payload any) (*http.Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, t.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create HTTP request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	if t.sse {
		httpReq.Header.Set("Accept", "text/event-stream")
	} else {
		httpReq.Header.Set("Accept", "application/json, text/event-stream")
	}

	for k, v := range t.headers {
		httpReq.Header.Set(k, v)
	}

	t.mu.RLock()
	if t.sessionID != "" {
		httpReq.Header.Set("Mcp-Session", t.sessionID)
	}
	t.mu.RUnlock()

	httpResp, err := t.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("HTTP request to %s: %w", t.url, err)
	}
	return httpResp, nil
}

// readSSEData scans a server-sent event stream for the data payload
// carrying the response to request id. Events whose payload parses as a
// different response are skipped.
func readSSEData(r io.Reader, id int64) ([]byte, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 10<<20)

	var data bytes.Buffer
	flush := func() []byte {
		if data.Len() == 0 {
			return nil
		}
		payload := data.Bytes()
		var resp Response
		if err := json.Unmarshal(payload, &resp); err == nil && resp.ID == id {
			out := make([]byte, len(payload))
			copy(out, payload)
			return out
		}
		data.Reset()
		return nil
	}

	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "data:"):
			data.WriteString(strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		case line == "":
			if out := flush(); out != nil {
				return out, nil
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if out := flush(); out != nil {
		return out, nil
	}
	return nil, fmt.Errorf("event stream ended without a response for id %d", id)
}
