// Package ollama is a small HTTP client for an Ollama-compatible model server:
// liveness check, model listing and streaming generation.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"llmgate/pkg/types"
)

// maxErrorBody bounds how much of an error response is kept for diagnostics.
const maxErrorBody = 4096

// Client talks to a running model server over HTTP.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient constructs a client for baseURL (e.g. http://127.0.0.1:11434).
func NewClient(baseURL string, connectTimeout time.Duration) *Client {
	if connectTimeout <= 0 {
		connectTimeout = 2 * time.Second
	}
	tr := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   connectTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		// NDJSON must arrive uncompressed to be relayed chunk by chunk.
		DisableCompression: true,
	}
	// Timeout=0: every call carries its own context deadline. Streams may run for minutes.
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Transport: tr, Timeout: 0},
	}
}

// BaseURL returns the model server base URL without trailing slash.
func (c *Client) BaseURL() string { return c.baseURL }

// Ping performs the lightweight liveness check (GET /).
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/", nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer drainAndClose(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &StatusError{Status: resp.StatusCode}
	}
	return nil
}

// ListModels retrieves installed models from /api/tags.
// A server with no models yields an empty, non-nil slice.
func (c *Client) ListModels(ctx context.Context) ([]types.ModelDescriptor, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/tags", nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer drainAndClose(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, statusError(resp)
	}
	var out ListModelsResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode model list: %w", err)
	}
	models := make([]types.ModelDescriptor, 0, len(out.Models))
	for _, m := range out.Models {
		models = append(models, types.ModelDescriptor{
			Name:          m.Name,
			Size:          m.Size,
			Modified:      m.ModifiedAt,
			Digest:        m.Digest,
			Family:        m.Details.Family,
			ParameterSize: m.Details.ParameterSize,
			Quant:         m.Details.QuantizationLevel,
		})
	}
	return models, nil
}

// Generate opens a streaming /api/generate call. The caller owns the returned
// body and must close it; canceling ctx aborts the upstream connection.
func (c *Client) Generate(ctx context.Context, gr GenerateRequest) (io.ReadCloser, error) {
	gr.Stream = true
	body, err := json.Marshal(gr)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/x-ndjson")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer drainAndClose(resp.Body)
		return nil, statusError(resp)
	}
	return resp.Body, nil
}

func statusError(resp *http.Response) error {
	b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	msg := strings.TrimSpace(string(b))
	// Ollama reports {"error":"..."}; prefer the message when present.
	var oe struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(b, &oe) == nil && oe.Error != "" {
		msg = oe.Error
	}
	return &StatusError{Status: resp.StatusCode, Body: msg}
}

func drainAndClose(r io.ReadCloser) {
	_, _ = io.Copy(io.Discard, io.LimitReader(r, maxErrorBody))
	_ = r.Close()
}
