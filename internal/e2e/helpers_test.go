package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"llmgate/internal/assembler"
	"llmgate/internal/catalog"
	"llmgate/internal/gateway"
	"llmgate/internal/httpapi"
	"llmgate/internal/ollama"
	"llmgate/internal/streamproxy"
	"llmgate/internal/supervisor"
	"llmgate/pkg/types"
)

// fakeOllama is an Ollama-compatible model server. With hold set,
// /api/generate sends one token and then blocks until the request ends or
// release is closed.
type fakeOllama struct {
	srv     *httptest.Server
	hold    atomic.Bool
	release chan struct{}
	// ended receives once per generate request whose connection was closed
	// by the gateway while held.
	ended     chan struct{}
	generates atomic.Int32

	mu         sync.Mutex
	lastPrompt string
}

func newFakeOllama(t *testing.T, models ...string) *fakeOllama {
	t.Helper()
	f := &fakeOllama{release: make(chan struct{}), ended: make(chan struct{}, 16)}
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "Ollama is running")
	})
	mux.HandleFunc("/api/tags", func(w http.ResponseWriter, r *http.Request) {
		out := ollama.ListModelsResponse{Models: []ollama.ModelInfo{}}
		for _, n := range models {
			out.Models = append(out.Models, ollama.ModelInfo{
				Name:       n,
				Size:       4 << 30,
				ModifiedAt: time.Unix(1_700_000_000, 0),
				Details:    ollama.ModelDetails{Family: "llama", ParameterSize: "8.0B", QuantizationLevel: "Q4_0"},
			})
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(out)
	})
	mux.HandleFunc("/api/generate", func(w http.ResponseWriter, r *http.Request) {
		f.generates.Add(1)
		var req ollama.GenerateRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		f.mu.Lock()
		f.lastPrompt = req.Prompt
		f.mu.Unlock()
		w.Header().Set("Content-Type", "application/x-ndjson")
		fl := w.(http.Flusher)
		for i, tok := range []string{"Hello", ",", " world"} {
			fmt.Fprintf(w, `{"model":%q,"response":%q,"done":false}`+"\n", req.Model, tok)
			fl.Flush()
			if i == 0 && f.hold.Load() {
				select {
				case <-r.Context().Done():
					f.ended <- struct{}{}
					return
				case <-f.release:
				}
			}
		}
		fmt.Fprintf(w, `{"model":%q,"response":"","done":true,"done_reason":"stop","prompt_eval_count":4,"eval_count":3,"total_duration":2000000,"eval_duration":1000000}`+"\n", req.Model)
	})
	f.srv = httptest.NewServer(mux)
	t.Cleanup(func() {
		f.srv.CloseClientConnections()
		f.srv.Close()
	})
	return f
}

func (f *fakeOllama) prompt() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastPrompt
}

// newServer wires the real gateway stack against upstreamURL and serves it
// over a real TCP listener.
func newServer(t *testing.T, upstreamURL string, cfg gateway.Config, maxContext int) (*httptest.Server, *gateway.Gateway) {
	t.Helper()
	cli := ollama.NewClient(upstreamURL, 500*time.Millisecond)
	sup := supervisor.New(supervisor.Config{
		PingTimeout:    200 * time.Millisecond,
		InitialBackoff: 10 * time.Millisecond,
		MaxBackoff:     50 * time.Millisecond,
	}, cli, zerolog.Nop())
	cat := catalog.New(cli, time.Minute, zerolog.Nop())
	cfg.UpstreamURL = upstreamURL
	if cfg.ReadyTimeout == 0 {
		cfg.ReadyTimeout = 500 * time.Millisecond
	}
	gw := gateway.New(cfg, sup, cat, assembler.New(maxContext), streamproxy.New(cli, 4, zerolog.Nop()), zerolog.Nop())
	srv := httptest.NewServer(httpapi.NewMux(httpapi.FromGateway(gw)))
	t.Cleanup(func() {
		srv.CloseClientConnections()
		srv.Close()
		_ = gw.Shutdown(context.Background())
	})
	return srv, gw
}

func httpGet(t *testing.T, url string) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, url, nil)
	if err != nil {
		t.Fatalf("new req: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do req: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	return resp, body
}

func httpPostJSON(t *testing.T, url string, payload []byte) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequestWithContext(context.Background(), http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("new req: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do req: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	return resp, body
}

func decodeEvents(t *testing.T, body []byte) []types.StreamEvent {
	t.Helper()
	var out []types.StreamEvent
	for _, line := range strings.Split(strings.TrimSpace(string(body)), "\n") {
		var ev types.StreamEvent
		if err := json.Unmarshal([]byte(line), &ev); err != nil {
			t.Fatalf("bad line %q: %v", line, err)
		}
		out = append(out, ev)
	}
	return out
}

func waitFor(t *testing.T, within time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(within)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out: %s", msg)
		}
		time.Sleep(10 * time.Millisecond)
	}
}
