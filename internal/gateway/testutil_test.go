package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"llmgate/internal/assembler"
	"llmgate/internal/catalog"
	"llmgate/internal/events"
	"llmgate/internal/ollama"
	"llmgate/internal/streamproxy"
	"llmgate/internal/supervisor"
	"llmgate/pkg/types"
)

// mockUpstream is an Ollama-compatible model server for gateway tests.
type mockUpstream struct {
	srv *httptest.Server

	mu     sync.Mutex
	models []string
	tokens []string
	// raw, when set, replaces the generated NDJSON body.
	raw string
	// hold keeps /api/generate open after the first token until the
	// request context ends or release is closed.
	hold    bool
	release chan struct{}

	generates   atomic.Int32
	lastModel   atomic.Value
	lastPrompt  atomic.Value
	closedAfter chan struct{}
}

func newMockUpstream(t *testing.T, models ...string) *mockUpstream {
	t.Helper()
	m := &mockUpstream{
		models:      models,
		tokens:      []string{"Hello", ",", " world"},
		release:     make(chan struct{}),
		closedAfter: make(chan struct{}, 16),
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "Ollama is running")
	})
	mux.HandleFunc("/api/tags", func(w http.ResponseWriter, r *http.Request) {
		m.mu.Lock()
		names := append([]string(nil), m.models...)
		m.mu.Unlock()
		var out ollama.ListModelsResponse
		out.Models = []ollama.ModelInfo{}
		for _, n := range names {
			out.Models = append(out.Models, ollama.ModelInfo{Name: n, Size: 4 << 30, ModifiedAt: time.Unix(1_700_000_000, 0)})
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(out)
	})
	mux.HandleFunc("/api/generate", func(w http.ResponseWriter, r *http.Request) {
		m.generates.Add(1)
		b, _ := io.ReadAll(r.Body)
		var req ollama.GenerateRequest
		_ = json.Unmarshal(b, &req)
		m.lastModel.Store(req.Model)
		m.lastPrompt.Store(req.Prompt)

		m.mu.Lock()
		tokens, raw, hold := append([]string(nil), m.tokens...), m.raw, m.hold
		m.mu.Unlock()

		w.Header().Set("Content-Type", "application/x-ndjson")
		fl := w.(http.Flusher)
		if raw != "" {
			_, _ = io.WriteString(w, raw)
			return
		}
		for i, tok := range tokens {
			fmt.Fprintf(w, `{"model":%q,"response":%q,"done":false}`+"\n", req.Model, tok)
			fl.Flush()
			if hold && i == 0 {
				select {
				case <-r.Context().Done():
					m.closedAfter <- struct{}{}
					return
				case <-m.release:
				}
			}
		}
		fmt.Fprintf(w, `{"model":%q,"response":"","done":true,"done_reason":"stop","eval_count":%d}`+"\n", req.Model, len(tokens))
	})
	m.srv = httptest.NewServer(mux)
	t.Cleanup(func() {
		m.srv.CloseClientConnections()
		m.srv.Close()
	})
	return m
}

func (m *mockUpstream) set(fn func(m *mockUpstream)) {
	m.mu.Lock()
	fn(m)
	m.mu.Unlock()
}

type harness struct {
	gw  *Gateway
	up  *mockUpstream
	sup *supervisor.Supervisor
	cat *catalog.Catalog
	pub *events.Memory
}

// newHarness wires real components against a mock upstream. The supervisor
// has no binary, so nothing is ever spawned.
func newHarness(t *testing.T, cfg Config, models ...string) *harness {
	t.Helper()
	up := newMockUpstream(t, models...)
	return newHarnessAt(t, cfg, up.srv.URL, up)
}

func newHarnessAt(t *testing.T, cfg Config, url string, up *mockUpstream) *harness {
	t.Helper()
	cli := ollama.NewClient(url, 500*time.Millisecond)
	sup := supervisor.New(supervisor.Config{
		PingTimeout:    200 * time.Millisecond,
		InitialBackoff: 10 * time.Millisecond,
		MaxBackoff:     50 * time.Millisecond,
	}, cli, zerolog.Nop())
	cat := catalog.New(cli, time.Minute, zerolog.Nop())
	if cfg.ReadyTimeout == 0 {
		cfg.ReadyTimeout = 2 * time.Second
	}
	cfg.UpstreamURL = url
	gw := New(cfg, sup, cat, assembler.New(64*1024), streamproxy.New(cli, 4, zerolog.Nop()), zerolog.Nop())
	pub := events.NewMemory()
	gw.SetEventPublisher(pub)
	t.Cleanup(func() { _ = gw.Shutdown(context.Background()) })
	return &harness{gw: gw, up: up, sup: sup, cat: cat, pub: pub}
}

// collect relays a chat into a slice of events.
func collect(t *testing.T, c *Chat) ([]types.StreamEvent, error) {
	t.Helper()
	evs := []types.StreamEvent{c.Meta()}
	err := c.Relay(func(ev types.StreamEvent) error {
		evs = append(evs, ev)
		return nil
	})
	return evs, err
}

func testCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	return ctx
}
