// Package gateway coordinates the per-request flow of the LLM gateway:
// model-server readiness, catalog checks, context assembly and streaming.
// It is transport-agnostic; internal/httpapi maps it onto HTTP.
package gateway

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"llmgate/internal/assembler"
	"llmgate/internal/events"
	"llmgate/internal/streamproxy"
	"llmgate/internal/supervisor"
	"llmgate/pkg/types"
)

// Supervisor is the subset of *supervisor.Supervisor the gateway drives.
type Supervisor interface {
	EnsureReady(ctx context.Context, timeout time.Duration) error
	Check(ctx context.Context) error
	State() supervisor.State
	Shutdown(ctx context.Context) error
}

// Catalog is the subset of *catalog.Catalog the gateway reads.
type Catalog interface {
	List(ctx context.Context, forceRefresh bool) ([]types.ModelDescriptor, error)
	Lookup(ctx context.Context, name string) (types.ModelDescriptor, bool, error)
	Snapshot() ([]types.ModelDescriptor, time.Duration, bool)
	Refresh(ctx context.Context) error
}

// Streamer opens upstream streaming sessions; *streamproxy.Proxy implements it.
type Streamer interface {
	Stream(ctx context.Context, req streamproxy.Request) (*streamproxy.Session, error)
}

// Config holds gateway policy.
type Config struct {
	// UpstreamURL is reported by Status.
	UpstreamURL string
	// ReadyTimeout bounds EnsureReady per request.
	ReadyTimeout time.Duration
	// MaxStreams bounds concurrently relaying chat streams.
	MaxStreams int
	// QueueWait bounds how long a chat waits for a stream slot before 429.
	QueueWait time.Duration
	// HeartbeatSchedule and CatalogRefreshSchedule are cron specs
	// (e.g. "@every 15s"); empty disables the job.
	HeartbeatSchedule      string
	CatalogRefreshSchedule string
}

func (c *Config) applyDefaults() {
	if c.ReadyTimeout <= 0 {
		c.ReadyTimeout = 20 * time.Second
	}
	if c.MaxStreams <= 0 {
		c.MaxStreams = 64
	}
	if c.QueueWait <= 0 {
		c.QueueWait = 30 * time.Second
	}
}

// Gateway is the request coordinator shared by all HTTP handlers.
type Gateway struct {
	cfg       Config
	sup       Supervisor
	cat       Catalog
	asm       *assembler.Assembler
	proxy     Streamer
	log       zerolog.Logger
	publisher events.Publisher
	started   time.Time

	slots chan struct{}

	mu     sync.Mutex
	active map[string]*Chat
	closed bool

	cron *cron.Cron
}

// New wires a Gateway from its components.
func New(cfg Config, sup Supervisor, cat Catalog, asm *assembler.Assembler, proxy Streamer, log zerolog.Logger) *Gateway {
	cfg.applyDefaults()
	return &Gateway{
		cfg:       cfg,
		sup:       sup,
		cat:       cat,
		asm:       asm,
		proxy:     proxy,
		log:       log.With().Str("component", "gateway").Logger(),
		publisher: events.Noop{},
		started:   time.Now(),
		slots:     make(chan struct{}, cfg.MaxStreams),
		active:    make(map[string]*Chat),
	}
}

// SetEventPublisher installs a Publisher for stream lifecycle events.
func (g *Gateway) SetEventPublisher(p events.Publisher) { g.publisher = events.OrNoop(p) }

// Assembler exposes the context assembler for hot-reloadable policy.
func (g *Gateway) Assembler() *assembler.Assembler { return g.asm }

// ListModels ensures the model server is up and returns the catalog.
func (g *Gateway) ListModels(ctx context.Context, forceRefresh bool) ([]types.ModelDescriptor, error) {
	if err := g.sup.EnsureReady(ctx, g.cfg.ReadyTimeout); err != nil {
		return nil, err
	}
	return g.cat.List(ctx, forceRefresh)
}

// StartServer explicitly brings the model server up.
func (g *Gateway) StartServer(ctx context.Context) (types.StartResponse, error) {
	if err := g.sup.EnsureReady(ctx, g.cfg.ReadyTimeout); err != nil {
		return types.StartResponse{}, err
	}
	st := g.sup.State()
	return types.StartResponse{Status: string(st.Status), Owned: st.Owned, PID: st.PID}, nil
}

// Ready reports whether the model server answered its last ping.
func (g *Gateway) Ready() bool { return g.sup.State().Status == supervisor.StatusReady }

// Status builds a detailed status response for /status.
func (g *Gateway) Status() types.StatusResponse {
	st := g.sup.State()
	now := time.Now()
	resp := types.StatusResponse{
		Upstream:          string(st.Status),
		UpstreamURL:       g.cfg.UpstreamURL,
		Owned:             st.Owned,
		PID:               st.PID,
		LastError:         st.LastError,
		CatalogAgeSeconds: -1,
		ActiveSessions:    g.ActiveSessions(),
		UptimeSeconds:     int64(now.Sub(g.started).Seconds()),
		ServerTimeUnix:    now.Unix(),
	}
	if !st.LastCheck.IsZero() {
		resp.LastCheckUnix = st.LastCheck.Unix()
	}
	if models, age, ok := g.cat.Snapshot(); ok {
		resp.CatalogModels = len(models)
		resp.CatalogAgeSeconds = int64(age.Seconds())
	}
	return resp
}

// ActiveSessions returns the number of chats between admission and completion.
func (g *Gateway) ActiveSessions() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.active)
}

// Abort cancels the in-flight chat with the given request ID.
func (g *Gateway) Abort(id string) bool {
	g.mu.Lock()
	c := g.active[strings.TrimSpace(id)]
	g.mu.Unlock()
	if c == nil {
		return false
	}
	c.log.Info().Msg("chat aborted by client")
	c.stop("aborted", "chat aborted")
	return true
}

func (g *Gateway) track(c *Chat) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return supervisor.ErrUpstreamUnavailable("gateway is shutting down", nil)
	}
	if _, dup := g.active[c.ID]; dup {
		return ErrDuplicateRequestID(c.ID)
	}
	g.active[c.ID] = c
	return nil
}

func (g *Gateway) untrack(c *Chat) {
	g.mu.Lock()
	if g.active[c.ID] == c {
		delete(g.active, c.ID)
	}
	g.mu.Unlock()
}

// StopChats refuses new chats and stops every in-flight one. A stopped
// chat ends its stream with a shutting_down error event, so callers should
// run this before tearing down the HTTP server or its base context.
// It returns the number of chats stopped.
func (g *Gateway) StopChats() int {
	g.mu.Lock()
	g.closed = true
	inflight := make([]*Chat, 0, len(g.active))
	for _, c := range g.active {
		inflight = append(inflight, c)
	}
	g.mu.Unlock()

	for _, c := range inflight {
		c.stop("shutting_down", "gateway is shutting down")
	}
	if len(inflight) > 0 {
		g.log.Info().Int("sessions", len(inflight)).Msg("canceled in-flight chats")
	}
	return len(inflight)
}

// Shutdown stops in-flight chats and background jobs, then terminates an
// owned model server.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.StopChats()
	g.StopJobs(ctx)
	return g.sup.Shutdown(ctx)
}
