// Package catalog caches the model server's list of installed models.
//
// The cache is an immutable snapshot swapped atomically: readers never take
// a lock and never observe a partially refreshed list. Refreshes are
// serialized so concurrent callers inside one TTL window share one upstream query.
package catalog

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"llmgate/internal/events"
	"llmgate/pkg/types"
)

const (
	defaultTTL = 10 * time.Second
	// listTimeout bounds one upstream query regardless of the caller's context.
	listTimeout = 10 * time.Second
)

// Lister queries the model server for installed models.
type Lister interface {
	ListModels(ctx context.Context) ([]types.ModelDescriptor, error)
}

type snapshot struct {
	models    []types.ModelDescriptor
	byName    map[string]int
	fetchedAt time.Time
}

// Catalog is the ModelCatalog.
type Catalog struct {
	lister    Lister
	log       zerolog.Logger
	publisher events.Publisher
	now       func() time.Time

	ttl         atomic.Int64 // nanoseconds
	listTimeout time.Duration
	current     atomic.Pointer[snapshot]
	// refreshing holds a token while an upstream query is in flight.
	refreshing chan struct{}
}

// New constructs a Catalog with the given TTL (0 = default).
func New(lister Lister, ttl time.Duration, log zerolog.Logger) *Catalog {
	c := &Catalog{
		lister:      lister,
		log:         log.With().Str("component", "catalog").Logger(),
		publisher:   events.Noop{},
		now:         time.Now,
		listTimeout: listTimeout,
		refreshing:  make(chan struct{}, 1),
	}
	c.SetTTL(ttl)
	return c
}

// SetEventPublisher installs a Publisher for refresh events.
func (c *Catalog) SetEventPublisher(p events.Publisher) { c.publisher = events.OrNoop(p) }

// SetTTL changes the time-to-live; safe for concurrent use.
func (c *Catalog) SetTTL(ttl time.Duration) {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	c.ttl.Store(int64(ttl))
}

// TTL returns the current time-to-live.
func (c *Catalog) TTL() time.Duration { return time.Duration(c.ttl.Load()) }

// List returns the cached models, refreshing synchronously first when the
// cache is older than the TTL or forceRefresh is set. An empty slice means
// no models are installed; failure to reach the model server is an error.
func (c *Catalog) List(ctx context.Context, forceRefresh bool) ([]types.ModelDescriptor, error) {
	if snap := c.current.Load(); snap != nil && !forceRefresh && c.fresh(snap) {
		return cloneModels(snap.models), nil
	}
	snap, err := c.refresh(ctx, forceRefresh)
	if err != nil {
		return nil, err
	}
	return cloneModels(snap.models), nil
}

// Lookup resolves name against the catalog. An untagged name also matches
// "<name>:latest". The returned descriptor carries the canonical name.
func (c *Catalog) Lookup(ctx context.Context, name string) (types.ModelDescriptor, bool, error) {
	name = strings.TrimSpace(name)
	snap := c.current.Load()
	if snap == nil || !c.fresh(snap) {
		var err error
		if snap, err = c.refresh(ctx, false); err != nil {
			return types.ModelDescriptor{}, false, err
		}
	}
	if i, ok := snap.byName[name]; ok {
		return snap.models[i], true, nil
	}
	if !strings.Contains(name, ":") {
		if i, ok := snap.byName[name+":latest"]; ok {
			return snap.models[i], true, nil
		}
	}
	return types.ModelDescriptor{}, false, nil
}

// Snapshot returns the cached entries and their age without contacting
// the model server. ok is false when the catalog was never fetched.
func (c *Catalog) Snapshot() (models []types.ModelDescriptor, age time.Duration, ok bool) {
	snap := c.current.Load()
	if snap == nil {
		return nil, 0, false
	}
	return cloneModels(snap.models), c.now().Sub(snap.fetchedAt), true
}

// Refresh forces an upstream query; used by the background warm-up job.
func (c *Catalog) Refresh(ctx context.Context) error {
	_, err := c.refresh(ctx, true)
	return err
}

func (c *Catalog) fresh(snap *snapshot) bool {
	return c.now().Sub(snap.fetchedAt) < c.TTL()
}

func (c *Catalog) refresh(ctx context.Context, force bool) (*snapshot, error) {
	requestedAt := c.now()
	select {
	case c.refreshing <- struct{}{}:
	case <-ctx.Done():
		return nil, &unavailableError{cause: ctx.Err()}
	}
	defer func() { <-c.refreshing }()

	// Someone refreshed while we waited: reuse it if it is fresh and, when
	// forced, was fetched after this call started.
	if snap := c.current.Load(); snap != nil && c.fresh(snap) {
		if !force || !snap.fetchedAt.Before(requestedAt) {
			return snap, nil
		}
	}

	lctx, cancel := context.WithTimeout(ctx, c.listTimeout)
	models, err := c.lister.ListModels(lctx)
	cancel()
	if err != nil {
		refreshTotal.WithLabelValues("error").Inc()
		c.log.Warn().Err(err).Msg("model list refresh failed")
		return nil, &unavailableError{cause: err}
	}
	snap := &snapshot{
		models:    cloneModels(models),
		byName:    make(map[string]int, len(models)),
		fetchedAt: c.now(),
	}
	for i, m := range snap.models {
		if _, dup := snap.byName[m.Name]; !dup {
			snap.byName[m.Name] = i
		}
	}
	c.current.Store(snap)
	refreshTotal.WithLabelValues("ok").Inc()
	catalogSize.Set(float64(len(snap.models)))
	c.log.Debug().Int("models", len(snap.models)).Msg("model list refreshed")
	c.publisher.Publish(events.Event{Name: "catalog_refresh", Subject: "catalog", Fields: map[string]any{"models": len(snap.models)}})
	return snap, nil
}

func cloneModels(in []types.ModelDescriptor) []types.ModelDescriptor {
	out := make([]types.ModelDescriptor, len(in))
	copy(out, in)
	return out
}

// unavailableError signals the model list could not be fetched.
type unavailableError struct{ cause error }

func (e *unavailableError) Error() string   { return "model catalog unavailable: " + e.cause.Error() }
func (e *unavailableError) Unwrap() error   { return e.cause }
func (e *unavailableError) StatusCode() int { return http.StatusServiceUnavailable }
func (e *unavailableError) Code() string    { return "catalog_unavailable" }

// IsCatalogUnavailable reports whether err indicates the listing failed.
func IsCatalogUnavailable(err error) bool {
	var e *unavailableError
	return errors.As(err, &e)
}

var (
	refreshTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "llmgate",
			Subsystem: "catalog",
			Name:      "refresh_total",
			Help:      "Upstream model list queries by result",
		},
		[]string{"result"},
	)
	catalogSize = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "llmgate",
			Subsystem: "catalog",
			Name:      "models",
			Help:      "Number of models in the cached catalog",
		},
	)
)

func init() {
	prometheus.MustRegister(refreshTotal, catalogSize)
}
