package gateway

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

const jobTimeout = 5 * time.Second

// StartJobs schedules the liveness heartbeat and the catalog warm refresh.
func (g *Gateway) StartJobs() error {
	c := cron.New()
	if spec := g.cfg.HeartbeatSchedule; spec != "" {
		if _, err := c.AddFunc(spec, g.heartbeat); err != nil {
			return fmt.Errorf("heartbeat schedule %q: %w", spec, err)
		}
	}
	if spec := g.cfg.CatalogRefreshSchedule; spec != "" {
		if _, err := c.AddFunc(spec, g.refreshCatalog); err != nil {
			return fmt.Errorf("catalog refresh schedule %q: %w", spec, err)
		}
	}
	if len(c.Entries()) == 0 {
		return nil
	}
	g.mu.Lock()
	g.cron = c
	g.mu.Unlock()
	c.Start()
	g.log.Debug().Int("jobs", len(c.Entries())).Msg("background jobs started")
	return nil
}

// StopJobs stops the scheduler and waits for running jobs or ctx.
func (g *Gateway) StopJobs(ctx context.Context) {
	g.mu.Lock()
	c := g.cron
	g.cron = nil
	g.mu.Unlock()
	if c == nil {
		return
	}
	select {
	case <-c.Stop().Done():
	case <-ctx.Done():
	}
}

func (g *Gateway) heartbeat() {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()
	if err := g.sup.Check(ctx); err != nil {
		jobRuns.WithLabelValues("heartbeat", "unreachable").Inc()
		return
	}
	jobRuns.WithLabelValues("heartbeat", "ok").Inc()
}

// refreshCatalog keeps the cache warm while the model server is up; it never
// starts the model server on its own.
func (g *Gateway) refreshCatalog() {
	if !g.Ready() {
		jobRuns.WithLabelValues("catalog_refresh", "skipped").Inc()
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()
	if err := g.cat.Refresh(ctx); err != nil {
		jobRuns.WithLabelValues("catalog_refresh", "error").Inc()
		return
	}
	jobRuns.WithLabelValues("catalog_refresh", "ok").Inc()
}
