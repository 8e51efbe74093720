package gateway

import (
	"context"
	"time"
)

// admit reserves one concurrent stream slot, waiting at most maxWait.
// Returns a release func to be deferred.
func (g *Gateway) admit(ctx context.Context, model string) (func(), error) {
	// Fast path: respect an already-canceled context
	if err := ctx.Err(); err != nil {
		return func() {}, err
	}
	select {
	case g.slots <- struct{}{}:
		return g.releaseFunc(), nil
	default:
	}

	timer := time.NewTimer(g.cfg.QueueWait)
	defer timer.Stop()
	select {
	case g.slots <- struct{}{}:
		return g.releaseFunc(), nil
	case <-ctx.Done():
		return func() {}, ctx.Err()
	case <-timer.C:
		admissionRejected.Inc()
		return func() {}, tooBusyError{model: model}
	}
}

func (g *Gateway) releaseFunc() func() {
	released := false
	return func() {
		if released {
			return
		}
		released = true
		<-g.slots
	}
}
