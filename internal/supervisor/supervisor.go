// Package supervisor detects a running model server and, when none answers,
// launches one as a managed child process, waits for readiness with bounded
// exponential backoff and terminates it on shutdown. A model server that was
// already running externally is never terminated.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog"

	"llmgate/internal/common/fsutil"
	"llmgate/internal/events"
)

// Defaults applied when corresponding Config fields are unset.
const (
	defaultReadyTimeout   = 20 * time.Second
	defaultPingTimeout    = 1 * time.Second
	defaultInitialBackoff = 100 * time.Millisecond
	defaultMaxBackoff     = 2 * time.Second
	defaultGracePeriod    = 5 * time.Second
	stderrTailBytes       = 4096
)

// Pinger performs the lightweight liveness check against the model server.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Config holds launch and polling parameters.
type Config struct {
	// Binary is the model server executable. Empty disables spawning.
	Binary string
	// Args passed to Binary, e.g. ["serve"].
	Args []string
	// Env entries appended to the inherited environment of the child.
	Env []string
	// PingTimeout bounds each individual liveness check.
	PingTimeout time.Duration
	// InitialBackoff and MaxBackoff bound the poll interval while waiting for readiness.
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	// GracePeriod between SIGTERM and SIGKILL on shutdown.
	GracePeriod time.Duration
}

type child struct {
	cmd     *exec.Cmd
	pid     int
	exited  chan struct{} // closed once Wait returns
	waitErr error
	stderr  *tailBuffer
}

// Supervisor owns the SupervisorState of the process.
type Supervisor struct {
	cfg       Config
	pinger    Pinger
	log       zerolog.Logger
	publisher events.Publisher

	// startMu serializes launch attempts; pings and reads never take it.
	startMu sync.Mutex

	mu        sync.RWMutex
	status    Status
	proc      *child
	lastCheck time.Time
	lastErr   string
	closed    bool
}

// New constructs a Supervisor in the NotStarted state.
func New(cfg Config, pinger Pinger, log zerolog.Logger) *Supervisor {
	if cfg.PingTimeout <= 0 {
		cfg.PingTimeout = defaultPingTimeout
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = defaultInitialBackoff
	}
	if cfg.MaxBackoff < cfg.InitialBackoff {
		cfg.MaxBackoff = defaultMaxBackoff
		if cfg.MaxBackoff < cfg.InitialBackoff {
			cfg.MaxBackoff = cfg.InitialBackoff
		}
	}
	if cfg.GracePeriod <= 0 {
		cfg.GracePeriod = defaultGracePeriod
	}
	observeStatus(StatusNotStarted)
	return &Supervisor{
		cfg:       cfg,
		pinger:    pinger,
		log:       log.With().Str("component", "supervisor").Logger(),
		publisher: events.Noop{},
		status:    StatusNotStarted,
	}
}

// SetEventPublisher installs a Publisher for spawn lifecycle events.
func (s *Supervisor) SetEventPublisher(p events.Publisher) {
	s.publisher = events.OrNoop(p)
}

// State returns a snapshot of the supervision state.
func (s *Supervisor) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := State{Status: s.status, LastCheck: s.lastCheck, LastError: s.lastErr}
	if s.proc != nil {
		st.Owned = true
		st.PID = s.proc.pid
	}
	return st
}

// Ready reports whether the last observation found the model server answering.
func (s *Supervisor) Ready() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status == StatusReady
}

// EnsureReady succeeds once the model server answers the liveness check.
// If nothing answers, it launches the configured binary and polls with
// bounded exponential backoff until timeout elapses.
func (s *Supervisor) EnsureReady(ctx context.Context, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = defaultReadyTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := s.ping(ctx); err == nil {
		s.setStatus(StatusReady, nil)
		return nil
	}

	s.startMu.Lock()
	defer s.startMu.Unlock()

	// Another caller may have brought it up while we waited for startMu.
	if err := s.ping(ctx); err == nil {
		s.setStatus(StatusReady, nil)
		return nil
	}

	s.mu.RLock()
	ch, closed := s.proc, s.closed
	s.mu.RUnlock()
	if closed {
		return ErrUpstreamUnavailable("supervisor is shutting down", nil)
	}
	if ch == nil && strings.TrimSpace(s.cfg.Binary) != "" {
		var err error
		ch, err = s.spawn()
		if err != nil {
			s.setStatus(StatusUnreachable, err)
			return err
		}
	}
	if ch != nil {
		s.setStatus(StatusStarting, nil)
	}

	if err := s.waitReady(ctx, ch); err != nil {
		var uerr error
		if errors.Is(err, errExitedEarly) {
			uerr = ErrUpstreamUnavailable(fmt.Sprintf("%v; stderr tail: %s", err, ch.stderr.String()), ch.waitErr)
		} else {
			uerr = ErrUpstreamUnavailable(fmt.Sprintf("not ready within %s", timeout), err)
		}
		s.setStatus(StatusUnreachable, uerr)
		if ch != nil {
			s.publisher.Publish(events.Event{Name: "spawn_timeout", Subject: s.cfg.Binary, Fields: map[string]any{"pid": ch.pid}})
		}
		return uerr
	}
	s.setStatus(StatusReady, nil)
	if ch != nil {
		s.publisher.Publish(events.Event{Name: "spawn_ready", Subject: s.cfg.Binary, Fields: map[string]any{"pid": ch.pid}})
	}
	return nil
}

// Check runs a single liveness check, recording the result. Used by the
// periodic heartbeat; it never launches a process.
func (s *Supervisor) Check(ctx context.Context) error {
	err := s.ping(ctx)
	if err == nil {
		s.transition(StatusReady, nil, func(cur Status) bool { return cur != StatusStarting })
	} else {
		s.transition(StatusUnreachable, err, func(cur Status) bool { return cur == StatusReady })
	}
	return err
}

// Shutdown terminates the child this process spawned, if any: SIGTERM first,
// SIGKILL after the grace period. An external model server is left alone.
func (s *Supervisor) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	ch := s.proc
	s.mu.Unlock()
	if ch == nil {
		return nil
	}

	s.log.Info().Int("pid", ch.pid).Msg("terminating model server")
	_ = terminate(ch.cmd.Process)
	grace := time.NewTimer(s.cfg.GracePeriod)
	defer grace.Stop()
	select {
	case <-ch.exited:
	case <-grace.C:
		s.log.Warn().Int("pid", ch.pid).Dur("grace", s.cfg.GracePeriod).Msg("model server did not exit; killing")
		_ = forceKill(ch.cmd.Process)
	case <-ctx.Done():
		_ = forceKill(ch.cmd.Process)
	}
	// Wait returns promptly after SIGKILL; WaitDelay bounds the pipe copy.
	select {
	case <-ch.exited:
	case <-time.After(s.cfg.GracePeriod):
		return fmt.Errorf("model server pid %d did not exit", ch.pid)
	}
	s.publisher.Publish(events.Event{Name: "spawn_stop", Subject: s.cfg.Binary, Fields: map[string]any{"pid": ch.pid}})
	return nil
}

func (s *Supervisor) ping(ctx context.Context) error {
	pctx, cancel := context.WithTimeout(ctx, s.cfg.PingTimeout)
	defer cancel()
	err := s.pinger.Ping(pctx)
	s.mu.Lock()
	s.lastCheck = time.Now()
	s.mu.Unlock()
	return err
}

// spawn starts the model server. Must be called with startMu held.
func (s *Supervisor) spawn() (*child, error) {
	bin, err := fsutil.ExpandHome(strings.TrimSpace(s.cfg.Binary))
	if err == nil {
		bin, err = exec.LookPath(bin)
	}
	if err != nil {
		spawnsTotal.WithLabelValues("failed").Inc()
		return nil, &spawnFailedError{bin: s.cfg.Binary, cause: err}
	}

	// exec.Command, not CommandContext: the child must outlive the request that launched it.
	cmd := exec.Command(bin, s.cfg.Args...)
	cmd.Env = append(os.Environ(), s.cfg.Env...)
	setProcAttrs(cmd)
	childLog := s.log.With().Str("component", "model-server").Logger()
	tail := newTailBuffer(stderrTailBytes)
	cmd.Stdout = &lineLogWriter{log: childLog, stream: "stdout"}
	cmd.Stderr = io.MultiWriter(&lineLogWriter{log: childLog, stream: "stderr"}, tail)
	cmd.WaitDelay = s.cfg.GracePeriod
	if err := cmd.Start(); err != nil {
		spawnsTotal.WithLabelValues("failed").Inc()
		return nil, &spawnFailedError{bin: bin, cause: err}
	}
	spawnsTotal.WithLabelValues("started").Inc()

	ch := &child{cmd: cmd, pid: cmd.Process.Pid, exited: make(chan struct{}), stderr: tail}
	s.mu.Lock()
	s.proc = ch
	s.mu.Unlock()
	s.log.Info().Str("bin", bin).Strs("args", s.cfg.Args).Int("pid", ch.pid).Msg("model server launched")
	s.publisher.Publish(events.Event{Name: "spawn_start", Subject: s.cfg.Binary, Fields: map[string]any{"pid": ch.pid}})

	go s.watch(ch)
	return ch, nil
}

// watch reaps the child and clears ownership once it exits.
func (s *Supervisor) watch(ch *child) {
	ch.waitErr = ch.cmd.Wait()
	close(ch.exited)

	s.mu.Lock()
	if s.proc == ch {
		s.proc = nil
	}
	closing := s.closed
	s.mu.Unlock()

	ev := s.log.Info().Int("pid", ch.pid)
	if ch.waitErr != nil {
		ev = ev.Err(ch.waitErr)
	}
	ev.Msg("model server exited")
	fields := map[string]any{"pid": ch.pid}
	if ch.waitErr != nil {
		fields["error"] = ch.waitErr.Error()
	}
	s.publisher.Publish(events.Event{Name: "spawn_exit", Subject: s.cfg.Binary, Fields: fields})

	if closing {
		s.setStatus(StatusNotStarted, nil)
		return
	}
	s.mu.RLock()
	cur := s.status
	s.mu.RUnlock()
	// Starting is resolved by EnsureReady itself via errExitedEarly.
	if cur == StatusReady {
		s.setStatus(StatusUnreachable, errors.New("model server exited"))
	}
}

// waitReady polls the model server with exponential backoff until ctx is done.
// A nil ch means an external instance is expected to come up on its own.
func (s *Supervisor) waitReady(ctx context.Context, ch *child) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.cfg.InitialBackoff
	b.MaxInterval = s.cfg.MaxBackoff
	b.Multiplier = 2
	b.RandomizationFactor = 0.2

	maxElapsed := defaultReadyTimeout
	if dl, ok := ctx.Deadline(); ok {
		maxElapsed = time.Until(dl)
	}

	op := func() (struct{}, error) {
		if ch != nil {
			select {
			case <-ch.exited:
				return struct{}{}, backoff.Permanent(errExitedEarly)
			default:
			}
		}
		return struct{}{}, s.ping(ctx)
	}
	notify := func(err error, next time.Duration) {
		s.log.Debug().Err(err).Dur("next", next).Msg("model server not ready")
	}
	_, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(b),
		backoff.WithMaxElapsedTime(maxElapsed),
		backoff.WithNotify(notify),
	)
	if err != nil && ch != nil {
		select {
		case <-ch.exited:
			return errExitedEarly
		default:
		}
	}
	return err
}

// setStatus transitions the state, logging and publishing only on change.
func (s *Supervisor) setStatus(next Status, cause error) {
	s.transition(next, cause, nil)
}

// transition moves to next when allow (nil = always) accepts the current
// status; the check and the write happen under one lock.
func (s *Supervisor) transition(next Status, cause error, allow func(cur Status) bool) {
	s.mu.Lock()
	prev := s.status
	if allow != nil && !allow(prev) {
		s.mu.Unlock()
		return
	}
	if cause != nil {
		s.lastErr = cause.Error()
	} else if next == StatusReady {
		s.lastErr = ""
	}
	if prev == next {
		s.mu.Unlock()
		return
	}
	s.status = next
	s.mu.Unlock()

	observeStatus(next)
	ev := s.log.Info()
	if next == StatusUnreachable {
		ev = s.log.Warn()
	}
	if cause != nil {
		ev = ev.Err(cause)
	}
	ev.Str("from", string(prev)).Str("to", string(next)).Msg("model server state")
	s.publisher.Publish(events.Event{Name: "state_" + string(next), Subject: string(prev)})
}
