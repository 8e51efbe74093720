package gateway

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"llmgate/internal/assembler"
	"llmgate/internal/events"
	"llmgate/internal/streamproxy"
	"llmgate/pkg/types"
)

// Chat is one chat request from admission to its terminal phase. It owns at
// most one upstream session.
type Chat struct {
	ID string
	// Model is the canonical catalog name the request resolved to.
	Model  string
	Prompt assembler.Prompt

	g       *Gateway
	ctx     context.Context
	cancel  context.CancelFunc
	session *streamproxy.Session
	release func()
	log     zerolog.Logger
	started time.Time
	chunks  int

	mu    sync.Mutex
	phase Phase

	// stopped holds the terminal event for a chat canceled by the gateway
	// while its client is still connected.
	stopped atomic.Pointer[types.StreamEvent]

	closeOnce sync.Once
}

// OpenChat drives a request from Received through Streaming. Any error is
// returned before the first byte of the response exists and leaves the chat
// Failed; on success the caller relays the stream and must Close the chat.
// id is used as the request ID when non-empty.
func (g *Gateway) OpenChat(ctx context.Context, id string, req types.ChatRequest) (*Chat, error) {
	if strings.TrimSpace(id) == "" {
		id = uuid.NewString()
	}
	cctx, cancel := context.WithCancel(ctx)
	c := &Chat{
		ID:      id,
		g:       g,
		ctx:     cctx,
		cancel:  cancel,
		release: func() {},
		log:     g.log.With().Str("request_id", id).Logger(),
		started: time.Now(),
		phase:   PhaseReceived,
	}
	phaseTotal.WithLabelValues(string(PhaseReceived)).Inc()

	fail := func(err error) (*Chat, error) {
		c.finish(err)
		c.Close()
		return nil, err
	}

	name := strings.TrimSpace(req.Model)
	if name == "" {
		return fail(badRequestError{msg: "model is required"})
	}
	if err := g.sup.EnsureReady(cctx, g.cfg.ReadyTimeout); err != nil {
		return fail(err)
	}
	desc, ok, err := g.cat.Lookup(cctx, name)
	if err != nil {
		return fail(err)
	}
	if !ok {
		return fail(ErrModelNotFound(name))
	}
	c.Model = desc.Name
	c.log = c.log.With().Str("model", c.Model).Logger()
	c.advance(PhaseCatalogChecked)

	c.Prompt = g.asm.Assemble(req.Prompt, req.Attachments)
	if len(c.Prompt.Errors) > 0 {
		c.log.Info().Int("rejected", len(c.Prompt.Errors)).Msg("attachments rejected")
	}
	c.advance(PhaseContextAssembled)

	release, err := g.admit(cctx, c.Model)
	if err != nil {
		return fail(err)
	}
	c.release = release
	if err := g.track(c); err != nil {
		return fail(err)
	}

	sess, err := g.proxy.Stream(cctx, streamproxy.Request{
		ID:      c.ID,
		Model:   c.Model,
		Prompt:  c.Prompt.Text,
		System:  req.System,
		Options: req.Options,
	})
	if err != nil {
		return fail(err)
	}
	c.session = sess
	c.advance(PhaseStreaming)
	g.publisher.Publish(events.Event{Name: "stream_start", Subject: c.ID, Fields: map[string]any{
		"model":        c.Model,
		"prompt_bytes": len(c.Prompt.Text),
		"truncated":    c.Prompt.Truncated,
	}})
	return c, nil
}

// Meta is the first event of every chat stream.
func (c *Chat) Meta() types.StreamEvent {
	return types.StreamEvent{
		Type:             types.EventMeta,
		RequestID:        c.ID,
		Model:            c.Model,
		Truncated:        c.Prompt.Truncated,
		PromptBytes:      len(c.Prompt.Text),
		AttachmentErrors: c.Prompt.Errors,
	}
}

// Relay forwards the stream to emit as delta events followed by exactly one
// terminal done or error event. A failing emit is treated as a client
// disconnect: the upstream call is canceled and nothing more is emitted.
// The returned error is nil only when the stream completed.
func (c *Chat) Relay(emit func(types.StreamEvent) error) error {
	for {
		ch, err := c.session.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) {
				c.finish(nil)
				return nil
			}
			if !streamproxy.IsClientDisconnected(err) {
				_ = emit(ErrorEvent(err))
			} else if ev := c.stopped.Load(); ev != nil {
				_ = emit(*ev)
			} else if errors.Is(c.ctx.Err(), context.DeadlineExceeded) {
				_ = emit(types.StreamEvent{Type: types.EventError, Code: "timeout", Error: "chat exceeded its time limit"})
			}
			c.finish(err)
			return err
		}
		if ch.Content != "" {
			c.chunks++
			if err := emit(types.StreamEvent{Type: types.EventDelta, Content: ch.Content}); err != nil {
				return c.clientGone(err)
			}
		}
		if ch.Done {
			ev := types.StreamEvent{Type: types.EventDone, DoneReason: ch.DoneReason, Stats: ch.Stats}
			if err := emit(ev); err != nil {
				return c.clientGone(err)
			}
			c.finish(nil)
			return nil
		}
	}
}

// Phase returns the current lifecycle phase.
func (c *Chat) Phase() Phase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase
}

// Close releases the upstream session and the admission slot. It is safe to
// call more than once and after a failed OpenChat.
func (c *Chat) Close() {
	c.closeOnce.Do(func() {
		if c.session != nil {
			_ = c.session.Close()
		}
		c.cancel()
		c.release()
		c.g.untrack(c)
		if !c.Phase().Terminal() {
			c.finish(streamproxy.ErrClientDisconnected)
		}
	})
}

// stop cancels the chat on the gateway's behalf; Relay reports code as the
// terminal error event.
func (c *Chat) stop(code, msg string) {
	c.stopped.CompareAndSwap(nil, &types.StreamEvent{Type: types.EventError, Code: code, Error: msg})
	c.cancel()
}

func (c *Chat) clientGone(cause error) error {
	c.cancel()
	c.log.Debug().Err(cause).Msg("client write failed")
	c.finish(streamproxy.ErrClientDisconnected)
	return streamproxy.ErrClientDisconnected
}

// finish moves the chat to Completed (err == nil) or Failed.
func (c *Chat) finish(err error) {
	to := PhaseCompleted
	if err != nil {
		to = PhaseFailed
	}
	c.mu.Lock()
	from := c.phase
	if from.Terminal() {
		c.mu.Unlock()
		return
	}
	c.phase = to
	c.mu.Unlock()
	phaseTotal.WithLabelValues(string(to)).Inc()

	elapsed := time.Since(c.started)
	switch {
	case err == nil:
		c.log.Info().Int("chunks", c.chunks).Dur("elapsed", elapsed).Msg("chat completed")
	case streamproxy.IsClientDisconnected(err) || errors.Is(err, context.Canceled):
		c.log.Info().Str("phase", string(from)).Msg("chat canceled by client")
	default:
		c.log.Warn().Err(err).Str("phase", string(from)).Msg("chat failed")
	}
	// Only chats that reached Streaming announced a start.
	if from == PhaseStreaming {
		outcome := "completed"
		if err != nil {
			outcome = ErrorCode(err)
		}
		c.g.publisher.Publish(events.Event{Name: "stream_end", Subject: c.ID, Fields: map[string]any{
			"model":      c.Model,
			"outcome":    outcome,
			"chunks":     c.chunks,
			"elapsed_ms": elapsed.Milliseconds(),
		}})
	}
}

func (c *Chat) advance(to Phase) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !canTransition(c.phase, to) {
		c.log.Warn().Str("from", string(c.phase)).Str("to", string(to)).Msg("illegal phase transition ignored")
		return
	}
	c.phase = to
	phaseTotal.WithLabelValues(string(to)).Inc()
	c.log.Debug().Str("phase", string(to)).Msg("chat phase")
}

// ErrorEvent converts err into a terminal stream event.
func ErrorEvent(err error) types.StreamEvent {
	return types.StreamEvent{Type: types.EventError, Code: ErrorCode(err), Error: err.Error()}
}

// ErrorCode returns the stable machine code of err, or "internal_error".
func ErrorCode(err error) string {
	var coded interface{ Code() string }
	if errors.As(err, &coded) {
		return coded.Code()
	}
	if streamproxy.IsClientDisconnected(err) || errors.Is(err, context.Canceled) {
		return "client_disconnected"
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	return "internal_error"
}
