// Package streamproxy relays one streaming generation from the model server
// to one caller. Each Session owns exactly one upstream connection; chunks
// pass through a small bounded buffer and are never accumulated.
package streamproxy

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"llmgate/internal/ollama"
	"llmgate/pkg/types"
)

const (
	defaultBuffer = 16
	// maxLineBytes bounds a single NDJSON line; longer lines are a protocol error.
	maxLineBytes = 1 << 20
)

// Generator opens a streaming generation call. *ollama.Client implements it.
type Generator interface {
	Generate(ctx context.Context, req ollama.GenerateRequest) (io.ReadCloser, error)
}

// Request is one generation to relay.
type Request struct {
	// ID identifies the session in logs and events; generated when empty.
	ID      string
	Model   string
	Prompt  string
	System  string
	Options *types.GenerateOptions
}

// Chunk is one incremental unit of a streamed response. The final chunk has
// Done set and may carry trailing content and statistics.
type Chunk struct {
	Content    string
	Done       bool
	DoneReason string
	Stats      *types.StreamStats
}

// Proxy opens sessions against a Generator.
type Proxy struct {
	gen    Generator
	buffer int
	log    zerolog.Logger
}

// New returns a Proxy buffering at most buffer chunks per session.
func New(gen Generator, buffer int, log zerolog.Logger) *Proxy {
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	return &Proxy{gen: gen, buffer: buffer, log: log.With().Str("component", "streamproxy").Logger()}
}

// Stream opens the upstream call and returns a Session relaying its chunks.
// Errors returned here happen before any chunk exists. The Session is bound
// to ctx: canceling ctx closes the upstream connection. Callers must Close
// the Session.
func (p *Proxy) Stream(ctx context.Context, req Request) (*Session, error) {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	sctx, cancel := context.WithCancel(ctx)
	body, err := p.gen.Generate(sctx, ollama.GenerateRequest{
		Model:   req.Model,
		Prompt:  req.Prompt,
		System:  req.System,
		Options: toOllamaOptions(req.Options),
	})
	if err != nil {
		cancel()
		outcomesTotal.WithLabelValues(outcomeOpenFailed).Inc()
		if ctx.Err() != nil {
			return nil, ErrClientDisconnected
		}
		if ollama.IsStatusError(err) {
			return nil, err
		}
		return nil, &upstreamError{msg: "open stream", cause: err}
	}

	s := &Session{
		ID:     req.ID,
		Model:  req.Model,
		ctx:    sctx,
		cancel: cancel,
		body:   body,
		ch:     make(chan Chunk, p.buffer),
		done:   make(chan struct{}),
		log:    p.log.With().Str("session", req.ID).Str("model", req.Model).Logger(),
	}
	// Closing the body unblocks a pending read as soon as ctx ends.
	s.stopAfter = context.AfterFunc(sctx, func() { _ = body.Close() })
	sessionsActive.Inc()
	s.log.Debug().Int("prompt_bytes", len(req.Prompt)).Msg("upstream stream opened")
	go s.pump()
	return s, nil
}

// Session is one open upstream streaming call. It is a finite, non-restartable
// sequence: Recv yields chunks in upstream order, then io.EOF after the done
// chunk, or a terminal error. Recv must be called from a single goroutine.
type Session struct {
	ID    string
	Model string

	ctx       context.Context
	cancel    context.CancelFunc
	body      io.ReadCloser
	stopAfter func() bool
	ch        chan Chunk
	done      chan struct{}
	log       zerolog.Logger

	// err is written by pump before ch is closed.
	err       error
	closeOnce sync.Once
}

// Recv returns the next chunk. After the caller's context is canceled it
// returns ErrClientDisconnected and never a buffered chunk.
func (s *Session) Recv() (Chunk, error) {
	if s.ctx.Err() != nil {
		return Chunk{}, ErrClientDisconnected
	}
	select {
	case c, ok := <-s.ch:
		if !ok {
			return Chunk{}, s.err
		}
		if s.ctx.Err() != nil {
			return Chunk{}, ErrClientDisconnected
		}
		return c, nil
	case <-s.ctx.Done():
		return Chunk{}, ErrClientDisconnected
	}
}

// Close cancels the upstream call if still running and waits until the
// connection is released. It is safe to call more than once.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.cancel()
		<-s.done
		s.stopAfter()
		_ = s.body.Close()
	})
	return nil
}

// Done is closed once the upstream connection has been released.
func (s *Session) Done() <-chan struct{} { return s.done }

func (s *Session) pump() {
	var (
		n   int
		err error
	)
	defer func() {
		if err == nil {
			err = io.EOF
		}
		s.err = err
		close(s.ch)
		_ = s.body.Close()
		sessionsActive.Dec()
		var terminal error
		if !errors.Is(err, io.EOF) {
			terminal = err
		}
		outcomesTotal.WithLabelValues(outcomeFor(terminal)).Inc()
		ev := s.log.Debug()
		if terminal != nil && !IsClientDisconnected(terminal) {
			ev = s.log.Warn().Err(terminal)
		}
		ev.Int("chunks", n).Msg("upstream stream closed")
		close(s.done)
	}()

	r := bufio.NewReaderSize(s.body, 32*1024)
	for {
		line, rerr := readLine(r)
		if l := strings.TrimSpace(line); l != "" {
			var msg ollama.GenerateResponse
			if jerr := json.Unmarshal([]byte(l), &msg); jerr != nil {
				err = &protocolError{line: clip(l, 200), cause: jerr}
				return
			}
			if msg.Error != "" {
				err = &upstreamError{msg: msg.Error}
				return
			}
			n++
			chunksTotal.Inc()
			c := Chunk{Content: msg.Response, Done: msg.Done}
			if msg.Done {
				c.DoneReason = msg.DoneReason
				c.Stats = &types.StreamStats{
					PromptTokens:     msg.PromptEvalCount,
					CompletionTokens: msg.EvalCount,
					TotalDurationMS:  msg.TotalDuration / 1e6,
					EvalDurationMS:   msg.EvalDuration / 1e6,
					Chunks:           n,
				}
			}
			if !s.send(c) {
				err = ErrClientDisconnected
				return
			}
			if msg.Done {
				return
			}
		}
		if rerr != nil {
			switch {
			case s.ctx.Err() != nil:
				err = ErrClientDisconnected
			case errors.Is(rerr, errLineTooLong):
				err = &protocolError{line: clip(line, 200), cause: rerr}
			case errors.Is(rerr, io.EOF):
				err = &upstreamError{msg: "stream ended before completion"}
			default:
				err = &upstreamError{msg: "read stream", cause: rerr}
			}
			return
		}
	}
}

func (s *Session) send(c Chunk) bool {
	select {
	case s.ch <- c:
		return true
	case <-s.ctx.Done():
		return false
	}
}

var errLineTooLong = errors.New("line exceeds maximum length")

// readLine reads one newline-terminated line of at most maxLineBytes.
func readLine(r *bufio.Reader) (string, error) {
	var sb strings.Builder
	for {
		frag, err := r.ReadSlice('\n')
		if sb.Len()+len(frag) > maxLineBytes {
			return sb.String(), errLineTooLong
		}
		sb.Write(frag)
		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}
		return sb.String(), err
	}
}

func clip(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

func toOllamaOptions(o *types.GenerateOptions) *ollama.Options {
	if o == nil {
		return nil
	}
	return &ollama.Options{
		Temperature: o.Temperature,
		TopP:        o.TopP,
		TopK:        o.TopK,
		NumPredict:  o.NumPredict,
		NumCtx:      o.NumCtx,
		Seed:        o.Seed,
		Stop:        o.Stop,
	}
}
