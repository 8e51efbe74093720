package streamproxy

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"llmgate/internal/ollama"
	"llmgate/pkg/types"
)

func ndjsonServer(t *testing.T, h func(ctx context.Context, w http.ResponseWriter, req ollama.GenerateRequest, flush func())) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req ollama.GenerateRequest
		b, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(b, &req)
		w.Header().Set("Content-Type", "application/x-ndjson")
		fl, _ := w.(http.Flusher)
		h(r.Context(), w, req, func() {
			if fl != nil {
				fl.Flush()
			}
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newProxy(url string) *Proxy {
	return New(ollama.NewClient(url, time.Second), 4, zerolog.Nop())
}

func drain(t *testing.T, s *Session) ([]Chunk, error) {
	t.Helper()
	var out []Chunk
	for {
		c, err := s.Recv()
		if err != nil {
			return out, err
		}
		out = append(out, c)
	}
}

func TestStream_RelaysChunksInOrder(t *testing.T) {
	srv := ndjsonServer(t, func(_ context.Context, w http.ResponseWriter, req ollama.GenerateRequest, flush func()) {
		assert.True(t, req.Stream)
		assert.Equal(t, "be brief", req.System)
		for _, tok := range []string{"Hello", ",", " world"} {
			fmt.Fprintf(w, `{"model":%q,"response":%q,"done":false}`+"\n", req.Model, tok)
			flush()
		}
		fmt.Fprint(w, `{"model":"m","response":"","done":true,"done_reason":"stop","prompt_eval_count":7,"eval_count":3,"total_duration":2500000000,"eval_duration":1000000000}`+"\n")
	})

	s, err := newProxy(srv.URL).Stream(context.Background(), Request{Model: "m", Prompt: "hi", System: "be brief"})
	require.NoError(t, err)
	defer s.Close()
	assert.NotEmpty(t, s.ID)

	chunks, err := drain(t, s)
	require.ErrorIs(t, err, io.EOF)
	require.Len(t, chunks, 4)
	assert.Equal(t, "Hello", chunks[0].Content)
	assert.Equal(t, ",", chunks[1].Content)
	assert.Equal(t, " world", chunks[2].Content)

	last := chunks[3]
	assert.True(t, last.Done)
	assert.Equal(t, "stop", last.DoneReason)
	require.NotNil(t, last.Stats)
	assert.Equal(t, 7, last.Stats.PromptTokens)
	assert.Equal(t, 3, last.Stats.CompletionTokens)
	assert.EqualValues(t, 2500, last.Stats.TotalDurationMS)
	assert.EqualValues(t, 1000, last.Stats.EvalDurationMS)
	assert.Equal(t, 4, last.Stats.Chunks)
}

func TestStream_OptionsPassedThrough(t *testing.T) {
	gotCh := make(chan ollama.GenerateRequest, 1)
	srv := ndjsonServer(t, func(_ context.Context, w http.ResponseWriter, req ollama.GenerateRequest, flush func()) {
		gotCh <- req
		fmt.Fprint(w, `{"response":"","done":true}`+"\n")
	})
	s, err := newProxy(srv.URL).Stream(context.Background(), Request{
		Model: "m", Prompt: "p",
		Options: &types.GenerateOptions{Temperature: 0.2, NumPredict: 64, Stop: []string{"\n\n"}},
	})
	require.NoError(t, err)
	_, err = drain(t, s)
	require.ErrorIs(t, err, io.EOF)
	s.Close()

	got := <-gotCh
	require.NotNil(t, got.Options)
	assert.InDelta(t, 0.2, got.Options.Temperature, 1e-9)
	assert.Equal(t, 64, got.Options.NumPredict)
	assert.Equal(t, []string{"\n\n"}, got.Options.Stop)
}

func TestStream_MalformedChunkAborts(t *testing.T) {
	srv := ndjsonServer(t, func(_ context.Context, w http.ResponseWriter, req ollama.GenerateRequest, flush func()) {
		fmt.Fprint(w, `{"response":"ok","done":false}`+"\n")
		fmt.Fprint(w, "this is not json\n")
		fmt.Fprint(w, `{"response":"never","done":false}`+"\n")
		fmt.Fprint(w, `{"response":"","done":true}`+"\n")
	})
	before := testutil.ToFloat64(outcomesTotal.WithLabelValues(outcomeProtocolError))

	s, err := newProxy(srv.URL).Stream(context.Background(), Request{Model: "m", Prompt: "p"})
	require.NoError(t, err)
	defer s.Close()

	chunks, err := drain(t, s)
	require.Error(t, err)
	assert.True(t, IsUpstreamProtocolError(err), "got %v", err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "ok", chunks[0].Content)

	<-s.Done()
	assert.Equal(t, before+1, testutil.ToFloat64(outcomesTotal.WithLabelValues(outcomeProtocolError)))
}

func TestStream_UpstreamErrorLine(t *testing.T) {
	srv := ndjsonServer(t, func(_ context.Context, w http.ResponseWriter, req ollama.GenerateRequest, flush func()) {
		fmt.Fprint(w, `{"response":"par","done":false}`+"\n")
		fmt.Fprint(w, `{"error":"model runner has unexpectedly stopped"}`+"\n")
	})
	s, err := newProxy(srv.URL).Stream(context.Background(), Request{Model: "m", Prompt: "p"})
	require.NoError(t, err)
	defer s.Close()

	chunks, err := drain(t, s)
	require.Error(t, err)
	assert.True(t, IsUpstreamError(err))
	assert.Contains(t, err.Error(), "unexpectedly stopped")
	assert.Len(t, chunks, 1)
}

func TestStream_EOFBeforeDoneIsError(t *testing.T) {
	srv := ndjsonServer(t, func(_ context.Context, w http.ResponseWriter, req ollama.GenerateRequest, flush func()) {
		fmt.Fprint(w, `{"response":"half","done":false}`+"\n")
	})
	s, err := newProxy(srv.URL).Stream(context.Background(), Request{Model: "m", Prompt: "p"})
	require.NoError(t, err)
	defer s.Close()

	chunks, err := drain(t, s)
	assert.True(t, IsUpstreamError(err), "got %v", err)
	assert.Len(t, chunks, 1)
}

func TestStream_OpenStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"model 'nope' not found"}`))
	}))
	defer srv.Close()

	_, err := newProxy(srv.URL).Stream(context.Background(), Request{Model: "nope", Prompt: "p"})
	require.Error(t, err)
	assert.True(t, ollama.IsStatusError(err))
}

func TestStream_OpenConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := newProxy(url).Stream(context.Background(), Request{Model: "m", Prompt: "p"})
	require.Error(t, err)
	assert.True(t, IsUpstreamError(err))
}

func TestStream_ClientDisconnectClosesUpstream(t *testing.T) {
	upstreamClosed := make(chan time.Time, 1)
	srv := ndjsonServer(t, func(reqCtx context.Context, w http.ResponseWriter, req ollama.GenerateRequest, flush func()) {
		fmt.Fprint(w, `{"response":"first","done":false}`+"\n")
		flush()
		<-reqCtx.Done()
		upstreamClosed <- time.Now()
	})

	ctx, cancel := context.WithCancel(context.Background())
	s, err := newProxy(srv.URL).Stream(ctx, Request{Model: "m", Prompt: "p"})
	require.NoError(t, err)
	defer s.Close()

	c, err := s.Recv()
	require.NoError(t, err)
	assert.Equal(t, "first", c.Content)

	canceledAt := time.Now()
	cancel()

	_, err = s.Recv()
	assert.ErrorIs(t, err, ErrClientDisconnected)

	select {
	case at := <-upstreamClosed:
		assert.Less(t, at.Sub(canceledAt), time.Second)
	case <-time.After(time.Second):
		t.Fatal("upstream connection still open one second after disconnect")
	}
	select {
	case <-s.Done():
	case <-time.After(time.Second):
		t.Fatal("session did not release upstream resources")
	}
}

func TestStream_ConcurrentSessionsIndependent(t *testing.T) {
	const sessions, tokens = 8, 25
	srv := ndjsonServer(t, func(_ context.Context, w http.ResponseWriter, req ollama.GenerateRequest, flush func()) {
		for k := 0; k < tokens; k++ {
			fmt.Fprintf(w, `{"response":"%s-%d|","done":false}`+"\n", req.Model, k)
			flush()
		}
		fmt.Fprint(w, `{"response":"","done":true,"done_reason":"stop"}`+"\n")
	})
	p := newProxy(srv.URL)

	var wg sync.WaitGroup
	for i := 0; i < sessions; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			model := fmt.Sprintf("m%d", i)
			s, err := p.Stream(context.Background(), Request{Model: model, Prompt: "p"})
			if !assert.NoError(t, err) {
				return
			}
			defer s.Close()
			chunks, err := drain(t, s)
			assert.ErrorIs(t, err, io.EOF)
			if !assert.Len(t, chunks, tokens+1) {
				return
			}
			for k := 0; k < tokens; k++ {
				assert.Equal(t, fmt.Sprintf("%s-%d|", model, k), chunks[k].Content)
			}
		}(i)
	}
	wg.Wait()
}

type pipeGen struct {
	pr *io.PipeReader
	pw *io.PipeWriter
}

func newPipeGen() *pipeGen {
	pr, pw := io.Pipe()
	return &pipeGen{pr: pr, pw: pw}
}

func (g *pipeGen) Generate(ctx context.Context, req ollama.GenerateRequest) (io.ReadCloser, error) {
	return g.pr, nil
}

func TestSession_CloseReleasesBlockedRead(t *testing.T) {
	g := newPipeGen()
	s, err := New(g, 2, zerolog.Nop()).Stream(context.Background(), Request{Model: "m", Prompt: "p"})
	require.NoError(t, err)

	closed := make(chan struct{})
	go func() { _ = s.Close(); close(closed) }()
	select {
	case <-closed:
	case <-time.After(time.Second):
		t.Fatal("Close blocked on an idle upstream read")
	}
	_, werr := g.pw.Write([]byte("x\n"))
	assert.ErrorIs(t, werr, io.ErrClosedPipe)
}

func TestSession_NoChunkAfterCancel(t *testing.T) {
	g := newPipeGen()
	ctx, cancel := context.WithCancel(context.Background())
	s, err := New(g, 8, zerolog.Nop()).Stream(ctx, Request{Model: "m", Prompt: "p"})
	require.NoError(t, err)
	defer s.Close()

	for i := 0; i < 3; i++ {
		_, err := fmt.Fprintf(g.pw, `{"response":"t%d","done":false}`+"\n", i)
		require.NoError(t, err)
	}
	require.Eventually(t, func() bool { return len(s.ch) == 3 }, time.Second, 5*time.Millisecond)

	cancel()
	_, err = s.Recv()
	assert.ErrorIs(t, err, ErrClientDisconnected)
}

func TestSession_SlowReaderBoundedBuffer(t *testing.T) {
	g := newPipeGen()
	s, err := New(g, 2, zerolog.Nop()).Stream(context.Background(), Request{Model: "m", Prompt: "p"})
	require.NoError(t, err)
	defer s.Close()

	wrote := make(chan int, 1)
	go func() {
		n := 0
		for i := 0; i < 10; i++ {
			if _, err := fmt.Fprintf(g.pw, `{"response":"t%d","done":false}`+"\n", i); err != nil {
				break
			}
			n++
		}
		wrote <- n
	}()

	// With nobody receiving, the pump stalls once the buffer is full.
	time.Sleep(100 * time.Millisecond)
	assert.LessOrEqual(t, len(s.ch), 2)

	for i := 0; i < 10; i++ {
		c, err := s.Recv()
		require.NoError(t, err)
		assert.Equal(t, fmt.Sprintf("t%d", i), c.Content)
	}
	assert.Equal(t, 10, <-wrote)
}
