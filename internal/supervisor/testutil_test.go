package supervisor

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"llmgate/internal/ollama"
)

// buildFakeServer builds the fake model server used for subprocess tests and returns its path.
func buildFakeServer(t *testing.T) string {
	t.Helper()
	if testing.Short() {
		t.Skip("short mode")
	}
	bin := filepath.Join(t.TempDir(), "fake_model_server")
	cmd := exec.Command("go", "build", "-o", bin, "./testdata/fake_model_server.go")
	cmd.Dir = "."
	cmd.Env = append(os.Environ(), "CGO_ENABLED=0")
	out, err := cmd.CombinedOutput()
	if err != nil {
		t.Fatalf("build fake server: %v: %s", err, string(out))
	}
	return bin
}

// freeAddr picks an available 127.0.0.1 address.
func freeAddr(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer l.Close()
	return l.Addr().String()
}

// spawnSupervisor returns a supervisor that launches bin listening on a fresh address.
func spawnSupervisor(t *testing.T, bin string, args ...string) (*Supervisor, *ollama.Client) {
	t.Helper()
	addr := freeAddr(t)
	cli := ollama.NewClient(fmt.Sprintf("http://%s", addr), 500*time.Millisecond)
	s := New(Config{
		Binary:         bin,
		Args:           args,
		Env:            []string{"OLLAMA_HOST=" + addr},
		PingTimeout:    300 * time.Millisecond,
		InitialBackoff: 20 * time.Millisecond,
		MaxBackoff:     200 * time.Millisecond,
		GracePeriod:    time.Second,
	}, cli, zerolog.Nop())
	t.Cleanup(func() { _ = s.Shutdown(context.Background()) })
	return s, cli
}

// pingFunc adapts a function to Pinger.
type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

// togglePinger answers according to an atomic flag and counts calls.
type togglePinger struct {
	up    atomic.Bool
	calls atomic.Int32
}

func (p *togglePinger) Ping(ctx context.Context) error {
	p.calls.Add(1)
	if p.up.Load() {
		return nil
	}
	return fmt.Errorf("connection refused")
}

func testCtx(t *testing.T) context.Context {
	t.Helper()
	c, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	return c
}
