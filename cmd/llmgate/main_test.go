package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"llmgate/pkg/types"
)

func TestSplitCSV(t *testing.T) {
	cases := []struct {
		in   string
		want []string
	}{
		{"a,b,c", []string{"a", "b", "c"}},
		{" a , b , c ", []string{"a", "b", "c"}},
		{"a,,c", []string{"a", "c"}},
		{"", nil},
	}
	for _, c := range cases {
		got := splitCSV(c.in)
		if len(got) != len(c.want) {
			t.Fatalf("%q -> %v, want %v", c.in, got, c.want)
		}
		for i := range got {
			if got[i] != c.want[i] {
				t.Fatalf("%q -> %v, want %v", c.in, got, c.want)
			}
		}
	}
}

func TestZerologLevel(t *testing.T) {
	cases := map[string]zerolog.Level{
		"debug":   zerolog.DebugLevel,
		"WARN":    zerolog.WarnLevel,
		"error":   zerolog.ErrorLevel,
		"off":     zerolog.Disabled,
		"":        zerolog.InfoLevel,
		"unknown": zerolog.InfoLevel,
	}
	for in, want := range cases {
		if got := zerologLevel(in); got != want {
			t.Fatalf("zerologLevel(%q)=%v want %v", in, got, want)
		}
	}
}

func TestHostPort(t *testing.T) {
	if got := hostPort("http://127.0.0.1:11434"); got != "127.0.0.1:11434" {
		t.Fatalf("got %q", got)
	}
	if got := hostPort("not a url"); got != "not a url" {
		t.Fatalf("got %q", got)
	}
}

func TestPrintModels(t *testing.T) {
	now := time.Date(2024, 5, 2, 10, 0, 0, 0, time.UTC)
	var buf bytes.Buffer
	printModels(&buf, []types.ModelDescriptor{
		{Name: "llama3:latest", Size: 4661224676, ParameterSize: "8.0B", Quant: "Q4_0", Modified: now.Add(-24 * time.Hour)},
	}, now)
	out := buf.String()
	for _, want := range []string{"NAME", "llama3:latest", "4.7 GB", "8.0B", "Q4_0", "1 day ago"} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %q in:\n%s", want, out)
		}
	}

	buf.Reset()
	printModels(&buf, nil, now)
	if !strings.Contains(buf.String(), "no models installed") {
		t.Fatalf("unexpected output: %q", buf.String())
	}
}

func TestCallGateway(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/server/start":
			_, _ = w.Write([]byte(`{"status":"ready","owned":true,"pid":7}`))
		default:
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"error":"model server unavailable","code":503,"kind":"upstream_unavailable"}`))
		}
	}))
	defer srv.Close()
	old := clientFlags.gateway
	clientFlags.gateway = srv.URL + "/"
	defer func() { clientFlags.gateway = old }()

	var resp types.StartResponse
	if err := callGateway(context.Background(), http.MethodPost, "/server/start", &resp); err != nil {
		t.Fatalf("start: %v", err)
	}
	if resp.PID != 7 || !resp.Owned {
		t.Fatalf("unexpected resp: %+v", resp)
	}

	var models types.ModelsResponse
	err := callGateway(context.Background(), http.MethodGet, "/models", &models)
	if err == nil || !strings.Contains(err.Error(), "upstream_unavailable") {
		t.Fatalf("expected mapped error, got %v", err)
	}
}
