package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"
)

// A stand-in for an Ollama-compatible model server. Listens on $OLLAMA_HOST.
func main() {
	delay := flag.Duration("delay", 0, "wait before listening")
	exitEarly := flag.Bool("exit-early", false, "write to stderr and exit 3 before listening")
	ignoreTerm := flag.Bool("ignore-term", false, "ignore SIGTERM")
	models := flag.String("models", "fake:latest", "comma separated model names")
	flag.Parse()

	if *exitEarly {
		fmt.Fprintln(os.Stderr, "fatal: cannot load runtime")
		os.Exit(3)
	}
	if *delay > 0 {
		time.Sleep(*delay)
	}
	addr := os.Getenv("OLLAMA_HOST")
	if addr == "" {
		addr = "127.0.0.1:11434"
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("Ollama is running"))
	})
	mux.HandleFunc("/api/tags", func(w http.ResponseWriter, r *http.Request) {
		type m struct {
			Name       string    `json:"name"`
			Size       int64     `json:"size"`
			ModifiedAt time.Time `json:"modified_at"`
		}
		out := struct {
			Models []m `json:"models"`
		}{Models: []m{}}
		for _, n := range strings.Split(*models, ",") {
			if n = strings.TrimSpace(n); n != "" {
				out.Models = append(out.Models, m{Name: n, Size: 1 << 20, ModifiedAt: time.Now()})
			}
		}
		_ = json.NewEncoder(w).Encode(out)
	})
	mux.HandleFunc("/api/generate", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Model  string `json:"model"`
			Prompt string `json:"prompt"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		w.Header().Set("Content-Type", "application/x-ndjson")
		enc := json.NewEncoder(w)
		for _, word := range strings.Fields(req.Prompt) {
			_ = enc.Encode(map[string]any{"model": req.Model, "response": word + " ", "done": false})
			if f, ok := w.(http.Flusher); ok {
				f.Flush()
			}
		}
		_ = enc.Encode(map[string]any{"model": req.Model, "response": "", "done": true, "done_reason": "stop"})
	})

	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	if *ignoreTerm {
		signal.Ignore(syscall.SIGTERM)
		signal.Notify(sigCh, syscall.SIGINT)
	} else {
		signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	}
	<-sigCh
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_ = srv.Shutdown(ctx)
}
