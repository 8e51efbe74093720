package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"llmgate/internal/assembler"
	"llmgate/internal/catalog"
	"llmgate/internal/common/fsutil"
	"llmgate/internal/config"
	"llmgate/internal/events"
	"llmgate/internal/gateway"
	"llmgate/internal/httpapi"
	"llmgate/internal/ollama"
	"llmgate/internal/streamproxy"
	"llmgate/internal/supervisor"
)

var serveFlags struct {
	addr            string
	upstream        string
	ollamaBin       string
	noSpawn         bool
	lazy            bool
	maxContextBytes int
	catalogTTL      int
	maxStreams      int
	chatTimeout     int64
	logLevel        string
	corsOrigins     string
	swagger         bool
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the gateway HTTP server",
	Long: `Run the gateway. Settings are read from the config file, then the
environment (LLMGATE_ADDR, OLLAMA_HOST, LLMGATE_OLLAMA_BIN,
LLMGATE_MAX_CONTEXT_BYTES, LLMGATE_CATALOG_TTL, LLMGATE_LOG_LEVEL), then flags.
Changes to the config file adjust max context bytes, catalog TTL and log
level without a restart.`,
	RunE: runServe,
}

func init() {
	f := serveCmd.Flags()
	f.StringVar(&serveFlags.addr, "addr", "", "HTTP listen address, e.g. :8080")
	f.StringVar(&serveFlags.upstream, "upstream", "", "model server base URL (default http://127.0.0.1:11434)")
	f.StringVar(&serveFlags.ollamaBin, "ollama-bin", "", "model server executable launched when nothing answers (default ollama)")
	f.BoolVar(&serveFlags.noSpawn, "no-spawn", false, "never launch the model server")
	f.BoolVar(&serveFlags.lazy, "lazy", false, "defer model server startup until the first request")
	f.IntVar(&serveFlags.maxContextBytes, "max-context-bytes", 0, "byte budget of an assembled prompt")
	f.IntVar(&serveFlags.catalogTTL, "catalog-ttl", 0, "model catalog TTL in seconds")
	f.IntVar(&serveFlags.maxStreams, "max-streams", 0, "concurrently relaying chat streams")
	f.Int64Var(&serveFlags.chatTimeout, "chat-timeout", 0, "cap on one chat stream in seconds (0 = none)")
	f.StringVar(&serveFlags.logLevel, "log-level", "", "log level: debug|info|warn|error")
	f.StringVar(&serveFlags.corsOrigins, "cors-origins", "", "comma-separated allowed origins; enables CORS")
	f.BoolVar(&serveFlags.swagger, "swagger", false, "serve the OpenAPI UI at /swagger/")
	rootCmd.AddCommand(serveCmd)
}

// loadConfig merges file, environment and changed flags, then fills defaults.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	var cfg config.Config
	if cfgFile != "" {
		p, err := fsutil.ExpandHome(cfgFile)
		if err != nil {
			return cfg, err
		}
		if cfg, err = config.Load(p); err != nil {
			return cfg, fmt.Errorf("load config: %w", err)
		}
	}
	cfg, err := config.FromEnv(cfg, envFile)
	if err != nil {
		return cfg, err
	}
	f := cmd.Flags()
	if f.Changed("addr") {
		cfg.Addr = serveFlags.addr
	}
	if f.Changed("upstream") {
		cfg.Upstream = serveFlags.upstream
	}
	if f.Changed("ollama-bin") {
		cfg.OllamaBin = serveFlags.ollamaBin
	}
	if f.Changed("no-spawn") {
		cfg.NoSpawn = serveFlags.noSpawn
	}
	if f.Changed("max-context-bytes") {
		cfg.MaxContextBytes = serveFlags.maxContextBytes
	}
	if f.Changed("catalog-ttl") {
		cfg.CatalogTTLSeconds = serveFlags.catalogTTL
	}
	if f.Changed("max-streams") {
		cfg.MaxStreams = serveFlags.maxStreams
	}
	if f.Changed("chat-timeout") {
		cfg.ChatTimeoutSeconds = serveFlags.chatTimeout
	}
	if f.Changed("log-level") {
		cfg.LogLevel = serveFlags.logLevel
	}
	if f.Changed("cors-origins") {
		cfg.CORSOrigins = splitCSV(serveFlags.corsOrigins)
		cfg.CORSEnabled = len(cfg.CORSOrigins) > 0
	}
	if f.Changed("swagger") {
		cfg.EnableSwagger = serveFlags.swagger
	}
	return config.Defaults(cfg), nil
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	log := newLogger(os.Stderr)
	setLogLevel(cfg.LogLevel)

	binary := ""
	if !cfg.NoSpawn {
		binary = cfg.OllamaBin
		if resolved, err := fsutil.ResolveBinary(cfg.OllamaBin); err == nil {
			binary = resolved
		} else {
			log.Warn().Err(err).Str("binary", cfg.OllamaBin).Msg("model server binary not found; launching it will fail")
		}
	}

	publisher := events.Log{Logger: log.With().Str("component", "events").Logger()}
	client := ollama.NewClient(cfg.Upstream, 2*time.Second)
	sup := supervisor.New(supervisor.Config{
		Binary:      binary,
		Args:        cfg.Args,
		Env:         []string{"OLLAMA_HOST=" + hostPort(cfg.Upstream)},
		GracePeriod: cfg.GracePeriod(),
	}, client, log)
	sup.SetEventPublisher(publisher)
	cat := catalog.New(client, cfg.CatalogTTL(), log)
	cat.SetEventPublisher(publisher)
	asm := assembler.New(cfg.MaxContextBytes)
	proxy := streamproxy.New(client, cfg.StreamBuffer, log)
	gw := gateway.New(gateway.Config{
		UpstreamURL:            cfg.Upstream,
		ReadyTimeout:           cfg.ReadyTimeout(),
		MaxStreams:             cfg.MaxStreams,
		QueueWait:              cfg.QueueWait(),
		HeartbeatSchedule:      config.Schedule(cfg.HeartbeatSchedule),
		CatalogRefreshSchedule: config.Schedule(cfg.CatalogRefreshSchedule),
	}, sup, cat, asm, proxy, log)
	gw.SetEventPublisher(publisher)

	httpapi.SetLogger(log)
	httpapi.SetDefaultLogLevel(cfg.LogLevel)
	httpapi.SetMaxBodyBytes(cfg.MaxBodyBytes)
	httpapi.SetMaxUploadBytes(cfg.MaxUploadBytes)
	httpapi.SetChatTimeoutSeconds(cfg.ChatTimeoutSeconds)
	httpapi.SetCORSOptions(cfg.CORSEnabled, cfg.CORSOrigins, cfg.CORSMethods, cfg.CORSHeaders)
	httpapi.SetSwaggerEnabled(cfg.EnableSwagger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	baseCtx, cancelBase := context.WithCancel(context.Background())
	defer cancelBase()
	httpapi.SetBaseContext(baseCtx)

	// Binding is the one startup failure that is fatal.
	ln, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", cfg.Addr, err)
	}
	srv := &http.Server{
		Handler:           httpapi.NewMux(httpapi.FromGateway(gw)),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return baseCtx },
	}

	if err := gw.StartJobs(); err != nil {
		_ = ln.Close()
		return err
	}
	if cfgFile != "" {
		go watchConfig(ctx, cfgFile, log, asm, cat)
	}
	if !serveFlags.lazy {
		go func() {
			if _, err := gw.StartServer(baseCtx); err != nil {
				log.Warn().Err(err).Msg("model server not ready at startup; will retry on first request")
			}
		}()
	}

	errc := make(chan error, 1)
	go func() {
		log.Info().Str("addr", ln.Addr().String()).Str("upstream", cfg.Upstream).Bool("spawn", binary != "").Msg("llmgate listening")
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("shutting down")
	case err := <-errc:
		if err != nil {
			log.Error().Err(err).Msg("server error")
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.GracePeriod()+5*time.Second)
	defer cancel()
	shutdown(shutdownCtx, srv, gw, cancelBase, log)
	return nil
}

// shutdown stops in-flight chats while their clients are still connected so
// each stream ends with a shutting_down event, then drains the HTTP server,
// cancels what is left through the base context and stops the model server.
func shutdown(ctx context.Context, srv *http.Server, gw *gateway.Gateway, cancelBase context.CancelFunc, log zerolog.Logger) {
	gw.StopChats()
	if err := srv.Shutdown(ctx); err != nil {
		log.Warn().Err(err).Msg("graceful shutdown error")
	}
	cancelBase()
	if err := gw.Shutdown(ctx); err != nil {
		log.Warn().Err(err).Msg("model server shutdown error")
	}
}

// watchConfig applies hot-reloadable settings. Fields absent from the file
// keep their current values.
func watchConfig(ctx context.Context, path string, log zerolog.Logger, asm *assembler.Assembler, cat *catalog.Catalog) {
	p, err := fsutil.ExpandHome(path)
	if err != nil {
		log.Warn().Err(err).Msg("config watch disabled")
		return
	}
	err = config.Watch(ctx, p, log, func(c config.Config) {
		if c.MaxContextBytes > 0 {
			asm.SetMaxBytes(c.MaxContextBytes)
		}
		if c.CatalogTTLSeconds > 0 {
			cat.SetTTL(c.CatalogTTL())
		}
		if c.LogLevel != "" {
			setLogLevel(c.LogLevel)
			httpapi.SetDefaultLogLevel(c.LogLevel)
		}
	})
	if err != nil {
		log.Warn().Err(err).Msg("config watch stopped")
	}
}

// hostPort extracts host:port from the upstream URL for OLLAMA_HOST.
func hostPort(upstream string) string {
	u, err := url.Parse(upstream)
	if err != nil || u.Host == "" {
		return upstream
	}
	return u.Host
}
