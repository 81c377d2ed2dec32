// The orchestrator binary runs the core AI-SERVIS service: intent
// classification, the command pipeline, session management, service
// routing, and the user-facing adapters.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gobwas/ws"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	_ "go.uber.org/automaxprocs"

	"github.com/ai-servis/core/internal/adapters"
	"github.com/ai-servis/core/internal/config"
	"github.com/ai-servis/core/internal/gpio"
	"github.com/ai-servis/core/internal/intent"
	"github.com/ai-servis/core/internal/limits"
	"github.com/ai-servis/core/internal/logging"
	"github.com/ai-servis/core/internal/orchestrator"
	"github.com/ai-servis/core/internal/registry"
	"github.com/ai-servis/core/internal/rpc"
	"github.com/ai-servis/core/internal/rpc/transport"
)

type Config struct {
	Addr         string `env:"ORCHESTRATOR_ADDR" envDefault:":8080"`
	TextTCPAddr  string `env:"TEXT_TCP_ADDR" envDefault:":8087"`
	TextHTTPAddr string `env:"TEXT_HTTP_ADDR" envDefault:":8088"`
	WebAddr      string `env:"WEB_ADDR" envDefault:":8082"`
	MobileAddr   string `env:"MOBILE_ADDR" envDefault:":8083"`

	DataDir   string `env:"DATA_DIR" envDefault:"./data"`
	ModelPath string `env:"INTENT_MODEL_PATH"`

	AuthURL   string `env:"AUTH_SERVICE_URL"`
	JWTSecret string `env:"JWT_SECRET"`

	GPIOAddr   string `env:"GPIO_ADDR"`
	ConfigFile string `env:"CONFIG_FILE"`

	MaxConnections     int     `env:"MAX_CONNECTIONS" envDefault:"10000"`
	MaxGoroutines      int     `env:"MAX_GOROUTINES" envDefault:"5000"`
	CPURejectThreshold float64 `env:"CPU_REJECT_THRESHOLD" envDefault:"85"`
	MemoryLimitBytes   int64   `env:"MEMORY_LIMIT_BYTES" envDefault:"536870912"`

	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`
}

func (c Config) Validate() error {
	if c.Addr == "" {
		return errors.New("ORCHESTRATOR_ADDR must not be empty")
	}
	if c.AuthURL != "" && c.JWTSecret != "" {
		return errors.New("set AUTH_SERVICE_URL or JWT_SECRET, not both")
	}
	return nil
}

func main() {
	var cfg Config
	if err := config.Load(&cfg); err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.NewLogger(logging.Config{
		Level:   cfg.LogLevel,
		Format:  logging.Format(cfg.LogFormat),
		Service: "orchestrator",
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Service discovery and routing.
	reg := registry.New(logger)
	go reg.RunCleanup(ctx, registry.DefaultCleanupInterval)

	router := orchestrator.NewRouter(
		orchestrator.RegistryCallerProvider(reg), logger,
		orchestrator.WithServiceLister(func() []string {
			entries := reg.List("")
			names := make([]string, 0, len(entries))
			for _, e := range entries {
				names = append(names, e.Name)
			}
			return names
		}),
	)

	classifier := intent.NewClassifier(logger, cfg.ModelPath)
	sessions := orchestrator.NewSessionManager(cfg.DataDir, logger)

	var opts []orchestrator.Option
	switch {
	case cfg.JWTSecret != "":
		opts = append(opts, orchestrator.WithVerifier(&orchestrator.JWTVerifier{Secret: []byte(cfg.JWTSecret)}))
	case cfg.AuthURL != "":
		opts = append(opts, orchestrator.WithVerifier(orchestrator.NewHTTPVerifier(cfg.AuthURL)))
	}

	orch := orchestrator.New(classifier, router, sessions, logger, opts...)
	go orch.Run(ctx)

	// Tool surface: orchestrator, registry, and hardware control when
	// a GPIO daemon is configured.
	tools := rpc.NewToolRegistry()
	if err := orchestrator.RegisterTools(tools, orch); err != nil {
		logger.Fatal().Err(err).Msg("register orchestrator tools")
	}

	cfgStore, err := config.NewStore(registry.ConfigDefaults(), cfg.ConfigFile)
	if err != nil {
		logger.Fatal().Err(err).Msg("open config store")
	}
	if err := registry.RegisterTools(tools, reg, cfgStore); err != nil {
		logger.Fatal().Err(err).Msg("register registry tools")
	}

	if cfg.GPIOAddr != "" {
		gpioClient, err := gpio.Dial(ctx, cfg.GPIOAddr, logger)
		if err != nil {
			logger.Warn().Err(err).Str("addr", cfg.GPIOAddr).Msg("hardware daemon unavailable, gpio tools disabled")
		} else {
			defer gpioClient.Close()
			if err := gpio.RegisterTools(tools, gpio.NewController(gpioClient)); err != nil {
				logger.Fatal().Err(err).Msg("register gpio tools")
			}
		}
	}

	// Admission control shared by all adapters.
	limiter := limits.NewConnectionRateLimiter(limits.RateLimiterConfig{}, logger)
	defer limiter.Stop()
	guard := limits.NewResourceGuard(limits.GuardConfig{
		MaxConnections:     cfg.MaxConnections,
		MaxGoroutines:      cfg.MaxGoroutines,
		CPURejectThreshold: cfg.CPURejectThreshold,
		MemoryLimitBytes:   cfg.MemoryLimitBytes,
	}, logger)
	guard.UpdateResources()
	guard.StartMonitoring(ctx)
	gate := &adapters.Gate{Limiter: limiter, Guard: guard}

	all := []adapters.Adapter{
		adapters.NewTextAdapter(cfg.TextTCPAddr, cfg.TextHTTPAddr, orch.ProcessCommand, gate, logger),
		adapters.NewWebAdapter(cfg.WebAddr, orch.ProcessCommand, gate, logger),
		adapters.NewMobileAdapter(cfg.MobileAddr, orch.ProcessCommand, gate, logger),
	}
	for _, a := range all {
		if err := a.Start(ctx); err != nil {
			logger.Fatal().Err(err).Str("adapter", a.Name()).Msg("start adapter")
		}
	}

	// RPC surface: HTTP envelopes at /rpc, WebSocket envelopes at /ws.
	srv := rpc.NewServer("core-orchestrator", tools, logger)
	mux := http.NewServeMux()
	mux.Handle("POST /rpc", srv)
	mux.HandleFunc("GET /ws", func(w http.ResponseWriter, r *http.Request) {
		conn, _, _, err := ws.UpgradeHTTP(r, w)
		if err != nil {
			logging.LogError(logger, err, "rpc websocket upgrade failed", nil)
			return
		}
		go func() {
			defer logging.RecoverPanic(logger, "rpcServe", nil)
			_ = srv.Serve(ctx, transport.NewServerWS(conn))
		}()
	})
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"status": "healthy", "service": "core-orchestrator"}`)
	})

	httpSrv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		defer logging.RecoverPanic(logger, "rpcHTTP", nil)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("rpc server failed")
		}
	}()
	logger.Info().Str("addr", cfg.Addr).Msg("orchestrator started")

	<-ctx.Done()
	logger.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	for _, a := range all {
		if err := a.Stop(shutdownCtx); err != nil {
			logging.LogError(logger, err, "adapter shutdown failed", map[string]any{"adapter": a.Name()})
		}
	}
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logging.LogError(logger, err, "rpc server shutdown failed", nil)
	}
}
