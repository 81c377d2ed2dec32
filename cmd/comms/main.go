// The comms binary runs the message queue manager: multi-channel
// outbound messaging with priorities, retries, and delivery tracking.
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

	"github.com/ai-servis/core/internal/config"
	"github.com/ai-servis/core/internal/logging"
	"github.com/ai-servis/core/internal/msgqueue"
	"github.com/ai-servis/core/internal/rpc"
	"github.com/ai-servis/core/internal/rpc/transport"
)

type Config struct {
	Addr string `env:"COMMS_ADDR" envDefault:":8084"`

	MaxQueueSize       int           `env:"MAX_QUEUE_SIZE" envDefault:"10000"`
	BatchSize          int           `env:"BATCH_SIZE" envDefault:"10"`
	MaxRetries         int           `env:"MAX_RETRIES" envDefault:"3"`
	RetryStrategy      string        `env:"RETRY_STRATEGY" envDefault:"exponential_backoff"`
	ProcessingInterval time.Duration `env:"PROCESSING_INTERVAL" envDefault:"1s"`

	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`
}

func (c Config) Validate() error {
	if c.Addr == "" {
		return errors.New("COMMS_ADDR must not be empty")
	}
	if c.MaxQueueSize <= 0 {
		return errors.New("MAX_QUEUE_SIZE must be positive")
	}
	if c.BatchSize <= 0 {
		return errors.New("BATCH_SIZE must be positive")
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
		Service: "comms",
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	manager := msgqueue.NewManager(logger,
		msgqueue.WithMaxQueueSize(cfg.MaxQueueSize),
		msgqueue.WithBatchSize(cfg.BatchSize),
		msgqueue.WithDefaultRetry(cfg.MaxRetries, msgqueue.Strategy(cfg.RetryStrategy)),
		msgqueue.WithProcessingInterval(cfg.ProcessingInterval),
	)

	// Concrete gateway clients are deployment-specific; every channel
	// ships with the logging provider until one is wired in.
	for _, ch := range msgqueue.Channels() {
		manager.RegisterProvider(msgqueue.NewLogProvider(ch, logger))
	}

	go manager.Run(ctx)

	tools := rpc.NewToolRegistry()
	if err := msgqueue.RegisterTools(tools, manager); err != nil {
		logger.Fatal().Err(err).Msg("register tools")
	}

	srv := rpc.NewServer("ai-communications", tools, logger)
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
		fmt.Fprintf(w, `{"status": "healthy", "service": "ai-communications", "state": %q}`, manager.State())
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
	logger.Info().Str("addr", cfg.Addr).Msg("comms started")

	<-ctx.Done()
	logger.Info().Msg("shutting down")

	manager.Stop()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logging.LogError(logger, err, "rpc server shutdown failed", nil)
	}
}
