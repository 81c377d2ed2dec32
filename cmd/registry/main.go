// The registry binary runs the standalone service registry with its
// mDNS and MQTT discovery bridges.
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
	"github.com/ai-servis/core/internal/registry"
	"github.com/ai-servis/core/internal/rpc"
	"github.com/ai-servis/core/internal/rpc/transport"
)

type Config struct {
	Addr       string `env:"REGISTRY_ADDR" envDefault:":8090"`
	ConfigFile string `env:"CONFIG_FILE"`

	MDNSEnabled     bool   `env:"MDNS_ENABLED" envDefault:"true"`
	MDNSServiceType string `env:"MDNS_SERVICE_TYPE" envDefault:"_ai-servis._tcp"`

	MQTTBroker   string `env:"MQTT_BROKER"`
	MQTTPort     int    `env:"MQTT_PORT" envDefault:"1883"`
	MQTTClientID string `env:"MQTT_CLIENT_ID" envDefault:"ai-servis-registry"`

	HeartbeatTimeout time.Duration `env:"HEARTBEAT_TIMEOUT" envDefault:"30s"`
	CleanupInterval  time.Duration `env:"CLEANUP_INTERVAL" envDefault:"60s"`

	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`
}

func (c Config) Validate() error {
	if c.Addr == "" {
		return errors.New("REGISTRY_ADDR must not be empty")
	}
	if c.HeartbeatTimeout <= 0 {
		return errors.New("HEARTBEAT_TIMEOUT must be positive")
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
		Service: "registry",
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := registry.New(logger, registry.WithHeartbeatTimeout(cfg.HeartbeatTimeout))
	go reg.RunCleanup(ctx, cfg.CleanupInterval)

	if cfg.MDNSEnabled {
		mdns := registry.NewMDNS(cfg.MDNSServiceType, reg, logger)
		defer mdns.Close()
		go func() {
			defer logging.RecoverPanic(logger, "mdnsBrowse", nil)
			if err := mdns.Browse(ctx); err != nil {
				logging.LogError(logger, err, "mdns browse failed", nil)
			}
		}()
	}

	if cfg.MQTTBroker != "" {
		bridge, err := registry.NewMQTTBridge(cfg.MQTTBroker, cfg.MQTTPort, cfg.MQTTClientID, reg, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("connect mqtt bridge")
		}
		defer bridge.Close()
		reg.AddAnnouncer(bridge)
	}

	cfgStore, err := config.NewStore(registry.ConfigDefaults(), cfg.ConfigFile)
	if err != nil {
		logger.Fatal().Err(err).Msg("open config store")
	}

	tools := rpc.NewToolRegistry()
	if err := registry.RegisterTools(tools, reg, cfgStore); err != nil {
		logger.Fatal().Err(err).Msg("register tools")
	}

	srv := rpc.NewServer("service-registry", tools, logger)
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
		fmt.Fprintf(w, `{"status": "healthy", "service": "service-registry", "services": %d}`, reg.Count())
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
	logger.Info().Str("addr", cfg.Addr).Msg("registry started")

	<-ctx.Done()
	logger.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logging.LogError(logger, err, "rpc server shutdown failed", nil)
	}
}
