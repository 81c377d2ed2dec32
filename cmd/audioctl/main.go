// The audioctl binary runs the multi-zone audio synchronization
// engine and its tool surface.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/gobwas/ws"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	_ "go.uber.org/automaxprocs"

	"github.com/ai-servis/core/internal/audiosync"
	"github.com/ai-servis/core/internal/config"
	"github.com/ai-servis/core/internal/logging"
	"github.com/ai-servis/core/internal/rpc"
	"github.com/ai-servis/core/internal/rpc/transport"
)

type Config struct {
	Addr string `env:"AUDIOCTL_ADDR" envDefault:":8085"`

	Algorithm    string        `env:"SYNC_ALGORITHM" envDefault:"adaptive_delay"`
	Quality      string        `env:"SYNC_QUALITY" envDefault:"medium"`
	SyncInterval time.Duration `env:"SYNC_INTERVAL" envDefault:"100ms"`
	MaxSyncDelay float64       `env:"MAX_SYNC_DELAY" envDefault:"1.0"`

	// RPC endpoint of the audio service that reports per-zone playback
	// positions.
	PositionEndpoint string `env:"POSITION_ENDPOINT"`

	MQTTBroker   string `env:"MQTT_BROKER"`
	MQTTPort     int    `env:"MQTT_PORT" envDefault:"1883"`
	MQTTClientID string `env:"MQTT_CLIENT_ID" envDefault:"ai-servis-audioctl"`

	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`
}

func (c Config) Validate() error {
	if c.Addr == "" {
		return errors.New("AUDIOCTL_ADDR must not be empty")
	}
	if c.SyncInterval <= 0 {
		return errors.New("SYNC_INTERVAL must be positive")
	}
	return nil
}

// rpcPositions reads zone playback positions from the audio service.
func rpcPositions(caller rpc.Caller) audiosync.PositionFunc {
	return func(ctx context.Context, zoneID string) (float64, error) {
		raw, err := caller.Call(ctx, "get_playback_position", map[string]any{"zone_id": zoneID})
		if err != nil {
			return 0, err
		}
		var out struct {
			Position float64 `json:"position"`
		}
		if err := json.Unmarshal(raw, &out); err != nil {
			return 0, fmt.Errorf("decode position for zone %s: %w", zoneID, err)
		}
		return out.Position, nil
	}
}

// mqttPublisher adapts a paho client to the engine's publisher
// contract for correction events.
type mqttPublisher struct {
	client mqtt.Client
	logger zerolog.Logger
}

func newMQTTPublisher(broker string, port int, clientID string, logger zerolog.Logger) (*mqttPublisher, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(fmt.Sprintf("tcp://%s:%d", broker, port)).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectTimeout(10 * time.Second)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("mqtt connect %s:%d: %w", broker, port, token.Error())
	}
	return &mqttPublisher{client: client, logger: logger}, nil
}

func (p *mqttPublisher) Publish(topic string, payload []byte) {
	if token := p.client.Publish(topic, 0, false, payload); token.Wait() && token.Error() != nil {
		p.logger.Error().Err(token.Error()).Str("topic", topic).Msg("publish failed")
	}
}

func (p *mqttPublisher) Close() { p.client.Disconnect(250) }

func main() {
	var cfg Config
	if err := config.Load(&cfg); err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.NewLogger(logging.Config{
		Level:   cfg.LogLevel,
		Format:  logging.Format(cfg.LogFormat),
		Service: "audioctl",
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var position audiosync.PositionFunc
	if cfg.PositionEndpoint != "" {
		position = rpcPositions(rpc.NewHTTPClient(cfg.PositionEndpoint))
	} else {
		position = func(ctx context.Context, zoneID string) (float64, error) {
			return 0, fmt.Errorf("no position source configured for zone %s", zoneID)
		}
		logger.Warn().Msg("POSITION_ENDPOINT not set, sync groups will not measure")
	}

	engineOpts := []audiosync.EngineOption{
		audiosync.WithAlgorithm(audiosync.Algorithm(cfg.Algorithm)),
		audiosync.WithQuality(audiosync.QualityLevel(cfg.Quality)),
		audiosync.WithSyncInterval(cfg.SyncInterval),
		audiosync.WithMaxSyncDelay(cfg.MaxSyncDelay),
	}

	if cfg.MQTTBroker != "" {
		pub, err := newMQTTPublisher(cfg.MQTTBroker, cfg.MQTTPort, cfg.MQTTClientID, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("connect mqtt")
		}
		defer pub.Close()
		engineOpts = append(engineOpts, audiosync.WithPublisher(pub))
	}

	engine := audiosync.NewEngine(position, logger, engineOpts...)
	go engine.Run(ctx)

	tools := rpc.NewToolRegistry()
	if err := audiosync.RegisterTools(tools, engine); err != nil {
		logger.Fatal().Err(err).Msg("register tools")
	}

	srv := rpc.NewServer("ai-audio-assistant", tools, logger)
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
		fmt.Fprintf(w, `{"status": "healthy", "service": "ai-audio-assistant", "groups": %d}`, len(engine.Groups()))
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
	logger.Info().Str("addr", cfg.Addr).Msg("audioctl started")

	<-ctx.Done()
	logger.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logging.LogError(logger, err, "rpc server shutdown failed", nil)
	}
}
