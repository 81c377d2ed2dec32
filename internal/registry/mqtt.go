package registry

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"
)

const (
	mqttTopicPrefix    = "ai-servis/services/"
	mqttConnectTimeout = 10 * time.Second
)

// MQTTBridge mirrors the registry onto an MQTT broker. Local changes
// publish to ai-servis/services/<name>/{register,unregister}; remote
// services drive the same topics plus /heartbeat.
type MQTTBridge struct {
	client   mqtt.Client
	registry *Registry
	logger   zerolog.Logger
}

// mqttRegistration is the wire form of a registration announcement.
type mqttRegistration struct {
	Name           string         `json:"name"`
	Host           string         `json:"host"`
	Port           int            `json:"port"`
	Capabilities   []string       `json:"capabilities"`
	HealthEndpoint string         `json:"health_endpoint,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

// NewMQTTBridge connects to the broker and subscribes to the service
// announcement topics.
func NewMQTTBridge(broker string, port int, clientID string, r *Registry, logger zerolog.Logger) (*MQTTBridge, error) {
	b := &MQTTBridge{
		registry: r,
		logger:   logger.With().Str("component", "mqtt").Logger(),
	}

	opts := mqtt.NewClientOptions().
		AddBroker(fmt.Sprintf("tcp://%s:%d", broker, port)).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectTimeout(mqttConnectTimeout).
		SetOnConnectHandler(func(c mqtt.Client) {
			if token := c.Subscribe(mqttTopicPrefix+"+/+", 0, b.handleMessage); token.Wait() && token.Error() != nil {
				b.logger.Error().Err(token.Error()).Msg("subscribe to service topics")
			}
		})

	b.client = mqtt.NewClient(opts)
	if token := b.client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("mqtt connect %s:%d: %w", broker, port, token.Error())
	}
	b.logger.Info().Str("broker", broker).Int("port", port).Msg("connected to mqtt broker")
	return b, nil
}

func (b *MQTTBridge) handleMessage(_ mqtt.Client, msg mqtt.Message) {
	parts := strings.Split(msg.Topic(), "/")
	if len(parts) != 4 {
		return
	}
	name, kind := parts[2], parts[3]

	switch kind {
	case "register":
		var reg mqttRegistration
		if err := json.Unmarshal(msg.Payload(), &reg); err != nil {
			b.logger.Warn().Str("topic", msg.Topic()).Err(err).Msg("malformed registration")
			return
		}
		if reg.Name == "" {
			reg.Name = name
		}
		if _, err := b.registry.Register(reg.Name, reg.Host, reg.Port, reg.Capabilities, reg.HealthEndpoint, reg.Metadata); err != nil {
			// Re-announcement of a known service counts as liveness.
			_ = b.registry.Heartbeat(reg.Name)
		}
	case "heartbeat":
		_ = b.registry.Heartbeat(name)
	case "unregister":
		_ = b.registry.Unregister(name)
	}
}

// AnnounceRegister publishes a local registration to the broker.
func (b *MQTTBridge) AnnounceRegister(e *Entry) {
	payload, err := json.Marshal(mqttRegistration{
		Name:           e.Name,
		Host:           e.Host,
		Port:           e.Port,
		Capabilities:   e.Capabilities,
		HealthEndpoint: e.HealthEndpoint,
		Metadata:       e.Metadata,
	})
	if err != nil {
		b.logger.Error().Err(err).Str("name", e.Name).Msg("marshal registration")
		return
	}
	b.client.Publish(mqttTopicPrefix+e.Name+"/register", 0, false, payload)
}

// AnnounceUnregister publishes a local removal to the broker.
func (b *MQTTBridge) AnnounceUnregister(name string) {
	b.client.Publish(mqttTopicPrefix+name+"/unregister", 0, false, []byte("{}"))
}

// Publish sends an arbitrary payload, used by other components that
// share the registry's broker connection.
func (b *MQTTBridge) Publish(topic string, payload []byte) {
	b.client.Publish(topic, 0, false, payload)
}

// Close disconnects from the broker.
func (b *MQTTBridge) Close() {
	b.client.Disconnect(250)
}
