package telemetry

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/cjeanneret/TriloGo/internal/debug"
)

// ErrPublishTimeout is returned when the broker does not acknowledge in time.
var ErrPublishTimeout = errors.New("mqtt publish timed out")

// MQTTConfig configures the MQTT sink.
type MQTTConfig struct {
	Broker   string // e.g. tcp://localhost:1883
	Topic    string
	ClientID string // empty picks a unique trilogo-<uuid> id
	Timeout  time.Duration
}

// mqttClient is the part of mqtt.Client the sink uses.
type mqttClient interface {
	IsConnectionOpen() bool
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Disconnect(quiesce uint)
}

// MQTTSink publishes snapshots as JSON, QoS 0.
type MQTTSink struct {
	client  mqttClient
	topic   string
	timeout time.Duration
}

// NewMQTTSink connects in the background and returns immediately; the
// client keeps retrying until the broker is reachable.
func NewMQTTSink(cfg MQTTConfig) (*MQTTSink, error) {
	if cfg.Broker == "" {
		return nil, errors.New("mqtt broker not configured")
	}
	if cfg.Topic == "" {
		return nil, errors.New("mqtt topic not configured")
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(clientID(cfg.ClientID))
	opts.OnConnect = func(mqtt.Client) {
		debug.Info("Connected to MQTT broker %s", cfg.Broker)
	}
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		debug.Live("MQTT connection lost: %v", err)
	}
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)

	client := mqtt.NewClient(opts)
	client.Connect()
	return newMQTTSink(client, cfg.Topic, cfg.Timeout), nil
}

// clientID returns id, or a random one when id is empty. Brokers drop the
// older session when two clients share an id.
func clientID(id string) string {
	if id != "" {
		return id
	}
	return "trilogo-" + uuid.NewString()
}

func newMQTTSink(client mqttClient, topic string, timeout time.Duration) *MQTTSink {
	if timeout <= 0 {
		timeout = time.Second
	}
	return &MQTTSink{client: client, topic: topic, timeout: timeout}
}

// Publish sends s. Snapshots are dropped while the broker is unreachable.
func (m *MQTTSink) Publish(s Snapshot) error {
	if !m.client.IsConnectionOpen() {
		debug.Trace("MQTT not connected, dropping tick %d", s.Tick)
		return nil
	}
	payload, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	token := m.client.Publish(m.topic, 0, false, payload)
	if !token.WaitTimeout(m.timeout) {
		return ErrPublishTimeout
	}
	return token.Error()
}

// Close disconnects from the broker.
func (m *MQTTSink) Close() error {
	m.client.Disconnect(250)
	return nil
}
