// Package publish sends changed snapshots to an MQTT broker.
package publish

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog/log"
	"github.com/woozymasta/a2squery/internal/config"
	"github.com/woozymasta/a2squery/internal/models"
	"github.com/woozymasta/a2squery/internal/vars"
)

// Publisher receives snapshots that differ from the previously stored one.
type Publisher interface {
	Publish(s models.Snapshot) error
	Close()
}

// Nop is a Publisher that drops every snapshot.
type Nop struct{}

// Publish implements Publisher.
func (Nop) Publish(models.Snapshot) error { return nil }

// Close implements Publisher.
func (Nop) Close() {}

// message is the payload published for every snapshot.
type message struct {
	Snapshot  models.Snapshot `json:"snapshot"`
	Source    string          `json:"source"`
	Version   string          `json:"version"`
	Timestamp string          `json:"timestamp"`
}

// MQTT publishes snapshots as JSON to "<topic>/<address>".
type MQTT struct {
	client  mqtt.Client
	topic   string
	timeout time.Duration
	qos     byte
}

// New returns a Publisher for cfg: an MQTT publisher when a broker is configured, Nop
// otherwise.
func New(cfg config.MQTT) (Publisher, error) {
	if cfg.Broker == "" {
		return Nop{}, nil
	}
	return NewMQTT(cfg)
}

// NewMQTT connects to the configured broker.
func NewMQTT(cfg config.MQTT) (*MQTT, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	opts.SetAutoReconnect(true)
	opts.SetMaxReconnectInterval(30 * time.Second)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetConnectTimeout(10 * time.Second)

	opts.SetOnConnectHandler(func(mqtt.Client) {
		log.Info().Str("broker", cfg.Broker).Msg("MQTT connected")
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		log.Warn().Err(err).Str("broker", cfg.Broker).Msg("MQTT connection lost")
	})

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("MQTT connect failed: %w", token.Error())
	}

	return &MQTT{
		client:  client,
		topic:   strings.TrimSuffix(cfg.Topic, "/"),
		qos:     cfg.QoS,
		timeout: 5 * time.Second,
	}, nil
}

// Publish sends s and waits for the broker to acknowledge it.
func (m *MQTT) Publish(s models.Snapshot) error {
	if !m.client.IsConnected() {
		return fmt.Errorf("MQTT not connected")
	}

	data, err := encode(s)
	if err != nil {
		return err
	}

	topic := Topic(m.topic, s.Address)
	token := m.client.Publish(topic, m.qos, false, data)
	if !token.WaitTimeout(m.timeout) {
		return fmt.Errorf("MQTT publish to %s timed out", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("MQTT publish to %s: %w", topic, err)
	}

	log.Trace().Str("topic", topic).Int("size", len(data)).Msg("Snapshot published")
	return nil
}

// Close disconnects from the broker.
func (m *MQTT) Close() {
	m.client.Disconnect(250)
	log.Info().Msg("MQTT disconnected")
}

// Topic builds the topic of a server address below prefix. MQTT wildcard and level
// characters in the address are replaced.
func Topic(prefix, address string) string {
	level := strings.NewReplacer("/", "_", "+", "_", "#", "_").Replace(address)
	if prefix == "" {
		return level
	}
	return prefix + "/" + level
}

func encode(s models.Snapshot) ([]byte, error) {
	return json.Marshal(message{
		Snapshot:  s,
		Source:    vars.Name,
		Version:   vars.Version,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}
