// Package mqtt publishes assistant results to an MQTT broker so dashboards
// and other home automation can follow what the assistant did.
package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"home-voice/config"
	"home-voice/internal/application"
)

// Notifier implements application.Notifier by publishing one JSON message
// per result summary on the configured topic.
type Notifier struct {
	client pahomqtt.Client
	id     string
	topic  string
	qos    byte
	now    func() time.Time
	logger *slog.Logger
}

type message struct {
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
	Timestamp string `json:"timestamp"`
}

// Connect dials the broker and announces the assistant online.
func Connect(cfg config.MQTTConfig, logger *slog.Logger) (*Notifier, error) {
	if cfg.QoS > maxQoS {
		return nil, ErrInvalidQoS
	}

	id := clientID(cfg)
	opts := buildClientOptions(cfg, id)

	n := &Notifier{id: id, topic: cfg.Topic, qos: cfg.QoS, now: time.Now, logger: logger}

	opts.SetOnConnectHandler(func(_ pahomqtt.Client) {
		n.publishStatus("online", "")
	})
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		logger.Warn("mqtt connection lost", "error", err)
	})

	n.client = pahomqtt.NewClient(opts)
	token := n.client.Connect()
	if !token.WaitTimeout(defaultConnectTimeout) {
		return nil, fmt.Errorf("%w: timeout after %v", ErrConnectionFailed, defaultConnectTimeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	logger.Info("mqtt notifier connected", "broker", cfg.Broker, "client_id", id, "topic", cfg.Topic)
	return n, nil
}

// NewNotifier wraps an already connected client.
func NewNotifier(client pahomqtt.Client, cfg config.MQTTConfig, logger *slog.Logger) *Notifier {
	return &Notifier{
		client: client,
		id:     clientID(cfg),
		topic:  cfg.Topic,
		qos:    cfg.QoS,
		now:    time.Now,
		logger: logger,
	}
}

func (n *Notifier) Notify(ctx context.Context, text string) error {
	payload, err := json.Marshal(message{
		Message:   text,
		RequestID: application.RequestID(ctx),
		Timestamp: n.now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return fmt.Errorf("encoding notification: %w", err)
	}
	return n.publish(n.topic, payload, false)
}

func (n *Notifier) publish(topic string, payload []byte, retained bool) error {
	if !n.client.IsConnectionOpen() {
		return ErrNotConnected
	}

	token := n.client.Publish(topic, n.qos, retained, payload)
	if !token.WaitTimeout(defaultPublishTimeout) {
		return fmt.Errorf("%w: timeout after %v", ErrPublishFailed, defaultPublishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrPublishFailed, err)
	}
	return nil
}

func (n *Notifier) publishStatus(status, reason string) {
	if err := n.publish(statusTopic(n.topic), []byte(statusPayload(n.id, status, reason)), true); err != nil {
		n.logger.Warn("publishing mqtt status", "status", status, "error", err)
	}
}

// Close publishes a graceful offline status and disconnects.
func (n *Notifier) Close() {
	if n.client == nil {
		return
	}
	if n.client.IsConnectionOpen() {
		n.publishStatus("offline", "graceful_shutdown")
	}
	n.client.Disconnect(disconnectQuiesce)
}
