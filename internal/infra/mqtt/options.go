package mqtt

import (
	"encoding/json"
	"fmt"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"home-voice/config"
)

const (
	defaultConnectTimeout = 10 * time.Second
	defaultPublishTimeout = 5 * time.Second
	defaultKeepAlive      = 60 * time.Second

	// milliseconds
	disconnectQuiesce = 500

	maxQoS = 2
)

// clientID returns the configured id or a random one, so two assistants on
// the same broker never kick each other off.
func clientID(cfg config.MQTTConfig) string {
	if cfg.ClientID != "" {
		return cfg.ClientID
	}
	return "home-voice-" + uuid.NewString()[:8]
}

func buildClientOptions(cfg config.MQTTConfig, id string) *pahomqtt.ClientOptions {
	opts := pahomqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s:%d", cfg.Broker, cfg.Port))
	opts.SetClientID(id)

	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectTimeout(defaultConnectTimeout)
	opts.SetKeepAlive(defaultKeepAlive)

	// the broker announces us offline if we vanish without Close
	opts.SetWill(statusTopic(cfg.Topic), statusPayload(id, "offline", "unexpected_disconnect"), 1, true)

	return opts
}

func statusTopic(base string) string {
	return base + "/status"
}

func statusPayload(id, status, reason string) string {
	payload := map[string]string{
		"status":    status,
		"client_id": id,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	if reason != "" {
		payload["reason"] = reason
	}
	data, _ := json.Marshal(payload)
	return string(data)
}
