package pubsub

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
)

// MQTTPublisher publishes task events to an MQTT broker at QoS 1.
type MQTTPublisher struct {
	client      mqtt.Client
	topicPrefix string
	logger      *slog.Logger
}

// MQTTConfig configures the broker connection.
type MQTTConfig struct {
	Broker      string
	Port        int
	Username    string
	Password    string
	TopicPrefix string
}

// NewMQTTPublisher creates the publisher. Connect must be called
// before events are delivered; until then publishes are skipped.
func NewMQTTPublisher(cfg MQTTConfig, logger *slog.Logger) *MQTTPublisher {
	opts := mqtt.NewClientOptions().
		AddBroker(fmt.Sprintf("tcp://%s:%d", cfg.Broker, cfg.Port)).
		SetClientID("taskhive-backend-" + uuid.NewString()[:8]).
		SetConnectTimeout(10 * time.Second).
		SetAutoReconnect(true)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	opts.OnConnect = func(mqtt.Client) {
		logger.Info("mqtt connected", slog.String("broker", cfg.Broker))
	}
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		logger.Warn("mqtt connection lost", slog.Any("err", err))
	}

	return &MQTTPublisher{
		client:      mqtt.NewClient(opts),
		topicPrefix: cfg.TopicPrefix,
		logger:      logger,
	}
}

// Connect dials the broker. Failure is logged, not fatal: the service
// runs without event delivery until the broker is reachable.
func (p *MQTTPublisher) Connect() {
	token := p.client.Connect()
	if !token.WaitTimeout(10*time.Second) || token.Error() != nil {
		p.logger.Error("mqtt connect failed", slog.Any("err", token.Error()))
	}
}

// Disconnect closes the broker connection.
func (p *MQTTPublisher) Disconnect() {
	p.client.Disconnect(250)
	p.logger.Info("mqtt disconnected")
}

// Connected reports the current broker connection state.
func (p *MQTTPublisher) Connected() bool {
	return p.client.IsConnected()
}

// PublishTaskEvent publishes one event for ownerID. Skips silently
// when disconnected.
func (p *MQTTPublisher) PublishTaskEvent(ownerID, eventType string, data any) {
	if !p.client.IsConnected() {
		p.logger.Warn("mqtt not connected, skipping publish", slog.String("event", eventType))
		return
	}

	body, err := json.Marshal(NewPayload(eventType, data))
	if err != nil {
		p.logger.Error("marshal task event", slog.Any("err", err))
		return
	}

	topic := TaskTopic(p.topicPrefix, ownerID)
	token := p.client.Publish(topic, 1, false, body)
	go func() {
		if token.Wait() && token.Error() != nil {
			p.logger.Error("mqtt publish failed",
				slog.String("topic", topic),
				slog.Any("err", token.Error()))
			return
		}
		p.logger.Debug("published task event",
			slog.String("topic", topic),
			slog.String("event", eventType))
	}()
}

// TaskTopic returns the per-user task topic.
func TaskTopic(prefix, ownerID string) string {
	return fmt.Sprintf("%s/user/%s/tasks", prefix, ownerID)
}
