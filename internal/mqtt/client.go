package mqtt

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/ponytojas/go-freezer-control/config"
	"github.com/ponytojas/go-freezer-control/internal/models"
)

// Commander is the controller surface reachable over MQTT.
type Commander interface {
	Start(ctx context.Context) (models.Outcome, error)
	Stop(ctx context.Context) (models.Outcome, error)
	Poll(ctx context.Context) models.AggregateState
}

// Client handles MQTT connection, telemetry publishing and command processing
type Client struct {
	client  mqtt.Client
	config  *config.Config
	ctrl    Commander
	log     *slog.Logger
	publish func(topic string, payload []byte) error
}

// NewClient creates a new MQTT client
func NewClient(cfg *config.Config, ctrl Commander, log *slog.Logger) (*Client, error) {
	opts := mqtt.NewClientOptions()
	brokerURL := cfg.GetMQTTBrokerURL()
	opts.AddBroker(brokerURL)
	opts.SetClientID(cfg.MQTT.ClientID)

	// Configure TLS if using SSL or HTTPS
	if strings.HasPrefix(brokerURL, "ssl://") || strings.HasPrefix(brokerURL, "wss://") {
		log.Info("configuring TLS for secure connection", "broker", brokerURL)
		opts.SetTLSConfig(&tls.Config{MinVersion: tls.VersionTLS12})
	}

	if cfg.MQTT.Username != "" {
		opts.SetUsername(cfg.MQTT.Username)
		opts.SetPassword(cfg.MQTT.Password)
	}

	c := &Client{
		config: cfg,
		ctrl:   ctrl,
		log:    log,
	}

	opts.SetAutoReconnect(true)
	// Command handlers publish events; with ordered delivery that would
	// block the router waiting on its own ack.
	opts.SetOrderMatters(false)
	opts.SetConnectionLostHandler(func(client mqtt.Client, err error) {
		log.Warn("connection lost", "err", err)
	})
	opts.SetReconnectingHandler(func(client mqtt.Client, opts *mqtt.ClientOptions) {
		log.Info("attempting to reconnect to MQTT broker")
	})
	// Subscriptions are lost on reconnect without a persistent session.
	opts.SetOnConnectHandler(func(client mqtt.Client) {
		if err := c.Subscribe(); err != nil {
			log.Error("failed to subscribe after connect", "err", err)
		}
	})

	c.client = mqtt.NewClient(opts)
	c.publish = c.publishMQTT
	return c, nil
}

// Connect connects to the MQTT broker
func (c *Client) Connect() error {
	token := c.client.Connect()
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("failed to connect to MQTT broker: %w", token.Error())
	}
	c.log.Info("connected to MQTT broker", "broker", c.config.GetMQTTBrokerURL())
	return nil
}

// Subscribe subscribes to the command topic
func (c *Client) Subscribe() error {
	handler := func(client mqtt.Client, msg mqtt.Message) {
		c.log.Debug("received command", "topic", msg.Topic(), "payload", string(msg.Payload()))
		c.processMessage(context.Background(), msg.Payload())
	}

	topic := c.config.MQTT.CommandTopic
	token := c.client.Subscribe(topic, 1, handler)
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("failed to subscribe to topic %s: %w", topic, token.Error())
	}
	c.log.Info("subscribed to command topic", "topic", topic)
	return nil
}

// Disconnect disconnects from the MQTT broker
func (c *Client) Disconnect() {
	c.client.Disconnect(250)
	c.log.Info("disconnected from MQTT broker")
}

func (c *Client) publishMQTT(topic string, payload []byte) error {
	token := c.client.Publish(topic, 1, false, payload)
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("publish to %s timed out", topic)
	}
	return token.Error()
}

// RecordPoll publishes the aggregate on the state topic
func (c *Client) RecordPoll(_ context.Context, state models.AggregateState) error {
	return c.publishJSON(c.config.MQTT.StateTopic, statePayload{Type: "poll", Aggregate: &state})
}

// RecordEvent publishes an actuator event on the events topic
func (c *Client) RecordEvent(_ context.Context, event models.ActuatorEvent) error {
	msg := event.Message()
	return c.publishJSON(c.eventsTopic(), statePayload{Type: "event", Event: &msg})
}

func (c *Client) eventsTopic() string {
	return c.config.MQTT.StateTopic + "/events"
}

type statePayload struct {
	Type      string                 `json:"type"`
	Aggregate *models.AggregateState `json:"aggregate,omitempty"`
	Event     *models.EventMessage   `json:"event,omitempty"`
}

func (c *Client) publishJSON(topic string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	if err := c.publish(topic, payload); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", topic, err)
	}
	return nil
}

// processMessage decodes a command and runs it against the controller.
// Start and stop outcomes reach subscribers through RecordEvent; a poll
// result through RecordPoll.
func (c *Client) processMessage(ctx context.Context, payload []byte) {
	var rawData map[string]interface{}
	if err := json.Unmarshal(payload, &rawData); err != nil {
		c.log.Warn("error unmarshaling command", "err", err)
		return
	}

	command, ok := rawData["command"].(string)
	if !ok {
		c.log.Warn("command is missing or not a string")
		return
	}

	switch strings.ToLower(strings.TrimSpace(command)) {
	case "start":
		if _, err := c.ctrl.Start(ctx); err != nil {
			c.log.Error("start command failed", "err", err)
		}
	case "stop":
		if _, err := c.ctrl.Stop(ctx); err != nil {
			c.log.Error("stop command failed", "err", err)
		}
	case "poll":
		c.ctrl.Poll(ctx)
	default:
		c.log.Warn("unknown command", "command", command)
	}
}
