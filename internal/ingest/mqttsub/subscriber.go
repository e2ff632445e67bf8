// Package mqttsub ingests sample batches published over MQTT.
package mqttsub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"sleepstage-service/internal/nights"
	"sleepstage-service/internal/platform/metrics"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// DefaultTopic is the subscription filter; the third level is the night ID.
const DefaultTopic = "sleepstage/nights/+/samples"

const handleTimeout = 10 * time.Second

// Sink receives decoded batches. *nights.Service satisfies it.
type Sink interface {
	AddSamples(ctx context.Context, id nights.NightID, b nights.SampleBatch) error
}

// Subscriber forwards MQTT sample messages to a Sink.
type Subscriber struct {
	client  mqtt.Client
	topic   string
	qos     byte
	sink    Sink
	log     *slog.Logger
	metrics *metrics.Metrics
}

// Connect opens an auto-reconnecting MQTT client to broker.
func Connect(broker, clientID, username, password string) (mqtt.Client, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(broker)
	opts.SetClientID(clientID)
	if username != "" {
		opts.SetUsername(username)
	}
	if password != "" {
		opts.SetPassword(password)
	}
	opts.SetAutoReconnect(true)
	opts.SetCleanSession(true)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker: %w", token.Error())
	}
	return client, nil
}

// New returns a Subscriber. An empty topic selects DefaultTopic; m may be nil.
func New(client mqtt.Client, topic string, sink Sink, log *slog.Logger, m *metrics.Metrics) *Subscriber {
	if topic == "" {
		topic = DefaultTopic
	}
	return &Subscriber{client: client, topic: topic, qos: 1, sink: sink, log: log, metrics: m}
}

// Start subscribes to the sample topic.
func (s *Subscriber) Start() error {
	if token := s.client.Subscribe(s.topic, s.qos, s.onMessage); token.Wait() && token.Error() != nil {
		return fmt.Errorf("failed to subscribe to topic %s: %w", s.topic, token.Error())
	}
	s.log.Info("mqtt subscriber started", slog.String("topic", s.topic))
	return nil
}

// Stop unsubscribes and disconnects.
func (s *Subscriber) Stop() {
	if token := s.client.Unsubscribe(s.topic); token.Wait() && token.Error() != nil {
		s.log.Error("mqtt unsubscribe failed", slog.String("error", token.Error().Error()))
	}
	s.client.Disconnect(250)
	s.log.Info("mqtt subscriber stopped")
}

func (s *Subscriber) onMessage(_ mqtt.Client, msg mqtt.Message) {
	ctx, cancel := context.WithTimeout(context.Background(), handleTimeout)
	defer cancel()

	outcome := "accepted"
	if err := s.handle(ctx, msg.Topic(), msg.Payload()); err != nil {
		outcome = "failed"
		if errors.Is(err, errMalformed) || errors.Is(err, nights.ErrInvalidBatch) || errors.Is(err, nights.ErrNightNotFound) {
			outcome = "rejected"
		}
		s.log.Warn("mqtt message dropped",
			slog.String("topic", msg.Topic()),
			slog.String("error", err.Error()))
	}
	if s.metrics != nil {
		s.metrics.IncMQTTMessages(outcome)
	}
}

var errMalformed = errors.New("malformed message")

// handle decodes one message and forwards it to the sink.
func (s *Subscriber) handle(ctx context.Context, topic string, payload []byte) error {
	id, err := nightIDFromTopic(topic)
	if err != nil {
		return err
	}

	var b nights.SampleBatch
	if err := json.Unmarshal(payload, &b); err != nil {
		return fmt.Errorf("%w: %v", errMalformed, err)
	}

	if err := s.sink.AddSamples(ctx, id, b); err != nil {
		return fmt.Errorf("add samples to %s: %w", id, err)
	}
	if s.metrics != nil {
		s.metrics.AddSamplesIngested(b.Size())
	}

	s.log.Debug("mqtt samples ingested",
		slog.String("night_id", string(id)),
		slog.Int("records", b.Size()))
	return nil
}

// nightIDFromTopic extracts the night ID from sleepstage/nights/{id}/samples.
func nightIDFromTopic(topic string) (nights.NightID, error) {
	parts := strings.Split(topic, "/")
	if len(parts) != 4 || parts[1] != "nights" || parts[3] != "samples" || parts[2] == "" {
		return "", fmt.Errorf("%w: unexpected topic %q", errMalformed, topic)
	}
	return nights.NightID(parts[2]), nil
}
