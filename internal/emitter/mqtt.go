package emitter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/e7canasta/orion-ppg/internal/config"
	"github.com/e7canasta/orion-ppg/internal/extract"
)

const (
	connectTimeout = 5 * time.Second
	publishTimeout = 2 * time.Second
	// failureLogEvery throttles publish failure logs at capture rate.
	failureLogEvery = 100
)

// ErrNotConnected is returned when publishing without a broker connection.
var ErrNotConnected = errors.New("emitter: mqtt not connected")

// publisher is the part of mqtt.Client the emitter publishes through.
type publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// MQTTEmitter publishes PPG samples and session summaries to an MQTT broker.
type MQTTEmitter struct {
	cfg    config.MQTTConfig
	log    *slog.Logger
	client mqtt.Client
	pub    publisher

	mu        sync.RWMutex
	published map[string]uint64 // count per topic
	errors    uint64
	connected bool
}

// NewMQTTEmitter creates an emitter for cfg. logger may be nil.
func NewMQTTEmitter(cfg config.MQTTConfig, logger *slog.Logger) *MQTTEmitter {
	if logger == nil {
		logger = slog.Default()
	}
	return &MQTTEmitter{
		cfg:       cfg,
		log:       logger,
		published: make(map[string]uint64),
	}
}

// Connect establishes the broker connection. The client keeps reconnecting
// on its own afterwards.
func (e *MQTTEmitter) Connect(ctx context.Context) error {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s", e.cfg.Broker))
	opts.SetClientID(e.cfg.ClientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)

	opts.OnConnect = func(c mqtt.Client) {
		e.setConnected(true)
		e.log.Info("emitter: mqtt connection established",
			"broker", e.cfg.Broker,
			"client_id", e.cfg.ClientID)
	}
	opts.OnConnectionLost = func(c mqtt.Client, err error) {
		e.setConnected(false)
		e.log.Warn("emitter: mqtt connection lost, will auto-reconnect",
			"error", err,
			"broker", e.cfg.Broker)
	}

	e.client = mqtt.NewClient(opts)
	e.pub = e.client

	e.log.Info("emitter: connecting to mqtt broker", "broker", e.cfg.Broker)

	token := e.client.Connect()
	timer := time.NewTimer(connectTimeout)
	defer timer.Stop()
	select {
	case <-token.Done():
	case <-timer.C:
		return fmt.Errorf("emitter: mqtt connection timeout")
	case <-ctx.Done():
		return fmt.Errorf("emitter: connect: %w", ctx.Err())
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("emitter: mqtt connection failed: %w", err)
	}

	e.setConnected(true)
	return nil
}

// PublishSample publishes one sample on the samples topic.
func (e *MQTTEmitter) PublishSample(s extract.Sample) error {
	payload, err := e.encode(s)
	if err != nil {
		e.countError()
		return fmt.Errorf("emitter: encode sample: %w", err)
	}
	return e.publish(e.cfg.Topics.Samples, e.qos("samples"), payload)
}

// PublishSummary publishes v as JSON on the summary topic.
func (e *MQTTEmitter) PublishSummary(v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		e.countError()
		return fmt.Errorf("emitter: encode summary: %w", err)
	}
	return e.publish(e.cfg.Topics.Summary, e.qos("summary"), payload)
}

// Run publishes every sample received on samples until the channel is
// closed or ctx is done.
func (e *MQTTEmitter) Run(ctx context.Context, samples <-chan extract.Sample) {
	var failures uint64
	for {
		select {
		case <-ctx.Done():
			return
		case s, ok := <-samples:
			if !ok {
				return
			}
			if err := e.PublishSample(s); err != nil {
				if failures%failureLogEvery == 0 {
					e.log.Warn("emitter: sample publish failed",
						"timestamp", s.Timestamp,
						"failures", failures+1,
						"error", err)
				}
				failures++
			}
		}
	}
}

// Disconnect closes the broker connection.
func (e *MQTTEmitter) Disconnect() {
	if e.client != nil && e.client.IsConnected() {
		e.client.Disconnect(250)
		e.log.Info("emitter: mqtt disconnected")
	}
	e.setConnected(false)
}

// Stats contains emitter statistics.
type Stats struct {
	Connected bool              `json:"connected"`
	Published map[string]uint64 `json:"published"`
	Errors    uint64            `json:"errors"`
}

// Stats returns emitter statistics.
func (e *MQTTEmitter) Stats() Stats {
	e.mu.RLock()
	defer e.mu.RUnlock()

	published := make(map[string]uint64, len(e.published))
	for k, v := range e.published {
		published[k] = v
	}
	return Stats{
		Connected: e.connected,
		Published: published,
		Errors:    e.errors,
	}
}

func (e *MQTTEmitter) publish(topic string, qos byte, payload []byte) error {
	if !e.isConnected() || e.pub == nil {
		e.countError()
		return ErrNotConnected
	}

	token := e.pub.Publish(topic, qos, false, payload)
	if !token.WaitTimeout(publishTimeout) {
		e.countError()
		return fmt.Errorf("emitter: publish to %s timed out", topic)
	}
	if err := token.Error(); err != nil {
		e.countError()
		return fmt.Errorf("emitter: publish to %s: %w", topic, err)
	}

	e.mu.Lock()
	e.published[topic]++
	e.mu.Unlock()
	return nil
}

func (e *MQTTEmitter) encode(s extract.Sample) ([]byte, error) {
	if e.cfg.Payload == "msgpack" {
		return msgpack.Marshal(s)
	}
	return json.Marshal(s)
}

func (e *MQTTEmitter) qos(kind string) byte {
	if qos, ok := e.cfg.QoS[kind]; ok {
		return qos
	}
	return 0
}

func (e *MQTTEmitter) setConnected(v bool) {
	e.mu.Lock()
	e.connected = v
	e.mu.Unlock()
}

func (e *MQTTEmitter) isConnected() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.connected
}

func (e *MQTTEmitter) countError() {
	e.mu.Lock()
	e.errors++
	e.mu.Unlock()
}
