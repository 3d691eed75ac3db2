// Package telemetry bridges bottle scales speaking MQTT to the depot database.
package telemetry

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"depot-backend/internal/config"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// MessageHandler receives the topic and raw payload of an inbound message.
type MessageHandler func(topic string, payload []byte)

// Broker is the slice of an MQTT client the bridge needs.
type Broker interface {
	Subscribe(topic string, qos byte, handler MessageHandler) error
	Publish(topic string, qos byte, payload []byte) error
	Disconnect()
}

const (
	connectTimeout   = 10 * time.Second
	operationTimeout = 5 * time.Second
	quiesceMillis    = 250
)

type subscription struct {
	qos     byte
	handler MessageHandler
}

// PahoBroker wraps a paho client and replays subscriptions after every (re)connect.
type PahoBroker struct {
	client mqtt.Client

	mu   sync.Mutex
	subs map[string]subscription
}

// NewPahoBroker connects to cfg.MQTTBrokerURL. Reconnects are left to paho.
// The client id gets a random suffix per process. Handlers run unordered and must not block.
func NewPahoBroker(cfg *config.Config) (*PahoBroker, error) {
	if cfg.MQTTBrokerURL == "" {
		return nil, errors.New("telemetry: MQTT_BROKER_URL is empty")
	}

	p := &PahoBroker{subs: make(map[string]subscription)}

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.MQTTBrokerURL).
		SetClientID(cfg.MQTTClientID + "-" + uuid.NewString()[:8]).
		SetAutoReconnect(true).
		SetOrderMatters(false).
		SetOnConnectHandler(p.resubscribe).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			zap.L().Warn("mqtt connection lost", zap.Error(err))
		})
	if cfg.MQTTUsername != "" {
		opts.SetUsername(cfg.MQTTUsername)
		opts.SetPassword(cfg.MQTTPassword)
	}

	p.client = mqtt.NewClient(opts)
	tok := p.client.Connect()
	if !tok.WaitTimeout(connectTimeout) {
		return nil, fmt.Errorf("telemetry: connect to %s timed out", cfg.MQTTBrokerURL)
	}
	if err := tok.Error(); err != nil {
		return nil, fmt.Errorf("telemetry: connect to %s: %w", cfg.MQTTBrokerURL, err)
	}
	return p, nil
}

func (p *PahoBroker) resubscribe(c mqtt.Client) {
	p.mu.Lock()
	subs := make(map[string]subscription, len(p.subs))
	for topic, s := range p.subs {
		subs[topic] = s
	}
	p.mu.Unlock()

	for topic, s := range subs {
		if err := p.subscribe(c, topic, s); err != nil {
			zap.L().Error("mqtt resubscribe failed", zap.String("topic", topic), zap.Error(err))
		}
	}
	zap.L().Info("mqtt connected", zap.Int("subscriptions", len(subs)))
}

func (p *PahoBroker) subscribe(c mqtt.Client, topic string, s subscription) error {
	tok := c.Subscribe(topic, s.qos, func(_ mqtt.Client, m mqtt.Message) {
		s.handler(m.Topic(), m.Payload())
	})
	if !tok.WaitTimeout(operationTimeout) {
		return fmt.Errorf("telemetry: subscribe %s timed out", topic)
	}
	return tok.Error()
}

func (p *PahoBroker) Subscribe(topic string, qos byte, handler MessageHandler) error {
	s := subscription{qos: qos, handler: handler}
	p.mu.Lock()
	p.subs[topic] = s
	p.mu.Unlock()
	return p.subscribe(p.client, topic, s)
}

func (p *PahoBroker) Publish(topic string, qos byte, payload []byte) error {
	tok := p.client.Publish(topic, qos, false, payload)
	if !tok.WaitTimeout(operationTimeout) {
		return fmt.Errorf("telemetry: publish %s timed out", topic)
	}
	return tok.Error()
}

func (p *PahoBroker) Disconnect() {
	p.client.Disconnect(quiesceMillis)
}
