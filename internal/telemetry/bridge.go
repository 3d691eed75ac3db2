package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"depot-backend/internal/metrics"
	"depot-backend/internal/models"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	topicWeight = "weight"
	topicStatus = "status"
	topicCount  = "count"
	topicCmd    = "cmd"
)

var (
	ErrInvalidPayload = errors.New("invalid scale payload")
	ErrUnknownScale   = errors.New("unknown scale serial")
)

const defaultQueueSize = 256

// Options configures a Bridge. An empty Prefix means "scales"; a nil Logger means zap.L().
type Options struct {
	Prefix  string
	QoS     byte
	Metrics *metrics.Metrics
	Logger  *zap.Logger
	// QueueSize bounds the messages waiting for the worker. Zero means 256.
	QueueSize int
}

type message struct {
	topic   string
	payload []byte
}

// Bridge stores weight readings from scales and relays bottle counts back.
type Bridge struct {
	broker  Broker
	db      *gorm.DB
	prefix  string
	qos     byte
	metrics *metrics.Metrics
	log     *zap.Logger
	now     func() time.Time
	queue   chan message
}

func NewBridge(broker Broker, db *gorm.DB, opts Options) *Bridge {
	prefix := strings.Trim(opts.Prefix, "/")
	if prefix == "" {
		prefix = "scales"
	}
	log := opts.Logger
	if log == nil {
		log = zap.L()
	}
	size := opts.QueueSize
	if size <= 0 {
		size = defaultQueueSize
	}
	return &Bridge{
		broker:  broker,
		db:      db,
		prefix:  prefix,
		qos:     opts.QoS,
		metrics: opts.Metrics,
		log:     log.Named("bridge"),
		now:     time.Now,
		queue:   make(chan message, size),
	}
}

// Run subscribes to the scale topics and blocks until ctx is done, then disconnects.
// Broker callbacks only enqueue; a single worker stores readings and publishes counts.
func (b *Bridge) Run(ctx context.Context) error {
	wctx, stop := context.WithCancel(ctx)
	defer stop()
	done := make(chan struct{})
	go func() {
		defer close(done)
		b.work(wctx)
	}()

	for _, kind := range []string{topicWeight, topicStatus} {
		topic := b.prefix + "/+/" + kind
		if err := b.broker.Subscribe(topic, b.qos, b.Enqueue); err != nil {
			b.broker.Disconnect()
			stop()
			<-done
			return fmt.Errorf("telemetry: subscribe %s: %w", topic, err)
		}
	}
	b.log.Info("scale bridge started", zap.String("prefix", b.prefix))

	<-ctx.Done()
	b.broker.Disconnect()
	<-done
	b.log.Info("scale bridge stopped")
	return nil
}

func (b *Bridge) work(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case m := <-b.queue:
			b.HandleMessage(m.topic, m.payload)
		}
	}
}

// Enqueue hands an inbound message to the worker without blocking the broker's callback.
// When the queue is full the message is dropped and counted.
func (b *Bridge) Enqueue(topic string, payload []byte) {
	select {
	case b.queue <- message{topic: topic, payload: payload}:
	default:
		b.metrics.ObserveReading(metrics.ReadingDropped)
		b.log.Warn("bridge queue full, message dropped", zap.String("topic", topic))
	}
}

// ParseTopic splits "{prefix}/{serial}/{kind}".
func ParseTopic(prefix, topic string) (serial, kind string, ok bool) {
	rest, found := strings.CutPrefix(topic, prefix+"/")
	if !found {
		return "", "", false
	}
	parts := strings.Split(rest, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	return parts[0], parts[1], true
}

type weightPayload struct {
	Weight *float64 `json:"weight"`
	Unit   string   `json:"unit"`
	TS     int64    `json:"ts"`
}

// ParseWeight accepts {"weight":..,"unit":"g"|"kg","ts":..} or a bare number of grams.
// A zero time means the payload carried no timestamp.
func ParseWeight(payload []byte) (grams float64, at time.Time, err error) {
	raw := bytes.TrimSpace(payload)
	if len(raw) == 0 {
		return 0, time.Time{}, ErrInvalidPayload
	}

	if raw[0] != '{' {
		v, err := strconv.ParseFloat(string(raw), 64)
		if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
			return 0, time.Time{}, ErrInvalidPayload
		}
		return v, time.Time{}, nil
	}

	var p weightPayload
	if err := json.Unmarshal(raw, &p); err != nil || p.Weight == nil {
		return 0, time.Time{}, ErrInvalidPayload
	}
	grams = *p.Weight
	switch strings.ToLower(p.Unit) {
	case "", "g":
	case "kg":
		grams *= 1000
	default:
		return 0, time.Time{}, ErrInvalidPayload
	}
	if math.IsNaN(grams) || math.IsInf(grams, 0) {
		return 0, time.Time{}, ErrInvalidPayload
	}
	if p.TS > 0 {
		at = time.Unix(p.TS, 0).UTC()
	}
	return grams, at, nil
}

// Estimate derives net grams and whole bottles from a gross weight.
func Estimate(gross, tare, bottleGrams float64) (net float64, bottles int) {
	net = math.Max(gross-tare, 0)
	if bottleGrams <= 0 {
		return net, 0
	}
	return net, int(math.Floor(net / bottleGrams))
}

// HandleMessage dispatches one inbound MQTT message. Failures are logged and counted.
func (b *Bridge) HandleMessage(topic string, payload []byte) {
	serial, kind, ok := ParseTopic(b.prefix, topic)
	if !ok {
		b.log.Debug("ignoring topic", zap.String("topic", topic))
		return
	}

	switch kind {
	case topicWeight:
		if _, err := b.RecordWeight(serial, payload); err != nil {
			switch {
			case errors.Is(err, ErrUnknownScale):
				b.metrics.ObserveReading(metrics.ReadingUnknownScale)
				b.log.Debug("reading from unknown scale dropped", zap.String("serial", serial))
			case errors.Is(err, ErrInvalidPayload):
				b.metrics.ObserveReading(metrics.ReadingInvalid)
				b.log.Warn("invalid weight payload", zap.String("serial", serial), zap.ByteString("payload", payload))
			default:
				b.metrics.ObserveReading(metrics.ReadingFailed)
				b.log.Error("storing reading failed", zap.String("serial", serial), zap.Error(err))
			}
		}
	case topicStatus:
		if err := b.RecordStatus(serial, payload); err != nil {
			b.log.Warn("status update failed", zap.String("serial", serial), zap.Error(err))
		}
	}
}

func (b *Bridge) findScale(serial string) (models.Scale, error) {
	var s models.Scale
	err := b.db.Where("serial = ?", serial).First(&s).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return s, ErrUnknownScale
	}
	return s, err
}

type countPayload struct {
	Bottles  int     `json:"bottles"`
	NetGrams float64 `json:"net_grams"`
	ItemID   *uint   `json:"item_id,omitempty"`
	TS       int64   `json:"ts"`
}

// RecordWeight stores a reading for the scale and publishes the bottle count.
func (b *Bridge) RecordWeight(serial string, payload []byte) (models.ScaleReading, error) {
	gross, at, err := ParseWeight(payload)
	if err != nil {
		return models.ScaleReading{}, err
	}
	scale, err := b.findScale(serial)
	if err != nil {
		return models.ScaleReading{}, err
	}

	now := b.now().UTC()
	if at.IsZero() {
		at = now
	}
	net, bottles := Estimate(gross, scale.TareGrams, scale.BottleGrams)
	reading := models.ScaleReading{
		TenantID:         scale.TenantID,
		ScaleID:          scale.ID,
		GrossGrams:       gross,
		NetGrams:         net,
		EstimatedBottles: bottles,
		ReadAt:           at,
	}

	err = b.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&reading).Error; err != nil {
			return err
		}
		return tx.Model(&scale).Updates(map[string]any{"last_seen_at": now, "online": true}).Error
	})
	if err != nil {
		return reading, fmt.Errorf("telemetry: store reading: %w", err)
	}
	b.metrics.ObserveReading(metrics.ReadingStored)

	out, _ := json.Marshal(countPayload{Bottles: bottles, NetGrams: net, ItemID: scale.ItemID, TS: at.Unix()})
	if err := b.broker.Publish(b.topic(serial, topicCount), b.qos, out); err != nil {
		b.log.Warn("relaying bottle count failed", zap.String("serial", serial), zap.Error(err))
	} else {
		b.metrics.CountRelayed()
	}
	return reading, nil
}

// RecordStatus handles "online" / "offline", plain or as {"status": ...}.
func (b *Bridge) RecordStatus(serial string, payload []byte) error {
	state := strings.ToLower(strings.TrimSpace(string(payload)))
	if strings.HasPrefix(state, "{") {
		var p struct {
			Status string `json:"status"`
		}
		if err := json.Unmarshal(payload, &p); err != nil {
			return ErrInvalidPayload
		}
		state = strings.ToLower(strings.TrimSpace(p.Status))
	}
	if state != "online" && state != "offline" {
		return ErrInvalidPayload
	}

	scale, err := b.findScale(serial)
	if err != nil {
		return err
	}
	b.metrics.ObserveStatus(state)
	b.log.Info("scale status", zap.String("serial", serial), zap.String("state", state))
	return b.db.Model(&scale).Updates(map[string]any{
		"last_seen_at": b.now().UTC(),
		"online":       state == "online",
	}).Error
}

func (b *Bridge) topic(serial, kind string) string {
	return b.prefix + "/" + serial + "/" + kind
}

// SendTare asks the scale to zero itself.
func (b *Bridge) SendTare(serial string) error {
	payload, _ := json.Marshal(map[string]any{"cmd": "tare", "ts": b.now().Unix()})
	if err := b.broker.Publish(b.topic(serial, topicCmd), b.qos, payload); err != nil {
		return fmt.Errorf("telemetry: send tare to %s: %w", serial, err)
	}
	return nil
}
