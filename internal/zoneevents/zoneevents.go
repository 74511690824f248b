// Package zoneevents publishes zone and grid changes to Kafka.
package zoneevents

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/IBM/sarama"

	"github.com/mohammed-shakir/zonegrid/internal/core/observability"
)

type Op string

const (
	GridGenerated Op = "grid.generated"
	GridUpdated   Op = "grid.updated"
	ZoneCreated   Op = "zone.created"
	ZoneUpdated   Op = "zone.updated"
	ZoneDeleted   Op = "zone.deleted"
)

// Event describes one change. Count is the number of documents the change
// wrote, which can be lower than len(ZoneIDs) when patches were no-ops.
type Event struct {
	Op          Op        `json:"op"`
	WarehouseID string    `json:"warehouseId"`
	ZoneIDs     []string  `json:"zoneIds"`
	Count       int       `json:"count"`
	TS          time.Time `json:"ts"`
}

// Emitter is what services publish through. Publish never blocks.
type Emitter interface {
	Publish(ev Event)
}

// Noop discards every event.
type Noop struct{}

func (Noop) Publish(Event) {}

func (Noop) Close() error { return nil }

type Publisher struct {
	topic   string
	prod    sarama.AsyncProducer
	logger  *slog.Logger
	events  chan Event
	stopped chan struct{}

	mu     sync.RWMutex
	closed bool
}

var _ Emitter = (*Publisher)(nil)

func NewPublisher(brokers []string, topic string, queueSize int, logger *slog.Logger) (*Publisher, error) {
	cfg := sarama.NewConfig()
	cfg.Version = sarama.V2_5_0_0
	cfg.Producer.Return.Errors = true
	cfg.Producer.Return.Successes = false
	cfg.Producer.RequiredAcks = sarama.WaitForLocal
	cfg.Producer.Partitioner = sarama.NewHashPartitioner

	prod, err := sarama.NewAsyncProducer(brokers, cfg)
	if err != nil {
		return nil, fmt.Errorf("zoneevents: create async producer: %w", err)
	}
	return newPublisher(prod, topic, queueSize, logger), nil
}

func newPublisher(prod sarama.AsyncProducer, topic string, queueSize int, logger *slog.Logger) *Publisher {
	if queueSize <= 0 {
		queueSize = 1024
	}
	if logger == nil {
		logger = slog.Default()
	}
	p := &Publisher{
		topic:   topic,
		prod:    prod,
		logger:  logger,
		events:  make(chan Event, queueSize),
		stopped: make(chan struct{}),
	}

	go func() {
		defer close(p.stopped)
		for ev := range p.events {
			b, err := json.Marshal(ev)
			if err != nil {
				p.logger.Error("zoneevents: marshal", "op", ev.Op, "err", err)
				continue
			}
			// keyed by warehouse so one warehouse's events stay ordered
			p.prod.Input() <- &sarama.ProducerMessage{
				Topic: p.topic,
				Key:   sarama.StringEncoder(ev.WarehouseID),
				Value: sarama.ByteEncoder(b),
			}
		}
	}()

	go func() {
		for err := range p.prod.Errors() {
			if err != nil {
				observability.IncZoneEvent("failed")
				p.logger.Warn("zoneevents: producer error", "err", err)
			}
		}
	}()

	return p
}

func (p *Publisher) Publish(ev Event) {
	if ev.TS.IsZero() {
		ev.TS = time.Now().UTC()
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		observability.IncZoneEvent("dropped")
		return
	}
	select {
	case p.events <- ev:
		observability.IncZoneEvent("queued")
	default:
		// queue full, drop rather than block the request path
		observability.IncZoneEvent("dropped")
	}
}

// Close drains queued events and closes the producer.
func (p *Publisher) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.events)
	p.mu.Unlock()

	<-p.stopped
	if err := p.prod.Close(); err != nil {
		return fmt.Errorf("zoneevents: close producer: %w", err)
	}
	return nil
}
