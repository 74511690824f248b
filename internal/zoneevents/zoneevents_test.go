package zoneevents

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
)

func TestPublisher_SendsKeyedJSON(t *testing.T) {
	cfg := mocks.NewTestConfig()
	prod := mocks.NewAsyncProducer(t, cfg)

	var got Event
	var key string
	prod.ExpectInputWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		k, _ := msg.Key.Encode()
		key = string(k)
		v, _ := msg.Value.Encode()
		return json.Unmarshal(v, &got)
	})

	p := newPublisher(prod, "zone-events", 4, nil)
	// no document changed, so the count stays zero
	p.Publish(Event{Op: GridUpdated, WarehouseID: "wh-1", ZoneIDs: []string{"a", "b"}})
	if err := p.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	if key != "wh-1" {
		t.Fatalf("key=%q want wh-1", key)
	}
	if got.Op != GridUpdated || got.Count != 0 || len(got.ZoneIDs) != 2 {
		t.Fatalf("unexpected event %+v", got)
	}
	if got.TS.IsZero() || time.Since(got.TS) > time.Minute {
		t.Fatalf("timestamp not stamped: %v", got.TS)
	}
}

func TestPublisher_PublishAfterCloseIsDropped(t *testing.T) {
	prod := mocks.NewAsyncProducer(t, mocks.NewTestConfig())
	p := newPublisher(prod, "zone-events", 1, nil)
	if err := p.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	p.Publish(Event{Op: ZoneDeleted, WarehouseID: "wh-1"})
	if err := p.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}

func TestNoop(t *testing.T) {
	var e Emitter = Noop{}
	e.Publish(Event{Op: ZoneCreated})
	if err := (Noop{}).Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}
