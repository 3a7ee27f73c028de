package mq

import (
	"context"
	"testing"
	"time"
)

func TestToKafkaMessage(t *testing.T) {
	msg := NewMessage([]byte(`{"token":"abc"}`))
	msg.ID = "abc"
	msg.SetHeader("event", "final")

	km := toKafkaMessage("judge.verdicts", msg)
	if km.Topic != "judge.verdicts" || string(km.Key) != "abc" || string(km.Value) != `{"token":"abc"}` {
		t.Fatalf("unexpected kafka message %+v", km)
	}
	headers := map[string]string{}
	for _, h := range km.Headers {
		headers[h.Key] = string(h.Value)
	}
	if headers["event"] != "final" || headers[headerID] != "abc" {
		t.Fatalf("unexpected headers %v", headers)
	}
	if _, err := time.Parse(time.RFC3339Nano, headers[headerTimestamp]); err != nil {
		t.Fatalf("bad timestamp header: %v", err)
	}
}

func TestNewKafkaProducerRequiresBrokers(t *testing.T) {
	if _, err := NewKafkaProducer(KafkaConfig{}); err == nil {
		t.Fatalf("expected error without brokers")
	}
}

func TestKafkaProducerValidatesInput(t *testing.T) {
	p, err := NewKafkaProducer(KafkaConfig{Brokers: []string{"127.0.0.1:9"}})
	if err != nil {
		t.Fatalf("new producer: %v", err)
	}
	defer p.Close()
	ctx := context.Background()
	if err := p.Publish(ctx, "", NewMessage(nil)); err == nil {
		t.Fatalf("expected topic error")
	}
	if err := p.Publish(ctx, "t", nil); err == nil {
		t.Fatalf("expected nil message error")
	}
	if err := p.PublishBatch(ctx, "t", nil); err == nil {
		t.Fatalf("expected empty batch error")
	}
	if err := p.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
}
