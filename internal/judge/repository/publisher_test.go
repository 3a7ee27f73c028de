package repository

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"judgebox/internal/common/mq"
	"judgebox/internal/judge/catalog"
	"judgebox/internal/judge/model"
	appErr "judgebox/pkg/errors"
)

type fakeProducer struct {
	topic    string
	messages []*mq.Message
	err      error
}

func (f *fakeProducer) Publish(ctx context.Context, topic string, message *mq.Message) error {
	if f.err != nil {
		return f.err
	}
	f.topic = topic
	f.messages = append(f.messages, message)
	return nil
}

func (f *fakeProducer) PublishBatch(ctx context.Context, topic string, messages []*mq.Message) error {
	for _, m := range messages {
		if err := f.Publish(ctx, topic, m); err != nil {
			return err
		}
	}
	return nil
}

func (f *fakeProducer) Close() error { return nil }

func finishedSubmission() *model.Submission {
	elapsed := 0.25
	mem := int64(2048)
	now := time.Now()
	return &model.Submission{
		ID:         7,
		Token:      "tok-7",
		LanguageID: 4,
		Status:     catalog.WrongAnswer,
		FinishedAt: &now,
		Result:     model.Result{Time: &elapsed, Memory: &mem},
	}
}

func TestMQVerdictPublisher(t *testing.T) {
	producer := &fakeProducer{}
	pub := NewMQVerdictPublisher(producer, "judge.verdicts")
	if err := pub.PublishVerdict(context.Background(), finishedSubmission()); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if producer.topic != "judge.verdicts" || len(producer.messages) != 1 {
		t.Fatalf("unexpected publish %q %d", producer.topic, len(producer.messages))
	}
	msg := producer.messages[0]
	if msg.ID != "tok-7" {
		t.Fatalf("expected token key, got %q", msg.ID)
	}
	var event model.VerdictEvent
	if err := json.Unmarshal(msg.Body, &event); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if event.Type != model.VerdictEventFinal || event.Status.ID != catalog.WrongAnswer.ID || *event.Memory != 2048 {
		t.Fatalf("unexpected event %+v", event)
	}
}

func TestMQVerdictPublisherRejects(t *testing.T) {
	pending := finishedSubmission()
	pending.Status = catalog.Processing
	if err := NewMQVerdictPublisher(&fakeProducer{}, "t").PublishVerdict(context.Background(), pending); !appErr.Is(err, appErr.InvalidTransition) {
		t.Fatalf("expected non-final rejection, got %v", err)
	}
	if err := NewMQVerdictPublisher(nil, "t").PublishVerdict(context.Background(), finishedSubmission()); !appErr.Is(err, appErr.ServiceUnavailable) {
		t.Fatalf("expected unavailable, got %v", err)
	}
	failing := &fakeProducer{err: errors.New("broker down")}
	if err := NewMQVerdictPublisher(failing, "t").PublishVerdict(context.Background(), finishedSubmission()); !appErr.Is(err, appErr.MQError) {
		t.Fatalf("expected mq error, got %v", err)
	}
}
