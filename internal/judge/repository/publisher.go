package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"judgebox/internal/common/mq"
	"judgebox/internal/judge/model"
	appErr "judgebox/pkg/errors"
)

// VerdictPublisher announces submissions that reached a terminal status.
type VerdictPublisher interface {
	PublishVerdict(ctx context.Context, sub *model.Submission) error
}

// MQVerdictPublisher publishes verdict events to a message queue.
type MQVerdictPublisher struct {
	producer mq.Producer
	topic    string
	now      func() time.Time
}

func NewMQVerdictPublisher(producer mq.Producer, topic string) *MQVerdictPublisher {
	return &MQVerdictPublisher{producer: producer, topic: topic, now: time.Now}
}

// PublishVerdict publishes the final event keyed by token.
func (p *MQVerdictPublisher) PublishVerdict(ctx context.Context, sub *model.Submission) error {
	if p == nil || p.producer == nil {
		return appErr.New(appErr.ServiceUnavailable).WithMessage("verdict publisher is not configured")
	}
	if p.topic == "" {
		return appErr.New(appErr.InvalidParams).WithMessage("verdict topic is required")
	}
	if sub == nil || sub.Token == "" {
		return appErr.ValidationError("token", "required")
	}
	if !sub.Status.Terminal() {
		return appErr.Newf(appErr.InvalidTransition, "submission %s is not final", sub.Token)
	}
	payload, err := json.Marshal(model.NewVerdictEvent(sub, p.now()))
	if err != nil {
		return fmt.Errorf("marshal verdict event failed: %w", err)
	}
	message := mq.NewMessage(payload)
	message.ID = sub.Token
	message.SetHeader("event", model.VerdictEventFinal)
	if err := p.producer.Publish(ctx, p.topic, message); err != nil {
		return appErr.Wrapf(err, appErr.MQError, "publish verdict event failed")
	}
	return nil
}

// NoopPublisher drops every event.
type NoopPublisher struct{}

func (NoopPublisher) PublishVerdict(context.Context, *model.Submission) error {
	return nil
}
