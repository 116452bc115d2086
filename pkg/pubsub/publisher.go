package pubsub

import (
	"context"
	"errors"
	"time"

	pubsub "cloud.google.com/go/pubsub/v2"
)

const defaultPublishTimeout = 10 * time.Second

type publishResult interface {
	Get(ctx context.Context) (string, error)
}

type publisher interface {
	Publish(ctx context.Context, msg *pubsub.Message) publishResult
}

// MessagePublisher sends a payload with attributes and waits for the server ack.
type MessagePublisher struct {
	pub     publisher
	timeout time.Duration
}

// NewMessagePublisher wraps a v2 publisher handle. A nil handle yields nil.
func NewMessagePublisher(p *pubsub.Publisher) *MessagePublisher {
	if p == nil {
		return nil
	}
	return &MessagePublisher{pub: &gcpPublisher{Publisher: p}, timeout: defaultPublishTimeout}
}

// Publish blocks until the message is acknowledged or the timeout elapses.
func (m *MessagePublisher) Publish(ctx context.Context, data []byte, attrs map[string]string) (string, error) {
	if m == nil || m.pub == nil {
		return "", errors.New("publisher not configured")
	}
	timeout := m.timeout
	if timeout <= 0 {
		timeout = defaultPublishTimeout
	}
	publishCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	result := m.pub.Publish(publishCtx, &pubsub.Message{Data: data, Attributes: attrs})
	if result == nil {
		return "", errors.New("publisher returned nil result")
	}
	return result.Get(publishCtx)
}

type gcpPublisher struct {
	*pubsub.Publisher
}

func (p *gcpPublisher) Publish(ctx context.Context, msg *pubsub.Message) publishResult {
	if p == nil || p.Publisher == nil {
		return nil
	}
	return &gcpPublishResult{PublishResult: p.Publisher.Publish(ctx, msg)}
}

type gcpPublishResult struct {
	*pubsub.PublishResult
}

func (r *gcpPublishResult) Get(ctx context.Context) (string, error) {
	if r == nil || r.PublishResult == nil {
		return "", errors.New("publish result is nil")
	}
	return r.PublishResult.Get(ctx)
}
