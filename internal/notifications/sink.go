package notifications

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/quotaclub/settlement/pkg/db/models"
	"github.com/quotaclub/settlement/pkg/enums"
	"github.com/quotaclub/settlement/pkg/logger"
)

const (
	eventTypeAttribute = "event_type"
	eventTypeNotice    = "member_notification"
	deliveryTimeout    = 5 * time.Second
)

// Message is one notice addressed to a member.
type Message struct {
	UserID uuid.UUID              `json:"user_id"`
	Type   enums.NotificationType `json:"type"`
	Title  string                 `json:"title"`
	Body   string                 `json:"body"`
}

// Publisher fans a notice out to push delivery. *pubsub.MessagePublisher satisfies it.
type Publisher interface {
	Publish(ctx context.Context, data []byte, attrs map[string]string) (string, error)
}

// Sink accepts notices once the scope that produced them has committed.
type Sink interface {
	Notify(ctx context.Context, messages ...Message)
}

// Notifier writes the member inbox and, when configured, publishes each
// notice in the background. Call Wait before shutdown to drain publishes.
type Notifier struct {
	repo      Repository
	publisher Publisher
	logg      *logger.Logger
	inflight  sync.WaitGroup
}

// NewNotifier builds a notifier. publisher may be nil to keep notices in the inbox only.
func NewNotifier(repo Repository, publisher Publisher, logg *logger.Logger) *Notifier {
	if logg == nil {
		logg = logger.Nop()
	}
	return &Notifier{repo: repo, publisher: publisher, logg: logg}
}

// Notify writes each message to the inbox and hands it to the publisher
// without waiting for delivery. Failures are logged, never returned.
func (n *Notifier) Notify(ctx context.Context, messages ...Message) {
	if n == nil {
		return
	}
	// Detached so a caller that already returned cannot cancel delivery.
	ctx = context.WithoutCancel(ctx)
	for _, msg := range messages {
		if msg.UserID == uuid.Nil || !msg.Type.IsValid() {
			continue
		}
		if err := n.writeInbox(ctx, msg); err != nil {
			n.logFailure(ctx, msg, "inbox write failed", err)
		}
		if n.publisher == nil {
			continue
		}
		n.inflight.Add(1)
		go func(msg Message) {
			defer n.inflight.Done()
			if err := n.publish(ctx, msg); err != nil {
				n.logFailure(ctx, msg, "notification publish failed", err)
			}
		}(msg)
	}
}

// Wait blocks until every publish started by Notify has finished.
func (n *Notifier) Wait() {
	if n == nil {
		return
	}
	n.inflight.Wait()
}

func (n *Notifier) writeInbox(ctx context.Context, msg Message) error {
	if n.repo == nil {
		return nil
	}
	writeCtx, cancel := context.WithTimeout(ctx, deliveryTimeout)
	defer cancel()
	return n.repo.Create(writeCtx, &models.Notification{
		UserID:  msg.UserID,
		Type:    msg.Type,
		Title:   msg.Title,
		Message: msg.Body,
	})
}

func (n *Notifier) publish(ctx context.Context, msg Message) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	publishCtx, cancel := context.WithTimeout(ctx, deliveryTimeout)
	defer cancel()
	_, err = n.publisher.Publish(publishCtx, payload, map[string]string{
		eventTypeAttribute: eventTypeNotice,
		"user_id":          msg.UserID.String(),
	})
	return err
}

func (n *Notifier) logFailure(ctx context.Context, msg Message, what string, err error) {
	logCtx := n.logg.WithFields(ctx, map[string]any{
		"user_id":           msg.UserID.String(),
		"notification_type": string(msg.Type),
	})
	n.logg.Warn(logCtx, what+": "+err.Error())
}
