package service

import (
	"Wayfarer/internal/common"
	"Wayfarer/internal/queue"
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
)

// TaskSupportNotify delivers a SupportNotification into the user's support thread.
const TaskSupportNotify = "support:notify"

// Notification events
const (
	NotificationApproved = "approved"
	NotificationRejected = "rejected"
)

const (
	inlineDeliveryTimeout = 30 * time.Second
	taskRetention         = 24 * time.Hour
)

// SupportNotification is a system message to post into the support thread of
// (UserID, Reason, RefID) for a workflow event.
type SupportNotification struct {
	UserID string `json:"userId"`
	Reason string `json:"reason"`
	RefID  string `json:"refId"`
	Event  string `json:"event"`
	Text   string `json:"text"`
}

// DedupeKey identifies the notification independent of its text, so
// redelivery of the same event never posts twice.
func (n SupportNotification) DedupeKey() string {
	sum := sha1.Sum([]byte(strings.Join([]string{n.UserID, n.Reason, n.RefID, n.Event}, "|")))
	return hex.EncodeToString(sum[:])
}

// Dispatcher hands notifications off for asynchronous delivery. A nil error
// means the notification was accepted, not that it was delivered.
type Dispatcher interface {
	Dispatch(ctx context.Context, n SupportNotification) error
}

// -----------------------------------------------------------------------------
// Delivery
// -----------------------------------------------------------------------------

// NotificationDeliverer posts notifications into support conversations.
type NotificationDeliverer struct {
	conversations ConversationService
	messages      MessageService
	logger        *zap.Logger
}

func NewNotificationDeliverer(conversations ConversationService, messages MessageService, logger *zap.Logger) *NotificationDeliverer {
	return &NotificationDeliverer{
		conversations: conversations,
		messages:      messages,
		logger:        logger,
	}
}

// Deliver resolves the thread, appends the message at most once and emits it.
// The emit is repeated on redelivery so a crash between append and emit does
// not lose the realtime event.
func (d *NotificationDeliverer) Deliver(ctx context.Context, n SupportNotification) error {
	conversation, err := d.conversations.GetOrCreate(ctx, n.UserID, n.Reason, n.RefID)
	if err != nil {
		if common.IsKind(err, common.KindValidation) {
			return fmt.Errorf("resolve conversation: %v: %w", err, queue.ErrSkipRetry)
		}
		return fmt.Errorf("resolve conversation: %w", err)
	}

	msg, appended, err := d.messages.AppendNotification(ctx, conversation.ID, n.Text, n.DedupeKey())
	if err != nil {
		return fmt.Errorf("append notification: %w", err)
	}

	d.messages.Broadcast(ctx, conversation, msg)

	result := "delivered"
	if !appended {
		result = "redelivered"
	}
	notificationsTotal.WithLabelValues(result).Inc()

	d.logger.Info("support notification delivered",
		zap.String("conversation_id", conversation.ID.Hex()),
		zap.String("user_id", n.UserID),
		zap.String("event", n.Event),
		zap.Bool("appended", appended),
	)
	return nil
}

// HandleTask is the queue handler for TaskSupportNotify.
func (d *NotificationDeliverer) HandleTask(ctx context.Context, task queue.Task) error {
	var n SupportNotification
	if err := json.Unmarshal(task.Payload, &n); err != nil {
		d.logger.Error("malformed notification payload", zap.Error(err))
		return fmt.Errorf("decode notification: %v: %w", err, queue.ErrSkipRetry)
	}
	return d.Deliver(ctx, n)
}

// RegisterNotificationTask binds the deliverer to srv.
func RegisterNotificationTask(srv queue.Server, d *NotificationDeliverer) {
	srv.Register(TaskSupportNotify, d.HandleTask)
}

// -----------------------------------------------------------------------------
// Dispatchers
// -----------------------------------------------------------------------------

// QueueDispatcher enqueues notifications as tasks keyed by their dedupe key.
type QueueDispatcher struct {
	client    queue.Client
	queueName string
	maxRetry  int
	logger    *zap.Logger
}

func NewQueueDispatcher(client queue.Client, queueName string, maxRetry int, logger *zap.Logger) *QueueDispatcher {
	return &QueueDispatcher{
		client:    client,
		queueName: queueName,
		maxRetry:  maxRetry,
		logger:    logger,
	}
}

func (q *QueueDispatcher) Dispatch(ctx context.Context, n SupportNotification) error {
	payload, err := json.Marshal(n)
	if err != nil {
		return err
	}

	key := n.DedupeKey()
	id, err := q.client.Enqueue(ctx, queue.Task{Type: TaskSupportNotify, Payload: payload}, queue.EnqueueOption{
		Queue:     q.queueName,
		TaskID:    key,
		MaxRetry:  q.maxRetry,
		Retention: taskRetention,
	})
	if errors.Is(err, queue.ErrDuplicateTask) {
		notificationsTotal.WithLabelValues("duplicate").Inc()
		q.logger.Debug("notification already queued", zap.String("dedupe_key", key))
		return nil
	}
	if err != nil {
		notificationsTotal.WithLabelValues("failed").Inc()
		return fmt.Errorf("enqueue notification: %w", err)
	}

	notificationsTotal.WithLabelValues("enqueued").Inc()
	q.logger.Debug("notification enqueued", zap.String("task_id", id), zap.String("event", n.Event))
	return nil
}

// InlineDispatcher delivers on a detached goroutine. Used when no queue
// backend is configured; nothing is retried.
type InlineDispatcher struct {
	deliverer *NotificationDeliverer
	logger    *zap.Logger
}

func NewInlineDispatcher(deliverer *NotificationDeliverer, logger *zap.Logger) *InlineDispatcher {
	return &InlineDispatcher{deliverer: deliverer, logger: logger}
}

func (i *InlineDispatcher) Dispatch(_ context.Context, n SupportNotification) error {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), inlineDeliveryTimeout)
		defer cancel()

		if err := i.deliverer.Deliver(ctx, n); err != nil {
			notificationsTotal.WithLabelValues("failed").Inc()
			i.logger.Error("inline notification delivery failed",
				zap.String("user_id", n.UserID),
				zap.String("event", n.Event),
				zap.Error(err),
			)
		}
	}()
	return nil
}
