package repo

import (
	"Wayfarer/internal/db"
	"Wayfarer/internal/model"
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

// MessageRepository appends to and updates the message logs embedded in
// conversation documents. Every write is a single atomic update; the
// conversation document is never rewritten as a whole.
type MessageRepository interface {
	// Append pushes msg onto the conversation log. The returned bool is false
	// when the message (same id or dedupe key) was already stored, in which
	// case the stored copy is returned.
	Append(ctx context.Context, conversationID primitive.ObjectID, msg model.Message) (*model.Message, bool, error)
	MarkSeen(ctx context.Context, conversationID primitive.ObjectID, messageIDs []primitive.ObjectID) (int64, error)
}

type messageRepository struct {
	mongoRepo *db.Repository[model.Conversation]
	logger    *zap.Logger
}

func NewMessageRepository(repo *db.Repository[model.Conversation], logger *zap.Logger) MessageRepository {
	return &messageRepository{
		mongoRepo: repo,
		logger:    logger,
	}
}

// -----------------------------------------------------------------------------
// Append
// -----------------------------------------------------------------------------

func (m *messageRepository) Append(ctx context.Context, conversationID primitive.ObjectID, msg model.Message) (*model.Message, bool, error) {
	if err := m.validateMessage(msg); err != nil {
		return nil, false, err
	}

	ctx, cancel := ensureTimeout(ctx, defaultWriteTimeout)
	defer cancel()

	// The guard on messages._id makes a retried push after a lost ack a no-op.
	filter := db.NewFilter().
		Eq("_id", conversationID).
		Ne("messages._id", msg.ID).
		When(msg.DedupeKey != "", func(f *db.FilterBuilder) { f.Ne("messages.dedupe_key", msg.DedupeKey) }).
		Build()

	update := bson.M{
		"$push": bson.M{"messages": msg},
		"$set": bson.M{
			"last_message_at": msg.Timestamp,
			"updated_at":      time.Now().UTC(),
		},
	}

	var matched int64
	attempt := 0
	err := withRetry(ctx, func() error {
		attempt++
		result, err := m.mongoRepo.UpdateRaw(ctx, filter, update)
		if err != nil {
			m.logger.Warn("append attempt failed",
				zap.Error(err),
				zap.Int("attempt", attempt),
				zap.Int("max_attempts", maxRetries),
			)
			return err
		}
		matched = result.MatchedCount
		return nil
	})
	if err != nil {
		m.logger.Error("failed to append message after all retries",
			zap.Error(err),
			zap.String("conversation_id", conversationID.Hex()),
		)
		return nil, false, fmt.Errorf("append message failed: %w", err)
	}

	if matched == 1 {
		m.logger.Info("message appended",
			zap.String("conversation_id", conversationID.Hex()),
			zap.String("message_id", msg.ID.Hex()),
			zap.Int("attempt", attempt),
		)
		return &msg, true, nil
	}

	// Nothing matched: either the conversation is gone or the message is already there.
	existing, err := m.findStored(ctx, conversationID, msg)
	if err != nil {
		return nil, false, err
	}
	m.logger.Debug("message already stored",
		zap.String("conversation_id", conversationID.Hex()),
		zap.String("message_id", existing.ID.Hex()),
	)
	return existing, false, nil
}

// -----------------------------------------------------------------------------
// MarkSeen
// -----------------------------------------------------------------------------

// MarkSeen flips seen on the listed messages that are still unseen.
func (m *messageRepository) MarkSeen(ctx context.Context, conversationID primitive.ObjectID, messageIDs []primitive.ObjectID) (int64, error) {
	if len(messageIDs) == 0 {
		return 0, nil
	}

	ctx, cancel := ensureTimeout(ctx, defaultWriteTimeout)
	defer cancel()

	opts := options.Update().SetArrayFilters(options.ArrayFilters{
		Filters: []interface{}{
			bson.M{"m._id": bson.M{"$in": messageIDs}, "m.seen": false},
		},
	})

	var modified int64
	err := withRetry(ctx, func() error {
		result, err := m.mongoRepo.UpdateRaw(ctx,
			bson.M{"_id": conversationID},
			bson.M{"$set": bson.M{"messages.$[m].seen": true}},
			opts,
		)
		if err != nil {
			return err
		}
		if result.MatchedCount == 0 {
			return ErrNotFound
		}
		modified = result.ModifiedCount
		return nil
	})
	if err != nil {
		m.logger.Error("failed to mark messages seen",
			zap.String("conversation_id", conversationID.Hex()),
			zap.Int("messages", len(messageIDs)),
			zap.Error(err),
		)
		return 0, err
	}

	return modified, nil
}

// -----------------------------------------------------------------------------
// Private Helper Methods
// -----------------------------------------------------------------------------

func (m *messageRepository) findStored(ctx context.Context, conversationID primitive.ObjectID, msg model.Message) (*model.Message, error) {
	conversation, err := m.mongoRepo.FindByID(ctx, conversationID)
	if err != nil {
		return nil, translate(err)
	}

	for i := range conversation.Messages {
		stored := conversation.Messages[i]
		if stored.ID == msg.ID || (msg.DedupeKey != "" && stored.DedupeKey == msg.DedupeKey) {
			return &stored, nil
		}
	}

	// Matched nothing yet no copy exists: the push raced with a delete or the
	// filter is inconsistent with the document.
	return nil, fmt.Errorf("append to %s matched no document", conversationID.Hex())
}

func (m *messageRepository) validateMessage(msg model.Message) error {
	if msg.ID.IsZero() || msg.Sender.IsZero() || msg.Text == "" {
		return ErrInvalidMessage
	}
	return nil
}
