package repo

import (
	"Wayfarer/internal/db"
	"Wayfarer/internal/model"
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

// SupportQuery filters the admin support conversation list.
type SupportQuery struct {
	Page   int64
	Limit  int64
	Status string
	Reason string
}

type ConversationRepository interface {
	EnsureIndexes(ctx context.Context) error
	GetByID(ctx context.Context, id primitive.ObjectID) (*model.Conversation, error)
	FindSupport(ctx context.Context, participantKey, reason, refID string) (*model.Conversation, error)
	UpsertSupport(ctx context.Context, conv *model.Conversation) (*model.Conversation, error)
	ListSupport(ctx context.Context, q SupportQuery) (*db.PaginatedResult[model.Conversation], error)
	ListByParticipant(ctx context.Context, userID primitive.ObjectID) ([]model.Conversation, error)
	SetStatusByRelated(ctx context.Context, reason, refID, status string) (int64, error)
}

type conversationRepository struct {
	mongoRepo *db.Repository[model.Conversation]
	logger    *zap.Logger
}

func NewConversationRepository(repo *db.Repository[model.Conversation], logger *zap.Logger) ConversationRepository {
	return &conversationRepository{
		mongoRepo: repo,
		logger:    logger,
	}
}

// EnsureIndexes creates the unique (type, participant_key, related_key) index
// that makes find-or-create safe under concurrent callers.
func (r *conversationRepository) EnsureIndexes(ctx context.Context) error {
	ctx, cancel := ensureTimeout(ctx, defaultReadTimeout)
	defer cancel()

	return r.mongoRepo.EnsureIndexes(ctx, []mongo.IndexModel{
		{
			Keys: bson.D{
				{Key: "type", Value: 1},
				{Key: "participant_key", Value: 1},
				{Key: "related_key", Value: 1},
			},
			Options: options.Index().
				SetName("uniq_support_thread").
				SetUnique(true).
				SetPartialFilterExpression(bson.M{"type": model.ConversationTypeAdminSupport}),
		},
		{
			Keys:    bson.D{{Key: "participants", Value: 1}, {Key: "updated_at", Value: -1}},
			Options: options.Index().SetName("participants_updated"),
		},
		{
			Keys:    bson.D{{Key: "related_entity.type", Value: 1}, {Key: "related_entity.ref_id", Value: 1}},
			Options: options.Index().SetName("related_entity"),
		},
	})
}

// GetByID fetches a conversation document by ID
func (r *conversationRepository) GetByID(ctx context.Context, id primitive.ObjectID) (*model.Conversation, error) {
	ctx, cancel := ensureTimeout(ctx, defaultReadTimeout)
	defer cancel()

	conversation, err := r.mongoRepo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			r.logger.Debug("conversation not found", zap.String("conversation_id", id.Hex()))
			return nil, ErrNotFound
		}
		r.logger.Error("failed to fetch conversation",
			zap.String("conversation_id", id.Hex()),
			zap.Error(err),
		)
		return nil, fmt.Errorf("failed to fetch conversation: %w", err)
	}

	return conversation, nil
}

// FindSupport looks up the support thread of a participant pair. With a refID
// the exact (reason, refID) thread is returned; without one, the most recently
// active thread for the reason.
func (r *conversationRepository) FindSupport(ctx context.Context, participantKey, reason, refID string) (*model.Conversation, error) {
	ctx, cancel := ensureTimeout(ctx, defaultReadTimeout)
	defer cancel()

	filter := db.NewFilter().
		Eq("type", model.ConversationTypeAdminSupport).
		Eq("participant_key", participantKey).
		When(refID != "", func(f *db.FilterBuilder) { f.Eq("related_key", model.RelatedKey(reason, refID)) }).
		When(refID == "", func(f *db.FilterBuilder) { f.Eq("related_entity.type", reason) }).
		Build()

	opts := options.FindOne().SetSort(bson.D{
		{Key: "last_message_at", Value: -1},
		{Key: "created_at", Value: -1},
	})

	conversation, err := r.mongoRepo.FindOne(ctx, filter, opts)
	if err != nil {
		return nil, translate(err)
	}
	return conversation, nil
}

// UpsertSupport returns the thread identified by conv's keys, inserting conv
// when it does not exist yet. Two concurrent upserts can both miss and one of
// them then fails on the unique index; that caller re-reads the winner.
func (r *conversationRepository) UpsertSupport(ctx context.Context, conv *model.Conversation) (*model.Conversation, error) {
	ctx, cancel := ensureTimeout(ctx, defaultWriteTimeout)
	defer cancel()

	filter := bson.M{
		"type":            model.ConversationTypeAdminSupport,
		"participant_key": conv.ParticipantKey,
		"related_key":     conv.RelatedKey,
	}
	setOnInsert := bson.M{
		"participants":   conv.Participants,
		"related_entity": conv.RelatedEntity,
		"messages":       bson.A{},
		"status":         conv.Status,
		"created_at":     conv.CreatedAt,
		"updated_at":     conv.UpdatedAt,
	}

	var result *model.Conversation
	err := withRetry(ctx, func() error {
		var upsertErr error
		result, upsertErr = r.mongoRepo.Upsert(ctx, filter, setOnInsert)
		return upsertErr
	})
	if err == nil {
		return result, nil
	}

	if mongo.IsDuplicateKeyError(err) {
		r.logger.Debug("concurrent support thread creation, re-reading",
			zap.String("participant_key", conv.ParticipantKey),
			zap.String("related_key", conv.RelatedKey),
		)
		existing, findErr := r.mongoRepo.FindOne(ctx, filter)
		if findErr != nil {
			return nil, translate(findErr)
		}
		return existing, nil
	}

	r.logger.Error("failed to upsert support conversation",
		zap.String("participant_key", conv.ParticipantKey),
		zap.Error(err),
	)
	return nil, fmt.Errorf("upsert support conversation: %w", err)
}

func (r *conversationRepository) ListSupport(ctx context.Context, q SupportQuery) (*db.PaginatedResult[model.Conversation], error) {
	ctx, cancel := ensureTimeout(ctx, defaultReadTimeout)
	defer cancel()

	filter := db.NewFilter().
		Eq("type", model.ConversationTypeAdminSupport).
		When(q.Status != "", func(f *db.FilterBuilder) { f.Eq("status", q.Status) }).
		When(q.Reason != "", func(f *db.FilterBuilder) { f.Eq("related_entity.type", q.Reason) }).
		Build()

	result, err := r.mongoRepo.FindWithPagination(ctx, filter, db.PaginationParams{
		Page:     q.Page,
		PageSize: q.Limit,
		SortBy:   "updated_at",
		SortDesc: true,
	})
	if err != nil {
		r.logger.Error("failed to list support conversations", zap.Error(err))
		return nil, fmt.Errorf("list support conversations: %w", err)
	}

	r.logger.Debug("support conversations listed",
		zap.Int("count", len(result.Data)),
		zap.Int64("total", result.Total),
		zap.Int64("page", result.Page),
	)
	return result, nil
}

func (r *conversationRepository) ListByParticipant(ctx context.Context, userID primitive.ObjectID) ([]model.Conversation, error) {
	ctx, cancel := ensureTimeout(ctx, defaultReadTimeout)
	defer cancel()

	filter := db.NewFilter().
		Eq("type", model.ConversationTypeAdminSupport).
		Eq("participants", userID).
		Build()

	conversations, err := r.mongoRepo.FindAll(ctx, filter, options.Find().SetSort(bson.M{"updated_at": -1}))
	if err != nil {
		r.logger.Error("failed to list user conversations",
			zap.String("user_id", userID.Hex()),
			zap.Error(err),
		)
		return nil, fmt.Errorf("list user conversations: %w", err)
	}
	return conversations, nil
}

// SetStatusByRelated sets status on every support thread tied to (reason, refID).
func (r *conversationRepository) SetStatusByRelated(ctx context.Context, reason, refID, status string) (int64, error) {
	ctx, cancel := ensureTimeout(ctx, defaultWriteTimeout)
	defer cancel()

	filter := db.NewFilter().
		Eq("type", model.ConversationTypeAdminSupport).
		Eq("related_entity.type", reason).
		Eq("related_entity.ref_id", refID).
		Build()

	result, err := r.mongoRepo.UpdateMany(ctx, filter, bson.M{
		"status":     status,
		"updated_at": time.Now().UTC(),
	})
	if err != nil {
		return 0, fmt.Errorf("set conversation status: %w", err)
	}
	return result.ModifiedCount, nil
}
