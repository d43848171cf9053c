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

type VisitRepository interface {
	EnsureIndexes(ctx context.Context) error
	Create(ctx context.Context, visit *model.Visit) error
	GetByID(ctx context.Context, id primitive.ObjectID) (*model.Visit, error)
	ListPending(ctx context.Context, page, limit int64) (*db.PaginatedResult[model.Visit], error)
	// Transition moves a non-terminal record to status. It reports false when
	// the record was already terminal (or missing) at write time.
	Transition(ctx context.Context, id primitive.ObjectID, status string, reviewedBy primitive.ObjectID, at time.Time, extra bson.M) (bool, error)
	UpdateFields(ctx context.Context, id primitive.ObjectID, fields bson.M) (*model.Visit, error)
	BackfillLegacyStatus(ctx context.Context) (int64, error)
}

type visitRepository struct {
	mongoRepo *db.Repository[model.Visit]
	logger    *zap.Logger
}

func NewVisitRepository(repo *db.Repository[model.Visit], logger *zap.Logger) VisitRepository {
	return &visitRepository{
		mongoRepo: repo,
		logger:    logger,
	}
}

// legacyPendingProxies matches records that predate verification_status.
func legacyPendingProxies() []bson.M {
	return []bson.M{
		{"verification_status": model.VerificationPendingReview},
		{"trust_level": model.TrustUnverified},
		{"source": model.SourceManualOnly},
		{"source": model.SourceGalleryNoExif},
		{"coordinates.lat": 0, "coordinates.lng": 0},
	}
}

// PendingReviewFilter selects non-terminal records that are explicitly
// pending or match one of the legacy proxies.
func PendingReviewFilter() bson.M {
	return db.NewFilter().
		NotIn("verification_status", model.TerminalStatuses).
		Or(legacyPendingProxies()...).
		Build()
}

// PendingReviewFallbackFilter is PendingReviewFilter without the terminal
// exclusion. It can return already reviewed records.
func PendingReviewFallbackFilter() bson.M {
	return db.NewFilter().Or(legacyPendingProxies()...).Build()
}

func (r *visitRepository) EnsureIndexes(ctx context.Context) error {
	ctx, cancel := ensureTimeout(ctx, defaultReadTimeout)
	defer cancel()

	return r.mongoRepo.EnsureIndexes(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "verification_status", Value: 1}, {Key: "created_at", Value: -1}},
			Options: options.Index().SetName("status_created"),
		},
		{
			Keys:    bson.D{{Key: "user_id", Value: 1}},
			Options: options.Index().SetName("user_id"),
		},
	})
}

func (r *visitRepository) Create(ctx context.Context, visit *model.Visit) error {
	ctx, cancel := ensureTimeout(ctx, defaultWriteTimeout)
	defer cancel()

	result, err := r.mongoRepo.Create(ctx, *visit)
	if err != nil {
		r.logger.Error("failed to create visit", zap.String("user_id", visit.UserID.Hex()), zap.Error(err))
		return translate(err)
	}
	if oid, ok := result.InsertedID.(primitive.ObjectID); ok {
		visit.ID = oid
	}
	return nil
}

func (r *visitRepository) GetByID(ctx context.Context, id primitive.ObjectID) (*model.Visit, error) {
	ctx, cancel := ensureTimeout(ctx, defaultReadTimeout)
	defer cancel()

	visit, err := r.mongoRepo.FindByID(ctx, id)
	if err != nil {
		if !errors.Is(err, mongo.ErrNoDocuments) {
			r.logger.Error("failed to fetch visit", zap.String("record_id", id.Hex()), zap.Error(err))
		}
		return nil, translate(err)
	}
	return visit, nil
}

// ListPending pages through records awaiting review, newest first. If the
// main query fails it is retried once with the broader fallback filter.
func (r *visitRepository) ListPending(ctx context.Context, page, limit int64) (*db.PaginatedResult[model.Visit], error) {
	ctx, cancel := ensureTimeout(ctx, defaultReadTimeout)
	defer cancel()

	params := db.PaginationParams{
		Page:     page,
		PageSize: limit,
		SortBy:   "created_at",
		SortDesc: true,
	}

	result, err := r.mongoRepo.FindWithPagination(ctx, PendingReviewFilter(), params)
	if err == nil {
		return result, nil
	}

	r.logger.Warn("pending review query failed, retrying without terminal exclusion", zap.Error(err))

	result, err = r.mongoRepo.FindWithPagination(ctx, PendingReviewFallbackFilter(), params)
	if err != nil {
		r.logger.Error("pending review fallback query failed", zap.Error(err))
		return nil, fmt.Errorf("list pending reviews: %w", err)
	}
	return result, nil
}

func (r *visitRepository) Transition(ctx context.Context, id primitive.ObjectID, status string, reviewedBy primitive.ObjectID, at time.Time, extra bson.M) (bool, error) {
	ctx, cancel := ensureTimeout(ctx, defaultWriteTimeout)
	defer cancel()

	set := bson.M{
		"verification_status": status,
		"reviewed_by":         reviewedBy,
		"reviewed_at":         at,
		"updated_at":          at,
	}
	for k, v := range extra {
		set[k] = v
	}

	filter := db.NewFilter().
		Eq("_id", id).
		NotIn("verification_status", model.TerminalStatuses).
		Build()

	var matched int64
	err := withRetry(ctx, func() error {
		result, err := r.mongoRepo.Update(ctx, filter, set)
		if err != nil {
			return err
		}
		matched = result.MatchedCount
		return nil
	})
	if err != nil {
		r.logger.Error("failed to transition visit",
			zap.String("record_id", id.Hex()),
			zap.String("status", status),
			zap.Error(err),
		)
		return false, fmt.Errorf("transition visit: %w", err)
	}

	return matched == 1, nil
}

// UpdateFields applies fields with $set and returns the updated record.
func (r *visitRepository) UpdateFields(ctx context.Context, id primitive.ObjectID, fields bson.M) (*model.Visit, error) {
	ctx, cancel := ensureTimeout(ctx, defaultWriteTimeout)
	defer cancel()

	result, err := r.mongoRepo.UpdateByID(ctx, id, fields)
	if err != nil {
		r.logger.Error("failed to update visit", zap.String("record_id", id.Hex()), zap.Error(err))
		return nil, fmt.Errorf("update visit: %w", err)
	}
	if result.MatchedCount == 0 {
		return nil, ErrNotFound
	}

	visit, err := r.mongoRepo.FindByID(ctx, id)
	if err != nil {
		return nil, translate(err)
	}
	return visit, nil
}

// BackfillLegacyStatus gives every record without verification_status an
// explicit one. Records matching a legacy proxy become pending_review, the
// rest auto_verified; the original proxy values are kept under legacy_status.
func (r *visitRepository) BackfillLegacyStatus(ctx context.Context) (int64, error) {
	missing := bson.M{"verification_status": bson.M{"$exists": false}}
	now := time.Now().UTC()

	pendingFilter := bson.M{"$and": bson.A{missing, bson.M{"$or": legacyPendingProxies()[1:]}}}
	pending, err := r.mongoRepo.UpdateMany(ctx, pendingFilter, bson.M{
		"verification_status": model.VerificationPendingReview,
		"legacy_status":       "proxy_pending",
		"updated_at":          now,
	})
	if err != nil {
		return 0, fmt.Errorf("backfill pending: %w", err)
	}

	rest, err := r.mongoRepo.UpdateMany(ctx, missing, bson.M{
		"verification_status": model.VerificationAutoVerified,
		"legacy_status":       "proxy_verified",
		"updated_at":          now,
	})
	if err != nil {
		return pending.ModifiedCount, fmt.Errorf("backfill verified: %w", err)
	}

	total := pending.ModifiedCount + rest.ModifiedCount
	r.logger.Info("legacy verification status backfilled",
		zap.Int64("pending", pending.ModifiedCount),
		zap.Int64("verified", rest.ModifiedCount),
	)
	return total, nil
}
