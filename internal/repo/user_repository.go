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

type UserRepository interface {
	EnsureIndexes(ctx context.Context) error
	GetByID(ctx context.Context, id primitive.ObjectID) (*model.User, error)
	Exists(ctx context.Context, id primitive.ObjectID) (bool, error)
	GetMany(ctx context.Context, ids []primitive.ObjectID) (map[primitive.ObjectID]model.User, error)
	FindByEmailOrUsername(ctx context.Context, email, username string) (*model.User, error)
	Create(ctx context.Context, user *model.User) error
	UpdateAvatar(ctx context.Context, id primitive.ObjectID, avatar string) error
}

type userRepository struct {
	mongoRepo *db.Repository[model.User]
	logger    *zap.Logger
}

func NewUserRepository(repo *db.Repository[model.User], logger *zap.Logger) UserRepository {
	return &userRepository{
		mongoRepo: repo,
		logger:    logger,
	}
}

func (r *userRepository) EnsureIndexes(ctx context.Context) error {
	ctx, cancel := ensureTimeout(ctx, defaultReadTimeout)
	defer cancel()

	return r.mongoRepo.EnsureIndexes(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetName("uniq_email").SetUnique(true)},
		{Keys: bson.D{{Key: "username", Value: 1}}, Options: options.Index().SetName("uniq_username").SetUnique(true)},
	})
}

func (r *userRepository) GetByID(ctx context.Context, id primitive.ObjectID) (*model.User, error) {
	ctx, cancel := ensureTimeout(ctx, defaultReadTimeout)
	defer cancel()

	user, err := r.mongoRepo.FindByID(ctx, id)
	if err != nil {
		if !errors.Is(err, mongo.ErrNoDocuments) {
			r.logger.Error("failed to fetch user", zap.String("user_id", id.Hex()), zap.Error(err))
		}
		return nil, translate(err)
	}
	return user, nil
}

// Exists reports whether a user with id is stored without decoding it.
func (r *userRepository) Exists(ctx context.Context, id primitive.ObjectID) (bool, error) {
	ctx, cancel := ensureTimeout(ctx, defaultReadTimeout)
	defer cancel()

	exists, err := r.mongoRepo.Exists(ctx, bson.M{"_id": id})
	if err != nil {
		r.logger.Error("failed to check user", zap.String("user_id", id.Hex()), zap.Error(err))
		return false, fmt.Errorf("check user: %w", err)
	}
	return exists, nil
}

// GetMany loads the given users keyed by id. Missing ids are simply absent.
func (r *userRepository) GetMany(ctx context.Context, ids []primitive.ObjectID) (map[primitive.ObjectID]model.User, error) {
	users := make(map[primitive.ObjectID]model.User, len(ids))
	if len(ids) == 0 {
		return users, nil
	}

	ctx, cancel := ensureTimeout(ctx, defaultReadTimeout)
	defer cancel()

	found, err := r.mongoRepo.FindAll(ctx, db.NewFilter().In("_id", ids).Build())
	if err != nil {
		return nil, fmt.Errorf("load users: %w", err)
	}
	for _, u := range found {
		users[u.ID] = u
	}
	return users, nil
}

func (r *userRepository) FindByEmailOrUsername(ctx context.Context, email, username string) (*model.User, error) {
	ctx, cancel := ensureTimeout(ctx, defaultReadTimeout)
	defer cancel()

	filter := db.NewFilter().Or(bson.M{"email": email}, bson.M{"username": username}).Build()
	user, err := r.mongoRepo.FindOne(ctx, filter)
	if err != nil {
		return nil, translate(err)
	}
	return user, nil
}

// Create inserts user. A unique index violation is reported as ErrDuplicate.
func (r *userRepository) Create(ctx context.Context, user *model.User) error {
	ctx, cancel := ensureTimeout(ctx, defaultWriteTimeout)
	defer cancel()

	result, err := r.mongoRepo.Create(ctx, *user)
	if err != nil {
		return translate(err)
	}
	if oid, ok := result.InsertedID.(primitive.ObjectID); ok {
		user.ID = oid
	}

	r.logger.Info("user created", zap.String("user_id", user.ID.Hex()), zap.String("username", user.Username))
	return nil
}

func (r *userRepository) UpdateAvatar(ctx context.Context, id primitive.ObjectID, avatar string) error {
	ctx, cancel := ensureTimeout(ctx, defaultWriteTimeout)
	defer cancel()

	result, err := r.mongoRepo.UpdateByID(ctx, id, bson.M{
		"avatar":     avatar,
		"updated_at": time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("update avatar: %w", err)
	}
	if result.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}
