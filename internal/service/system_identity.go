package service

import (
	"Wayfarer/internal/cache"
	"Wayfarer/internal/model"
	"Wayfarer/internal/repo"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

const systemIdentityTTL = 5 * time.Minute

// SystemAccount is the configured canonical official account.
type SystemAccount struct {
	ID          primitive.ObjectID
	Email       string
	Username    string
	DisplayName string
	Avatar      string
}

// cachedIdentity keeps the fields model.User hides from JSON.
type cachedIdentity struct {
	ID          primitive.ObjectID `json:"id"`
	Email       string             `json:"email"`
	Username    string             `json:"username"`
	DisplayName string             `json:"displayName"`
	Avatar      string             `json:"avatar"`
}

type systemIdentityResolver struct {
	users   repo.UserRepository
	cache   cache.Cache
	account SystemAccount
	logger  *zap.Logger
}

func NewSystemIdentityResolver(users repo.UserRepository, c cache.Cache, account SystemAccount, logger *zap.Logger) SystemIdentity {
	if c == nil {
		c = cache.Noop{}
	}
	return &systemIdentityResolver{
		users:   users,
		cache:   c,
		account: account,
		logger:  logger,
	}
}

// Ensure returns the official account, creating it on first use and
// correcting its avatar when it drifted from configuration. Any failure is
// logged and reported as nil.
func (s *systemIdentityResolver) Ensure(ctx context.Context) *model.User {
	cacheKey := "system_identity:" + s.account.ID.Hex()

	var cached cachedIdentity
	if err := cache.GetJSON(ctx, s.cache, cacheKey, &cached); err == nil {
		return cached.toUser()
	}

	user, err := s.resolve(ctx)
	if err != nil {
		s.logger.Error("failed to ensure system identity",
			zap.String("user_id", s.account.ID.Hex()),
			zap.Error(err),
		)
		return nil
	}

	if s.account.Avatar != "" && user.Avatar != s.account.Avatar {
		if err := s.users.UpdateAvatar(ctx, user.ID, s.account.Avatar); err != nil {
			s.logger.Warn("failed to correct system identity avatar", zap.Error(err))
		} else {
			s.logger.Info("system identity avatar corrected", zap.String("user_id", user.ID.Hex()))
			user.Avatar = s.account.Avatar
		}
	}

	if err := cache.SetJSON(ctx, s.cache, cacheKey, fromUser(user), systemIdentityTTL); err != nil {
		s.logger.Debug("failed to cache system identity", zap.Error(err))
	}
	return user
}

func (s *systemIdentityResolver) resolve(ctx context.Context) (*model.User, error) {
	user, err := s.lookup(ctx)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, repo.ErrNotFound) {
		return nil, err
	}

	user, err = s.create(ctx)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, repo.ErrDuplicate) {
		return nil, err
	}

	// Another instance bootstrapped it concurrently.
	s.logger.Debug("system identity created concurrently, re-fetching")
	return s.lookup(ctx)
}

func (s *systemIdentityResolver) lookup(ctx context.Context) (*model.User, error) {
	if !s.account.ID.IsZero() {
		user, err := s.users.GetByID(ctx, s.account.ID)
		if err == nil {
			return user, nil
		}
		if !errors.Is(err, repo.ErrNotFound) {
			return nil, err
		}
	}
	return s.users.FindByEmailOrUsername(ctx, s.account.Email, s.account.Username)
}

func (s *systemIdentityResolver) create(ctx context.Context) (*model.User, error) {
	// The credential is random and never handed out; the account cannot log in.
	hash, err := bcrypt.GenerateFromPassword([]byte(uuid.NewString()), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash system credential: %w", err)
	}

	now := time.Now().UTC()
	user := &model.User{
		ID:           s.account.ID,
		Username:     s.account.Username,
		Email:        s.account.Email,
		DisplayName:  s.account.DisplayName,
		Avatar:       s.account.Avatar,
		PasswordHash: string(hash),
		Role:         model.RoleSystem,
		IsVerified:   true,
		IsActive:     true,
		IsSystem:     true,
		CreatedAt:    now,
		UpdatedAt:    &now,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, err
	}

	s.logger.Info("system identity created", zap.String("user_id", user.ID.Hex()))
	return user, nil
}

func fromUser(u *model.User) cachedIdentity {
	return cachedIdentity{
		ID:          u.ID,
		Email:       u.Email,
		Username:    u.Username,
		DisplayName: u.DisplayName,
		Avatar:      u.Avatar,
	}
}

func (c cachedIdentity) toUser() *model.User {
	return &model.User{
		ID:          c.ID,
		Email:       c.Email,
		Username:    c.Username,
		DisplayName: c.DisplayName,
		Avatar:      c.Avatar,
		Role:        model.RoleSystem,
		IsVerified:  true,
		IsActive:    true,
		IsSystem:    true,
	}
}
