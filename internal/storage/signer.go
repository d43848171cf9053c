package storage

import (
	"Wayfarer/internal/cache"
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"
)

// URLSigner turns stored object keys (avatars, visit media) into URLs a
// client can fetch. Signed URLs are cached for a fraction of their lifetime.
type URLSigner struct {
	presigner  Presigner
	cache      cache.Cache
	expiry     time.Duration
	categories map[string]string
	logger     *zap.Logger
}

func NewURLSigner(p Presigner, c cache.Cache, expiry time.Duration, categories map[string]string, logger *zap.Logger) *URLSigner {
	if c == nil {
		c = cache.Noop{}
	}
	return &URLSigner{
		presigner:  p,
		cache:      c,
		expiry:     expiry,
		categories: categories,
		logger:     logger,
	}
}

// Key resolves a stored value to its object key under category's prefix.
// Absolute URLs are returned unchanged with ok=false.
func (s *URLSigner) Key(category, stored string) (string, bool) {
	if stored == "" || strings.HasPrefix(stored, "http://") || strings.HasPrefix(stored, "https://") {
		return stored, false
	}
	prefix := s.categories[category]
	if prefix == "" || strings.HasPrefix(stored, prefix) {
		return stored, true
	}
	return prefix + strings.TrimPrefix(stored, "/"), true
}

// Sign returns a fetchable URL for stored. Failures are logged and yield an
// empty string so a missing avatar never fails the surrounding request.
func (s *URLSigner) Sign(ctx context.Context, category, stored string) string {
	key, signable := s.Key(category, stored)
	if !signable || s.presigner == nil {
		return key
	}

	cacheKey := "signed_url:" + key
	if url, err := s.cache.Get(ctx, cacheKey); err == nil {
		return url
	} else if !errors.Is(err, cache.ErrMiss) {
		s.logger.Debug("signed url cache read failed", zap.String("key", key), zap.Error(err))
	}

	url, err := s.presigner.PresignGet(ctx, key, s.expiry)
	if err != nil {
		s.logger.Warn("failed to sign storage url", zap.String("key", key), zap.Error(err))
		return ""
	}

	if err := s.cache.Set(ctx, cacheKey, url, s.expiry/2); err != nil {
		s.logger.Debug("signed url cache write failed", zap.String("key", key), zap.Error(err))
	}
	return url
}
