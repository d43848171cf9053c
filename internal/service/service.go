package service

import (
	"Wayfarer/internal/common"
	"Wayfarer/internal/model"
	"context"
)

// Notifier pushes realtime events to websocket rooms. Delivery is best effort.
type Notifier interface {
	EmitToRoom(ctx context.Context, room, event string, payload interface{}) error
}

// SystemIdentity resolves the official account that authors system messages.
// Ensure returns nil when the account cannot be resolved.
type SystemIdentity interface {
	Ensure(ctx context.Context) *model.User
}

// URLSigner resolves stored object keys into fetchable URLs.
type URLSigner interface {
	Sign(ctx context.Context, category, stored string) string
}

const avatarCategory = "profile"

// requireSystem resolves the official account or fails with SYSTEM_ACCOUNT_NOT_FOUND.
func requireSystem(ctx context.Context, identity SystemIdentity) (*model.User, error) {
	system := identity.Ensure(ctx)
	if system == nil {
		return nil, common.NotFound(common.CodeSystemAccountNotFound, "system account is not available")
	}
	return system, nil
}
