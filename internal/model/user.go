package model

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// User roles
const (
	RoleUser   = "user"
	RoleAdmin  = "admin"
	RoleSystem = "system"
)

// User represents a user document in MongoDB
type User struct {
	ID           primitive.ObjectID `json:"_id" bson:"_id,omitempty"`
	Username     string             `json:"username" bson:"username"`
	Email        string             `json:"email" bson:"email"`
	DisplayName  string             `json:"displayName" bson:"display_name"`
	Avatar       string             `json:"-" bson:"avatar"` // storage key, resolved to a signed URL on read
	PasswordHash string             `json:"-" bson:"password_hash"`
	Role         string             `json:"role" bson:"role"`
	IsVerified   bool               `json:"isVerified" bson:"is_verified"`
	IsActive     bool               `json:"isActive" bson:"is_active"`
	IsSystem     bool               `json:"isSystem" bson:"is_system"`
	CreatedAt    time.Time          `json:"createdAt" bson:"created_at"`
	UpdatedAt    *time.Time         `json:"updatedAt" bson:"updated_at"`
}

// UserSummary is the public projection of a user embedded in responses.
type UserSummary struct {
	ID          string `json:"_id"`
	Username    string `json:"username"`
	DisplayName string `json:"displayName"`
	AvatarURL   string `json:"avatarUrl,omitempty"`
}
