package model

import (
	"sort"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Conversation types
const (
	ConversationTypeAdminSupport = "admin_support"
)

// Conversation statuses. The field is free-form; these are the values written here.
const (
	ConversationStatusOpen     = "open"
	ConversationStatusResolved = "resolved"
)

// Related entity reasons
const (
	ReasonTripVerification = "trip_verification"
	ReasonGeneralSupport   = "general_support"
)

// Conversation is a two-party support thread between a user and the system account.
type Conversation struct {
	ID             primitive.ObjectID   `json:"_id" bson:"_id,omitempty"`
	Type           string               `json:"type" bson:"type"`
	Participants   []primitive.ObjectID `json:"participants" bson:"participants"`
	ParticipantKey string               `json:"-" bson:"participant_key"`
	RelatedEntity  *RelatedEntity       `json:"relatedEntity,omitempty" bson:"related_entity,omitempty"`
	RelatedKey     string               `json:"-" bson:"related_key"`
	Messages       []Message            `json:"messages" bson:"messages"`
	Status         string               `json:"status,omitempty" bson:"status,omitempty"`
	LastMessageAt  *time.Time           `json:"lastMessageAt,omitempty" bson:"last_message_at,omitempty"`
	CreatedAt      time.Time            `json:"createdAt" bson:"created_at"`
	UpdatedAt      time.Time            `json:"updatedAt" bson:"updated_at"`
}

// RelatedEntity ties a conversation to a reason and an external record.
type RelatedEntity struct {
	Type  string `json:"type" bson:"type"`
	RefID string `json:"refId,omitempty" bson:"ref_id,omitempty"`
}

// ParticipantKey is the order-independent key of a participant pair.
func ParticipantKey(a, b primitive.ObjectID) string {
	ids := []string{a.Hex(), b.Hex()}
	sort.Strings(ids)
	return strings.Join(ids, ":")
}

// RelatedKey is the lookup key of a (reason, refID) pair.
func RelatedKey(reason, refID string) string {
	return reason + ":" + refID
}

// HasParticipant reports whether id takes part in the conversation.
func (c *Conversation) HasParticipant(id primitive.ObjectID) bool {
	for _, p := range c.Participants {
		if p == id {
			return true
		}
	}
	return false
}

// Counterpart returns the participant that is not systemID.
func (c *Conversation) Counterpart(systemID primitive.ObjectID) primitive.ObjectID {
	for _, p := range c.Participants {
		if p != systemID {
			return p
		}
	}
	return primitive.NilObjectID
}

// Reason returns the related entity type, or "" when unset.
func (c *Conversation) Reason() string {
	if c.RelatedEntity == nil {
		return ""
	}
	return c.RelatedEntity.Type
}

// RefID returns the related entity reference, or "" when unset.
func (c *Conversation) RefID() string {
	if c.RelatedEntity == nil {
		return ""
	}
	return c.RelatedEntity.RefID
}

// SortedMessages returns a copy of the log ordered oldest first by timestamp.
// Storage order is not trusted.
func (c *Conversation) SortedMessages() []Message {
	msgs := make([]Message, len(c.Messages))
	copy(msgs, c.Messages)
	sort.SliceStable(msgs, func(i, j int) bool {
		return msgs[i].Timestamp.Before(msgs[j].Timestamp)
	})
	return msgs
}

// LastMessage returns the newest message by timestamp, or nil.
func (c *Conversation) LastMessage() *Message {
	var last *Message
	for i := range c.Messages {
		if last == nil || c.Messages[i].Timestamp.After(last.Timestamp) {
			last = &c.Messages[i]
		}
	}
	return last
}

// UnseenFrom returns the ids of unseen messages not sent by systemID.
func (c *Conversation) UnseenFrom(systemID primitive.ObjectID) []primitive.ObjectID {
	ids := make([]primitive.ObjectID, 0)
	for _, m := range c.Messages {
		if m.Sender != systemID && !m.Seen {
			ids = append(ids, m.ID)
		}
	}
	return ids
}
