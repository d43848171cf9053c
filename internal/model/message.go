package model

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Message is a single entry of a conversation's message log.
type Message struct {
	ID        primitive.ObjectID `json:"_id" bson:"_id"`
	Sender    primitive.ObjectID `json:"sender" bson:"sender"`
	Text      string             `json:"text" bson:"text"`
	Timestamp time.Time          `json:"timestamp" bson:"timestamp"`
	Seen      bool               `json:"seen" bson:"seen"`
	DedupeKey string             `json:"-" bson:"dedupe_key,omitempty"`
}

// NewMessage builds an unseen message stamped with now.
func NewMessage(sender primitive.ObjectID, text string, now time.Time) Message {
	return Message{
		ID:        primitive.NewObjectID(),
		Sender:    sender,
		Text:      text,
		Timestamp: now,
		Seen:      false,
	}
}
