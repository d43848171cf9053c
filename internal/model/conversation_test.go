package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestParticipantKey_OrderIndependent(t *testing.T) {
	a, b := primitive.NewObjectID(), primitive.NewObjectID()
	assert.Equal(t, ParticipantKey(a, b), ParticipantKey(b, a))
	assert.NotEqual(t, ParticipantKey(a, b), ParticipantKey(a, primitive.NewObjectID()))
}

func TestSortedMessages_AscendingRegardlessOfStorageOrder(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	sender := primitive.NewObjectID()
	conv := Conversation{Messages: []Message{
		{ID: primitive.NewObjectID(), Sender: sender, Text: "third", Timestamp: base.Add(2 * time.Minute)},
		{ID: primitive.NewObjectID(), Sender: sender, Text: "first", Timestamp: base},
		{ID: primitive.NewObjectID(), Sender: sender, Text: "second", Timestamp: base.Add(time.Minute)},
	}}

	sorted := conv.SortedMessages()

	assert.Equal(t, []string{"first", "second", "third"}, []string{sorted[0].Text, sorted[1].Text, sorted[2].Text})
	// storage order untouched
	assert.Equal(t, "third", conv.Messages[0].Text)
	assert.Equal(t, "third", conv.LastMessage().Text)
}

func TestUnseenFrom_SkipsSystemAndSeen(t *testing.T) {
	system, user := primitive.NewObjectID(), primitive.NewObjectID()
	unseen := primitive.NewObjectID()
	conv := Conversation{Messages: []Message{
		{ID: unseen, Sender: user},
		{ID: primitive.NewObjectID(), Sender: user, Seen: true},
		{ID: primitive.NewObjectID(), Sender: system},
	}}

	assert.Equal(t, []primitive.ObjectID{unseen}, conv.UnseenFrom(system))
}

func TestConversation_Accessors(t *testing.T) {
	system, user := primitive.NewObjectID(), primitive.NewObjectID()
	conv := Conversation{
		Participants:  []primitive.ObjectID{user, system},
		RelatedEntity: &RelatedEntity{Type: ReasonTripVerification, RefID: "abc"},
	}

	assert.True(t, conv.HasParticipant(user))
	assert.False(t, conv.HasParticipant(primitive.NewObjectID()))
	assert.Equal(t, user, conv.Counterpart(system))
	assert.Equal(t, ReasonTripVerification, conv.Reason())
	assert.Equal(t, "abc", conv.RefID())

	empty := Conversation{}
	assert.Equal(t, "", empty.Reason())
	assert.Nil(t, empty.LastMessage())
}
