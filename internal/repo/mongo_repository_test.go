package repo

import (
	"Wayfarer/internal/db"
	"Wayfarer/internal/model"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"
	"go.uber.org/zap"
)

func newMockMongo(t *testing.T) *mtest.T {
	return mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))
}

// toDoc encodes v the way the driver stores it so it can be served as a reply.
func toDoc(t require.TestingT, v interface{}) bson.D {
	raw, err := bson.Marshal(v)
	require.NoError(t, err)

	var doc bson.D
	require.NoError(t, bson.Unmarshal(raw, &doc))
	return doc
}

func ns(mt *mtest.T) string {
	return mt.DB.Name() + "." + mt.Coll.Name()
}

func countReply(mt *mtest.T, n int64) bson.D {
	return mtest.CreateCursorResponse(0, ns(mt), mtest.FirstBatch, bson.D{{Key: "_id", Value: 1}, {Key: "n", Value: n}})
}

func updateReply(matched int32) bson.D {
	return mtest.CreateSuccessResponse(
		bson.E{Key: "n", Value: matched},
		bson.E{Key: "nModified", Value: matched},
	)
}

func TestVisitRepository_ListPendingFallsBackWhenMainQueryFails(t *testing.T) {
	mt := newMockMongo(t)

	mt.Run("fallback returns results", func(mt *mtest.T) {
		visits := NewVisitRepository(db.NewRepository[model.Visit](mt.DB, mt.Coll.Name()), zap.NewNop())

		legacy := model.Visit{
			ID:                 primitive.NewObjectID(),
			UserID:             primitive.NewObjectID(),
			Country:            "Japan",
			VerificationStatus: model.VerificationAutoVerified,
			Source:             model.SourceManualOnly,
			CreatedAt:          time.Now().UTC(),
		}

		mt.AddMockResponses(
			mtest.CreateCommandErrorResponse(mtest.CommandError{Code: 2, Name: "BadValue", Message: "unsupported operator"}),
			countReply(mt, 1),
			mtest.CreateCursorResponse(0, ns(mt), mtest.FirstBatch, toDoc(mt, legacy)),
		)

		result, err := visits.ListPending(context.Background(), 1, 20)
		require.NoError(mt, err)
		assert.Equal(mt, int64(1), result.Total)
		assert.Equal(mt, int64(1), result.TotalPages)
		require.Len(mt, result.Data, 1)
		assert.Equal(mt, legacy.ID, result.Data[0].ID)
		assert.Nil(mt, result.Data[0].Coordinates)
	})

	mt.Run("clamps raw paging input", func(mt *mtest.T) {
		visits := NewVisitRepository(db.NewRepository[model.Visit](mt.DB, mt.Coll.Name()), zap.NewNop())
		mt.AddMockResponses(countReply(mt, 0), mtest.CreateCursorResponse(0, ns(mt), mtest.FirstBatch))

		result, err := visits.ListPending(context.Background(), 0, 500)
		require.NoError(mt, err)
		assert.Equal(mt, int64(1), result.Page)
		assert.Equal(mt, int64(100), result.PageSize)
		assert.Empty(mt, result.Data)
	})

	mt.Run("both queries fail", func(mt *mtest.T) {
		visits := NewVisitRepository(db.NewRepository[model.Visit](mt.DB, mt.Coll.Name()), zap.NewNop())

		failure := mtest.CreateCommandErrorResponse(mtest.CommandError{Code: 2, Name: "BadValue", Message: "unsupported operator"})
		mt.AddMockResponses(failure, failure)

		_, err := visits.ListPending(context.Background(), 1, 20)
		assert.Error(mt, err)
	})
}

func TestMessageRepository_Append(t *testing.T) {
	mt := newMockMongo(t)

	conversationID := primitive.NewObjectID()
	system := primitive.NewObjectID()

	mt.Run("pushes a new message", func(mt *mtest.T) {
		messages := NewMessageRepository(db.NewRepository[model.Conversation](mt.DB, mt.Coll.Name()), zap.NewNop())
		msg := model.NewMessage(system, "Your visit was approved.", time.Now().UTC())

		mt.AddMockResponses(updateReply(1))

		stored, appended, err := messages.Append(context.Background(), conversationID, msg)
		require.NoError(mt, err)
		assert.True(mt, appended)
		assert.Equal(mt, msg.ID, stored.ID)
	})

	mt.Run("dedupe key already stored returns the stored copy", func(mt *mtest.T) {
		messages := NewMessageRepository(db.NewRepository[model.Conversation](mt.DB, mt.Coll.Name()), zap.NewNop())

		earlier := model.NewMessage(system, "Your visit was approved.", time.Now().UTC().Add(-time.Minute))
		earlier.DedupeKey = "abc123"
		conversation := model.Conversation{
			ID:        conversationID,
			Type:      model.ConversationTypeAdminSupport,
			Messages:  []model.Message{earlier},
			CreatedAt: time.Now().UTC(),
		}

		retry := model.NewMessage(system, "Your visit was approved.", time.Now().UTC())
		retry.DedupeKey = "abc123"

		mt.AddMockResponses(
			updateReply(0),
			mtest.CreateCursorResponse(0, ns(mt), mtest.FirstBatch, toDoc(mt, conversation)),
		)

		stored, appended, err := messages.Append(context.Background(), conversationID, retry)
		require.NoError(mt, err)
		assert.False(mt, appended)
		assert.Equal(mt, earlier.ID, stored.ID)
	})

	mt.Run("missing conversation", func(mt *mtest.T) {
		messages := NewMessageRepository(db.NewRepository[model.Conversation](mt.DB, mt.Coll.Name()), zap.NewNop())
		msg := model.NewMessage(system, "hello", time.Now().UTC())

		mt.AddMockResponses(
			updateReply(0),
			mtest.CreateCursorResponse(0, ns(mt), mtest.FirstBatch),
		)

		_, appended, err := messages.Append(context.Background(), conversationID, msg)
		assert.False(mt, appended)
		assert.True(mt, errors.Is(err, ErrNotFound))
	})

	mt.Run("invalid message never reaches the store", func(mt *mtest.T) {
		messages := NewMessageRepository(db.NewRepository[model.Conversation](mt.DB, mt.Coll.Name()), zap.NewNop())

		_, _, err := messages.Append(context.Background(), conversationID, model.Message{ID: primitive.NewObjectID(), Sender: system})
		assert.ErrorIs(mt, err, ErrInvalidMessage)
	})
}

func TestConversationRepository_UpsertSupport(t *testing.T) {
	mt := newMockMongo(t)

	user := primitive.NewObjectID()
	system := primitive.NewObjectID()
	now := time.Now().UTC()

	candidate := func() *model.Conversation {
		return &model.Conversation{
			Type:           model.ConversationTypeAdminSupport,
			Participants:   []primitive.ObjectID{user, system},
			ParticipantKey: model.ParticipantKey(user, system),
			RelatedEntity:  &model.RelatedEntity{Type: model.ReasonTripVerification, RefID: "visit-1"},
			RelatedKey:     model.RelatedKey(model.ReasonTripVerification, "visit-1"),
			Status:         model.ConversationStatusOpen,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
	}

	mt.Run("inserts or returns the existing thread", func(mt *mtest.T) {
		conversations := NewConversationRepository(db.NewRepository[model.Conversation](mt.DB, mt.Coll.Name()), zap.NewNop())

		stored := candidate()
		stored.ID = primitive.NewObjectID()
		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "value", Value: toDoc(mt, stored)}))

		got, err := conversations.UpsertSupport(context.Background(), candidate())
		require.NoError(mt, err)
		assert.Equal(mt, stored.ID, got.ID)
	})

	mt.Run("duplicate key re-reads the winner", func(mt *mtest.T) {
		conversations := NewConversationRepository(db.NewRepository[model.Conversation](mt.DB, mt.Coll.Name()), zap.NewNop())

		winner := candidate()
		winner.ID = primitive.NewObjectID()

		mt.AddMockResponses(
			mtest.CreateCommandErrorResponse(mtest.CommandError{
				Code:    11000,
				Name:    "DuplicateKey",
				Message: "E11000 duplicate key error collection: uniq_support_thread",
			}),
			mtest.CreateCursorResponse(0, ns(mt), mtest.FirstBatch, toDoc(mt, winner)),
		)

		got, err := conversations.UpsertSupport(context.Background(), candidate())
		require.NoError(mt, err)
		assert.Equal(mt, winner.ID, got.ID)
		assert.Equal(mt, winner.RelatedKey, got.RelatedKey)
	})

	mt.Run("other failures are returned", func(mt *mtest.T) {
		conversations := NewConversationRepository(db.NewRepository[model.Conversation](mt.DB, mt.Coll.Name()), zap.NewNop())

		mt.AddMockResponses(mtest.CreateCommandErrorResponse(mtest.CommandError{Code: 13, Name: "Unauthorized", Message: "not authorized"}))

		_, err := conversations.UpsertSupport(context.Background(), candidate())
		assert.Error(mt, err)
	})
}

func TestUserRepository_Exists(t *testing.T) {
	mt := newMockMongo(t)

	mt.Run("stored user", func(mt *mtest.T) {
		users := NewUserRepository(db.NewRepository[model.User](mt.DB, mt.Coll.Name()), zap.NewNop())
		mt.AddMockResponses(countReply(mt, 1))

		exists, err := users.Exists(context.Background(), primitive.NewObjectID())
		require.NoError(mt, err)
		assert.True(mt, exists)
	})

	mt.Run("unknown user", func(mt *mtest.T) {
		users := NewUserRepository(db.NewRepository[model.User](mt.DB, mt.Coll.Name()), zap.NewNop())
		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns(mt), mtest.FirstBatch))

		exists, err := users.Exists(context.Background(), primitive.NewObjectID())
		require.NoError(mt, err)
		assert.False(mt, exists)
	})
}
