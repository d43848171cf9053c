package service

import (
	"Wayfarer/internal/common"
	"Wayfarer/internal/db"
	"Wayfarer/internal/model"
	"Wayfarer/internal/repo"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

var systemUser = &model.User{
	ID:       primitive.NewObjectID(),
	Username: "wayfarer_official",
	Role:     model.RoleSystem,
	IsSystem: true,
}

func newConversationServiceForTest(convs *MockConversationRepository, users *MockUserRepository, identity SystemIdentity) ConversationService {
	return NewConversationService(convs, users, identity, passthroughSigner{}, zap.NewNop())
}

func assertAppError(t *testing.T, err error, kind common.Kind, code string) {
	t.Helper()
	require.Error(t, err)
	appErr := common.AsAppError(err)
	assert.Equal(t, kind, appErr.Kind, "kind of %v", err)
	assert.Equal(t, code, appErr.Code)
}

func TestGetOrCreate_InvalidInput(t *testing.T) {
	convs := new(MockConversationRepository)
	users := new(MockUserRepository)
	svc := newConversationServiceForTest(convs, users, stubIdentity{user: systemUser})
	ctx := context.Background()

	_, err := svc.GetOrCreate(ctx, "not-an-id", model.ReasonTripVerification, "")
	assertAppError(t, err, common.KindValidation, common.CodeInvalidUserID)

	_, err = svc.GetOrCreate(ctx, primitive.NewObjectID().Hex(), "  ", "")
	assertAppError(t, err, common.KindValidation, common.CodeInvalidReason)

	missing := primitive.NewObjectID()
	users.On("Exists", mock.Anything, missing).Return(false, nil)
	_, err = svc.GetOrCreate(ctx, missing.Hex(), model.ReasonTripVerification, "")
	assertAppError(t, err, common.KindValidation, common.CodeInvalidUserID)

	convs.AssertNotCalled(t, "UpsertSupport", mock.Anything, mock.Anything)
}

func TestGetOrCreate_WithRefIDUpsertsAndIsStable(t *testing.T) {
	convs := new(MockConversationRepository)
	users := new(MockUserRepository)
	svc := newConversationServiceForTest(convs, users, stubIdentity{user: systemUser})
	ctx := context.Background()

	userID := primitive.NewObjectID()
	refID := primitive.NewObjectID().Hex()
	stored := &model.Conversation{ID: primitive.NewObjectID(), Type: model.ConversationTypeAdminSupport}

	users.On("Exists", mock.Anything, userID).Return(true, nil)
	convs.On("UpsertSupport", mock.Anything, mock.MatchedBy(func(c *model.Conversation) bool {
		return c.ParticipantKey == model.ParticipantKey(userID, systemUser.ID) &&
			c.RelatedKey == model.RelatedKey(model.ReasonTripVerification, refID) &&
			c.Type == model.ConversationTypeAdminSupport &&
			c.Status == model.ConversationStatusOpen &&
			len(c.Participants) == 2
	})).Return(stored, nil)

	first, err := svc.GetOrCreate(ctx, userID.Hex(), model.ReasonTripVerification, refID)
	require.NoError(t, err)
	second, err := svc.GetOrCreate(ctx, userID.Hex(), model.ReasonTripVerification, refID)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	convs.AssertNotCalled(t, "FindSupport", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	convs.AssertNumberOfCalls(t, "UpsertSupport", 2)
}

func TestGetOrCreate_WithoutRefIDReusesLatest(t *testing.T) {
	convs := new(MockConversationRepository)
	users := new(MockUserRepository)
	svc := newConversationServiceForTest(convs, users, stubIdentity{user: systemUser})
	ctx := context.Background()

	userID := primitive.NewObjectID()
	key := model.ParticipantKey(userID, systemUser.ID)
	existing := &model.Conversation{ID: primitive.NewObjectID()}

	users.On("Exists", mock.Anything, userID).Return(true, nil)
	convs.On("FindSupport", mock.Anything, key, model.ReasonGeneralSupport, "").Return(existing, nil)

	got, err := svc.GetOrCreate(ctx, userID.Hex(), model.ReasonGeneralSupport, "")
	require.NoError(t, err)
	assert.Equal(t, existing.ID, got.ID)
	convs.AssertNotCalled(t, "UpsertSupport", mock.Anything, mock.Anything)
}

func TestGetOrCreate_WithoutRefIDCreatesWhenMissing(t *testing.T) {
	convs := new(MockConversationRepository)
	users := new(MockUserRepository)
	svc := newConversationServiceForTest(convs, users, stubIdentity{user: systemUser})
	ctx := context.Background()

	userID := primitive.NewObjectID()
	created := &model.Conversation{ID: primitive.NewObjectID()}

	users.On("Exists", mock.Anything, userID).Return(true, nil)
	convs.On("FindSupport", mock.Anything, mock.Anything, model.ReasonGeneralSupport, "").Return(nil, repo.ErrNotFound)
	convs.On("UpsertSupport", mock.Anything, mock.MatchedBy(func(c *model.Conversation) bool {
		return c.RelatedKey == model.ReasonGeneralSupport+":" && c.RefID() == ""
	})).Return(created, nil)

	got, err := svc.GetOrCreate(ctx, userID.Hex(), model.ReasonGeneralSupport, "")
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)
}

func TestGetOrCreate_SystemIdentityUnavailable(t *testing.T) {
	convs := new(MockConversationRepository)
	users := new(MockUserRepository)
	svc := newConversationServiceForTest(convs, users, stubIdentity{})

	userID := primitive.NewObjectID()
	users.On("Exists", mock.Anything, userID).Return(true, nil)

	_, err := svc.GetOrCreate(context.Background(), userID.Hex(), model.ReasonTripVerification, "x")
	assertAppError(t, err, common.KindNotFound, common.CodeSystemAccountNotFound)
}

func TestGetOrCreate_StoreFailureIsInternal(t *testing.T) {
	convs := new(MockConversationRepository)
	users := new(MockUserRepository)
	svc := newConversationServiceForTest(convs, users, stubIdentity{user: systemUser})

	userID := primitive.NewObjectID()
	users.On("Exists", mock.Anything, userID).Return(true, nil)
	convs.On("UpsertSupport", mock.Anything, mock.Anything).Return(nil, errors.New("connection reset"))

	_, err := svc.GetOrCreate(context.Background(), userID.Hex(), model.ReasonTripVerification, "x")
	assertAppError(t, err, common.KindServer, common.CodeInternal)
}

func TestGetSupport_MessagesOldestFirstWithUnreadCount(t *testing.T) {
	convs := new(MockConversationRepository)
	users := new(MockUserRepository)
	svc := newConversationServiceForTest(convs, users, stubIdentity{user: systemUser})

	userID := primitive.NewObjectID()
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	conv := &model.Conversation{
		ID:           primitive.NewObjectID(),
		Type:         model.ConversationTypeAdminSupport,
		Participants: []primitive.ObjectID{userID, systemUser.ID},
		Messages: []model.Message{
			{ID: primitive.NewObjectID(), Sender: userID, Text: "third", Timestamp: base.Add(2 * time.Minute)},
			{ID: primitive.NewObjectID(), Sender: systemUser.ID, Text: "first", Timestamp: base},
			{ID: primitive.NewObjectID(), Sender: userID, Text: "second", Timestamp: base.Add(time.Minute), Seen: true},
		},
	}

	convs.On("GetByID", mock.Anything, conv.ID).Return(conv, nil)
	users.On("GetMany", mock.Anything, []primitive.ObjectID{userID}).Return(map[primitive.ObjectID]model.User{
		userID: {ID: userID, Username: "alice", DisplayName: "Alice", Avatar: "alice.png"},
	}, nil)

	view, err := svc.GetSupport(context.Background(), conv.ID.Hex())
	require.NoError(t, err)

	require.Len(t, view.Messages, 3)
	assert.Equal(t, "first", view.Messages[0].Text)
	assert.Equal(t, "second", view.Messages[1].Text)
	assert.Equal(t, "third", view.Messages[2].Text)
	assert.Equal(t, "third", view.LastMessage.Text)
	assert.Equal(t, 1, view.UnreadCount)
	require.NotNil(t, view.User)
	assert.Equal(t, "alice", view.User.Username)
	assert.Equal(t, "https://signed.test/alice.png", view.User.AvatarURL)
}

func TestGetSupport_NotFound(t *testing.T) {
	convs := new(MockConversationRepository)
	users := new(MockUserRepository)
	svc := newConversationServiceForTest(convs, users, stubIdentity{user: systemUser})
	ctx := context.Background()

	missing := primitive.NewObjectID()
	convs.On("GetByID", mock.Anything, missing).Return(nil, repo.ErrNotFound)
	_, err := svc.GetSupport(ctx, missing.Hex())
	assertAppError(t, err, common.KindNotFound, common.CodeConversationNotFound)

	direct := &model.Conversation{ID: primitive.NewObjectID(), Type: "direct"}
	convs.On("GetByID", mock.Anything, direct.ID).Return(direct, nil)
	_, err = svc.GetSupport(ctx, direct.ID.Hex())
	assertAppError(t, err, common.KindNotFound, common.CodeConversationNotFound)

	_, err = svc.GetSupport(ctx, "bogus")
	assertAppError(t, err, common.KindValidation, common.CodeInvalidID)
}

func TestListSupport_Pagination(t *testing.T) {
	convs := new(MockConversationRepository)
	users := new(MockUserRepository)
	svc := newConversationServiceForTest(convs, users, stubIdentity{user: systemUser})

	userID := primitive.NewObjectID()
	page := &db.PaginatedResult[model.Conversation]{
		Data: []model.Conversation{{
			ID:            primitive.NewObjectID(),
			Type:          model.ConversationTypeAdminSupport,
			Participants:  []primitive.ObjectID{userID, systemUser.ID},
			RelatedEntity: &model.RelatedEntity{Type: model.ReasonTripVerification, RefID: "r1"},
			Status:        model.ConversationStatusOpen,
		}},
		Total:      21,
		Page:       2,
		PageSize:   10,
		TotalPages: 3,
	}
	convs.On("ListSupport", mock.Anything, repo.SupportQuery{Page: 2, Limit: 10, Status: "open"}).Return(page, nil)
	users.On("GetMany", mock.Anything, mock.Anything).Return(nil, errors.New("timeout"))

	list, err := svc.ListSupport(context.Background(), SupportListQuery{Page: 2, Limit: 10, Status: "open"})
	require.NoError(t, err)

	assert.Equal(t, common.Pagination{Page: 2, Limit: 10, Total: 21, TotalPages: 3}, list.Pagination)
	require.Len(t, list.Conversations, 1)
	assert.Equal(t, "r1", list.Conversations[0].RefID)
	assert.Nil(t, list.Conversations[0].User, "user lookup failure degrades to no user")
	assert.Empty(t, list.Conversations[0].Messages)
}
