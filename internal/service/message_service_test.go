package service

import (
	"Wayfarer/internal/common"
	"Wayfarer/internal/event"
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

type messageFixture struct {
	convs    *MockConversationRepository
	messages *MockMessageRepository
	notifier *recordingNotifier
	svc      MessageService
}

func newMessageFixture() *messageFixture {
	f := &messageFixture{
		convs:    new(MockConversationRepository),
		messages: new(MockMessageRepository),
		notifier: &recordingNotifier{},
	}
	f.svc = NewMessageService(f.convs, f.messages, stubIdentity{user: systemUser}, f.notifier, zap.NewNop())
	return f
}

func supportConversation(userID primitive.ObjectID, msgs ...model.Message) *model.Conversation {
	return &model.Conversation{
		ID:           primitive.NewObjectID(),
		Type:         model.ConversationTypeAdminSupport,
		Participants: []primitive.ObjectID{userID, systemUser.ID},
		Status:       model.ConversationStatusOpen,
		Messages:     msgs,
	}
}

func TestAppendSystemMessage_EmptyText(t *testing.T) {
	f := newMessageFixture()

	for _, text := range []string{"", "   ", "\n\t"} {
		_, err := f.svc.AppendSystemMessage(context.Background(), primitive.NewObjectID(), text)
		assertAppError(t, err, common.KindValidation, common.CodeEmptyMessage)
	}
	f.messages.AssertNotCalled(t, "Append", mock.Anything, mock.Anything, mock.Anything)
}

func TestAppendSystemMessage_TrimsAndStampsSystemSender(t *testing.T) {
	f := newMessageFixture()
	convID := primitive.NewObjectID()

	var captured model.Message
	f.messages.On("Append", mock.Anything, convID, mock.AnythingOfType("model.Message")).
		Run(func(args mock.Arguments) { captured = args.Get(2).(model.Message) }).
		Return(&model.Message{Text: "hello"}, true, nil)

	_, err := f.svc.AppendSystemMessage(context.Background(), convID, "  hello  ")
	require.NoError(t, err)

	assert.Equal(t, "hello", captured.Text)
	assert.Equal(t, systemUser.ID, captured.Sender)
	assert.False(t, captured.Seen)
	assert.False(t, captured.ID.IsZero())
	assert.Empty(t, captured.DedupeKey)
	assert.WithinDuration(t, time.Now(), captured.Timestamp, 5*time.Second)
}

func TestAppendSystemMessage_MissingConversation(t *testing.T) {
	f := newMessageFixture()
	convID := primitive.NewObjectID()
	f.messages.On("Append", mock.Anything, convID, mock.Anything).Return(nil, false, repo.ErrNotFound)

	_, err := f.svc.AppendSystemMessage(context.Background(), convID, "hi")
	assertAppError(t, err, common.KindNotFound, common.CodeConversationNotFound)
}

func TestAppendNotification_PassesDedupeKey(t *testing.T) {
	f := newMessageFixture()
	convID := primitive.NewObjectID()
	stored := &model.Message{ID: primitive.NewObjectID(), Text: "approved"}

	f.messages.On("Append", mock.Anything, convID, mock.MatchedBy(func(m model.Message) bool {
		return m.DedupeKey == "k1"
	})).Return(stored, false, nil)

	msg, appended, err := f.svc.AppendNotification(context.Background(), convID, "approved", "k1")
	require.NoError(t, err)
	assert.False(t, appended)
	assert.Equal(t, stored.ID, msg.ID)
}

func TestSendAdminMessage_RequiresAdmin(t *testing.T) {
	f := newMessageFixture()

	_, err := f.svc.SendAdminMessage(context.Background(), primitive.NewObjectID().Hex(), model.RoleUser, "hi")
	assertAppError(t, err, common.KindAuthorization, common.CodeAdminRequired)
	f.convs.AssertNotCalled(t, "GetByID", mock.Anything, mock.Anything)
}

func TestSendAdminMessage_EmptyTextLeavesConversation(t *testing.T) {
	f := newMessageFixture()

	_, err := f.svc.SendAdminMessage(context.Background(), primitive.NewObjectID().Hex(), model.RoleAdmin, " ")
	assertAppError(t, err, common.KindValidation, common.CodeEmptyMessage)
	f.messages.AssertNotCalled(t, "Append", mock.Anything, mock.Anything, mock.Anything)
}

func TestSendAdminMessage_AppendsAndEmits(t *testing.T) {
	f := newMessageFixture()
	userID := primitive.NewObjectID()
	conv := supportConversation(userID)

	f.convs.On("GetByID", mock.Anything, conv.ID).Return(conv, nil)
	f.messages.On("Append", mock.Anything, conv.ID, mock.Anything).
		Return(func(_ context.Context, _ primitive.ObjectID, m model.Message) *model.Message { return &m }, true, nil)

	msg, err := f.svc.SendAdminMessage(context.Background(), conv.ID.Hex(), model.RoleAdmin, "We are looking into it")
	require.NoError(t, err)
	assert.Equal(t, systemUser.ID, msg.Sender)

	events := f.notifier.Events()
	require.Len(t, events, 4)
	assert.Equal(t, emitted{Room: event.UserRoom(userID.Hex()), Event: event.EventMessageNew, Payload: events[0].Payload}, events[0])
	assert.Equal(t, event.UserRoom(userID.Hex()), events[1].Room)
	assert.Equal(t, event.EventChatUpdate, events[1].Event)
	assert.Equal(t, event.RoomAdminSupport, events[2].Room)
	assert.Equal(t, event.EventAdminMessageNew, events[2].Event)
	assert.Equal(t, event.RoomAdminSupport, events[3].Room)
	assert.Equal(t, event.EventAdminChatUpdate, events[3].Event)

	payload, ok := events[0].Payload.(model.MessageNewEvent)
	require.True(t, ok)
	assert.Equal(t, conv.ID.Hex(), payload.ConversationID)
	assert.Equal(t, msg.ID, payload.Message.ID)
}

func TestSendAdminMessage_EmitFailureDoesNotFail(t *testing.T) {
	f := newMessageFixture()
	f.notifier.err = errors.New("hub stopped")
	conv := supportConversation(primitive.NewObjectID())

	f.convs.On("GetByID", mock.Anything, conv.ID).Return(conv, nil)
	f.messages.On("Append", mock.Anything, conv.ID, mock.Anything).Return(&model.Message{ID: primitive.NewObjectID()}, true, nil)

	_, err := f.svc.SendAdminMessage(context.Background(), conv.ID.Hex(), model.RoleAdmin, "hi")
	assert.NoError(t, err)
}

func TestSendAdminMessage_WrongConversationType(t *testing.T) {
	f := newMessageFixture()
	conv := supportConversation(primitive.NewObjectID())
	conv.Type = "direct"
	f.convs.On("GetByID", mock.Anything, conv.ID).Return(conv, nil)

	_, err := f.svc.SendAdminMessage(context.Background(), conv.ID.Hex(), model.RoleAdmin, "hi")
	assertAppError(t, err, common.KindNotFound, common.CodeConversationNotFound)
}

func TestSendUserMessage_RequiresParticipant(t *testing.T) {
	f := newMessageFixture()
	conv := supportConversation(primitive.NewObjectID())
	f.convs.On("GetByID", mock.Anything, conv.ID).Return(conv, nil)

	_, err := f.svc.SendUserMessage(context.Background(), conv.ID.Hex(), primitive.NewObjectID().Hex(), "hello?")
	assertAppError(t, err, common.KindAuthorization, common.CodeNotParticipant)
}

func TestSendUserMessage_AppendsAsUser(t *testing.T) {
	f := newMessageFixture()
	userID := primitive.NewObjectID()
	conv := supportConversation(userID)

	f.convs.On("GetByID", mock.Anything, conv.ID).Return(conv, nil)
	f.messages.On("Append", mock.Anything, conv.ID, mock.MatchedBy(func(m model.Message) bool {
		return m.Sender == userID && m.Text == "hello?"
	})).Return(&model.Message{ID: primitive.NewObjectID(), Sender: userID, Text: "hello?"}, true, nil)

	msg, err := f.svc.SendUserMessage(context.Background(), conv.ID.Hex(), userID.Hex(), " hello? ")
	require.NoError(t, err)
	assert.Equal(t, userID, msg.Sender)
	assert.Len(t, f.notifier.Events(), 4)
}

func TestMarkRead_FlipsOnlyUnseenUserMessages(t *testing.T) {
	f := newMessageFixture()
	userID := primitive.NewObjectID()
	now := time.Now().UTC()

	unseen1 := model.Message{ID: primitive.NewObjectID(), Sender: userID, Text: "a", Timestamp: now}
	unseen2 := model.Message{ID: primitive.NewObjectID(), Sender: userID, Text: "b", Timestamp: now}
	seen := model.Message{ID: primitive.NewObjectID(), Sender: userID, Text: "c", Timestamp: now, Seen: true}
	fromSystem := model.Message{ID: primitive.NewObjectID(), Sender: systemUser.ID, Text: "d", Timestamp: now}
	conv := supportConversation(userID, unseen1, seen, fromSystem, unseen2)

	f.convs.On("GetByID", mock.Anything, conv.ID).Return(conv, nil).Once()
	f.messages.On("MarkSeen", mock.Anything, conv.ID, []primitive.ObjectID{unseen1.ID, unseen2.ID}).Return(int64(2), nil).Once()

	n, err := f.svc.MarkRead(context.Background(), conv.ID.Hex())
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	// Second call sees the updated state and performs no write.
	after := supportConversation(userID)
	after.ID = conv.ID
	for _, m := range conv.Messages {
		if m.Sender == userID {
			m.Seen = true
		}
		after.Messages = append(after.Messages, m)
	}
	f.convs.On("GetByID", mock.Anything, conv.ID).Return(after, nil).Once()

	n, err = f.svc.MarkRead(context.Background(), conv.ID.Hex())
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
	f.messages.AssertNumberOfCalls(t, "MarkSeen", 1)
}
