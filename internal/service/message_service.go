package service

import (
	"Wayfarer/internal/common"
	"Wayfarer/internal/event"
	"Wayfarer/internal/model"
	"Wayfarer/internal/repo"
	"context"
	"errors"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

type MessageService interface {
	// AppendSystemMessage appends text authored by the official account.
	AppendSystemMessage(ctx context.Context, conversationID primitive.ObjectID, text string) (*model.Message, error)
	// AppendNotification is AppendSystemMessage guarded by dedupeKey: a repeat
	// returns the stored message and false.
	AppendNotification(ctx context.Context, conversationID primitive.ObjectID, text, dedupeKey string) (*model.Message, bool, error)
	SendAdminMessage(ctx context.Context, conversationID, adminRole, text string) (*model.Message, error)
	SendUserMessage(ctx context.Context, conversationID, userID, text string) (*model.Message, error)
	// MarkRead flags every unseen message the user sent as seen and returns
	// how many were flipped.
	MarkRead(ctx context.Context, conversationID string) (int64, error)
	// Broadcast pushes msg to the user's room and the admin support room.
	Broadcast(ctx context.Context, conversation *model.Conversation, msg *model.Message)
}

type messageService struct {
	conversations repo.ConversationRepository
	messages      repo.MessageRepository
	identity      SystemIdentity
	notifier      Notifier
	logger        *zap.Logger
}

func NewMessageService(
	conversations repo.ConversationRepository,
	messages repo.MessageRepository,
	identity SystemIdentity,
	notifier Notifier,
	logger *zap.Logger,
) MessageService {
	return &messageService{
		conversations: conversations,
		messages:      messages,
		identity:      identity,
		notifier:      notifier,
		logger:        logger,
	}
}

// -----------------------------------------------------------------------------
// Append
// -----------------------------------------------------------------------------

func (s *messageService) AppendSystemMessage(ctx context.Context, conversationID primitive.ObjectID, text string) (*model.Message, error) {
	msg, _, err := s.appendSystem(ctx, conversationID, text, "")
	return msg, err
}

func (s *messageService) AppendNotification(ctx context.Context, conversationID primitive.ObjectID, text, dedupeKey string) (*model.Message, bool, error) {
	return s.appendSystem(ctx, conversationID, text, dedupeKey)
}

func (s *messageService) appendSystem(ctx context.Context, conversationID primitive.ObjectID, text, dedupeKey string) (*model.Message, bool, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, false, common.Validation(common.CodeEmptyMessage, "message text is required")
	}

	system, err := requireSystem(ctx, s.identity)
	if err != nil {
		return nil, false, err
	}

	msg := model.NewMessage(system.ID, text, time.Now().UTC())
	msg.DedupeKey = dedupeKey
	return s.append(ctx, conversationID, msg, "system")
}

func (s *messageService) append(ctx context.Context, conversationID primitive.ObjectID, msg model.Message, senderKind string) (*model.Message, bool, error) {
	stored, appended, err := s.messages.Append(ctx, conversationID, msg)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, false, common.NotFound(common.CodeConversationNotFound, "conversation not found")
		}
		return nil, false, common.Internal(err)
	}
	if appended {
		supportMessagesTotal.WithLabelValues(senderKind).Inc()
	}
	return stored, appended, nil
}

// -----------------------------------------------------------------------------
// Send
// -----------------------------------------------------------------------------

// SendAdminMessage posts text on behalf of the official account. Only admins
// may do this; the admin's own identity is never shown to the user.
func (s *messageService) SendAdminMessage(ctx context.Context, conversationID, adminRole, text string) (*model.Message, error) {
	if adminRole != model.RoleAdmin {
		return nil, common.Forbidden(common.CodeAdminRequired, "admin access required")
	}
	if strings.TrimSpace(text) == "" {
		return nil, common.Validation(common.CodeEmptyMessage, "message text is required")
	}

	conversation, err := s.loadSupport(ctx, conversationID)
	if err != nil {
		return nil, err
	}

	msg, err := s.AppendSystemMessage(ctx, conversation.ID, text)
	if err != nil {
		return nil, err
	}

	s.Broadcast(ctx, conversation, msg)
	return msg, nil
}

func (s *messageService) SendUserMessage(ctx context.Context, conversationID, userID, text string) (*model.Message, error) {
	uid, err := parseObjectID(userID, common.CodeInvalidUserID, "user id")
	if err != nil {
		return nil, err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, common.Validation(common.CodeEmptyMessage, "message text is required")
	}

	conversation, err := s.loadSupport(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if !conversation.HasParticipant(uid) {
		return nil, common.Forbidden(common.CodeNotParticipant, "not a participant of this conversation")
	}

	msg, _, err := s.append(ctx, conversation.ID, model.NewMessage(uid, text, time.Now().UTC()), "user")
	if err != nil {
		return nil, err
	}

	s.Broadcast(ctx, conversation, msg)
	return msg, nil
}

// -----------------------------------------------------------------------------
// MarkRead
// -----------------------------------------------------------------------------

func (s *messageService) MarkRead(ctx context.Context, conversationID string) (int64, error) {
	conversation, err := s.loadSupport(ctx, conversationID)
	if err != nil {
		return 0, err
	}

	system, err := requireSystem(ctx, s.identity)
	if err != nil {
		return 0, err
	}

	unseen := conversation.UnseenFrom(system.ID)
	if len(unseen) == 0 {
		return 0, nil
	}

	modified, err := s.messages.MarkSeen(ctx, conversation.ID, unseen)
	if err != nil {
		return 0, notFoundOr(err, common.CodeConversationNotFound, "conversation not found")
	}

	s.logger.Debug("messages marked read",
		zap.String("conversation_id", conversation.ID.Hex()),
		zap.Int64("modified", modified),
	)
	return modified, nil
}

// -----------------------------------------------------------------------------
// Broadcast
// -----------------------------------------------------------------------------

func (s *messageService) Broadcast(ctx context.Context, conversation *model.Conversation, msg *model.Message) {
	if s.notifier == nil || conversation == nil || msg == nil {
		return
	}

	system, err := requireSystem(ctx, s.identity)
	if err != nil {
		s.logger.Warn("skipping realtime emit without system identity",
			zap.String("conversation_id", conversation.ID.Hex()),
		)
		return
	}
	userID := conversation.Counterpart(system.ID).Hex()

	at := msg.Timestamp
	created := model.MessageNewEvent{
		ConversationID: conversation.ID.Hex(),
		UserID:         userID,
		Message:        *msg,
	}
	updated := model.ChatUpdateEvent{
		ConversationID: conversation.ID.Hex(),
		UserID:         userID,
		LastMessage:    msg,
		Status:         conversation.Status,
		UpdatedAt:      time.Now().UTC(),
		LastMessageAt:  &at,
	}

	s.emit(ctx, event.UserRoom(userID), event.EventMessageNew, created)
	s.emit(ctx, event.UserRoom(userID), event.EventChatUpdate, updated)
	s.emit(ctx, event.RoomAdminSupport, event.EventAdminMessageNew, created)
	s.emit(ctx, event.RoomAdminSupport, event.EventAdminChatUpdate, updated)
}

func (s *messageService) emit(ctx context.Context, room, name string, payload interface{}) {
	if err := s.notifier.EmitToRoom(ctx, room, name, payload); err != nil {
		s.logger.Warn("realtime emit failed",
			zap.String("room", room),
			zap.String("event", name),
			zap.Error(err),
		)
	}
}

// -----------------------------------------------------------------------------
// Private Helper Methods
// -----------------------------------------------------------------------------

func (s *messageService) loadSupport(ctx context.Context, conversationID string) (*model.Conversation, error) {
	id, err := parseObjectID(conversationID, common.CodeInvalidID, "conversation id")
	if err != nil {
		return nil, err
	}

	conversation, err := s.conversations.GetByID(ctx, id)
	if err != nil {
		return nil, notFoundOr(err, common.CodeConversationNotFound, "conversation not found")
	}
	if conversation.Type != model.ConversationTypeAdminSupport {
		return nil, common.NotFound(common.CodeConversationNotFound, "conversation not found")
	}
	return conversation, nil
}
