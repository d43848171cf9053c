package service

import (
	"Wayfarer/internal/common"
	"Wayfarer/internal/model"
	"Wayfarer/internal/repo"
	"context"
	"errors"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// SupportListQuery filters the admin support inbox.
type SupportListQuery struct {
	Page   int64
	Limit  int64
	Status string
	Reason string
}

// SupportConversationView is a support conversation as returned to clients.
// Messages is only populated by the detail views.
type SupportConversationView struct {
	ID            string             `json:"_id"`
	User          *model.UserSummary `json:"user,omitempty"`
	Reason        string             `json:"reason"`
	RefID         string             `json:"refId,omitempty"`
	Status        string             `json:"status"`
	LastMessage   *model.Message     `json:"lastMessage,omitempty"`
	UnreadCount   int                `json:"unreadCount"`
	LastMessageAt *time.Time         `json:"lastMessageAt,omitempty"`
	CreatedAt     time.Time          `json:"createdAt"`
	UpdatedAt     time.Time          `json:"updatedAt"`
	Messages      []model.Message    `json:"messages,omitempty"`
}

type SupportConversationList struct {
	Conversations []SupportConversationView `json:"conversations"`
	Pagination    common.Pagination         `json:"pagination"`
}

type ConversationService interface {
	GetOrCreate(ctx context.Context, userID, reason, refID string) (*model.Conversation, error)
	ListSupport(ctx context.Context, q SupportListQuery) (*SupportConversationList, error)
	GetSupport(ctx context.Context, conversationID string) (*SupportConversationView, error)
	ListForUser(ctx context.Context, userID string) ([]SupportConversationView, error)
}

type conversationService struct {
	conversations repo.ConversationRepository
	users         repo.UserRepository
	identity      SystemIdentity
	signer        URLSigner
	logger        *zap.Logger
}

func NewConversationService(
	conversations repo.ConversationRepository,
	users repo.UserRepository,
	identity SystemIdentity,
	signer URLSigner,
	logger *zap.Logger,
) ConversationService {
	return &conversationService{
		conversations: conversations,
		users:         users,
		identity:      identity,
		signer:        signer,
		logger:        logger,
	}
}

// -----------------------------------------------------------------------------
// GetOrCreate
// -----------------------------------------------------------------------------

// GetOrCreate returns the support conversation between userID and the
// official account for (reason, refID), creating it if needed. Without a
// refID the most recently active thread for reason is reused.
func (s *conversationService) GetOrCreate(ctx context.Context, userID, reason, refID string) (*model.Conversation, error) {
	uid, err := parseObjectID(userID, common.CodeInvalidUserID, "user id")
	if err != nil {
		return nil, err
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, common.Validation(common.CodeInvalidReason, "reason is required")
	}
	refID = strings.TrimSpace(refID)

	exists, err := s.users.Exists(ctx, uid)
	if err != nil {
		return nil, common.Internal(err)
	}
	if !exists {
		return nil, common.Validation(common.CodeInvalidUserID, "user does not exist")
	}

	system, err := requireSystem(ctx, s.identity)
	if err != nil {
		return nil, err
	}
	participantKey := model.ParticipantKey(uid, system.ID)

	if refID == "" {
		existing, err := s.conversations.FindSupport(ctx, participantKey, reason, "")
		if err == nil {
			return existing, nil
		}
		if !errors.Is(err, repo.ErrNotFound) {
			return nil, common.Internal(err)
		}
	}

	now := time.Now().UTC()
	conversation, err := s.conversations.UpsertSupport(ctx, &model.Conversation{
		Type:           model.ConversationTypeAdminSupport,
		Participants:   []primitive.ObjectID{uid, system.ID},
		ParticipantKey: participantKey,
		RelatedEntity:  &model.RelatedEntity{Type: reason, RefID: refID},
		RelatedKey:     model.RelatedKey(reason, refID),
		Status:         model.ConversationStatusOpen,
		CreatedAt:      now,
		UpdatedAt:      now,
	})
	if err != nil {
		return nil, common.Internal(err)
	}

	s.logger.Debug("support conversation resolved",
		zap.String("conversation_id", conversation.ID.Hex()),
		zap.String("user_id", userID),
		zap.String("reason", reason),
		zap.String("ref_id", refID),
	)
	return conversation, nil
}

// -----------------------------------------------------------------------------
// Read views
// -----------------------------------------------------------------------------

func (s *conversationService) ListSupport(ctx context.Context, q SupportListQuery) (*SupportConversationList, error) {
	system, err := requireSystem(ctx, s.identity)
	if err != nil {
		return nil, err
	}

	page, err := s.conversations.ListSupport(ctx, repo.SupportQuery{
		Page:   q.Page,
		Limit:  q.Limit,
		Status: q.Status,
		Reason: q.Reason,
	})
	if err != nil {
		return nil, common.Internal(err)
	}

	users := s.loadCounterparts(ctx, page.Data, system.ID)

	views := make([]SupportConversationView, 0, len(page.Data))
	for i := range page.Data {
		views = append(views, s.buildView(ctx, &page.Data[i], system.ID, users, false))
	}

	return &SupportConversationList{
		Conversations: views,
		Pagination: common.Pagination{
			Page:       page.Page,
			Limit:      page.PageSize,
			Total:      page.Total,
			TotalPages: page.TotalPages,
		},
	}, nil
}

func (s *conversationService) GetSupport(ctx context.Context, conversationID string) (*SupportConversationView, error) {
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

	system, err := requireSystem(ctx, s.identity)
	if err != nil {
		return nil, err
	}

	users := s.loadCounterparts(ctx, []model.Conversation{*conversation}, system.ID)
	view := s.buildView(ctx, conversation, system.ID, users, true)
	return &view, nil
}

// ListForUser returns the caller's own support threads with their messages.
// Unread counts are an admin inbox concept and stay zero here.
func (s *conversationService) ListForUser(ctx context.Context, userID string) ([]SupportConversationView, error) {
	uid, err := parseObjectID(userID, common.CodeInvalidUserID, "user id")
	if err != nil {
		return nil, err
	}

	conversations, err := s.conversations.ListByParticipant(ctx, uid)
	if err != nil {
		return nil, common.Internal(err)
	}

	views := make([]SupportConversationView, 0, len(conversations))
	for i := range conversations {
		c := &conversations[i]
		views = append(views, SupportConversationView{
			ID:            c.ID.Hex(),
			Reason:        c.Reason(),
			RefID:         c.RefID(),
			Status:        c.Status,
			LastMessage:   c.LastMessage(),
			LastMessageAt: c.LastMessageAt,
			CreatedAt:     c.CreatedAt,
			UpdatedAt:     c.UpdatedAt,
			Messages:      c.SortedMessages(),
		})
	}
	return views, nil
}

// -----------------------------------------------------------------------------
// Private Helper Methods
// -----------------------------------------------------------------------------

// loadCounterparts fetches the non-system participant of every conversation.
// A failed lookup degrades to conversations without user details.
func (s *conversationService) loadCounterparts(ctx context.Context, conversations []model.Conversation, systemID primitive.ObjectID) map[primitive.ObjectID]model.User {
	ids := make([]primitive.ObjectID, 0, len(conversations))
	for i := range conversations {
		ids = append(ids, conversations[i].Counterpart(systemID))
	}
	ids = Filter(ids, func(id primitive.ObjectID) bool { return !id.IsZero() })

	users, err := s.users.GetMany(ctx, ids)
	if err != nil {
		s.logger.Warn("failed to load conversation users", zap.Error(err))
		return map[primitive.ObjectID]model.User{}
	}
	return users
}

func (s *conversationService) buildView(
	ctx context.Context,
	c *model.Conversation,
	systemID primitive.ObjectID,
	users map[primitive.ObjectID]model.User,
	withMessages bool,
) SupportConversationView {
	view := SupportConversationView{
		ID:            c.ID.Hex(),
		Reason:        c.Reason(),
		RefID:         c.RefID(),
		Status:        c.Status,
		LastMessage:   c.LastMessage(),
		UnreadCount:   len(c.UnseenFrom(systemID)),
		LastMessageAt: c.LastMessageAt,
		CreatedAt:     c.CreatedAt,
		UpdatedAt:     c.UpdatedAt,
	}

	if u, ok := users[c.Counterpart(systemID)]; ok {
		view.User = &model.UserSummary{
			ID:          u.ID.Hex(),
			Username:    u.Username,
			DisplayName: u.DisplayName,
			AvatarURL:   s.signer.Sign(ctx, avatarCategory, u.Avatar),
		}
	}

	if withMessages {
		view.Messages = c.SortedMessages()
	}
	return view
}
