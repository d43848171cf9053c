package service

import (
	"Wayfarer/internal/db"
	"Wayfarer/internal/model"
	"Wayfarer/internal/queue"
	"Wayfarer/internal/repo"
	"context"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// MockUserRepository is a mock implementation of repo.UserRepository
type MockUserRepository struct {
	mock.Mock
}

func (m *MockUserRepository) EnsureIndexes(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *MockUserRepository) GetByID(ctx context.Context, id primitive.ObjectID) (*model.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.User), args.Error(1)
}

func (m *MockUserRepository) Exists(ctx context.Context, id primitive.ObjectID) (bool, error) {
	args := m.Called(ctx, id)
	return args.Bool(0), args.Error(1)
}

func (m *MockUserRepository) GetMany(ctx context.Context, ids []primitive.ObjectID) (map[primitive.ObjectID]model.User, error) {
	args := m.Called(ctx, ids)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[primitive.ObjectID]model.User), args.Error(1)
}

func (m *MockUserRepository) FindByEmailOrUsername(ctx context.Context, email, username string) (*model.User, error) {
	args := m.Called(ctx, email, username)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.User), args.Error(1)
}

func (m *MockUserRepository) Create(ctx context.Context, user *model.User) error {
	return m.Called(ctx, user).Error(0)
}

func (m *MockUserRepository) UpdateAvatar(ctx context.Context, id primitive.ObjectID, avatar string) error {
	return m.Called(ctx, id, avatar).Error(0)
}

// MockConversationRepository is a mock implementation of repo.ConversationRepository
type MockConversationRepository struct {
	mock.Mock
}

func (m *MockConversationRepository) EnsureIndexes(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *MockConversationRepository) GetByID(ctx context.Context, id primitive.ObjectID) (*model.Conversation, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Conversation), args.Error(1)
}

func (m *MockConversationRepository) FindSupport(ctx context.Context, participantKey, reason, refID string) (*model.Conversation, error) {
	args := m.Called(ctx, participantKey, reason, refID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Conversation), args.Error(1)
}

func (m *MockConversationRepository) UpsertSupport(ctx context.Context, conv *model.Conversation) (*model.Conversation, error) {
	args := m.Called(ctx, conv)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Conversation), args.Error(1)
}

func (m *MockConversationRepository) ListSupport(ctx context.Context, q repo.SupportQuery) (*db.PaginatedResult[model.Conversation], error) {
	args := m.Called(ctx, q)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*db.PaginatedResult[model.Conversation]), args.Error(1)
}

func (m *MockConversationRepository) ListByParticipant(ctx context.Context, userID primitive.ObjectID) ([]model.Conversation, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Conversation), args.Error(1)
}

func (m *MockConversationRepository) SetStatusByRelated(ctx context.Context, reason, refID, status string) (int64, error) {
	args := m.Called(ctx, reason, refID, status)
	return args.Get(0).(int64), args.Error(1)
}

// MockMessageRepository is a mock implementation of repo.MessageRepository
type MockMessageRepository struct {
	mock.Mock
}

func (m *MockMessageRepository) Append(ctx context.Context, conversationID primitive.ObjectID, msg model.Message) (*model.Message, bool, error) {
	args := m.Called(ctx, conversationID, msg)
	if args.Get(0) == nil {
		return nil, args.Bool(1), args.Error(2)
	}
	if fn, ok := args.Get(0).(func(context.Context, primitive.ObjectID, model.Message) *model.Message); ok {
		return fn(ctx, conversationID, msg), args.Bool(1), args.Error(2)
	}
	return args.Get(0).(*model.Message), args.Bool(1), args.Error(2)
}

func (m *MockMessageRepository) MarkSeen(ctx context.Context, conversationID primitive.ObjectID, ids []primitive.ObjectID) (int64, error) {
	args := m.Called(ctx, conversationID, ids)
	return args.Get(0).(int64), args.Error(1)
}

// MockVisitRepository is a mock implementation of repo.VisitRepository
type MockVisitRepository struct {
	mock.Mock
}

func (m *MockVisitRepository) EnsureIndexes(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *MockVisitRepository) Create(ctx context.Context, visit *model.Visit) error {
	return m.Called(ctx, visit).Error(0)
}

func (m *MockVisitRepository) GetByID(ctx context.Context, id primitive.ObjectID) (*model.Visit, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Visit), args.Error(1)
}

func (m *MockVisitRepository) ListPending(ctx context.Context, page, limit int64) (*db.PaginatedResult[model.Visit], error) {
	args := m.Called(ctx, page, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*db.PaginatedResult[model.Visit]), args.Error(1)
}

func (m *MockVisitRepository) Transition(ctx context.Context, id primitive.ObjectID, status string, reviewedBy primitive.ObjectID, at time.Time, extra bson.M) (bool, error) {
	args := m.Called(ctx, id, status, reviewedBy, at, extra)
	return args.Bool(0), args.Error(1)
}

func (m *MockVisitRepository) UpdateFields(ctx context.Context, id primitive.ObjectID, fields bson.M) (*model.Visit, error) {
	args := m.Called(ctx, id, fields)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Visit), args.Error(1)
}

func (m *MockVisitRepository) BackfillLegacyStatus(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

// MockQueueClient is a mock implementation of queue.Client
type MockQueueClient struct {
	mock.Mock
}

func (m *MockQueueClient) Enqueue(ctx context.Context, t queue.Task, opts ...queue.EnqueueOption) (string, error) {
	args := m.Called(ctx, t, opts)
	return args.String(0), args.Error(1)
}

func (m *MockQueueClient) Close() error {
	return m.Called().Error(0)
}

// stubIdentity always resolves to user (nil means unavailable).
type stubIdentity struct {
	user *model.User
}

func (s stubIdentity) Ensure(context.Context) *model.User {
	return s.user
}

// emitted is a single EmitToRoom call captured by recordingNotifier.
type emitted struct {
	Room    string
	Event   string
	Payload interface{}
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []emitted
	err    error
}

func (r *recordingNotifier) EmitToRoom(_ context.Context, room, event string, payload interface{}) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, emitted{Room: room, Event: event, Payload: payload})
	return r.err
}

func (r *recordingNotifier) Events() []emitted {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]emitted(nil), r.events...)
}

type passthroughSigner struct{}

func (passthroughSigner) Sign(_ context.Context, _, stored string) string {
	if stored == "" {
		return ""
	}
	return "https://signed.test/" + stored
}

// syncDispatcher delivers in the calling goroutine.
type syncDispatcher struct {
	deliverer *NotificationDeliverer
	sent      []SupportNotification
}

func (s *syncDispatcher) Dispatch(ctx context.Context, n SupportNotification) error {
	s.sent = append(s.sent, n)
	if s.deliverer == nil {
		return nil
	}
	return s.deliverer.Deliver(ctx, n)
}
