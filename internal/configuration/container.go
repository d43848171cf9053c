package configuration

import (
	"Wayfarer/internal/auth"
	"Wayfarer/internal/cache"
	"Wayfarer/internal/db"
	"Wayfarer/internal/handler"
	"Wayfarer/internal/hub"
	"Wayfarer/internal/model"
	"Wayfarer/internal/queue"
	"Wayfarer/internal/repo"
	"Wayfarer/internal/service"
	"Wayfarer/internal/storage"
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

const bootstrapTimeout = 30 * time.Second

type Container struct {
	SupportHandler handler.SupportHandler
	ReviewHandler  handler.ReviewHandler
	UserHandler    handler.UserHandler
	MonitorHandler handler.MonitorHandler
	Authenticator  *auth.Authenticator
	Hub            *hub.Hub
	// QueueServer is nil when notifications are delivered inline.
	QueueServer queue.Server
	Config      Config
	Logger      *zap.Logger

	// private - for cleanup
	mongoClient *mongo.Database
	redisClient *redis.Client
	queueClient queue.Client
}

// Repositories are the mongo-backed stores.
type Repositories struct {
	Users         repo.UserRepository
	Conversations repo.ConversationRepository
	Messages      repo.MessageRepository
	Visits        repo.VisitRepository
}

// EnsureIndexes creates every index the stores rely on.
func (r *Repositories) EnsureIndexes(ctx context.Context) error {
	steps := []struct {
		name string
		fn   func(context.Context) error
	}{
		{"users", r.Users.EnsureIndexes},
		{"conversations", r.Conversations.EnsureIndexes},
		{"visits", r.Visits.EnsureIndexes},
	}
	for _, s := range steps {
		if err := s.fn(ctx); err != nil {
			return fmt.Errorf("ensure %s indexes: %w", s.name, err)
		}
	}
	return nil
}

// OpenRepositories connects to mongo and builds the stores on top of it.
func OpenRepositories(config *Config, logger *zap.Logger) (*Repositories, *mongo.Database, error) {
	con, err := db.OpenConnection(config.Mongo.Uri, config.Mongo.Database)
	if err != nil {
		return nil, nil, fmt.Errorf("connect mongo: %w", err)
	}

	conversationStore := db.NewRepository[model.Conversation](con, config.Mongo.ConversationsCollection)

	return &Repositories{
		Users:         repo.NewUserRepository(db.NewRepository[model.User](con, config.Mongo.UsersCollection), logger),
		Conversations: repo.NewConversationRepository(conversationStore, logger),
		Messages:      repo.NewMessageRepository(conversationStore, logger),
		Visits:        repo.NewVisitRepository(db.NewRepository[model.Visit](con, config.Mongo.VisitsCollection), logger),
	}, con, nil
}

func BuildContainer() (*Container, error) {
	config, err := LoadConfig(ConfigPath())
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logger, err := NewLogger(config)
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	logger.Info("config loaded",
		zap.String("env", config.Env),
		zap.Int("app_port", config.Server.AppPort),
		zap.Int("socket_port", config.Server.SocketPort),
	)

	systemAccount, err := config.SystemAccount.toAccount()
	if err != nil {
		return nil, err
	}

	repos, con, err := OpenRepositories(config, logger)
	if err != nil {
		return nil, err
	}

	c := &Container{
		Config:      *config,
		Logger:      logger,
		mongoClient: con,
	}

	ctx, cancel := context.WithTimeout(context.Background(), bootstrapTimeout)
	defer cancel()

	if err := repos.EnsureIndexes(ctx); err != nil {
		_ = c.Close()
		return nil, err
	}

	// Redis backs the cache, the hub relay and the task queue. Without it
	// every one of them degrades to a local implementation.
	var appCache cache.Cache = cache.Noop{}
	var relay hub.Relay
	if config.Redis.Url != "" {
		client, err := cache.NewRedisClient(config.Redis.Url)
		if err != nil {
			logger.Warn("redis unavailable, running without cache, relay and queue", zap.Error(err))
		} else {
			c.redisClient = client
			appCache = cache.NewRedisCache(client)
			relay = hub.NewRedisRelay(client, logger)
		}
	}

	var presigner storage.Presigner
	if config.Storage.Bucket != "" {
		presigner = storage.NewS3Client(storage.S3Config{
			Endpoint:        config.Storage.Endpoint,
			Region:          config.Storage.Region,
			AccessKeyID:     config.Storage.AccessKeyID,
			SecretAccessKey: config.Storage.SecretAccessKey,
			Bucket:          config.Storage.Bucket,
			ForcePathStyle:  config.Storage.ForcePathStyle,
		})
	}
	signer := storage.NewURLSigner(presigner, appCache, config.Storage.UrlExpiry(), config.Storage.Categories, logger)

	c.Hub = hub.NewHub(hub.Options{
		AllowedOrigins: config.Server.AllowedOrigins,
		Relay:          relay,
	}, logger)

	identity := service.NewSystemIdentityResolver(repos.Users, appCache, systemAccount, logger)
	conversationService := service.NewConversationService(repos.Conversations, repos.Users, identity, signer, logger)
	messageService := service.NewMessageService(repos.Conversations, repos.Messages, identity, c.Hub, logger)
	deliverer := service.NewNotificationDeliverer(conversationService, messageService, logger)

	var dispatcher service.Dispatcher
	if c.redisClient != nil {
		dispatcher, err = c.buildQueue(config, deliverer, logger)
		if err != nil {
			_ = c.Close()
			return nil, err
		}
	} else {
		dispatcher = service.NewInlineDispatcher(deliverer, logger)
	}

	reviewService := service.NewReviewService(repos.Visits, repos.Conversations, repos.Users, dispatcher, logger)

	c.Authenticator = auth.NewAuthenticator(config.Auth.JwtSecret, config.Auth.Issuer, config.Auth.TokenTTL())
	c.SupportHandler = handler.NewSupportHandler(conversationService, messageService, logger)
	c.ReviewHandler = handler.NewReviewHandler(reviewService, logger)
	c.UserHandler = handler.NewUserHandler(conversationService, messageService, reviewService, logger)
	c.MonitorHandler = handler.NewMonitorHandler(hub.NewMonitorService(c.Hub))

	if system := identity.Ensure(ctx); system == nil {
		logger.Warn("system identity not available at startup; support messages will fail until it resolves")
	} else {
		logger.Info("system identity ready", zap.String("user_id", system.ID.Hex()))
	}

	return c, nil
}

func (c *Container) buildQueue(config *Config, deliverer *service.NotificationDeliverer, logger *zap.Logger) (service.Dispatcher, error) {
	client, err := queue.NewAsynqClient(config.Redis.Url)
	if err != nil {
		return nil, fmt.Errorf("queue client: %w", err)
	}
	c.queueClient = client

	server, err := queue.NewAsynqServer(config.Redis.Url, config.Queue.Queue, config.Queue.Concurrency, logger)
	if err != nil {
		return nil, fmt.Errorf("queue server: %w", err)
	}
	service.RegisterNotificationTask(server, deliverer)
	c.QueueServer = server

	return service.NewQueueDispatcher(client, config.Queue.Queue, config.Queue.MaxRetry, logger), nil
}

func (s SystemAccountConfig) toAccount() (service.SystemAccount, error) {
	account := service.SystemAccount{
		Email:       s.Email,
		Username:    s.Username,
		DisplayName: s.DisplayName,
		Avatar:      s.Avatar,
	}
	if s.ID != "" {
		id, err := primitive.ObjectIDFromHex(s.ID)
		if err != nil {
			return account, fmt.Errorf("system_account.id %q is not an object id: %w", s.ID, err)
		}
		account.ID = id
	}
	if account.Email == "" && account.Username == "" && account.ID.IsZero() {
		return account, fmt.Errorf("system_account needs an id, email or username")
	}
	return account, nil
}

// Close gracefully shuts down all connections
func (c *Container) Close() error {
	// Stop the hub first (closes all WebSocket connections)
	if c.Hub != nil {
		c.Hub.Stop()
	}

	if c.queueClient != nil {
		if err := c.queueClient.Close(); err != nil {
			c.Logger.Warn("failed to close queue client", zap.Error(err))
		}
	}

	if c.redisClient != nil {
		if err := c.redisClient.Close(); err != nil {
			c.Logger.Warn("failed to close redis client", zap.Error(err))
		}
	}

	// Close MongoDB connection pool
	if c.mongoClient != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := c.mongoClient.Client().Disconnect(ctx); err != nil {
			return fmt.Errorf("failed to close MongoDB connection: %w", err)
		}
	}

	if c.Logger != nil {
		_ = c.Logger.Sync()
	}

	return nil
}
