package configuration

import (
	"encoding/json"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

const defaultConfigPath = "config/config.dev.json"

type MongoConfig struct {
	Uri                     string `json:"uri"`
	Database                string `json:"database"`
	ConversationsCollection string `json:"conversationsCollection"`
	UsersCollection         string `json:"usersCollection"`
	VisitsCollection        string `json:"visitsCollection"`
}

type RedisConfig struct {
	Url string `json:"url"`
}

type QueueConfig struct {
	Concurrency int    `json:"concurrency"`
	MaxRetry    int    `json:"max_retry"`
	Queue       string `json:"queue"`
}

type StorageConfig struct {
	Endpoint         string            `json:"endpoint"`
	Region           string            `json:"region"`
	Bucket           string            `json:"bucket"`
	AccessKeyID      string            `json:"access_key_id"`
	SecretAccessKey  string            `json:"secret_access_key"`
	ForcePathStyle   bool              `json:"force_path_style"`
	UrlExpiryMinutes int               `json:"url_expiry_minutes"`
	Categories       map[string]string `json:"categories"` // category -> key prefix
}

type AuthConfig struct {
	JwtSecret     string `json:"jwt_secret"`
	Issuer        string `json:"issuer"`
	TokenValidity int    `json:"token_validity_hours"`
}

type SystemAccountConfig struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	Username    string `json:"username"`
	DisplayName string `json:"display_name"`
	Avatar      string `json:"avatar"`
}

type ServerConfig struct {
	AppPort        int      `json:"app_port"`
	SocketPort     int      `json:"socket_port"`
	SocketRoute    string   `json:"socket_route"`
	AllowedOrigins []string `json:"allowed_origins"`
}

type Config struct {
	Env           string              `json:"env"`
	Server        ServerConfig        `json:"server"`
	Mongo         MongoConfig         `json:"mongo"`
	Redis         RedisConfig         `json:"redis"`
	Queue         QueueConfig         `json:"queue"`
	Storage       StorageConfig       `json:"storage"`
	Auth          AuthConfig          `json:"auth"`
	SystemAccount SystemAccountConfig `json:"system_account"`
}

func LoadConfig(config_path string) (*Config, error) {
	file, err := os.ReadFile(config_path)
	if err != nil {
		return nil, err
	}

	var config Config
	err = json.Unmarshal(file, &config)
	if err != nil {
		return nil, err
	}

	config.applyEnv()
	config.applyDefaults()

	return &config, nil
}

// ConfigPath returns CONFIG_PATH when set, otherwise the development config.
func ConfigPath() string {
	if p := os.Getenv("CONFIG_PATH"); p != "" {
		return p
	}
	return defaultConfigPath
}

// LoadDotEnv loads .env.local then .env. Variables already present in the
// environment are never overwritten.
func LoadDotEnv() []string {
	var loaded []string
	for _, f := range []string{".env.local", ".env"} {
		if _, err := os.Stat(f); err == nil {
			loaded = append(loaded, f)
		}
	}
	if len(loaded) > 0 {
		_ = godotenv.Load(loaded...)
	}
	return loaded
}

// UrlExpiry is the lifetime of presigned storage URLs.
func (s StorageConfig) UrlExpiry() time.Duration {
	return time.Duration(s.UrlExpiryMinutes) * time.Minute
}

// TokenTTL is the validity of issued JWTs.
func (a AuthConfig) TokenTTL() time.Duration {
	return time.Duration(a.TokenValidity) * time.Hour
}

func (c *Config) IsDevelopment() bool {
	return c.Env == "development" || c.Env == "dev"
}

func (c *Config) applyEnv() {
	overrides := map[string]*string{
		"APP_ENV":              &c.Env,
		"MONGO_URI":            &c.Mongo.Uri,
		"MONGO_DATABASE":       &c.Mongo.Database,
		"REDIS_URL":            &c.Redis.Url,
		"JWT_SECRET":           &c.Auth.JwtSecret,
		"S3_ENDPOINT":          &c.Storage.Endpoint,
		"S3_BUCKET":            &c.Storage.Bucket,
		"S3_ACCESS_KEY_ID":     &c.Storage.AccessKeyID,
		"S3_SECRET_ACCESS_KEY": &c.Storage.SecretAccessKey,
		"SYSTEM_ACCOUNT_ID":    &c.SystemAccount.ID,
	}
	for key, target := range overrides {
		if v := os.Getenv(key); v != "" {
			*target = v
		}
	}

	if v := os.Getenv("APP_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Server.AppPort = port
		}
	}
}

func (c *Config) applyDefaults() {
	if c.Env == "" {
		c.Env = "development"
	}
	if c.Server.AppPort == 0 {
		c.Server.AppPort = 8080
	}
	if c.Server.SocketPort == 0 {
		c.Server.SocketPort = 8081
	}
	if c.Server.SocketRoute == "" {
		c.Server.SocketRoute = "ws"
	}
	if c.Mongo.ConversationsCollection == "" {
		c.Mongo.ConversationsCollection = "conversations"
	}
	if c.Mongo.UsersCollection == "" {
		c.Mongo.UsersCollection = "users"
	}
	if c.Mongo.VisitsCollection == "" {
		c.Mongo.VisitsCollection = "visits"
	}
	if c.Queue.Concurrency <= 0 {
		c.Queue.Concurrency = 10
	}
	if c.Queue.MaxRetry <= 0 {
		c.Queue.MaxRetry = 8
	}
	if c.Queue.Queue == "" {
		c.Queue.Queue = "notifications"
	}
	if c.Storage.UrlExpiryMinutes <= 0 {
		c.Storage.UrlExpiryMinutes = 60
	}
	if c.Auth.Issuer == "" {
		c.Auth.Issuer = "wayfarer"
	}
	if c.Auth.TokenValidity <= 0 {
		c.Auth.TokenValidity = 24
	}
}
