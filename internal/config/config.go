package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// ServerConfig holds the HTTP API listener settings.
type ServerConfig struct {
	Host string
	Port int
}

// SMTPConfig holds the mail-transfer listener settings.
type SMTPConfig struct {
	BindAddr       string // listen address, default ":2525"
	Domain         string // server domain used in the SMTP banner
	MaxMessageSize int64  // streamed payload ceiling in bytes
	MaxConnections int    // concurrent session ceiling
	MaxPerSecond   int    // new-connection rate ceiling
}

// InboxConfig holds the mailbox lifecycle settings.
type InboxConfig struct {
	Lifetime time.Duration // how long a freshly created inbox accepts mail
	Domain   string        // domain for randomly minted addresses
}

// AttachmentConfig holds the blob store settings.
type AttachmentConfig struct {
	Root    string // directory holding attachment blobs
	MaxSize int64  // per-file ceiling in bytes
}

// ReclaimConfig holds the reclamation sweep settings.
type ReclaimConfig struct {
	Interval time.Duration
}

// DatabaseConfig holds the relational store settings. An empty Type selects
// the in-memory store.
type DatabaseConfig struct {
	Type            string // "mysql", "postgres" or "" for memory
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// RedisConfig holds the optional pub/sub bridge settings. An empty Address
// disables the bridge.
type RedisConfig struct {
	Address  string
	Password string
	DB       int
}

// LogConfig holds the logging settings.
type LogConfig struct {
	Level       string
	Development bool
}

// CORSConfig holds the allowed origins for the HTTP API and WebSocket.
type CORSConfig struct {
	AllowedOrigins []string
}

// Config is the root configuration for the server.
type Config struct {
	Server     ServerConfig
	SMTP       SMTPConfig
	Inbox      InboxConfig
	Attachment AttachmentConfig
	Reclaim    ReclaimConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	Log        LogConfig
	CORS       CORSConfig
}

// Load reads configuration from environment variables (prefix POSTDROP_)
// with an optional .env file underneath. All settings have defaults; the
// durations are expressed through the *_HOURS / *_MB / *_MINUTES variables
// the service has always used.
func Load() (*Config, error) {
	loadEnvFile()

	viper.SetEnvPrefix("postdrop")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("smtp.bind_addr", ":2525")
	viper.SetDefault("smtp.domain", "postdrop.local")
	viper.SetDefault("smtp.max_message_mb", 10)
	viper.SetDefault("smtp.max_connections", 100)
	viper.SetDefault("smtp.max_per_second", 20)
	viper.SetDefault("inbox.lifetime_hours", 24)
	viper.SetDefault("inbox.domain", "postdrop.local")
	viper.SetDefault("attachment.root", "./data/attachments")
	viper.SetDefault("attachment.max_size_mb", 5)
	viper.SetDefault("reclaim.interval_minutes", 60)
	viper.SetDefault("database.type", "")
	viper.SetDefault("database.dsn", "")
	viper.SetDefault("database.max_open_conns", 25)
	viper.SetDefault("database.max_idle_conns", 5)
	viper.SetDefault("database.conn_max_lifetime", "5m")
	viper.SetDefault("redis.address", "")
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.development", false)
	viper.SetDefault("cors.allowed_origins", "*")

	lifetimeHours := viper.GetInt("inbox.lifetime_hours")
	if lifetimeHours <= 0 {
		return nil, fmt.Errorf("inbox.lifetime_hours must be positive")
	}

	maxMessageMB := viper.GetInt64("smtp.max_message_mb")
	if maxMessageMB <= 0 {
		return nil, fmt.Errorf("smtp.max_message_mb must be positive")
	}

	maxAttachmentMB := viper.GetInt64("attachment.max_size_mb")
	if maxAttachmentMB <= 0 {
		return nil, fmt.Errorf("attachment.max_size_mb must be positive")
	}

	reclaimMinutes := viper.GetInt("reclaim.interval_minutes")
	if reclaimMinutes <= 0 {
		return nil, fmt.Errorf("reclaim.interval_minutes must be positive")
	}

	connMaxLifetime, err := time.ParseDuration(viper.GetString("database.conn_max_lifetime"))
	if err != nil {
		connMaxLifetime = 5 * time.Minute
	}

	corsOrigins := parseList(viper.GetString("cors.allowed_origins"))
	if len(corsOrigins) == 0 {
		corsOrigins = []string{"*"}
	}

	cfg := &Config{
		Server: ServerConfig{
			Host: viper.GetString("server.host"),
			Port: viper.GetInt("server.port"),
		},
		SMTP: SMTPConfig{
			BindAddr:       viper.GetString("smtp.bind_addr"),
			Domain:         viper.GetString("smtp.domain"),
			MaxMessageSize: maxMessageMB << 20,
			MaxConnections: viper.GetInt("smtp.max_connections"),
			MaxPerSecond:   viper.GetInt("smtp.max_per_second"),
		},
		Inbox: InboxConfig{
			Lifetime: time.Duration(lifetimeHours) * time.Hour,
			Domain:   strings.ToLower(viper.GetString("inbox.domain")),
		},
		Attachment: AttachmentConfig{
			Root:    viper.GetString("attachment.root"),
			MaxSize: maxAttachmentMB << 20,
		},
		Reclaim: ReclaimConfig{
			Interval: time.Duration(reclaimMinutes) * time.Minute,
		},
		Database: DatabaseConfig{
			Type:            viper.GetString("database.type"),
			DSN:             viper.GetString("database.dsn"),
			MaxOpenConns:    viper.GetInt("database.max_open_conns"),
			MaxIdleConns:    viper.GetInt("database.max_idle_conns"),
			ConnMaxLifetime: connMaxLifetime,
		},
		Redis: RedisConfig{
			Address:  viper.GetString("redis.address"),
			Password: viper.GetString("redis.password"),
			DB:       viper.GetInt("redis.db"),
		},
		Log: LogConfig{
			Level:       viper.GetString("log.level"),
			Development: viper.GetBool("log.development"),
		},
		CORS: CORSConfig{
			AllowedOrigins: corsOrigins,
		},
	}

	return cfg, nil
}

// parseList splits a comma-separated string into trimmed non-empty items.
func parseList(value string) []string {
	parts := strings.Split(value, ",")
	items := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			items = append(items, trimmed)
		}
	}
	return items
}

// loadEnvFile loads an optional .env from the working directory or its
// parent. Existing environment variables are never overridden.
func loadEnvFile() {
	if err := godotenv.Load(".env"); err == nil {
		return
	}
	parentEnv := filepath.Join("..", ".env")
	if _, err := os.Stat(parentEnv); err == nil {
		_ = godotenv.Load(parentEnv)
	}
}
