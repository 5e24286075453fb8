package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	JWT       JWTConfig
	Storage   StorageConfig
	Tracing   TracingConfig `mapstructure:"tracing"`
	Redis     RedisConfig
	AI        AIConfig
	Autosave  AutosaveConfig  `mapstructure:"autosave"`
	CORS      CORSConfig      `mapstructure:"cors"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type RateLimitConfig struct {
	MaxRequests   int `mapstructure:"max_requests"`
	WindowMinutes int `mapstructure:"window_minutes"`
}

// AIConfig 改写网关配置。Provider 为 edge / openai / anthropic
type AIConfig struct {
	Provider       string  `mapstructure:"provider"`
	BaseURL        string  `mapstructure:"base_url"`
	APIKey         string  `mapstructure:"api_key"`
	Model          string  `mapstructure:"model"`
	MaxTokens      int     `mapstructure:"max_tokens"`
	TimeoutSeconds int     `mapstructure:"timeout_seconds"`
	LockTTLSeconds int     `mapstructure:"lock_ttl_seconds"`
	Temperature    float64 `mapstructure:"temperature"`
}

func (c AIConfig) Timeout() time.Duration {
	if c.TimeoutSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.TimeoutSeconds) * time.Second
}

func (c AIConfig) LockTTL() time.Duration {
	if c.LockTTLSeconds <= 0 {
		return 60 * time.Second
	}
	return time.Duration(c.LockTTLSeconds) * time.Second
}

// AutosaveConfig 自动保存的防抖与超时设置
type AutosaveConfig struct {
	QuietPeriodMS     int `mapstructure:"quiet_period_ms"`
	SaveTimeoutSecond int `mapstructure:"save_timeout_seconds"`
	SessionIdleMinute int `mapstructure:"session_idle_minutes"`
}

func (c AutosaveConfig) QuietPeriod() time.Duration {
	if c.QuietPeriodMS <= 0 {
		return 600 * time.Millisecond
	}
	return time.Duration(c.QuietPeriodMS) * time.Millisecond
}

func (c AutosaveConfig) SaveTimeout() time.Duration {
	if c.SaveTimeoutSecond <= 0 {
		return 10 * time.Second
	}
	return time.Duration(c.SaveTimeoutSecond) * time.Second
}

func (c AutosaveConfig) SessionIdle() time.Duration {
	if c.SessionIdleMinute <= 0 {
		return 30 * time.Minute
	}
	return time.Duration(c.SessionIdleMinute) * time.Minute
}

type ServerConfig struct {
	Port string
	Mode string
}

// DatabaseConfig Driver 为 mysql / postgres / sqlite
type DatabaseConfig struct {
	Driver    string
	Host      string
	Port      int
	User      string
	Password  string
	DBName    string
	Charset   string
	ParseTime bool
	SSLMode   string `mapstructure:"sslmode"`
	// Path sqlite 数据库文件
	Path string
}

type JWTConfig struct {
	Secret     string        `mapstructure:"secret"`
	ExpireTime time.Duration `mapstructure:"expire_hours"`
}

type StorageConfig struct {
	Type              string `mapstructure:"type"`
	LocalPath         string `mapstructure:"local_path"`
	MinioEndpoint     string `mapstructure:"minio_endpoint"`
	MinioAccessID     string `mapstructure:"minio_access_key"`
	MinioSecret       string `mapstructure:"minio_secret_key"`
	MinioBucket       string `mapstructure:"minio_bucket"`
	MinioSecure       bool   `mapstructure:"minio_secure"`
	OSSEndpoint       string `mapstructure:"oss_endpoint"`
	OSSAccessKey      string `mapstructure:"oss_access_key"`
	OSSSecretKey      string `mapstructure:"oss_secret_key"`
	OSSBucket         string `mapstructure:"oss_bucket"`
	MaxUploadMB       int    `mapstructure:"max_upload_mb"`
	PreviewTTLMinutes int    `mapstructure:"preview_ttl_minutes"`
}

func (c StorageConfig) PreviewTTL() time.Duration {
	if c.PreviewTTLMinutes <= 0 {
		return 30 * time.Minute
	}
	return time.Duration(c.PreviewTTLMinutes) * time.Minute
}

type TracingConfig struct {
	Enabled           bool   `mapstructure:"enabled"`
	CollectorEndpoint string `mapstructure:"collector_endpoint"`
}

// RedisConfig Host 为空时不连接 Redis，锁与预览缓存退化为进程内实现
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	v.AddConfigPath(path)
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.SetEnvPrefix("ACADEMY")
	v.AutomaticEnv()

	v.SetDefault("server.port", "8080")
	v.SetDefault("server.mode", "debug")
	v.SetDefault("database.driver", "mysql")
	v.SetDefault("ai.provider", "edge")
	v.SetDefault("autosave.quiet_period_ms", 600)
	v.SetDefault("rate_limit.max_requests", 600)
	v.SetDefault("rate_limit.window_minutes", 1)

	// Database
	v.BindEnv("database.driver", "DATABASE_DRIVER")
	v.BindEnv("database.host", "DATABASE_HOST")
	v.BindEnv("database.port", "DATABASE_PORT")
	v.BindEnv("database.user", "DATABASE_USER")
	v.BindEnv("database.password", "DATABASE_PASSWORD")
	v.BindEnv("database.dbname", "DATABASE_NAME")
	v.BindEnv("database.path", "DATABASE_PATH")

	// JWT
	v.BindEnv("jwt.secret", "JWT_SECRET")

	// Redis
	v.BindEnv("redis.host", "REDIS_HOST")
	v.BindEnv("redis.port", "REDIS_PORT")
	v.BindEnv("redis.password", "REDIS_PASSWORD")

	// Server
	v.BindEnv("server.mode", "SERVER_MODE")
	v.BindEnv("server.port", "SERVER_PORT")

	// AI
	v.BindEnv("ai.provider", "AI_PROVIDER")
	v.BindEnv("ai.base_url", "AI_BASE_URL")
	v.BindEnv("ai.api_key", "AI_API_KEY")
	v.BindEnv("ai.model", "AI_MODEL")

	// Storage
	v.BindEnv("storage.type", "STORAGE_TYPE")
	v.BindEnv("storage.oss_endpoint", "OSS_ENDPOINT")
	v.BindEnv("storage.oss_access_key", "OSS_ACCESS_KEY")
	v.BindEnv("storage.oss_secret_key", "OSS_SECRET_KEY")
	v.BindEnv("storage.oss_bucket", "OSS_BUCKET")
	v.BindEnv("storage.minio_endpoint", "MINIO_ENDPOINT")
	v.BindEnv("storage.minio_access_key", "MINIO_ACCESS_KEY")
	v.BindEnv("storage.minio_secret_key", "MINIO_SECRET_KEY")
	v.BindEnv("storage.minio_bucket", "MINIO_BUCKET")

	// Tracing
	v.BindEnv("tracing.enabled", "TRACING_ENABLED")
	v.BindEnv("tracing.collector_endpoint", "TRACING_COLLECTOR_ENDPOINT")

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	cfg.JWT.ExpireTime = cfg.JWT.ExpireTime * time.Hour

	// 生产环境校验 JWT Secret 强度
	if cfg.Server.Mode == "release" && len(cfg.JWT.Secret) < 32 {
		return nil, fmt.Errorf("JWT secret is too short (%d chars), must be at least 32 characters in release mode", len(cfg.JWT.Secret))
	}

	switch cfg.AI.Provider {
	case "edge", "openai", "anthropic":
	default:
		return nil, fmt.Errorf("unknown ai provider %q", cfg.AI.Provider)
	}

	if cfg.Storage.Type == "local" && cfg.Storage.LocalPath != "" {
		if _, err := os.Stat(cfg.Storage.LocalPath); os.IsNotExist(err) {
			os.MkdirAll(cfg.Storage.LocalPath, 0755)
		}
	}

	return &cfg, nil
}
