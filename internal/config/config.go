package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config aggregates application settings that may be sourced from files or environment variables.
type Config struct {
	API       APIConfig       `mapstructure:"api"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	MinIO     MinIOConfig     `mapstructure:"minio"`
	Providers ProvidersConfig `mapstructure:"providers"`
	Store     StoreConfig     `mapstructure:"store"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Scan      ScanConfig      `mapstructure:"scan"`
	Sweep     SweepConfig     `mapstructure:"sweep"`
	Log       LogConfig       `mapstructure:"log"`
}

// APIConfig contains HTTP server settings.
type APIConfig struct {
	Port           int    `mapstructure:"port"`
	MaxUploadBytes int64  `mapstructure:"max_upload_bytes"`
	MetricsSecret  string `mapstructure:"metrics_secret"`
}

// DatabaseConfig contains connection options for PostgreSQL.
type DatabaseConfig struct {
	URL      string `mapstructure:"url"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Name     string `mapstructure:"name"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	SSLMode  string `mapstructure:"sslmode"`
}

// RedisConfig 包含 Redis 连接配置。
type RedisConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// Addr 返回 host:port 形式的地址。
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// MinIOConfig contains connection options for MinIO/S3-compatible storage.
type MinIOConfig struct {
	Endpoint         string `mapstructure:"endpoint"`
	AccessKeyID      string `mapstructure:"access_key_id"`
	SecretAccessKey  string `mapstructure:"secret_access_key"`
	UseSSL           bool   `mapstructure:"use_ssl"`
	Bucket           string `mapstructure:"bucket"`
	Region           string `mapstructure:"region"`
	BucketLookup     string `mapstructure:"bucket_lookup"`
	Namespace        string `mapstructure:"namespace"`
	AutoCreateBucket bool   `mapstructure:"auto_create_bucket"`
}

// ProviderConfig 描述单个 LLM Provider 的凭据与模型。
type ProviderConfig struct {
	APIKey         string `mapstructure:"api_key"`
	Model          string `mapstructure:"model"`
	BaseURL        string `mapstructure:"base_url"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// ProvidersConfig 汇总三个 Provider 的配置。
type ProvidersConfig struct {
	A              ProviderConfig `mapstructure:"a"`
	B              ProviderConfig `mapstructure:"b"`
	C              ProviderConfig `mapstructure:"c"`
	TimeoutSeconds int            `mapstructure:"timeout_seconds"`
	Enabled        string         `mapstructure:"enabled"`
}

// Timeout 返回某个 Provider 的有效超时：单独配置优先，否则使用全局值。
func (p ProvidersConfig) Timeout(pc ProviderConfig) time.Duration {
	if pc.TimeoutSeconds > 0 {
		return time.Duration(pc.TimeoutSeconds) * time.Second
	}
	return time.Duration(p.TimeoutSeconds) * time.Second
}

// EnabledList 解析 ENABLED_PROVIDERS；为空时返回 nil，表示“凡是配置了密钥的都启用”。
func (p ProvidersConfig) EnabledList() []string {
	raw := strings.TrimSpace(p.Enabled)
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// StoreConfig 控制对象存储与关系库调用的超时以及槽位锁。
type StoreConfig struct {
	TimeoutSeconds     int `mapstructure:"timeout_seconds"`
	SlotLockTTLSeconds int `mapstructure:"slot_lock_ttl_seconds"`
}

func (s StoreConfig) Timeout() time.Duration {
	return time.Duration(s.TimeoutSeconds) * time.Second
}

func (s StoreConfig) SlotLockTTL() time.Duration {
	return time.Duration(s.SlotLockTTLSeconds) * time.Second
}

// AuthConfig 指向用于校验访问令牌的 RSA 公钥。
// 私钥只在管理命令签发调试令牌时使用。
type AuthConfig struct {
	JWTPublicKeyPath      string `mapstructure:"jwt_public_key_path"`
	JWTPrivateKeyPath     string `mapstructure:"jwt_private_key_path"`
	AccessTokenTTLMinutes int    `mapstructure:"access_token_ttl_minutes"`
}

func (a AuthConfig) AccessTokenTTL() time.Duration {
	return time.Duration(a.AccessTokenTTLMinutes) * time.Minute
}

// ScanConfig 为空地址时关闭病毒扫描。
type ScanConfig struct {
	ClamdAddr string `mapstructure:"clamd_addr"`
}

// SweepConfig 控制孤儿对象清理任务。
type SweepConfig struct {
	Interval     string `mapstructure:"interval"`
	GraceSeconds int    `mapstructure:"grace_seconds"`
}

func (s SweepConfig) Grace() time.Duration {
	return time.Duration(s.GraceSeconds) * time.Second
}

// LogConfig 选择 slog 的输出格式。
type LogConfig struct {
	Format string `mapstructure:"format"`
}

// DSN builds a lib/pq compatible connection string.
func (d DatabaseConfig) DSN() string {
	if url := strings.TrimSpace(d.URL); url != "" {
		return url
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host,
		d.Port,
		d.User,
		d.Password,
		d.Name,
		d.SSLMode,
	)
}

// Load reads configuration solely from environment variables (with optional defaults).
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	if err := bindEnv(v); err != nil {
		return nil, fmt.Errorf("bind env: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// MustLoad wraps Load and panics on failure.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("api.port", 8080)
	v.SetDefault("api.max_upload_bytes", 10<<20)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "cvinsight")
	v.SetDefault("database.user", "cvinsight")
	v.SetDefault("database.password", "cvinsight")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("minio.endpoint", "localhost:9000")
	v.SetDefault("minio.use_ssl", false)
	v.SetDefault("minio.bucket", "cv-analyses")
	v.SetDefault("minio.bucket_lookup", "auto")
	v.SetDefault("minio.namespace", "analyses")
	v.SetDefault("minio.auto_create_bucket", true)
	v.SetDefault("providers.timeout_seconds", 60)
	v.SetDefault("store.timeout_seconds", 20)
	v.SetDefault("store.slot_lock_ttl_seconds", 120)
	v.SetDefault("auth.access_token_ttl_minutes", 60)
	v.SetDefault("sweep.interval", "@every 1h")
	v.SetDefault("sweep.grace_seconds", 3600)
	v.SetDefault("log.format", "text")
}

func bindEnv(v *viper.Viper) error {
	mappings := map[string]string{
		"api.port":                      "API_PORT",
		"api.max_upload_bytes":          "MAX_UPLOAD_BYTES",
		"api.metrics_secret":            "METRICS_SECRET",
		"database.url":                  "DATABASE_URL",
		"database.host":                 "DATABASE_HOST",
		"database.port":                 "DATABASE_PORT",
		"database.name":                 "POSTGRES_DB",
		"database.user":                 "POSTGRES_USER",
		"database.password":             "POSTGRES_PASSWORD",
		"database.sslmode":              "DATABASE_SSLMODE",
		"redis.host":                    "REDIS_HOST",
		"redis.port":                    "REDIS_PORT",
		"minio.endpoint":                "MINIO_ENDPOINT",
		"minio.access_key_id":           "MINIO_ACCESS_KEY_ID",
		"minio.secret_access_key":       "MINIO_SECRET_ACCESS_KEY",
		"minio.use_ssl":                 "MINIO_USE_SSL",
		"minio.bucket":                  "MINIO_BUCKET",
		"minio.region":                  "MINIO_REGION",
		"minio.bucket_lookup":           "MINIO_BUCKET_LOOKUP",
		"minio.namespace":               "MINIO_NAMESPACE",
		"minio.auto_create_bucket":      "MINIO_AUTO_CREATE_BUCKET",
		"providers.a.api_key":           "PROVIDER_A_API_KEY",
		"providers.a.model":             "PROVIDER_A_MODEL",
		"providers.a.base_url":          "PROVIDER_A_BASE_URL",
		"providers.a.timeout_seconds":   "PROVIDER_A_TIMEOUT_SECONDS",
		"providers.b.api_key":           "PROVIDER_B_API_KEY",
		"providers.b.model":             "PROVIDER_B_MODEL",
		"providers.b.base_url":          "PROVIDER_B_BASE_URL",
		"providers.b.timeout_seconds":   "PROVIDER_B_TIMEOUT_SECONDS",
		"providers.c.api_key":           "PROVIDER_C_API_KEY",
		"providers.c.model":             "PROVIDER_C_MODEL",
		"providers.c.base_url":          "PROVIDER_C_BASE_URL",
		"providers.c.timeout_seconds":   "PROVIDER_C_TIMEOUT_SECONDS",
		"providers.timeout_seconds":     "PROVIDER_TIMEOUT_SECONDS",
		"providers.enabled":             "ENABLED_PROVIDERS",
		"store.timeout_seconds":         "STORE_TIMEOUT_SECONDS",
		"store.slot_lock_ttl_seconds":   "SLOT_LOCK_TTL_SECONDS",
		"auth.jwt_public_key_path":      "JWT_PUBLIC_KEY_PATH",
		"auth.jwt_private_key_path":     "JWT_PRIVATE_KEY_PATH",
		"auth.access_token_ttl_minutes": "JWT_ACCESS_TTL_MINUTES",
		"scan.clamd_addr":               "CLAMD_ADDR",
		"sweep.interval":                "SWEEP_INTERVAL",
		"sweep.grace_seconds":           "SWEEP_GRACE_SECONDS",
		"log.format":                    "LOG_FORMAT",
	}

	for key, env := range mappings {
		if err := v.BindEnv(key, env); err != nil {
			return fmt.Errorf("bind %s to %s: %w", key, env, err)
		}
	}

	return nil
}

func validate(cfg Config) error {
	if cfg.API.Port <= 0 {
		return errors.New("api port must be positive")
	}
	if cfg.API.MaxUploadBytes <= 0 {
		return errors.New("max upload bytes must be positive")
	}
	if strings.TrimSpace(cfg.Database.URL) == "" {
		if cfg.Database.Host == "" {
			return errors.New("database host is required")
		}
		if cfg.Database.Port <= 0 {
			return errors.New("database port must be positive")
		}
		if cfg.Database.Name == "" {
			return errors.New("database name is required")
		}
		if cfg.Database.User == "" {
			return errors.New("database user is required")
		}
		if cfg.Database.Password == "" {
			return errors.New("database password is required")
		}
		if cfg.Database.SSLMode == "" {
			return errors.New("database sslmode is required")
		}
	}
	if cfg.Redis.Host == "" {
		return errors.New("redis host is required")
	}
	if cfg.Redis.Port <= 0 {
		return errors.New("redis port must be positive")
	}
	if cfg.MinIO.Endpoint == "" {
		return errors.New("minio endpoint is required")
	}
	if cfg.MinIO.AccessKeyID == "" {
		return errors.New("minio access key id is required")
	}
	if cfg.MinIO.SecretAccessKey == "" {
		return errors.New("minio secret access key is required")
	}
	if cfg.MinIO.Bucket == "" {
		return errors.New("minio bucket is required")
	}
	if strings.Trim(strings.TrimSpace(cfg.MinIO.Namespace), "/") == "" {
		return errors.New("minio namespace is required")
	}
	if cfg.Providers.TimeoutSeconds <= 0 {
		return errors.New("provider timeout must be positive")
	}
	if cfg.Store.TimeoutSeconds <= 0 {
		return errors.New("store timeout must be positive")
	}
	if cfg.Store.SlotLockTTLSeconds <= 0 {
		return errors.New("slot lock ttl must be positive")
	}
	if cfg.Sweep.GraceSeconds < 0 {
		return errors.New("sweep grace must not be negative")
	}
	return nil
}
