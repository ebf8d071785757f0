package config

import (
	"errors"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database   DatabaseConfig
	Redis      RedisConfig
	JWT        JWTConfig
	CORS       CORSConfig
	Log        LogConfig
	Transition TransitionConfig
	Reports    ReportsConfig
	Backup     BackupConfig
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

// RedisConfig points at the instance backing the run lock. An empty host disables Redis.
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type JWTConfig struct {
	Secret     string
	Expiration time.Duration
	Issuer     string
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// TransitionConfig tunes the academic year transition engine.
type TransitionConfig struct {
	PassingGrade      float64
	Timezone          string
	LockTTL           time.Duration
	AuditDryRun       bool
	WorkerConcurrency int
	RunStatusTTL      time.Duration
}

// ReportsConfig configures transition report rendering and download links.
type ReportsConfig struct {
	StorageDir      string
	Format          string
	SignedURLSecret string
	SignedURLTTL    time.Duration
}

// BackupConfig controls the pre-commit database backup gate.
type BackupConfig struct {
	Dir       string
	MaxAge    time.Duration
	Retention time.Duration
	Command   string
	Timeout   time.Duration
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !isMissingFile(err) {
			return nil, err
		}
	}

	return fromViper(v), nil
}

func fromViper(v *viper.Viper) *Config {
	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Database = DatabaseConfig{
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
	}

	cfg.Redis = RedisConfig{
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.JWT = JWTConfig{
		Secret:     v.GetString("JWT_SECRET"),
		Expiration: parseDuration(v.GetString("JWT_EXPIRATION"), 8*time.Hour),
		Issuer:     v.GetString("JWT_ISSUER"),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	passing := v.GetFloat64("TRANSITION_PASSING_GRADE")
	if passing <= 0 {
		passing = 60
	}
	cfg.Transition = TransitionConfig{
		PassingGrade:      passing,
		Timezone:          v.GetString("TRANSITION_TIMEZONE"),
		LockTTL:           parseDuration(v.GetString("TRANSITION_LOCK_TTL"), 30*time.Minute),
		AuditDryRun:       v.GetBool("TRANSITION_AUDIT_DRY_RUN"),
		WorkerConcurrency: v.GetInt("TRANSITION_WORKER_CONCURRENCY"),
		RunStatusTTL:      parseDuration(v.GetString("TRANSITION_RUN_STATUS_TTL"), 24*time.Hour),
	}

	cfg.Reports = ReportsConfig{
		StorageDir:      v.GetString("REPORTS_STORAGE_DIR"),
		Format:          strings.ToLower(v.GetString("REPORTS_FORMAT")),
		SignedURLSecret: v.GetString("REPORTS_SIGNED_URL_SECRET"),
		SignedURLTTL:    parseDuration(v.GetString("REPORTS_SIGNED_URL_TTL"), 24*time.Hour),
	}

	cfg.Backup = BackupConfig{
		Dir:       v.GetString("BACKUP_DIR"),
		MaxAge:    parseDuration(v.GetString("BACKUP_MAX_AGE"), 24*time.Hour),
		Retention: parseDuration(v.GetString("BACKUP_RETENTION"), 7*24*time.Hour),
		Command:   v.GetString("BACKUP_COMMAND"),
		Timeout:   parseDuration(v.GetString("BACKUP_TIMEOUT"), 10*time.Minute),
	}

	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "gestao_escolar")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_HOST", "")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_EXPIRATION", "8h")
	v.SetDefault("JWT_ISSUER", "ano-letivo-api")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("TRANSITION_PASSING_GRADE", 60)
	v.SetDefault("TRANSITION_TIMEZONE", "America/Sao_Paulo")
	v.SetDefault("TRANSITION_LOCK_TTL", "30m")
	v.SetDefault("TRANSITION_AUDIT_DRY_RUN", false)
	v.SetDefault("TRANSITION_WORKER_CONCURRENCY", 1)
	v.SetDefault("TRANSITION_RUN_STATUS_TTL", "24h")

	v.SetDefault("REPORTS_STORAGE_DIR", "./relatorios")
	v.SetDefault("REPORTS_FORMAT", "pdf")
	v.SetDefault("REPORTS_SIGNED_URL_SECRET", "dev_reports_secret")
	v.SetDefault("REPORTS_SIGNED_URL_TTL", "24h")

	v.SetDefault("BACKUP_DIR", "./backups")
	v.SetDefault("BACKUP_MAX_AGE", "24h")
	v.SetDefault("BACKUP_RETENTION", "168h")
	v.SetDefault("BACKUP_COMMAND", "pg_dump")
	v.SetDefault("BACKUP_TIMEOUT", "10m")
}

// Location resolves the configured timezone, falling back to UTC.
func (c TransitionConfig) Location() *time.Location {
	if c.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}

func isMissingFile(err error) bool {
	return strings.Contains(err.Error(), "no such file or directory")
}
