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

// No-show credit policies.
const (
	NoShowForfeit = "forfeit"
	NoShowRefund  = "refund"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database     DatabaseConfig
	Redis        RedisConfig
	JWT          JWTConfig
	CORS         CORSConfig
	Log          LogConfig
	Booking      BookingConfig
	Availability AvailabilityConfig
	Workers      WorkersConfig
	Sweeper      SweeperConfig
	VideoRoom    VideoRoomConfig
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

type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
}

type JWTConfig struct {
	Secret string
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// BookingConfig bounds the atomic booking unit and carries the product policies around it.
type BookingConfig struct {
	TxTimeout         time.Duration
	LockTimeout       time.Duration
	MaxRetries        int
	RetryBackoff      time.Duration
	Isolation         string
	MinLeadTime       time.Duration
	HorizonDays       int
	NoShowPolicy      string
	DeferredJoinGrace time.Duration
	NoShowGrace       time.Duration
	JoinOpensBefore   time.Duration
}

// AvailabilityConfig governs window computation and the availability cache.
type AvailabilityConfig struct {
	CacheEnabled          bool
	CacheTTL              time.Duration
	DefaultSessionMinutes int
}

// WorkersConfig sizes the post-commit side-effect queue.
type WorkersConfig struct {
	Concurrency int
	BufferSize  int
	MaxRetries  int
	RetryDelay  time.Duration
}

// SweeperConfig schedules the periodic lifecycle sweep.
type SweeperConfig struct {
	Enabled bool
	Spec    string
}

// VideoRoomConfig points at the room provisioning collaborator.
type VideoRoomConfig struct {
	BaseURL string
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
		Enabled:  v.GetBool("REDIS_ENABLED"),
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.JWT = JWTConfig{Secret: v.GetString("JWT_SECRET")}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Booking = BookingConfig{
		TxTimeout:         parseDuration(v.GetString("BOOKING_TX_TIMEOUT"), 500*time.Millisecond),
		LockTimeout:       parseDuration(v.GetString("BOOKING_LOCK_TIMEOUT"), 300*time.Millisecond),
		MaxRetries:        v.GetInt("BOOKING_MAX_RETRIES"),
		RetryBackoff:      parseDuration(v.GetString("BOOKING_RETRY_BACKOFF"), 50*time.Millisecond),
		Isolation:         strings.ToLower(v.GetString("BOOKING_ISOLATION")),
		MinLeadTime:       parseDuration(v.GetString("BOOKING_MIN_LEAD_TIME"), 0),
		HorizonDays:       v.GetInt("BOOKING_HORIZON_DAYS"),
		NoShowPolicy:      normaliseNoShowPolicy(v.GetString("NO_SHOW_POLICY")),
		DeferredJoinGrace: parseDuration(v.GetString("DEFERRED_JOIN_GRACE"), 15*time.Minute),
		NoShowGrace:       parseDuration(v.GetString("NO_SHOW_GRACE"), 30*time.Minute),
		JoinOpensBefore:   parseDuration(v.GetString("JOIN_OPENS_BEFORE"), 10*time.Minute),
	}

	cfg.Availability = AvailabilityConfig{
		CacheEnabled:          v.GetBool("AVAILABILITY_CACHE_ENABLED"),
		CacheTTL:              parseDuration(v.GetString("AVAILABILITY_CACHE_TTL"), 30*time.Second),
		DefaultSessionMinutes: v.GetInt("DEFAULT_SESSION_MINUTES"),
	}

	cfg.Workers = WorkersConfig{
		Concurrency: v.GetInt("SIDE_EFFECT_WORKERS"),
		BufferSize:  v.GetInt("SIDE_EFFECT_BUFFER"),
		MaxRetries:  v.GetInt("SIDE_EFFECT_RETRIES"),
		RetryDelay:  parseDuration(v.GetString("SIDE_EFFECT_RETRY_DELAY"), 2*time.Second),
	}

	cfg.Sweeper = SweeperConfig{
		Enabled: v.GetBool("ENABLE_SWEEPER"),
		Spec:    v.GetString("SWEEPER_SPEC"),
	}

	cfg.VideoRoom = VideoRoomConfig{BaseURL: strings.TrimRight(v.GetString("VIDEO_ROOM_BASE_URL"), "/")}

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
	v.SetDefault("DB_NAME", "therapy_booking")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 20)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_ENABLED", true)
	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("BOOKING_TX_TIMEOUT", "500ms")
	v.SetDefault("BOOKING_LOCK_TIMEOUT", "300ms")
	v.SetDefault("BOOKING_MAX_RETRIES", 3)
	v.SetDefault("BOOKING_RETRY_BACKOFF", "50ms")
	v.SetDefault("BOOKING_ISOLATION", "read_committed")
	v.SetDefault("BOOKING_MIN_LEAD_TIME", "0s")
	v.SetDefault("BOOKING_HORIZON_DAYS", 90)
	v.SetDefault("NO_SHOW_POLICY", NoShowForfeit)
	v.SetDefault("DEFERRED_JOIN_GRACE", "15m")
	v.SetDefault("NO_SHOW_GRACE", "30m")
	v.SetDefault("JOIN_OPENS_BEFORE", "10m")

	v.SetDefault("AVAILABILITY_CACHE_ENABLED", true)
	v.SetDefault("AVAILABILITY_CACHE_TTL", "30s")
	v.SetDefault("DEFAULT_SESSION_MINUTES", 60)

	v.SetDefault("SIDE_EFFECT_WORKERS", 2)
	v.SetDefault("SIDE_EFFECT_BUFFER", 64)
	v.SetDefault("SIDE_EFFECT_RETRIES", 5)
	v.SetDefault("SIDE_EFFECT_RETRY_DELAY", "2s")

	v.SetDefault("ENABLE_SWEEPER", true)
	v.SetDefault("SWEEPER_SPEC", "@every 1m")

	v.SetDefault("VIDEO_ROOM_BASE_URL", "https://rooms.example.com")
}

func normaliseNoShowPolicy(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case NoShowRefund:
		return NoShowRefund
	default:
		return NoShowForfeit
	}
}

func isMissingFile(err error) bool {
	return strings.Contains(err.Error(), "no such file or directory")
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
