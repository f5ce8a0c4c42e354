package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Realtime  RealtimeConfig  `yaml:"realtime"`
	Cache     CacheConfig     `yaml:"cache"`
	Schedule  ScheduleConfig  `yaml:"schedule"`
	Stream    StreamConfig    `yaml:"stream"`
	Messaging MessagingConfig `yaml:"messaging"`
	Notify    NotifyConfig    `yaml:"notify"`
	Logging   LoggingConfig   `yaml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

type ServerConfig struct {
	Addr            string        `yaml:"addr" validate:"required"`
	ReadTimeout     time.Duration `yaml:"read_timeout" validate:"gt=0"`
	WriteTimeout    time.Duration `yaml:"write_timeout" validate:"gte=0"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" validate:"gt=0"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" validate:"gt=0"`
	CronSecret      string        `yaml:"cron_secret"`
	// CronSecondPassDelay separates the two syncs run by the cron route. Zero runs a single pass.
	CronSecondPassDelay time.Duration `yaml:"cron_second_pass_delay" validate:"gte=0"`
}

type DatabaseConfig struct {
	Driver          string        `yaml:"driver" validate:"oneof=postgres pgx"`
	URL             string        `yaml:"url"`
	Host            string        `yaml:"host"`
	Port            string        `yaml:"port"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	DBName          string        `yaml:"dbname"`
	SSLMode         string        `yaml:"sslmode"`
	MaxOpenConns    int           `yaml:"max_open_conns" validate:"gte=0"`
	MaxIdleConns    int           `yaml:"max_idle_conns" validate:"gte=0"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" validate:"gte=0"`
}

// RealtimeConfig for the upstream GTFS-realtime feeds
type RealtimeConfig struct {
	BaseURL             string        `yaml:"base_url" validate:"required,url"`
	TripUpdatesPath     string        `yaml:"trip_updates_path" validate:"required"`
	VehiclePositionPath string        `yaml:"vehicle_positions_path" validate:"required"`
	ServiceAlertsPath   string        `yaml:"service_alerts_path" validate:"required"`
	APIKey              string        `yaml:"api_key"`
	APIKeyHeader        string        `yaml:"api_key_header" validate:"required"`
	Format              string        `yaml:"format" validate:"oneof=json protobuf"`
	HTTPTimeout         time.Duration `yaml:"http_timeout" validate:"gt=0"`
	SyncTimeout         time.Duration `yaml:"sync_timeout" validate:"gt=0"`
	RetryMaxElapsed     time.Duration `yaml:"retry_max_elapsed" validate:"gte=0"`
	// SyncInterval drives the in-process sync loop. Zero leaves syncing to an external trigger.
	SyncInterval time.Duration `yaml:"sync_interval" validate:"gte=0"`
}

type CacheConfig struct {
	Backend        string `yaml:"backend" validate:"oneof=memory redis"`
	RedisURL       string `yaml:"redis_url" validate:"required_if=Backend redis"`
	MemoryCapacity int    `yaml:"memory_capacity" validate:"gt=0"`
}

type ScheduleConfig struct {
	Timezone         string `yaml:"timezone" validate:"required"`
	CalendarStrategy string `yaml:"calendar_strategy" validate:"oneof=weekly exceptions"`
}

type StreamConfig struct {
	PollInterval   time.Duration `yaml:"poll_interval" validate:"gt=0"`
	MaxDuration    time.Duration `yaml:"max_duration" validate:"gt=0"`
	ReconnectDelay time.Duration `yaml:"reconnect_delay" validate:"gte=0"`
	DepartureLimit int           `yaml:"departure_limit" validate:"min=1,max=50"`
	WindowSeconds  int           `yaml:"window_seconds" validate:"min=0,max=86400"`
}

type MessagingConfig struct {
	NATSURL       string `yaml:"nats_url"`
	SubjectPrefix string `yaml:"subject_prefix" validate:"required"`
}

type NotifyConfig struct {
	DiscordWebhookURL string `yaml:"discord_webhook_url" validate:"omitempty,url"`
}

type LoggingConfig struct {
	Level    string `yaml:"level"`
	Format   string `yaml:"format" validate:"omitempty,oneof=console json"`
	FilePath string `yaml:"file_path"`
}

type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// Default returns the configuration used when neither a file nor the environment sets a value.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:                ":8080",
			ReadTimeout:         10 * time.Second,
			WriteTimeout:        0, // SSE responses outlive any fixed write timeout
			IdleTimeout:         120 * time.Second,
			ShutdownTimeout:     15 * time.Second,
			CronSecondPassDelay: 30 * time.Second,
		},
		Database: DatabaseConfig{
			Driver:          "postgres",
			Host:            "localhost",
			Port:            "5432",
			User:            "postgres",
			DBName:          "metlink",
			SSLMode:         "disable",
			MaxOpenConns:    10,
			MaxIdleConns:    5,
			ConnMaxLifetime: 30 * time.Minute,
		},
		Realtime: RealtimeConfig{
			BaseURL:             "https://api.opendata.metlink.org.nz/v1/gtfs-rt",
			TripUpdatesPath:     "/tripupdates",
			VehiclePositionPath: "/vehiclepositions",
			ServiceAlertsPath:   "/servicealerts",
			APIKeyHeader:        "x-api-key",
			Format:              "json",
			HTTPTimeout:         30 * time.Second,
			SyncTimeout:         60 * time.Second,
			RetryMaxElapsed:     10 * time.Second,
		},
		Cache: CacheConfig{
			Backend:        "memory",
			MemoryCapacity: 100000,
		},
		Schedule: ScheduleConfig{
			Timezone:         "Pacific/Auckland",
			CalendarStrategy: "weekly",
		},
		Stream: StreamConfig{
			PollInterval:   5 * time.Second,
			MaxDuration:    55 * time.Second,
			ReconnectDelay: time.Second,
			DepartureLimit: 20,
			WindowSeconds:  7200,
		},
		Messaging: MessagingConfig{
			SubjectPrefix: "metlink",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
	}
}

// Load builds the configuration from defaults, an optional YAML file, and the environment, in that order.
// A .env file in the working directory is loaded first when present.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := Default()

	if path == "" {
		path = os.Getenv("TRANSIT_CONFIG")
	}
	if path != "" {
		if err := loadFile(path, cfg); err != nil {
			return nil, err
		}
	}

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parsing config file %s: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *Config) {
	s := &cfg.Server
	s.Addr = getEnv("HTTP_ADDR", s.Addr)
	s.ReadTimeout = getDurationEnv("HTTP_READ_TIMEOUT", s.ReadTimeout)
	s.WriteTimeout = getDurationEnv("HTTP_WRITE_TIMEOUT", s.WriteTimeout)
	s.IdleTimeout = getDurationEnv("HTTP_IDLE_TIMEOUT", s.IdleTimeout)
	s.ShutdownTimeout = getDurationEnv("HTTP_SHUTDOWN_TIMEOUT", s.ShutdownTimeout)
	s.CronSecret = getEnv("CRON_SECRET", s.CronSecret)
	s.CronSecondPassDelay = getDurationEnv("CRON_SECOND_PASS_DELAY", s.CronSecondPassDelay)

	d := &cfg.Database
	d.Driver = getEnv("DB_DRIVER", d.Driver)
	d.URL = getEnv("DATABASE_URL", d.URL)
	d.Host = getEnv("DB_HOST", d.Host)
	d.Port = getEnv("DB_PORT", d.Port)
	d.User = getEnv("DB_USER", d.User)
	d.Password = getEnv("DB_PASSWORD", d.Password)
	d.DBName = getEnv("DB_NAME", d.DBName)
	d.SSLMode = getEnv("DB_SSLMODE", d.SSLMode)
	d.MaxOpenConns = getIntEnv("DB_MAX_OPEN_CONNS", d.MaxOpenConns)
	d.MaxIdleConns = getIntEnv("DB_MAX_IDLE_CONNS", d.MaxIdleConns)
	d.ConnMaxLifetime = getDurationEnv("DB_CONN_MAX_LIFETIME", d.ConnMaxLifetime)

	r := &cfg.Realtime
	r.BaseURL = getEnv("GTFS_RT_BASE_URL", r.BaseURL)
	r.APIKey = getEnv("METLINK_API_KEY", r.APIKey)
	r.APIKeyHeader = getEnv("GTFS_RT_API_KEY_HEADER", r.APIKeyHeader)
	r.Format = getEnv("GTFS_RT_FORMAT", r.Format)
	r.HTTPTimeout = getDurationEnv("GTFS_RT_HTTP_TIMEOUT", r.HTTPTimeout)
	r.SyncTimeout = getDurationEnv("GTFS_RT_SYNC_TIMEOUT", r.SyncTimeout)
	r.RetryMaxElapsed = getDurationEnv("GTFS_RT_RETRY_MAX_ELAPSED", r.RetryMaxElapsed)
	r.SyncInterval = getDurationEnv("GTFS_RT_SYNC_INTERVAL", r.SyncInterval)

	c := &cfg.Cache
	c.Backend = getEnv("CACHE_BACKEND", c.Backend)
	c.RedisURL = getEnv("REDIS_URL", c.RedisURL)
	c.MemoryCapacity = getIntEnv("CACHE_MEMORY_CAPACITY", c.MemoryCapacity)

	cfg.Schedule.Timezone = getEnv("SCHEDULE_TIMEZONE", cfg.Schedule.Timezone)
	cfg.Schedule.CalendarStrategy = getEnv("SCHEDULE_CALENDAR_STRATEGY", cfg.Schedule.CalendarStrategy)

	st := &cfg.Stream
	st.PollInterval = getDurationEnv("STREAM_POLL_INTERVAL", st.PollInterval)
	st.MaxDuration = getDurationEnv("STREAM_MAX_DURATION", st.MaxDuration)
	st.ReconnectDelay = getDurationEnv("STREAM_RECONNECT_DELAY", st.ReconnectDelay)
	st.DepartureLimit = getIntEnv("STREAM_DEPARTURE_LIMIT", st.DepartureLimit)
	st.WindowSeconds = getIntEnv("STREAM_WINDOW_SECONDS", st.WindowSeconds)

	cfg.Messaging.NATSURL = getEnv("NATS_URL", cfg.Messaging.NATSURL)
	cfg.Messaging.SubjectPrefix = getEnv("NATS_SUBJECT_PREFIX", cfg.Messaging.SubjectPrefix)

	cfg.Notify.DiscordWebhookURL = getEnv("DISCORD_WEBHOOK_URL", cfg.Notify.DiscordWebhookURL)

	cfg.Logging.Level = getEnv("LOG_LEVEL", cfg.Logging.Level)
	cfg.Logging.Format = getEnv("LOG_FORMAT", cfg.Logging.Format)
	cfg.Logging.FilePath = getEnv("LOG_FILE", cfg.Logging.FilePath)

	cfg.Metrics.Enabled = getBoolEnv("METRICS_ENABLED", cfg.Metrics.Enabled)
}

// Validate checks struct constraints and cross-field rules.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("invalid config: %s failed %q", fe.Namespace(), fe.Tag())
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.Stream.PollInterval > c.Stream.MaxDuration {
		return fmt.Errorf("invalid config: stream poll interval %s exceeds max duration %s",
			c.Stream.PollInterval, c.Stream.MaxDuration)
	}
	return nil
}

// Location resolves the schedule timezone.
func (c ScheduleConfig) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// ConnectionString returns DATABASE_URL when set, otherwise a keyword/value DSN.
func (c *DatabaseConfig) ConnectionString() string {
	if c.URL != "" {
		return c.URL
	}
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)
}

// FeedURL joins the base URL and a feed path.
func (c RealtimeConfig) FeedURL(path string) string {
	return strings.TrimRight(c.BaseURL, "/") + "/" + strings.TrimLeft(path, "/")
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}
