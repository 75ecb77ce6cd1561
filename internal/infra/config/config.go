package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

const (
	defaultDBPath       = "bot_data.sqlite3"
	railwayDataDir      = "/data"
	defaultTeacherName  = "Анастасия"
	defaultDailySpec    = "0 9 * * *"
	defaultSendRate     = 20
	defaultInterval     = 60 * time.Second
	defaultInitialDelay = 10 * time.Second
	defaultReminderTTL  = 10 * time.Minute
	defaultLogLevel     = "info"
	defaultEnvironment  = "development"
)

// ErrRailwayStorage is returned when the bot runs on Railway with a SQLite
// file outside of the mounted volume.
var ErrRailwayStorage = errors.New("invalid storage path for Railway")

// statPath is replaced in tests.
var statPath = os.Stat

// AppConfig holds all configuration for the application
type AppConfig struct {
	TelegramToken string `validate:"required"`
	DatabaseURL   string
	DBPath        string `validate:"required_without=DatabaseURL"`

	Location *time.Location `validate:"required"`

	LogLevel    string
	Environment string

	ReminderInterval     time.Duration `validate:"gt=0"`
	ReminderInitialDelay time.Duration `validate:"gte=0"`
	ReminderMessageTTL   time.Duration `validate:"gte=0"`
	CronSpecDailySummary string        `validate:"required"`

	SendRatePerSec     float64 `validate:"gt=0"`
	DefaultTeacherName string  `validate:"required"`

	OnRailway bool
}

// Load reads configuration from environment variables and .env file (if present).
func Load() (*AppConfig, error) {
	// godotenv.Load will not override existing env variables.
	_ = godotenv.Load()
	return LoadFrom(os.Getenv)
}

// LoadFrom builds the configuration from the given lookup function.
func LoadFrom(getenv func(string) string) (*AppConfig, error) {
	cfg := &AppConfig{
		TelegramToken:        strings.TrimSpace(getenv("BOT_TOKEN")),
		DatabaseURL:          strings.TrimSpace(getenv("DATABASE_URL")),
		DBPath:               strings.TrimSpace(getenv("DB_PATH")),
		LogLevel:             strings.ToLower(strings.TrimSpace(getenv("LOG_LEVEL"))),
		Environment:          strings.ToLower(strings.TrimSpace(getenv("ENVIRONMENT"))),
		CronSpecDailySummary: strings.TrimSpace(getenv("CRON_SPEC_DAILY_SUMMARY")),
		DefaultTeacherName:   strings.TrimSpace(getenv("DEFAULT_TEACHER_NAME")),
		OnRailway:            getenv("RAILWAY_ENVIRONMENT") != "" || getenv("RAILWAY_PROJECT_ID") != "",
	}
	if cfg.TelegramToken == "" {
		cfg.TelegramToken = strings.TrimSpace(getenv("TELEGRAM_TOKEN"))
	}
	if cfg.TelegramToken == "" {
		return nil, fmt.Errorf("BOT_TOKEN is not set")
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = defaultLogLevel
	}
	if cfg.Environment == "" {
		cfg.Environment = defaultEnvironment
	}
	if cfg.CronSpecDailySummary == "" {
		cfg.CronSpecDailySummary = defaultDailySpec
	}
	if cfg.DefaultTeacherName == "" {
		cfg.DefaultTeacherName = defaultTeacherName
	}
	if cfg.DBPath == "" {
		cfg.DBPath = defaultDBPath
		if cfg.OnRailway {
			cfg.DBPath = filepath.Join(railwayDataDir, defaultDBPath)
		}
	}

	cfg.Location = time.Local
	if tz := strings.TrimSpace(getenv("APP_TZ")); tz != "" {
		loc, err := time.LoadLocation(tz)
		if err != nil {
			return nil, fmt.Errorf("invalid APP_TZ %q: %w", tz, err)
		}
		cfg.Location = loc
	}

	var err error
	if cfg.ReminderInterval, err = durationVar(getenv, "REMINDER_INTERVAL", defaultInterval); err != nil {
		return nil, err
	}
	if cfg.ReminderInitialDelay, err = durationVar(getenv, "REMINDER_INITIAL_DELAY", defaultInitialDelay); err != nil {
		return nil, err
	}
	if cfg.ReminderMessageTTL, err = durationVar(getenv, "REMINDER_MESSAGE_TTL", defaultReminderTTL); err != nil {
		return nil, err
	}

	cfg.SendRatePerSec = defaultSendRate
	if raw := strings.TrimSpace(getenv("SEND_RATE_PER_SEC")); raw != "" {
		cfg.SendRatePerSec, err = strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid SEND_RATE_PER_SEC: %w", err)
		}
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if err := cfg.checkRailwayStorage(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// UsesPostgres reports whether DATABASE_URL selects the PostgreSQL backend.
func (c *AppConfig) UsesPostgres() bool {
	return c.DatabaseURL != ""
}

// checkRailwayStorage requires the SQLite file to live on the mounted /data volume.
func (c *AppConfig) checkRailwayStorage() error {
	if !c.OnRailway || c.UsesPostgres() {
		return nil
	}
	if !filepath.IsAbs(c.DBPath) || !strings.HasPrefix(c.DBPath, railwayDataDir+"/") {
		return fmt.Errorf("%w: DB_PATH must be inside %s, e.g. %s/%s (got %q)",
			ErrRailwayStorage, railwayDataDir, railwayDataDir, defaultDBPath, c.DBPath)
	}
	info, err := statPath(railwayDataDir)
	if err != nil || !info.IsDir() {
		return fmt.Errorf("%w: %s is not mounted, attach a volume at %s", ErrRailwayStorage, railwayDataDir, railwayDataDir)
	}
	return nil
}

func durationVar(getenv func(string) string, key string, def time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(getenv(key))
	if raw == "" {
		return def, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		// plain numbers are seconds
		secs, convErr := strconv.Atoi(raw)
		if convErr != nil {
			return 0, fmt.Errorf("invalid %s: %w", key, err)
		}
		d = time.Duration(secs) * time.Second
	}
	return d, nil
}
