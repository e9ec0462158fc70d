package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// Storage drivers accepted in STORAGE_DRIVER.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMongo    = "mongo"
	DriverRedis    = "redis"
)

// Config holds application configuration values.
type Config struct {
	Env  string `validate:"required,oneof=dev prod"`
	HTTP struct {
		Addr      string  `validate:"required"`
		RateLimit float64 `validate:"gte=0"` // requests per second per client, 0 disables
		RateBurst int     `validate:"gte=0"`
	}
	Log struct {
		ConsoleLevel string `validate:"required,oneof=debug info warn error"`
		FileLevel    string `validate:"required,oneof=debug info warn error"`
		File         string
	}
	Storage struct {
		Driver        string `validate:"required,oneof=memory sqlite postgres mongo redis"`
		SQLitePath    string `validate:"required_if=Driver sqlite"`
		PostgresDSN   string `validate:"required_if=Driver postgres"`
		MongoURI      string `validate:"required_if=Driver mongo"`
		MongoDatabase string `validate:"required_if=Driver mongo"`
		RedisAddr     string `validate:"required_if=Driver redis"`
		RedisPassword string
		RedisDB       int    `validate:"gte=0"`
		RedisPrefix   string `validate:"required_if=Driver redis"`
	}
	Scheduler struct {
		Timezone        string        `validate:"required"`
		RecordTimeout   time.Duration `validate:"gt=0"`
		ShutdownTimeout time.Duration `validate:"gt=0"`
	}
	History struct {
		RetentionDays int    `validate:"gte=0"` // 0 disables pruning
		PruneSchedule string `validate:"required"`
	}
}

var validate = validator.New()

// Load reads configuration from environment variables and optional .env file.
func Load() (Config, error) {
	_ = godotenv.Load()

	var c Config
	var err error
	c.Env = getenv("ENV", "prod")

	c.HTTP.Addr = getenv("HTTP_ADDR", ":8080")
	if c.HTTP.RateLimit, err = getFloat("HTTP_RATE_LIMIT", 20); err != nil {
		return Config{}, err
	}
	if c.HTTP.RateBurst, err = getInt("HTTP_RATE_BURST", 40); err != nil {
		return Config{}, err
	}

	c.Log.ConsoleLevel = strings.ToLower(getenv("LOG_CONSOLE_LEVEL", "info"))
	c.Log.FileLevel = strings.ToLower(getenv("LOG_FILE_LEVEL", "debug"))
	c.Log.File = getenv("LOG_FILE", "data/logs/jobkeeper.log")

	c.Storage.Driver = strings.ToLower(getenv("STORAGE_DRIVER", DriverSQLite))
	c.Storage.SQLitePath = getenv("SQLITE_PATH", "data/jobkeeper.db")
	c.Storage.PostgresDSN = os.Getenv("POSTGRES_DSN")
	c.Storage.MongoURI = os.Getenv("MONGO_URI")
	c.Storage.MongoDatabase = getenv("MONGO_DATABASE", "jobkeeper")
	c.Storage.RedisAddr = os.Getenv("REDIS_ADDR")
	c.Storage.RedisPassword = os.Getenv("REDIS_PASSWORD")
	if c.Storage.RedisDB, err = getInt("REDIS_DB", 0); err != nil {
		return Config{}, err
	}
	c.Storage.RedisPrefix = getenv("REDIS_PREFIX", "jobkeeper:")

	c.Scheduler.Timezone = getenv("SCHEDULER_TIMEZONE", "Local")
	if c.Scheduler.RecordTimeout, err = getDuration("SCHEDULER_RECORD_TIMEOUT", 10*time.Second); err != nil {
		return Config{}, err
	}
	if c.Scheduler.ShutdownTimeout, err = getDuration("SCHEDULER_SHUTDOWN_TIMEOUT", 30*time.Second); err != nil {
		return Config{}, err
	}

	if c.History.RetentionDays, err = getInt("HISTORY_RETENTION_DAYS", 30); err != nil {
		return Config{}, err
	}
	c.History.PruneSchedule = getenv("HISTORY_PRUNE_SCHEDULE", "0 3 * * *")

	if err := validate.Struct(c); err != nil {
		return Config{}, err
	}
	if _, err := c.Location(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Location resolves SCHEDULER_TIMEZONE.
func (c Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Scheduler.Timezone)
	if err != nil {
		return nil, fmt.Errorf("SCHEDULER_TIMEZONE %q: %w", c.Scheduler.Timezone, err)
	}
	return loc, nil
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getInt(k string, def int) (int, error) {
	v := os.Getenv(k)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", k, err)
	}
	return n, nil
}

func getFloat(k string, def float64) (float64, error) {
	v := os.Getenv(k)
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", k, err)
	}
	return f, nil
}

func getDuration(k string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(k)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", k, err)
	}
	return d, nil
}
