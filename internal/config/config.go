package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds every knob the engine reads at startup. Sync knobs are
// re-read from here at the start of each cycle.
type Config struct {
	Environment         string
	EncryptionKeyBase64 string

	DBHost     string
	DBPort     string
	DBUsername string
	DBPassword string
	DBName     string
	DBSSLMode  string

	BatchSize      int
	SinceDays      int
	WorkerPoolSize int
	CycleInterval  time.Duration

	ConnectTimeout  time.Duration
	GreetingTimeout time.Duration
	SocketTimeout   time.Duration

	DebugBounces            bool
	BounceSubjectRecipients bool

	Timezone string
}

func NewConfig() (*Config, error) {
	env := os.Getenv("SYNC_ENV")
	if env == "" {
		env = "development"
	}

	if env == "development" {
		if err := godotenv.Load(); err != nil {
			fmt.Println("Warning: .env file not found, using environment variables")
		}
	}

	config := &Config{
		Environment:         env,
		EncryptionKeyBase64: os.Getenv("SYNC_ENCRYPTION_KEY_BASE64"),
		DBHost:              getEnvOrDefault("SYNC_DB_HOST", "localhost"),
		DBPort:              getEnvOrDefault("SYNC_DB_PORT", "5432"),
		DBUsername:          getEnvOrDefault("SYNC_DB_USER", "mailsift"),
		DBPassword:          os.Getenv("SYNC_DB_PASSWORD"),
		DBName:              getEnvOrDefault("SYNC_DB_NAME", "mailsift"),
		DBSSLMode:           getEnvOrDefault("SYNC_DB_SSLMODE", "disable"),

		BatchSize:      getEnvInt("SYNC_BATCH_SIZE", 100),
		SinceDays:      getEnvInt("SYNC_SINCE_DAYS", 30),
		WorkerPoolSize: getEnvInt("SYNC_WORKER_POOL_SIZE", 1),
		CycleInterval:  getEnvDuration("SYNC_CYCLE_INTERVAL", 5*time.Minute),

		ConnectTimeout:  getEnvDuration("SYNC_CONNECT_TIMEOUT", 20*time.Second),
		GreetingTimeout: getEnvDuration("SYNC_GREETING_TIMEOUT", 15*time.Second),
		SocketTimeout:   getEnvDuration("SYNC_SOCKET_TIMEOUT", 30*time.Second),

		DebugBounces:            getEnvBool("SYNC_DEBUG_BOUNCES", false),
		BounceSubjectRecipients: getEnvBool("SYNC_BOUNCE_SUBJECT_RECIPIENTS", true),

		Timezone: getEnvOrDefault("TZ", "UTC"),
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

func (c *Config) Validate() error {
	if c.EncryptionKeyBase64 == "" {
		return fmt.Errorf("SYNC_ENCRYPTION_KEY_BASE64 is required")
	}

	if c.DBPassword == "" {
		return fmt.Errorf("SYNC_DB_PASSWORD is required")
	}

	if c.BatchSize <= 0 {
		return fmt.Errorf("SYNC_BATCH_SIZE must be positive, got %d", c.BatchSize)
	}

	if c.WorkerPoolSize <= 0 {
		return fmt.Errorf("SYNC_WORKER_POOL_SIZE must be positive, got %d", c.WorkerPoolSize)
	}

	return nil
}

func (c *Config) GetDatabaseURL() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.DBUsername,
		c.DBPassword,
		c.DBHost,
		c.DBPort,
		c.DBName,
		c.DBSSLMode,
	)
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}

func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}
