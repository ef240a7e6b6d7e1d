package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration
type Config struct {
	Port            string
	Env             string
	LogLevel        string
	PrimaryTimezone string
	DatabaseURL     string

	RedisAddr     string
	RedisPassword string
	RedisTLS      bool
	GroupLockTTL  time.Duration

	// Google Calendar
	GoogleCalendarID             string
	GoogleAuthMethod             string
	GoogleServiceAccountPath     string
	GoogleDelegatedUser          string
	GoogleOAuthClientSecretsPath string
	GoogleOAuthTokenPath         string
	CalendarRetryAttempts        int
	CalendarRetryBaseDelay       time.Duration
	CalendarRetryMaxDelay        time.Duration

	// Slot search
	SlotLength     time.Duration
	WorkHoursStart string
	WorkHoursEnd   string
	SlotLimit      int
	SearchSpan     time.Duration

	// Hold lifecycle
	HoldTTL            time.Duration
	HoldReaperInterval time.Duration

	RetellWebhookToken string
	CORSAllowedOrigins []string
	RateLimitRPS       float64
	RateLimitBurst     int

	AWSRegion                 string
	AWSAccessKeyID            string
	AWSSecretAccessKey        string
	AWSEndpointOverride       string
	AppointmentEventsQueueURL string
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:            getEnv("PORT", "8080"),
		Env:             getEnv("ENV", "development"),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		PrimaryTimezone: getEnv("PRIMARY_TIMEZONE", "America/New_York"),
		DatabaseURL:     getEnv("DATABASE_URL", ""),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisTLS:      getEnvAsBool("REDIS_TLS", false),
		GroupLockTTL:  getEnvAsDuration("GROUP_LOCK_TTL", 30*time.Second),

		GoogleCalendarID:             getEnv("GOOGLE_CALENDAR_ID", "primary"),
		GoogleAuthMethod:             strings.ToLower(strings.TrimSpace(getEnv("GOOGLE_AUTH_METHOD", "service_account"))),
		GoogleServiceAccountPath:     getEnv("GOOGLE_SERVICE_ACCOUNT_PATH", ""),
		GoogleDelegatedUser:          getEnv("GOOGLE_DELEGATED_USER", ""),
		GoogleOAuthClientSecretsPath: getEnv("GOOGLE_OAUTH_CLIENT_SECRETS_PATH", ""),
		GoogleOAuthTokenPath:         getEnv("GOOGLE_OAUTH_TOKEN_PATH", "token.json"),
		CalendarRetryAttempts:        getEnvAsInt("CALENDAR_RETRY_ATTEMPTS", 3),
		CalendarRetryBaseDelay:       getEnvAsDuration("CALENDAR_RETRY_BASE_DELAY", 2*time.Second),
		CalendarRetryMaxDelay:        getEnvAsDuration("CALENDAR_RETRY_MAX_DELAY", 10*time.Second),

		SlotLength:     getEnvAsDuration("SLOT_LENGTH", 30*time.Minute),
		WorkHoursStart: getEnv("WORK_HOURS_START", "09:00"),
		WorkHoursEnd:   getEnv("WORK_HOURS_END", "17:00"),
		SlotLimit:      getEnvAsInt("SLOT_LIMIT", 3),
		SearchSpan:     getEnvAsDuration("SEARCH_SPAN", 7*24*time.Hour),

		HoldTTL:            getEnvAsDuration("HOLD_TTL", 180*time.Second),
		HoldReaperInterval: getEnvAsDuration("HOLD_REAPER_INTERVAL", 30*time.Second),

		RetellWebhookToken: getEnv("RETELL_WEBHOOK_TOKEN", ""),
		CORSAllowedOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS"),
		RateLimitRPS:       getEnvAsFloat("RATE_LIMIT_RPS", 20),
		RateLimitBurst:     getEnvAsInt("RATE_LIMIT_BURST", 40),

		AWSRegion:                 getEnv("AWS_REGION", "us-east-1"),
		AWSAccessKeyID:            getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey:        getEnv("AWS_SECRET_ACCESS_KEY", ""),
		AWSEndpointOverride:       getEnv("AWS_ENDPOINT_OVERRIDE", ""),
		AppointmentEventsQueueURL: getEnv("APPOINTMENT_EVENTS_QUEUE_URL", ""),
	}
}

// Location resolves PrimaryTimezone, falling back to UTC.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(strings.TrimSpace(c.PrimaryTimezone))
	if err != nil {
		return time.UTC
	}
	return loc
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsDuration accepts Go durations ("90s") or a bare number of seconds.
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := strings.TrimSpace(getEnv(key, ""))
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	if secs, err := strconv.Atoi(valueStr); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}

func getEnvAsList(key string) []string {
	var out []string
	for _, part := range strings.Split(getEnv(key, ""), ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
