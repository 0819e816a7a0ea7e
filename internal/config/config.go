package config

import (
	"os"
	"strconv"
	"time"
)

// DuplicatePolicy decides which of two sessions presenting the same
// client id survives.
type DuplicatePolicy string

const (
	// KeepNew drops the previously registered session; the new
	// connection takes over the client id.
	KeepNew DuplicatePolicy = "keep-new"
	// KeepOld rejects the new connection and keeps the registered one.
	KeepOld DuplicatePolicy = "keep-old"
)

type Config struct {
	HTTPPort string
	TCPPort  string

	ServerName    string
	ServerVersion string

	AuthServerURL string

	RedisAddr     string
	RedisPassword string

	DatabaseDSN string

	UpdateDir string
	LogDir    string

	// Session lifecycle thresholds enforced by the reaper.
	SerialGracePeriod time.Duration
	IdleTimeout       time.Duration
	LogRetentionDays  int

	// Report exchange.
	RequestTimeout time.Duration

	DuplicatePolicy DuplicatePolicy
}

func Load() Config {

	cfg := Config{

		HTTPPort: getenv("APP_HTTP_PORT", "8080"),
		TCPPort:  getenv("APP_TCP_PORT", "8016"),

		ServerName:    getenv("SERVER_NAME", "CloudReportServer"),
		ServerVersion: getenv("SERVER_VERSION", "1.0.0"),

		AuthServerURL: os.Getenv("AUTH_SERVER_URL"),

		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),

		DatabaseDSN: os.Getenv("DATABASE_DSN"),

		UpdateDir: getenv("UPDATE_DIR", "./updates"),
		LogDir:    getenv("LOG_DIR", "./logs"),

		SerialGracePeriod: getDuration("SERIAL_GRACE_PERIOD", 60*time.Second),
		IdleTimeout:       getDuration("IDLE_TIMEOUT", 5*time.Minute),
		LogRetentionDays:  getInt("LOG_RETENTION_DAYS", 30),

		RequestTimeout: getDuration("REQUEST_TIMEOUT", 30*time.Second),

		DuplicatePolicy: DuplicatePolicy(getenv("DUPLICATE_POLICY", string(KeepNew))),
	}

	return cfg

}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

func getInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
