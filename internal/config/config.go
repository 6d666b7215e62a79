package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Gateway GatewayConfig
	State   StateConfig
	Poll    PollConfig
	Stub    StubConfig
}

type GatewayConfig struct {
	URL     string
	Timeout time.Duration
}

type StateConfig struct {
	Path string
}

type PollConfig struct {
	Interval time.Duration
}

type StubConfig struct {
	Port              string
	JWTSecret         string
	ReservationExpiry time.Duration
	OfferWindow       time.Duration
}

func Load() (*Config, error) {
	// Load .env files if they exist (try .env.local first, then .env)
	_ = godotenv.Load(".env.local")
	_ = godotenv.Load(".env")

	config := &Config{
		Gateway: GatewayConfig{
			URL:     getEnv("GATEWAY_URL", "http://localhost:8080"),
			Timeout: getEnvAsDuration("GATEWAY_TIMEOUT", 30*time.Second),
		},
		State: StateConfig{
			Path: getEnv("STATE_DB_PATH", defaultStatePath()),
		},
		Poll: PollConfig{
			Interval: getEnvAsDuration("WAITLIST_POLL_INTERVAL", 5*time.Second),
		},
		Stub: StubConfig{
			Port:              getEnv("STUB_PORT", "8080"),
			JWTSecret:         getEnv("STUB_JWT_SECRET", "local-dev-secret-change-me"),
			ReservationExpiry: getEnvAsDuration("STUB_RESERVATION_EXPIRY", 5*time.Minute),
			OfferWindow:       getEnvAsDuration("STUB_OFFER_WINDOW", 2*time.Minute),
		},
	}

	return config, nil
}

func defaultStatePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "ticketflow.db"
	}
	return home + "/.ticketflow.db"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
