package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	HTTPAddr       string
	DataDir        string
	JWTSecret      string
	JWTIssuer      string
	TokenTTL       time.Duration
	AllowedOrigins []string
}

func Load() Config {
	return Config{
		HTTPAddr:       getenv("HTTP_ADDR", ":5001"),
		DataDir:        getenv("DATA_DIR", "data"),
		JWTSecret:      getenv("JWT_SECRET", "dev-secret"),
		JWTIssuer:      getenv("JWT_ISSUER", "coursedesk"),
		TokenTTL:       getenvDuration("TOKEN_TTL", 7*24*time.Hour),
		AllowedOrigins: getenvList("ALLOWED_ORIGINS", []string{"http://localhost:3000"}),
	}
}

func getenv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if parsed, err := time.ParseDuration(val); err == nil {
			return parsed
		}
	}
	if val := os.Getenv(key + "_SECONDS"); val != "" {
		if seconds, err := strconv.Atoi(val); err == nil {
			return time.Duration(seconds) * time.Second
		}
	}
	return fallback
}

func getenvList(key string, fallback []string) []string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parts := strings.Split(val, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
