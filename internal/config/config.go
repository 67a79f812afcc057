package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

type Config struct {
	Port                 string
	AllowedOrigin        string
	DatabaseURL          string
	RedisAddr            string
	RedisPassword        string
	RedisDB              int
	ProjectionTTLSeconds int
	AuthSecret           string
	SessionTTLMinutes    int
}

func Load() Config {
	redisDB, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))
	ttl, err := strconv.Atoi(getEnv("PROJECTION_TTL_SECONDS", "15"))
	if err != nil || ttl < 1 {
		ttl = 15
	}
	sessionTTL, err := strconv.Atoi(getEnv("SESSION_TTL_MINUTES", "30"))
	if err != nil || sessionTTL < 1 {
		sessionTTL = 30
	}

	cfg := Config{
		Port:                 getEnv("PORT", "8080"),
		AllowedOrigin:        getEnv("ALLOWED_ORIGIN", "http://127.0.0.1:3000"),
		DatabaseURL:          os.Getenv("DATABASE_URL"),
		RedisAddr:            os.Getenv("REDIS_ADDR"),
		RedisPassword:        os.Getenv("REDIS_PASSWORD"),
		RedisDB:              redisDB,
		ProjectionTTLSeconds: ttl,
		AuthSecret:           strings.TrimSpace(os.Getenv("AUTH_SECRET")),
		SessionTTLMinutes:    sessionTTL,
	}

	return cfg
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}

func getEnv(key string, fallback string) string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	return val
}
