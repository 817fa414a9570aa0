package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server ServerConfig
	JWT    JWTConfig
	Relay  RelayConfig
}

type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type JWTConfig struct {
	Secret []byte
}

type RelayConfig struct {
	// PingInterval is the heartbeat probe period; PongTimeout is the read
	// deadline and should cover roughly two missed probes.
	PingInterval time.Duration
	PongTimeout  time.Duration

	// RoomGracePeriod is how long an empty room lingers before teardown.
	RoomGracePeriod time.Duration

	// SendBuffer is the per-connection outbound queue length; events for
	// a connection whose queue is full are dropped.
	SendBuffer int
}

func Load() *Config {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Printf("No .env file found or error loading .env file: %v", err)
	}

	return &Config{
		Server: ServerConfig{
			Port:         getEnvOrDefault("PORT", ":8080"),
			ReadTimeout:  getDurationOrDefault("READ_TIMEOUT", "15s"),
			WriteTimeout: getDurationOrDefault("WRITE_TIMEOUT", "15s"),
		},
		JWT: JWTConfig{
			Secret: []byte(getEnvOrFatal("JWT_SECRET")),
		},
		Relay: RelayConfig{
			PingInterval:    getDurationOrDefault("PING_INTERVAL", "25s"),
			PongTimeout:     getDurationOrDefault("PONG_TIMEOUT", "55s"),
			RoomGracePeriod: getDurationOrDefault("ROOM_GRACE_PERIOD", "5s"),
			SendBuffer:      getIntOrDefault("SEND_BUFFER", 256),
		},
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvOrFatal(key string) string {
	value := os.Getenv(key)
	if value == "" {
		log.Fatalf("%s environment variable is required", key)
	}
	return value
}

func getDurationOrDefault(key, defaultValue string) time.Duration {
	value := getEnvOrDefault(key, defaultValue)
	duration, err := time.ParseDuration(value)
	if err != nil {
		log.Fatalf("Invalid duration for %s: %v", key, err)
	}
	return duration
}

func getIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	intValue, err := strconv.Atoi(value)
	if err != nil {
		log.Fatalf("Invalid integer for %s: %v", key, err)
	}
	return intValue
}
