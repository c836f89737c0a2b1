// Package config loads process configuration from the environment.
package config

import (
	"encoding/base64"
	"fmt"
	"os"
	"strconv"
	"time"
)

// Server captures process-level configuration so main stays lean.
type Server struct {
	Addr        string
	Environment string

	Database DatabaseConfig
	Redis    RedisConfig
	Kafka    KafkaConfig

	// FingerprintKey is the HMAC key for attribute fingerprints. Rotating it
	// invalidates every stored fingerprint, so it is supplied out of band.
	FingerprintKey []byte
	// EncryptionPepper is mixed into every password-derived key so an offline
	// database dump alone is not enough to attempt dictionary attacks.
	EncryptionPepper []byte

	KDF      KDFConfig
	Throttle ThrottleConfig
}

// DatabaseConfig holds database connection configuration.
type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// RedisConfig holds Redis client configuration.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// KafkaConfig holds audit event publishing configuration.
type KafkaConfig struct {
	Brokers string
	Topic   string
}

// KDFConfig carries argon2id cost parameters for the envelope encryptor.
// Tests construct cheap variants explicitly instead of reading the environment.
type KDFConfig struct {
	Time    uint32
	MemoryK uint32
	Threads uint8
}

// ThrottleConfig bounds repeated authentication and decryption attempts.
type ThrottleConfig struct {
	MaxAttempts   int
	AttemptWindow time.Duration
}

// FromEnv builds a Server config from environment variables.
func FromEnv() (Server, error) {
	cfg := Server{
		Addr:        envOr("IDVAULT_ADDR", ":8080"),
		Environment: envOr("IDVAULT_ENV", "development"),
		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    envIntOr("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    envIntOr("DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: envDurationOr("DATABASE_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			URL:          os.Getenv("REDIS_URL"),
			PoolSize:     envIntOr("REDIS_POOL_SIZE", 10),
			MinIdleConns: envIntOr("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  envDurationOr("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  envDurationOr("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: envDurationOr("REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Kafka: KafkaConfig{
			Brokers: os.Getenv("KAFKA_BROKERS"),
			Topic:   envOr("KAFKA_AUDIT_TOPIC", "idvault.audit.events"),
		},
		KDF: KDFConfig{
			Time:    uint32(envIntOr("KDF_TIME", 1)),
			MemoryK: uint32(envIntOr("KDF_MEMORY_KIB", 64*1024)),
			Threads: uint8(envIntOr("KDF_THREADS", 4)),
		},
		Throttle: ThrottleConfig{
			MaxAttempts:   envIntOr("THROTTLE_MAX_ATTEMPTS", 5),
			AttemptWindow: envDurationOr("THROTTLE_ATTEMPT_WINDOW", 10*time.Minute),
		},
	}

	var err error
	cfg.FingerprintKey, err = keyFromEnv("FINGERPRINT_KEY")
	if err != nil {
		return Server{}, err
	}
	cfg.EncryptionPepper, err = keyFromEnv("ENCRYPTION_PEPPER")
	if err != nil {
		return Server{}, err
	}
	return cfg, nil
}

func keyFromEnv(name string) ([]byte, error) {
	raw := os.Getenv(name)
	if raw == "" {
		return nil, fmt.Errorf("%s is required", name)
	}
	key, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return nil, fmt.Errorf("%s must be base64: %w", name, err)
	}
	if len(key) < 32 {
		return nil, fmt.Errorf("%s must decode to at least 32 bytes", name)
	}
	return key, nil
}

func envOr(name, fallback string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return fallback
}

func envIntOr(name string, fallback int) int {
	if v := os.Getenv(name); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envDurationOr(name string, fallback time.Duration) time.Duration {
	if v := os.Getenv(name); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
