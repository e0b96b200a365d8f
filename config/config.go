// Package config はアプリケーション設定の読み込みを提供する。
package config

import (
	"os"
	"strconv"
	"time"
)

// Config はアプリケーション設定を表す。
type Config struct {
	Port                string
	DatabaseDriver      string
	DatabaseURL         string
	DatabaseAutoMigrate bool
	MigrationsDir       string
	GoogleCloudProject  string
	LogLevel            string
	RequestTimeout      time.Duration

	OtelEnabled      bool
	OtelInsecure     bool
	OtelEndpoint     string
	OtelServiceName  string
	OtelSamplingRate float64

	JWTSecret string

	SubmitRateLimitRPS   float64
	SubmitRateLimitBurst int

	// 署名鍵の秘密情報の取得元: env, kms, vault
	SigningSecretSource     string
	SigningSecret           string
	SigningSecretCiphertext string
	KMSKeyName              string
	VaultAddr               string
	VaultToken              string
	VaultSecretPath         string

	SigningKeyAlgorithm     string
	SigningKeyRSABits       int
	SigningKeyLifetime      time.Duration
	SigningKeyIdentityName  string
	SigningKeyIdentityEmail string
}

// Load は環境変数から設定を読み込む。
func Load() *Config {
	return &Config{
		Port:                getEnv("PORT", "8080"),
		DatabaseDriver:      getEnv("DATABASE_DRIVER", "mysql"),
		DatabaseURL:         os.Getenv("DATABASE_URL"),
		DatabaseAutoMigrate: getEnvBool("DATABASE_AUTO_MIGRATE", false),
		MigrationsDir:       getEnv("MIGRATIONS_DIR", "./migrations"),
		GoogleCloudProject:  os.Getenv("GOOGLE_CLOUD_PROJECT"),
		LogLevel:            getEnv("LOG_LEVEL", "INFO"),
		RequestTimeout:      getEnvDuration("REQUEST_TIMEOUT", 15*time.Second),

		OtelEnabled:      getEnvBool("OTEL_ENABLED", false),
		OtelInsecure:     getEnvBool("OTEL_INSECURE", false),
		OtelEndpoint:     getEnv("OTEL_ENDPOINT", "localhost:4317"),
		OtelServiceName:  getEnv("OTEL_SERVICE_NAME", "formularium-backend"),
		OtelSamplingRate: getEnvFloat("OTEL_SAMPLING_RATE", 1.0),

		JWTSecret: os.Getenv("JWT_SECRET"),

		SubmitRateLimitRPS:   getEnvFloat("SUBMIT_RATE_LIMIT_RPS", 1),
		SubmitRateLimitBurst: getEnvInt("SUBMIT_RATE_LIMIT_BURST", 10),

		SigningSecretSource:     getEnv("SIGNING_SECRET_SOURCE", "env"),
		SigningSecret:           os.Getenv("SIGNING_SECRET"),
		SigningSecretCiphertext: os.Getenv("SIGNING_SECRET_CIPHERTEXT"),
		KMSKeyName:              os.Getenv("KMS_KEY_NAME"),
		VaultAddr:               os.Getenv("VAULT_ADDR"),
		VaultToken:              os.Getenv("VAULT_TOKEN"),
		VaultSecretPath:         getEnv("VAULT_SECRET_PATH", "secret/data/formularium/signing"),

		SigningKeyAlgorithm:     getEnv("SIGNING_KEY_ALGORITHM", "rsa"),
		SigningKeyRSABits:       getEnvInt("SIGNING_KEY_RSA_BITS", 4096),
		SigningKeyLifetime:      getEnvDuration("SIGNING_KEY_LIFETIME", 365*24*time.Hour),
		SigningKeyIdentityName:  getEnv("SIGNING_KEY_IDENTITY_NAME", "Formularium"),
		SigningKeyIdentityEmail: getEnv("SIGNING_KEY_IDENTITY_EMAIL", "formularium@localhost"),
	}
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if b, err := strconv.ParseBool(os.Getenv(key)); err == nil {
		return b
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if n, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return n
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if f, err := strconv.ParseFloat(os.Getenv(key), 64); err == nil {
		return f
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if d, err := time.ParseDuration(os.Getenv(key)); err == nil {
		return d
	}
	return defaultVal
}
