package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

type Config struct {
	Environment string
	Server      struct {
		Port           string `validate:"required"`
		AllowedOrigins []string
		RateLimitRPS   int `validate:"min=1"`
	}
	Database struct {
		URL string `validate:"required"`
	}
	Redis struct {
		URL string `validate:"required"`
	}
	Discord struct {
		// Bot token used by the gateway connection.
		Token string `validate:"required"`
		// OAuth application credentials for dashboard sign-in.
		ClientID     string `validate:"required"`
		ClientSecret string `validate:"required"`
		RedirectURL  string `validate:"required,url"`
		// Guild ids whose members may sign in to the dashboard.
		AllowedGuilds []string `validate:"min=1"`
	}
	Archive struct {
		Enabled   bool
		Endpoint  string
		AccessKey string
		SecretKey string
		UseSSL    bool
		Bucket    string
	}
	JWT struct {
		Secret     string `validate:"required,min=16"`
		AccessTTL  time.Duration
		SessionTTL time.Duration
	}
	Encryption struct {
		// Hex-encoded 32-byte key for sealing stored OAuth tokens.
		Key string `validate:"required,len=64,hexadecimal"`
	}
}

var AppConfig *Config

func Load() (*Config, error) {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Warn().Msg("No .env file found, using environment variables")
	}

	cfg := &Config{}

	cfg.Environment = getEnv("APP_ENV", "development")

	// Server
	cfg.Server.Port = getEnv("PORT", "8080")
	cfg.Server.AllowedOrigins = getEnvSlice("CORS_ALLOWED_ORIGINS", []string{"http://localhost:5173", "http://localhost:3000"})
	cfg.Server.RateLimitRPS = getEnvInt("RATE_LIMIT_RPS", 50)

	// Database
	postgresUser := getEnv("POSTGRES_USER", "quartzite")
	postgresPass := getEnv("POSTGRES_PASSWORD", "quartzite_secure_password")
	postgresHost := getEnv("POSTGRES_HOST", "localhost")
	postgresPort := getEnv("POSTGRES_PORT", "5432")
	postgresDB := getEnv("POSTGRES_DB", "quartzite")
	postgresSSL := getEnv("POSTGRES_SSLMODE", "disable")
	cfg.Database.URL = getEnv("DATABASE_URL", "postgres://"+postgresUser+":"+postgresPass+"@"+postgresHost+":"+postgresPort+"/"+postgresDB+"?sslmode="+postgresSSL)

	// Redis
	redisHost := getEnv("REDIS_HOST", "localhost")
	redisPort := getEnv("REDIS_PORT", "6379")
	cfg.Redis.URL = getEnv("REDIS_URL", "redis://"+redisHost+":"+redisPort)

	// Discord
	cfg.Discord.Token = getEnv("DISCORD_TOKEN", "")
	cfg.Discord.ClientID = getEnv("DISCORD_CLIENT_ID", "")
	cfg.Discord.ClientSecret = getEnv("DISCORD_CLIENT_SECRET", "")
	cfg.Discord.RedirectURL = getEnv("DISCORD_REDIRECT_URL", "http://localhost:8080/api/v1/auth/callback")
	cfg.Discord.AllowedGuilds = getEnvSlice("ALLOWED_DISCORD_SERVERS", nil)

	// Emoji image archive (optional)
	cfg.Archive.Enabled = getEnvBool("ARCHIVE_ENABLED", false)
	cfg.Archive.Endpoint = getEnv("MINIO_ENDPOINT", "localhost:9000")
	cfg.Archive.AccessKey = getEnv("MINIO_ACCESS_KEY", "quartzite_minio")
	cfg.Archive.SecretKey = getEnv("MINIO_SECRET_KEY", "quartzite_minio_secret")
	cfg.Archive.UseSSL = getEnvBool("MINIO_USE_SSL", false)
	cfg.Archive.Bucket = getEnv("MINIO_BUCKET_EMOJIS", "emojis")

	// JWT
	cfg.JWT.Secret = getEnv("JWT_SECRET", "")
	cfg.JWT.AccessTTL = getEnvDuration("JWT_ACCESS_TOKEN_EXPIRY", 15*time.Minute)
	cfg.JWT.SessionTTL = getEnvDuration("SESSION_EXPIRY", 168*time.Hour)

	// Encryption
	cfg.Encryption.Key = getEnv("ENCRYPTION_KEY", "")

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	AppConfig = cfg
	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		var result []string
		for _, part := range strings.Split(value, ",") {
			if part = strings.TrimSpace(part); part != "" {
				result = append(result, part)
			}
		}
		if len(result) > 0 {
			return result
		}
	}
	return defaultValue
}
