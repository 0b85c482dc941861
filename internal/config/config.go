package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	DB      DBConfig
	MinIO   MinIOConfig
	JWT     JWTConfig
	Server  ServerConfig
	OAuth   OAuthConfig
	Upload  UploadConfig
	Polling PollingConfig
}

type DBConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Name     string
	SSLMode  string
}

type MinIOConfig struct {
	Endpoint      string
	AccessKey     string
	SecretKey     string
	FilesBucket   string
	ProfileBucket string
	UseSSL        bool
}

type JWTConfig struct {
	Secret          string
	ExpirationHours int
}

type ServerConfig struct {
	Port        string
	FrontendURL string
}

type OAuthProviderConfig struct {
	Enabled      bool
	ClientID     string
	ClientSecret string
	RedirectURL  string
}

type OAuthConfig struct {
	Google OAuthProviderConfig
	GitHub OAuthProviderConfig
}

type UploadConfig struct {
	// NominalThroughput seeds the cosmetic progress estimator; it has no
	// effect on the real transfer.
	NominalThroughput int64
	ProgressTick      time.Duration
}

type PollingConfig struct {
	VerifyStatusInterval time.Duration
	NotificationInterval time.Duration
}

func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		DB: DBConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "cloudly"),
			Password: getEnv("DB_PASSWORD", "cloudly_secret"),
			Name:     getEnv("DB_NAME", "cloudly"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		MinIO: MinIOConfig{
			Endpoint:      getEnv("MINIO_ENDPOINT", "localhost:9000"),
			AccessKey:     getEnv("MINIO_ACCESS_KEY", "cloudly"),
			SecretKey:     getEnv("MINIO_SECRET_KEY", "cloudly_secret"),
			FilesBucket:   getEnv("MINIO_FILES_BUCKET", "cloudly-files"),
			ProfileBucket: getEnv("MINIO_PROFILE_BUCKET", "cloudly-profile"),
			UseSSL:        getEnvAsBool("MINIO_USE_SSL", false),
		},
		JWT: JWTConfig{
			Secret:          getEnv("JWT_SECRET", "change-me-in-production"),
			ExpirationHours: getEnvAsInt("JWT_EXPIRATION_HOURS", 24),
		},
		Server: ServerConfig{
			Port:        getEnv("SERVER_PORT", "8080"),
			FrontendURL: getEnv("FRONTEND_URL", "http://localhost:3000"),
		},
		OAuth: OAuthConfig{
			Google: OAuthProviderConfig{
				Enabled:      getEnvAsBool("OAUTH_GOOGLE_ENABLED", false),
				ClientID:     getEnv("OAUTH_GOOGLE_CLIENT_ID", ""),
				ClientSecret: getEnv("OAUTH_GOOGLE_CLIENT_SECRET", ""),
				RedirectURL:  getEnv("OAUTH_GOOGLE_REDIRECT_URL", ""),
			},
			GitHub: OAuthProviderConfig{
				Enabled:      getEnvAsBool("OAUTH_GITHUB_ENABLED", false),
				ClientID:     getEnv("OAUTH_GITHUB_CLIENT_ID", ""),
				ClientSecret: getEnv("OAUTH_GITHUB_CLIENT_SECRET", ""),
				RedirectURL:  getEnv("OAUTH_GITHUB_REDIRECT_URL", ""),
			},
		},
		Upload: UploadConfig{
			NominalThroughput: getEnvAsInt64("UPLOAD_NOMINAL_THROUGHPUT", 1024*1024),
			ProgressTick:      getEnvAsDuration("UPLOAD_PROGRESS_TICK", 50*time.Millisecond),
		},
		Polling: PollingConfig{
			VerifyStatusInterval: getEnvAsDuration("VERIFY_POLL_INTERVAL", 5*time.Second),
			NotificationInterval: getEnvAsDuration("NOTIFICATION_POLL_INTERVAL", 30*time.Second),
		},
	}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		parsed, err := strconv.Atoi(value)
		if err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvAsInt64(key string, fallback int64) int64 {
	if value, ok := os.LookupEnv(key); ok {
		parsed, err := strconv.ParseInt(value, 10, 64)
		if err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok {
		parsed, err := time.ParseDuration(value)
		if err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvAsBool(key string, fallback bool) bool {
	if value, ok := os.LookupEnv(key); ok {
		parsed, err := strconv.ParseBool(value)
		if err == nil {
			return parsed
		}
	}
	return fallback
}
