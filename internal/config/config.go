package config

import (
	"fmt"
	"log"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Gateway modes. ModeREST talks to the hosted backend service; ModeDirect
// runs against self-hosted Postgres and S3-compatible storage.
const (
	ModeREST   = "rest"
	ModeDirect = "direct"
)

type Config struct {
	GatewayMode string

	// Hosted service (rest mode)
	BackendURL    string
	BackendAPIKey string
	SessionToken  string

	// Self-hosted table store (direct mode)
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string

	JWTSecret         string
	AccessTokenMaxAge int

	// Self-hosted object storage (direct mode)
	R2AccountID       string
	R2AccessKeyID     string
	R2SecretAccessKey string
	R2PublicURL       string

	MediaBucket string
}

// Load reads configuration from .env and the environment. Missing backend
// credentials for the selected mode are an error: the caller must present a
// clear diagnostic instead of starting with a broken gateway.
func Load() (*Config, error) {
	err := godotenv.Load()
	if err != nil {
		log.Println("No .env file found or error loading it, relying on environment variables")
	}

	accessTokenMaxAge, err := strconv.Atoi(os.Getenv("ACCESS_TOKEN_MAX_AGE"))
	if err != nil || accessTokenMaxAge <= 0 {
		accessTokenMaxAge = 900
	}

	mode := os.Getenv("GATEWAY_MODE")
	if mode == "" {
		mode = ModeREST
	}

	mediaBucket := os.Getenv("MEDIA_BUCKET")
	if mediaBucket == "" {
		mediaBucket = "media"
	}

	cfg := &Config{
		GatewayMode: mode,

		BackendURL:    os.Getenv("BACKEND_URL"),
		BackendAPIKey: os.Getenv("BACKEND_API_KEY"),
		SessionToken:  os.Getenv("SESSION_TOKEN"),

		DBHost:     os.Getenv("DB_HOST"),
		DBPort:     os.Getenv("DB_PORT"),
		DBUser:     os.Getenv("DB_USER"),
		DBPassword: os.Getenv("DB_PASSWORD"),
		DBName:     os.Getenv("DB_NAME"),

		JWTSecret:         os.Getenv("JWT_SECRET"),
		AccessTokenMaxAge: accessTokenMaxAge,

		R2AccountID:       os.Getenv("R2_ACCOUNT_ID"),
		R2AccessKeyID:     os.Getenv("R2_ACCESS_KEY_ID"),
		R2SecretAccessKey: os.Getenv("R2_SECRET_ACCESS_KEY"),
		R2PublicURL:       os.Getenv("R2_PUBLIC_URL"),

		MediaBucket: mediaBucket,
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.GatewayMode {
	case ModeREST:
		if c.BackendURL == "" || c.BackendAPIKey == "" {
			return fmt.Errorf("gateway mode %q requires BACKEND_URL and BACKEND_API_KEY", c.GatewayMode)
		}
	case ModeDirect:
		if c.DBHost == "" || c.DBUser == "" || c.DBName == "" {
			return fmt.Errorf("gateway mode %q requires DB_HOST, DB_USER and DB_NAME", c.GatewayMode)
		}
		if c.JWTSecret == "" {
			return fmt.Errorf("gateway mode %q requires JWT_SECRET", c.GatewayMode)
		}
	default:
		return fmt.Errorf("unknown GATEWAY_MODE %q (expected %q or %q)", c.GatewayMode, ModeREST, ModeDirect)
	}
	return nil
}
