// Package config loads process configuration from environment variables,
// with optional .env file support for local development.
package config

import (
	"os"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

// Config holds settings shared by the Removin binaries. Flags on each
// binary may override individual fields.
type Config struct {
	Port string

	// Object storage.
	S3Bucket  string
	AWSRegion string

	// Credential store.
	CredentialTable string

	// Identity provider.
	IdentityLookupURL string
	IdentityAPIKey    string

	// Gateway base URL, used by client binaries.
	GatewayURL string

	// Development fallback identity, used when no identity provider is set.
	DevUserID string
}

// Load reads configuration from the environment. A .env file in the
// working directory is applied first when present; real environment
// variables win over .env entries.
func Load() *Config {
	if err := godotenv.Load(); err == nil {
		log.Debug().Msg("Loaded .env file")
	}

	return &Config{
		Port:              getEnv("PORT", "3001"),
		S3Bucket:          getEnv("REMOVIN_S3_BUCKET", "removin-uploads"),
		AWSRegion:         getEnv("AWS_REGION", "us-east-1"),
		CredentialTable:   getEnv("REMOVIN_CREDENTIAL_TABLE", "removin-credentials"),
		IdentityLookupURL: os.Getenv("REMOVIN_IDENTITY_LOOKUP_URL"),
		IdentityAPIKey:    os.Getenv("REMOVIN_IDENTITY_API_KEY"),
		GatewayURL:        getEnv("REMOVIN_API_URL", "http://localhost:3001"),
		DevUserID:         os.Getenv("REMOVIN_DEV_UID"),
	}
}

// MustEnv returns the value of a required environment variable or exits.
func MustEnv(k string) string {
	v := os.Getenv(k)
	if v == "" {
		log.Fatal().Str("var", k).Msg("Missing required environment variable")
	}
	return v
}

func getEnv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
