package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
)

// ServerConfig holds server configuration.
type ServerConfig struct {
	// Addr is the listen address for the HTTP(S) server.
	Addr string `validate:"required"`
	// DatabaseURL is a sqlite file path or a postgres:// URL.
	DatabaseURL  string `validate:"required"`
	MasterSecret string `validate:"required"`
	Debug        bool
	// AllowedOrigins feeds CORS for both the REST API and socket.io.
	AllowedOrigins []string `validate:"min=1"`
	// AMQPURL enables cross-node fan-out of realtime events when set.
	AMQPURL string `validate:"omitempty,url"`
	// NodeID distinguishes this process on the broker.
	NodeID string `validate:"required"`
	// TLS holds HTTPS configuration. If nil, the server runs in plain HTTP mode.
	TLS *TLSConfig
}

// TLSConfig holds file paths for serving HTTPS directly from the server.
type TLSConfig struct {
	// CertFile is a PEM-encoded certificate chain.
	CertFile string `validate:"required"`
	// KeyFile is a PEM-encoded private key.
	KeyFile string `validate:"required"`
}

// ServerOverrides optionally overrides values from environment variables.
//
// A nil pointer means "use the environment/default value".
type ServerOverrides struct {
	Addr         *string
	DatabaseURL  *string
	MasterSecret *string
	Debug        *bool
	AMQPURL      *string
	TLS          *TLSConfig
}

// LoadServer loads server configuration from .env and environment variables
// and applies any explicit overrides.
func LoadServer(overrides ServerOverrides) (*ServerConfig, error) {
	_ = godotenv.Load()

	port := 3005
	if portStr := os.Getenv("PORT"); portStr != "" {
		if p, err := strconv.Atoi(portStr); err == nil {
			port = p
		}
	}
	addr := fmt.Sprintf(":%d", port)
	if overrides.Addr != nil {
		addr = *overrides.Addr
	}

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		dbURL = os.Getenv("DATABASE_PATH")
	}
	if dbURL == "" {
		dbURL = "./bazaar.db"
	}
	if overrides.DatabaseURL != nil {
		dbURL = *overrides.DatabaseURL
	}

	masterSecret := os.Getenv("BAZAAR_MASTER_SECRET")
	if overrides.MasterSecret != nil {
		masterSecret = *overrides.MasterSecret
	}
	if masterSecret == "" {
		return nil, fmt.Errorf("%w: BAZAAR_MASTER_SECRET environment variable is required", ErrInvalid)
	}

	debug := false
	if debugStr := os.Getenv("DEBUG"); debugStr == "true" || debugStr == "1" {
		debug = true
	}
	if overrides.Debug != nil {
		debug = *overrides.Debug
	}

	origins := []string{"*"}
	if v := os.Getenv("BAZAAR_ALLOWED_ORIGINS"); v != "" {
		origins = splitList(v)
	}

	amqpURL := os.Getenv("BAZAAR_AMQP_URL")
	if overrides.AMQPURL != nil {
		amqpURL = *overrides.AMQPURL
	}

	nodeID := os.Getenv("BAZAAR_NODE_ID")
	if nodeID == "" {
		nodeID = uuid.NewString()
	}

	cfg := &ServerConfig{
		Addr:           addr,
		DatabaseURL:    dbURL,
		MasterSecret:   masterSecret,
		Debug:          debug,
		AllowedOrigins: origins,
		AMQPURL:        amqpURL,
		NodeID:         nodeID,
		TLS:            overrides.TLS,
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
