package config

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
)

// AppConfig is the process configuration, read from the environment.
type AppConfig struct {
	// OAuth application credentials, registered at the provider's dev center.
	ClientID     string
	ClientSecret string

	// Account credentials for auto-login. Optional: when empty, a sync pass
	// requires an already-cached token.
	Username string
	Password string

	// APIBaseURL overrides the cloud API host; empty selects production.
	APIBaseURL string

	// DBPath is the SQLite database file.
	DBPath string

	// SyncInterval controls how often the scheduler runs an incremental pass.
	SyncInterval time.Duration

	// SyncTimeout bounds one whole pass.
	SyncTimeout time.Duration

	// HTTPTimeout applies to each outbound cloud API call.
	HTTPTimeout time.Duration

	// Lookback seeds the first sync window of a device with no stored data.
	Lookback time.Duration

	Port string
}

// Load reads configuration from environment with sensible defaults.
func Load() (*AppConfig, error) {
	if err := godotenv.Load(); err != nil {
		log.Printf("INFO: No .env file found or error loading it: %v", err)
	}
	cfg := &AppConfig{}

	cfg.ClientID = os.Getenv("NETATMO_CLIENT_ID")
	cfg.ClientSecret = os.Getenv("NETATMO_CLIENT_SECRET")
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, fmt.Errorf("NETATMO_CLIENT_ID and NETATMO_CLIENT_SECRET are required")
	}

	cfg.Username = os.Getenv("NETATMO_USERNAME")
	cfg.Password = os.Getenv("NETATMO_PASSWORD")
	cfg.APIBaseURL = os.Getenv("NETATMO_API_BASE_URL")

	cfg.DBPath = getenvDefault("DB_PATH", "atmosync.db")
	cfg.Port = getenvDefault("PORT", "8080")

	var err error
	if cfg.SyncInterval, err = getenvDuration("SYNC_INTERVAL", "15m"); err != nil {
		return nil, err
	}
	if cfg.SyncTimeout, err = getenvDuration("SYNC_TIMEOUT", "10m"); err != nil {
		return nil, err
	}
	if cfg.HTTPTimeout, err = getenvDuration("HTTP_TIMEOUT", "30s"); err != nil {
		return nil, err
	}
	if cfg.Lookback, err = getenvDuration("SYNC_LOOKBACK", "24h"); err != nil {
		return nil, err
	}

	return cfg, nil
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvDuration(key, def string) (time.Duration, error) {
	v := getenvDefault(key, def)
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
