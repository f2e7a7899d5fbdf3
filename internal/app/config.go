package app

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
)

const envPrefix = "CIPHERCLIENTS_"

// Config holds runtime wiring options for building the app.
type Config struct {
	Home        string // data directory, e.g. $HOME/.cipherclients
	RelayURL    string // relay base URL, e.g. http://127.0.0.1:8080
	LogLevel    string // debug, info, warn or error
	LogJSON     bool
	Environment string // attached to every log line
	AppVersion  string // recorded in backups
}

// DefaultConfig returns the settings used when nothing overrides them.
func DefaultConfig() Config {
	home := ".cipherclients"
	if dir, err := os.UserHomeDir(); err == nil {
		home = filepath.Join(dir, ".cipherclients")
	}
	return Config{
		Home:        home,
		RelayURL:    "http://127.0.0.1:8080",
		LogLevel:    "info",
		Environment: "dev",
		AppVersion:  "1.0.0",
	}
}

// LoadConfig starts from DefaultConfig, applies envFile (skipped when it
// does not exist or is empty) and then CIPHERCLIENTS_* environment
// variables, which win over the file.
func LoadConfig(envFile string) (Config, error) {
	cfg := DefaultConfig()

	fileVals := map[string]string{}
	if envFile != "" {
		vals, err := godotenv.Read(envFile)
		switch {
		case err == nil:
			fileVals = vals
		case errors.Is(err, fs.ErrNotExist):
		default:
			return cfg, fmt.Errorf("app: read %s: %w", envFile, err)
		}
	}
	lookup := func(key string) (string, bool) {
		if v, ok := os.LookupEnv(envPrefix + key); ok && v != "" {
			return v, true
		}
		v, ok := fileVals[envPrefix+key]
		return v, ok && v != ""
	}

	if v, ok := lookup("HOME"); ok {
		cfg.Home = v
	}
	if v, ok := lookup("RELAY_URL"); ok {
		cfg.RelayURL = strings.TrimRight(v, "/")
	}
	if v, ok := lookup("LOG_LEVEL"); ok {
		cfg.LogLevel = v
	}
	if v, ok := lookup("LOG_FORMAT"); ok {
		cfg.LogJSON = strings.EqualFold(v, "json")
	}
	if v, ok := lookup("ENV"); ok {
		cfg.Environment = v
	}
	if v, ok := lookup("APP_VERSION"); ok {
		cfg.AppVersion = v
	}
	return cfg, nil
}
