package config

import (
	"fmt"
	"os"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config is the client's environment-derived configuration.
type Config struct {
	// ServerURL is the REST API base, e.g. http://localhost:8080.
	ServerURL string `env:"POKER_SERVER_URL" envDefault:"http://localhost:8080"`

	// WSURL is the push channel endpoint. When empty it is derived from
	// ServerURL by swapping the scheme and appending /ws.
	WSURL string `env:"POKER_WS_URL"`

	// StateDir holds resume state; empty disables resume.
	StateDir string `env:"POKER_STATE_DIR" envDefault:".pokersync"`

	// DeckDir holds custom deck definitions.
	DeckDir string `env:"POKER_DECK_DIR" envDefault:"decks"`

	// Debug enables verbose logging.
	Debug bool `env:"POKER_DEBUG"`
}

// Load reads .env if present, then parses the environment. Flag values
// layered on top by the CLI take precedence over both.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}

	if cfg.WSURL == "" {
		cfg.WSURL = DeriveWSURL(cfg.ServerURL)
	}
	return cfg, nil
}

// DeriveWSURL maps an http(s) base URL to its ws(s) push endpoint.
func DeriveWSURL(serverURL string) string {
	switch {
	case len(serverURL) >= 8 && serverURL[:8] == "https://":
		return "wss://" + serverURL[8:] + "/ws"
	case len(serverURL) >= 7 && serverURL[:7] == "http://":
		return "ws://" + serverURL[7:] + "/ws"
	default:
		return serverURL + "/ws"
	}
}
