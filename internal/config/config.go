package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the application configuration
type Config struct {
	Database DatabaseConfig `yaml:"database"`
	Chat     ChatConfig     `yaml:"chat"`
	Game     GameConfig     `yaml:"game"`
	Rollup   RollupConfig   `yaml:"rollup"`
}

// DatabaseConfig holds SQLite settings
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// ChatConfig holds chat platform settings
type ChatConfig struct {
	Token           string `yaml:"token"`
	GatewayURL      string `yaml:"gateway_url"`
	APIURL          string `yaml:"api_url"`
	BridgeChannelID string `yaml:"bridge_channel_id"`
	AppUserID       string `yaml:"app_user_id"`
}

// GameConfig holds the game-server bus settings
type GameConfig struct {
	BusURL   string `yaml:"bus_url"`
	Embedded bool   `yaml:"embedded"`
	// ListenAddr/ListenPort apply to the embedded bus server
	ListenAddr    string        `yaml:"listen_addr"`
	ListenPort    int           `yaml:"listen_port"`
	LookupTimeout time.Duration `yaml:"lookup_timeout"`
}

// RollupConfig holds the daily report settings
type RollupConfig struct {
	Enabled *bool `yaml:"enabled"`
}

// RollupEnabled reports whether the daily rollup scheduler should run
func (c *Config) RollupEnabled() bool {
	return c.Rollup.Enabled == nil || *c.Rollup.Enabled
}

// Load reads configuration from a YAML file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	// Set defaults
	if cfg.Database.Path == "" {
		cfg.Database.Path = "/var/lib/craftbridge/craftbridge.db"
	}
	if cfg.Chat.GatewayURL == "" {
		cfg.Chat.GatewayURL = "wss://gateway.discord.gg/?v=10&encoding=json&compress=zlib-stream"
	}
	if cfg.Chat.APIURL == "" {
		cfg.Chat.APIURL = "https://discord.com/api/v10"
	}
	if cfg.Game.BusURL == "" {
		cfg.Game.BusURL = "nats://127.0.0.1:4222"
	}
	if cfg.Game.ListenAddr == "" {
		cfg.Game.ListenAddr = "127.0.0.1"
	}
	if cfg.Game.ListenPort == 0 {
		cfg.Game.ListenPort = 4222
	}
	if cfg.Game.LookupTimeout == 0 {
		cfg.Game.LookupTimeout = 3 * time.Second
	}

	return &cfg, nil
}
