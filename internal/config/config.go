// Package config loads server configuration from a YAML file over
// built-in defaults; command-line flags override both.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Server holds all configuration for the draw-and-conquer process.
// Timeouts are whole seconds because they travel on the wire in the
// game_start envelope.
type Server struct {
	// Network
	BindAddress    string `yaml:"bind_address"`
	MatchmakerPort int    `yaml:"matchmaker_port"`
	GamePort       int    `yaml:"game_port"`
	EchoPort       int    `yaml:"echo_port"` // 0 disables the echo listener

	// Matchmaking
	LobbySize        int `yaml:"lobby_size"`
	HeartbeatTimeout int `yaml:"heartbeat_timeout"` // seconds

	// Game
	NumTiles               int `yaml:"num_tiles"`
	ColourSelectionTimeout int `yaml:"colour_selection_timeout"` // seconds

	// Logging
	LogLevel string `yaml:"log_level"`
}

// DefaultServer returns a Server config with sensible defaults.
func DefaultServer() Server {
	return Server{
		BindAddress:            "0.0.0.0",
		MatchmakerPort:         9437,
		GamePort:               9438,
		EchoPort:               0,
		LobbySize:              3,
		HeartbeatTimeout:       30,
		NumTiles:               64,
		ColourSelectionTimeout: 60,
		LogLevel:               "info",
	}
}

// LoadServer loads config from a YAML file. A missing file is not an
// error; defaults are returned.
func LoadServer(path string) (Server, error) {
	cfg := DefaultServer()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("reading config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config %s: %w", path, err)
	}

	return cfg, nil
}

// Validate rejects configurations the servers cannot run with.
func (c Server) Validate() error {
	ports := map[string]int{
		"matchmaker_port": c.MatchmakerPort,
		"game_port":       c.GamePort,
	}
	for name, p := range ports {
		if p < 1 || p > 65535 {
			return fmt.Errorf("invalid %s (must be between 1-65535 inclusive): %d", name, p)
		}
	}
	if c.EchoPort != 0 {
		if c.EchoPort < 1 || c.EchoPort > 65535 {
			return fmt.Errorf("invalid echo_port (must be between 1-65535 inclusive): %d", c.EchoPort)
		}
		if c.EchoPort == c.MatchmakerPort || c.EchoPort == c.GamePort {
			return fmt.Errorf("echo_port must differ from matchmaker_port and game_port")
		}
	}
	if c.MatchmakerPort == c.GamePort {
		return fmt.Errorf("matchmaker_port and game_port must differ")
	}
	if c.LobbySize < 2 {
		return fmt.Errorf("lobby_size must be at least 2, got %d", c.LobbySize)
	}
	if c.HeartbeatTimeout < 1 {
		return fmt.Errorf("heartbeat_timeout must be at least 1 second, got %d", c.HeartbeatTimeout)
	}
	if c.NumTiles < 1 {
		return fmt.Errorf("num_tiles must be at least 1, got %d", c.NumTiles)
	}
	if c.ColourSelectionTimeout < 1 {
		return fmt.Errorf("colour_selection_timeout must be at least 1 second, got %d", c.ColourSelectionTimeout)
	}
	return nil
}

// HeartbeatWindow returns the heartbeat timeout as a duration.
func (c Server) HeartbeatWindow() time.Duration {
	return time.Duration(c.HeartbeatTimeout) * time.Second
}

// ColourSelectionWindow returns the colour-selection timeout as a duration.
func (c Server) ColourSelectionWindow() time.Duration {
	return time.Duration(c.ColourSelectionTimeout) * time.Second
}
