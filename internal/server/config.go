package server

import (
	"fmt"
	"os"
	"time"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"

	"github.com/greenfelt/dealerd/internal/engine"
)

// Config is the complete daemon configuration.
type Config struct {
	Server  *ServerSettings  `hcl:"server,block"`
	Storage *StorageSettings `hcl:"storage,block"`
	Game    *GameSettings    `hcl:"game,block"`
	Stakes  []StakesConfig   `hcl:"stakes,block"`
}

// ServerSettings contains gateway-level configuration
type ServerSettings struct {
	Address  string `hcl:"address,optional"`
	Port     int    `hcl:"port,optional"`
	LogLevel string `hcl:"log_level,optional"`
}

// StorageSettings points at the SQLite database file
type StorageSettings struct {
	Path string `hcl:"path,optional"`
}

// GameSettings carries the phase machine's timing knobs, all in seconds
type GameSettings struct {
	PreGameWaitSeconds    int `hcl:"pre_game_wait_seconds,optional"`
	ActionTimeoutSeconds  int `hcl:"action_timeout_seconds,optional"`
	DealerDelaySeconds    int `hcl:"dealer_delay_seconds,optional"`
	ShowdownWindowSeconds int `hcl:"showdown_window_seconds,optional"`
	PostRoundPauseSeconds int `hcl:"post_round_pause_seconds,optional"`
	EmptyDebounceSeconds  int `hcl:"empty_debounce_seconds,optional"`
	GraceSeconds          int `hcl:"grace_seconds,optional"`
	MaxSeats              int `hcl:"max_seats,optional"`
}

// StakesConfig defines the wager bounds for one game mode
type StakesConfig struct {
	Mode   string `hcl:"mode,label"`
	MinBet int64  `hcl:"min_bet"`
	MaxBet int64  `hcl:"max_bet"`
}

// DefaultConfig returns the stock configuration
func DefaultConfig() *Config {
	eng := engine.DefaultConfig()
	cfg := &Config{
		Server: &ServerSettings{
			Address:  "localhost",
			Port:     8080,
			LogLevel: "info",
		},
		Storage: &StorageSettings{
			Path: "dealerd.db",
		},
		Game: &GameSettings{
			PreGameWaitSeconds:    int(eng.PreGameWait / time.Second),
			ActionTimeoutSeconds:  int(eng.ActionTimeout / time.Second),
			DealerDelaySeconds:    int(eng.DealerDelay / time.Second),
			ShowdownWindowSeconds: int(eng.ShowdownWindow / time.Second),
			PostRoundPauseSeconds: int(eng.PostRoundPause / time.Second),
			EmptyDebounceSeconds:  int(eng.EmptyDebounce / time.Second),
			GraceSeconds:          int(eng.Grace / time.Second),
			MaxSeats:              eng.MaxSeats,
		},
	}
	for _, mode := range []string{"1", "2", "3", "4"} {
		s := eng.Stakes[mode]
		cfg.Stakes = append(cfg.Stakes, StakesConfig{Mode: mode, MinBet: s.Min, MaxBet: s.Max})
	}
	return cfg
}

// LoadConfig loads configuration from an HCL file. A missing file means
// stock defaults; a present but broken file is an error.
func LoadConfig(filename string) (*Config, error) {
	if _, err := os.Stat(filename); os.IsNotExist(err) {
		return DefaultConfig(), nil
	}

	parser := hclparse.NewParser()
	file, diags := parser.ParseHCLFile(filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse HCL file: %s", diags.Error())
	}

	var config Config
	diags = gohcl.DecodeBody(file.Body, nil, &config)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode HCL: %s", diags.Error())
	}

	defaults := DefaultConfig()
	if config.Server == nil {
		config.Server = defaults.Server
	}
	if config.Server.Address == "" {
		config.Server.Address = defaults.Server.Address
	}
	if config.Server.Port == 0 {
		config.Server.Port = defaults.Server.Port
	}
	if config.Server.LogLevel == "" {
		config.Server.LogLevel = defaults.Server.LogLevel
	}
	if config.Storage == nil {
		config.Storage = defaults.Storage
	}
	if config.Storage.Path == "" {
		config.Storage.Path = defaults.Storage.Path
	}
	if config.Game == nil {
		config.Game = defaults.Game
	}
	fillGameDefaults(config.Game, defaults.Game)
	if len(config.Stakes) == 0 {
		config.Stakes = defaults.Stakes
	}

	return &config, nil
}

func fillGameDefaults(g, d *GameSettings) {
	if g.PreGameWaitSeconds == 0 {
		g.PreGameWaitSeconds = d.PreGameWaitSeconds
	}
	if g.ActionTimeoutSeconds == 0 {
		g.ActionTimeoutSeconds = d.ActionTimeoutSeconds
	}
	if g.DealerDelaySeconds == 0 {
		g.DealerDelaySeconds = d.DealerDelaySeconds
	}
	if g.ShowdownWindowSeconds == 0 {
		g.ShowdownWindowSeconds = d.ShowdownWindowSeconds
	}
	if g.PostRoundPauseSeconds == 0 {
		g.PostRoundPauseSeconds = d.PostRoundPauseSeconds
	}
	if g.EmptyDebounceSeconds == 0 {
		g.EmptyDebounceSeconds = d.EmptyDebounceSeconds
	}
	if g.GraceSeconds == 0 {
		g.GraceSeconds = d.GraceSeconds
	}
	if g.MaxSeats == 0 {
		g.MaxSeats = d.MaxSeats
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Server.Port)
	}
	if c.Storage.Path == "" {
		return fmt.Errorf("storage path must be set")
	}
	if c.Game.MaxSeats < 1 {
		return fmt.Errorf("max seats must be positive")
	}
	for _, field := range []struct {
		name  string
		value int
	}{
		{"pre_game_wait_seconds", c.Game.PreGameWaitSeconds},
		{"action_timeout_seconds", c.Game.ActionTimeoutSeconds},
		{"dealer_delay_seconds", c.Game.DealerDelaySeconds},
		{"showdown_window_seconds", c.Game.ShowdownWindowSeconds},
		{"post_round_pause_seconds", c.Game.PostRoundPauseSeconds},
		{"empty_debounce_seconds", c.Game.EmptyDebounceSeconds},
		{"grace_seconds", c.Game.GraceSeconds},
	} {
		if field.value < 1 {
			return fmt.Errorf("%s must be positive", field.name)
		}
	}

	if len(c.Stakes) == 0 {
		return fmt.Errorf("at least one stakes tier must be configured")
	}
	for _, s := range c.Stakes {
		if s.Mode == "" {
			return fmt.Errorf("stakes tier missing mode label")
		}
		if s.MinBet <= 0 {
			return fmt.Errorf("stakes %s: min bet must be positive", s.Mode)
		}
		if s.MaxBet <= s.MinBet {
			return fmt.Errorf("stakes %s: max bet must be greater than min bet", s.Mode)
		}
	}
	return nil
}

// GetServerAddress returns the full listen address
func (c *Config) GetServerAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Address, c.Server.Port)
}

// EngineConfig converts the file settings into the engine's config
func (c *Config) EngineConfig() engine.Config {
	cfg := engine.Config{
		PreGameWait:    time.Duration(c.Game.PreGameWaitSeconds) * time.Second,
		ActionTimeout:  time.Duration(c.Game.ActionTimeoutSeconds) * time.Second,
		DealerDelay:    time.Duration(c.Game.DealerDelaySeconds) * time.Second,
		ShowdownWindow: time.Duration(c.Game.ShowdownWindowSeconds) * time.Second,
		PostRoundPause: time.Duration(c.Game.PostRoundPauseSeconds) * time.Second,
		EmptyDebounce:  time.Duration(c.Game.EmptyDebounceSeconds) * time.Second,
		Grace:          time.Duration(c.Game.GraceSeconds) * time.Second,
		MaxSeats:       c.Game.MaxSeats,
		Stakes:         make(map[string]engine.Stakes, len(c.Stakes)),
	}
	for _, s := range c.Stakes {
		cfg.Stakes[s.Mode] = engine.Stakes{Min: s.MinBet, Max: s.MaxBet}
	}
	return cfg
}
