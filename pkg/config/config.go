package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

type Config struct {
	Server ServerConfig `toml:"server"`
	Map    MapConfig    `toml:"map"`
	Limits LimitsConfig `toml:"limits"`
}

type ServerConfig struct {
	Name       string `toml:"name"`
	Port       int    `toml:"port"`
	MaxClients int    `toml:"max_clients"`

	// logging configuration
	LogToFile bool   `toml:"log_to_file"`
	LogFile   string `toml:"log_file"`
}

type MapConfig struct {
	Width    int `toml:"width"`
	Height   int `toml:"height"`
	BlockDim int `toml:"block_dim"`
	SurfaceZ int `toml:"surface_z"`

	StoneThreshold float64 `toml:"stone_threshold"`
	DirtThreshold  float64 `toml:"dirt_threshold"`
	GoldChance     float64 `toml:"gold_chance"`
	QmarkChance    float64 `toml:"qmark_chance"`

	// Generator is "noise" or the path of a Lua script defining
	// generate(width, height, seed).
	Generator string `toml:"generator"`
}

type LimitsConfig struct {
	MaxFrameBytes        int `toml:"max_frame_bytes"`
	MalformedLimit       int `toml:"malformed_limit"`
	QueueSize            int `toml:"queue_size"`
	ShutdownGraceSeconds int `toml:"shutdown_grace_seconds"`
}

func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Name:       "Buddler Server",
			Port:       11337,
			MaxClients: 64,
			LogFile:    "logs/buddlerd.log",
		},
		Map: MapConfig{
			Width:          100,
			Height:         110,
			BlockDim:       6,
			SurfaceZ:       3,
			StoneThreshold: 0.35,
			DirtThreshold:  0.65,
			GoldChance:     0.02,
			QmarkChance:    0.01,
			Generator:      "noise",
		},
		Limits: LimitsConfig{
			MaxFrameBytes:        2048,
			MalformedLimit:       8,
			QueueSize:            256,
			ShutdownGraceSeconds: 5,
		},
	}
}

// Load reads a TOML config on top of the defaults, so a partial file
// only overrides what it names.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	if c.Server.MaxClients < 1 {
		return fmt.Errorf("server.max_clients must be positive, got %d", c.Server.MaxClients)
	}
	if c.Map.Width < 1 || c.Map.Height < 1 {
		return fmt.Errorf("map dimensions %dx%d invalid", c.Map.Width, c.Map.Height)
	}
	if c.Map.BlockDim < 1 {
		return fmt.Errorf("map.block_dim must be positive, got %d", c.Map.BlockDim)
	}
	if c.Limits.MaxFrameBytes < 2048 {
		return fmt.Errorf("limits.max_frame_bytes %d below protocol minimum 2048", c.Limits.MaxFrameBytes)
	}
	if c.Limits.MalformedLimit < 8 {
		return fmt.Errorf("limits.malformed_limit %d below protocol minimum 8", c.Limits.MalformedLimit)
	}
	if c.Limits.QueueSize < 256 {
		return fmt.Errorf("limits.queue_size %d below protocol minimum 256", c.Limits.QueueSize)
	}
	if c.Limits.ShutdownGraceSeconds < 0 {
		return fmt.Errorf("limits.shutdown_grace_seconds must not be negative")
	}
	if c.Map.Generator == "" {
		return fmt.Errorf("map.generator must be \"noise\" or a script path")
	}
	return nil
}
