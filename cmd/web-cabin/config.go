package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"go-cabin-simulator/pkg/cabin"
)

// CabinConfig mirrors cabin.Config in milliseconds for the YAML file.
type CabinConfig struct {
	ID                  string `yaml:"id"`
	MaxFloor            int    `yaml:"max_floor"`
	TravelDurationMs    int    `yaml:"travel_duration_ms"`
	DoorOpenDurationMs  int    `yaml:"door_open_duration_ms"`
	DoorCloseDurationMs int    `yaml:"door_close_duration_ms"` // opening and closing
	TravelPerFloor      bool   `yaml:"travel_per_floor"`
}

type AppConfig struct {
	Port           string      `yaml:"port"`
	TickIntervalMs int         `yaml:"tick_interval_ms"`
	LogLevel       string      `yaml:"log_level"`
	Cabin          CabinConfig `yaml:"cabin"`
}

func defaultConfig() AppConfig {
	return AppConfig{
		Port:           "3000",
		TickIntervalMs: 100,
		LogLevel:       "info",
		Cabin: CabinConfig{
			ID:                  "cabin-1",
			MaxFloor:            5,
			TravelDurationMs:    2000,
			DoorOpenDurationMs:  3000,
			DoorCloseDurationMs: 1000,
		},
	}
}

// loadConfig reads path over the defaults; an empty path keeps the defaults.
// PORT in the environment wins over the file.
func loadConfig(path string) (*AppConfig, error) {
	cfg := defaultConfig()

	if path != "" {
		file, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		// An empty file keeps the defaults.
		if err := yaml.NewDecoder(file).Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("decode config %s: %w", path, err)
		}
	}

	if port := os.Getenv("PORT"); port != "" {
		cfg.Port = port
	}
	if cfg.TickIntervalMs <= 0 {
		return nil, fmt.Errorf("invalid config: tick_interval_ms (%d) must be positive", cfg.TickIntervalMs)
	}
	if _, err := cfg.Cabin.toCabin(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c CabinConfig) toCabin() (cabin.Config, error) {
	cfg := cabin.Config{
		MaxFloor:         c.MaxFloor,
		TravelDuration:   time.Duration(c.TravelDurationMs) * time.Millisecond,
		DoorOpenDuration: time.Duration(c.DoorOpenDurationMs) * time.Millisecond,
		DoorMoveDuration: time.Duration(c.DoorCloseDurationMs) * time.Millisecond,
		TravelPerFloor:   c.TravelPerFloor,
	}
	return cfg, cfg.Validate()
}

func (c AppConfig) tickInterval() time.Duration {
	return time.Duration(c.TickIntervalMs) * time.Millisecond
}
