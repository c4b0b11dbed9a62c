package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		Timeout  string `yaml:"timeout"` // per-operation directory timeout
	} `yaml:"redis"`
	Postgres struct {
		URL string `yaml:"url"`
	} `yaml:"postgres"`
	Quiz struct {
		TTL string `yaml:"ttl"` // quiz content cache TTL
	} `yaml:"quiz"`
	Match struct {
		TTL            string  `yaml:"ttl"`            // directory record TTL
		Grace          string  `yaml:"grace"`          // completed-match retention
		BonusRate      float64 `yaml:"bonusRate"`      // time-bonus points per remaining second
		MaxMultiplayer int     `yaml:"maxMultiplayer"` // roster cap for MULTIPLAYER matches
	} `yaml:"match"`
	Workers struct {
		Count          int    `yaml:"count"`
		Heartbeat      string `yaml:"heartbeat"`
		LivenessWindow string `yaml:"livenessWindow"`
	} `yaml:"workers"`
}

// Load reads YAML config from path.
func Load(path string) (Config, error) {
	cfg := Config{}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// TTLDuration parses a duration string or returns the fallback if empty.
func TTLDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}
