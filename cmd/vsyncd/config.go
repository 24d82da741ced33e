package main

import (
	"fmt"
	"os"

	"github.com/viderstv/displaysync/structures"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Display  string                   `yaml:"display"`
	Source   string                   `yaml:"source"` // ticker, looper, redis, rmq
	Bind     string                   `yaml:"bind"`
	LogLevel string                   `yaml:"log_level"`
	Tuning   structures.DisplayTuning `yaml:"tuning"`
	Ticker   TickerConfig             `yaml:"ticker"`
	Redis    RedisConfig              `yaml:"redis"`
	Rmq      RmqConfig                `yaml:"rmq"`
	Mongo    MongoConfig              `yaml:"mongo"`
}

type TickerConfig struct {
	FPS      int `yaml:"fps"`
	JitterUs int `yaml:"jitter_us"`
}

type RedisConfig struct {
	Addresses  []string `yaml:"addresses"`
	Username   string   `yaml:"username"`
	Password   string   `yaml:"password"`
	MasterName string   `yaml:"master_name"`
	Database   int      `yaml:"database"`
	Sentinel   bool     `yaml:"sentinel"`
	Channel    string   `yaml:"channel"`
	JwtKey     string   `yaml:"jwt_key"`
	Token      string   `yaml:"token"`
}

type RmqConfig struct {
	URI      string `yaml:"uri"`
	Exchange string `yaml:"exchange"`
}

// MongoConfig enables loading the tuning from the display_tuning collection.
type MongoConfig struct {
	URI      string `yaml:"uri"`
	Database string `yaml:"database"`
	Direct   bool   `yaml:"direct"`
}

var sources = map[string]bool{"ticker": true, "looper": true, "redis": true, "rmq": true}

func defaultConfig() Config {
	return Config{
		Display:  "primary",
		Source:   "ticker",
		Bind:     ":8090",
		LogLevel: "info",
		Ticker:   TickerConfig{FPS: 60},
	}
}

// LoadConfig reads a YAML config on top of the defaults. An empty path
// yields the defaults.
func LoadConfig(path string) (*Config, error) {
	c := defaultConfig()
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read: %w", err)
		}
		if err := yaml.Unmarshal(b, &c); err != nil {
			return nil, fmt.Errorf("unmarshal: %w", err)
		}
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Config) validate() error {
	if !sources[c.Source] {
		return fmt.Errorf("unknown source %q", c.Source)
	}
	if c.Source == "redis" && len(c.Redis.Addresses) == 0 {
		return fmt.Errorf("redis source needs at least one address")
	}
	if c.Source == "rmq" && c.Rmq.URI == "" {
		return fmt.Errorf("rmq source needs a uri")
	}
	if c.Mongo.URI != "" && c.Mongo.Database == "" {
		return fmt.Errorf("mongo needs a database")
	}
	return nil
}
