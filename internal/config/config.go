package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Server struct {
		Port        int `yaml:"port"`
		MetricsPort int `yaml:"metrics_port"`
	} `yaml:"server"`
	Database struct {
		Dialect string `yaml:"dialect"` // sqlite3 | postgres
		DSN     string `yaml:"dsn"`
	} `yaml:"database"`
	Auth struct {
		Secret          string   `yaml:"secret"`
		PrivilegedRoles []string `yaml:"privileged_roles"`
	} `yaml:"auth"`
	Pricing struct {
		TaxRate   float64 `yaml:"tax_rate"`
		HappyHour struct {
			Start string `yaml:"start"` // "17:00"
			End   string `yaml:"end"`   // "19:00"
		} `yaml:"happy_hour"`
	} `yaml:"pricing"`
	Stock struct {
		LowWater int `yaml:"low_water"`
	} `yaml:"stock"`
}

// Load reads and parses the YAML configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.MetricsPort == 0 {
		c.Server.MetricsPort = 9090
	}
	if c.Database.Dialect == "" {
		c.Database.Dialect = "sqlite3"
	}
	if c.Database.DSN == "" {
		c.Database.DSN = "taproom.db"
	}
	if len(c.Auth.PrivilegedRoles) == 0 {
		c.Auth.PrivilegedRoles = []string{"manager", "admin"}
	}
	if c.Stock.LowWater == 0 {
		c.Stock.LowWater = 5
	}
}
