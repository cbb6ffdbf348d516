package config

import (
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	App       App       `yaml:"app"`
	Database  Database  `yaml:"database"`
	Allows    Allows    `yaml:"allows"`
	Log       Log       `yaml:"log"`
	WhatsApp  WhatsApp  `yaml:"whatsapp"`
	Sender    Sender    `yaml:"sender"`
	Agent     Agent     `yaml:"agent"`
	RateLimit RateLimit `yaml:"rate_limit"`
}

type App struct {
	Name string `yaml:"name"`
	Port string `yaml:"port"`
	Host string `yaml:"host"`
}

type Database struct {
	Host string `yaml:"host"`
	Port string `yaml:"port"`
	User string `yaml:"user"`
	Pass string `yaml:"pass"`
	Name string `yaml:"name"`
}

type Allows struct {
	Methods []string `yaml:"methods"`
	Origins []string `yaml:"origins"`
	Headers []string `yaml:"headers"`
}

type Log struct {
	Level   string `yaml:"level"`
	Console bool   `yaml:"console"`
}

// WhatsApp configures the session lifecycle manager.
type WhatsApp struct {
	AuthDir              string        `yaml:"auth_dir"`
	CountryCode          string        `yaml:"country_code"`
	MaxReconnectAttempts int           `yaml:"max_reconnect_attempts"`
	ReconnectBackoff     time.Duration `yaml:"reconnect_backoff"`
	StartupTimeout       time.Duration `yaml:"startup_timeout"`
	QRWait               time.Duration `yaml:"qr_wait"`
	HealthSchedule       string        `yaml:"health_schedule"`
	HealthGrace          time.Duration `yaml:"health_grace"`
	DefaultSessionID     string        `yaml:"default_session_id"`
}

// Sender configures the background send scheduler.
type Sender struct {
	RetryMax     int           `yaml:"retry_max"`
	RetryBackoff time.Duration `yaml:"retry_backoff"`
}

type Agent struct {
	URL     string        `yaml:"url"`
	Timeout time.Duration `yaml:"timeout"`
}

type RateLimit struct {
	Enabled   bool    `yaml:"enabled"`
	PerSecond float64 `yaml:"per_second"`
	Burst     int     `yaml:"burst"`
}

func InitConfig() *Config {
	file_name, _ := filepath.Abs("./config.yaml")
	configs, _ := Load(file_name)
	return configs
}

// Load reads the yaml file at path (a missing file is not an error), then
// applies environment overrides and defaults.
func Load(path string) (*Config, error) {
	var configs Config
	yaml_file, err := os.ReadFile(path)
	if err == nil {
		if err := yaml.Unmarshal(yaml_file, &configs); err != nil {
			configs.applyEnv()
			configs.applyDefaults()
			return &configs, err
		}
	}

	configs.applyEnv()
	configs.applyDefaults()
	return &configs, nil
}

func (c *Config) applyEnv() {
	// Override with environment variables if they exist (for Docker)
	if dbHost := os.Getenv("DB_HOST"); dbHost != "" {
		c.Database.Host = dbHost
	}
	if dbPort := os.Getenv("DB_PORT"); dbPort != "" {
		c.Database.Port = dbPort
	}
	if dbUser := os.Getenv("DB_USER"); dbUser != "" {
		c.Database.User = dbUser
	}
	if dbPassword := os.Getenv("DB_PASSWORD"); dbPassword != "" {
		c.Database.Pass = dbPassword
	}
	if dbName := os.Getenv("DB_NAME"); dbName != "" {
		c.Database.Name = dbName
	}

	// Override app configuration with environment variables
	if appHost := os.Getenv("APP_HOST"); appHost != "" {
		c.App.Host = appHost
	}
	if appPort := os.Getenv("APP_PORT"); appPort != "" {
		c.App.Port = appPort
	}
	if appName := os.Getenv("APP_NAME"); appName != "" {
		c.App.Name = appName
	}

	if level := os.Getenv("LOG_LEVEL"); level != "" {
		c.Log.Level = level
	}
	if authDir := os.Getenv("WA_AUTH_DIR"); authDir != "" {
		c.WhatsApp.AuthDir = authDir
	}
	if sessionID := os.Getenv("WHATSAPP_CLIENT_ID"); sessionID != "" {
		c.WhatsApp.DefaultSessionID = sessionID
	}
	if agentURL := os.Getenv("AGENT_URL"); agentURL != "" {
		c.Agent.URL = agentURL
	}
	if attempts := os.Getenv("WA_MAX_RECONNECT_ATTEMPTS"); attempts != "" {
		if n, err := strconv.Atoi(attempts); err == nil {
			c.WhatsApp.MaxReconnectAttempts = n
		}
	}
}

func (c *Config) applyDefaults() {
	if c.App.Name == "" {
		c.App.Name = "wasender"
	}
	if c.App.Port == "" {
		c.App.Port = "10000"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.WhatsApp.AuthDir == "" {
		c.WhatsApp.AuthDir = "./whatsapp-auth"
	}
	if c.WhatsApp.CountryCode == "" {
		c.WhatsApp.CountryCode = "972"
	}
	if c.WhatsApp.MaxReconnectAttempts <= 0 {
		c.WhatsApp.MaxReconnectAttempts = 3
	}
	if c.WhatsApp.ReconnectBackoff <= 0 {
		c.WhatsApp.ReconnectBackoff = 5 * time.Second
	}
	if c.WhatsApp.StartupTimeout <= 0 {
		c.WhatsApp.StartupTimeout = 60 * time.Second
	}
	if c.WhatsApp.QRWait <= 0 {
		c.WhatsApp.QRWait = 10 * time.Second
	}
	if c.WhatsApp.HealthSchedule == "" {
		c.WhatsApp.HealthSchedule = "@every 5m"
	}
	if c.WhatsApp.HealthGrace <= 0 {
		c.WhatsApp.HealthGrace = 10 * time.Second
	}
	if c.Sender.RetryMax < 0 {
		c.Sender.RetryMax = 0
	}
	if c.Sender.RetryBackoff <= 0 {
		c.Sender.RetryBackoff = 2 * time.Second
	}
	if c.Agent.URL == "" {
		c.Agent.URL = "http://localhost:5005"
	}
	if c.Agent.Timeout <= 0 {
		c.Agent.Timeout = 15 * time.Second
	}
	if c.RateLimit.PerSecond <= 0 {
		c.RateLimit.PerSecond = 10
	}
	if c.RateLimit.Burst <= 0 {
		c.RateLimit.Burst = 50
	}
}
