package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	appDirName          = "ems3"
	defaultConfigName   = "config.yaml"
	defaultServersDir   = "servers"
	defaultDatabaseFile = "ems3.db"
	defaultLogFile      = "ems3.log"
	defaultCatalogURL   = "https://download.fastmirror.net/api/v3"
	defaultHistory      = 500
)

type Config struct {
	DataDir      string        `yaml:"data_dir"`
	ServersPath  string        `yaml:"servers_path"`
	DatabasePath string        `yaml:"database_path"`
	Log          LogConfig     `yaml:"log"`
	Catalog      CatalogConfig `yaml:"catalog"`
	Console      ConsoleConfig `yaml:"console"`
	PortRange    PortRange     `yaml:"port_range"`
}

type LogConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	// Quiet keeps log output off the terminal, for the interactive panel.
	Quiet bool `yaml:"-"`
}

type CatalogConfig struct {
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
}

type ConsoleConfig struct {
	Listen  string `yaml:"listen"`
	History int    `yaml:"history"`
	RawLogs bool   `yaml:"raw_logs"`
}

type PortRange struct {
	Start int `yaml:"start"`
	End   int `yaml:"end"`
}

// DefaultDir is <user config dir>/ems3.
func DefaultDir() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(base, appDirName), nil
}

// LoadConfig reads config.yaml from configDir, writing a default one first if
// it does not exist.
func LoadConfig(configDir string) (*Config, error) {
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return nil, err
	}
	return LoadFile(filepath.Join(configDir, defaultConfigName))
}

func LoadFile(configPath string) (*Config, error) {
	configDir := filepath.Dir(configPath)

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		cfg, err := createDefaultConfig(configPath, configDir)
		if err != nil {
			return nil, err
		}
		applyEnv(cfg)
		return cfg, nil
	}

	file, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(file, &cfg); err != nil {
		return nil, err
	}

	applyEnv(&cfg)
	applyDefaults(&cfg, configDir)
	return &cfg, nil
}

func defaults(configDir string) Config {
	return Config{
		DataDir:      configDir,
		ServersPath:  filepath.Join(configDir, defaultServersDir),
		DatabasePath: filepath.Join(configDir, defaultDatabaseFile),
		Log: LogConfig{
			Level:      "info",
			Format:     "text",
			File:       filepath.Join(configDir, defaultLogFile),
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
		Catalog: CatalogConfig{
			BaseURL: defaultCatalogURL,
			Timeout: 15 * time.Second,
		},
		Console: ConsoleConfig{
			History: defaultHistory,
		},
		PortRange: PortRange{Start: 25565, End: 25600},
	}
}

func applyDefaults(cfg *Config, configDir string) {
	if cfg.DataDir == "" {
		cfg.DataDir = configDir
	}
	def := defaults(cfg.DataDir)

	if cfg.ServersPath == "" {
		cfg.ServersPath = def.ServersPath
	}
	if cfg.DatabasePath == "" {
		cfg.DatabasePath = def.DatabasePath
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = def.Log.Level
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = def.Log.Format
	}
	if cfg.Log.MaxSizeMB == 0 {
		cfg.Log.MaxSizeMB = def.Log.MaxSizeMB
	}
	if cfg.Catalog.BaseURL == "" {
		cfg.Catalog.BaseURL = def.Catalog.BaseURL
	}
	if cfg.Catalog.Timeout == 0 {
		cfg.Catalog.Timeout = def.Catalog.Timeout
	}
	if cfg.Console.History == 0 {
		cfg.Console.History = def.Console.History
	}
	if cfg.PortRange.Start == 0 || cfg.PortRange.End == 0 {
		cfg.PortRange = def.PortRange
	}
}

func applyEnv(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv("EMS3_DATA_DIR")); v != "" {
		cfg.DataDir = v
		cfg.ServersPath = filepath.Join(v, defaultServersDir)
		cfg.DatabasePath = filepath.Join(v, defaultDatabaseFile)
	}
	if v := strings.TrimSpace(os.Getenv("EMS3_CATALOG_URL")); v != "" {
		cfg.Catalog.BaseURL = v
	}
	if v := strings.TrimSpace(os.Getenv("EMS3_LOG_LEVEL")); v != "" {
		cfg.Log.Level = v
	}
	if v := strings.TrimSpace(os.Getenv("EMS3_CONSOLE_LISTEN")); v != "" {
		cfg.Console.Listen = v
	}
}

func createDefaultConfig(configPath, configDir string) (*Config, error) {
	cfg := defaults(configDir)

	data, err := yaml.Marshal(&cfg)
	if err != nil {
		return nil, err
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return nil, err
	}

	return &cfg, nil
}
