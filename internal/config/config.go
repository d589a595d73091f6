package config

import (
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Backend selects how compiled binaries are persisted.
const (
	BackendFile = "file"
	BackendDB   = "db"
)

// DefaultVersion is the cache version directory used when none is configured.
const DefaultVersion = "1.0.0.0"

type Cache struct {
	BaseDir         string `yaml:"baseDir"`
	Version         string `yaml:"version"`
	CustomDir       string `yaml:"customDir"`
	SystemDir       string `yaml:"systemDir"`
	Disable         bool   `yaml:"disable"`
	DisableUserDB   bool   `yaml:"disableUserDB"`
	DisableSystemDB bool   `yaml:"disableSystemDB"`
	Backend         string `yaml:"backend"`
	EmbedSystemDB   bool   `yaml:"embedSystemDB"`
	// DevBuild skips the network filesystem check, like developer builds do.
	DevBuild bool `yaml:"devBuild"`
}

type Solvers struct {
	Deterministic bool `yaml:"deterministic"`
	// Overrides maps a solver debug id (e.g. CONV_IMPLICIT_GEMM_3D_GROUP_FWD) to an explicit
	// enable (true) or disable (false).
	Overrides map[string]bool `yaml:"overrides"`
}

type Tuning struct {
	Enabled       bool `yaml:"enabled"`
	MaxIterations int  `yaml:"maxIterations"`
	Repeats       int  `yaml:"repeats"`
}

type Device struct {
	Name         string `yaml:"name"`
	ComputeUnits int    `yaml:"computeUnits"`
	Features     string `yaml:"features"`
}

type Config struct {
	Logger struct {
		Verbosity string `yaml:"verbosity"`
	} `yaml:"logger"`
	Cache   Cache   `yaml:"cache"`
	Solvers Solvers `yaml:"solvers"`
	Tuning  Tuning  `yaml:"tuning"`
	Device  Device  `yaml:"device"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	var cfg Config
	cfg.Logger.Verbosity = "info"
	cfg.Cache.BaseDir = "~/.cache/kcache"
	cfg.Cache.Version = DefaultVersion
	cfg.Cache.SystemDir = "/opt/kcache/share/db"
	cfg.Cache.Backend = BackendFile
	cfg.Tuning.Repeats = 3
	cfg.Device.Name = "gfx90a"
	cfg.Device.ComputeUnits = 104
	return &cfg
}

// LoadConfig reads a yaml file on top of Default.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	config := Default()
	err = yaml.Unmarshal(data, config)
	if err != nil {
		return nil, err
	}

	return config, nil
}

// GetDefaultConfigHome returns the directory holding config.yaml.
func GetDefaultConfigHome() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "kcache")
	}
	return ".kcache"
}
