package config

import (
	"fmt"
	"strconv"
	"strings"
)

// Recognized environment toggles.
const (
	EnvDisableCache     = "KCACHE_DISABLE_CACHE"
	EnvCustomCacheDir   = "KCACHE_CUSTOM_CACHE_DIR"
	EnvDeterministic    = "KCACHE_DEBUG_CONVOLUTION_DETERMINISTIC"
	EnvTuningIterations = "KCACHE_TUNING_MAX_ITERATIONS"
	EnvFindEnforce      = "KCACHE_FIND_ENFORCE"
	EnvLogLevel         = "KCACHE_LOG_LEVEL"
	EnvDebugPrefix      = "KCACHE_DEBUG_"
)

// ParseBool accepts the spellings users put in environment variables.
func ParseBool(value string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on", "enable", "enabled":
		return true, nil
	case "0", "false", "no", "off", "disable", "disabled":
		return false, nil
	}
	return false, fmt.Errorf("invalid boolean value %q", value)
}

// ApplyEnv overlays environment toggles (as returned by os.Environ) onto the config.
func (c *Config) ApplyEnv(environ []string) error {
	for _, kv := range environ {
		name, value, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}
		switch name {
		case EnvDisableCache:
			v, err := ParseBool(value)
			if err != nil {
				return fmt.Errorf("%s: %w", name, err)
			}
			c.Cache.Disable = v
		case EnvCustomCacheDir:
			c.Cache.CustomDir = value
		case EnvDeterministic:
			v, err := ParseBool(value)
			if err != nil {
				return fmt.Errorf("%s: %w", name, err)
			}
			c.Solvers.Deterministic = v
		case EnvTuningIterations:
			n, err := strconv.Atoi(value)
			if err != nil || n < 0 {
				return fmt.Errorf("%s: invalid iteration cap %q", name, value)
			}
			c.Tuning.MaxIterations = n
		case EnvFindEnforce:
			c.Tuning.Enabled = strings.EqualFold(value, "search")
		case EnvLogLevel:
			c.Logger.Verbosity = value
		default:
			if id, found := strings.CutPrefix(name, EnvDebugPrefix); found && id != "" {
				v, err := ParseBool(value)
				if err != nil {
					return fmt.Errorf("%s: %w", name, err)
				}
				if c.Solvers.Overrides == nil {
					c.Solvers.Overrides = make(map[string]bool)
				}
				c.Solvers.Overrides[id] = v
			}
		}
	}
	return nil
}
