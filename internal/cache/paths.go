// Package cache resolves the cache tier directories and stores compiled binaries in them.
package cache

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/fxnlabs/kernel-cache/internal/config"
	"go.uber.org/zap"
)

// Tier selects one of the two cache levels.
type Tier int

const (
	User Tier = iota
	System
)

func (t Tier) String() string {
	if t == System {
		return "system"
	}
	return "user"
}

// Paths holds the resolved tier roots. An empty root means the tier is not available.
type Paths struct {
	User     string
	System   string
	Disabled bool
}

// Get returns the root of tier, or "" when the tier is absent or disabled.
func (p Paths) Get(tier Tier) string {
	if tier == System {
		return p.System
	}
	return p.User
}

// IsDisabled reports whether binary caching is off: both tiers disabled, or the
// global disable flag set.
func IsDisabled(cfg config.Cache) bool {
	if cfg.DisableUserDB && cfg.DisableSystemDB {
		return true
	}
	return cfg.Disable
}

// Resolver computes Paths. The probes are fields so tests can replace them.
type Resolver struct {
	IsNetworkFS func(path string) bool
	TempDir     func() string
	logger      *zap.Logger
}

// NewResolver returns a resolver using the real filesystem probes.
func NewResolver(logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{
		IsNetworkFS: IsNetworkedFilesystem,
		TempDir:     os.TempDir,
		logger:      logger.Named("cache"),
	}
}

// Resolve computes both tier roots. The user directory is created unless the user
// tier is disabled; the system directory is only checked for existence.
func (r *Resolver) Resolve(cfg config.Cache) (Paths, error) {
	user, err := r.userPath(cfg)
	if err != nil {
		return Paths{}, err
	}
	p := Paths{Disabled: IsDisabled(cfg)}
	if !cfg.DisableUserDB {
		p.User = user
	}
	if !cfg.DisableSystemDB {
		p.System = r.systemPath(cfg)
	}
	r.logger.Debug("cache paths resolved",
		zap.String("user", p.User),
		zap.String("system", p.System),
		zap.Bool("disabled", p.Disabled))
	return p, nil
}

func (r *Resolver) userPath(cfg config.Cache) (string, error) {
	var p string
	if cfg.CustomDir != "" {
		p = ExpandUser(cfg.CustomDir)
	} else {
		version := cfg.Version
		if version == "" {
			version = config.DefaultVersion
		}
		p = filepath.Join(ExpandUser(cfg.BaseDir), version)
		if !cfg.DevBuild && r.IsNetworkFS(p) {
			tmp := r.TempDir()
			r.logger.Warn("cache directory is on a network filesystem, using temp dir",
				zap.String("path", p), zap.String("fallback", tmp))
			p = tmp
		}
	}

	if cfg.DisableUserDB {
		return p, nil
	}
	if _, err := os.Stat(p); errors.Is(err, os.ErrNotExist) {
		if err := os.MkdirAll(p, 0o755); err != nil {
			return "", fmt.Errorf("create cache dir: %w", err)
		}
	}
	return p, nil
}

func (r *Resolver) systemPath(cfg config.Cache) string {
	if cfg.SystemDir == "" {
		return ""
	}
	p := ExpandUser(cfg.SystemDir)
	if _, err := os.Stat(p); err != nil {
		return ""
	}
	return p
}

var process struct {
	once  sync.Once
	paths Paths
	err   error
}

// Once resolves the paths on first use and returns the same value for the rest of the
// process, whatever cfg later calls pass.
func Once(cfg config.Cache, logger *zap.Logger) (Paths, error) {
	process.once.Do(func() {
		process.paths, process.err = NewResolver(logger).Resolve(cfg)
	})
	return process.paths, process.err
}
