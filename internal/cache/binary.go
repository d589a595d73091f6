package cache

import (
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"syscall"

	"github.com/fxnlabs/kernel-cache/internal/config"
	"github.com/fxnlabs/kernel-cache/internal/kerndb"
	"github.com/fxnlabs/kernel-cache/internal/metrics"
	"github.com/fxnlabs/kernel-cache/internal/target"
	"go.uber.org/zap"
)

// BinaryExt is the platform suffix of compiled objects.
const BinaryExt = ".o"

// BinaryCache persists compiled programs across runs.
type BinaryCache interface {
	// LoadBinary returns the cached object. ok is false on a miss; a miss is never an error.
	LoadBinary(t target.Properties, name, args string) (binary []byte, ok bool)
	// SaveBinary takes ownership of the artifact at binaryPath.
	SaveBinary(binaryPath string, t target.Properties, name, args string) error
}

// NewBinaryCache picks the file or database backend.
func NewBinaryCache(cfg config.Cache, paths Paths, logger *zap.Logger, opts ...kerndb.Option) BinaryCache {
	if cfg.Backend == config.BackendDB {
		return NewDBCache(paths, logger, opts...)
	}
	return NewFileCache(paths, logger)
}

// FileCache stores userRoot/md5(device:args)/name.o files.
type FileCache struct {
	paths  Paths
	logger *zap.Logger
}

func NewFileCache(paths Paths, logger *zap.Logger) *FileCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FileCache{paths: paths, logger: logger.Named("binary_cache")}
}

// CacheFile returns the path of the object for (device, name, args), or "" without a user tier.
func (c *FileCache) CacheFile(device, name, args string) string {
	if c.paths.User == "" {
		return ""
	}
	sum := md5.Sum([]byte(device + ":" + args))
	return filepath.Join(c.paths.User, hex.EncodeToString(sum[:]), name+BinaryExt)
}

func (c *FileCache) LoadBinary(t target.Properties, name, args string) ([]byte, bool) {
	if c.paths.Disabled {
		return nil, false
	}
	f := c.CacheFile(t.DbID(), name, args)
	if f == "" {
		return nil, false
	}
	data, err := os.ReadFile(f)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			c.logger.Warn("unreadable cache entry", zap.String("path", f), zap.Error(err))
		}
		metrics.CacheLookups.WithLabelValues("file", "miss").Inc()
		return nil, false
	}
	metrics.CacheLookups.WithLabelValues("file", "hit").Inc()
	c.logger.Debug("loaded binary", zap.String("name", name), zap.String("path", f))
	return data, true
}

func (c *FileCache) SaveBinary(binaryPath string, t target.Properties, name, args string) error {
	dst := c.CacheFile(t.DbID(), name, args)
	if c.paths.Disabled || dst == "" {
		metrics.BinarySaves.WithLabelValues("discarded").Inc()
		return removeArtifact(binaryPath)
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("create cache entry dir: %w", err)
	}
	if err := publish(binaryPath, dst); err != nil {
		return err
	}
	metrics.BinarySaves.WithLabelValues("stored").Inc()
	c.logger.Debug("saved binary", zap.String("name", name), zap.String("path", dst))
	return nil
}

// publish renames src over dst. When they are on different filesystems the bytes are
// copied to a temp file next to dst first, so a partial write is never visible under dst.
func publish(src, dst string) error {
	err := os.Rename(src, dst)
	if err == nil || !errors.Is(err, syscall.EXDEV) {
		return err
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	tmp, err := os.CreateTemp(filepath.Dir(dst), ".partial-*")
	if err != nil {
		return err
	}
	if _, err := io.Copy(tmp, in); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Remove(src)
}

func removeArtifact(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// DBCache stores objects as records in the per-target kernel database.
type DBCache struct {
	paths  Paths
	opts   []kerndb.Option
	logger *zap.Logger
}

func NewDBCache(paths Paths, logger *zap.Logger, opts ...kerndb.Option) *DBCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	opts = append([]kerndb.Option{kerndb.WithLogger(logger)}, opts...)
	return &DBCache{paths: paths, opts: opts, logger: logger.Named("binary_cache")}
}

func (c *DBCache) db(t target.Properties) kerndb.Store {
	return kerndb.Open(t, c.paths.User, c.paths.System, kerndb.KernelExt, c.opts...)
}

func (c *DBCache) LoadBinary(t target.Properties, name, args string) ([]byte, bool) {
	if c.paths.Disabled {
		return nil, false
	}
	payload, ok, err := c.db(t).FindRecord(kerndb.KernelConfig{KernelFile: name + BinaryExt, Args: args})
	if err != nil {
		c.logger.Warn("kernel db lookup failed", zap.String("name", name), zap.Error(err))
		return nil, false
	}
	return payload, ok
}

func (c *DBCache) SaveBinary(binaryPath string, t target.Properties, name, args string) error {
	if c.paths.Disabled {
		metrics.BinarySaves.WithLabelValues("discarded").Inc()
		return removeArtifact(binaryPath)
	}
	data, err := os.ReadFile(binaryPath)
	if err != nil {
		return err
	}
	cfg := kerndb.KernelConfig{KernelFile: name + BinaryExt, Args: args, Payload: data}
	if err := c.db(t).StoreRecord(cfg); err != nil {
		return err
	}
	metrics.BinarySaves.WithLabelValues("stored").Inc()
	return removeArtifact(binaryPath)
}
