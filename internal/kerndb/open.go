package kerndb

import (
	"os"
	"path/filepath"

	"github.com/fxnlabs/kernel-cache/internal/target"
	"go.uber.org/zap"
)

// Ext names the user and system file extensions of one kind of database.
type Ext struct {
	User   string
	System string
}

var (
	// KernelExt is used for compiled kernel binaries.
	KernelExt = Ext{User: ".ukdb", System: ".kdb"}
	// PerfExt is used for tuned performance configs.
	PerfExt = Ext{User: ".updb", System: ".db"}
)

// Embedded maps a system database file name (e.g. "gfx90a68.kdb") to a baked-in store.
type Embedded map[string]Store

type openOptions struct {
	embedded Embedded
	logger   *zap.Logger
}

// Option configures Open.
type Option func(*openOptions)

// WithEmbedded supplies system databases compiled into the binary. They are used when
// no system file exists on disk.
func WithEmbedded(e Embedded) Option {
	return func(o *openOptions) { o.embedded = e }
}

// WithLogger sets the logger of the returned store.
func WithLogger(logger *zap.Logger) Option {
	return func(o *openOptions) { o.logger = logger }
}

// Open resolves the database files for t. userDir and systemDir are the cache tier
// roots; an empty root disables that tier. The system file is looked up under
// DbBasename first and then under DbID.
func Open(t target.Properties, userDir, systemDir string, ext Ext, opts ...Option) *Timed {
	o := openOptions{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}

	var user Store
	if userDir != "" {
		user = NewBoltDB(filepath.Join(userDir, t.DbBasename()+ext.User), false)
	}

	primary := t.DbBasename() + ext.System
	secondary := t.DbID() + ext.System
	system := findSystem(systemDir, []string{primary, secondary}, o.embedded)

	o.logger.Debug("kernel db resolved",
		zap.String("target", t.DbID()),
		zap.Bool("user", user != nil),
		zap.Bool("system", system != nil))

	return NewTimed(NewMultiFileDB(system, user), o.logger)
}

func findSystem(systemDir string, names []string, embedded Embedded) Store {
	if systemDir != "" {
		for _, name := range names {
			p := filepath.Join(systemDir, name)
			if _, err := os.Stat(p); err == nil {
				return NewBoltDB(p, true)
			}
		}
	}
	for _, name := range names {
		if s, ok := embedded[name]; ok {
			return s
		}
	}
	return nil
}
