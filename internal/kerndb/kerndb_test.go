package kerndb

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/fxnlabs/kernel-cache/internal/kcerr"
	"github.com/fxnlabs/kernel-cache/internal/target"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKernelConfigKey(t *testing.T) {
	a := KernelConfig{KernelFile: "ab.o", Args: "c"}
	b := KernelConfig{KernelFile: "a", Args: "b.oc"}
	assert.NotEqual(t, a.Key(), b.Key())
	assert.Equal(t, a.Key(), KernelConfig{KernelFile: "ab.o", Args: "c", Payload: []byte("x")}.Key())
}

func TestBoltDB(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gfx90a68.ukdb")
	db := NewBoltDB(path, false)
	cfg := KernelConfig{KernelFile: "TensorKernels.o", Args: "-DKC_TYPE=float"}

	t.Run("missing file is a miss", func(t *testing.T) {
		payload, ok, err := db.FindRecord(cfg)
		require.NoError(t, err)
		assert.False(t, ok)
		assert.Nil(t, payload)
		_, err = os.Stat(path)
		assert.True(t, os.IsNotExist(err), "lookup must not create the file")
	})

	t.Run("store then find", func(t *testing.T) {
		cfg.Payload = []byte{0x7f, 'E', 'L', 'F'}
		require.NoError(t, db.StoreRecord(cfg))

		payload, ok, err := db.FindRecord(KernelConfig{KernelFile: cfg.KernelFile, Args: cfg.Args})
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, cfg.Payload, payload)
	})

	t.Run("other args miss", func(t *testing.T) {
		_, ok, err := db.FindRecord(KernelConfig{KernelFile: cfg.KernelFile, Args: "-DKC_TYPE=half"})
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("read-only rejects writes", func(t *testing.T) {
		ro := NewBoltDB(path, true)
		err := ro.StoreRecord(cfg)
		assert.ErrorIs(t, err, kcerr.ErrReadOnly)

		_, ok, err := ro.FindRecord(cfg)
		require.NoError(t, err)
		assert.True(t, ok)
	})
}

func TestMemDB(t *testing.T) {
	db := NewMemDB(false)
	cfg := KernelConfig{KernelFile: "k.o", Args: "a", Payload: []byte("v1")}
	require.NoError(t, db.StoreRecord(cfg))
	cfg.Payload[0] = 'X'

	payload, ok, err := db.FindRecord(cfg)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("v1"), payload)
	assert.Equal(t, 1, db.Len())

	ro := NewMemDB(true, cfg)
	assert.ErrorIs(t, ro.StoreRecord(cfg), kcerr.ErrReadOnly)
}

func TestMultiFileDB(t *testing.T) {
	key := KernelConfig{KernelFile: "k.o", Args: "a"}

	t.Run("user tier takes precedence", func(t *testing.T) {
		system := NewMemDB(true, KernelConfig{KernelFile: "k.o", Args: "a", Payload: []byte("system")})
		user := NewMemDB(false, KernelConfig{KernelFile: "k.o", Args: "a", Payload: []byte("user")})
		db := NewMultiFileDB(system, user)

		payload, ok, err := db.FindRecord(key)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, []byte("user"), payload)
	})

	t.Run("falls back to system", func(t *testing.T) {
		system := NewMemDB(true, KernelConfig{KernelFile: "k.o", Args: "a", Payload: []byte("system")})
		db := NewMultiFileDB(system, NewMemDB(false))

		payload, ok, err := db.FindRecord(key)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, []byte("system"), payload)
	})

	t.Run("writes go to user only", func(t *testing.T) {
		system := NewMemDB(true)
		user := NewMemDB(false)
		db := NewMultiFileDB(system, user)

		require.NoError(t, db.StoreRecord(KernelConfig{KernelFile: "k.o", Args: "a", Payload: []byte("new")}))
		assert.Equal(t, 1, user.Len())
		assert.Equal(t, 0, system.Len())
	})

	t.Run("absent tiers always miss", func(t *testing.T) {
		db := NewMultiFileDB(nil, nil)
		_, ok, err := db.FindRecord(key)
		require.NoError(t, err)
		assert.False(t, ok)
		assert.NoError(t, db.StoreRecord(key))
		assert.False(t, db.HasUserTier())
		assert.False(t, db.HasSystemTier())
	})
}

func TestOpen(t *testing.T) {
	props := target.New("gfx90a", "", 104)
	cfg := KernelConfig{KernelFile: "k.o", Args: "a", Payload: []byte("payload")}

	t.Run("secondary system name", func(t *testing.T) {
		sysDir := t.TempDir()
		require.NoError(t, NewBoltDB(filepath.Join(sysDir, "gfx90a.kdb"), false).StoreRecord(cfg))

		db := Open(props, "", sysDir, KernelExt)
		payload, ok, err := db.FindRecord(cfg)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, cfg.Payload, payload)
	})

	t.Run("primary name wins over secondary", func(t *testing.T) {
		sysDir := t.TempDir()
		require.NoError(t, NewBoltDB(filepath.Join(sysDir, "gfx90a.kdb"), false).StoreRecord(
			KernelConfig{KernelFile: "k.o", Args: "a", Payload: []byte("secondary")}))
		require.NoError(t, NewBoltDB(filepath.Join(sysDir, "gfx90a68.kdb"), false).StoreRecord(
			KernelConfig{KernelFile: "k.o", Args: "a", Payload: []byte("primary")}))

		payload, _, err := Open(props, "", sysDir, KernelExt).FindRecord(cfg)
		require.NoError(t, err)
		assert.Equal(t, []byte("primary"), payload)
	})

	t.Run("embedded fallback", func(t *testing.T) {
		embedded := Embedded{"gfx90a68.kdb": NewMemDB(true, cfg)}
		db := Open(props, "", filepath.Join(t.TempDir(), "missing"), KernelExt, WithEmbedded(embedded))
		_, ok, err := db.FindRecord(cfg)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("user file uses user extension", func(t *testing.T) {
		userDir := t.TempDir()
		db := Open(props, userDir, "", PerfExt)
		require.NoError(t, db.StoreRecord(cfg))
		_, err := os.Stat(filepath.Join(userDir, "gfx90a68.updb"))
		assert.NoError(t, err)
	})
}

func TestLoadEmbedded(t *testing.T) {
	data := []byte(`
gfx90a68.db:
  - file: SOLVER
    args: "problem"
    payload: "config"
gfx908.db: []
`)
	embedded, err := LoadEmbedded(data)
	require.NoError(t, err)
	require.Len(t, embedded, 2)

	payload, ok, err := embedded["gfx90a68.db"].FindRecord(KernelConfig{KernelFile: "SOLVER", Args: "problem"})
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "config", string(payload))

	err = embedded["gfx908.db"].StoreRecord(KernelConfig{KernelFile: "SOLVER"})
	assert.ErrorIs(t, err, kcerr.ErrReadOnly)

	db := Open(target.New("gfx90a", "", 104), "", t.TempDir(), PerfExt, WithEmbedded(embedded))
	_, ok, err = db.FindRecord(KernelConfig{KernelFile: "SOLVER", Args: "problem"})
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = LoadEmbedded([]byte("x.db:\n  - args: a\n"))
	assert.Error(t, err)
	_, err = LoadEmbedded([]byte(":::"))
	assert.Error(t, err)
}
