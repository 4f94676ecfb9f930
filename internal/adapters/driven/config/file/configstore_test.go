package file

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConfigStore_Success(t *testing.T) {
	tmpDir := t.TempDir()

	store, err := NewConfigStore(tmpDir)

	require.NoError(t, err)
	require.NotNil(t, store)
	assert.Equal(t, filepath.Join(tmpDir, "config.toml"), store.Path())
}

func TestNewConfigStore_DefaultDir(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	store, err := NewConfigStore("")

	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, ".fieldsync", "config.toml"), store.Path())
}

func TestNewConfigStore_MkdirAllError(t *testing.T) {
	store, err := NewConfigStore("/dev/null/cannot/create/dirs")

	assert.Error(t, err)
	assert.Nil(t, store)
}

func TestNewConfigStore_CorruptedFile(t *testing.T) {
	tmpDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, "config.toml"), []byte("crm = {{{[["), 0600))

	store, err := NewConfigStore(tmpDir)

	assert.Error(t, err)
	assert.Nil(t, store)
}

func TestConfigStore_ReadsTablesAsDottedKeys(t *testing.T) {
	tmpDir := t.TempDir()
	content := `
data_dir = "/var/lib/fieldsync"

[crm]
base_url = "https://crm.example.org/api"
timeout = "20s"
rate_per_second = 2.5
burst = 4

[log]
format = "json"
verbose = true
`
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, "config.toml"), []byte(content), 0600))

	store, err := NewConfigStore(tmpDir)
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/fieldsync", store.GetString("data_dir"))
	assert.Equal(t, "https://crm.example.org/api", store.GetString("crm.base_url"))
	assert.Equal(t, "20s", store.GetString("crm.timeout"))
	assert.Equal(t, 2.5, store.GetFloat("crm.rate_per_second"))
	assert.Equal(t, 4, store.GetInt("crm.burst"))
	assert.Equal(t, 4.0, store.GetFloat("crm.burst"))
	assert.Equal(t, "4", store.GetString("crm.burst"))
	assert.True(t, store.GetBool("log.verbose"))

	_, ok := store.Get("crm")
	assert.False(t, ok, "tables are flattened away")
}

func TestConfigStore_WritesDottedKeysAsTables(t *testing.T) {
	tmpDir := t.TempDir()
	store, err := NewConfigStore(tmpDir)
	require.NoError(t, err)

	require.NoError(t, store.Set("crm.base_url", "https://crm.example.org/api"))
	require.NoError(t, store.Set("crm.burst", 3))
	require.NoError(t, store.Set("spool_dir", "/tmp/spool"))

	data, err := os.ReadFile(store.Path())
	require.NoError(t, err)
	assert.Contains(t, string(data), "[crm]")
	assert.False(t, strings.Contains(string(data), `"crm.base_url"`))

	reloaded, err := NewConfigStore(tmpDir)
	require.NoError(t, err)
	assert.Equal(t, "https://crm.example.org/api", reloaded.GetString("crm.base_url"))
	assert.Equal(t, 3, reloaded.GetInt("crm.burst"))
	assert.Equal(t, "/tmp/spool", reloaded.GetString("spool_dir"))
}

func TestConfigStore_TypeCoercion(t *testing.T) {
	store, err := NewConfigStore(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, store.Set("n", "12"))
	require.NoError(t, store.Set("f", "0.5"))
	require.NoError(t, store.Set("b", "true"))
	require.NoError(t, store.Set("junk", []string{"x"}))

	assert.Equal(t, 12, store.GetInt("n"))
	assert.Equal(t, 0.5, store.GetFloat("f"))
	assert.True(t, store.GetBool("b"))

	assert.Zero(t, store.GetInt("junk"))
	assert.Zero(t, store.GetFloat("junk"))
	assert.False(t, store.GetBool("junk"))
	assert.Empty(t, store.GetString("junk"))

	assert.Zero(t, store.GetInt("missing"))
	assert.Empty(t, store.GetString("missing"))
}

func TestConfigStore_FilePermissions(t *testing.T) {
	store, err := NewConfigStore(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, store.Set("test", "value"))

	info, err := os.Stat(store.Path())
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
}

func TestConfigStore_EmptyFile(t *testing.T) {
	tmpDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, "config.toml"), []byte{}, 0600))

	store, err := NewConfigStore(tmpDir)
	require.NoError(t, err)

	_, ok := store.Get("any_key")
	assert.False(t, ok)
}

func TestConfigStore_SaveWriteError(t *testing.T) {
	store, err := NewConfigStore(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, store.Set("test", "value"))

	require.NoError(t, os.Remove(store.Path()))
	require.NoError(t, os.Mkdir(store.Path(), 0700))

	assert.Error(t, store.Save())
}

func TestConfigStore_Concurrency(t *testing.T) {
	store, err := NewConfigStore(t.TempDir())
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			key := "crm.key" + string(rune('0'+id))
			_ = store.Set(key, id)
			_ = store.GetInt(key)
			_ = store.GetString(key)
		}(i)
	}
	wg.Wait()
}

func TestNestMap_PrefixValueWins(t *testing.T) {
	out := nestMap(map[string]any{
		"a":     1,
		"a.b":   2,
		"c.d.e": 3,
	})

	assert.Equal(t, 1, out["a"])
	assert.Equal(t, map[string]any{"d": map[string]any{"e": 3}}, out["c"])
}
