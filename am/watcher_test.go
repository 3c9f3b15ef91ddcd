package am

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigWatcherReloads(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "am.toml")
	require.NoError(t, os.WriteFile(path, []byte("[server]\nport = 9001\n"), 0644))

	cw, err := NewConfigWatcher(path)
	require.NoError(t, err)
	cw.debouncePeriod = 20 * time.Millisecond
	defer cw.Stop()

	reloaded := make(chan *Config, 1)
	cw.OnReload(func(c *Config) error {
		select {
		case reloaded <- c:
		default:
		}
		return nil
	})
	cw.Start()

	require.NoError(t, os.WriteFile(path, []byte("[server]\nport = 9002\n"), 0644))

	select {
	case c := <-reloaded:
		assert.Equal(t, 9002, c.Server.Port)
	case <-time.After(5 * time.Second):
		t.Fatal("config watcher did not reload")
	}
}

func TestConfigWatcherKeepsPreviousOnInvalid(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "am.toml")
	require.NoError(t, os.WriteFile(path, []byte("[pipeline]\nbackend = \"ring\"\n"), 0644))

	cw, err := NewConfigWatcher(path)
	require.NoError(t, err)
	defer cw.Stop()

	called := false
	cw.OnReload(func(*Config) error { called = true; return nil })

	err = cw.reload()
	require.Error(t, err)
	assert.False(t, called)
}

func TestIsBackupFile(t *testing.T) {
	assert.True(t, isBackupFile("/x/am.toml.back1"))
	assert.True(t, isBackupFile("/x/am.toml~"))
	assert.False(t, isBackupFile("/x/am.toml"))
}
