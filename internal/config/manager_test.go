package config

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	m, err := NewManager(filepath.Join(t.TempDir(), "nested", "config.yaml"))
	require.NoError(t, err)
	return m
}

func TestLoadCreatesDefaults(t *testing.T) {
	m := newTestManager(t)

	cfg, err := m.Load()
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)

	data, err := os.ReadFile(m.Path())
	require.NoError(t, err)
	assert.Contains(t, string(data), "frame_cache_size: 64")
	assert.Contains(t, string(data), "version: 1")
}

func TestSaveRoundTrip(t *testing.T) {
	m := newTestManager(t)
	_, err := m.Load()
	require.NoError(t, err)

	loadedAt := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	cfg := Default()
	cfg.LogLevel = "DEBUG"
	cfg.CaseSensitive = true
	cfg.FrameCacheSize = -1
	cfg.ExtractWorkers = 8
	cfg.AddRecent(RecentImage{Path: "/games/a.cso", Label: "GAME_A", Format: "CSO", LoadedAt: loadedAt})
	require.NoError(t, m.Save(cfg))

	got, err := m.Load()
	require.NoError(t, err)
	assert.Equal(t, "DEBUG", got.LogLevel)
	assert.True(t, got.CaseSensitive)
	assert.Equal(t, -1, got.FrameCacheSize)
	assert.Equal(t, 8, got.ExtractWorkers)
	require.Len(t, got.Recent, 1)
	assert.Equal(t, "GAME_A", got.Recent[0].Label)
	assert.True(t, loadedAt.Equal(got.Recent[0].LoadedAt))
}

func TestLoadPartialFileKeepsDefaults(t *testing.T) {
	m := newTestManager(t)
	require.NoError(t, os.WriteFile(m.Path(), []byte("case_sensitive: true\n"), 0600))

	cfg, err := m.Load()
	require.NoError(t, err)
	assert.True(t, cfg.CaseSensitive)
	assert.Equal(t, 64, cfg.FrameCacheSize)
	assert.Equal(t, 4, cfg.ExtractWorkers)
	assert.Equal(t, CurrentVersion, cfg.Version)
}

func TestLoadRejectsGarbage(t *testing.T) {
	m := newTestManager(t)
	require.NoError(t, os.WriteFile(m.Path(), []byte("recent: [unterminated\n"), 0600))

	_, err := m.Load()
	assert.Error(t, err)
}

func TestBackupsAreRotated(t *testing.T) {
	m := newTestManager(t)
	cfg, err := m.Load()
	require.NoError(t, err)

	for i := 0; i < 8; i++ {
		cfg.ExtractWorkers = i + 1
		require.NoError(t, m.Save(cfg))
	}

	backups, err := m.Backups()
	require.NoError(t, err)
	assert.Len(t, backups, 5)

	// The newest backup holds the state before the last save
	data, err := os.ReadFile(backups[0])
	require.NoError(t, err)
	assert.Contains(t, string(data), "extract_workers: 7")
}

func TestAddRecent(t *testing.T) {
	cfg := Default()
	for i := 0; i < MaxRecent+3; i++ {
		cfg.AddRecent(RecentImage{Path: fmt.Sprintf("/games/%02d.iso", i)})
	}
	require.Len(t, cfg.Recent, MaxRecent)
	assert.Equal(t, "/games/12.iso", cfg.Recent[0].Path)
	assert.Equal(t, "/games/03.iso", cfg.Recent[MaxRecent-1].Path)

	// Reloading an image moves it to the front without duplicating it
	cfg.AddRecent(RecentImage{Path: "/games/05.iso", Label: "AGAIN"})
	require.Len(t, cfg.Recent, MaxRecent)
	assert.Equal(t, "AGAIN", cfg.Recent[0].Label)
	count := 0
	for _, r := range cfg.Recent {
		if r.Path == "/games/05.iso" {
			count++
		}
	}
	assert.Equal(t, 1, count)
}

func TestDefaultPathFromEnvironment(t *testing.T) {
	t.Setenv("UMDFS_CONFIG", "/tmp/custom.yaml")
	assert.Equal(t, "/tmp/custom.yaml", DefaultPath())
}
