package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"umdfs/internal/logging"

	"gopkg.in/yaml.v2"
)

var (
	logger = logging.GetLogger().WithPrefix("config")
)

// Manager handles loading and saving the settings file
type Manager struct {
	configPath  string
	backupDir   string
	backupCount int
	mu          sync.Mutex
}

// DefaultPath returns the settings file under the user's config directory
func DefaultPath() string {
	if env := os.Getenv("UMDFS_CONFIG"); env != "" {
		return env
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		return "umdfs.yaml"
	}
	return filepath.Join(dir, "umdfs", "config.yaml")
}

// NewManager creates a new config manager for the given file path.
// It ensures the config directory exists and is writable.
func NewManager(configPath string) (*Manager, error) {
	logger.Debug("Creating new config manager with path: %s", configPath)

	absPath, err := filepath.Abs(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve config path %s: %w", configPath, err)
	}
	logger.Debug("Resolved config path: %s", absPath)

	// Create parent directory if it doesn't exist
	configDir := filepath.Dir(absPath)
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create config directory %s: %w", configDir, err)
	}

	// Try to create an empty file to verify we have write permissions
	f, err := os.OpenFile(absPath, os.O_WRONLY|os.O_CREATE, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to create config file %s: %w", absPath, err)
	}
	f.Close()

	backupDir := filepath.Join(configDir, ".umdfs-backups")
	if err := os.MkdirAll(backupDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create backup directory %s: %w", backupDir, err)
	}

	logger.Debug("Config manager initialization complete")
	return &Manager{
		configPath:  absPath,
		backupDir:   backupDir,
		backupCount: 5,
	}, nil
}

// Path returns the absolute path of the settings file
func (m *Manager) Path() string { return m.configPath }

// Load reads the settings file. If it is missing or empty, a file with
// default values is written and returned.
func (m *Manager) Load() (*Config, error) {
	logger.Debug("Loading config from: %s", m.configPath)
	m.mu.Lock()
	defer m.mu.Unlock()

	data, err := os.ReadFile(m.configPath)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if len(data) == 0 {
		logger.Info("No config file, writing defaults to %s", m.configPath)
		cfg := Default()
		if err := m.write(cfg); err != nil {
			return nil, err
		}
		return cfg, nil
	}

	logger.Debug("Parsing existing config file (%d bytes)", len(data))
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if cfg.Version == 0 {
		cfg.Version = CurrentVersion
	}
	if cfg.Version > CurrentVersion {
		logger.Warn("Config version %d is newer than %d", cfg.Version, CurrentVersion)
	}
	if cfg.ExtractWorkers <= 0 {
		cfg.ExtractWorkers = 1
	}
	if len(cfg.Recent) > MaxRecent {
		cfg.Recent = cfg.Recent[:MaxRecent]
	}

	logger.Debug("Config loaded successfully")
	return cfg, nil
}

// Save writes cfg to disk. It automatically creates a backup before saving.
func (m *Manager) Save(cfg *Config) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	logger.Debug("Saving config to: %s", m.configPath)

	// Create backup before saving
	if err := m.createBackup(); err != nil {
		logger.Warn("Failed to create backup: %v", err)
	}

	return m.write(cfg)
}

func (m *Manager) write(cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if len(data) == 0 {
		return fmt.Errorf("refusing to write empty config data")
	}

	logger.Trace("Writing %d bytes of config data", len(data))
	if err := os.WriteFile(m.configPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	// Verify the write
	written, err := os.ReadFile(m.configPath)
	if err != nil {
		return fmt.Errorf("failed to verify written config: %w", err)
	}
	var check Config
	if err := yaml.Unmarshal(written, &check); err != nil {
		return fmt.Errorf("config file unreadable after write: %w", err)
	}

	logger.Debug("Config saved and verified successfully")
	return nil
}

// createBackup creates a timestamped backup of the current file
func (m *Manager) createBackup() error {
	data, err := os.ReadFile(m.configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if len(data) == 0 {
		return nil
	}

	timestamp := time.Now().Format("20060102-150405.000000000")
	backupPath := filepath.Join(m.backupDir, fmt.Sprintf("config-%s.yaml", timestamp))

	logger.Debug("Creating backup: %s", backupPath)
	if err := os.WriteFile(backupPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write backup: %w", err)
	}

	return m.cleanupOldBackups()
}

// Backups returns the backup files, newest first
func (m *Manager) Backups() ([]string, error) {
	entries, err := os.ReadDir(m.backupDir)
	if err != nil {
		return nil, err
	}

	var backups []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, "config-") || filepath.Ext(name) != ".yaml" {
			continue
		}
		backups = append(backups, filepath.Join(m.backupDir, name))
	}

	// Timestamps sort lexically
	sort.Sort(sort.Reverse(sort.StringSlice(backups)))
	return backups, nil
}

// cleanupOldBackups removes old backup files, keeping only the most recent ones
func (m *Manager) cleanupOldBackups() error {
	backups, err := m.Backups()
	if err != nil {
		return err
	}

	for i := m.backupCount; i < len(backups); i++ {
		logger.Debug("Removing old backup: %s", backups[i])
		if err := os.Remove(backups[i]); err != nil {
			return fmt.Errorf("failed to remove old backup %s: %w", backups[i], err)
		}
	}
	return nil
}
