// Package config provides the persistent settings file of the umdfs tool.
package config

import "time"

// CurrentVersion is written to new files
const CurrentVersion = 1

// MaxRecent bounds the recent images list
const MaxRecent = 10

// Config represents the settings file
type Config struct {
	// Log level name (ERROR, WARN, INFO, DEBUG, TRACE); empty keeps the
	// environment's choice
	LogLevel string `yaml:"log_level,omitempty"`

	// Match names exactly instead of folding case
	CaseSensitive bool `yaml:"case_sensitive"`

	// Decoded frames cached per compressed image; negative disables
	FrameCacheSize int `yaml:"frame_cache_size"`

	// Concurrent file copies during extraction
	ExtractWorkers int `yaml:"extract_workers"`

	// Most recently loaded images, newest first
	Recent []RecentImage `yaml:"recent,omitempty"`

	// Version for future compatibility
	Version int `yaml:"version"`
}

// RecentImage records one successfully loaded image
type RecentImage struct {
	Path     string    `yaml:"path"`
	Label    string    `yaml:"label"`
	Format   string    `yaml:"format"`
	LoadedAt time.Time `yaml:"time"`
}

// Default returns the settings used when no file exists
func Default() *Config {
	return &Config{
		FrameCacheSize: 64,
		ExtractWorkers: 4,
		Version:        CurrentVersion,
	}
}

// AddRecent moves img to the front of the recent list, dropping older
// entries for the same path and anything past MaxRecent.
func (c *Config) AddRecent(img RecentImage) {
	list := make([]RecentImage, 0, len(c.Recent)+1)
	list = append(list, img)
	for _, r := range c.Recent {
		if r.Path == img.Path {
			continue
		}
		list = append(list, r)
	}
	if len(list) > MaxRecent {
		list = list[:MaxRecent]
	}
	c.Recent = list
}
