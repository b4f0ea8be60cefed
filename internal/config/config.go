package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config contains the program configuration
type Config struct {
	Verbose bool `yaml:"verbose"`

	// Output
	OutputDir   string `yaml:"output_dir"`
	AudioFormat string `yaml:"audio_format"` // mp3, flac, alac

	// Spotify Web API (metadata resolution)
	SpotifyClientID     string `yaml:"spotify_client_id"`
	SpotifyClientSecret string `yaml:"spotify_client_secret"`

	// Hi-res streaming provider (OAuth refresh flow)
	TidalClientID     string `yaml:"tidal_client_id"`
	TidalClientSecret string `yaml:"tidal_client_secret"`
	TidalRefreshToken string `yaml:"tidal_refresh_token"`
	TidalStaticToken  string `yaml:"tidal_static_token"` // fallback when refresh fails
	PreferHiRes       bool   `yaml:"prefer_hires"`

	// Lossless provider (ARL cookie session)
	DeezerARL string `yaml:"deezer_arl"`

	// Acoustic verification
	AcoustIDKey string `yaml:"acoustid_key"`

	// Server
	ListenAddr string `yaml:"listen_addr"`

	// External transcoder
	MaxTranscodes    int `yaml:"max_transcodes"`     // concurrent ffmpeg processes
	TranscodeTimeout int `yaml:"transcode_timeout"`  // seconds
	MaxOutputSizeMB  int `yaml:"max_output_size_mb"` // transcode output ceiling
}

// DefaultConfig returns the default configuration
func DefaultConfig() Config {
	return Config{
		Verbose:          false,
		OutputDir:        filepath.Join(homeDir(), "Music"),
		AudioFormat:      "flac",
		PreferHiRes:      false,
		ListenAddr:       ":8090",
		MaxTranscodes:    2,
		TranscodeTimeout: 300,
		MaxOutputSizeMB:  512,
	}
}

// LoadConfigFile loads configuration from a YAML file.
// If path is empty, searches standard locations. Returns defaults if no file found.
func LoadConfigFile(path string) (Config, error) {
	cfg := DefaultConfig()

	if path == "" {
		path = FindConfigFile()
		if path == "" {
			return cfg, nil
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	cfg.OutputDir = ExpandHome(cfg.OutputDir)

	return cfg, nil
}

// ExpandHome replaces a leading ~ with the user's home directory.
func ExpandHome(path string) string {
	if strings.HasPrefix(path, "~/") {
		return filepath.Join(homeDir(), path[2:])
	}
	return path
}

// FindConfigFile searches for a config file in standard locations
func FindConfigFile() string {
	home := homeDir()
	locations := []string{
		"./yoink.yaml",
		"./yoink.yml",
		filepath.Join(home, ".config", "yoink", "config.yaml"),
		filepath.Join(home, ".config", "yoink", "config.yml"),
		filepath.Join(home, ".yoink.yaml"),
		filepath.Join(home, ".yoink.yml"),
	}

	for _, path := range locations {
		if path == "" {
			continue
		}
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// SaveConfigFile saves the current configuration to a YAML file
func SaveConfigFile(cfg Config, path string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// GetDefaultConfigPath returns the default config file path
func GetDefaultConfigPath() string {
	return filepath.Join(homeDir(), ".config", "yoink", "config.yaml")
}

// GetDefaultLogPath returns the default log directory path
func GetDefaultLogPath() string {
	return filepath.Join(homeDir(), ".local", "share", "yoink", "logs")
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return os.Getenv("HOME")
	}
	return home
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	validFormats := []string{"mp3", "flac", "alac"}
	isValid := false
	for _, format := range validFormats {
		if c.AudioFormat == format {
			isValid = true
			break
		}
	}
	if !isValid {
		return fmt.Errorf("unsupported audio format '%s', valid formats: %v", c.AudioFormat, validFormats)
	}

	if c.OutputDir == "" {
		return fmt.Errorf("output_dir cannot be empty")
	}

	if c.SpotifyClientID == "" || c.SpotifyClientSecret == "" {
		return fmt.Errorf("spotify_client_id and spotify_client_secret are required for metadata resolution")
	}

	if c.MaxTranscodes < 1 {
		return fmt.Errorf("max_transcodes must be at least 1, got %d", c.MaxTranscodes)
	}
	if c.MaxTranscodes > 8 {
		return fmt.Errorf("max_transcodes cannot exceed 8 (ffmpeg is CPU-bound), got %d", c.MaxTranscodes)
	}

	if c.TranscodeTimeout < 1 {
		return fmt.Errorf("transcode_timeout must be positive, got %d", c.TranscodeTimeout)
	}
	if c.MaxOutputSizeMB < 1 {
		return fmt.Errorf("max_output_size_mb must be positive, got %d", c.MaxOutputSizeMB)
	}

	return nil
}

// HasTidal reports whether the hi-res provider has any usable credential.
func (c *Config) HasTidal() bool {
	return c.TidalRefreshToken != "" || c.TidalStaticToken != ""
}

// HasDeezer reports whether the lossless provider has a session cookie.
func (c *Config) HasDeezer() bool {
	return c.DeezerARL != ""
}
