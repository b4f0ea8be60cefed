package config

import (
	"os"
	"path/filepath"
	"testing"
)

func validConfig() Config {
	cfg := DefaultConfig()
	cfg.SpotifyClientID = "id"
	cfg.SpotifyClientSecret = "secret"
	return cfg
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults with spotify creds", func(c *Config) {}, false},
		{"format mp3", func(c *Config) { c.AudioFormat = "mp3" }, false},
		{"format alac", func(c *Config) { c.AudioFormat = "alac" }, false},
		{"unsupported format", func(c *Config) { c.AudioFormat = "ogg" }, true},
		{"empty format", func(c *Config) { c.AudioFormat = "" }, true},
		{"empty output dir", func(c *Config) { c.OutputDir = "" }, true},
		{"missing spotify id", func(c *Config) { c.SpotifyClientID = "" }, true},
		{"missing spotify secret", func(c *Config) { c.SpotifyClientSecret = "" }, true},
		{"zero transcodes", func(c *Config) { c.MaxTranscodes = 0 }, true},
		{"too many transcodes", func(c *Config) { c.MaxTranscodes = 9 }, true},
		{"max transcodes at cap", func(c *Config) { c.MaxTranscodes = 8 }, false},
		{"zero transcode timeout", func(c *Config) { c.TranscodeTimeout = 0 }, true},
		{"zero output size", func(c *Config) { c.MaxOutputSizeMB = 0 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr && err == nil {
				t.Error("expected validation error, got nil")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("unexpected validation error: %v", err)
			}
		})
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.AudioFormat != "flac" {
		t.Errorf("AudioFormat = %q, want flac", cfg.AudioFormat)
	}
	if cfg.ListenAddr != ":8090" {
		t.Errorf("ListenAddr = %q, want :8090", cfg.ListenAddr)
	}
	if cfg.MaxTranscodes != 2 {
		t.Errorf("MaxTranscodes = %d, want 2", cfg.MaxTranscodes)
	}
	if cfg.TranscodeTimeout != 300 {
		t.Errorf("TranscodeTimeout = %d, want 300", cfg.TranscodeTimeout)
	}
	if cfg.OutputDir == "" {
		t.Error("OutputDir should have a default")
	}
}

func TestLoadConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
audio_format: mp3
output_dir: /tmp/music
spotify_client_id: file-id
spotify_client_secret: file-secret
deezer_arl: arl-cookie
prefer_hires: true
max_transcodes: 4
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadConfigFile(path)
	if err != nil {
		t.Fatalf("LoadConfigFile failed: %v", err)
	}
	if cfg.AudioFormat != "mp3" {
		t.Errorf("AudioFormat = %q, want mp3", cfg.AudioFormat)
	}
	if cfg.OutputDir != "/tmp/music" {
		t.Errorf("OutputDir = %q, want /tmp/music", cfg.OutputDir)
	}
	if !cfg.PreferHiRes {
		t.Error("PreferHiRes should be true")
	}
	if cfg.MaxTranscodes != 4 {
		t.Errorf("MaxTranscodes = %d, want 4", cfg.MaxTranscodes)
	}
	// Fields absent from the file keep their defaults.
	if cfg.TranscodeTimeout != 300 {
		t.Errorf("TranscodeTimeout = %d, want default 300", cfg.TranscodeTimeout)
	}
	if !cfg.HasDeezer() {
		t.Error("HasDeezer should be true with an ARL set")
	}
	if cfg.HasTidal() {
		t.Error("HasTidal should be false without tokens")
	}
}

func TestLoadConfigFileMissing(t *testing.T) {
	cfg, err := LoadConfigFile(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("missing file should fall back to defaults, got error: %v", err)
	}
	if cfg.AudioFormat != "flac" {
		t.Errorf("AudioFormat = %q, want default flac", cfg.AudioFormat)
	}
}

func TestLoadConfigFileMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("audio_format: [unclosed"), 0600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := LoadConfigFile(path); err == nil {
		t.Fatal("expected parse error, got nil")
	}
}

func TestSaveAndReloadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg := validConfig()
	cfg.AudioFormat = "alac"
	cfg.DeezerARL = "arl"

	if err := SaveConfigFile(cfg, path); err != nil {
		t.Fatalf("SaveConfigFile failed: %v", err)
	}

	loaded, err := LoadConfigFile(path)
	if err != nil {
		t.Fatalf("reload failed: %v", err)
	}
	if loaded.AudioFormat != "alac" || loaded.DeezerARL != "arl" {
		t.Errorf("reloaded config lost fields: %+v", loaded)
	}
}

func TestExpandHome(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home dir")
	}
	if got := ExpandHome("~/Music"); got != filepath.Join(home, "Music") {
		t.Errorf("ExpandHome(~/Music) = %q", got)
	}
	if got := ExpandHome("/abs/path"); got != "/abs/path" {
		t.Errorf("ExpandHome should leave absolute paths alone, got %q", got)
	}
}
