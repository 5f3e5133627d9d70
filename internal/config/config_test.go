package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/kingctan/sharedpainter/internal/errors"
)

func TestNew(t *testing.T) {
	cfg := New()

	if cfg.Server.Port != DefaultServerPort {
		t.Errorf("Server.Port = %d, want %d", cfg.Server.Port, DefaultServerPort)
	}
	if cfg.Server.PortTries != DefaultServerPortTries {
		t.Errorf("Server.PortTries = %d, want %d", cfg.Server.PortTries, DefaultServerPortTries)
	}
	if cfg.Discovery.ProbePort != 3336 || cfg.Discovery.TextPort != 3338 {
		t.Errorf("discovery ports = %d/%d", cfg.Discovery.ProbePort, cfg.Discovery.TextPort)
	}
	if cfg.Discovery.ControlPort != 5001 || cfg.Discovery.StreamPort != 6000 {
		t.Errorf("udp ports = %d/%d", cfg.Discovery.ControlPort, cfg.Discovery.StreamPort)
	}
	if cfg.SyncTimeout() != 5*time.Second {
		t.Errorf("SyncTimeout() = %v, want 5s", cfg.SyncTimeout())
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestLoad(t *testing.T) {
	tmpDir := t.TempDir()

	// Test loading non-existent config
	_, err := Load(tmpDir)
	if errors.CodeOf(err) != "E141" {
		t.Errorf("Load(missing) error = %v, want E141", err)
	}

	configJSON := `{
  "nickName": "amy",
  "channel": "studio",
  "relay": {"url": "ws://relay.local:8080/ws"},
  "server": {"enabled": true, "port": 4100},
  "sync": {"timeout": "750ms"},
  "snapshot": {"autosave": "0"}
}
`
	if err := os.WriteFile(filepath.Join(tmpDir, ConfigFileName), []byte(configJSON), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(tmpDir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.NickName != "amy" || cfg.Channel != "studio" {
		t.Errorf("identity = %q/%q", cfg.NickName, cfg.Channel)
	}
	if !cfg.Server.Enabled || cfg.Server.Port != 4100 {
		t.Errorf("Server = %+v", cfg.Server)
	}
	// Defaults survive a partial section.
	if cfg.Server.PortTries != DefaultServerPortTries {
		t.Errorf("Server.PortTries = %d", cfg.Server.PortTries)
	}
	if cfg.SyncTimeout() != 750*time.Millisecond {
		t.Errorf("SyncTimeout() = %v", cfg.SyncTimeout())
	}
	if cfg.AutosaveInterval() != 0 {
		t.Errorf("AutosaveInterval() = %v, want 0", cfg.AutosaveInterval())
	}
	if cfg.Snapshot.Store != DefaultStore {
		t.Errorf("Snapshot.Store = %q", cfg.Snapshot.Store)
	}
}

func TestLoadInvalidJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), ConfigFileName)
	if err := os.WriteFile(path, []byte("{not json"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadFile(path); errors.CodeOf(err) != "E121" {
		t.Errorf("LoadFile() error = %v, want E121", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
	}{
		{"defaults", func(*Config) {}, false},
		{"port too large", func(c *Config) { c.Server.Port = 70000 }, true},
		{"negative probe port", func(c *Config) { c.Discovery.ProbePort = -1 }, true},
		{"negative tries", func(c *Config) { c.Server.PortTries = -1 }, true},
		{"bad timeout", func(c *Config) { c.Sync.Timeout = "soon" }, true},
		{"zero timeout", func(c *Config) { c.Sync.Timeout = "0" }, true},
		{"autosave off", func(c *Config) { c.Snapshot.Autosave = "0" }, false},
		{"bad log format", func(c *Config) { c.Log.Format = "xml" }, true},
		{"bad log level", func(c *Config) { c.Log.Level = "loud" }, true},
		{"negative members", func(c *Config) { c.RelayServer.MaxMembers = -2 }, true},
		{"relay tcp port too large", func(c *Config) { c.RelayServer.TCPPort = 65536 }, true},
		{"bad keepalive", func(c *Config) { c.RelayServer.KeepAlive = "often" }, true},
		{"keepalive off", func(c *Config) { c.RelayServer.KeepAlive = "0" }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := New()
			tt.modify(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && errors.CodeOf(err) != "E122" {
				t.Errorf("Validate() code = %q, want E122", errors.CodeOf(err))
			}
		})
	}
}

func TestSaveAndReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), ConfigFileName)

	cfg, err := LoadOrNew(path)
	if err != nil {
		t.Fatalf("LoadOrNew() error = %v", err)
	}
	cfg.NickName = "bob"
	if err := cfg.Save(); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if cfg.UserID == "" {
		t.Error("Save() did not assign a user id")
	}

	loaded, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}
	if loaded.NickName != "bob" || loaded.UserID != cfg.UserID {
		t.Errorf("reloaded = %q/%q", loaded.NickName, loaded.UserID)
	}
	if loaded.Path() != path {
		t.Errorf("Path() = %q", loaded.Path())
	}
	if !Exists(filepath.Dir(path)) {
		t.Error("Exists() = false after Save")
	}
}

func TestSaveWithoutPath(t *testing.T) {
	if err := New().Save(); err == nil {
		t.Error("Save() without a path succeeded")
	}
}

func TestRelayKeepAlive(t *testing.T) {
	tests := []struct {
		value string
		want  time.Duration
	}{
		{"", 0},
		{"0", -1},
		{"15s", 15 * time.Second},
	}
	for _, tt := range tests {
		cfg := New()
		cfg.RelayServer.KeepAlive = tt.value
		if got := cfg.RelayKeepAlive(); got != tt.want {
			t.Errorf("RelayKeepAlive(%q) = %v, want %v", tt.value, got, tt.want)
		}
	}
}
