package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kingctan/sharedpainter/internal/errors"
)

const (
	// ConfigFileName is the name of the configuration file.
	ConfigFileName = "sharedpaint.json"

	// DefaultChannel is the paint channel joined when none is set.
	DefaultChannel = "default"

	// DefaultServerPort is the first TCP port the peer server tries.
	DefaultServerPort = 4001

	// DefaultServerPortTries is how many ports upward the server probes.
	DefaultServerPortTries = 100

	// DefaultProbePort is the UDP port server probes are broadcast to.
	DefaultProbePort = 3336

	// DefaultTextPort is the UDP port text messages are broadcast to.
	DefaultTextPort = 3338

	// DefaultControlPort is the first UDP control port tried.
	DefaultControlPort = 5001

	// DefaultStreamPort is the first UDP stream port tried.
	DefaultStreamPort = 6000

	// DefaultSyncTimeout is how long a joiner waits for SYNC_START.
	DefaultSyncTimeout = "5s"

	// DefaultStore is the snapshot store URL.
	DefaultStore = "bolt://sharedpaint.db"

	// DefaultAutosave is the autosave interval.
	DefaultAutosave = "30s"

	// DefaultRelayListen is the relay server listen address.
	DefaultRelayListen = ":8080"
)

// Config represents the complete sharedpaint.json configuration.
type Config struct {
	// UserID identifies the local painter. Generated on first save.
	UserID string `json:"userId,omitempty"`

	// NickName is the display name.
	NickName string `json:"nickName,omitempty"`

	// Channel is the paint channel to join.
	Channel string `json:"channel,omitempty"`

	// Debug turns invariant violations into panics.
	Debug bool `json:"debug,omitempty"`

	// Log contains logging settings.
	Log LogConfig `json:"log,omitempty"`

	// Relay contains the relay the peer joins through.
	Relay RelayConfig `json:"relay,omitempty"`

	// Server contains the peer's own TCP server settings.
	Server ServerConfig `json:"server,omitempty"`

	// Discovery contains LAN discovery settings.
	Discovery DiscoveryConfig `json:"discovery,omitempty"`

	// Sync contains full-state sync settings.
	Sync SyncConfig `json:"sync,omitempty"`

	// Snapshot contains persistence settings.
	Snapshot SnapshotConfig `json:"snapshot,omitempty"`

	// RelayServer contains settings for 'sharedpaint relay'.
	RelayServer RelayServerConfig `json:"relayServer,omitempty"`

	// configPath stores the path where the config was loaded from.
	configPath string
}

// LogConfig contains logging settings.
type LogConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `json:"level,omitempty"`

	// Format is text or json.
	Format string `json:"format,omitempty"`
}

// RelayConfig describes the relay to join.
type RelayConfig struct {
	// URL is a ws:// or wss:// URL, or a host:port for a TCP relay.
	URL string `json:"url,omitempty"`

	// Reconnect re-dials the relay with exponential backoff after a drop.
	Reconnect bool `json:"reconnect,omitempty"`

	// MaxReconnect caps the total reconnect time (e.g. "2m").
	MaxReconnect string `json:"maxReconnect,omitempty"`
}

// ServerConfig contains the peer TCP server settings.
type ServerConfig struct {
	// Enabled starts the server so this peer can become the super-peer.
	Enabled bool `json:"enabled,omitempty"`

	// Host is the address to bind.
	Host string `json:"host,omitempty"`

	// Port is the first port tried.
	Port int `json:"port,omitempty"`

	// PortTries is how many consecutive ports are probed.
	PortTries int `json:"portTries,omitempty"`

	// Advertise registers the server on mDNS.
	Advertise bool `json:"advertise,omitempty"`
}

// DiscoveryConfig contains UDP discovery settings.
type DiscoveryConfig struct {
	// Enabled binds the discovery sockets.
	Enabled bool `json:"enabled,omitempty"`

	// AutoConnect connects to the first server found on the channel.
	AutoConnect bool `json:"autoConnect,omitempty"`

	// MDNS also browses mDNS for servers, for networks that drop
	// broadcasts.
	MDNS bool `json:"mdns,omitempty"`

	// BroadcastAddr overrides 255.255.255.255.
	BroadcastAddr string `json:"broadcastAddr,omitempty"`

	ProbePort   int `json:"probePort,omitempty"`
	TextPort    int `json:"textPort,omitempty"`
	ControlPort int `json:"controlPort,omitempty"`
	StreamPort  int `json:"streamPort,omitempty"`
}

// SyncConfig contains full-state sync settings.
type SyncConfig struct {
	// Timeout is how long to wait for SYNC_START (e.g. "5s").
	Timeout string `json:"timeout,omitempty"`
}

// SnapshotConfig contains persistence settings.
type SnapshotConfig struct {
	// Store is a store URL: memory://, file://dir, bolt://file,
	// redis://..., postgres://... or s3://bucket/prefix.
	Store string `json:"store,omitempty"`

	// Autosave is the autosave interval; "0" disables autosave.
	Autosave string `json:"autosave,omitempty"`

	// Name is the snapshot name autosave writes.
	Name string `json:"name,omitempty"`
}

// RelayServerConfig contains relay server settings.
type RelayServerConfig struct {
	// Listen is the HTTP listen address.
	Listen string `json:"listen,omitempty"`

	// AllowedOrigins lists accepted WebSocket origins; empty allows all.
	AllowedOrigins []string `json:"allowedOrigins,omitempty"`

	// TCPPort serves native painters over plain TCP; 0 disables it.
	TCPPort int `json:"tcpPort,omitempty"`

	// MaxMembers bounds the members per channel; 0 means no limit.
	MaxMembers int `json:"maxMembers,omitempty"`

	// KeepAlive is the TCPSYN interval (e.g. "30s"); "0" disables it.
	KeepAlive string `json:"keepAlive,omitempty"`
}

// New creates a new Config with default values.
func New() *Config {
	return &Config{
		Channel: DefaultChannel,
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Relay: RelayConfig{
			Reconnect:    true,
			MaxReconnect: "2m",
		},
		Server: ServerConfig{
			Host:      "0.0.0.0",
			Port:      DefaultServerPort,
			PortTries: DefaultServerPortTries,
		},
		Discovery: DiscoveryConfig{
			ProbePort:   DefaultProbePort,
			TextPort:    DefaultTextPort,
			ControlPort: DefaultControlPort,
			StreamPort:  DefaultStreamPort,
		},
		Sync: SyncConfig{
			Timeout: DefaultSyncTimeout,
		},
		Snapshot: SnapshotConfig{
			Store:    DefaultStore,
			Autosave: DefaultAutosave,
			Name:     "autosave",
		},
		RelayServer: RelayServerConfig{
			Listen: DefaultRelayListen,
		},
	}
}

// Load reads configuration from the specified directory.
// It looks for sharedpaint.json in the directory.
func Load(dir string) (*Config, error) {
	return LoadFile(filepath.Join(dir, ConfigFileName))
}

// LoadFile reads configuration from the specified file path.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.New("E141").
				WithDetail("No " + ConfigFileName + " found in " + filepath.Dir(path))
		}
		return nil, errors.New("E120").Wrap(err)
	}

	cfg := New()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, errors.New("E121").
			WithDetail("Failed to parse " + path).
			Wrap(err)
	}

	cfg.configPath = path
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadOrNew loads path, or returns the defaults when it does not exist.
func LoadOrNew(path string) (*Config, error) {
	cfg, err := LoadFile(path)
	if err == nil {
		return cfg, nil
	}
	if errors.CodeOf(err) != "E141" {
		return nil, err
	}
	cfg = New()
	cfg.configPath = path
	return cfg, nil
}

// Save writes the configuration to the file it was loaded from.
func (c *Config) Save() error {
	if c.configPath == "" {
		return errors.Newf(errors.CategoryConfig, "no config path set")
	}
	return c.SaveTo(c.configPath)
}

// SaveTo writes the configuration to the specified path.
func (c *Config) SaveTo(path string) error {
	if c.UserID == "" {
		c.UserID = uuid.NewString()
	}
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return errors.New("E120").Wrap(err)
	}

	// Add newline at end of file
	data = append(data, '\n')

	if err := os.WriteFile(path, data, 0644); err != nil {
		return errors.New("E120").Wrap(err)
	}

	c.configPath = path
	return nil
}

// Path returns the path where the config was loaded from.
func (c *Config) Path() string {
	return c.configPath
}

// applyDefaults fills in default values for empty fields.
func (c *Config) applyDefaults() {
	d := New()

	if c.Channel == "" {
		c.Channel = d.Channel
	}
	if c.Log.Level == "" {
		c.Log.Level = d.Log.Level
	}
	if c.Log.Format == "" {
		c.Log.Format = d.Log.Format
	}
	if c.Relay.MaxReconnect == "" {
		c.Relay.MaxReconnect = d.Relay.MaxReconnect
	}

	// Server
	if c.Server.Host == "" {
		c.Server.Host = d.Server.Host
	}
	if c.Server.Port == 0 {
		c.Server.Port = d.Server.Port
	}
	if c.Server.PortTries == 0 {
		c.Server.PortTries = d.Server.PortTries
	}

	// Discovery
	if c.Discovery.ProbePort == 0 {
		c.Discovery.ProbePort = d.Discovery.ProbePort
	}
	if c.Discovery.TextPort == 0 {
		c.Discovery.TextPort = d.Discovery.TextPort
	}
	if c.Discovery.ControlPort == 0 {
		c.Discovery.ControlPort = d.Discovery.ControlPort
	}
	if c.Discovery.StreamPort == 0 {
		c.Discovery.StreamPort = d.Discovery.StreamPort
	}

	if c.Sync.Timeout == "" {
		c.Sync.Timeout = d.Sync.Timeout
	}

	// Snapshot
	if c.Snapshot.Store == "" {
		c.Snapshot.Store = d.Snapshot.Store
	}
	if c.Snapshot.Autosave == "" {
		c.Snapshot.Autosave = d.Snapshot.Autosave
	}
	if c.Snapshot.Name == "" {
		c.Snapshot.Name = d.Snapshot.Name
	}

	if c.RelayServer.Listen == "" {
		c.RelayServer.Listen = d.RelayServer.Listen
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	ports := []struct {
		name string
		port int
	}{
		{"server.port", c.Server.Port},
		{"discovery.probePort", c.Discovery.ProbePort},
		{"discovery.textPort", c.Discovery.TextPort},
		{"discovery.controlPort", c.Discovery.ControlPort},
		{"discovery.streamPort", c.Discovery.StreamPort},
		{"relayServer.tcpPort", c.RelayServer.TCPPort},
	}
	for _, p := range ports {
		if p.port < 0 || p.port > 65535 {
			return errors.New("E122").
				WithDetailf("%s must be between 0 and 65535, got %d", p.name, p.port)
		}
	}
	if c.Server.PortTries < 0 {
		return errors.New("E122").WithDetail("server.portTries must not be negative")
	}
	if c.RelayServer.MaxMembers < 0 {
		return errors.New("E122").WithDetail("relayServer.maxMembers must not be negative")
	}

	durations := []struct {
		name  string
		value string
		min   time.Duration
	}{
		{"sync.timeout", c.Sync.Timeout, time.Millisecond},
		{"snapshot.autosave", c.Snapshot.Autosave, 0},
		{"relay.maxReconnect", c.Relay.MaxReconnect, 0},
		{"relayServer.keepAlive", c.RelayServer.KeepAlive, 0},
	}
	for _, d := range durations {
		if d.value == "" {
			continue
		}
		v, err := parseDuration(d.value)
		if err != nil || v < d.min {
			return errors.New("E122").
				WithDetailf("%s: invalid duration %q", d.name, d.value)
		}
	}

	switch strings.ToLower(c.Log.Format) {
	case "", "text", "json":
	default:
		return errors.New("E122").WithDetailf("log.format must be text or json, got %q", c.Log.Format)
	}
	switch strings.ToLower(c.Log.Level) {
	case "", "debug", "info", "warn", "error":
	default:
		return errors.New("E122").WithDetailf("log.level %q is not a level", c.Log.Level)
	}
	return nil
}

// SyncTimeout returns the parsed sync timeout.
func (c *Config) SyncTimeout() time.Duration {
	d, err := parseDuration(c.Sync.Timeout)
	if err != nil || d <= 0 {
		d, _ = time.ParseDuration(DefaultSyncTimeout)
	}
	return d
}

// AutosaveInterval returns the parsed autosave interval; zero disables it.
func (c *Config) AutosaveInterval() time.Duration {
	d, err := parseDuration(c.Snapshot.Autosave)
	if err != nil || d < 0 {
		return 0
	}
	return d
}

// MaxReconnect returns the total reconnect budget; zero means unbounded.
func (c *Config) MaxReconnect() time.Duration {
	d, err := parseDuration(c.Relay.MaxReconnect)
	if err != nil || d < 0 {
		return 0
	}
	return d
}

// RelayKeepAlive returns the relay TCPSYN interval. Zero means the relay
// default and a negative value disables keepalive.
func (c *Config) RelayKeepAlive() time.Duration {
	if c.RelayServer.KeepAlive == "" {
		return 0
	}
	d, err := parseDuration(c.RelayServer.KeepAlive)
	if err != nil || d <= 0 {
		return -1
	}
	return d
}

// parseDuration accepts Go durations and a bare "0".
func parseDuration(s string) (time.Duration, error) {
	if s == "0" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("config: %w", err)
	}
	return d, nil
}

// Exists checks if a config file exists in the given directory.
func Exists(dir string) bool {
	_, err := os.Stat(filepath.Join(dir, ConfigFileName))
	return err == nil
}
