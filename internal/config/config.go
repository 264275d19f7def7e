package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration shared by the daemon and the CLI.
type Paths struct {
	StateDir string `toml:"state_dir"`
	LogDir   string `toml:"log_dir"`
}

// Capture contains configuration for stream acquisition, mixing, and encoding.
type Capture struct {
	FFmpegBinary string `toml:"ffmpeg_binary"`
	PactlBinary  string `toml:"pactl_binary"`
	SampleRate   int    `toml:"sample_rate"`
	FrameMillis  int    `toml:"frame_ms"`
	// MicSource is the pulse source used for the microphone. "default" selects
	// the server default input.
	MicSource string `toml:"mic_source"`
	// Playback routes the tab audio back to the default output while recording.
	Playback    bool   `toml:"playback"`
	MicBufferMS int    `toml:"mic_buffer_ms"`
	Codec       string `toml:"codec"`
	Bitrate     string `toml:"bitrate"`
}

// Permission contains configuration for the microphone consent gate.
type Permission struct {
	GateTimeout int `toml:"gate_timeout"`
	// SettleDelayMillis is how long the gate stays visible after a grant.
	SettleDelayMillis int `toml:"settle_delay_ms"`
}

// Sink contains configuration for the artifact upload target.
type Sink struct {
	Kind    string `toml:"kind"`
	URL     string `toml:"url"`
	Token   string `toml:"token"`
	Timeout int    `toml:"timeout"`
	Bucket  string `toml:"bucket"`
	Prefix  string `toml:"prefix"`
	Region  string `toml:"region"`
	// Endpoint points the S3 sink at an S3-compatible service. Path-style
	// addressing is used whenever it is set.
	Endpoint        string `toml:"endpoint"`
	AccessKeyID     string `toml:"access_key_id"`
	SecretAccessKey string `toml:"secret_access_key"`
}

// Auth contains configuration for the authenticated principal lookup.
type Auth struct {
	SessionFile string `toml:"session_file"`
}

// Meeting contains configuration for meeting address recognition.
type Meeting struct {
	Hosts []string `toml:"hosts"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format     string `toml:"format"`
	Level      string `toml:"level"`
	MaxSizeMB  int    `toml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups"`
}

// Config encapsulates all configuration values for mia.
//
// Configuration sections by subsystem:
//   - Paths: state database, socket, pid, and log locations
//   - Capture: ffmpeg/pactl binaries and PCM pipeline parameters
//   - Permission: consent gate timing
//   - Sink: where finalized recordings are handed off
//   - Auth: optional user identity for recording metadata
//   - Meeting: hosts recognized when deriving meeting identifiers
//   - Logging: log format, level, and rotation
type Config struct {
	Paths      Paths      `toml:"paths"`
	Capture    Capture    `toml:"capture"`
	Permission Permission `toml:"permission"`
	Sink       Sink       `toml:"sink"`
	Auth       Auth       `toml:"auth"`
	Meeting    Meeting    `toml:"meeting"`
	Logging    Logging    `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/mia/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("mia.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon and CLI operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.StateDir, c.Paths.LogDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// SocketPath returns the capture daemon's IPC socket.
func (c *Config) SocketPath() string {
	return filepath.Join(c.Paths.StateDir, "mia.sock")
}

// StateDBPath returns the SQLite database holding the shared state tokens.
func (c *Config) StateDBPath() string {
	return filepath.Join(c.Paths.StateDir, "state.db")
}

// LockPath returns the daemon single-instance lock file.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.StateDir, "mia.lock")
}

// PIDPath returns the daemon pid file.
func (c *Config) PIDPath() string {
	return filepath.Join(c.Paths.StateDir, "mia.pid")
}

// GateTimeout returns how long the controller waits on the consent gate.
func (c *Config) GateTimeout() time.Duration {
	return time.Duration(c.Permission.GateTimeout) * time.Second
}

// SettleDelay returns how long the consent gate stays open after a grant.
func (c *Config) SettleDelay() time.Duration {
	return time.Duration(c.Permission.SettleDelayMillis) * time.Millisecond
}

// SinkTimeout returns the upload deadline.
func (c *Config) SinkTimeout() time.Duration {
	return time.Duration(c.Sink.Timeout) * time.Second
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
