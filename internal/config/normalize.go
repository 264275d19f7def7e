package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeCapture()
	c.normalizeSink()
	if err := c.normalizeAuth(); err != nil {
		return err
	}
	c.normalizeMeeting()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		c.Paths.StateDir = defaultStateDir
	}
	if c.Paths.StateDir, err = expandPath(c.Paths.StateDir); err != nil {
		return fmt.Errorf("paths.state_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeCapture() {
	c.Capture.FFmpegBinary = strings.TrimSpace(c.Capture.FFmpegBinary)
	if c.Capture.FFmpegBinary == "" {
		c.Capture.FFmpegBinary = defaultFFmpegBinary
	}
	c.Capture.PactlBinary = strings.TrimSpace(c.Capture.PactlBinary)
	if c.Capture.PactlBinary == "" {
		c.Capture.PactlBinary = defaultPactlBinary
	}
	c.Capture.MicSource = strings.TrimSpace(c.Capture.MicSource)
	if c.Capture.MicSource == "" {
		c.Capture.MicSource = defaultMicSource
	}
	c.Capture.Codec = strings.TrimSpace(c.Capture.Codec)
	if c.Capture.Codec == "" {
		c.Capture.Codec = defaultCodec
	}
	c.Capture.Bitrate = strings.TrimSpace(c.Capture.Bitrate)
	if c.Capture.Bitrate == "" {
		c.Capture.Bitrate = defaultBitrate
	}
}

func (c *Config) normalizeSink() {
	c.Sink.Kind = strings.ToLower(strings.TrimSpace(c.Sink.Kind))
	if c.Sink.URL == "" {
		if value, ok := os.LookupEnv("MIA_SINK_URL"); ok {
			c.Sink.URL = value
		}
	}
	if c.Sink.Token == "" {
		if value, ok := os.LookupEnv("MIA_SINK_TOKEN"); ok {
			c.Sink.Token = value
		}
	}
	c.Sink.URL = strings.TrimSpace(c.Sink.URL)
	if c.Sink.Kind == "" && c.Sink.URL != "" {
		c.Sink.Kind = "http"
	}
	c.Sink.Prefix = strings.Trim(strings.TrimSpace(c.Sink.Prefix), "/")
}

func (c *Config) normalizeAuth() error {
	if strings.TrimSpace(c.Auth.SessionFile) == "" {
		return nil
	}
	var err error
	if c.Auth.SessionFile, err = expandPath(c.Auth.SessionFile); err != nil {
		return fmt.Errorf("auth.session_file: %w", err)
	}
	return nil
}

func (c *Config) normalizeMeeting() {
	hosts := make([]string, 0, len(c.Meeting.Hosts))
	seen := make(map[string]struct{}, len(c.Meeting.Hosts))
	for _, host := range c.Meeting.Hosts {
		host = strings.ToLower(strings.TrimSpace(host))
		if host == "" {
			continue
		}
		if _, ok := seen[host]; ok {
			continue
		}
		seen[host] = struct{}{}
		hosts = append(hosts, host)
	}
	c.Meeting.Hosts = hosts
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
