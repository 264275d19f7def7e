package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateCapture(); err != nil {
		return err
	}
	if err := c.validatePermission(); err != nil {
		return err
	}
	if err := c.validateSink(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateCapture() error {
	if err := ensurePositiveMap(map[string]int{
		"capture.sample_rate":   c.Capture.SampleRate,
		"capture.frame_ms":      c.Capture.FrameMillis,
		"capture.mic_buffer_ms": c.Capture.MicBufferMS,
	}); err != nil {
		return err
	}
	if c.Capture.FrameMillis > 1000 {
		return errors.New("capture.frame_ms must not exceed 1000")
	}
	if c.Capture.MicBufferMS < c.Capture.FrameMillis {
		return errors.New("capture.mic_buffer_ms must be at least capture.frame_ms")
	}
	return nil
}

func (c *Config) validatePermission() error {
	if c.Permission.GateTimeout <= 0 {
		return errors.New("permission.gate_timeout must be positive (seconds)")
	}
	if c.Permission.SettleDelayMillis < 0 {
		return errors.New("permission.settle_delay_ms must not be negative")
	}
	return nil
}

func (c *Config) validateSink() error {
	switch c.Sink.Kind {
	case "", "none":
		return nil
	case "http":
		if c.Sink.URL == "" {
			return errors.New("sink.url must be set when sink.kind is \"http\" (or set MIA_SINK_URL)")
		}
		if !strings.HasPrefix(c.Sink.URL, "http://") && !strings.HasPrefix(c.Sink.URL, "https://") {
			return fmt.Errorf("sink.url must be an http(s) URL, got %q", c.Sink.URL)
		}
	case "s3":
		if strings.TrimSpace(c.Sink.Bucket) == "" {
			return errors.New("sink.bucket must be set when sink.kind is \"s3\"")
		}
		if (c.Sink.AccessKeyID == "") != (c.Sink.SecretAccessKey == "") {
			return errors.New("sink.access_key_id and sink.secret_access_key must be set together")
		}
	default:
		return fmt.Errorf("sink.kind: unsupported value %q (want http, s3, or none)", c.Sink.Kind)
	}
	if c.Sink.Timeout <= 0 {
		return errors.New("sink.timeout must be positive (seconds)")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
	if c.Logging.MaxSizeMB < 0 || c.Logging.MaxBackups < 0 {
		return errors.New("logging.max_size_mb and logging.max_backups must not be negative")
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
