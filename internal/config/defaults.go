package config

const (
	defaultStateDir          = "~/.local/share/mia"
	defaultLogDir            = "~/.local/share/mia/logs"
	defaultFFmpegBinary      = "ffmpeg"
	defaultPactlBinary       = "pactl"
	defaultSampleRate        = 48000
	defaultFrameMillis       = 20
	defaultMicSource         = "default"
	defaultMicBufferMS       = 500
	defaultCodec             = "libopus"
	defaultBitrate           = "64k"
	defaultGateTimeout       = 120
	defaultSettleDelayMillis = 2000
	defaultSinkTimeout       = 120
	defaultSessionFile       = "~/.config/mia/session.json"
	defaultLogFormat         = "console"
	defaultLogLevel          = "info"
	defaultLogMaxSizeMB      = 20
	defaultLogMaxBackups     = 5
)

var defaultMeetingHosts = []string{"meet.google.com", "meet.example"}

// Default returns a Config populated with repository defaults.
func Default() Config {
	hosts := make([]string, len(defaultMeetingHosts))
	copy(hosts, defaultMeetingHosts)
	return Config{
		Paths: Paths{
			StateDir: defaultStateDir,
			LogDir:   defaultLogDir,
		},
		Capture: Capture{
			FFmpegBinary: defaultFFmpegBinary,
			PactlBinary:  defaultPactlBinary,
			SampleRate:   defaultSampleRate,
			FrameMillis:  defaultFrameMillis,
			MicSource:    defaultMicSource,
			Playback:     true,
			MicBufferMS:  defaultMicBufferMS,
			Codec:        defaultCodec,
			Bitrate:      defaultBitrate,
		},
		Permission: Permission{
			GateTimeout:       defaultGateTimeout,
			SettleDelayMillis: defaultSettleDelayMillis,
		},
		Sink: Sink{
			Timeout: defaultSinkTimeout,
		},
		Auth: Auth{
			SessionFile: defaultSessionFile,
		},
		Meeting: Meeting{
			Hosts: hosts,
		},
		Logging: Logging{
			Format:     defaultLogFormat,
			Level:      defaultLogLevel,
			MaxSizeMB:  defaultLogMaxSizeMB,
			MaxBackups: defaultLogMaxBackups,
		},
	}
}
