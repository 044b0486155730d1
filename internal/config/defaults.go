package config

const (
	defaultDataDir                = "~/.local/share/mediaflow"
	defaultMediaDir               = "~/.local/share/mediaflow/media"
	defaultTempDir                = "~/.local/share/mediaflow/tmp"
	defaultLogDir                 = "~/.local/share/mediaflow/logs"
	defaultFFmpegBinary           = "ffmpeg"
	defaultFFprobeBinary          = "ffprobe"
	defaultProbeTimeoutSeconds    = 60
	defaultThumbnailOffset        = 10.0
	defaultThumbnailWidth         = 640
	defaultThumbnailHeight        = 360
	defaultThumbnailQuality       = 85
	defaultSubtitleProvider       = "whisperx"
	defaultSubtitleLanguage       = "en"
	defaultWhisperXModel          = "large-v3"
	defaultWhisperXVADMethod      = "silero"
	defaultPollInterval           = 5
	defaultHeartbeatInterval      = 15
	defaultHeartbeatTimeout       = 120
	defaultHousekeepingStallSweep = "@every 1m"
	defaultHousekeepingOverdue    = "0 7 * * *"
	defaultOpsBind                = "127.0.0.1:7488"
	defaultLogFormat              = "console"
	defaultLogLevel               = "info"
)

var defaultLadder = []string{"1080p", "720p", "480p"}

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir:  defaultDataDir,
			MediaDir: defaultMediaDir,
			TempDir:  defaultTempDir,
			LogDir:   defaultLogDir,
		},
		Media: Media{
			FFmpegBinary:        defaultFFmpegBinary,
			FFprobeBinary:       defaultFFprobeBinary,
			ProbeTimeoutSeconds: defaultProbeTimeoutSeconds,
		},
		Transcode: Transcode{
			Ladder: append([]string(nil), defaultLadder...),
		},
		Thumbnail: Thumbnail{
			OffsetSeconds: defaultThumbnailOffset,
			Width:         defaultThumbnailWidth,
			Height:        defaultThumbnailHeight,
			Quality:       defaultThumbnailQuality,
		},
		Subtitles: Subtitles{
			Provider:          defaultSubtitleProvider,
			DefaultLanguage:   defaultSubtitleLanguage,
			WhisperXModel:     defaultWhisperXModel,
			WhisperXVADMethod: defaultWhisperXVADMethod,
		},
		Jobs: Jobs{
			PollInterval:      defaultPollInterval,
			HeartbeatInterval: defaultHeartbeatInterval,
			HeartbeatTimeout:  defaultHeartbeatTimeout,
			Transcode:         QueueSettings{Concurrency: 1, MaxAttempts: 3, BackoffBaseSeconds: 2},
			Subtitle:          QueueSettings{Concurrency: 1, MaxAttempts: 2, BackoffBaseSeconds: 5},
			Metadata:          QueueSettings{Concurrency: 4, MaxAttempts: 2, BackoffBaseSeconds: 3},
			Thumbnail:         QueueSettings{Concurrency: 2, MaxAttempts: 2, BackoffBaseSeconds: 2},
		},
		Housekeeping: Housekeeping{
			Enabled:       true,
			StallSweep:    defaultHousekeepingStallSweep,
			OverdueReport: defaultHousekeepingOverdue,
		},
		Ops: Ops{
			Enabled: true,
			Bind:    defaultOpsBind,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
