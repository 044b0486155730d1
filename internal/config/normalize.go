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
	c.normalizeMedia()
	c.normalizeTranscode()
	c.normalizeSubtitles()
	c.normalizeJobs()
	c.normalizeOps()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		c.Paths.DataDir = defaultDataDir
	}
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.MediaDir) == "" {
		c.Paths.MediaDir = defaultMediaDir
	}
	if c.Paths.MediaDir, err = expandPath(c.Paths.MediaDir); err != nil {
		return fmt.Errorf("paths.media_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.TempDir) == "" {
		c.Paths.TempDir = defaultTempDir
	}
	if c.Paths.TempDir, err = expandPath(c.Paths.TempDir); err != nil {
		return fmt.Errorf("paths.temp_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeMedia() {
	c.Media.FFmpegBinary = strings.TrimSpace(c.Media.FFmpegBinary)
	if c.Media.FFmpegBinary == "" {
		c.Media.FFmpegBinary = defaultFFmpegBinary
	}
	c.Media.FFprobeBinary = strings.TrimSpace(c.Media.FFprobeBinary)
	if c.Media.FFprobeBinary == "" {
		c.Media.FFprobeBinary = defaultFFprobeBinary
	}
	if c.Media.ProbeTimeoutSeconds <= 0 {
		c.Media.ProbeTimeoutSeconds = defaultProbeTimeoutSeconds
	}
}

func (c *Config) normalizeTranscode() {
	rungs := make([]string, 0, len(c.Transcode.Ladder))
	seen := make(map[string]struct{}, len(c.Transcode.Ladder))
	for _, rung := range c.Transcode.Ladder {
		normalized := strings.ToLower(strings.TrimSpace(rung))
		if normalized == "" {
			continue
		}
		if _, exists := seen[normalized]; exists {
			continue
		}
		seen[normalized] = struct{}{}
		rungs = append(rungs, normalized)
	}
	if len(rungs) == 0 {
		rungs = append(rungs, defaultLadder...)
	}
	c.Transcode.Ladder = rungs
}

func (c *Config) normalizeSubtitles() {
	c.Subtitles.Provider = strings.ToLower(strings.TrimSpace(c.Subtitles.Provider))
	if c.Subtitles.Provider == "" {
		c.Subtitles.Provider = defaultSubtitleProvider
	}
	c.Subtitles.DefaultLanguage = strings.TrimSpace(c.Subtitles.DefaultLanguage)
	if c.Subtitles.DefaultLanguage == "" {
		c.Subtitles.DefaultLanguage = defaultSubtitleLanguage
	}
	c.Subtitles.WhisperXModel = strings.TrimSpace(c.Subtitles.WhisperXModel)
	if c.Subtitles.WhisperXModel == "" {
		c.Subtitles.WhisperXModel = defaultWhisperXModel
	}
	c.Subtitles.WhisperXVADMethod = strings.ToLower(strings.TrimSpace(c.Subtitles.WhisperXVADMethod))
	if c.Subtitles.WhisperXVADMethod == "" {
		c.Subtitles.WhisperXVADMethod = defaultWhisperXVADMethod
	}
	c.Subtitles.WhisperXHuggingFace = strings.TrimSpace(c.Subtitles.WhisperXHuggingFace)
	if c.Subtitles.WhisperXHuggingFace == "" {
		for _, key := range []string{"MEDIAFLOW_HF_TOKEN", "HUGGING_FACE_HUB_TOKEN", "HF_TOKEN"} {
			if value, ok := os.LookupEnv(key); ok && strings.TrimSpace(value) != "" {
				c.Subtitles.WhisperXHuggingFace = strings.TrimSpace(value)
				break
			}
		}
	}
}

func (c *Config) normalizeJobs() {
	if c.Jobs.PollInterval <= 0 {
		c.Jobs.PollInterval = defaultPollInterval
	}
	if c.Jobs.HeartbeatInterval == 0 {
		c.Jobs.HeartbeatInterval = defaultHeartbeatInterval
	}
	if c.Jobs.HeartbeatTimeout == 0 {
		c.Jobs.HeartbeatTimeout = defaultHeartbeatTimeout
	}
	defaults := Default().Jobs
	for name, settings := range c.Jobs.queues() {
		fallback, _ := defaults.Queue(name)
		if settings.Concurrency == 0 {
			settings.Concurrency = fallback.Concurrency
		}
		if settings.MaxAttempts == 0 {
			settings.MaxAttempts = fallback.MaxAttempts
		}
	}
}

func (c *Config) normalizeOps() {
	c.Ops.Bind = strings.TrimSpace(c.Ops.Bind)
	if c.Ops.Bind == "" {
		c.Ops.Bind = defaultOpsBind
	}
	c.Housekeeping.StallSweep = strings.TrimSpace(c.Housekeeping.StallSweep)
	c.Housekeeping.OverdueReport = strings.TrimSpace(c.Housekeeping.OverdueReport)
}

func (c *Config) normalizeLogging() {
	if value, ok := os.LookupEnv("MEDIAFLOW_LOG_LEVEL"); ok && strings.TrimSpace(value) != "" {
		c.Logging.Level = value
	}
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
