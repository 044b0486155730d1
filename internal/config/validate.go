package config

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
)

var rungPattern = regexp.MustCompile(`^[0-9]{3,4}p$`)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateTranscode(); err != nil {
		return err
	}
	if err := c.validateThumbnail(); err != nil {
		return err
	}
	if err := c.validateSubtitles(); err != nil {
		return err
	}
	if err := c.validateJobs(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePaths() error {
	if c.Paths.DataDir == "" {
		return errors.New("paths.data_dir must be set")
	}
	if c.Paths.MediaDir == "" {
		return errors.New("paths.media_dir must be set")
	}
	return nil
}

func (c *Config) validateTranscode() error {
	for _, rung := range c.Transcode.Ladder {
		if !rungPattern.MatchString(rung) {
			return fmt.Errorf("transcode.ladder: invalid rung %q (expected e.g. 720p)", rung)
		}
	}
	return nil
}

func (c *Config) validateThumbnail() error {
	if c.Thumbnail.OffsetSeconds < 0 {
		return errors.New("thumbnail.offset_seconds must be >= 0")
	}
	if c.Thumbnail.Width <= 0 || c.Thumbnail.Height <= 0 {
		return errors.New("thumbnail.width and thumbnail.height must be positive")
	}
	if c.Thumbnail.Quality < 1 || c.Thumbnail.Quality > 100 {
		return errors.New("thumbnail.quality must be between 1 and 100")
	}
	return nil
}

func (c *Config) validateSubtitles() error {
	switch c.Subtitles.Provider {
	case "whisperx", "static":
	default:
		return fmt.Errorf("subtitles.provider: unsupported value %q", c.Subtitles.Provider)
	}
	switch c.Subtitles.WhisperXVADMethod {
	case "silero", "pyannote":
	default:
		return fmt.Errorf("subtitles.whisperx_vad_method: unsupported value %q", c.Subtitles.WhisperXVADMethod)
	}
	return nil
}

func (c *Config) validateJobs() error {
	if c.Jobs.HeartbeatInterval <= 0 {
		return errors.New("jobs.heartbeat_interval must be positive")
	}
	if c.Jobs.HeartbeatTimeout <= 0 {
		return errors.New("jobs.heartbeat_timeout must be positive")
	}
	if c.Jobs.HeartbeatTimeout <= c.Jobs.HeartbeatInterval {
		return errors.New("jobs.heartbeat_timeout must be greater than jobs.heartbeat_interval")
	}
	queues := c.Jobs.queues()
	names := make([]string, 0, len(queues))
	for name := range queues {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		settings := queues[name]
		if settings.Concurrency <= 0 {
			return fmt.Errorf("jobs.%s.concurrency must be positive", name)
		}
		if settings.MaxAttempts <= 0 {
			return fmt.Errorf("jobs.%s.max_attempts must be positive", name)
		}
		if settings.BackoffBaseSeconds < 0 {
			return fmt.Errorf("jobs.%s.backoff_base_seconds must be >= 0", name)
		}
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
	return nil
}
