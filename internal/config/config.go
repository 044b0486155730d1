package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains storage locations.
type Paths struct {
	DataDir  string `toml:"data_dir"`
	MediaDir string `toml:"media_dir"`
	TempDir  string `toml:"temp_dir"`
	LogDir   string `toml:"log_dir"`
}

// Media contains the external encoder and prober settings.
type Media struct {
	FFmpegBinary        string `toml:"ffmpeg_binary"`
	FFprobeBinary       string `toml:"ffprobe_binary"`
	ProbeTimeoutSeconds int    `toml:"probe_timeout_seconds"`
}

// Transcode contains the default resolution ladder applied to uploads.
type Transcode struct {
	Ladder []string `toml:"ladder"`
}

// Thumbnail contains still extraction settings.
type Thumbnail struct {
	OffsetSeconds float64 `toml:"offset_seconds"`
	Width         int     `toml:"width"`
	Height        int     `toml:"height"`
	Quality       int     `toml:"quality"`
}

// Subtitles contains speech-to-text configuration.
type Subtitles struct {
	// Provider selects the speech backend: "whisperx" or "static".
	Provider            string `toml:"provider"`
	DefaultLanguage     string `toml:"default_language"`
	WhisperXModel       string `toml:"whisperx_model"`
	WhisperXCUDAEnabled bool   `toml:"whisperx_cuda_enabled"`
	WhisperXVADMethod   string `toml:"whisperx_vad_method"`
	WhisperXHuggingFace string `toml:"whisperx_hf_token"`
}

// QueueSettings tunes one job queue.
type QueueSettings struct {
	Concurrency        int     `toml:"concurrency"`
	MaxAttempts        int     `toml:"max_attempts"`
	BackoffBaseSeconds float64 `toml:"backoff_base_seconds"`
}

// Jobs contains worker pool timing and per-queue settings.
type Jobs struct {
	PollInterval      int           `toml:"poll_interval"`
	HeartbeatInterval int           `toml:"heartbeat_interval"`
	HeartbeatTimeout  int           `toml:"heartbeat_timeout"`
	Transcode         QueueSettings `toml:"transcode"`
	Subtitle          QueueSettings `toml:"subtitle"`
	Metadata          QueueSettings `toml:"metadata"`
	Thumbnail         QueueSettings `toml:"thumbnail"`
}

// Housekeeping contains cron specs for daemon maintenance tasks.
type Housekeeping struct {
	Enabled       bool   `toml:"enabled"`
	StallSweep    string `toml:"stall_sweep"`
	OverdueReport string `toml:"overdue_report"`
}

// Ops contains the operational HTTP endpoint settings.
type Ops struct {
	Enabled bool   `toml:"enabled"`
	Bind    string `toml:"bind"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for mediaflow.
//
// Configuration sections by subsystem:
//   - Paths: database, media output, scratch and log directories
//   - Media: ffmpeg/ffprobe binaries
//   - Transcode: default resolution ladder
//   - Thumbnail: still offset and bounding box
//   - Subtitles: speech provider selection and WhisperX settings
//   - Jobs: per-queue concurrency, retry budget, backoff and heartbeats
//   - Housekeeping: scheduled stall sweep and overdue review report
//   - Ops: health and metrics endpoint
//   - Logging: log format and level
type Config struct {
	Paths        Paths        `toml:"paths"`
	Media        Media        `toml:"media"`
	Transcode    Transcode    `toml:"transcode"`
	Thumbnail    Thumbnail    `toml:"thumbnail"`
	Subtitles    Subtitles    `toml:"subtitles"`
	Jobs         Jobs         `toml:"jobs"`
	Housekeeping Housekeeping `toml:"housekeeping"`
	Ops          Ops          `toml:"ops"`
	Logging      Logging      `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/mediaflow/config.toml")
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
	projectPath, err := filepath.Abs("mediaflow.toml")
	if err != nil {
		return "", false, err
	}

	for _, candidate := range []string{defaultPath, projectPath} {
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, true, nil
		}
	}
	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon and CLI operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DataDir, c.Paths.MediaDir, c.Paths.TempDir, c.Paths.LogDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// DatabasePath returns the SQLite database location.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.Paths.DataDir, "mediaflow.db")
}

// LockPath returns the daemon single-instance lock location.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.DataDir, "mediaflow.lock")
}

// Queue returns the settings for the named queue.
func (j Jobs) Queue(name string) (QueueSettings, bool) {
	switch name {
	case "transcode":
		return j.Transcode, true
	case "subtitle":
		return j.Subtitle, true
	case "metadata":
		return j.Metadata, true
	case "thumbnail":
		return j.Thumbnail, true
	default:
		return QueueSettings{}, false
	}
}

func (j *Jobs) queues() map[string]*QueueSettings {
	return map[string]*QueueSettings{
		"transcode": &j.Transcode,
		"subtitle":  &j.Subtitle,
		"metadata":  &j.Metadata,
		"thumbnail": &j.Thumbnail,
	}
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
