/*
Package config implements command line argument, environment and config file parsing.
*/
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
	flags "github.com/jessevdk/go-flags"
)

const (
	MinSegmentSeconds     = 60
	MaxSegmentSeconds     = 3600
	DefaultSegmentSeconds = 600
)

// Config is built once at startup and handed to components by value.
type Config struct {
	ConfigPath string `short:"c" long:"config" description:"Path to a TOML config file" toml:"-"`
	AppHash    string `long:"app_hash" env:"GIT_HASH" description:"Build hash attached to every log line" toml:"-"`
	LogLevel   string `long:"log_level" description:"debug, info, warn or error" toml:"log_level"`

	HTTPAddr string `long:"http_addr" description:"HTTP listen address" toml:"http_addr"`
	APIKey   string `long:"api_key" env:"TRANSCRIBE_API_KEY" description:"Required X-API-Key value (empty disables the check)" toml:"api_key"`

	UploadDir     string `long:"upload_dir" description:"Directory for uploaded audio and chunk directories" toml:"upload_dir"`
	DataDir       string `long:"data_dir" description:"Directory for JSON job records when no database is configured" toml:"data_dir"`
	DatabaseURL   string `long:"database_url" env:"DATABASE_URL" description:"PostgreSQL connection string" toml:"database_url"`
	MaxFileSizeMB int64  `long:"max_file_size_mb" description:"Maximum accepted upload size" toml:"max_file_size_mb"`

	Workers       int `long:"workers" description:"Number of concurrent job workers" toml:"workers"`
	QueueCapacity int `long:"queue_capacity" description:"Pending jobs accepted before callers are pushed back" toml:"queue_capacity"`
	EnqueueWaitMS int `long:"enqueue_wait_ms" description:"How long a request waits for queue space" toml:"enqueue_wait_ms"`

	FFmpegPath            string `long:"ffmpeg_path" env:"FFMPEG_PATH" description:"ffmpeg binary" toml:"ffmpeg_path"`
	DefaultSegmentSeconds int    `long:"default_segment_seconds" description:"Chunk length when a request does not set one" toml:"default_segment_seconds"`

	Whisper Whisper `group:"Whisper" toml:"whisper"`
	Cleanup Cleanup `group:"Cleanup" toml:"cleanup"`
}

type Whisper struct {
	APIKey         string `long:"openai_api_key" env:"OPENAI_API_KEY" description:"OpenAI API key" toml:"api_key"`
	URL            string `long:"whisper_url" description:"Transcription endpoint" toml:"url"`
	Model          string `long:"whisper_model" description:"Transcription model" toml:"model"`
	TimeoutSeconds int    `long:"whisper_timeout_seconds" description:"Deadline for one chunk transcription call" toml:"timeout_seconds"`
}

type Cleanup struct {
	Enabled            bool `long:"cleanup_enabled" description:"Run retention sweeps" toml:"enabled"`
	RetentionDays      int  `long:"retention_days" description:"Delete jobs older than this" toml:"retention_days"`
	ErrorRetentionDays int  `long:"error_retention_days" description:"Delete failed jobs older than this" toml:"error_retention_days"`
	OldJobsEveryHours  int  `long:"old_jobs_every_hours" toml:"old_jobs_every_hours"`
	OrphansEveryHours  int  `long:"orphans_every_hours" toml:"orphans_every_hours"`
	ChunksEveryHours   int  `long:"chunks_every_hours" toml:"chunks_every_hours"`
	ReportEveryHours   int  `long:"report_every_hours" toml:"report_every_hours"`
}

// Default returns the configuration used when nothing overrides it.
func Default() Config {
	return Config{
		LogLevel:              "info",
		HTTPAddr:              ":8080",
		UploadDir:             "uploads",
		DataDir:               ".data",
		MaxFileSizeMB:         500,
		Workers:               4,
		QueueCapacity:         100,
		EnqueueWaitMS:         2000,
		FFmpegPath:            "ffmpeg",
		DefaultSegmentSeconds: DefaultSegmentSeconds,
		Whisper: Whisper{
			URL:            "https://api.openai.com/v1/audio/transcriptions",
			Model:          "whisper-1",
			TimeoutSeconds: 600,
		},
		Cleanup: Cleanup{
			Enabled:            true,
			RetentionDays:      7,
			ErrorRetentionDays: 3,
			OldJobsEveryHours:  24,
			OrphansEveryHours:  6,
			ChunksEveryHours:   1,
			ReportEveryHours:   24,
		},
	}
}

// Load resolves defaults, then the TOML file, then environment, then flags.
func Load(args []string) (Config, error) {
	cfg := Default()

	var pre struct {
		ConfigPath string `short:"c" long:"config"`
	}
	preParser := flags.NewParser(&pre, flags.IgnoreUnknown)
	if _, err := preParser.ParseArgs(args); err != nil {
		return Config{}, fmt.Errorf("config: failed to parse flags: %w", err)
	}
	if pre.ConfigPath != "" {
		if err := LoadFile(pre.ConfigPath, &cfg); err != nil {
			return Config{}, err
		}
	}

	parser := flags.NewParser(&cfg, flags.HelpFlag|flags.PassDoubleDash)
	if _, err := parser.ParseArgs(args); err != nil {
		var flagsErr *flags.Error
		if errors.As(err, &flagsErr) && flagsErr.Type == flags.ErrHelp {
			fmt.Fprintln(os.Stdout, flagsErr.Message)
			os.Exit(0)
		}
		return Config{}, fmt.Errorf("config: failed to parse flags: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadFile decodes a TOML file on top of cfg.
func LoadFile(path string, cfg *Config) error {
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return fmt.Errorf("config: failed to decode %s: %w", path, err)
	}
	return nil
}

func (c Config) Validate() error {
	switch {
	case c.Workers < 1:
		return fmt.Errorf("config: workers must be at least 1, got %d", c.Workers)
	case c.QueueCapacity < 1:
		return fmt.Errorf("config: queue_capacity must be at least 1, got %d", c.QueueCapacity)
	case c.DefaultSegmentSeconds < MinSegmentSeconds || c.DefaultSegmentSeconds > MaxSegmentSeconds:
		return fmt.Errorf("config: default_segment_seconds must be within [%d, %d], got %d",
			MinSegmentSeconds, MaxSegmentSeconds, c.DefaultSegmentSeconds)
	case c.UploadDir == "":
		return errors.New("config: upload_dir is required")
	case c.MaxFileSizeMB < 1:
		return fmt.Errorf("config: max_file_size_mb must be positive, got %d", c.MaxFileSizeMB)
	}
	return nil
}

func (c Config) MaxFileSizeBytes() int64 {
	return c.MaxFileSizeMB * 1024 * 1024
}

func (c Config) EnqueueWait() time.Duration {
	return time.Duration(c.EnqueueWaitMS) * time.Millisecond
}

func (w Whisper) Timeout() time.Duration {
	return time.Duration(w.TimeoutSeconds) * time.Second
}
