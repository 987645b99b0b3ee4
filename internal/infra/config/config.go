// Package config loads the static configuration structure from an
// external YAML file, with environment-variable overrides layered on top
// the same way the legacy configuration loader did: spf13/viper reading
// a file and then AutomaticEnv with a GONZB_ prefix.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// Config is the root static structure, parsed once at startup before the
// core starts; nothing in the core mutates it afterward except the
// Scheduler's live updates to speed limit and pause state, which flow
// through the rate limiter and supervisor rather than back into this
// struct.
type Config struct {
	DownloadDir             string   `mapstructure:"download_dir" yaml:"download_dir"`
	TempDir                 string   `mapstructure:"temp_dir" yaml:"temp_dir"`
	MaxConcurrentDownloads  int      `mapstructure:"max_concurrent_downloads" yaml:"max_concurrent_downloads"`
	SpeedLimitBps           int64    `mapstructure:"speed_limit_bps" yaml:"speed_limit_bps"`
	DefaultPostProcess      string   `mapstructure:"default_post_process" yaml:"default_post_process"`
	DeleteSamples           bool     `mapstructure:"delete_samples" yaml:"delete_samples"`
	FileCollision           string   `mapstructure:"file_collision" yaml:"file_collision"` // rename|overwrite|skip
	TryEmptyPassword        bool     `mapstructure:"try_empty_password" yaml:"try_empty_password"`
	UnrarPath               string   `mapstructure:"unrar_path" yaml:"unrar_path"`
	SevenZipPath            string   `mapstructure:"sevenzip_path" yaml:"sevenzip_path"`
	Par2Path                string   `mapstructure:"par2_path" yaml:"par2_path"`
	SearchPath              []string `mapstructure:"search_path" yaml:"search_path"`
	GlobalPasswordFile      string   `mapstructure:"global_password_file" yaml:"global_password_file"`

	Retry         RetryConfig         `mapstructure:"retry" yaml:"retry"`
	Extraction    ExtractionConfig    `mapstructure:"extraction" yaml:"extraction"`
	Deobfuscation DeobfuscationConfig `mapstructure:"deobfuscation" yaml:"deobfuscation"`
	Duplicate     DuplicateConfig     `mapstructure:"duplicate" yaml:"duplicate"`
	DiskSpace     DiskSpaceConfig     `mapstructure:"disk_space" yaml:"disk_space"`
	Cleanup       CleanupConfig       `mapstructure:"cleanup" yaml:"cleanup"`
	DirectUnpack  DirectUnpackConfig  `mapstructure:"direct_unpack" yaml:"direct_unpack"`

	Servers      []ServerConfig  `mapstructure:"servers" yaml:"servers"`
	WatchFolders []WatchFolder   `mapstructure:"watch_folders" yaml:"watch_folders"`
	RSSFeeds     []RSSFeed       `mapstructure:"rss_feeds" yaml:"rss_feeds"`
	Webhooks     []Webhook       `mapstructure:"webhooks" yaml:"webhooks"`
	Scripts      []string        `mapstructure:"scripts" yaml:"scripts"`

	Persistence PersistenceConfig `mapstructure:"persistence" yaml:"persistence"`

	Log  LogConfig `mapstructure:"log" yaml:"log"`
	Port string    `mapstructure:"port" yaml:"port"`
}

type RetryConfig struct {
	InitialDelaySecs  int     `mapstructure:"initial_delay_secs" yaml:"initial_delay_secs"`
	MaxDelaySecs      int     `mapstructure:"max_delay_secs" yaml:"max_delay_secs"`
	BackoffMultiplier float64 `mapstructure:"backoff_multiplier" yaml:"backoff_multiplier"`
	MaxAttempts       int     `mapstructure:"max_attempts" yaml:"max_attempts"`
	Jitter            bool    `mapstructure:"jitter" yaml:"jitter"`
}

type ExtractionConfig struct {
	Enabled           bool     `mapstructure:"enabled" yaml:"enabled"`
	DeleteArchives    bool     `mapstructure:"delete_archives" yaml:"delete_archives"`
	OverwriteExisting bool     `mapstructure:"overwrite_existing" yaml:"overwrite_existing"`
	ArchiveExtensions []string `mapstructure:"archive_extensions" yaml:"archive_extensions"`
	MaxRecursionDepth int      `mapstructure:"max_recursion_depth" yaml:"max_recursion_depth"`
}

type DeobfuscationConfig struct {
	Enabled   bool `mapstructure:"enabled" yaml:"enabled"`
	MinLength int  `mapstructure:"min_length" yaml:"min_length"`
}

type DuplicateConfig struct {
	Action  string   `mapstructure:"action" yaml:"action"` // block|warn|allow
	Methods []string `mapstructure:"methods" yaml:"methods"` // nzb_hash|nzb_name|job_name, tried in order
}

type DiskSpaceConfig struct {
	Enabled        bool    `mapstructure:"enabled" yaml:"enabled"`
	MinFreeBytes   int64   `mapstructure:"min_free_bytes" yaml:"min_free_bytes"`
	SizeMultiplier float64 `mapstructure:"size_multiplier" yaml:"size_multiplier"`
}

// CategoryConfig routes NZBs tagged with Name to a non-default
// destination directory and/or post-process mode. An empty Destination
// or PostProcess falls back to the top-level default.
type CategoryConfig struct {
	Name        string `mapstructure:"name" yaml:"name"`
	Destination string `mapstructure:"destination" yaml:"destination"`
	PostProcess string `mapstructure:"post_process" yaml:"post_process"`
}

type CleanupConfig struct {
	TargetExtensions  []string `mapstructure:"target_extensions" yaml:"target_extensions"`
	ArchiveExtensions []string `mapstructure:"archive_extensions" yaml:"archive_extensions"`
	SampleFolderNames []string `mapstructure:"sample_folder_names" yaml:"sample_folder_names"`
}

type DirectUnpackConfig struct {
	Enabled        bool `mapstructure:"enabled" yaml:"enabled"`
	MinMarginPct   int  `mapstructure:"min_free_margin_pct" yaml:"min_free_margin_pct"`
	DirectRename   bool `mapstructure:"direct_rename" yaml:"direct_rename"`
	PollIntervalMs int  `mapstructure:"poll_interval_ms" yaml:"poll_interval_ms"`
}

type ServerConfig struct {
	ID            string `mapstructure:"id" yaml:"id"`
	Host          string `mapstructure:"host" yaml:"host"`
	Port          int    `mapstructure:"port" yaml:"port"`
	Username      string `mapstructure:"username" yaml:"username"`
	Password      string `mapstructure:"password" yaml:"password"`
	TLS           bool   `mapstructure:"tls" yaml:"tls"`
	MaxConnection int    `mapstructure:"max_connections" yaml:"max_connections"`
	PipelineDepth int    `mapstructure:"pipeline_depth" yaml:"pipeline_depth"`
	Priority      int    `mapstructure:"priority" yaml:"priority"`
}

type WatchFolder struct {
	Path     string `mapstructure:"path" yaml:"path"`
	Category string `mapstructure:"category" yaml:"category"`
}

type RSSFeed struct {
	ID       string `mapstructure:"id" yaml:"id"`
	URL      string `mapstructure:"url" yaml:"url"`
	Category string `mapstructure:"category" yaml:"category"`
}

type Webhook struct {
	URL    string   `mapstructure:"url" yaml:"url"`
	Events []string `mapstructure:"events" yaml:"events"`
}

type ScheduleRule struct {
	Name      string   `mapstructure:"name" yaml:"name"`
	Days      []string `mapstructure:"days" yaml:"days"` // empty == all days
	StartTime string   `mapstructure:"start_time" yaml:"start_time"`
	EndTime   string   `mapstructure:"end_time" yaml:"end_time"`
	Enabled   bool     `mapstructure:"enabled" yaml:"enabled"`
	Action    string   `mapstructure:"action" yaml:"action"` // speed_limit|unlimited|pause
	LimitBps  int64    `mapstructure:"limit_bps" yaml:"limit_bps"`
}

type PersistenceConfig struct {
	DatabasePath  string           `mapstructure:"database_path" yaml:"database_path"`
	ScheduleRules []ScheduleRule   `mapstructure:"schedule_rules" yaml:"schedule_rules"`
	Categories    []CategoryConfig `mapstructure:"categories" yaml:"categories"`
	BlobDir       string           `mapstructure:"blob_dir" yaml:"blob_dir"`

	// PostgresMirrorDSN, if set, archives completed-job History rows to a
	// remote Postgres database in addition to the local SQLite store.
	// Empty (the default) disables the mirror entirely.
	PostgresMirrorDSN string `mapstructure:"postgres_mirror_dsn" yaml:"postgres_mirror_dsn"`
}

type LogConfig struct {
	Path          string `mapstructure:"path" yaml:"path"`
	Level         string `mapstructure:"level" yaml:"level"`
	IncludeStdout bool   `mapstructure:"include_stdout" yaml:"include_stdout"`
}

// Load reads path (defaulting to config.yaml, with a Docker fallback to
// /config/config.yaml) and layers GONZB_-prefixed environment variables
// on top.
func Load(path string) (*Config, error) {
	if path == "" {
		path = "config.yaml"
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		if path == "config.yaml" {
			if _, errEx := os.Stat("/config/config.yaml"); errEx == nil {
				path = "/config/config.yaml"
			} else if _, errEx := os.Stat("config.yaml.example"); errEx == nil {
				return nil, fmt.Errorf("configuration file 'config.yaml' not found\n\n" +
					"To fix this, run:\n" +
					"  cp config.yaml.example config.yaml\n" +
					"Then edit it with your Usenet credentials.")
			} else {
				return nil, fmt.Errorf("config file not found: %s", path)
			}
		} else {
			return nil, fmt.Errorf("config file not found: %s", path)
		}
	}

	v := viper.New()

	v.SetDefault("port", "8080")
	v.SetDefault("download_dir", "./downloads")
	v.SetDefault("temp_dir", "./downloads/.incomplete")
	v.SetDefault("max_concurrent_downloads", 3)
	v.SetDefault("default_post_process", "unpack")
	v.SetDefault("file_collision", "rename")
	v.SetDefault("try_empty_password", true)
	v.SetDefault("retry.initial_delay_secs", 1)
	v.SetDefault("retry.max_delay_secs", 30)
	v.SetDefault("retry.backoff_multiplier", 2.0)
	v.SetDefault("retry.max_attempts", 5)
	v.SetDefault("retry.jitter", true)
	v.SetDefault("extraction.enabled", true)
	v.SetDefault("extraction.archive_extensions", []string{"rar", "zip", "7z"})
	v.SetDefault("extraction.max_recursion_depth", 2)
	v.SetDefault("deobfuscation.enabled", true)
	v.SetDefault("deobfuscation.min_length", 24)
	v.SetDefault("duplicate.action", "warn")
	v.SetDefault("duplicate.methods", []string{"nzb_hash", "nzb_name", "job_name"})
	v.SetDefault("disk_space.enabled", true)
	v.SetDefault("disk_space.size_multiplier", 1.1)
	v.SetDefault("disk_space.min_free_bytes", int64(1<<30))
	v.SetDefault("cleanup.target_extensions", []string{"nzb", "par2", "sfv", "nfo"})
	v.SetDefault("cleanup.archive_extensions", []string{"rar", "zip", "7z", "r00"})
	v.SetDefault("cleanup.sample_folder_names", []string{"sample", "samples", "proof"})
	v.SetDefault("direct_unpack.enabled", true)
	v.SetDefault("direct_unpack.min_free_margin_pct", 10)
	v.SetDefault("direct_unpack.direct_rename", true)
	v.SetDefault("direct_unpack.poll_interval_ms", 200)
	v.SetDefault("persistence.database_path", "./usenet-dl.db")
	v.SetDefault("log.path", "usenet-dl.log")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.include_stdout", true)

	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config file %s: %w", path, err)
	}

	v.SetEnvPrefix("GONZB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) validate() error {
	if len(c.Servers) == 0 {
		return errors.New("at least one server must be configured")
	}

	for i, s := range c.Servers {
		if s.ID == "" {
			return fmt.Errorf("server[%d] requires a unique ID", i)
		}
		if s.Host == "" {
			return fmt.Errorf("server %s: host is required", s.ID)
		}
		if s.Port == 0 {
			return fmt.Errorf("server %s: port is required", s.ID)
		}
		if s.TLS && s.Port == 119 {
			fmt.Println("Warning: TLS is enabled but port is set to 119 (standard non-TLS)")
		}
		if s.MaxConnection <= 0 {
			c.Servers[i].MaxConnection = 10
		}
		if s.PipelineDepth <= 0 {
			c.Servers[i].PipelineDepth = 1
		}
		if s.Priority == 0 {
			c.Servers[i].Priority = 1
		}
	}

	switch c.FileCollision {
	case "rename", "overwrite", "skip":
	default:
		return fmt.Errorf("file_collision must be rename, overwrite or skip, got %q", c.FileCollision)
	}

	if c.DownloadDir == "" {
		c.DownloadDir = "./downloads"
	}
	if c.TempDir == "" {
		c.TempDir = c.DownloadDir + "/.incomplete"
	}

	return nil
}
