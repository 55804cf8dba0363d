package domain

import "time"

// Config represents the application configuration
type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Download     DownloadConfig     `mapstructure:"download"`
	Router       RouterConfig       `mapstructure:"router"`
	Queue        QueueConfig        `mapstructure:"queue"`
	Library      LibraryConfig      `mapstructure:"library"`
	Transcode    TranscodeConfig    `mapstructure:"transcode"`
	Notification NotificationConfig `mapstructure:"notification"`
	Logging      LoggingConfig      `mapstructure:"logging"`
}

// ServerConfig contains server-related configuration
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// DownloadConfig contains transfer engine configuration
type DownloadConfig struct {
	TempDir        string        `mapstructure:"temp_dir"`
	MaxParts       int           `mapstructure:"max_parts"`
	MinPartBytes   int64         `mapstructure:"min_part_bytes"`
	MaxPartBytes   int64         `mapstructure:"max_part_bytes"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	BufferSize     int           `mapstructure:"buffer_size"`
	RateLimit      int64         `mapstructure:"rate_limit"` // bytes per second, 0 = unlimited
	UserAgent      string        `mapstructure:"user_agent"`
	CookieFile     string        `mapstructure:"cookie_file"` // Netscape cookies.txt
	ProxyURL       string        `mapstructure:"proxy_url"`
}

// Policy returns the part policy derived from the download configuration
func (c DownloadConfig) Policy() PartPolicy {
	return PartPolicy{
		MaxParts:       c.MaxParts,
		MinPartBytes:   c.MinPartBytes,
		MaxPartBytes:   c.MaxPartBytes,
		ConnectTimeout: c.ConnectTimeout,
		ReadTimeout:    c.ReadTimeout,
	}
}

const (
	DefaultFastFailWindow = 3500 * time.Millisecond
	DefaultPollInterval   = 250 * time.Millisecond
)

// RouterConfig contains source routing configuration
type RouterConfig struct {
	CookieGatedHosts []string      `mapstructure:"cookie_gated_hosts"`
	FastFailWindow   time.Duration `mapstructure:"fast_fail_window"`
	PollInterval     time.Duration `mapstructure:"poll_interval"`
	MaxRedirects     int           `mapstructure:"max_redirects"`
	ResolveTimeout   time.Duration `mapstructure:"resolve_timeout"`
}

// QueueConfig contains host-managed queue configuration
type QueueConfig struct {
	DatabasePath     string        `mapstructure:"database_path"`
	CheckInterval    time.Duration `mapstructure:"check_interval"`
	ConcurrentLimit  int           `mapstructure:"concurrent_limit"`
	MaxRetries       int           `mapstructure:"max_retries"`
	RetryDelay       time.Duration `mapstructure:"retry_delay"`
	AutoStartWorkers bool          `mapstructure:"auto_start_workers"`
}

// LibraryConfig contains configuration for the publish destination
type LibraryConfig struct {
	Backend   string `mapstructure:"backend"` // filesystem, s3
	Dir       string `mapstructure:"dir"`
	S3Bucket  string `mapstructure:"s3_bucket"`
	S3Prefix  string `mapstructure:"s3_prefix"`
	S3Region  string `mapstructure:"s3_region"`
	S3Profile string `mapstructure:"s3_profile"`
}

// TranscodeConfig contains configuration for the external transcoder
type TranscodeConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	FFmpegBinary string `mapstructure:"ffmpeg_binary"`
	ExtraArgs    string `mapstructure:"extra_args"`
}

// NotificationConfig contains notification-related configuration
type NotificationConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Method  string `mapstructure:"method"` // osascript, notify-send
}

// LoggingConfig contains logging-related configuration
type LoggingConfig struct {
	Level      string `mapstructure:"level"`       // debug, info, warn, error
	Format     string `mapstructure:"format"`      // json, console
	OutputPath string `mapstructure:"output_path"` // stdout, stderr, or file path
	LogsDir    string `mapstructure:"logs_dir"`    // category log files
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "localhost",
			Port: 8080,
		},
		Download: DownloadConfig{
			TempDir:        "$HOME/.mediagrab/tmp",
			MaxParts:       DefaultMaxParts,
			MinPartBytes:   DefaultMinPartBytes,
			MaxPartBytes:   DefaultMaxPartBytes,
			ConnectTimeout: DefaultConnectTimeout,
			ReadTimeout:    DefaultReadTimeout,
			BufferSize:     256 * 1024,
			RateLimit:      0,
			UserAgent:      DefaultUserAgent,
		},
		Router: RouterConfig{
			CookieGatedHosts: []string{"instagram.com", "cdninstagram", "fbcdn"},
			FastFailWindow:   DefaultFastFailWindow,
			PollInterval:     DefaultPollInterval,
			MaxRedirects:     5,
			ResolveTimeout:   15 * time.Second,
		},
		Queue: QueueConfig{
			DatabasePath:     "$HOME/.mediagrab/queue.db",
			CheckInterval:    2 * time.Second,
			ConcurrentLimit:  2,
			MaxRetries:       3,
			RetryDelay:       10 * time.Second,
			AutoStartWorkers: true,
		},
		Library: LibraryConfig{
			Backend: "filesystem",
			Dir:     "$HOME/Movies/mediagrab",
		},
		Transcode: TranscodeConfig{
			Enabled:      true,
			FFmpegBinary: "ffmpeg",
		},
		Notification: NotificationConfig{
			Enabled: false,
			Method:  "notify-send",
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "console",
			OutputPath: "stdout",
			LogsDir:    "$HOME/.mediagrab/logs",
		},
	}
}
