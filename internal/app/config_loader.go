package app

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/yourusername/mediagrab/internal/domain"
)

// EnvPrefix is the prefix of environment variable overrides, e.g. MEDIAGRAB_DOWNLOAD_MAX_PARTS
const EnvPrefix = "MEDIAGRAB"

// LoadConfig loads configuration from file and environment
func LoadConfig(configPath string) (*domain.Config, error) {
	config := domain.DefaultConfig()

	v := viper.New()
	v.SetConfigType("yaml")
	for key, value := range configValues(config) {
		v.SetDefault(key, value)
	}

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath("./configs")
		v.AddConfigPath("$HOME/.mediagrab")
		v.AddConfigPath("/etc/mediagrab")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	config = expandPaths(config)

	if err := validateConfig(config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// configValues flattens the configuration into viper keys
func configValues(c *domain.Config) map[string]interface{} {
	return map[string]interface{}{
		"server.host": c.Server.Host,
		"server.port": c.Server.Port,

		"download.temp_dir":        c.Download.TempDir,
		"download.max_parts":       c.Download.MaxParts,
		"download.min_part_bytes":  c.Download.MinPartBytes,
		"download.max_part_bytes":  c.Download.MaxPartBytes,
		"download.connect_timeout": c.Download.ConnectTimeout,
		"download.read_timeout":    c.Download.ReadTimeout,
		"download.buffer_size":     c.Download.BufferSize,
		"download.rate_limit":      c.Download.RateLimit,
		"download.user_agent":      c.Download.UserAgent,
		"download.cookie_file":     c.Download.CookieFile,
		"download.proxy_url":       c.Download.ProxyURL,

		"router.cookie_gated_hosts": c.Router.CookieGatedHosts,
		"router.fast_fail_window":   c.Router.FastFailWindow,
		"router.poll_interval":      c.Router.PollInterval,
		"router.max_redirects":      c.Router.MaxRedirects,
		"router.resolve_timeout":    c.Router.ResolveTimeout,

		"queue.database_path":      c.Queue.DatabasePath,
		"queue.check_interval":     c.Queue.CheckInterval,
		"queue.concurrent_limit":   c.Queue.ConcurrentLimit,
		"queue.max_retries":        c.Queue.MaxRetries,
		"queue.retry_delay":        c.Queue.RetryDelay,
		"queue.auto_start_workers": c.Queue.AutoStartWorkers,

		"library.backend":    c.Library.Backend,
		"library.dir":        c.Library.Dir,
		"library.s3_bucket":  c.Library.S3Bucket,
		"library.s3_prefix":  c.Library.S3Prefix,
		"library.s3_region":  c.Library.S3Region,
		"library.s3_profile": c.Library.S3Profile,

		"transcode.enabled":       c.Transcode.Enabled,
		"transcode.ffmpeg_binary": c.Transcode.FFmpegBinary,
		"transcode.extra_args":    c.Transcode.ExtraArgs,

		"notification.enabled": c.Notification.Enabled,
		"notification.method":  c.Notification.Method,

		"logging.level":       c.Logging.Level,
		"logging.format":      c.Logging.Format,
		"logging.output_path": c.Logging.OutputPath,
		"logging.logs_dir":    c.Logging.LogsDir,
	}
}

// expandPaths expands environment variables in path configurations
func expandPaths(config *domain.Config) *domain.Config {
	config.Download.TempDir = expandPath(config.Download.TempDir)
	config.Download.CookieFile = expandPath(config.Download.CookieFile)
	config.Queue.DatabasePath = expandPath(config.Queue.DatabasePath)
	config.Library.Dir = expandPath(config.Library.Dir)
	config.Logging.LogsDir = expandPath(config.Logging.LogsDir)

	if config.Logging.OutputPath != "stdout" && config.Logging.OutputPath != "stderr" {
		config.Logging.OutputPath = expandPath(config.Logging.OutputPath)
	}

	return config
}

// expandPath expands environment variables and ~ in paths
func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			path = filepath.Join(home, path[2:])
		}
	}
	if strings.Contains(path, "$HOME") {
		if home, err := os.UserHomeDir(); err == nil {
			path = strings.ReplaceAll(path, "$HOME", home)
		}
	}
	return os.ExpandEnv(path)
}

// validateConfig validates the configuration
func validateConfig(config *domain.Config) error {
	if config.Server.Port < 1 || config.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", config.Server.Port)
	}

	if config.Download.TempDir == "" {
		return fmt.Errorf("download temp directory not configured")
	}

	if config.Download.MaxParts < 1 {
		return fmt.Errorf("max parts must be at least 1")
	}

	if config.Download.MinPartBytes <= 0 || config.Download.MaxPartBytes < config.Download.MinPartBytes {
		return fmt.Errorf("invalid part size bounds: min %d, max %d",
			config.Download.MinPartBytes, config.Download.MaxPartBytes)
	}

	if config.Download.RateLimit < 0 {
		return fmt.Errorf("rate limit cannot be negative")
	}

	if config.Router.FastFailWindow <= 0 || config.Router.PollInterval <= 0 {
		return fmt.Errorf("fast-fail window and poll interval must be positive")
	}

	if config.Router.PollInterval > config.Router.FastFailWindow {
		return fmt.Errorf("poll interval %s exceeds fast-fail window %s",
			config.Router.PollInterval, config.Router.FastFailWindow)
	}

	if config.Router.MaxRedirects < 1 {
		return fmt.Errorf("max redirects must be at least 1")
	}

	if config.Queue.MaxRetries < 0 {
		return fmt.Errorf("max retries cannot be negative")
	}

	if config.Queue.ConcurrentLimit < 1 {
		return fmt.Errorf("concurrent limit must be at least 1")
	}

	if config.Queue.DatabasePath == "" {
		return fmt.Errorf("queue database path not configured")
	}

	switch config.Library.Backend {
	case "filesystem":
		if config.Library.Dir == "" {
			return fmt.Errorf("library directory not configured")
		}
	case "s3":
		if config.Library.S3Bucket == "" {
			return fmt.Errorf("library s3 bucket not configured")
		}
	default:
		return fmt.Errorf("unknown library backend: %s", config.Library.Backend)
	}

	if config.Logging.Level == "" {
		config.Logging.Level = "info"
	}

	return nil
}

// SaveConfig saves configuration to file
func SaveConfig(config *domain.Config, path string) error {
	v := viper.New()
	v.SetConfigType("yaml")

	for key, value := range configValues(config) {
		if d, ok := value.(time.Duration); ok {
			value = d.String()
		}
		v.Set(key, value)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// MarshalConfigYAML renders the configuration with the same keys the loader reads
func MarshalConfigYAML(config *domain.Config) ([]byte, error) {
	doc := make(map[string]interface{})
	for key, value := range configValues(config) {
		if d, ok := value.(time.Duration); ok {
			value = d.String()
		}
		section, field, found := strings.Cut(key, ".")
		if !found {
			doc[key] = value
			continue
		}
		m, ok := doc[section].(map[string]interface{})
		if !ok {
			m = make(map[string]interface{})
			doc[section] = m
		}
		m[field] = value
	}

	data, err := yaml.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal config: %w", err)
	}
	return data, nil
}
