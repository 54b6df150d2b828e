package domain

import "time"

// DefaultAPIBaseURL is the job API used when no override is configured
const DefaultAPIBaseURL = "https://uni.isuruhub.site:8443"

// Config represents the application configuration
type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	API          APIConfig          `mapstructure:"api"`
	Detection    DetectionConfig    `mapstructure:"detection"`
	Job          JobConfig          `mapstructure:"job"`
	Storage      StorageConfig      `mapstructure:"storage"`
	Notification NotificationConfig `mapstructure:"notification"`
	Logging      LoggingConfig      `mapstructure:"logging"`
}

// ServerConfig contains settings for the host-facing HTTP API
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// APIConfig points at the remote conversion service
type APIConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// DetectionConfig controls the page re-scan cadence
type DetectionConfig struct {
	SettleDelay    time.Duration `mapstructure:"settle_delay"`
	RescanInterval time.Duration `mapstructure:"rescan_interval"`
}

// JobConfig contains job orchestration settings
type JobConfig struct {
	PollInterval        time.Duration `mapstructure:"poll_interval"`
	DefaultAudioBitrate int           `mapstructure:"default_audio_bitrate"`
}

// StorageConfig contains job history persistence settings
type StorageConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	DatabasePath string        `mapstructure:"database_path"`
	Retention    time.Duration `mapstructure:"retention"` // 0 keeps history forever
}

// NotificationConfig contains notification-related configuration
type NotificationConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Sound   bool   `mapstructure:"sound"`
	Method  string `mapstructure:"method"` // osascript, notify-send
}

// LoggingConfig contains logging-related configuration
type LoggingConfig struct {
	Level      string `mapstructure:"level"`       // debug, info, warn, error
	Format     string `mapstructure:"format"`      // json, console
	OutputPath string `mapstructure:"output_path"` // stdout, stderr, or file path
	LogsDir    string `mapstructure:"logs_dir"`    // categorized log files, empty disables
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "localhost",
			Port: 8765,
		},
		API: APIConfig{
			BaseURL: DefaultAPIBaseURL,
			Timeout: 30 * time.Second,
		},
		Detection: DetectionConfig{
			SettleDelay:    1 * time.Second,
			RescanInterval: 5 * time.Second,
		},
		Job: JobConfig{
			PollInterval:        2 * time.Second,
			DefaultAudioBitrate: DefaultAudioBitrate,
		},
		Storage: StorageConfig{
			Enabled:      true,
			DatabasePath: "$HOME/.grabber/jobs.db",
			Retention:    30 * 24 * time.Hour,
		},
		Notification: NotificationConfig{
			Enabled: false,
			Sound:   false,
			Method:  "notify-send",
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "console",
			OutputPath: "stdout",
		},
	}
}
