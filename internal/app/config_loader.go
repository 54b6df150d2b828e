package app

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"github.com/yourusername/grabber-go/internal/domain"
)

// LoadConfig loads configuration from file and environment
func LoadConfig(configPath string) (*domain.Config, error) {
	config := domain.DefaultConfig()

	v := viper.New()
	v.SetConfigType("yaml")

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath("./configs")
		v.AddConfigPath("$HOME/.grabber")
		v.AddConfigPath("/etc/grabber")
	}

	// Environment overrides only apply to keys viper knows about
	setDefaults(v, config)
	v.SetEnvPrefix("GRABBER")
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

func setDefaults(v *viper.Viper, config *domain.Config) {
	for key, value := range configValues(config) {
		v.SetDefault(key, value)
	}
}

// configValues flattens config into viper keys. Durations are kept as
// strings so a saved file reads back unchanged.
func configValues(config *domain.Config) map[string]interface{} {
	return map[string]interface{}{
		"server.host":               config.Server.Host,
		"server.port":               config.Server.Port,
		"api.base_url":              config.API.BaseURL,
		"api.timeout":               config.API.Timeout.String(),
		"detection.settle_delay":    config.Detection.SettleDelay.String(),
		"detection.rescan_interval": config.Detection.RescanInterval.String(),
		"job.poll_interval":         config.Job.PollInterval.String(),
		"job.default_audio_bitrate": config.Job.DefaultAudioBitrate,
		"storage.enabled":           config.Storage.Enabled,
		"storage.database_path":     config.Storage.DatabasePath,
		"storage.retention":         config.Storage.Retention.String(),
		"notification.enabled":      config.Notification.Enabled,
		"notification.sound":        config.Notification.Sound,
		"notification.method":       config.Notification.Method,
		"logging.level":             config.Logging.Level,
		"logging.format":            config.Logging.Format,
		"logging.output_path":       config.Logging.OutputPath,
		"logging.logs_dir":          config.Logging.LogsDir,
	}
}

// expandPaths expands environment variables in path configurations
func expandPaths(config *domain.Config) *domain.Config {
	config.Storage.DatabasePath = expandPath(config.Storage.DatabasePath)
	config.Logging.LogsDir = expandPath(config.Logging.LogsDir)

	if config.Logging.OutputPath != "stdout" && config.Logging.OutputPath != "stderr" {
		config.Logging.OutputPath = expandPath(config.Logging.OutputPath)
	}

	return config
}

// expandPath expands environment variables and ~ in paths
func expandPath(path string) string {
	if path == "" {
		return path
	}

	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err == nil {
			path = filepath.Join(home, path[2:])
		}
	}

	// $HOME first so it resolves even when the variable is unset
	if strings.Contains(path, "$HOME") {
		home, err := os.UserHomeDir()
		if err == nil {
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

	config.API.BaseURL = strings.TrimRight(strings.TrimSpace(config.API.BaseURL), "/")
	if config.API.BaseURL == "" {
		config.API.BaseURL = domain.DefaultAPIBaseURL
	}
	u, err := url.Parse(config.API.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("invalid api base url: %q", config.API.BaseURL)
	}

	if config.API.Timeout <= 0 {
		return fmt.Errorf("api timeout must be positive")
	}

	if config.Detection.SettleDelay <= 0 {
		return fmt.Errorf("detection settle delay must be positive")
	}

	if config.Detection.RescanInterval <= 0 {
		return fmt.Errorf("detection rescan interval must be positive")
	}

	if config.Job.PollInterval <= 0 {
		return fmt.Errorf("job poll interval must be positive")
	}

	if config.Job.DefaultAudioBitrate <= 0 {
		config.Job.DefaultAudioBitrate = domain.DefaultAudioBitrate
	}

	if config.Storage.Enabled && config.Storage.DatabasePath == "" {
		return fmt.Errorf("storage database path not configured")
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
