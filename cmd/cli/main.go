package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/yourusername/grabber-go/internal/app"
	"github.com/yourusername/grabber-go/internal/domain"
	"github.com/yourusername/grabber-go/pkg/logger"
)

var (
	configPath string
	serverURL  string
	apiBaseURL string
	verbose    bool
	rootCmd    = &cobra.Command{
		Use:   "grabber",
		Short: "grabber CLI - find media on web pages and send them to a download service",
		Long: `A command-line interface for detecting downloadable media on web pages
and submitting download jobs to a remote conversion service.`,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default: ./configs/config.yaml or ~/.grabber/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:8765", "grabber server URL")
	rootCmd.PersistentFlags().StringVar(&apiBaseURL, "api", "", "Job API base URL (overrides config)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose logging on stderr")

	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(downloadCmd)
	rootCmd.AddCommand(mediaCmd)
	rootCmd.AddCommand(jobsCmd)
}

// loadConfig reads .env, the config file and the --api override
func loadConfig() *domain.Config {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		fail("failed to load .env: %v", err)
	}

	config, err := app.LoadConfig(configPath)
	if err != nil {
		fail("Failed to load config: %v", err)
	}
	if apiBaseURL != "" {
		config.API.BaseURL = apiBaseURL
	}
	return config
}

// newLogger keeps stdout clean for table output
func newLogger() *zap.Logger {
	if !verbose {
		return logger.NewDefault()
	}
	log, err := logger.New(logger.Config{Level: "debug", Format: "console", OutputPath: "stderr"})
	if err != nil {
		return logger.NewDefault()
	}
	return log
}

func fail(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
