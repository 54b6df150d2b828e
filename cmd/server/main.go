package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/yourusername/grabber-go/api"
	"github.com/yourusername/grabber-go/api/handlers"
	"github.com/yourusername/grabber-go/internal/app"
	"github.com/yourusername/grabber-go/internal/domain"
	"github.com/yourusername/grabber-go/internal/infrastructure"
	"github.com/yourusername/grabber-go/pkg/logger"
)

var configPath = flag.String("config", "", "Path to config file (default: ./configs/config.yaml or ~/.grabber/config.yaml)")

func main() {
	flag.Parse()

	// GRABBER_* overrides may live in a .env in the working directory
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "Failed to load .env: %v\n", err)
	}

	config, err := app.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{
		Level:      config.Logging.Level,
		Format:     config.Logging.Format,
		OutputPath: config.Logging.OutputPath,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	// Categorized job/detection/error files, only when a logs dir is set
	var multiLog *logger.MultiLogger
	if config.Logging.LogsDir != "" {
		multiLog, err = logger.NewMultiLogger(logger.MultiLoggerConfig{
			Level:   config.Logging.Level,
			LogsDir: config.Logging.LogsDir,
		})
		if err != nil {
			log.Fatal("Failed to initialize multi-logger", zap.Error(err))
		}
		defer multiLog.Close()
	}

	log.Info("Starting grabber server",
		zap.String("version", handlers.Version),
		zap.String("host", config.Server.Host),
		zap.Int("port", config.Server.Port),
		zap.String("api_base_url", config.API.BaseURL))

	var repo domain.JobRepository
	if config.Storage.Enabled {
		sqliteRepo, err := infrastructure.NewSQLiteJobRepository(config.Storage.DatabasePath)
		if err != nil {
			log.Fatal("Failed to initialize repository", zap.Error(err))
		}
		defer sqliteRepo.Close()

		if config.Storage.Retention > 0 {
			pruned, err := sqliteRepo.PruneBefore(time.Now().Add(-config.Storage.Retention))
			if err != nil {
				log.Warn("Failed to prune job history", zap.Error(err))
			} else if pruned > 0 {
				log.Info("Pruned job history", zap.Int64("records", pruned))
			}
		}
		repo = sqliteRepo
	}

	notifier := infrastructure.NewNotificationService(&config.Notification, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	classifier := domain.DefaultClassifier()
	aggregator := app.NewDetectionAggregator(notifier, multiLog, log)
	scanner := infrastructure.NewPageScanner(classifier, log)
	host := app.NewHost(ctx, aggregator, scanner, config.Detection, log)
	defer host.Close()

	client := infrastructure.NewJobClient(config.API.BaseURL, config.API.Timeout, log)
	jobs := app.NewJobService(func() *app.JobSession {
		opts := []app.JobSessionOption{app.WithJobNotifier(notifier)}
		if repo != nil {
			opts = append(opts, app.WithJobRepository(repo))
		}
		if multiLog != nil {
			opts = append(opts, app.WithMultiLogger(multiLog))
		}
		return app.NewJobSession(client, config.Job, log, opts...)
	}, repo)
	defer jobs.Close()

	router := api.SetupRouter(api.RouterConfig{
		Host:           host,
		Jobs:           jobs,
		Logger:         log,
		MultiLogger:    multiLog,
		Cookies:        infrastructure.NewCookieStore(),
		DefaultBitrate: config.Job.DefaultAudioBitrate,
	})

	addr := fmt.Sprintf("%s:%d", config.Server.Host, config.Server.Port)
	server := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	go func() {
		log.Info("HTTP server listening", zap.String("addr", addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}

	log.Info("Server exited")
}
