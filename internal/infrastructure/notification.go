package infrastructure

import (
	"fmt"
	"os/exec"
	"strings"

	"github.com/yourusername/grabber-go/internal/domain"
	"go.uber.org/zap"
)

// commandRunner executes a notifier binary
type commandRunner func(name string, args ...string) error

func runCommand(name string, args ...string) error {
	return exec.Command(name, args...).Run()
}

// NotificationService sends desktop notifications for detection and job events
type NotificationService struct {
	config *domain.NotificationConfig
	logger *zap.Logger
	run    commandRunner
}

// NewNotificationService creates a new notification service
func NewNotificationService(config *domain.NotificationConfig, logger *zap.Logger) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationService{
		config: config,
		logger: logger,
		run:    runCommand,
	}
}

// Send sends a notification
func (n *NotificationService) Send(title, message string) error {
	if n.config == nil || !n.config.Enabled {
		n.logger.Debug("Notifications disabled, skipping",
			zap.String("title", title),
			zap.String("message", message))
		return nil
	}

	var err error
	switch n.config.Method {
	case "osascript":
		script := fmt.Sprintf(`display notification "%s" with title "%s"`, escapeAppleScript(message), escapeAppleScript(title))
		if n.config.Sound {
			script += ` sound name "default"`
		}
		err = n.run("osascript", "-e", script)
	case "notify-send":
		err = n.run("notify-send", title, message)
	default:
		n.logger.Warn("Unknown notification method", zap.String("method", n.config.Method))
		return nil
	}

	if err != nil {
		n.logger.Error("Failed to send notification",
			zap.String("method", n.config.Method),
			zap.Error(err))
		return err
	}

	n.logger.Debug("Notification sent",
		zap.String("title", title),
		zap.String("message", message))
	return nil
}

// NotifyMediaDetected reports the new detection count for a browsing context
func (n *NotificationService) NotifyMediaDetected(contextID string, count int) {
	n.Send("Media Detected", fmt.Sprintf("%d item(s) found in %s", count, truncateString(contextID, 30)))
}

// NotifyJobFinished sends notification when a job completes
func (n *NotificationService) NotifyJobFinished(url, fileName string) {
	message := fmt.Sprintf("Ready: %s", truncateString(url, 30))
	if fileName != "" {
		message = fmt.Sprintf("File: %s", fileName)
	}
	n.Send("Download Complete", message)
}

// NotifyJobFailed sends notification when a job fails
func (n *NotificationService) NotifyJobFailed(url, reason string) {
	n.Send("Download Failed", fmt.Sprintf("%s: %s", truncateString(url, 30), reason))
}

func escapeAppleScript(s string) string {
	return strings.ReplaceAll(strings.ReplaceAll(s, `\`, `\\`), `"`, `\"`)
}

// truncateString truncates a string to the specified length
func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
