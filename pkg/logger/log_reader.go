package logger

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// LogEntry represents a parsed log entry
type LogEntry struct {
	Timestamp string                 `json:"timestamp"`
	Level     string                 `json:"level"`
	Message   string                 `json:"message"`
	Category  string                 `json:"category"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
}

// Categories lists every category the MultiLogger writes
func Categories() []LogCategory {
	return []LogCategory{CategoryJob, CategoryDetection, CategoryError}
}

// ValidCategory reports whether category has a log file
func ValidCategory(category LogCategory) bool {
	for _, c := range Categories() {
		if c == category {
			return true
		}
	}
	return false
}

// LogReader reads the categorized log files back
type LogReader struct {
	logsDir string
}

// NewLogReader creates a new log reader
func NewLogReader(logsDir string) *LogReader {
	return &LogReader{
		logsDir: logsDir,
	}
}

// GetLogPath returns the path to a category log file for a specific date
func (lr *LogReader) GetLogPath(category LogCategory, date time.Time) string {
	filename := fmt.Sprintf("%s-%s.log", category, date.Format("20060102"))
	return filepath.Join(lr.logsDir, filename)
}

// ReadLogs returns the last limit entries of a category log file. A missing
// file yields no entries.
func (lr *LogReader) ReadLogs(category LogCategory, date time.Time, limit int) ([]LogEntry, error) {
	file, err := os.Open(lr.GetLogPath(category, date))
	if err != nil {
		if os.IsNotExist(err) {
			return []LogEntry{}, nil
		}
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	defer file.Close()

	var lines []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			lines = append(lines, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read log file: %w", err)
	}

	if limit > 0 && len(lines) > limit {
		lines = lines[len(lines)-limit:]
	}

	entries := make([]LogEntry, 0, len(lines))
	for _, line := range lines {
		entries = append(entries, parseEntry(category, line))
	}
	return entries, nil
}

// SearchLogs returns entries whose message, level or field values contain query
func (lr *LogReader) SearchLogs(category LogCategory, date time.Time, query string, limit int) ([]LogEntry, error) {
	entries, err := lr.ReadLogs(category, date, 0)
	if err != nil {
		return nil, err
	}

	query = strings.ToLower(query)
	filtered := []LogEntry{}
	for _, entry := range entries {
		if matches(entry, query) {
			filtered = append(filtered, entry)
		}
	}

	if limit > 0 && len(filtered) > limit {
		filtered = filtered[len(filtered)-limit:]
	}
	return filtered, nil
}

func matches(entry LogEntry, query string) bool {
	if strings.Contains(strings.ToLower(entry.Message), query) ||
		strings.Contains(strings.ToLower(entry.Level), query) {
		return true
	}
	for _, v := range entry.Fields {
		if s, ok := v.(string); ok && strings.Contains(strings.ToLower(s), query) {
			return true
		}
	}
	return false
}

// parseEntry decodes one JSON line written by the MultiLogger. Lines that
// are not JSON become plain info entries.
func parseEntry(category LogCategory, line string) LogEntry {
	var raw map[string]interface{}
	if err := json.Unmarshal([]byte(line), &raw); err != nil {
		return LogEntry{
			Level:    "info",
			Message:  line,
			Category: string(category),
		}
	}

	entry := LogEntry{Category: string(category)}
	entry.Timestamp, _ = raw["ts"].(string)
	entry.Level, _ = raw["level"].(string)
	entry.Message, _ = raw["msg"].(string)
	delete(raw, "ts")
	delete(raw, "level")
	delete(raw, "msg")
	if len(raw) > 0 {
		entry.Fields = raw
	}
	return entry
}
