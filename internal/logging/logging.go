// Package logging routes the standard logger to stdout and an optional log file
// and formats the per-cell lines written during a recovery run.
package logging

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

var (
	mu      sync.Mutex
	logFile *os.File
)

// Init sends log output to console and, when logPath is set, appends it to
// logPath as well. A nil console writer means os.Stdout.
func Init(logPath string, console io.Writer) error {
	mu.Lock()
	defer mu.Unlock()

	if logFile != nil {
		_ = logFile.Close()
		logFile = nil
	}

	if console == nil {
		console = os.Stdout
	}
	writers := []io.Writer{console}

	if logPath != "" {
		if dir := filepath.Dir(logPath); dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return err
			}
		}
		file, err := os.OpenFile(logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return err
		}
		logFile = file
		writers = append(writers, logFile)
	}

	log.SetOutput(io.MultiWriter(writers...))
	return nil
}

// Close detaches and closes the log file, if any.
func Close() error {
	mu.Lock()
	defer mu.Unlock()
	if logFile == nil {
		return nil
	}
	log.SetOutput(os.Stderr)
	err := logFile.Close()
	logFile = nil
	return err
}

func LogEvent(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	log.Println(msg)
}

// LogCell logs one event of a (generating, fitting, run) cell.
func LogCell(stage, generating, fitting string, repetition int, payload any) {
	log.Println(buildCellMessage(stage, generating, fitting, repetition, payload))
}

func buildCellMessage(stage, generating, fitting string, repetition int, payload any) string {
	st := strings.ToUpper(strings.TrimSpace(stage))
	if st == "" {
		st = "CELL"
	}
	genValue := strings.TrimSpace(generating)
	if genValue == "" {
		genValue = "unknown"
	}
	parts := []string{fmt.Sprintf("[%s]", st)}
	parts = append(parts, fmt.Sprintf("generating=%s", genValue))
	if fitting = strings.TrimSpace(fitting); fitting != "" {
		parts = append(parts, fmt.Sprintf("fitting=%s", fitting))
	}
	parts = append(parts, fmt.Sprintf("run=%d", repetition))
	parts = append(parts, fmt.Sprintf("payload=%s", formatPayload(payload)))
	return strings.Join(parts, " ")
}

func formatPayload(payload any) string {
	switch v := payload.(type) {
	case nil:
		return "null"
	case string:
		if strings.TrimSpace(v) == "" {
			return `""`
		}
		return v
	case []byte:
		if len(v) == 0 {
			return "[]"
		}
		return string(v)
	case fmt.Stringer:
		return v.String()
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(data)
	}
}
