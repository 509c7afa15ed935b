package tui

import (
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"
)

// logLine is one captured log entry.
type logLine struct {
	level string
	text  string
}

// LogHook captures logrus entries so the app can show them below the button
// instead of letting them tear through the alternate screen.
type LogHook struct {
	ch chan logLine
}

// NewLogHook creates a hook buffering up to bufSize lines.
func NewLogHook(bufSize int) *LogHook {
	if bufSize <= 0 {
		bufSize = 64
	}
	return &LogHook{ch: make(chan logLine, bufSize)}
}

// Levels fires on info and above; debug noise stays in the log file.
func (h *LogHook) Levels() []log.Level {
	return []log.Level{log.PanicLevel, log.FatalLevel, log.ErrorLevel, log.WarnLevel, log.InfoLevel}
}

// Fire renders entry as "message key=value ..." and queues it, dropping the
// oldest queued line when the buffer is full.
func (h *LogHook) Fire(entry *log.Entry) error {
	line := logLine{level: entry.Level.String(), text: formatEntry(entry)}
	for {
		select {
		case h.ch <- line:
			return nil
		default:
		}
		select {
		case <-h.ch:
		default:
		}
	}
}

func formatEntry(entry *log.Entry) string {
	var b strings.Builder
	b.WriteString(entry.Message)
	for _, key := range []string{"user_id", "org_id", "attempt"} {
		if v, ok := entry.Data[key]; ok {
			_, _ = fmt.Fprintf(&b, " %s=%v", key, v)
		}
	}
	return strings.TrimRight(b.String(), "\r\n")
}

func (h *LogHook) next() (logLine, bool) {
	line, ok := <-h.ch
	return line, ok
}
