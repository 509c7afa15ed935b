package logging

import (
	"strings"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
)

func TestLogFormatterOrdersKnownFields(t *testing.T) {
	entry := &log.Entry{
		Logger:  log.StandardLogger(),
		Time:    time.Date(2025, 12, 23, 20, 14, 4, 0, time.UTC),
		Level:   log.WarnLevel,
		Message: "credential fetch failed\n",
		Data: log.Fields{
			"org_id":     "o1",
			"user_id":    "u1",
			"request_id": "a1b2c3d4",
			"ignored":    "x",
		},
	}

	out, err := (&LogFormatter{}).Format(entry)
	if err != nil {
		t.Fatalf("Format() error = %v", err)
	}
	want := "[2025-12-23 20:14:04] [a1b2c3d4] [warn ] credential fetch failed user_id=u1 org_id=o1\n"
	if string(out) != want {
		t.Fatalf("Format() = %q, want %q", string(out), want)
	}
}

func TestLogFormatterDefaultsRequestID(t *testing.T) {
	entry := &log.Entry{Logger: log.StandardLogger(), Time: time.Now(), Level: log.InfoLevel, Message: "hello"}
	out, err := (&LogFormatter{}).Format(entry)
	if err != nil {
		t.Fatalf("Format() error = %v", err)
	}
	if !strings.Contains(string(out), "[--------]") {
		t.Fatalf("expected placeholder request id, got %q", string(out))
	}
}
