package logging_test

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"tonearm/internal/logging"
)

func TestNewRejectsUnknownFormat(t *testing.T) {
	if _, err := logging.New(logging.Options{Format: "yaml"}); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}

func TestComponentLoggerTagsLines(t *testing.T) {
	var buf bytes.Buffer
	logger, err := logging.New(logging.Options{Level: "debug", Format: "json", Output: &buf})
	if err != nil {
		t.Fatalf("logging.New: %v", err)
	}

	component := logging.NewComponentLogger(logger, "identify")
	component.Info("scoring started")

	if !strings.Contains(buf.String(), `"component":"identify"`) {
		t.Fatalf("expected component attribute, got %q", buf.String())
	}
}

func TestWithContextAttachesDirID(t *testing.T) {
	var buf bytes.Buffer
	logger, err := logging.New(logging.Options{Level: "info", Format: "json", Output: &buf})
	if err != nil {
		t.Fatalf("logging.New: %v", err)
	}

	ctx := logging.WithDirectory(context.Background(), "dir-123")
	logging.WithContext(ctx, logger).Info("hello")

	if !strings.Contains(buf.String(), `"dir_id":"dir-123"`) {
		t.Fatalf("expected dir_id attribute, got %q", buf.String())
	}
}
