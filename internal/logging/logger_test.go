package logging

import (
	"bytes"
	"strings"
	"testing"
)

func TestConsoleHandlerFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: LevelDebug, Output: &buf})

	logger.Info("bridge created", "name", "vs-br-vpc1")

	out := buf.String()
	if !strings.Contains(out, "[info]") {
		t.Errorf("expected level tag in output, got: %s", out)
	}
	if !strings.Contains(out, "bridge created") {
		t.Errorf("expected message in output, got: %s", out)
	}
	if !strings.Contains(out, "name=vs-br-vpc1") {
		t.Errorf("expected attribute in output, got: %s", out)
	}
}

func TestWithComponent(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: LevelInfo, Output: &buf})

	child := logger.WithComponent("provisioner")
	child.Info("subnet added")

	out := buf.String()
	if !strings.Contains(out, "provisioner:") {
		t.Errorf("expected component tag, got: %s", out)
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: LevelWarn, Output: &buf})

	logger.Info("should not appear")
	if buf.Len() != 0 {
		t.Errorf("info logged despite warn level: %s", buf.String())
	}

	logger.SetLevel(LevelDebug)
	logger.Debug("now visible")
	if !strings.Contains(buf.String(), "now visible") {
		t.Error("debug not logged after SetLevel")
	}
}
