package logger

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
)

func TestInitWritesFileAndComponentLoggers(t *testing.T) {
	var buf bytes.Buffer
	path := filepath.Join(t.TempDir(), "logs", "fundd.log")
	if err := Init(Config{Level: "debug", OutputFile: path, Stdout: &buf}); err != nil {
		t.Fatalf("init: %v", err)
	}

	Debugf("hello %d", 1)
	logrus.WithField("component", "fund").Info("from component")

	if !strings.Contains(buf.String(), "hello 1") || !strings.Contains(buf.String(), "component=fund") {
		t.Fatalf("stdout missing lines: %q", buf.String())
	}
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(b), "from component") {
		t.Fatalf("log file missing line: %q", string(b))
	}
	if GetCurrentLogFile() != path {
		t.Fatalf("current log file %q", GetCurrentLogFile())
	}
}

func TestInitJSONAndLevel(t *testing.T) {
	var buf bytes.Buffer
	if err := Init(Config{Level: "warn", JSON: true, Stdout: &buf}); err != nil {
		t.Fatalf("init: %v", err)
	}
	Infof("dropped")
	WithField("k", "v").Warn("kept")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected 1 line, got %d: %q", len(lines), buf.String())
	}
	var m map[string]interface{}
	if err := json.Unmarshal([]byte(lines[0]), &m); err != nil {
		t.Fatalf("not json: %v", err)
	}
	if m["msg"] != "kept" || m["k"] != "v" {
		t.Fatalf("unexpected entry: %v", m)
	}

	// 非法级别回退到 info
	if err := Init(Config{Level: "loud", Stdout: &buf}); err != nil {
		t.Fatalf("init: %v", err)
	}
	if logrus.GetLevel() != logrus.InfoLevel {
		t.Fatalf("level got=%s", logrus.GetLevel())
	}
}
