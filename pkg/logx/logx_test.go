package logx

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestJSONLoggerFields(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	log := NewJSON(&buf, "debug").With(String("comp", "test"))
	log.Info("hello", Int("n", 2), Bool("ok", true), Duration("took", time.Second), Err(errors.New("boom")), Err(nil))

	var got map[string]any
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("decode %q: %v", buf.String(), err)
	}
	if got["message"] != "hello" || got["comp"] != "test" || got["n"] != float64(2) || got["err"] != "boom" {
		t.Fatalf("event = %v", got)
	}
	if c, _ := got["caller"].(string); !strings.HasPrefix(c, "logx_test.go:") {
		t.Fatalf("caller = %q, want logx_test.go:<line>", c)
	}
}

func TestLevelFilter(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	log := NewJSON(&buf, "warn")
	log.Info("dropped")
	log.Warn("kept")
	if out := buf.String(); strings.Contains(out, "dropped") || !strings.Contains(out, "kept") {
		t.Fatalf("output = %q", out)
	}
}

func TestZeroAndNop(t *testing.T) {
	t.Parallel()
	var zero Logger
	if !zero.IsZero() {
		t.Fatal("zero Logger IsZero = false")
	}
	if Nop().IsZero() {
		t.Fatal("Nop IsZero = true")
	}
	zero.Error("nothing happens")
}

func TestServiceApplySwapsFile(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	first := filepath.Join(dir, "a.log")
	second := filepath.Join(dir, "b.log")

	svc, log := New(Config{Level: "info", File: FileConfig{Enabled: true, Path: first}})
	defer svc.Close()
	log.Info("one")

	svc.Apply(Config{Level: "info", File: FileConfig{Enabled: true, Path: second}})
	log.Info("two")

	a, _ := os.ReadFile(first)
	b, _ := os.ReadFile(second)
	if !strings.Contains(string(a), "one") || strings.Contains(string(a), "two") {
		t.Fatalf("a.log = %q", a)
	}
	if !strings.Contains(string(b), "two") {
		t.Fatalf("b.log = %q", b)
	}
}
