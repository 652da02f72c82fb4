package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func lines(t *testing.T, buf *bytes.Buffer) []map[string]interface{} {
	t.Helper()
	var out []map[string]interface{}
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var m map[string]interface{}
		if err := json.Unmarshal([]byte(line), &m); err != nil {
			t.Fatalf("invalid json log line %q: %v", line, err)
		}
		out = append(out, m)
	}
	return out
}

func TestLoggerAndSlogShareStream(t *testing.T) {
	var buf bytes.Buffer
	l := NewWriterLogger(&buf, "info").WithRunID("r1")

	l.Info("run started", "dataset", "iris")
	l.GetSlog().Info("generation", "generation", 3, "err", errors.New("boom"))
	l.Debug("hidden")

	got := lines(t, &buf)
	if len(got) != 2 {
		t.Fatalf("got %d lines, want 2: %s", len(got), buf.String())
	}
	if got[0]["run_id"] != "r1" || got[0]["dataset"] != "iris" {
		t.Errorf("unexpected first line %v", got[0])
	}
	if got[1]["msg"] != "generation" || got[1]["generation"] != float64(3) || got[1]["err"] != "boom" {
		t.Errorf("unexpected slog line %v", got[1])
	}
}

func TestSlogGroupsAndLevels(t *testing.T) {
	var buf bytes.Buffer
	l := NewWriterLogger(&buf, "warn")
	s := l.GetSlog().WithGroup("ga").With("pop", 10)

	s.Info("dropped")
	s.Warn("kept", "best", 1.5)

	got := lines(t, &buf)
	if len(got) != 1 {
		t.Fatalf("got %d lines, want 1", len(got))
	}
	if got[0]["ga.pop"] != float64(10) || got[0]["ga.best"] != 1.5 {
		t.Errorf("group prefix missing: %v", got[0])
	}
}
