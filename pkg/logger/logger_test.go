package logger

import (
	"bytes"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]LogLevel{
		"debug":   DebugLevel,
		"DEBUG":   DebugLevel,
		"warn":    WarnLevel,
		"warning": WarnLevel,
		"error":   ErrorLevel,
		"info":    InfoLevel,
		"":        InfoLevel,
		"bogus":   InfoLevel,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, "TEST", WarnLevel)

	l.Info("hidden %d", 1)
	l.Warn("shown %d", 2)

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("Expected info line to be filtered, got %q", out)
	}
	if !strings.Contains(out, "[WARN] shown 2") {
		t.Errorf("Expected warn line, got %q", out)
	}
}

func TestNamedSharesLevel(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, "TEST", InfoLevel)
	child := l.Named("Mesh").Named("bob")

	l.SetLevel(ErrorLevel)
	child.Info("should not appear")
	if buf.Len() != 0 {
		t.Fatalf("Expected child to follow parent level, got %q", buf.String())
	}

	child.Error("boom")
	if !strings.Contains(buf.String(), "[Mesh/bob] boom") {
		t.Errorf("Expected scoped line, got %q", buf.String())
	}
}

func TestPionFactory(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, "TEST", WarnLevel)
	pl := NewPionFactory(l).NewLogger("ice")

	pl.Infof("gathering %s", "host")
	if buf.Len() != 0 {
		t.Fatalf("Expected pion info to be demoted below warn, got %q", buf.String())
	}

	pl.Warnf("candidate %s dropped", "srflx")
	if !strings.Contains(buf.String(), "[pion/ice] candidate srflx dropped") {
		t.Errorf("Expected pion warning in output, got %q", buf.String())
	}

	buf.Reset()
	pl.Errorf("dtls %s failed at %d%%", "handshake", 50)
	if !strings.Contains(buf.String(), "[pion/ice] dtls handshake failed at 50%") {
		t.Errorf("Expected formatted pion error, got %q", buf.String())
	}
}
