package log

import (
	"bytes"
	"os"
	"strings"
	"testing"
)

func TestSetLevel(t *testing.T) {
	var buf bytes.Buffer
	SetSink(&buf)
	defer SetSink(os.Stdout)
	SetLevel(Info)
	defer SetLevel(Notice)

	logger := New("logtest")
	logger.Debugf("hidden %d", 1)
	logger.Infof("shown %d", 2)
	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("debug message written at info level: %q", out)
	}
	if !strings.Contains(out, "shown 2") || !strings.Contains(out, "[logtest]") {
		t.Errorf("info message missing or malformed: %q", out)
	}

	buf.Reset()
	SetModuleLevel("logtest", Debug)
	logger.Debug("now visible")
	if !strings.Contains(buf.String(), "now visible") {
		t.Errorf("module level override not applied: %q", buf.String())
	}
}

func TestParseLevel(t *testing.T) {
	for _, level := range []Level{Debug, Info, Notice, Warning, Error} {
		got, err := ParseLevel(strings.ToUpper(level.String()))
		if err != nil {
			t.Fatal(err)
		}
		if got != level {
			t.Errorf("ParseLevel(%q)=%v, want %v", level.String(), got, level)
		}
	}
	if _, err := ParseLevel("loud"); err == nil {
		t.Error("expected error for unknown level")
	}
}
