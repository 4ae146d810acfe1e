package monitoring

import (
	"bytes"
	"os"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestSetLogWriters(t *testing.T) {
	defer SetLogWriters(LogWriters{Ops: os.Stderr})

	var ops, diag bytes.Buffer
	SetLogWriters(LogWriters{Ops: &ops, Diag: &diag})

	Opsf("sensor armed: %d lasers", 16)
	Diagf("skipped line %d", 3)
	Tracef("not written")

	if !strings.Contains(ops.String(), "sensor armed: 16 lasers") {
		t.Errorf("ops stream = %q, want armed message", ops.String())
	}
	if !strings.Contains(diag.String(), "skipped line 3") {
		t.Errorf("diag stream = %q, want skip message", diag.String())
	}
	if strings.Contains(ops.String(), "skipped") {
		t.Error("diag message leaked into ops stream")
	}
}

func TestSetLogger_RoutesAllStreams(t *testing.T) {
	defer SetLogWriters(LogWriters{Ops: os.Stderr})

	core, logs := observer.New(zap.DebugLevel)
	SetLogger(zap.New(core))

	Opsf("a")
	Diagf("b")
	Tracef("c")

	if got := logs.Len(); got != 3 {
		t.Fatalf("observed %d entries, want 3", got)
	}
	streams := map[string]bool{}
	for _, e := range logs.All() {
		streams[e.ContextMap()["stream"].(string)] = true
	}
	for _, s := range []string{"ops", "diag", "trace"} {
		if !streams[s] {
			t.Errorf("missing stream %q", s)
		}
	}
}

func TestSetLogger_NilMutes(t *testing.T) {
	defer SetLogWriters(LogWriters{Ops: os.Stderr})

	SetLogger(nil)
	// Must not panic.
	Opsf("muted")
	Diagf("muted")
	Tracef("muted")
	Sync()
}
