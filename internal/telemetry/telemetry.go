// Package telemetry appends structured events to a local JSONL file.
//
// Emission is off unless AGT_OBSERVE_JSON is truthy. Events land in
// $AGT_ARTIFACTS_DIR/events.jsonl (".agent" by default). Events carry
// counts, durations and outcome kinds only; file contents and prompts are
// never written.
package telemetry

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/baalimago/go_away_boilerplate/pkg/misc"
)

const (
	EnvObserve   = "AGT_OBSERVE_JSON"
	EnvArtifacts = "AGT_ARTIFACTS_DIR"

	defaultDir = ".agent"
	eventsFile = "events.jsonl"
)

var mu sync.Mutex

// Enabled reports whether events are written.
func Enabled() bool {
	return misc.Truthy(os.Getenv(EnvObserve))
}

// Dir is the directory holding events.jsonl.
func Dir() string {
	if d := os.Getenv(EnvArtifacts); d != "" {
		return d
	}
	return defaultDir
}

// Emit writes one JSON line with the given fields plus "event" and "time".
// Failures are reported on stderr and never returned.
func Emit(name string, fields map[string]any) {
	if !Enabled() {
		return
	}

	m := make(map[string]any, len(fields)+2)
	for k, v := range fields {
		m[k] = v
	}
	m["time"] = time.Now().UTC().Format(time.RFC3339Nano)
	m["event"] = name

	b, err := json.Marshal(m)
	if err != nil {
		fmt.Fprintf(os.Stderr, "telemetry: marshal: %v\n", err)
		return
	}

	mu.Lock()
	defer mu.Unlock()

	dir := Dir()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "telemetry: mkdir %s: %v\n", dir, err)
		return
	}
	path := filepath.Join(dir, eventsFile)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		fmt.Fprintf(os.Stderr, "telemetry: open %s: %v\n", path, err)
		return
	}
	defer f.Close()

	if _, err := f.Write(append(b, '\n')); err != nil {
		fmt.Fprintf(os.Stderr, "telemetry: write %s: %v\n", path, err)
	}
}
