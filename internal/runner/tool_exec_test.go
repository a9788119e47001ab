package runner_test

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/anthropics/anthropic-sdk-go"

	"github.com/petasbytes/repo-agent/internal/githubtest"
	"github.com/petasbytes/repo-agent/internal/provider"
	"github.com/petasbytes/repo-agent/internal/repo"
	"github.com/petasbytes/repo-agent/internal/runner"
	"github.com/petasbytes/repo-agent/internal/telemetry"
	"github.com/petasbytes/repo-agent/tools"
)

// observe turns telemetry on into a temp dir and returns it.
func observe(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv(telemetry.EnvObserve, "1")
	t.Setenv(telemetry.EnvArtifacts, dir)
	return dir
}

func readEventLines(t *testing.T, dir string) []string {
	t.Helper()
	f, err := os.Open(filepath.Join(dir, "events.jsonl"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		t.Fatalf("open events: %v", err)
	}
	defer f.Close()
	var lines []string
	s := bufio.NewScanner(f)
	for s.Scan() {
		if line := strings.TrimSpace(s.Text()); line != "" {
			lines = append(lines, line)
		}
	}
	if err := s.Err(); err != nil {
		t.Fatalf("scan events: %v", err)
	}
	return lines
}

func eventsNamed(t *testing.T, dir, name string) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range readEventLines(t, dir) {
		var m map[string]any
		if err := json.Unmarshal([]byte(line), &m); err != nil {
			t.Fatalf("invalid JSON line %q: %v", line, err)
		}
		if m["event"] == name {
			out = append(out, m)
		}
	}
	return out
}

// githubTools wires the real tool registry to a fake GitHub.
func githubTools(t *testing.T) ([]tools.ToolDefinition, *githubtest.Server) {
	t.Helper()
	srv := githubtest.New(t)
	srv.Put(srv.DefaultBranch, "notes/todo.txt", "secret plans")
	ref, err := repo.ParseRef("https://github.com/" + srv.Repo())
	if err != nil {
		t.Fatalf("ParseRef: %v", err)
	}
	lazy := repo.NewLazy(func(ctx context.Context) (*repo.Client, error) {
		return repo.Connect(ctx, ref, repo.Options{Token: srv.Token, BaseURL: srv.URL})
	})
	return tools.Registry(tools.NewExecutor(tools.FromLazy(lazy))), srv
}

func TestRunner_ToolExec_JSONL_Success(t *testing.T) {
	dir := observe(t)
	defs, _ := githubTools(t)

	fake := &fakeTransport{bodies: []string{toolReply("t1", "list_files", `{"path":"notes"}`)}}
	r := runner.New(newClientWithTransport(fake), defs, runner.WithOutput(io.Discard))
	conv := []anthropic.MessageParam{anthropic.NewUserMessage(anthropic.NewTextBlock("please list notes"))}

	_, results, err := r.RunOneStep(context.Background(), provider.DefaultModel, conv)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected one tool result, got %d", len(results))
	}

	execs := eventsNamed(t, dir, "tool_exec")
	if len(execs) != 1 {
		t.Fatalf("expected 1 tool_exec event, got %d", len(execs))
	}
	exec := execs[0]
	if exec["tool_name"] != "list_files" {
		t.Fatalf("tool_name = %v", exec["tool_name"])
	}
	if exec["error"] != nil {
		t.Fatalf("expected nil error, got %v", exec["error"])
	}
	if v, ok := exec["output_size"].(float64); !ok || v <= 0 {
		t.Fatalf("expected positive output_size, got %v", exec["output_size"])
	}
	if v, ok := exec["input_size"].(float64); !ok || v != float64(len(`{"path":"notes"}`)) {
		t.Fatalf("input_size = %v", exec["input_size"])
	}
	if _, ok := exec["duration_ms"].(float64); !ok {
		t.Fatalf("missing duration_ms: %v", exec)
	}
}

func TestRunner_ToolExec_JSONL_HandlerError(t *testing.T) {
	dir := observe(t)
	defs, _ := githubTools(t)

	fake := &fakeTransport{bodies: []string{toolReply("t1", "read_file", `{"file_path":"missing.txt"}`)}}
	r := runner.New(newClientWithTransport(fake), defs, runner.WithOutput(io.Discard))
	conv := []anthropic.MessageParam{anthropic.NewUserMessage(anthropic.NewTextBlock("read it"))}

	if _, _, err := r.RunOneStep(context.Background(), provider.DefaultModel, conv); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	execs := eventsNamed(t, dir, "tool_exec")
	if len(execs) != 1 || execs[0]["error"] != "tool error" {
		t.Fatalf("expected a tool error event, got %v", execs)
	}
}

func TestRunner_ToolExec_JSONL_ToolNotFound(t *testing.T) {
	dir := observe(t)

	fake := &fakeTransport{bodies: []string{toolReply("t1", "format_disk", `{}`)}}
	r := runner.New(newClientWithTransport(fake), nil, runner.WithOutput(io.Discard))
	conv := []anthropic.MessageParam{anthropic.NewUserMessage(anthropic.NewTextBlock("x"))}

	if _, _, err := r.RunOneStep(context.Background(), provider.DefaultModel, conv); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	execs := eventsNamed(t, dir, "tool_exec")
	if len(execs) != 1 || execs[0]["error"] != "tool not found" {
		t.Fatalf("expected tool not found event, got %v", execs)
	}
	if execs[0]["output_size"] != float64(0) {
		t.Fatalf("output_size = %v", execs[0]["output_size"])
	}
}

func TestRunner_Gating_Off_NoWrites(t *testing.T) {
	dir := t.TempDir()
	t.Setenv(telemetry.EnvObserve, "")
	t.Setenv(telemetry.EnvArtifacts, dir)

	fake := &fakeTransport{bodies: []string{textReply("hi")}}
	r := runner.New(newClientWithTransport(fake), nil, runner.WithOutput(io.Discard))
	if _, _, err := r.Turn(context.Background(), nil, "hello"); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "events.jsonl")); !os.IsNotExist(err) {
		t.Fatalf("expected no events file, stat err = %v", err)
	}
}

func TestRunner_TurnID_Propagation(t *testing.T) {
	dir := observe(t)
	defs, _ := githubTools(t)

	fake := &fakeTransport{bodies: []string{
		toolReply("t1", "get_current_time", `{}`),
		textReply("it is now"),
	}}
	r := runner.New(newClientWithTransport(fake), defs, runner.WithOutput(io.Discard))

	ctx := telemetry.WithTurnID(context.Background(), "turn-fixed")
	if _, _, err := r.Turn(ctx, nil, "what time is it?"); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}

	windows := eventsNamed(t, dir, "window_prepared")
	if len(windows) != 2 {
		t.Fatalf("expected 2 window_prepared events, got %d", len(windows))
	}
	for _, w := range windows {
		if w["turn_id"] != "turn-fixed" {
			t.Fatalf("window turn_id = %v", w["turn_id"])
		}
	}
	execs := eventsNamed(t, dir, "tool_exec")
	if len(execs) != 1 || execs[0]["turn_id"] != "turn-fixed" {
		t.Fatalf("tool_exec turn_id mismatch: %v", execs)
	}
	inputs := eventsNamed(t, dir, "user_input")
	if len(inputs) != 1 || inputs[0]["turn_id"] != "turn-fixed" {
		t.Fatalf("user_input turn_id mismatch: %v", inputs)
	}
}

func TestRunner_TurnID_Generated(t *testing.T) {
	dir := observe(t)

	fake := &fakeTransport{bodies: []string{textReply("hi")}}
	r := runner.New(newClientWithTransport(fake), nil, runner.WithOutput(io.Discard))
	if _, _, err := r.Turn(context.Background(), nil, "hello"); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	windows := eventsNamed(t, dir, "window_prepared")
	inputs := eventsNamed(t, dir, "user_input")
	if len(windows) != 1 || len(inputs) != 1 {
		t.Fatalf("unexpected events: %d windows, %d inputs", len(windows), len(inputs))
	}
	id, _ := windows[0]["turn_id"].(string)
	if id == "" || inputs[0]["turn_id"] != id {
		t.Fatalf("expected one generated turn id, got %v and %v", windows[0]["turn_id"], inputs[0]["turn_id"])
	}
}

func TestRunner_Privacy_NoRawPayloadLeak(t *testing.T) {
	dir := observe(t)
	defs, _ := githubTools(t)

	fake := &fakeTransport{bodies: []string{
		toolReply("t1", "read_file", `{"file_path":"notes/todo.txt"}`),
		textReply("done"),
	}}
	r := runner.New(newClientWithTransport(fake), defs, runner.WithOutput(io.Discard))
	if _, _, err := r.Turn(context.Background(), nil, "my password is hunter2"); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}

	for _, line := range readEventLines(t, dir) {
		for _, secret := range []string{"secret plans", "hunter2", "notes/todo.txt"} {
			if strings.Contains(line, secret) {
				t.Fatalf("event leaked %q: %s", secret, line)
			}
		}
	}
}
