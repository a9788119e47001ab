package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/baalimago/go_away_boilerplate/pkg/testboil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/petasbytes/repo-agent/internal/config"
	"github.com/petasbytes/repo-agent/internal/githubtest"
	"github.com/petasbytes/repo-agent/memory"
)

// fakeLLM serves scripted Messages API replies and records request bodies.
type fakeLLM struct {
	*httptest.Server

	mu      sync.Mutex
	replies []string
	bodies  []map[string]any
}

func newFakeLLM(t *testing.T, replies ...string) *fakeLLM {
	t.Helper()
	f := &fakeLLM{replies: replies}
	f.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		var body map[string]any
		_ = json.Unmarshal(b, &body)

		f.mu.Lock()
		idx := len(f.bodies)
		f.bodies = append(f.bodies, body)
		reply := f.replies[min(idx, len(f.replies)-1)]
		f.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, reply)
	}))
	t.Cleanup(f.Close)
	return f
}

func (f *fakeLLM) system(t *testing.T, i int) string {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.Greater(t, len(f.bodies), i)
	blocks, _ := f.bodies[i]["system"].([]any)
	var sb strings.Builder
	for _, b := range blocks {
		if m, ok := b.(map[string]any); ok {
			sb.WriteString(m["text"].(string))
		}
	}
	return sb.String()
}

func (f *fakeLLM) messageCount(t *testing.T, i int) int {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.Greater(t, len(f.bodies), i)
	msgs, _ := f.bodies[i]["messages"].([]any)
	return len(msgs)
}

func textReply(text string) string {
	b, _ := json.Marshal(map[string]any{
		"id": "msg_1", "type": "message", "role": "assistant", "model": "test",
		"stop_reason": "end_turn",
		"content":     []map[string]any{{"type": "text", "text": text}},
		"usage":       map[string]any{"input_tokens": 1, "output_tokens": 1},
	})
	return string(b)
}

func toolReply(name, input string) string {
	return `{"id":"msg_2","type":"message","role":"assistant","model":"test","stop_reason":"tool_use",
		"content":[{"type":"tool_use","id":"toolu_1","name":"` + name + `","input":` + input + `}],
		"usage":{"input_tokens":1,"output_tokens":1}}`
}

func baseCLI(t *testing.T) CLI {
	return CLI{
		Agent:   "github_agent",
		EnvFile: filepath.Join(t.TempDir(), "absent.env"),
	}
}

func githubEnv(srv *githubtest.Server) config.Map {
	return config.Map{
		config.KeyGitHubToken: srv.Token,
		config.KeyRepoURL:     "https://github.com/" + srv.Repo() + ".git",
		config.KeyGitHubAPI:   srv.URL,
	}
}

func TestRun_ListAgents(t *testing.T) {
	cli := baseCLI(t)
	cli.ListAgents = true
	var out bytes.Buffer

	code := run(context.Background(), cli, config.Map{}, strings.NewReader(""), &out)
	assert.Equal(t, 0, code)
	assert.Equal(t, "github_agent\ngreeting_agent\ntool_agent\n", out.String())
}

func TestRun_MissingConfiguration(t *testing.T) {
	var out bytes.Buffer
	code := run(context.Background(), baseCLI(t), config.Map{}, strings.NewReader("hi\n"), &out)
	assert.Equal(t, 1, code)
	assert.NotContains(t, out.String(), "Chat with")
}

func TestRun_RequiredEnvFileMissing(t *testing.T) {
	cli := baseCLI(t)
	cli.RequireEnvFile = true
	cli.Commands = true

	code := run(context.Background(), cli, config.Map{}, strings.NewReader(""), io.Discard)
	assert.Equal(t, 1, code)
}

func TestRun_UnknownAgent(t *testing.T) {
	cli := baseCLI(t)
	cli.Agent = "nope"
	code := run(context.Background(), cli, config.Map{config.KeyAPIKey: "k"}, strings.NewReader(""), io.Discard)
	assert.Equal(t, 1, code)
}

func TestRun_CommandsMode(t *testing.T) {
	srv := githubtest.New(t)
	srv.Put(srv.DefaultBranch, "notes/todo.txt", "buy milk")
	cli := baseCLI(t)
	cli.Commands = true

	input := strings.Join([]string{
		"list files",
		"read file notes/todo.txt",
		"frobnicate",
		"create file notes/done.txt nothing yet",
		"exit",
		"delete file notes/done.txt whatever",
	}, "\n")

	stdout := testboil.CaptureStdout(t, func(t *testing.T) {
		code := run(context.Background(), cli, githubEnv(srv), strings.NewReader(input), os.Stdout)
		testboil.FailTestIfDiff(t, code, 0)
	})

	testboil.AssertStringContains(t, stdout, `"notes/"`)
	testboil.AssertStringContains(t, stdout, `"content": "buy milk"`)
	testboil.AssertStringContains(t, stdout, "unknown command")
	testboil.AssertStringContains(t, stdout, "File 'notes/done.txt' created")

	_, ok := srv.Content(srv.DefaultBranch, "notes/done.txt")
	assert.True(t, ok, "commands after exit must not run")
}

func TestRun_CommandsMode_BadCredentialsStillStarts(t *testing.T) {
	srv := githubtest.New(t)
	env := githubEnv(srv)
	env[config.KeyGitHubToken] = "wrong"
	cli := baseCLI(t)
	cli.Commands = true

	var out bytes.Buffer
	code := run(context.Background(), cli, env, strings.NewReader("read file a.txt\ntime\n"), &out)
	assert.Equal(t, 0, code)
	assert.Contains(t, out.String(), `"error_kind": "AuthFailure"`)
	assert.Contains(t, out.String(), `"day_of_week"`)
}

func TestRun_GitHubAgentChat(t *testing.T) {
	srv := githubtest.New(t)
	srv.Put(srv.DefaultBranch, "notes/todo.txt", "buy milk")
	llm := newFakeLLM(t,
		toolReply("read_file", `{"file_path":"notes/todo.txt"}`),
		textReply("Your todo list says: buy milk"),
	)
	env := githubEnv(srv)
	env[config.KeyAPIKey] = "sk-test"
	env[config.KeyAPIURL] = llm.URL + "/"

	var out bytes.Buffer
	code := run(context.Background(), baseCLI(t), env, strings.NewReader("what is on my todo list?\nexit\n"), &out)
	require.Equal(t, 0, code)

	assert.Contains(t, out.String(), "Chat with github_agent")
	assert.Contains(t, out.String(), "Your todo list says: buy milk")

	system := llm.system(t, 0)
	assert.Contains(t, system, srv.Repo())
	assert.Contains(t, system, "authenticated as tester")
	// user, assistant(tool_use), user(tool_result)
	assert.Equal(t, 3, llm.messageCount(t, 1))
}

func TestRun_GitHubAgentChat_ConnectionFailureInInstruction(t *testing.T) {
	srv := githubtest.New(t)
	llm := newFakeLLM(t, textReply("The repository is not configured correctly."))
	env := githubEnv(srv)
	env[config.KeyGitHubToken] = "wrong"
	env[config.KeyAPIKey] = "sk-test"
	env[config.KeyAPIURL] = llm.URL + "/"

	code := run(context.Background(), baseCLI(t), env, strings.NewReader("hello\n"), io.Discard)
	require.Equal(t, 0, code)
	assert.Contains(t, llm.system(t, 0), "not configured correctly")
}

func TestRun_GreetingAgentWithInstructionFile(t *testing.T) {
	dir := t.TempDir()
	instr := filepath.Join(dir, "instruction.txt")
	require.NoError(t, os.WriteFile(instr, []byte("Greet the user like a pirate.\n"), 0o600))
	llm := newFakeLLM(t, textReply("Ahoy!"))

	cli := baseCLI(t)
	cli.Agent = "greeting_agent"
	cli.InstructionFile = instr
	env := config.Map{config.KeyAPIKey: "sk-test", config.KeyAPIURL: llm.URL + "/"}

	var out bytes.Buffer
	code := run(context.Background(), cli, env, strings.NewReader("hi\n"), &out)
	require.Equal(t, 0, code)
	assert.Contains(t, out.String(), "Ahoy!")
	assert.Equal(t, "Greet the user like a pirate.", llm.system(t, 0))
}

func TestRun_MissingInstructionFileIsFatal(t *testing.T) {
	cli := baseCLI(t)
	cli.Agent = "greeting_agent"
	cli.InstructionFile = filepath.Join(t.TempDir(), "missing.txt")

	code := run(context.Background(), cli, config.Map{config.KeyAPIKey: "k"}, strings.NewReader("hi\n"), io.Discard)
	assert.Equal(t, 1, code)
}

func TestRun_HistoryResumes(t *testing.T) {
	llm := newFakeLLM(t, textReply("first answer"), textReply("second answer"))
	history := filepath.Join(t.TempDir(), "conversation.json")
	cli := baseCLI(t)
	cli.Agent = "tool_agent"
	cli.History = history
	env := config.Map{config.KeyAPIKey: "sk-test", config.KeyAPIURL: llm.URL + "/"}

	require.Equal(t, 0, run(context.Background(), cli, env, strings.NewReader("one\n"), io.Discard))
	tr, err := memory.Load(history)
	require.NoError(t, err)
	assert.Equal(t, "tool_agent", tr.Agent)
	require.Len(t, tr.Messages, 2)
	assert.Equal(t, "first answer", tr.Messages[1].Text)

	require.Equal(t, 0, run(context.Background(), cli, env, strings.NewReader("two\n"), io.Discard))
	// earlier user and assistant text plus the new message
	assert.Equal(t, 3, llm.messageCount(t, 1))

	// A different agent does not pick the transcript up.
	cli.Agent = "greeting_agent"
	require.Equal(t, 0, run(context.Background(), cli, env, strings.NewReader("three\n"), io.Discard))
	assert.Equal(t, 1, llm.messageCount(t, 2))
}

func TestRun_HistorySkipsNotices(t *testing.T) {
	empty := `{"id":"m","type":"message","role":"assistant","model":"test","content":[],"stop_reason":"refusal","usage":{"input_tokens":1,"output_tokens":0}}`
	llm := newFakeLLM(t, empty, textReply("second answer"))
	history := filepath.Join(t.TempDir(), "conversation.json")
	cli := baseCLI(t)
	cli.Agent = "tool_agent"
	cli.History = history
	env := config.Map{config.KeyAPIKey: "sk-test", config.KeyAPIURL: llm.URL + "/"}

	var out bytes.Buffer
	require.Equal(t, 0, run(context.Background(), cli, env, strings.NewReader("one\ntwo\n"), &out))
	assert.Contains(t, out.String(), "declined")
	// the refused turn is neither resent nor saved
	assert.Equal(t, 1, llm.messageCount(t, 1))

	tr, err := memory.Load(history)
	require.NoError(t, err)
	require.Len(t, tr.Messages, 2)
	assert.Equal(t, "two", tr.Messages[0].Text)
	assert.Equal(t, "second answer", tr.Messages[1].Text)
}

func TestRepl_StopsOnCancel(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()
	testboil.ReturnsOnContextCancel(t, func(ctx context.Context) {
		_ = repl(ctx, pr, io.Discard, func(string) {})
	}, time.Second)
}
