package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/baalimago/go_away_boilerplate/pkg/ancli"

	"github.com/petasbytes/repo-agent/internal/agent"
	"github.com/petasbytes/repo-agent/internal/commands"
	"github.com/petasbytes/repo-agent/internal/config"
	"github.com/petasbytes/repo-agent/internal/provider"
	"github.com/petasbytes/repo-agent/internal/repo"
	"github.com/petasbytes/repo-agent/internal/runner"
	"github.com/petasbytes/repo-agent/memory"
	"github.com/petasbytes/repo-agent/tools"
)

// run executes one CLI invocation and returns the process exit code.
// Configuration is read from env, then from cli.EnvFile.
func run(ctx context.Context, cli CLI, env config.Source, in io.Reader, out io.Writer) int {
	if cli.ListAgents {
		for _, name := range agent.Builtins() {
			fmt.Fprintln(out, name)
		}
		return 0
	}

	file, err := config.FromFile(cli.EnvFile, cli.RequireEnvFile)
	if err != nil {
		ancli.PrintErr(fmt.Sprintf("%v\n", err))
		return 1
	}
	src := config.Chain(env, file)

	if cli.Commands {
		err = runCommands(ctx, src, in, out)
	} else {
		err = runChat(ctx, cli, src, in, out)
	}
	if err != nil {
		ancli.PrintErr(fmt.Sprintf("%v\n", err))
		return 1
	}
	return 0
}

func newLazy(cfg config.Config) *repo.Lazy {
	return repo.NewLazy(func(ctx context.Context) (*repo.Client, error) {
		return repo.Connect(ctx, cfg.Repo, repo.Options{Token: cfg.GitHubToken, BaseURL: cfg.GitHubAPI})
	})
}

// connect makes the first connection attempt so the agent can be told
// whether the repository is usable. A failure is not fatal; the next tool
// call retries.
func connect(ctx context.Context, lazy *repo.Lazy, ref repo.Ref) agent.Status {
	status := agent.Status{Repo: ref.String()}
	c, err := lazy.Get(ctx)
	if err != nil {
		status.Error = err.Error()
		ancli.PrintWarn(fmt.Sprintf("could not connect to %s: %v\n", ref, err))
		return status
	}
	status.Connected = true
	status.Login = c.Login()
	ancli.PrintOK(fmt.Sprintf("connected to %s as %s (default branch %s)\n", c.FullName(), c.Login(), c.DefaultBranch()))
	return status
}

func runCommands(ctx context.Context, src config.Source, in io.Reader, out io.Writer) error {
	cfg, err := config.LoadRepo(src)
	if err != nil {
		return err
	}
	lazy := newLazy(cfg)
	connect(ctx, lazy, cfg.Repo)

	h := commands.New(tools.NewExecutor(tools.FromLazy(lazy)), out)
	fmt.Fprintf(out, "Repository commands for %s (type 'help', 'exit' to quit)\n", cfg.Repo)
	return repl(ctx, in, out, func(line string) {
		if _, err := h.Run(ctx, line); err != nil {
			fmt.Fprintf(out, "error: %v\n", err)
		}
	})
}

func loadProfile(cli CLI) (agent.Profile, error) {
	var (
		p   agent.Profile
		err error
	)
	if cli.Profile != "" {
		p, err = agent.LoadProfile(cli.Profile)
	} else {
		p, err = agent.Builtin(cli.Agent)
	}
	if err != nil {
		return agent.Profile{}, err
	}
	if cli.InstructionFile != "" {
		p = p.WithInstructionFile(cli.InstructionFile)
	}
	return p, nil
}

func runChat(ctx context.Context, cli CLI, src config.Source, in io.Reader, out io.Writer) error {
	profile, err := loadProfile(cli)
	if err != nil {
		return err
	}

	var (
		cfg    config.Config
		source tools.Source
		status agent.Status
	)
	if profile.RequiresRepository {
		cfg, err = config.Load(src)
		if err != nil {
			return err
		}
		lazy := newLazy(cfg)
		status = connect(ctx, lazy, cfg.Repo)
		source = tools.FromLazy(lazy)
	} else {
		cfg, err = config.LoadLLM(src)
		if err != nil {
			return err
		}
	}

	ag, err := profile.Build(status, tools.Registry(tools.NewExecutor(source)))
	if err != nil {
		return err
	}

	var opts []option.RequestOption
	if cfg.APIURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.APIURL))
	}
	model := provider.ResolveModel(cli.Model, cfg.Model, ag.Model)
	r := runner.New(provider.NewAnthropicClient(cfg.APIKey, opts...), ag.Tools,
		runner.WithSystem(ag.Instruction),
		runner.WithModel(model),
		runner.WithBudget(cfg.TokenBudget),
		runner.WithOutput(out),
	)
	slog.Debug("agent ready", "agent", ag.Name, "model", model, "tools", len(ag.Tools))

	transcript, conv := resume(cli.History, ag.Name, status.Repo)

	fmt.Fprintf(out, "Chat with %s (%s). Type 'exit' to quit.\n", ag.Name, model)
	return repl(ctx, in, out, func(line string) {
		next, reply, err := r.Turn(ctx, conv, line)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			ancli.PrintErr(fmt.Sprintf("%v\n", err))
			return
		}
		conv = next
		if cli.History == "" || reply == "" {
			return
		}
		transcript.Append(line, reply)
		if err := memory.Save(cli.History, transcript); err != nil {
			ancli.PrintWarn(fmt.Sprintf("failed to save conversation: %v\n", err))
		}
	})
}

// resume loads the transcript at path when it belongs to the same agent and
// repository. Any other transcript is replaced on the next save.
func resume(path, agentName, repoName string) (memory.Transcript, []anthropic.MessageParam) {
	fresh := memory.Transcript{Agent: agentName, Repo: repoName}
	if path == "" {
		return fresh, nil
	}
	t, err := memory.Load(path)
	if err != nil {
		ancli.PrintWarn(fmt.Sprintf("failed to load conversation: %v\n", err))
		return fresh, nil
	}
	if len(t.Messages) == 0 {
		return fresh, nil
	}
	if !t.Belongs(agentName, repoName) {
		ancli.PrintWarn(fmt.Sprintf("%s belongs to agent %q on %q, starting a new conversation\n", path, t.Agent, t.Repo))
		return fresh, nil
	}
	ancli.Noticef("resuming %d messages from %s\n", len(t.Messages), path)
	return t, t.Params()
}

// repl feeds non-empty input lines to handle until "exit", end of input or
// cancellation.
func repl(ctx context.Context, in io.Reader, out io.Writer, handle func(line string)) error {
	lines := make(chan string)
	scanErr := make(chan error, 1)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		scanErr <- scanner.Err()
	}()

	for {
		fmt.Fprintf(out, "%s: ", ancli.ColoredMessage(ancli.BLUE, "You"))
		var (
			line string
			ok   bool
		)
		select {
		case <-ctx.Done():
			fmt.Fprintln(out)
			return nil
		case line, ok = <-lines:
		}
		if !ok {
			fmt.Fprintln(out)
			select {
			case err := <-scanErr:
				if err != nil {
					return fmt.Errorf("read input: %w", err)
				}
			default:
			}
			return nil
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if line == "exit" {
			return nil
		}
		handle(line)
	}
}
