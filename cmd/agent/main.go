package main

import (
	"context"
	"os"

	"github.com/alecthomas/kong"
	"github.com/baalimago/go_away_boilerplate/pkg/ancli"
	"github.com/baalimago/go_away_boilerplate/pkg/shutdown"

	"github.com/petasbytes/repo-agent/internal/config"
)

type CLI struct {
	Agent           string `name:"agent" default:"github_agent" help:"Built-in agent to run (github_agent, greeting_agent, tool_agent)."`
	Profile         string `name:"profile" help:"Agent profile YAML file; overrides --agent." type:"path"`
	Commands        bool   `name:"commands" help:"Run literal repository commands instead of talking to the model."`
	EnvFile         string `name:"env-file" default:".env" help:"Dotenv file read for configuration." type:"path"`
	RequireEnvFile  bool   `name:"require-env-file" help:"Fail when the env file is missing."`
	InstructionFile string `name:"instruction-file" help:"Read the agent instruction from this file." type:"path"`
	Model           string `name:"model" help:"Model name; overrides AGT_MODEL and the profile."`
	History         string `name:"history" help:"Persist the conversation to this file and resume from it." type:"path"`
	ListAgents      bool   `name:"list-agents" help:"Print the built-in agents and exit."`
	Debug           bool   `name:"debug" help:"Enable debug logging."`
}

func main() {
	cli := CLI{}
	kong.Parse(&cli,
		kong.Name("agent"),
		kong.Description("LLM agent that reads and edits files in a GitHub repository"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{Compact: true}),
	)

	if cli.Debug {
		os.Setenv("DEBUG", "true")
	}
	ancli.SetupSlog()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { shutdown.Monitor(cancel) }()

	code := run(ctx, cli, config.Environ(), os.Stdin, os.Stdout)
	cancel()
	os.Exit(code)
}
