// Package agent binds an instruction and a tool set under a named agent
// identity. Agents are described by YAML profiles; three are embedded:
// github_agent, greeting_agent and tool_agent.
package agent

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/template"

	"github.com/petasbytes/repo-agent/tools"
)

// Config is a resolved agent, ready to hand to the runner.
type Config struct {
	Name        string
	Description string
	Model       string
	Instruction string
	Tools       []tools.ToolDefinition
}

// Status describes the repository an agent works on. It is rendered into
// templated instructions.
type Status struct {
	Repo      string
	Connected bool
	Login     string
	Error     string
}

// Build resolves p's instruction and picks its tools from available.
func (p Profile) Build(status Status, available []tools.ToolDefinition) (Config, error) {
	instruction, err := p.instruction(status)
	if err != nil {
		return Config{}, err
	}
	defs, err := tools.Select(available, p.Tools...)
	if err != nil {
		return Config{}, fmt.Errorf("agent %s: %w", p.Name, err)
	}
	return Config{
		Name:        p.Name,
		Description: p.Description,
		Model:       p.Model,
		Instruction: instruction,
		Tools:       defs,
	}, nil
}

func (p Profile) instruction(status Status) (string, error) {
	switch {
	case p.Template != "":
		return renderTemplate(p.Template, status)
	case p.InstructionFile != "":
		file := p.InstructionFile
		if !filepath.IsAbs(file) && p.dir != "" {
			file = filepath.Join(p.dir, file)
		}
		return LoadInstruction(file)
	}
	return strings.TrimSpace(p.Instruction), nil
}

// LoadInstruction reads an instruction from a text file.
func LoadInstruction(file string) (string, error) {
	b, err := os.ReadFile(file)
	if err != nil {
		return "", fmt.Errorf("load instruction: %w", err)
	}
	s := strings.TrimSpace(string(b))
	if s == "" {
		return "", fmt.Errorf("load instruction: %s is empty", file)
	}
	return s, nil
}

func renderTemplate(name string, status Status) (string, error) {
	tmpl, err := template.New(name).Option("missingkey=error").ParseFS(instructionsFS, "instructions/"+name)
	if err != nil {
		return "", fmt.Errorf("instruction template %s: %w", name, err)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, status); err != nil {
		return "", fmt.Errorf("render %s: %w", name, err)
	}
	return strings.TrimSpace(buf.String()), nil
}
