package agent

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed profiles/*.yaml
var profilesFS embed.FS

//go:embed instructions/*.tmpl
var instructionsFS embed.FS

var (
	ErrUnknownAgent   = errors.New("unknown agent")
	ErrInvalidProfile = errors.New("invalid agent profile")
)

// Profile is the on-disk description of an agent.
type Profile struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Model       string `yaml:"model,omitempty"`

	// Exactly one of Instruction, InstructionFile and Template is set.
	Instruction     string `yaml:"instruction,omitempty"`
	InstructionFile string `yaml:"instruction_file,omitempty"`
	Template        string `yaml:"template,omitempty"`

	Tools              []string `yaml:"tools,omitempty"`
	RequiresRepository bool     `yaml:"requires_repository,omitempty"`

	// dir resolves a relative InstructionFile.
	dir string
}

// Builtins lists the names of the embedded profiles.
func Builtins() []string {
	entries, err := fs.ReadDir(profilesFS, "profiles")
	if err != nil {
		return nil
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if name, ok := strings.CutSuffix(e.Name(), ".yaml"); ok {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// Builtin returns the embedded profile called name.
func Builtin(name string) (Profile, error) {
	data, err := profilesFS.ReadFile(path.Join("profiles", name+".yaml"))
	if err != nil {
		return Profile{}, fmt.Errorf("%w %q, available: %s", ErrUnknownAgent, name, strings.Join(Builtins(), ", "))
	}
	return parseProfile(data, name, "")
}

// LoadProfile reads a profile from a YAML file. The profile's name must
// equal the file's base name without extension.
func LoadProfile(file string) (Profile, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return Profile{}, fmt.Errorf("read profile: %w", err)
	}
	identity := strings.TrimSuffix(filepath.Base(file), filepath.Ext(file))
	return parseProfile(data, identity, filepath.Dir(file))
}

func parseProfile(data []byte, identity, dir string) (Profile, error) {
	var p Profile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&p); err != nil {
		return Profile{}, fmt.Errorf("%w %s: %v", ErrInvalidProfile, identity, err)
	}
	p.dir = dir

	if p.Name != identity {
		return Profile{}, fmt.Errorf("%w: name %q does not match its identity %q", ErrInvalidProfile, p.Name, identity)
	}
	sources := 0
	for _, s := range []string{p.Instruction, p.InstructionFile, p.Template} {
		if strings.TrimSpace(s) != "" {
			sources++
		}
	}
	if sources != 1 {
		return Profile{}, fmt.Errorf("%w %s: exactly one of instruction, instruction_file and template must be set", ErrInvalidProfile, identity)
	}
	return p, nil
}

// WithInstructionFile returns a copy of p whose instruction is read from
// file instead.
func (p Profile) WithInstructionFile(file string) Profile {
	p.Instruction, p.Template = "", ""
	p.InstructionFile = file
	p.dir = ""
	return p
}
