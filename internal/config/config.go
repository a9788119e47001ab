// Package config resolves the agent's settings from the process environment
// and an optional dotenv file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"github.com/petasbytes/repo-agent/internal/repo"
)

const (
	KeyGitHubToken = "GITHUB_PAT"
	KeyAPIKey      = "ANTHROPIC_API_KEY"
	KeyRepoURL     = "GITHUB_REPO_URL"
	KeyModel       = "AGT_MODEL"
	KeyGitHubAPI   = "GITHUB_API_URL"
	KeyTokenBudget = "AGT_TOKEN_BUDGET"
	KeyAPIURL      = "ANTHROPIC_BASE_URL"

	DefaultTokenBudget = 12000
)

var (
	ErrMissingConfiguration = errors.New("missing configuration")
	ErrInvalidConfiguration = errors.New("invalid configuration")
)

// Config is the resolved, read-only configuration.
type Config struct {
	GitHubToken string
	APIKey      string
	RepoURL     string
	Repo        repo.Ref
	Model       string
	GitHubAPI   string
	APIURL      string
	TokenBudget int
}

// Source looks up a configuration value by key.
type Source interface {
	Lookup(key string) (string, bool)
}

type environ struct{}

func (environ) Lookup(key string) (string, bool) { return os.LookupEnv(key) }

// Environ reads the process environment.
func Environ() Source { return environ{} }

// Map is a fixed set of values.
type Map map[string]string

func (m Map) Lookup(key string) (string, bool) {
	v, ok := m[key]
	return v, ok
}

type chain []Source

func (c chain) Lookup(key string) (string, bool) {
	for _, s := range c {
		if s == nil {
			continue
		}
		if v, ok := s.Lookup(key); ok && v != "" {
			return v, true
		}
	}
	return "", false
}

// Chain consults sources in order; the first non-empty value wins.
func Chain(sources ...Source) Source { return chain(sources) }

// FromFile parses a dotenv file without touching the process environment.
// A missing file yields an empty source unless required is set.
func FromFile(path string, required bool) (Source, error) {
	values, err := godotenv.Read(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) && !required {
			return Map{}, nil
		}
		return nil, fmt.Errorf("read env file %s: %w", path, err)
	}
	return Map(values), nil
}

// Load resolves everything the GitHub agent needs. Required keys are
// checked in a fixed order and the first one missing is reported.
func Load(src Source) (Config, error) {
	return withRef(load(src, KeyGitHubToken, KeyAPIKey, KeyRepoURL))
}

// LoadRepo resolves the repository settings alone, for the literal
// command mode.
func LoadRepo(src Source) (Config, error) {
	return withRef(load(src, KeyGitHubToken, KeyRepoURL))
}

func withRef(cfg Config, err error) (Config, error) {
	if err != nil {
		return Config{}, err
	}
	ref, err := repo.ParseRef(cfg.RepoURL)
	if err != nil {
		return Config{}, fmt.Errorf("%w: %s: %w", ErrInvalidConfiguration, KeyRepoURL, err)
	}
	cfg.Repo = ref
	return cfg, nil
}

// LoadLLM resolves the settings of agents that do not touch a repository.
func LoadLLM(src Source) (Config, error) {
	return load(src, KeyAPIKey)
}

func load(src Source, required ...string) (Config, error) {
	for _, key := range required {
		if lookup(src, key) == "" {
			return Config{}, fmt.Errorf("%w: %s is not set", ErrMissingConfiguration, key)
		}
	}

	cfg := Config{
		GitHubToken: lookup(src, KeyGitHubToken),
		APIKey:      lookup(src, KeyAPIKey),
		RepoURL:     lookup(src, KeyRepoURL),
		Model:       lookup(src, KeyModel),
		GitHubAPI:   lookup(src, KeyGitHubAPI),
		APIURL:      lookup(src, KeyAPIURL),
		TokenBudget: DefaultTokenBudget,
	}
	if v := lookup(src, KeyTokenBudget); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return Config{}, fmt.Errorf("%w: %s must be a positive integer, got %q", ErrInvalidConfiguration, KeyTokenBudget, v)
		}
		cfg.TokenBudget = n
	}
	return cfg, nil
}

func lookup(src Source, key string) string {
	v, _ := src.Lookup(key)
	return strings.TrimSpace(v)
}
