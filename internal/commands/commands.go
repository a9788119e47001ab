// Package commands is a literal, non-LLM front end to the repository
// tools. Each input line is parsed into a typed tools.Command and executed
// by the same Executor the model uses, so its output is the exact envelope
// the model would see.
package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/baalimago/go_away_boilerplate/pkg/debug"

	"github.com/petasbytes/repo-agent/tools"
)

var (
	ErrUnknownCommand = errors.New("unknown command")
	ErrUsage          = errors.New("usage")
)

const Help = `Commands:
  list files [path]                  list a directory (root when path is omitted)
  read file <path>                   print a file and its sha
  create file <path> <content...>    create a new file
  update file <path> <sha> <content...>
                                     overwrite a file; sha comes from read file
  delete file <path> <sha>           delete a file
  repo info [owner/name]             describe a repository (the configured one by default)
  list repos <user>                  list a user's public repositories
  time                               current local time
  help                               this text
  exit                               quit`

// usage lines keyed by operation.
var usage = map[string]string{
	"list_files":      "list files [path]",
	"read_file":       "read file <path>",
	"create_file":     "create file <path> <content...>",
	"update_file":     "update file <path> <sha> <content...>",
	"delete_file":     "delete file <path> <sha>",
	"repo_info":       "repo info [owner/name]",
	"list_user_repos": "list repos <user>",
}

// Parse converts one input line into a command. Content arguments take the
// rest of the line verbatim, with \n and \t escapes expanded.
func Parse(line string) (tools.Command, error) {
	verb, rest := split(line)
	switch strings.ToLower(verb) {
	case "time":
		if rest != "" {
			return nil, fmt.Errorf("%w: time", ErrUsage)
		}
		return tools.CurrentTime{}, nil
	case "list", "read", "create", "update", "delete", "repo":
	default:
		return nil, fmt.Errorf("%w %q, type 'help' for a list", ErrUnknownCommand, verb)
	}

	noun, rest := split(rest)
	switch {
	case strings.EqualFold(verb, "repo") && strings.EqualFold(noun, "info"):
		return parseRepoInfo(rest)
	case strings.EqualFold(verb, "list") && strings.EqualFold(noun, "repos"):
		user, extra := split(rest)
		if user == "" || extra != "" {
			return nil, usageErr("list_user_repos")
		}
		return tools.ListUserRepos{Username: user}, nil
	}
	if strings.EqualFold(verb, "repo") || (strings.ToLower(noun) != "file" && strings.ToLower(noun) != "files") {
		return nil, fmt.Errorf("%w %q, type 'help' for a list", ErrUnknownCommand, strings.TrimSpace(verb+" "+noun))
	}

	switch strings.ToLower(verb) {
	case "list":
		path, extra := split(rest)
		if extra != "" {
			return nil, usageErr("list_files")
		}
		return tools.ListFiles{Path: path}, nil

	case "read":
		path, extra := split(rest)
		if path == "" || extra != "" {
			return nil, usageErr("read_file")
		}
		return tools.ReadFile{FilePath: path}, nil

	case "create":
		path, content := split(rest)
		if path == "" || content == "" {
			return nil, usageErr("create_file")
		}
		content = unescape(content)
		return tools.CreateFile{FilePath: path, Content: &content}, nil

	case "update":
		path, tail := split(rest)
		sha, content := split(tail)
		if path == "" || sha == "" || content == "" {
			return nil, usageErr("update_file")
		}
		content = unescape(content)
		return tools.UpdateFile{FilePath: path, SHA: sha, NewContent: &content}, nil

	default: // delete
		path, tail := split(rest)
		sha, extra := split(tail)
		if path == "" || sha == "" || extra != "" {
			return nil, usageErr("delete_file")
		}
		return tools.DeleteFile{FilePath: path, SHA: sha}, nil
	}
}

func parseRepoInfo(rest string) (tools.Command, error) {
	target, extra := split(rest)
	if extra != "" {
		return nil, usageErr("repo_info")
	}
	if target == "" {
		return tools.RepoInfo{}, nil
	}
	owner, name, ok := strings.Cut(target, "/")
	if !ok || owner == "" || name == "" {
		return nil, usageErr("repo_info")
	}
	return tools.RepoInfo{Owner: owner, Repo: name}, nil
}

func usageErr(op string) error {
	return fmt.Errorf("%w: %s", ErrUsage, usage[op])
}

// split returns the first whitespace-delimited word of s and the remainder
// with leading whitespace removed.
func split(s string) (string, string) {
	s = strings.TrimLeft(s, " \t")
	i := strings.IndexAny(s, " \t")
	if i < 0 {
		return strings.TrimRight(s, " \t\r\n"), ""
	}
	return s[:i], strings.TrimLeft(s[i:], " \t")
}

var escapes = strings.NewReplacer(`\n`, "\n", `\t`, "\t", `\\`, `\`)

func unescape(s string) string {
	return escapes.Replace(strings.TrimRight(s, "\r\n"))
}

// Harness executes literal commands and prints their envelopes.
type Harness struct {
	exec *tools.Executor
	out  io.Writer
}

func New(exec *tools.Executor, out io.Writer) *Harness {
	return &Harness{exec: exec, out: out}
}

// Run handles one input line. Parse errors are returned; execution
// failures are printed as error envelopes and reported through the
// returned Result.
func (h *Harness) Run(ctx context.Context, line string) (tools.Result, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return tools.Result{}, nil
	}
	if strings.EqualFold(line, "help") {
		fmt.Fprintln(h.out, Help)
		return tools.Result{}, nil
	}

	cmd, err := Parse(line)
	if err != nil {
		return tools.Result{}, err
	}
	res := h.exec.Execute(ctx, cmd)
	fmt.Fprintln(h.out, debug.IndentedJsonFmt(res))
	return res, nil
}
