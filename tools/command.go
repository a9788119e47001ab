package tools

import (
	"strings"

	"github.com/petasbytes/repo-agent/internal/repo"
)

// Command is one typed tool invocation. Each implementation carries the
// arguments of a single operation and validates them before dispatch.
type Command interface {
	Op() string
	Validate() error
}

type ListFiles struct {
	Path   string `json:"path,omitempty" jsonschema_description:"Directory to list, relative to the repository root. Empty lists the root."`
	Branch string `json:"branch,omitempty" jsonschema_description:"Branch to read from. Defaults to the repository's default branch."`
}

type ReadFile struct {
	FilePath string `json:"file_path" jsonschema_description:"Path of the file, relative to the repository root."`
	Branch   string `json:"branch,omitempty" jsonschema_description:"Branch to read from. Defaults to the repository's default branch."`
}

type CreateFile struct {
	FilePath      string  `json:"file_path" jsonschema_description:"Path of the new file, relative to the repository root."`
	Content       *string `json:"content" jsonschema_description:"Full text content of the new file."`
	CommitMessage string  `json:"commit_message,omitempty" jsonschema_description:"Commit message. Generated when omitted."`
	Branch        string  `json:"branch,omitempty" jsonschema_description:"Branch to commit to. Defaults to the repository's default branch."`
}

type UpdateFile struct {
	FilePath      string  `json:"file_path" jsonschema_description:"Path of the file to overwrite."`
	NewContent    *string `json:"new_content" jsonschema_description:"Full replacement content of the file."`
	SHA           string  `json:"sha" jsonschema_description:"sha of the current version, as returned by read_file."`
	CommitMessage string  `json:"commit_message,omitempty" jsonschema_description:"Commit message. Generated when omitted."`
	Branch        string  `json:"branch,omitempty" jsonschema_description:"Branch to commit to. Defaults to the repository's default branch."`
}

type DeleteFile struct {
	FilePath      string `json:"file_path" jsonschema_description:"Path of the file to delete."`
	SHA           string `json:"sha" jsonschema_description:"sha of the current version, as returned by read_file."`
	CommitMessage string `json:"commit_message,omitempty" jsonschema_description:"Commit message. Generated when omitted."`
	Branch        string `json:"branch,omitempty" jsonschema_description:"Branch to commit to. Defaults to the repository's default branch."`
}

type RepoInfo struct {
	Owner string `json:"owner,omitempty" jsonschema_description:"Owner of the repository. Leave owner and repo empty to describe the configured repository."`
	Repo  string `json:"repo,omitempty" jsonschema_description:"Name of the repository, without the owner."`
}

type ListUserRepos struct {
	Username string `json:"username" jsonschema_description:"GitHub login whose public repositories are listed."`
}

type CurrentTime struct{}

func (ListFiles) Op() string     { return "list_files" }
func (ReadFile) Op() string      { return "read_file" }
func (CreateFile) Op() string    { return "create_file" }
func (UpdateFile) Op() string    { return "update_file" }
func (DeleteFile) Op() string    { return "delete_file" }
func (RepoInfo) Op() string      { return "repo_info" }
func (ListUserRepos) Op() string { return "list_user_repos" }
func (CurrentTime) Op() string   { return "get_current_time" }

func (c ListFiles) Validate() error { return nil }

func (c ReadFile) Validate() error {
	return requirePath(c.FilePath)
}

func (c CreateFile) Validate() error {
	if err := requirePath(c.FilePath); err != nil {
		return err
	}
	if c.Content == nil {
		return repo.ErrValidation.With("content is required")
	}
	return nil
}

func (c UpdateFile) Validate() error {
	if err := requirePath(c.FilePath); err != nil {
		return err
	}
	if c.NewContent == nil {
		return repo.ErrValidation.With("new_content is required")
	}
	return requireSHA(c.SHA, c.FilePath)
}

func (c DeleteFile) Validate() error {
	if err := requirePath(c.FilePath); err != nil {
		return err
	}
	return requireSHA(c.SHA, c.FilePath)
}

// Validate accepts both owner and repo, or neither.
func (c RepoInfo) Validate() error {
	owner, name := strings.TrimSpace(c.Owner), strings.TrimSpace(c.Repo)
	if (owner == "") != (name == "") {
		return repo.ErrValidation.With("owner and repo must be given together")
	}
	if strings.Contains(owner+name, "/") {
		return repo.ErrValidation.With("owner and repo must not contain '/'")
	}
	return nil
}

func (c ListUserRepos) Validate() error {
	if strings.TrimSpace(c.Username) == "" {
		return repo.ErrValidation.With("username is required")
	}
	return nil
}

func (CurrentTime) Validate() error { return nil }

func requirePath(p string) error {
	if repo.CleanPath(p) == "" {
		return repo.ErrValidation.With("file_path is required")
	}
	return nil
}

func requireSHA(sha, path string) error {
	if strings.TrimSpace(sha) == "" {
		return repo.ErrValidation.Withf("sha is required, call read_file on '%s' first to obtain it", repo.CleanPath(path))
	}
	return nil
}
