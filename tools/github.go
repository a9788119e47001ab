package tools

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/petasbytes/repo-agent/internal/repo"
)

// commandTool builds a definition whose input decodes into T and runs
// through exec.
func commandTool[T Command](name, description string, exec *Executor) ToolDefinition {
	return ToolDefinition{
		Name:        name,
		Description: description,
		InputSchema: GenerateSchema[T](),
		Function: func(ctx context.Context, input json.RawMessage) (string, error) {
			cmd, err := Decode[T](input)
			if err != nil {
				res := Failure(err)
				return res.JSON(), res.Err()
			}
			res := exec.Execute(ctx, cmd)
			return res.JSON(), res.Err()
		},
	}
}

// Decode parses tool input into a command. Empty input decodes as {}.
func Decode[T Command](input json.RawMessage) (T, error) {
	var cmd T
	if len(strings.TrimSpace(string(input))) == 0 {
		return cmd, nil
	}
	if err := json.Unmarshal(input, &cmd); err != nil {
		return cmd, repo.ErrValidation.Withf("invalid arguments for %s: %v", cmd.Op(), err)
	}
	return cmd, nil
}

// GitHubTools are the five repository file tools.
func GitHubTools(exec *Executor) []ToolDefinition {
	return []ToolDefinition{
		commandTool[ListFiles]("list_files",
			"List the files and directories at a path in the GitHub repository (non-recursive). Directories end with '/'.",
			exec),
		commandTool[ReadFile]("read_file",
			"Read a text file from the GitHub repository. Returns file_path, sha and content. The sha is required to update or delete the file.",
			exec),
		commandTool[CreateFile]("create_file",
			"Create a new file in the GitHub repository. Fails with Conflict when the path already exists.",
			exec),
		commandTool[UpdateFile]("update_file",
			"Replace the content of an existing file. Requires the sha returned by read_file; a stale sha fails with Conflict.",
			exec),
		commandTool[DeleteFile]("delete_file",
			"Delete a file from the GitHub repository. Requires the sha returned by read_file.",
			exec),
	}
}

// AccountTools look beyond the configured repository.
func AccountTools(exec *Executor) []ToolDefinition {
	return []ToolDefinition{
		commandTool[RepoInfo]("repo_info",
			"Describe a GitHub repository: full name, description, default branch, language, visibility and stars. Without arguments it describes the configured repository.",
			exec),
		commandTool[ListUserRepos]("list_user_repos",
			"List the public repositories of a GitHub user, in name order.",
			exec),
	}
}

// ClockTools holds get_current_time.
func ClockTools(exec *Executor) []ToolDefinition {
	return []ToolDefinition{
		commandTool[CurrentTime]("get_current_time",
			"Get the current local date and time. day_of_week counts from Monday = 0.",
			exec),
	}
}
