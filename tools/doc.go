// Package tools defines tool contracts and implementations.
//
// Includes:
//   - ToolDefinition: name, description, JSON input schema, handler.
//   - GenerateSchema[T](): derive JSON Schema from Go structs.
//   - Typed commands (ListFiles, ReadFile, CreateFile, UpdateFile,
//     DeleteFile, RepoInfo, ListUserRepos, CurrentTime) and the Executor
//     that validates and runs them.
//   - Result: the {status, result, error_message, error_kind} envelope every
//     tool returns.
//
// Validation happens before the repository is touched; a command that fails
// validation never triggers a connection.
package tools
