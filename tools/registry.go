package tools

// Registry returns every tool definition backed by exec.
func Registry(exec *Executor) []ToolDefinition {
	defs := append(GitHubTools(exec), AccountTools(exec)...)
	return append(defs, ClockTools(exec)...)
}
