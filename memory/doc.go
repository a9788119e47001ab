// Package memory persists the text of a conversation between runs.
//
// Only user and assistant text is kept; tool_use and tool_result blocks are
// transient. A transcript records the agent and repository it belongs to so
// that a file written for one agent is not replayed into another.
package memory
