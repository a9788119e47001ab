// Package runner drives one conversation turn against the Anthropic
// Messages API and dispatches the tool calls the model makes.
//
// Invariants:
//   - tool_use and its tool_result stay adjacent; the history window is only
//     ever cut before a plain user message.
//   - a tool failure is returned to the model as an is_error tool_result, it
//     never ends the turn.
//
// Flow:
//
//	user(text) -> assistant(tool_use) -> user(tool_result) -> assistant(text)
package runner
