package runner

import (
	"encoding/json"
	"unicode/utf8"

	"github.com/anthropics/anthropic-sdk-go"
)

// WindowStats summarizes how the history was cut.
//
//   - Total: estimated cost of the messages sent.
//   - Exchanges / Skipped: exchanges sent and dropped.
//   - OverBudget: the newest exchange alone exceeds Budget; it is sent anyway.
type WindowStats struct {
	Budget     int
	Total      int
	Exchanges  int
	Skipped    int
	OverBudget bool
}

// blockOverhead is the fixed cost added per content block.
const blockOverhead = 4

// PrepareWindow returns the most recent suffix of conv that fits in budget.
//
// The history is cut only at exchange boundaries: a user message that
// carries no tool_result. An exchange therefore holds every tool_use and its
// tool_result together, and the window always opens with a plain user
// message. The newest exchange is always included.
func PrepareWindow(conv []anthropic.MessageParam, budget int) ([]anthropic.MessageParam, WindowStats) {
	stats := WindowStats{Budget: budget}
	starts := exchangeStarts(conv)
	if len(starts) == 0 {
		for _, m := range conv {
			stats.Total += messageCost(m)
		}
		return conv, stats
	}

	end := len(conv)
	cut := starts[len(starts)-1]
	for i := len(starts) - 1; i >= 0; i-- {
		cost := 0
		for _, m := range conv[starts[i]:end] {
			cost += messageCost(m)
		}
		if stats.Exchanges > 0 && stats.Total+cost > budget {
			break
		}
		stats.Total += cost
		stats.Exchanges++
		cut, end = starts[i], starts[i]
	}
	stats.Skipped = len(starts) - stats.Exchanges
	stats.OverBudget = stats.Exchanges == 1 && stats.Total > budget
	return conv[cut:], stats
}

func exchangeStarts(conv []anthropic.MessageParam) []int {
	var out []int
	for i, m := range conv {
		if m.Role == anthropic.MessageParamRoleUser && !hasToolResult(m) {
			out = append(out, i)
		}
	}
	return out
}

func hasToolResult(m anthropic.MessageParam) bool {
	for _, b := range m.Content {
		if b.OfToolResult != nil {
			return true
		}
	}
	return false
}

// messageCost estimates input size in runes.
func messageCost(m anthropic.MessageParam) int {
	total := 0
	for _, b := range m.Content {
		total += blockCost(b)
	}
	return total
}

func blockCost(b anthropic.ContentBlockParamUnion) int {
	switch {
	case b.OfText != nil:
		return utf8.RuneCountInString(b.OfText.Text) + blockOverhead
	case b.OfToolUse != nil:
		raw, err := json.Marshal(b.OfToolUse.Input)
		if err != nil {
			return blockOverhead
		}
		return utf8.RuneCountInString(b.OfToolUse.Name) + utf8.RuneCount(raw) + blockOverhead
	case b.OfToolResult != nil:
		n := blockOverhead
		for _, c := range b.OfToolResult.Content {
			if c.OfText != nil {
				n += utf8.RuneCountInString(c.OfText.Text)
			}
		}
		return n
	}
	return blockOverhead
}
