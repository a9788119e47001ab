package telemetry

import (
	"context"
	"strings"
	"unicode/utf8"
)

// TextFeatures are size measurements of a piece of text.
type TextFeatures struct {
	Bytes int `json:"bytes"`
	Runes int `json:"runes"`
	Words int `json:"words"`
	Lines int `json:"lines"`
}

func MeasureText(s string) TextFeatures {
	f := TextFeatures{
		Bytes: len(s),
		Runes: utf8.RuneCountInString(s),
		Words: len(strings.Fields(s)),
	}
	if s != "" {
		f.Lines = 1 + strings.Count(s, "\n")
	}
	return f
}

// EmitUserInput records the shape of a user message, not its text.
func EmitUserInput(ctx context.Context, text string) {
	if !Enabled() {
		return
	}
	turnID, _ := TurnIDFromContext(ctx)
	f := MeasureText(text)
	Emit("user_input", map[string]any{
		"turn_id": turnID,
		"bytes":   f.Bytes,
		"runes":   f.Runes,
		"words":   f.Words,
		"lines":   f.Lines,
	})
}
