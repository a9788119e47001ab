package runner

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/baalimago/go_away_boilerplate/pkg/ancli"

	"github.com/petasbytes/repo-agent/internal/provider"
	"github.com/petasbytes/repo-agent/internal/telemetry"
	"github.com/petasbytes/repo-agent/tools"
)

const (
	DefaultBudget   = 12000
	DefaultMaxSteps = 8
	maxTokens       = 4096
)

// Notices shown to the user instead of a model reply.
const (
	NoticeRefusal   = "The model declined to answer this request."
	NoticeEmpty     = "The model returned an empty response."
	NoticeStepLimit = "Stopped after too many consecutive tool calls; ask again to continue."
)

type Runner struct {
	Client   *anthropic.Client
	Tools    []tools.ToolDefinition
	Model    anthropic.Model
	System   string
	Budget   int
	MaxSteps int
	Out      io.Writer
}

type Option func(*Runner)

func WithSystem(instruction string) Option { return func(r *Runner) { r.System = instruction } }
func WithModel(m anthropic.Model) Option    { return func(r *Runner) { r.Model = m } }
func WithBudget(n int) Option               { return func(r *Runner) { r.Budget = n } }
func WithMaxSteps(n int) Option             { return func(r *Runner) { r.MaxSteps = n } }
func WithOutput(w io.Writer) Option         { return func(r *Runner) { r.Out = w } }

func New(client *anthropic.Client, toolDefs []tools.ToolDefinition, opts ...Option) *Runner {
	r := &Runner{
		Client:   client,
		Tools:    toolDefs,
		Model:    provider.DefaultModel,
		Budget:   DefaultBudget,
		MaxSteps: DefaultMaxSteps,
		Out:      os.Stdout,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Runner) anthropicTools() []anthropic.ToolUnionParam {
	out := make([]anthropic.ToolUnionParam, 0, len(r.Tools))
	for _, t := range r.Tools {
		out = append(out, anthropic.ToolUnionParam{OfTool: &anthropic.ToolParam{
			Name:        t.Name,
			Description: anthropic.String(t.Description),
			InputSchema: t.InputSchema,
		}})
	}
	return out
}

// Turn appends the user's message to conv and exchanges messages with the
// model until it stops calling tools. It returns the extended conversation
// and the model's text for the turn; notices are printed but never returned.
// On error, or when the final step has neither text nor tool calls, conv is
// returned unchanged.
func (r *Runner) Turn(ctx context.Context, conv []anthropic.MessageParam, user string) ([]anthropic.MessageParam, string, error) {
	ctx, _ = telemetry.EnsureTurnID(ctx)
	telemetry.EmitUserInput(ctx, user)

	next := append(conv[:len(conv):len(conv)], anthropic.NewUserMessage(anthropic.NewTextBlock(user)))
	var reply []string
	for step := 0; step < r.MaxSteps; step++ {
		msg, toolResults, err := r.RunOneStep(ctx, r.Model, next)
		if err != nil {
			return conv, "", err
		}
		text := messageText(msg)
		if text == "" && len(toolResults) == 0 {
			// The host rejects assistant messages without content.
			r.notice(msg)
			return conv, "", nil
		}
		next = append(next, msg.ToParam())
		if text != "" {
			reply = append(reply, text)
		}
		if len(toolResults) == 0 {
			return next, strings.Join(reply, "\n"), nil
		}
		next = append(next, anthropic.NewUserMessage(toolResults...))
	}
	r.printNotice(NoticeStepLimit)
	return next, strings.Join(reply, "\n"), nil
}

// RunOneStep sends the windowed conversation and either prints text or
// returns tool results to be appended.
func (r *Runner) RunOneStep(ctx context.Context, model anthropic.Model, conv []anthropic.MessageParam) (*anthropic.Message, []anthropic.ContentBlockParamUnion, error) {
	ctx, turnID := telemetry.EnsureTurnID(ctx)

	window, stats := PrepareWindow(conv, r.Budget)
	telemetry.Emit("window_prepared", map[string]any{
		"turn_id":           turnID,
		"model":             string(model),
		"budget":            stats.Budget,
		"total_estimated":   stats.Total,
		"included_messages": len(window),
		"exchanges":         stats.Exchanges,
		"skipped_exchanges": stats.Skipped,
		"over_budget":       stats.OverBudget,
	})
	slog.Debug("window prepared", "model", model, "budget", stats.Budget, "total", stats.Total,
		"exchanges", stats.Exchanges, "skipped", stats.Skipped)
	if stats.OverBudget {
		slog.Warn("newest exchange exceeds the history budget, sending it whole", "budget", stats.Budget, "total", stats.Total)
	}

	params := anthropic.MessageNewParams{
		Model:     model,
		MaxTokens: int64(maxTokens),
		Messages:  window,
	}
	if r.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: r.System}}
	}
	if len(r.Tools) > 0 {
		params.Tools = r.anthropicTools()
	}

	msg, err := r.Client.Messages.New(ctx, params)
	if err != nil {
		return nil, nil, fmt.Errorf("messages: %w", err)
	}
	toolResults := []anthropic.ContentBlockParamUnion{}
	for _, block := range msg.Content {
		switch v := block.AsAny().(type) {
		case anthropic.TextBlock:
			if strings.TrimSpace(v.Text) != "" {
				fmt.Fprintf(r.Out, "%s: %s\n", ancli.ColoredMessage(ancli.MAGENTA, "Claude"), v.Text)
			}
		case anthropic.ToolUseBlock:
			input := json.RawMessage(v.JSON.Input.Raw())
			toolResults = append(toolResults, r.execTool(ctx, v.ID, v.Name, input))
		}
	}
	return msg, toolResults, nil
}

func (r *Runner) execTool(ctx context.Context, id, name string, input json.RawMessage) anthropic.ContentBlockParamUnion {
	var def *tools.ToolDefinition
	for i := range r.Tools {
		if r.Tools[i].Name == name {
			def = &r.Tools[i]
			break
		}
	}

	turnID, _ := telemetry.TurnIDFromContext(ctx)
	emit := func(duration time.Duration, outputSize int, errStr string) {
		fields := map[string]any{
			"tool_name":   name,
			"duration_ms": duration.Milliseconds(),
			"input_size":  len(input),
			"output_size": outputSize,
			"turn_id":     turnID,
			"error":       nil,
		}
		if errStr != "" {
			fields["error"] = errStr
		}
		telemetry.Emit("tool_exec", fields)
	}

	start := time.Now()
	if def == nil {
		emit(time.Since(start), 0, "tool not found")
		return anthropic.NewToolResultBlock(id, fmt.Sprintf("tool %q not found", name), true)
	}

	slog.Debug("tool call", "tool", name, "input_size", len(input))
	resp, err := def.Function(ctx, input)
	if err != nil {
		// Telemetry gets a generic marker; the model gets the full result.
		emit(time.Since(start), len(resp), "tool error")
		if resp == "" {
			resp = err.Error()
		}
		return anthropic.NewToolResultBlock(id, resp, true)
	}
	emit(time.Since(start), len(resp), "")
	return anthropic.NewToolResultBlock(id, resp, false)
}

// notice explains a step that produced neither text nor tool calls.
func (r *Runner) notice(msg *anthropic.Message) {
	n := NoticeEmpty
	if string(msg.StopReason) == "refusal" {
		n = NoticeRefusal
	}
	r.printNotice(n)
}

func (r *Runner) printNotice(n string) {
	fmt.Fprintf(r.Out, "%s: %s\n", ancli.ColoredMessage(ancli.MAGENTA, "Claude"), n)
}

func messageText(msg *anthropic.Message) string {
	var parts []string
	for _, block := range msg.Content {
		if tb, ok := block.AsAny().(anthropic.TextBlock); ok && strings.TrimSpace(tb.Text) != "" {
			parts = append(parts, tb.Text)
		}
	}
	return strings.Join(parts, "\n")
}
