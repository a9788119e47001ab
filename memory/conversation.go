package memory

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type Message struct {
	Role string `json:"role"`
	Text string `json:"text,omitempty"`
}

// Transcript is the persisted form of one agent's conversation.
type Transcript struct {
	Agent    string    `json:"agent"`
	Repo     string    `json:"repo,omitempty"`
	Messages []Message `json:"messages"`
}

// Belongs reports whether t was written by the given agent for repo.
func (t Transcript) Belongs(agent, repo string) bool {
	return t.Agent == agent && t.Repo == repo
}

// Append records one completed turn. An empty reply stores only the user
// message.
func (t *Transcript) Append(user, reply string) {
	t.Messages = append(t.Messages, Message{Role: RoleUser, Text: user})
	if strings.TrimSpace(reply) != "" {
		t.Messages = append(t.Messages, Message{Role: RoleAssistant, Text: reply})
	}
}

// Params rebuilds the conversation for the Messages API. Consecutive
// messages of the same role are merged so that roles alternate.
func (t Transcript) Params() []anthropic.MessageParam {
	var out []anthropic.MessageParam
	for _, m := range t.Messages {
		if strings.TrimSpace(m.Text) == "" {
			continue
		}
		var role anthropic.MessageParamRole
		switch m.Role {
		case RoleUser:
			role = anthropic.MessageParamRoleUser
		case RoleAssistant:
			role = anthropic.MessageParamRoleAssistant
		default:
			continue
		}
		block := anthropic.NewTextBlock(m.Text)
		if n := len(out); n > 0 && out[n-1].Role == role {
			out[n-1].Content = append(out[n-1].Content, block)
			continue
		}
		out = append(out, anthropic.MessageParam{Role: role, Content: []anthropic.ContentBlockParamUnion{block}})
	}
	return out
}

// Load reads a transcript. A missing file yields an empty transcript.
func Load(path string) (Transcript, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Transcript{}, nil
		}
		return Transcript{}, fmt.Errorf("load transcript: %w", err)
	}
	var t Transcript
	if err := json.Unmarshal(b, &t); err != nil {
		return Transcript{}, fmt.Errorf("load transcript %s: %w", path, err)
	}
	return t, nil
}

// Save writes t to path through a temporary file in the same directory.
func Save(path string, t Transcript) error {
	b, err := json.MarshalIndent(t, "", " ")
	if err != nil {
		return fmt.Errorf("save transcript: %w", err)
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("save transcript: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".transcript-*")
	if err != nil {
		return fmt.Errorf("save transcript: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		return fmt.Errorf("save transcript: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("save transcript: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("save transcript: %w", err)
	}
	return nil
}
