package tools

import (
	"encoding/json"
	"errors"

	"github.com/petasbytes/repo-agent/internal/repo"
)

const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Result is the envelope every tool returns. Exactly one of Result and
// ErrorMessage is set.
type Result struct {
	Status       string  `json:"status"`
	Result       any     `json:"result"`
	ErrorMessage *string `json:"error_message"`
	ErrorKind    string  `json:"error_kind,omitempty"`
}

// FileContent is the payload of a successful read.
type FileContent struct {
	FilePath string `json:"file_path"`
	SHA      string `json:"sha"`
	Content  string `json:"content"`
}

// RepoSummary is the payload of repo_info and one item of list_user_repos.
type RepoSummary struct {
	FullName      string `json:"full_name"`
	Description   string `json:"description"`
	DefaultBranch string `json:"default_branch"`
	Language      string `json:"language,omitempty"`
	Private       bool   `json:"private"`
	Stars         int    `json:"stars"`
	URL           string `json:"url"`
}

// Clock is the payload of get_current_time. DayOfWeek counts from
// Monday = 0.
type Clock struct {
	CurrentTime string `json:"current_time"`
	DayOfWeek   int    `json:"day_of_week"`
}

func Success(v any) Result {
	return Result{Status: StatusSuccess, Result: v}
}

func Failure(err error) Result {
	msg := err.Error()
	return Result{
		Status:       StatusError,
		ErrorMessage: &msg,
		ErrorKind:    repo.KindOf(err).Name(),
	}
}

func (r Result) OK() bool { return r.Status == StatusSuccess }

// Err returns the failure as an error, or nil on success.
func (r Result) Err() error {
	if r.OK() {
		return nil
	}
	if r.ErrorMessage == nil {
		return errors.New(r.ErrorKind)
	}
	return errors.New(*r.ErrorMessage)
}

// JSON encodes the envelope. An encoding failure degrades to an error
// envelope.
func (r Result) JSON() string {
	b, err := json.Marshal(r)
	if err != nil {
		b, _ = json.Marshal(Failure(repo.ErrHostError.Withf("encode result: %v", err)))
	}
	return string(b)
}
