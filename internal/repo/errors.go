package repo

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/go-github/v68/github"
)

// Err classifies why a repository operation failed. Every error returned by
// this package wraps exactly one Err, so callers can branch with errors.Is.
type Err int

const (
	ErrHostError Err = iota
	ErrNotFound
	ErrInvalidTarget
	ErrConflict
	ErrRateLimited
	ErrAuthFailure
	ErrValidation
)

func (e Err) Error() string {
	switch e {
	case ErrNotFound:
		return "not found"
	case ErrInvalidTarget:
		return "invalid target"
	case ErrConflict:
		return "conflict"
	case ErrRateLimited:
		return "rate limited"
	case ErrAuthFailure:
		return "authentication failed"
	case ErrValidation:
		return "validation error"
	case ErrHostError:
		return "host error"
	}
	return fmt.Sprintf("error code %d", int(e))
}

// Name is the stable identifier used in tool results, e.g. "NotFound".
func (e Err) Name() string {
	switch e {
	case ErrNotFound:
		return "NotFound"
	case ErrInvalidTarget:
		return "InvalidTarget"
	case ErrConflict:
		return "Conflict"
	case ErrRateLimited:
		return "RateLimited"
	case ErrAuthFailure:
		return "AuthFailure"
	case ErrValidation:
		return "ValidationError"
	}
	return "HostError"
}

func (e Err) With(args ...any) error {
	return fmt.Errorf("%w: %s", e, fmt.Sprint(args...))
}

func (e Err) Withf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", e, fmt.Sprintf(format, args...))
}

// KindOf returns the classification carried by err. Errors that did not
// originate here are reported as ErrHostError.
func KindOf(err error) Err {
	var e Err
	if errors.As(err, &e) {
		return e
	}
	return ErrHostError
}

// classify maps a go-github failure onto the error taxonomy. conflictOn
// lists the status codes that mean a version conflict for the calling op;
// a 422 only counts when the host complains about the sha.
func classify(err error, subject string, conflictOn ...int) error {
	if err == nil {
		return nil
	}

	var rle *github.RateLimitError
	if errors.As(err, &rle) {
		return ErrRateLimited.Withf("GitHub API rate limit exceeded, resets at %s", rle.Rate.Reset.Format("15:04:05 MST"))
	}
	var arle *github.AbuseRateLimitError
	if errors.As(err, &arle) {
		return ErrRateLimited.With("GitHub secondary rate limit exceeded, try again later")
	}

	var er *github.ErrorResponse
	if errors.As(err, &er) && er.Response != nil {
		msg := hostMessage(er)
		status := er.Response.StatusCode
		for _, c := range conflictOn {
			if status == c && (status != http.StatusUnprocessableEntity || mentionsSHA(msg)) {
				return ErrConflict.Withf("%s: %s", subject, msg)
			}
		}
		switch status {
		case http.StatusNotFound:
			return ErrNotFound.Withf("%s not found", subject)
		case http.StatusUnauthorized:
			return ErrAuthFailure.With(msg)
		}
		return ErrHostError.Withf("%s: %s (status %d)", subject, msg, status)
	}

	return ErrHostError.Withf("%s: %v", subject, err)
}

func mentionsSHA(msg string) bool {
	return strings.Contains(strings.ToLower(msg), "sha")
}

func hostMessage(er *github.ErrorResponse) string {
	msg := strings.TrimSpace(er.Message)
	if msg == "" {
		msg = http.StatusText(er.Response.StatusCode)
	}
	return msg
}

// isEmptyRepository reports whether the host answered a root listing with
// the 404 it uses for repositories that have no commits yet.
func isEmptyRepository(err error) bool {
	var er *github.ErrorResponse
	if !errors.As(err, &er) || er.Response == nil {
		return false
	}
	return er.Response.StatusCode == http.StatusNotFound &&
		strings.Contains(strings.ToLower(er.Message), "repository is empty")
}
