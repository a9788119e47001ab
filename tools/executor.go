package tools

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/petasbytes/repo-agent/internal/repo"
	"github.com/petasbytes/repo-agent/internal/telemetry"
)

// Repository is the file store the GitHub tools operate on. *repo.Client
// implements it.
type Repository interface {
	List(ctx context.Context, path, branch string) ([]repo.Entry, error)
	Read(ctx context.Context, path, branch string) (repo.File, error)
	Create(ctx context.Context, req repo.CreateRequest) (repo.Commit, error)
	Update(ctx context.Context, req repo.UpdateRequest) (repo.Commit, error)
	Delete(ctx context.Context, req repo.DeleteRequest) (repo.Commit, error)
	Info(ctx context.Context, owner, name string) (repo.Summary, error)
	UserRepos(ctx context.Context, username string) ([]repo.Summary, error)
}

// Source yields the repository on demand, so that connecting happens only
// once a command has passed validation.
type Source func(ctx context.Context) (Repository, error)

// Static serves an already connected repository.
func Static(r Repository) Source {
	return func(context.Context) (Repository, error) { return r, nil }
}

// FromLazy serves the client held by l, connecting on first use.
func FromLazy(l *repo.Lazy) Source {
	return func(ctx context.Context) (Repository, error) {
		c, err := l.Get(ctx)
		if err != nil {
			return nil, err
		}
		return c, nil
	}
}

type Executor struct {
	source Source
	now    func() time.Time
}

type Option func(*Executor)

// WithClock replaces time.Now for get_current_time.
func WithClock(now func() time.Time) Option {
	return func(e *Executor) { e.now = now }
}

// NewExecutor returns an executor. A nil source is allowed for agents
// without repository access; repository commands then fail.
func NewExecutor(source Source, opts ...Option) *Executor {
	e := &Executor{source: source, now: time.Now}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute validates cmd, runs it and wraps the outcome in a Result. It
// never panics on adapter failures and never returns a bare error.
func (e *Executor) Execute(ctx context.Context, cmd Command) Result {
	start := time.Now()
	res := e.execute(ctx, cmd)

	turnID, _ := telemetry.TurnIDFromContext(ctx)
	telemetry.Emit("repo_op", map[string]any{
		"turn_id":     turnID,
		"op":          cmd.Op(),
		"status":      res.Status,
		"error_kind":  res.ErrorKind,
		"duration_ms": time.Since(start).Milliseconds(),
	})
	return res
}

func (e *Executor) execute(ctx context.Context, cmd Command) Result {
	if err := cmd.Validate(); err != nil {
		return Failure(err)
	}
	if _, ok := cmd.(CurrentTime); ok {
		return Success(clockAt(e.now()))
	}

	if e.source == nil {
		return Failure(repo.ErrHostError.With("no repository is configured for this agent"))
	}
	r, err := e.source(ctx)
	if err != nil {
		return Failure(err)
	}

	switch c := cmd.(type) {
	case ListFiles:
		entries, err := r.List(ctx, c.Path, c.Branch)
		if err != nil {
			return Failure(err)
		}
		names := make([]string, 0, len(entries))
		for _, entry := range entries {
			if entry.IsDir() {
				names = append(names, entry.Name+"/")
			} else {
				names = append(names, entry.Name)
			}
		}
		return Success(names)

	case ReadFile:
		f, err := r.Read(ctx, c.FilePath, c.Branch)
		if err != nil {
			return Failure(err)
		}
		return Success(FileContent{FilePath: f.Path, SHA: f.SHA, Content: f.Content})

	case CreateFile:
		commit, err := r.Create(ctx, repo.CreateRequest{
			Path:    c.FilePath,
			Content: *c.Content,
			Message: commitMessage(c.CommitMessage, "create", c.FilePath),
			Branch:  c.Branch,
		})
		if err != nil {
			return Failure(err)
		}
		return Success(fmt.Sprintf("File '%s' created on branch '%s' (sha %s).", commit.Path, commit.Branch, commit.SHA))

	case UpdateFile:
		commit, err := r.Update(ctx, repo.UpdateRequest{
			Path:    c.FilePath,
			Content: *c.NewContent,
			SHA:     c.SHA,
			Message: commitMessage(c.CommitMessage, "update", c.FilePath),
			Branch:  c.Branch,
		})
		if err != nil {
			return Failure(err)
		}
		return Success(fmt.Sprintf("File '%s' updated on branch '%s' (new sha %s).", commit.Path, commit.Branch, commit.SHA))

	case DeleteFile:
		commit, err := r.Delete(ctx, repo.DeleteRequest{
			Path:    c.FilePath,
			SHA:     c.SHA,
			Message: commitMessage(c.CommitMessage, "delete", c.FilePath),
			Branch:  c.Branch,
		})
		if err != nil {
			return Failure(err)
		}
		return Success(fmt.Sprintf("File '%s' deleted from branch '%s'.", commit.Path, commit.Branch))

	case RepoInfo:
		info, err := r.Info(ctx, strings.TrimSpace(c.Owner), strings.TrimSpace(c.Repo))
		if err != nil {
			return Failure(err)
		}
		return Success(repoSummary(info))

	case ListUserRepos:
		list, err := r.UserRepos(ctx, c.Username)
		if err != nil {
			return Failure(err)
		}
		out := make([]RepoSummary, 0, len(list))
		for _, info := range list {
			out = append(out, repoSummary(info))
		}
		return Success(out)
	}
	return Failure(repo.ErrValidation.Withf("unsupported command %q", cmd.Op()))
}

// commitMessage returns msg, or a generated one naming the action and path.
func commitMessage(msg, action, path string) string {
	if strings.TrimSpace(msg) != "" {
		return msg
	}
	return fmt.Sprintf("Agent: %s file '%s'", action, repo.CleanPath(path))
}

func repoSummary(s repo.Summary) RepoSummary {
	return RepoSummary{
		FullName:      s.FullName,
		Description:   s.Description,
		DefaultBranch: s.DefaultBranch,
		Language:      s.Language,
		Private:       s.Private,
		Stars:         s.Stars,
		URL:           s.URL,
	}
}

func clockAt(t time.Time) Clock {
	return Clock{
		CurrentTime: t.Format(time.DateTime),
		DayOfWeek:   (int(t.Weekday()) + 6) % 7,
	}
}
