package repo

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/google/go-github/v68/github"
	"golang.org/x/oauth2"
)

// Options configures how Connect reaches the host.
type Options struct {
	// Token is the personal access token used for every request.
	Token string
	// BaseURL overrides the API endpoint (GitHub Enterprise, tests).
	BaseURL string
	// HTTPClient is wrapped by the oauth2 transport when set.
	HTTPClient *http.Client
}

// Entry is one item of a directory listing.
type Entry struct {
	Name string
	Path string
	Type string // "file", "dir", "symlink" or "submodule"
	SHA  string
	Size int
}

func (e Entry) IsDir() bool { return e.Type == "dir" }

// File is the decoded content of a file together with its version token.
type File struct {
	Path    string
	Branch  string
	SHA     string
	Content string
}

// Commit describes the outcome of a mutating operation.
type Commit struct {
	Path      string
	Branch    string
	CommitSHA string
	// SHA is the version token of the written blob; empty after Delete.
	SHA string
}

type CreateRequest struct {
	Path    string
	Content string
	Message string
	Branch  string
}

type UpdateRequest struct {
	Path    string
	Content string
	SHA     string
	Message string
	Branch  string
}

type DeleteRequest struct {
	Path    string
	SHA     string
	Message string
	Branch  string
}

// Summary describes a repository as the host reports it.
type Summary struct {
	FullName      string
	Description   string
	DefaultBranch string
	Language      string
	Private       bool
	Stars         int
	URL           string
}

// Client performs file operations against a single repository.
type Client struct {
	gh            *github.Client
	ref           Ref
	fullName      string
	defaultBranch string
	login         string
}

// Connect authenticates, verifies the credentials once and resolves the
// repository and its default branch.
func Connect(ctx context.Context, ref Ref, opts Options) (*Client, error) {
	if opts.Token == "" {
		return nil, ErrValidation.With("access token is empty")
	}

	if opts.HTTPClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, opts.HTTPClient)
	}
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: opts.Token})
	gh := github.NewClient(oauth2.NewClient(ctx, ts))
	if opts.BaseURL != "" {
		u, err := url.Parse(strings.TrimSuffix(opts.BaseURL, "/") + "/")
		if err != nil {
			return nil, ErrValidation.Withf("invalid API base URL %q: %v", opts.BaseURL, err)
		}
		gh.BaseURL = u
	}

	user, _, err := gh.Users.Get(ctx, "")
	if err != nil {
		err = classify(err, "authenticated user")
		if KindOf(err) == ErrAuthFailure {
			return nil, ErrAuthFailure.With("bad credentials, check GITHUB_PAT")
		}
		return nil, err
	}
	slog.Debug("authenticated with GitHub", "login", user.GetLogin())

	repository, _, err := gh.Repositories.Get(ctx, ref.Owner, ref.Name)
	if err != nil {
		return nil, classify(err, "repository "+ref.String())
	}

	c := &Client{
		gh:            gh,
		ref:           ref,
		fullName:      repository.GetFullName(),
		defaultBranch: repository.GetDefaultBranch(),
		login:         user.GetLogin(),
	}
	if c.fullName == "" {
		c.fullName = ref.String()
	}
	if c.defaultBranch == "" {
		c.defaultBranch = "main"
	}
	slog.Debug("resolved repository", "repo", c.fullName, "default_branch", c.defaultBranch)
	return c, nil
}

// FullName is the host's "owner/name" for the repository.
func (c *Client) FullName() string { return c.fullName }

// DefaultBranch is the branch used when callers pass none.
func (c *Client) DefaultBranch() string { return c.defaultBranch }

// Login is the account the token authenticated as.
func (c *Client) Login() string { return c.login }

func (c *Client) branch(b string) string {
	if b = strings.TrimSpace(b); b != "" {
		return b
	}
	return c.defaultBranch
}

// Info describes owner/name, or the connected repository when both are
// empty.
func (c *Client) Info(ctx context.Context, owner, name string) (Summary, error) {
	ref := c.ref
	if owner != "" || name != "" {
		var err error
		if ref, err = ParseRef(owner + "/" + name); err != nil {
			return Summary{}, err
		}
	}
	slog.Debug("repository info", "repo", ref.String())

	r, _, err := c.gh.Repositories.Get(ctx, ref.Owner, ref.Name)
	if err != nil {
		return Summary{}, classify(err, "repository '"+ref.String()+"'")
	}
	return summaryOf(r), nil
}

// maxUserRepos bounds how many pages UserRepos follows.
const maxUserRepos = 300

// UserRepos lists the public repositories of username in name order.
func (c *Client) UserRepos(ctx context.Context, username string) ([]Summary, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, ErrValidation.With("username is required")
	}
	slog.Debug("user repositories", "user", username)

	opts := &github.RepositoryListByUserOptions{
		Sort:        "full_name",
		ListOptions: github.ListOptions{PerPage: 100},
	}
	out := []Summary{}
	for {
		page, resp, err := c.gh.Repositories.ListByUser(ctx, username, opts)
		if err != nil {
			return nil, classify(err, "user '"+username+"'")
		}
		for _, r := range page {
			out = append(out, summaryOf(r))
		}
		if resp.NextPage == 0 || len(out) >= maxUserRepos {
			break
		}
		opts.Page = resp.NextPage
	}
	return out, nil
}

func summaryOf(r *github.Repository) Summary {
	return Summary{
		FullName:      r.GetFullName(),
		Description:   r.GetDescription(),
		DefaultBranch: r.GetDefaultBranch(),
		Language:      r.GetLanguage(),
		Private:       r.GetPrivate(),
		Stars:         r.GetStargazersCount(),
		URL:           r.GetHTMLURL(),
	}
}

// List returns the entries of the directory at path, sorted by name.
func (c *Client) List(ctx context.Context, path, branch string) ([]Entry, error) {
	path, branch = CleanPath(path), c.branch(branch)
	if err := validatePath(path); err != nil {
		return nil, err
	}
	slog.Debug("list", "repo", c.fullName, "path", display(path), "branch", branch)

	file, dir, _, err := c.gh.Repositories.GetContents(ctx, c.ref.Owner, c.ref.Name, path,
		&github.RepositoryContentGetOptions{Ref: branch})
	if err != nil {
		if path == "" && isEmptyRepository(err) {
			return []Entry{}, nil
		}
		err = classify(err, "path '"+display(path)+"' on branch '"+branch+"'")
		slog.Warn("list failed", "path", display(path), "branch", branch, "err", err)
		return nil, err
	}
	if file != nil {
		return nil, ErrInvalidTarget.Withf("path '%s' is a file, not a directory", path)
	}

	entries := make([]Entry, 0, len(dir))
	for _, item := range dir {
		entries = append(entries, Entry{
			Name: item.GetName(),
			Path: item.GetPath(),
			Type: item.GetType(),
			SHA:  item.GetSHA(),
			Size: item.GetSize(),
		})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	return entries, nil
}

// Read returns the UTF-8 content of the file at path and its version token.
func (c *Client) Read(ctx context.Context, path, branch string) (File, error) {
	path, branch = CleanPath(path), c.branch(branch)
	if path == "" {
		return File{}, ErrValidation.With("file path is required")
	}
	if err := validatePath(path); err != nil {
		return File{}, err
	}
	slog.Debug("read", "repo", c.fullName, "path", path, "branch", branch)

	file, _, _, err := c.gh.Repositories.GetContents(ctx, c.ref.Owner, c.ref.Name, path,
		&github.RepositoryContentGetOptions{Ref: branch})
	if err != nil {
		err = classify(err, "file '"+path+"' on branch '"+branch+"'")
		slog.Warn("read failed", "path", path, "branch", branch, "err", err)
		return File{}, err
	}
	if file == nil || file.GetType() == "dir" {
		return File{}, ErrInvalidTarget.Withf("path '%s' is a directory, not a file", path)
	}

	content, err := file.GetContent()
	if err != nil {
		return File{}, ErrHostError.Withf("decode file '%s': %v", path, err)
	}
	if !utf8.ValidString(content) {
		return File{}, ErrHostError.Withf("file '%s' is not valid UTF-8 text", path)
	}
	return File{Path: path, Branch: branch, SHA: file.GetSHA(), Content: content}, nil
}

// Create adds a new file. Creating over an existing path is a conflict.
func (c *Client) Create(ctx context.Context, req CreateRequest) (Commit, error) {
	path, branch := CleanPath(req.Path), c.branch(req.Branch)
	if err := validateWrite(path, req.Message); err != nil {
		return Commit{}, err
	}
	slog.Debug("create", "repo", c.fullName, "path", path, "branch", branch)

	resp, _, err := c.gh.Repositories.CreateFile(ctx, c.ref.Owner, c.ref.Name, path, &github.RepositoryContentFileOptions{
		Message: github.Ptr(req.Message),
		Content: []byte(req.Content),
		Branch:  github.Ptr(branch),
	})
	if err != nil {
		err = classify(err, "create '"+path+"'", http.StatusConflict, http.StatusUnprocessableEntity)
		slog.Warn("create failed", "path", path, "branch", branch, "err", err)
		return Commit{}, err
	}
	return commitFrom(resp, path, branch), nil
}

// Update replaces the content of the file whose current version is req.SHA.
func (c *Client) Update(ctx context.Context, req UpdateRequest) (Commit, error) {
	path, branch := CleanPath(req.Path), c.branch(req.Branch)
	if err := validateVersioned(path, req.SHA, req.Message); err != nil {
		return Commit{}, err
	}
	if err := c.requireFile(ctx, path, branch); err != nil {
		return Commit{}, err
	}
	slog.Debug("update", "repo", c.fullName, "path", path, "branch", branch)

	resp, _, err := c.gh.Repositories.UpdateFile(ctx, c.ref.Owner, c.ref.Name, path, &github.RepositoryContentFileOptions{
		Message: github.Ptr(req.Message),
		Content: []byte(req.Content),
		SHA:     github.Ptr(req.SHA),
		Branch:  github.Ptr(branch),
	})
	if err != nil {
		err = classify(err, "update '"+path+"'", http.StatusConflict, http.StatusUnprocessableEntity)
		slog.Warn("update failed", "path", path, "branch", branch, "err", err)
		return Commit{}, err
	}
	return commitFrom(resp, path, branch), nil
}

// Delete removes the file whose current version is req.SHA.
func (c *Client) Delete(ctx context.Context, req DeleteRequest) (Commit, error) {
	path, branch := CleanPath(req.Path), c.branch(req.Branch)
	if err := validateVersioned(path, req.SHA, req.Message); err != nil {
		return Commit{}, err
	}
	if err := c.requireFile(ctx, path, branch); err != nil {
		return Commit{}, err
	}
	slog.Debug("delete", "repo", c.fullName, "path", path, "branch", branch)

	resp, _, err := c.gh.Repositories.DeleteFile(ctx, c.ref.Owner, c.ref.Name, path, &github.RepositoryContentFileOptions{
		Message: github.Ptr(req.Message),
		SHA:     github.Ptr(req.SHA),
		Branch:  github.Ptr(branch),
	})
	if err != nil {
		err = classify(err, "delete '"+path+"'", http.StatusConflict, http.StatusUnprocessableEntity)
		slog.Warn("delete failed", "path", path, "branch", branch, "err", err)
		return Commit{}, err
	}
	c2 := commitFrom(resp, path, branch)
	c2.SHA = ""
	return c2, nil
}

// requireFile rejects directories before a write is attempted; the host
// reports those only as a generic validation failure.
func (c *Client) requireFile(ctx context.Context, path, branch string) error {
	file, _, _, err := c.gh.Repositories.GetContents(ctx, c.ref.Owner, c.ref.Name, path,
		&github.RepositoryContentGetOptions{Ref: branch})
	if err != nil {
		return classify(err, "file '"+path+"' on branch '"+branch+"'")
	}
	if file == nil || file.GetType() == "dir" {
		return ErrInvalidTarget.Withf("path '%s' is a directory, not a file", path)
	}
	return nil
}

func validateWrite(path, message string) error {
	if path == "" {
		return ErrValidation.With("file path is required")
	}
	if err := validatePath(path); err != nil {
		return err
	}
	if strings.TrimSpace(message) == "" {
		return ErrValidation.With("commit message is required")
	}
	return nil
}

func validateVersioned(path, sha, message string) error {
	if err := validateWrite(path, message); err != nil {
		return err
	}
	if strings.TrimSpace(sha) == "" {
		return ErrValidation.Withf("sha of the current version of '%s' is required, read the file first", path)
	}
	return nil
}

func commitFrom(resp *github.RepositoryContentResponse, path, branch string) Commit {
	out := Commit{Path: path, Branch: branch}
	if resp == nil {
		return out
	}
	out.CommitSHA = resp.Commit.GetSHA()
	if resp.Content != nil {
		out.SHA = resp.Content.GetSHA()
	}
	return out
}

func display(path string) string {
	if path == "" {
		return "/"
	}
	return path
}
