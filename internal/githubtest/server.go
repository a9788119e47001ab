// Package githubtest runs an in-memory stand-in for the parts of the GitHub
// REST API the repository adapter talks to: the authenticated user, the
// repository metadata, user repository listings and the contents endpoints. Files are versioned with
// git blob hashes, so stale-sha writes are rejected the way the real host
// rejects them.
package githubtest

import (
	"crypto/sha1"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

const (
	DefaultOwner  = "octo"
	DefaultName   = "notes"
	DefaultBranch = "main"
	DefaultToken  = "test-token"
)

// DefaultDescription is the description of the served repository.
const DefaultDescription = "Notes kept by the agent"

// Server is a fake GitHub API bound to a single repository.
type Server struct {
	*httptest.Server

	Owner         string
	Name          string
	DefaultBranch string
	Token         string
	Description   string

	requests atomic.Int64

	mu          sync.Mutex
	branches    map[string]map[string]string // branch -> path -> content
	others      map[string]string            // "owner/name" -> description
	commits     int
	rateLimited bool
}

// New starts a server and registers its shutdown with tb.
func New(tb testing.TB) *Server {
	tb.Helper()
	s := &Server{
		Owner:         DefaultOwner,
		Name:          DefaultName,
		DefaultBranch: DefaultBranch,
		Token:         DefaultToken,
		Description:   DefaultDescription,
		branches:      map[string]map[string]string{DefaultBranch: {}},
		others:        map[string]string{},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /user", s.handleUser)
	mux.HandleFunc("GET /repos/{owner}/{repo}", s.handleRepo)
	mux.HandleFunc("GET /users/{user}/repos", s.handleUserRepos)
	mux.HandleFunc("GET /repos/{owner}/{repo}/contents/{path...}", s.handleGetContents)
	mux.HandleFunc("PUT /repos/{owner}/{repo}/contents/{path...}", s.handlePutContents)
	mux.HandleFunc("DELETE /repos/{owner}/{repo}/contents/{path...}", s.handleDeleteContents)

	s.Server = httptest.NewServer(s.authenticate(mux))
	tb.Cleanup(s.Close)
	return s
}

// Repo returns the "owner/name" identifier of the served repository.
func (s *Server) Repo() string { return s.Owner + "/" + s.Name }

// Requests is the number of API requests served so far.
func (s *Server) Requests() int { return int(s.requests.Load()) }

// Put seeds a file on branch (the default branch when empty) and returns
// its blob sha.
func (s *Server) Put(branch, p, content string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	files := s.branch(branch, true)
	files[strings.Trim(p, "/")] = content
	return BlobSHA(content)
}

// Content returns the stored content of a file.
func (s *Server) Content(branch, p string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	files := s.branch(branch, false)
	if files == nil {
		return "", false
	}
	c, ok := files[strings.Trim(p, "/")]
	return c, ok
}

// AddBranch creates a branch as a copy of the default branch.
func (s *Server) AddBranch(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	files := make(map[string]string, len(s.branches[s.DefaultBranch]))
	for k, v := range s.branches[s.DefaultBranch] {
		files[k] = v
	}
	s.branches[name] = files
}

// AddRepo registers another repository whose metadata is served. Its
// contents are not.
func (s *Server) AddRepo(owner, name, description string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.others[owner+"/"+name] = description
}

// SetRateLimited makes the contents endpoints answer as if the primary
// rate limit were exhausted.
func (s *Server) SetRateLimited(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rateLimited = v
}

// BlobSHA computes the git blob hash of content, which the host uses as the
// version token of a file.
func BlobSHA(content string) string {
	h := sha1.New()
	fmt.Fprintf(h, "blob %d\x00", len(content))
	h.Write([]byte(content))
	return hex.EncodeToString(h.Sum(nil))
}

///////////////////////////////////////////////////////////////////////////////
// HANDLERS

func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.requests.Add(1)
		if r.Header.Get("Authorization") != "Bearer "+s.Token {
			writeError(w, http.StatusUnauthorized, "Bad credentials")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleUser(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"login": "tester", "id": 1})
}

func (s *Server) handleRepo(w http.ResponseWriter, r *http.Request) {
	owner, name := r.PathValue("owner"), r.PathValue("repo")
	if s.matches(r) {
		writeJSON(w, http.StatusOK, s.repoJSON(owner, name, s.Description))
		return
	}
	s.mu.Lock()
	desc, ok := s.others[owner+"/"+name]
	s.mu.Unlock()
	if !ok {
		writeError(w, http.StatusNotFound, "Not Found")
		return
	}
	writeJSON(w, http.StatusOK, s.repoJSON(owner, name, desc))
}

func (s *Server) handleUserRepos(w http.ResponseWriter, r *http.Request) {
	user := r.PathValue("user")
	out := []map[string]any{}
	if user == s.Owner {
		out = append(out, s.repoJSON(s.Owner, s.Name, s.Description))
	}
	s.mu.Lock()
	for full, desc := range s.others {
		if owner, name, _ := strings.Cut(full, "/"); owner == user {
			out = append(out, s.repoJSON(owner, name, desc))
		}
	}
	s.mu.Unlock()
	if len(out) == 0 {
		writeError(w, http.StatusNotFound, "Not Found")
		return
	}
	sort.Slice(out, func(i, j int) bool { return out[i]["name"].(string) < out[j]["name"].(string) })
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetContents(w http.ResponseWriter, r *http.Request) {
	if !s.precheck(w, r) {
		return
	}
	p := strings.Trim(r.PathValue("path"), "/")
	ref := r.URL.Query().Get("ref")

	s.mu.Lock()
	defer s.mu.Unlock()

	files := s.branch(ref, false)
	if files == nil {
		writeError(w, http.StatusNotFound, "No commit found for the ref "+ref)
		return
	}
	if content, ok := files[p]; ok {
		writeJSON(w, http.StatusOK, fileJSON(p, content, true))
		return
	}
	if p == "" && len(files) == 0 {
		writeError(w, http.StatusNotFound, "This repository is empty.")
		return
	}
	entries, ok := listDir(files, p)
	if !ok {
		writeError(w, http.StatusNotFound, "Not Found")
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

type writeBody struct {
	Message string  `json:"message"`
	Content *string `json:"content"`
	SHA     *string `json:"sha"`
	Branch  *string `json:"branch"`
}

func (s *Server) handlePutContents(w http.ResponseWriter, r *http.Request) {
	if !s.precheck(w, r) {
		return
	}
	body, ok := decodeBody(w, r)
	if !ok {
		return
	}
	if body.Content == nil {
		writeError(w, http.StatusUnprocessableEntity, "Invalid request.\n\n\"content\" wasn't supplied.")
		return
	}
	raw, err := base64.StdEncoding.DecodeString(*body.Content)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "content is not valid Base64")
		return
	}
	p := strings.Trim(r.PathValue("path"), "/")

	s.mu.Lock()
	defer s.mu.Unlock()

	files := s.branch(deref(body.Branch), false)
	if files == nil {
		writeError(w, http.StatusNotFound, "Branch "+deref(body.Branch)+" not found")
		return
	}
	if _, isDir := listDir(files, p); isDir && p != "" {
		if _, isFile := files[p]; !isFile {
			writeError(w, http.StatusUnprocessableEntity, "path is a directory")
			return
		}
	}

	status := http.StatusCreated
	if current, exists := files[p]; exists {
		switch {
		case deref(body.SHA) == "":
			writeError(w, http.StatusUnprocessableEntity, "Invalid request.\n\n\"sha\" wasn't supplied.")
			return
		case deref(body.SHA) != BlobSHA(current):
			writeError(w, http.StatusConflict, fmt.Sprintf("%s does not match %s", p, deref(body.SHA)))
			return
		}
		status = http.StatusOK
	} else if deref(body.SHA) != "" {
		writeError(w, http.StatusNotFound, "Not Found")
		return
	}

	files[p] = string(raw)
	writeJSON(w, status, map[string]any{
		"content": fileJSON(p, string(raw), false),
		"commit":  s.commit(body.Message),
	})
}

func (s *Server) handleDeleteContents(w http.ResponseWriter, r *http.Request) {
	if !s.precheck(w, r) {
		return
	}
	body, ok := decodeBody(w, r)
	if !ok {
		return
	}
	p := strings.Trim(r.PathValue("path"), "/")

	s.mu.Lock()
	defer s.mu.Unlock()

	files := s.branch(deref(body.Branch), false)
	if files == nil {
		writeError(w, http.StatusNotFound, "Branch "+deref(body.Branch)+" not found")
		return
	}
	current, exists := files[p]
	switch {
	case !exists:
		if _, isDir := listDir(files, p); isDir {
			writeError(w, http.StatusUnprocessableEntity, "path is a directory")
			return
		}
		writeError(w, http.StatusNotFound, "Not Found")
		return
	case deref(body.SHA) == "":
		writeError(w, http.StatusUnprocessableEntity, "Invalid request.\n\n\"sha\" wasn't supplied.")
		return
	case deref(body.SHA) != BlobSHA(current):
		writeError(w, http.StatusConflict, fmt.Sprintf("%s does not match %s", p, deref(body.SHA)))
		return
	}

	delete(files, p)
	writeJSON(w, http.StatusOK, map[string]any{
		"content": nil,
		"commit":  s.commit(body.Message),
	})
}

///////////////////////////////////////////////////////////////////////////////
// PRIVATE METHODS

func (s *Server) matches(r *http.Request) bool {
	return r.PathValue("owner") == s.Owner && r.PathValue("repo") == s.Name
}

// precheck answers 404 for other repositories and 403 while rate limited.
func (s *Server) precheck(w http.ResponseWriter, r *http.Request) bool {
	if !s.matches(r) {
		writeError(w, http.StatusNotFound, "Not Found")
		return false
	}
	s.mu.Lock()
	limited := s.rateLimited
	s.mu.Unlock()
	if limited {
		w.Header().Set("X-RateLimit-Limit", "60")
		w.Header().Set("X-RateLimit-Remaining", "0")
		w.Header().Set("X-RateLimit-Used", "60")
		w.Header().Set("X-RateLimit-Resource", "core")
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(time.Now().Add(time.Hour).Unix(), 10))
		writeError(w, http.StatusForbidden, "API rate limit exceeded for user ID 1.")
		return false
	}
	return true
}

// branch returns the files of name (default branch when empty), creating
// the branch when create is set. Callers hold s.mu.
func (s *Server) branch(name string, create bool) map[string]string {
	if name == "" {
		name = s.DefaultBranch
	}
	files, ok := s.branches[name]
	if !ok && create {
		files = map[string]string{}
		s.branches[name] = files
	}
	return files
}

func (s *Server) repoJSON(owner, name, description string) map[string]any {
	return map[string]any{
		"id":               1,
		"name":             name,
		"full_name":        owner + "/" + name,
		"description":      description,
		"default_branch":   s.DefaultBranch,
		"language":         "Go",
		"private":          false,
		"stargazers_count": 3,
		"html_url":         "https://github.com/" + owner + "/" + name,
		"owner":            map[string]any{"login": owner},
	}
}

func (s *Server) commit(message string) map[string]any {
	s.commits++
	return map[string]any{
		"sha":     BlobSHA(fmt.Sprintf("commit %d %s", s.commits, message)),
		"message": message,
	}
}

// listDir returns the immediate children of dir, or false when dir does
// not exist. The root always exists.
func listDir(files map[string]string, dir string) ([]map[string]any, bool) {
	prefix := ""
	if dir != "" {
		prefix = dir + "/"
	}
	seen := map[string]bool{}
	var out []map[string]any
	for p, content := range files {
		if !strings.HasPrefix(p, prefix) {
			continue
		}
		rest := strings.TrimPrefix(p, prefix)
		name, _, nested := strings.Cut(rest, "/")
		if seen[name] {
			continue
		}
		seen[name] = true
		if nested {
			sub := path.Join(dir, name)
			out = append(out, map[string]any{
				"type": "dir",
				"name": name,
				"path": sub,
				"sha":  BlobSHA("tree " + sub),
				"size": 0,
			})
			continue
		}
		out = append(out, fileJSON(p, content, false))
	}
	if len(seen) == 0 && dir != "" {
		return nil, false
	}
	sort.Slice(out, func(i, j int) bool { return out[i]["name"].(string) < out[j]["name"].(string) })
	if out == nil {
		out = []map[string]any{}
	}
	return out, true
}

func fileJSON(p, content string, withContent bool) map[string]any {
	m := map[string]any{
		"type": "file",
		"name": path.Base(p),
		"path": p,
		"sha":  BlobSHA(content),
		"size": len(content),
	}
	if withContent {
		m["encoding"] = "base64"
		m["content"] = wrap76(base64.StdEncoding.EncodeToString([]byte(content)))
	}
	return m
}

// wrap76 breaks base64 into lines the way the host does.
func wrap76(s string) string {
	var b strings.Builder
	for len(s) > 76 {
		b.WriteString(s[:76])
		b.WriteByte('\n')
		s = s[76:]
	}
	b.WriteString(s)
	b.WriteByte('\n')
	return b.String()
}

func decodeBody(w http.ResponseWriter, r *http.Request) (writeBody, bool) {
	var body writeBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "Problems parsing JSON")
		return body, false
	}
	if strings.TrimSpace(body.Message) == "" {
		writeError(w, http.StatusUnprocessableEntity, "Invalid request.\n\n\"message\" wasn't supplied.")
		return body, false
	}
	return body, true
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{
		"message":           message,
		"documentation_url": "https://docs.github.com/rest",
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
