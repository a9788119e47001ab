package repo

import (
	"strings"
)

// Ref identifies one repository on the host.
type Ref struct {
	Owner string
	Name  string
}

func (r Ref) String() string {
	return r.Owner + "/" + r.Name
}

// ParseRef accepts "owner/name" or any of the URL forms people paste:
// https://github.com/owner/name(.git), github.com/owner/name and
// git@github.com:owner/name.git.
func ParseRef(s string) (Ref, error) {
	v := strings.TrimSpace(s)
	if v == "" {
		return Ref{}, ErrValidation.With("repository identifier is empty")
	}

	v = strings.TrimPrefix(v, "git@")
	for _, prefix := range []string{"https://", "http://", "ssh://"} {
		v = strings.TrimPrefix(v, prefix)
	}
	// Drop the host part when present; "owner/name" has no dot before the first slash.
	if i := strings.IndexAny(v, ":/"); i >= 0 && strings.Contains(v[:i], ".") {
		v = v[i+1:]
	}
	v = strings.Trim(v, "/")
	v = strings.TrimSuffix(v, ".git")

	parts := strings.Split(v, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return Ref{}, ErrValidation.Withf("invalid repository identifier %q, expected owner/name or a repository URL", s)
	}
	return Ref{Owner: parts[0], Name: parts[1]}, nil
}

// CleanPath strips leading and trailing separators so that "/src/" and
// "src" address the same entry. The root is "".
func CleanPath(p string) string {
	return strings.Trim(strings.TrimSpace(p), "/")
}

func validatePath(p string) error {
	for _, seg := range strings.Split(p, "/") {
		if seg == ".." {
			return ErrValidation.Withf("path %q must not contain '..'", p)
		}
	}
	return nil
}
