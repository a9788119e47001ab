// Package repo is the adapter between logical file operations and a GitHub
// repository.
//
// A Client is bound to one repository, resolved once by Connect. It offers
// five operations: List, Read, Create, Update and Delete. All of them:
//   - strip leading/trailing "/" from paths ("" is the root),
//   - resolve an empty branch to the repository's default branch,
//   - return errors wrapping one Err from a closed set (ErrNotFound,
//     ErrInvalidTarget, ErrConflict, ErrRateLimited, ErrAuthFailure,
//     ErrHostError, ErrValidation).
//
// Update and Delete require the blob sha obtained from a prior Read; the
// host rejects a stale sha, which surfaces as ErrConflict. Nothing is
// retried.
//
// Info and UserRepos read repository metadata through the same
// credentials and are not bound to the connected repository.
package repo
