// Package repository defines error types that are reused across multiple
// repositories. These sentinel values allow higher layers such as handlers
// to distinguish between different failure scenarios: ErrConflict signals a
// case transition attempted against stale preconditions (the caller should
// re-fetch), ErrForbidden a privilege violation such as peer-level
// revocation, and ErrInvalidInvite an expired, exhausted or archived
// registration code.
package repository

import "errors"

// ErrForbidden is returned when the caller lacks the privilege for an
// operation (e.g. revoking a peer Level-0 account). Handlers translate
// this into an HTTP 403 response.
var ErrForbidden = errors.New("forbidden")

// ErrConflict is returned when a case transition's precondition no longer
// holds: the case is already terminal, or already at the highest level.
// Handlers translate this into an HTTP 409 response; the caller is expected
// to re-fetch and surface "already handled".
var ErrConflict = errors.New("conflict")

// ErrInvalidInvite is returned when an invite code is expired, exhausted or
// archived.
var ErrInvalidInvite = errors.New("invalid invite code")

// ErrIdentifierExists is returned when a user identifier collides with an
// existing account.
var ErrIdentifierExists = errors.New("identifier already exists")
