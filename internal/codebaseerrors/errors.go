// Package codebaseerrors is the structured error type used across the
// indexing and search core. It narrows error handling to the six kinds
// named by the error handling design: NotInRepository, NotFound,
// AlreadyExists, BadFile, EmbeddingProviderFailure, and MigrationFailure.
package codebaseerrors

import (
	"errors"
	"fmt"
)

// Kind classifies a CodebasedError for propagation-policy decisions.
type Kind string

const (
	// KindNotInRepository is fatal at startup: exit 1 with a single line
	// to standard error.
	KindNotInRepository Kind = "not_in_repository"

	// KindNotFound is a local lookup miss, recovered internally and
	// treated as absence.
	KindNotFound Kind = "not_found"

	// KindAlreadyExists means the store detected a duplicate; the
	// sub-transaction rolls back and the caller re-fetches.
	KindAlreadyExists Kind = "already_exists"

	// KindBadFile means a file went missing or its hash changed between
	// scan and render; the affected result or render is dropped and the
	// run continues.
	KindBadFile Kind = "bad_file"

	// KindEmbeddingProviderFailure is surfaced by the Indexer as a full
	// rollback of its run.
	KindEmbeddingProviderFailure Kind = "embedding_provider_failure"

	// KindMigrationFailure is fatal; the store refuses to serve.
	KindMigrationFailure Kind = "migration_failure"
)

// CodebasedError is the structured error type threaded through the
// indexing and search core.
type CodebasedError struct {
	Kind    Kind
	Message string
	Cause   error
	Details map[string]string
}

func (e *CodebasedError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

func (e *CodebasedError) Unwrap() error { return e.Cause }

// Is enables errors.Is(err, NotFound("", "")) style comparisons by Kind.
func (e *CodebasedError) Is(target error) bool {
	t, ok := target.(*CodebasedError)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

func (e *CodebasedError) WithDetail(key, value string) *CodebasedError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

func new_(kind Kind, message string, cause error) *CodebasedError {
	return &CodebasedError{Kind: kind, Message: message, Cause: cause}
}

func NotInRepository(path string) *CodebasedError {
	return new_(KindNotInRepository, "not inside a repository", nil).WithDetail("path", path)
}

func NotFound(what, id string) *CodebasedError {
	return new_(KindNotFound, fmt.Sprintf("%s not found", what), nil).WithDetail("id", id)
}

func AlreadyExists(what, id string) *CodebasedError {
	return new_(KindAlreadyExists, fmt.Sprintf("%s already exists", what), nil).WithDetail("id", id)
}

func BadFile(path string, cause error) *CodebasedError {
	return new_(KindBadFile, "file unreadable or changed since scan", cause).WithDetail("path", path)
}

func EmbeddingProviderFailure(cause error) *CodebasedError {
	return new_(KindEmbeddingProviderFailure, "embedding provider call failed", cause)
}

func MigrationFailure(version int, cause error) *CodebasedError {
	return new_(KindMigrationFailure, "schema migration failed", cause).WithDetail("version", fmt.Sprintf("%d", version))
}

// Of reports the Kind of err if it is (or wraps) a *CodebasedError.
func Of(err error) (Kind, bool) {
	var ce *CodebasedError
	if errors.As(err, &ce) {
		return ce.Kind, true
	}
	return "", false
}
