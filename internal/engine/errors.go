package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Kind is the stable category of an engine error.
type Kind string

const (
	KindNotFound   Kind = "not_found"
	KindBadRequest Kind = "bad_request"
	KindConflict   Kind = "conflict"
	KindTimeout    Kind = "timeout"
)

// Error is returned for every failure a caller can act on. Anything else is internal.
type Error struct {
	Kind    Kind
	Message string
	Details map[string]any
	Err     error
}

func (e *Error) Error() string { return e.Message }
func (e *Error) Unwrap() error { return e.Err }

// Retryable reports whether repeating the call unchanged may succeed.
func (e *Error) Retryable() bool {
	return e.Kind == KindConflict || e.Kind == KindTimeout
}

// KindOf returns the category of err, or "" for internal errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

func notFound(entity string, id int64) *Error {
	return &Error{
		Kind:    KindNotFound,
		Message: fmt.Sprintf("%s %d not found", entity, id),
		Details: map[string]any{"entity": entity, "id": id},
	}
}

func templatesNotFound(ids []int64) *Error {
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = fmt.Sprint(id)
	}
	noun := "template"
	if len(ids) > 1 {
		noun = "templates"
	}
	return &Error{
		Kind:    KindNotFound,
		Message: fmt.Sprintf("%s %s not found", noun, strings.Join(parts, ", ")),
		Details: map[string]any{"entity": "template", "ids": ids},
	}
}

func badRequest(details map[string]any, format string, args ...any) *Error {
	return &Error{Kind: KindBadRequest, Message: fmt.Sprintf(format, args...), Details: details}
}

func conflict(err error, format string, args ...any) *Error {
	return &Error{Kind: KindConflict, Message: fmt.Sprintf(format, args...), Err: err}
}

// classify turns context expiry into a retryable timeout and passes everything else through.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if KindOf(err) != "" {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return &Error{Kind: KindTimeout, Message: "operation aborted before commit; retry", Err: err}
	}
	return err
}
