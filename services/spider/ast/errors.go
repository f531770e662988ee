// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ast

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
)

// Sentinel errors for analyzer operations.
var (
	// ErrFileTooLarge is returned when file content exceeds the
	// analyzer's configured maximum size.
	ErrFileTooLarge = errors.New("file exceeds maximum size")

	// ErrInvalidContent is returned when file content is not valid UTF-8.
	ErrInvalidContent = errors.New("invalid file content")

	// ErrUnsupportedLanguage is returned by the Registry for file
	// extensions no analyzer handles. An unsupported extension is an
	// error, never a silent empty result.
	ErrUnsupportedLanguage = errors.New("unsupported language")
)

// ErrorKind classifies an analysis failure.
type ErrorKind string

// Analysis error kinds.
const (
	KindFileNotFound       ErrorKind = "file_not_found"
	KindPermissionDenied   ErrorKind = "permission_denied"
	KindFileTooLarge       ErrorKind = "file_too_large"
	KindParseError         ErrorKind = "parse_error"
	KindResolutionFailed   ErrorKind = "resolution_failed"
	KindTimeout            ErrorKind = "timeout"
	KindCircularDependency ErrorKind = "circular_dependency"
	KindUnknown            ErrorKind = "unknown"
)

// AnalysisError is a classified analyzer failure carrying the
// originating file path and the wrapped cause.
type AnalysisError struct {
	// Kind is the classified failure category.
	Kind ErrorKind

	// Path is the file the operation was working on.
	Path string

	// Err is the underlying cause. Never nil.
	Err error
}

// Error implements the error interface.
func (e *AnalysisError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Path, e.Err)
}

// Unwrap returns the underlying cause.
func (e *AnalysisError) Unwrap() error {
	return e.Err
}

// Recoverable reports whether batch operations may swallow this error
// and continue with an empty/partial result for the file. Timeout,
// circular-dependency, and unknown failures propagate to the caller.
func (e *AnalysisError) Recoverable() bool {
	switch e.Kind {
	case KindFileNotFound, KindPermissionDenied, KindFileTooLarge,
		KindParseError, KindResolutionFailed:
		return true
	default:
		return false
	}
}

// Classify wraps err as an AnalysisError for path, inspecting the
// underlying cause to pick the kind. Already-classified errors are
// returned unchanged.
//
// Classification is heuristic by design: OS error codes and sentinel
// matches first, message inspection last.
func Classify(path string, err error) *AnalysisError {
	if err == nil {
		return nil
	}

	var ae *AnalysisError
	if errors.As(err, &ae) {
		return ae
	}

	kind := KindUnknown
	switch {
	case errors.Is(err, os.ErrNotExist) || errors.Is(err, fs.ErrNotExist):
		kind = KindFileNotFound
	case errors.Is(err, os.ErrPermission) || errors.Is(err, fs.ErrPermission):
		kind = KindPermissionDenied
	case errors.Is(err, ErrFileTooLarge):
		kind = KindFileTooLarge
	case errors.Is(err, ErrInvalidContent):
		kind = KindParseError
	case errors.Is(err, context.DeadlineExceeded):
		kind = KindTimeout
	case errors.Is(err, context.Canceled):
		kind = KindTimeout
	default:
		msg := strings.ToLower(err.Error())
		switch {
		case strings.Contains(msg, "no such file"), strings.Contains(msg, "not found"):
			kind = KindFileNotFound
		case strings.Contains(msg, "permission denied"), strings.Contains(msg, "access is denied"):
			kind = KindPermissionDenied
		case strings.Contains(msg, "parse"), strings.Contains(msg, "syntax"):
			kind = KindParseError
		case strings.Contains(msg, "timeout"), strings.Contains(msg, "deadline"):
			kind = KindTimeout
		case strings.Contains(msg, "circular"):
			kind = KindCircularDependency
		case strings.Contains(msg, "resolve"):
			kind = KindResolutionFailed
		}
	}

	return &AnalysisError{Kind: kind, Path: path, Err: err}
}

// IsRecoverable reports whether err classifies as a recoverable
// analysis failure for path.
func IsRecoverable(path string, err error) bool {
	ae := Classify(path, err)
	return ae != nil && ae.Recoverable()
}
