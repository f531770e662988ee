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
	"os"
	"testing"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		name        string
		err         error
		wantKind    ErrorKind
		recoverable bool
	}{
		{"not exist", fmt.Errorf("read file: %w", os.ErrNotExist), KindFileNotFound, true},
		{"permission", os.ErrPermission, KindPermissionDenied, true},
		{"too large", fmt.Errorf("%w: 12 over 10", ErrFileTooLarge), KindFileTooLarge, true},
		{"invalid content", ErrInvalidContent, KindParseError, true},
		{"deadline", context.DeadlineExceeded, KindTimeout, false},
		{"canceled", context.Canceled, KindTimeout, false},
		{"circular message", errors.New("circular module graph detected"), KindCircularDependency, false},
		{"syntax message", errors.New("syntax error at line 3"), KindParseError, true},
		{"unknown", errors.New("corrupt state"), KindUnknown, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ae := Classify("/src/a.ts", tc.err)
			if ae.Kind != tc.wantKind {
				t.Errorf("kind = %s, want %s", ae.Kind, tc.wantKind)
			}
			if ae.Path != "/src/a.ts" {
				t.Errorf("path = %s, want /src/a.ts", ae.Path)
			}
			if ae.Recoverable() != tc.recoverable {
				t.Errorf("recoverable = %v, want %v", ae.Recoverable(), tc.recoverable)
			}
			if !errors.Is(ae, tc.err) {
				t.Error("classified error must wrap the cause")
			}
		})
	}
}

func TestClassify_Nil(t *testing.T) {
	if ae := Classify("/src/a.ts", nil); ae != nil {
		t.Errorf("Classify(nil) = %v, want nil", ae)
	}
	if IsRecoverable("/src/a.ts", nil) {
		t.Error("nil error is not recoverable")
	}
}

func TestClassify_AlreadyClassified(t *testing.T) {
	orig := &AnalysisError{Kind: KindParseError, Path: "/src/a.ts", Err: errors.New("bad token")}
	wrapped := fmt.Errorf("analyze: %w", orig)

	if got := Classify("/other/b.ts", wrapped); got != orig {
		t.Errorf("Classify should return the existing classification, got %v", got)
	}
}

func TestIsRecoverable(t *testing.T) {
	if !IsRecoverable("/src/a.ts", os.ErrNotExist) {
		t.Error("missing file should be recoverable")
	}
	if IsRecoverable("/src/a.ts", context.DeadlineExceeded) {
		t.Error("timeout must propagate")
	}
}
