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
	"io/fs"
	"os"
	"path/filepath"
)

// FileReader is the file-system collaborator analyzers read through.
// Errors returned by implementations are classified by Classify; the
// default implementation returns ordinary os errors.
type FileReader interface {
	// ReadFile reads the full content of path.
	ReadFile(path string) ([]byte, error)

	// Stat returns file metadata for path. Used by path resolution to
	// distinguish regular files from directories.
	Stat(path string) (fs.FileInfo, error)
}

// OSFileReader reads directly from the operating system.
type OSFileReader struct{}

// ReadFile implements FileReader.
func (OSFileReader) ReadFile(path string) ([]byte, error) {
	return os.ReadFile(filepath.FromSlash(path))
}

// Stat implements FileReader.
func (OSFileReader) Stat(path string) (fs.FileInfo, error) {
	return os.Stat(filepath.FromSlash(path))
}

// isRegularFile reports whether path exists and is a regular file.
// Resolving a module specifier to a directory instead of its index file
// is a defect; every resolution candidate passes through this check.
func isRegularFile(reader FileReader, path string) bool {
	info, err := reader.Stat(path)
	if err != nil {
		return false
	}
	return info.Mode().IsRegular()
}
