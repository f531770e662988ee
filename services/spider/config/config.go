// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads optional per-workspace overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config holds user-provided overrides for analysis.
//
// Description:
//
//	Loaded from <workspaceRoot>/spider.config.yaml. All fields are
//	optional. A missing config file is not an error (zero-config works
//	out of the box).
//
// Thread Safety: Safe for concurrent reads after construction.
type Config struct {
	// DependencyCacheSize caps the per-file dependency cache. 0 means
	// unbounded.
	DependencyCacheSize int `yaml:"dependency_cache_size"`

	// SymbolCacheSize caps the per-file symbol-graph cache. 0 means
	// unbounded.
	SymbolCacheSize int `yaml:"symbol_cache_size"`

	// MaxCrawlDepth bounds full graph crawls.
	MaxCrawlDepth int `yaml:"max_crawl_depth"`

	// MaxFileSizeBytes caps the size of any file the analyzers accept.
	MaxFileSizeBytes int64 `yaml:"max_file_size_bytes"`

	// IgnoredDirs lists directory basenames never walked or recursed
	// into. Example: ["node_modules", "vendor", "generated"]
	IgnoredDirs []string `yaml:"ignored_dirs"`

	// PathAliases maps module specifier prefixes to workspace-relative
	// directories (tsconfig "paths" style).
	// Example: {"@app/": "src/app/"}
	PathAliases map[string]string `yaml:"path_aliases"`

	// ScanConcurrency bounds parallel candidate analysis during a
	// fallback reference scan.
	ScanConcurrency int `yaml:"scan_concurrency"`

	// ReindexConcurrency bounds parallel stale-file re-analysis.
	ReindexConcurrency int `yaml:"reindex_concurrency"`

	// SnapshotDir, when set, enables BadgerDB snapshot persistence
	// under this directory.
	SnapshotDir string `yaml:"snapshot_dir"`
}

// Load reads spider.config.yaml from the workspace root.
//
// Description:
//
//	If the workspace root is empty or the file does not exist, returns
//	an empty config with no error. Only returns an error if the file
//	exists but cannot be parsed.
//
// Thread Safety: Safe for concurrent use (stateless function).
func Load(workspaceRoot string) (Config, error) {
	if workspaceRoot == "" {
		return Config{}, nil
	}

	configPath := filepath.Join(workspaceRoot, "spider.config.yaml")
	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return Config{}, nil
		}
		return Config{}, fmt.Errorf("reading spider.config.yaml: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return Config{}, fmt.Errorf("parsing spider.config.yaml: %w", err)
	}

	return config, nil
}

// ResolveAliases converts workspace-relative alias targets to absolute
// paths rooted at workspaceRoot.
func (c Config) ResolveAliases(workspaceRoot string) map[string]string {
	if len(c.PathAliases) == 0 {
		return nil
	}
	out := make(map[string]string, len(c.PathAliases))
	for prefix, target := range c.PathAliases {
		if filepath.IsAbs(target) {
			out[prefix] = target
			continue
		}
		out[prefix] = filepath.Join(workspaceRoot, target)
	}
	return out
}
