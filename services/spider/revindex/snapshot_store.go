// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package revindex

import (
	"bytes"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/AleutianAI/spider/services/spider/ast"
)

// BadgerDB key layout for reverse-index snapshots.
const (
	keyPrefixSnap   = "spider:revindex:"
	keySuffixData   = ":data"
	keySuffixMeta   = ":meta"
	snapshotVersion = "v1"
)

// SnapshotMetadata describes a stored reverse-index snapshot.
type SnapshotMetadata struct {
	// RootDir is the workspace root the snapshot was built for.
	RootDir string `json:"root_dir"`

	// RootHash is SHA256(RootDir)[:16] for key grouping.
	RootHash string `json:"root_hash"`

	// SavedAtMilli is when the snapshot was saved (Unix milliseconds UTC).
	SavedAtMilli int64 `json:"saved_at_milli"`

	// TargetCount is the number of referenced targets.
	TargetCount int `json:"target_count"`

	// EdgeCount is the total number of (target, source) edges.
	EdgeCount int `json:"edge_count"`

	// SchemaVersion is the storage schema version.
	SchemaVersion string `json:"schema_version"`

	// CompressedSize is the size of the gzip-compressed JSON payload in bytes.
	CompressedSize int64 `json:"compressed_size"`

	// ContentHash is the SHA256 hash of the compressed payload.
	ContentHash string `json:"content_hash"`
}

// SnapshotStore persists reverse-index snapshots in BadgerDB.
//
// Description:
//
//	Stores the versioned JSON snapshot gzip-compressed, one snapshot
//	per workspace root (a new save replaces the previous one). The
//	integrity hash is checked on load; a failed check is treated the
//	same as a missing snapshot.
//
// Thread Safety:
//
//	Safe for concurrent use. BadgerDB handles its own concurrency
//	control.
type SnapshotStore struct {
	db     *badger.DB
	logger *slog.Logger
}

// NewSnapshotStore creates a SnapshotStore over an opened BadgerDB
// instance. The caller owns the DB lifecycle.
func NewSnapshotStore(db *badger.DB, logger *slog.Logger) (*SnapshotStore, error) {
	if db == nil {
		return nil, fmt.Errorf("badger db must not be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger must not be nil")
	}
	return &SnapshotStore{db: db, logger: logger}, nil
}

// rootHash returns SHA256(normalized rootDir)[:16].
func rootHash(rootDir string) string {
	h := sha256.Sum256([]byte(ast.NormalizePath(rootDir)))
	return hex.EncodeToString(h[:])[:16]
}

func hashBytes(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// Save serializes idx and stores it under rootDir's key.
//
// Key Schema:
//
//	spider:revindex:{rootHash}:data -> gzip(JSON(Snapshot))
//	spider:revindex:{rootHash}:meta -> JSON(SnapshotMetadata)
func (s *SnapshotStore) Save(ctx context.Context, idx *ReverseIndex, rootDir string) (*SnapshotMetadata, error) {
	if ctx == nil {
		return nil, fmt.Errorf("ctx must not be nil")
	}
	if idx == nil {
		return nil, fmt.Errorf("index must not be nil")
	}

	jsonData, err := idx.Serialize(rootDir)
	if err != nil {
		return nil, err
	}

	var compressed bytes.Buffer
	gw, err := gzip.NewWriterLevel(&compressed, gzip.BestCompression)
	if err != nil {
		return nil, fmt.Errorf("creating gzip writer: %w", err)
	}
	if _, err := gw.Write(jsonData); err != nil {
		return nil, fmt.Errorf("compressing snapshot: %w", err)
	}
	if err := gw.Close(); err != nil {
		return nil, fmt.Errorf("closing gzip writer: %w", err)
	}
	compressedData := compressed.Bytes()

	hash := rootHash(rootDir)
	meta := &SnapshotMetadata{
		RootDir:        ast.NormalizePath(rootDir),
		RootHash:       hash,
		SavedAtMilli:   time.Now().UnixMilli(),
		TargetCount:    idx.TargetCount(),
		EdgeCount:      idx.EdgeCount(),
		SchemaVersion:  snapshotVersion,
		CompressedSize: int64(len(compressedData)),
		ContentHash:    hashBytes(compressedData),
	}
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return nil, fmt.Errorf("marshaling metadata: %w", err)
	}

	dataKey := keyPrefixSnap + hash + keySuffixData
	metaKey := keyPrefixSnap + hash + keySuffixMeta

	err = s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set([]byte(dataKey), compressedData); err != nil {
			return fmt.Errorf("storing data: %w", err)
		}
		if err := txn.Set([]byte(metaKey), metaJSON); err != nil {
			return fmt.Errorf("storing metadata: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("writing snapshot to badger: %w", err)
	}

	s.logger.Info("reverse index snapshot saved",
		slog.String("root_dir", meta.RootDir),
		slog.Int("target_count", meta.TargetCount),
		slog.Int("edge_count", meta.EdgeCount),
		slog.Int64("compressed_size", meta.CompressedSize),
	)

	return meta, nil
}

// Load retrieves rootDir's snapshot and deserializes it.
//
// Outputs:
//
//	*ReverseIndex - The restored index, or nil when no snapshot
//	                exists, the integrity check fails, or the snapshot
//	                version/root no longer matches.
//	error - Non-nil only for storage-level failures.
func (s *SnapshotStore) Load(ctx context.Context, rootDir string) (*ReverseIndex, *SnapshotMetadata, error) {
	if ctx == nil {
		return nil, nil, fmt.Errorf("ctx must not be nil")
	}

	hash := rootHash(rootDir)
	dataKey := keyPrefixSnap + hash + keySuffixData
	metaKey := keyPrefixSnap + hash + keySuffixMeta

	var compressedData []byte
	var metaJSON []byte

	err := s.db.View(func(txn *badger.Txn) error {
		dataItem, err := txn.Get([]byte(dataKey))
		if err != nil {
			return err
		}
		compressedData, err = dataItem.ValueCopy(nil)
		if err != nil {
			return fmt.Errorf("copying data: %w", err)
		}

		metaItem, err := txn.Get([]byte(metaKey))
		if err != nil {
			return err
		}
		metaJSON, err = metaItem.ValueCopy(nil)
		if err != nil {
			return fmt.Errorf("copying metadata: %w", err)
		}
		return nil
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("reading snapshot for %s: %w", rootDir, err)
	}

	var meta SnapshotMetadata
	if err := json.Unmarshal(metaJSON, &meta); err != nil {
		s.logger.Warn("snapshot metadata unreadable, ignoring snapshot",
			slog.String("root_dir", rootDir), slog.Any("error", err))
		return nil, nil, nil
	}
	if meta.ContentHash != "" && meta.ContentHash != hashBytes(compressedData) {
		s.logger.Warn("snapshot integrity check failed, ignoring snapshot",
			slog.String("root_dir", rootDir))
		return nil, nil, nil
	}

	gr, err := gzip.NewReader(bytes.NewReader(compressedData))
	if err != nil {
		s.logger.Warn("snapshot decompression failed, ignoring snapshot",
			slog.String("root_dir", rootDir), slog.Any("error", err))
		return nil, nil, nil
	}
	defer gr.Close()

	jsonData, err := io.ReadAll(gr)
	if err != nil {
		s.logger.Warn("snapshot decompression failed, ignoring snapshot",
			slog.String("root_dir", rootDir), slog.Any("error", err))
		return nil, nil, nil
	}

	idx := Deserialize(jsonData, rootDir)
	if idx == nil {
		return nil, nil, nil
	}
	return idx, &meta, nil
}

// Delete removes rootDir's snapshot.
func (s *SnapshotStore) Delete(ctx context.Context, rootDir string) error {
	if ctx == nil {
		return fmt.Errorf("ctx must not be nil")
	}

	hash := rootHash(rootDir)
	dataKey := keyPrefixSnap + hash + keySuffixData
	metaKey := keyPrefixSnap + hash + keySuffixMeta

	err := s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Delete([]byte(dataKey)); err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("deleting data: %w", err)
		}
		if err := txn.Delete([]byte(metaKey)); err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("deleting metadata: %w", err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("deleting snapshot for %s: %w", rootDir, err)
	}

	s.logger.Info("reverse index snapshot deleted", slog.String("root_dir", rootDir))
	return nil
}
