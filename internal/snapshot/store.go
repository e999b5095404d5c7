// Rewardloop - Online Bandit Selection and Reward Attribution
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/rewardloop

package snapshot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/tomtom215/rewardloop/internal/metrics"
	"github.com/tomtom215/rewardloop/internal/recommend/engine"
)

// Key layout
const (
	snapshotKeyPrefix = "snapshot:"
	latestKey         = "snapshot_latest"
)

var (
	// ErrNotFound is returned when no snapshot exists for the requested key.
	ErrNotFound = errors.New("snapshot not found")

	// ErrClosed is returned by operations on a closed store.
	ErrClosed = errors.New("snapshot store closed")
)

// Config contains snapshot store configuration.
type Config struct {
	// Path is the BadgerDB directory.
	Path string

	// Retain is how many snapshots to keep. Older ones are pruned on Save.
	// Zero keeps everything.
	Retain int

	// SyncWrites fsyncs every save.
	SyncWrites bool
}

// Info describes a stored snapshot without decoding it.
type Info struct {
	Key        string    `json:"key"`
	CapturedAt time.Time `json:"captured_at"`
	Size       int64     `json:"size"`
}

// Store persists engine snapshots in BadgerDB as JSON documents.
// Keys sort by capture time so the newest snapshot is always last.
type Store struct {
	db     *badger.DB
	retain int
	logger zerolog.Logger

	mu     sync.RWMutex
	closed bool
}

// Open opens (or creates) a snapshot store at cfg.Path.
//
//nolint:gocritic // logger passed by value is acceptable for zerolog
func Open(cfg Config, logger zerolog.Logger) (*Store, error) {
	if cfg.Path == "" {
		return nil, errors.New("snapshot path is required")
	}
	if cfg.Retain < 0 {
		return nil, fmt.Errorf("snapshot retain must be non-negative, got %d", cfg.Retain)
	}

	opts := badger.DefaultOptions(cfg.Path)
	opts.SyncWrites = cfg.SyncWrites
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open BadgerDB: %w", err)
	}

	s := NewStore(db, cfg.Retain, logger)
	s.logger.Info().Str("path", cfg.Path).Int("retain", cfg.Retain).Msg("snapshot store opened")
	return s, nil
}

// NewStore wraps an already open database.
//
//nolint:gocritic // logger passed by value is acceptable for zerolog
func NewStore(db *badger.DB, retain int, logger zerolog.Logger) *Store {
	return &Store{
		db:     db,
		retain: retain,
		logger: logger.With().Str("component", "snapshot-store").Logger(),
	}
}

func snapshotKey(capturedAt time.Time) string {
	// Zero padding keeps lexicographic order equal to time order.
	return fmt.Sprintf("%s%020d", snapshotKeyPrefix, capturedAt.UTC().UnixNano())
}

func keyTime(key string) (time.Time, bool) {
	n, err := strconv.ParseInt(strings.TrimPrefix(key, snapshotKeyPrefix), 10, 64)
	if err != nil {
		return time.Time{}, false
	}
	return time.Unix(0, n).UTC(), true
}

func (s *Store) checkOpen() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}
	return nil
}

// Save stores a snapshot and marks it as the latest. It returns the key and
// the encoded size.
func (s *Store) Save(ctx context.Context, snap engine.Snapshot) (string, int, error) {
	if err := s.checkOpen(); err != nil {
		return "", 0, err
	}
	if err := ctx.Err(); err != nil {
		return "", 0, err
	}

	data, err := json.Marshal(snap)
	if err != nil {
		return "", 0, fmt.Errorf("marshal snapshot: %w", err)
	}

	key := snapshotKey(snap.CapturedAt)
	err = s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set([]byte(key), data); err != nil {
			return fmt.Errorf("set snapshot: %w", err)
		}
		if err := txn.Set([]byte(latestKey), []byte(key)); err != nil {
			return fmt.Errorf("set latest pointer: %w", err)
		}
		return nil
	})
	if err != nil {
		return "", 0, err
	}

	if s.retain > 0 {
		if pruned, err := s.prune(key); err != nil {
			s.logger.Warn().Err(err).Msg("snapshot prune failed")
		} else if pruned > 0 {
			s.logger.Debug().Int("pruned", pruned).Msg("old snapshots pruned")
		}
	}
	return key, len(data), nil
}

// SaveEngine exports the engine state and saves it, recording metrics.
func (s *Store) SaveEngine(ctx context.Context, e *engine.Engine) (string, error) {
	start := time.Now()
	key, size, err := s.Save(ctx, e.ExportState())
	metrics.RecordSnapshot(time.Since(start), size, err)
	return key, err
}

// prune deletes the oldest snapshots beyond the retention limit, never keep.
func (s *Store) prune(keep string) (int, error) {
	keys, err := s.keys()
	if err != nil {
		return 0, err
	}
	excess := len(keys) - s.retain
	if excess <= 0 {
		return 0, nil
	}

	deleted := 0
	err = s.db.Update(func(txn *badger.Txn) error {
		for _, key := range keys[:excess] {
			if key == keep {
				continue
			}
			if err := txn.Delete([]byte(key)); err != nil {
				return fmt.Errorf("delete snapshot %s: %w", key, err)
			}
			deleted++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return deleted, nil
}

// keys returns every snapshot key, oldest first.
func (s *Store) keys() ([]string, error) {
	var keys []string
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(snapshotKeyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			keys = append(keys, string(it.Item().KeyCopy(nil)))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	return keys, nil
}

// Load retrieves a snapshot by key.
func (s *Store) Load(ctx context.Context, key string) (engine.Snapshot, error) {
	var snap engine.Snapshot
	if err := s.checkOpen(); err != nil {
		return snap, err
	}
	if err := ctx.Err(); err != nil {
		return snap, err
	}

	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("get snapshot: %w", err)
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &snap)
		})
	})
	return snap, err
}

// Latest retrieves the most recently saved snapshot.
func (s *Store) Latest(ctx context.Context) (engine.Snapshot, error) {
	if err := s.checkOpen(); err != nil {
		return engine.Snapshot{}, err
	}

	var key string
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(latestKey))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("get latest pointer: %w", err)
		}
		return item.Value(func(val []byte) error {
			key = string(val)
			return nil
		})
	})
	if err != nil {
		return engine.Snapshot{}, err
	}
	return s.Load(ctx, key)
}

// List describes all stored snapshots, oldest first.
func (s *Store) List(ctx context.Context) ([]Info, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var infos []Info
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(snapshotKeyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			key := string(item.KeyCopy(nil))
			info := Info{Key: key, Size: item.ValueSize()}
			if ts, ok := keyTime(key); ok {
				info.CapturedAt = ts
			}
			infos = append(infos, info)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	return infos, nil
}

// Close closes the underlying database. It is safe to call more than once.
func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close BadgerDB: %w", err)
	}
	s.logger.Info().Msg("snapshot store closed")
	return nil
}
