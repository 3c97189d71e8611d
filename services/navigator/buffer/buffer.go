// Copyright (C) 2025 Insurance Navigator contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package buffer

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/andrew-quintana/insurance-navigator-sub011/services/navigator/datatypes"
	"github.com/dgraph-io/badger/v4"
)

// EntryStatus tracks an entry through the outbox lifecycle.
type EntryStatus string

const (
	// StatusPending means the entry awaits its first or next commit attempt.
	StatusPending EntryStatus = "pending"
	// StatusProcessing means a processor claimed the entry.
	StatusProcessing EntryStatus = "processing"
	// StatusCompleted means the durable commit succeeded.
	StatusCompleted EntryStatus = "completed"
	// StatusFailed means the last attempt failed and a retry is scheduled.
	StatusFailed EntryStatus = "failed"
	// StatusAbandoned means the retry budget is exhausted. Abandoned
	// entries are kept for inspection until the sweeper purges them.
	StatusAbandoned EntryStatus = "abandoned"
)

// MaxAttempts is the commit retry budget per entry.
const MaxAttempts = 3

// processingLease bounds how long a claimed entry may sit in processing.
// A claim older than the lease belongs to a processor that died mid-commit;
// the entry becomes claimable again so no strategy is ever stranded. Must
// exceed the processor's commit timeout.
const processingLease = time.Minute

// retryBackoff returns the delay before the next attempt: 1s, 2s, 4s.
func retryBackoff(attempts int) time.Duration {
	return time.Second << (attempts - 1)
}

// Entry is one buffered strategy awaiting durable commit.
//
// Entries are keyed by content hash, which makes enqueueing idempotent: a
// duplicate strategy maps onto the existing entry instead of creating a
// second one.
type Entry struct {
	ContentHash      string                     `json:"content_hash"`
	Strategy         datatypes.Strategy         `json:"strategy"`
	Constraints      datatypes.PlanConstraints  `json:"constraints"`
	ValidationStatus datatypes.ComplianceStatus `json:"validation_status"`

	Status        EntryStatus `json:"status"`
	Attempts      int         `json:"attempts"`
	LastError     string      `json:"last_error,omitempty"`
	EnqueuedAt    time.Time   `json:"enqueued_at"`
	UpdatedAt     time.Time   `json:"updated_at"`
	NextAttemptAt time.Time   `json:"next_attempt_at"`
}

// Stats is a point-in-time census of the buffer, served by the admin
// endpoint.
type Stats struct {
	Pending    int `json:"pending"`
	Processing int `json:"processing"`
	Completed  int `json:"completed"`
	Failed     int `json:"failed"`
	Abandoned  int `json:"abandoned"`
	Total      int `json:"total"`
}

// entryKeyPrefix namespaces entries in the key space.
const entryKeyPrefix = "entry:"

func entryKey(contentHash string) []byte {
	return []byte(entryKeyPrefix + contentHash)
}

// ErrNotFound is returned when no entry exists for a content hash.
var ErrNotFound = errors.New("buffer entry not found")

// Buffer is the durable outbox over the embedded database.
//
// # Thread Safety
//
// Safe for concurrent use; the underlying database serializes transactions.
type Buffer struct {
	db  *badger.DB
	now func() time.Time
}

// New wraps an opened database.
func New(db *badger.DB) *Buffer {
	return &Buffer{db: db, now: time.Now}
}

// Enqueue inserts an entry for the strategy if none exists.
//
// # Description
//
// Insert-if-absent keyed by content hash. When an entry for the hash is
// already present, in any status, the call succeeds without modifying it:
// a completed entry means the strategy is already durable, and a pending
// one means it is already on its way.
//
// # Outputs
//
//   - bool: True if a new entry was inserted, false on duplicate.
//   - error: Non-nil only on a database failure.
func (b *Buffer) Enqueue(strategy datatypes.Strategy, constraints datatypes.PlanConstraints, validationStatus datatypes.ComplianceStatus) (bool, error) {
	if strategy.ContentHash == "" {
		return false, errors.New("strategy has no content hash")
	}
	inserted := false
	err := b.db.Update(func(txn *badger.Txn) error {
		key := entryKey(strategy.ContentHash)
		_, err := txn.Get(key)
		if err == nil {
			return nil // duplicate
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		now := b.now().UTC()
		entry := Entry{
			ContentHash:      strategy.ContentHash,
			Strategy:         strategy,
			Constraints:      constraints,
			ValidationStatus: validationStatus,
			Status:           StatusPending,
			EnqueuedAt:       now,
			UpdatedAt:        now,
			NextAttemptAt:    now,
		}
		data, err := json.Marshal(entry)
		if err != nil {
			return fmt.Errorf("marshal entry: %w", err)
		}
		inserted = true
		return txn.Set(key, data)
	})
	if err != nil {
		return false, fmt.Errorf("enqueue %s: %w", strategy.ContentHash, err)
	}
	return inserted, nil
}

// Get returns the entry for a content hash, or ErrNotFound.
func (b *Buffer) Get(contentHash string) (Entry, error) {
	var entry Entry
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(entryKey(contentHash))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &entry)
		})
	})
	return entry, err
}

// ClaimDue atomically moves up to limit due pending or retryable failed
// entries to processing and returns them.
//
// An entry is due when its NextAttemptAt is not in the future. Claimed
// entries are invisible to other processors until released by MarkCompleted
// or MarkFailed, or until their processing lease expires: a crash between
// claim and release leaves the entry in processing, and once the lease runs
// out it is reclaimed here. Commits are idempotent, so redoing a possibly
// half-finished commit is safe.
func (b *Buffer) ClaimDue(limit int) ([]Entry, error) {
	now := b.now().UTC()
	var claimed []Entry
	err := b.db.Update(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(entryKeyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid() && len(claimed) < limit; it.Next() {
			var entry Entry
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &entry)
			})
			if err != nil {
				return err
			}
			switch entry.Status {
			case StatusPending, StatusFailed:
				if entry.NextAttemptAt.After(now) {
					continue
				}
			case StatusProcessing:
				// Orphaned claim from a dead processor.
				if now.Sub(entry.UpdatedAt) < processingLease {
					continue
				}
			default:
				continue
			}
			entry.Status = StatusProcessing
			entry.UpdatedAt = now
			data, err := json.Marshal(entry)
			if err != nil {
				return err
			}
			if err := txn.Set(entryKey(entry.ContentHash), data); err != nil {
				return err
			}
			claimed = append(claimed, entry)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("claim due entries: %w", err)
	}
	return claimed, nil
}

// MarkCompleted records a successful durable commit.
func (b *Buffer) MarkCompleted(contentHash string) error {
	return b.updateEntry(contentHash, func(entry *Entry) {
		entry.Status = StatusCompleted
		entry.LastError = ""
	})
}

// MarkFailed records a failed commit attempt. The entry returns to the
// retry queue with exponential backoff until MaxAttempts is reached, after
// which it is abandoned.
func (b *Buffer) MarkFailed(contentHash string, attemptErr error) error {
	return b.updateEntry(contentHash, func(entry *Entry) {
		entry.Attempts++
		entry.LastError = attemptErr.Error()
		if entry.Attempts >= MaxAttempts {
			entry.Status = StatusAbandoned
			return
		}
		entry.Status = StatusFailed
		entry.NextAttemptAt = b.now().UTC().Add(retryBackoff(entry.Attempts))
	})
}

// updateEntry applies mutate to one entry inside a transaction.
func (b *Buffer) updateEntry(contentHash string, mutate func(*Entry)) error {
	err := b.db.Update(func(txn *badger.Txn) error {
		key := entryKey(contentHash)
		item, err := txn.Get(key)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		var entry Entry
		if err := item.Value(func(val []byte) error {
			return json.Unmarshal(val, &entry)
		}); err != nil {
			return err
		}
		mutate(&entry)
		entry.UpdatedAt = b.now().UTC()
		data, err := json.Marshal(entry)
		if err != nil {
			return err
		}
		return txn.Set(key, data)
	})
	if err != nil {
		return fmt.Errorf("update entry %s: %w", contentHash, err)
	}
	return nil
}

// Stats walks the buffer and counts entries per status.
func (b *Buffer) Stats() (Stats, error) {
	var stats Stats
	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(entryKeyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			var entry Entry
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &entry)
			})
			if err != nil {
				return err
			}
			stats.Total++
			switch entry.Status {
			case StatusPending:
				stats.Pending++
			case StatusProcessing:
				stats.Processing++
			case StatusCompleted:
				stats.Completed++
			case StatusFailed:
				stats.Failed++
			case StatusAbandoned:
				stats.Abandoned++
			}
		}
		return nil
	})
	if err != nil {
		return Stats{}, fmt.Errorf("buffer stats: %w", err)
	}
	return stats, nil
}

// PurgeExpired deletes entries past their retention window.
//
// Completed and abandoned entries expire after completedTTL; pending,
// failed, and orphaned processing entries that sat uncommitted for longer
// than staleTTL are treated as expired and removed without ever being
// committed.
func (b *Buffer) PurgeExpired(completedTTL, staleTTL time.Duration) (int, error) {
	now := b.now().UTC()
	purged := 0
	err := b.db.Update(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(entryKeyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		var toDelete [][]byte
		for it.Rewind(); it.Valid(); it.Next() {
			var entry Entry
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &entry)
			})
			if err != nil {
				return err
			}
			age := now.Sub(entry.EnqueuedAt)
			expired := false
			switch entry.Status {
			case StatusCompleted, StatusAbandoned:
				expired = age > completedTTL
			case StatusPending, StatusFailed, StatusProcessing:
				expired = age > staleTTL
			}
			if expired {
				toDelete = append(toDelete, entryKey(entry.ContentHash))
			}
		}
		for _, key := range toDelete {
			if err := txn.Delete(key); err != nil {
				return err
			}
			purged++
		}
		return nil
	})
	if err != nil {
		return purged, fmt.Errorf("purge expired entries: %w", err)
	}
	return purged, nil
}
