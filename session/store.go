// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package session

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// Store persists session records.  Implementations must be safe for
// concurrent use.
type Store interface {
	// Load returns the record for the id.  ErrNotFound is returned when the
	// record doesn't exist or has expired.
	Load(ctx context.Context, id string) (*Record, error)

	// Save creates or replaces the record, which expires after the ttl.
	Save(ctx context.Context, r *Record, ttl time.Duration) error

	// Destroy removes the record for the id.  Destroying a record which
	// doesn't exist isn't an error.
	Destroy(ctx context.Context, id string) error
}

// MemoryStore is a Store which keeps records in process memory.  Records are
// copied in and out of the store, so callers never share a record.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]memoryEntry
	now     func() time.Time
}

type memoryEntry struct {
	data      []byte
	expiresAt time.Time
}

// memoryOptions is the set of available options for MemoryStore functions
type memoryOptions struct {
	withNowFunc func() time.Time
}

func memoryDefaults() memoryOptions {
	return memoryOptions{
		withNowFunc: time.Now,
	}
}

func getMemoryOpts(opt ...Option) memoryOptions {
	opts := memoryDefaults()
	ApplyOpts(&opts, opt...)
	return opts
}

// NewMemoryStore creates a new in-memory Store.
//
// Supported options: WithNow
func NewMemoryStore(opt ...Option) *MemoryStore {
	opts := getMemoryOpts(opt...)
	return &MemoryStore{
		records: map[string]memoryEntry{},
		now:     opts.withNowFunc,
	}
}

// Load implements the Store interface.
func (s *MemoryStore) Load(_ context.Context, id string) (*Record, error) {
	const op = "MemoryStore.Load"
	if id == "" {
		return nil, fmt.Errorf("%s: missing id: %w", op, ErrInvalidParameter)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.records[id]
	if !ok {
		return nil, fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	if !s.now().Before(e.expiresAt) {
		delete(s.records, id)
		return nil, fmt.Errorf("%s: expired: %w", op, ErrNotFound)
	}
	var r Record
	if err := json.Unmarshal(e.data, &r); err != nil {
		return nil, fmt.Errorf("%s: unable to decode record: %s: %w", op, err, ErrStoreFailure)
	}
	return &r, nil
}

// Save implements the Store interface.
func (s *MemoryStore) Save(_ context.Context, r *Record, ttl time.Duration) error {
	const op = "MemoryStore.Save"
	switch {
	case r == nil:
		return fmt.Errorf("%s: record is nil: %w", op, ErrNilParameter)
	case r.ID == "":
		return fmt.Errorf("%s: record id is empty: %w", op, ErrInvalidParameter)
	case ttl <= 0:
		return fmt.Errorf("%s: ttl must be positive: %w", op, ErrInvalidParameter)
	}
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("%s: unable to encode record: %s: %w", op, err, ErrStoreFailure)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[r.ID] = memoryEntry{data: data, expiresAt: s.now().Add(ttl)}
	return nil
}

// Destroy implements the Store interface.
func (s *MemoryStore) Destroy(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, id)
	return nil
}

// Len returns the number of records held, including expired records which
// haven't been loaded since they expired.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}
