package progress

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
)

// KV is the key-value persistence medium progress records are stored in.
// A missing key is reported with ok == false, never as an error.
type KV interface {
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}

// Store loads and saves progress records for a single user.
type Store struct {
	kv     KV
	userID string
}

// NewStore creates a store scoped to userID. An empty userID uses unscoped keys.
func NewStore(kv KV, userID string) *Store {
	return &Store{kv: kv, userID: userID}
}

// Key returns the storage key of a course's record.
func (s *Store) Key(courseID string) string {
	if s.userID == "" {
		return courseID + "-progress"
	}
	return s.userID + ":" + courseID + "-progress"
}

// Load returns the record for courseID, or a zero record when none exists.
// Corrupt stored values are logged and treated as missing.
func (s *Store) Load(ctx context.Context, courseID string) (*Record, error) {
	key := s.Key(courseID)
	raw, ok, err := s.kv.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("load progress %s: %w", key, err)
	}
	if !ok {
		return NewRecord(), nil
	}

	var rec Record
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		slog.Warn("discarding malformed progress record", "key", key, "error", err)
		return NewRecord(), nil
	}
	rec.normalize()
	return &rec, nil
}

// Save writes the whole record for courseID. Last writer wins.
func (s *Store) Save(ctx context.Context, courseID string, rec *Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal progress: %w", err)
	}
	key := s.Key(courseID)
	if err := s.kv.Set(ctx, key, string(data)); err != nil {
		return fmt.Errorf("save progress %s: %w", key, err)
	}
	return nil
}

// Reset clears the entire record for courseID.
func (s *Store) Reset(ctx context.Context, courseID string) error {
	key := s.Key(courseID)
	if err := s.kv.Delete(ctx, key); err != nil {
		return fmt.Errorf("reset progress %s: %w", key, err)
	}
	return nil
}

// ResetLevel clears one level's detail and completion for courseID.
func (s *Store) ResetLevel(ctx context.Context, courseID string, levelID int) error {
	rec, err := s.Load(ctx, courseID)
	if err != nil {
		return err
	}
	ClearLevel(rec, levelID)
	return s.Save(ctx, courseID, rec)
}

// ClearLevel removes levelID's detail and completion from rec. If the
// level was complete the course can no longer be complete.
func ClearLevel(rec *Record, levelID int) {
	delete(rec.Levels, levelID)
	if rec.UnmarkLevel(levelID) {
		rec.CourseCompleted = false
	}
}

// MemoryKV is an in-memory KV.
type MemoryKV struct {
	values map[string]string
	mu     sync.RWMutex
}

// NewMemoryKV creates a new in-memory key-value store.
func NewMemoryKV() *MemoryKV {
	return &MemoryKV{
		values: make(map[string]string),
	}
}

func (m *MemoryKV) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.values[key]
	return v, ok, nil
}

func (m *MemoryKV) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
	return nil
}

func (m *MemoryKV) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.values, key)
	return nil
}
