package journey

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

const dbTimeout = 5 * time.Second

// EventType names a progression milestone.
type EventType string

const (
	EventSectionCompleted EventType = "section_completed"
	EventLevelCompleted   EventType = "level_completed"
	EventCourseCompleted  EventType = "course_completed"
	EventLevelTestedOut   EventType = "level_tested_out"
	EventLevelReset       EventType = "level_reset"
	EventCourseReset      EventType = "course_reset"
)

// Event is a progression milestone observed by presentation and analytics.
type Event struct {
	ID        string         `json:"id"`
	UserID    string         `json:"user_id"`
	CourseID  string         `json:"course_id"`
	LevelID   int            `json:"level_id,omitempty"`
	SectionID string         `json:"section_id,omitempty"`
	Type      EventType      `json:"type"`
	Data      map[string]any `json:"data,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// EventSink receives events after the progress they describe is computed.
type EventSink interface {
	Emit(ctx context.Context, event Event) error
}

// NopSink ignores all events.
type NopSink struct{}

func (NopSink) Emit(context.Context, Event) error {
	return nil
}

// MemorySink stores events in memory for tests.
type MemorySink struct {
	mu     sync.Mutex
	events []Event
}

func NewMemorySink() *MemorySink {
	return &MemorySink{
		events: []Event{},
	}
}

func (s *MemorySink) Emit(_ context.Context, event Event) error {
	if event.Type == "" {
		return fmt.Errorf("event type is required")
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	s.mu.Lock()
	s.events = append(s.events, event)
	s.mu.Unlock()

	return nil
}

func (s *MemorySink) Events() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Event{}, s.events...)
}

// Types returns the recorded event types in emit order.
func (s *MemorySink) Types() []EventType {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]EventType, len(s.events))
	for i, e := range s.events {
		out[i] = e.Type
	}
	return out
}

// MultiSink fans events out to every sink, joining their errors.
type MultiSink []EventSink

func (m MultiSink) Emit(ctx context.Context, event Event) error {
	var errs []error
	for _, s := range m {
		if err := s.Emit(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// PostgresSink inserts events into the journey_events table.
type PostgresSink struct {
	pool *pgxpool.Pool
}

func NewPostgresSink(pool *pgxpool.Pool) *PostgresSink {
	return &PostgresSink{pool: pool}
}

// EnsureSchema creates the journey_events table if it does not exist.
func (s *PostgresSink) EnsureSchema(ctx context.Context) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("event sink pool is nil")
	}
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS journey_events (
			id         UUID PRIMARY KEY,
			user_id    TEXT NOT NULL,
			course_id  TEXT NOT NULL,
			level_id   INTEGER NOT NULL DEFAULT 0,
			section_id TEXT NOT NULL DEFAULT '',
			event_type TEXT NOT NULL,
			data       JSONB NOT NULL DEFAULT '{}'::jsonb,
			created_at TIMESTAMPTZ NOT NULL
		)`)
	if err != nil {
		return fmt.Errorf("create journey_events: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		CREATE INDEX IF NOT EXISTS journey_events_user_idx
			ON journey_events (user_id, created_at)`)
	if err != nil {
		return fmt.Errorf("create journey_events index: %w", err)
	}
	return nil
}

func (s *PostgresSink) Emit(ctx context.Context, event Event) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("event sink pool is nil")
	}
	if event.Type == "" {
		return fmt.Errorf("event type is required")
	}
	if event.UserID == "" {
		return fmt.Errorf("user_id is required")
	}

	id := event.ID
	if id == "" {
		id = uuid.NewString()
	}
	payload := event.Data
	if payload == nil {
		payload = map[string]any{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event data: %w", err)
	}
	createdAt := event.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	_, err = s.pool.Exec(ctx,
		`INSERT INTO journey_events (id, user_id, course_id, level_id, section_id, event_type, data, created_at)
		 VALUES ($1::uuid, $2, $3, $4, $5, $6, $7::jsonb, $8)
		 ON CONFLICT (id) DO NOTHING`,
		id,
		event.UserID,
		event.CourseID,
		event.LevelID,
		event.SectionID,
		string(event.Type),
		string(data),
		createdAt,
	)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}

	slog.Debug("event logged",
		"type", event.Type,
		"course_id", event.CourseID,
		"user_id", event.UserID,
	)
	return nil
}

// Recent returns the latest events of a user, newest first.
func (s *PostgresSink) Recent(ctx context.Context, userID string, limit int) ([]Event, error) {
	if s == nil || s.pool == nil {
		return nil, fmt.Errorf("event sink pool is nil")
	}
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	rows, err := s.pool.Query(ctx,
		`SELECT id::text, user_id, course_id, level_id, section_id, event_type, data, created_at
		 FROM journey_events
		 WHERE user_id = $1
		 ORDER BY created_at DESC
		 LIMIT $2`,
		userID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var (
			e    Event
			typ  string
			data []byte
		)
		if err := rows.Scan(&e.ID, &e.UserID, &e.CourseID, &e.LevelID, &e.SectionID, &typ, &data, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		e.Type = EventType(typ)
		if len(data) > 0 {
			if err := json.Unmarshal(data, &e.Data); err != nil {
				return nil, fmt.Errorf("decode event data: %w", err)
			}
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return out, nil
}
