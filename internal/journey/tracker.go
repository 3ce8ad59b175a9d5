package journey

import (
	"context"
	"log/slog"
	"sync"

	"github.com/p-n-ai/pai-journeys/internal/course"
	"github.com/p-n-ai/pai-journeys/internal/progress"
)

// SaveNotice reports that progress advanced in memory but could not be
// persisted. The save is retried on the learner's next action.
type SaveNotice struct {
	Message string `json:"message"`
	Err     error  `json:"-"`
}

// Update is what a Tracker action returns to its caller.
type Update struct {
	Record  *progress.Record
	Events  []Event
	TestOut *TestOutResult
	Notice  *SaveNotice
}

// TrackerConfig holds dependencies for the tracker.
type TrackerConfig struct {
	Engine *Engine
	KV     progress.KV
	Sink   EventSink
}

// Tracker binds the engine to storage. Actions of one user are serialised
// load -> compute -> save; different users proceed in parallel. A user's
// session lives while an action holds it or a save is pending.
type Tracker struct {
	engine *Engine
	kv     progress.KV
	sink   EventSink

	mu       sync.Mutex
	sessions map[string]*session
}

type session struct {
	refs int // guarded by Tracker.mu

	mu      sync.Mutex
	store   *progress.Store
	pending map[string]*progress.Record // unsaved records by course
}

// NewTracker creates a tracker. Missing dependencies fall back to an
// in-memory store, a default engine and a no-op sink.
func NewTracker(cfg TrackerConfig) *Tracker {
	engine := cfg.Engine
	if engine == nil {
		engine = NewEngine(EngineConfig{})
	}
	kv := cfg.KV
	if kv == nil {
		kv = progress.NewMemoryKV()
	}
	sink := cfg.Sink
	if sink == nil {
		sink = NopSink{}
	}
	return &Tracker{
		engine:   engine,
		kv:       kv,
		sink:     sink,
		sessions: make(map[string]*session),
	}
}

// Engine returns the tracker's engine.
func (t *Tracker) Engine() *Engine {
	return t.engine
}

// acquire returns the session of userID, creating it on first use. Every
// acquire must be paired with a release.
func (t *Tracker) acquire(userID string) *session {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.sessions[userID]
	if !ok {
		s = &session{
			store:   progress.NewStore(t.kv, userID),
			pending: make(map[string]*progress.Record),
		}
		t.sessions[userID] = s
	}
	s.refs++
	return s
}

func (t *Tracker) release(userID string, s *session) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s.refs--
	if s.refs == 0 && len(s.pending) == 0 {
		delete(t.sessions, userID)
	}
}

// Load returns the user's record for c, conformed to the course. A record
// whose save failed earlier is returned from memory after one more save
// attempt.
func (t *Tracker) Load(ctx context.Context, userID string, c *course.Course) (*progress.Record, error) {
	s := t.acquire(userID)
	defer t.release(userID, s)
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, err := s.load(ctx, c.ID)
	if err != nil {
		return nil, err
	}
	return t.engine.Reconcile(c, rec), nil
}

// View returns the learner-facing state of c for userID.
func (t *Tracker) View(ctx context.Context, userID string, c *course.Course) (CourseView, error) {
	rec, err := t.Load(ctx, userID, c)
	if err != nil {
		return CourseView{}, err
	}
	return t.engine.View(c, rec), nil
}

// RecordSection applies a section action for userID.
func (t *Tracker) RecordSection(ctx context.Context, userID string, c *course.Course, levelID int, sectionID string, res SectionResult) (Update, error) {
	return t.mutate(ctx, userID, c.ID, func(rec *progress.Record) (Update, error) {
		ch, err := t.engine.RecordSectionComplete(c, rec, levelID, sectionID, res)
		return Update{Record: ch.Record, Events: ch.Events}, err
	})
}

// AttemptTestOut grades a test-out attempt for userID.
func (t *Tracker) AttemptTestOut(ctx context.Context, userID string, c *course.Course, levelID int, answers []int) (Update, error) {
	return t.mutate(ctx, userID, c.ID, func(rec *progress.Record) (Update, error) {
		res, err := t.engine.AttemptTestOut(c, rec, levelID, answers)
		if err != nil {
			return Update{}, err
		}
		return Update{Record: res.Record, Events: res.Events, TestOut: &res}, nil
	})
}

// ResetLevel clears one level of userID's progress.
func (t *Tracker) ResetLevel(ctx context.Context, userID string, c *course.Course, levelID int) (Update, error) {
	return t.mutate(ctx, userID, c.ID, func(rec *progress.Record) (Update, error) {
		ch, err := t.engine.ResetLevel(c, rec, levelID)
		return Update{Record: ch.Record, Events: ch.Events}, err
	})
}

// ResetCourse clears all of userID's progress in a course.
func (t *Tracker) ResetCourse(ctx context.Context, userID, courseID string) (Update, error) {
	s := t.acquire(userID)
	defer t.release(userID, s)
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := progress.NewRecord()
	up := Update{
		Record: rec,
		Events: []Event{t.engine.event(courseID, 0, "", EventCourseReset, nil)},
	}
	if err := s.store.Reset(ctx, courseID); err != nil {
		s.pending[courseID] = rec
		up.Notice = saveNotice(userID, courseID, err)
	} else {
		delete(s.pending, courseID)
	}
	t.emit(ctx, userID, up.Events)
	return up, nil
}

func (t *Tracker) mutate(ctx context.Context, userID, courseID string, apply func(*progress.Record) (Update, error)) (Update, error) {
	s := t.acquire(userID)
	defer t.release(userID, s)
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.load(ctx, courseID)
	if err != nil {
		return Update{}, err
	}
	up, err := apply(rec)
	if err != nil {
		return Update{}, err
	}

	if err := s.store.Save(ctx, courseID, up.Record); err != nil {
		s.pending[courseID] = up.Record
		up.Notice = saveNotice(userID, courseID, err)
	} else {
		delete(s.pending, courseID)
	}

	t.emit(ctx, userID, up.Events)
	up.Record = up.Record.Clone()
	return up, nil
}

// emit stamps events with userID and sends them to the sink. Delivery
// failures are logged; progress is never rolled back for them.
func (t *Tracker) emit(ctx context.Context, userID string, events []Event) {
	for i := range events {
		events[i].UserID = userID
		e := events[i]
		if err := t.sink.Emit(ctx, e); err != nil {
			slog.Warn("failed to emit event", "type", e.Type, "user_id", userID, "error", err)
		}
	}
}

func (s *session) load(ctx context.Context, courseID string) (*progress.Record, error) {
	if rec, ok := s.pending[courseID]; ok {
		if err := s.store.Save(ctx, courseID, rec); err == nil {
			delete(s.pending, courseID)
		}
		return rec, nil
	}
	return s.store.Load(ctx, courseID)
}

func saveNotice(userID, courseID string, err error) *SaveNotice {
	slog.Warn("failed to save progress, keeping it in memory",
		"user_id", userID,
		"course_id", courseID,
		"error", err,
	)
	return &SaveNotice{
		Message: "Your progress could not be saved and will be retried.",
		Err:     err,
	}
}
