// Package journey applies learner actions to progress records: section
// completion, test-outs and resets, with gating and points kept consistent.
package journey

import (
	"time"

	"github.com/google/uuid"

	"github.com/p-n-ai/pai-journeys/internal/course"
	"github.com/p-n-ai/pai-journeys/internal/gating"
	"github.com/p-n-ai/pai-journeys/internal/progress"
	"github.com/p-n-ai/pai-journeys/internal/scoring"
)

// Answer selects an option of a quiz question by index.
type Answer struct {
	Question int `json:"question"`
	Option   int `json:"option"`
}

// SectionResult is the kind-specific payload of a section action. Only the
// fields matching the section's kind may be set; CurrentSection applies to any.
type SectionResult struct {
	Acknowledge    bool                   `json:"acknowledge,omitempty"`
	MasteredTerms  []string               `json:"mastered_terms,omitempty"`
	Answers        []Answer               `json:"answers,omitempty"`
	GameResults    map[string]course.Tier `json:"game_results,omitempty"`
	CurrentSection *int                   `json:"current_section,omitempty"`
}

// Change is the outcome of a mutating action.
type Change struct {
	Record *progress.Record
	Events []Event
}

// TestOutResult is the outcome of a test-out attempt. Attempted is false
// when the level was not locked and the attempt was ignored.
type TestOutResult struct {
	Attempted bool          `json:"attempted"`
	Passed    bool          `json:"passed"`
	Score     scoring.Score `json:"score"`
	Threshold float64       `json:"threshold_percent"`
	Record    *progress.Record
	Events    []Event
}

// EngineConfig holds dependencies for the engine.
type EngineConfig struct {
	Now func() time.Time
}

// Engine computes progress transitions. It never mutates the record it is
// given and never touches storage.
type Engine struct {
	now func() time.Time
}

// NewEngine creates a new progression engine.
func NewEngine(cfg EngineConfig) *Engine {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Engine{now: now}
}

// LevelStatuses returns the status of every level and whether the course is
// complete.
func (e *Engine) LevelStatuses(c *course.Course, rec *progress.Record) ([]gating.LevelStatus, bool) {
	ids := c.LevelIDs()
	completed := rec.Completed()
	return gating.Statuses(ids, completed), gating.CourseCompleted(ids, completed)
}

// RecordSectionComplete merges a section action into a copy of rec.
//
// Mastered terms form a set, a submitted quiz answer is final, and a
// mini-game keeps its best tier per sub-game, so replays are idempotent.
// The level completes once every required section is done.
func (e *Engine) RecordSectionComplete(c *course.Course, rec *progress.Record, levelID int, sectionID string, res SectionResult) (Change, error) {
	l, ok := c.Level(levelID)
	if !ok {
		return Change{}, invalidRef(c.ID, levelID, "", "no such level")
	}
	sec, ok := l.Section(sectionID)
	if !ok {
		return Change{}, invalidRef(c.ID, levelID, sectionID, "no such section")
	}
	out := e.conformed(c, rec)
	if !gating.CanEnter(c.LevelIDs(), out.Completed(), levelID) {
		return Change{}, &ReferenceError{Course: c.ID, Level: levelID, Section: sectionID, Err: ErrLevelLocked}
	}
	if err := checkResult(c, l, sec, res); err != nil {
		return Change{}, err
	}

	d := out.Detail(levelID)
	wasDone := scoring.SectionDone(sec, d)

	applyResult(sec, d, res)
	d.Points = scoring.LevelPoints(c, l, d)
	d.UpdatedAt = e.now()

	var events []Event
	if !wasDone && scoring.SectionDone(sec, d) {
		events = append(events, e.event(c.ID, levelID, sectionID, EventSectionCompleted, map[string]any{
			"kind": string(sec.Kind()),
		}))
	}
	if !out.IsLevelCompleted(levelID) && scoring.LevelComplete(c, l, d) {
		out.MarkLevelCompleted(levelID)
		events = append(events, e.event(c.ID, levelID, "", EventLevelCompleted, map[string]any{
			"points": d.Points,
		}))
	}
	events = append(events, e.reconcile(c, out)...)

	return Change{Record: out, Events: events}, nil
}

// AttemptTestOut grades a fresh test-out run for a locked level. Passing
// completes the level directly; failing leaves the record unchanged. Only
// locked levels can be tested out.
func (e *Engine) AttemptTestOut(c *course.Course, rec *progress.Record, levelID int, answers []int) (TestOutResult, error) {
	l, ok := c.Level(levelID)
	if !ok {
		return TestOutResult{}, invalidRef(c.ID, levelID, "", "no such level")
	}
	if l.TestOut == nil || len(l.TestOut.Questions) == 0 {
		return TestOutResult{}, invalidRef(c.ID, levelID, "", "level has no test-out")
	}

	threshold := c.TestOutThreshold(l)
	out := e.conformed(c, rec)
	status, _ := gating.StatusOf(c.LevelIDs(), out.Completed(), levelID)
	if status != gating.StatusLocked {
		return TestOutResult{Threshold: threshold, Record: out}, nil
	}

	qs := l.TestOut.Questions
	if len(answers) != len(qs) {
		return TestOutResult{}, invalidRef(c.ID, levelID, "", "test-out has %d questions, got %d answers", len(qs), len(answers))
	}
	for i, a := range answers {
		if a < 0 || a >= len(qs[i].Options) {
			return TestOutResult{}, invalidRef(c.ID, levelID, "", "test-out question %d has no option %d", i, a)
		}
	}

	score := scoring.Grade(qs, answers)
	result := TestOutResult{
		Attempted: true,
		Passed:    scoring.TestOutPassed(score, threshold),
		Score:     score,
		Threshold: threshold,
		Record:    out,
	}
	if !result.Passed {
		return result, nil
	}

	d := out.Detail(levelID)
	d.TestedOut = true
	d.UpdatedAt = e.now()
	out.MarkLevelCompleted(levelID)
	result.Events = append(result.Events, e.event(c.ID, levelID, "", EventLevelTestedOut, map[string]any{
		"correct": score.Correct,
		"total":   score.Total,
		"percent": score.Percent(),
	}))
	result.Events = append(result.Events, e.reconcile(c, out)...)
	return result, nil
}

// ResetLevel clears one level's detail and completion. The course stops
// being complete if the level was complete; other levels are untouched.
func (e *Engine) ResetLevel(c *course.Course, rec *progress.Record, levelID int) (Change, error) {
	if _, ok := c.Level(levelID); !ok {
		return Change{}, invalidRef(c.ID, levelID, "", "no such level")
	}
	out := e.conformed(c, rec)
	progress.ClearLevel(out, levelID)
	events := []Event{e.event(c.ID, levelID, "", EventLevelReset, nil)}
	events = append(events, e.reconcile(c, out)...)
	return Change{Record: out, Events: events}, nil
}

// Reconcile returns a copy of rec conformed to c with CourseCompleted
// re-derived from the completed set. Stored records pass through it
// before anyone reads them.
func (e *Engine) Reconcile(c *course.Course, rec *progress.Record) *progress.Record {
	out := e.conformed(c, rec)
	out.CourseCompleted = gating.CourseCompleted(c.LevelIDs(), out.Completed())
	return out
}

// conformed returns a copy of rec without progress that c does not author,
// with level points derived again from what is left.
func (e *Engine) conformed(c *course.Course, rec *progress.Record) *progress.Record {
	out := rec.Clone()
	out.Conform(c)
	for id, d := range out.Levels {
		l, _ := c.Level(id)
		d.Points = scoring.LevelPoints(c, l, d)
	}
	return out
}

// reconcile re-derives CourseCompleted from the completed set and reports
// the transition to complete.
func (e *Engine) reconcile(c *course.Course, rec *progress.Record) []Event {
	ids := c.LevelIDs()
	was := rec.CourseCompleted
	rec.CourseCompleted = gating.CourseCompleted(ids, rec.Completed())
	if !was && rec.CourseCompleted {
		return []Event{e.event(c.ID, 0, "", EventCourseCompleted, map[string]any{
			"points": rec.Points(),
		})}
	}
	return nil
}

func (e *Engine) event(courseID string, levelID int, sectionID string, typ EventType, data map[string]any) Event {
	return Event{
		ID:        uuid.NewString(),
		CourseID:  courseID,
		LevelID:   levelID,
		SectionID: sectionID,
		Type:      typ,
		Data:      data,
		CreatedAt: e.now(),
	}
}

func checkResult(c *course.Course, l *course.Level, sec course.Section, res SectionResult) error {
	ref := func(format string, args ...any) error {
		return invalidRef(c.ID, l.ID, sec.SectionID(), format, args...)
	}
	if res.CurrentSection != nil && (*res.CurrentSection < 0 || *res.CurrentSection >= len(l.Sections)) {
		return ref("current section %d out of range [0,%d)", *res.CurrentSection, len(l.Sections))
	}

	kind := sec.Kind()
	if res.Acknowledge && kind != course.KindOverview && kind != course.KindActivity {
		return ref("%s sections cannot be acknowledged", kind)
	}
	if len(res.MasteredTerms) > 0 && kind != course.KindFlashcards {
		return ref("%s sections have no terms", kind)
	}
	if len(res.Answers) > 0 && kind != course.KindQuiz {
		return ref("%s sections have no questions", kind)
	}
	if len(res.GameResults) > 0 && kind != course.KindMiniGame {
		return ref("%s sections have no games", kind)
	}

	switch s := sec.(type) {
	case *course.Flashcards:
		for _, id := range res.MasteredTerms {
			if !s.HasTerm(id) {
				return ref("no term %q", id)
			}
		}
	case *course.Quiz:
		for _, a := range res.Answers {
			if a.Question < 0 || a.Question >= len(s.Questions) {
				return ref("no question %d", a.Question)
			}
			if a.Option < 0 || a.Option >= len(s.Questions[a.Question].Options) {
				return ref("question %d has no option %d", a.Question, a.Option)
			}
		}
	case *course.MiniGame:
		for id, tier := range res.GameResults {
			if !s.HasGame(id) {
				return ref("no game %q", id)
			}
			if _, err := course.ParseTier(string(tier)); err != nil {
				return ref("game %q: %v", id, err)
			}
		}
	}
	return nil
}

func applyResult(sec course.Section, d *progress.LevelDetail, res SectionResult) {
	if res.CurrentSection != nil {
		d.CurrentSection = *res.CurrentSection
	}
	switch s := sec.(type) {
	case *course.Overview, *course.Activity:
		if res.Acknowledge {
			d.MarkSectionCompleted(s.SectionID())
		}
	case *course.Flashcards:
		for _, id := range res.MasteredTerms {
			d.Master(s.ID, id)
		}
	case *course.Quiz:
		answers := d.QuizAnswers(s.ID, len(s.Questions))
		for _, a := range res.Answers {
			if answers[a.Question] == progress.Unanswered {
				answers[a.Question] = a.Option
			}
		}
	case *course.MiniGame:
		for id, tier := range res.GameResults {
			d.SetTier(s.ID, id, tier)
		}
	}
}
