package journey

import (
	"slices"

	"github.com/p-n-ai/pai-journeys/internal/course"
	"github.com/p-n-ai/pai-journeys/internal/gating"
	"github.com/p-n-ai/pai-journeys/internal/progress"
	"github.com/p-n-ai/pai-journeys/internal/scoring"
)

// CourseView is a learner's read-only position in a course.
type CourseView struct {
	CourseID        string      `json:"course_id"`
	Title           string      `json:"title"`
	Topic           string      `json:"topic,omitempty"`
	Levels          []LevelView `json:"levels"`
	CourseCompleted bool        `json:"course_completed"`
	Percent         float64     `json:"percent"`
	Points          int         `json:"points"`
}

// LevelView is the derived state of one level.
type LevelView struct {
	ID             int           `json:"id"`
	Title          string        `json:"title"`
	Status         gating.Status `json:"status"`
	Points         int           `json:"points"`
	TestedOut      bool          `json:"tested_out,omitempty"`
	HasTestOut     bool          `json:"has_test_out"`
	CurrentSection int           `json:"current_section"`
	Sections       []SectionView `json:"sections"`
}

// SectionView is the derived state of one section.
type SectionView struct {
	ID       string         `json:"id"`
	Kind     course.Kind    `json:"kind"`
	Title    string         `json:"title,omitempty"`
	Required bool           `json:"required"`
	Done     bool           `json:"done"`
	Points   int            `json:"points"`
	Score    *scoring.Score `json:"score,omitempty"`
}

// View derives the learner-facing state of c from rec.
func (e *Engine) View(c *course.Course, rec *progress.Record) CourseView {
	rec = e.Reconcile(c, rec)
	statuses, completed := e.LevelStatuses(c, rec)
	v := CourseView{
		CourseID:        c.ID,
		Title:           c.Title,
		Topic:           c.Topic,
		Levels:          make([]LevelView, len(c.Levels)),
		CourseCompleted: completed,
		Percent:         gating.Percent(c.LevelIDs(), rec.Completed()),
	}
	for i := range c.Levels {
		l := &c.Levels[i]
		d := rec.Levels[l.ID]
		lv := LevelView{
			ID:         l.ID,
			Title:      l.Title,
			Status:     statuses[i].Status,
			Points:     scoring.LevelPoints(c, l, d),
			HasTestOut: l.TestOut != nil,
			Sections:   make([]SectionView, len(l.Sections)),
		}
		if d != nil {
			lv.TestedOut = d.TestedOut
			lv.CurrentSection = d.CurrentSection
		}
		required := c.RequiredSections(l)
		for j, s := range l.Sections {
			sv := SectionView{
				ID:       s.SectionID(),
				Kind:     s.Kind(),
				Title:    sectionTitle(s),
				Required: slices.Contains(required, s),
				Done:     scoring.SectionDone(s, d),
				Points:   scoring.SectionPoints(c.Rules.Points, s, d),
			}
			if q, ok := s.(*course.Quiz); ok && d != nil {
				score := scoring.QuizScore(q, d.Answers[q.ID])
				sv.Score = &score
			}
			lv.Sections[j] = sv
		}
		v.Points += lv.Points
		v.Levels[i] = lv
	}
	return v
}

func sectionTitle(s course.Section) string {
	switch s := s.(type) {
	case *course.Overview:
		return s.Title
	case *course.Flashcards:
		return s.Title
	case *course.Quiz:
		return s.Title
	case *course.MiniGame:
		return s.Title
	case *course.Activity:
		return s.Title
	}
	return ""
}
