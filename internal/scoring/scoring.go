// Package scoring computes section and level completion, points, and
// test-out pass/fail decisions from learner progress.
package scoring

import (
	"github.com/p-n-ai/pai-journeys/internal/course"
	"github.com/p-n-ai/pai-journeys/internal/progress"
)

// Score is a count of correct answers over a full question set.
type Score struct {
	Correct int `json:"correct"`
	Total   int `json:"total"`
}

// Ratio returns Correct/Total, unrounded. An empty set scores 0.
func (s Score) Ratio() float64 {
	if s.Total == 0 {
		return 0
	}
	return float64(s.Correct) / float64(s.Total)
}

// Percent returns the unrounded score percentage.
func (s Score) Percent() float64 {
	return s.Ratio() * 100
}

// Grade scores answers against questions. Missing and unanswered entries
// count as incorrect; the denominator is always the full question set.
func Grade(questions []course.Question, answers []int) Score {
	s := Score{Total: len(questions)}
	for i, q := range questions {
		if i < len(answers) && answers[i] == q.Correct {
			s.Correct++
		}
	}
	return s
}

// QuizScore scores a quiz section. The most recent answer is part of the
// score even before the learner advances.
func QuizScore(q *course.Quiz, answers []int) Score {
	return Grade(q.Questions, answers)
}

// QuizDone reports whether every question has been answered with one of
// its options, regardless of correctness.
func QuizDone(q *course.Quiz, answers []int) bool {
	if len(answers) < len(q.Questions) {
		return false
	}
	for i, question := range q.Questions {
		if answers[i] < 0 || answers[i] >= len(question.Options) {
			return false
		}
	}
	return true
}

// FlashcardsDone reports whether every term has been mastered. Viewing or
// flipping a card does not count.
func FlashcardsDone(f *course.Flashcards, mastered []string) bool {
	have := make(map[string]bool, len(mastered))
	for _, id := range mastered {
		have[id] = true
	}
	for _, t := range f.Terms {
		if !have[t.ID] {
			return false
		}
	}
	return true
}

// MiniGameDone reports whether every sub-game has produced a result tier.
func MiniGameDone(m *course.MiniGame, tiers map[string]course.Tier) bool {
	for _, g := range m.Games {
		if _, ok := tiers[g.ID]; !ok {
			return false
		}
	}
	return true
}

// MiniGamePoints sums the tier points of every recorded sub-game.
func MiniGamePoints(rules course.PointRules, m *course.MiniGame, tiers map[string]course.Tier) int {
	total := 0
	for _, g := range m.Games {
		if t, ok := tiers[g.ID]; ok {
			total += rules.Tiers[t]
		}
	}
	return total
}

// SectionDone evaluates the done predicate of s against level progress.
func SectionDone(s course.Section, d *progress.LevelDetail) bool {
	if d == nil {
		return false
	}
	switch s := s.(type) {
	case *course.Overview, *course.Activity:
		return d.IsSectionCompleted(s.SectionID())
	case *course.Flashcards:
		return FlashcardsDone(s, d.Mastered(s.ID))
	case *course.Quiz:
		return QuizDone(s, d.Answers[s.ID])
	case *course.MiniGame:
		return MiniGameDone(s, d.Tiers(s.ID))
	}
	return false
}

// SectionPoints derives the points a section contributes from progress, so
// repeated actions never award twice.
func SectionPoints(rules course.PointRules, s course.Section, d *progress.LevelDetail) int {
	if d == nil {
		return 0
	}
	switch s := s.(type) {
	case *course.Overview:
		if d.IsSectionCompleted(s.ID) {
			return rules.Overview
		}
	case *course.Activity:
		if d.IsSectionCompleted(s.ID) {
			return rules.Activity
		}
	case *course.Flashcards:
		seen := make(map[string]bool)
		for _, id := range d.Mastered(s.ID) {
			if s.HasTerm(id) {
				seen[id] = true
			}
		}
		return len(seen) * rules.Term
	case *course.Quiz:
		return QuizScore(s, d.Answers[s.ID]).Correct * rules.CorrectAnswer
	case *course.MiniGame:
		return MiniGamePoints(rules, s, d.Tiers(s.ID))
	}
	return 0
}

// LevelPoints sums the points of every section of a level.
func LevelPoints(c *course.Course, l *course.Level, d *progress.LevelDetail) int {
	total := 0
	for _, s := range l.Sections {
		total += SectionPoints(c.Rules.Points, s, d)
	}
	return total
}

// LevelComplete reports whether every required section of l is done. It
// measures finishing, not passing: a quiz answered wrongly still counts.
func LevelComplete(c *course.Course, l *course.Level, d *progress.LevelDetail) bool {
	required := c.RequiredSections(l)
	if len(required) == 0 {
		return false
	}
	for _, s := range required {
		if !SectionDone(s, d) {
			return false
		}
	}
	return true
}

// TestOutPassed compares the unrounded score against the threshold percent.
func TestOutPassed(s Score, thresholdPercent float64) bool {
	if s.Total == 0 {
		return false
	}
	// Cross-multiplied: 17/20 against 85 must pass.
	return float64(s.Correct)*100 >= thresholdPercent*float64(s.Total)
}
