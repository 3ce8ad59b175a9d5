// Package progress persists per-user, per-course learner progress.
package progress

import (
	"slices"
	"time"

	"github.com/p-n-ai/pai-journeys/internal/course"
)

// Unanswered marks a quiz question that has not been answered yet.
const Unanswered = -1

// Record is the persisted progress of one user through one course.
type Record struct {
	CompletedLevelIDs []int                `json:"completed_level_ids"`
	CourseCompleted   bool                 `json:"course_completed"`
	Levels            map[int]*LevelDetail `json:"levels"`
}

// LevelDetail holds in-progress state for a single level.
type LevelDetail struct {
	CurrentSection    int                               `json:"current_section"`
	CompletedSections []string                          `json:"completed_sections,omitempty"`
	MasteredTerms     map[string][]string               `json:"mastered_terms,omitempty"`
	Answers           map[string][]int                  `json:"answers,omitempty"`
	GameTiers         map[string]map[string]course.Tier `json:"game_tiers,omitempty"`
	Points            int                               `json:"points"`
	TestedOut         bool                              `json:"tested_out,omitempty"`
	UpdatedAt         time.Time                         `json:"updated_at"`
}

// NewRecord returns the zero-valued record of a course never visited.
func NewRecord() *Record {
	return &Record{
		CompletedLevelIDs: []int{},
		Levels:            make(map[int]*LevelDetail),
	}
}

// IsLevelCompleted reports whether levelID is in the completed set.
func (r *Record) IsLevelCompleted(levelID int) bool {
	_, found := slices.BinarySearch(r.CompletedLevelIDs, levelID)
	return found
}

// MarkLevelCompleted adds levelID to the completed set.
// Reports whether the set changed.
func (r *Record) MarkLevelCompleted(levelID int) bool {
	i, found := slices.BinarySearch(r.CompletedLevelIDs, levelID)
	if found {
		return false
	}
	r.CompletedLevelIDs = slices.Insert(r.CompletedLevelIDs, i, levelID)
	return true
}

// UnmarkLevel removes levelID from the completed set.
// Reports whether the set changed.
func (r *Record) UnmarkLevel(levelID int) bool {
	i, found := slices.BinarySearch(r.CompletedLevelIDs, levelID)
	if !found {
		return false
	}
	r.CompletedLevelIDs = slices.Delete(r.CompletedLevelIDs, i, i+1)
	return true
}

// Completed returns the completed set as a lookup map.
func (r *Record) Completed() map[int]bool {
	m := make(map[int]bool, len(r.CompletedLevelIDs))
	for _, id := range r.CompletedLevelIDs {
		m[id] = true
	}
	return m
}

// Detail returns the detail of levelID, creating it on first use.
func (r *Record) Detail(levelID int) *LevelDetail {
	if r.Levels == nil {
		r.Levels = make(map[int]*LevelDetail)
	}
	d, ok := r.Levels[levelID]
	if !ok {
		d = &LevelDetail{}
		r.Levels[levelID] = d
	}
	return d
}

// Points returns the total points across all levels.
func (r *Record) Points() int {
	total := 0
	for _, d := range r.Levels {
		total += d.Points
	}
	return total
}

// normalize repairs a decoded record so callers never see nil collections
// or an unsorted completed set.
func (r *Record) normalize() {
	if r.CompletedLevelIDs == nil {
		r.CompletedLevelIDs = []int{}
	}
	slices.Sort(r.CompletedLevelIDs)
	r.CompletedLevelIDs = slices.Compact(r.CompletedLevelIDs)
	if r.Levels == nil {
		r.Levels = make(map[int]*LevelDetail)
	}
	for id, d := range r.Levels {
		if d == nil {
			delete(r.Levels, id)
		}
	}
}

// Clone returns a deep copy of r.
func (r *Record) Clone() *Record {
	out := &Record{
		CompletedLevelIDs: slices.Clone(r.CompletedLevelIDs),
		CourseCompleted:   r.CourseCompleted,
		Levels:            make(map[int]*LevelDetail, len(r.Levels)),
	}
	if out.CompletedLevelIDs == nil {
		out.CompletedLevelIDs = []int{}
	}
	for id, d := range r.Levels {
		if d != nil {
			out.Levels[id] = d.Clone()
		}
	}
	return out
}

// Clone returns a deep copy of d.
func (d *LevelDetail) Clone() *LevelDetail {
	out := *d
	out.CompletedSections = slices.Clone(d.CompletedSections)
	if d.MasteredTerms != nil {
		out.MasteredTerms = make(map[string][]string, len(d.MasteredTerms))
		for k, v := range d.MasteredTerms {
			out.MasteredTerms[k] = slices.Clone(v)
		}
	}
	if d.Answers != nil {
		out.Answers = make(map[string][]int, len(d.Answers))
		for k, v := range d.Answers {
			out.Answers[k] = slices.Clone(v)
		}
	}
	if d.GameTiers != nil {
		out.GameTiers = make(map[string]map[string]course.Tier, len(d.GameTiers))
		for k, v := range d.GameTiers {
			m := make(map[string]course.Tier, len(v))
			for g, t := range v {
				m[g] = t
			}
			out.GameTiers[k] = m
		}
	}
	return &out
}

// IsSectionCompleted reports whether the section has been recorded as done.
func (d *LevelDetail) IsSectionCompleted(sectionID string) bool {
	return slices.Contains(d.CompletedSections, sectionID)
}

// MarkSectionCompleted records the section as done. Reports whether it was new.
func (d *LevelDetail) MarkSectionCompleted(sectionID string) bool {
	if d.IsSectionCompleted(sectionID) {
		return false
	}
	d.CompletedSections = append(d.CompletedSections, sectionID)
	return true
}

// Mastered returns the mastered term IDs of a flashcard section.
func (d *LevelDetail) Mastered(sectionID string) []string {
	return d.MasteredTerms[sectionID]
}

// Master marks a term as mastered. Reports whether it was new.
func (d *LevelDetail) Master(sectionID, termID string) bool {
	if slices.Contains(d.MasteredTerms[sectionID], termID) {
		return false
	}
	if d.MasteredTerms == nil {
		d.MasteredTerms = make(map[string][]string)
	}
	d.MasteredTerms[sectionID] = append(d.MasteredTerms[sectionID], termID)
	return true
}

// QuizAnswers returns the answers of a quiz section sized to n questions,
// creating the slice on first use. Unanswered entries are Unanswered.
func (d *LevelDetail) QuizAnswers(sectionID string, n int) []int {
	if d.Answers == nil {
		d.Answers = make(map[string][]int)
	}
	a := d.Answers[sectionID]
	for len(a) < n {
		a = append(a, Unanswered)
	}
	d.Answers[sectionID] = a
	return a
}

// Tiers returns the recorded sub-game tiers of a mini-game section.
func (d *LevelDetail) Tiers(sectionID string) map[string]course.Tier {
	return d.GameTiers[sectionID]
}

// SetTier records a sub-game result, keeping the best tier seen.
// Reports whether the stored tier changed.
func (d *LevelDetail) SetTier(sectionID, gameID string, tier course.Tier) bool {
	if d.GameTiers == nil {
		d.GameTiers = make(map[string]map[string]course.Tier)
	}
	m := d.GameTiers[sectionID]
	if m == nil {
		m = make(map[string]course.Tier)
		d.GameTiers[sectionID] = m
	}
	prev, ok := m[gameID]
	if ok && !tier.Better(prev) {
		return false
	}
	m[gameID] = tier
	return true
}

// Conform drops progress that does not refer to c: completions and details
// of unknown levels, and within a level unknown sections, terms and games,
// repeated terms, unknown tiers and out-of-range quiz answers.
func (r *Record) Conform(c *course.Course) {
	r.normalize()
	r.CompletedLevelIDs = slices.DeleteFunc(r.CompletedLevelIDs, func(id int) bool {
		_, ok := c.Level(id)
		return !ok
	})
	for id, d := range r.Levels {
		l, ok := c.Level(id)
		if !ok {
			delete(r.Levels, id)
			continue
		}
		d.conform(l)
	}
}

func (d *LevelDetail) conform(l *course.Level) {
	if d.CurrentSection < 0 || d.CurrentSection >= len(l.Sections) {
		d.CurrentSection = 0
	}

	var done []string
	for _, id := range d.CompletedSections {
		s, ok := l.Section(id)
		if !ok || slices.Contains(done, id) {
			continue
		}
		if k := s.Kind(); k == course.KindOverview || k == course.KindActivity {
			done = append(done, id)
		}
	}
	d.CompletedSections = done

	for id, terms := range d.MasteredTerms {
		s, _ := l.Section(id)
		f, ok := s.(*course.Flashcards)
		if !ok {
			delete(d.MasteredTerms, id)
			continue
		}
		var kept []string
		for _, t := range terms {
			if f.HasTerm(t) && !slices.Contains(kept, t) {
				kept = append(kept, t)
			}
		}
		d.MasteredTerms[id] = kept
	}

	for id, answers := range d.Answers {
		s, _ := l.Section(id)
		q, ok := s.(*course.Quiz)
		if !ok {
			delete(d.Answers, id)
			continue
		}
		kept := make([]int, len(q.Questions))
		for i := range kept {
			kept[i] = Unanswered
			if i < len(answers) && answers[i] >= 0 && answers[i] < len(q.Questions[i].Options) {
				kept[i] = answers[i]
			}
		}
		d.Answers[id] = kept
	}

	for id, tiers := range d.GameTiers {
		s, _ := l.Section(id)
		m, ok := s.(*course.MiniGame)
		if !ok {
			delete(d.GameTiers, id)
			continue
		}
		for g, t := range tiers {
			if !m.HasGame(g) || t.Rank() < 0 {
				delete(tiers, g)
			}
		}
	}
}
