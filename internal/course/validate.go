package course

import (
	"fmt"
	"strings"
)

// validate performs structural checks the schema cannot express.
// Returns a combined error describing all problems found, or nil if valid.
func validate(c *Course) error {
	var errs []string

	for i, l := range c.Levels {
		if l.ID != i+1 {
			errs = append(errs, fmt.Sprintf("level at position %d has id %d, want %d", i+1, l.ID, i+1))
		}
		errs = append(errs, validateLevel(l)...)
	}

	for _, k := range c.Rules.RequiredKinds {
		if !k.Valid() {
			errs = append(errs, fmt.Sprintf("unknown required kind %q", k))
		}
	}

	prev := -1
	for _, tier := range Tiers() {
		pts := c.Rules.Points.Tiers[tier]
		if pts < prev {
			errs = append(errs, fmt.Sprintf("tier %q awards %d points, fewer than the tier below it", tier, pts))
		}
		prev = pts
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid course:\n  %s", strings.Join(errs, "\n  "))
	}
	return nil
}

func validateLevel(l Level) []string {
	var errs []string
	seen := make(map[string]bool, len(l.Sections))

	for _, s := range l.Sections {
		id := s.SectionID()
		if seen[id] {
			errs = append(errs, fmt.Sprintf("level %d: duplicate section id %q", l.ID, id))
		}
		seen[id] = true

		switch s := s.(type) {
		case *Flashcards:
			terms := make(map[string]bool, len(s.Terms))
			for _, t := range s.Terms {
				if terms[t.ID] {
					errs = append(errs, fmt.Sprintf("level %d section %q: duplicate term id %q", l.ID, id, t.ID))
				}
				terms[t.ID] = true
			}
		case *Quiz:
			errs = append(errs, validateQuestions(fmt.Sprintf("level %d section %q", l.ID, id), s.Questions)...)
		case *MiniGame:
			games := make(map[string]bool, len(s.Games))
			for _, g := range s.Games {
				if games[g.ID] {
					errs = append(errs, fmt.Sprintf("level %d section %q: duplicate game id %q", l.ID, id, g.ID))
				}
				games[g.ID] = true
			}
		}
	}

	if l.TestOut != nil {
		errs = append(errs, validateQuestions(fmt.Sprintf("level %d test-out", l.ID), l.TestOut.Questions)...)
	}
	return errs
}

func validateQuestions(where string, qs []Question) []string {
	var errs []string
	for i, q := range qs {
		if q.Correct < 0 || q.Correct >= len(q.Options) {
			errs = append(errs, fmt.Sprintf("%s question %d: correct option %d out of range [0,%d)", where, i, q.Correct, len(q.Options)))
		}
	}
	return errs
}
