package httpapi

import "github.com/p-n-ai/pai-journeys/internal/course"

// levelContent is what a client renders for a level. Correct answers are
// never sent.
type levelContent struct {
	ID       int              `json:"id"`
	Title    string           `json:"title"`
	Sections []sectionContent `json:"sections"`
	TestOut  *testOutContent  `json:"test_out,omitempty"`
}

type sectionContent struct {
	ID        string            `json:"id"`
	Kind      course.Kind       `json:"kind"`
	Body      string            `json:"body,omitempty"`
	Analogies []string          `json:"analogies,omitempty"`
	Examples  []string          `json:"examples,omitempty"`
	Terms     []termContent     `json:"terms,omitempty"`
	Questions []questionContent `json:"questions,omitempty"`
	Games     []gameContent     `json:"games,omitempty"`
	Prompt    string            `json:"prompt,omitempty"`
}

type termContent struct {
	ID         string `json:"id"`
	Term       string `json:"term"`
	Definition string `json:"definition"`
}

type questionContent struct {
	Prompt  string   `json:"prompt"`
	Options []string `json:"options"`
}

type gameContent struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

type testOutContent struct {
	PassingScorePercent float64           `json:"passing_score_percent"`
	Questions           []questionContent `json:"questions"`
}

func renderContent(c *course.Course) []levelContent {
	out := make([]levelContent, len(c.Levels))
	for i := range c.Levels {
		l := &c.Levels[i]
		lc := levelContent{ID: l.ID, Title: l.Title, Sections: make([]sectionContent, len(l.Sections))}
		for j, s := range l.Sections {
			lc.Sections[j] = renderSection(s)
		}
		if l.TestOut != nil {
			lc.TestOut = &testOutContent{
				PassingScorePercent: c.TestOutThreshold(l),
				Questions:           renderQuestions(l.TestOut.Questions),
			}
		}
		out[i] = lc
	}
	return out
}

func renderSection(s course.Section) sectionContent {
	sc := sectionContent{ID: s.SectionID(), Kind: s.Kind()}
	switch s := s.(type) {
	case *course.Overview:
		sc.Body = s.Body
		sc.Analogies = s.Analogies
		sc.Examples = s.Examples
	case *course.Flashcards:
		for _, t := range s.Terms {
			sc.Terms = append(sc.Terms, termContent{ID: t.ID, Term: t.Term, Definition: t.Definition})
		}
	case *course.Quiz:
		sc.Questions = renderQuestions(s.Questions)
	case *course.MiniGame:
		for _, g := range s.Games {
			sc.Games = append(sc.Games, gameContent{ID: g.ID, Title: g.Title})
		}
	case *course.Activity:
		sc.Prompt = s.Prompt
	}
	return sc
}

func renderQuestions(qs []course.Question) []questionContent {
	out := make([]questionContent, len(qs))
	for i, q := range qs {
		out[i] = questionContent{Prompt: q.Prompt, Options: q.Options}
	}
	return out
}
