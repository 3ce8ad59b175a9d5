package journey_test

import (
	"fmt"
	"time"

	"github.com/p-n-ai/pai-journeys/internal/course"
)

var fixedNow = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func twoOptions(correct int) course.Question {
	return course.Question{Prompt: "q", Options: []string{"a", "b"}, Correct: correct}
}

func nQuestions(n int) []course.Question {
	qs := make([]course.Question, n)
	for i := range qs {
		qs[i] = twoOptions(0)
	}
	return qs
}

// ventureCapital is a three-level course gated on quizzes. Level 3 has no
// quiz, so all of its sections are required.
func ventureCapital() *course.Course {
	return &course.Course{
		ID:    "venture-capital",
		Title: "Venture Capital Journey",
		Topic: "finance",
		Rules: course.Rules{
			RequiredKinds:       []course.Kind{course.KindQuiz},
			PassingScorePercent: 85,
			Points:              course.DefaultPointRules(),
		},
		Levels: []course.Level{
			{
				ID:    1,
				Title: "What is VC?",
				Sections: []course.Section{
					&course.Overview{ID: "intro", Title: "Intro"},
					&course.Quiz{ID: "basics", Questions: []course.Question{twoOptions(0)}},
				},
			},
			{
				ID:    2,
				Title: "Term Sheets",
				Sections: []course.Section{
					&course.Overview{ID: "intro"},
					&course.Quiz{ID: "check", Questions: []course.Question{twoOptions(0), twoOptions(1)}},
				},
				TestOut: &course.TestOut{Questions: nQuestions(20)},
			},
			{
				ID:    3,
				Title: "Portfolio",
				Sections: []course.Section{
					&course.Flashcards{ID: "terms", Terms: []course.Term{{ID: "dilution"}, {ID: "runway"}}},
					&course.MiniGame{ID: "games", Games: []course.Game{{ID: "pitch"}}},
					&course.Activity{ID: "memo", Prompt: "Write a one-page investment memo."},
				},
				TestOut: &course.TestOut{PassingScorePercent: 50, Questions: nQuestions(2)},
			},
		},
	}
}

// vocabulary is a single-level course with many independently masterable terms.
func vocabulary(n int) *course.Course {
	terms := make([]course.Term, n)
	for i := range terms {
		terms[i] = course.Term{ID: fmt.Sprintf("t%02d", i)}
	}
	return &course.Course{
		ID:    "vocabulary",
		Rules: course.Rules{Points: course.DefaultPointRules()},
		Levels: []course.Level{{
			ID:       1,
			Sections: []course.Section{&course.Flashcards{ID: "cards", Terms: terms}},
		}},
	}
}

// answers returns n test-out answers of which the first correct are right.
func answers(n, correct int) []int {
	out := make([]int, n)
	for i := correct; i < n; i++ {
		out[i] = 1
	}
	return out
}
