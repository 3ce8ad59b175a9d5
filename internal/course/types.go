package course

// Kind identifies the type of a section within a level.
type Kind string

const (
	KindOverview   Kind = "overview"
	KindFlashcards Kind = "flashcards"
	KindQuiz       Kind = "quiz"
	KindMiniGame   Kind = "minigame"
	KindActivity   Kind = "activity"
)

// Valid reports whether k is a known section kind.
func (k Kind) Valid() bool {
	switch k {
	case KindOverview, KindFlashcards, KindQuiz, KindMiniGame, KindActivity:
		return true
	}
	return false
}

// Course is a journey: an ordered sequence of levels on one topic.
type Course struct {
	ID     string
	Title  string
	Topic  string
	Levels []Level
	Rules  Rules
}

// Level is a gated unit of content within a course.
type Level struct {
	ID       int
	Title    string
	Sections []Section
	TestOut  *TestOut
}

// Section is a typed sub-unit of a level. The concrete types are
// *Overview, *Flashcards, *Quiz, *MiniGame and *Activity.
type Section interface {
	SectionID() string
	Kind() Kind
}

// Overview is read-only text acknowledged with a single action.
type Overview struct {
	ID        string
	Title     string
	Body      string
	Analogies []string
	Examples  []string
}

// Flashcards is a set of terms, each independently masterable.
type Flashcards struct {
	ID    string
	Title string
	Terms []Term
}

// Term is a single flashcard.
type Term struct {
	ID         string
	Term       string
	Definition string
}

// Quiz is an ordered set of single-answer questions.
type Quiz struct {
	ID        string
	Title     string
	Questions []Question
}

// Question has exactly one correct option index.
type Question struct {
	Prompt  string
	Options []string
	Correct int
}

// MiniGame groups one or more scripted sub-games, each yielding a result tier.
type MiniGame struct {
	ID    string
	Title string
	Games []Game
}

// Game is a single sub-game of a MiniGame section.
type Game struct {
	ID    string
	Title string
}

// Activity is a free-text take-home task with an explicit acknowledge action.
type Activity struct {
	ID     string
	Title  string
	Prompt string
}

func (s *Overview) SectionID() string   { return s.ID }
func (s *Flashcards) SectionID() string { return s.ID }
func (s *Quiz) SectionID() string       { return s.ID }
func (s *MiniGame) SectionID() string   { return s.ID }
func (s *Activity) SectionID() string   { return s.ID }

func (*Overview) Kind() Kind   { return KindOverview }
func (*Flashcards) Kind() Kind { return KindFlashcards }
func (*Quiz) Kind() Kind       { return KindQuiz }
func (*MiniGame) Kind() Kind   { return KindMiniGame }
func (*Activity) Kind() Kind   { return KindActivity }

// HasTerm reports whether the flashcard set contains the term ID.
func (s *Flashcards) HasTerm(id string) bool {
	for _, t := range s.Terms {
		if t.ID == id {
			return true
		}
	}
	return false
}

// HasGame reports whether the section contains the sub-game ID.
func (s *MiniGame) HasGame(id string) bool {
	for _, g := range s.Games {
		if g.ID == id {
			return true
		}
	}
	return false
}

// TestOut is an alternate qualification quiz that completes a locked level.
type TestOut struct {
	PassingScorePercent float64
	Questions           []Question
}

// Rules is the per-course configuration of the progression engine.
type Rules struct {
	// RequiredKinds lists the section kinds that gate level completion.
	// Empty means every authored section is required.
	RequiredKinds       []Kind
	PassingScorePercent float64
	Points              PointRules
}

// PointRules maps completion events to points.
type PointRules struct {
	Overview      int
	Activity      int
	Term          int
	CorrectAnswer int
	Tiers         map[Tier]int
}

const DefaultPassingScorePercent = 85

// DefaultPointRules returns the point table used when a course does not override it.
func DefaultPointRules() PointRules {
	return PointRules{
		Overview:      10,
		Activity:      20,
		Term:          5,
		CorrectAnswer: 10,
		Tiers: map[Tier]int{
			TierNone:   0,
			TierBronze: 10,
			TierSilver: 20,
			TierGold:   30,
		},
	}
}

// LevelIDs returns the level IDs in course order.
func (c *Course) LevelIDs() []int {
	ids := make([]int, len(c.Levels))
	for i, l := range c.Levels {
		ids[i] = l.ID
	}
	return ids
}

// Level returns the level with the given ID.
func (c *Course) Level(id int) (*Level, bool) {
	for i := range c.Levels {
		if c.Levels[i].ID == id {
			return &c.Levels[i], true
		}
	}
	return nil, false
}

// Section returns the section with the given ID.
func (l *Level) Section(id string) (Section, bool) {
	for _, s := range l.Sections {
		if s.SectionID() == id {
			return s, true
		}
	}
	return nil, false
}

// RequiredSections returns the sections of l that gate its completion.
// When the course requires kinds the level does not author, every section
// of the level is required.
func (c *Course) RequiredSections(l *Level) []Section {
	if len(c.Rules.RequiredKinds) == 0 {
		return l.Sections
	}
	want := make(map[Kind]bool, len(c.Rules.RequiredKinds))
	for _, k := range c.Rules.RequiredKinds {
		want[k] = true
	}
	var out []Section
	for _, s := range l.Sections {
		if want[s.Kind()] {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		return l.Sections
	}
	return out
}

// TestOutThreshold returns the pass threshold for the level's test-out.
func (c *Course) TestOutThreshold(l *Level) float64 {
	if l.TestOut != nil && l.TestOut.PassingScorePercent > 0 {
		return l.TestOut.PassingScorePercent
	}
	if c.Rules.PassingScorePercent > 0 {
		return c.Rules.PassingScorePercent
	}
	return DefaultPassingScorePercent
}
