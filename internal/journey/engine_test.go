package journey_test

import (
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/p-n-ai/pai-journeys/internal/course"
	"github.com/p-n-ai/pai-journeys/internal/gating"
	"github.com/p-n-ai/pai-journeys/internal/journey"
	"github.com/p-n-ai/pai-journeys/internal/progress"
)

func newEngine() *journey.Engine {
	return journey.NewEngine(journey.EngineConfig{Now: func() time.Time { return fixedNow }})
}

func statuses(t *testing.T, e *journey.Engine, c *course.Course, rec *progress.Record) []gating.Status {
	t.Helper()
	ls, _ := e.LevelStatuses(c, rec)
	out := make([]gating.Status, len(ls))
	for i, s := range ls {
		out[i] = s.Status
	}
	return out
}

func eventTypes(events []journey.Event) []journey.EventType {
	out := make([]journey.EventType, len(events))
	for i, e := range events {
		out[i] = e.Type
	}
	return out
}

func record(t *testing.T, e *journey.Engine, c *course.Course, rec *progress.Record, level int, section string, res journey.SectionResult) journey.Change {
	t.Helper()
	ch, err := e.RecordSectionComplete(c, rec, level, section, res)
	if err != nil {
		t.Fatalf("RecordSectionComplete(%d, %q) error = %v", level, section, err)
	}
	return ch
}

func completeLevel1(t *testing.T, e *journey.Engine, c *course.Course) *progress.Record {
	t.Helper()
	ch := record(t, e, c, progress.NewRecord(), 1, "basics", journey.SectionResult{
		Answers: []journey.Answer{{Question: 0, Option: 0}},
	})
	return ch.Record
}

func TestEngine_FreshCourse(t *testing.T) {
	e := newEngine()
	c := ventureCapital()

	got := statuses(t, e, c, progress.NewRecord())
	want := []gating.Status{gating.StatusUnlocked, gating.StatusLocked, gating.StatusLocked}
	if !slices.Equal(got, want) {
		t.Errorf("statuses = %v, want %v", got, want)
	}
}

func TestEngine_QuizCompletesLevelAtAnyScore(t *testing.T) {
	e := newEngine()
	c := ventureCapital()
	rec := completeLevel1(t, e, c)

	// One right, one wrong: 50% still finishes level 2.
	ch := record(t, e, c, rec, 2, "check", journey.SectionResult{
		Answers: []journey.Answer{{Question: 0, Option: 0}, {Question: 1, Option: 0}},
	})

	if !ch.Record.IsLevelCompleted(2) {
		t.Fatal("level 2 should be completed")
	}
	got := statuses(t, e, c, ch.Record)
	want := []gating.Status{gating.StatusCompleted, gating.StatusCompleted, gating.StatusUnlocked}
	if !slices.Equal(got, want) {
		t.Errorf("statuses = %v, want %v", got, want)
	}
	if types := eventTypes(ch.Events); !slices.Equal(types, []journey.EventType{journey.EventSectionCompleted, journey.EventLevelCompleted}) {
		t.Errorf("events = %v", types)
	}
	if p := ch.Record.Levels[2].Points; p != 10 {
		t.Errorf("level 2 points = %d, want 10", p)
	}
}

func TestEngine_PartialQuizDoesNotComplete(t *testing.T) {
	e := newEngine()
	c := ventureCapital()
	rec := completeLevel1(t, e, c)

	ch := record(t, e, c, rec, 2, "check", journey.SectionResult{
		Answers: []journey.Answer{{Question: 1, Option: 1}},
	})
	if ch.Record.IsLevelCompleted(2) {
		t.Fatal("level 2 should not complete with one question unanswered")
	}
	if len(ch.Events) != 0 {
		t.Errorf("events = %v, want none", eventTypes(ch.Events))
	}
}

func TestEngine_OptionalSectionsDoNotGate(t *testing.T) {
	e := newEngine()
	c := ventureCapital()

	ch := record(t, e, c, progress.NewRecord(), 1, "intro", journey.SectionResult{Acknowledge: true})
	if ch.Record.IsLevelCompleted(1) {
		t.Fatal("overview is not a required kind and must not complete level 1")
	}
	if p := ch.Record.Levels[1].Points; p != 10 {
		t.Errorf("overview points = %d, want 10", p)
	}
}

func TestEngine_LockedLevel(t *testing.T) {
	e := newEngine()
	c := ventureCapital()

	_, err := e.RecordSectionComplete(c, progress.NewRecord(), 3, "memo", journey.SectionResult{Acknowledge: true})
	if !errors.Is(err, journey.ErrLevelLocked) {
		t.Fatalf("error = %v, want ErrLevelLocked", err)
	}
	var ref *journey.ReferenceError
	if !errors.As(err, &ref) || ref.Level != 3 || ref.Section != "memo" {
		t.Errorf("ReferenceError = %+v", ref)
	}
}

func TestEngine_InvalidReferences(t *testing.T) {
	e := newEngine()
	c := ventureCapital()
	rec := completeLevel1(t, e, c)
	rec = record(t, e, c, rec, 2, "check", journey.SectionResult{
		Answers: []journey.Answer{{Question: 0, Option: 0}, {Question: 1, Option: 1}},
	}).Record
	five := 5

	tests := []struct {
		name    string
		level   int
		section string
		res     journey.SectionResult
	}{
		{"unknown level", 9, "intro", journey.SectionResult{Acknowledge: true}},
		{"unknown section", 1, "missing", journey.SectionResult{Acknowledge: true}},
		{"unknown term", 3, "terms", journey.SectionResult{MasteredTerms: []string{"ebitda"}}},
		{"question out of range", 2, "check", journey.SectionResult{Answers: []journey.Answer{{Question: 2, Option: 0}}}},
		{"option out of range", 2, "check", journey.SectionResult{Answers: []journey.Answer{{Question: 0, Option: 2}}}},
		{"negative option", 2, "check", journey.SectionResult{Answers: []journey.Answer{{Question: 0, Option: -1}}}},
		{"unknown game", 3, "games", journey.SectionResult{GameResults: map[string]course.Tier{"close": course.TierGold}}},
		{"unknown tier", 3, "games", journey.SectionResult{GameResults: map[string]course.Tier{"pitch": "platinum"}}},
		{"acknowledge a quiz", 2, "check", journey.SectionResult{Acknowledge: true}},
		{"terms on an activity", 3, "memo", journey.SectionResult{MasteredTerms: []string{"dilution"}}},
		{"current section out of range", 3, "memo", journey.SectionResult{CurrentSection: &five}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.RecordSectionComplete(c, rec, tt.level, tt.section, tt.res)
			if !errors.Is(err, journey.ErrInvalidReference) {
				t.Errorf("error = %v, want ErrInvalidReference", err)
			}
		})
	}
}

func TestEngine_DoesNotMutateInput(t *testing.T) {
	e := newEngine()
	c := ventureCapital()
	rec := progress.NewRecord()

	record(t, e, c, rec, 1, "basics", journey.SectionResult{Answers: []journey.Answer{{Question: 0, Option: 0}}})
	if len(rec.CompletedLevelIDs) != 0 || len(rec.Levels) != 0 {
		t.Errorf("input record mutated: %+v", rec)
	}
}

func TestEngine_QuizAnswersAreFinal(t *testing.T) {
	e := newEngine()
	c := ventureCapital()
	rec := completeLevel1(t, e, c)

	rec = record(t, e, c, rec, 2, "check", journey.SectionResult{Answers: []journey.Answer{{Question: 0, Option: 1}}}).Record
	rec = record(t, e, c, rec, 2, "check", journey.SectionResult{Answers: []journey.Answer{{Question: 0, Option: 0}}}).Record

	if got := rec.Levels[2].Answers["check"][0]; got != 1 {
		t.Errorf("answer = %d, want the first submission 1", got)
	}
}

func TestEngine_RepeatsDoNotDoubleAward(t *testing.T) {
	e := newEngine()
	c := ventureCapital()
	rec := completeLevel1(t, e, c)
	rec = record(t, e, c, rec, 2, "check", journey.SectionResult{
		Answers: []journey.Answer{{Question: 0, Option: 0}, {Question: 1, Option: 1}},
	}).Record

	master := journey.SectionResult{MasteredTerms: []string{"dilution"}}
	rec = record(t, e, c, rec, 3, "terms", master).Record
	first := rec.Levels[3].Points
	ch := record(t, e, c, rec, 3, "terms", master)

	if ch.Record.Levels[3].Points != first {
		t.Errorf("points changed on repeat: %d -> %d", first, ch.Record.Levels[3].Points)
	}
	if len(ch.Events) != 0 {
		t.Errorf("repeat emitted %v", eventTypes(ch.Events))
	}

	ack := journey.SectionResult{Acknowledge: true}
	rec = record(t, e, c, ch.Record, 3, "memo", ack).Record
	again := record(t, e, c, rec, 3, "memo", ack).Record
	if again.Levels[3].Points != rec.Levels[3].Points {
		t.Errorf("acknowledging twice changed points")
	}
}

func TestEngine_MiniGameKeepsBestTier(t *testing.T) {
	e := newEngine()
	c := ventureCapital()
	rec := completeLevel1(t, e, c)
	rec = record(t, e, c, rec, 2, "check", journey.SectionResult{
		Answers: []journey.Answer{{Question: 0, Option: 0}, {Question: 1, Option: 1}},
	}).Record

	rec = record(t, e, c, rec, 3, "games", journey.SectionResult{GameResults: map[string]course.Tier{"pitch": course.TierSilver}}).Record
	rec = record(t, e, c, rec, 3, "games", journey.SectionResult{GameResults: map[string]course.Tier{"pitch": course.TierBronze}}).Record

	if got := rec.Levels[3].Tiers("games")["pitch"]; got != course.TierSilver {
		t.Errorf("tier = %s, want silver", got)
	}
	if got := rec.Levels[3].Points; got != 20 {
		t.Errorf("points = %d, want 20", got)
	}
}

func TestEngine_CourseCompletion(t *testing.T) {
	e := newEngine()
	c := ventureCapital()
	rec := completeLevel1(t, e, c)
	rec = record(t, e, c, rec, 2, "check", journey.SectionResult{
		Answers: []journey.Answer{{Question: 0, Option: 0}, {Question: 1, Option: 1}},
	}).Record
	rec = record(t, e, c, rec, 3, "terms", journey.SectionResult{MasteredTerms: []string{"dilution", "runway"}}).Record
	rec = record(t, e, c, rec, 3, "games", journey.SectionResult{GameResults: map[string]course.Tier{"pitch": course.TierNone}}).Record
	if rec.CourseCompleted {
		t.Fatal("course complete before the activity")
	}

	ch := record(t, e, c, rec, 3, "memo", journey.SectionResult{Acknowledge: true})
	want := []journey.EventType{journey.EventSectionCompleted, journey.EventLevelCompleted, journey.EventCourseCompleted}
	if got := eventTypes(ch.Events); !slices.Equal(got, want) {
		t.Errorf("events = %v, want %v", got, want)
	}
	if !ch.Record.CourseCompleted {
		t.Fatal("course should be completed")
	}
	if _, done := e.LevelStatuses(c, ch.Record); !done {
		t.Error("LevelStatuses disagrees with CourseCompleted")
	}

	// Replaying a finished course never re-fires course_completed.
	replay := record(t, e, c, ch.Record, 1, "intro", journey.SectionResult{Acknowledge: true})
	if slices.Contains(eventTypes(replay.Events), journey.EventCourseCompleted) {
		t.Error("course_completed fired twice")
	}
}

func TestEngine_ResetLevel(t *testing.T) {
	e := newEngine()
	c := ventureCapital()
	rec := progress.NewRecord()
	rec.MarkLevelCompleted(1)
	rec.MarkLevelCompleted(2)
	rec.MarkLevelCompleted(3)
	rec.CourseCompleted = true
	rec.Detail(1).MarkSectionCompleted("intro")
	rec.Detail(2).MarkSectionCompleted("intro")

	ch, err := e.ResetLevel(c, rec, 2)
	if err != nil {
		t.Fatalf("ResetLevel() error = %v", err)
	}
	if ch.Record.CourseCompleted {
		t.Error("course must not stay complete after a level reset")
	}
	if !slices.Equal(ch.Record.CompletedLevelIDs, []int{1, 3}) {
		t.Errorf("completed = %v, want [1 3]", ch.Record.CompletedLevelIDs)
	}
	if _, ok := ch.Record.Levels[2]; ok {
		t.Error("level 2 detail should be cleared")
	}
	if !ch.Record.Levels[1].IsSectionCompleted("intro") {
		t.Error("level 1 detail should be untouched")
	}
	got := statuses(t, e, c, ch.Record)
	want := []gating.Status{gating.StatusCompleted, gating.StatusUnlocked, gating.StatusCompleted}
	if !slices.Equal(got, want) {
		t.Errorf("statuses = %v, want %v", got, want)
	}

	if _, err := e.ResetLevel(c, rec, 4); !errors.Is(err, journey.ErrInvalidReference) {
		t.Errorf("ResetLevel(4) error = %v, want ErrInvalidReference", err)
	}
}

func TestEngine_TestOut(t *testing.T) {
	c := ventureCapital()

	tests := []struct {
		name    string
		correct int
		passed  bool
	}{
		{"exactly 85 percent passes", 17, true},
		{"80 percent fails", 16, false},
		{"perfect passes", 20, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEngine()
			rec := progress.NewRecord()
			res, err := e.AttemptTestOut(c, rec, 2, answers(20, tt.correct))
			if err != nil {
				t.Fatalf("AttemptTestOut() error = %v", err)
			}
			if !res.Attempted {
				t.Fatal("locked level test-out should be attempted")
			}
			if res.Passed != tt.passed {
				t.Errorf("Passed = %v, want %v (score %+v)", res.Passed, tt.passed, res.Score)
			}
			if res.Record.IsLevelCompleted(2) != tt.passed {
				t.Errorf("level 2 completed = %v, want %v", res.Record.IsLevelCompleted(2), tt.passed)
			}
			if !tt.passed {
				if len(res.Events) != 0 || len(res.Record.Levels) != 0 {
					t.Errorf("failed test-out changed the record: %+v", res.Record)
				}
				return
			}
			// Level 1 stays open; level 3 unlocks behind the tested-out level.
			got := statuses(t, e, c, res.Record)
			want := []gating.Status{gating.StatusUnlocked, gating.StatusCompleted, gating.StatusUnlocked}
			if !slices.Equal(got, want) {
				t.Errorf("statuses = %v, want %v", got, want)
			}
			if !res.Record.Levels[2].TestedOut {
				t.Error("detail should be marked tested out")
			}
		})
	}
}

func TestEngine_TestOutIgnoredWhenUnlocked(t *testing.T) {
	e := newEngine()
	c := ventureCapital()
	rec := completeLevel1(t, e, c)

	res, err := e.AttemptTestOut(c, rec, 2, answers(20, 20))
	if err != nil {
		t.Fatalf("AttemptTestOut() error = %v", err)
	}
	if res.Attempted || res.Passed {
		t.Errorf("result = %+v, want no attempt", res)
	}
	if res.Record.IsLevelCompleted(2) {
		t.Error("ignored test-out must not complete the level")
	}
}

func TestEngine_TestOutErrors(t *testing.T) {
	e := newEngine()
	c := ventureCapital()

	tests := []struct {
		name    string
		level   int
		answers []int
	}{
		{"unknown level", 7, []int{0}},
		{"level without test-out", 1, []int{0}},
		{"too few answers", 2, answers(19, 19)},
		{"option out of range", 2, append(answers(19, 19), 3)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.AttemptTestOut(c, progress.NewRecord(), tt.level, tt.answers)
			if !errors.Is(err, journey.ErrInvalidReference) {
				t.Errorf("error = %v, want ErrInvalidReference", err)
			}
		})
	}
}

func TestEngine_TestOutUsesLevelThreshold(t *testing.T) {
	e := newEngine()
	c := ventureCapital()
	rec := progress.NewRecord()
	rec.MarkLevelCompleted(1)
	rec.MarkLevelCompleted(2)

	res, err := e.AttemptTestOut(c, rec, 3, []int{0, 1})
	if err != nil {
		t.Fatalf("AttemptTestOut() error = %v", err)
	}
	if res.Attempted {
		t.Fatal("level 3 is unlocked, the attempt should be ignored")
	}

	locked := progress.NewRecord()
	locked.MarkLevelCompleted(1)
	res, err = e.AttemptTestOut(c, locked, 3, []int{0, 1})
	if err != nil {
		t.Fatalf("AttemptTestOut() error = %v", err)
	}
	if !res.Passed || res.Threshold != 50 {
		t.Fatalf("result = %+v, want pass at level threshold 50", res)
	}
	if res.Record.CourseCompleted {
		t.Error("course cannot be complete while level 2 is open")
	}
}

func TestEngine_ReconcileDropsUnknownLevels(t *testing.T) {
	e := newEngine()
	c := ventureCapital()
	rec := progress.NewRecord()
	rec.MarkLevelCompleted(1)
	rec.MarkLevelCompleted(2)
	rec.MarkLevelCompleted(9)
	rec.Detail(9).Points = 100

	ch := record(t, e, c, rec, 3, "memo", journey.SectionResult{Acknowledge: true})
	if !slices.Equal(ch.Record.CompletedLevelIDs, []int{1, 2}) {
		t.Errorf("completed = %v, want [1 2]", ch.Record.CompletedLevelIDs)
	}
	if _, ok := ch.Record.Levels[9]; ok {
		t.Error("detail of removed level should be dropped")
	}
	if ch.Record.CourseCompleted {
		t.Error("stale ids must not complete the course")
	}
}

func TestEngine_View(t *testing.T) {
	e := newEngine()
	c := ventureCapital()
	rec := completeLevel1(t, e, c)

	v := e.View(c, rec)
	if v.CourseID != c.ID || len(v.Levels) != 3 {
		t.Fatalf("view = %+v", v)
	}
	if v.Percent <= 0.33 || v.Percent >= 0.34 {
		t.Errorf("percent = %v, want 1/3", v.Percent)
	}
	l1 := v.Levels[0]
	if l1.Status != gating.StatusCompleted || l1.Points != 10 {
		t.Errorf("level 1 = %+v", l1)
	}
	if l1.Sections[0].Required || !l1.Sections[1].Required {
		t.Errorf("required flags = %v, %v", l1.Sections[0].Required, l1.Sections[1].Required)
	}
	if s := l1.Sections[1].Score; s == nil || s.Correct != 1 || s.Total != 1 {
		t.Errorf("quiz score = %+v", s)
	}
	if !v.Levels[1].HasTestOut || v.Levels[2].Status != gating.StatusLocked {
		t.Errorf("levels = %+v", v.Levels[1:])
	}
	if v.Points != 10 {
		t.Errorf("course points = %d, want 10", v.Points)
	}
}

func TestEngine_Reconcile(t *testing.T) {
	e := newEngine()
	c := ventureCapital()
	rec := progress.NewRecord()
	rec.MarkLevelCompleted(1)
	rec.CourseCompleted = true
	d := rec.Detail(1)
	d.MarkSectionCompleted("intro")
	d.MarkSectionCompleted("basics") // a quiz is never acknowledged
	d.MarkSectionCompleted("gone")
	d.Points = 999

	got := e.Reconcile(c, rec)
	if got.CourseCompleted {
		t.Error("CourseCompleted should be re-derived as false")
	}
	if !slices.Equal(got.Levels[1].CompletedSections, []string{"intro"}) {
		t.Errorf("completed sections = %v, want [intro]", got.Levels[1].CompletedSections)
	}
	if got.Levels[1].Points != 10 {
		t.Errorf("points = %d, want 10 derived from the overview", got.Levels[1].Points)
	}
	if !rec.CourseCompleted || rec.Levels[1].Points != 999 {
		t.Error("Reconcile must not mutate its input")
	}
}
