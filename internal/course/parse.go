package course

import (
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"
)

//go:embed schema.json
var schemaJSON string

var (
	schemaOnce sync.Once
	schema     *gojsonschema.Schema
	schemaErr  error
)

// ErrNotCourse is returned by Parse for YAML documents without a course id.
var ErrNotCourse = errors.New("document is not a course")

func courseSchema() (*gojsonschema.Schema, error) {
	schemaOnce.Do(func() {
		schema, schemaErr = gojsonschema.NewSchema(gojsonschema.NewStringLoader(schemaJSON))
	})
	return schema, schemaErr
}

type courseDoc struct {
	ID     string     `yaml:"id"`
	Title  string     `yaml:"title"`
	Topic  string     `yaml:"topic"`
	Rules  rulesDoc   `yaml:"rules"`
	Levels []levelDoc `yaml:"levels"`
}

type rulesDoc struct {
	RequiredKinds       []Kind    `yaml:"required_kinds"`
	PassingScorePercent float64   `yaml:"passing_score_percent"`
	Points              pointsDoc `yaml:"points"`
}

type pointsDoc struct {
	Overview      *int         `yaml:"overview"`
	Activity      *int         `yaml:"activity"`
	Term          *int         `yaml:"term"`
	CorrectAnswer *int         `yaml:"correct_answer"`
	Tiers         map[Tier]int `yaml:"tiers"`
}

type levelDoc struct {
	ID       int          `yaml:"id"`
	Title    string       `yaml:"title"`
	Sections []sectionDoc `yaml:"sections"`
	TestOut  *testOutDoc  `yaml:"test_out"`
}

type testOutDoc struct {
	PassingScorePercent float64       `yaml:"passing_score_percent"`
	Questions           []questionDoc `yaml:"questions"`
}

type sectionDoc struct {
	ID        string        `yaml:"id"`
	Kind      Kind          `yaml:"kind"`
	Title     string        `yaml:"title"`
	Body      string        `yaml:"body"`
	Prompt    string        `yaml:"prompt"`
	Analogies []string      `yaml:"analogies"`
	Examples  []string      `yaml:"examples"`
	Terms     []termDoc     `yaml:"terms"`
	Questions []questionDoc `yaml:"questions"`
	Games     []gameDoc     `yaml:"games"`
}

type termDoc struct {
	ID         string `yaml:"id"`
	Term       string `yaml:"term"`
	Definition string `yaml:"definition"`
}

type questionDoc struct {
	Prompt  string   `yaml:"prompt"`
	Options []string `yaml:"options"`
	Correct int      `yaml:"correct"`
}

type gameDoc struct {
	ID    string `yaml:"id"`
	Title string `yaml:"title"`
}

// Parse decodes and validates a single course YAML document.
func Parse(data []byte) (*Course, error) {
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode yaml: %w", err)
	}
	if id, _ := raw["id"].(string); id == "" {
		return nil, ErrNotCourse
	}

	if err := validateSchema(raw); err != nil {
		return nil, err
	}

	var doc courseDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode course: %w", err)
	}

	c := doc.toCourse()
	if err := validate(c); err != nil {
		return nil, fmt.Errorf("course %q: %w", c.ID, err)
	}
	return c, nil
}

func validateSchema(raw map[string]any) error {
	s, err := courseSchema()
	if err != nil {
		return fmt.Errorf("compile course schema: %w", err)
	}
	result, err := s.Validate(gojsonschema.NewGoLoader(raw))
	if err != nil {
		return fmt.Errorf("validate course schema: %w", err)
	}
	if result.Valid() {
		return nil
	}
	msgs := make([]string, 0, len(result.Errors()))
	for _, e := range result.Errors() {
		msgs = append(msgs, e.String())
	}
	return fmt.Errorf("schema violations: %s", strings.Join(msgs, "; "))
}

func (d courseDoc) toCourse() *Course {
	c := &Course{
		ID:    d.ID,
		Title: d.Title,
		Topic: d.Topic,
		Rules: Rules{
			RequiredKinds:       d.Rules.RequiredKinds,
			PassingScorePercent: d.Rules.PassingScorePercent,
			Points:              d.Rules.Points.merge(DefaultPointRules()),
		},
		Levels: make([]Level, 0, len(d.Levels)),
	}
	for _, ld := range d.Levels {
		l := Level{ID: ld.ID, Title: ld.Title}
		for _, sd := range ld.Sections {
			l.Sections = append(l.Sections, sd.toSection())
		}
		if ld.TestOut != nil {
			l.TestOut = &TestOut{
				PassingScorePercent: ld.TestOut.PassingScorePercent,
				Questions:           toQuestions(ld.TestOut.Questions),
			}
		}
		c.Levels = append(c.Levels, l)
	}
	return c
}

func (p pointsDoc) merge(def PointRules) PointRules {
	if p.Overview != nil {
		def.Overview = *p.Overview
	}
	if p.Activity != nil {
		def.Activity = *p.Activity
	}
	if p.Term != nil {
		def.Term = *p.Term
	}
	if p.CorrectAnswer != nil {
		def.CorrectAnswer = *p.CorrectAnswer
	}
	for tier, pts := range p.Tiers {
		def.Tiers[tier] = pts
	}
	return def
}

func (d sectionDoc) toSection() Section {
	switch d.Kind {
	case KindOverview:
		return &Overview{ID: d.ID, Title: d.Title, Body: d.Body, Analogies: d.Analogies, Examples: d.Examples}
	case KindFlashcards:
		s := &Flashcards{ID: d.ID, Title: d.Title}
		for _, t := range d.Terms {
			s.Terms = append(s.Terms, Term{ID: t.ID, Term: t.Term, Definition: t.Definition})
		}
		return s
	case KindQuiz:
		return &Quiz{ID: d.ID, Title: d.Title, Questions: toQuestions(d.Questions)}
	case KindMiniGame:
		s := &MiniGame{ID: d.ID, Title: d.Title}
		for _, g := range d.Games {
			s.Games = append(s.Games, Game{ID: g.ID, Title: g.Title})
		}
		return s
	default:
		// The schema restricts kinds, so anything else is an activity.
		return &Activity{ID: d.ID, Title: d.Title, Prompt: d.Prompt}
	}
}

func toQuestions(docs []questionDoc) []Question {
	qs := make([]Question, 0, len(docs))
	for _, q := range docs {
		qs = append(qs, Question{Prompt: q.Prompt, Options: q.Options, Correct: q.Correct})
	}
	return qs
}
