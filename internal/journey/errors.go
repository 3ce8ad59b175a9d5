package journey

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidReference means a course, level, section, term, question or
	// game does not exist, or a payload does not fit the section it targets.
	ErrInvalidReference = errors.New("invalid reference")

	// ErrLevelLocked means the learner tried to work in a locked level.
	ErrLevelLocked = errors.New("level locked")
)

// ReferenceError locates a rejected action. It unwraps to ErrInvalidReference
// or ErrLevelLocked.
type ReferenceError struct {
	Course  string
	Level   int
	Section string
	Detail  string
	Err     error
}

func (e *ReferenceError) Error() string {
	var b strings.Builder
	b.WriteString(e.Err.Error())
	if e.Course != "" {
		fmt.Fprintf(&b, ": course %q", e.Course)
	}
	if e.Level != 0 {
		fmt.Fprintf(&b, " level %d", e.Level)
	}
	if e.Section != "" {
		fmt.Fprintf(&b, " section %q", e.Section)
	}
	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}
	return b.String()
}

func (e *ReferenceError) Unwrap() error {
	return e.Err
}

func invalidRef(courseID string, levelID int, sectionID, format string, args ...any) error {
	return &ReferenceError{
		Course:  courseID,
		Level:   levelID,
		Section: sectionID,
		Detail:  fmt.Sprintf(format, args...),
		Err:     ErrInvalidReference,
	}
}
