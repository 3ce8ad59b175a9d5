package course

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// Loader loads and caches course content from the filesystem.
type Loader struct {
	rootDir string
	courses map[string]*Course
	mu      sync.RWMutex
}

// NewLoader creates a new course loader and loads all content.
func NewLoader(rootDir string) (*Loader, error) {
	l := &Loader{
		rootDir: rootDir,
		courses: make(map[string]*Course),
	}

	if err := l.loadAll(); err != nil {
		return nil, fmt.Errorf("loading courses: %w", err)
	}

	slog.Info("courses loaded", "courses", len(l.courses), "root", rootDir)
	return l, nil
}

// NewStatic returns a loader serving the given courses, keyed by ID.
func NewStatic(courses ...*Course) *Loader {
	l := &Loader{courses: make(map[string]*Course, len(courses))}
	for _, c := range courses {
		l.courses[c.ID] = c
	}
	return l
}

// GetCourse returns a course by ID.
func (l *Loader) GetCourse(id string) (*Course, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	c, ok := l.courses[id]
	return c, ok
}

// AllCourses returns all loaded courses ordered by ID.
func (l *Loader) AllCourses() []*Course {
	l.mu.RLock()
	defer l.mu.RUnlock()
	courses := make([]*Course, 0, len(l.courses))
	for _, c := range l.courses {
		courses = append(courses, c)
	}
	sort.Slice(courses, func(i, j int) bool { return courses[i].ID < courses[j].ID })
	return courses
}

func (l *Loader) loadAll() error {
	return filepath.Walk(l.rootDir, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return nil
		}
		if strings.HasSuffix(path, ".yaml") || strings.HasSuffix(path, ".yml") {
			return l.loadCourse(path)
		}
		return nil
	})
}

func (l *Loader) loadCourse(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	c, err := Parse(data)
	if errors.Is(err, ErrNotCourse) {
		return nil
	}
	if err != nil {
		slog.Warn("skipping invalid course YAML", "path", path, "error", err)
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if _, dup := l.courses[c.ID]; dup {
		slog.Warn("skipping duplicate course", "path", path, "id", c.ID)
		return nil
	}
	l.courses[c.ID] = c
	return nil
}
