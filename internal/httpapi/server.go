// Package httpapi exposes the journey engine as a JSON HTTP API.
package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"golang.org/x/text/language"

	"github.com/p-n-ai/pai-journeys/internal/course"
	"github.com/p-n-ai/pai-journeys/internal/journey"
	"github.com/p-n-ai/pai-journeys/internal/notify"
	"github.com/p-n-ai/pai-journeys/internal/report"
	"github.com/p-n-ai/pai-journeys/internal/scoring"
)

// UserHeader carries the caller's identity, set by the fronting identity provider.
const UserHeader = "X-User-ID"

const (
	maxBodyBytes       = 1 << 20
	defaultRecentLimit = 50
	maxRecentLimit     = 200
)

var errBadRequest = errors.New("bad request")

// Catalog resolves courses.
type Catalog interface {
	GetCourse(id string) (*course.Course, bool)
	AllCourses() []*course.Course
}

// History returns a user's persisted events, newest first.
type History interface {
	Recent(ctx context.Context, userID string, limit int) ([]journey.Event, error)
}

// Config holds dependencies for the API server.
type Config struct {
	Catalog Catalog
	Tracker *journey.Tracker
	Hub     *notify.Hub // nil disables /v1/events
	History History     // nil disables /v1/events/recent
}

// Server serves the journey API.
type Server struct {
	catalog Catalog
	tracker *journey.Tracker
	hub     *notify.Hub
	history History
}

// New creates an API server.
func New(cfg Config) *Server {
	tracker := cfg.Tracker
	if tracker == nil {
		tracker = journey.NewTracker(journey.TrackerConfig{})
	}
	return &Server{
		catalog: cfg.Catalog,
		tracker: tracker,
		hub:     cfg.Hub,
		history: cfg.History,
	}
}

// Register adds the API routes to mux.
func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /v1/courses", s.withUser(s.handleListCourses))
	mux.HandleFunc("GET /v1/courses/{course}", s.withUser(s.handleGetCourse))
	mux.HandleFunc("POST /v1/courses/{course}/levels/{level}/sections/{section}", s.withUser(s.handleRecordSection))
	mux.HandleFunc("POST /v1/courses/{course}/levels/{level}/test-out", s.withUser(s.handleTestOut))
	mux.HandleFunc("DELETE /v1/courses/{course}/levels/{level}/progress", s.withUser(s.handleResetLevel))
	mux.HandleFunc("DELETE /v1/courses/{course}/progress", s.withUser(s.handleResetCourse))
	mux.HandleFunc("GET /v1/report.xlsx", s.withUser(s.handleReport))
	if s.hub != nil {
		mux.Handle("GET /v1/events", notify.Handler(s.hub, userID))
	}
	if s.history != nil {
		mux.HandleFunc("GET /v1/events/recent", s.withUser(s.handleRecentEvents))
	}
}

// Handler returns a mux serving only the API routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.Register(mux)
	return mux
}

func userID(r *http.Request) string {
	return r.Header.Get(UserHeader)
}

type userHandler func(w http.ResponseWriter, r *http.Request, uid string)

func (s *Server) withUser(h userHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uid := userID(r)
		if uid == "" {
			writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "missing " + UserHeader + " header"})
			return
		}
		h(w, r, uid)
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

type courseSummary struct {
	ID              string  `json:"id"`
	Title           string  `json:"title"`
	Topic           string  `json:"topic,omitempty"`
	Levels          int     `json:"levels"`
	Percent         float64 `json:"percent"`
	PercentDisplay  string  `json:"percent_display"`
	Points          int     `json:"points"`
	CourseCompleted bool    `json:"course_completed"`
}

type courseResponse struct {
	journey.CourseView
	PercentDisplay string         `json:"percent_display"`
	Content        []levelContent `json:"content,omitempty"`
}

type updateResponse struct {
	Course  courseResponse      `json:"course"`
	Events  []journey.Event     `json:"events"`
	TestOut *testOutResponse    `json:"test_out,omitempty"`
	Notice  *journey.SaveNotice `json:"notice,omitempty"`
}

type testOutResponse struct {
	Attempted        bool    `json:"attempted"`
	Passed           bool    `json:"passed"`
	Correct          int     `json:"correct"`
	Total            int     `json:"total"`
	Percent          float64 `json:"percent"`
	PercentDisplay   string  `json:"percent_display"`
	ThresholdPercent float64 `json:"threshold_percent"`
}

type testOutRequest struct {
	Answers []int `json:"answers"`
}

func (s *Server) handleListCourses(w http.ResponseWriter, r *http.Request, uid string) {
	tag := displayLanguage(r)
	courses := s.catalog.AllCourses()
	out := make([]courseSummary, 0, len(courses))
	for _, c := range courses {
		v, err := s.tracker.View(r.Context(), uid, c)
		if err != nil {
			writeError(w, err)
			return
		}
		out = append(out, courseSummary{
			ID:              c.ID,
			Title:           c.Title,
			Topic:           c.Topic,
			Levels:          len(c.Levels),
			Percent:         v.Percent,
			PercentDisplay:  scoring.FormatPercent(tag, v.Percent),
			Points:          v.Points,
			CourseCompleted: v.CourseCompleted,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"courses": out})
}

func (s *Server) handleGetCourse(w http.ResponseWriter, r *http.Request, uid string) {
	c, ok := s.course(w, r)
	if !ok {
		return
	}
	v, err := s.tracker.View(r.Context(), uid, c)
	if err != nil {
		writeError(w, err)
		return
	}
	resp := newCourseResponse(v, displayLanguage(r))
	resp.Content = renderContent(c)
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleRecordSection(w http.ResponseWriter, r *http.Request, uid string) {
	c, ok := s.course(w, r)
	if !ok {
		return
	}
	levelID, ok := levelParam(w, r, c)
	if !ok {
		return
	}
	var res journey.SectionResult
	if err := decodeBody(w, r, &res); err != nil {
		writeError(w, err)
		return
	}

	up, err := s.tracker.RecordSection(r.Context(), uid, c, levelID, r.PathValue("section"), res)
	if err != nil {
		writeError(w, err)
		return
	}
	s.writeUpdate(w, r, c, up)
}

func (s *Server) handleTestOut(w http.ResponseWriter, r *http.Request, uid string) {
	c, ok := s.course(w, r)
	if !ok {
		return
	}
	levelID, ok := levelParam(w, r, c)
	if !ok {
		return
	}
	var req testOutRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	up, err := s.tracker.AttemptTestOut(r.Context(), uid, c, levelID, req.Answers)
	if err != nil {
		writeError(w, err)
		return
	}
	s.writeUpdate(w, r, c, up)
}

func (s *Server) handleResetLevel(w http.ResponseWriter, r *http.Request, uid string) {
	c, ok := s.course(w, r)
	if !ok {
		return
	}
	levelID, ok := levelParam(w, r, c)
	if !ok {
		return
	}
	up, err := s.tracker.ResetLevel(r.Context(), uid, c, levelID)
	if err != nil {
		writeError(w, err)
		return
	}
	s.writeUpdate(w, r, c, up)
}

func (s *Server) handleResetCourse(w http.ResponseWriter, r *http.Request, uid string) {
	c, ok := s.course(w, r)
	if !ok {
		return
	}
	up, err := s.tracker.ResetCourse(r.Context(), uid, c.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	s.writeUpdate(w, r, c, up)
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request, uid string) {
	courses := s.catalog.AllCourses()
	views := make([]journey.CourseView, 0, len(courses))
	for _, c := range courses {
		v, err := s.tracker.View(r.Context(), uid, c)
		if err != nil {
			writeError(w, err)
			return
		}
		views = append(views, v)
	}

	var buf bytes.Buffer
	if err := report.Write(&buf, views); err != nil {
		slog.Error("failed to build progress report", "user_id", uid, "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "could not build report"})
		return
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="journeys-progress.xlsx"`)
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	if _, err := buf.WriteTo(w); err != nil {
		slog.Warn("failed to send progress report", "user_id", uid, "error", err)
	}
}

func (s *Server) handleRecentEvents(w http.ResponseWriter, r *http.Request, uid string) {
	limit := defaultRecentLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeError(w, fmt.Errorf("%w: limit must be a positive integer", errBadRequest))
			return
		}
		limit = min(n, maxRecentLimit)
	}

	events, err := s.history.Recent(r.Context(), uid, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	if events == nil {
		events = []journey.Event{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": events})
}

func (s *Server) writeUpdate(w http.ResponseWriter, r *http.Request, c *course.Course, up journey.Update) {
	tag := displayLanguage(r)
	resp := updateResponse{
		Course: newCourseResponse(s.tracker.Engine().View(c, up.Record), tag),
		Events: up.Events,
		Notice: up.Notice,
	}
	if resp.Events == nil {
		resp.Events = []journey.Event{}
	}
	if t := up.TestOut; t != nil {
		resp.TestOut = &testOutResponse{
			Attempted:        t.Attempted,
			Passed:           t.Passed,
			Correct:          t.Score.Correct,
			Total:            t.Score.Total,
			Percent:          t.Score.Percent(),
			PercentDisplay:   scoring.FormatPercent(tag, t.Score.Ratio()),
			ThresholdPercent: t.Threshold,
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func newCourseResponse(v journey.CourseView, tag language.Tag) courseResponse {
	return courseResponse{
		CourseView:     v,
		PercentDisplay: scoring.FormatPercent(tag, v.Percent),
	}
}

func (s *Server) course(w http.ResponseWriter, r *http.Request) (*course.Course, bool) {
	id := r.PathValue("course")
	c, ok := s.catalog.GetCourse(id)
	if !ok {
		writeError(w, &journey.ReferenceError{Course: id, Detail: "no such course", Err: journey.ErrInvalidReference})
		return nil, false
	}
	return c, true
}

func levelParam(w http.ResponseWriter, r *http.Request, c *course.Course) (int, bool) {
	raw := r.PathValue("level")
	id, err := strconv.Atoi(raw)
	if err != nil {
		writeError(w, &journey.ReferenceError{Course: c.ID, Detail: fmt.Sprintf("no such level %q", raw), Err: journey.ErrInvalidReference})
		return 0, false
	}
	return id, true
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: decode body: %v", errBadRequest, err)
	}
	return nil
}

func displayLanguage(r *http.Request) language.Tag {
	return scoring.MatchLanguage(r.Header.Get("Accept-Language"))
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusServiceUnavailable
	switch {
	case errors.Is(err, journey.ErrInvalidReference):
		status = http.StatusNotFound
	case errors.Is(err, journey.ErrLevelLocked):
		status = http.StatusConflict
	case errors.Is(err, errBadRequest):
		status = http.StatusBadRequest
	default:
		slog.Error("request failed", "error", err)
	}
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("failed to encode response", "error", err)
	}
}
