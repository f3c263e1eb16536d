package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"coursedesk/internal/auth"
	"coursedesk/internal/config"
	"coursedesk/internal/crypto"
	"coursedesk/internal/model"
	"coursedesk/internal/store"
)

type Server struct {
	cfg      config.Config
	store    *store.Store
	validate *validator.Validate
}

func NewServer(cfg config.Config, st *store.Store) *Server {
	return &Server{
		cfg:      cfg,
		store:    st,
		validate: validator.New(),
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.cfg.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
	}))

	r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("Backend is running!"))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Post("/auth/login", s.handleLogin)
	r.With(s.authMiddleware).Get("/auth/me", s.handleGetMe)

	r.Get("/courses", s.handleListCourses)
	r.With(s.authMiddleware, s.requireTeacher).Post("/courses", s.handleCreateCourse)
	r.With(s.authMiddleware, s.requireTeacher).Put("/courses/{courseID}", s.handleUpdateCourse)
	r.With(s.authMiddleware, s.requireTeacher).Delete("/courses/{courseID}", s.handleDeleteCourse)

	r.With(s.authMiddleware).Get("/schedule", s.handleGetSchedule)
	r.With(s.authMiddleware).Post("/schedule/add", s.handleAddToSchedule)
	r.With(s.authMiddleware).Delete("/schedule/remove/{courseID}", s.handleRemoveFromSchedule)

	return r
}

// Auth

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type userSummary struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Role     string `json:"role"`
}

type loginResponse struct {
	Token string      `json:"token"`
	User  userSummary `json:"user"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "missing_credentials")
		return
	}

	user, found, err := s.store.UserByUsername(req.Username)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	if !found {
		writeError(w, http.StatusUnauthorized, "invalid_credentials")
		return
	}

	stored := user.PasswordHash
	if stored == "" {
		stored = user.Password
	}
	if err := crypto.VerifyPassword(stored, req.Password); err != nil {
		writeError(w, http.StatusUnauthorized, "invalid_credentials")
		return
	}

	token, err := auth.NewAccessToken(s.cfg.JWTSecret, s.cfg.JWTIssuer, s.cfg.TokenTTL, auth.Claims{
		UserID:   user.ID,
		Username: user.Username,
		Role:     user.Role,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "token_error")
		return
	}

	writeJSON(w, http.StatusOK, loginResponse{
		Token: token,
		User:  userSummary{ID: user.ID, Username: user.Username, Role: user.Role},
	})
}

func (s *Server) handleGetMe(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	if claims == nil {
		writeError(w, http.StatusUnauthorized, "missing_token")
		return
	}
	writeJSON(w, http.StatusOK, userSummary{
		ID:       claims.UserID,
		Username: claims.Username,
		Role:     claims.Role,
	})
}

// Courses

var (
	errCourseNotFound = errors.New("course not found")
	errNotOwner       = errors.New("not course owner")
	errInvalidPayload = errors.New("invalid course payload")
)

type coursePayload struct {
	Name        string `json:"name" validate:"required"`
	Description string `json:"description" validate:"required"`
	Subject     string `json:"subject" validate:"required"`
	Credits     *int   `json:"credits" validate:"required,gte=0"`
}

type courseUpdateRequest struct {
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
	Subject     *string `json:"subject,omitempty"`
	Credits     *int    `json:"credits,omitempty"`
}

func (s *Server) handleListCourses(w http.ResponseWriter, r *http.Request) {
	courses, err := s.store.Courses()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}

	q := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("q")))
	subject := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("subject")))

	matched := make([]model.Course, 0, len(courses))
	for _, course := range courses {
		if q != "" &&
			!strings.Contains(strings.ToLower(course.Name), q) &&
			!strings.Contains(strings.ToLower(course.Description), q) {
			continue
		}
		if subject != "" && !strings.Contains(strings.ToLower(course.Subject), subject) {
			continue
		}
		matched = append(matched, course)
	}

	writeJSON(w, http.StatusOK, matched)
}

func (s *Server) handleCreateCourse(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	if claims == nil {
		writeError(w, http.StatusUnauthorized, "missing_token")
		return
	}

	var req coursePayload
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	req.Description = strings.TrimSpace(req.Description)
	req.Subject = strings.TrimSpace(req.Subject)
	if err := s.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_course_payload")
		return
	}

	course := model.Course{
		ID:          uuid.NewString(),
		Name:        req.Name,
		Description: req.Description,
		Subject:     req.Subject,
		Credits:     *req.Credits,
		CreatedBy:   claims.UserID,
	}

	err := s.store.UpdateCourses(func(courses []model.Course) ([]model.Course, error) {
		return append(courses, course), nil
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}

	writeJSON(w, http.StatusCreated, course)
}

func (s *Server) handleUpdateCourse(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	if claims == nil {
		writeError(w, http.StatusUnauthorized, "missing_token")
		return
	}
	courseID := chi.URLParam(r, "courseID")
	if courseID == "" {
		writeError(w, http.StatusBadRequest, "missing_course_id")
		return
	}

	var req courseUpdateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}

	var updated model.Course
	err := s.store.UpdateCourses(func(courses []model.Course) ([]model.Course, error) {
		idx := findCourse(courses, courseID)
		if idx < 0 {
			return nil, errCourseNotFound
		}
		course := courses[idx]
		if course.CreatedBy != "" && course.CreatedBy != claims.UserID {
			return nil, errNotOwner
		}

		if req.Name != nil {
			course.Name = strings.TrimSpace(*req.Name)
		}
		if req.Description != nil {
			course.Description = strings.TrimSpace(*req.Description)
		}
		if req.Subject != nil {
			course.Subject = strings.TrimSpace(*req.Subject)
		}
		if req.Credits != nil {
			course.Credits = *req.Credits
		}
		if err := s.validateCourse(course); err != nil {
			return nil, err
		}

		courses[idx] = course
		updated = course
		return courses, nil
	})
	if err != nil {
		writeCourseError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, updated)
}

func (s *Server) handleDeleteCourse(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	if claims == nil {
		writeError(w, http.StatusUnauthorized, "missing_token")
		return
	}
	courseID := chi.URLParam(r, "courseID")
	if courseID == "" {
		writeError(w, http.StatusBadRequest, "missing_course_id")
		return
	}

	err := s.store.UpdateCourses(func(courses []model.Course) ([]model.Course, error) {
		idx := findCourse(courses, courseID)
		if idx < 0 {
			return nil, errCourseNotFound
		}
		if courses[idx].CreatedBy != "" && courses[idx].CreatedBy != claims.UserID {
			return nil, errNotOwner
		}
		return append(courses[:idx], courses[idx+1:]...), nil
	})
	if err != nil {
		writeCourseError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"ok": true, "deletedId": courseID})
}

func (s *Server) validateCourse(course model.Course) error {
	payload := coursePayload{
		Name:        course.Name,
		Description: course.Description,
		Subject:     course.Subject,
		Credits:     &course.Credits,
	}
	if err := s.validate.Struct(payload); err != nil {
		return fmt.Errorf("%w: %v", errInvalidPayload, err)
	}
	return nil
}

func writeCourseError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, errCourseNotFound):
		writeError(w, http.StatusNotFound, "course_not_found")
	case errors.Is(err, errNotOwner):
		writeError(w, http.StatusForbidden, "forbidden")
	case errors.Is(err, errInvalidPayload):
		writeError(w, http.StatusBadRequest, "invalid_course_payload")
	default:
		writeError(w, http.StatusInternalServerError, "server_error")
	}
}

func findCourse(courses []model.Course, courseID string) int {
	for i, course := range courses {
		if course.ID == courseID {
			return i
		}
	}
	return -1
}

// Schedule

type scheduleResponse struct {
	OK        bool     `json:"ok"`
	CourseIDs []string `json:"courseIds"`
}

func (s *Server) handleGetSchedule(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	if claims == nil {
		writeError(w, http.StatusUnauthorized, "missing_token")
		return
	}

	ids, err := s.store.ScheduleByUser(claims.UserID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	courses, err := s.store.Courses()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}

	byID := make(map[string]model.Course, len(courses))
	for _, course := range courses {
		byID[course.ID] = course
	}

	// Ids whose course was deleted since they were added are dropped.
	resolved := make([]model.Course, 0, len(ids))
	for _, id := range ids {
		if course, ok := byID[id]; ok {
			resolved = append(resolved, course)
		}
	}

	writeJSON(w, http.StatusOK, resolved)
}

type addScheduleRequest struct {
	CourseID string `json:"courseId"`
}

func (s *Server) handleAddToSchedule(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	if claims == nil {
		writeError(w, http.StatusUnauthorized, "missing_token")
		return
	}

	var req addScheduleRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	req.CourseID = strings.TrimSpace(req.CourseID)
	if req.CourseID == "" {
		writeError(w, http.StatusBadRequest, "missing_course_id")
		return
	}

	courses, err := s.store.Courses()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	if findCourse(courses, req.CourseID) < 0 {
		writeError(w, http.StatusNotFound, "course_not_found")
		return
	}

	ids, err := s.store.AddToSchedule(claims.UserID, req.CourseID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}

	writeJSON(w, http.StatusOK, scheduleResponse{OK: true, CourseIDs: ids})
}

func (s *Server) handleRemoveFromSchedule(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	if claims == nil {
		writeError(w, http.StatusUnauthorized, "missing_token")
		return
	}
	courseID := chi.URLParam(r, "courseID")
	if courseID == "" {
		writeError(w, http.StatusBadRequest, "missing_course_id")
		return
	}

	ids, err := s.store.RemoveFromSchedule(claims.UserID, courseID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}

	writeJSON(w, http.StatusOK, scheduleResponse{OK: true, CourseIDs: ids})
}

// Middleware

type claimsKey struct{}

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r.Header.Get("Authorization"))
		if token == "" {
			writeError(w, http.StatusUnauthorized, "missing_token")
			return
		}

		claims, err := auth.ParseToken(s.cfg.JWTSecret, token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid_token")
			return
		}

		ctx := context.WithValue(r.Context(), claimsKey{}, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) requireTeacher(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims := claimsFromContext(r.Context())
		if claims == nil || claims.Role != model.RoleTeacher {
			writeError(w, http.StatusForbidden, "teacher_only")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func claimsFromContext(ctx context.Context) *auth.Claims {
	value := ctx.Value(claimsKey{})
	claims, _ := value.(*auth.Claims)
	return claims
}

// Helpers

func bearerToken(header string) string {
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func decodeJSON(r *http.Request, out interface{}) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(out)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, map[string]string{"error": code})
}
