// Package backendsim is an in-memory stand-in for the reservations backend.
// It serves the same JSON endpoints the mobile client consumes and enforces
// the server-side rules the client relies on: one active reservation per
// field and hour, owner-only cancellation, idempotent creation.
package backendsim

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/md-rashed-zaman/canchas/libs/auth"
	"github.com/md-rashed-zaman/canchas/libs/runtime"
)

const wallLayout = "2006-01-02T15:04"

type Options struct {
	Secret   string
	TokenTTL time.Duration
	// Location is used for zone-less start times. Nil means time.Local.
	Location *time.Location
	Logger   *slog.Logger
	Now      func() time.Time
}

type user struct {
	SeedUser
	hash []byte
}

type storedResponse struct {
	status int
	body   []byte
}

type failure struct {
	method string
	prefix string
	status int
	times  int
}

type Server struct {
	opts Options

	mu           sync.Mutex
	complexes    []Complex
	fields       map[string]Field
	fieldOrder   []string
	reservations []Reservation
	users        map[string]*user
	byEmail      map[string]*user
	access       map[string]string // access token -> user id
	refresh      map[string]string // refresh token -> user id
	idempotency  map[string]storedResponse
	failures     []*failure
	creates      int

	handler http.Handler
}

func New(seed Seed, opts Options) (*Server, error) {
	if opts.Secret == "" {
		opts.Secret = "backendsim-secret"
	}
	if opts.TokenTTL <= 0 {
		opts.TokenTTL = time.Hour
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Logger == nil {
		opts.Logger = runtime.Discard()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	s := &Server{
		opts:        opts,
		complexes:   append([]Complex(nil), seed.Complexes...),
		fields:      map[string]Field{},
		users:       map[string]*user{},
		byEmail:     map[string]*user{},
		access:      map[string]string{},
		refresh:     map[string]string{},
		idempotency: map[string]storedResponse{},
	}
	for _, f := range seed.Fields {
		s.fields[f.ID] = f
		s.fieldOrder = append(s.fieldOrder, f.ID)
	}
	for _, u := range seed.Users {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.Password), bcrypt.MinCost)
		if err != nil {
			return nil, err
		}
		entry := &user{SeedUser: u, hash: hash}
		entry.Password = ""
		s.users[u.ID] = entry
		s.byEmail[strings.ToLower(u.Email)] = entry
	}
	for _, r := range seed.Reservations {
		if r.ID == "" {
			r.ID = uuid.NewString()
		}
		if r.Status == "" {
			r.Status = "confirmed"
		}
		s.reservations = append(s.reservations, r)
	}
	s.handler = s.routes()
	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.accessLog)
	r.Use(s.injectFailures)

	r.Get("/healthz", runtime.HealthHandler())
	r.Get("/readyz", runtime.ReadyHandler())

	r.Post("/auth/login", s.handleLogin)
	r.Post("/auth/refresh", s.handleRefresh)

	r.Get("/complexes", s.handleComplexes)
	r.Get("/fields/complex/{complexId}", s.handleFields)

	r.Route("/reservations", func(r chi.Router) {
		r.With(s.requireAuth).Get("/user", s.handleMyReservations)
		r.With(s.requireAuth).Post("/", s.handleCreateReservation)
		r.With(s.requireAuth).Patch("/{id}/cancel", s.handleCancelReservation)
		r.Get("/{fieldId}", s.handleFieldReservations)
	})

	r.With(s.requireAuth).Get("/users/{id}", s.handleProfile)
	return r
}

// FailNext makes the next times requests whose method matches and whose
// path starts with prefix answer with status.
func (s *Server) FailNext(method, prefix string, status, times int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures = append(s.failures, &failure{method: method, prefix: prefix, status: status, times: times})
}

// RevokeAccessTokens invalidates every issued access token; refresh tokens
// keep working.
func (s *Server) RevokeAccessTokens() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.access = map[string]string{}
}

// Creates counts successful POST /reservations calls, replays excluded.
func (s *Server) Creates() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.creates
}

// Reservations returns a copy of the stored reservations.
func (s *Server) Reservations() []Reservation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Reservation(nil), s.reservations...)
}

// IssueToken logs userID in without a password; for tests.
func (s *Server) IssueToken(userID string) (access, refresh string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return "", "", errors.New("unknown user")
	}
	return s.issueLocked(u)
}

func (s *Server) issueLocked(u *user) (string, string, error) {
	// Token lifetimes follow the wall clock; verification does too.
	claims := auth.NewClaims(u.ID, u.Email, u.Role, time.Now(), s.opts.TokenTTL)
	claims.ID = uuid.NewString()
	access, err := auth.SignHS256(claims, s.opts.Secret)
	if err != nil {
		return "", "", err
	}
	refresh := uuid.NewString()
	s.access[access] = u.ID
	s.refresh[refresh] = u.ID
	return access, refresh, nil
}

func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.opts.Logger.Info("http request",
			"request_id", r.Header.Get("X-Request-Id"),
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}

func (s *Server) injectFailures(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		status := 0
		for i, f := range s.failures {
			if f.method == r.Method && strings.HasPrefix(r.URL.Path, f.prefix) {
				status = f.status
				f.times--
				if f.times <= 0 {
					s.failures = append(s.failures[:i], s.failures[i+1:]...)
				}
				break
			}
		}
		s.mu.Unlock()
		if status != 0 {
			writeError(w, status, "injected failure")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := strings.TrimSpace(strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer "))
		if token == "" {
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		claims, err := auth.ParseAndVerifyHS256(token, s.opts.Secret)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}
		s.mu.Lock()
		userID, ok := s.access[token]
		s.mu.Unlock()
		if !ok || userID != claims.UserID() {
			writeError(w, http.StatusUnauthorized, "token revoked")
			return
		}
		next.ServeHTTP(w, r.WithContext(contextWithUser(r.Context(), userID)))
	})
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type publicUser struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.byEmail[strings.ToLower(strings.TrimSpace(req.Email))]
	if !ok || bcrypt.CompareHashAndPassword(u.hash, []byte(req.Password)) != nil {
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	access, refresh, err := s.issueLocked(u)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to issue token")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"token":        access,
		"refreshToken": refresh,
		"user":         publicUser{ID: u.ID, Name: u.Name, Email: u.Email, Role: u.Role},
	})
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RefreshToken string `json:"refreshToken"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	userID, ok := s.refresh[req.RefreshToken]
	if !ok {
		writeError(w, http.StatusUnauthorized, "invalid refresh token")
		return
	}
	delete(s.refresh, req.RefreshToken)
	access, refresh, err := s.issueLocked(s.users[userID])
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to issue token")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"token": access, "refreshToken": refresh})
}

func (s *Server) handleComplexes(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	writeJSON(w, http.StatusOK, s.complexes)
}

func (s *Server) handleFields(w http.ResponseWriter, r *http.Request) {
	complexID := chi.URLParam(r, "complexId")
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []Field{}
	for _, id := range s.fieldOrder {
		if f := s.fields[id]; f.ComplexID == complexID {
			out = append(out, f)
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleFieldReservations(w http.ResponseWriter, r *http.Request) {
	fieldID := chi.URLParam(r, "fieldId")
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []Reservation{}
	for _, res := range s.reservations {
		if res.FieldID == fieldID {
			out = append(out, res)
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleMyReservations(w http.ResponseWriter, r *http.Request) {
	userID := userFromContext(r.Context())
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []Reservation{}
	for _, res := range s.reservations {
		if res.UserID == userID {
			out = append(out, res)
		}
	}
	writeJSON(w, http.StatusOK, out)
}

type createRequest struct {
	FieldID   string  `json:"fieldId"`
	UserID    string  `json:"userId"`
	ComplexID string  `json:"complexId"`
	StartTime string  `json:"startTime"`
	Price     float64 `json:"price"`
	Duration  string  `json:"duration"`
}

func (s *Server) handleCreateReservation(w http.ResponseWriter, r *http.Request) {
	userID := userFromContext(r.Context())
	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := strings.TrimSpace(r.Header.Get("Idempotency-Key"))
	if key != "" {
		if rec, ok := s.idempotency[userID+":"+key]; ok {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(rec.status)
			_, _ = w.Write(rec.body)
			return
		}
	}

	status, body := s.createLocked(userID, req)
	raw, _ := json.Marshal(body)
	if key != "" && status < http.StatusInternalServerError {
		s.idempotency[userID+":"+key] = storedResponse{status: status, body: raw}
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(raw)
}

func (s *Server) createLocked(userID string, req createRequest) (int, any) {
	if req.FieldID == "" || req.ComplexID == "" || req.StartTime == "" {
		return http.StatusBadRequest, errorBody("missing required fields")
	}
	if req.UserID != userID {
		return http.StatusForbidden, errorBody("cannot book for another user")
	}
	field, ok := s.fields[req.FieldID]
	if !ok {
		return http.StatusNotFound, errorBody("field not found")
	}
	if field.ComplexID != req.ComplexID {
		return http.StatusBadRequest, errorBody("field does not belong to complex")
	}
	start, err := s.parseStart(req.StartTime)
	if err != nil {
		return http.StatusBadRequest, errorBody("invalid startTime")
	}
	for _, existing := range s.reservations {
		if existing.FieldID != req.FieldID || existing.Status == "canceled" {
			continue
		}
		if t, err := s.parseStart(existing.StartTime); err == nil && t.Equal(start) {
			return http.StatusConflict, errorBody("time slot already booked")
		}
	}

	duration := req.Duration
	if duration == "" {
		duration = "01:00"
	}
	res := Reservation{
		ID:        uuid.NewString(),
		FieldID:   req.FieldID,
		UserID:    userID,
		ComplexID: req.ComplexID,
		StartTime: start.Format(wallLayout),
		Duration:  duration,
		Price:     req.Price,
		Status:    "confirmed",
		CreatedAt: s.opts.Now().UTC().Format(time.RFC3339),
	}
	s.reservations = append(s.reservations, res)
	s.creates++
	return http.StatusCreated, res
}

// parseStart reads RFC3339 or zone-less wall times and floors to the hour in
// the server location.
func (s *Server) parseStart(raw string) (time.Time, error) {
	loc := s.opts.Location
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		for _, layout := range []string{"2006-01-02T15:04:05", wallLayout} {
			if t, err = time.ParseInLocation(layout, raw, loc); err == nil {
				break
			}
		}
		if err != nil {
			return time.Time{}, err
		}
	}
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), 0, 0, 0, loc), nil
}

func (s *Server) handleCancelReservation(w http.ResponseWriter, r *http.Request) {
	userID := userFromContext(r.Context())
	id := chi.URLParam(r, "id")
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.reservations {
		res := &s.reservations[i]
		if res.ID != id {
			continue
		}
		if res.UserID != userID {
			writeError(w, http.StatusForbidden, "not your reservation")
			return
		}
		res.Status = "canceled"
		writeJSON(w, http.StatusOK, res)
		return
	}
	writeError(w, http.StatusNotFound, "reservation not found")
}

func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id != userFromContext(r.Context()) {
		writeError(w, http.StatusForbidden, "forbidden")
		return
	}
	s.mu.Lock()
	u, ok := s.users[id]
	s.mu.Unlock()
	if !ok {
		writeError(w, http.StatusNotFound, "user not found")
		return
	}
	var phone *string
	if u.Phone != "" {
		p := u.Phone
		phone = &p
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"name":      u.Name,
		"email":     u.Email,
		"phone":     phone,
		"address":   "",
		"city":      u.City,
		"country":   u.Country,
		"image_url": "",
		"dni":       u.DNI,
	})
}
