package backendsim

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	loc, err := time.LoadLocation("America/Argentina/Buenos_Aires")
	require.NoError(t, err)
	s, err := New(DefaultSeed(), Options{Secret: "test", Location: loc})
	require.NoError(t, err)
	return s
}

func do(t *testing.T, s *Server, method, path, token string, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rw := httptest.NewRecorder()
	s.ServeHTTP(rw, req)
	return rw
}

func booking(start string) createRequest {
	return createRequest{
		FieldID:   "fd-futbol-5",
		UserID:    "us-ana",
		ComplexID: "cx-norte",
		StartTime: start,
		Price:     10000,
		Duration:  "01:00",
	}
}

func TestLoginAndRefresh(t *testing.T) {
	s := newTestServer(t)

	rw := do(t, s, http.MethodPost, "/auth/login", "", loginRequest{Email: "ana@example.com", Password: "nope"})
	assert.Equal(t, http.StatusUnauthorized, rw.Code)

	rw = do(t, s, http.MethodPost, "/auth/login", "", loginRequest{Email: "ANA@example.com", Password: "secret"})
	require.Equal(t, http.StatusOK, rw.Code)
	var login struct {
		Token        string     `json:"token"`
		RefreshToken string     `json:"refreshToken"`
		User         publicUser `json:"user"`
	}
	require.NoError(t, json.Unmarshal(rw.Body.Bytes(), &login))
	assert.NotEmpty(t, login.Token)
	assert.Equal(t, "us-ana", login.User.ID)

	rw = do(t, s, http.MethodPost, "/auth/refresh", "", map[string]string{"refreshToken": login.RefreshToken})
	require.Equal(t, http.StatusOK, rw.Code)

	// refresh tokens rotate
	rw = do(t, s, http.MethodPost, "/auth/refresh", "", map[string]string{"refreshToken": login.RefreshToken})
	assert.Equal(t, http.StatusUnauthorized, rw.Code)
}

func TestCreateReservationConflictsOnSameHour(t *testing.T) {
	s := newTestServer(t)
	token, _, err := s.IssueToken("us-ana")
	require.NoError(t, err)

	rw := do(t, s, http.MethodPost, "/reservations", token, booking("2026-10-15T18:00:00-03:00"))
	require.Equal(t, http.StatusCreated, rw.Code, rw.Body.String())

	// same hour expressed in UTC with minutes
	rw = do(t, s, http.MethodPost, "/reservations", token, booking("2026-10-15T21:30:00Z"))
	assert.Equal(t, http.StatusConflict, rw.Code)

	rw = do(t, s, http.MethodGet, "/reservations/fd-futbol-5", "", nil)
	require.Equal(t, http.StatusOK, rw.Code)
	var list []Reservation
	require.NoError(t, json.Unmarshal(rw.Body.Bytes(), &list))
	require.Len(t, list, 1)
	assert.Equal(t, "2026-10-15T18:00", list[0].StartTime)
	assert.Equal(t, "confirmed", list[0].Status)
}

func TestCreateReservationRejectsOtherUser(t *testing.T) {
	s := newTestServer(t)
	token, _, err := s.IssueToken("us-leo")
	require.NoError(t, err)

	rw := do(t, s, http.MethodPost, "/reservations", token, booking("2026-10-15T18:00:00-03:00"))
	assert.Equal(t, http.StatusForbidden, rw.Code)
	assert.Zero(t, s.Creates())
}

func TestCreateReservationReplaysIdempotencyKey(t *testing.T) {
	s := newTestServer(t)
	token, _, err := s.IssueToken("us-ana")
	require.NoError(t, err)

	first := do(t, s, http.MethodPost, "/reservations", token, booking("2026-10-15T19:00:00-03:00"), "Idempotency-Key", "k-1")
	require.Equal(t, http.StatusCreated, first.Code)
	second := do(t, s, http.MethodPost, "/reservations", token, booking("2026-10-15T19:00:00-03:00"), "Idempotency-Key", "k-1")
	assert.Equal(t, http.StatusCreated, second.Code)
	assert.JSONEq(t, first.Body.String(), second.Body.String())
	assert.Equal(t, 1, s.Creates())
}

func TestCanceledReservationFreesSlot(t *testing.T) {
	s := newTestServer(t)
	token, _, err := s.IssueToken("us-ana")
	require.NoError(t, err)

	rw := do(t, s, http.MethodPost, "/reservations", token, booking("2026-10-16T10:00:00-03:00"))
	require.Equal(t, http.StatusCreated, rw.Code)
	var created Reservation
	require.NoError(t, json.Unmarshal(rw.Body.Bytes(), &created))

	other, _, err := s.IssueToken("us-leo")
	require.NoError(t, err)
	rw = do(t, s, http.MethodPatch, "/reservations/"+created.ID+"/cancel", other, nil)
	assert.Equal(t, http.StatusForbidden, rw.Code)

	rw = do(t, s, http.MethodPatch, "/reservations/"+created.ID+"/cancel", token, nil)
	require.Equal(t, http.StatusOK, rw.Code)

	rw = do(t, s, http.MethodPost, "/reservations", token, booking("2026-10-16T10:00:00-03:00"))
	assert.Equal(t, http.StatusCreated, rw.Code)
}

func TestRevokedTokensAreRejected(t *testing.T) {
	s := newTestServer(t)
	token, _, err := s.IssueToken("us-ana")
	require.NoError(t, err)

	rw := do(t, s, http.MethodGet, "/reservations/user", token, nil)
	require.Equal(t, http.StatusOK, rw.Code)

	s.RevokeAccessTokens()
	rw = do(t, s, http.MethodGet, "/reservations/user", token, nil)
	assert.Equal(t, http.StatusUnauthorized, rw.Code)
}

func TestProfileIsSelfOnly(t *testing.T) {
	s := newTestServer(t)
	token, _, err := s.IssueToken("us-leo")
	require.NoError(t, err)

	rw := do(t, s, http.MethodGet, "/users/us-ana", token, nil)
	assert.Equal(t, http.StatusForbidden, rw.Code)

	rw = do(t, s, http.MethodGet, "/users/us-leo", token, nil)
	require.Equal(t, http.StatusOK, rw.Code)
	var profile map[string]any
	require.NoError(t, json.Unmarshal(rw.Body.Bytes(), &profile))
	assert.Equal(t, "", profile["dni"])
	assert.Nil(t, profile["phone"])
}

func TestFailNext(t *testing.T) {
	s := newTestServer(t)
	s.FailNext(http.MethodGet, "/reservations/", http.StatusServiceUnavailable, 1)

	rw := do(t, s, http.MethodGet, "/reservations/fd-padel-1", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rw.Code)
	rw = do(t, s, http.MethodGet, "/reservations/fd-padel-1", "", nil)
	assert.Equal(t, http.StatusOK, rw.Code)
	assert.JSONEq(t, "[]", rw.Body.String())
}

func TestFieldsByComplex(t *testing.T) {
	s := newTestServer(t)
	rw := do(t, s, http.MethodGet, "/fields/complex/cx-norte", "", nil)
	require.Equal(t, http.StatusOK, rw.Code)
	var fields []Field
	require.NoError(t, json.Unmarshal(rw.Body.Bytes(), &fields))
	require.Len(t, fields, 2)
	assert.Equal(t, "fd-futbol-5", fields[0].ID)

	rw = do(t, s, http.MethodGet, "/fields/complex/none", "", nil)
	assert.JSONEq(t, "[]", rw.Body.String())
}
