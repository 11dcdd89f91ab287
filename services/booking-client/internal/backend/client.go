// Package backend is the REST client for the reservations backend.
package backend

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/md-rashed-zaman/canchas/services/booking-client/internal/model"
)

const IdempotencyKeyHeader = "Idempotency-Key"

// APIError is a non-2xx answer from the backend.
type APIError struct {
	Status  int    `json:"-"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("backend: status %d", e.Status)
	}
	return fmt.Sprintf("backend: status %d: %s", e.Status, e.Message)
}

func statusIs(err error, status int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == status
}

func IsConflict(err error) bool     { return statusIs(err, http.StatusConflict) }
func IsUnauthorized(err error) bool { return statusIs(err, http.StatusUnauthorized) }
func IsNotFound(err error) bool     { return statusIs(err, http.StatusNotFound) }

type Options struct {
	BaseURL string
	// Transport is the outgoing chain (request id, access log, bearer). Nil
	// means http.DefaultTransport.
	Transport http.RoundTripper
	Timeout   time.Duration
}

type Client struct {
	rc *resty.Client
}

func New(opts Options) *Client {
	rc := resty.New().
		SetBaseURL(strings.TrimRight(opts.BaseURL, "/")).
		SetHeader("Accept", "application/json").
		SetHeader("Content-Type", "application/json")
	if opts.Transport != nil {
		rc.SetTransport(opts.Transport)
	}
	if opts.Timeout > 0 {
		rc.SetTimeout(opts.Timeout)
	}
	return &Client{rc: rc}
}

type CreateReservationRequest struct {
	FieldID   string  `json:"fieldId" validate:"required"`
	UserID    string  `json:"userId" validate:"required"`
	ComplexID string  `json:"complexId" validate:"required"`
	StartTime string  `json:"startTime" validate:"required"`
	Price     float64 `json:"price" validate:"gt=0"`
	Duration  string  `json:"duration" validate:"required"`
}

type LoginResponse struct {
	Token        string     `json:"token"`
	RefreshToken string     `json:"refreshToken"`
	User         model.User `json:"user"`
}

type TokenPair struct {
	Token        string `json:"token"`
	RefreshToken string `json:"refreshToken"`
}

type request struct {
	method     string
	path       string
	pathParams map[string]string
	headers    map[string]string
	body       any
	out        any
}

func (c *Client) do(ctx context.Context, req request) error {
	var apiErr APIError
	r := c.rc.R().
		SetContext(ctx).
		SetError(&apiErr)
	if req.pathParams != nil {
		r.SetPathParams(req.pathParams)
	}
	if req.headers != nil {
		r.SetHeaders(req.headers)
	}
	if req.body != nil {
		r.SetBody(req.body)
	}
	if req.out != nil {
		r.SetResult(req.out)
	}

	resp, err := r.Execute(req.method, req.path)
	if err != nil {
		return fmt.Errorf("backend: %s %s: %w", req.method, req.path, err)
	}
	if resp.IsError() {
		apiErr.Status = resp.StatusCode()
		if apiErr.Message == "" {
			apiErr.Message = strings.TrimSpace(http.StatusText(resp.StatusCode()))
		}
		return &apiErr
	}
	return nil
}

func (c *Client) ListComplexes(ctx context.Context) ([]model.Complex, error) {
	var out []model.Complex
	if err := c.do(ctx, request{method: http.MethodGet, path: "/complexes", out: &out}); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) ListFields(ctx context.Context, complexID string) ([]model.Field, error) {
	var out []model.Field
	err := c.do(ctx, request{
		method:     http.MethodGet,
		path:       "/fields/complex/{complexId}",
		pathParams: map[string]string{"complexId": complexID},
		out:        &out,
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ListReservations returns every reservation the backend knows for fieldID.
func (c *Client) ListReservations(ctx context.Context, fieldID string) ([]model.Reservation, error) {
	var out []model.Reservation
	err := c.do(ctx, request{
		method:     http.MethodGet,
		path:       "/reservations/{fieldId}",
		pathParams: map[string]string{"fieldId": fieldID},
		out:        &out,
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// CreateReservation posts a reservation. idempotencyKey may be empty.
func (c *Client) CreateReservation(ctx context.Context, in CreateReservationRequest, idempotencyKey string) (model.Reservation, error) {
	var out model.Reservation
	req := request{method: http.MethodPost, path: "/reservations", body: in, out: &out}
	if idempotencyKey != "" {
		req.headers = map[string]string{IdempotencyKeyHeader: idempotencyKey}
	}
	if err := c.do(ctx, req); err != nil {
		return model.Reservation{}, err
	}
	return out, nil
}

func (c *Client) MyReservations(ctx context.Context) ([]model.Reservation, error) {
	var out []model.Reservation
	if err := c.do(ctx, request{method: http.MethodGet, path: "/reservations/user", out: &out}); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) CancelReservation(ctx context.Context, id string) (model.Reservation, error) {
	var out model.Reservation
	err := c.do(ctx, request{
		method:     http.MethodPatch,
		path:       "/reservations/{id}/cancel",
		pathParams: map[string]string{"id": id},
		out:        &out,
	})
	if err != nil {
		return model.Reservation{}, err
	}
	return out, nil
}

func (c *Client) GetProfile(ctx context.Context, userID string) (model.Profile, error) {
	var out model.Profile
	err := c.do(ctx, request{
		method:     http.MethodGet,
		path:       "/users/{id}",
		pathParams: map[string]string{"id": userID},
		out:        &out,
	})
	if err != nil {
		return model.Profile{}, err
	}
	return out, nil
}

func (c *Client) Login(ctx context.Context, email, password string) (LoginResponse, error) {
	var out LoginResponse
	err := c.do(ctx, request{
		method: http.MethodPost,
		path:   "/auth/login",
		body:   map[string]string{"email": email, "password": password},
		out:    &out,
	})
	if err != nil {
		return LoginResponse{}, err
	}
	return out, nil
}

func (c *Client) Refresh(ctx context.Context, refreshToken string) (TokenPair, error) {
	var out TokenPair
	err := c.do(ctx, request{
		method: http.MethodPost,
		path:   "/auth/refresh",
		body:   map[string]string{"refreshToken": refreshToken},
		out:    &out,
	})
	if err != nil {
		return TokenPair{}, err
	}
	return out, nil
}
