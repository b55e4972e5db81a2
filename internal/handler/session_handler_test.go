package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/therapy-booking-api/internal/dto"
	"github.com/noah-isme/therapy-booking-api/internal/middleware"
	"github.com/noah-isme/therapy-booking-api/internal/models"
	appErrors "github.com/noah-isme/therapy-booking-api/pkg/errors"
)

type bookingServiceMock struct {
	bookResp    *dto.SessionResponse
	bookErr     error
	lastBook    dto.BookSessionRequest
	lastActor   models.Actor
	lastQuery   dto.SessionListQuery
	listResp    []dto.SessionResponse
	bookCalled  bool
	listCalled  string
	getCalledID string
}

func (m *bookingServiceMock) Book(ctx context.Context, actor models.Actor, req dto.BookSessionRequest) (*dto.SessionResponse, error) {
	m.bookCalled = true
	m.lastActor = actor
	m.lastBook = req
	return m.bookResp, m.bookErr
}

func (m *bookingServiceMock) CreateDeferred(ctx context.Context, actor models.Actor, req dto.CreateDeferredSessionRequest) (*dto.SessionResponse, error) {
	m.lastActor = actor
	return &dto.SessionResponse{Session: models.Session{ID: "deferred", UserID: req.ClientID}}, nil
}

func (m *bookingServiceMock) Get(ctx context.Context, actor models.Actor, id string) (*dto.SessionResponse, error) {
	m.getCalledID = id
	if id == "missing" {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "session not found")
	}
	return &dto.SessionResponse{Session: models.Session{ID: id}}, nil
}

func (m *bookingServiceMock) ListMine(ctx context.Context, actor models.Actor, query dto.SessionListQuery) ([]dto.SessionResponse, *models.Pagination, error) {
	m.listCalled = "mine"
	m.lastQuery = query
	return m.listResp, &models.Pagination{Page: 1, PageSize: 20, TotalCount: len(m.listResp)}, nil
}

func (m *bookingServiceMock) ListTherapist(ctx context.Context, actor models.Actor, query dto.SessionListQuery) ([]dto.SessionResponse, *models.Pagination, error) {
	m.listCalled = "therapist"
	m.lastQuery = query
	return m.listResp, nil, nil
}

type lifecycleServiceMock struct {
	calls      []string
	lastReason string
	err        error
}

func (m *lifecycleServiceMock) record(name, id string) (*models.Session, error) {
	m.calls = append(m.calls, name)
	if m.err != nil {
		return nil, m.err
	}
	return &models.Session{ID: id}, nil
}

func (m *lifecycleServiceMock) Approve(ctx context.Context, actor models.Actor, id string) (*models.Session, error) {
	return m.record("approve", id)
}

func (m *lifecycleServiceMock) Join(ctx context.Context, actor models.Actor, id string) (*models.Session, error) {
	return m.record("join", id)
}

func (m *lifecycleServiceMock) Complete(ctx context.Context, actor models.Actor, id string) (*models.Session, error) {
	return m.record("complete", id)
}

func (m *lifecycleServiceMock) Cancel(ctx context.Context, actor models.Actor, id, reason string) (*models.Session, error) {
	m.lastReason = reason
	return m.record("cancel", id)
}

func (m *lifecycleServiceMock) MarkNoShow(ctx context.Context, actor models.Actor, id, reason string) (*models.Session, error) {
	m.lastReason = reason
	return m.record("no_show", id)
}

func newTestContext(method, target, body string, claims *models.JWTClaims) (*gin.Context, *httptest.ResponseRecorder) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	var reader *bytes.Buffer
	if body != "" {
		reader = bytes.NewBufferString(body)
	} else {
		reader = &bytes.Buffer{}
	}
	req, _ := http.NewRequest(method, target, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	c.Request = req
	if claims != nil {
		c.Set(middleware.ContextUserKey, claims)
	}
	return c, w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) appErrors.Error {
	t.Helper()
	var envelope struct {
		Error appErrors.Error `json:"error"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	return envelope.Error
}

var (
	clientClaims    = &models.JWTClaims{UserID: "client-1", UserType: models.UserTypeClient}
	therapistClaims = &models.JWTClaims{UserID: "th-1", UserType: models.UserTypeTherapist}
)

func TestSessionHandlerBook(t *testing.T) {
	svc := &bookingServiceMock{bookResp: &dto.SessionResponse{Session: models.Session{ID: "s-1"}}}
	handler := NewSessionHandler(svc, &lifecycleServiceMock{})

	c, w := newTestContext(http.MethodPost, "/sessions", `{"therapist_id":"th-1","date":"2030-03-04","start_time":"10:00","duration_minutes":30,"session_type":"video"}`, clientClaims)
	handler.Book(c)

	require.Equal(t, http.StatusCreated, w.Code)
	assert.True(t, svc.bookCalled)
	assert.Equal(t, "client-1", svc.lastActor.UserID)
	assert.Equal(t, "10:00", svc.lastBook.StartTime)
	assert.Contains(t, w.Body.String(), `"s-1"`)
}

func TestSessionHandlerBookConflict(t *testing.T) {
	conflict := appErrors.Clone(appErrors.ErrConflict, "slot overlaps an existing session")
	svc := &bookingServiceMock{bookErr: conflict}
	handler := NewSessionHandler(svc, &lifecycleServiceMock{})

	c, w := newTestContext(http.MethodPost, "/sessions", `{"therapist_id":"th-1"}`, clientClaims)
	handler.Book(c)

	require.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, appErrors.ErrConflict.Code, decodeError(t, w).Code)
}

func TestSessionHandlerBookTransientSetsRetryAfter(t *testing.T) {
	svc := &bookingServiceMock{bookErr: appErrors.Clone(appErrors.ErrTransientStorage, "try again")}
	handler := NewSessionHandler(svc, &lifecycleServiceMock{})

	c, w := newTestContext(http.MethodPost, "/sessions", `{}`, clientClaims)
	handler.Book(c)

	require.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "1", w.Header().Get("Retry-After"))
}

func TestSessionHandlerBookInvalidBody(t *testing.T) {
	svc := &bookingServiceMock{}
	handler := NewSessionHandler(svc, &lifecycleServiceMock{})

	c, w := newTestContext(http.MethodPost, "/sessions", `{"therapist_id":`, clientClaims)
	handler.Book(c)

	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.False(t, svc.bookCalled)
}

func TestSessionHandlerRequiresActor(t *testing.T) {
	svc := &bookingServiceMock{}
	handler := NewSessionHandler(svc, &lifecycleServiceMock{})

	c, w := newTestContext(http.MethodPost, "/sessions", `{}`, nil)
	handler.Book(c)

	require.Equal(t, http.StatusUnauthorized, w.Code)
	assert.False(t, svc.bookCalled)
}

func TestSessionHandlerCreateDeferred(t *testing.T) {
	svc := &bookingServiceMock{}
	handler := NewSessionHandler(svc, &lifecycleServiceMock{})

	c, w := newTestContext(http.MethodPost, "/therapists/me/sessions", `{"client_id":"client-1"}`, therapistClaims)
	handler.CreateDeferred(c)

	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, models.UserTypeTherapist, svc.lastActor.UserType)
}

func TestSessionHandlerGet(t *testing.T) {
	svc := &bookingServiceMock{}
	handler := NewSessionHandler(svc, &lifecycleServiceMock{})

	c, w := newTestContext(http.MethodGet, "/sessions/missing", "", clientClaims)
	c.Params = gin.Params{{Key: "id", Value: "missing"}}
	handler.Get(c)

	require.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "missing", svc.getCalledID)
}

func TestSessionHandlerListBindsQuery(t *testing.T) {
	svc := &bookingServiceMock{listResp: []dto.SessionResponse{{Session: models.Session{ID: "s-1"}}}}
	handler := NewSessionHandler(svc, &lifecycleServiceMock{})

	c, w := newTestContext(http.MethodGet, "/sessions?status=scheduled&from=2030-03-01&page=2", "", clientClaims)
	handler.ListMine(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "mine", svc.listCalled)
	assert.Equal(t, "scheduled", svc.lastQuery.Status)
	assert.Equal(t, 2, svc.lastQuery.Page)
	require.NotNil(t, svc.lastQuery.From)
	assert.Equal(t, 2030, svc.lastQuery.From.Year())
	assert.Contains(t, w.Body.String(), `"pagination"`)

	c, w = newTestContext(http.MethodGet, "/therapists/me/sessions?from=not-a-date", "", therapistClaims)
	handler.ListTherapist(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSessionHandlerTransitions(t *testing.T) {
	lifecycle := &lifecycleServiceMock{}
	handler := NewSessionHandler(&bookingServiceMock{}, lifecycle)

	actions := []struct {
		name string
		call func(*gin.Context)
		body string
	}{
		{name: "approve", call: handler.Approve},
		{name: "join", call: handler.Join},
		{name: "complete", call: handler.Complete},
		{name: "cancel", call: handler.Cancel, body: `{"reason":"sick"}`},
		{name: "no_show", call: handler.NoShow},
	}
	for _, action := range actions {
		c, w := newTestContext(http.MethodPost, "/sessions/s-1/"+action.name, action.body, clientClaims)
		c.Params = gin.Params{{Key: "id", Value: "s-1"}}
		action.call(c)
		assert.Equal(t, http.StatusOK, w.Code, action.name)
	}
	assert.Equal(t, []string{"approve", "join", "complete", "cancel", "no_show"}, lifecycle.calls)
	assert.Empty(t, lifecycle.lastReason)
}

func TestSessionHandlerCancelReasonAndErrors(t *testing.T) {
	lifecycle := &lifecycleServiceMock{}
	handler := NewSessionHandler(&bookingServiceMock{}, lifecycle)

	c, w := newTestContext(http.MethodPost, "/sessions/s-1/cancel", `{"reason":"sick"}`, clientClaims)
	c.Params = gin.Params{{Key: "id", Value: "s-1"}}
	handler.Cancel(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "sick", lifecycle.lastReason)

	lifecycle.err = appErrors.Clone(appErrors.ErrInvariantViolation, "cannot move from cancelled to cancelled")
	c, w = newTestContext(http.MethodPost, "/sessions/s-1/cancel", "", clientClaims)
	c.Params = gin.Params{{Key: "id", Value: "s-1"}}
	handler.Cancel(c)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	lifecycle.err = appErrors.Clone(appErrors.ErrInsufficientCredit, "no credits")
	c, w = newTestContext(http.MethodPost, "/sessions/s-1/join", "", clientClaims)
	c.Params = gin.Params{{Key: "id", Value: "s-1"}}
	handler.Join(c)
	assert.Equal(t, http.StatusPaymentRequired, w.Code)
}
