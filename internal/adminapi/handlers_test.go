package adminapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ircservices/saslbroker/internal/mechanism"
	"github.com/ircservices/saslbroker/internal/mechanism/plain"
	"github.com/ircservices/saslbroker/internal/session"
)

type fakeVerifier struct{}

func (fakeVerifier) Verify(ctx context.Context, authcid, password string) (bool, error) {
	return true, nil
}

func newTestHandlers(t *testing.T) (*Handlers, *session.Store, *mechanism.Registry) {
	t.Helper()
	store := session.NewStore()
	registry := mechanism.NewRegistry(nil)
	registry.Register(plain.New(fakeVerifier{}))
	return NewHandlers(store, registry), store, registry
}

func newRequestWithURLParam(method, target, key, value string) *http.Request {
	req := httptest.NewRequest(method, target, nil)
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

func TestHandlers_Liveness(t *testing.T) {
	h, _, _ := newTestHandlers(t)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rr := httptest.NewRecorder()
	h.Liveness(rr, req)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"status":"ok"`)
}

func TestHandlers_ListSessions_Empty(t *testing.T) {
	h, _, _ := newTestHandlers(t)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/sessions", nil)
	rr := httptest.NewRecorder()
	h.ListSessions(rr, req)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"count":0`)
}

func TestHandlers_ListSessions_WithSessions(t *testing.T) {
	h, store, _ := newTestHandlers(t)
	store.FindOrCreate("u1", time.Now())
	store.FindOrCreate("u2", time.Now())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/sessions", nil)
	rr := httptest.NewRecorder()
	h.ListSessions(rr, req)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"count":2`)
}

func TestHandlers_GetSession_Found(t *testing.T) {
	h, store, _ := newTestHandlers(t)
	store.FindOrCreate("u1", time.Now())

	req := newRequestWithURLParam(http.MethodGet, "/api/v1/sessions/u1", "uid", "u1")
	rr := httptest.NewRecorder()
	h.GetSession(rr, req)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"uid":"u1"`)
}

func TestHandlers_GetSession_NotFound(t *testing.T) {
	h, _, _ := newTestHandlers(t)
	req := newRequestWithURLParam(http.MethodGet, "/api/v1/sessions/ghost", "uid", "ghost")
	rr := httptest.NewRecorder()
	h.GetSession(rr, req)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestHandlers_DestroySession(t *testing.T) {
	h, store, _ := newTestHandlers(t)
	store.FindOrCreate("u1", time.Now())

	req := newRequestWithURLParam(http.MethodDelete, "/api/v1/sessions/u1", "uid", "u1")
	rr := httptest.NewRecorder()
	h.DestroySession(rr, req)
	assert.Equal(t, http.StatusOK, rr.Code)

	_, ok := store.Find("u1")
	assert.False(t, ok)
}

func TestHandlers_DestroySession_NotFound(t *testing.T) {
	h, _, _ := newTestHandlers(t)
	req := newRequestWithURLParam(http.MethodDelete, "/api/v1/sessions/ghost", "uid", "ghost")
	rr := httptest.NewRecorder()
	h.DestroySession(rr, req)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestHandlers_ListMechanisms(t *testing.T) {
	h, _, _ := newTestHandlers(t)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/mechanisms", nil)
	rr := httptest.NewRecorder()
	h.ListMechanisms(rr, req)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"PLAIN"`)
}

func TestNewSessionView_MechanismName(t *testing.T) {
	s, _ := session.NewStore().FindOrCreate("u1", time.Now())
	s.Mechanism = plain.New(fakeVerifier{})
	view := newSessionView(s)
	require.Equal(t, "PLAIN", view.Mechanism)
	require.Equal(t, "u1", view.UID)
}
