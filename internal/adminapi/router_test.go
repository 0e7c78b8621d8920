package adminapi

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ircservices/saslbroker/internal/adminapi/auth"
	"github.com/ircservices/saslbroker/internal/mechanism"
	"github.com/ircservices/saslbroker/internal/session"
)

func testRouter(t *testing.T) (http.Handler, *auth.JWTService) {
	t.Helper()
	svc, err := auth.NewJWTService(auth.Config{
		Secret: "test-secret-key-that-is-at-least-32-characters-long",
	})
	require.NoError(t, err)

	store := session.NewStore()
	registry := mechanism.NewRegistry(nil)
	return NewRouter(store, registry, svc, nil), svc
}

func TestRouter_HealthUnauthenticated(t *testing.T) {
	router, _ := testRouter(t)
	srv := httptest.NewServer(router)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRouter_APIRequiresAuth(t *testing.T) {
	router, _ := testRouter(t)
	srv := httptest.NewServer(router)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/v1/sessions")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestRouter_APIWithValidToken(t *testing.T) {
	router, svc := testRouter(t)
	srv := httptest.NewServer(router)
	defer srv.Close()

	token, _, err := svc.IssueToken("operator1")
	require.NoError(t, err)

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/api/v1/mechanisms", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
