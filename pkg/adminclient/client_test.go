package adminclient

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	c := New("http://localhost:8901")
	assert.NotNil(t, c)
	assert.Equal(t, "http://localhost:8901", c.baseURL)
}

func TestWithToken(t *testing.T) {
	c := New("http://localhost:8901")
	tokenClient := c.WithToken("test-token")

	assert.Empty(t, c.token)
	assert.Equal(t, "test-token", tokenClient.token)
	assert.Equal(t, c.baseURL, tokenClient.baseURL)
}

func TestDoWithSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Accept"))
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(envelope{
			Status:    "ok",
			Timestamp: time.Now().UTC(),
			Data:      json.RawMessage(`{"mechanisms":["PLAIN"],"count":1}`),
		})
	}))
	defer server.Close()

	c := New(server.URL)
	names, err := c.ListMechanisms()
	require.NoError(t, err)
	assert.Equal(t, []string{"PLAIN"}, names)
}

func TestDoWithAuthHeader(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(envelope{Status: "ok"})
	}))
	defer server.Close()

	c := New(server.URL).WithToken("test-token")
	err := c.Liveness()
	require.NoError(t, err)
}

func TestDoWithAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_ = json.NewEncoder(w).Encode(envelope{
			Status: "error",
			Error:  "session not found: abc123",
		})
	}))
	defer server.Close()

	c := New(server.URL)
	_, err := c.GetSession("abc123")
	require.Error(t, err)

	apiErr, ok := err.(*APIError)
	require.True(t, ok)
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
	assert.Equal(t, "session not found: abc123", apiErr.Message)
	assert.True(t, apiErr.IsNotFound())
}

func TestListSessions(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/api/v1/sessions", r.URL.Path)
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(envelope{
			Status: "ok",
			Data:   json.RawMessage(`{"sessions":[{"uid":"u1","server":"s1","host":"h1"}],"count":1}`),
		})
	}))
	defer server.Close()

	c := New(server.URL)
	sessions, err := c.ListSessions()
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, "u1", sessions[0].UID)
}

func TestDestroySession(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		assert.Equal(t, "/api/v1/sessions/u1", r.URL.Path)
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(envelope{Status: "ok", Data: json.RawMessage(`{"uid":"u1","destroyed":true}`)})
	}))
	defer server.Close()

	c := New(server.URL)
	require.NoError(t, c.DestroySession("u1"))
}
