package apiclient

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/parcelops/popsync/pkg/storage"
	"github.com/parcelops/popsync/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.Handler) (*Client, *storage.MemoryStore) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	store := storage.NewMemoryStore()
	return NewClient(server.URL, store, 5*time.Second), store
}

func TestClient_LoginStoresSession(t *testing.T) {
	client, store := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/auth/login", r.URL.Path)
		require.Equal(t, http.MethodPost, r.Method)

		var creds map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&creds))
		require.Equal(t, "driver@parcelops.io", creds["email"])

		_ = json.NewEncoder(w).Encode(types.Session{
			AccessToken:  "access-123",
			RefreshToken: "refresh-456",
		})
	}))

	require.NoError(t, client.Login(context.Background(), "driver@parcelops.io", "hunter2"))

	session, err := store.LoadSession()
	require.NoError(t, err)
	assert.Equal(t, "access-123", session.AccessToken)
	assert.Equal(t, "refresh-456", session.RefreshToken)
}

func TestClient_BearerInjection(t *testing.T) {
	var gotAuth string
	client, store := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewEncoder(w).Encode([]types.Job{})
	}))

	require.NoError(t, store.SaveSession(types.Session{AccessToken: "tok-abc"}))

	_, err := client.ListJobs(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, "Bearer tok-abc", gotAuth)
}

func TestClient_UnauthorizedClearsSession(t *testing.T) {
	var callbackFired bool
	client, store := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"detail": "token expired"}`))
	}))
	client.OnSessionExpired(func() { callbackFired = true })

	require.NoError(t, store.SaveSession(types.Session{AccessToken: "stale"}))

	_, err := client.ListJobs(context.Background(), "")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnauthorized))
	assert.True(t, callbackFired)

	_, err = store.LoadSession()
	assert.ErrorIs(t, err, storage.ErrNoSession)
}

func TestClient_ErrorEnvelopeNormalization(t *testing.T) {
	tests := []struct {
		name        string
		status      int
		body        string
		wantMessage string
		wantCode    string
	}{
		{
			name:        "structured envelope",
			status:      http.StatusConflict,
			body:        `{"error": {"code": "invalid_transition", "message": "cannot deliver an unassigned job"}}`,
			wantMessage: "cannot deliver an unassigned job",
			wantCode:    "invalid_transition",
		},
		{
			name:        "detail field",
			status:      http.StatusUnprocessableEntity,
			body:        `{"detail": "signed_by is required"}`,
			wantMessage: "signed_by is required",
		},
		{
			name:        "unparseable body falls back to status text",
			status:      http.StatusInternalServerError,
			body:        "<html>gateway</html>",
			wantMessage: "Internal Server Error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))

			_, err := client.GetJob(context.Background(), "J1")
			require.Error(t, err)

			var apiErr *APIError
			require.True(t, errors.As(err, &apiErr))
			assert.Equal(t, tt.status, apiErr.Status)
			assert.Equal(t, tt.wantMessage, apiErr.Message)
			assert.Equal(t, tt.wantCode, apiErr.Code)
		})
	}
}

func TestClient_NoContent(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	err := client.do(context.Background(), http.MethodPost, "/api/ping", nil, nil)
	assert.NoError(t, err)
}

func TestClient_SubmitPOD(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/jobs/J7/pod", r.URL.Path)
		require.Equal(t, http.MethodPost, r.Method)

		var pod types.PODSubmit
		require.NoError(t, json.NewDecoder(r.Body).Decode(&pod))
		require.Equal(t, "A. Smith", pod.RecipientName)

		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(types.POD{ID: "pod-1", JobID: "J7", SignedBy: pod.RecipientName})
	}))

	created, err := client.SubmitPOD(context.Background(), "J7", types.PODSubmit{RecipientName: "A. Smith"})
	require.NoError(t, err)
	assert.Equal(t, "pod-1", created.ID)
}

func TestClient_HealthProbesUnauthenticated(t *testing.T) {
	var gotPath, gotAuth string
	client, store := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusOK)
	}))

	require.NoError(t, store.SaveSession(types.Session{AccessToken: "tok-abc"}))

	require.NoError(t, client.Health(context.Background()))
	assert.Equal(t, "/healthz", gotPath)
	assert.Empty(t, gotAuth, "health probe must not carry credentials")
}

func TestClient_HealthReportsServerErrors(t *testing.T) {
	client, store := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"detail": "database down"}`))
	}))
	client.SetHealthPath("/api/health")

	require.NoError(t, store.SaveSession(types.Session{AccessToken: "tok-abc"}))

	err := client.Health(context.Background())
	require.Error(t, err)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusServiceUnavailable, apiErr.Status)
	assert.Equal(t, "database down", apiErr.Message)

	_, err = store.LoadSession()
	assert.NoError(t, err)
}

func TestClient_HealthUnauthorizedKeepsSession(t *testing.T) {
	client, store := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))

	require.NoError(t, store.SaveSession(types.Session{AccessToken: "tok-abc"}))

	err := client.Health(context.Background())
	require.Error(t, err)

	// The probe is unauthenticated; its responses say nothing about the
	// stored tokens.
	assert.False(t, errors.Is(err, ErrUnauthorized))
	_, err = store.LoadSession()
	assert.NoError(t, err)
}

func TestClient_TransportErrorIsNotAPIError(t *testing.T) {
	store := storage.NewMemoryStore()
	client := NewClient("http://127.0.0.1:1", store, 500*time.Millisecond)

	_, err := client.ListJobs(context.Background(), "")
	require.Error(t, err)

	var apiErr *APIError
	assert.False(t, errors.As(err, &apiErr))
	assert.False(t, errors.Is(err, ErrUnauthorized))
}
