package client

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuongbtq/application-tracker/internal/job"
)

const wireJobJSON = `{"id":"abc123","position":"Backend Engineer","company":"Acme","url":"https://acme.example/jobs/1","created_at":"2024-05-01T10:00:00Z","statuses":[{"status":"applied","created_at":"2024-05-01T10:00:00Z"}]}`

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	c, err := New(Config{BaseURL: srv.URL + "/api", Tokens: StaticToken("default-token")})
	require.NoError(t, err)
	return c
}

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		baseURL string
		wantErr string
	}{
		{"valid", "http://localhost:8080/api/", ""},
		{"empty", "", "base url is required"},
		{"bad scheme", "ftp://example.com", "invalid base url scheme"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := New(Config{BaseURL: tt.baseURL})
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "http://localhost:8080/api", c.BaseURL())
		})
	}
}

func TestClient_CreateJobStream(t *testing.T) {
	var gotAuth string
	var gotBody job.CreatePayload
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/jobs", r.URL.Path)
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))

		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(wireJobJSON + "\n4\n"))
	})

	payload := job.CreatePayload{Position: "Backend Engineer", Company: "Acme", URL: "https://acme.example/jobs/1", Status: "applied"}
	body, err := c.CreateJobStream(context.Background(), payload, "call-token")
	require.NoError(t, err)
	defer body.Close()

	data, err := io.ReadAll(body)
	require.NoError(t, err)
	assert.Equal(t, wireJobJSON+"\n4\n", string(data))
	assert.Equal(t, "Bearer call-token", gotAuth)
	assert.Equal(t, payload, gotBody)
}

func TestClient_TransportError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	})

	_, err := c.CreateJobStream(context.Background(), job.CreatePayload{}, "")
	require.Error(t, err)

	var te *TransportError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, http.StatusInternalServerError, te.StatusCode)
	assert.Equal(t, "An error has occurred: Internal Server Error", err.Error())
}

func TestClient_GetJob(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer default-token", r.Header.Get("Authorization"))
		if r.URL.Path != "/api/jobs/abc123" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(wireJobJSON))
	})

	r, err := c.GetJob(context.Background(), "abc123", "")
	require.NoError(t, err)
	assert.Equal(t, "abc123", r.ID)
	assert.Equal(t, "applied", r.CurrentStatus)

	_, err = c.GetJob(context.Background(), "missing", "")
	assert.True(t, IsNotFound(err))
}

func TestClient_ListJobsFollowsCursor(t *testing.T) {
	pages := map[string]string{
		"":   `{"jobs":[` + wireJobJSON + `],"next_cursor":"c1"}`,
		"c1": `{"jobs":[` + `{"id":"def456","position":"SRE","company":"Globex","url":"https://globex.example","created_at":"2024-05-02T10:00:00Z","statuses":[{"status":"applied","created_at":"2024-05-02T10:00:00Z"}]}` + `]}`,
	}
	var calls int
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		assert.Equal(t, "50", r.URL.Query().Get("page_size"))
		_, _ = w.Write([]byte(pages[r.URL.Query().Get("cursor")]))
	})

	jobs, err := c.ListJobs(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	assert.Equal(t, "abc123", jobs[0].ID)
	assert.Equal(t, "def456", jobs[1].ID)
	assert.Equal(t, 2, calls)
}

func TestClient_ListJobsEmpty(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"jobs":[]}`))
	})

	jobs, err := c.ListJobs(context.Background(), "")
	require.NoError(t, err)
	assert.NotNil(t, jobs)
	assert.Empty(t, jobs)
}

func TestClient_UpdateJob(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPatch, r.Method)
		assert.Equal(t, "/api/jobs/abc123", r.URL.Path)

		var p job.UpdatePayload
		require.NoError(t, json.NewDecoder(r.Body).Decode(&p))
		assert.Equal(t, "offered", p.Status)

		_, _ = w.Write([]byte(`{"id":"abc123","position":"Backend Engineer","company":"Acme","url":"https://acme.example/jobs/1","created_at":"2024-05-01T10:00:00Z","updated_at":"2024-05-03T10:00:00Z","statuses":[{"status":"applied","created_at":"2024-05-01T10:00:00Z"},{"status":"offered","created_at":"2024-05-03T10:00:00Z"}]}`))
	})

	r, err := c.UpdateJob(context.Background(), job.UpdatePayload{ID: "abc123", Status: "offered"}, "")
	require.NoError(t, err)
	assert.Equal(t, "offered", r.CurrentStatus)
	require.NotNil(t, r.UpdatedAt)
}

func TestClient_DeleteJob(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		w.WriteHeader(http.StatusNoContent)
	})

	require.NoError(t, c.DeleteJob(context.Background(), "abc123", ""))
}

func TestClient_MissingToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("request should not be sent")
	}))
	defer srv.Close()

	c, err := New(Config{BaseURL: srv.URL})
	require.NoError(t, err)

	err = c.DeleteJob(context.Background(), "abc123", "")
	assert.ErrorIs(t, err, ErrMissingToken)
}
