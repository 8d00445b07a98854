package handler

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/cuongbtq/application-tracker/internal/api/domain"
	"github.com/cuongbtq/application-tracker/internal/api/images"
	"github.com/cuongbtq/application-tracker/internal/api/model"
	"github.com/cuongbtq/application-tracker/internal/api/storage"
	"github.com/cuongbtq/application-tracker/internal/events"
	"github.com/cuongbtq/application-tracker/internal/frame"
	"github.com/cuongbtq/application-tracker/internal/job"
)

const (
	testUser  = "user-1"
	testJobID = "5f0c7a4e-8a53-4d5c-9a53-2b8f8b7f6f11"
)

var testNow = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

// MockJobStore is a mock implementation of JobStore
type MockJobStore struct {
	mock.Mock
}

func (m *MockJobStore) CreateJob(ctx context.Context, j *model.Job, status model.JobStatus) error {
	args := m.Called(ctx, j, status)
	return args.Error(0)
}

func (m *MockJobStore) SetJobImage(ctx context.Context, userID, jobID, filename, url string) error {
	args := m.Called(ctx, userID, jobID, filename, url)
	return args.Error(0)
}

func (m *MockJobStore) GetJobByID(ctx context.Context, userID, jobID string) (*model.JobRecord, error) {
	args := m.Called(ctx, userID, jobID)
	r, _ := args.Get(0).(*model.JobRecord)
	return r, args.Error(1)
}

func (m *MockJobStore) ListJobs(ctx context.Context, filter storage.JobFilter) ([]model.JobRecord, error) {
	args := m.Called(ctx, filter)
	r, _ := args.Get(0).([]model.JobRecord)
	return r, args.Error(1)
}

func (m *MockJobStore) UpdateJob(ctx context.Context, userID, jobID string, upd model.JobUpdate, at time.Time) error {
	args := m.Called(ctx, userID, jobID, upd, at)
	return args.Error(0)
}

func (m *MockJobStore) DeleteJob(ctx context.Context, userID, jobID string) error {
	args := m.Called(ctx, userID, jobID)
	return args.Error(0)
}

// MockPublisher is a mock implementation of EventPublisher
type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) Publish(ctx context.Context, e events.Event) error {
	args := m.Called(ctx, e)
	return args.Error(0)
}

func eventOf(t events.Type, jobID string) interface{} {
	return mock.MatchedBy(func(e events.Event) bool {
		return e.Type == t && e.JobID == jobID && e.UserID == testUser
	})
}

type fixture struct {
	engine *gin.Engine
	store  *MockJobStore
	pub    *MockPublisher
	images *images.LocalStore
}

func setup(t *testing.T) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	imgs, err := images.NewLocalStore(filepath.Join(t.TempDir(), "images"), "http://localhost:8080/images")
	require.NoError(t, err)

	f := &fixture{
		engine: gin.New(),
		store:  new(MockJobStore),
		pub:    new(MockPublisher),
		images: imgs,
	}

	h := NewJobHandler(&Dependencies{
		Logger: slog.New(slog.DiscardHandler),
		Store:  f.store,
		Images: imgs,
		Events: f.pub,
	})
	h.now = func() time.Time { return testNow }

	f.engine.Use(func(c *gin.Context) {
		c.Set(UserIDKey, testUser)
		c.Next()
	})
	f.engine.POST("/jobs", h.CreateJob)
	f.engine.GET("/jobs", h.ListJobs)
	f.engine.GET("/jobs/:job_id", h.GetJob)
	f.engine.PATCH("/jobs/:job_id", h.UpdateJob)
	f.engine.DELETE("/jobs/:job_id", h.DeleteJob)
	f.engine.GET("/images/:filename", h.GetImage)
	return f
}

func (f *fixture) do(method, path string, body interface{}) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != nil {
		data, _ := json.Marshal(body)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	f.engine.ServeHTTP(w, req)
	return w
}

func record(status string) *model.JobRecord {
	return &model.JobRecord{
		Job: model.Job{
			JobID:     testJobID,
			UserID:    testUser,
			Position:  "Backend Engineer",
			Company:   "Acme",
			URL:       "https://acme.example/jobs/1",
			CreatedAt: testNow,
		},
		Statuses: []model.JobStatus{{JobID: testJobID, Status: status, CreatedAt: testNow}},
	}
}

func decodeFrames(t *testing.T, body []byte) []job.Resource {
	t.Helper()
	dec := frame.NewDecoder(bytes.NewReader(body))
	var out []job.Resource
	for {
		f, err := dec.Next()
		if errors.Is(err, io.EOF) {
			return out
		}
		require.NoError(t, err)
		r, err := job.Normalize(f)
		require.NoError(t, err)
		out = append(out, r)
	}
}

func TestCreateJob_Streams(t *testing.T) {
	f := setup(t)
	f.store.On("CreateJob", mock.Anything, mock.AnythingOfType("*model.Job"), mock.MatchedBy(func(s model.JobStatus) bool {
		return s.Status == job.StatusApplied && s.CreatedAt.Equal(testNow)
	})).Return(nil)
	f.pub.On("Publish", mock.Anything, mock.Anything).Return(nil)

	w := f.do(http.MethodPost, "/jobs", map[string]string{
		"position": "Backend Engineer",
		"company":  "Acme",
		"url":      "https://acme.example/jobs/1",
		"status":   "applied",
	})

	require.Equal(t, http.StatusCreated, w.Code)
	assert.True(t, bytes.HasSuffix(w.Body.Bytes(), frame.Marker))

	frames := decodeFrames(t, w.Body.Bytes())
	require.Len(t, frames, 1)
	assert.Equal(t, "Acme", frames[0].Company)
	assert.Equal(t, job.StatusApplied, frames[0].CurrentStatus)
	assert.Nil(t, frames[0].Image)

	f.pub.AssertCalled(t, "Publish", mock.Anything, eventOf(events.TypeCreated, frames[0].ID))
}

func TestCreateJob_WithImageStreamsTwoFrames(t *testing.T) {
	f := setup(t)
	f.store.On("CreateJob", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	f.store.On("SetJobImage", mock.Anything, testUser, mock.Anything, mock.AnythingOfType("string"), mock.AnythingOfType("string")).Return(nil)
	f.pub.On("Publish", mock.Anything, mock.Anything).Return(nil)

	png := base64.StdEncoding.EncodeToString([]byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR"))
	w := f.do(http.MethodPost, "/jobs", map[string]string{
		"position": "Backend Engineer",
		"company":  "Acme",
		"url":      "https://acme.example/jobs/1",
		"status":   "applied",
		"image":    "data:image/png;base64," + png,
	})

	require.Equal(t, http.StatusCreated, w.Code)
	frames := decodeFrames(t, w.Body.Bytes())
	require.Len(t, frames, 2)
	assert.Equal(t, frames[0].ID, frames[1].ID)
	assert.Nil(t, frames[0].Image)
	require.NotNil(t, frames[1].Image)
	assert.Equal(t, frames[1].ID+".png", frames[1].Image.Filename)
	assert.Equal(t, "http://localhost:8080/images/"+frames[1].ID+".png", frames[1].Image.URL)

	img := f.do(http.MethodGet, "/images/"+frames[1].Image.Filename, nil)
	assert.Equal(t, http.StatusOK, img.Code)
}

func TestCreateJob_BadRequests(t *testing.T) {
	tests := []struct {
		name string
		body map[string]string
	}{
		{"missing company", map[string]string{"position": "SRE", "url": "https://a.example", "status": "applied"}},
		{"bad url", map[string]string{"position": "SRE", "company": "Acme", "url": "nope", "status": "applied"}},
		{"unknown status", map[string]string{"position": "SRE", "company": "Acme", "url": "https://a.example", "status": "ghosted"}},
		{"bad image", map[string]string{"position": "SRE", "company": "Acme", "url": "https://a.example", "status": "applied", "image": "aGVsbG8="}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := setup(t)
			w := f.do(http.MethodPost, "/jobs", tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			f.store.AssertNotCalled(t, "CreateJob", mock.Anything, mock.Anything, mock.Anything)
		})
	}
}

func TestCreateJob_StorageError(t *testing.T) {
	f := setup(t)
	f.store.On("CreateJob", mock.Anything, mock.Anything, mock.Anything).Return(errors.New("db down"))

	w := f.do(http.MethodPost, "/jobs", map[string]string{
		"position": "SRE", "company": "Acme", "url": "https://a.example", "status": "applied",
	})

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"error":"Failed to create job"}`, w.Body.String())
	f.pub.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything)
}

func TestGetJob(t *testing.T) {
	f := setup(t)
	f.store.On("GetJobByID", mock.Anything, testUser, testJobID).Return(record("applied"), nil)

	w := f.do(http.MethodGet, "/jobs/"+testJobID, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var got job.WireJob
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, testJobID, got.ID)
	assert.Equal(t, "2024-05-01T10:00:00Z", got.CreatedAt)
	require.Len(t, got.Statuses, 1)
}

func TestGetJob_Errors(t *testing.T) {
	f := setup(t)
	f.store.On("GetJobByID", mock.Anything, testUser, testJobID).Return(nil, domain.ErrJobNotFound)

	assert.Equal(t, http.StatusNotFound, f.do(http.MethodGet, "/jobs/"+testJobID, nil).Code)
	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodGet, "/jobs/not-a-uuid", nil).Code)
}

func TestListJobs_Pagination(t *testing.T) {
	f := setup(t)

	older := record("applied")
	older.JobID = "0b6b8c1e-1111-4c1e-9a53-2b8f8b7f6f11"
	older.CreatedAt = testNow.Add(-time.Hour)

	f.store.On("ListJobs", mock.Anything, storage.JobFilter{UserID: testUser, PageSize: 1}).
		Return([]model.JobRecord{*record("applied"), *older}, nil)

	w := f.do(http.MethodGet, "/jobs?page_size=1", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var env job.JobsEnvelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	require.Len(t, env.Jobs, 1)
	assert.Equal(t, testJobID, env.Jobs[0].ID)
	require.NotEmpty(t, env.NextCursor)

	cursor, err := DecodeJobCursor(env.NextCursor)
	require.NoError(t, err)
	assert.Equal(t, testJobID, cursor.JobID)
	assert.True(t, cursor.CreatedAt.Equal(testNow))
}

func TestListJobs_EmptyAndBadCursor(t *testing.T) {
	f := setup(t)
	f.store.On("ListJobs", mock.Anything, mock.Anything).Return([]model.JobRecord{}, nil)

	w := f.do(http.MethodGet, "/jobs", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"jobs":[]}`, w.Body.String())

	w = f.do(http.MethodGet, "/jobs?cursor=!!!", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestUpdateJob(t *testing.T) {
	f := setup(t)

	updated := record("applied")
	updated.Statuses = append(updated.Statuses, model.JobStatus{JobID: testJobID, Status: "interviewing", CreatedAt: testNow})
	updated.UpdatedAt.Time, updated.UpdatedAt.Valid = testNow, true

	f.store.On("GetJobByID", mock.Anything, testUser, testJobID).Return(record("applied"), nil).Once()
	f.store.On("UpdateJob", mock.Anything, testUser, testJobID, model.JobUpdate{
		Position: "Backend Engineer",
		Company:  "Acme",
		URL:      "https://acme.example/jobs/1",
		Notes:    "phone screen booked",
		Status:   "interviewing",
	}, testNow).Return(nil)
	f.store.On("GetJobByID", mock.Anything, testUser, testJobID).Return(updated, nil).Once()
	f.pub.On("Publish", mock.Anything, eventOf(events.TypeUpdated, testJobID)).Return(nil)

	w := f.do(http.MethodPatch, "/jobs/"+testJobID, map[string]string{
		"status": "interviewing",
		"notes":  "phone screen booked",
	})
	require.Equal(t, http.StatusOK, w.Code)

	var got job.WireJob
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	r, err := job.FromWire(got)
	require.NoError(t, err)
	assert.Equal(t, "interviewing", r.CurrentStatus)
	assert.NotEmpty(t, got.UpdatedAt)
	f.store.AssertExpectations(t)
	f.pub.AssertExpectations(t)
}

func TestUpdateJob_NotFound(t *testing.T) {
	f := setup(t)
	f.store.On("GetJobByID", mock.Anything, testUser, testJobID).Return(nil, domain.ErrJobNotFound)

	w := f.do(http.MethodPatch, "/jobs/"+testJobID, map[string]string{"status": "offered"})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDeleteJob(t *testing.T) {
	f := setup(t)
	f.store.On("GetJobByID", mock.Anything, testUser, testJobID).Return(record("applied"), nil)
	f.store.On("DeleteJob", mock.Anything, testUser, testJobID).Return(nil)
	f.pub.On("Publish", mock.Anything, eventOf(events.TypeDeleted, testJobID)).Return(nil)

	w := f.do(http.MethodDelete, "/jobs/"+testJobID, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	f.pub.AssertExpectations(t)
}

func TestDeleteJob_PublishFailureStillSucceeds(t *testing.T) {
	f := setup(t)
	f.store.On("GetJobByID", mock.Anything, testUser, testJobID).Return(record("applied"), nil)
	f.store.On("DeleteJob", mock.Anything, testUser, testJobID).Return(nil)
	f.pub.On("Publish", mock.Anything, mock.Anything).Return(errors.New("broker down"))

	w := f.do(http.MethodDelete, "/jobs/"+testJobID, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestGetImage_NotFound(t *testing.T) {
	f := setup(t)
	assert.Equal(t, http.StatusNotFound, f.do(http.MethodGet, "/images/missing.png", nil).Code)
}

func TestJobCursor_RoundTrip(t *testing.T) {
	in := &storage.JobCursor{CreatedAt: testNow.Add(123 * time.Nanosecond), JobID: testJobID}

	out, err := DecodeJobCursor(EncodeJobCursor(in))
	require.NoError(t, err)
	assert.True(t, in.CreatedAt.Equal(out.CreatedAt))
	assert.Equal(t, in.JobID, out.JobID)

	empty, err := DecodeJobCursor("")
	assert.NoError(t, err)
	assert.Nil(t, empty)

	_, err = DecodeJobCursor(base64.RawURLEncoding.EncodeToString([]byte("no-separator")))
	assert.Error(t, err)
}
