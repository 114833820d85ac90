package routes_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fern/internal/repositories/candidaterecord"
	feedbackrepo "github.com/Ramsey-B/fern/internal/repositories/feedback"
	"github.com/Ramsey-B/fern/internal/repositories/queryrecord"
	"github.com/Ramsey-B/fern/internal/repositories/results"
	"github.com/Ramsey-B/fern/internal/testutil"
	"github.com/Ramsey-B/fern/pkg/feedback"
	"github.com/Ramsey-B/fern/pkg/matching"
	"github.com/Ramsey-B/fern/pkg/middleware"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/redis"
	"github.com/Ramsey-B/fern/pkg/registry"
	"github.com/Ramsey-B/fern/pkg/routes"
	"github.com/Ramsey-B/fern/pkg/routes/health"
)

type server struct {
	e          *echo.Echo
	candidates *candidaterecord.Repository
	locker     *redis.LocalLocker
}

func newServer(t *testing.T) server {
	t.Helper()
	db := testutil.DB(t)
	logger := testutil.NopLogger()

	queries := queryrecord.NewRepository(db, logger)
	candidates := candidaterecord.NewRepository(db, logger)
	ledger := feedback.NewLedger(db, feedbackrepo.NewRepository(db, logger), queries, candidates, logger)
	reg := registry.New(t.TempDir(), logger)
	locker := redis.NewLocalLocker()

	e := routes.NewServer(routes.Options{ServiceName: "fern-test"}, routes.Dependencies{
		Queries:  queries,
		Feedback: ledger,
		Matcher:  matching.NewService(logger, queries, candidates, reg, nil, matching.DefaultConfig()),
		Locker:   locker,
		LockTTL:  time.Minute,
		Registry: reg,
		Results:  results.NewRepository(db, logger),
		Health:   health.NewChecker("test", nil),
	}, logger)

	return server{e: e, candidates: candidates, locker: locker}
}

func (s server) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	s.e.ServeHTTP(rec, req)
	return rec
}

const projectBody = `{"id":"q1","city":"Ottawa","address":"100 Main Street","title":"Marenger Condos",
	"owner":"Marenger Developments","contractor":"Dilfo Mechanical Ltd.","certifier":"Graham Brothers Roofing"}`

func TestQueryRoutes(t *testing.T) {
	s := newServer(t)

	rec := s.do(t, http.MethodPost, "/api/v1/queries", projectBody)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = s.do(t, http.MethodGet, "/api/v1/queries/q1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var got models.QueryRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "Marenger Condos", got.Title)
	assert.False(t, got.Closed)

	t.Run("missing title is rejected", func(t *testing.T) {
		rec := s.do(t, http.MethodPost, "/api/v1/queries", `{"id":"q2","city":"Ottawa"}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)

		var body middleware.ErrorResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.NotEmpty(t, body.RequestID)
	})

	t.Run("unknown id", func(t *testing.T) {
		assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodGet, "/api/v1/queries/nope", "").Code)
	})

	t.Run("delete", func(t *testing.T) {
		assert.Equal(t, http.StatusNoContent, s.do(t, http.MethodDelete, "/api/v1/queries/q1", "").Code)
		assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodGet, "/api/v1/queries/q1", "").Code)
		assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodDelete, "/api/v1/queries/q1", "").Code)
	})
}

func TestMatchAndFeedbackRoutes(t *testing.T) {
	ctx := context.Background()
	s := newServer(t)

	require.Equal(t, http.StatusCreated, s.do(t, http.MethodPost, "/api/v1/queries", projectBody).Code)
	_, err := s.candidates.Insert(ctx, models.CandidateRecord{
		ID:          7,
		PublishDate: "2019-06-01",
		City:        "Ottawa",
		Address:     "100 Main Street",
		Title:       "Marenger Condos",
		Owner:       "Marenger Developments",
		Contractor:  "Dilfo Mechanical Ltd.",
		Certifier:   "Graham Brothers Roofing",
		Source:      "dcn",
	})
	require.NoError(t, err)

	t.Run("dry run over the window", func(t *testing.T) {
		rec := s.do(t, http.MethodPost, "/api/v1/match", `{"since":"2019-05-01","until":"2019-06-30","dry_run":true}`)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var results matching.MatchResults
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &results))
		assert.False(t, results.NothingToDo)
		assert.Equal(t, 1, results.Candidates)
		assert.Equal(t, 1, results.Matches)
		require.Len(t, results.Outcomes, 1)
		require.NotNil(t, results.Outcomes[0].Top)
		assert.Equal(t, int64(7), results.Outcomes[0].Top.CandidateID)
		assert.False(t, results.Outcomes[0].Notified)
	})

	t.Run("empty selection does nothing", func(t *testing.T) {
		rec := s.do(t, http.MethodPost, "/api/v1/match", `{"query_ids":[]}`)
		require.Equal(t, http.StatusOK, rec.Code)

		var results matching.MatchResults
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &results))
		assert.True(t, results.NothingToDo)
	})

	t.Run("single query", func(t *testing.T) {
		rec := s.do(t, http.MethodPost, "/api/v1/match/q1", `{"since":"2019-05-01","until":"2019-06-30","dry_run":true}`)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var outcome matching.QueryOutcome
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &outcome))
		assert.Equal(t, "q1", outcome.QueryID)

		assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodPost, "/api/v1/match/missing", "").Code)
	})

	t.Run("busy lock", func(t *testing.T) {
		lock, err := s.locker.Acquire(ctx, redis.MatchLock, time.Minute)
		require.NoError(t, err)
		defer lock.Release(ctx)

		assert.Equal(t, http.StatusConflict, s.do(t, http.MethodPost, "/api/v1/match", `{}`).Code)
	})

	t.Run("confirmation closes the query", func(t *testing.T) {
		rec := s.do(t, http.MethodPost, "/api/v1/feedback", `{"query_id":"q1","candidate_id":7,"ground_truth":1}`)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

		rec = s.do(t, http.MethodGet, "/api/v1/feedback/q1", "")
		require.Equal(t, http.StatusOK, rec.Code)
		var rows []models.FeedbackRecord
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rows))
		require.Len(t, rows, 1)
		assert.Equal(t, models.FeedbackSourceFeedback, rows[0].Source)

		rec = s.do(t, http.MethodPost, "/api/v1/match", `{"since":"2019-05-01","until":"2019-06-30"}`)
		require.Equal(t, http.StatusOK, rec.Code)
		var results matching.MatchResults
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &results))
		assert.True(t, results.NothingToDo)
	})

	t.Run("feedback for an unknown candidate", func(t *testing.T) {
		rec := s.do(t, http.MethodPost, "/api/v1/feedback", `{"query_id":"q1","candidate_id":99,"ground_truth":0}`)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestModelRoutes(t *testing.T) {
	s := newServer(t)

	rec := s.do(t, http.MethodGet, "/api/v1/models", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var status registry.Status
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Nil(t, status.Incumbent)
	assert.Empty(t, status.Archives)

	assert.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/api/v1/models/results?limit=5", "").Code)
	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodGet, "/api/v1/models/results?limit=abc", "").Code)
}

func TestMetricsRoute(t *testing.T) {
	s := newServer(t)
	rec := s.do(t, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}
