package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/use-agent/basket/cache"
	"github.com/use-agent/basket/config"
	"github.com/use-agent/basket/models"
	"github.com/use-agent/basket/source"
	"github.com/use-agent/basket/webhook"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// stubSearcher answers every query with one product per source, except the
// sources listed in failing.
type stubSearcher struct {
	mu      sync.Mutex
	calls   []string
	failing map[string]bool
}

func (s *stubSearcher) Report(_ context.Context, query string) *models.SearchReport {
	s.mu.Lock()
	s.calls = append(s.calls, query)
	s.mu.Unlock()

	r := &models.SearchReport{Query: query, Results: models.AggregateResult{}}
	for _, a := range source.All() {
		id := string(a.ID)
		if s.failing[id] {
			r.Results[id] = []models.Product{}
			r.Sources = append(r.Sources, models.SourceReport{
				Source: id, Status: models.SourceFailed, ErrorCode: models.ErrCodeNotReady,
			})
			continue
		}
		r.Results[id] = []models.Product{{Name: query + " " + id, Price: 1.09}}
		r.Sources = append(r.Sources, models.SourceReport{Source: id, Status: models.SourceOK, Count: 1})
	}
	return r
}

func (s *stubSearcher) Stats() models.RendererStats {
	return models.RendererStats{Running: true, ActiveContexts: 0}
}

func (s *stubSearcher) Sources() []source.Adapter { return source.All() }

func (s *stubSearcher) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

func newEngine(svc *Service, batches *Batches) *gin.Engine {
	r := gin.New()
	r.GET("/api/health", Health(svc, time.Now()))
	r.GET("/api/products", Products(svc))
	r.GET("/api/v1/search", Search(svc))
	r.GET("/api/v1/sources", Sources(svc))
	if batches != nil {
		r.POST("/api/v1/batch/search", batches.Post())
		r.GET("/api/v1/batch/:id", batches.Get())
	}
	return r
}

func do(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestProducts_ReturnsAggregateResultVerbatim(t *testing.T) {
	st := &stubSearcher{failing: map[string]bool{"lidl": true}}
	r := newEngine(NewService(st, nil), nil)

	w := do(t, r, http.MethodGet, "/api/products?search=milch", "")
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string][]models.Product
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Len(t, body, 4)
	assert.Len(t, body["rewe"], 1)
	assert.Empty(t, body["lidl"])
	assert.NotContains(t, w.Body.String(), "sources", "only the result map is returned")
}

func TestProducts_RequiresQuery(t *testing.T) {
	r := newEngine(NewService(&stubSearcher{}, nil), nil)

	for _, target := range []string{"/api/products", "/api/products?search=%20%20", "/api/products?search=" + strings.Repeat("a", 101)} {
		w := do(t, r, http.MethodGet, target, "")
		assert.Equal(t, http.StatusBadRequest, w.Code, target)

		var body models.ErrorResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		require.NotNil(t, body.Details)
		assert.Equal(t, models.ErrCodeInvalidInput, body.Details.Code)
	}
}

func TestSearch_ReportWithCache(t *testing.T) {
	st := &stubSearcher{}
	store := cache.NewMemory(10, time.Minute, 0)
	defer store.Close()
	r := newEngine(NewService(st, store), nil)

	w := do(t, r, http.MethodGet, "/api/v1/search?q=milch", "")
	require.Equal(t, http.StatusOK, w.Code)
	var first models.SearchReport
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &first))
	assert.Equal(t, "miss", first.CacheStatus)
	assert.Len(t, first.Sources, 4)

	w = do(t, r, http.MethodGet, "/api/v1/search?q=MILCH", "")
	require.Equal(t, http.StatusOK, w.Code)
	var second models.SearchReport
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &second))
	assert.Equal(t, "hit", second.CacheStatus)
	assert.Equal(t, "MILCH", second.Query)

	assert.Equal(t, 1, st.callCount())
}

func TestSearch_FailedReportsAreNotCached(t *testing.T) {
	st := &stubSearcher{failing: map[string]bool{"penny": true}}
	store := cache.NewMemory(10, time.Minute, 0)
	defer store.Close()
	svc := NewService(st, store)

	svc.Search(context.Background(), "milch")
	svc.Search(context.Background(), "milch")

	assert.Equal(t, 2, st.callCount())
	assert.Equal(t, 0, store.Len())
}

func TestSources(t *testing.T) {
	r := newEngine(NewService(&stubSearcher{}, nil), nil)

	w := do(t, r, http.MethodGet, "/api/v1/sources", "")
	require.Equal(t, http.StatusOK, w.Code)

	var body []models.SourceInfo
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body, 4)
	assert.Equal(t, "rewe", body[0].ID)
	assert.Equal(t, "https://shop.rewe.de/search/milch", body[0].ExampleURL)
}

func TestHealth(t *testing.T) {
	r := newEngine(NewService(&stubSearcher{}, nil), nil)

	w := do(t, r, http.MethodGet, "/api/health", "")
	require.Equal(t, http.StatusOK, w.Code)

	var body models.HealthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "ok", body.Status)
	assert.True(t, body.Renderer.Running)
	assert.Equal(t, Version, body.Version)
}

func TestBatch_RunsAllQueriesAndNotifies(t *testing.T) {
	events := make(chan webhook.Event, 1)
	hook := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var ev webhook.Event
		_ = json.NewDecoder(r.Body).Decode(&ev)
		assert.NotEmpty(t, r.Header.Get(webhook.SignatureHeader))
		events <- ev
	}))
	defer hook.Close()

	st := &stubSearcher{}
	batches := NewBatches(NewService(st, nil),
		config.BatchConfig{MaxQueries: 5, Concurrency: 2, JobTTL: time.Hour},
		webhook.NewNotifier())
	defer batches.Close()
	r := newEngine(NewService(st, nil), batches)

	w := do(t, r, http.MethodPost, "/api/v1/batch/search",
		`{"queries":["milch","butter","käse"],"webhook_url":"`+hook.URL+`","webhook_secret":"s"}`)
	require.Equal(t, http.StatusAccepted, w.Code)
	var created models.BatchResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	assert.Equal(t, 3, created.Total)
	assert.Equal(t, models.BatchProcessing, created.Status)

	select {
	case ev := <-events:
		assert.Equal(t, webhook.EventBatchCompleted, ev.Type)
		assert.Equal(t, created.ID, ev.JobID)
	case <-time.After(5 * time.Second):
		t.Fatal("webhook not delivered")
	}

	w = do(t, r, http.MethodGet, "/api/v1/batch/"+created.ID, "")
	require.Equal(t, http.StatusOK, w.Code)
	var status models.BatchStatusResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
	assert.Equal(t, models.BatchCompleted, status.Status)
	assert.Equal(t, 3, status.Completed)
	require.Len(t, status.Results, 3)
	assert.Equal(t, "butter", status.Results[1].Query)
}

func TestBatch_Validation(t *testing.T) {
	batches := NewBatches(NewService(&stubSearcher{}, nil),
		config.BatchConfig{MaxQueries: 2, Concurrency: 1, JobTTL: time.Hour}, nil)
	defer batches.Close()
	r := newEngine(NewService(&stubSearcher{}, nil), batches)

	for _, body := range []string{
		`{}`,
		`{"queries":[]}`,
		`{"queries":["a","b","c"]}`,
		`{"queries":["milch","  "]}`,
		`{"queries":["milch"],"webhook_url":"not a url"}`,
	} {
		w := do(t, r, http.MethodPost, "/api/v1/batch/search", body)
		assert.Equal(t, http.StatusBadRequest, w.Code, body)
	}

	w := do(t, r, http.MethodGet, "/api/v1/batch/does-not-exist", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestBatch_ExpireKeepsRunningJobs(t *testing.T) {
	batches := NewBatches(NewService(&stubSearcher{}, nil),
		config.BatchConfig{MaxQueries: 2, Concurrency: 1, JobTTL: time.Hour}, nil)
	defer batches.Close()

	old := time.Now().Add(-2 * time.Hour).Unix()
	done := models.NewBatchJob("done", 1, old)
	done.Record(0, &models.SearchReport{Query: "milch"})
	done.Finish()
	running := models.NewBatchJob("running", 1, old)
	fresh := models.NewBatchJob("fresh", 1, time.Now().Unix())
	fresh.Finish()

	for _, j := range []*models.BatchJob{done, running, fresh} {
		batches.jobs.Store(j.ID, j)
	}
	batches.expire(time.Now())

	_, ok := batches.jobs.Load("done")
	assert.False(t, ok)
	_, ok = batches.jobs.Load("running")
	assert.True(t, ok)
	_, ok = batches.jobs.Load("fresh")
	assert.True(t, ok)
}
