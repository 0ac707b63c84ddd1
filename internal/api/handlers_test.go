package api_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/jonesrussell/postpipe/internal/api"
	"github.com/jonesrussell/postpipe/internal/bus"
	"github.com/jonesrussell/postpipe/internal/domain"
	"github.com/jonesrussell/postpipe/internal/executor"
	"github.com/jonesrussell/postpipe/internal/logger"
	"github.com/jonesrussell/postpipe/internal/metrics"
	"github.com/jonesrussell/postpipe/internal/pipeline"
	"github.com/jonesrussell/postpipe/internal/provider"
	"github.com/jonesrussell/postpipe/internal/queue"
	"github.com/jonesrussell/postpipe/internal/scheduler"
	"github.com/jonesrussell/postpipe/internal/store/storetest"
)

func newTestRouter(t *testing.T) (*gin.Engine, *storetest.MemStore) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	log := logger.NewNopLogger()
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	s := storetest.New()

	b := bus.New(client, log)
	q := queue.NewManager(s, log)
	e := executor.New(s, provider.NewRegistryFromMap(nil), b, m, executor.Config{}, log)
	c := scheduler.NewChecker(q, b, m, time.Hour, true, log)
	p := pipeline.New(q, e, c, b, s, log)

	h := api.NewHandlers(p, log, "test")
	return api.NewRouter(h, reg, log, false), s
}

func doRequest(router *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func seedDraft(s *storetest.MemStore, id string) {
	s.Put(domain.ContentItem{
		ID:        id,
		Platform:  "mastodon",
		Status:    domain.StatusDraft,
		CreatedAt: time.Now(),
	})
}

func TestHealth(t *testing.T) {
	router, _ := newTestRouter(t)

	w := doRequest(router, http.MethodGet, "/healthz", "")
	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
}

func TestCreateItem(t *testing.T) {
	router, s := newTestRouter(t)

	w := doRequest(router, http.MethodPost, "/api/v1/items",
		`{"platform": "mastodon", "title": "Hello", "body": "First post"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201: %s", w.Code, w.Body.String())
	}

	var item domain.ContentItem
	if err := json.Unmarshal(w.Body.Bytes(), &item); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if item.Status != domain.StatusDraft {
		t.Errorf("Status = %s, want draft", item.Status)
	}
	if item.ID == "" {
		t.Error("ID not assigned")
	}

	stored, err := s.Get(context.Background(), item.ID)
	if err != nil {
		t.Fatalf("Get() unexpected error: %v", err)
	}
	if stored.Body != "First post" {
		t.Errorf("Body = %q, want %q", stored.Body, "First post")
	}

	// Missing body is rejected.
	w = doRequest(router, http.MethodPost, "/api/v1/items", `{"platform": "mastodon"}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("missing body: status = %d, want 400", w.Code)
	}
}

func TestEnqueueAndList(t *testing.T) {
	router, s := newTestRouter(t)
	seedDraft(s, "item-1")

	w := doRequest(router, http.MethodPost, "/api/v1/queue/item-1", "")
	if w.Code != http.StatusOK {
		t.Fatalf("enqueue status = %d, want 200: %s", w.Code, w.Body.String())
	}

	var item domain.ContentItem
	if err := json.Unmarshal(w.Body.Bytes(), &item); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if item.Status != domain.StatusQueued {
		t.Errorf("Status = %s, want queued", item.Status)
	}
	if item.Position == nil || *item.Position != 1 {
		t.Errorf("Position = %v, want 1", item.Position)
	}

	w = doRequest(router, http.MethodGet, "/api/v1/queue", "")
	if w.Code != http.StatusOK {
		t.Fatalf("list status = %d, want 200", w.Code)
	}
	var listResp struct {
		Count int `json:"count"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &listResp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if listResp.Count != 1 {
		t.Errorf("count = %d, want 1", listResp.Count)
	}
}

func TestEnqueue_Conflicts(t *testing.T) {
	router, s := newTestRouter(t)
	seedDraft(s, "item-1")

	// First enqueue succeeds, second conflicts.
	doRequest(router, http.MethodPost, "/api/v1/queue/item-1", "")
	w := doRequest(router, http.MethodPost, "/api/v1/queue/item-1", "")
	if w.Code != http.StatusConflict {
		t.Errorf("status = %d, want 409", w.Code)
	}
}

func TestEnqueue_NotFound(t *testing.T) {
	router, _ := newTestRouter(t)

	w := doRequest(router, http.MethodPost, "/api/v1/queue/ghost", "")
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestDequeue(t *testing.T) {
	router, s := newTestRouter(t)
	seedDraft(s, "item-1")
	doRequest(router, http.MethodPost, "/api/v1/queue/item-1", "")

	w := doRequest(router, http.MethodDelete, "/api/v1/queue/item-1", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	// Dequeuing a draft conflicts.
	w = doRequest(router, http.MethodDelete, "/api/v1/queue/item-1", "")
	if w.Code != http.StatusConflict {
		t.Errorf("status = %d, want 409", w.Code)
	}
}

func TestReorder(t *testing.T) {
	router, s := newTestRouter(t)
	seedDraft(s, "item-1")
	doRequest(router, http.MethodPost, "/api/v1/queue/item-1", "")

	w := doRequest(router, http.MethodPut, "/api/v1/queue/item-1/position", `{"position": 4}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", w.Code, w.Body.String())
	}

	item, err := s.Get(context.Background(), "item-1")
	if err != nil {
		t.Fatalf("Get() unexpected error: %v", err)
	}
	if item.Position == nil || *item.Position != 4 {
		t.Errorf("Position = %v, want 4", item.Position)
	}

	w = doRequest(router, http.MethodPut, "/api/v1/queue/item-1/position", `{}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("missing position: status = %d, want 400", w.Code)
	}
}

func TestPipelineToggle(t *testing.T) {
	router, _ := newTestRouter(t)

	w := doRequest(router, http.MethodPost, "/api/v1/pipeline/disable", "")
	if w.Code != http.StatusOK {
		t.Fatalf("disable status = %d, want 200", w.Code)
	}

	w = doRequest(router, http.MethodGet, "/api/v1/stats", "")
	if w.Code != http.StatusOK {
		t.Fatalf("stats status = %d, want 200", w.Code)
	}
	var stats pipeline.Stats
	if err := json.Unmarshal(w.Body.Bytes(), &stats); err != nil {
		t.Fatalf("decode stats: %v", err)
	}
	if stats.Enabled {
		t.Error("Enabled = true after disable")
	}

	w = doRequest(router, http.MethodPost, "/api/v1/pipeline/enable", "")
	if w.Code != http.StatusOK {
		t.Fatalf("enable status = %d, want 200", w.Code)
	}
}

func TestPublishDispatch(t *testing.T) {
	router, s := newTestRouter(t)
	seedDraft(s, "item-1")

	w := doRequest(router, http.MethodPost, "/api/v1/items/item-1/publish", "")
	if w.Code != http.StatusAccepted {
		t.Errorf("status = %d, want 202", w.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	router, _ := newTestRouter(t)

	w := doRequest(router, http.MethodGet, "/metrics", "")
	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
}
