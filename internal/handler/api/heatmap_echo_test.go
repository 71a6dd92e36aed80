package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"LiqMap/internal/domain/models"
	icache "LiqMap/internal/service/cache"
	"LiqMap/internal/usecase"
	applogger "LiqMap/pkg/logger"

	"github.com/labstack/echo/v4"
)

type stubSnapshotStore struct {
	queryLimits []int
	latestCalls int
	snap        *models.HeatmapSnapshot
}

func (s *stubSnapshotStore) Init(ctx context.Context) error { return nil }
func (s *stubSnapshotStore) Store(ctx context.Context, _ *models.HeatmapSnapshot) error { return nil }
func (s *stubSnapshotStore) StoreBatch(ctx context.Context, _ []*models.HeatmapSnapshot) error {
	return nil
}
func (s *stubSnapshotStore) Query(ctx context.Context, symbol string, from, to time.Time, limit int) ([]*models.HeatmapSnapshot, error) {
	s.queryLimits = append(s.queryLimits, limit)
	return []*models.HeatmapSnapshot{s.snap}, nil
}
func (s *stubSnapshotStore) Latest(ctx context.Context, symbol string) (*models.HeatmapSnapshot, error) {
	s.latestCalls++
	return s.snap, nil
}
func (s *stubSnapshotStore) Health(ctx context.Context) error { return nil }
func (s *stubSnapshotStore) Close() error                     { return nil }

func newTestHandler(t *testing.T, store *stubSnapshotStore) *HeatmapEchoHandler {
	t.Helper()
	l, err := applogger.New(&applogger.Config{Level: "error", Format: "json", Output: "stdout"})
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	h := NewHeatmapEchoHandler(l, usecase.NewHeatmapUseCase(store, nil, nil))
	h.SetCache(icache.NewTTLCache())
	return h
}

func testSnapshot() *models.HeatmapSnapshot {
	return &models.HeatmapSnapshot{
		Timestamp: time.Unix(1700000000, 0).UTC(),
		Symbol:    "BTCUSDT",
		Levels: []models.HeatmapLevel{
			{Price: 49000, LongDensity: 100},
			{Price: 51000, ShortDensity: 200},
		},
		Meta: models.SnapshotMeta{TotalLongVolume: 100, TotalShortVolume: 200},
	}
}

func doGet(t *testing.T, e *echo.Echo, fn echo.HandlerFunc, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	rec := httptest.NewRecorder()
	if err := fn(e.NewContext(req, rec)); err != nil {
		t.Fatalf("handler: %v", err)
	}
	return rec
}

// Requests that differ only in limit must not share a cache entry.
func TestHeatmapCacheKeyedByLimit(t *testing.T) {
	store := &stubSnapshotStore{snap: testSnapshot()}
	h := newTestHandler(t, store)
	e := echo.New()

	base := "/api/heatmap?symbol=BTCUSDT&from=1700000000&to=1700003600"
	doGet(t, e, h.Heatmap, base+"&limit=10")
	doGet(t, e, h.Heatmap, base+"&limit=5000")

	if len(store.queryLimits) != 2 {
		t.Fatalf("store queried %d times, want 2 (second limit served from first limit's cache)", len(store.queryLimits))
	}
	if store.queryLimits[0] != 10 || store.queryLimits[1] != 5000 {
		t.Fatalf("query limits %v, want [10 5000]", store.queryLimits)
	}
}

// A repeat of the same query is a cache hit and must not reach the store.
func TestHeatmapCacheHitSkipsStore(t *testing.T) {
	store := &stubSnapshotStore{snap: testSnapshot()}
	h := newTestHandler(t, store)
	e := echo.New()

	target := "/api/heatmap?symbol=BTCUSDT&from=1700000000&to=1700003600&limit=100"
	doGet(t, e, h.Heatmap, target)
	doGet(t, e, h.Heatmap, target)

	if len(store.queryLimits) != 1 {
		t.Fatalf("store queried %d times, want 1", len(store.queryLimits))
	}
}

// Hit and miss must produce byte-identical bodies: both are the enveloped
// form, cached as the exact bytes written.
func TestLatestCacheHitKeepsResponseShape(t *testing.T) {
	store := &stubSnapshotStore{snap: testSnapshot()}
	h := newTestHandler(t, store)
	e := echo.New()

	target := "/api/heatmap/latest?symbol=BTCUSDT"
	miss := doGet(t, e, h.Latest, target)
	hit := doGet(t, e, h.Latest, target)

	if store.latestCalls != 1 {
		t.Fatalf("store hit %d times, want 1", store.latestCalls)
	}
	if miss.Body.String() != hit.Body.String() {
		t.Fatalf("response shape diverged between hit and miss:\nmiss: %s\nhit:  %s", miss.Body.String(), hit.Body.String())
	}
	if miss.Code != http.StatusOK || hit.Code != http.StatusOK {
		t.Fatalf("status codes %d/%d, want 200", miss.Code, hit.Code)
	}
}
