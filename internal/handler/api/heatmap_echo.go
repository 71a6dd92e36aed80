package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"LiqMap/internal/simulation"

	models "LiqMap/internal/domain/models"
	domrepo "LiqMap/internal/domain/repository"
	icache "LiqMap/internal/service/cache"
	"LiqMap/internal/service/metrics"
	"LiqMap/internal/service/ratelimit"
	"LiqMap/internal/usecase"
	xhttp "LiqMap/pkg/http"
	xlogger "LiqMap/pkg/logger"
	"LiqMap/pkg/queue"

	"github.com/labstack/echo/v4"
)

// HeatmapEchoHandler serves heatmap range queries, the latest-snapshot
// endpoint, ad-hoc simulations, and backfill enqueueing.
type HeatmapEchoHandler struct {
	logger   *xlogger.Logger
	uc       *usecase.HeatmapUseCase
	cache    icache.BytesCache
	rl       *ratelimit.Limiter
	backfill queue.QueueService
	cacheTTL time.Duration
}

func NewHeatmapEchoHandler(logger *xlogger.Logger, uc *usecase.HeatmapUseCase) *HeatmapEchoHandler {
	metrics.Register()
	return &HeatmapEchoHandler{
		logger:   logger,
		uc:       uc,
		rl:       ratelimit.New(),
		cacheTTL: 30 * time.Second,
	}
}

func (h *HeatmapEchoHandler) SetCache(c icache.BytesCache) { h.cache = c }

// SetBackfillQueue wires the queue used by POST /api/backfill.
func (h *HeatmapEchoHandler) SetBackfillQueue(q queue.QueueService) { h.backfill = q }

func (h *HeatmapEchoHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api")
	g.GET("/heatmap", h.Heatmap)
	g.GET("/heatmap/latest", h.Latest)
	g.POST("/simulate", h.Simulate)
	g.POST("/backfill", h.Backfill)
}

func (h *HeatmapEchoHandler) Heatmap(c echo.Context) error {
	start := time.Now()
	defer func() { metrics.HeatmapLatency.WithLabelValues("heatmap").Observe(time.Since(start).Seconds()) }()

	req := &models.HeatmapRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	if !h.rl.Allow(c.RealIP()+":heatmap", 10, 5) {
		return echo.NewHTTPError(429, "rate limited")
	}

	to := xhttp.ParseTimeDefault(req.To, time.Now().UTC())
	from := xhttp.ParseTimeDefault(req.From, to.Add(-24*time.Hour))

	cacheKey := "heatmap:" + req.Symbol + ":" + req.TF + ":" + req.From + ":" + req.To + ":" + strconv.Itoa(req.Limit)
	if b, ok := h.cached(cacheKey); ok {
		return c.JSONBlob(http.StatusOK, b)
	}

	res, err := h.uc.GetHeatmap(c.Request().Context(), usecase.GetHeatmapParams{
		Symbol: req.Symbol,
		From:   from,
		To:     to,
		Limit:  req.Limit,
	})
	if err != nil {
		metrics.HeatmapErrors.WithLabelValues("heatmap").Inc()
		h.logger.Error("heatmap usecase error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	c.Response().Header().Set(echo.HeaderCacheControl, "private, max-age=15")
	return h.respondCached(c, cacheKey, h.cacheTTL, res)
}

func (h *HeatmapEchoHandler) Latest(c echo.Context) error {
	start := time.Now()
	defer func() { metrics.HeatmapLatency.WithLabelValues("latest").Observe(time.Since(start).Seconds()) }()

	req := &models.LatestHeatmapRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	cacheKey := "heatmap:latest:" + req.Symbol
	if b, ok := h.cached(cacheKey); ok {
		return c.JSONBlob(http.StatusOK, b)
	}

	snap, err := h.uc.GetLatest(c.Request().Context(), req.Symbol)
	if err != nil {
		metrics.HeatmapErrors.WithLabelValues("latest").Inc()
		h.logger.Error("latest usecase error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	return h.respondCached(c, cacheKey, 5*time.Second, snap)
}

func (h *HeatmapEchoHandler) Simulate(c echo.Context) error {
	start := time.Now()
	defer func() { metrics.HeatmapLatency.WithLabelValues("simulate").Observe(time.Since(start).Seconds()) }()

	req := &models.SimulateRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	// Simulations replay history; keep them scarce per client.
	if !h.rl.Allow(c.RealIP()+":simulate", 2, 0.5) {
		return echo.NewHTTPError(429, "rate limited")
	}

	from, okFrom := xhttp.ParseTime(req.From)
	to, okTo := xhttp.ParseTime(req.To)
	if !okFrom || !okTo {
		return xhttp.BadRequestResponse(c, "from/to must be RFC3339 or unix seconds")
	}

	snaps, err := h.uc.Simulate(c.Request().Context(), usecase.SimulateParams{
		Symbol:    req.Symbol,
		From:      from,
		To:        to,
		Timeframe: domrepo.NormalizeTimeframe(req.TF),
	})
	if err != nil {
		metrics.HeatmapErrors.WithLabelValues("simulate").Inc()
		h.logger.Error("simulate usecase error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, mapSimError(err))
	}
	return xhttp.SuccessResponse(c, snaps)
}

func (h *HeatmapEchoHandler) Backfill(c echo.Context) error {
	req := &models.BackfillRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	if h.backfill == nil {
		return echo.NewHTTPError(503, "backfill queue unavailable")
	}

	from, okFrom := xhttp.ParseTime(req.From)
	to, okTo := xhttp.ParseTime(req.To)
	if !okFrom || !okTo {
		return xhttp.BadRequestResponse(c, "from/to must be RFC3339 or unix seconds")
	}

	err := h.backfill.PublishMessage(c.Request().Context(), "backfill", usecase.BackfillPayload{
		Symbol:    req.Symbol,
		From:      from,
		To:        to,
		Timeframe: req.TF,
	})
	if err != nil {
		metrics.HeatmapErrors.WithLabelValues("backfill").Inc()
		h.logger.Error("backfill enqueue error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	return xhttp.CreatedResponse(c, map[string]string{"status": "queued"})
}

// mapSimError translates engine sentinels into client-facing statuses; bad
// market data is the caller's problem, ordering violations are a replay
// conflict, everything else stays a 500.
func mapSimError(err error) error {
	switch {
	case errors.Is(err, simulation.ErrInvalidInput):
		return xhttp.BadRequestError(err.Error()).WithError(err)
	case errors.Is(err, simulation.ErrOrderingViolation):
		return xhttp.ConflictError(err.Error()).WithError(err)
	default:
		return err
	}
}

func (h *HeatmapEchoHandler) cached(key string) ([]byte, bool) {
	if h.cache == nil {
		return nil, false
	}
	b, ok, err := h.cache.GetBytes(key)
	if err != nil {
		h.logger.Warn("cache get error", xlogger.Error(err))
		return nil, false
	}
	return b, ok
}

// respondCached marshals the response envelope once, caches those exact
// bytes, and writes them, so cache hits and misses emit the same shape.
func (h *HeatmapEchoHandler) respondCached(c echo.Context, key string, ttl time.Duration, data interface{}) error {
	b, err := json.Marshal(xhttp.APIResponse{
		Status:  http.StatusOK,
		Message: http.StatusText(http.StatusOK),
		Data:    data,
	})
	if err != nil {
		return xhttp.SuccessResponse(c, data)
	}
	if h.cache != nil {
		if err := h.cache.SetBytes(key, b, ttl); err != nil {
			h.logger.Warn("cache set error", xlogger.Error(err))
		}
	}
	return c.JSONBlob(http.StatusOK, b)
}
