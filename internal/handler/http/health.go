package http

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// Pinger зависимость, которую проверяет readiness probe
type Pinger interface {
	Ping(ctx context.Context) error
}

// StatsSource отдает счетчики фоновой записи сканирований
type StatsSource interface {
	GetStats() map[string]interface{}
}

// HealthHandler обработчик health checks и метрик
type HealthHandler struct {
	checks  map[string]Pinger
	stats   StatsSource
	version string
	started time.Time
	log     *zap.Logger
}

// NewHealthHandler создает новый health handler; stats может быть nil
func NewHealthHandler(checks map[string]Pinger, stats StatsSource, version string, log *zap.Logger) *HealthHandler {
	return &HealthHandler{
		checks:  checks,
		stats:   stats,
		version: version,
		started: time.Now(),
		log:     log,
	}
}

// HealthResponse структура ответа health check
type HealthResponse struct {
	OK        bool      `json:"ok"`
	Version   string    `json:"version"`
	Uptime    string    `json:"uptime"`
	Timestamp time.Time `json:"timestamp"`
}

// ReadyResponse результат проверки каждой зависимости
type ReadyResponse struct {
	Ready  bool              `json:"ready"`
	Checks map[string]string `json:"checks"`
}

// Health сообщает, что процесс обслуживает запросы
//
//	@Summary	Liveness probe
//	@Tags		Health
//	@Produce	json
//	@Success	200	{object}	HealthResponse
//	@Router		/health [get]
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.log, HealthResponse{
		OK:        true,
		Version:   h.version,
		Uptime:    time.Since(h.started).Round(time.Second).String(),
		Timestamp: time.Now().UTC(),
	}, http.StatusOK)
}

// Ready пингует хранилище и кэш
//
//	@Summary	Readiness probe
//	@Tags		Health
//	@Produce	json
//	@Success	200	{object}	ReadyResponse
//	@Failure	503	{object}	ReadyResponse
//	@Router		/ready [get]
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	resp := ReadyResponse{Ready: true, Checks: make(map[string]string, len(h.checks))}
	for name, p := range h.checks {
		if err := p.Ping(ctx); err != nil {
			h.log.Warn("readiness check failed", zap.String("check", name), zap.Error(err))
			resp.Ready = false
			resp.Checks[name] = "unhealthy"
			continue
		}
		resp.Checks[name] = "healthy"
	}

	status := http.StatusOK
	if !resp.Ready {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, h.log, resp, status)
}

// Metrics простой endpoint с метриками процесса и очереди сканирований
//
//	@Summary	Process metrics
//	@Tags		Health
//	@Produce	json
//	@Success	200	{object}	map[string]interface{}
//	@Router		/metrics [get]
func (h *HealthHandler) Metrics(w http.ResponseWriter, r *http.Request) {
	metrics := map[string]interface{}{
		"uptime_seconds": time.Since(h.started).Seconds(),
		"timestamp":      time.Now().UTC(),
		"version":        h.version,
	}
	if h.stats != nil {
		metrics["analytics"] = h.stats.GetStats()
	}
	writeJSON(w, h.log, metrics, http.StatusOK)
}
