package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

// healthCheckTimeout はヘルスチェック1回あたりの上限時間。
const healthCheckTimeout = 2 * time.Second

// HealthChecker は依存先の疎通確認インターフェース。
// *sql.DBはそのまま満たす。
type HealthChecker interface {
	PingContext(ctx context.Context) error
}

// ReadinessReporter は初回の認証ブートストラップ完了を報告するインターフェース。
type ReadinessReporter interface {
	IsReady() bool
}

// HealthHandler は死活監視と準備完了確認のHTTPハンドラー。
type HealthHandler struct {
	checkers  map[string]HealthChecker
	readiness ReadinessReporter
}

// NewHealthHandler はHealthHandlerを生成する。
// checkersのキーは依存先の名前としてレスポンスに含まれる。
func NewHealthHandler(checkers map[string]HealthChecker, readiness ReadinessReporter) *HealthHandler {
	return &HealthHandler{checkers: checkers, readiness: readiness}
}

// Health は依存先の疎通を確認する。
// GET /health
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	status := http.StatusOK
	payload := map[string]any{"status": "ok"}

	failures := map[string]string{}
	for name, checker := range h.checkers {
		if err := checker.PingContext(ctx); err != nil {
			slog.Error("health check failed",
				slog.String("dependency", name),
				slog.String("error", err.Error()),
			)
			failures[name] = err.Error()
		}
	}
	if len(failures) > 0 {
		status = http.StatusServiceUnavailable
		payload["status"] = "degraded"
		payload["errors"] = failures
	}

	writeJSON(w, status, payload)
}

// Ready は初回の認証ブートストラップが完了しているかを返す。
// 完了前は503、完了後は200。
// GET /ready
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	if h.readiness == nil || !h.readiness.IsReady() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"ready": false})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ready": true})
}
