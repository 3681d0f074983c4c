package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/hitoshi/profilesync/internal/identity"
	"github.com/hitoshi/profilesync/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Logger      *slog.Logger
	RateLimiter *middleware.RateLimiter // 必須

	// ヘルスチェック
	HealthCheckers map[string]HealthChecker
	Readiness      ReadinessReporter

	// メトリクス（nilの場合は/metricsを公開しない）
	MetricsHandler http.Handler

	// イベント受付（IngressTokenが空の場合は/identity/eventsを公開しない）
	Publisher    identity.Publisher
	IngressToken string

	// 診断（DebugTokenが空の場合は/debugを公開しない）
	Introspector IntrospectorInterface
	DebugToken   string
}

// NewRouter は全エンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	RequestID → RealIP → Logging → Recovery → SecurityHeaders
//
// イベント受付と診断ルートは共有シークレットで保護し、更にクライアント単位のレート制限を適用する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	if deps.Logger != nil {
		r.Use(middleware.NewLoggingMiddleware(deps.Logger))
	}
	r.Use(middleware.NewRecoveryMiddleware(deps.Logger))
	r.Use(middleware.NewSecurityHeadersMiddleware())

	healthHandler := NewHealthHandler(deps.HealthCheckers, deps.Readiness)

	// --- 監視用ルート ---
	r.Get("/health", healthHandler.Health)
	r.Get("/ready", healthHandler.Ready)
	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}

	// --- イベント受付 ---
	// ミドルウェアスタック: IngressToken → RateLimit
	if deps.IngressToken != "" && deps.Publisher != nil {
		eventHandler := NewEventHandler(deps.Publisher)
		r.With(
			middleware.NewIngressTokenMiddleware(deps.IngressToken),
			deps.RateLimiter.Middleware("identity_events"),
		).Post("/identity/events", eventHandler.PublishEvent)
	}

	// --- 診断ルート ---
	// ミドルウェアスタック: DebugToken → RateLimit
	if deps.DebugToken != "" && deps.Introspector != nil {
		debugHandler := NewDebugHandler(deps.Introspector)
		r.Route("/debug/auth", func(r chi.Router) {
			r.Use(middleware.NewDebugTokenMiddleware(deps.DebugToken))
			r.Use(deps.RateLimiter.Middleware("debug"))

			r.Get("/", debugHandler.Inspect)
			r.Post("/profile", debugHandler.ForceCreate)
		})
	}

	return r
}
