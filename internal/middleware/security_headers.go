package middleware

import (
	"net/http"

	chimw "github.com/go-chi/chi/v5/middleware"
)

// NewSecurityHeadersMiddleware はJSON APIとして安全なレスポンスヘッダーを付与するミドルウェアを返す。
// 診断レスポンスはメールアドレス等を含むためキャッシュを禁止する。
// RequestIDミドルウェアの後段に置くと、リクエストIDをX-Request-Idとして返す。
func NewSecurityHeadersMiddleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("X-Frame-Options", "DENY")
			h.Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
			h.Set("Referrer-Policy", "no-referrer")
			h.Set("Cache-Control", "no-store")
			if reqID := chimw.GetReqID(r.Context()); reqID != "" {
				h.Set(chimw.RequestIDHeader, reqID)
			}
			next.ServeHTTP(w, r)
		})
	}
}
