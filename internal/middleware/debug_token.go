// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"crypto/subtle"
	"log/slog"
	"net/http"

	"github.com/hitoshi/profilesync/internal/model"
)

// 共有シークレットを渡すヘッダー名
const (
	DebugTokenHeader   = "X-Debug-Token"
	IngressTokenHeader = "X-Ingress-Token"
)

// NewDebugTokenMiddleware はX-Debug-Tokenヘッダーを検証するミドルウェアを返す。
// tokenが空の場合は全てのリクエストを拒否する。
func NewDebugTokenMiddleware(token string) func(next http.Handler) http.Handler {
	return newTokenMiddleware(DebugTokenHeader, token, model.NewDebugUnauthorizedError)
}

// NewIngressTokenMiddleware はIdP連携側からのイベント送信をX-Ingress-Tokenヘッダーで認証するミドルウェアを返す。
// tokenが空の場合は全てのリクエストを拒否する。
func NewIngressTokenMiddleware(token string) func(next http.Handler) http.Handler {
	return newTokenMiddleware(IngressTokenHeader, token, model.NewIngressUnauthorizedError)
}

// newTokenMiddleware はheaderの値をtokenと定数時間で比較し、一致しない場合は401を返す。
func newTokenMiddleware(header, token string, unauthorized func() *model.APIError) func(next http.Handler) http.Handler {
	expected := []byte(token)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := []byte(r.Header.Get(header))
			if len(expected) == 0 || subtle.ConstantTimeCompare(got, expected) != 1 {
				slog.Warn("shared token rejected",
					slog.String("header", header),
					slog.String("method", r.Method),
					slog.String("path", r.URL.Path),
					slog.Bool("header_present", len(got) > 0),
				)
				WriteErrorResponse(w, http.StatusUnauthorized, unauthorized())
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
