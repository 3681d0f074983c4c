package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hitoshi/profilesync/internal/model"
)

func newGuardedHandler(token string, called *bool) http.Handler {
	return NewDebugTokenMiddleware(token)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*called = true
		w.WriteHeader(http.StatusOK)
	}))
}

// TestDebugTokenMiddleware_ValidToken は正しいトークンでハンドラーが呼ばれることを検証する。
func TestDebugTokenMiddleware_ValidToken(t *testing.T) {
	called := false
	handler := newGuardedHandler("s3cret", &called)

	req := httptest.NewRequest(http.MethodGet, "/debug/auth", nil)
	req.Header.Set(DebugTokenHeader, "s3cret")
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	if w.Result().StatusCode != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusOK)
	}
	if !called {
		t.Error("handler should have been called")
	}
}

// TestDebugTokenMiddleware_Rejects は不正なトークンで401を返すことを検証する。
func TestDebugTokenMiddleware_Rejects(t *testing.T) {
	tests := []struct {
		name     string
		expected string
		header   string
	}{
		{name: "ヘッダーなし", expected: "s3cret", header: ""},
		{name: "トークン不一致", expected: "s3cret", header: "guess"},
		{name: "前方一致のみ", expected: "s3cret", header: "s3c"},
		{name: "トークン未設定は常に拒否", expected: "", header: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called := false
			handler := newGuardedHandler(tt.expected, &called)

			req := httptest.NewRequest(http.MethodPost, "/debug/auth/profile", nil)
			if tt.header != "" {
				req.Header.Set(DebugTokenHeader, tt.header)
			}
			w := httptest.NewRecorder()

			handler.ServeHTTP(w, req)

			if w.Result().StatusCode != http.StatusUnauthorized {
				t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusUnauthorized)
			}
			if called {
				t.Error("handler should not be called")
			}

			var body ErrorResponseBody
			if err := json.NewDecoder(w.Result().Body).Decode(&body); err != nil {
				t.Fatalf("failed to decode response: %v", err)
			}
			if body.Code != model.ErrCodeDebugUnauthorized {
				t.Errorf("code = %q, want %q", body.Code, model.ErrCodeDebugUnauthorized)
			}
		})
	}
}

// TestIngressTokenMiddleware はイベント受付用トークンの検証を確認する。
func TestIngressTokenMiddleware(t *testing.T) {
	tests := []struct {
		name       string
		expected   string
		header     string
		value      string
		wantStatus int
	}{
		{name: "一致すれば通過", expected: "in-secret", header: IngressTokenHeader, value: "in-secret", wantStatus: http.StatusOK},
		{name: "ヘッダーなしは拒否", expected: "in-secret", wantStatus: http.StatusUnauthorized},
		{name: "不一致は拒否", expected: "in-secret", header: IngressTokenHeader, value: "guess", wantStatus: http.StatusUnauthorized},
		{name: "デバッグ用ヘッダーでは通らない", expected: "in-secret", header: DebugTokenHeader, value: "in-secret", wantStatus: http.StatusUnauthorized},
		{name: "トークン未設定は常に拒否", expected: "", wantStatus: http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called := false
			handler := NewIngressTokenMiddleware(tt.expected)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				called = true
				w.WriteHeader(http.StatusOK)
			}))

			req := httptest.NewRequest(http.MethodPost, "/identity/events", nil)
			if tt.header != "" {
				req.Header.Set(tt.header, tt.value)
			}
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if called != (tt.wantStatus == http.StatusOK) {
				t.Errorf("handler called = %v", called)
			}
			if tt.wantStatus == http.StatusUnauthorized {
				var body ErrorResponseBody
				if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
					t.Fatalf("failed to decode response: %v", err)
				}
				if body.Code != model.ErrCodeIngressUnauthorized {
					t.Errorf("code = %q, want %q", body.Code, model.ErrCodeIngressUnauthorized)
				}
			}
		})
	}
}
