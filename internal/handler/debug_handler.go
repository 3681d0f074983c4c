package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/hitoshi/profilesync/internal/model"
	"github.com/hitoshi/profilesync/internal/reconcile"
)

// IntrospectorInterface はデバッグハンドラーが必要とする診断インターフェース。
type IntrospectorInterface interface {
	Inspect(ctx context.Context) reconcile.Report
	ForceCreate(ctx context.Context) (reconcile.Report, error)
}

// DebugHandler は認証状態とプロフィールの診断用HTTPハンドラー。
type DebugHandler struct {
	introspector IntrospectorInterface
}

// NewDebugHandler はDebugHandlerを生成する。
func NewDebugHandler(introspector IntrospectorInterface) *DebugHandler {
	return &DebugHandler{introspector: introspector}
}

// reportError は診断レポートに含める同期失敗の情報。
type reportError struct {
	Code    string `json:"code,omitempty"`
	Kind    string `json:"kind,omitempty"`
	Message string `json:"message"`
}

// reportResponse は診断レポートのレスポンス。
type reportResponse struct {
	Session  bool                  `json:"session"`
	Identity *model.IdentityHandle `json:"identity"`
	Profile  *model.Profile        `json:"profile"`
	Error    *reportError          `json:"error"`
}

func toReportResponse(report reconcile.Report) reportResponse {
	resp := reportResponse{
		Session:  report.Identity != nil,
		Identity: report.Identity,
		Profile:  report.Profile,
	}
	if report.Err != nil {
		resp.Error = &reportError{Message: report.Err.Error()}
		var syncErr *model.SyncError
		if errors.As(report.Err, &syncErr) {
			resp.Error.Kind = string(syncErr.Kind)
		}
		return resp
	}
	// セッションはあるがレコードがない場合は復旧操作を案内する
	if report.Identity != nil && report.Profile == nil {
		notFound := model.NewProfileNotFoundError(report.Identity.UID)
		resp.Error = &reportError{Code: notFound.Code, Message: notFound.Message}
	}
	return resp
}

// Inspect は現在のidentityとプロフィールを返す。
// GET /debug/auth
func (h *DebugHandler) Inspect(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, toReportResponse(h.introspector.Inspect(r.Context())))
}

// ForceCreate は現在のidentityのプロフィールを既定値で作成し直す。
// POST /debug/auth/profile
func (h *DebugHandler) ForceCreate(w http.ResponseWriter, r *http.Request) {
	report, err := h.introspector.ForceCreate(r.Context())
	if err != nil {
		if errors.Is(err, reconcile.ErrNoSession) {
			handleServiceError(w, model.NewNoSessionError())
			return
		}
		handleServiceError(w, model.NewSyncFailedError(err))
		return
	}

	writeJSON(w, http.StatusCreated, toReportResponse(report))
}
