package model

import (
	"errors"
	"fmt"
)

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, profile, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeInvalidEvent        = "INVALID_EVENT"
	ErrCodeNoSession           = "NO_SESSION"
	ErrCodeProfileNotFound     = "PROFILE_NOT_FOUND"
	ErrCodeDebugUnauthorized   = "DEBUG_UNAUTHORIZED"
	ErrCodeIngressUnauthorized = "INGRESS_UNAUTHORIZED"
	ErrCodeSyncFailed          = "SYNC_FAILED"
	ErrCodeInternal            = "INTERNAL_ERROR"
)

// NewInvalidEventError は不正なセッションイベントのエラーを生成する。
func NewInvalidEventError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidEvent,
		Message:  fmt.Sprintf("invalid identity event: %s", reason),
		Category: "validation",
		Action:   "Send a JSON body with an identity object (uid required) or identity: null.",
	}
}

// NewNoSessionError は認証済みセッションが存在しない場合のエラーを生成する。
func NewNoSessionError() *APIError {
	return &APIError{
		Code:     ErrCodeNoSession,
		Message:  "no authenticated session is currently observed",
		Category: "auth",
		Action:   "Sign in first, then retry the diagnostic action.",
	}
}

// NewProfileNotFoundError はプロフィールが見つからない場合のエラーを生成する。
func NewProfileNotFoundError(uid string) *APIError {
	return &APIError{
		Code:     ErrCodeProfileNotFound,
		Message:  fmt.Sprintf("profile not found: %s", uid),
		Category: "profile",
		Action:   "Use the create-profile action to recover the record.",
	}
}

// NewDebugUnauthorizedError はデバッグトークンが不正な場合のエラーを生成する。
func NewDebugUnauthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeDebugUnauthorized,
		Message:  "debug token missing or invalid",
		Category: "auth",
		Action:   "Set the X-Debug-Token header.",
	}
}

// NewIngressUnauthorizedError はイベント受付トークンが不正な場合のエラーを生成する。
func NewIngressUnauthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeIngressUnauthorized,
		Message:  "ingress token missing or invalid",
		Category: "auth",
		Action:   "Set the X-Ingress-Token header to the configured INGRESS_TOKEN.",
	}
}

// NewSyncFailedError はプロフィール同期に失敗した場合のエラーを生成する。
func NewSyncFailedError(err error) *APIError {
	return &APIError{
		Code:     ErrCodeSyncFailed,
		Message:  err.Error(),
		Category: "system",
		Action:   "Check the profile store and retry.",
	}
}

// NewInternalError は内部エラーを生成する。詳細はログにのみ記録すること。
func NewInternalError() *APIError {
	return &APIError{
		Code:     ErrCodeInternal,
		Message:  "an internal error occurred",
		Category: "system",
		Action:   "Retry later. Quote the X-Request-Id header when reporting the problem.",
	}
}

// FailureKind は同期失敗の分類。
type FailureKind string

const (
	// FailureRead はプロフィールの読み取り失敗（不正なidentityを含む）。
	FailureRead FailureKind = "read_failure"
	// FailureWrite は作成または部分更新の失敗。
	FailureWrite FailureKind = "write_failure"
	// FailureTimeout は上限時間内に応答がなかったことを示す。
	FailureTimeout FailureKind = "timeout_failure"
)

// errors.Is で分類を判定するためのセンチネル。
var (
	ErrReadFailure    = errors.New(string(FailureRead))
	ErrWriteFailure   = errors.New(string(FailureWrite))
	ErrTimeoutFailure = errors.New(string(FailureTimeout))
)

// SyncError はプロフィール同期の失敗を表す。
// どの分類もエンジンにとって致命的ではなく、報告のみ行われる。
type SyncError struct {
	Kind FailureKind
	UID  string
	Err  error
}

// NewSyncError はSyncErrorを生成する。
func NewSyncError(kind FailureKind, uid string, err error) *SyncError {
	return &SyncError{Kind: kind, UID: uid, Err: err}
}

// Error はerrorインターフェースを実装する。
func (e *SyncError) Error() string {
	if e.UID == "" {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s (uid=%s): %v", e.Kind, e.UID, e.Err)
}

// Unwrap は元のエラーを返す。
func (e *SyncError) Unwrap() error {
	return e.Err
}

// Is は分類センチネルとの一致を判定する。
func (e *SyncError) Is(target error) bool {
	switch target {
	case ErrReadFailure:
		return e.Kind == FailureRead
	case ErrWriteFailure:
		return e.Kind == FailureWrite
	case ErrTimeoutFailure:
		return e.Kind == FailureTimeout
	}
	return false
}
