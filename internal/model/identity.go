package model

import "time"

// IdentityHandle は外部IdPが認証済みセッションについて提供する情報を表す。
// このサービスからは読み取り専用。空文字列は「値なし」を意味する。
type IdentityHandle struct {
	UID           string `json:"uid"`
	Email         string `json:"email,omitempty"`
	EmailVerified bool   `json:"emailVerified"`
	DisplayName   string `json:"displayName,omitempty"`
}

// IdentityEvent はIdPのセッション状態変化の通知。
// Identityがnilの場合は「セッションなし」を表す。
type IdentityEvent struct {
	ID         string          `json:"id,omitempty"`
	Identity   *IdentityHandle `json:"identity"`
	OccurredAt time.Time       `json:"occurredAt"`
}

// HasSession はイベントが認証済みセッションを含むかどうかを返す。
func (e IdentityEvent) HasSession() bool {
	return e.Identity != nil
}
