// Package reconcile はIdPのセッション状態とプロフィールの同期処理を提供する。
// 判定ロジック（Policy）、イベント駆動の同期エンジン（Engine）、
// 運用診断用のIntrospectorを含む。
package reconcile

import (
	"strings"
	"time"

	"github.com/hitoshi/profilesync/internal/model"
)

// placeholderIDLength はプレースホルダー名に使用するuidの先頭文字数。
const placeholderIDLength = 5

// ActionKind はPolicyが決定した書き込みの種類。
type ActionKind string

const (
	// ActionCreate はプロフィール全体の新規作成。
	ActionCreate ActionKind = "create"
	// ActionUpdate はログイン由来フィールドの部分更新。
	ActionUpdate ActionKind = "update"
)

// WriteAction はPolicyが決定した書き込み内容。
// KindがActionCreateの場合はProfile、ActionUpdateの場合はUpdateが設定される。
type WriteAction struct {
	Kind    ActionKind
	UID     string
	Profile *model.Profile
	Update  *model.ProfileUpdate
}

// NameSanitizer は表示名の正規化インターフェース。
type NameSanitizer interface {
	SanitizeName(raw string) string
}

// Policy はidentityと既存プロフィールから必要な書き込みを決定する。
// I/Oを行わない純粋な判定ロジック。
type Policy struct {
	now       func() time.Time
	sanitizer NameSanitizer
}

// NewPolicy はPolicyを生成する。
// nowがnilの場合はtime.Nowを、sanitizerがnilの場合は空白のトリムのみを使用する。
func NewPolicy(now func() time.Time, sanitizer NameSanitizer) *Policy {
	if now == nil {
		now = time.Now
	}
	return &Policy{now: now, sanitizer: sanitizer}
}

// Decide は必要な書き込みを返す。全ての入力に対して定義される。
//
//	existing == nil: 既定値で埋めたプロフィールの作成
//	existing != nil: email、emailVerified、lastLogin、updatedAtのみの部分更新
func (p *Policy) Decide(identity model.IdentityHandle, existing *model.Profile) WriteAction {
	if existing == nil {
		return p.CreateAction(identity)
	}

	now := p.now().UTC()
	return WriteAction{
		Kind: ActionUpdate,
		UID:  identity.UID,
		Update: &model.ProfileUpdate{
			Email:         identity.Email,
			EmailVerified: identity.EmailVerified,
			LastLogin:     now,
			UpdatedAt:     now,
		},
	}
}

// CreateAction は既存プロフィールの有無に関わらず作成の書き込みを返す。
// 通常の同期経路ではDecide経由で呼ばれ、Introspectorの手動復旧で直接使用される。
func (p *Policy) CreateAction(identity model.IdentityHandle) WriteAction {
	now := p.now().UTC()
	return WriteAction{
		Kind: ActionCreate,
		UID:  identity.UID,
		Profile: &model.Profile{
			UID:           identity.UID,
			Email:         identity.Email,
			EmailVerified: identity.EmailVerified,
			Name:          p.DeriveName(identity),
			CreatedAt:     now,
			LastLogin:     now,
			UpdatedAt:     now,
			Status:        model.ProfileStatusActive,
			Role:          model.ProfileRoleUser,
			Team:          "",
			CrossTeam:     "",
		},
	}
}

// DeriveName はプロフィール名の既定値を返す。
// 優先順位: 表示名 → emailのローカル部 → "User-" + uidの先頭5文字
func (p *Policy) DeriveName(identity model.IdentityHandle) string {
	if name := p.sanitize(identity.DisplayName); name != "" {
		return name
	}

	local, _, _ := strings.Cut(identity.Email, "@")
	if local = strings.TrimSpace(local); local != "" {
		return local
	}

	return placeholderName(identity.UID)
}

func (p *Policy) sanitize(raw string) string {
	if p.sanitizer == nil {
		return strings.TrimSpace(raw)
	}
	return p.sanitizer.SanitizeName(raw)
}

func placeholderName(uid string) string {
	short := []rune(uid)
	if len(short) > placeholderIDLength {
		short = short[:placeholderIDLength]
	}
	return "User-" + string(short)
}
