// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"errors"

	"github.com/hitoshi/profilesync/internal/model"
)

// ErrProfileNotFound は部分更新の対象プロフィールが存在しない場合に返される。
var ErrProfileNotFound = errors.New("profile not found")

// ProfileRepository はプロフィールの永続化インターフェース。
// 対象ドキュメント以外に副作用を持たない。
type ProfileRepository interface {
	// FindByUID は指定uidのプロフィールを取得する。見つからない場合はnilを返す。
	FindByUID(ctx context.Context, uid string) (*model.Profile, error)

	// Create はプロフィール全体を書き込む。
	// 既に存在する場合は全フィールドを上書きする。
	Create(ctx context.Context, profile *model.Profile) error

	// MergeUpdate はemail、emailVerified、lastLogin、updatedAtのみを更新する。
	// 対象が存在しない場合はErrProfileNotFoundを返す。
	MergeUpdate(ctx context.Context, uid string, update model.ProfileUpdate) error
}
