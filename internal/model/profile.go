// Package model はドメインモデルを定義する。
package model

import "time"

// ProfileStatus はプロフィールの状態を表す。
type ProfileStatus string

const (
	// ProfileStatusActive は有効なアカウントを示す。作成時のデフォルト。
	ProfileStatusActive ProfileStatus = "active"
	// ProfileStatusSuspended は管理者により停止されたアカウントを示す。
	ProfileStatusSuspended ProfileStatus = "suspended"
)

// ProfileRole はプロフィールの権限ロールを表す。
type ProfileRole string

const (
	// ProfileRoleUser は一般ユーザー。作成時のデフォルト。
	ProfileRoleUser ProfileRole = "user"
	// ProfileRoleAdmin は管理者。
	ProfileRoleAdmin ProfileRole = "admin"
)

// Profile はuidをキーとして永続化されるユーザープロフィールを表す。
// CreatedAt、Status、Role、Team、CrossTeamは作成後に同期処理から変更されない。
type Profile struct {
	UID           string        `json:"uid"`
	Email         string        `json:"email"`
	EmailVerified bool          `json:"emailVerified"`
	Name          string        `json:"name"`
	CreatedAt     time.Time     `json:"createdAt"`
	LastLogin     time.Time     `json:"lastLogin"`
	UpdatedAt     time.Time     `json:"updatedAt"`
	Status        ProfileStatus `json:"status"`
	Role          ProfileRole   `json:"role"`
	Team          string        `json:"team"`
	CrossTeam     string        `json:"crossTeam"`
}

// ProfileUpdate はログインごとに反映する部分更新のフィールド集合。
// ここに含まれないフィールドは既存の値を維持する。
type ProfileUpdate struct {
	Email         string
	EmailVerified bool
	LastLogin     time.Time
	UpdatedAt     time.Time
}

// Apply は部分更新をプロフィールに反映する。
func (u ProfileUpdate) Apply(p *Profile) {
	p.Email = u.Email
	p.EmailVerified = u.EmailVerified
	p.LastLogin = u.LastLogin
	p.UpdatedAt = u.UpdatedAt
}
