package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/profilesync/internal/model"
)

// PostgresProfileRepo はPostgreSQLを使用したプロフィールリポジトリ。
type PostgresProfileRepo struct {
	db *sql.DB
}

// NewPostgresProfileRepo はPostgresProfileRepoを生成する。
func NewPostgresProfileRepo(db *sql.DB) *PostgresProfileRepo {
	return &PostgresProfileRepo{db: db}
}

// FindByUID は指定uidのプロフィールを取得する。見つからない場合はnilを返す。
func (r *PostgresProfileRepo) FindByUID(ctx context.Context, uid string) (*model.Profile, error) {
	p := &model.Profile{}
	var status, role string
	err := r.db.QueryRowContext(ctx,
		`SELECT uid, email, email_verified, name, created_at, last_login, updated_at,
		        status, role, team, cross_team
		 FROM profiles WHERE uid = $1`,
		uid,
	).Scan(
		&p.UID, &p.Email, &p.EmailVerified, &p.Name,
		&p.CreatedAt, &p.LastLogin, &p.UpdatedAt,
		&status, &role, &p.Team, &p.CrossTeam,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find profile by uid: %w", err)
	}

	p.Status = model.ProfileStatus(status)
	p.Role = model.ProfileRole(role)
	return p, nil
}

// Create はプロフィール全体を書き込む。既存行がある場合は全フィールドを上書きする。
func (r *PostgresProfileRepo) Create(ctx context.Context, p *model.Profile) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO profiles (uid, email, email_verified, name, created_at, last_login, updated_at,
		                       status, role, team, cross_team)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 ON CONFLICT (uid) DO UPDATE SET
		   email = EXCLUDED.email,
		   email_verified = EXCLUDED.email_verified,
		   name = EXCLUDED.name,
		   created_at = EXCLUDED.created_at,
		   last_login = EXCLUDED.last_login,
		   updated_at = EXCLUDED.updated_at,
		   status = EXCLUDED.status,
		   role = EXCLUDED.role,
		   team = EXCLUDED.team,
		   cross_team = EXCLUDED.cross_team`,
		p.UID, p.Email, p.EmailVerified, p.Name, p.CreatedAt, p.LastLogin, p.UpdatedAt,
		string(p.Status), string(p.Role), p.Team, p.CrossTeam,
	)
	if err != nil {
		return fmt.Errorf("failed to create profile: %w", err)
	}
	return nil
}

// MergeUpdate はログイン由来のフィールドのみを更新する。
// role、status、team等の管理者が設定するフィールドには触れない。
func (r *PostgresProfileRepo) MergeUpdate(ctx context.Context, uid string, u model.ProfileUpdate) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE profiles
		 SET email = $2, email_verified = $3, last_login = $4, updated_at = $5
		 WHERE uid = $1`,
		uid, u.Email, u.EmailVerified, u.LastLogin, u.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update profile: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%w: %s", ErrProfileNotFound, uid)
	}
	return nil
}

// compile-time interface check
var _ ProfileRepository = (*PostgresProfileRepo)(nil)
