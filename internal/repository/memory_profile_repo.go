package repository

import (
	"context"
	"fmt"
	"sync"

	"github.com/hitoshi/profilesync/internal/model"
)

// MemoryProfileRepo はプロセス内マップを使用したプロフィールリポジトリ。
// STORE_DRIVER=memory での起動とテストで使用する。
// 読み書きともにコピーを受け渡し、呼び出し側との値の共有を避ける。
type MemoryProfileRepo struct {
	mu       sync.RWMutex
	profiles map[string]model.Profile
}

// NewMemoryProfileRepo はMemoryProfileRepoを生成する。
func NewMemoryProfileRepo() *MemoryProfileRepo {
	return &MemoryProfileRepo{profiles: make(map[string]model.Profile)}
}

// FindByUID は指定uidのプロフィールを取得する。見つからない場合はnilを返す。
func (r *MemoryProfileRepo) FindByUID(ctx context.Context, uid string) (*model.Profile, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.profiles[uid]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

// Create はプロフィール全体を書き込む。
func (r *MemoryProfileRepo) Create(ctx context.Context, p *model.Profile) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if p == nil || p.UID == "" {
		return fmt.Errorf("failed to create profile: uid is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	r.profiles[p.UID] = *p
	return nil
}

// MergeUpdate はログイン由来のフィールドのみを更新する。
func (r *MemoryProfileRepo) MergeUpdate(ctx context.Context, uid string, u model.ProfileUpdate) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.profiles[uid]
	if !ok {
		return fmt.Errorf("%w: %s", ErrProfileNotFound, uid)
	}
	u.Apply(&p)
	r.profiles[uid] = p
	return nil
}

// Len は保持しているプロフィール数を返す。テスト用。
func (r *MemoryProfileRepo) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.profiles)
}

// compile-time interface check
var _ ProfileRepository = (*MemoryProfileRepo)(nil)
