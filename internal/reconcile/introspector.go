package reconcile

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/hitoshi/profilesync/internal/model"
	"github.com/hitoshi/profilesync/internal/repository"
)

// ErrNoSession は現在セッションが観測されていない場合に返される。
var ErrNoSession = errors.New("no authenticated session")

// StateReader は同期エンジンの観測状態を読み取るインターフェース。
// Engineが実装する。
type StateReader interface {
	CurrentIdentity() *model.IdentityHandle
	LastFailure() error
}

// Report は診断結果を表す。
type Report struct {
	Identity *model.IdentityHandle `json:"identity"`
	Profile  *model.Profile        `json:"profile"`
	Err      error                 `json:"-"`
}

// Introspector は運用診断用に同期処理の読み取り経路を再実行する。
// 通常のユーザー経路からは到達させないこと。
type Introspector struct {
	state   StateReader
	store   repository.ProfileRepository
	policy  *Policy
	timeout time.Duration
	logger  *slog.Logger
}

// NewIntrospector はIntrospectorを生成する。
func NewIntrospector(
	state StateReader,
	store repository.ProfileRepository,
	policy *Policy,
	timeout time.Duration,
	logger *slog.Logger,
) *Introspector {
	if timeout <= 0 {
		timeout = DefaultStoreTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Introspector{
		state:   state,
		store:   store,
		policy:  policy,
		timeout: timeout,
		logger:  logger,
	}
}

// Inspect は現在のidentityとプロフィールを返す。
// プロフィールの読み取りに失敗した場合はその失敗を、
// 成功した場合はエンジンが最後に報告した同期失敗をErrに設定する。
func (i *Introspector) Inspect(ctx context.Context) Report {
	id := i.state.CurrentIdentity()
	if id == nil {
		return Report{}
	}

	profile, err := callWithTimeout(ctx, i.timeout, func(ctx context.Context) (*model.Profile, error) {
		return i.store.FindByUID(ctx, id.UID)
	})
	if err != nil {
		return Report{Identity: id, Err: classify(model.FailureRead, id.UID, err)}
	}

	return Report{Identity: id, Profile: profile, Err: i.state.LastFailure()}
}

// ForceCreate は既存レコードの有無に関わらず、既定値でプロフィールを作成する。
// データ破損からの手動復旧用で、team等の管理フィールドも既定値に戻る。
func (i *Introspector) ForceCreate(ctx context.Context) (Report, error) {
	id := i.state.CurrentIdentity()
	if id == nil {
		return Report{}, ErrNoSession
	}

	action := i.policy.CreateAction(*id)
	_, err := callWithTimeout(ctx, i.timeout, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, applyAction(ctx, i.store, action)
	})
	if err != nil {
		syncErr := classify(model.FailureWrite, id.UID, err)
		i.logger.Error("forced profile create failed",
			slog.String("uid", id.UID),
			slog.String("kind", string(syncErr.Kind)),
			slog.String("error", err.Error()),
		)
		return Report{Identity: id, Err: syncErr}, syncErr
	}

	i.logger.Warn("profile force-created from debug surface",
		slog.String("uid", id.UID),
	)
	return i.Inspect(ctx), nil
}
