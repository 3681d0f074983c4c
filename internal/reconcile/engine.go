package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hitoshi/profilesync/internal/identity"
	"github.com/hitoshi/profilesync/internal/model"
	"github.com/hitoshi/profilesync/internal/repository"
)

// DefaultStoreTimeout はストア呼び出し1回あたりの既定の上限時間。
const DefaultStoreTimeout = 10 * time.Second

var (
	// ErrEngineStarted はStartが2回呼ばれた場合に返される。
	ErrEngineStarted = errors.New("reconcile engine already started")
	// ErrEngineStopped は停止済みのエンジンでStartが呼ばれた場合に返される。
	ErrEngineStopped = errors.New("reconcile engine stopped")

	errMissingUID = errors.New("identity handle has no uid")
)

// MetricsRecorder は同期処理のメトリクス記録インターフェース。
type MetricsRecorder interface {
	RecordReconcile(outcome string)
	RecordFailure(kind string)
	RecordStoreLatency(op string, duration time.Duration)
	RecordReady()
}

type nopMetrics struct{}

func (nopMetrics) RecordReconcile(string)                   {}
func (nopMetrics) RecordFailure(string)                     {}
func (nopMetrics) RecordStoreLatency(string, time.Duration) {}
func (nopMetrics) RecordReady()                             {}

// EngineConfig は同期エンジンの設定。
type EngineConfig struct {
	// StoreTimeout はストア呼び出し1回あたりの上限時間。0以下の場合はDefaultStoreTimeout。
	StoreTimeout time.Duration
	// Metrics はnilの場合は記録しない。
	Metrics MetricsRecorder
}

// Engine はIdPのセッションイベントを購読し、プロフィールを同期する。
//
// 1イベントあたりストアへの読み込みと書き込みを最大1回ずつ行う。
// 同一uidに対する書き込みの直列化は行わず、毎回最新の状態を読み直す。
// 書き込みの失敗やタイムアウトは報告のみ行い、初回の準備完了通知を妨げない。
type Engine struct {
	source  identity.Source
	store   repository.ProfileRepository
	policy  *Policy
	logger  *slog.Logger
	metrics MetricsRecorder
	timeout time.Duration

	// 準備完了ラッチ。エンジンごとに1回だけ閉じられる。
	readyOnce sync.Once
	ready     chan struct{}

	stopped atomic.Bool

	mu          sync.Mutex
	started     bool
	onReady     func()
	unsubscribe identity.Unsubscribe
	current     *model.IdentityHandle
	lastFailure *model.SyncError
}

// NewEngine はEngineを生成する。
func NewEngine(
	source identity.Source,
	store repository.ProfileRepository,
	policy *Policy,
	logger *slog.Logger,
	cfg EngineConfig,
) *Engine {
	if cfg.StoreTimeout <= 0 {
		cfg.StoreTimeout = DefaultStoreTimeout
	}
	if cfg.Metrics == nil {
		cfg.Metrics = nopMetrics{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		source:  source,
		store:   store,
		policy:  policy,
		logger:  logger,
		metrics: cfg.Metrics,
		timeout: cfg.StoreTimeout,
		ready:   make(chan struct{}),
	}
}

// Start はイベントソースを購読する。
// onReadyは最初のイベントの処理完了後に1回だけ呼ばれる（成功・失敗を問わない）。
func (e *Engine) Start(ctx context.Context, onReady func()) error {
	e.mu.Lock()
	if e.stopped.Load() {
		e.mu.Unlock()
		return ErrEngineStopped
	}
	if e.started {
		e.mu.Unlock()
		return ErrEngineStarted
	}
	e.started = true
	e.onReady = onReady
	e.mu.Unlock()

	unsubscribe, err := e.source.Subscribe(ctx, e.handle)
	if err != nil {
		// 購読に失敗した場合は再試行できるようにする
		e.mu.Lock()
		e.started = false
		e.onReady = nil
		e.mu.Unlock()
		return fmt.Errorf("failed to subscribe to identity events: %w", err)
	}

	e.mu.Lock()
	if e.stopped.Load() {
		// 購読中にStopされた
		e.mu.Unlock()
		unsubscribe()
		return ErrEngineStopped
	}
	e.unsubscribe = unsubscribe
	e.mu.Unlock()

	e.logger.Info("reconcile engine started",
		slog.Duration("store_timeout", e.timeout),
	)
	return nil
}

// Stop は購読を解除する。Start前や複数回の呼び出しも安全。
// 処理中の書き込みは待たない。
func (e *Engine) Stop() {
	if e.stopped.Swap(true) {
		return
	}

	e.mu.Lock()
	unsubscribe := e.unsubscribe
	e.unsubscribe = nil
	e.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
		e.logger.Info("reconcile engine stopped")
	}
}

// Ready は初回の準備完了時に閉じられるチャネルを返す。
func (e *Engine) Ready() <-chan struct{} {
	return e.ready
}

// IsReady は準備完了が通知済みかどうかを返す。
func (e *Engine) IsReady() bool {
	select {
	case <-e.ready:
		return true
	default:
		return false
	}
}

// CurrentIdentity は最後に観測したセッションのidentityを返す。
// セッションがない場合はnilを返す。
func (e *Engine) CurrentIdentity() *model.IdentityHandle {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.current == nil {
		return nil
	}
	id := *e.current
	return &id
}

// LastFailure は最後に報告された同期失敗を返す。
// 以降の同期が成功した場合はnilに戻る。
func (e *Engine) LastFailure() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.lastFailure == nil {
		return nil
	}
	return e.lastFailure
}

// handle はイベント1件を処理する。イベントソースから発行順に呼ばれる。
func (e *Engine) handle(ctx context.Context, event model.IdentityEvent) {
	if e.stopped.Load() {
		return
	}

	if !event.HasSession() {
		e.setCurrent(nil)
		e.metrics.RecordReconcile("no_session")
		e.logger.Debug("no session, skipping profile sync",
			slog.String("event_id", event.ID),
		)
		e.signalReady()
		return
	}

	// uidのないidentityは現在のセッションとして扱わない。
	// 直前のユーザーを診断や強制作成の対象に残さないようクリアする。
	id := *event.Identity
	if id.UID != "" {
		e.setCurrent(&id)
	} else {
		e.setCurrent(nil)
	}

	if err := e.reconcile(ctx, id); err != nil {
		e.report(event.ID, err)
	} else {
		e.clearFailure()
	}

	e.signalReady()
}

// reconcile はプロフィールを読み込み、Policyの決定に従って書き込む。
func (e *Engine) reconcile(ctx context.Context, id model.IdentityHandle) *model.SyncError {
	if id.UID == "" {
		return model.NewSyncError(model.FailureRead, "", errMissingUID)
	}

	start := time.Now()
	existing, err := callWithTimeout(ctx, e.timeout, func(ctx context.Context) (*model.Profile, error) {
		return e.store.FindByUID(ctx, id.UID)
	})
	e.metrics.RecordStoreLatency("get", time.Since(start))
	if err != nil {
		return classify(model.FailureRead, id.UID, err)
	}

	action := e.policy.Decide(id, existing)

	start = time.Now()
	_, err = callWithTimeout(ctx, e.timeout, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, applyAction(ctx, e.store, action)
	})
	e.metrics.RecordStoreLatency(string(action.Kind), time.Since(start))
	if err != nil {
		return classify(model.FailureWrite, id.UID, err)
	}

	e.metrics.RecordReconcile(string(action.Kind))
	e.logger.Info("profile synchronized",
		slog.String("uid", id.UID),
		slog.String("action", string(action.Kind)),
		slog.Bool("email_verified", id.EmailVerified),
	)
	return nil
}

func (e *Engine) setCurrent(id *model.IdentityHandle) {
	e.mu.Lock()
	e.current = id
	e.mu.Unlock()
}

func (e *Engine) report(eventID string, err *model.SyncError) {
	e.mu.Lock()
	e.lastFailure = err
	e.mu.Unlock()

	e.metrics.RecordFailure(string(err.Kind))
	e.logger.Error("profile sync failed",
		slog.String("event_id", eventID),
		slog.String("uid", err.UID),
		slog.String("kind", string(err.Kind)),
		slog.String("error", err.Error()),
	)
}

func (e *Engine) clearFailure() {
	e.mu.Lock()
	e.lastFailure = nil
	e.mu.Unlock()
}

func (e *Engine) signalReady() {
	e.readyOnce.Do(func() {
		close(e.ready)
		e.metrics.RecordReady()

		e.mu.Lock()
		onReady := e.onReady
		e.mu.Unlock()

		e.logger.Info("initial auth bootstrap complete")
		if onReady != nil {
			onReady()
		}
	})
}

// applyAction はWriteActionをストアに書き込む。
func applyAction(ctx context.Context, store repository.ProfileRepository, action WriteAction) error {
	switch action.Kind {
	case ActionCreate:
		return store.Create(ctx, action.Profile)
	case ActionUpdate:
		return store.MergeUpdate(ctx, action.UID, *action.Update)
	default:
		return fmt.Errorf("unknown write action: %q", action.Kind)
	}
}

// callWithTimeout はfnを上限時間付きで実行する。
// fnがコンテキストを無視して戻らない場合でも、上限時間経過で呼び出し元に制御を返す。
func callWithTimeout[T any](ctx context.Context, timeout time.Duration, fn func(context.Context) (T, error)) (T, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		value T
		err   error
	}
	ch := make(chan result, 1)
	go func() {
		v, err := fn(ctx)
		ch <- result{value: v, err: err}
	}()

	select {
	case r := <-ch:
		return r.value, r.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// classify はストアのエラーを同期失敗の分類に変換する。
func classify(kind model.FailureKind, uid string, err error) *model.SyncError {
	if errors.Is(err, context.DeadlineExceeded) {
		kind = model.FailureTimeout
	}
	return model.NewSyncError(kind, uid, err)
}
