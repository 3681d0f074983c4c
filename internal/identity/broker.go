package identity

import (
	"context"
	"log/slog"
	"sync"

	"github.com/hitoshi/profilesync/internal/model"
)

// defaultQueueSize は購読者ごとの未配信イベントの上限。
// 上限に達するとPublishは配信できるまで待機する。
const defaultQueueSize = 64

// Broker はプロセス内のイベントソース兼パブリッシャー。
// 最後に発行されたイベントをスナップショットとして保持し、
// 新しい購読者には最初にスナップショットを通知する。
type Broker struct {
	logger    *slog.Logger
	queueSize int

	// mu はスナップショットの更新と配信順序を保護する
	mu       sync.Mutex
	snapshot model.IdentityEvent
	subs     map[*subscriber]struct{}
}

type subscriber struct {
	queue chan model.IdentityEvent
	done  chan struct{}
	once  sync.Once
}

func (s *subscriber) close() {
	s.once.Do(func() { close(s.done) })
}

// NewBroker はBrokerを生成する。初期状態は「セッションなし」。
func NewBroker(logger *slog.Logger) *Broker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Broker{
		logger:    logger,
		queueSize: defaultQueueSize,
		subs:      make(map[*subscriber]struct{}),
	}
}

// Subscribe はhandlerを登録し、現在のスナップショットを最初に通知する。
// ctxがキャンセルされると配信を終了する。
func (b *Broker) Subscribe(ctx context.Context, handler Handler) (Unsubscribe, error) {
	sub := &subscriber{
		queue: make(chan model.IdentityEvent, b.queueSize),
		done:  make(chan struct{}),
	}

	b.mu.Lock()
	sub.queue <- b.snapshot
	b.subs[sub] = struct{}{}
	b.mu.Unlock()

	go b.deliver(ctx, sub, handler)

	return func() { b.remove(sub) }, nil
}

// Publish はスナップショットを更新し、全購読者にイベントを配信する。
// ctxは配信開始前にのみ確認する。開始後は全購読者への配信（または購読解除）を待つため、
// 一部の購読者だけが受け取った状態でエラーを返すことはない。
// 購読者のキューが満杯の間は、その購読者がイベントを処理するか解除されるまで待機する。
func (b *Broker) Publish(ctx context.Context, event model.IdentityEvent) error {
	event = stamp(event)

	b.mu.Lock()
	defer b.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	b.snapshot = event
	for sub := range b.subs {
		select {
		case sub.queue <- event:
		case <-sub.done:
		}
	}

	b.logger.Debug("identity event published",
		slog.String("event_id", event.ID),
		slog.Bool("session", event.HasSession()),
	)
	return nil
}

// SubscriberCount は現在の購読者数を返す。テスト用。
func (b *Broker) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

func (b *Broker) remove(sub *subscriber) {
	// Publishが配信待ちで止まっている場合に備え、ロック取得前に閉じる
	sub.close()

	b.mu.Lock()
	delete(b.subs, sub)
	b.mu.Unlock()
}

func (b *Broker) deliver(ctx context.Context, sub *subscriber, handler Handler) {
	defer b.remove(sub)

	for {
		select {
		case <-sub.done:
			return
		case <-ctx.Done():
			return
		case event := <-sub.queue:
			// 解除済みの購読にはキューに残ったイベントも配信しない
			select {
			case <-sub.done:
				return
			default:
			}
			handler(ctx, event)
		}
	}
}

// compile-time interface check
var (
	_ Source    = (*Broker)(nil)
	_ Publisher = (*Broker)(nil)
)
