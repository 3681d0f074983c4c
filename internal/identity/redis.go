package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/hitoshi/profilesync/internal/model"
	"github.com/redis/go-redis/v9"
)

// RedisConfig はRedis pub/subによるイベント配送の設定。
type RedisConfig struct {
	// Channel はイベントを発行するpub/subチャネル名。
	Channel string
	// SnapshotKey は最新のイベントを保持するキー。購読時の初回通知に使用する。
	SnapshotKey string
}

// RedisSource はRedis pub/subを購読するイベントソース。
// 購読開始後にスナップショットを読み込むため、初回通知と直後のイベントが
// 同一内容で重複する場合がある（同期処理は冪等なため許容する）。
type RedisSource struct {
	client *redis.Client
	config RedisConfig
	logger *slog.Logger
}

// NewRedisSource はRedisSourceを生成する。
func NewRedisSource(client *redis.Client, config RedisConfig, logger *slog.Logger) *RedisSource {
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisSource{client: client, config: config, logger: logger}
}

// Subscribe はチャネルを購読し、スナップショットを最初に通知する。
func (s *RedisSource) Subscribe(ctx context.Context, handler Handler) (Unsubscribe, error) {
	pubsub := s.client.Subscribe(ctx, s.config.Channel)

	// 購読の確立を待つ
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe to %s: %w", s.config.Channel, err)
	}

	initial, err := s.snapshot(ctx)
	if err != nil {
		pubsub.Close()
		return nil, err
	}

	done := make(chan struct{})
	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			close(done)
			if err := pubsub.Close(); err != nil {
				s.logger.Warn("failed to close redis subscription",
					slog.String("channel", s.config.Channel),
					slog.String("error", err.Error()),
				)
			}
		})
	}

	go s.deliver(ctx, pubsub.Channel(), done, initial, handler)

	s.logger.Info("subscribed to identity events",
		slog.String("channel", s.config.Channel),
	)
	return unsubscribe, nil
}

func (s *RedisSource) deliver(ctx context.Context, ch <-chan *redis.Message, done <-chan struct{}, initial model.IdentityEvent, handler Handler) {
	if !isClosed(done) {
		handler(ctx, initial)
	}

	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			event, err := DecodeEvent([]byte(msg.Payload))
			if err != nil {
				s.logger.Warn("dropping malformed identity event",
					slog.String("channel", msg.Channel),
					slog.String("error", err.Error()),
				)
				continue
			}
			if isClosed(done) {
				return
			}
			handler(ctx, event)
		}
	}
}

// snapshot はスナップショットキーから現在のセッション状態を読み込む。
// キーが存在しない場合はセッションなしとして扱う。
func (s *RedisSource) snapshot(ctx context.Context) (model.IdentityEvent, error) {
	data, err := s.client.Get(ctx, s.config.SnapshotKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return model.IdentityEvent{}, nil
	}
	if err != nil {
		return model.IdentityEvent{}, fmt.Errorf("failed to read identity snapshot: %w", err)
	}
	return DecodeEvent(data)
}

// RedisPublisher はスナップショットを更新してからイベントをpub/subに発行する。
type RedisPublisher struct {
	client *redis.Client
	config RedisConfig
}

// NewRedisPublisher はRedisPublisherを生成する。
func NewRedisPublisher(client *redis.Client, config RedisConfig) *RedisPublisher {
	return &RedisPublisher{client: client, config: config}
}

// Publish はスナップショットの更新と発行をMULTI/EXECで行う。
func (p *RedisPublisher) Publish(ctx context.Context, event model.IdentityEvent) error {
	data, err := EncodeEvent(stamp(event))
	if err != nil {
		return err
	}

	_, err = p.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, p.config.SnapshotKey, data, 0)
		pipe.Publish(ctx, p.config.Channel, data)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to publish identity event: %w", err)
	}
	return nil
}

func isClosed(ch <-chan struct{}) bool {
	select {
	case <-ch:
		return true
	default:
		return false
	}
}

// compile-time interface check
var (
	_ Source    = (*RedisSource)(nil)
	_ Publisher = (*RedisPublisher)(nil)
)
