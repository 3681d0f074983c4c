package identity

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/hitoshi/profilesync/internal/model"
	"github.com/redis/go-redis/v9"
)

// setupRedis はテスト用Redisに接続する。接続できない場合はスキップする。
func setupRedis(t *testing.T) (*redis.Client, RedisConfig) {
	t.Helper()

	url := os.Getenv("TEST_REDIS_URL")
	if url == "" {
		url = "redis://localhost:6379/15"
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		t.Fatalf("invalid TEST_REDIS_URL: %v", err)
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		t.Skipf("テスト用Redisに接続できません（スキップ）: %v", err)
	}

	suffix := uuid.New().String()
	cfg := RedisConfig{
		Channel:     "test:identity:events:" + suffix,
		SnapshotKey: "test:identity:current:" + suffix,
	}
	t.Cleanup(func() {
		client.Del(context.Background(), cfg.SnapshotKey)
		client.Close()
	})
	return client, cfg
}

func TestRedisSource_InitialNoSessionWithoutSnapshot(t *testing.T) {
	client, cfg := setupRedis(t)
	src := NewRedisSource(client, cfg, nil)
	rec := newRecorder()

	unsubscribe, err := src.Subscribe(context.Background(), rec.handle)
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	defer unsubscribe()

	events := rec.waitFor(t, 1)
	if events[0].HasSession() {
		t.Errorf("initial event should be no-session, got %+v", events[0])
	}
}

func TestRedisPublisher_SnapshotAndDelivery(t *testing.T) {
	client, cfg := setupRedis(t)
	ctx := context.Background()
	pub := NewRedisPublisher(client, cfg)

	if err := pub.Publish(ctx, model.IdentityEvent{Identity: &model.IdentityHandle{UID: "u1"}}); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	src := NewRedisSource(client, cfg, nil)
	rec := newRecorder()
	unsubscribe, err := src.Subscribe(ctx, rec.handle)
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	defer unsubscribe()

	first := rec.waitFor(t, 1)
	if !first[0].HasSession() || first[0].Identity.UID != "u1" {
		t.Errorf("initial event = %+v, want snapshot for u1", first[0])
	}

	if err := pub.Publish(ctx, model.IdentityEvent{Identity: &model.IdentityHandle{UID: "u2"}}); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	events := rec.waitFor(t, 2)
	if got := events[1]; !got.HasSession() || got.Identity.UID != "u2" {
		t.Errorf("second event = %+v, want u2", got)
	}
}

func TestRedisSource_UnsubscribeIsIdempotent(t *testing.T) {
	client, cfg := setupRedis(t)
	src := NewRedisSource(client, cfg, nil)
	rec := newRecorder()

	unsubscribe, err := src.Subscribe(context.Background(), rec.handle)
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	rec.waitFor(t, 1)

	unsubscribe()
	unsubscribe()

	pub := NewRedisPublisher(client, cfg)
	_ = pub.Publish(context.Background(), model.IdentityEvent{Identity: &model.IdentityHandle{UID: "u3"}})

	time.Sleep(100 * time.Millisecond)
	if n := rec.count(); n != 1 {
		t.Errorf("received %d events after unsubscribe, want 1", n)
	}
}
