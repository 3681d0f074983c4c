// Package identity はIdPのセッション状態変化イベントの購読と発行を提供する。
//
// Sourceは購読時に現在のセッション状態を1回通知し、
// 以降は発行された順にイベントを通知する。
package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hitoshi/profilesync/internal/model"
)

// ErrInvalidEvent はイベントの形式が不正な場合に返される。
var ErrInvalidEvent = errors.New("invalid identity event")

// Handler はイベントを受け取るコールバック。
// 1つの購読に対しては常に単一のgoroutineから発行順に呼ばれる。
type Handler func(ctx context.Context, event model.IdentityEvent)

// Unsubscribe は購読を解除する。複数回呼んでも安全。
type Unsubscribe func()

// Source はセッション状態変化イベントの購読インターフェース。
type Source interface {
	// Subscribe はhandlerを登録する。
	// 登録直後に現在のセッション状態（セッションなしを含む）で1回呼ばれる。
	Subscribe(ctx context.Context, handler Handler) (Unsubscribe, error)
}

// Publisher はセッション状態変化イベントの発行インターフェース。
type Publisher interface {
	Publish(ctx context.Context, event model.IdentityEvent) error
}

// stamp はイベントIDと発生時刻が未設定の場合に補完する。
func stamp(event model.IdentityEvent) model.IdentityEvent {
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}
	return event
}

// EncodeEvent はイベントをJSONに変換する。
func EncodeEvent(event model.IdentityEvent) ([]byte, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("failed to encode identity event: %w", err)
	}
	return data, nil
}

// DecodeEvent はJSONからイベントを復元する。
// "identity"がnullまたは省略されている場合はセッションなしのイベントになる。
// uidの検証は行わない（Validateを参照）。
func DecodeEvent(data []byte) (model.IdentityEvent, error) {
	var event model.IdentityEvent
	if err := json.Unmarshal(data, &event); err != nil {
		return model.IdentityEvent{}, fmt.Errorf("%w: %v", ErrInvalidEvent, err)
	}
	return event, nil
}

// Validate はセッションありのイベントがuidを持つことを検証する。
func Validate(event model.IdentityEvent) error {
	if event.Identity != nil && strings.TrimSpace(event.Identity.UID) == "" {
		return fmt.Errorf("%w: identity.uid is required", ErrInvalidEvent)
	}
	return nil
}
