package reconcile

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hitoshi/profilesync/internal/model"
	"github.com/hitoshi/profilesync/internal/repository"
)

type stubState struct {
	identity *model.IdentityHandle
	failure  error
}

func (s *stubState) CurrentIdentity() *model.IdentityHandle { return s.identity }
func (s *stubState) LastFailure() error                     { return s.failure }

// TestIntrospector_Inspect_NoSession はセッションがない場合に空のレポートを返すことを検証する。
func TestIntrospector_Inspect_NoSession(t *testing.T) {
	store := &mockStore{}
	i := NewIntrospector(&stubState{}, store, NewPolicy(fixedClock, nil), 0, nil)

	report := i.Inspect(context.Background())

	if report.Identity != nil || report.Profile != nil || report.Err != nil {
		t.Errorf("Inspect() = %+v, want empty report", report)
	}
	if finds, _, _ := store.calls(); finds != 0 {
		t.Errorf("store was called %d times", finds)
	}
}

// TestIntrospector_Inspect_ReturnsProfileAndLastFailure はプロフィールと最後の同期失敗を返すことを検証する。
func TestIntrospector_Inspect_ReturnsProfileAndLastFailure(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryProfileRepo()
	_ = store.Create(ctx, &model.Profile{UID: "u1", Name: "a", Role: model.ProfileRoleUser})

	lastErr := model.NewSyncError(model.FailureWrite, "u1", errors.New("quota exceeded"))
	state := &stubState{identity: &model.IdentityHandle{UID: "u1"}, failure: lastErr}
	i := NewIntrospector(state, store, NewPolicy(fixedClock, nil), 0, nil)

	report := i.Inspect(ctx)

	if report.Identity == nil || report.Identity.UID != "u1" {
		t.Errorf("Identity = %+v, want u1", report.Identity)
	}
	if report.Profile == nil || report.Profile.Name != "a" {
		t.Errorf("Profile = %+v, want profile named a", report.Profile)
	}
	if !errors.Is(report.Err, model.ErrWriteFailure) {
		t.Errorf("Err = %v, want write failure", report.Err)
	}
}

// TestIntrospector_Inspect_ProfileMissing はレコードがない場合にProfileがnilになることを検証する。
func TestIntrospector_Inspect_ProfileMissing(t *testing.T) {
	state := &stubState{identity: &model.IdentityHandle{UID: "u1"}}
	i := NewIntrospector(state, repository.NewMemoryProfileRepo(), NewPolicy(fixedClock, nil), 0, nil)

	report := i.Inspect(context.Background())

	if report.Profile != nil {
		t.Errorf("Profile = %+v, want nil", report.Profile)
	}
	if report.Err != nil {
		t.Errorf("Err = %v, want nil", report.Err)
	}
}

// TestIntrospector_Inspect_ReadFailure は読み取り失敗が分類されて返ることを検証する。
func TestIntrospector_Inspect_ReadFailure(t *testing.T) {
	store := &mockStore{
		findByUIDFn: func(ctx context.Context, uid string) (*model.Profile, error) {
			return nil, errors.New("connection reset")
		},
	}
	state := &stubState{identity: &model.IdentityHandle{UID: "u1"}}
	i := NewIntrospector(state, store, NewPolicy(fixedClock, nil), 0, nil)

	report := i.Inspect(context.Background())

	if !errors.Is(report.Err, model.ErrReadFailure) {
		t.Errorf("Err = %v, want read failure", report.Err)
	}
}

// TestIntrospector_Inspect_Timeout は応答しないストアがタイムアウトとして報告されることを検証する。
func TestIntrospector_Inspect_Timeout(t *testing.T) {
	release := make(chan struct{})
	defer close(release)

	store := &mockStore{
		findByUIDFn: func(ctx context.Context, uid string) (*model.Profile, error) {
			<-release
			return nil, nil
		},
	}
	state := &stubState{identity: &model.IdentityHandle{UID: "u1"}}
	i := NewIntrospector(state, store, NewPolicy(fixedClock, nil), 20*time.Millisecond, nil)

	report := i.Inspect(context.Background())

	if !errors.Is(report.Err, model.ErrTimeoutFailure) {
		t.Errorf("Err = %v, want timeout failure", report.Err)
	}
}

// TestIntrospector_ForceCreate_NoSession はセッションがない場合にErrNoSessionを返すことを検証する。
func TestIntrospector_ForceCreate_NoSession(t *testing.T) {
	store := &mockStore{}
	i := NewIntrospector(&stubState{}, store, NewPolicy(fixedClock, nil), 0, nil)

	_, err := i.ForceCreate(context.Background())

	if !errors.Is(err, ErrNoSession) {
		t.Errorf("ForceCreate() error = %v, want ErrNoSession", err)
	}
	if _, creates, _ := store.calls(); creates != 0 {
		t.Errorf("Create was called %d times", creates)
	}
}

// TestIntrospector_ForceCreate_OverwritesExisting は既存レコードがあっても既定値で作成し直すことを検証する。
func TestIntrospector_ForceCreate_OverwritesExisting(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryProfileRepo()
	_ = store.Create(ctx, &model.Profile{
		UID:       "u1",
		Name:      "corrupted",
		Role:      model.ProfileRoleAdmin,
		Status:    model.ProfileStatusSuspended,
		CreatedAt: fixedNow.Add(-time.Hour),
	})

	state := &stubState{identity: &model.IdentityHandle{UID: "u1", Email: "a@b.com"}}
	i := NewIntrospector(state, store, NewPolicy(fixedClock, nil), 0, nil)

	report, err := i.ForceCreate(ctx)
	if err != nil {
		t.Fatalf("ForceCreate() error = %v", err)
	}

	if report.Profile == nil {
		t.Fatal("report should include the re-read profile")
	}
	got := report.Profile
	if got.Name != "a" || got.Role != model.ProfileRoleUser || got.Status != model.ProfileStatusActive {
		t.Errorf("profile = %+v, want defaults", *got)
	}
	if !got.CreatedAt.Equal(fixedNow) {
		t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, fixedNow)
	}
}

// TestIntrospector_ForceCreate_SharesPolicyDefaults は同期経路と同じ既定値で作成することを検証する。
func TestIntrospector_ForceCreate_SharesPolicyDefaults(t *testing.T) {
	ctx := context.Background()
	policy := NewPolicy(fixedClock, nil)
	id := model.IdentityHandle{UID: "u1", DisplayName: "Alice"}

	store := repository.NewMemoryProfileRepo()
	i := NewIntrospector(&stubState{identity: &id}, store, policy, 0, nil)
	report, err := i.ForceCreate(ctx)
	if err != nil {
		t.Fatalf("ForceCreate() error = %v", err)
	}

	want := policy.Decide(id, nil).Profile
	if *report.Profile != *want {
		t.Errorf("profile = %+v, want %+v", *report.Profile, *want)
	}
}

// TestIntrospector_ForceCreate_WriteFailure は書き込み失敗がエラーとして返ることを検証する。
func TestIntrospector_ForceCreate_WriteFailure(t *testing.T) {
	store := &mockStore{
		createFn: func(ctx context.Context, profile *model.Profile) error {
			return errors.New("read-only replica")
		},
	}
	state := &stubState{identity: &model.IdentityHandle{UID: "u1"}}
	i := NewIntrospector(state, store, NewPolicy(fixedClock, nil), 0, nil)

	report, err := i.ForceCreate(context.Background())

	if !errors.Is(err, model.ErrWriteFailure) {
		t.Errorf("ForceCreate() error = %v, want write failure", err)
	}
	if report.Err == nil {
		t.Error("report should carry the failure")
	}
}

// TestEngine_ImplementsStateReader はEngineがStateReaderを満たすことを検証する。
func TestEngine_ImplementsStateReader(t *testing.T) {
	var _ StateReader = (*Engine)(nil)
}
