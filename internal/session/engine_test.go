package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hitoshi/kintai/internal/model"
)

// --- モック ---

type mockStore struct {
	findFn   func(ctx context.Context, userID string) (*model.Session, error)
	upsertFn func(ctx context.Context, userID string, startedAt time.Time) error
	deleteFn func(ctx context.Context, userID string) error
}

func (m *mockStore) Find(ctx context.Context, userID string) (*model.Session, error) {
	if m.findFn != nil {
		return m.findFn(ctx, userID)
	}
	return nil, nil
}

func (m *mockStore) Upsert(ctx context.Context, userID string, startedAt time.Time) error {
	if m.upsertFn != nil {
		return m.upsertFn(ctx, userID, startedAt)
	}
	return nil
}

func (m *mockStore) Delete(ctx context.Context, userID string) error {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, userID)
	}
	return nil
}

// memStore はインメモリのステートフルモック。遷移シーケンスの検証に使う。
type memStore struct {
	sessions map[string]time.Time
}

func newMemStore() *memStore {
	return &memStore{sessions: make(map[string]time.Time)}
}

func (m *memStore) Find(ctx context.Context, userID string) (*model.Session, error) {
	started, ok := m.sessions[userID]
	if !ok {
		return nil, nil
	}
	return &model.Session{UserID: userID, StartedAt: started}, nil
}

func (m *memStore) Upsert(ctx context.Context, userID string, startedAt time.Time) error {
	m.sessions[userID] = startedAt
	return nil
}

func (m *memStore) Delete(ctx context.Context, userID string) error {
	delete(m.sessions, userID)
	return nil
}

// --- テスト ---

// onlineで新規セッションが開始されることを検証する。
func TestHandleCommand_Online_OpensSession(t *testing.T) {
	store := newMemStore()
	engine := NewEngine(store, nil)
	now := time.Date(2025, 11, 1, 12, 0, 0, 0, time.UTC)

	res, err := engine.HandleCommand(context.Background(), "user-a", false, "online", now)
	if err != nil {
		t.Fatalf("HandleCommand returned error: %v", err)
	}
	if res.Kind != model.TransitionOpened {
		t.Errorf("Kind = %q, want %q", res.Kind, model.TransitionOpened)
	}
	if !res.StartedAt.Equal(now) {
		t.Errorf("StartedAt = %v, want %v", res.StartedAt, now)
	}

	session, _ := store.Find(context.Background(), "user-a")
	if session == nil {
		t.Fatal("expected session to be persisted")
	}
	if !session.StartedAt.Equal(now) {
		t.Errorf("persisted StartedAt = %v, want %v", session.StartedAt, now)
	}
}

// online連打が{Opened, AlreadyOnline}となり、2回目がストア無変更であることを検証する。
func TestHandleCommand_OnlineTwice_Idempotent(t *testing.T) {
	store := newMemStore()
	engine := NewEngine(store, nil)
	t0 := time.Date(2025, 11, 1, 12, 0, 0, 0, time.UTC)
	t1 := t0.Add(10 * time.Minute)

	first, err := engine.HandleCommand(context.Background(), "user-a", false, "online", t0)
	if err != nil {
		t.Fatalf("first online returned error: %v", err)
	}
	second, err := engine.HandleCommand(context.Background(), "user-a", false, "online", t1)
	if err != nil {
		t.Fatalf("second online returned error: %v", err)
	}

	if first.Kind != model.TransitionOpened {
		t.Errorf("first Kind = %q, want %q", first.Kind, model.TransitionOpened)
	}
	if second.Kind != model.TransitionAlreadyOnline {
		t.Errorf("second Kind = %q, want %q", second.Kind, model.TransitionAlreadyOnline)
	}

	// 元の開始時刻が上書きされていないこと
	session, _ := store.Find(context.Background(), "user-a")
	if !session.StartedAt.Equal(t0) {
		t.Errorf("StartedAt = %v, want original %v (must not be overwritten)", session.StartedAt, t0)
	}
}

// セッションなしでofflineを送るとNotOnlineとなり、ストアが変更されないことを検証する。
func TestHandleCommand_OfflineWithoutOnline_NotOnline(t *testing.T) {
	store := newMemStore()
	engine := NewEngine(store, nil)
	now := time.Now().UTC()

	res, err := engine.HandleCommand(context.Background(), "user-a", false, "offline", now)
	if err != nil {
		t.Fatalf("HandleCommand returned error: %v", err)
	}
	if res.Kind != model.TransitionNotOnline {
		t.Errorf("Kind = %q, want %q", res.Kind, model.TransitionNotOnline)
	}
	if len(store.sessions) != 0 {
		t.Error("store should remain empty")
	}
}

// online→offlineの完全なサイクルで継続時間が計算され、レコードが消えることを検証する。
func TestHandleCommand_FullCycle_ComputesDuration(t *testing.T) {
	store := newMemStore()
	engine := NewEngine(store, nil)
	start := time.Date(2025, 11, 1, 12, 0, 0, 0, time.UTC)
	end := start.Add(5400 * time.Second) // 1h30m

	if _, err := engine.HandleCommand(context.Background(), "user-a", false, "online", start); err != nil {
		t.Fatalf("online returned error: %v", err)
	}
	res, err := engine.HandleCommand(context.Background(), "user-a", false, "offline", end)
	if err != nil {
		t.Fatalf("offline returned error: %v", err)
	}

	if res.Kind != model.TransitionClosed {
		t.Errorf("Kind = %q, want %q", res.Kind, model.TransitionClosed)
	}
	if res.Duration != 90*time.Minute {
		t.Errorf("Duration = %v, want %v", res.Duration, 90*time.Minute)
	}
	if !res.StartedAt.Equal(start) || !res.EndedAt.Equal(end) {
		t.Errorf("timestamps = (%v, %v), want (%v, %v)", res.StartedAt, res.EndedAt, start, end)
	}
	if len(store.sessions) != 0 {
		t.Error("session should be removed after offline")
	}
}

// 時計の巻き戻り（now < started_at）で継続時間が0にクランプされ、
// ClockSkewフラグが立つことを検証する。
func TestHandleCommand_ClockSkew_ClampsToZero(t *testing.T) {
	store := newMemStore()
	engine := NewEngine(store, nil)
	start := time.Date(2025, 11, 1, 12, 0, 0, 0, time.UTC)
	skewed := start.Add(-1 * time.Hour)

	if _, err := engine.HandleCommand(context.Background(), "user-a", false, "online", start); err != nil {
		t.Fatalf("online returned error: %v", err)
	}
	res, err := engine.HandleCommand(context.Background(), "user-a", false, "offline", skewed)
	if err != nil {
		t.Fatalf("offline returned error: %v", err)
	}

	if res.Duration != 0 {
		t.Errorf("Duration = %v, want 0", res.Duration)
	}
	if !res.ClockSkew {
		t.Error("expected ClockSkew flag to be set")
	}
	if res.Kind != model.TransitionClosed {
		t.Errorf("Kind = %q, want %q (skew is not an error)", res.Kind, model.TransitionClosed)
	}
}

// ストレージ障害が「セッションなし」と解釈されず、エラーとして伝播することを検証する。
// 障害を不在と混同すると二重オープンを許し、一意性の不変条件が壊れる。
func TestHandleCommand_StorageError_Propagates(t *testing.T) {
	storageErr := errors.New("connection refused")
	upsertCalled := false
	store := &mockStore{
		findFn: func(ctx context.Context, userID string) (*model.Session, error) {
			return nil, storageErr
		},
		upsertFn: func(ctx context.Context, userID string, startedAt time.Time) error {
			upsertCalled = true
			return nil
		},
	}
	engine := NewEngine(store, nil)

	_, err := engine.HandleCommand(context.Background(), "user-a", false, "online", time.Now())
	if err == nil {
		t.Fatal("expected storage error to propagate, got nil")
	}
	if !errors.Is(err, storageErr) {
		t.Errorf("error chain should contain the storage error, got: %v", err)
	}
	if !model.IsStorageError(err) {
		t.Errorf("error should be classified as a storage error, got: %v", err)
	}
	if upsertCalled {
		t.Error("Upsert must not be called when Find fails")
	}

	_, err = engine.HandleCommand(context.Background(), "user-a", false, "offline", time.Now())
	if err == nil {
		t.Fatal("expected storage error to propagate for offline, got nil")
	}
	if !model.IsStorageError(err) {
		t.Errorf("offline storage failure should be classified as a storage error, got: %v", err)
	}
}

// コマンド以外のテキストがIgnoredとなり、ストアに触れないことを検証する。
func TestHandleCommand_NonCommand_Ignored(t *testing.T) {
	findCalled := false
	store := &mockStore{
		findFn: func(ctx context.Context, userID string) (*model.Session, error) {
			findCalled = true
			return nil, nil
		},
	}
	engine := NewEngine(store, nil)

	for _, text := range []string{"hello", "onlinee", "off line", ""} {
		res, err := engine.HandleCommand(context.Background(), "user-a", false, text, time.Now())
		if err != nil {
			t.Fatalf("HandleCommand(%q) returned error: %v", text, err)
		}
		if res.Kind != model.TransitionIgnored {
			t.Errorf("HandleCommand(%q) Kind = %q, want %q", text, res.Kind, model.TransitionIgnored)
		}
	}
	if findCalled {
		t.Error("store must not be read for non-command text")
	}
}

// コマンドの大文字小文字と前後空白が正規化されることを検証する。
func TestHandleCommand_NormalizesText(t *testing.T) {
	store := newMemStore()
	engine := NewEngine(store, nil)

	res, err := engine.HandleCommand(context.Background(), "user-a", false, "  ONLINE \n", time.Now())
	if err != nil {
		t.Fatalf("HandleCommand returned error: %v", err)
	}
	if res.Kind != model.TransitionOpened {
		t.Errorf("Kind = %q, want %q", res.Kind, model.TransitionOpened)
	}
}

// is_leaderが結果に引き継がれ、永続化の判定に影響しないことを検証する。
func TestHandleCommand_LeaderFlag_PresentationOnly(t *testing.T) {
	store := newMemStore()
	engine := NewEngine(store, nil)
	now := time.Now().UTC()

	res, err := engine.HandleCommand(context.Background(), "leader-b", true, "online", now)
	if err != nil {
		t.Fatalf("HandleCommand returned error: %v", err)
	}
	if !res.IsLeader {
		t.Error("expected IsLeader to be carried through")
	}

	// リーダーでも一意性ロジックは同一: 2回目はAlreadyOnline
	res, err = engine.HandleCommand(context.Background(), "leader-b", true, "online", now)
	if err != nil {
		t.Fatalf("second online returned error: %v", err)
	}
	if res.Kind != model.TransitionAlreadyOnline {
		t.Errorf("Kind = %q, want %q", res.Kind, model.TransitionAlreadyOnline)
	}
}

// 継続時間の整形を検証する。
func TestFormatDuration(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{0, "0m"},
		{45 * time.Minute, "45m"},
		{3600 * time.Second, "1h 0m"},
		{7260 * time.Second, "2h 1m"},
		{90 * time.Minute, "1h 30m"},
		{59 * time.Second, "0m"},
		{-5 * time.Minute, "0m"},
	}
	for _, tt := range tests {
		if got := FormatDuration(tt.d); got != tt.want {
			t.Errorf("FormatDuration(%v) = %q, want %q", tt.d, got, tt.want)
		}
	}
}
