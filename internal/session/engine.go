// Package session は出席セッションのオンライン/オフライン遷移を判定するエンジンを提供する。
// エンジンは呼び出しをまたいで状態をキャッシュせず、毎回ストアを読み直す。
// 再起動後の正しさはストアの永続性のみに依存する。
package session

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hitoshi/kintai/internal/model"
	"github.com/hitoshi/kintai/internal/repository"
)

// 遷移を引き起こすコマンドリテラル。これ以外のテキストは無視される。
const (
	CommandOnline  = "online"
	CommandOffline = "offline"
)

// Engine はセッション遷移の判定ロジックを持つ。
// is_leaderは表示の分岐にのみ使われ、永続化の判定には一切影響しない。
type Engine struct {
	store  repository.SessionRepository
	logger *slog.Logger
}

// NewEngine はEngineの新しいインスタンスを生成する。
func NewEngine(store repository.SessionRepository, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{store: store, logger: logger}
}

// HandleCommand はコマンドテキストを正規化し、セッション遷移を判定・適用する。
// ストレージ障害はmodel.NewStorageErrorでラップして返す。「セッションなし」と
// 解釈すると二重オープンを許してしまうため、呼び出し元は必ず失敗として扱うこと。
//
// 冪等性: online連打は2回目以降AlreadyOnlineでストア無変更、
// offline連打は2回目以降NotOnlineでストア無変更となる。
// 重複配送されたメッセージに対して安全。
func (e *Engine) HandleCommand(ctx context.Context, userID string, isLeader bool, text string, now time.Time) (*model.TransitionResult, error) {
	command := strings.ToLower(strings.TrimSpace(text))

	switch command {
	case CommandOnline:
		return e.handleOnline(ctx, userID, isLeader, now)
	case CommandOffline:
		return e.handleOffline(ctx, userID, isLeader, now)
	default:
		return &model.TransitionResult{
			Kind:     model.TransitionIgnored,
			UserID:   userID,
			IsLeader: isLeader,
		}, nil
	}
}

func (e *Engine) handleOnline(ctx context.Context, userID string, isLeader bool, now time.Time) (*model.TransitionResult, error) {
	existing, err := e.store.Find(ctx, userID)
	if err != nil {
		return nil, model.NewStorageError(fmt.Errorf("セッションの取得に失敗しました: %w", err))
	}

	// 既存セッションがある場合は一切変更しない（開始時刻の上書き禁止）
	if existing != nil {
		return &model.TransitionResult{
			Kind:      model.TransitionAlreadyOnline,
			UserID:    userID,
			IsLeader:  isLeader,
			StartedAt: existing.StartedAt,
		}, nil
	}

	if err := e.store.Upsert(ctx, userID, now); err != nil {
		return nil, model.NewStorageError(fmt.Errorf("セッションの作成に失敗しました: %w", err))
	}

	e.logger.Info("session opened",
		slog.String("user_id", userID),
		slog.Bool("is_leader", isLeader),
		slog.Time("started_at", now),
	)

	return &model.TransitionResult{
		Kind:      model.TransitionOpened,
		UserID:    userID,
		IsLeader:  isLeader,
		StartedAt: now,
	}, nil
}

func (e *Engine) handleOffline(ctx context.Context, userID string, isLeader bool, now time.Time) (*model.TransitionResult, error) {
	existing, err := e.store.Find(ctx, userID)
	if err != nil {
		return nil, model.NewStorageError(fmt.Errorf("セッションの取得に失敗しました: %w", err))
	}

	if existing == nil {
		return &model.TransitionResult{
			Kind:     model.TransitionNotOnline,
			UserID:   userID,
			IsLeader: isLeader,
		}, nil
	}

	duration := now.Sub(existing.StartedAt)
	clockSkew := false
	if duration < 0 {
		// 時計の巻き戻り。負の継続時間は表示しない。
		duration = 0
		clockSkew = true
		e.logger.Warn("clock skew detected, clamping duration to zero",
			slog.String("user_id", userID),
			slog.Time("started_at", existing.StartedAt),
			slog.Time("now", now),
		)
	}

	if err := e.store.Delete(ctx, userID); err != nil {
		return nil, model.NewStorageError(fmt.Errorf("セッションの削除に失敗しました: %w", err))
	}

	e.logger.Info("session closed",
		slog.String("user_id", userID),
		slog.Bool("is_leader", isLeader),
		slog.Duration("duration", duration),
	)

	return &model.TransitionResult{
		Kind:      model.TransitionClosed,
		UserID:    userID,
		IsLeader:  isLeader,
		StartedAt: existing.StartedAt,
		EndedAt:   now,
		Duration:  duration,
		ClockSkew: clockSkew,
	}, nil
}

// FormatDuration は継続時間を「時間+分」で整形する。1時間未満は時を省略する。
// 例: 0秒 → "0m"、3600秒 → "1h 0m"、7260秒 → "2h 1m"。
func FormatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int(d.Seconds())
	hours := total / 3600
	minutes := (total % 3600) / 60
	if hours > 0 {
		return fmt.Sprintf("%dh %dm", hours, minutes)
	}
	return fmt.Sprintf("%dm", minutes)
}
