// Package bot は受信イベントからエンジン呼び出し・レンダリング・送信への
// 明示的なフローを提供する。ボット側に隠れた可変状態は持たず、
// 依存はセッションストアのハンドルと静的な設定のみ。
package bot

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/hitoshi/kintai/internal/config"
	"github.com/hitoshi/kintai/internal/discord"
	"github.com/hitoshi/kintai/internal/metrics"
	"github.com/hitoshi/kintai/internal/model"
	"github.com/hitoshi/kintai/internal/render"
	"github.com/hitoshi/kintai/internal/session"
)

// Sender はメッセージ送信・削除のインターフェース。
// discord.RESTClientの部分集合として定義する。
type Sender interface {
	CreateMessage(ctx context.Context, channelID string, msg *model.Message) (string, error)
	DeleteMessage(ctx context.Context, channelID, messageID string) error
}

// LatencyProvider はゲートウェイの直近レイテンシを提供する。
type LatencyProvider interface {
	Latency() time.Duration
}

// Handler は受信メッセージを処理する。ゲートウェイの読み取りループから
// 同期的に呼ばれるため、呼び出しは常に直列となる。
type Handler struct {
	cfg     *config.Config
	engine  *session.Engine
	sender  Sender
	latency LatencyProvider
	metrics metrics.BotMetrics
	logger  *slog.Logger

	startTime time.Time

	// clock / schedule はテストで差し替える
	clock    func() time.Time
	schedule func(d time.Duration, f func())
}

// NewHandler はHandlerの新しいインスタンスを生成する。
func NewHandler(
	cfg *config.Config,
	engine *session.Engine,
	sender Sender,
	latency LatencyProvider,
	botMetrics metrics.BotMetrics,
	logger *slog.Logger,
) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		cfg:       cfg,
		engine:    engine,
		sender:    sender,
		latency:   latency,
		metrics:   botMetrics,
		logger:    logger,
		startTime: time.Now(),
		clock:     func() time.Time { return time.Now().UTC() },
		schedule:  func(d time.Duration, f func()) { time.AfterFunc(d, f) },
	}
}

// HandleMessage は受信イベントを処理する。
// 診断コマンドはスコープフィルタより先に処理する（対象ギルド内であればどのチャンネルでも有効）。
func (h *Handler) HandleMessage(ctx context.Context, ev *discord.MessageEvent) {
	content := strings.TrimSpace(ev.Content)

	if content == h.cfg.CommandPrefix+"status" {
		h.handleStatus(ctx, ev)
		return
	}

	// スコープフィルタ: 設定済みのguild+channelに完全一致しない限りエンジンは発火しない
	if !h.cfg.ScopeConfigured() {
		return
	}
	if ev.GuildID != h.cfg.TargetGuildID || ev.ChannelID != h.cfg.TargetChannelID {
		return
	}

	command := strings.ToLower(content)
	if command != session.CommandOnline && command != session.CommandOffline {
		return
	}

	// 元メッセージの削除はベストエフォート。失敗しても通知は送る。
	if err := h.sender.DeleteMessage(ctx, ev.ChannelID, ev.ID); err != nil {
		h.logger.Warn("failed to delete triggering message",
			slog.String("message_id", ev.ID),
			slog.String("error", err.Error()),
		)
	}

	isLeader := ev.HasRole(h.cfg.PrivilegedRoleID)
	profile := render.Profile{
		DisplayName: ev.DisplayName(),
		Mention:     ev.Mention(),
		AvatarURL:   ev.AvatarURL(),
	}

	res, err := h.engine.HandleCommand(ctx, ev.Author.ID, isLeader, command, h.clock())
	if err != nil {
		// ストレージ障害を「セッションなし」と解釈してはならない。
		// 一般通知を送り、詳細はログにのみ残す。
		if model.IsStorageError(err) && h.metrics != nil {
			h.metrics.RecordStorageError()
		}
		h.logger.Error("session transition failed",
			slog.String("user_id", ev.Author.ID),
			slog.String("command", command),
			slog.String("error", err.Error()),
		)
		h.send(ctx, ev.ChannelID, render.RenderFailure(profile))
		return
	}

	if h.metrics != nil {
		h.metrics.RecordTransition(string(res.Kind))
	}

	msg := render.Render(res, profile)
	if msg == nil {
		return
	}
	h.send(ctx, ev.ChannelID, msg)
}

// send はメッセージを送信し、一時通知であれば期限後の削除を予約する。
func (h *Handler) send(ctx context.Context, channelID string, msg *model.Message) {
	id, err := h.sender.CreateMessage(ctx, channelID, msg)
	if err != nil {
		h.logger.Error("failed to send notification",
			slog.String("channel_id", channelID),
			slog.String("error", err.Error()),
		)
		return
	}

	if msg.Transient() && id != "" {
		h.schedule(msg.DeleteAfter, func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := h.sender.DeleteMessage(ctx, channelID, id); err != nil {
				h.logger.Warn("failed to delete transient notice",
					slog.String("message_id", id),
					slog.String("error", err.Error()),
				)
			}
		})
	}
}
