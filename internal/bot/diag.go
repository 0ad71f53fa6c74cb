package bot

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"time"

	"github.com/prometheus/procfs"

	"github.com/hitoshi/kintai/internal/discord"
	"github.com/hitoshi/kintai/internal/model"
	"github.com/hitoshi/kintai/internal/session"
)

const diagColor = 0x3498DB

// handleStatus は特権ロール保持者向けの自己診断コマンドを処理する。
// レイテンシ・稼働時間・メモリ使用量の読み取り専用レポートを返す。
func (h *Handler) handleStatus(ctx context.Context, ev *discord.MessageEvent) {
	// 対象ギルド外（またはギルドフィルタ未設定）では応答しない
	if h.cfg.TargetGuildID == "" || ev.GuildID != h.cfg.TargetGuildID {
		return
	}

	// 認可チェックはエンジンに到達する前に行う
	if !ev.HasRole(h.cfg.PrivilegedRoleID) {
		h.logger.Warn("unauthorized status command",
			slog.String("error", model.NewUnauthorizedError(ev.Author.ID).Error()),
		)
		return
	}

	var latency time.Duration
	if h.latency != nil {
		latency = h.latency.Latency()
	}
	uptime := time.Since(h.startTime)

	msg := &model.Message{
		Embed: &model.Embed{
			Title: "⚙️ Self-Diagnostic",
			Color: diagColor,
			Fields: []model.EmbedField{
				{Name: "📡 Latency", Value: fmt.Sprintf("`%dms`", latency.Milliseconds()), Inline: true},
				{Name: "⏳ Uptime", Value: fmt.Sprintf("`%s`", session.FormatDuration(uptime)), Inline: true},
				{Name: "💾 RAM", Value: fmt.Sprintf("`%.1fMB`", residentMemoryMB()), Inline: true},
			},
		},
	}
	h.send(ctx, ev.ChannelID, msg)
}

// residentMemoryMB はプロセスのRSSをMB単位で返す。
// /procが読めない環境ではGoランタイムの確保量で代替する。
func residentMemoryMB() float64 {
	if p, err := procfs.Self(); err == nil {
		if stat, err := p.Stat(); err == nil {
			return float64(stat.ResidentMemory()) / (1024 * 1024)
		}
	}

	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	return float64(ms.Sys) / (1024 * 1024)
}
