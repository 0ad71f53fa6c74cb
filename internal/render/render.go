// Package render は遷移結果からDiscord向け通知メッセージを組み立てる。
// 純粋な値変換であり、I/Oは行わない。
package render

import (
	"fmt"
	"time"

	"github.com/hitoshi/kintai/internal/model"
	"github.com/hitoshi/kintai/internal/session"
)

// カラーパレット。リーダーと一般メンバーで2種類の固定プロファイルを持つ。
const (
	colorLeaderOnline  = 0xF1C40F
	colorMemberOnline  = 0x2ECC71
	colorLeaderOffline = 0x2F3136
	colorMemberOffline = 0xE74C3C
)

// transientLifetime は一時通知（already online / not online）の表示時間。
const transientLifetime = 3 * time.Second

// Profile は表示に必要な送信者の情報。
type Profile struct {
	DisplayName string
	Mention     string // 例: "<@123456789>"
	AvatarURL   string // 空の場合はauthor/thumbnailを省略する
}

// Render は遷移結果を表示用メッセージに変換する。
// Ignoredの場合は何も表示しないためnilを返す。
func Render(res *model.TransitionResult, profile Profile) *model.Message {
	switch res.Kind {
	case model.TransitionOpened:
		return renderOpened(res, profile)
	case model.TransitionAlreadyOnline:
		return &model.Message{
			Content:     fmt.Sprintf("⚠️ %s, already online!", profile.Mention),
			DeleteAfter: transientLifetime,
		}
	case model.TransitionClosed:
		return renderClosed(res, profile)
	case model.TransitionNotOnline:
		return &model.Message{
			Content:     fmt.Sprintf("❓ %s, you were not marked online.", profile.Mention),
			DeleteAfter: transientLifetime,
		}
	default:
		return nil
	}
}

// RenderFailure はストレージ障害などの内部エラー向けの一般通知を返す。
// 内部詳細は含めない（詳細はログのみに残す）。
func RenderFailure(profile Profile) *model.Message {
	return &model.Message{
		Content:     fmt.Sprintf("⚠️ %s, something went wrong — please try again later.", profile.Mention),
		DeleteAfter: transientLifetime,
	}
}

func renderOpened(res *model.TransitionResult, profile Profile) *model.Message {
	var greeting string
	var color int
	if res.IsLeader {
		greeting = fmt.Sprintf("🛡️ **Order is restored. Leader %s is watching.**", profile.DisplayName)
		color = colorLeaderOnline
	} else {
		greeting = fmt.Sprintf("✅ **%s** has started their session.", profile.DisplayName)
		color = colorMemberOnline
	}

	embed := &model.Embed{
		Title:       "Status: ONLINE",
		Description: greeting,
		Color:       color,
		Fields: []model.EmbedField{
			{Name: "Arrival", Value: discordTimestamp(res.StartedAt)},
		},
	}
	applyProfile(embed, profile, true)

	return &model.Message{Embed: embed}
}

func renderClosed(res *model.TransitionResult, profile Profile) *model.Message {
	var statusMsg string
	var color int
	if res.IsLeader {
		statusMsg = fmt.Sprintf("Leader **%s** is offline — stay active and hold the line.", profile.DisplayName)
		color = colorLeaderOffline
	} else {
		statusMsg = fmt.Sprintf("🔴 **%s** session ended.", profile.DisplayName)
		color = colorMemberOffline
	}

	embed := &model.Embed{
		Title:       "Status: OFFLINE",
		Description: statusMsg,
		Color:       color,
		Fields: []model.EmbedField{
			{Name: "Logged In", Value: discordTimestamp(res.StartedAt), Inline: true},
			{Name: "Logged Out", Value: discordTimestamp(res.EndedAt), Inline: true},
			{Name: "Total Session", Value: fmt.Sprintf("⏳ `%s`", session.FormatDuration(res.Duration))},
		},
	}
	applyProfile(embed, profile, false)

	return &model.Message{Embed: embed}
}

// applyProfile はアバターがある場合のみauthor（とオプションでthumbnail）を設定する。
func applyProfile(embed *model.Embed, profile Profile, thumbnail bool) {
	if profile.AvatarURL == "" {
		return
	}
	embed.Author = &model.EmbedAuthor{
		Name:    profile.DisplayName,
		IconURL: profile.AvatarURL,
	}
	if thumbnail {
		embed.Thumbnail = &model.EmbedThumbnail{URL: profile.AvatarURL}
	}
}

// discordTimestamp はDiscordのタイムスタンプ記法（短時刻表示）に整形する。
func discordTimestamp(t time.Time) string {
	return fmt.Sprintf("🕒 <t:%d:t>", t.Unix())
}
