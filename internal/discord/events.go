// Package discord はDiscordゲートウェイ/REST APIへのアダプタを提供する。
// ゲートウェイからの受信イベントをドメインの値に変換し、
// レンダラーの出力をチャンネルへ送信する配送機構であり、判定ロジックは持たない。
package discord

import (
	"encoding/json"
	"fmt"
	"time"
)

// ゲートウェイのopcode。
const (
	opDispatch       = 0
	opHeartbeat      = 1
	opIdentify       = 2
	opReconnect      = 7
	opInvalidSession = 9
	opHello          = 10
	opHeartbeatACK   = 11
)

// intentGuildMessages等はIdentifyで要求するイベント範囲。
// メンバーのロール、メッセージ本文、対象チャンネルのメッセージが必要。
const (
	intentGuildMembers   = 1 << 1
	intentGuildMessages  = 1 << 9
	intentMessageContent = 1 << 15

	identifyIntents = intentGuildMembers | intentGuildMessages | intentMessageContent
)

// payload はゲートウェイの共通フレーム。
type payload struct {
	Op int             `json:"op"`
	D  json.RawMessage `json:"d,omitempty"`
	S  int64           `json:"s,omitempty"`
	T  string          `json:"t,omitempty"`
}

// helloData はop=10のペイロード。
type helloData struct {
	HeartbeatInterval int `json:"heartbeat_interval"` // ミリ秒
}

// identifyData はop=2で送信する認証ペイロード。
type identifyData struct {
	Token      string             `json:"token"`
	Intents    int                `json:"intents"`
	Properties identifyProperties `json:"properties"`
}

type identifyProperties struct {
	OS      string `json:"os"`
	Browser string `json:"browser"`
	Device  string `json:"device"`
}

// readyData はREADYディスパッチのうち必要な部分。
type readyData struct {
	User User `json:"user"`
}

// User はDiscordユーザーを表す。
type User struct {
	ID         string `json:"id"`
	Username   string `json:"username"`
	GlobalName string `json:"global_name"`
	Avatar     string `json:"avatar"`
	Bot        bool   `json:"bot"`
}

// Member はギルド内のメンバー情報（ニックネームとロール集合）を表す。
type Member struct {
	Nick  string   `json:"nick"`
	Roles []string `json:"roles"`
}

// MessageEvent はMESSAGE_CREATEディスパッチから抽出した受信イベント。
type MessageEvent struct {
	ID        string    `json:"id"`
	GuildID   string    `json:"guild_id"`
	ChannelID string    `json:"channel_id"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	Author    User      `json:"author"`
	Member    *Member   `json:"member"`
}

// DisplayName は表示名を返す。ニックネーム > グローバル名 > ユーザー名の優先順。
func (e *MessageEvent) DisplayName() string {
	if e.Member != nil && e.Member.Nick != "" {
		return e.Member.Nick
	}
	if e.Author.GlobalName != "" {
		return e.Author.GlobalName
	}
	return e.Author.Username
}

// Mention は送信者へのメンション記法を返す。
func (e *MessageEvent) Mention() string {
	return fmt.Sprintf("<@%s>", e.Author.ID)
}

// AvatarURL は送信者のアバター画像URLを返す。アバター未設定の場合は空文字。
func (e *MessageEvent) AvatarURL() string {
	if e.Author.Avatar == "" {
		return ""
	}
	return fmt.Sprintf("https://cdn.discordapp.com/avatars/%s/%s.png", e.Author.ID, e.Author.Avatar)
}

// HasRole は送信者が指定ロールを持つかを返す。
func (e *MessageEvent) HasRole(roleID string) bool {
	if roleID == "" || e.Member == nil {
		return false
	}
	for _, r := range e.Member.Roles {
		if r == roleID {
			return true
		}
	}
	return false
}
