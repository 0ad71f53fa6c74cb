package model

import "time"

// EmbedAuthor はembedの著者表示を表す。
type EmbedAuthor struct {
	Name    string `json:"name"`
	IconURL string `json:"icon_url,omitempty"`
}

// EmbedThumbnail はembedのサムネイル画像を表す。
type EmbedThumbnail struct {
	URL string `json:"url"`
}

// EmbedField はembedの1フィールド（ラベルと値の組）を表す。
type EmbedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline,omitempty"`
}

// Embed はDiscordのembedワイヤーフォーマットに対応する構造化メッセージ。
// フィールドは追加順に表示される。
type Embed struct {
	Title       string          `json:"title,omitempty"`
	Description string          `json:"description,omitempty"`
	Color       int             `json:"color,omitempty"`
	Author      *EmbedAuthor    `json:"author,omitempty"`
	Thumbnail   *EmbedThumbnail `json:"thumbnail,omitempty"`
	Fields      []EmbedField    `json:"fields,omitempty"`
}

// Message は送信すべき内容を記述する値。I/Oアクションではない。
// DeleteAfterが正の場合、送信後にその時間が経過したら削除する（一時通知）。
type Message struct {
	Content     string
	Embed       *Embed
	DeleteAfter time.Duration
}

// Transient はこのメッセージが自動削除対象の一時通知かどうかを返す。
func (m *Message) Transient() bool {
	return m.DeleteAfter > 0
}
