// Package model はドメインモデルを定義する。
package model

import "time"

// Session はユーザーの出席セッション（onlineからofflineまでの区間）を表す。
// user_idごとに同時に存在できるセッションは最大1つ（ストアの主キーで保証）。
type Session struct {
	UserID    string
	StartedAt time.Time
}

// TransitionKind はセッション遷移の種別を表す。
type TransitionKind string

const (
	// TransitionOpened は新規セッションが開始されたことを示す。
	TransitionOpened TransitionKind = "opened"
	// TransitionAlreadyOnline は既にセッションが存在し、状態変更がなかったことを示す。
	TransitionAlreadyOnline TransitionKind = "already_online"
	// TransitionClosed はセッションが終了されたことを示す。
	TransitionClosed TransitionKind = "closed"
	// TransitionNotOnline はセッションが存在せず、状態変更がなかったことを示す。
	TransitionNotOnline TransitionKind = "not_online"
	// TransitionIgnored はコマンドとして解釈されなかったことを示す。
	TransitionIgnored TransitionKind = "ignored"
)

// TransitionResult はエンジンの判定結果を表す一時的な値。永続化しない。
// レンダラーが表示内容を組み立てるために必要な情報をすべて含む。
type TransitionResult struct {
	Kind     TransitionKind
	UserID   string
	IsLeader bool

	// StartedAt はセッション開始時刻。Opened/Closedで設定される。
	StartedAt time.Time
	// EndedAt はセッション終了時刻。Closedで設定される。
	EndedAt time.Time
	// Duration はセッション継続時間。Closedで設定され、負値にはならない。
	Duration time.Duration
	// ClockSkew は時計の巻き戻りによりDurationを0にクランプしたことを示す。
	ClockSkew bool
}
