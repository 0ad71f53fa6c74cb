// Package repository はセッションデータ永続化のインターフェースと実装を定義する。
package repository

import (
	"context"
	"time"

	"github.com/hitoshi/kintai/internal/model"
)

// SessionRepository は出席セッションの永続化インターフェース。
// user_idごとに最大1レコードの一意性はストア側（主キー/キー空間）で保証する。
type SessionRepository interface {
	// Find は指定ユーザーのセッションを取得する。見つからない場合はnilを返す。
	// ストレージ障害はエラーとして返し、「セッションなし」と混同してはならない。
	Find(ctx context.Context, userID string) (*model.Session, error)

	// Upsert は指定ユーザーのセッションをstartedAtで作成または上書きする。
	Upsert(ctx context.Context, userID string, startedAt time.Time) error

	// Delete は指定ユーザーのセッションを削除する。存在しない場合は何もしない。
	Delete(ctx context.Context, userID string) error
}

// Pinger はストアの死活確認インターフェース。ヘルスチェックから利用する。
type Pinger interface {
	PingContext(ctx context.Context) error
}
