package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hitoshi/kintai/internal/model"
)

// PostgresSessionRepo はPostgreSQLを使用したセッションリポジトリ。
type PostgresSessionRepo struct {
	db *sql.DB
}

// NewPostgresSessionRepo はPostgresSessionRepoを生成する。
func NewPostgresSessionRepo(db *sql.DB) *PostgresSessionRepo {
	return &PostgresSessionRepo{db: db}
}

// Find は指定ユーザーのセッションを取得する。見つからない場合はnilを返す。
func (r *PostgresSessionRepo) Find(ctx context.Context, userID string) (*model.Session, error) {
	session := &model.Session{}
	err := r.db.QueryRowContext(ctx,
		`SELECT user_id, started_at
		 FROM sessions
		 WHERE user_id = $1`,
		userID,
	).Scan(&session.UserID, &session.StartedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find session: %w", err)
	}

	return session, nil
}

// Upsert は指定ユーザーのセッションを作成または上書きする。
// 2回目の呼び出しはstarted_atを完全に置き換える（upsertセマンティクス）。
func (r *PostgresSessionRepo) Upsert(ctx context.Context, userID string, startedAt time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO sessions (user_id, started_at)
		 VALUES ($1, $2)
		 ON CONFLICT (user_id) DO UPDATE SET started_at = EXCLUDED.started_at`,
		userID, startedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert session: %w", err)
	}
	return nil
}

// Delete は指定ユーザーのセッションを削除する。存在しない場合は何もしない。
func (r *PostgresSessionRepo) Delete(ctx context.Context, userID string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM sessions WHERE user_id = $1`,
		userID,
	)
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// compile-time interface check
var _ SessionRepository = (*PostgresSessionRepo)(nil)
