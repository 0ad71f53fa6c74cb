package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hitoshi/kintai/internal/model"
)

// sessionKeyPrefix はRedisキー空間のプレフィックス。
const sessionKeyPrefix = "kintai:session:"

// RedisSessionRepo はRedisを使用したセッションリポジトリ。
// 値はJSONで保持し、TTLは設定しない（セッションはofflineまで無期限）。
type RedisSessionRepo struct {
	client *redis.Client
}

// NewRedisSessionRepo はRedisSessionRepoを生成する。
func NewRedisSessionRepo(client *redis.Client) *RedisSessionRepo {
	return &RedisSessionRepo{client: client}
}

func sessionKey(userID string) string {
	return sessionKeyPrefix + userID
}

// Find は指定ユーザーのセッションを取得する。見つからない場合はnilを返す。
func (r *RedisSessionRepo) Find(ctx context.Context, userID string) (*model.Session, error) {
	val, err := r.client.Get(ctx, sessionKey(userID)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find session: %w", err)
	}

	var session model.Session
	if err := json.Unmarshal([]byte(val), &session); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}

	return &session, nil
}

// Upsert は指定ユーザーのセッションを作成または上書きする。
func (r *RedisSessionRepo) Upsert(ctx context.Context, userID string, startedAt time.Time) error {
	data, err := json.Marshal(&model.Session{
		UserID:    userID,
		StartedAt: startedAt.UTC(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	if err := r.client.Set(ctx, sessionKey(userID), data, 0).Err(); err != nil {
		return fmt.Errorf("failed to upsert session: %w", err)
	}
	return nil
}

// Delete は指定ユーザーのセッションを削除する。存在しない場合は何もしない。
func (r *RedisSessionRepo) Delete(ctx context.Context, userID string) error {
	if err := r.client.Del(ctx, sessionKey(userID)).Err(); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// PingContext はRedisの死活確認を行う。ヘルスチェックから利用する。
func (r *RedisSessionRepo) PingContext(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// compile-time interface check
var _ SessionRepository = (*RedisSessionRepo)(nil)
var _ Pinger = (*RedisSessionRepo)(nil)
