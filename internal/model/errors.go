package model

import (
	"errors"
	"fmt"
)

// BotError は統一エラーフォーマットを表す。
// ユーザーへ見せる一般メッセージと、ログ向けのカテゴリを含む。
// 内部詳細はWrappedにのみ保持し、表示メッセージには含めない。
type BotError struct {
	Code     string // エラーコード
	Message  string // ユーザー向けメッセージ
	Category string // カテゴリ: storage, auth
	Wrapped  error  // 原因となった内部エラー（表示しない）
}

// Error はerrorインターフェースを実装する。
func (e *BotError) Error() string {
	if e.Wrapped != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Wrapped)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap はerrors.Is / errors.As連鎖のために内部エラーを返す。
func (e *BotError) Unwrap() error {
	return e.Wrapped
}

// 定義済みエラーコード
const (
	ErrCodeStorage      = "STORAGE_ERROR"
	ErrCodeUnauthorized = "UNAUTHORIZED"
)

// NewStorageError はストア入出力失敗のエラーを生成する。
// 呼び出し元はこれを「セッションなし」と解釈してはならない。
func NewStorageError(err error) *BotError {
	return &BotError{
		Code:     ErrCodeStorage,
		Message:  "セッションストアへのアクセスに失敗しました。",
		Category: "storage",
		Wrapped:  err,
	}
}

// NewUnauthorizedError は特権コマンドを非特権ユーザーが実行した場合のエラーを生成する。
func NewUnauthorizedError(userID string) *BotError {
	return &BotError{
		Code:     ErrCodeUnauthorized,
		Message:  fmt.Sprintf("権限がありません: %s", userID),
		Category: "auth",
	}
}

// IsStorageError はエラー連鎖にストレージエラーが含まれるかを判定する。
func IsStorageError(err error) bool {
	var be *BotError
	return errors.As(err, &be) && be.Code == ErrCodeStorage
}
