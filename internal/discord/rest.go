package discord

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-retryablehttp"
	"golang.org/x/time/rate"

	"github.com/hitoshi/kintai/internal/model"
)

// RESTClient はDiscord REST APIのクライアント。
// 一時的な失敗はretryablehttpが指数バックオフで再試行し、
// 全体のリクエストレートはトークンバケットで抑制する。
type RESTClient struct {
	httpClient *retryablehttp.Client
	limiter    *rate.Limiter
	baseURL    string // テスト用にエンドポイントを差し替え可能
	token      string
	logger     *slog.Logger
}

// NewRESTClient はRESTClientの新しいインスタンスを生成する。
func NewRESTClient(baseURL, token string, timeout time.Duration, logger *slog.Logger) *RESTClient {
	client := retryablehttp.NewClient()
	client.RetryMax = 3
	client.RetryWaitMin = 500 * time.Millisecond
	client.RetryWaitMax = 5 * time.Second
	client.HTTPClient.Timeout = timeout
	client.Logger = nil // 再試行の詳細はslog側で一元管理する

	if logger == nil {
		logger = slog.Default()
	}

	return &RESTClient{
		httpClient: client,
		// Discordのグローバルレート制限（50 req/s）より十分低く抑える
		limiter: rate.NewLimiter(rate.Limit(25), 5),
		baseURL: baseURL,
		token:   token,
		logger:  logger,
	}
}

// createMessageRequest はメッセージ作成エンドポイントのリクエストボディ。
type createMessageRequest struct {
	Content string         `json:"content,omitempty"`
	Embeds  []*model.Embed `json:"embeds,omitempty"`
	Nonce   string         `json:"nonce,omitempty"`
}

// createMessageResponse はメッセージ作成エンドポイントのレスポンスのうち必要な部分。
type createMessageResponse struct {
	ID string `json:"id"`
}

// CreateMessage は指定チャンネルへメッセージを送信し、作成されたメッセージIDを返す。
// 重複送信検出のためnonceを付与する。
func (c *RESTClient) CreateMessage(ctx context.Context, channelID string, msg *model.Message) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limiter wait failed: %w", err)
	}

	reqBody := createMessageRequest{
		Content: msg.Content,
		Nonce:   uuid.NewString(),
	}
	if msg.Embed != nil {
		reqBody.Embeds = []*model.Embed{msg.Embed}
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal message: %w", err)
	}

	url := fmt.Sprintf("%s/channels/%s/messages", c.baseURL, channelID)
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, url, body)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	c.applyHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to send message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("discord API returned status %d: %s", resp.StatusCode, snippet)
	}

	var created createMessageResponse
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}

	return created.ID, nil
}

// DeleteMessage は指定メッセージを削除する。
func (c *RESTClient) DeleteMessage(ctx context.Context, channelID, messageID string) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter wait failed: %w", err)
	}

	url := fmt.Sprintf("%s/channels/%s/messages/%s", c.baseURL, channelID, messageID)
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodDelete, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	c.applyHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to delete message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("discord API returned status %d", resp.StatusCode)
	}

	return nil
}

func (c *RESTClient) applyHeaders(req *retryablehttp.Request) {
	req.Header.Set("Authorization", "Bot "+c.token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "Kintai/1.0 Attendance Bot")
}
