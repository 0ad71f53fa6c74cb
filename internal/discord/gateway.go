package discord

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/net/websocket"
)

// MessageHandler は受信メッセージイベントの処理関数。
// ゲートウェイの読み取りループから同期的に呼ばれるため、
// イベントは1件ずつ直列に処理される（ユーザー単位の直列化を包含する）。
type MessageHandler func(ctx context.Context, ev *MessageEvent)

// GatewayMetrics はゲートウェイのメトリクス収集インターフェース。
type GatewayMetrics interface {
	RecordReconnect()
	RecordHeartbeatLatency(d time.Duration)
}

// Gateway はDiscordゲートウェイ（WebSocket）への常駐接続を管理する。
// Hello受信後にハートビートループを開始し、Identifyで認証し、
// MESSAGE_CREATEディスパッチをハンドラへ渡す。切断時はバックオフ付きで再接続する。
type Gateway struct {
	url     string
	token   string
	handler MessageHandler
	logger  *slog.Logger
	metrics GatewayMetrics

	// writeMu はWebSocketへの書き込みを直列化する
	// （読み取りループとハートビートループが並行に送信するため）。
	writeMu sync.Mutex

	mu        sync.Mutex
	seq       int64
	latency   time.Duration
	lastBeat  time.Time
	botUserID string
}

// NewGateway はGatewayの新しいインスタンスを生成する。
func NewGateway(url, token string, handler MessageHandler, logger *slog.Logger, metrics GatewayMetrics) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gateway{
		url:     url,
		token:   token,
		handler: handler,
		logger:  logger,
		metrics: metrics,
	}
}

// Run はゲートウェイ接続を維持する。コンテキストがキャンセルされるまで、
// 切断のたびに指数バックオフ（最大60秒）で再接続を繰り返す。
func (g *Gateway) Run(ctx context.Context) error {
	backoff := time.Second

	for {
		start := time.Now()
		err := g.serve(ctx)
		if ctx.Err() != nil {
			g.logger.Info("gateway stopped")
			return nil
		}

		// 一定時間接続が維持できていた場合はバックオフをリセットする
		if time.Since(start) > time.Minute {
			backoff = time.Second
		}

		g.logger.Error("gateway connection lost, reconnecting",
			slog.String("error", err.Error()),
			slog.Duration("backoff", backoff),
		)
		if g.metrics != nil {
			g.metrics.RecordReconnect()
		}

		select {
		case <-ctx.Done():
			g.logger.Info("gateway stopped")
			return nil
		case <-time.After(backoff):
		}

		backoff *= 2
		if backoff > 60*time.Second {
			backoff = 60 * time.Second
		}
	}
}

// serve は1回の接続サイクル（接続〜切断）を処理する。
func (g *Gateway) serve(ctx context.Context) error {
	conn, err := websocket.Dial(g.url, "", "https://discord.com")
	if err != nil {
		return fmt.Errorf("failed to dial gateway: %w", err)
	}
	defer conn.Close()

	// コンテキストキャンセルで接続を閉じ、Receiveのブロックを解除する
	connCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		<-connCtx.Done()
		conn.Close()
	}()

	// 1. Hello受信
	var hello payload
	if err := websocket.JSON.Receive(conn, &hello); err != nil {
		return fmt.Errorf("failed to receive hello: %w", err)
	}
	if hello.Op != opHello {
		return fmt.Errorf("expected hello (op=%d), got op=%d", opHello, hello.Op)
	}
	var helloD helloData
	if err := json.Unmarshal(hello.D, &helloD); err != nil {
		return fmt.Errorf("failed to parse hello: %w", err)
	}
	interval := time.Duration(helloD.HeartbeatInterval) * time.Millisecond

	// 2. Identify送信
	if err := g.sendIdentify(conn); err != nil {
		return fmt.Errorf("failed to identify: %w", err)
	}

	// 3. ハートビートループ開始
	go g.heartbeatLoop(connCtx, conn, interval)

	g.logger.Info("gateway connected",
		slog.Duration("heartbeat_interval", interval),
	)

	// 4. 読み取りループ
	for {
		var p payload
		if err := websocket.JSON.Receive(conn, &p); err != nil {
			return fmt.Errorf("gateway read failed: %w", err)
		}

		switch p.Op {
		case opDispatch:
			g.handleDispatch(ctx, &p)
		case opHeartbeat:
			// サーバーからの即時ハートビート要求
			g.sendHeartbeat(conn)
		case opHeartbeatACK:
			g.recordAck()
		case opReconnect, opInvalidSession:
			return fmt.Errorf("gateway requested reconnect (op=%d)", p.Op)
		}
	}
}

func (g *Gateway) handleDispatch(ctx context.Context, p *payload) {
	g.mu.Lock()
	g.seq = p.S
	g.mu.Unlock()

	switch p.T {
	case "READY":
		var ready readyData
		if err := json.Unmarshal(p.D, &ready); err != nil {
			g.logger.Error("failed to parse ready event", slog.String("error", err.Error()))
			return
		}
		g.mu.Lock()
		g.botUserID = ready.User.ID
		g.mu.Unlock()
		g.logger.Info("gateway ready",
			slog.String("bot_user_id", ready.User.ID),
			slog.String("bot_username", ready.User.Username),
		)

	case "MESSAGE_CREATE":
		var ev MessageEvent
		if err := json.Unmarshal(p.D, &ev); err != nil {
			g.logger.Error("failed to parse message event", slog.String("error", err.Error()))
			return
		}
		// 自分自身のメッセージは処理しない
		if ev.Author.ID == g.BotUserID() {
			return
		}
		if g.handler != nil {
			g.handler(ctx, &ev)
		}
	}
}

func (g *Gateway) sendIdentify(conn *websocket.Conn) error {
	data, err := json.Marshal(identifyData{
		Token:   g.token,
		Intents: identifyIntents,
		Properties: identifyProperties{
			OS:      "linux",
			Browser: "kintai",
			Device:  "kintai",
		},
	})
	if err != nil {
		return err
	}
	return g.send(conn, &payload{Op: opIdentify, D: data})
}

// heartbeatLoop はHelloで指定された間隔でハートビートを送り続ける。
func (g *Gateway) heartbeatLoop(ctx context.Context, conn *websocket.Conn, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := g.sendHeartbeat(conn); err != nil {
				g.logger.Error("failed to send heartbeat", slog.String("error", err.Error()))
				return
			}
		}
	}
}

func (g *Gateway) sendHeartbeat(conn *websocket.Conn) error {
	g.mu.Lock()
	seq := g.seq
	g.lastBeat = time.Now()
	g.mu.Unlock()

	data, err := json.Marshal(seq)
	if err != nil {
		return err
	}
	return g.send(conn, &payload{Op: opHeartbeat, D: data})
}

func (g *Gateway) recordAck() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.lastBeat.IsZero() {
		return
	}
	g.latency = time.Since(g.lastBeat)
	if g.metrics != nil {
		g.metrics.RecordHeartbeatLatency(g.latency)
	}
}

func (g *Gateway) send(conn *websocket.Conn, p *payload) error {
	g.writeMu.Lock()
	defer g.writeMu.Unlock()
	return websocket.JSON.Send(conn, p)
}

// Latency は直近のハートビート往復時間を返す。未計測の場合は0。
func (g *Gateway) Latency() time.Duration {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.latency
}

// BotUserID はREADYで通知された自分自身のユーザーIDを返す。
func (g *Gateway) BotUserID() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.botUserID
}
