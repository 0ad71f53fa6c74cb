package discord

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"golang.org/x/net/websocket"
)

// recordingMetrics はテスト用のメトリクスモック。
type recordingMetrics struct {
	mu         sync.Mutex
	reconnects int
	latencies  int
}

func (m *recordingMetrics) RecordReconnect() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reconnects++
}

func (m *recordingMetrics) RecordHeartbeatLatency(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.latencies++
}

// newGatewayServer はHello→Identify検証→READY→MESSAGE_CREATEを順に行う
// テスト用ゲートウェイサーバーを起動する。
func newGatewayServer(t *testing.T, messageData string, gotIdentify chan<- identifyData) *httptest.Server {
	t.Helper()
	return httptest.NewServer(websocket.Handler(func(ws *websocket.Conn) {
		// 1. Hello送信
		helloD, _ := json.Marshal(helloData{HeartbeatInterval: 45000})
		if err := websocket.JSON.Send(ws, &payload{Op: opHello, D: helloD}); err != nil {
			return
		}

		// 2. Identify受信
		var identify payload
		if err := websocket.JSON.Receive(ws, &identify); err != nil {
			return
		}
		if identify.Op == opIdentify {
			var d identifyData
			json.Unmarshal(identify.D, &d)
			select {
			case gotIdentify <- d:
			default:
			}
		}

		// 3. READYディスパッチ
		readyD, _ := json.Marshal(readyData{User: User{ID: "bot-1", Username: "kintai"}})
		websocket.JSON.Send(ws, &payload{Op: opDispatch, T: "READY", S: 1, D: readyD})

		// 4. MESSAGE_CREATEディスパッチ
		websocket.JSON.Send(ws, &payload{Op: opDispatch, T: "MESSAGE_CREATE", S: 2, D: json.RawMessage(messageData)})

		// クライアント側が切断するまで読み続ける（ハートビート等を吸収）
		for {
			var p payload
			if err := websocket.JSON.Receive(ws, &p); err != nil {
				return
			}
		}
	}))
}

func wsURL(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

// 接続サイクル全体（Hello→Identify→READY→MESSAGE_CREATE→ハンドラ呼び出し）を検証する。
func TestGateway_DeliversMessageEvents(t *testing.T) {
	messageData := `{
		"id": "msg-1",
		"guild_id": "g1",
		"channel_id": "c1",
		"content": "online",
		"author": {"id": "user-1", "username": "taro"}
	}`
	gotIdentify := make(chan identifyData, 1)
	server := newGatewayServer(t, messageData, gotIdentify)
	defer server.Close()

	events := make(chan *MessageEvent, 1)
	var buf bytes.Buffer
	gw := NewGateway(wsURL(server), "test-token", func(ctx context.Context, ev *MessageEvent) {
		events <- ev
	}, newTestLogger(&buf), &recordingMetrics{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- gw.Run(ctx) }()

	// Identifyにトークンとintentが載っていること
	select {
	case identify := <-gotIdentify:
		if identify.Token != "test-token" {
			t.Errorf("identify token = %q, want %q", identify.Token, "test-token")
		}
		if identify.Intents != identifyIntents {
			t.Errorf("identify intents = %d, want %d", identify.Intents, identifyIntents)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for identify")
	}

	// ハンドラにイベントが届くこと
	select {
	case ev := <-events:
		if ev.Content != "online" {
			t.Errorf("event content = %q, want %q", ev.Content, "online")
		}
		if ev.Author.ID != "user-1" {
			t.Errorf("event author = %q, want %q", ev.Author.ID, "user-1")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for message event")
	}

	if gw.BotUserID() != "bot-1" {
		t.Errorf("BotUserID = %q, want %q", gw.BotUserID(), "bot-1")
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run returned error on cancel: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for Run to stop")
	}
}

// 自分自身のメッセージがハンドラへ渡されないことを検証する。
func TestGateway_SkipsOwnMessages(t *testing.T) {
	// READYで通知されるbot自身（bot-1）の発言
	messageData := `{
		"id": "msg-2",
		"channel_id": "c1",
		"content": "online",
		"author": {"id": "bot-1", "username": "kintai"}
	}`
	gotIdentify := make(chan identifyData, 1)
	server := newGatewayServer(t, messageData, gotIdentify)
	defer server.Close()

	events := make(chan *MessageEvent, 1)
	var buf bytes.Buffer
	gw := NewGateway(wsURL(server), "test-token", func(ctx context.Context, ev *MessageEvent) {
		events <- ev
	}, newTestLogger(&buf), nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go gw.Run(ctx)

	select {
	case ev := <-events:
		t.Errorf("handler should not receive the bot's own message, got %+v", ev)
	case <-time.After(500 * time.Millisecond):
		// 期待どおり届かない
	}
}

// Latencyが未計測時に0を返すことを検証する。
func TestGateway_Latency_ZeroBeforeAck(t *testing.T) {
	gw := NewGateway("ws://unused", "t", nil, nil, nil)
	if gw.Latency() != 0 {
		t.Errorf("Latency = %v, want 0 before any ack", gw.Latency())
	}
}
