package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/hitoshi/kintai/internal/bot"
	"github.com/hitoshi/kintai/internal/config"
	"github.com/hitoshi/kintai/internal/database"
	"github.com/hitoshi/kintai/internal/discord"
	"github.com/hitoshi/kintai/internal/handler"
	"github.com/hitoshi/kintai/internal/logger"
	"github.com/hitoshi/kintai/internal/metrics"
	"github.com/hitoshi/kintai/internal/repository"
	"github.com/hitoshi/kintai/internal/session"
)

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// 3. LOG_FILE指定時はローテーション付きファイル出力に切り替える
	if cfg.LogFile != "" {
		logger.SetupDefault(io.MultiWriter(w, logger.RotatingWriter(cfg.LogFile)))
	}

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("session_backend", cfg.SessionBackend),
	)

	switch cmd {
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(cfg)
	}
}

// runServe はボットモードで起動する。
// セッションストアへの接続を開き、全依存関係をワイヤリングし、
// keep-alive HTTPサーバーとDiscordゲートウェイ接続を起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	// 1. セッションストアの初期化
	var (
		sessionRepo repository.SessionRepository
		pinger      repository.Pinger
	)

	switch cfg.SessionBackend {
	case config.BackendRedis:
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("failed to parse redis url: %w", err)
		}
		client := redis.NewClient(opts)
		defer client.Close()

		if err := client.Ping(context.Background()).Err(); err != nil {
			return fmt.Errorf("failed to connect to redis: %w", err)
		}

		repo := repository.NewRedisSessionRepo(client)
		sessionRepo = repo
		pinger = repo
		slog.Info("redis connection established")

	default:
		db, err := database.Open(cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		defer db.Close()

		if err := db.Ping(); err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}

		sessionRepo = repository.NewPostgresSessionRepo(db)
		pinger = db
		slog.Info("database connection established")
	}

	// 2. メトリクスの初期化
	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	// 3. セッションエンジンとDiscordクライアントのワイヤリング
	engine := session.NewEngine(sessionRepo, slog.Default())
	restClient := discord.NewRESTClient(cfg.APIBaseURL, cfg.BotToken, cfg.RESTTimeout, slog.Default())

	// ゲートウェイはハンドラを、ハンドラはゲートウェイのレイテンシを参照するため、
	// クロージャ経由で後から束縛する
	var botHandler *bot.Handler
	gateway := discord.NewGateway(cfg.GatewayURL, cfg.BotToken,
		func(ctx context.Context, ev *discord.MessageEvent) {
			botHandler.HandleMessage(ctx, ev)
		},
		slog.Default(), collector,
	)
	botHandler = bot.NewHandler(cfg, engine, restClient, gateway, collector, slog.Default())

	// 4. keep-alive HTTPサーバーの構築
	router := handler.NewRouter(&handler.RouterDeps{
		HealthChecker: pinger,
		Gatherer:      registry,
		Logger:        slog.Default(),
	})

	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-stop
		slog.Info("shutting down...")
		cancel()
	}()

	go func() {
		slog.Info("keep-alive server starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server listen error", slog.String("error", err.Error()))
		}
	}()

	// 5. ゲートウェイ接続をメインgoroutineで実行（ブロッキング）
	if err := gateway.Run(ctx); err != nil {
		return fmt.Errorf("gateway stopped: %w", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	if cfg.SessionBackend != config.BackendPostgres {
		return fmt.Errorf("migrations are only applicable to the postgres backend (SESSION_BACKEND=%s)", cfg.SessionBackend)
	}

	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully")
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(url string) string {
	if len(url) > 20 {
		return url[:12] + "***@..."
	}
	return "***"
}
