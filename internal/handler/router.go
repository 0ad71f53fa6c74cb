// Package handler はkeep-alive/診断用のHTTPエンドポイントを提供する。
// このサーバーはデプロイ環境の死活監視専用であり、
// セッションストアへのハンドルはヘルスチェック用のPinger以外持たない。
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/kintai/internal/metrics"
	"github.com/hitoshi/kintai/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// HealthChecker はストアの死活確認。nilの場合は/healthは常に200を返す。
	HealthChecker interface {
		PingContext(ctx context.Context) error
	}

	// Gatherer は/metrics用のPrometheusレジストリ。
	Gatherer prometheus.Gatherer

	Logger *slog.Logger
}

// NewRouter はkeep-aliveサーバーのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
func NewRouter(deps *RouterDeps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewLoggingMiddleware(logger))

	// keep-aliveエンドポイント。デプロイ環境のヘルスプローブが定期的に叩く。
	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Write([]byte("kintai: attendance system online 🛡️"))
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		status := http.StatusOK
		body := map[string]string{"status": "ok"}

		if deps.HealthChecker != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
			defer cancel()
			if err := deps.HealthChecker.PingContext(ctx); err != nil {
				logger.Error("health check failed", slog.String("error", err.Error()))
				status = http.StatusServiceUnavailable
				body = map[string]string{"status": "unavailable"}
			}
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(body)
	})

	if deps.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", metrics.Handler(deps.Gatherer))
	}

	return r
}
