// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// BotMetrics はメトリクス収集のインターフェース。
// ボットハンドラーやゲートウェイから利用する。
type BotMetrics interface {
	RecordTransition(kind string)
	RecordStorageError()
	RecordReconnect()
	RecordHeartbeatLatency(d time.Duration)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	transitions      *prometheus.CounterVec
	storageErrors    prometheus.Counter
	reconnects       prometheus.Counter
	heartbeatLatency prometheus.Histogram
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "kintai_transitions_total",
			Help: "セッション遷移結果の種別ごとの合計数",
		}, []string{"kind"}),
		storageErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "kintai_storage_errors_total",
			Help: "セッションストアのアクセス失敗の合計数",
		}),
		reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "kintai_gateway_reconnects_total",
			Help: "ゲートウェイ再接続の合計数",
		}),
		heartbeatLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "kintai_heartbeat_latency_seconds",
			Help:    "ゲートウェイハートビートの往復時間（秒）",
			Buckets: prometheus.DefBuckets,
		}),
	}

	reg.MustRegister(
		c.transitions,
		c.storageErrors,
		c.reconnects,
		c.heartbeatLatency,
	)

	return c
}

// RecordTransition は遷移結果を種別付きで記録する。
func (c *Collector) RecordTransition(kind string) {
	c.transitions.WithLabelValues(kind).Inc()
}

// RecordStorageError はストアのアクセス失敗を記録する。
func (c *Collector) RecordStorageError() {
	c.storageErrors.Inc()
}

// RecordReconnect はゲートウェイ再接続を記録する。
func (c *Collector) RecordReconnect() {
	c.reconnects.Inc()
}

// RecordHeartbeatLatency はハートビートの往復時間を記録する。
func (c *Collector) RecordHeartbeatLatency(d time.Duration) {
	c.heartbeatLatency.Observe(d.Seconds())
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
