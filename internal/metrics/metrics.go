// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// 同期エンジンから利用する。
type MetricsCollector interface {
	RecordReconcile(outcome string)
	RecordFailure(kind string)
	RecordStoreLatency(op string, duration time.Duration)
	RecordReady()
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	reconciles   *prometheus.CounterVec
	failures     *prometheus.CounterVec
	storeLatency *prometheus.HistogramVec
	ready        prometheus.Gauge
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		reconciles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "profilesync_reconcile_total",
			Help: "処理したセッションイベント数（結果別: create, update, no_session）",
		}, []string{"outcome"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "profilesync_reconcile_failures_total",
			Help: "同期失敗の合計数（分類別）",
		}, []string{"kind"}),
		storeLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "profilesync_store_latency_seconds",
			Help:    "プロフィールストア呼び出しのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}, []string{"op"}),
		ready: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "profilesync_ready",
			Help: "初回の認証ブートストラップが完了している場合は1",
		}),
	}

	reg.MustRegister(
		c.reconciles,
		c.failures,
		c.storeLatency,
		c.ready,
	)

	return c
}

// RecordReconcile は処理結果を記録する。
func (c *Collector) RecordReconcile(outcome string) {
	c.reconciles.WithLabelValues(outcome).Inc()
}

// RecordFailure は同期失敗を記録する。
func (c *Collector) RecordFailure(kind string) {
	c.failures.WithLabelValues(kind).Inc()
}

// RecordStoreLatency はストア呼び出しのレイテンシを記録する。
func (c *Collector) RecordStoreLatency(op string, duration time.Duration) {
	c.storeLatency.WithLabelValues(op).Observe(duration.Seconds())
}

// RecordReady は準備完了を記録する。
func (c *Collector) RecordReady() {
	c.ready.Set(1)
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// compile-time interface check
var _ MetricsCollector = (*Collector)(nil)
