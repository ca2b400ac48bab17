// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// バックエンドクライアント、セッションストア、参照データクライアントから利用する。
type MetricsCollector interface {
	RecordBackendRetry()
	RecordStoreTransition(from, to string)
	RecordProfileFallback(source string)
	RecordReferenceRequest(endpoint string, ok bool)
	RecordReferenceStatus(statusCode int)
	RecordReferenceLatency(duration time.Duration)
	SetActiveStores(n int)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	backendRetries   prometheus.Counter
	storeTransitions *prometheus.CounterVec
	profileFallbacks *prometheus.CounterVec
	refRequests      *prometheus.CounterVec
	refStatus        *prometheus.CounterVec
	refLatency       prometheus.Histogram
	activeStores     prometheus.Gauge
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		backendRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "autotrackr_backend_retries_total",
			Help: "HTTP 500によるバックエンドへの再送回数",
		}),
		storeTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "autotrackr_store_transitions_total",
			Help: "セッションストアの状態遷移数",
		}, []string{"from", "to"}),
		profileFallbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "autotrackr_profile_fallbacks_total",
			Help: "プロフィール取得失敗時にキャッシュまたは既定値を使用した回数",
		}, []string{"source"}),
		refRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "autotrackr_reference_requests_total",
			Help: "参照データAPIへのリクエスト数",
		}, []string{"endpoint", "result"}),
		refStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "autotrackr_reference_http_status_total",
			Help: "参照データAPIのHTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		refLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "autotrackr_reference_latency_seconds",
			Help:    "参照データAPIのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		activeStores: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "autotrackr_active_stores",
			Help: "保持しているブラウザセッションのストア数",
		}),
	}

	reg.MustRegister(
		c.backendRetries,
		c.storeTransitions,
		c.profileFallbacks,
		c.refRequests,
		c.refStatus,
		c.refLatency,
		c.activeStores,
	)

	return c
}

// RecordBackendRetry はバックエンドへの再送を記録する。
func (c *Collector) RecordBackendRetry() {
	c.backendRetries.Inc()
}

// RecordStoreTransition はストアの状態遷移を記録する。
func (c *Collector) RecordStoreTransition(from, to string) {
	c.storeTransitions.WithLabelValues(from, to).Inc()
}

// RecordProfileFallback はプロフィールのフォールバックを記録する。sourceはcachedまたはdefault。
func (c *Collector) RecordProfileFallback(source string) {
	c.profileFallbacks.WithLabelValues(source).Inc()
}

// RecordReferenceRequest は参照データAPIへのリクエスト結果を記録する。
func (c *Collector) RecordReferenceRequest(endpoint string, ok bool) {
	result := "success"
	if !ok {
		result = "failure"
	}
	c.refRequests.WithLabelValues(endpoint, result).Inc()
}

// RecordReferenceStatus は参照データAPIのHTTPステータスコードを記録する。
func (c *Collector) RecordReferenceStatus(statusCode int) {
	c.refStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordReferenceLatency は参照データAPIのレイテンシを記録する。
func (c *Collector) RecordReferenceLatency(duration time.Duration) {
	c.refLatency.Observe(duration.Seconds())
}

// SetActiveStores は保持しているストア数を設定する。
func (c *Collector) SetActiveStores(n int) {
	c.activeStores.Set(float64(n))
}

// Nop は何も記録しないMetricsCollector。
type Nop struct{}

func (Nop) RecordBackendRetry()                             {}
func (Nop) RecordStoreTransition(from, to string)           {}
func (Nop) RecordProfileFallback(source string)             {}
func (Nop) RecordReferenceRequest(endpoint string, ok bool) {}
func (Nop) RecordReferenceStatus(statusCode int)            {}
func (Nop) RecordReferenceLatency(time.Duration)            {}
func (Nop) SetActiveStores(n int)                           {}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// SetupMetricsRoute は/metricsエンドポイントを提供するHTTPハンドラーを返す。
// Prometheusスクレイプに対応する。
func SetupMetricsRoute(gatherer prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler(gatherer))
	return mux
}

// compile-time interface check
var (
	_ MetricsCollector = (*Collector)(nil)
	_ MetricsCollector = Nop{}
)
