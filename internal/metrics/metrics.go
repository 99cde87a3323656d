// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder はメトリクス収集のインターフェース。
// ハンドラーおよび外部プロバイダークライアントから利用する。
type Recorder interface {
	RecordAuthOperation(operation string, outcome string)
	RecordTokenRefresh()
	RecordSearchLatency(duration time.Duration)
	RecordUpstreamStatus(service string, statusCode int)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	authOps        *prometheus.CounterVec
	tokenRefresh   prometheus.Counter
	searchLatency  prometheus.Histogram
	upstreamStatus *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		authOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "moonapi_auth_operations_total",
			Help: "認証操作の結果別の合計数",
		}, []string{"operation", "outcome"}),
		tokenRefresh: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "moonapi_token_refresh_total",
			Help: "リフレッシュトークン交換によるセッション再発行の合計数",
		}),
		searchLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "moonapi_search_latency_seconds",
			Help:    "検索プロキシのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		upstreamStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "moonapi_upstream_status_total",
			Help: "外部プロバイダー別・HTTPステータスコード別のレスポンス数",
		}, []string{"service", "status_code"}),
	}

	reg.MustRegister(
		c.authOps,
		c.tokenRefresh,
		c.searchLatency,
		c.upstreamStatus,
	)

	return c
}

// RecordAuthOperation は認証操作の結果を記録する。
// operationはlogin/signup/logout/me/forgot_password/reset_password、
// outcomeはsuccess/failureを想定する。
func (c *Collector) RecordAuthOperation(operation string, outcome string) {
	c.authOps.WithLabelValues(operation, outcome).Inc()
}

// RecordTokenRefresh はリフレッシュトークンによるセッション再発行を記録する。
func (c *Collector) RecordTokenRefresh() {
	c.tokenRefresh.Inc()
}

// RecordSearchLatency は検索プロキシのレイテンシを記録する。
func (c *Collector) RecordSearchLatency(duration time.Duration) {
	c.searchLatency.Observe(duration.Seconds())
}

// RecordUpstreamStatus は外部プロバイダーのHTTPステータスコードを記録する。
func (c *Collector) RecordUpstreamStatus(service string, statusCode int) {
	c.upstreamStatus.WithLabelValues(service, strconv.Itoa(statusCode)).Inc()
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// compile-time interface check
var _ Recorder = (*Collector)(nil)
