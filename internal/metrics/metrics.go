// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// 遷移結果ラベル
const (
	ResultOK       = "ok"
	ResultNoop     = "noop"
	ResultConflict = "conflict"
	ResultInvalid  = "invalid"
	ResultError    = "error"
)

// MetricsCollector はメトリクス収集のインターフェース。
// ワーカーやサービス層から利用する。
type MetricsCollector interface {
	RecordTransition(event, result string)
	RecordSweep(published, failed, skipped int, duration time.Duration)
	RecordIngest(origin string)
	RecordImportFailure(reason string)
	RecordFetchLatency(duration time.Duration)
	RecordLoginAttempt(allowed bool)
	RecordHTTPStatus(statusCode int)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	transitions   *prometheus.CounterVec
	sweepArticles *prometheus.CounterVec
	sweepDuration prometheus.Histogram
	ingested      *prometheus.CounterVec
	importFail    *prometheus.CounterVec
	fetchLatency  prometheus.Histogram
	loginAttempts *prometheus.CounterVec
	httpStatus    *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ainews_lifecycle_transitions_total",
			Help: "イベント種別・結果別のライフサイクル遷移数",
		}, []string{"event", "result"}),
		sweepArticles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ainews_sweep_articles_total",
			Help: "予約公開スイープで処理された記事数",
		}, []string{"result"}),
		sweepDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "ainews_sweep_duration_seconds",
			Help:    "予約公開スイープ1回の所要時間（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		ingested: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ainews_articles_ingested_total",
			Help: "取り込み経路別の作成記事数",
		}, []string{"origin"}),
		importFail: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ainews_import_fail_total",
			Help: "フィード取り込み失敗の合計数",
		}, []string{"reason"}),
		fetchLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "ainews_fetch_latency_seconds",
			Help:    "フィードフェッチのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		loginAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ainews_login_attempts_total",
			Help: "ログイン試行数（制限による拒否を含む）",
		}, []string{"allowed"}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ainews_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
	}

	reg.MustRegister(
		c.transitions,
		c.sweepArticles,
		c.sweepDuration,
		c.ingested,
		c.importFail,
		c.fetchLatency,
		c.loginAttempts,
		c.httpStatus,
	)

	return c
}

// RecordTransition はライフサイクル遷移の結果を記録する。
func (c *Collector) RecordTransition(event, result string) {
	c.transitions.WithLabelValues(event, result).Inc()
}

// RecordSweep はスイープ1回分の結果と所要時間を記録する。
func (c *Collector) RecordSweep(published, failed, skipped int, duration time.Duration) {
	c.sweepArticles.WithLabelValues("published").Add(float64(published))
	c.sweepArticles.WithLabelValues("failed").Add(float64(failed))
	c.sweepArticles.WithLabelValues("skipped").Add(float64(skipped))
	c.sweepDuration.Observe(duration.Seconds())
}

// RecordIngest は記事作成を取り込み経路別に記録する。
func (c *Collector) RecordIngest(origin string) {
	c.ingested.WithLabelValues(origin).Inc()
}

// RecordImportFailure はフィード取り込み失敗を記録する。
func (c *Collector) RecordImportFailure(reason string) {
	c.importFail.WithLabelValues(reason).Inc()
}

// RecordFetchLatency はフェッチのレイテンシを記録する。
func (c *Collector) RecordFetchLatency(duration time.Duration) {
	c.fetchLatency.Observe(duration.Seconds())
}

// RecordLoginAttempt はログイン試行を記録する。
func (c *Collector) RecordLoginAttempt(allowed bool) {
	c.loginAttempts.WithLabelValues(strconv.FormatBool(allowed)).Inc()
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// Nop は何も記録しないMetricsCollector。テストやメトリクス無効時に使用する。
type Nop struct{}

func (Nop) RecordTransition(string, string) {}
func (Nop) RecordSweep(int, int, int, time.Duration) {}
func (Nop) RecordIngest(string) {}
func (Nop) RecordImportFailure(string) {}
func (Nop) RecordFetchLatency(time.Duration) {}
func (Nop) RecordLoginAttempt(bool) {}
func (Nop) RecordHTTPStatus(int) {}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
