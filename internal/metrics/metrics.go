// Package metrics はPrometheus向けのメトリクスを定義する。
//
// 各コンポーネントは*Metricsを受け取って記録する。nilの*Metricsに対する
// 呼び出しは何もしないため、テストではnilを渡してよい。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// 配信結果のラベル値。
const (
	ResultOK     = "ok"
	ResultFailed = "failed"
)

// Metrics はサービスが公開するメトリクスの集合。
type Metrics struct {
	stageTransitions     *prometheus.CounterVec
	notificationsCreated *prometheus.CounterVec
	notificationsPurged  prometheus.Counter
	connections          prometheus.Gauge
	deliveries           *prometheus.CounterVec
	httpRequests         *prometheus.CounterVec
	httpDuration         *prometheus.HistogramVec
}

// New はregにメトリクスを登録して返す。
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		stageTransitions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "crm_deal_stage_transitions_total",
			Help: "Total number of deal stage transitions",
		}, []string{"from", "to"}),
		notificationsCreated: f.NewCounterVec(prometheus.CounterOpts{
			Name: "crm_notifications_created_total",
			Help: "Total number of persisted notifications",
		}, []string{"type"}),
		notificationsPurged: f.NewCounter(prometheus.CounterOpts{
			Name: "crm_notifications_purged_total",
			Help: "Total number of notifications removed by retention",
		}),
		connections: f.NewGauge(prometheus.GaugeOpts{
			Name: "crm_realtime_connections",
			Help: "Number of registered realtime connections",
		}),
		deliveries: f.NewCounterVec(prometheus.CounterOpts{
			Name: "crm_realtime_deliveries_total",
			Help: "Total number of realtime event deliveries",
		}, []string{"event", "result"}),
		httpRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "crm_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "status"}),
		httpDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "crm_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"method"}),
	}
}

// StageTransition はステージ変更を1件記録する。
func (m *Metrics) StageTransition(from, to string) {
	if m == nil {
		return
	}
	m.stageTransitions.WithLabelValues(from, to).Inc()
}

// NotificationCreated は通知の永続化を1件記録する。
func (m *Metrics) NotificationCreated(notificationType string) {
	if m == nil {
		return
	}
	m.notificationsCreated.WithLabelValues(notificationType).Inc()
}

// NotificationsPurged は保持期間切れで削除した件数を加算する。
func (m *Metrics) NotificationsPurged(n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.notificationsPurged.Add(float64(n))
}

// SetConnections は登録中の接続数を設定する。
func (m *Metrics) SetConnections(n int) {
	if m == nil {
		return
	}
	m.connections.Set(float64(n))
}

// Delivery はイベント配信の結果を1件記録する。
func (m *Metrics) Delivery(event string, err error) {
	if m == nil {
		return
	}
	result := ResultOK
	if err != nil {
		result = ResultFailed
	}
	m.deliveries.WithLabelValues(event, result).Inc()
}

// Middleware はHTTPリクエストのメトリクスを記録するGinミドルウェアを返す。
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if m == nil {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()

		m.httpRequests.WithLabelValues(c.Request.Method, strconv.Itoa(c.Writer.Status())).Inc()
		m.httpDuration.WithLabelValues(c.Request.Method).Observe(time.Since(start).Seconds())
	}
}

// Handler はgからメトリクスを収集して公開するハンドラを返す。
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
