package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HTTP 指标
var (
	httpInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "http_in_flight_requests",
		Help: "In-flight HTTP requests.",
	})

	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)

// 业务指标
var (
	DonationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crowdfunding_donations_total",
			Help: "Donations recorded, by whether they were applied to the campaign or flagged.",
		},
		[]string{"result"},
	)

	DonatedAmount = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "crowdfunding_donated_amount_total",
		Help: "Sum of donation amounts applied to campaigns.",
	})

	RefundsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crowdfunding_refunds_total",
			Help: "Refund requests and decisions.",
		},
		[]string{"stage"},
	)

	CampaignReviewsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crowdfunding_campaign_reviews_total",
			Help: "Campaign review decisions.",
		},
		[]string{"decision"},
	)

	AppErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crowdfunding_app_errors_total",
			Help: "Application errors returned to clients, by error code.",
		},
		[]string{"code"},
	)
)

// Init 注册到默认注册表，只能调用一次
func Init() {
	prometheus.MustRegister(
		httpInFlight, httpRequestsTotal, httpRequestDuration,
		DonationsTotal, DonatedAmount, RefundsTotal, CampaignReviewsTotal, AppErrorsTotal,
	)
}

// Handler Prometheus 抓取端点
func Handler() http.Handler {
	return promhttp.Handler()
}

// Instrument 记录请求数、耗时和并发数，path 使用路由模板避免标签基数膨胀
func Instrument() gin.HandlerFunc {
	return func(c *gin.Context) {
		httpInFlight.Inc()
		start := time.Now()

		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		status := strconv.Itoa(c.Writer.Status())
		httpRequestDuration.WithLabelValues(c.Request.Method, path, status).Observe(time.Since(start).Seconds())
		httpRequestsTotal.WithLabelValues(c.Request.Method, path, status).Inc()
		httpInFlight.Dec()
	}
}
