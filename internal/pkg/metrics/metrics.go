package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// HTTPRequestsTotal 按路由与状态码统计请求数。
	HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "taskhub",
		Name:      "http_requests_total",
		Help:      "Total HTTP requests by method, route and status.",
	}, []string{"method", "route", "status"})

	// HTTPRequestDuration 请求耗时分布。
	HTTPRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "taskhub",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency by method and route.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "route"})

	// AuthFailuresTotal 认证失败次数（reason: invalid_credentials / invalid_token / missing_token）。
	AuthFailuresTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "taskhub",
		Name:      "auth_failures_total",
		Help:      "Authentication failures by reason.",
	}, []string{"reason"})

	// PolicyDenialsTotal 权限拒绝次数。
	PolicyDenialsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "taskhub",
		Name:      "policy_denials_total",
		Help:      "Access policy denials by action.",
	}, []string{"action"})

	// RateLimitRejectedTotal 被限流拒绝的请求数。
	RateLimitRejectedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "taskhub",
		Name:      "ratelimit_rejected_total",
		Help:      "Requests rejected by the rate limiter.",
	})

	// RateLimitTimeoutTotal Acquire 在上下文结束前未拿到令牌的次数。
	RateLimitTimeoutTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "taskhub",
		Name:      "ratelimit_timeout_total",
		Help:      "Rate limit acquisitions abandoned because the context ended.",
	})

	// RateLimitWaitDuration Acquire 阻塞等待令牌的时长。
	RateLimitWaitDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "taskhub",
		Name:      "ratelimit_wait_duration_seconds",
		Help:      "Time spent waiting for a rate limit token.",
		Buckets:   []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 5},
	})

	initOnce sync.Once
)

// InitMetrics 将所有指标注册到默认 Registry，可重复调用。
func InitMetrics() {
	initOnce.Do(func() {
		prometheus.MustRegister(
			HTTPRequestsTotal,
			HTTPRequestDuration,
			AuthFailuresTotal,
			PolicyDenialsTotal,
			RateLimitRejectedTotal,
			RateLimitTimeoutTotal,
			RateLimitWaitDuration,
		)
	})
}
