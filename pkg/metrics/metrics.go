package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	APIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "api_http_requests_total", Help: "HTTP requests"},
		[]string{"method", "path", "status"},
	)
	APIRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	MessagesSentTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "dispatch_messages_sent_total", Help: "Messages accepted by the channel transport"},
		[]string{"channel"},
	)
	MessagesFailedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "dispatch_messages_failed_total", Help: "Per-recipient transport failures"},
		[]string{"channel"},
	)
	EmailJobsPublishedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "dispatch_email_jobs_published_total", Help: "Email jobs published to queue"},
	)
	StatusCallbacksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "dispatch_status_callbacks_total", Help: "SMS delivery status callbacks by outcome"},
		[]string{"outcome"},
	)

	WorkerJobsConsumed = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "worker_jobs_consumed_total", Help: "Email jobs consumed"},
	)
	WorkerJobsSent = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "worker_jobs_sent_total", Help: "Emails sent successfully"},
	)
	WorkerJobsFailed = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "worker_jobs_failed_total", Help: "Email send failures"},
	)
	WorkerJobRetries = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "worker_job_retries_total", Help: "Retries performed"},
	)
	WorkerProcessDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "worker_job_process_duration_seconds",
			Help:    "Time spent processing a job",
			Buckets: prometheus.DefBuckets,
		},
	)
)

func init() {
	prometheus.MustRegister(
		APIRequestsTotal, APIRequestDuration,
		MessagesSentTotal, MessagesFailedTotal, EmailJobsPublishedTotal, StatusCallbacksTotal,
		WorkerJobsConsumed, WorkerJobsSent, WorkerJobsFailed, WorkerJobRetries, WorkerProcessDuration,
	)
}

func Handler() http.Handler { return promhttp.Handler() }
