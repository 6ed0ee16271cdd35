// Package metrics 提供Prometheus监控指标
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lunban_http_requests_total",
		Help: "HTTP请求总数",
	}, []string{"method", "path", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "lunban_http_request_duration_seconds",
		Help:    "HTTP请求延迟",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	}, []string{"method", "path"})

	jobsSubmittedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "lunban_jobs_submitted_total",
		Help: "提交的排班任务总数",
	})

	jobsFinishedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lunban_jobs_finished_total",
		Help: "结束的排班任务总数（按终态）",
	}, []string{"status"})

	jobDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "lunban_job_duration_seconds",
		Help:    "排班任务求解耗时",
		Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
	}, []string{"status"})

	activeJobs = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "lunban_active_jobs",
		Help: "正在求解的任务数",
	})

	queueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "lunban_queue_depth",
		Help: "等待求解的任务数",
	})

	solveAttemptsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lunban_solve_attempts_total",
		Help: "各阶段求解尝试次数",
	}, []string{"solver", "status"})

	solutionScore = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "lunban_solution_score",
		Help: "最近一次完成任务的排班总分",
	}, []string{"department_id"})

	postprocessPenalty = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "lunban_postprocess_final_penalty",
		Help: "最近一次完成任务的局部搜索最终罚分",
	}, []string{"department_id"})
)

// Handler 返回Prometheus指标HTTP处理器
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordRequest 记录请求指标
func RecordRequest(method, path string, status int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// JobSubmitted 记录任务提交
func JobSubmitted() {
	jobsSubmittedTotal.Inc()
	queueDepth.Inc()
}

// JobStarted 记录任务开始求解
func JobStarted() {
	queueDepth.Dec()
	activeJobs.Inc()
}

// JobFinished 记录任务结束
func JobFinished(status string, duration time.Duration) {
	activeJobs.Dec()
	jobsFinishedTotal.WithLabelValues(status).Inc()
	jobDuration.WithLabelValues(status).Observe(duration.Seconds())
}

// SolveAttempt 记录一次后端求解尝试
func SolveAttempt(solver, status string) {
	solveAttemptsTotal.WithLabelValues(solver, status).Inc()
}

// SetSolutionScore 记录最近完成任务的总分
func SetSolutionScore(departmentID string, score float64) {
	solutionScore.WithLabelValues(departmentID).Set(score)
}

// SetPostprocessPenalty 记录最近完成任务的最终罚分
func SetPostprocessPenalty(departmentID string, penalty float64) {
	postprocessPenalty.WithLabelValues(departmentID).Set(penalty)
}
