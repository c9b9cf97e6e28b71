package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome labels shared by the domain counters.
const (
	OutcomeOK       = "ok"
	OutcomeRejected = "rejected"
	OutcomeError    = "error"
	OutcomeDeferred = "deferred"
)

var (
	loginAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "jobportal",
			Subsystem: "auth",
			Name:      "login_attempts_total",
			Help:      "登录尝试次数。",
		},
		[]string{"outcome"},
	)

	imageUploads = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "jobportal",
			Subsystem: "uploads",
			Name:      "images_total",
			Help:      "图片上传次数。",
		},
		[]string{"outcome"},
	)

	imageUploadBytes = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "jobportal",
			Subsystem: "uploads",
			Name:      "stored_bytes_total",
			Help:      "成功保存的图片字节数。",
		},
	)

	imagePurges = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "jobportal",
			Subsystem: "uploads",
			Name:      "purges_total",
			Help:      "图片文件删除次数；deferred 表示转交给后台任务。",
		},
		[]string{"outcome"},
	)

	jobsCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "jobportal",
			Subsystem: "jobs",
			Name:      "created_total",
			Help:      "新建招聘信息数量。",
		},
	)
)

func ObserveLogin(outcome string) { loginAttempts.WithLabelValues(outcome).Inc() }

func ObserveUpload(outcome string, bytes int64) {
	imageUploads.WithLabelValues(outcome).Inc()
	if outcome == OutcomeOK && bytes > 0 {
		imageUploadBytes.Add(float64(bytes))
	}
}

func ObservePurge(outcome string) { imagePurges.WithLabelValues(outcome).Inc() }

func ObserveJobCreated() { jobsCreated.Inc() }
