package api

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"jobportal/internal/api/middleware"
	"jobportal/internal/database"
	"jobportal/internal/events"
	"jobportal/internal/jobs"
	"jobportal/internal/metrics"
)

// JobHandler 处理招聘信息的创建与查询。
type JobHandler struct {
	jobs *jobs.Store
}

// NewJobHandler 构造招聘信息处理器。
func NewJobHandler(store *jobs.Store) *JobHandler {
	return &JobHandler{jobs: store}
}

type createJobRequest struct {
	CompanyName string `json:"companyName"`
	JobTitle    string `json:"jobTitle"`
	Description string `json:"description"`
	// Salary stays raw so a missing value, null and a non-number can be told apart.
	Salary    json.RawMessage `json:"salary"`
	CreatedBy string          `json:"createdBy"`
}

func (r createJobRequest) textFieldsPresent() bool {
	for _, v := range []string{r.CompanyName, r.JobTitle, r.Description, r.CreatedBy} {
		if strings.TrimSpace(v) == "" {
			return false
		}
	}
	return true
}

// salary returns nil when the field is absent and ok=false when it is not a JSON number.
func (r createJobRequest) salary() (value *float64, ok bool) {
	raw := bytes.TrimSpace(r.Salary)
	if len(raw) == 0 {
		return nil, true
	}
	if raw[0] == '"' || bytes.Equal(raw, []byte("null")) {
		return nil, false
	}
	var v float64
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, false
	}
	return &v, true
}

func toViews(list []database.Job) []events.JobView {
	views := make([]events.JobView, 0, len(list))
	for _, j := range list {
		views = append(views, events.NewJobView(j))
	}
	return views
}

// Create 创建一条招聘信息。
func (h *JobHandler) Create(c *gin.Context) {
	var req createJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, jobs.ErrMissingFields)
		return
	}

	salary, ok := req.salary()
	if !ok {
		if !req.textFieldsPresent() {
			respondError(c, jobs.ErrMissingFields)
		} else {
			respondError(c, jobs.ErrInvalidSalary)
		}
		return
	}

	job, err := h.jobs.Create(c.Request.Context(), jobs.NewJob{
		CompanyName: req.CompanyName,
		Title:       req.JobTitle,
		Description: req.Description,
		Salary:      salary,
		CreatedBy:   req.CreatedBy,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	metrics.ObserveJobCreated()
	middleware.LoggerFromContext(c).Info("job created",
		slog.Uint64("job_id", uint64(job.ID)),
		slog.String("title", job.Title),
	)
	c.JSON(http.StatusCreated, gin.H{
		"message": "Job created successfully.",
		"job":     events.NewJobView(job),
	})
}

// List 按创建时间倒序返回全部招聘信息。
func (h *JobHandler) List(c *gin.Context) {
	list, err := h.jobs.List(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message": "Jobs fetched successfully.",
		"jobs":    toViews(list),
	})
}

// Get 返回单条招聘信息；非法 ID 与不存在同样返回 404。
func (h *JobHandler) Get(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		respondError(c, jobs.ErrJobNotFound)
		return
	}
	job, err := h.jobs.Get(c.Request.Context(), uint(id))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message": "Job fetched successfully.",
		"job":     events.NewJobView(job),
	})
}
