// Package handler 提供HTTP请求处理器
package handler

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/lunban/lunban/internal/jobs"
	"github.com/lunban/lunban/pkg/errors"
	"github.com/lunban/lunban/pkg/model"
	"github.com/lunban/lunban/pkg/scheduler/diagnostics"
)

// JobHandler 排班任务处理器
type JobHandler struct {
	manager *jobs.Manager
}

// NewJobHandler 创建排班任务处理器
func NewJobHandler(manager *jobs.Manager) *JobHandler {
	return &JobHandler{manager: manager}
}

// SubmitRequest 任务提交请求
type SubmitRequest struct {
	MilpInput    *model.ScheduleInput `json:"milpInput"`
	Name         string               `json:"name,omitempty"`
	DepartmentID string               `json:"departmentId,omitempty"`
	Solver       string               `json:"solver,omitempty"` // ortools/cpsat/highs/hybrid
}

// SubmitResponse 任务提交响应
type SubmitResponse struct {
	JobID string `json:"jobId"`
}

// StatusResponse 任务状态响应
type StatusResponse struct {
	ID               string              `json:"id"`
	Status           string              `json:"status"`
	Result           *jobs.ResultPayload `json:"result,omitempty"`
	BestResult       *jobs.ResultPayload `json:"bestResult,omitempty"`
	Error            string              `json:"error,omitempty"`
	ErrorDiagnostics *diagnostics.Report `json:"errorDiagnostics,omitempty"`
	Guidance         map[string]string   `json:"guidance,omitempty"`
	CreatedAt        time.Time           `json:"createdAt"`
	UpdatedAt        time.Time           `json:"updatedAt"`
}

// ServeHTTP 分发 /scheduler/jobs 下的请求
//
//	POST /scheduler/jobs             提交任务
//	GET  /scheduler/jobs/{id}        查询状态
//	POST /scheduler/jobs/{id}/cancel 取消任务
func (h *JobHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	rest := strings.Trim(strings.TrimPrefix(r.URL.Path, "/scheduler/jobs"), "/")
	parts := []string{}
	if rest != "" {
		parts = strings.Split(rest, "/")
	}

	switch {
	case len(parts) == 0 && r.Method == http.MethodPost:
		h.submit(w, r)
	case len(parts) == 1 && r.Method == http.MethodGet:
		h.status(w, parts[0])
	case len(parts) == 2 && parts[1] == "cancel" && r.Method == http.MethodPost:
		h.cancel(w, parts[0])
	default:
		respondError(w, errors.New(errors.CodeNotFound, "未知的任务接口"))
	}
}

// submit 提交排班任务
func (h *JobHandler) submit(w http.ResponseWriter, r *http.Request) {
	var req SubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, errors.Wrap(err, errors.CodeInvalidInput, "解析请求失败"))
		return
	}
	if req.MilpInput == nil {
		respondError(w, errors.InvalidInput("milpInput", "不能为空"))
		return
	}
	if req.MilpInput.StartDate == "" || req.MilpInput.EndDate == "" {
		respondError(w, errors.InvalidInput("milpInput", "startDate/endDate不能为空"))
		return
	}
	if len(req.MilpInput.Employees) == 0 {
		respondError(w, errors.InvalidInput("milpInput.employees", "员工列表不能为空"))
		return
	}

	id, err := h.manager.Submit(req.MilpInput, req.Name, req.DepartmentID, req.Solver)
	if err != nil {
		respondAnyError(w, err)
		return
	}
	respondJSON(w, http.StatusAccepted, SubmitResponse{JobID: id})
}

// status 查询任务状态
func (h *JobHandler) status(w http.ResponseWriter, id string) {
	job, ok := h.manager.Get(id)
	if !ok {
		respondError(w, errors.NotFound("job", id))
		return
	}
	respondJSON(w, http.StatusOK, StatusResponse{
		ID:               job.ID,
		Status:           job.Status,
		Result:           job.Result,
		BestResult:       job.BestResult,
		Error:            job.Error,
		ErrorDiagnostics: job.ErrorDiagnostics,
		Guidance:         job.Guidance,
		CreatedAt:        job.CreatedAt,
		UpdatedAt:        job.UpdatedAt,
	})
}

// cancel 取消任务
func (h *JobHandler) cancel(w http.ResponseWriter, id string) {
	if err := h.manager.Cancel(id); err != nil {
		respondAnyError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"id":        id,
		"cancelled": true,
	})
}

// respondJSON 返回JSON响应
func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// respondError 返回错误响应
func respondError(w http.ResponseWriter, err *errors.AppError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(err.HTTPStatus)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"error":   true,
		"code":    err.Code,
		"message": err.Message,
		"details": err.Details,
	})
}

// respondAnyError 把任意错误映射为HTTP错误响应
func respondAnyError(w http.ResponseWriter, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(errors.GetHTTPStatus(err))
	json.NewEncoder(w).Encode(map[string]interface{}{
		"error":   true,
		"code":    errors.GetCode(err),
		"message": err.Error(),
	})
}
