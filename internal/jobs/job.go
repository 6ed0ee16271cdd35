// Package jobs 提供异步排班任务的队列、执行与生命周期管理
package jobs

import (
	"time"

	"github.com/lunban/lunban/pkg/model"
	"github.com/lunban/lunban/pkg/scheduler/diagnostics"
	"github.com/lunban/lunban/pkg/stats"
)

// 任务状态
const (
	StatusQueued     = "queued"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
	StatusTimedOut   = "timedout"
	StatusCancelled  = "cancelled"
)

// IsTerminal 判断状态是否为终态
func IsTerminal(status string) bool {
	switch status {
	case StatusCompleted, StatusFailed, StatusTimedOut, StatusCancelled:
		return true
	}
	return false
}

// Job 一次异步排班任务
type Job struct {
	ID           string
	Name         string
	DepartmentID string
	Solver       string
	Status       string
	Input        *model.ScheduleInput

	// Result 成功完成的完整结果；BestResult 超时/取消时已有的最好部分解
	Result           *ResultPayload
	BestResult       *ResultPayload
	Error            string
	ErrorDiagnostics *diagnostics.Report
	Guidance         map[string]string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// ResultPayload 任务结果负载
// aiPolishResult 为后续润色流程预留，当前恒为null
type ResultPayload struct {
	Assignments      []model.Assignment `json:"assignments"`
	GenerationResult *GenerationResult  `json:"generationResult"`
	AiPolishResult   interface{}        `json:"aiPolishResult"`
}

// GenerationResult 求解过程的汇总结果
type GenerationResult struct {
	Iterations      int                           `json:"iterations"`
	ComputationTime int64                         `json:"computationTime"`
	SolveStatus     string                        `json:"solveStatus"`
	SolverTimedOut  bool                          `json:"solverTimedOut"`
	Violations      []diagnostics.FlatViolation   `json:"violations"`
	Score           *stats.Score                  `json:"score"`
	OffAccruals     []stats.OffAccrual            `json:"offAccruals"`
	Stats           SummaryStats                  `json:"stats"`
	Diagnostics     *diagnostics.Report           `json:"diagnostics"`
	Postprocess     *diagnostics.PostprocessStats `json:"postprocess,omitempty"`
}

// SummaryStats 面向列表页的精简指标
type SummaryStats struct {
	FairnessIndex   int `json:"fairnessIndex"`
	CoverageRate    int `json:"coverageRate"`
	PreferenceScore int `json:"preferenceScore"`
}

// snapshot 返回任务的浅拷贝，避免调用方与工作协程竞争
func (j *Job) snapshot() *Job {
	copied := *j
	return &copied
}
