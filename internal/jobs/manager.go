package jobs

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lunban/lunban/internal/config"
	"github.com/lunban/lunban/internal/metrics"
	"github.com/lunban/lunban/internal/repository"
	apperrors "github.com/lunban/lunban/pkg/errors"
	"github.com/lunban/lunban/pkg/logger"
	"github.com/lunban/lunban/pkg/model"
	"github.com/lunban/lunban/pkg/scheduler/diagnostics"
	"github.com/lunban/lunban/pkg/scheduler/orchestrator"
)

// Solver 排班求解入口
type Solver interface {
	Solve(ctx context.Context, input *model.ScheduleInput, preferredSolver string) (*orchestrator.Outcome, error)
}

// Manager 异步任务管理器
// 内存是事实来源；数据库落盘为直写尽力而为，失败只记日志不阻塞求解
type Manager struct {
	cfg    config.JobsConfig
	solver Solver
	repo   *repository.JobRepository

	mu        sync.RWMutex
	jobs      map[string]*Job
	cancels   map[string]context.CancelFunc
	cancelReq map[string]bool

	queue   chan string
	baseCtx context.Context
	stop    context.CancelFunc
	wg      sync.WaitGroup
}

// NewManager 创建任务管理器；repo可为nil（无数据库运行）
func NewManager(cfg config.JobsConfig, solver Solver, repo *repository.JobRepository) *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		cfg:       cfg,
		solver:    solver,
		repo:      repo,
		jobs:      make(map[string]*Job),
		cancels:   make(map[string]context.CancelFunc),
		cancelReq: make(map[string]bool),
		queue:     make(chan string, cfg.QueueSize),
		baseCtx:   ctx,
		stop:      cancel,
	}
}

// Start 启动工作协程与过期清理协程
func (m *Manager) Start() {
	for i := 0; i < m.cfg.Workers; i++ {
		m.wg.Add(1)
		go m.worker(i)
	}
	m.wg.Add(1)
	go m.sweeper()
	logger.Info().
		Int("workers", m.cfg.Workers).
		Int("queue_size", m.cfg.QueueSize).
		Msg("任务管理器已启动")
}

// Stop 停止接收并等待在途任务退出
func (m *Manager) Stop() {
	m.stop()
	m.wg.Wait()
	logger.Info().Msg("任务管理器已停止")
}

// Submit 入队一个新任务，返回任务ID
func (m *Manager) Submit(input *model.ScheduleInput, name, departmentID, preferredSolver string) (string, error) {
	if input == nil {
		return "", apperrors.InvalidInput("milpInput", "排班输入不能为空")
	}
	if departmentID == "" {
		departmentID = input.DepartmentID
	}

	now := time.Now()
	job := &Job{
		ID:           uuid.New().String(),
		Name:         name,
		DepartmentID: departmentID,
		Solver:       preferredSolver,
		Status:       StatusQueued,
		Input:        input,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	m.mu.Lock()
	m.jobs[job.ID] = job
	m.mu.Unlock()

	select {
	case m.queue <- job.ID:
	default:
		m.mu.Lock()
		delete(m.jobs, job.ID)
		m.mu.Unlock()
		return "", apperrors.New(apperrors.CodeInternal, "任务队列已满，请稍后重试")
	}

	metrics.JobSubmitted()
	m.persistCreate(job)
	logger.Info().
		Str("job_id", job.ID).
		Str("department_id", departmentID).
		Str("solver", preferredSolver).
		Msg("排班任务已入队")
	return job.ID, nil
}

// Get 按ID返回任务快照
func (m *Manager) Get(id string) (*Job, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	job, ok := m.jobs[id]
	if !ok {
		return nil, false
	}
	return job.snapshot(), true
}

// Cancel 取消任务：排队中立即终止，求解中发出取消信号
func (m *Manager) Cancel(id string) error {
	m.mu.Lock()
	job, ok := m.jobs[id]
	if !ok {
		m.mu.Unlock()
		return apperrors.NotFound("job", id)
	}
	if IsTerminal(job.Status) {
		m.mu.Unlock()
		return nil
	}

	m.cancelReq[id] = true
	if job.Status == StatusQueued {
		job.Status = StatusCancelled
		job.UpdatedAt = time.Now()
		snapshot := job.snapshot()
		m.mu.Unlock()
		m.persistUpdate(snapshot)
		logger.Info().Str("job_id", id).Msg("排队中的任务已取消")
		return nil
	}

	cancel := m.cancels[id]
	m.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	logger.Info().Str("job_id", id).Msg("已请求取消求解中的任务")
	return nil
}

// worker 工作协程主循环
func (m *Manager) worker(n int) {
	defer m.wg.Done()
	for {
		select {
		case <-m.baseCtx.Done():
			return
		case id := <-m.queue:
			m.run(id)
		}
	}
}

// run 执行单个任务
func (m *Manager) run(id string) {
	m.mu.Lock()
	job, ok := m.jobs[id]
	if !ok {
		m.mu.Unlock()
		return
	}
	metrics.JobStarted()
	// 入队后被取消或清理的任务直接跳过
	if job.Status != StatusQueued {
		m.mu.Unlock()
		metrics.JobFinished(job.Status, 0)
		return
	}
	job.Status = StatusProcessing
	job.UpdatedAt = time.Now()

	ctx, cancel := context.WithTimeout(m.baseCtx, m.cfg.SolveTimeout)
	m.cancels[id] = cancel
	input := job.Input
	preferred := job.Solver
	snapshot := job.snapshot()
	m.mu.Unlock()

	m.persistUpdate(snapshot)

	start := time.Now()
	outcome, err := m.solver.Solve(ctx, input, preferred)
	cancel()

	m.mu.Lock()
	delete(m.cancels, id)
	cancelRequested := m.cancelReq[id]
	delete(m.cancelReq, id)
	timedOut := ctx.Err() == context.DeadlineExceeded
	m.finish(job, outcome, err, cancelRequested, timedOut)
	job.UpdatedAt = time.Now()
	status := job.Status
	snapshot = job.snapshot()
	m.mu.Unlock()

	duration := time.Since(start)
	metrics.JobFinished(status, duration)
	metrics.SolveAttempt(preferredOrDefault(preferred), status)
	if job.Result != nil && job.Result.GenerationResult != nil && job.Result.GenerationResult.Score != nil {
		metrics.SetSolutionScore(job.DepartmentID, float64(job.Result.GenerationResult.Score.Total))
	}
	if job.Result != nil && job.Result.GenerationResult != nil && job.Result.GenerationResult.Postprocess != nil {
		metrics.SetPostprocessPenalty(job.DepartmentID, job.Result.GenerationResult.Postprocess.FinalPenalty)
	}
	m.persistUpdate(snapshot)

	// 结果全文只在debug级别落日志，序列化失败不影响任务
	if job.Result != nil {
		if raw, err := json.Marshal(job.Result); err == nil {
			logger.Debug().Str("job_id", id).RawJSON("result", raw).Msg("任务结果")
		}
	}

	logger.Info().
		Str("job_id", id).
		Str("status", status).
		Dur("duration", duration).
		Msg("排班任务结束")
}

// finish 依据求解结果与取消/超时情况落定终态（调用方持锁）
func (m *Manager) finish(job *Job, outcome *orchestrator.Outcome, err error, cancelRequested, timedOut bool) {
	if err == nil && outcome != nil {
		payload, buildErr := buildResult(job.Input, outcome)
		if buildErr != nil {
			job.Status = StatusFailed
			job.Error = buildErr.Error()
			return
		}
		switch {
		case cancelRequested:
			// 取消前已有可用解，保留为最佳部分解
			job.Status = StatusCancelled
			job.BestResult = payload
		case timedOut:
			job.Status = StatusTimedOut
			job.BestResult = payload
		default:
			job.Status = StatusCompleted
			job.Result = payload
		}
		return
	}

	job.Error = errMessage(err)
	if report, ok := apperrors.GetDiagnostics(err).(*diagnostics.Report); ok && report != nil {
		job.ErrorDiagnostics = report
	}

	switch {
	case cancelRequested:
		job.Status = StatusCancelled
	case timedOut:
		job.Status = StatusTimedOut
	default:
		job.Status = StatusFailed
		if job.ErrorDiagnostics != nil {
			job.Guidance = job.ErrorDiagnostics.Guidance()
		}
	}
}

// sweeper 周期清理终态超过TTL的任务
func (m *Manager) sweeper() {
	defer m.wg.Done()
	ticker := time.NewTicker(m.cfg.SweepPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-m.baseCtx.Done():
			return
		case <-ticker.C:
			m.sweep(time.Now().Add(-m.cfg.ResultTTL))
		}
	}
}

// sweep 删除在cutoff之前进入终态的任务
func (m *Manager) sweep(cutoff time.Time) {
	m.mu.Lock()
	removed := 0
	for id, job := range m.jobs {
		if IsTerminal(job.Status) && job.UpdatedAt.Before(cutoff) {
			delete(m.jobs, id)
			removed++
		}
	}
	m.mu.Unlock()

	if removed > 0 {
		logger.Info().Int("removed", removed).Msg("已清理过期任务")
	}
	if m.repo != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if _, err := m.repo.DeleteExpired(ctx, cutoff); err != nil {
			logger.Warn().Err(err).Msg("清理过期任务记录失败")
		}
	}
}

// persistCreate 直写新任务记录，失败只记日志
func (m *Manager) persistCreate(job *Job) {
	if m.repo == nil {
		return
	}
	record, err := toRecord(job)
	if err != nil {
		logger.Warn().Err(err).Str("job_id", job.ID).Msg("序列化任务记录失败")
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := m.repo.Create(ctx, record); err != nil {
		logger.Warn().Err(err).Str("job_id", job.ID).Msg("写入任务记录失败")
	}
}

// persistUpdate 直写任务状态变化，失败只记日志
func (m *Manager) persistUpdate(job *Job) {
	if m.repo == nil {
		return
	}
	record, err := toRecord(job)
	if err != nil {
		logger.Warn().Err(err).Str("job_id", job.ID).Msg("序列化任务记录失败")
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := m.repo.Update(ctx, record); err != nil {
		logger.Warn().Err(err).Str("job_id", job.ID).Msg("更新任务记录失败")
	}
}

// toRecord 把任务转换为持久化记录
func toRecord(job *Job) (*repository.JobRecord, error) {
	record := &repository.JobRecord{
		ID:           job.ID,
		Name:         job.Name,
		DepartmentID: job.DepartmentID,
		Solver:       job.Solver,
		Status:       job.Status,
		Error:        job.Error,
		CreatedAt:    job.CreatedAt,
		UpdatedAt:    job.UpdatedAt,
	}
	if job.Input != nil {
		payload, err := json.Marshal(job.Input)
		if err != nil {
			return nil, err
		}
		record.Payload = payload
	}
	if job.Result != nil {
		result, err := json.Marshal(job.Result)
		if err != nil {
			return nil, err
		}
		record.Result = result
	}
	if job.BestResult != nil {
		best, err := json.Marshal(job.BestResult)
		if err != nil {
			return nil, err
		}
		record.BestResult = best
	}
	if job.ErrorDiagnostics != nil {
		diag, err := json.Marshal(job.ErrorDiagnostics)
		if err != nil {
			return nil, err
		}
		record.ErrorDiagnostics = diag
	}
	return record, nil
}

func preferredOrDefault(preferred string) string {
	if preferred == "" {
		return "default"
	}
	return preferred
}

func errMessage(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
