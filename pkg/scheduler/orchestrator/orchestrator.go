// Package orchestrator 实现求解器选择、松弛重试阶梯与多次求解集成
package orchestrator

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"strings"
	"time"

	"github.com/lunban/lunban/internal/config"
	apperrors "github.com/lunban/lunban/pkg/errors"
	"github.com/lunban/lunban/pkg/logger"
	"github.com/lunban/lunban/pkg/model"
	"github.com/lunban/lunban/pkg/scheduler/backend"
	"github.com/lunban/lunban/pkg/scheduler/diagnostics"
	"github.com/lunban/lunban/pkg/scheduler/engine"
	"github.com/lunban/lunban/pkg/scheduler/postprocess"
	"github.com/lunban/lunban/pkg/scheduler/preflight"
)

// 求解器选择
const (
	SolverCpsat  = "cpsat"
	SolverHighs  = "highs"
	SolverHybrid = "hybrid"
)

const maxRelaxLevels = 3

// Outcome 一次编排求解的最终产物
type Outcome struct {
	Assignments []model.Assignment
	Report      *diagnostics.Report
	Status      backend.Status
	TimedOut    bool
	WallTime    time.Duration
}

// Orchestrator 按策略驱动两个后端
type Orchestrator struct {
	cpsat   backend.Backend
	highs   backend.Backend
	solver  config.SolverConfig
	postCfg config.PostprocessConfig
	log     *logger.SolverLogger
}

// New 创建编排器
func New(cpsatBackend, highsBackend backend.Backend, cfg *config.Config) *Orchestrator {
	return &Orchestrator{
		cpsat:   cpsatBackend,
		highs:   highsBackend,
		solver:  cfg.Solver,
		postCfg: cfg.Postprocess,
		log:     logger.NewSolverLogger(),
	}
}

// normalizeChoice 解析请求的求解器选择；未知值回退默认策略
func (o *Orchestrator) normalizeChoice(preferred string) (choice string, explicit bool) {
	raw := strings.ToLower(strings.TrimSpace(preferred))
	if raw == "" {
		raw = strings.ToLower(o.solver.DefaultSolver)
		switch raw {
		case SolverCpsat, "ortools":
			return SolverCpsat, false
		case SolverHighs:
			return SolverHighs, false
		default:
			return SolverHybrid, false
		}
	}
	switch raw {
	case SolverCpsat, "ortools":
		return SolverCpsat, true
	case SolverHighs:
		return SolverHighs, true
	case SolverHybrid, "auto":
		return SolverHybrid, false
	default:
		return SolverHybrid, false
	}
}

// Solve 完整编排：模式覆盖 → 多次求解 → 最优保留
func (o *Orchestrator) Solve(ctx context.Context, input *model.ScheduleInput, preferredSolver string) (*Outcome, error) {
	base := input.Clone()
	applyPatternOverride(base)

	attempts := 1
	jitterPct := 0.0
	var seed int64
	seeded := false
	// 集成求解可由配置整体关停，此时multiRun选项按单次处理
	if opts := base.Options; o.solver.MultiRunEnabled && opts != nil && opts.MultiRun != nil {
		attempts = model.ClampAttempts(opts.MultiRun.Attempts)
		jitterPct = math.Max(0, model.FloatOr(opts.MultiRun.WeightJitterPct, 0))
		if opts.MultiRun.Seed != nil {
			seed = *opts.MultiRun.Seed
			seeded = true
		}
	}
	if !seeded {
		seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed))

	var best *Outcome
	bestScore := math.Inf(1)
	bestAttempt := 0
	var lastErr error

	for attempt := 0; attempt < attempts; attempt++ {
		if ctx.Err() != nil {
			break
		}
		trial := base.Clone()
		if jitterPct > 0 && (attempt > 0 || attempts == 1) {
			jitterWeights(trial, jitterPct, rng)
		}
		outcome, err := o.solveOnce(ctx, trial, preferredSolver, rng)
		if err != nil {
			lastErr = err
			if apperrors.Is(err, apperrors.CodeSolverCancelled) {
				break
			}
			continue
		}
		score := attemptScore(outcome.Report)
		if score < bestScore {
			best = outcome
			bestScore = score
			bestAttempt = attempt + 1
		}
		if score <= 0 && outcome.Status.Usable() {
			break
		}
	}

	if best == nil {
		if ctx.Err() != nil {
			return nil, apperrors.SolverCancelled(nil)
		}
		if lastErr != nil {
			return nil, lastErr
		}
		return nil, apperrors.SolverFailure("所有求解尝试均失败", nil)
	}
	if attempts > 1 {
		best.Report.PreflightIssues = append(best.Report.PreflightIssues,
			preflight.MultiRunSummary(attempts, bestAttempt, bestScore, seed, jitterPct))
	}
	return best, nil
}

// solveOnce 单次尝试：首选后端 → 松弛阶梯 → 备选后端
// 显式指定的求解器失败时不静默切换
func (o *Orchestrator) solveOnce(ctx context.Context, schedule *model.ScheduleInput,
	preferredSolver string, rng *rand.Rand) (*Outcome, error) {
	choice, explicit := o.normalizeChoice(preferredSolver)

	if choice == SolverHighs {
		outcome, err := o.runHighs(ctx, schedule, "highs-primary")
		if err == nil {
			return outcome, nil
		}
		o.log.AttemptFailed("highs-primary", err)
		if explicit || apperrors.Is(err, apperrors.CodeSolverCancelled) {
			return nil, err
		}
		choice = SolverHybrid
	}

	outcome, primaryErr := o.runCpsat(ctx, schedule, "primary", rng)
	if primaryErr == nil {
		return outcome, nil
	}
	o.log.AttemptFailed("primary", primaryErr)
	if apperrors.Is(primaryErr, apperrors.CodeSolverCancelled) {
		return nil, primaryErr
	}

	snapshot := reportFromError(primaryErr)
	lastErr := primaryErr
	for level := 0; level < maxRelaxLevels; level++ {
		if ctx.Err() != nil {
			return nil, apperrors.SolverCancelled(snapshot)
		}
		relaxed := buildRelaxedSchedule(schedule, level, snapshot)
		outcome, err := o.runCpsat(ctx, relaxed, relaxPhase(level), rng)
		if err == nil {
			outcome.Report.PreflightIssues = append(outcome.Report.PreflightIssues,
				preflight.FallbackRelaxation(level+1, relaxMessage(level+1)))
			return outcome, nil
		}
		o.log.AttemptFailed(relaxPhase(level), err)
		if apperrors.Is(err, apperrors.CodeSolverCancelled) {
			return nil, err
		}
		if r := reportFromError(err); r != nil {
			snapshot = r
		}
		lastErr = err
	}

	if choice == SolverHybrid {
		outcome, err := o.runHighs(ctx, schedule, "highs-fallback")
		if err == nil {
			return outcome, nil
		}
		o.log.AttemptFailed("highs-fallback", err)
		if apperrors.Is(err, apperrors.CodeSolverCancelled) {
			return nil, err
		}
	}
	return nil, lastErr
}

// runCpsat CP-SAT求解后接局部搜索修复
func (o *Orchestrator) runCpsat(ctx context.Context, schedule *model.ScheduleInput,
	phase string, rng *rand.Rand) (*Outcome, error) {
	result, err := engine.New(o.cpsat).WithDefaultTimeLimit(o.solver.MaxSolveTime).Solve(ctx, schedule)
	if err != nil {
		return nil, err
	}
	cal, err := schedule.BuildCalendar()
	if err != nil {
		return nil, err
	}
	settings := postprocess.ResolveSettings(o.postCfg, schedule.Options)
	p := postprocess.New(schedule, cal, result.Assignments, settings, rng)
	assignments, report := p.Run(ctx)

	report.PreflightIssues = result.Report.PreflightIssues
	report.SolverStatus = result.Report.SolverStatus
	report.SolverTimedOut = result.Report.SolverTimedOut
	report.SolverWallTimeMs = result.Report.SolverWallTimeMs

	return &Outcome{
		Assignments: assignments,
		Report:      report,
		Status:      result.Status,
		TimedOut:    result.TimedOut,
		WallTime:    result.WallTime,
	}, nil
}

// runHighs MILP求解，不做后处理，注记solverInfo
func (o *Orchestrator) runHighs(ctx context.Context, schedule *model.ScheduleInput, phase string) (*Outcome, error) {
	result, err := engine.New(o.highs).WithDefaultTimeLimit(o.solver.MaxSolveTime).Solve(ctx, schedule)
	if err != nil {
		return nil, err
	}
	result.Report.PreflightIssues = append(result.Report.PreflightIssues,
		preflight.SolverInfo("highs", "Schedule generated via HiGHS ("+phase+")."))
	return &Outcome{
		Assignments: result.Assignments,
		Report:      result.Report,
		Status:      result.Status,
		TimedOut:    result.TimedOut,
		WallTime:    result.WallTime,
	}, nil
}

// applyPatternOverride 三班倒连续工作天数的全局覆盖
func applyPatternOverride(schedule *model.ScheduleInput) {
	opts := schedule.Options
	if opts == nil || opts.PatternConstraints == nil {
		return
	}
	override := model.IntOr(opts.PatternConstraints.MaxConsecutiveDaysThreeShift, 0)
	if override <= 0 {
		return
	}
	for _, emp := range schedule.Employees {
		if emp.Pattern() == model.PatternThreeShift {
			v := override
			emp.MaxConsecutiveDaysPreferred = &v
		}
	}
}

// jitterWeights 对四类权重做±j%扰动，下限0.1
func jitterWeights(schedule *model.ScheduleInput, jitterPct float64, rng *rand.Rand) {
	j := jitterPct / 100
	weights := schedule.OptionsOf().EnsureWeights()
	for _, key := range []string{
		model.WeightStaffing, model.WeightTeamBalance,
		model.WeightCareerBalance, model.WeightOffBalance,
	} {
		current, ok := weights[key]
		if !ok {
			current = 1.0
		}
		factor := 1 + (rng.Float64()*2-1)*j
		weights[key] = math.Max(0.1, current*factor)
	}
}

// buildRelaxedSchedule 按层级放宽权重与后处理参数
// 诊断快照命中的问题维度获得定向放宽，其余走层级默认值
func buildRelaxedSchedule(schedule *model.ScheduleInput, level int, snapshot *diagnostics.Report) *model.ScheduleInput {
	relaxed := schedule.Clone()
	decayIndex := level
	if decayIndex > 2 {
		decayIndex = 2
	}
	decay := [3]float64{0.8, 0.6, 0.4}[decayIndex]
	weights := relaxed.OptionsOf().EnsureWeights()
	for _, key := range []string{
		model.WeightStaffing, model.WeightTeamBalance, model.WeightCareerBalance,
		model.WeightOffBalance, model.WeightShiftPattern,
	} {
		current, ok := weights[key]
		if !ok {
			current = 1.0
		}
		weights[key] = math.Max(0.2, current*decay)
	}

	csp := relaxed.OptionsOf().EnsureCspSettings()
	baseOffTol := model.IntOr(csp.OffTolerance, 2)
	baseMaxShift := model.IntOr(csp.MaxSameShift, 2)
	baseTabu := model.IntOr(csp.TabuSize, 32)
	baseTime := model.IntOr(csp.TimeLimitMs, 4000)

	if snapshot != nil {
		if len(snapshot.StaffingShortages) > 0 {
			v := int(float64(baseTime) * (1.5 + float64(level)))
			csp.TimeLimitMs = &v
		}
		if len(snapshot.OffBalanceGaps) > 0 {
			v := baseOffTol + 2 + level
			csp.OffTolerance = &v
		}
		if len(snapshot.ShiftPatternBreaks) > 0 {
			v := baseMaxShift + 1 + level
			csp.MaxSameShift = &v
		}
		if len(snapshot.SpecialRequestMisses) > 0 {
			v := shrinkTabu(baseTabu, level)
			csp.TabuSize = &v
		}
	}
	if csp.OffTolerance == nil {
		v := baseOffTol + level
		csp.OffTolerance = &v
	}
	if csp.MaxSameShift == nil {
		v := baseMaxShift + level
		csp.MaxSameShift = &v
	}
	if csp.TabuSize == nil {
		v := shrinkTabu(baseTabu, level)
		csp.TabuSize = &v
	}
	if csp.TimeLimitMs == nil {
		v := int(float64(baseTime) * (1.5 + float64(level)))
		csp.TimeLimitMs = &v
	}
	return relaxed
}

func shrinkTabu(base, level int) int {
	v := base / (level + 1)
	if v < 8 {
		v = 8
	}
	return v
}

func relaxPhase(level int) string {
	return fmt.Sprintf("relaxed-%d", level+1)
}

func relaxMessage(level int) string {
	return fmt.Sprintf("Primary MILP run failed; applied relaxation level %d.", level)
}

// attemptScore 尝试得分：优先后处理最终罚分，否则按诊断合成
func attemptScore(r *diagnostics.Report) float64 {
	if r == nil {
		return math.Inf(1)
	}
	if r.Postprocess != nil {
		return r.Postprocess.FinalPenalty
	}
	total := 0.0
	for _, v := range r.StaffingShortages {
		total += 1000 * float64(v.Shortage)
	}
	for _, v := range r.TeamCoverageGaps {
		total += 400 * float64(v.Shortage)
	}
	for _, v := range r.CareerGroupCoverageGaps {
		total += 350 * float64(v.Shortage)
	}
	for _, v := range r.TeamWorkloadGaps {
		total += 200 * float64(v.Difference)
	}
	for _, v := range r.OffBalanceGaps {
		total += 180 * float64(v.Difference)
	}
	for _, v := range r.ShiftPatternBreaks {
		total += 120 * float64(v.Excess)
	}
	total += 150 * float64(len(r.SpecialRequestMisses))
	return total
}

// reportFromError 从求解错误中提取诊断快照
func reportFromError(err error) *diagnostics.Report {
	if r, ok := apperrors.GetDiagnostics(err).(*diagnostics.Report); ok {
		return r
	}
	return nil
}
