package orchestrator

import (
	"context"
	"math/rand"
	"strings"
	"testing"
	"time"

	"github.com/lunban/lunban/internal/config"
	apperrors "github.com/lunban/lunban/pkg/errors"
	"github.com/lunban/lunban/pkg/model"
	"github.com/lunban/lunban/pkg/scheduler/backend"
	"github.com/lunban/lunban/pkg/scheduler/diagnostics"
	"github.com/lunban/lunban/pkg/scheduler/preflight"
)

// scriptStep 一次后端调用的预设结果
type scriptStep struct {
	status backend.Status
	values map[string]int64
}

// scriptedBackend 按调用顺序回放脚本，超出脚本长度时重复最后一步
type scriptedBackend struct {
	name     string
	steps    []scriptStep
	calls    int
	gotLimit time.Duration
}

func (s *scriptedBackend) Name() string { return s.name }

func (s *scriptedBackend) Solve(_ context.Context, m *backend.Model, timeLimit time.Duration) (*backend.Solution, error) {
	s.gotLimit = timeLimit
	step := s.steps[len(s.steps)-1]
	if s.calls < len(s.steps) {
		step = s.steps[s.calls]
	}
	s.calls++
	values := make([]int64, m.NumVars())
	for i, v := range m.Vars() {
		values[i] = step.values[v.Name]
	}
	return &backend.Solution{
		Status:   step.status,
		Values:   values,
		WallTime: time.Millisecond,
	}, nil
}

func testConfig() *config.Config {
	return &config.Config{
		Solver: config.SolverConfig{DefaultSolver: "hybrid", MultiRunEnabled: true},
		Postprocess: config.PostprocessConfig{
			MaxIterations: 20,
			TimeLimitMs:   500,
			TabuSize:      8,
			MaxSameShift:  2,
			OffTolerance:  2,
			AnnealTemp:    5.0,
			AnnealCool:    0.92,
		},
	}
}

func testInput() *model.ScheduleInput {
	return &model.ScheduleInput{
		DepartmentID: "dept-1",
		StartDate:    "2025-03-03",
		EndDate:      "2025-03-04",
		Employees: []*model.Employee{
			{ID: "e1", TeamID: "t1"},
			{ID: "e2", TeamID: "t1"},
		},
		RequiredStaffPerShift: map[string]int{"D": 1, "E": 0, "N": 0},
	}
}

// feasibleValues e1连上两天白班，e2全休，人力与均衡均达标
func feasibleValues() map[string]int64 {
	return map[string]int64{
		"x_e1_2025_03_03_D": 1,
		"x_e1_2025_03_04_D": 1,
		"x_e2_2025_03_03_O": 1,
		"x_e2_2025_03_04_O": 1,
	}
}

func optimalStep() scriptStep {
	return scriptStep{status: backend.StatusOptimal, values: feasibleValues()}
}

func infeasibleStep() scriptStep {
	return scriptStep{status: backend.StatusInfeasible}
}

func findIssue(issues []preflight.Issue, issueType string) *preflight.Issue {
	for i := range issues {
		if issues[i].Type == issueType {
			return &issues[i]
		}
	}
	return nil
}

func TestSolveHybridPrimarySuccess(t *testing.T) {
	cpsat := &scriptedBackend{name: "ortools", steps: []scriptStep{optimalStep()}}
	highs := &scriptedBackend{name: "highs", steps: []scriptStep{optimalStep()}}
	o := New(cpsat, highs, testConfig())

	outcome, err := o.Solve(context.Background(), testInput(), "")
	if err != nil {
		t.Fatalf("求解失败: %v", err)
	}
	if cpsat.calls != 1 || highs.calls != 0 {
		t.Errorf("后端调用次数 cpsat=%d highs=%d, want 1/0", cpsat.calls, highs.calls)
	}
	if len(outcome.Assignments) != 4 {
		t.Errorf("指派数 = %d, want 4", len(outcome.Assignments))
	}
	if outcome.Report.Postprocess == nil {
		t.Fatal("主路径应带局部搜索统计")
	}
	if outcome.Report.Postprocess.FinalPenalty != 0 {
		t.Errorf("可行方案罚分 = %v, want 0", outcome.Report.Postprocess.FinalPenalty)
	}
	if findIssue(outcome.Report.PreflightIssues, preflight.IssueSolverInfo) != nil {
		t.Error("主后端成功时不应有solverInfo注记")
	}
	if findIssue(outcome.Report.PreflightIssues, preflight.IssueFallbackRelaxation) != nil {
		t.Error("主后端成功时不应有松弛注记")
	}
}

func TestSolveExplicitHighs(t *testing.T) {
	cpsat := &scriptedBackend{name: "ortools", steps: []scriptStep{optimalStep()}}
	highs := &scriptedBackend{name: "highs", steps: []scriptStep{optimalStep()}}
	o := New(cpsat, highs, testConfig())

	outcome, err := o.Solve(context.Background(), testInput(), "highs")
	if err != nil {
		t.Fatalf("求解失败: %v", err)
	}
	if cpsat.calls != 0 || highs.calls != 1 {
		t.Errorf("后端调用次数 cpsat=%d highs=%d, want 0/1", cpsat.calls, highs.calls)
	}
	info := findIssue(outcome.Report.PreflightIssues, preflight.IssueSolverInfo)
	if info == nil || info.Solver != "highs" {
		t.Fatalf("缺少solverInfo注记: %+v", outcome.Report.PreflightIssues)
	}
	if !strings.Contains(info.Message, "highs-primary") {
		t.Errorf("注记应标明主阶段: %q", info.Message)
	}
	if outcome.Report.Postprocess != nil {
		t.Error("MILP路径不应做局部搜索")
	}
}

func TestSolveRelaxationRecovers(t *testing.T) {
	cpsat := &scriptedBackend{name: "ortools", steps: []scriptStep{infeasibleStep(), optimalStep()}}
	highs := &scriptedBackend{name: "highs", steps: []scriptStep{optimalStep()}}
	o := New(cpsat, highs, testConfig())

	outcome, err := o.Solve(context.Background(), testInput(), "")
	if err != nil {
		t.Fatalf("求解失败: %v", err)
	}
	if cpsat.calls != 2 || highs.calls != 0 {
		t.Errorf("后端调用次数 cpsat=%d highs=%d, want 2/0", cpsat.calls, highs.calls)
	}
	relax := findIssue(outcome.Report.PreflightIssues, preflight.IssueFallbackRelaxation)
	if relax == nil || relax.Level != 1 {
		t.Fatalf("缺少一级松弛注记: %+v", outcome.Report.PreflightIssues)
	}
	if !strings.Contains(relax.Message, "relaxation level 1") {
		t.Errorf("松弛注记内容不符: %q", relax.Message)
	}
}

func TestSolveHybridFallsBackToHighs(t *testing.T) {
	cpsat := &scriptedBackend{name: "ortools", steps: []scriptStep{infeasibleStep()}}
	highs := &scriptedBackend{name: "highs", steps: []scriptStep{optimalStep()}}
	o := New(cpsat, highs, testConfig())

	outcome, err := o.Solve(context.Background(), testInput(), "")
	if err != nil {
		t.Fatalf("求解失败: %v", err)
	}
	// 主求解 + 三级松弛全部失败后才切换备选后端
	if cpsat.calls != 4 || highs.calls != 1 {
		t.Errorf("后端调用次数 cpsat=%d highs=%d, want 4/1", cpsat.calls, highs.calls)
	}
	info := findIssue(outcome.Report.PreflightIssues, preflight.IssueSolverInfo)
	if info == nil || !strings.Contains(info.Message, "highs-fallback") {
		t.Fatalf("缺少备选后端注记: %+v", outcome.Report.PreflightIssues)
	}
}

func TestSolveExplicitCpsatDoesNotFallBack(t *testing.T) {
	cpsat := &scriptedBackend{name: "ortools", steps: []scriptStep{infeasibleStep()}}
	highs := &scriptedBackend{name: "highs", steps: []scriptStep{optimalStep()}}
	o := New(cpsat, highs, testConfig())

	_, err := o.Solve(context.Background(), testInput(), "cpsat")
	if !apperrors.Is(err, apperrors.CodeSolverFailure) {
		t.Fatalf("应返回求解失败错误, got %v", err)
	}
	if highs.calls != 0 {
		t.Errorf("显式指定CP-SAT时不应调用HiGHS, calls=%d", highs.calls)
	}
	if cpsat.calls != 4 {
		t.Errorf("应走完松弛阶梯, calls=%d", cpsat.calls)
	}
}

func TestSolveExplicitHighsFailureRaises(t *testing.T) {
	cpsat := &scriptedBackend{name: "ortools", steps: []scriptStep{optimalStep()}}
	highs := &scriptedBackend{name: "highs", steps: []scriptStep{infeasibleStep()}}
	o := New(cpsat, highs, testConfig())

	_, err := o.Solve(context.Background(), testInput(), "highs")
	if !apperrors.Is(err, apperrors.CodeSolverFailure) {
		t.Fatalf("应返回求解失败错误, got %v", err)
	}
	if cpsat.calls != 0 {
		t.Errorf("显式指定HiGHS失败时不应静默切换, cpsat calls=%d", cpsat.calls)
	}
}

func TestSolveCancelled(t *testing.T) {
	cpsat := &scriptedBackend{name: "ortools", steps: []scriptStep{optimalStep()}}
	highs := &scriptedBackend{name: "highs", steps: []scriptStep{optimalStep()}}
	o := New(cpsat, highs, testConfig())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := o.Solve(ctx, testInput(), "")
	if !apperrors.Is(err, apperrors.CodeSolverCancelled) {
		t.Fatalf("取消后应返回取消错误, got %v", err)
	}
}

func TestSolveMultiRunSummary(t *testing.T) {
	cpsat := &scriptedBackend{name: "ortools", steps: []scriptStep{optimalStep()}}
	highs := &scriptedBackend{name: "highs", steps: []scriptStep{optimalStep()}}
	o := New(cpsat, highs, testConfig())

	jitter := 10.0
	seed := int64(42)
	input := testInput()
	input.Options = &model.Options{
		MultiRun: &model.MultiRun{Attempts: 3, WeightJitterPct: &jitter, Seed: &seed},
	}
	outcome, err := o.Solve(context.Background(), input, "")
	if err != nil {
		t.Fatalf("求解失败: %v", err)
	}
	summary := findIssue(outcome.Report.PreflightIssues, preflight.IssueMultiRunSummary)
	if summary == nil {
		t.Fatalf("缺少多次求解汇总: %+v", outcome.Report.PreflightIssues)
	}
	if summary.Attempts != 3 {
		t.Errorf("attempts = %d, want 3", summary.Attempts)
	}
	if summary.BestAttempt < 1 || summary.BestAttempt > 3 {
		t.Errorf("bestAttempt = %d, 应落在1..3", summary.BestAttempt)
	}
	// 首次尝试即零罚分，应提前收敛
	if summary.BestAttempt != 1 || cpsat.calls != 1 {
		t.Errorf("零罚分应在首次尝试后停止: bestAttempt=%d calls=%d", summary.BestAttempt, cpsat.calls)
	}
	if summary.BestScore == nil || *summary.BestScore != 0 {
		t.Errorf("bestScore不符: %+v", summary.BestScore)
	}
	// 汇总必须携带可复现参数
	if summary.Seed == nil || *summary.Seed != 42 {
		t.Errorf("seed不符: %+v", summary.Seed)
	}
	if summary.JitterPct == nil || *summary.JitterPct != 10 {
		t.Errorf("jitterPct不符: %+v", summary.JitterPct)
	}
}

func TestSolveMultiRunDisabledByConfig(t *testing.T) {
	cpsat := &scriptedBackend{name: "ortools", steps: []scriptStep{optimalStep()}}
	highs := &scriptedBackend{name: "highs", steps: []scriptStep{optimalStep()}}
	cfg := testConfig()
	cfg.Solver.MultiRunEnabled = false
	o := New(cpsat, highs, cfg)

	jitter := 10.0
	seed := int64(42)
	input := testInput()
	input.Options = &model.Options{
		MultiRun: &model.MultiRun{Attempts: 3, WeightJitterPct: &jitter, Seed: &seed},
	}
	outcome, err := o.Solve(context.Background(), input, "")
	if err != nil {
		t.Fatalf("求解失败: %v", err)
	}
	if cpsat.calls != 1 {
		t.Errorf("关停集成后应只求解一次, calls=%d", cpsat.calls)
	}
	if findIssue(outcome.Report.PreflightIssues, preflight.IssueMultiRunSummary) != nil {
		t.Error("关停集成后不应有多次求解汇总")
	}
}

func TestSolveUsesConfiguredTimeLimit(t *testing.T) {
	cpsat := &scriptedBackend{name: "ortools", steps: []scriptStep{optimalStep()}}
	highs := &scriptedBackend{name: "highs", steps: []scriptStep{optimalStep()}}
	cfg := testConfig()
	cfg.Solver.MaxSolveTime = 90 * time.Second
	o := New(cpsat, highs, cfg)

	// 输入未给maxSolveTimeMs，时限应取自环境配置
	if _, err := o.Solve(context.Background(), testInput(), ""); err != nil {
		t.Fatalf("求解失败: %v", err)
	}
	if cpsat.gotLimit != 90*time.Second {
		t.Errorf("时限 = %v, want 90s", cpsat.gotLimit)
	}

	// 请求内maxSolveTimeMs优先于环境配置
	input := testInput()
	input.Options = &model.Options{MaxSolveTimeMs: 2500}
	if _, err := o.Solve(context.Background(), input, ""); err != nil {
		t.Fatalf("求解失败: %v", err)
	}
	if cpsat.gotLimit != 2500*time.Millisecond {
		t.Errorf("时限 = %v, want 2.5s", cpsat.gotLimit)
	}
}

func TestJitterWeightsDeterministicAndBounded(t *testing.T) {
	makeInput := func() *model.ScheduleInput {
		input := testInput()
		input.Options = &model.Options{
			ConstraintWeights: model.ConstraintWeights{model.WeightStaffing: 2.0},
		}
		return input
	}
	a := makeInput()
	b := makeInput()
	jitterWeights(a, 10, rand.New(rand.NewSource(7)))
	jitterWeights(b, 10, rand.New(rand.NewSource(7)))

	for _, key := range []string{
		model.WeightStaffing, model.WeightTeamBalance,
		model.WeightCareerBalance, model.WeightOffBalance,
	} {
		if a.Options.ConstraintWeights[key] != b.Options.ConstraintWeights[key] {
			t.Errorf("相同种子应产生相同扰动: %s", key)
		}
	}
	staffing := a.Options.ConstraintWeights[model.WeightStaffing]
	if staffing < 1.8 || staffing > 2.2 {
		t.Errorf("±10%%扰动越界: %v", staffing)
	}
	if _, ok := a.Options.ConstraintWeights[model.WeightShiftPattern]; ok {
		t.Error("班次模式权重不应参与扰动")
	}
}

func TestApplyPatternOverride(t *testing.T) {
	night := model.PatternNightIntensive
	override := 3
	input := testInput()
	input.Employees = append(input.Employees, &model.Employee{
		ID: "e3", TeamID: "t1", WorkPatternType: night,
	})
	input.Options = &model.Options{
		PatternConstraints: &model.PatternConstraints{MaxConsecutiveDaysThreeShift: &override},
	}
	applyPatternOverride(input)

	for _, emp := range input.Employees {
		if emp.Pattern() == model.PatternThreeShift {
			if got := model.IntOr(emp.MaxConsecutiveDaysPreferred, 0); got != 3 {
				t.Errorf("三班倒员工 %s 上限 = %d, want 3", emp.ID, got)
			}
		} else if emp.MaxConsecutiveDaysPreferred != nil {
			t.Errorf("非三班倒员工 %s 不应被覆盖", emp.ID)
		}
	}
}

func TestBuildRelaxedSchedule(t *testing.T) {
	t.Run("权重衰减有下限", func(t *testing.T) {
		input := testInput()
		input.Options = &model.Options{
			ConstraintWeights: model.ConstraintWeights{model.WeightStaffing: 0.3},
		}
		relaxed := buildRelaxedSchedule(input, 2, nil)
		weights := relaxed.Options.ConstraintWeights
		if weights[model.WeightStaffing] != 0.2 {
			t.Errorf("衰减后应落在下限0.2: %v", weights[model.WeightStaffing])
		}
		// 未显式设置的权重按1.0衰减
		if weights[model.WeightTeamBalance] != 0.4 {
			t.Errorf("二级衰减 = %v, want 0.4", weights[model.WeightTeamBalance])
		}
		if input.Options.ConstraintWeights[model.WeightStaffing] != 0.3 {
			t.Error("松弛不应修改原输入")
		}
	})

	t.Run("无快照走层级默认", func(t *testing.T) {
		relaxed := buildRelaxedSchedule(testInput(), 1, nil)
		csp := relaxed.Options.CspSettings
		if model.IntOr(csp.OffTolerance, 0) != 3 {
			t.Errorf("offTolerance = %d, want 3", model.IntOr(csp.OffTolerance, 0))
		}
		if model.IntOr(csp.MaxSameShift, 0) != 3 {
			t.Errorf("maxSameShift = %d, want 3", model.IntOr(csp.MaxSameShift, 0))
		}
		if model.IntOr(csp.TabuSize, 0) != 16 {
			t.Errorf("tabuSize = %d, want 16", model.IntOr(csp.TabuSize, 0))
		}
		if model.IntOr(csp.TimeLimitMs, 0) != 10000 {
			t.Errorf("timeLimitMs = %d, want 10000", model.IntOr(csp.TimeLimitMs, 0))
		}
	})

	t.Run("诊断快照定向放宽", func(t *testing.T) {
		snapshot := &diagnostics.Report{
			StaffingShortages:    []diagnostics.StaffingShortage{{Date: "2025-03-03", ShiftType: "D", Shortage: 1}},
			OffBalanceGaps:       []diagnostics.OffBalanceGap{{TeamID: "t1", Difference: 4}},
			ShiftPatternBreaks:   []diagnostics.ShiftPatternBreak{{EmployeeID: "e1", Excess: 1}},
			SpecialRequestMisses: []diagnostics.SpecialRequestMiss{{EmployeeID: "e1", Date: "2025-03-03"}},
		}
		relaxed := buildRelaxedSchedule(testInput(), 0, snapshot)
		csp := relaxed.Options.CspSettings
		if model.IntOr(csp.TimeLimitMs, 0) != 6000 {
			t.Errorf("timeLimitMs = %d, want 6000", model.IntOr(csp.TimeLimitMs, 0))
		}
		if model.IntOr(csp.OffTolerance, 0) != 4 {
			t.Errorf("offTolerance = %d, want 4", model.IntOr(csp.OffTolerance, 0))
		}
		if model.IntOr(csp.MaxSameShift, 0) != 3 {
			t.Errorf("maxSameShift = %d, want 3", model.IntOr(csp.MaxSameShift, 0))
		}
		if model.IntOr(csp.TabuSize, 0) != 32 {
			t.Errorf("tabuSize = %d, want 32", model.IntOr(csp.TabuSize, 0))
		}
	})
}

func TestAttemptScore(t *testing.T) {
	t.Run("优先取局部搜索罚分", func(t *testing.T) {
		r := &diagnostics.Report{
			Postprocess:       &diagnostics.PostprocessStats{FinalPenalty: 123.5},
			StaffingShortages: []diagnostics.StaffingShortage{{Shortage: 9}},
		}
		if got := attemptScore(r); got != 123.5 {
			t.Errorf("score = %v, want 123.5", got)
		}
	})

	t.Run("无统计时按诊断合成", func(t *testing.T) {
		r := &diagnostics.Report{
			StaffingShortages:       []diagnostics.StaffingShortage{{Shortage: 2}},
			TeamCoverageGaps:        []diagnostics.TeamCoverageGap{{Shortage: 1}},
			CareerGroupCoverageGaps: []diagnostics.CareerGroupCoverageGap{{Shortage: 1}},
			TeamWorkloadGaps:        []diagnostics.TeamWorkloadGap{{Difference: 3}},
			OffBalanceGaps:          []diagnostics.OffBalanceGap{{Difference: 2}},
			ShiftPatternBreaks:      []diagnostics.ShiftPatternBreak{{Excess: 1}},
			SpecialRequestMisses:    []diagnostics.SpecialRequestMiss{{EmployeeID: "e1"}},
		}
		want := 1000.0*2 + 400 + 350 + 200*3 + 180*2 + 120 + 150
		if got := attemptScore(r); got != want {
			t.Errorf("score = %v, want %v", got, want)
		}
	})
}
