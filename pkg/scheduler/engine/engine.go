package engine

import (
	"context"
	"sort"
	"time"

	apperrors "github.com/lunban/lunban/pkg/errors"
	"github.com/lunban/lunban/pkg/logger"
	"github.com/lunban/lunban/pkg/model"
	"github.com/lunban/lunban/pkg/scheduler/backend"
	"github.com/lunban/lunban/pkg/scheduler/diagnostics"
)

// DefaultSolveTimeLimit 输入未指定maxSolveTimeMs时的求解时限
const DefaultSolveTimeLimit = 60 * time.Second

// Result 一次求解的产物
type Result struct {
	Assignments []model.Assignment
	Report      *diagnostics.Report
	Status      backend.Status
	TimedOut    bool
	WallTime    time.Duration
}

// Engine 面向单一后端的求解引擎
type Engine struct {
	backend      backend.Backend
	defaultLimit time.Duration
	log          *logger.SolverLogger
}

// New 创建引擎
func New(be backend.Backend) *Engine {
	return &Engine{backend: be, defaultLimit: DefaultSolveTimeLimit, log: logger.NewSolverLogger()}
}

// WithDefaultTimeLimit 覆盖未指定maxSolveTimeMs时的求解时限（环境配置MILP_MAX_SOLVE_TIME）
func (e *Engine) WithDefaultTimeLimit(d time.Duration) *Engine {
	if d > 0 {
		e.defaultLimit = d
	}
	return e
}

// Backend 引擎绑定的后端
func (e *Engine) Backend() backend.Backend { return e.backend }

// Solve 建模并求解一次排班
// 时限内未证明最优但有可用解时正常返回并在诊断中标记超时；
// 不可行或出错时返回携带预检诊断的求解失败错误
func (e *Engine) Solve(ctx context.Context, input *model.ScheduleInput) (*Result, error) {
	cal, err := input.BuildCalendar()
	if err != nil {
		return nil, err
	}
	e.log.StartSolve(input.DepartmentID, len(input.Employees), cal.Days())

	build := NewBuild(input, cal)

	timeLimit := e.defaultLimit
	if input.Options != nil && input.Options.MaxSolveTimeMs > 0 {
		timeLimit = time.Duration(input.Options.MaxSolveTimeMs) * time.Millisecond
	}

	solution, err := e.backend.Solve(ctx, build.Model, timeLimit)
	if err != nil {
		e.log.AttemptFailed(e.backend.Name(), err)
		return nil, apperrors.SolverFailure("排班模型求解出错", failureReport(build, backend.StatusError, 0))
	}

	switch solution.Status {
	case backend.StatusCancelled:
		return nil, apperrors.SolverCancelled(failureReport(build, solution.Status, solution.WallTime))
	case backend.StatusInfeasible:
		return nil, apperrors.SolverFailure("约束组合无可行解", failureReport(build, solution.Status, solution.WallTime))
	case backend.StatusTimeout:
		return nil, apperrors.SolverFailure("求解超时且无可用解", failureReport(build, solution.Status, solution.WallTime))
	case backend.StatusError:
		return nil, apperrors.SolverFailure("求解器返回错误状态", failureReport(build, solution.Status, solution.WallTime))
	}

	assignments := extractAssignments(build, solution)
	report := extractReport(build, solution)
	e.log.SolveComplete(input.DepartmentID, solution.WallTime, solution.Objective)

	return &Result{
		Assignments: assignments,
		Report:      report,
		Status:      solution.Status,
		TimedOut:    solution.TimedOut,
		WallTime:    solution.WallTime,
	}, nil
}

// failureReport 无解时仍返回预检诊断，供前端提示
func failureReport(build *Build, status backend.Status, wall time.Duration) *diagnostics.Report {
	return &diagnostics.Report{
		StaffingShortages:       []diagnostics.StaffingShortage{},
		TeamCoverageGaps:        []diagnostics.TeamCoverageGap{},
		CareerGroupCoverageGaps: []diagnostics.CareerGroupCoverageGap{},
		TeamWorkloadGaps:        []diagnostics.TeamWorkloadGap{},
		OffBalanceGaps:          []diagnostics.OffBalanceGap{},
		ShiftPatternBreaks:      []diagnostics.ShiftPatternBreak{},
		SpecialRequestMisses:    []diagnostics.SpecialRequestMiss{},
		AvoidPatternViolations:  []diagnostics.AvoidPatternViolation{},
		PreflightIssues:         build.PreflightIssues,
		SolverStatus:            string(status),
		SolverWallTimeMs:        wall.Milliseconds(),
	}
}

// extractAssignments 从解中读取指派，特殊请求命中的格子标记为锁定
func extractAssignments(build *Build, solution *backend.Solution) []model.Assignment {
	assignments := make([]model.Assignment, 0, len(build.input.Employees)*build.cal.Days())
	for _, key := range build.orderedKeys {
		if !solution.BoolValue(build.vars[key]) {
			continue
		}
		assignments = append(assignments, model.Assignment{
			EmployeeID: key.emp,
			Date:       key.date,
			ShiftID:    build.input.ShiftIDFor(key.code),
			ShiftType:  key.code,
			IsLocked:   build.specialTargets[key],
		})
	}
	return assignments
}

// extractReport 把松弛变量取值翻译成诊断记录
func extractReport(build *Build, solution *backend.Solution) *diagnostics.Report {
	report := failureReport(build, solution.Status, solution.WallTime)
	report.SolverTimedOut = solution.TimedOut

	for _, entry := range build.staffingSlacks {
		shortage := int(solution.IntValue(entry.v))
		if shortage <= 0 {
			continue
		}
		required := build.staffingRequirements[entry.date][entry.code]
		report.StaffingShortages = append(report.StaffingShortages, diagnostics.StaffingShortage{
			Date:      entry.date,
			ShiftType: entry.code,
			Required:  required,
			Covered:   required - shortage,
			Shortage:  shortage,
		})
	}
	for _, entry := range build.teamSlacks {
		if gap := int(solution.IntValue(entry.v)); gap > 0 {
			report.TeamCoverageGaps = append(report.TeamCoverageGaps, diagnostics.TeamCoverageGap{
				Date: entry.date, ShiftType: entry.code, TeamID: entry.key, Shortage: gap,
			})
		}
	}
	for _, entry := range build.careerSlacks {
		if gap := int(solution.IntValue(entry.v)); gap > 0 {
			report.CareerGroupCoverageGaps = append(report.CareerGroupCoverageGaps, diagnostics.CareerGroupCoverageGap{
				Date: entry.date, ShiftType: entry.code, CareerGroupAlias: entry.key, Shortage: gap,
			})
		}
	}
	for _, entry := range build.teamBalanceEntries {
		if excess := int(solution.IntValue(entry.v)); excess > 0 {
			report.TeamWorkloadGaps = append(report.TeamWorkloadGaps, diagnostics.TeamWorkloadGap{
				TeamA:      entry.a,
				TeamB:      entry.b,
				Difference: excess + entry.tolerance,
				Tolerance:  entry.tolerance,
			})
		}
	}
	report.OffBalanceGaps = extractOffBalanceGaps(build, solution)
	for _, entry := range build.patternEntries {
		if excess := int(solution.IntValue(entry.v)); excess > 0 {
			report.ShiftPatternBreaks = append(report.ShiftPatternBreaks, diagnostics.ShiftPatternBreak{
				EmployeeID: entry.employeeID,
				ShiftType:  entry.shiftType,
				StartDate:  entry.startDate,
				Window:     entry.window,
				Excess:     excess,
			})
		}
	}
	for _, entry := range build.restEntries {
		if solution.IntValue(entry.v) > 0 {
			report.ShiftPatternBreaks = append(report.ShiftPatternBreaks, diagnostics.ShiftPatternBreak{
				EmployeeID: entry.employeeID,
				ShiftType:  entry.shiftType,
				StartDate:  entry.startDate,
				Window:     entry.window,
				Excess:     1,
			})
		}
	}
	for _, entry := range build.specialSlacks {
		if solution.IntValue(entry.v) > 0 {
			report.SpecialRequestMisses = append(report.SpecialRequestMisses, diagnostics.SpecialRequestMiss{
				EmployeeID: entry.key, Date: entry.date, ShiftType: entry.code,
			})
		}
	}
	for _, entry := range build.shiftBalanceEntries {
		if excess := int(solution.IntValue(entry.v)); excess > 0 {
			report.ShiftBalanceGaps = append(report.ShiftBalanceGaps, diagnostics.ShiftBalanceGap{
				EmployeeID: entry.employeeID,
				ShiftA:     entry.shiftA,
				ShiftB:     entry.shiftB,
				Difference: excess + entry.tolerance,
				Tolerance:  entry.tolerance,
			})
		}
	}
	return report
}

// extractOffBalanceGaps 从休息日计数变量重算两两差值（成对松弛只报一次）
func extractOffBalanceGaps(build *Build, solution *backend.Solution) []diagnostics.OffBalanceGap {
	gaps := []diagnostics.OffBalanceGap{}
	members := build.input.TeamMembers()
	teamIDs := build.input.TeamIDs()
	sort.Strings(teamIDs)
	for _, teamID := range teamIDs {
		team := members[teamID]
		if len(team) < 2 {
			continue
		}
		for i := 0; i < len(team); i++ {
			for j := i + 1; j < len(team); j++ {
				a, ok1 := build.offCountVars[team[i].ID]
				c, ok2 := build.offCountVars[team[j].ID]
				if !ok1 || !ok2 {
					continue
				}
				diff := int(solution.IntValue(a) - solution.IntValue(c))
				if diff < 0 {
					diff = -diff
				}
				if diff > offBalanceTolerance {
					gaps = append(gaps, diagnostics.OffBalanceGap{
						TeamID:     teamID,
						EmployeeA:  team[i].ID,
						EmployeeB:  team[j].ID,
						Difference: diff,
						Tolerance:  offBalanceTolerance,
					})
				}
			}
		}
	}
	return gaps
}
