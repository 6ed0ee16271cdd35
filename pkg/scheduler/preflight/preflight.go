// Package preflight 在建模前静态检查输入的可满足性
// 检查只产出提示，不中止求解：不可满足的约束由软约束松弛兜底
package preflight

import (
	"sort"
	"strings"

	"github.com/lunban/lunban/pkg/model"
)

// 预检问题类型
const (
	IssueOffRequirementImpossible      = "offRequirementImpossible"
	IssueInsufficientPotentialStaff    = "insufficientPotentialStaff"
	IssueTeamCoverageImpossible        = "teamCoverageImpossible"
	IssueCareerGroupCoverageImpossible = "careerGroupCoverageImpossible"
	IssueSpecialRequestUnknownEmployee = "specialRequestUnknownEmployee"
	IssueSpecialRequestInvalidDate     = "specialRequestInvalidDate"
	IssueSpecialRequestPatternConflict = "specialRequestPatternConflict"

	// 求解流程注记（编排器追加，与预检问题同列表返回）
	IssueSolverInfo         = "solverInfo"
	IssueFallbackRelaxation = "fallbackRelaxation"
	IssueMultiRunSummary    = "multiRunSummary"
)

// Issue 预检问题或求解注记
type Issue struct {
	Type             string `json:"type"`
	Date             string `json:"date,omitempty"`
	EmployeeID       string `json:"employeeId,omitempty"`
	ShiftType        string `json:"shiftType,omitempty"`
	TeamID           string `json:"teamId,omitempty"`
	CareerGroupAlias string `json:"careerGroupAlias,omitempty"`
	Required         int    `json:"required,omitempty"`
	Available        *int   `json:"available,omitempty"`
	RequiredOffDays  int    `json:"requiredOffDays,omitempty"`
	AvailableDays    int    `json:"availableDays,omitempty"`
	RequestedShift   string `json:"requestedShift,omitempty"`
	WorkPatternType  string `json:"workPatternType,omitempty"`

	// 注记字段
	Message     string   `json:"message,omitempty"`
	Solver      string   `json:"solver,omitempty"`
	Level       int      `json:"level,omitempty"`
	Attempts    int      `json:"attempts,omitempty"`
	BestAttempt int      `json:"bestAttempt,omitempty"`
	BestScore   *float64 `json:"bestScore,omitempty"`
	Seed        *int64   `json:"seed,omitempty"`
	JitterPct   *float64 `json:"jitterPct,omitempty"`
}

// SolverInfo 求解器使用注记
func SolverInfo(solver, message string) Issue {
	return Issue{Type: IssueSolverInfo, Solver: solver, Message: message}
}

// FallbackRelaxation 松弛降级注记
func FallbackRelaxation(level int, message string) Issue {
	return Issue{Type: IssueFallbackRelaxation, Level: level, Message: message}
}

// MultiRunSummary 多次求解汇总注记，记录最优尝试与可复现参数
func MultiRunSummary(attempts, bestAttempt int, bestScore float64, seed int64, jitterPct float64) Issue {
	score := bestScore
	s := seed
	j := jitterPct
	return Issue{
		Type:        IssueMultiRunSummary,
		Attempts:    attempts,
		BestAttempt: bestAttempt,
		BestScore:   &score,
		Seed:        &s,
		JitterPct:   &j,
	}
}

// Analyze 执行全部预检，按固定顺序产出问题列表
func Analyze(input *model.ScheduleInput, cal *model.Calendar) []Issue {
	var issues []Issue

	required := input.RequiredStaffByCode()
	offTargets := input.OffDayTargets(cal)
	teamIDs := input.TeamIDs()
	groupAliases := input.CareerGroupAliases()
	teamCodes := toSet(model.TeamCoverageCodes(required))
	employees := input.EmployeeByID()
	totalDays := cal.Days()

	// 休息日目标不可能在排班期内达成
	for _, emp := range input.Employees {
		if target := offTargets[emp.ID]; target > totalDays {
			issues = append(issues, Issue{
				Type:            IssueOffRequirementImpossible,
				EmployeeID:      emp.ID,
				RequiredOffDays: target,
				AvailableDays:   totalDays,
			})
		}
	}

	// 逐日逐班次的人力与覆盖可行性
	for _, date := range cal.Dates {
		weekend := cal.IsWeekendOrHoliday(date)
		for _, code := range sortedCodes(required) {
			minRequired := required[code]
			available := 0
			for _, emp := range input.Employees {
				if model.IsShiftAllowed(emp.Pattern(), code, weekend) {
					available++
				}
			}
			if available < minRequired {
				avail := available
				issues = append(issues, Issue{
					Type:      IssueInsufficientPotentialStaff,
					Date:      date,
					ShiftType: code,
					Required:  minRequired,
					Available: &avail,
				})
			}
			if !teamCodes[code] {
				continue
			}
			for _, teamID := range teamIDs {
				if countEligible(input.Employees, code, weekend, func(e *model.Employee) bool {
					return e.TeamID == teamID
				}) == 0 {
					issues = append(issues, Issue{
						Type:      IssueTeamCoverageImpossible,
						Date:      date,
						ShiftType: code,
						TeamID:    teamID,
					})
				}
			}
			for _, alias := range groupAliases {
				if countEligible(input.Employees, code, weekend, func(e *model.Employee) bool {
					return e.CareerGroupAlias == alias
				}) == 0 {
					issues = append(issues, Issue{
						Type:             IssueCareerGroupCoverageImpossible,
						Date:             date,
						ShiftType:        code,
						CareerGroupAlias: alias,
					})
				}
			}
		}
	}

	// 特殊请求与工作模式的冲突
	for _, req := range input.SpecialRequests {
		code := req.NormalizedRequestCode()
		if code == "" {
			continue
		}
		emp, ok := employees[req.EmployeeID]
		if !ok {
			issues = append(issues, Issue{
				Type:       IssueSpecialRequestUnknownEmployee,
				EmployeeID: req.EmployeeID,
				Date:       req.Date,
			})
			continue
		}
		if _, err := model.ParseDate(req.Date); err != nil {
			issues = append(issues, Issue{
				Type:       IssueSpecialRequestInvalidDate,
				EmployeeID: req.EmployeeID,
				Date:       req.Date,
			})
			continue
		}
		if !model.IsShiftAllowed(emp.Pattern(), code, cal.IsWeekendOrHoliday(req.Date)) {
			issues = append(issues, Issue{
				Type:            IssueSpecialRequestPatternConflict,
				EmployeeID:      emp.ID,
				Date:            req.Date,
				RequestedShift:  req.ShiftTypeCode,
				WorkPatternType: string(emp.Pattern()),
			})
		}
	}

	return issues
}

func countEligible(employees []*model.Employee, code string, weekend bool, match func(*model.Employee) bool) int {
	n := 0
	for _, emp := range employees {
		if match(emp) && model.IsShiftAllowed(emp.Pattern(), code, weekend) {
			n++
		}
	}
	return n
}

func toSet(codes []string) map[string]bool {
	set := make(map[string]bool, len(codes))
	for _, c := range codes {
		set[c] = true
	}
	return set
}

func sortedCodes(required map[string]int) []string {
	codes := make([]string, 0, len(required))
	for code, cnt := range required {
		if cnt > 0 {
			codes = append(codes, strings.ToUpper(code))
		}
	}
	// map遍历无序，稳定输出便于测试与对比
	sort.Strings(codes)
	return codes
}
