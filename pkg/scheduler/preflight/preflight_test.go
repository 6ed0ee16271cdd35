package preflight

import (
	"testing"

	"github.com/lunban/lunban/pkg/model"
)

func buildInput() *model.ScheduleInput {
	return &model.ScheduleInput{
		DepartmentID: "dept-1",
		StartDate:    "2025-03-03",
		EndDate:      "2025-03-05",
		Employees: []*model.Employee{
			{ID: "e1", TeamID: "t1", CareerGroupAlias: "senior"},
			{ID: "e2", TeamID: "t1", CareerGroupAlias: "junior"},
			{ID: "e3", TeamID: "t2", CareerGroupAlias: "junior"},
		},
		RequiredStaffPerShift: map[string]int{"D": 2},
	}
}

func analyze(t *testing.T, input *model.ScheduleInput) []Issue {
	t.Helper()
	cal, err := input.BuildCalendar()
	if err != nil {
		t.Fatalf("日历构建失败: %v", err)
	}
	return Analyze(input, cal)
}

func countByType(issues []Issue, kind string) int {
	n := 0
	for _, issue := range issues {
		if issue.Type == kind {
			n++
		}
	}
	return n
}

func TestAnalyzeCleanInput(t *testing.T) {
	issues := analyze(t, buildInput())
	if len(issues) != 0 {
		t.Errorf("无冲突输入不应产出问题, got %v", issues)
	}
}

func TestInsufficientPotentialStaff(t *testing.T) {
	input := buildInput()
	input.RequiredStaffPerShift = map[string]int{"D": 5}
	issues := analyze(t, input)
	// 3天每天都缺人
	if got := countByType(issues, IssueInsufficientPotentialStaff); got != 3 {
		t.Fatalf("人力不足问题数 = %d, want 3", got)
	}
	first := issues[0]
	if first.ShiftType != "D" || first.Required != 5 || first.Available == nil || *first.Available != 3 {
		t.Errorf("问题字段不符: %+v", first)
	}
}

func TestTeamCoverageImpossible(t *testing.T) {
	input := buildInput()
	// t2只有夜班专职，白班无人可排
	input.Employees[2].WorkPatternType = model.PatternNightIntensive
	input.RequiredStaffPerShift = map[string]int{"D": 1}
	issues := analyze(t, input)
	if got := countByType(issues, IssueTeamCoverageImpossible); got != 3 {
		t.Errorf("团队覆盖问题数 = %d, want 3", got)
	}
}

func TestCareerGroupCoverageImpossible(t *testing.T) {
	input := buildInput()
	input.Employees[0].WorkPatternType = model.PatternNightIntensive // senior 只剩夜班
	input.RequiredStaffPerShift = map[string]int{"D": 1}
	issues := analyze(t, input)
	if got := countByType(issues, IssueCareerGroupCoverageImpossible); got != 3 {
		t.Errorf("职级覆盖问题数 = %d, want 3", got)
	}
}

func TestOffRequirementImpossible(t *testing.T) {
	input := buildInput()
	input.PreviousOffAccruals = map[string]int{"e1": 10}
	issues := analyze(t, input)
	if got := countByType(issues, IssueOffRequirementImpossible); got != 1 {
		t.Fatalf("休息日问题数 = %d, want 1", got)
	}
	for _, issue := range issues {
		if issue.Type == IssueOffRequirementImpossible {
			if issue.EmployeeID != "e1" || issue.RequiredOffDays != 10 || issue.AvailableDays != 3 {
				t.Errorf("问题字段不符: %+v", issue)
			}
		}
	}
}

func TestSpecialRequestIssues(t *testing.T) {
	input := buildInput()
	input.Employees[0].WorkPatternType = model.PatternNightIntensive
	input.SpecialRequests = []model.SpecialRequest{
		{EmployeeID: "ghost", Date: "2025-03-03", ShiftTypeCode: "D"},
		{EmployeeID: "e1", Date: "03/03/2025", ShiftTypeCode: "D"},
		{EmployeeID: "e1", Date: "2025-03-03", ShiftTypeCode: "D"}, // 夜班专职请求白班
		{EmployeeID: "e2", Date: "2025-03-03"},                     // 无班次代码，跳过
	}
	issues := analyze(t, input)
	if got := countByType(issues, IssueSpecialRequestUnknownEmployee); got != 1 {
		t.Errorf("未知员工问题数 = %d, want 1", got)
	}
	if got := countByType(issues, IssueSpecialRequestInvalidDate); got != 1 {
		t.Errorf("非法日期问题数 = %d, want 1", got)
	}
	if got := countByType(issues, IssueSpecialRequestPatternConflict); got != 1 {
		t.Errorf("模式冲突问题数 = %d, want 1", got)
	}
}

func TestAnnotationConstructors(t *testing.T) {
	info := SolverInfo("highs", "Schedule generated via HiGHS (highs-fallback).")
	if info.Type != IssueSolverInfo || info.Solver != "highs" {
		t.Errorf("solverInfo注记 = %+v", info)
	}
	fb := FallbackRelaxation(2, "applied relaxation level 2")
	if fb.Type != IssueFallbackRelaxation || fb.Level != 2 {
		t.Errorf("fallback注记 = %+v", fb)
	}
	sum := MultiRunSummary(3, 2, 123.5, 42, 10)
	if sum.Type != IssueMultiRunSummary || sum.BestScore == nil || *sum.BestScore != 123.5 {
		t.Errorf("multiRun注记 = %+v", sum)
	}
	if sum.Seed == nil || *sum.Seed != 42 || sum.JitterPct == nil || *sum.JitterPct != 10 {
		t.Errorf("multiRun注记应含seed与jitter: %+v", sum)
	}
}
