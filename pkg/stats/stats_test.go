package stats

import (
	"testing"

	"github.com/lunban/lunban/pkg/model"
	"github.com/lunban/lunban/pkg/scheduler/diagnostics"
)

func statsInput(t *testing.T) (*model.ScheduleInput, *model.Calendar) {
	t.Helper()
	input := &model.ScheduleInput{
		DepartmentID: "dept-1",
		// 周一到周日，含一个周末
		StartDate: "2025-03-03",
		EndDate:   "2025-03-09",
		Employees: []*model.Employee{
			{ID: "e1", TeamID: "t1"},
			{ID: "e2", TeamID: "t1"},
		},
		RequiredStaffPerShift: map[string]int{"D": 1, "E": 0, "N": 0},
	}
	cal, err := input.BuildCalendar()
	if err != nil {
		t.Fatalf("日历构建失败: %v", err)
	}
	return input, cal
}

func statsAsn(emp, date, code string) model.Assignment {
	return model.Assignment{EmployeeID: emp, Date: date, ShiftID: "shift-" + code, ShiftType: code}
}

// 两人轮流上白班的对称排班
func balancedAssignments() []model.Assignment {
	dates := []string{
		"2025-03-03", "2025-03-04", "2025-03-05", "2025-03-06",
		"2025-03-07", "2025-03-08", "2025-03-09",
	}
	var out []model.Assignment
	for i, date := range dates {
		working, resting := "e1", "e2"
		if i%2 == 1 {
			working, resting = "e2", "e1"
		}
		out = append(out, statsAsn(working, date, "D"), statsAsn(resting, date, "O"))
	}
	return out
}

func TestComputeBalancedSchedule(t *testing.T) {
	input, cal := statsInput(t)
	score := NewScorer(input, cal).Compute(balancedAssignments(), &diagnostics.Report{})

	if score.Coverage != 100 {
		t.Errorf("无缺口时覆盖率 = %d, want 100", score.Coverage)
	}
	if score.ConstraintSatisfaction != 100 {
		t.Errorf("无违规时约束满足 = %d, want 100", score.ConstraintSatisfaction)
	}
	if score.Preference != 100 {
		t.Errorf("无偏好配置时偏好分 = %d, want 100", score.Preference)
	}
	// 4/3天的工作量差异允许少量公平性扣分
	if score.Fairness < 80 {
		t.Errorf("均衡排班公平性 = %d, 不应低于80", score.Fairness)
	}
	if score.Total < 90 {
		t.Errorf("总分 = %d, 不应低于90", score.Total)
	}
	if len(score.Breakdown) != 4 {
		t.Fatalf("评分细目应有4项: %+v", score.Breakdown)
	}
	weightSum := 0.0
	for _, b := range score.Breakdown {
		weightSum += b.Weight
	}
	if weightSum != 1.0 {
		t.Errorf("细目权重和 = %v, want 1.0", weightSum)
	}
}

func TestComputeShortagesReduceCoverage(t *testing.T) {
	input, cal := statsInput(t)
	report := &diagnostics.Report{
		StaffingShortages: []diagnostics.StaffingShortage{
			{Date: "2025-03-03", ShiftType: "D", Required: 1, Covered: 0, Shortage: 1},
			{Date: "2025-03-04", ShiftType: "D", Required: 1, Covered: 0, Shortage: 1},
		},
	}
	score := NewScorer(input, cal).Compute(balancedAssignments(), report)

	// 需求7人次缺2 → 覆盖率约71
	if score.Coverage < 70 || score.Coverage > 72 {
		t.Errorf("覆盖率 = %d, want ≈71", score.Coverage)
	}
	if score.ConstraintSatisfaction != 80 {
		t.Errorf("两处缺口各扣10分: %d, want 80", score.ConstraintSatisfaction)
	}
}

func TestComputeSkewedScheduleLowersFairness(t *testing.T) {
	input, cal := statsInput(t)
	// e1全上班，e2全休
	var skewed []model.Assignment
	for _, date := range cal.Dates {
		skewed = append(skewed, statsAsn("e1", date, "D"), statsAsn("e2", date, "O"))
	}
	scorer := NewScorer(input, cal)
	balanced := scorer.Compute(balancedAssignments(), &diagnostics.Report{})
	lopsided := scorer.Compute(skewed, &diagnostics.Report{})

	if lopsided.Fairness >= balanced.Fairness {
		t.Errorf("失衡排班公平性应更低: %d >= %d", lopsided.Fairness, balanced.Fairness)
	}
}

func TestComputePreferenceWeights(t *testing.T) {
	input, cal := statsInput(t)
	input.Employees[0].PreferredShiftTypes = map[string]float64{"D": 1.0}
	input.Employees[1].PreferredShiftTypes = map[string]float64{"D": 0.0}

	score := NewScorer(input, cal).Compute(balancedAssignments(), &diagnostics.Report{})
	// e1的白班全中意，e2的全不中意，各约一半
	if score.Preference < 45 || score.Preference > 65 {
		t.Errorf("偏好分 = %d, want ≈50", score.Preference)
	}
}

func TestComputeSpecialRequestMissesLowerPreference(t *testing.T) {
	input, cal := statsInput(t)
	input.SpecialRequests = []model.SpecialRequest{
		{EmployeeID: "e1", Date: "2025-03-03", ShiftTypeCode: "O"},
		{EmployeeID: "e2", Date: "2025-03-04", ShiftTypeCode: "D"},
	}
	report := &diagnostics.Report{
		SpecialRequestMisses: []diagnostics.SpecialRequestMiss{
			{EmployeeID: "e1", Date: "2025-03-03", ShiftType: "O"},
		},
	}
	score := NewScorer(input, cal).Compute(balancedAssignments(), report)
	if score.Preference != 50 {
		t.Errorf("两条请求失一条: %d, want 50", score.Preference)
	}
}

func TestOffAccruals(t *testing.T) {
	input, cal := statsInput(t)
	// 排班期含周六周日 → 每名三班倒员工保障2天
	accruals := OffAccruals(input, cal, balancedAssignments())
	if len(accruals) != 2 {
		t.Fatalf("结转条目 = %d, want 2", len(accruals))
	}
	byEmp := map[string]OffAccrual{}
	for _, a := range accruals {
		byEmp[a.EmployeeID] = a
	}
	e1 := byEmp["e1"]
	if e1.GuaranteedOffDays != 2 {
		t.Errorf("保障休息日 = %d, want 2", e1.GuaranteedOffDays)
	}
	if e1.ActualOffDays != 3 || e1.ExtraOffDays != 1 {
		t.Errorf("实际/结余 = %d/%d, want 3/1", e1.ActualOffDays, e1.ExtraOffDays)
	}
	e2 := byEmp["e2"]
	if e2.ActualOffDays != 4 || e2.ExtraOffDays != 2 {
		t.Errorf("实际/结余 = %d/%d, want 4/2", e2.ActualOffDays, e2.ExtraOffDays)
	}
}

func TestOffAccrualsSkipsWeekdayOnly(t *testing.T) {
	input, cal := statsInput(t)
	admin := model.PatternWeekdayOnly
	input.Employees = append(input.Employees, &model.Employee{
		ID: "e3", TeamID: "t2", WorkPatternType: admin,
	})
	accruals := OffAccruals(input, cal, nil)
	for _, a := range accruals {
		if a.EmployeeID == "e3" {
			t.Error("行政员工不应出现在结转报表")
		}
	}
}
