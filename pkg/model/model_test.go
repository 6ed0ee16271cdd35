package model

import (
	"testing"
)

func TestNormalizeShiftCode(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"小写转大写", "d", "D"},
		{"去掉锁定标记", "^N", "N"},
		{"OFF视为O", "off", "O"},
		{"去空白", " e ", "E"},
		{"空串", "", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := NormalizeShiftCode(tc.in); got != tc.want {
				t.Errorf("NormalizeShiftCode(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestIsShiftAllowed(t *testing.T) {
	cases := []struct {
		name    string
		pattern WorkPatternType
		code    string
		weekend bool
		want    bool
	}{
		{"三班倒可上白班", PatternThreeShift, "D", false, true},
		{"三班倒不上行政班", PatternThreeShift, "A", false, false},
		{"夜班专职只上夜班", PatternNightIntensive, "D", false, false},
		{"夜班专职可休息", PatternNightIntensive, "O", false, true},
		{"行政工作日上行政班", PatternWeekdayOnly, "A", false, true},
		{"行政周末只能休息", PatternWeekdayOnly, "A", true, false},
		{"行政周末可休息", PatternWeekdayOnly, "O", true, true},
		{"休假任何模式都允许", PatternNightIntensive, "V", true, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := IsShiftAllowed(tc.pattern, tc.code, tc.weekend); got != tc.want {
				t.Errorf("IsShiftAllowed(%s, %s, %v) = %v, want %v",
					tc.pattern, tc.code, tc.weekend, got, tc.want)
			}
		})
	}
}

func TestBuildCalendar(t *testing.T) {
	input := &ScheduleInput{
		StartDate: "2025-03-03", // 周一
		EndDate:   "2025-03-09", // 周日
		Holidays:  []Holiday{{Date: "2025-03-05", Name: "院庆"}},
	}
	cal, err := input.BuildCalendar()
	if err != nil {
		t.Fatalf("BuildCalendar 失败: %v", err)
	}
	if cal.Days() != 7 {
		t.Fatalf("天数 = %d, want 7", cal.Days())
	}
	if !cal.IsWeekendOrHoliday("2025-03-05") {
		t.Error("节假日应按周末处理")
	}
	if !cal.IsWeekendOrHoliday("2025-03-08") || !cal.IsWeekendOrHoliday("2025-03-09") {
		t.Error("周六周日应标记为周末")
	}
	if cal.IsWeekendOrHoliday("2025-03-04") {
		t.Error("普通工作日不应标记")
	}
	if got := cal.WeekendOrHolidayCount(); got != 3 {
		t.Errorf("周末节假日天数 = %d, want 3", got)
	}
}

func TestBuildCalendarInvalidRange(t *testing.T) {
	input := &ScheduleInput{StartDate: "2025-03-10", EndDate: "2025-03-01"}
	if _, err := input.BuildCalendar(); err == nil {
		t.Fatal("结束早于开始应返回错误")
	}
	input = &ScheduleInput{StartDate: "2025/03/01", EndDate: "2025-03-10"}
	if _, err := input.BuildCalendar(); err == nil {
		t.Fatal("非法日期格式应返回错误")
	}
}

func TestRequiredStaffByCode(t *testing.T) {
	t.Run("未提供时使用默认", func(t *testing.T) {
		input := &ScheduleInput{}
		got := input.RequiredStaffByCode()
		if got["D"] != 5 || got["E"] != 4 || got["N"] != 3 {
			t.Errorf("默认人数 = %v", got)
		}
	})

	t.Run("显式配置覆盖默认", func(t *testing.T) {
		input := &ScheduleInput{
			RequiredStaffPerShift: map[string]int{"d": 2, "N": 0},
		}
		got := input.RequiredStaffByCode()
		if got["D"] != 2 {
			t.Errorf("D = %d, want 2", got["D"])
		}
		if got["E"] != 4 {
			t.Errorf("未提及的班次应补默认, E = %d", got["E"])
		}
		if _, ok := got["N"]; ok {
			t.Error("显式填0应关闭默认班次")
		}
	})

	t.Run("班次minStaff补充缺失代码", func(t *testing.T) {
		min := 1
		input := &ScheduleInput{
			RequiredStaffPerShift: map[string]int{"D": 3},
			Shifts: []*Shift{
				{ID: "s-e", Code: "E", MinStaff: &min},
				{ID: "s-d", Code: "D", RequiredStaff: 9}, // 已有配置不覆盖
			},
		}
		got := input.RequiredStaffByCode()
		if got["E"] != 1 {
			t.Errorf("E = %d, want 1", got["E"])
		}
		if got["D"] != 3 {
			t.Errorf("D = %d, want 3", got["D"])
		}
	})
}

func TestMaxStaffByCode(t *testing.T) {
	maxStaff := 2
	input := &ScheduleInput{
		RequiredStaffPerShift: map[string]int{"D": 4},
		Shifts:                []*Shift{{ID: "s-d", Code: "D", MaxStaff: &maxStaff}},
	}
	got := input.MaxStaffByCode()
	// 上限不得低于下限
	if got["D"] != 4 {
		t.Errorf("D上限 = %d, want 4", got["D"])
	}
}

func TestActiveShiftCodes(t *testing.T) {
	input := &ScheduleInput{
		RequiredStaffPerShift: map[string]int{"D": 2, "N": 1},
		Employees: []*Employee{
			{ID: "e1", WorkPatternType: PatternWeekdayOnly},
		},
		SpecialRequests: []SpecialRequest{
			{EmployeeID: "e1", Date: "2025-03-03", ShiftTypeCode: "V"},
		},
	}
	got := input.ActiveShiftCodes()
	want := []string{"A", "D", "N", "O", "V"}
	if len(got) != len(want) {
		t.Fatalf("字母表 = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("字母表 = %v, want %v", got, want)
		}
	}
}

func TestOffDayTargets(t *testing.T) {
	input := &ScheduleInput{
		StartDate:                   "2025-03-03",
		EndDate:                     "2025-03-09", // 周末2天
		NightIntensivePaidLeaveDays: 1,
		PreviousOffAccruals:         map[string]int{"e1": 1},
		Employees: []*Employee{
			{ID: "e1"},
			{ID: "e2", WorkPatternType: PatternNightIntensive},
		},
	}
	cal, err := input.BuildCalendar()
	if err != nil {
		t.Fatal(err)
	}
	targets := input.OffDayTargets(cal)
	if targets["e1"] != 3 { // 2周末 + 1结转
		t.Errorf("e1 = %d, want 3", targets["e1"])
	}
	if targets["e2"] != 3 { // 2周末 + 1带薪
		t.Errorf("e2 = %d, want 3", targets["e2"])
	}
}

func TestCloneIndependence(t *testing.T) {
	w := 0.5
	input := &ScheduleInput{
		StartDate: "2025-03-01",
		EndDate:   "2025-03-07",
		Employees: []*Employee{{ID: "e1", PreferredShiftTypes: map[string]float64{"D": 1}}},
		Shifts:    []*Shift{{ID: "s-d", Code: "D"}},
		Options: &Options{
			ConstraintWeights: ConstraintWeights{"staffing": 1.0},
			MultiRun:          &MultiRun{Attempts: 3, WeightJitterPct: &w},
		},
	}
	clone := input.Clone()
	clone.Options.ConstraintWeights["staffing"] = 0.2
	clone.Employees[0].PreferredShiftTypes["D"] = 0
	if input.Options.ConstraintWeights["staffing"] != 1.0 {
		t.Error("克隆后权重不应共享")
	}
	if input.Employees[0].PreferredShiftTypes["D"] != 1 {
		t.Error("克隆后偏好表不应共享")
	}
}

func TestConstraintWeightsScalar(t *testing.T) {
	w := ConstraintWeights{"staffing": 0.01, "teamBalance": 2.0}
	if got := w.Scalar("staffing"); got != 0.1 {
		t.Errorf("下限未生效: %v", got)
	}
	if got := w.Scalar("teamBalance"); got != 2.0 {
		t.Errorf("显式权重 = %v", got)
	}
	if got := w.Scalar("offBalance"); got != 1.0 {
		t.Errorf("缺省权重 = %v", got)
	}
}

func TestAssignmentGrid(t *testing.T) {
	grid := BuildGrid([]Assignment{
		{EmployeeID: "e1", Date: "2025-03-01", ShiftType: "D"},
		{EmployeeID: "e1", Date: "2025-03-02", ShiftType: "^N"},
	})
	if got := grid.CodeAt("e1", "2025-03-02"); got != "N" {
		t.Errorf("CodeAt = %q, want N", got)
	}
	if got := grid.CodeAt("e1", "2025-03-03"); got != "O" {
		t.Errorf("无指派应视为休息, got %q", got)
	}
}
