package diagnostics

import (
	"testing"

	"github.com/lunban/lunban/pkg/model"
)

func buildInput() *model.ScheduleInput {
	return &model.ScheduleInput{
		DepartmentID: "dept-1",
		StartDate:    "2025-03-03",
		EndDate:      "2025-03-06",
		Employees: []*model.Employee{
			{ID: "e1", TeamID: "t1"},
			{ID: "e2", TeamID: "t1"},
			{ID: "e3", TeamID: "t2"},
		},
		RequiredStaffPerShift: map[string]int{"D": 1, "E": 0, "N": 0},
	}
}

func assign(emp, date, code string) model.Assignment {
	return model.Assignment{EmployeeID: emp, Date: date, ShiftID: "shift-" + code, ShiftType: code}
}

func fullSchedule(codesByEmp map[string][]string) []model.Assignment {
	dates := []string{"2025-03-03", "2025-03-04", "2025-03-05", "2025-03-06"}
	var out []model.Assignment
	for emp, codes := range codesByEmp {
		for i, code := range codes {
			out = append(out, assign(emp, dates[i], code))
		}
	}
	return out
}

func newCollector(t *testing.T, input *model.ScheduleInput) *Collector {
	t.Helper()
	cal, err := input.BuildCalendar()
	if err != nil {
		t.Fatalf("日历构建失败: %v", err)
	}
	return NewCollector(input, cal, 2, 2)
}

func TestCollectStaffingShortage(t *testing.T) {
	input := buildInput()
	c := newCollector(t, input)
	// 3月5日无人上白班
	report := c.Collect(fullSchedule(map[string][]string{
		"e1": {"D", "D", "O", "D"},
		"e2": {"O", "O", "O", "O"},
		"e3": {"O", "O", "O", "O"},
	}))
	if len(report.StaffingShortages) != 1 {
		t.Fatalf("人力不足 = %+v", report.StaffingShortages)
	}
	got := report.StaffingShortages[0]
	if got.Date != "2025-03-05" || got.ShiftType != "D" || got.Shortage != 1 || got.Covered != 0 {
		t.Errorf("记录字段不符: %+v", got)
	}
}

func TestCollectTeamCoverageGap(t *testing.T) {
	input := buildInput()
	c := newCollector(t, input)
	// t2的e3全程休息，白班对t2无覆盖
	report := c.Collect(fullSchedule(map[string][]string{
		"e1": {"D", "D", "D", "D"},
		"e2": {"O", "O", "O", "O"},
		"e3": {"O", "O", "O", "O"},
	}))
	if len(report.TeamCoverageGaps) != 4 {
		t.Fatalf("团队覆盖缺口 = %+v", report.TeamCoverageGaps)
	}
	if report.TeamCoverageGaps[0].TeamID != "t2" {
		t.Errorf("缺口团队 = %s, want t2", report.TeamCoverageGaps[0].TeamID)
	}
}

func TestDetectShiftPatternBreaks(t *testing.T) {
	input := buildInput()
	c := newCollector(t, input)
	// e1连续4天白班，上限2 → 第3、4天各超1
	report := c.Collect(fullSchedule(map[string][]string{
		"e1": {"D", "D", "D", "D"},
		"e2": {"D", "O", "D", "O"},
		"e3": {"O", "D", "O", "D"},
	}))
	if len(report.ShiftPatternBreaks) != 2 {
		t.Fatalf("模式破坏 = %+v", report.ShiftPatternBreaks)
	}
	first := report.ShiftPatternBreaks[0]
	if first.EmployeeID != "e1" || first.Window != 3 || first.Excess != 1 {
		t.Errorf("记录字段不符: %+v", first)
	}
	second := report.ShiftPatternBreaks[1]
	if second.Excess != 2 {
		t.Errorf("第4天超出 = %d, want 2", second.Excess)
	}
}

func TestShiftPatternBreakResetByOff(t *testing.T) {
	input := buildInput()
	c := newCollector(t, input)
	// 休息日重置连班计数
	report := c.Collect(fullSchedule(map[string][]string{
		"e1": {"D", "D", "O", "D"},
		"e2": {"D", "O", "D", "O"},
		"e3": {"O", "D", "D", "D"},
	}))
	for _, b := range report.ShiftPatternBreaks {
		if b.EmployeeID == "e1" {
			t.Errorf("休息后不应累计连班: %+v", b)
		}
	}
}

func TestDetectSpecialRequestMisses(t *testing.T) {
	input := buildInput()
	input.SpecialRequests = []model.SpecialRequest{
		{EmployeeID: "e1", Date: "2025-03-03", ShiftTypeCode: "D"}, // 满足
		{EmployeeID: "e2", Date: "2025-03-03", ShiftTypeCode: "D"}, // 未满足
	}
	c := newCollector(t, input)
	report := c.Collect(fullSchedule(map[string][]string{
		"e1": {"D", "O", "D", "O"},
		"e2": {"O", "D", "O", "D"},
		"e3": {"D", "O", "D", "O"},
	}))
	if len(report.SpecialRequestMisses) != 1 {
		t.Fatalf("特殊请求未满足 = %+v", report.SpecialRequestMisses)
	}
	if report.SpecialRequestMisses[0].EmployeeID != "e2" {
		t.Errorf("未满足员工 = %s", report.SpecialRequestMisses[0].EmployeeID)
	}
}

func TestDetectOffBalanceGaps(t *testing.T) {
	input := buildInput()
	c := newCollector(t, input)
	// e1休0天 e2休4天（同团队），差4 > 容差2
	report := c.Collect(fullSchedule(map[string][]string{
		"e1": {"D", "D", "D", "D"},
		"e2": {"O", "O", "O", "O"},
		"e3": {"D", "O", "D", "O"},
	}))
	if len(report.OffBalanceGaps) != 1 {
		t.Fatalf("休息日失衡 = %+v", report.OffBalanceGaps)
	}
	gap := report.OffBalanceGaps[0]
	if gap.TeamID != "t1" || gap.Difference != 4 || gap.Tolerance != 2 {
		t.Errorf("记录字段不符: %+v", gap)
	}
}

func TestDetectTeamWorkloadGaps(t *testing.T) {
	input := buildInput()
	c := newCollector(t, input)
	// t1工作8天，t2工作0天，差8 > 容差2；t1为多出方
	report := c.Collect(fullSchedule(map[string][]string{
		"e1": {"D", "D", "D", "D"},
		"e2": {"D", "D", "D", "D"},
		"e3": {"O", "O", "O", "O"},
	}))
	if len(report.TeamWorkloadGaps) != 1 {
		t.Fatalf("工作量失衡 = %+v", report.TeamWorkloadGaps)
	}
	gap := report.TeamWorkloadGaps[0]
	if gap.TeamA != "t1" || gap.TeamB != "t2" || gap.Difference != 8 {
		t.Errorf("记录字段不符: %+v", gap)
	}
}

func TestDetectAvoidPatternViolations(t *testing.T) {
	input := buildInput()
	input.TeamPattern = &model.TeamPattern{AvoidPatterns: [][]string{{"D", "N"}}}
	c := newCollector(t, input)
	report := c.Collect(fullSchedule(map[string][]string{
		"e1": {"D", "N", "O", "O"},
		"e2": {"D", "O", "D", "O"},
		"e3": {"O", "D", "O", "D"},
	}))
	if len(report.AvoidPatternViolations) != 1 {
		t.Fatalf("禁用序列 = %+v", report.AvoidPatternViolations)
	}
	v := report.AvoidPatternViolations[0]
	if v.EmployeeID != "e1" || v.StartIndex != 0 {
		t.Errorf("记录字段不符: %+v", v)
	}
}

func TestCollectIdempotent(t *testing.T) {
	input := buildInput()
	c := newCollector(t, input)
	assignments := fullSchedule(map[string][]string{
		"e1": {"D", "D", "D", "D"},
		"e2": {"O", "O", "O", "O"},
		"e3": {"O", "O", "O", "O"},
	})
	first := c.Collect(assignments)
	second := c.Collect(assignments)
	if first.Penalty(nil) != second.Penalty(nil) {
		t.Error("同一指派两次收集结果应一致")
	}
	if len(first.TeamCoverageGaps) != len(second.TeamCoverageGaps) {
		t.Error("覆盖缺口数量应一致")
	}
}

func TestPenaltyFormula(t *testing.T) {
	report := &Report{
		StaffingShortages:    []StaffingShortage{{}, {}},
		SpecialRequestMisses: []SpecialRequestMiss{{}},
		OffBalanceGaps:       []OffBalanceGap{{}},
	}
	weights := model.ConstraintWeights{"staffing": 2.0, "offBalance": 0.5}
	// 100*2*2 + 30*1 + 20*1*0.5 = 440
	if got := report.Penalty(weights); got != 440 {
		t.Errorf("罚分 = %v, want 440", got)
	}
}

func TestPickViolationPriority(t *testing.T) {
	report := &Report{
		SpecialRequestMisses: []SpecialRequestMiss{{EmployeeID: "e9"}},
		ShiftPatternBreaks:   []ShiftPatternBreak{{EmployeeID: "e1"}},
	}
	v := report.PickViolation()
	if v == nil || v.Kind != KindShiftPatternBreak {
		t.Fatalf("优先级选择 = %+v", v)
	}
	empty := &Report{}
	if empty.PickViolation() != nil {
		t.Error("无违规应返回nil")
	}
}

func TestFlattenAndGuidance(t *testing.T) {
	report := &Report{
		StaffingShortages: []StaffingShortage{{Date: "2025-03-03", ShiftType: "D", Required: 2, Covered: 1, Shortage: 1}},
		ShiftPatternBreaks: []ShiftPatternBreak{
			{EmployeeID: "e1", ShiftType: "N->D", StartDate: "2025-03-03", Window: 2, Excess: 1},
		},
	}
	flat := report.Flatten()
	if len(flat) != 2 {
		t.Fatalf("扁平化条数 = %d", len(flat))
	}
	if flat[0]["type"] != "staffingShortage" {
		t.Errorf("type标签 = %v", flat[0]["type"])
	}
	guidance := report.Guidance()
	if guidance["general"] == "" || guidance["staffing"] == "" || guidance["patterns"] == "" {
		t.Errorf("提示缺失: %v", guidance)
	}
	if _, ok := guidance["requests"]; ok {
		t.Error("无请求违规不应有requests提示")
	}
}
