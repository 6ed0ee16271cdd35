// Package diagnostics 从排班结果重推导约束违规，并生成评分与用户提示
package diagnostics

import (
	"fmt"

	"github.com/lunban/lunban/pkg/model"
	"github.com/lunban/lunban/pkg/scheduler/preflight"
)

// StaffingShortage 班次人力不足
type StaffingShortage struct {
	Date      string `json:"date"`
	ShiftType string `json:"shiftType"`
	Required  int    `json:"required"`
	Covered   int    `json:"covered"`
	Shortage  int    `json:"shortage"`
}

// TeamCoverageGap 团队覆盖缺口
type TeamCoverageGap struct {
	Date      string `json:"date"`
	ShiftType string `json:"shiftType"`
	TeamID    string `json:"teamId"`
	Shortage  int    `json:"shortage"`
}

// CareerGroupCoverageGap 职级覆盖缺口
type CareerGroupCoverageGap struct {
	Date             string `json:"date"`
	ShiftType        string `json:"shiftType"`
	CareerGroupAlias string `json:"careerGroupAlias"`
	Shortage         int    `json:"shortage"`
}

// TeamWorkloadGap 团队工作量失衡，teamA为多出的一方
type TeamWorkloadGap struct {
	TeamA      string `json:"teamA"`
	TeamB      string `json:"teamB"`
	Difference int    `json:"difference"`
	Tolerance  int    `json:"tolerance"`
}

// OffBalanceGap 同团队成员休息日失衡
type OffBalanceGap struct {
	TeamID     string `json:"teamId"`
	EmployeeA  string `json:"employeeA"`
	EmployeeB  string `json:"employeeB"`
	Difference int    `json:"difference"`
	Tolerance  int    `json:"tolerance"`
}

// ShiftPatternBreak 班次模式破坏（连班超限或夜班后接早班，后者shiftType形如"N->D"）
type ShiftPatternBreak struct {
	EmployeeID string `json:"employeeId"`
	ShiftType  string `json:"shiftType"`
	StartDate  string `json:"startDate"`
	Window     int    `json:"window"`
	Excess     int    `json:"excess"`
}

// SpecialRequestMiss 特殊请求未满足
type SpecialRequestMiss struct {
	EmployeeID string `json:"employeeId"`
	Date       string `json:"date"`
	ShiftType  string `json:"shiftType"`
}

// AvoidPatternViolation 出现禁用班次序列
type AvoidPatternViolation struct {
	EmployeeID string   `json:"employeeId"`
	StartDate  string   `json:"startDate"`
	Pattern    []string `json:"pattern"`
	StartIndex int      `json:"startIndex"`
}

// ShiftBalanceGap 个人三班分布失衡（仅收集展示，不参与修复）
type ShiftBalanceGap struct {
	EmployeeID string `json:"employeeId"`
	ShiftA     string `json:"shiftA"`
	ShiftB     string `json:"shiftB"`
	Difference int    `json:"difference"`
	Tolerance  int    `json:"tolerance"`
}

// PostprocessStats 局部搜索修复统计
type PostprocessStats struct {
	InitialPenalty float64 `json:"initialPenalty"`
	FinalPenalty   float64 `json:"finalPenalty"`
	Iterations     int     `json:"iterations"`
	Improvements   int     `json:"improvements"`
	AcceptedWorse  int     `json:"acceptedWorse"`
	Temperature    float64 `json:"temperature"`
}

// Report 诊断汇总，始终反映最终指派（每次重推导而非增量更新）
type Report struct {
	StaffingShortages       []StaffingShortage       `json:"staffingShortages"`
	TeamCoverageGaps        []TeamCoverageGap        `json:"teamCoverageGaps"`
	CareerGroupCoverageGaps []CareerGroupCoverageGap `json:"careerGroupCoverageGaps"`
	TeamWorkloadGaps        []TeamWorkloadGap        `json:"teamWorkloadGaps"`
	OffBalanceGaps          []OffBalanceGap          `json:"offBalanceGaps"`
	ShiftPatternBreaks      []ShiftPatternBreak      `json:"shiftPatternBreaks"`
	SpecialRequestMisses    []SpecialRequestMiss     `json:"specialRequestMisses"`
	AvoidPatternViolations  []AvoidPatternViolation  `json:"avoidPatternViolations"`
	ShiftBalanceGaps        []ShiftBalanceGap        `json:"shiftBalanceGaps,omitempty"`
	PreflightIssues         []preflight.Issue        `json:"preflightIssues"`
	Postprocess             *PostprocessStats        `json:"postprocess,omitempty"`
	SolverStatus            string                   `json:"solverStatus,omitempty"`
	SolverTimedOut          bool                     `json:"solverTimedOut,omitempty"`
	SolverWallTimeMs        int64                    `json:"solverWallTimeMs,omitempty"`
}

// Penalty 按局部搜索的罚分公式计算诊断总罚分
func (r *Report) Penalty(weights model.ConstraintWeights) float64 {
	return 100*float64(len(r.StaffingShortages))*weights.Scalar(model.WeightStaffing) +
		50*float64(len(r.TeamCoverageGaps))*weights.Scalar(model.WeightTeamBalance) +
		40*float64(len(r.CareerGroupCoverageGaps))*weights.Scalar(model.WeightCareerBalance) +
		35*float64(len(r.TeamWorkloadGaps))*weights.Scalar(model.WeightTeamBalance) +
		30*float64(len(r.SpecialRequestMisses)) +
		20*float64(len(r.OffBalanceGaps))*weights.Scalar(model.WeightOffBalance) +
		10*float64(len(r.ShiftPatternBreaks))*weights.Scalar(model.WeightShiftPattern) +
		10*float64(len(r.AvoidPatternViolations))
}

// 违规类型标签
const (
	KindStaffingShortage  = "staffingShortage"
	KindShiftPatternBreak = "shiftPatternBreak"
	KindTeamCoverage      = "teamCoverage"
	KindCareerGroup       = "careerGroup"
	KindTeamWorkload      = "teamWorkload"
	KindOffBalance        = "offBalance"
	KindAvoidPattern      = "avoidPattern"
	KindSpecialRequest    = "specialRequest"
)

// Violation 带类型标签的单条违规，供修复器按优先级逐条处理
type Violation struct {
	Kind           string
	Staffing       *StaffingShortage
	PatternBreak   *ShiftPatternBreak
	TeamCoverage   *TeamCoverageGap
	CareerGroup    *CareerGroupCoverageGap
	TeamWorkload   *TeamWorkloadGap
	OffBalance     *OffBalanceGap
	AvoidPattern   *AvoidPatternViolation
	SpecialRequest *SpecialRequestMiss
}

// PickViolation 按固定优先级取第一条待修复违规，无违规返回nil
// 优先级：人力不足 > 模式破坏 > 团队覆盖 > 职级覆盖 > 工作量失衡 > 休息日失衡 > 禁用序列 > 特殊请求
func (r *Report) PickViolation() *Violation {
	if len(r.StaffingShortages) > 0 {
		return &Violation{Kind: KindStaffingShortage, Staffing: &r.StaffingShortages[0]}
	}
	if len(r.ShiftPatternBreaks) > 0 {
		return &Violation{Kind: KindShiftPatternBreak, PatternBreak: &r.ShiftPatternBreaks[0]}
	}
	if len(r.TeamCoverageGaps) > 0 {
		return &Violation{Kind: KindTeamCoverage, TeamCoverage: &r.TeamCoverageGaps[0]}
	}
	if len(r.CareerGroupCoverageGaps) > 0 {
		return &Violation{Kind: KindCareerGroup, CareerGroup: &r.CareerGroupCoverageGaps[0]}
	}
	if len(r.TeamWorkloadGaps) > 0 {
		return &Violation{Kind: KindTeamWorkload, TeamWorkload: &r.TeamWorkloadGaps[0]}
	}
	if len(r.OffBalanceGaps) > 0 {
		return &Violation{Kind: KindOffBalance, OffBalance: &r.OffBalanceGaps[0]}
	}
	if len(r.AvoidPatternViolations) > 0 {
		return &Violation{Kind: KindAvoidPattern, AvoidPattern: &r.AvoidPatternViolations[0]}
	}
	if len(r.SpecialRequestMisses) > 0 {
		return &Violation{Kind: KindSpecialRequest, SpecialRequest: &r.SpecialRequestMisses[0]}
	}
	return nil
}

// FlatViolation 结果载荷中的违规记录，type字段标识种类
type FlatViolation map[string]interface{}

// Flatten 把诊断展开成带type标签的扁平违规列表
func (r *Report) Flatten() []FlatViolation {
	violations := make([]FlatViolation, 0)
	for _, v := range r.StaffingShortages {
		violations = append(violations, FlatViolation{
			"type": "staffingShortage", "date": v.Date, "shiftType": v.ShiftType,
			"required": v.Required, "covered": v.Covered, "shortage": v.Shortage,
		})
	}
	for _, v := range r.TeamCoverageGaps {
		violations = append(violations, FlatViolation{
			"type": "teamCoverageGap", "date": v.Date, "shiftType": v.ShiftType,
			"teamId": v.TeamID, "shortage": v.Shortage,
		})
	}
	for _, v := range r.TeamWorkloadGaps {
		violations = append(violations, FlatViolation{
			"type": "teamWorkloadGap", "teamA": v.TeamA, "teamB": v.TeamB,
			"difference": v.Difference, "tolerance": v.Tolerance,
		})
	}
	for _, v := range r.CareerGroupCoverageGaps {
		violations = append(violations, FlatViolation{
			"type": "careerGroupCoverageGap", "date": v.Date, "shiftType": v.ShiftType,
			"careerGroupAlias": v.CareerGroupAlias, "shortage": v.Shortage,
		})
	}
	for _, v := range r.SpecialRequestMisses {
		violations = append(violations, FlatViolation{
			"type": "specialRequestMissed", "date": v.Date, "shiftType": v.ShiftType,
			"employeeId": v.EmployeeID,
		})
	}
	for _, v := range r.OffBalanceGaps {
		violations = append(violations, FlatViolation{
			"type": "offBalanceGap", "teamId": v.TeamID, "employeeA": v.EmployeeA,
			"employeeB": v.EmployeeB, "difference": v.Difference, "tolerance": v.Tolerance,
		})
	}
	for _, v := range r.ShiftPatternBreaks {
		violations = append(violations, FlatViolation{
			"type": "shiftPatternBreak", "employeeId": v.EmployeeID, "shiftType": v.ShiftType,
			"startDate": v.StartDate, "window": v.Window, "excess": v.Excess,
		})
	}
	return violations
}

// Guidance 求解失败时生成按类别组织的用户提示
func (r *Report) Guidance() map[string]string {
	guidance := map[string]string{
		"general": "未能找到可行排班方案，可尝试放宽约束权重或延长求解时限",
	}
	if n := len(r.StaffingShortages); n > 0 {
		guidance["staffing"] = fmt.Sprintf("有%d处班次人力不足，建议增加可排班员工或调低各班次最低人数", n)
	}
	coverage := len(r.TeamCoverageGaps) + len(r.CareerGroupCoverageGaps)
	for _, issue := range r.PreflightIssues {
		if issue.Type == preflight.IssueTeamCoverageImpossible ||
			issue.Type == preflight.IssueCareerGroupCoverageImpossible {
			coverage++
		}
	}
	if coverage > 0 {
		guidance["coverage"] = fmt.Sprintf("有%d处团队或职级覆盖缺口，建议检查各团队、职级组的人员构成", coverage)
	}
	if n := len(r.SpecialRequestMisses); n > 0 {
		guidance["requests"] = fmt.Sprintf("有%d条特殊排班请求无法满足，建议核对请求与员工工作模式是否冲突", n)
	}
	patterns := len(r.ShiftPatternBreaks) + len(r.AvoidPatternViolations)
	if patterns > 0 {
		guidance["patterns"] = fmt.Sprintf("有%d处班次模式冲突，建议放宽同班次重复上限或调整禁用序列", patterns)
	}
	return guidance
}

// Clone 浅层字段深拷贝（切片重建，条目为值类型）
func (r *Report) Clone() *Report {
	if r == nil {
		return nil
	}
	clone := *r
	clone.StaffingShortages = append([]StaffingShortage(nil), r.StaffingShortages...)
	clone.TeamCoverageGaps = append([]TeamCoverageGap(nil), r.TeamCoverageGaps...)
	clone.CareerGroupCoverageGaps = append([]CareerGroupCoverageGap(nil), r.CareerGroupCoverageGaps...)
	clone.TeamWorkloadGaps = append([]TeamWorkloadGap(nil), r.TeamWorkloadGaps...)
	clone.OffBalanceGaps = append([]OffBalanceGap(nil), r.OffBalanceGaps...)
	clone.ShiftPatternBreaks = append([]ShiftPatternBreak(nil), r.ShiftPatternBreaks...)
	clone.SpecialRequestMisses = append([]SpecialRequestMiss(nil), r.SpecialRequestMisses...)
	clone.AvoidPatternViolations = append([]AvoidPatternViolation(nil), r.AvoidPatternViolations...)
	clone.ShiftBalanceGaps = append([]ShiftBalanceGap(nil), r.ShiftBalanceGaps...)
	clone.PreflightIssues = append([]preflight.Issue(nil), r.PreflightIssues...)
	if r.Postprocess != nil {
		stats := *r.Postprocess
		clone.Postprocess = &stats
	}
	return &clone
}
