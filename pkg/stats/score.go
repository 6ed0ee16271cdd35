// Package stats 对最终排班做评分与休息日结转统计
package stats

import (
	"fmt"
	"math"

	"github.com/lunban/lunban/pkg/model"
	"github.com/lunban/lunban/pkg/scheduler/diagnostics"
)

// 总分的各类别权重
const (
	fairnessWeight   = 0.3
	preferenceWeight = 0.25
	coverageWeight   = 0.25
	constraintWeight = 0.2
)

// Breakdown 评分细目
type Breakdown struct {
	Category string  `json:"category"`
	Score    float64 `json:"score"`
	Weight   float64 `json:"weight"`
	Details  string  `json:"details"`
}

// Score 排班评分（各项0-100）
type Score struct {
	Total                  int         `json:"total"`
	Fairness               int         `json:"fairness"`
	Preference             int         `json:"preference"`
	Coverage               int         `json:"coverage"`
	ConstraintSatisfaction int         `json:"constraintSatisfaction"`
	Breakdown              []Breakdown `json:"breakdown"`
}

// Scorer 排班评分器
type Scorer struct {
	input *model.ScheduleInput
	cal   *model.Calendar
}

// NewScorer 创建评分器
func NewScorer(input *model.ScheduleInput, cal *model.Calendar) *Scorer {
	return &Scorer{input: input, cal: cal}
}

// Compute 按最终指派与诊断报告计算评分
func (s *Scorer) Compute(assignments []model.Assignment, report *diagnostics.Report) Score {
	fairness := s.fairnessScore(assignments)
	preference := s.preferenceScore(assignments, report)
	coverage := s.coverageScore(report)
	constraint := constraintScore(report)

	total := fairness*fairnessWeight +
		preference*preferenceWeight +
		coverage*coverageWeight +
		constraint*constraintWeight

	breakdown := []Breakdown{
		{Category: "公平性", Score: round1(fairness), Weight: fairnessWeight, Details: s.fairnessDetails(assignments)},
		{Category: "偏好满足", Score: round1(preference), Weight: preferenceWeight, Details: preferenceDetails(report)},
		{Category: "覆盖率", Score: round1(coverage), Weight: coverageWeight, Details: coverageDetails(report)},
		{Category: "约束满足", Score: round1(constraint), Weight: constraintWeight, Details: constraintDetails(report)},
	}

	return Score{
		Total:                  int(math.Round(total)),
		Fairness:               int(math.Round(fairness)),
		Preference:             int(math.Round(preference)),
		Coverage:               int(math.Round(coverage)),
		ConstraintSatisfaction: int(math.Round(constraint)),
		Breakdown:              breakdown,
	}
}

// workloadByEmployee 按员工统计工作负荷（优先班次工时，无定义按一天8小时）
func (s *Scorer) workloadByEmployee(assignments []model.Assignment) (hours, weekend, nights map[string]float64) {
	shiftByCode := s.input.ShiftByCode()
	hours = map[string]float64{}
	weekend = map[string]float64{}
	nights = map[string]float64{}
	for _, emp := range s.input.Employees {
		hours[emp.ID] = 0
		weekend[emp.ID] = 0
		nights[emp.ID] = 0
	}
	for _, a := range assignments {
		code := model.NormalizeShiftCode(a.ShiftType)
		if code == model.CodeOff || code == model.CodeVacation {
			continue
		}
		h := 8.0
		if shift, ok := shiftByCode[code]; ok && shift.Time.Hours > 0 {
			h = shift.Time.Hours
		}
		hours[a.EmployeeID] += h
		if s.cal.IsWeekendOrHoliday(a.Date) {
			weekend[a.EmployeeID]++
		}
		if code == model.CodeNight {
			nights[a.EmployeeID]++
		}
	}
	return hours, weekend, nights
}

// fairnessScore 工作负荷公平性：Jain指数 + 变异系数 + 周末/夜班分配极差
func (s *Scorer) fairnessScore(assignments []model.Assignment) float64 {
	hours, weekend, nights := s.workloadByEmployee(assignments)
	score := 100.0
	score -= (1 - jainsIndex(values(hours))) * 30
	score -= coefficientOfVariation(values(hours)) * 20
	if gap := spread(values(weekend)); gap > 3 {
		score -= (gap - 3) * 5
	}
	if gap := spread(values(nights)); gap > 3 {
		score -= (gap - 3) * 5
	}
	return clampScore(score)
}

func (s *Scorer) fairnessDetails(assignments []model.Assignment) string {
	hours, _, _ := s.workloadByEmployee(assignments)
	return fmt.Sprintf("工作负荷Jain指数 %.2f", jainsIndex(values(hours)))
}

// preferenceScore 偏好满足度：偏好班次权重 + 特殊请求满足情况
func (s *Scorer) preferenceScore(assignments []model.Assignment, report *diagnostics.Report) float64 {
	employees := s.input.EmployeeByID()
	total := 0.0
	satisfied := 0.0
	for _, a := range assignments {
		emp, ok := employees[a.EmployeeID]
		if !ok || len(emp.PreferredShiftTypes) == 0 {
			continue
		}
		code := model.NormalizeShiftCode(a.ShiftType)
		if code == model.CodeOff || code == model.CodeVacation {
			continue
		}
		w, ok := emp.PreferredShiftTypes[code]
		if !ok {
			continue
		}
		total++
		satisfied += clamp01(w)
	}
	for range s.input.SpecialRequests {
		total++
		satisfied++
	}
	if report != nil {
		satisfied -= float64(len(report.SpecialRequestMisses))
	}
	if total <= 0 {
		return 100
	}
	return clampScore(satisfied / total * 100)
}

func preferenceDetails(report *diagnostics.Report) string {
	misses := 0
	if report != nil {
		misses = len(report.SpecialRequestMisses)
	}
	if misses == 0 {
		return "特殊请求全部满足"
	}
	return fmt.Sprintf("%d条特殊请求未满足", misses)
}

// coverageScore 人力覆盖率：缺口人次占总需求人次的比例
func (s *Scorer) coverageScore(report *diagnostics.Report) float64 {
	totalRequired := 0
	for _, cnt := range s.input.RequiredStaffByCode() {
		totalRequired += cnt * s.cal.Days()
	}
	if totalRequired == 0 {
		return 100
	}
	shortage := 0
	if report != nil {
		for _, v := range report.StaffingShortages {
			shortage += v.Shortage
		}
	}
	return clampScore(float64(totalRequired-shortage) / float64(totalRequired) * 100)
}

func coverageDetails(report *diagnostics.Report) string {
	shortage := 0
	if report != nil {
		for _, v := range report.StaffingShortages {
			shortage += v.Shortage
		}
	}
	if shortage == 0 {
		return "全部班次人力达标"
	}
	return fmt.Sprintf("累计缺口%d人次", shortage)
}

// constraintScore 约束满足度：按违规类别扣分
func constraintScore(report *diagnostics.Report) float64 {
	if report == nil {
		return 100
	}
	score := 100.0
	score -= 10 * float64(len(report.StaffingShortages))
	score -= 5 * float64(len(report.TeamCoverageGaps))
	score -= 4 * float64(len(report.CareerGroupCoverageGaps))
	score -= 3 * float64(len(report.SpecialRequestMisses))
	score -= 3 * float64(len(report.ShiftPatternBreaks))
	score -= 3 * float64(len(report.AvoidPatternViolations))
	score -= 2 * float64(len(report.TeamWorkloadGaps))
	score -= 2 * float64(len(report.OffBalanceGaps))
	return clampScore(score)
}

func constraintDetails(report *diagnostics.Report) string {
	if report == nil {
		return "无违规"
	}
	n := len(report.StaffingShortages) + len(report.TeamCoverageGaps) +
		len(report.CareerGroupCoverageGaps) + len(report.SpecialRequestMisses) +
		len(report.ShiftPatternBreaks) + len(report.AvoidPatternViolations) +
		len(report.TeamWorkloadGaps) + len(report.OffBalanceGaps)
	if n == 0 {
		return "无违规"
	}
	return fmt.Sprintf("共%d条软约束违规", n)
}

// jainsIndex Jain公平性指数，1为完全均等
func jainsIndex(vals []float64) float64 {
	if len(vals) == 0 {
		return 1
	}
	sum := 0.0
	squaredSum := 0.0
	for _, v := range vals {
		sum += v
		squaredSum += v * v
	}
	if squaredSum == 0 {
		return 1
	}
	return sum * sum / (float64(len(vals)) * squaredSum)
}

func coefficientOfVariation(vals []float64) float64 {
	if len(vals) == 0 {
		return 0
	}
	mean := 0.0
	for _, v := range vals {
		mean += v
	}
	mean /= float64(len(vals))
	if mean == 0 {
		return 0
	}
	variance := 0.0
	for _, v := range vals {
		diff := v - mean
		variance += diff * diff
	}
	variance /= float64(len(vals))
	return math.Sqrt(variance) / mean
}

func spread(vals []float64) float64 {
	if len(vals) == 0 {
		return 0
	}
	maxV, minV := vals[0], vals[0]
	for _, v := range vals[1:] {
		if v > maxV {
			maxV = v
		}
		if v < minV {
			minV = v
		}
	}
	return maxV - minV
}

func values(m map[string]float64) []float64 {
	out := make([]float64, 0, len(m))
	for _, v := range m {
		out = append(out, v)
	}
	return out
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

func clampScore(v float64) float64 {
	return math.Max(0, math.Min(100, v))
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
