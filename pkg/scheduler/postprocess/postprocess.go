package postprocess

import (
	"context"
	"math"
	"math/rand"
	"time"

	"github.com/lunban/lunban/pkg/logger"
	"github.com/lunban/lunban/pkg/model"
	"github.com/lunban/lunban/pkg/scheduler/diagnostics"
)

const improveEpsilon = 1e-6

// swapCandidate 一次交换的两个格子
type swapCandidate struct {
	dayA string
	empA string
	dayB string
	empB string
}

// Postprocessor 对一份可行排班做违规驱动的局部修复
// 每轮按固定优先级取一条违规，枚举交换候选，
// 择优应用（无改进时按退火概率接受最小恶化），修复后全量重评估
type Postprocessor struct {
	input     *model.ScheduleInput
	cal       *model.Calendar
	state     *scheduleState
	collector *diagnostics.Collector
	weights   model.ConstraintWeights
	settings  Settings
	tabu      *tabuList
	rng       *rand.Rand
	log       *logger.SolverLogger

	currentPenalty float64
	initialPenalty float64
	iterations     int
	improvements   int
	acceptedWorse  int
	temperature    float64
}

// New 创建后处理器；rng为nil时使用时间种子
func New(input *model.ScheduleInput, cal *model.Calendar, assignments []model.Assignment,
	settings Settings, rng *rand.Rand) *Postprocessor {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Postprocessor{
		input:       input,
		cal:         cal,
		state:       newScheduleState(input, cal, assignments),
		collector:   diagnostics.NewCollector(input, cal, settings.MaxSameShift, settings.OffTolerance),
		weights:     input.Options.Weights(),
		settings:    settings,
		tabu:        newTabuList(settings.TabuSize),
		rng:         rng,
		log:         logger.NewSolverLogger(),
		temperature: settings.InitialTemperature,
	}
}

// Run 执行修复，返回遇到过的最优指派及其诊断
// 终止条件：迭代上限、时间上限、无违规、上下文取消
func (p *Postprocessor) Run(ctx context.Context) ([]model.Assignment, *diagnostics.Report) {
	deadline := time.Now().Add(p.settings.TimeLimit)
	penalty, report := p.evaluate()
	p.initialPenalty = penalty
	p.currentPenalty = penalty

	best := p.state.snapshot()
	bestPenalty := penalty
	bestReport := report

	for p.iterations < p.settings.MaxIterations && time.Now().Before(deadline) {
		if ctx.Err() != nil {
			break
		}
		violation := report.PickViolation()
		if violation == nil {
			break
		}
		newPenalty, newReport, ok := p.resolve(violation)
		p.iterations++
		if !ok {
			continue
		}
		if newPenalty+improveEpsilon < p.currentPenalty {
			p.improvements++
		}
		p.currentPenalty = newPenalty
		report = newReport
		if newPenalty < bestPenalty-improveEpsilon {
			best = p.state.snapshot()
			bestPenalty = newPenalty
			bestReport = newReport
		}
		p.temperature *= p.settings.CoolingRate
	}

	// 退火可能停在比历史最优差的状态，回退到最优解
	if p.currentPenalty > bestPenalty+improveEpsilon {
		p.state.restore(best)
		p.currentPenalty = bestPenalty
	} else {
		best = p.state.snapshot()
		bestReport = report
	}

	bestReport.Postprocess = &diagnostics.PostprocessStats{
		InitialPenalty: p.initialPenalty,
		FinalPenalty:   p.currentPenalty,
		Iterations:     p.iterations,
		Improvements:   p.improvements,
		AcceptedWorse:  p.acceptedWorse,
		Temperature:    p.temperature,
	}
	p.log.PostprocessComplete(p.iterations, p.improvements, p.acceptedWorse, p.initialPenalty, p.currentPenalty)
	return best, bestReport
}

// Stats 当前统计（Run之后调用）
func (p *Postprocessor) Stats() diagnostics.PostprocessStats {
	return diagnostics.PostprocessStats{
		InitialPenalty: p.initialPenalty,
		FinalPenalty:   p.currentPenalty,
		Iterations:     p.iterations,
		Improvements:   p.improvements,
		AcceptedWorse:  p.acceptedWorse,
		Temperature:    p.temperature,
	}
}

func (p *Postprocessor) evaluate() (float64, *diagnostics.Report) {
	report := p.collector.Collect(p.state.assignments)
	return report.Penalty(p.weights), report
}

func (p *Postprocessor) penaltyOnly() float64 {
	penalty, _ := p.evaluate()
	return penalty
}

func (p *Postprocessor) resolve(v *diagnostics.Violation) (float64, *diagnostics.Report, bool) {
	switch v.Kind {
	case diagnostics.KindStaffingShortage:
		return p.resolveStaffingShortage(v.Staffing)
	case diagnostics.KindShiftPatternBreak:
		return p.resolvePatternBreak(v.PatternBreak)
	case diagnostics.KindTeamCoverage:
		return p.resolveTeamGap(v.TeamCoverage)
	case diagnostics.KindCareerGroup:
		return p.resolveCareerGap(v.CareerGroup)
	case diagnostics.KindTeamWorkload:
		return p.resolveTeamWorkloadGap(v.TeamWorkload)
	case diagnostics.KindOffBalance:
		return p.resolveOffBalanceGap(v.OffBalance)
	case diagnostics.KindAvoidPattern:
		return p.resolveAvoidPattern(v.AvoidPattern)
	case diagnostics.KindSpecialRequest:
		return p.resolveSpecialRequest(v.SpecialRequest)
	}
	return 0, nil, false
}

// resolveStaffingShortage 把员工其他日期的同班次换到缺口日（同员工跨日自换）
func (p *Postprocessor) resolveStaffingShortage(v *diagnostics.StaffingShortage) (float64, *diagnostics.Report, bool) {
	var candidates []swapCandidate
	for _, emp := range p.input.Employees {
		today := p.state.at(emp.ID, v.Date)
		if today == nil || today.IsLocked {
			continue
		}
		for _, otherDay := range p.cal.Dates {
			if otherDay == v.Date {
				continue
			}
			other := p.state.at(emp.ID, otherDay)
			if other == nil || other.IsLocked {
				continue
			}
			if model.NormalizeShiftCode(other.ShiftType) != v.ShiftType {
				continue
			}
			candidates = append(candidates, swapCandidate{v.Date, emp.ID, otherDay, emp.ID})
		}
	}
	return p.applyBestSwap(candidates)
}

// resolvePatternBreak 连班窗口内找同日搭档交换，休息或休假的搭档优先
func (p *Postprocessor) resolvePatternBreak(v *diagnostics.ShiftPatternBreak) (float64, *diagnostics.Report, bool) {
	startIndex := p.cal.DayIndex(v.StartDate)
	if startIndex < 0 {
		return 0, nil, false
	}
	end := startIndex + v.Window
	if end > p.cal.Days() {
		end = p.cal.Days()
	}
	target := model.NormalizeShiftCode(v.ShiftType)
	var candidates []swapCandidate
	for _, dayKey := range p.cal.Dates[startIndex:end] {
		if p.state.codeAt(v.EmployeeID, dayKey) != target {
			continue
		}
		for otherID, other := range p.state.dayAssignments(dayKey) {
			if otherID == v.EmployeeID || other.IsLocked {
				continue
			}
			otherCode := model.NormalizeShiftCode(other.ShiftType)
			if otherCode == target {
				continue
			}
			c := swapCandidate{dayKey, v.EmployeeID, dayKey, otherID}
			if otherCode == model.CodeOff || otherCode == model.CodeVacation {
				candidates = append([]swapCandidate{c}, candidates...)
			} else {
				candidates = append(candidates, c)
			}
		}
	}
	return p.applyBestSwap(candidates)
}

// resolveTeamGap 让缺口团队的成员与当天目标班次上的外团队员工互换
func (p *Postprocessor) resolveTeamGap(v *diagnostics.TeamCoverageGap) (float64, *diagnostics.Report, bool) {
	return p.resolveCoverageGap(v.Date, v.ShiftType, func(empID string) bool {
		emp, ok := p.state.employees[empID]
		return ok && emp.TeamID == v.TeamID
	})
}

// resolveCareerGap 同团队缺口，按职级组成员判定
func (p *Postprocessor) resolveCareerGap(v *diagnostics.CareerGroupCoverageGap) (float64, *diagnostics.Report, bool) {
	return p.resolveCoverageGap(v.Date, v.ShiftType, func(empID string) bool {
		emp, ok := p.state.employees[empID]
		return ok && emp.CareerGroupAlias == v.CareerGroupAlias
	})
}

func (p *Postprocessor) resolveCoverageGap(date, shiftType string, inGroup func(string) bool) (float64, *diagnostics.Report, bool) {
	var onShift, groupOthers []*model.Assignment
	for _, a := range p.state.dayAssignments(date) {
		if model.NormalizeShiftCode(a.ShiftType) == shiftType {
			onShift = append(onShift, a)
		} else if inGroup(a.EmployeeID) {
			groupOthers = append(groupOthers, a)
		}
	}
	var candidates []swapCandidate
	for _, a := range onShift {
		if inGroup(a.EmployeeID) {
			continue
		}
		for _, other := range groupOthers {
			candidates = append(candidates, swapCandidate{date, a.EmployeeID, date, other.EmployeeID})
		}
	}
	return p.applyBestSwap(candidates)
}

// resolveTeamWorkloadGap 多出团队向不足团队转移工作：
// 同日“工作↔休息”互换，再补跨日互换（候选数上限80）
func (p *Postprocessor) resolveTeamWorkloadGap(v *diagnostics.TeamWorkloadGap) (float64, *diagnostics.Report, bool) {
	members := p.input.TeamMembers()
	donors := members[v.TeamA]
	receivers := members[v.TeamB]
	if len(donors) == 0 || len(receivers) == 0 {
		return 0, nil, false
	}
	var candidates []swapCandidate
	for _, dayKey := range p.cal.Dates {
		day := p.state.dayAssignments(dayKey)
		for _, donor := range donors {
			donorAssignment := day[donor.ID]
			if donorAssignment == nil || donorAssignment.IsLocked {
				continue
			}
			if model.NormalizeShiftCode(donorAssignment.ShiftType) == model.CodeOff {
				continue
			}
			for _, receiver := range receivers {
				receiverAssignment := day[receiver.ID]
				if receiverAssignment == nil || receiverAssignment.IsLocked {
					continue
				}
				code := model.NormalizeShiftCode(receiverAssignment.ShiftType)
				if code == model.CodeOff || code == model.CodeAdmin {
					candidates = append(candidates, swapCandidate{dayKey, donor.ID, dayKey, receiver.ID})
				}
			}
		}
	}
	const maxCandidates = 80
	for _, donor := range donors {
		var donorWorkDays []string
		for _, dayKey := range p.cal.Dates {
			a := p.state.at(donor.ID, dayKey)
			if a == nil || a.IsLocked {
				continue
			}
			code := model.NormalizeShiftCode(a.ShiftType)
			if code != model.CodeOff && code != model.CodeAdmin {
				donorWorkDays = append(donorWorkDays, dayKey)
			}
		}
		if len(donorWorkDays) == 0 {
			continue
		}
		for _, receiver := range receivers {
			var receiverOffDays []string
			for _, dayKey := range p.cal.Dates {
				a := p.state.at(receiver.ID, dayKey)
				if a == nil || a.IsLocked {
					continue
				}
				code := model.NormalizeShiftCode(a.ShiftType)
				if code == model.CodeOff || code == model.CodeAdmin {
					receiverOffDays = append(receiverOffDays, dayKey)
				}
			}
			for _, donorDay := range donorWorkDays {
				if len(candidates) >= maxCandidates {
					break
				}
				for _, receiverDay := range receiverOffDays {
					candidates = append(candidates, swapCandidate{donorDay, donor.ID, receiverDay, receiver.ID})
					if len(candidates) >= maxCandidates {
						break
					}
				}
			}
		}
	}
	if len(candidates) == 0 {
		return 0, nil, false
	}
	return p.applyBestSwap(candidates)
}

// resolveOffBalanceGap 休多的一方把休息日换给休少的一方（同日互换）
func (p *Postprocessor) resolveOffBalanceGap(v *diagnostics.OffBalanceGap) (float64, *diagnostics.Report, bool) {
	counts := p.collector.OffDayCounts(model.BuildGrid(p.state.assignments))
	donor, receiver := v.EmployeeA, v.EmployeeB
	if counts[v.EmployeeA] < counts[v.EmployeeB] {
		donor, receiver = v.EmployeeB, v.EmployeeA
	}
	var candidates []swapCandidate
	for _, dayKey := range p.cal.Dates {
		if p.state.codeAt(donor, dayKey) != model.CodeOff {
			continue
		}
		receiverCode := p.state.codeAt(receiver, dayKey)
		if receiverCode == "" || receiverCode == model.CodeOff {
			continue
		}
		candidates = append(candidates, swapCandidate{dayKey, donor, dayKey, receiver})
	}
	return p.applyBestSwap(candidates)
}

// resolveAvoidPattern 在禁用序列覆盖的日期上与同日其他员工交换
func (p *Postprocessor) resolveAvoidPattern(v *diagnostics.AvoidPatternViolation) (float64, *diagnostics.Report, bool) {
	if len(v.Pattern) == 0 {
		return 0, nil, false
	}
	var candidates []swapCandidate
	for offset, shiftCode := range v.Pattern {
		position := v.StartIndex + offset
		if position >= p.cal.Days() {
			break
		}
		dayKey := p.cal.Dates[position]
		for otherID, other := range p.state.dayAssignments(dayKey) {
			if otherID == v.EmployeeID || other.IsLocked {
				continue
			}
			if model.NormalizeShiftCode(other.ShiftType) == shiftCode {
				continue
			}
			candidates = append(candidates, swapCandidate{dayKey, v.EmployeeID, dayKey, otherID})
		}
	}
	if len(candidates) == 0 {
		return 0, nil, false
	}
	return p.applyBestSwap(candidates)
}

// resolveSpecialRequest 优先同日与持有目标班次的人互换，
// 其次把该员工其他日期的目标班次跨日换到请求日
func (p *Postprocessor) resolveSpecialRequest(v *diagnostics.SpecialRequestMiss) (float64, *diagnostics.Report, bool) {
	var candidates []swapCandidate
	current := p.state.at(v.EmployeeID, v.Date)
	if current != nil && model.NormalizeShiftCode(current.ShiftType) != v.ShiftType && !current.IsLocked {
		for otherID, other := range p.state.dayAssignments(v.Date) {
			if other.IsLocked {
				continue
			}
			if model.NormalizeShiftCode(other.ShiftType) == v.ShiftType {
				candidates = append(candidates, swapCandidate{v.Date, v.EmployeeID, v.Date, otherID})
			}
		}
	}
	for _, otherDay := range p.cal.Dates {
		if otherDay == v.Date {
			continue
		}
		other := p.state.at(v.EmployeeID, otherDay)
		if other == nil || other.IsLocked {
			continue
		}
		if model.NormalizeShiftCode(other.ShiftType) == v.ShiftType {
			candidates = append(candidates, swapCandidate{otherDay, v.EmployeeID, v.Date, v.EmployeeID})
		}
	}
	return p.applyBestSwap(candidates)
}

// assessSwap 试交换并评估罚分，随后立刻还原；禁忌或非法交换返回false
func (p *Postprocessor) assessSwap(c swapCandidate) (float64, bool) {
	if p.tabu.contains(newTabuKey(c.dayA, c.empA, c.dayB, c.empB)) {
		return 0, false
	}
	if !p.state.swapPair(c.dayA, c.empA, c.dayB, c.empB) {
		return 0, false
	}
	penalty := p.penaltyOnly()
	p.state.swapPair(c.dayA, c.empA, c.dayB, c.empB)
	return penalty, true
}

// applyBestSwap 在候选中选最优改进；没有改进时按退火概率接受最小恶化
func (p *Postprocessor) applyBestSwap(candidates []swapCandidate) (float64, *diagnostics.Report, bool) {
	var bestImprove, bestWorse *swapCandidate
	bestImprovePenalty := math.Inf(1)
	bestWorsePenalty := math.Inf(1)
	for i := range candidates {
		c := candidates[i]
		penalty, ok := p.assessSwap(c)
		if !ok {
			continue
		}
		delta := penalty - p.currentPenalty
		if delta < -improveEpsilon {
			if penalty < bestImprovePenalty {
				bestImprovePenalty = penalty
				bestImprove = &candidates[i]
			}
		} else if penalty < bestWorsePenalty {
			bestWorsePenalty = penalty
			bestWorse = &candidates[i]
		}
	}
	var chosen *swapCandidate
	if bestImprove != nil {
		chosen = bestImprove
	} else if bestWorse != nil && p.acceptWorse(bestWorsePenalty) {
		chosen = bestWorse
		p.acceptedWorse++
	}
	if chosen == nil {
		return 0, nil, false
	}
	if !p.state.swapPair(chosen.dayA, chosen.empA, chosen.dayB, chosen.empB) {
		return 0, nil, false
	}
	p.tabu.add(newTabuKey(chosen.dayA, chosen.empA, chosen.dayB, chosen.empB))
	penalty, report := p.evaluate()
	return penalty, report, true
}

// acceptWorse 模拟退火接受准则：等值直接接受，恶化按温度衰减的概率接受
func (p *Postprocessor) acceptWorse(candidatePenalty float64) bool {
	if p.temperature <= 1e-6 {
		return false
	}
	delta := candidatePenalty - p.currentPenalty
	if delta <= 0 {
		return true
	}
	probability := math.Exp(-delta / math.Max(1e-6, p.temperature))
	return p.rng.Float64() < probability
}
