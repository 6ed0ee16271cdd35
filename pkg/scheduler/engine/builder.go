// Package engine 把排班问题翻译成线性模型并驱动后端求解
package engine

import (
	"fmt"
	"math"
	"strings"

	"github.com/lunban/lunban/pkg/model"
	"github.com/lunban/lunban/pkg/scheduler/backend"
	"github.com/lunban/lunban/pkg/scheduler/preflight"
)

// 目标系数基数（再乘约束权重后×1000定点放大为整数）
const (
	penaltyStaffing       = 1000.0
	penaltyTeamCover      = 500.0
	penaltySpecialRequest = 1200.0
	penaltyCareerCover    = 450.0
	penaltyCareerBalance  = 600.0
	penaltyOffBalance     = 800.0
	penaltyShiftRepeat    = 350.0
	penaltyRestAfterNight = 500.0
	penaltyShiftBalance   = 250.0

	penaltyTeamPattern    = 40.0
	penaltyPreferenceBase = 20.0

	careerBalanceTolerance = 1
	teamBalanceTolerance   = 2
	offBalanceTolerance    = 2
)

type varKey struct {
	emp  string
	date string
	code string
}

type slackEntry struct {
	v    backend.VarID
	date string
	code string
	key  string // teamId或careerGroupAlias
}

type patternEntry struct {
	v          backend.VarID
	employeeID string
	shiftType  string
	startDate  string
	window     int
}

type balanceEntry struct {
	v         backend.VarID
	a         string
	b         string
	tolerance int
}

type shiftBalanceEntry struct {
	v          backend.VarID
	employeeID string
	shiftA     string
	shiftB     string
	tolerance  int
}

// Build 建模产物：模型本体与读解所需的全部变量登记表
type Build struct {
	Model *backend.Model

	input *model.ScheduleInput
	cal   *model.Calendar

	codes          []string
	vars           map[varKey]backend.VarID
	orderedKeys    []varKey
	specialTargets map[varKey]bool

	staffingRequirements map[string]map[string]int // date → code → min
	staffingSlacks       []slackEntry
	teamSlacks           []slackEntry
	careerSlacks         []slackEntry
	specialSlacks        []slackEntry
	careerBalanceSlacks  []backend.VarID
	teamBalanceEntries   []balanceEntry
	offCountVars         map[string]backend.VarID
	offBalanceSlackList  []backend.VarID
	patternEntries       []patternEntry // 连班、夜班窗口，计入shiftPattern罚分350
	restEntries          []patternEntry // 夜班后接早班，罚分500
	shiftBalanceEntries  []shiftBalanceEntry

	PreflightIssues []preflight.Issue
	MaxSameShift    int
}

// intCoeff 权重系数×1000定点放大
func intCoeff(v float64) int64 {
	return int64(math.Round(v * 1000))
}

// NewBuild 构建完整模型
func NewBuild(input *model.ScheduleInput, cal *model.Calendar) *Build {
	b := &Build{
		Model:                backend.NewModel(),
		input:                input,
		cal:                  cal,
		codes:                input.ActiveShiftCodes(),
		vars:                 map[varKey]backend.VarID{},
		specialTargets:       map[varKey]bool{},
		staffingRequirements: map[string]map[string]int{},
		offCountVars:         map[string]backend.VarID{},
	}
	for _, req := range input.SpecialRequests {
		code := req.NormalizedRequestCode()
		if code == "" {
			continue
		}
		b.specialTargets[varKey{req.EmployeeID, req.Date, code}] = true
	}
	opts := input.Options
	maxSameShift := 2
	balanceTolerance := 4
	if opts != nil && opts.CspSettings != nil {
		if opts.CspSettings.MaxSameShift != nil {
			maxSameShift = model.ClampMaxSameShift(*opts.CspSettings.MaxSameShift)
		}
		if opts.CspSettings.ShiftBalanceTolerance != nil {
			balanceTolerance = model.ClampShiftBalanceTolerance(*opts.CspSettings.ShiftBalanceTolerance)
		}
	}
	b.MaxSameShift = maxSameShift
	b.PreflightIssues = preflight.Analyze(input, cal)

	weights := opts.Weights()

	b.createVariables()
	b.addDailyAssignmentConstraints()
	b.addSpecialRequestConstraints()
	b.restrictSpecialOnlyShifts()
	b.addPatternConstraints()
	b.addAvoidPatternConstraints()
	capacity := b.addStaffingConstraints()
	b.addTeamCoverageConstraints()
	b.addCareerGroupConstraints()
	b.addCareerGroupBalanceConstraints(careerBalanceTolerance)
	b.addTeamBalanceConstraints(teamBalanceTolerance)
	b.addOffDayConstraints(capacity)
	b.addOffBalanceConstraints(offBalanceTolerance)
	b.addShiftRepeatConstraints(maxSameShift)
	b.addConsecutiveConstraints()
	b.addNightIntensivePatternConstraints()
	b.addRestAfterNightConstraints()
	b.addShiftBalanceConstraints(balanceTolerance)
	b.buildObjective(weights)
	return b
}

func varName(emp, date, code string) string {
	r := strings.NewReplacer("-", "_")
	return fmt.Sprintf("x_%s_%s_%s", r.Replace(emp), r.Replace(date), r.Replace(code))
}

func (b *Build) createVariables() {
	for _, emp := range b.input.Employees {
		for _, date := range b.cal.Dates {
			for _, code := range b.codes {
				key := varKey{emp.ID, date, code}
				b.vars[key] = b.Model.NewBool(varName(emp.ID, date, code))
				b.orderedKeys = append(b.orderedKeys, key)
			}
		}
	}
}

// addDailyAssignmentConstraints 每人每天恰好一个班次
func (b *Build) addDailyAssignmentConstraints() {
	for _, emp := range b.input.Employees {
		for _, date := range b.cal.Dates {
			terms := make([]backend.Term, 0, len(b.codes))
			for _, code := range b.codes {
				terms = append(terms, backend.Term{Var: b.vars[varKey{emp.ID, date, code}], Coeff: 1})
			}
			b.Model.AddConstraint("one_shift_"+emp.ID+"_"+date, terms, backend.Equal, 1)
		}
	}
}

// addSpecialRequestConstraints 特殊请求软约束：x + slack ≥ 1
func (b *Build) addSpecialRequestConstraints() {
	for i, req := range b.input.SpecialRequests {
		code := req.NormalizedRequestCode()
		if code == "" {
			continue
		}
		v, ok := b.vars[varKey{req.EmployeeID, req.Date, code}]
		if !ok {
			continue
		}
		slack := b.Model.NewBool(fmt.Sprintf("special_req_slack_%s_%s_%s_%d", req.EmployeeID, req.Date, code, i))
		b.Model.AddConstraint(
			fmt.Sprintf("special_req_%d", i),
			[]backend.Term{{Var: v, Coeff: 1}, {Var: slack, Coeff: 1}},
			backend.GreaterOrEqual, 1,
		)
		b.specialSlacks = append(b.specialSlacks, slackEntry{v: slack, date: req.Date, code: code, key: req.EmployeeID})
	}
}

// restrictSpecialOnlyShifts 只因特殊请求进入字母表的班次，除请求者外禁排
func (b *Build) restrictSpecialOnlyShifts() {
	required := b.input.RequiredStaffByCode()
	specialOnly := map[string]bool{}
	for key := range b.specialTargets {
		code := key.code
		if _, ok := required[code]; ok {
			continue
		}
		if code == model.CodeAdmin || code == model.CodeOff {
			continue
		}
		specialOnly[code] = true
	}
	if len(specialOnly) == 0 {
		return
	}
	for _, emp := range b.input.Employees {
		for _, date := range b.cal.Dates {
			for code := range specialOnly {
				key := varKey{emp.ID, date, code}
				if b.specialTargets[key] {
					continue
				}
				if v, ok := b.vars[key]; ok {
					b.Model.AddConstraint("special_only_"+emp.ID+"_"+date+"_"+code,
						[]backend.Term{{Var: v, Coeff: 1}}, backend.Equal, 0)
				}
			}
		}
	}
}

// addPatternConstraints 按工作模式禁排的(员工,日期,班次)固定为0
func (b *Build) addPatternConstraints() {
	for _, emp := range b.input.Employees {
		for _, date := range b.cal.Dates {
			weekend := b.cal.IsWeekendOrHoliday(date)
			for _, code := range b.codes {
				if model.IsShiftAllowed(emp.Pattern(), code, weekend) {
					continue
				}
				v := b.vars[varKey{emp.ID, date, code}]
				b.Model.AddConstraint("disallow_"+emp.ID+"_"+date+"_"+code,
					[]backend.Term{{Var: v, Coeff: 1}}, backend.Equal, 0)
			}
		}
	}
}

// addAvoidPatternConstraints 禁用序列硬约束：窗口内命中数 ≤ 长度−1
func (b *Build) addAvoidPatternConstraints() {
	if b.input.TeamPattern == nil {
		return
	}
	var patterns [][]string
	for _, pattern := range b.input.TeamPattern.AvoidPatterns {
		normalized := make([]string, 0, len(pattern))
		for _, code := range pattern {
			if c := model.NormalizeShiftCode(code); c != "" {
				normalized = append(normalized, c)
			}
		}
		if len(normalized) > 0 {
			patterns = append(patterns, normalized)
		}
	}
	for _, emp := range b.input.Employees {
		for pi, pattern := range patterns {
			length := len(pattern)
			if length > b.cal.Days() {
				continue
			}
			for start := 0; start <= b.cal.Days()-length; start++ {
				var terms []backend.Term
				for offset, code := range pattern {
					date := b.cal.Dates[start+offset]
					if v, ok := b.vars[varKey{emp.ID, date, code}]; ok {
						terms = append(terms, backend.Term{Var: v, Coeff: 1})
					}
				}
				if len(terms) > 0 {
					b.Model.AddConstraint(fmt.Sprintf("avoid_%s_%d_%d", emp.ID, pi, start),
						terms, backend.LessOrEqual, int64(length-1))
				}
			}
		}
	}
}

// addStaffingConstraints 人力约束：下限为带松弛的软约束，上限为硬约束
// 返回全期最大容量（休息日上界的容量提示用）
func (b *Build) addStaffingConstraints() int {
	required := b.input.RequiredStaffByCode()
	shiftMax := map[string]int{}
	for _, shift := range b.input.Shifts {
		if shift.MaxStaff != nil {
			code := shift.NormalizedCode()
			if *shift.MaxStaff > 0 {
				shiftMax[code] = *shift.MaxStaff
			}
		}
	}
	capacity := 0
	for _, date := range b.cal.Dates {
		weekend := b.cal.IsWeekendOrHoliday(date)
		for _, code := range b.codes {
			eligible := 0
			for _, emp := range b.input.Employees {
				if model.IsShiftAllowed(emp.Pattern(), code, weekend) {
					eligible++
				}
			}
			minRequired, hasMin := required[code]
			// 无人可排时下限失去意义
			if hasMin && eligible == 0 {
				hasMin = false
			}
			maxAllowed, hasMax := shiftMax[code]
			if hasMin {
				if !hasMax {
					maxAllowed, hasMax = minRequired, true
				} else if maxAllowed < minRequired {
					maxAllowed = minRequired
				}
			}
			if !hasMin && !hasMax {
				continue
			}
			terms := make([]backend.Term, 0, len(b.input.Employees))
			for _, emp := range b.input.Employees {
				terms = append(terms, backend.Term{Var: b.vars[varKey{emp.ID, date, code}], Coeff: 1})
			}
			if hasMin {
				slack := b.Model.NewInt(fmt.Sprintf("staffing_slack_%s_%s", date, code), 0, int64(minRequired))
				withSlack := append(append([]backend.Term(nil), terms...), backend.Term{Var: slack, Coeff: 1})
				b.Model.AddConstraint("staffing_min_"+date+"_"+code, withSlack, backend.GreaterOrEqual, int64(minRequired))
				b.staffingSlacks = append(b.staffingSlacks, slackEntry{v: slack, date: date, code: code})
				byCode, ok := b.staffingRequirements[date]
				if !ok {
					byCode = map[string]int{}
					b.staffingRequirements[date] = byCode
				}
				byCode[code] = minRequired
			}
			if hasMax {
				b.Model.AddConstraint("staffing_max_"+date+"_"+code, terms, backend.LessOrEqual, int64(maxAllowed))
				capacity += maxAllowed
			}
		}
	}
	return capacity
}

// addTeamCoverageConstraints 每团队在覆盖班次上至少1人，松弛计罚
func (b *Build) addTeamCoverageConstraints() {
	teamIDs := b.input.TeamIDs()
	if len(teamIDs) == 0 {
		return
	}
	coverCodes := map[string]bool{}
	for _, code := range model.TeamCoverageCodes(b.input.RequiredStaffByCode()) {
		coverCodes[code] = true
	}
	members := b.input.TeamMembers()
	for _, date := range b.cal.Dates {
		weekend := b.cal.IsWeekendOrHoliday(date)
		for _, code := range b.codes {
			if !coverCodes[code] {
				continue
			}
			for _, teamID := range teamIDs {
				var eligible []*model.Employee
				for _, emp := range members[teamID] {
					if model.IsShiftAllowed(emp.Pattern(), code, weekend) {
						eligible = append(eligible, emp)
					}
				}
				if len(eligible) == 0 {
					continue
				}
				slack := b.Model.NewInt(fmt.Sprintf("team_cover_slack_%s_%s_%s", date, code, teamID), 0, int64(len(eligible)))
				terms := make([]backend.Term, 0, len(eligible)+1)
				for _, emp := range eligible {
					terms = append(terms, backend.Term{Var: b.vars[varKey{emp.ID, date, code}], Coeff: 1})
				}
				terms = append(terms, backend.Term{Var: slack, Coeff: 1})
				b.Model.AddConstraint("team_cover_"+date+"_"+code+"_"+teamID, terms, backend.GreaterOrEqual, 1)
				b.teamSlacks = append(b.teamSlacks, slackEntry{v: slack, date: date, code: code, key: teamID})
			}
		}
	}
}

// addCareerGroupConstraints 每职级组在覆盖班次上至少1人，松弛计罚
func (b *Build) addCareerGroupConstraints() {
	aliases := b.input.CareerGroupAliases()
	if len(aliases) == 0 {
		return
	}
	coverCodes := map[string]bool{}
	for _, code := range model.TeamCoverageCodes(b.input.RequiredStaffByCode()) {
		coverCodes[code] = true
	}
	for _, date := range b.cal.Dates {
		weekend := b.cal.IsWeekendOrHoliday(date)
		for _, code := range b.codes {
			if !coverCodes[code] {
				continue
			}
			for _, alias := range aliases {
				var eligible []*model.Employee
				for _, emp := range b.input.Employees {
					if emp.CareerGroupAlias == alias && model.IsShiftAllowed(emp.Pattern(), code, weekend) {
						eligible = append(eligible, emp)
					}
				}
				if len(eligible) == 0 {
					continue
				}
				slack := b.Model.NewInt(fmt.Sprintf("career_cover_slack_%s_%s_%s", date, code, alias), 0, int64(len(eligible)))
				terms := make([]backend.Term, 0, len(eligible)+1)
				for _, emp := range eligible {
					terms = append(terms, backend.Term{Var: b.vars[varKey{emp.ID, date, code}], Coeff: 1})
				}
				terms = append(terms, backend.Term{Var: slack, Coeff: 1})
				b.Model.AddConstraint("career_cover_"+date+"_"+code+"_"+alias, terms, backend.GreaterOrEqual, 1)
				b.careerSlacks = append(b.careerSlacks, slackEntry{v: slack, date: date, code: code, key: alias})
			}
		}
	}
}

// addCareerGroupBalanceConstraints 职级组工作量两两差值限制，超出部分松弛计罚
func (b *Build) addCareerGroupBalanceConstraints(tolerance int) {
	aliases := b.input.CareerGroupAliases()
	balanceCodes := model.CareerCoverageCodes(b.input.RequiredStaffByCode())
	if len(aliases) < 2 || len(balanceCodes) == 0 {
		return
	}
	maxTotal := int64(b.cal.Days() * len(b.input.Employees))
	totals := map[string]backend.VarID{}
	for _, alias := range aliases {
		total := b.Model.NewInt("career_group_total_"+alias, 0, maxTotal)
		totals[alias] = total
		terms := []backend.Term{{Var: total, Coeff: -1}}
		for _, emp := range b.input.Employees {
			if emp.CareerGroupAlias != alias {
				continue
			}
			for _, date := range b.cal.Dates {
				for _, code := range balanceCodes {
					if v, ok := b.vars[varKey{emp.ID, date, code}]; ok {
						terms = append(terms, backend.Term{Var: v, Coeff: 1})
					}
				}
			}
		}
		b.Model.AddConstraint("career_group_total_"+alias, terms, backend.Equal, 0)
	}
	for i := 0; i < len(aliases); i++ {
		for j := i + 1; j < len(aliases); j++ {
			b.addPairBalance(totals[aliases[i]], totals[aliases[j]],
				"career_group_balance_"+aliases[i]+"_"+aliases[j], maxTotal, tolerance,
				func(slack backend.VarID) { b.careerBalanceSlacks = append(b.careerBalanceSlacks, slack) })
			b.addPairBalance(totals[aliases[j]], totals[aliases[i]],
				"career_group_balance_"+aliases[j]+"_"+aliases[i], maxTotal, tolerance,
				func(slack backend.VarID) { b.careerBalanceSlacks = append(b.careerBalanceSlacks, slack) })
		}
	}
}

// addPairBalance a − b − slack ≤ tolerance
func (b *Build) addPairBalance(a, bb backend.VarID, name string, ub int64, tolerance int, register func(backend.VarID)) {
	slack := b.Model.NewInt(name, 0, ub)
	b.Model.AddConstraint(name,
		[]backend.Term{{Var: a, Coeff: 1}, {Var: bb, Coeff: -1}, {Var: slack, Coeff: -1}},
		backend.LessOrEqual, int64(tolerance))
	register(slack)
}

// addTeamBalanceConstraints 团队工作量两两差值限制
func (b *Build) addTeamBalanceConstraints(tolerance int) {
	teamIDs := b.input.TeamIDs()
	if len(teamIDs) < 2 {
		return
	}
	var relevant []string
	for _, code := range b.codes {
		if code != model.CodeOff && code != model.CodeAdmin {
			relevant = append(relevant, code)
		}
	}
	maxTotal := int64(b.cal.Days() * len(b.input.Employees))
	totals := map[string]backend.VarID{}
	for _, teamID := range teamIDs {
		total := b.Model.NewInt("team_total_"+teamID, 0, maxTotal)
		totals[teamID] = total
		terms := []backend.Term{{Var: total, Coeff: -1}}
		for _, emp := range b.input.Employees {
			if emp.TeamID != teamID {
				continue
			}
			for _, date := range b.cal.Dates {
				for _, code := range relevant {
					terms = append(terms, backend.Term{Var: b.vars[varKey{emp.ID, date, code}], Coeff: 1})
				}
			}
		}
		b.Model.AddConstraint("team_total_"+teamID, terms, backend.Equal, 0)
	}
	for i := 0; i < len(teamIDs); i++ {
		for j := i + 1; j < len(teamIDs); j++ {
			teamI, teamJ := teamIDs[i], teamIDs[j]
			b.addPairBalance(totals[teamI], totals[teamJ], "team_balance_"+teamI+"_"+teamJ, maxTotal, tolerance,
				func(slack backend.VarID) {
					b.teamBalanceEntries = append(b.teamBalanceEntries, balanceEntry{v: slack, a: teamI, b: teamJ, tolerance: tolerance})
				})
			b.addPairBalance(totals[teamJ], totals[teamI], "team_balance_"+teamJ+"_"+teamI, maxTotal, tolerance,
				func(slack backend.VarID) {
					b.teamBalanceEntries = append(b.teamBalanceEntries, balanceEntry{v: slack, a: teamJ, b: teamI, tolerance: tolerance})
				})
		}
	}
}

// addOffDayConstraints 休息日计数与目标区间
// 夜班专职的下限是硬约束；其余员工按目标±2收敛，上界考虑容量提示
func (b *Build) addOffDayConstraints(capacity int) {
	days := b.cal.Days()
	totalSlots := days * len(b.input.Employees)
	offEligible := 0
	for _, emp := range b.input.Employees {
		if emp.Pattern() != model.PatternWeekdayOnly {
			offEligible++
		}
	}
	hint := 0
	if offEligible > 0 {
		spare := totalSlots - capacity
		if spare > 0 {
			hint = (spare + offEligible - 1) / offEligible
		}
	}
	targets := b.input.OffDayTargets(b.cal)
	for _, emp := range b.input.Employees {
		offCount := b.Model.NewInt("off_count_"+emp.ID, 0, int64(days))
		b.offCountVars[emp.ID] = offCount
		terms := []backend.Term{{Var: offCount, Coeff: -1}}
		for _, date := range b.cal.Dates {
			terms = append(terms, backend.Term{Var: b.vars[varKey{emp.ID, date, model.CodeOff}], Coeff: 1})
			if v, ok := b.vars[varKey{emp.ID, date, model.CodeVacation}]; ok {
				terms = append(terms, backend.Term{Var: v, Coeff: 1})
			}
		}
		b.Model.AddConstraint("off_count_"+emp.ID, terms, backend.Equal, 0)

		target, ok := targets[emp.ID]
		if !ok {
			continue
		}
		countTerm := []backend.Term{{Var: offCount, Coeff: 1}}
		if emp.Pattern() == model.PatternNightIntensive {
			b.Model.AddConstraint("off_floor_"+emp.ID, countTerm, backend.GreaterOrEqual, int64(target))
			continue
		}
		lower := target - 2
		if lower < 0 {
			lower = 0
		}
		upper := target + 2
		if hint > upper {
			upper = hint
		}
		if lower > upper {
			upper = lower
		}
		if upper > days {
			upper = days
		}
		b.Model.AddConstraint("off_floor_"+emp.ID, countTerm, backend.GreaterOrEqual, int64(lower))
		b.Model.AddConstraint("off_ceil_"+emp.ID, countTerm, backend.LessOrEqual, int64(upper))
	}
}

// addOffBalanceConstraints 同团队成员休息日两两差值限制
func (b *Build) addOffBalanceConstraints(tolerance int) {
	members := b.input.TeamMembers()
	teamIDs := b.input.TeamIDs()
	days := int64(b.cal.Days())
	for _, teamID := range teamIDs {
		team := members[teamID]
		if len(team) < 2 {
			continue
		}
		for i := 0; i < len(team); i++ {
			for j := i + 1; j < len(team); j++ {
				a, ok1 := b.offCountVars[team[i].ID]
				c, ok2 := b.offCountVars[team[j].ID]
				if !ok1 || !ok2 {
					continue
				}
				b.addPairBalance(a, c, fmt.Sprintf("off_balance_%s_%s_%s", teamID, team[i].ID, team[j].ID), days, tolerance,
					func(slack backend.VarID) { b.registerOffBalance(slack) })
				b.addPairBalance(c, a, fmt.Sprintf("off_balance_%s_%s_%s", teamID, team[j].ID, team[i].ID), days, tolerance,
					func(slack backend.VarID) { b.registerOffBalance(slack) })
			}
		}
	}
}

func (b *Build) registerOffBalance(slack backend.VarID) {
	b.offBalanceSlackList = append(b.offBalanceSlackList, slack)
}

// addShiftRepeatConstraints 同班次连排超限软约束（窗口=上限+1）
func (b *Build) addShiftRepeatConstraints(maxSameShift int) {
	window := maxSameShift + 1
	if window > b.cal.Days() {
		return
	}
	for _, emp := range b.input.Employees {
		for _, code := range b.codes {
			if code == model.CodeOff {
				continue
			}
			for start := 0; start <= b.cal.Days()-window; start++ {
				terms := make([]backend.Term, 0, window+1)
				for offset := 0; offset < window; offset++ {
					date := b.cal.Dates[start+offset]
					if v, ok := b.vars[varKey{emp.ID, date, code}]; ok {
						terms = append(terms, backend.Term{Var: v, Coeff: 1})
					}
				}
				if len(terms) == 0 {
					continue
				}
				slack := b.Model.NewInt(fmt.Sprintf("repeat_slack_%s_%s_%d", emp.ID, code, start), 0, int64(window))
				terms = append(terms, backend.Term{Var: slack, Coeff: -1})
				b.Model.AddConstraint(fmt.Sprintf("repeat_%s_%s_%d", emp.ID, code, start),
					terms, backend.LessOrEqual, int64(maxSameShift))
				b.patternEntries = append(b.patternEntries, patternEntry{
					v: slack, employeeID: emp.ID, shiftType: code,
					startDate: b.cal.Dates[start], window: window,
				})
			}
		}
	}
}

// addConsecutiveConstraints 连续工作天数/夜数上限（员工显式偏好，硬约束）
func (b *Build) addConsecutiveConstraints() {
	days := b.cal.Days()
	hasNight := false
	for _, code := range b.codes {
		if code == model.CodeNight {
			hasNight = true
		}
	}
	for _, emp := range b.input.Employees {
		if emp.MaxConsecutiveDaysPreferred != nil && *emp.MaxConsecutiveDaysPreferred >= 0 {
			maxDays := *emp.MaxConsecutiveDaysPreferred
			window := maxDays + 1
			if window <= days {
				for start := 0; start < days-maxDays; start++ {
					var terms []backend.Term
					for offset := 0; offset < window; offset++ {
						date := b.cal.Dates[start+offset]
						terms = append(terms, backend.Term{Var: b.vars[varKey{emp.ID, date, model.CodeOff}], Coeff: 1})
						if v, ok := b.vars[varKey{emp.ID, date, model.CodeVacation}]; ok {
							terms = append(terms, backend.Term{Var: v, Coeff: 1})
						}
					}
					b.Model.AddConstraint(fmt.Sprintf("consec_days_%s_%d", emp.ID, start),
						terms, backend.GreaterOrEqual, 1)
				}
			}
		}
		if hasNight && emp.MaxConsecutiveNightsPreferred != nil && *emp.MaxConsecutiveNightsPreferred >= 0 {
			maxNights := *emp.MaxConsecutiveNightsPreferred
			window := maxNights + 1
			if window <= days {
				for start := 0; start < days-maxNights; start++ {
					var terms []backend.Term
					for offset := 0; offset < window; offset++ {
						date := b.cal.Dates[start+offset]
						if v, ok := b.vars[varKey{emp.ID, date, model.CodeNight}]; ok {
							terms = append(terms, backend.Term{Var: v, Coeff: 1})
						}
					}
					if len(terms) > 0 {
						b.Model.AddConstraint(fmt.Sprintf("consec_nights_%s_%d", emp.ID, start),
							terms, backend.LessOrEqual, int64(maxNights))
					}
				}
			}
		}
	}
}

// addNightIntensivePatternConstraints 夜班专职：4天内夜班≤3，5天内休息≥2（带松弛）
func (b *Build) addNightIntensivePatternConstraints() {
	days := b.cal.Days()
	for _, emp := range b.input.Employees {
		if emp.Pattern() != model.PatternNightIntensive {
			continue
		}
		if days >= 4 {
			for start := 0; start <= days-4; start++ {
				var terms []backend.Term
				for offset := 0; offset < 4; offset++ {
					date := b.cal.Dates[start+offset]
					if v, ok := b.vars[varKey{emp.ID, date, model.CodeNight}]; ok {
						terms = append(terms, backend.Term{Var: v, Coeff: 1})
					}
				}
				if len(terms) == 0 {
					continue
				}
				slack := b.Model.NewInt(fmt.Sprintf("night_limit_slack_%s_%d", emp.ID, start), 0, int64(len(terms)))
				terms = append(terms, backend.Term{Var: slack, Coeff: -1})
				b.Model.AddConstraint(fmt.Sprintf("night_limit_%s_%d", emp.ID, start),
					terms, backend.LessOrEqual, 3)
				b.patternEntries = append(b.patternEntries, patternEntry{
					v: slack, employeeID: emp.ID, shiftType: model.CodeNight,
					startDate: b.cal.Dates[start], window: 4,
				})
			}
		}
		if days >= 5 {
			for start := 0; start <= days-5; start++ {
				var terms []backend.Term
				for offset := 0; offset < 5; offset++ {
					date := b.cal.Dates[start+offset]
					terms = append(terms, backend.Term{Var: b.vars[varKey{emp.ID, date, model.CodeOff}], Coeff: 1})
				}
				slack := b.Model.NewInt(fmt.Sprintf("night_off_slack_%s_%d", emp.ID, start), 0, int64(len(terms)))
				terms = append(terms, backend.Term{Var: slack, Coeff: 1})
				b.Model.AddConstraint(fmt.Sprintf("night_off_%s_%d", emp.ID, start),
					terms, backend.GreaterOrEqual, 2)
				b.patternEntries = append(b.patternEntries, patternEntry{
					v: slack, employeeID: emp.ID, shiftType: model.CodeOff,
					startDate: b.cal.Dates[start], window: 5,
				})
			}
		}
	}
}

// addRestAfterNightConstraints 夜班次日不接早班软约束：N_d + D_{d+1} − slack ≤ 1
func (b *Build) addRestAfterNightConstraints() {
	hasNight := false
	for _, code := range b.codes {
		if code == model.CodeNight {
			hasNight = true
		}
	}
	if !hasNight {
		return
	}
	for _, emp := range b.input.Employees {
		for i := 0; i < b.cal.Days()-1; i++ {
			date := b.cal.Dates[i]
			next := b.cal.Dates[i+1]
			night, ok := b.vars[varKey{emp.ID, date, model.CodeNight}]
			if !ok {
				continue
			}
			for _, early := range []string{model.CodeDay, model.CodeEvening} {
				nextVar, ok := b.vars[varKey{emp.ID, next, early}]
				if !ok {
					continue
				}
				slack := b.Model.NewBool(fmt.Sprintf("rest_after_night_%s_%s_%s", emp.ID, date, early))
				b.Model.AddConstraint(fmt.Sprintf("rest_%s_%s_%s", emp.ID, date, early),
					[]backend.Term{{Var: night, Coeff: 1}, {Var: nextVar, Coeff: 1}, {Var: slack, Coeff: -1}},
					backend.LessOrEqual, 1)
				b.restEntries = append(b.restEntries, patternEntry{
					v: slack, employeeID: emp.ID, shiftType: "N->" + early,
					startDate: date, window: 2,
				})
			}
		}
	}
}

// addShiftBalanceConstraints 三班倒员工的D/E/N分布两两差值限制
func (b *Build) addShiftBalanceConstraints(tolerance int) {
	var core []string
	for _, code := range []string{model.CodeDay, model.CodeEvening, model.CodeNight} {
		for _, c := range b.codes {
			if c == code {
				core = append(core, code)
			}
		}
	}
	if len(core) < 2 {
		return
	}
	days := int64(b.cal.Days())
	for _, emp := range b.input.Employees {
		if emp.Pattern() != model.PatternThreeShift {
			continue
		}
		counts := map[string]backend.VarID{}
		for _, code := range core {
			count := b.Model.NewInt(fmt.Sprintf("shift_count_%s_%s", emp.ID, code), 0, days)
			counts[code] = count
			terms := []backend.Term{{Var: count, Coeff: -1}}
			for _, date := range b.cal.Dates {
				if v, ok := b.vars[varKey{emp.ID, date, code}]; ok {
					terms = append(terms, backend.Term{Var: v, Coeff: 1})
				}
			}
			b.Model.AddConstraint(fmt.Sprintf("shift_count_%s_%s", emp.ID, code), terms, backend.Equal, 0)
		}
		for i := 0; i < len(core); i++ {
			for j := i + 1; j < len(core); j++ {
				codeI, codeJ := core[i], core[j]
				b.addPairBalance(counts[codeI], counts[codeJ],
					fmt.Sprintf("shift_balance_%s_%s_%s", emp.ID, codeI, codeJ), days, tolerance,
					func(slack backend.VarID) { b.registerShiftBalance(slack, emp.ID, codeI, codeJ, tolerance) })
				b.addPairBalance(counts[codeJ], counts[codeI],
					fmt.Sprintf("shift_balance_%s_%s_%s", emp.ID, codeJ, codeI), days, tolerance,
					func(slack backend.VarID) { b.registerShiftBalance(slack, emp.ID, codeJ, codeI, tolerance) })
			}
		}
	}
}

func (b *Build) registerShiftBalance(slack backend.VarID, emp, shiftA, shiftB string, tolerance int) {
	b.shiftBalanceEntries = append(b.shiftBalanceEntries, shiftBalanceEntry{slack, emp, shiftA, shiftB, tolerance})
}

// preferencePenalties 偏好罚分：团队模式错位+40，偏好权重缺口×20
func (b *Build) preferencePenalties() map[varKey]float64 {
	penalties := map[varKey]float64{}
	var sequence []string
	if b.input.TeamPattern != nil {
		for _, code := range b.input.TeamPattern.Pattern {
			if c := model.NormalizeShiftCode(code); c != "" {
				sequence = append(sequence, c)
			}
		}
	}
	for dayIndex, date := range b.cal.Dates {
		expected := ""
		if len(sequence) > 0 {
			expected = sequence[dayIndex%len(sequence)]
		}
		for _, emp := range b.input.Employees {
			prefs := map[string]float64{}
			for key, value := range emp.PreferredShiftTypes {
				prefs[model.NormalizeShiftCode(key)] = value
			}
			for _, code := range b.codes {
				penalty := 0.0
				if expected != "" && emp.Pattern() == model.PatternThreeShift && code != expected {
					penalty += penaltyTeamPattern
				}
				if weight, ok := prefs[code]; ok {
					clamped := weight
					if clamped < 0 {
						clamped = 0
					}
					if clamped > 1 {
						clamped = 1
					}
					penalty += (1 - clamped) * penaltyPreferenceBase
				}
				if penalty > 0 {
					penalties[varKey{emp.ID, date, code}] = penalty
				}
			}
		}
	}
	return penalties
}

// buildObjective 汇总全部软约束罚分为最小化目标
func (b *Build) buildObjective(weights model.ConstraintWeights) {
	for key, penalty := range b.preferencePenalties() {
		if v, ok := b.vars[key]; ok {
			b.Model.AddObjectiveTerm(v, intCoeff(penalty))
		}
	}
	staffingCoeff := intCoeff(penaltyStaffing * weights.Scalar(model.WeightStaffing))
	for _, entry := range b.staffingSlacks {
		b.Model.AddObjectiveTerm(entry.v, staffingCoeff)
	}
	teamCoeff := intCoeff(penaltyTeamCover * weights.Scalar(model.WeightTeamBalance))
	for _, entry := range b.teamSlacks {
		b.Model.AddObjectiveTerm(entry.v, teamCoeff)
	}
	specialCoeff := intCoeff(penaltySpecialRequest)
	for _, entry := range b.specialSlacks {
		b.Model.AddObjectiveTerm(entry.v, specialCoeff)
	}
	careerCoeff := intCoeff(penaltyCareerCover * weights.Scalar(model.WeightCareerBalance))
	for _, entry := range b.careerSlacks {
		b.Model.AddObjectiveTerm(entry.v, careerCoeff)
	}
	careerBalanceCoeff := intCoeff(penaltyCareerBalance * weights.Scalar(model.WeightCareerBalance))
	for _, slack := range b.careerBalanceSlacks {
		b.Model.AddObjectiveTerm(slack, careerBalanceCoeff)
	}
	for _, entry := range b.teamBalanceEntries {
		b.Model.AddObjectiveTerm(entry.v, teamCoeff)
	}
	offCoeff := intCoeff(penaltyOffBalance * weights.Scalar(model.WeightOffBalance))
	for _, slack := range b.offBalanceSlackList {
		b.Model.AddObjectiveTerm(slack, offCoeff)
	}
	repeatCoeff := intCoeff(penaltyShiftRepeat * weights.Scalar(model.WeightShiftPattern))
	for _, entry := range b.patternEntries {
		b.Model.AddObjectiveTerm(entry.v, repeatCoeff)
	}
	restCoeff := intCoeff(penaltyRestAfterNight * weights.Scalar(model.WeightShiftPattern))
	for _, entry := range b.restEntries {
		b.Model.AddObjectiveTerm(entry.v, restCoeff)
	}
	balanceCoeff := intCoeff(penaltyShiftBalance * weights.Scalar(model.WeightShiftPattern))
	for _, entry := range b.shiftBalanceEntries {
		b.Model.AddObjectiveTerm(entry.v, balanceCoeff)
	}
}

// ShiftCodes 模型使用的班次字母表
func (b *Build) ShiftCodes() []string {
	return append([]string(nil), b.codes...)
}
