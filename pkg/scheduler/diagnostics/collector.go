package diagnostics

import (
	"sort"

	"github.com/lunban/lunban/pkg/model"
)

// Collector 按当前指派重推导诊断
// 同一份指派多次收集结果一致，修复器每步 swap 后全量重算
type Collector struct {
	input    *model.ScheduleInput
	cal      *model.Calendar
	required map[string]int
	teamIDs  []string
	members  map[string][]*model.Employee
	aliases  []string

	teamCodes     map[string]bool
	avoidPatterns [][]string

	maxSameShift          int
	offTolerance          int
	teamWorkloadTolerance int
}

// NewCollector 创建诊断收集器
func NewCollector(input *model.ScheduleInput, cal *model.Calendar, maxSameShift, offTolerance int) *Collector {
	required := input.RequiredStaffByCode()
	teamCodes := map[string]bool{}
	for _, code := range model.TeamCoverageCodes(required) {
		teamCodes[code] = true
	}
	var avoid [][]string
	if input.TeamPattern != nil {
		for _, pattern := range input.TeamPattern.AvoidPatterns {
			normalized := make([]string, 0, len(pattern))
			for _, code := range pattern {
				if c := model.NormalizeShiftCode(code); c != "" {
					normalized = append(normalized, c)
				}
			}
			if len(normalized) > 0 {
				avoid = append(avoid, normalized)
			}
		}
	}
	workloadTolerance := offTolerance
	if workloadTolerance < 1 {
		workloadTolerance = 1
	}
	return &Collector{
		input:                 input,
		cal:                   cal,
		required:              required,
		teamIDs:               input.TeamIDs(),
		members:               input.TeamMembers(),
		aliases:               input.CareerGroupAliases(),
		teamCodes:             teamCodes,
		avoidPatterns:         avoid,
		maxSameShift:          model.ClampMaxSameShift(maxSameShift),
		offTolerance:          offTolerance,
		teamWorkloadTolerance: workloadTolerance,
	}
}

// Collect 全量重推导诊断报告
func (c *Collector) Collect(assignments []model.Assignment) *Report {
	report := &Report{
		StaffingShortages:       []StaffingShortage{},
		TeamCoverageGaps:        []TeamCoverageGap{},
		CareerGroupCoverageGaps: []CareerGroupCoverageGap{},
		TeamWorkloadGaps:        []TeamWorkloadGap{},
		OffBalanceGaps:          []OffBalanceGap{},
		ShiftPatternBreaks:      []ShiftPatternBreak{},
		SpecialRequestMisses:    []SpecialRequestMiss{},
		AvoidPatternViolations:  []AvoidPatternViolation{},
	}

	grid := model.BuildGrid(assignments)
	byDayCode := map[string][]model.Assignment{}
	for _, a := range assignments {
		key := a.Date + "|" + model.NormalizeShiftCode(a.ShiftType)
		byDayCode[key] = append(byDayCode[key], a)
	}

	employees := c.input.EmployeeByID()

	for _, date := range c.cal.Dates {
		weekend := c.cal.IsWeekendOrHoliday(date)
		for _, code := range model.TeamCoverageCodes(c.required) {
			assigned := byDayCode[date+"|"+code]
			c.collectCoverageGaps(report, date, code, weekend, assigned, employees)
		}
		for code, minRequired := range c.required {
			covered := len(byDayCode[date+"|"+code])
			if covered < minRequired {
				report.StaffingShortages = append(report.StaffingShortages, StaffingShortage{
					Date:      date,
					ShiftType: code,
					Required:  minRequired,
					Covered:   covered,
					Shortage:  minRequired - covered,
				})
			}
		}
	}
	sortStaffingShortages(report.StaffingShortages)

	report.ShiftPatternBreaks = c.detectShiftPatternBreaks(grid)
	report.SpecialRequestMisses = c.detectSpecialRequestMisses(grid)
	report.OffBalanceGaps = c.detectOffBalanceGaps(grid)
	report.TeamWorkloadGaps = c.detectTeamWorkloadGaps(assignments, employees)
	report.AvoidPatternViolations = c.detectAvoidPatternViolations(grid)
	return report
}

func (c *Collector) collectCoverageGaps(report *Report, date, code string, weekend bool,
	assigned []model.Assignment, employees map[string]*model.Employee) {
	for _, teamID := range c.teamIDs {
		if !c.teamHasEligible(teamID, code, weekend) {
			continue
		}
		covered := false
		for _, a := range assigned {
			if emp, ok := employees[a.EmployeeID]; ok && emp.TeamID == teamID {
				covered = true
				break
			}
		}
		if !covered {
			report.TeamCoverageGaps = append(report.TeamCoverageGaps, TeamCoverageGap{
				Date: date, ShiftType: code, TeamID: teamID, Shortage: 1,
			})
		}
	}
	for _, alias := range c.aliases {
		if !c.careerGroupHasEligible(alias, code, weekend) {
			continue
		}
		covered := false
		for _, a := range assigned {
			if emp, ok := employees[a.EmployeeID]; ok && emp.CareerGroupAlias == alias {
				covered = true
				break
			}
		}
		if !covered {
			report.CareerGroupCoverageGaps = append(report.CareerGroupCoverageGaps, CareerGroupCoverageGap{
				Date: date, ShiftType: code, CareerGroupAlias: alias, Shortage: 1,
			})
		}
	}
}

func (c *Collector) teamHasEligible(teamID, code string, weekend bool) bool {
	for _, emp := range c.members[teamID] {
		if model.IsShiftAllowed(emp.Pattern(), code, weekend) {
			return true
		}
	}
	return false
}

func (c *Collector) careerGroupHasEligible(alias, code string, weekend bool) bool {
	for _, emp := range c.input.Employees {
		if emp.CareerGroupAlias == alias && model.IsShiftAllowed(emp.Pattern(), code, weekend) {
			return true
		}
	}
	return false
}

// detectShiftPatternBreaks 连班超限检测：休息与休假重置连班计数
func (c *Collector) detectShiftPatternBreaks(grid model.AssignmentGrid) []ShiftPatternBreak {
	breaks := []ShiftPatternBreak{}
	for _, emp := range c.input.Employees {
		lastCode := ""
		streak := 0
		for idx, date := range c.cal.Dates {
			byDate, ok := grid[emp.ID]
			if !ok {
				continue
			}
			a, ok := byDate[date]
			if !ok {
				continue
			}
			code := model.NormalizeShiftCode(a.ShiftType)
			if code == model.CodeOff || code == model.CodeVacation {
				lastCode = code
				streak = 1
				continue
			}
			if code == lastCode {
				streak++
			} else {
				streak = 1
				lastCode = code
			}
			if streak > c.maxSameShift {
				startIndex := idx - c.maxSameShift
				if startIndex < 0 {
					startIndex = 0
				}
				breaks = append(breaks, ShiftPatternBreak{
					EmployeeID: emp.ID,
					ShiftType:  code,
					StartDate:  c.cal.Dates[startIndex],
					Window:     c.maxSameShift + 1,
					Excess:     streak - c.maxSameShift,
				})
			}
		}
	}
	return breaks
}

func (c *Collector) detectSpecialRequestMisses(grid model.AssignmentGrid) []SpecialRequestMiss {
	misses := []SpecialRequestMiss{}
	for _, req := range c.input.SpecialRequests {
		code := req.NormalizedRequestCode()
		if code == "" {
			continue
		}
		byDate, ok := grid[req.EmployeeID]
		if !ok {
			misses = append(misses, SpecialRequestMiss{EmployeeID: req.EmployeeID, Date: req.Date, ShiftType: code})
			continue
		}
		a, ok := byDate[req.Date]
		if !ok || model.NormalizeShiftCode(a.ShiftType) != code {
			misses = append(misses, SpecialRequestMiss{EmployeeID: req.EmployeeID, Date: req.Date, ShiftType: code})
		}
	}
	return misses
}

// OffDayCounts 每名员工的休息日数量（O与V都算）
func (c *Collector) OffDayCounts(grid model.AssignmentGrid) map[string]int {
	counts := map[string]int{}
	for empID, byDate := range grid {
		for _, a := range byDate {
			code := model.NormalizeShiftCode(a.ShiftType)
			if code == model.CodeOff || code == model.CodeVacation {
				counts[empID]++
			}
		}
	}
	return counts
}

func (c *Collector) detectOffBalanceGaps(grid model.AssignmentGrid) []OffBalanceGap {
	counts := c.OffDayCounts(grid)
	gaps := []OffBalanceGap{}
	for _, teamID := range c.teamIDs {
		members := c.members[teamID]
		if len(members) < 2 {
			continue
		}
		for i := 0; i < len(members); i++ {
			for j := i + 1; j < len(members); j++ {
				diff := counts[members[i].ID] - counts[members[j].ID]
				if diff < 0 {
					diff = -diff
				}
				if diff > c.offTolerance {
					gaps = append(gaps, OffBalanceGap{
						TeamID:     teamID,
						EmployeeA:  members[i].ID,
						EmployeeB:  members[j].ID,
						Difference: diff,
						Tolerance:  c.offTolerance,
					})
				}
			}
		}
	}
	return gaps
}

func (c *Collector) detectTeamWorkloadGaps(assignments []model.Assignment, employees map[string]*model.Employee) []TeamWorkloadGap {
	workloads := map[string]int{}
	for _, a := range assignments {
		emp, ok := employees[a.EmployeeID]
		if !ok || emp.TeamID == "" {
			continue
		}
		code := model.NormalizeShiftCode(a.ShiftType)
		if code == model.CodeOff || code == model.CodeAdmin || code == model.CodeVacation {
			continue
		}
		workloads[emp.TeamID]++
	}
	gaps := []TeamWorkloadGap{}
	for i := 0; i < len(c.teamIDs); i++ {
		for j := i + 1; j < len(c.teamIDs); j++ {
			teamA, teamB := c.teamIDs[i], c.teamIDs[j]
			diff := workloads[teamA] - workloads[teamB]
			donor, receiver := teamA, teamB
			if diff < 0 {
				diff = -diff
				donor, receiver = teamB, teamA
			}
			if diff > c.teamWorkloadTolerance {
				gaps = append(gaps, TeamWorkloadGap{
					TeamA:      donor,
					TeamB:      receiver,
					Difference: diff,
					Tolerance:  c.teamWorkloadTolerance,
				})
			}
		}
	}
	return gaps
}

func (c *Collector) detectAvoidPatternViolations(grid model.AssignmentGrid) []AvoidPatternViolation {
	if len(c.avoidPatterns) == 0 {
		return []AvoidPatternViolation{}
	}
	violations := []AvoidPatternViolation{}
	totalDays := c.cal.Days()
	for _, emp := range c.input.Employees {
		for _, pattern := range c.avoidPatterns {
			if len(pattern) == 0 || len(pattern) > totalDays {
				continue
			}
			byDate := grid[emp.ID]
			for start := 0; start <= totalDays-len(pattern); start++ {
				matched := true
				for offset, code := range pattern {
					date := c.cal.Dates[start+offset]
					a, ok := byDate[date]
					// 缺少指派不算命中
					if !ok || model.NormalizeShiftCode(a.ShiftType) != code {
						matched = false
						break
					}
				}
				if matched {
					violations = append(violations, AvoidPatternViolation{
						EmployeeID: emp.ID,
						StartDate:  c.cal.Dates[start],
						Pattern:    append([]string(nil), pattern...),
						StartIndex: start,
					})
					// 同一员工同一模式只报首次出现
					break
				}
			}
		}
	}
	return violations
}

// MaxSameShift 收集器使用的同班次重复上限
func (c *Collector) MaxSameShift() int { return c.maxSameShift }

// Calendar 收集器绑定的日历
func (c *Collector) Calendar() *model.Calendar { return c.cal }

// sortStaffingShortages 按日期再按班次排序，保证修复器每次取到同一条
func sortStaffingShortages(shortages []StaffingShortage) {
	sort.Slice(shortages, func(i, j int) bool {
		if shortages[i].Date != shortages[j].Date {
			return shortages[i].Date < shortages[j].Date
		}
		return shortages[i].ShiftType < shortages[j].ShiftType
	})
}
