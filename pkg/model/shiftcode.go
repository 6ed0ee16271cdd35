package model

import (
	"sort"
	"strings"
)

// 规范班次代码
const (
	CodeDay      = "D" // 白班
	CodeEvening  = "E" // 小夜
	CodeNight    = "N" // 大夜
	CodeOff      = "O" // 休息
	CodeAdmin    = "A" // 行政班
	CodeVacation = "V" // 休假
)

// DefaultRequiredStaff 各班次默认最低人数
var DefaultRequiredStaff = map[string]int{
	CodeDay:     5,
	CodeEvening: 4,
	CodeNight:   3,
}

// NormalizeShiftCode 规范化班次代码：去掉锁定标记^、去空白、转大写，OFF视为O
func NormalizeShiftCode(code string) string {
	c := strings.ToUpper(strings.TrimSpace(strings.ReplaceAll(code, "^", "")))
	if c == "OFF" {
		return CodeOff
	}
	return c
}

// IsLockedCode 带^前缀的代码表示锁定指派
func IsLockedCode(code string) bool {
	return strings.Contains(code, "^")
}

// IsShiftAllowed 判断某工作模式在某天能否安排该班次
func IsShiftAllowed(pattern WorkPatternType, code string, weekendOrHoliday bool) bool {
	code = NormalizeShiftCode(code)
	if code == CodeVacation {
		return true
	}
	switch pattern {
	case PatternNightIntensive:
		return code == CodeNight || code == CodeOff
	case PatternWeekdayOnly:
		if weekendOrHoliday {
			return code == CodeOff
		}
		return code == CodeAdmin
	default:
		// 三班倒不上行政班
		return code != CodeAdmin
	}
}

// NormalizedRequestCode 特殊请求的规范化班次代码
func (r SpecialRequest) NormalizedRequestCode() string {
	return NormalizeShiftCode(r.ShiftTypeCode)
}

// RequiredStaffByCode 合并各来源得到每班次最低人数（仅保留正数）
// 显式配置优先，内置默认补齐未提及的班次；显式填0可以关闭默认班次
// 未被以上覆盖的班次再看班次自身的minStaff/requiredStaff
func (s *ScheduleInput) RequiredStaffByCode() map[string]int {
	out := make(map[string]int)
	seen := make(map[string]bool)
	for code, cnt := range s.RequiredStaffPerShift {
		norm := NormalizeShiftCode(code)
		if norm == "" {
			continue
		}
		seen[norm] = true
		if cnt > 0 {
			out[norm] = cnt
		}
	}
	for code, cnt := range DefaultRequiredStaff {
		if !seen[code] {
			out[code] = cnt
			seen[code] = true
		}
	}
	for _, shift := range s.Shifts {
		code := shift.NormalizedCode()
		if code == "" || code == CodeOff || seen[code] {
			continue
		}
		switch {
		case shift.MinStaff != nil && *shift.MinStaff > 0:
			out[code] = *shift.MinStaff
		case shift.RequiredStaff > 0:
			out[code] = shift.RequiredStaff
		}
	}
	return out
}

// MaxStaffByCode 每班次人数上限（仅班次声明时存在；上限不得低于下限）
func (s *ScheduleInput) MaxStaffByCode() map[string]int {
	required := s.RequiredStaffByCode()
	out := make(map[string]int)
	for _, shift := range s.Shifts {
		if shift.MaxStaff == nil || *shift.MaxStaff <= 0 {
			continue
		}
		code := shift.NormalizedCode()
		maxStaff := *shift.MaxStaff
		if min, ok := required[code]; ok && maxStaff < min {
			maxStaff = min
		}
		out[code] = maxStaff
	}
	return out
}

// ActiveShiftCodes 推导本次求解的班次字母表：
// 有人数要求的班次 + O（总是参与）+ A（存在行政员工时）+ 特殊请求涉及的班次
func (s *ScheduleInput) ActiveShiftCodes() []string {
	set := map[string]bool{CodeOff: true}
	for code, cnt := range s.RequiredStaffByCode() {
		if cnt > 0 {
			set[code] = true
		}
	}
	for _, emp := range s.Employees {
		if emp.Pattern() == PatternWeekdayOnly {
			set[CodeAdmin] = true
			break
		}
	}
	for _, req := range s.SpecialRequests {
		if code := req.NormalizedRequestCode(); code != "" {
			set[code] = true
		}
	}
	codes := make([]string, 0, len(set))
	for code := range set {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}

// TeamCoverageCodes 参与团队覆盖约束的班次（排除休息与行政）
func TeamCoverageCodes(required map[string]int) []string {
	codes := make([]string, 0, len(required))
	for code := range required {
		if code != CodeOff && code != CodeAdmin {
			codes = append(codes, code)
		}
	}
	sort.Strings(codes)
	return codes
}

// CareerCoverageCodes 参与职级覆盖约束的班次（再排除夜班）
func CareerCoverageCodes(required map[string]int) []string {
	codes := make([]string, 0, len(required))
	for code := range required {
		if code != CodeOff && code != CodeAdmin && code != CodeNight {
			codes = append(codes, code)
		}
	}
	sort.Strings(codes)
	return codes
}

// ShiftByCode 班次代码到班次定义的索引
func (s *ScheduleInput) ShiftByCode() map[string]*Shift {
	out := make(map[string]*Shift, len(s.Shifts))
	for _, shift := range s.Shifts {
		code := shift.NormalizedCode()
		if _, ok := out[code]; !ok {
			out[code] = shift
		}
	}
	return out
}

// ShiftIDFor 查找班次ID，未定义的代码合成占位ID
func (s *ScheduleInput) ShiftIDFor(code string) string {
	code = NormalizeShiftCode(code)
	if shift, ok := s.ShiftByCode()[code]; ok {
		return shift.ID
	}
	return "shift-" + strings.ToLower(code)
}

func sortedDistinct(employees []*Employee, key func(*Employee) string) []string {
	set := map[string]bool{}
	for _, emp := range employees {
		if k := key(emp); k != "" {
			set[k] = true
		}
	}
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
