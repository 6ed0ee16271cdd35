// Package model 定义排班引擎的核心数据模型
package model

// WorkPatternType 工作模式类型
type WorkPatternType string

const (
	PatternThreeShift     WorkPatternType = "three-shift"     // 三班倒
	PatternNightIntensive WorkPatternType = "night-intensive" // 夜班专职
	PatternWeekdayOnly    WorkPatternType = "weekday-only"    // 仅工作日（行政）
)

// ShiftTime 班次时间
type ShiftTime struct {
	Start string  `json:"start"`
	End   string  `json:"end"`
	Hours float64 `json:"hours"`
}

// Shift 班次描述
type Shift struct {
	ID            string    `json:"id"`
	Code          string    `json:"code,omitempty"`
	Name          string    `json:"name"`
	Type          string    `json:"type"`
	Color         string    `json:"color,omitempty"`
	Time          ShiftTime `json:"time"`
	RequiredStaff int       `json:"requiredStaff,omitempty"`
	MinStaff      *int      `json:"minStaff,omitempty"`
	MaxStaff      *int      `json:"maxStaff,omitempty"`
}

// NormalizedCode 返回班次的规范化代码（优先code，其次name、id）
func (s *Shift) NormalizedCode() string {
	if s.Code != "" {
		return NormalizeShiftCode(s.Code)
	}
	if s.Name != "" {
		return NormalizeShiftCode(s.Name)
	}
	return NormalizeShiftCode(s.ID)
}

// Employee 员工
type Employee struct {
	ID                            string             `json:"id"`
	Name                          string             `json:"name"`
	Role                          string             `json:"role,omitempty"`
	DepartmentID                  string             `json:"departmentId,omitempty"`
	TeamID                        string             `json:"teamId,omitempty"`
	WorkPatternType               WorkPatternType    `json:"workPatternType,omitempty"`
	PreferredShiftTypes           map[string]float64 `json:"preferredShiftTypes,omitempty"`
	MaxConsecutiveDaysPreferred   *int               `json:"maxConsecutiveDaysPreferred,omitempty"`
	MaxConsecutiveNightsPreferred *int               `json:"maxConsecutiveNightsPreferred,omitempty"`
	GuaranteedOffDays             *int               `json:"guaranteedOffDays,omitempty"`
	Alias                         string             `json:"alias,omitempty"`
	TeamAlias                     string             `json:"teamAlias,omitempty"`
	YearsOfService                *int               `json:"yearsOfService,omitempty"`
	CareerGroupCode               string             `json:"careerGroupCode,omitempty"`
	CareerGroupAlias              string             `json:"careerGroupAlias,omitempty"`
	CareerGroupName               string             `json:"careerGroupName,omitempty"`
	PreviousOffCarry              *int               `json:"previousOffCarry,omitempty"`
}

// Pattern 返回员工工作模式，缺省为三班倒
func (e *Employee) Pattern() WorkPatternType {
	if e.WorkPatternType == "" {
		return PatternThreeShift
	}
	return e.WorkPatternType
}

// SpecialRequest 特殊排班请求
type SpecialRequest struct {
	EmployeeID    string `json:"employeeId"`
	Date          string `json:"date"`
	RequestType   string `json:"requestType,omitempty"`
	ShiftTypeCode string `json:"shiftTypeCode,omitempty"`
}

// Holiday 节假日（按周末处理）
type Holiday struct {
	Date string `json:"date"`
	Name string `json:"name,omitempty"`
}

// TeamPattern 团队轮班模式
type TeamPattern struct {
	Pattern       []string   `json:"pattern,omitempty"`
	AvoidPatterns [][]string `json:"avoidPatterns,omitempty"`
}

// CareerGroup 职级组
type CareerGroup struct {
	Code        string `json:"code"`
	Name        string `json:"name"`
	Alias       string `json:"alias"`
	MinYears    *int   `json:"minYears,omitempty"`
	MaxYears    *int   `json:"maxYears,omitempty"`
	Description string `json:"description,omitempty"`
}

// AliasMaps 别名映射（用于报表展示）
type AliasMaps struct {
	EmployeeAliasMap    map[string]string `json:"employeeAliasMap,omitempty"`
	TeamAliasMap        map[string]string `json:"teamAliasMap,omitempty"`
	CareerGroupAliasMap map[string]string `json:"careerGroupAliasMap,omitempty"`
}

// ScheduleInput 排班问题输入（求解期间不可变）
type ScheduleInput struct {
	DepartmentID                string           `json:"departmentId"`
	StartDate                   string           `json:"startDate"` // YYYY-MM-DD（含）
	EndDate                     string           `json:"endDate"`   // YYYY-MM-DD（含）
	Employees                   []*Employee      `json:"employees"`
	Shifts                      []*Shift         `json:"shifts"`
	SpecialRequests             []SpecialRequest `json:"specialRequests,omitempty"`
	Holidays                    []Holiday        `json:"holidays,omitempty"`
	TeamPattern                 *TeamPattern     `json:"teamPattern,omitempty"`
	RequiredStaffPerShift       map[string]int   `json:"requiredStaffPerShift,omitempty"`
	NightIntensivePaidLeaveDays int              `json:"nightIntensivePaidLeaveDays,omitempty"`
	PreviousOffAccruals         map[string]int   `json:"previousOffAccruals,omitempty"`
	CareerGroups                []CareerGroup    `json:"careerGroups,omitempty"`
	AliasMaps                   *AliasMaps       `json:"aliasMaps,omitempty"`
	Options                     *Options         `json:"options,omitempty"`
}

// Clone 深拷贝输入（多次尝试之间不共享options等可变结构）
func (s *ScheduleInput) Clone() *ScheduleInput {
	clone := &ScheduleInput{
		DepartmentID:                s.DepartmentID,
		StartDate:                   s.StartDate,
		EndDate:                     s.EndDate,
		NightIntensivePaidLeaveDays: s.NightIntensivePaidLeaveDays,
	}
	clone.Employees = make([]*Employee, len(s.Employees))
	for i, emp := range s.Employees {
		e := *emp
		if emp.PreferredShiftTypes != nil {
			e.PreferredShiftTypes = make(map[string]float64, len(emp.PreferredShiftTypes))
			for k, v := range emp.PreferredShiftTypes {
				e.PreferredShiftTypes[k] = v
			}
		}
		e.MaxConsecutiveDaysPreferred = cloneIntPtr(emp.MaxConsecutiveDaysPreferred)
		e.MaxConsecutiveNightsPreferred = cloneIntPtr(emp.MaxConsecutiveNightsPreferred)
		e.GuaranteedOffDays = cloneIntPtr(emp.GuaranteedOffDays)
		e.YearsOfService = cloneIntPtr(emp.YearsOfService)
		e.PreviousOffCarry = cloneIntPtr(emp.PreviousOffCarry)
		clone.Employees[i] = &e
	}
	clone.Shifts = make([]*Shift, len(s.Shifts))
	for i, shift := range s.Shifts {
		sh := *shift
		sh.MinStaff = cloneIntPtr(shift.MinStaff)
		sh.MaxStaff = cloneIntPtr(shift.MaxStaff)
		clone.Shifts[i] = &sh
	}
	clone.SpecialRequests = append([]SpecialRequest(nil), s.SpecialRequests...)
	clone.Holidays = append([]Holiday(nil), s.Holidays...)
	if s.TeamPattern != nil {
		tp := &TeamPattern{Pattern: append([]string(nil), s.TeamPattern.Pattern...)}
		for _, p := range s.TeamPattern.AvoidPatterns {
			tp.AvoidPatterns = append(tp.AvoidPatterns, append([]string(nil), p...))
		}
		clone.TeamPattern = tp
	}
	if s.RequiredStaffPerShift != nil {
		clone.RequiredStaffPerShift = make(map[string]int, len(s.RequiredStaffPerShift))
		for k, v := range s.RequiredStaffPerShift {
			clone.RequiredStaffPerShift[k] = v
		}
	}
	if s.PreviousOffAccruals != nil {
		clone.PreviousOffAccruals = make(map[string]int, len(s.PreviousOffAccruals))
		for k, v := range s.PreviousOffAccruals {
			clone.PreviousOffAccruals[k] = v
		}
	}
	clone.CareerGroups = append([]CareerGroup(nil), s.CareerGroups...)
	if s.AliasMaps != nil {
		am := &AliasMaps{
			EmployeeAliasMap:    cloneStringMap(s.AliasMaps.EmployeeAliasMap),
			TeamAliasMap:        cloneStringMap(s.AliasMaps.TeamAliasMap),
			CareerGroupAliasMap: cloneStringMap(s.AliasMaps.CareerGroupAliasMap),
		}
		clone.AliasMaps = am
	}
	if s.Options != nil {
		clone.Options = s.Options.Clone()
	}
	return clone
}

func cloneIntPtr(p *int) *int {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func cloneFloatPtr(p *float64) *float64 {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func cloneStringMap(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// EmployeeByID 构建员工索引
func (s *ScheduleInput) EmployeeByID() map[string]*Employee {
	out := make(map[string]*Employee, len(s.Employees))
	for _, emp := range s.Employees {
		out[emp.ID] = emp
	}
	return out
}

// TeamIDs 返回去重排序后的团队ID列表
func (s *ScheduleInput) TeamIDs() []string {
	return sortedDistinct(s.Employees, func(e *Employee) string { return e.TeamID })
}

// CareerGroupAliases 返回去重排序后的职级组别名列表
func (s *ScheduleInput) CareerGroupAliases() []string {
	return sortedDistinct(s.Employees, func(e *Employee) string { return e.CareerGroupAlias })
}

// TeamMembers 按团队聚合成员
func (s *ScheduleInput) TeamMembers() map[string][]*Employee {
	out := make(map[string][]*Employee)
	for _, emp := range s.Employees {
		if emp.TeamID != "" {
			out[emp.TeamID] = append(out[emp.TeamID], emp)
		}
	}
	return out
}
