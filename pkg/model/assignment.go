package model

// Assignment 单日单人的班次指派
type Assignment struct {
	EmployeeID string `json:"employeeId"`
	Date       string `json:"date"`
	ShiftID    string `json:"shiftId"`
	ShiftType  string `json:"shiftType"`
	IsLocked   bool   `json:"isLocked"`
}

// CloneAssignments 拷贝指派列表
func CloneAssignments(in []Assignment) []Assignment {
	return append([]Assignment(nil), in...)
}

// AssignmentGrid 指派按 (员工,日期) 索引成网格，便于邻域搜索与诊断
type AssignmentGrid map[string]map[string]*Assignment

// BuildGrid 构建指派网格
func BuildGrid(assignments []Assignment) AssignmentGrid {
	grid := AssignmentGrid{}
	for i := range assignments {
		a := &assignments[i]
		byDate, ok := grid[a.EmployeeID]
		if !ok {
			byDate = map[string]*Assignment{}
			grid[a.EmployeeID] = byDate
		}
		byDate[a.Date] = a
	}
	return grid
}

// CodeAt 查询某员工某天的班次代码，无指派视为休息
func (g AssignmentGrid) CodeAt(employeeID, date string) string {
	if byDate, ok := g[employeeID]; ok {
		if a, ok := byDate[date]; ok {
			return NormalizeShiftCode(a.ShiftType)
		}
	}
	return CodeOff
}
