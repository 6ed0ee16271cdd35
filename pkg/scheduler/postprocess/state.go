// Package postprocess 用禁忌搜索加模拟退火对求解结果做局部修复
package postprocess

import (
	"github.com/lunban/lunban/pkg/model"
)

type cell struct {
	emp  string
	date string
}

// scheduleState 可变排班状态，swap自反（再执行一次即还原）
type scheduleState struct {
	input       *model.ScheduleInput
	cal         *model.Calendar
	assignments []model.Assignment
	byCell      map[cell]*model.Assignment
	byDay       map[string]map[string]*model.Assignment
	employees   map[string]*model.Employee
}

func newScheduleState(input *model.ScheduleInput, cal *model.Calendar, assignments []model.Assignment) *scheduleState {
	s := &scheduleState{
		input:       input,
		cal:         cal,
		assignments: model.CloneAssignments(assignments),
		byCell:      map[cell]*model.Assignment{},
		byDay:       map[string]map[string]*model.Assignment{},
		employees:   input.EmployeeByID(),
	}
	for i := range s.assignments {
		a := &s.assignments[i]
		s.byCell[cell{a.EmployeeID, a.Date}] = a
		byEmp, ok := s.byDay[a.Date]
		if !ok {
			byEmp = map[string]*model.Assignment{}
			s.byDay[a.Date] = byEmp
		}
		byEmp[a.EmployeeID] = a
	}
	return s
}

func (s *scheduleState) at(emp, date string) *model.Assignment {
	return s.byCell[cell{emp, date}]
}

func (s *scheduleState) dayAssignments(date string) map[string]*model.Assignment {
	return s.byDay[date]
}

// codeAt 规范化后的班次代码，缺少指派返回空串
func (s *scheduleState) codeAt(emp, date string) string {
	a := s.at(emp, date)
	if a == nil {
		return ""
	}
	return model.NormalizeShiftCode(a.ShiftType)
}

// isShiftAllowed 交换目标班次是否符合员工工作模式
func (s *scheduleState) isShiftAllowed(emp, date, code string) bool {
	employee, ok := s.employees[emp]
	if !ok || code == "" {
		return false
	}
	return model.IsShiftAllowed(employee.Pattern(), code, s.cal.IsWeekendOrHoliday(date))
}

// swapPair 交换两个格子的班次；锁定格子或模式不允许时拒绝
// 同一格子再交换一次即还原，评估流程依赖该性质
func (s *scheduleState) swapPair(dayA, empA, dayB, empB string) bool {
	a := s.at(empA, dayA)
	b := s.at(empB, dayB)
	if a == nil || b == nil {
		return false
	}
	if a.IsLocked || b.IsLocked {
		return false
	}
	if !s.isShiftAllowed(empA, dayA, model.NormalizeShiftCode(b.ShiftType)) {
		return false
	}
	if !s.isShiftAllowed(empB, dayB, model.NormalizeShiftCode(a.ShiftType)) {
		return false
	}
	a.ShiftID, b.ShiftID = b.ShiftID, a.ShiftID
	a.ShiftType, b.ShiftType = b.ShiftType, a.ShiftType
	return true
}

// snapshot 当前指派的副本
func (s *scheduleState) snapshot() []model.Assignment {
	return model.CloneAssignments(s.assignments)
}

// restore 回写一份指派快照
func (s *scheduleState) restore(assignments []model.Assignment) {
	for _, src := range assignments {
		if a := s.at(src.EmployeeID, src.Date); a != nil {
			a.ShiftID = src.ShiftID
			a.ShiftType = src.ShiftType
		}
	}
}
