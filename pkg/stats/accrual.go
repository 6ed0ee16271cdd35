package stats

import (
	"github.com/lunban/lunban/pkg/model"
)

// OffAccrual 员工休息日结转情况
type OffAccrual struct {
	EmployeeID        string `json:"employeeId"`
	GuaranteedOffDays int    `json:"guaranteedOffDays"`
	ActualOffDays     int    `json:"actualOffDays"`
	ExtraOffDays      int    `json:"extraOffDays"`
}

// OffAccruals 统计各员工的保障休息日与实际休息日差额
// 行政员工不设目标，不进入结转报表
func OffAccruals(input *model.ScheduleInput, cal *model.Calendar, assignments []model.Assignment) []OffAccrual {
	targets := input.OffDayTargets(cal)
	actual := map[string]int{}
	for _, a := range assignments {
		code := model.NormalizeShiftCode(a.ShiftType)
		if code == model.CodeOff || code == model.CodeVacation {
			actual[a.EmployeeID]++
		}
	}
	out := make([]OffAccrual, 0, len(targets))
	for _, emp := range input.Employees {
		target, ok := targets[emp.ID]
		if !ok {
			continue
		}
		out = append(out, OffAccrual{
			EmployeeID:        emp.ID,
			GuaranteedOffDays: target,
			ActualOffDays:     actual[emp.ID],
			ExtraOffDays:      actual[emp.ID] - target,
		})
	}
	return out
}
