package model

import (
	"time"

	apperrors "github.com/lunban/lunban/pkg/errors"
)

// DateLayout 排班期内统一使用的日期格式
const DateLayout = "2006-01-02"

// ParseDate 解析 YYYY-MM-DD
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, apperrors.Wrap(err, apperrors.CodeInvalidTimeRange, "日期格式无效: "+s)
	}
	return t, nil
}

// Calendar 排班期日历：日期序列与周末/节假日标记
type Calendar struct {
	Dates            []string
	weekendOrHoliday map[string]bool
}

// BuildCalendar 按输入的起止日期与节假日构建日历（首尾均含）
func (s *ScheduleInput) BuildCalendar() (*Calendar, error) {
	start, err := ParseDate(s.StartDate)
	if err != nil {
		return nil, err
	}
	end, err := ParseDate(s.EndDate)
	if err != nil {
		return nil, err
	}
	if end.Before(start) {
		return nil, apperrors.New(apperrors.CodeInvalidTimeRange, "结束日期早于开始日期")
	}

	holidays := make(map[string]bool, len(s.Holidays))
	for _, h := range s.Holidays {
		holidays[h.Date] = true
	}

	cal := &Calendar{weekendOrHoliday: map[string]bool{}}
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		key := d.Format(DateLayout)
		cal.Dates = append(cal.Dates, key)
		wd := d.Weekday()
		cal.weekendOrHoliday[key] = wd == time.Saturday || wd == time.Sunday || holidays[key]
	}
	return cal, nil
}

// Days 排班期天数
func (c *Calendar) Days() int {
	return len(c.Dates)
}

// IsWeekendOrHoliday 当天是否周末或节假日
func (c *Calendar) IsWeekendOrHoliday(date string) bool {
	return c.weekendOrHoliday[date]
}

// WeekendOrHolidayCount 排班期内周末与节假日总天数
func (c *Calendar) WeekendOrHolidayCount() int {
	n := 0
	for _, date := range c.Dates {
		if c.weekendOrHoliday[date] {
			n++
		}
	}
	return n
}

// DayIndex 日期在排班期内的下标，不在期内返回-1
func (c *Calendar) DayIndex(date string) int {
	for i, d := range c.Dates {
		if d == date {
			return i
		}
	}
	return -1
}

// OffDayTargets 每名员工的保障休息日目标：
// 周末节假日天数 + 上期结转，夜班专职再加带薪休假天数
// 行政员工不设目标；目标可能超过排班期天数，由预检提示、引擎在变量上界处收敛
func (s *ScheduleInput) OffDayTargets(cal *Calendar) map[string]int {
	base := cal.WeekendOrHolidayCount()
	nightBonus := s.NightIntensivePaidLeaveDays
	if nightBonus < 0 {
		nightBonus = 0
	}
	out := make(map[string]int, len(s.Employees))
	for _, emp := range s.Employees {
		carry := s.PreviousOffAccruals[emp.ID]
		if carry == 0 && emp.PreviousOffCarry != nil {
			carry = *emp.PreviousOffCarry
		}
		if carry < 0 {
			carry = 0
		}
		var target int
		switch emp.Pattern() {
		case PatternThreeShift:
			target = base + carry
		case PatternNightIntensive:
			target = base + carry + nightBonus
		default:
			continue
		}
		if target > 0 {
			out[emp.ID] = target
		}
	}
	return out
}
