package postprocess

import (
	"time"

	"github.com/lunban/lunban/internal/config"
	"github.com/lunban/lunban/pkg/model"
)

// defaultCoolingRate 冷却率越界时的兜底值，与环境配置默认一致
const defaultCoolingRate = 0.92

// Settings 局部搜索参数，环境配置给默认值，请求内cspSettings逐项覆盖
type Settings struct {
	MaxIterations         int
	TimeLimit             time.Duration
	TabuSize              int
	MaxSameShift          int
	OffTolerance          int
	TeamWorkloadTolerance int
	InitialTemperature    float64
	CoolingRate           float64
}

// ResolveSettings 合并默认配置与求解选项
func ResolveSettings(defaults config.PostprocessConfig, opts *model.Options) Settings {
	var csp *model.CspSettings
	if opts != nil {
		csp = opts.CspSettings
	}
	maxIterations := defaults.MaxIterations
	timeLimitMs := defaults.TimeLimitMs
	tabuSize := defaults.TabuSize
	maxSameShift := defaults.MaxSameShift
	offTolerance := defaults.OffTolerance
	temperature := defaults.AnnealTemp
	coolRate := defaults.AnnealCool
	if csp != nil {
		maxIterations = model.IntOr(csp.MaxIterations, maxIterations)
		timeLimitMs = model.IntOr(csp.TimeLimitMs, timeLimitMs)
		tabuSize = model.IntOr(csp.TabuSize, tabuSize)
		maxSameShift = model.IntOr(csp.MaxSameShift, maxSameShift)
		offTolerance = model.IntOr(csp.OffTolerance, offTolerance)
		if csp.Annealing != nil {
			temperature = model.FloatOr(csp.Annealing.Temperature, temperature)
			coolRate = model.FloatOr(csp.Annealing.CoolingRate, coolRate)
		}
	}
	// 禁忌表长度0表示关闭；冷却率必须落在(0,1)
	if tabuSize < 0 {
		tabuSize = 0
	}
	if coolRate <= 0 || coolRate >= 1 {
		coolRate = defaultCoolingRate
	}
	workloadTolerance := offTolerance
	if workloadTolerance < 1 {
		workloadTolerance = 1
	}
	return Settings{
		MaxIterations:         maxIterations,
		TimeLimit:             time.Duration(timeLimitMs) * time.Millisecond,
		TabuSize:              tabuSize,
		MaxSameShift:          maxSameShift,
		OffTolerance:          offTolerance,
		TeamWorkloadTolerance: workloadTolerance,
		InitialTemperature:    temperature,
		CoolingRate:           coolRate,
	}
}

// tabuKey 无序的格子对（先按日期后按员工排序）
type tabuKey struct {
	a cell
	b cell
}

func newTabuKey(dayA, empA, dayB, empB string) tabuKey {
	x := cell{emp: empA, date: dayA}
	y := cell{emp: empB, date: dayB}
	if y.date < x.date || (y.date == x.date && y.emp < x.emp) {
		x, y = y, x
	}
	return tabuKey{a: x, b: y}
}

// tabuList 定长FIFO禁忌表
type tabuList struct {
	capacity int
	queue    []tabuKey
	set      map[tabuKey]bool
}

func newTabuList(capacity int) *tabuList {
	return &tabuList{capacity: capacity, set: map[tabuKey]bool{}}
}

func (t *tabuList) contains(key tabuKey) bool {
	if t.capacity <= 0 {
		return false
	}
	return t.set[key]
}

func (t *tabuList) add(key tabuKey) {
	if t.capacity <= 0 || t.set[key] {
		return
	}
	if len(t.queue) >= t.capacity {
		expired := t.queue[0]
		t.queue = t.queue[1:]
		delete(t.set, expired)
	}
	t.queue = append(t.queue, key)
	t.set[key] = true
}
