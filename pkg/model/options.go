package model

// 约束权重键
const (
	WeightStaffing      = "staffing"
	WeightTeamBalance   = "teamBalance"
	WeightCareerBalance = "careerBalance"
	WeightOffBalance    = "offBalance"
	WeightShiftPattern  = "shiftPattern"
)

// ConstraintWeights 约束权重表，缺省权重为1.0
type ConstraintWeights map[string]float64

// Scalar 读取权重，缺省1.0，下限0.1（权重过小会使软约束失去意义）
func (w ConstraintWeights) Scalar(name string) float64 {
	v, ok := w[name]
	if !ok {
		return 1.0
	}
	if v < 0.1 {
		return 0.1
	}
	return v
}

// Clone 拷贝权重表
func (w ConstraintWeights) Clone() ConstraintWeights {
	if w == nil {
		return nil
	}
	out := make(ConstraintWeights, len(w))
	for k, v := range w {
		out[k] = v
	}
	return out
}

// Annealing 模拟退火参数
type Annealing struct {
	Temperature *float64 `json:"temperature,omitempty"`
	CoolingRate *float64 `json:"coolingRate,omitempty"`
}

// CspSettings 求解与后处理可调参数，未设置的字段使用环境配置的默认值
type CspSettings struct {
	OffTolerance          *int       `json:"offTolerance,omitempty"`
	MaxSameShift          *int       `json:"maxSameShift,omitempty"`
	TabuSize              *int       `json:"tabuSize,omitempty"`
	TimeLimitMs           *int       `json:"timeLimitMs,omitempty"`
	MaxIterations         *int       `json:"maxIterations,omitempty"`
	ShiftBalanceTolerance *int       `json:"shiftBalanceTolerance,omitempty"`
	Annealing             *Annealing `json:"annealing,omitempty"`
}

// Clone 拷贝参数
func (c *CspSettings) Clone() *CspSettings {
	if c == nil {
		return nil
	}
	out := &CspSettings{
		OffTolerance:          cloneIntPtr(c.OffTolerance),
		MaxSameShift:          cloneIntPtr(c.MaxSameShift),
		TabuSize:              cloneIntPtr(c.TabuSize),
		TimeLimitMs:           cloneIntPtr(c.TimeLimitMs),
		MaxIterations:         cloneIntPtr(c.MaxIterations),
		ShiftBalanceTolerance: cloneIntPtr(c.ShiftBalanceTolerance),
	}
	if c.Annealing != nil {
		out.Annealing = &Annealing{
			Temperature: cloneFloatPtr(c.Annealing.Temperature),
			CoolingRate: cloneFloatPtr(c.Annealing.CoolingRate),
		}
	}
	return out
}

// PatternConstraints 模式类约束覆盖
type PatternConstraints struct {
	MaxConsecutiveDaysThreeShift *int `json:"maxConsecutiveDaysThreeShift,omitempty"`
}

// MultiRun 多次求解集成参数
type MultiRun struct {
	Attempts        int      `json:"attempts,omitempty"`
	WeightJitterPct *float64 `json:"weightJitterPct,omitempty"`
	Seed            *int64   `json:"seed,omitempty"`
}

// Options 求解选项
type Options struct {
	ConstraintWeights  ConstraintWeights   `json:"constraintWeights,omitempty"`
	CspSettings        *CspSettings        `json:"cspSettings,omitempty"`
	PatternConstraints *PatternConstraints `json:"patternConstraints,omitempty"`
	MultiRun           *MultiRun           `json:"multiRun,omitempty"`
	MaxSolveTimeMs     int                 `json:"maxSolveTimeMs,omitempty"`
}

// Clone 深拷贝选项
func (o *Options) Clone() *Options {
	if o == nil {
		return nil
	}
	out := &Options{
		ConstraintWeights: o.ConstraintWeights.Clone(),
		CspSettings:       o.CspSettings.Clone(),
		MaxSolveTimeMs:    o.MaxSolveTimeMs,
	}
	if o.PatternConstraints != nil {
		out.PatternConstraints = &PatternConstraints{
			MaxConsecutiveDaysThreeShift: cloneIntPtr(o.PatternConstraints.MaxConsecutiveDaysThreeShift),
		}
	}
	if o.MultiRun != nil {
		out.MultiRun = &MultiRun{
			Attempts:        o.MultiRun.Attempts,
			WeightJitterPct: cloneFloatPtr(o.MultiRun.WeightJitterPct),
			Seed:            o.MultiRun.Seed, // 种子只读，无需深拷贝
		}
	}
	return out
}

// Weights 返回权重表（options为nil时返回空表，Scalar仍给出默认值）
func (o *Options) Weights() ConstraintWeights {
	if o == nil || o.ConstraintWeights == nil {
		return ConstraintWeights{}
	}
	return o.ConstraintWeights
}

// EnsureWeights 确保权重表可写（松弛/抖动需要原地修改）
func (o *Options) EnsureWeights() ConstraintWeights {
	if o.ConstraintWeights == nil {
		o.ConstraintWeights = ConstraintWeights{}
	}
	return o.ConstraintWeights
}

// EnsureCspSettings 确保参数结构可写
func (o *Options) EnsureCspSettings() *CspSettings {
	if o.CspSettings == nil {
		o.CspSettings = &CspSettings{}
	}
	return o.CspSettings
}

// OptionsOf 取输入的选项，必要时就地创建
func (s *ScheduleInput) OptionsOf() *Options {
	if s.Options == nil {
		s.Options = &Options{}
	}
	return s.Options
}

// ClampMaxSameShift 把同班次重复上限收敛到合法范围 [1,10]
func ClampMaxSameShift(v int) int {
	if v < 1 {
		return 1
	}
	if v > 10 {
		return 10
	}
	return v
}

// ClampShiftBalanceTolerance 班次均衡容差范围 [1,20]
func ClampShiftBalanceTolerance(v int) int {
	if v < 1 {
		return 1
	}
	if v > 20 {
		return 20
	}
	return v
}

// ClampAttempts 多次求解次数范围 [1,10]
func ClampAttempts(v int) int {
	if v < 1 {
		return 1
	}
	if v > 10 {
		return 10
	}
	return v
}

// IntOr 指针整型取值，nil时返回默认值
func IntOr(p *int, def int) int {
	if p == nil {
		return def
	}
	return *p
}

// FloatOr 指针浮点取值，nil时返回默认值
func FloatOr(p *float64, def float64) float64 {
	if p == nil {
		return def
	}
	return *p
}
