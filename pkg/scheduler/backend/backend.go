// Package backend 定义求解后端的中立模型表示
// 引擎只面向该表示建模，CP-SAT与HiGHS各自翻译执行
package backend

import (
	"context"
	"time"
)

// VarID 模型内变量句柄
type VarID int

// VarKind 变量类型
type VarKind int

const (
	VarBool VarKind = iota // 0/1 指派变量
	VarInt                 // 有界整型松弛变量
)

// Var 变量定义
type Var struct {
	Name string
	Kind VarKind
	Lb   int64
	Ub   int64
}

// Term 线性项
type Term struct {
	Var   VarID
	Coeff int64
}

// Sense 约束方向
type Sense int

const (
	LessOrEqual Sense = iota
	GreaterOrEqual
	Equal
)

// Constraint 线性约束 Σ coeff·var <sense> rhs
type Constraint struct {
	Name  string
	Terms []Term
	Sense Sense
	RHS   int64
}

// Model 待求解模型，目标恒为最小化
// 权重以×1000定点放大为整系数，两个后端共用同一目标语义
type Model struct {
	vars        []Var
	constraints []Constraint
	objective   []Term
}

// NewModel 创建空模型
func NewModel() *Model {
	return &Model{}
}

// NewBool 创建0/1变量
func (m *Model) NewBool(name string) VarID {
	m.vars = append(m.vars, Var{Name: name, Kind: VarBool, Lb: 0, Ub: 1})
	return VarID(len(m.vars) - 1)
}

// NewInt 创建有界整型变量
func (m *Model) NewInt(name string, lb, ub int64) VarID {
	if ub < lb {
		ub = lb
	}
	m.vars = append(m.vars, Var{Name: name, Kind: VarInt, Lb: lb, Ub: ub})
	return VarID(len(m.vars) - 1)
}

// AddConstraint 追加线性约束
func (m *Model) AddConstraint(name string, terms []Term, sense Sense, rhs int64) {
	m.constraints = append(m.constraints, Constraint{Name: name, Terms: terms, Sense: sense, RHS: rhs})
}

// AddObjectiveTerm 追加目标项（最小化）
func (m *Model) AddObjectiveTerm(v VarID, coeff int64) {
	if coeff == 0 {
		return
	}
	m.objective = append(m.objective, Term{Var: v, Coeff: coeff})
}

// Vars 变量表（供后端翻译）
func (m *Model) Vars() []Var { return m.vars }

// Constraints 约束表
func (m *Model) Constraints() []Constraint { return m.constraints }

// Objective 目标项
func (m *Model) Objective() []Term { return m.objective }

// NumVars 变量数
func (m *Model) NumVars() int { return len(m.vars) }

// NumConstraints 约束数
func (m *Model) NumConstraints() int { return len(m.constraints) }

// Status 求解结果状态
type Status string

const (
	StatusOptimal    Status = "optimal"
	StatusFeasible   Status = "feasible"
	StatusInfeasible Status = "infeasible"
	StatusTimeout    Status = "timeout"
	StatusCancelled  Status = "cancelled"
	StatusError      Status = "error"
)

// Usable 状态是否带有可用解
func (s Status) Usable() bool {
	return s == StatusOptimal || s == StatusFeasible
}

// Solution 求解结果
type Solution struct {
	Status    Status
	Values    []int64 // 与变量表同序
	Objective float64
	WallTime  time.Duration
	TimedOut  bool // 截止时间内返回了可用解但未证明最优
}

// BoolValue 读取0/1变量取值
func (s *Solution) BoolValue(v VarID) bool {
	if int(v) >= len(s.Values) {
		return false
	}
	return s.Values[v] >= 1
}

// IntValue 读取整型变量取值
func (s *Solution) IntValue(v VarID) int64 {
	if int(v) >= len(s.Values) {
		return 0
	}
	return s.Values[v]
}

// Backend 求解后端
type Backend interface {
	// Name 后端标识（ortools/highs），用于日志与solverInfo注记
	Name() string
	// Solve 在时限内求解，上下文取消时返回 StatusCancelled
	Solve(ctx context.Context, m *Model, timeLimit time.Duration) (*Solution, error)
}
