// Package cpsat 基于 OR-Tools CP-SAT 的求解后端
package cpsat

import (
	"context"
	"fmt"
	"time"

	"github.com/google/or-tools/ortools/sat/go/cpmodel"
	cmpb "github.com/google/or-tools/ortools/sat/gen/cpmodel"
	sppb "github.com/google/or-tools/ortools/sat/gen/satparameters"
	"google.golang.org/protobuf/proto"

	apperrors "github.com/lunban/lunban/pkg/errors"
	"github.com/lunban/lunban/pkg/scheduler/backend"
)

// Backend CP-SAT 后端
type Backend struct{}

// New 创建后端
func New() *Backend {
	return &Backend{}
}

// Name 后端标识
func (b *Backend) Name() string {
	return "ortools"
}

// Solve 翻译中立模型并调用 CP-SAT 求解
func (b *Backend) Solve(ctx context.Context, m *backend.Model, timeLimit time.Duration) (*backend.Solution, error) {
	if err := ctx.Err(); err != nil {
		return &backend.Solution{Status: backend.StatusCancelled}, nil
	}

	builder := cpmodel.NewCpModelBuilder()

	vars := make([]cpmodel.LinearArgument, m.NumVars())
	for i, v := range m.Vars() {
		switch v.Kind {
		case backend.VarBool:
			vars[i] = builder.NewBoolVar().WithName(v.Name)
		default:
			vars[i] = builder.NewIntVarFromDomain(cpmodel.NewDomain(v.Lb, v.Ub)).WithName(v.Name)
		}
	}

	for _, c := range m.Constraints() {
		expr := cpmodel.NewLinearExpr()
		for _, term := range c.Terms {
			expr.AddTerm(vars[term.Var], term.Coeff)
		}
		rhs := cpmodel.NewConstant(c.RHS)
		switch c.Sense {
		case backend.LessOrEqual:
			builder.AddLessOrEqual(expr, rhs)
		case backend.GreaterOrEqual:
			builder.AddGreaterOrEqual(expr, rhs)
		default:
			builder.AddEquality(expr, rhs)
		}
	}

	if obj := m.Objective(); len(obj) > 0 {
		expr := cpmodel.NewLinearExpr()
		for _, term := range obj {
			expr.AddTerm(vars[term.Var], term.Coeff)
		}
		builder.Minimize(expr)
	}

	modelProto, err := builder.Model()
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeModelBuild, "CP-SAT模型实例化失败")
	}

	params := &sppb.SatParameters{
		MaxTimeInSeconds: proto.Float64(timeLimit.Seconds()),
	}

	start := time.Now()
	response, err := cpmodel.SolveCpModelWithParameters(modelProto, params)
	elapsed := time.Since(start)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeSolverFailure, "CP-SAT求解失败")
	}
	if ctx.Err() != nil {
		// 求解期间任务被取消，结果不再使用
		return &backend.Solution{Status: backend.StatusCancelled, WallTime: elapsed}, nil
	}

	sol := &backend.Solution{
		Objective: response.GetObjectiveValue(),
		WallTime:  elapsed,
	}

	switch response.GetStatus() {
	case cmpb.CpSolverStatus_OPTIMAL:
		sol.Status = backend.StatusOptimal
	case cmpb.CpSolverStatus_FEASIBLE:
		sol.Status = backend.StatusFeasible
		sol.TimedOut = elapsed >= timeLimit
	case cmpb.CpSolverStatus_INFEASIBLE:
		sol.Status = backend.StatusInfeasible
		return sol, nil
	case cmpb.CpSolverStatus_MODEL_INVALID:
		sol.Status = backend.StatusError
		return sol, apperrors.New(apperrors.CodeModelBuild, "CP-SAT报告模型无效")
	default:
		// UNKNOWN：时限内未找到可行解
		if elapsed >= timeLimit {
			sol.Status = backend.StatusTimeout
		} else {
			sol.Status = backend.StatusError
		}
		return sol, nil
	}

	sol.Values = make([]int64, m.NumVars())
	for i, v := range m.Vars() {
		switch v.Kind {
		case backend.VarBool:
			if cpmodel.SolutionBooleanValue(response, vars[i].(cpmodel.BoolVar)) {
				sol.Values[i] = 1
			}
		default:
			sol.Values[i] = cpmodel.SolutionIntegerValue(response, vars[i])
		}
	}
	return sol, nil
}

var _ backend.Backend = (*Backend)(nil)

// String 便于日志输出
func (b *Backend) String() string {
	return fmt.Sprintf("backend(%s)", b.Name())
}
