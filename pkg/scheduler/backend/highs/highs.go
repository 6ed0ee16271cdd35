// Package highs 基于 HiGHS MIP 的求解后端
package highs

import (
	"context"
	"time"

	"github.com/nextmv-io/sdk/mip"

	apperrors "github.com/lunban/lunban/pkg/errors"
	"github.com/lunban/lunban/pkg/scheduler/backend"
)

// Backend HiGHS 后端
type Backend struct{}

// New 创建后端
func New() *Backend {
	return &Backend{}
}

// Name 后端标识
func (b *Backend) Name() string {
	return "highs"
}

// Solve 翻译中立模型并调用 HiGHS 求解
func (b *Backend) Solve(ctx context.Context, m *backend.Model, timeLimit time.Duration) (*backend.Solution, error) {
	if err := ctx.Err(); err != nil {
		return &backend.Solution{Status: backend.StatusCancelled}, nil
	}

	mipModel := mip.NewModel()
	mipModel.Objective().SetMinimize()

	vars := make([]mip.Var, m.NumVars())
	for i, v := range m.Vars() {
		switch v.Kind {
		case backend.VarBool:
			vars[i] = mipModel.NewBool()
		default:
			vars[i] = mipModel.NewInt(v.Lb, v.Ub)
		}
	}

	for _, c := range m.Constraints() {
		var sense mip.Sense
		switch c.Sense {
		case backend.LessOrEqual:
			sense = mip.LessThanOrEqual
		case backend.GreaterOrEqual:
			sense = mip.GreaterThanOrEqual
		default:
			sense = mip.Equal
		}
		constraint := mipModel.NewConstraint(sense, float64(c.RHS))
		for _, term := range c.Terms {
			constraint.NewTerm(float64(term.Coeff), vars[term.Var])
		}
	}

	for _, term := range m.Objective() {
		mipModel.Objective().NewTerm(float64(term.Coeff), vars[term.Var])
	}

	solver, err := mip.NewSolver(mip.Highs, mipModel)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeModelBuild, "HiGHS求解器创建失败")
	}

	start := time.Now()
	solution, err := solver.Solve(mip.SolveOptions{Duration: timeLimit})
	elapsed := time.Since(start)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeSolverFailure, "HiGHS求解失败")
	}
	if ctx.Err() != nil {
		return &backend.Solution{Status: backend.StatusCancelled, WallTime: elapsed}, nil
	}

	sol := &backend.Solution{WallTime: elapsed}
	switch {
	case solution.IsOptimal():
		sol.Status = backend.StatusOptimal
	case solution.IsSubOptimal():
		sol.Status = backend.StatusFeasible
		sol.TimedOut = elapsed >= timeLimit
	case solution.IsInfeasible():
		sol.Status = backend.StatusInfeasible
		return sol, nil
	default:
		if elapsed >= timeLimit {
			sol.Status = backend.StatusTimeout
		} else {
			sol.Status = backend.StatusError
		}
		return sol, nil
	}

	sol.Objective = solution.ObjectiveValue()
	sol.Values = make([]int64, m.NumVars())
	for i, v := range m.Vars() {
		value := solution.Value(vars[i])
		switch v.Kind {
		case backend.VarBool:
			// MIP解可能带数值噪声，0.5为激活阈值
			if value >= 0.5 {
				sol.Values[i] = 1
			}
		default:
			sol.Values[i] = int64(value + 0.5)
		}
	}
	return sol, nil
}

var _ backend.Backend = (*Backend)(nil)
