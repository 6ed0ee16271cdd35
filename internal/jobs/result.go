package jobs

import (
	"github.com/lunban/lunban/pkg/model"
	"github.com/lunban/lunban/pkg/scheduler/orchestrator"
	"github.com/lunban/lunban/pkg/stats"
)

// buildResult 把编排产物组装成对外结果负载
func buildResult(input *model.ScheduleInput, outcome *orchestrator.Outcome) (*ResultPayload, error) {
	cal, err := input.BuildCalendar()
	if err != nil {
		return nil, err
	}

	score := stats.NewScorer(input, cal).Compute(outcome.Assignments, outcome.Report)
	accruals := stats.OffAccruals(input, cal, outcome.Assignments)

	return &ResultPayload{
		Assignments: outcome.Assignments,
		GenerationResult: &GenerationResult{
			Iterations:      1,
			ComputationTime: outcome.WallTime.Milliseconds(),
			SolveStatus:     string(outcome.Status),
			SolverTimedOut:  outcome.TimedOut,
			Violations:      outcome.Report.Flatten(),
			Score:           &score,
			OffAccruals:     accruals,
			Stats: SummaryStats{
				FairnessIndex:   score.Fairness,
				CoverageRate:    score.Coverage,
				PreferenceScore: score.Preference,
			},
			Diagnostics: outcome.Report,
			Postprocess: outcome.Report.Postprocess,
		},
		AiPolishResult: nil,
	}, nil
}
