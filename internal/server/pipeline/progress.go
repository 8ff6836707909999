package pipeline

import (
	"context"

	"github.com/dmitrijs2005/materialkeeper/internal/logging"
)

// reporter forwards progress to a sink. Reported percentages never decrease
// and are capped at 100; sink failures never reach the pipeline.
type reporter struct {
	sink ProgressFunc
	last int
	log  logging.Logger
}

func newReporter(sink ProgressFunc, log logging.Logger) *reporter {
	return &reporter{sink: sink, log: log}
}

func (r *reporter) report(ctx context.Context, step Step, percent int, message string) {
	percent = min(max(percent, r.last), 100)
	r.last = percent
	if r.sink == nil {
		return
	}

	defer func() {
		if p := recover(); p != nil {
			r.log.Warn(ctx, "progress sink panicked", "step", step, "panic", p)
		}
	}()
	if err := r.sink(ctx, step, percent, message); err != nil {
		r.log.Warn(ctx, "progress sink failed", "step", step, "error", err)
	}
}

func (r *reporter) completed(ctx context.Context) {
	r.report(ctx, StepCompleted, 100, "material is ready")
}

func (r *reporter) failed(ctx context.Context, message string) {
	r.report(ctx, StepFailed, 100, message)
}
