package runner

import (
	"context"
	"errors"
	"log/slog"

	"github.com/shaiso/Fabrica/internal/domain"
	"github.com/shaiso/Fabrica/internal/execution"
	"github.com/shaiso/Fabrica/internal/orchestrator"
)

// Runner выполняет pipeline шагов job по порядку.
//
// Правила изоляции ошибок:
//   - Неуспех prepare- или task-шага не прерывает pipeline:
//     последующие task-шаги финализируются Skipped, finally-шаги
//     выполняются всегда
//   - Отмена job: невыполненные prepare/task-шаги финализируются
//     Canceled, finally-шаги выполняются с отвязанным от отмены
//     контекстом, затем возвращается ошибка отмены
//   - Каждый шаг финализирует собственный дочерний контекст
//     ровно один раз
//
// Ошибка возвращается только при отмене; неуспехи шагов отражаются
// в их контекстах и попадают в результат job через агрегацию корня.
type Runner struct {
	logger *slog.Logger
}

// New создаёт новый Runner.
func New(logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{logger: logger}
}

// Run выполняет шаги pipeline по порядку. Реализует
// orchestrator.StepsRunner.
func (r *Runner) Run(ctx context.Context, root *execution.Context, steps []orchestrator.Step) error {
	failed := false
	canceled := false

	for _, step := range steps {
		if !canceled && ctx.Err() != nil {
			canceled = true
		}

		switch step.Kind() {
		case orchestrator.StepKindFinally:
			// Finally выполняется всегда, в том числе после отмены
			r.runStep(context.WithoutCancel(ctx), step)

		case orchestrator.StepKindTask:
			switch {
			case canceled:
				r.finalize(step, domain.ResultCanceled)
			case failed:
				r.finalize(step, domain.ResultSkipped)
			default:
				if !r.runStep(ctx, step) {
					failed = true
				}
			}

		default: // prepare
			if canceled {
				r.finalize(step, domain.ResultCanceled)
				continue
			}
			if !r.runStep(ctx, step) {
				failed = true
			}
		}

		if !canceled && ctx.Err() != nil {
			canceled = true
		}
	}

	if canceled {
		return context.Cause(ctx)
	}
	return nil
}

// runStep выполняет один шаг и финализирует его контекст.
// Возвращает true при успехе.
func (r *Runner) runStep(ctx context.Context, step orchestrator.Step) bool {
	ec := step.Context()

	r.logger.Info("step started", "step", step.DisplayName(), "kind", step.Kind())

	err := step.Run(ctx)
	if err != nil {
		ec.AddError(err.Error())
		if isCancellation(ctx, err) {
			r.finalize(step, domain.ResultCanceled)
			return false
		}
		r.logger.Warn("step failed", "step", step.DisplayName(), "error", err)
		r.finalize(step, domain.ResultFailed)
		return false
	}

	// Шаг мог финализировать себя сам (например, с issues)
	if result, ok := ec.Result(); ok {
		r.logger.Info("step finished", "step", step.DisplayName(), "result", result)
		return result.Severity() <= domain.ResultSucceededWithIssues.Severity()
	}

	r.finalize(step, domain.ResultSucceeded)
	r.logger.Info("step finished", "step", step.DisplayName(), "result", domain.ResultSucceeded)
	return true
}

// finalize финализирует контекст шага, если шаг не сделал это сам.
func (r *Runner) finalize(step orchestrator.Step, result domain.JobResult) {
	if err := step.Context().Finalize(result); err != nil {
		// Контекст уже финализирован шагом — это не ошибка
		r.logger.Debug("step context already finalized", "step", step.DisplayName())
	}
}

// isCancellation проверяет, вызвана ли ошибка шага отменой job.
func isCancellation(ctx context.Context, err error) bool {
	if ctx.Err() == nil {
		return false
	}
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
