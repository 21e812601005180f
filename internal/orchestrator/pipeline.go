package orchestrator

import (
	"context"

	"github.com/google/uuid"
	"github.com/shaiso/Fabrica/internal/domain"
	"github.com/shaiso/Fabrica/internal/execution"
	"github.com/shaiso/Fabrica/internal/extension"
)

// StepKind — вид шага pipeline.
type StepKind string

const (
	// StepKindPrepare — подготовительный шаг расширения.
	StepKindPrepare StepKind = "prepare"

	// StepKindTask — шаг-задача из запроса.
	StepKindTask StepKind = "task"

	// StepKindFinally — завершающий шаг расширения.
	// Finally-шаги выполняются даже после неуспеха задач.
	StepKindFinally StepKind = "finally"
)

// Step — полиморфная единица работы pipeline.
//
// Каждый шаг владеет ровно одним дочерним контекстом выполнения,
// созданным при сборке pipeline.
type Step interface {
	// Kind возвращает вид шага.
	Kind() StepKind

	// DisplayName возвращает отображаемое имя шага.
	DisplayName() string

	// Context возвращает контекст выполнения шага.
	Context() *execution.Context

	// Run выполняет шаг. Ошибка означает неуспех шага.
	Run(ctx context.Context) error
}

// TaskHandler выполняет один TaskStep.
type TaskHandler func(ctx context.Context, ec *execution.Context, source TaskSource, task *domain.TaskInstance) error

// extensionStep — prepare/finally шаг, предоставленный расширением.
type extensionStep struct {
	kind StepKind
	name string
	ec   *execution.Context
	run  func(ctx context.Context, ec *execution.Context) error
}

func (s *extensionStep) Kind() StepKind                { return s.kind }
func (s *extensionStep) DisplayName() string           { return s.name }
func (s *extensionStep) Context() *execution.Context   { return s.ec }
func (s *extensionStep) Run(ctx context.Context) error { return s.run(ctx, s.ec) }

// TaskStep — шаг-задача, связанный с экземпляром задачи из запроса.
type TaskStep struct {
	// Task — экземпляр задачи из запроса.
	Task *domain.TaskInstance

	ec      *execution.Context
	source  TaskSource
	handler TaskHandler
}

// Kind возвращает StepKindTask.
func (s *TaskStep) Kind() StepKind { return StepKindTask }

// DisplayName возвращает отображаемое имя задачи.
func (s *TaskStep) DisplayName() string {
	if s.Task.DisplayName != "" {
		return s.Task.DisplayName
	}
	return s.Task.Name
}

// Context возвращает контекст выполнения шага.
func (s *TaskStep) Context() *execution.Context { return s.ec }

// Run выполняет задачу через TaskHandler.
func (s *TaskStep) Run(ctx context.Context) error {
	return s.handler(ctx, s.ec, s.source, s.Task)
}

// buildPipeline собирает упорядоченный pipeline job.
//
// Детерминированный порядок, после сборки не меняется:
//  1. Prepare-шаги совпавших расширений, в порядке списка расширений
//  2. TaskStep на каждый экземпляр задачи, в порядке запроса
//  3. Finally-шаги совпавших расширений, в порядке списка расширений
//
// Каждый шаг привязывается к свежему дочернему контексту корня.
func buildPipeline(
	root *execution.Context,
	job *domain.JobRequest,
	extensions []extension.Extension,
	source TaskSource,
	handler TaskHandler,
) []Step {
	var steps []Step

	for _, ext := range extensions {
		if tpl := ext.PrepareStep(); tpl != nil {
			steps = append(steps, &extensionStep{
				kind: StepKindPrepare,
				name: tpl.Name,
				ec:   root.Child(uuid.New(), tpl.Name),
				run:  tpl.Run,
			})
		}
	}

	for _, task := range job.Tasks {
		step := &TaskStep{
			Task:    task,
			source:  source,
			handler: handler,
		}
		step.ec = root.Child(task.InstanceID, step.DisplayName())
		steps = append(steps, step)
	}

	for _, ext := range extensions {
		if tpl := ext.FinallyStep(); tpl != nil {
			steps = append(steps, &extensionStep{
				kind: StepKindFinally,
				name: tpl.Name,
				ec:   root.Child(uuid.New(), tpl.Name),
				run:  tpl.Run,
			})
		}
	}

	return steps
}
