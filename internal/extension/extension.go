package extension

import (
	"context"

	"github.com/shaiso/Fabrica/internal/execution"
)

// StepTemplate — шаблон шага, предоставляемый расширением.
//
// Pipeline builder связывает шаблон со свежим дочерним контекстом
// выполнения; Run вызывается steps runner'ом.
type StepTemplate struct {
	// Name — отображаемое имя шага.
	Name string

	// Run выполняет шаг. Ошибка означает неуспех шага;
	// изоляция ошибок — ответственность steps runner'а.
	Run func(ctx context.Context, ec *execution.Context) error
}

// Extension — подключаемый поставщик prepare/finally шагов.
//
// Расширение участвует в pipeline только если его HostType совпадает
// (без учёта регистра) с host type выполняемого job. Оба шага
// опциональны: nil означает, что расширение шаг не предоставляет.
type Extension interface {
	// HostType возвращает вид job, который обслуживает расширение.
	HostType() string

	// PrepareStep возвращает шаблон prepare-шага или nil.
	PrepareStep() *StepTemplate

	// FinallyStep возвращает шаблон finally-шага или nil.
	FinallyStep() *StepTemplate
}
