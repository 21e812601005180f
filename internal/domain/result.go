package domain

// JobResult — терминальный результат job или отдельного шага.
//
// Результаты упорядочены по серьёзности:
//
//	Canceled > Failed > SucceededWithIssues > Succeeded > Skipped
//
// Агрегация результата родителя из результатов детей выбирает
// наихудший (максимальный по серьёзности) результат.
type JobResult string

const (
	// ResultSkipped — шаг не выполнялся (предыдущий шаг упал).
	ResultSkipped JobResult = "SKIPPED"

	// ResultSucceeded — успешное завершение.
	ResultSucceeded JobResult = "SUCCEEDED"

	// ResultSucceededWithIssues — завершён, но с предупреждениями.
	ResultSucceededWithIssues JobResult = "SUCCEEDED_WITH_ISSUES"

	// ResultFailed — завершён с ошибкой.
	ResultFailed JobResult = "FAILED"

	// ResultCanceled — выполнение отменено.
	ResultCanceled JobResult = "CANCELED"
)

// severity — порядок серьёзности результатов.
var severity = map[JobResult]int{
	ResultSkipped:             0,
	ResultSucceeded:           1,
	ResultSucceededWithIssues: 2,
	ResultFailed:              3,
	ResultCanceled:            4,
}

// Severity возвращает числовую серьёзность результата.
// Неизвестный результат считается наихудшим.
func (r JobResult) Severity() int {
	s, ok := severity[r]
	if !ok {
		return severity[ResultCanceled]
	}
	return s
}

// Worse возвращает более серьёзный из двух результатов.
func (r JobResult) Worse(other JobResult) JobResult {
	if other.Severity() > r.Severity() {
		return other
	}
	return r
}

// IsSet возвращает true, если результат задан.
func (r JobResult) IsSet() bool {
	return r != ""
}

// String возвращает строковое представление результата.
func (r JobResult) String() string {
	return string(r)
}
