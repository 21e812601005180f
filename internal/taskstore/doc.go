// Package taskstore содержит локальный кэш определений задач.
//
// Перед выполнением pipeline оркестратор скачивает через Store
// определения всех задач job; TaskStep'ы читают их из кэша.
// Скачивание кооперативно отменяемо.
package taskstore
