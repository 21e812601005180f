// Package execution содержит дерево контекстов выполнения job.
//
// Корневой контекст создаётся оркестратором на время выполнения job,
// каждый шаг pipeline получает собственный дочерний узел. Узлы
// хранят оверлей переменных с fallthrough к родителю, накапливают
// ошибки и финализируются ровно один раз. Финализация корня
// агрегирует результаты прямых детей по серьёзности.
package execution
