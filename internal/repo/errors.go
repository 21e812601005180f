package repo

import "errors"

// Общие ошибки журнала.
var (
	// ErrNotFound — запись не найдена в БД.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists — запись уже существует (конфликт уникальности).
	ErrAlreadyExists = errors.New("already exists")
)
