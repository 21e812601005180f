package orchestrator

import "errors"

// Ошибки оркестратора.
var (
	// ErrInvalidJobRequest — запрос не прошёл валидацию предусловий.
	ErrInvalidJobRequest = errors.New("invalid job request")

	// ErrJobServerConnect — не удалось подключиться к job-серверу.
	ErrJobServerConnect = errors.New("job server connection failed")

	// ErrTaskServerResolve — не удалось разрешить сервер определений задач.
	ErrTaskServerResolve = errors.New("task definition server resolution failed")
)
