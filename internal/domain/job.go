package domain

import (
	"time"

	"github.com/google/uuid"
)

// JobRequest — запрос на выполнение job, присланный сервером.
//
// JobRequest описывает одну единицу работы агента:
//   - Упорядоченный список задач (Tasks)
//   - Переменные окружения job (Variables)
//   - Системное подключение к серверу (System)
//   - Сервисные подключения к внешним системам (Endpoints)
//
// После получения запрос неизменяем, за исключением нормализации URL
// и переменных, которую оркестратор выполняет до начала выполнения.
type JobRequest struct {
	// RequestID — уникальный идентификатор запроса (для журнала и ack).
	RequestID uuid.UUID `json:"request_id"`

	// JobID — идентификатор job на сервере (корень timeline).
	JobID uuid.UUID `json:"job_id"`

	// JobName — отображаемое имя job.
	JobName string `json:"job_name"`

	// HostType — классификатор вида job: "build", "release".
	// Определяет, какие расширения участвуют в pipeline.
	HostType string `json:"host_type"`

	// Variables — переменные job. Имена регистронезависимы.
	Variables Variables `json:"variables"`

	// System — системное подключение к job-серверу
	// (URL + параметры авторизации).
	System *ServiceEndpoint `json:"system"`

	// Endpoints — сервисные подключения, доступные задачам.
	Endpoints []*ServiceEndpoint `json:"endpoints,omitempty"`

	// Tasks — упорядоченный список задач для выполнения.
	Tasks []*TaskInstance `json:"tasks"`

	// QueuedAt — время постановки job в очередь сервером.
	QueuedAt time.Time `json:"queued_at"`
}

// TaskInstance — экземпляр задачи внутри job.
//
// Одна и та же задача (Name + Version) может встречаться в job
// несколько раз с разными входами; InstanceID уникален в пределах job.
type TaskInstance struct {
	// InstanceID — уникальный идентификатор экземпляра в job.
	InstanceID uuid.UUID `json:"instance_id"`

	// Name — имя задачи в каталоге задач.
	Name string `json:"name"`

	// Version — версия задачи ("1.2.3").
	Version string `json:"version"`

	// DisplayName — отображаемое имя шага в timeline.
	DisplayName string `json:"display_name"`

	// Inputs — входные параметры задачи.
	Inputs map[string]string `json:"inputs,omitempty"`
}

// ServiceEndpoint — подключение к внешнему сервису.
type ServiceEndpoint struct {
	// Name — имя подключения ("SystemConnection", "github", ...).
	Name string `json:"name"`

	// URL — адрес сервиса.
	URL string `json:"url"`

	// Authorization — параметры авторизации.
	Authorization Authorization `json:"authorization"`

	// Data — произвольные данные подключения.
	// Значения могут содержать плейсхолдеры $(var) и ссылки
	// на переменные окружения, разворачиваемые перед выполнением.
	Data map[string]string `json:"data,omitempty"`
}

// Authorization — схема и параметры авторизации подключения.
type Authorization struct {
	// Scheme — схема: "OAuth", "Basic".
	Scheme string `json:"scheme,omitempty"`

	// Parameters — параметры схемы ("accessToken", "username", "password").
	Parameters map[string]string `json:"parameters,omitempty"`
}

// Схемы авторизации.
const (
	AuthSchemeOAuth = "OAuth"
	AuthSchemeBasic = "Basic"
)

// AccessToken возвращает access token из параметров авторизации.
// Пустая строка, если токен не задан.
func (a Authorization) AccessToken() string {
	return a.Parameters["accessToken"]
}
