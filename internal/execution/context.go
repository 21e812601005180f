package execution

import (
	"errors"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/Fabrica/internal/domain"
)

// Ошибки контекста выполнения.
var (
	// ErrResultFinalized — результат контекста уже финализирован.
	ErrResultFinalized = errors.New("context result already finalized")
)

// Sink принимает timeline-записи финализированных узлов.
//
// Реализуется очередью job-сервера; nil sink допустим —
// записи просто не отправляются.
type Sink interface {
	Record(rec domain.TimelineRecord)
}

// Context — узел дерева контекстов выполнения.
//
// Дерево создаётся на время выполнения одного job: корень принадлежит
// оркестратору, каждый шаг pipeline получает собственный дочерний узел.
//
// Узел содержит:
//   - Оверлей переменных: чтение проваливается к родителю при промахе
//   - Ссылку на общий список сервисных подключений (не владеет)
//   - Накапливаемый результат (финализируется ровно один раз)
//   - Накопленный текст ошибок для отчёта на сервер
//
// Дочерний узел принадлежит исключительно своему шагу; никакие два
// шага не изменяют один и тот же узел конкурентно. Мьютекс защищает
// только пары вида «шаг пишет / оркестратор агрегирует».
type Context struct {
	// ID — идентификатор узла (попадает в TimelineRecord.ID).
	ID uuid.UUID

	// Name — отображаемое имя узла.
	Name string

	// Endpoints — общий список подключений job (заимствован у запроса).
	Endpoints []*domain.ServiceEndpoint

	parent   *Context
	children []*Context

	sink Sink

	mu        sync.RWMutex
	vars      domain.Variables
	result    domain.JobResult
	finalized bool
	errs      []string
}

// NewRoot создаёт корневой контекст job.
//
// Корень получает копию переменных запроса: шаги видят их через
// fallthrough, но изменения переменных запроса после старта
// на дерево не влияют.
func NewRoot(id uuid.UUID, name string, vars domain.Variables, endpoints []*domain.ServiceEndpoint) *Context {
	return &Context{
		ID:        id,
		Name:      name,
		Endpoints: endpoints,
		vars:      vars.Clone(),
	}
}

// AttachSink подключает приёмник timeline-записей к узлу.
// Дочерние узлы, созданные после вызова, наследуют приёмник.
func (c *Context) AttachSink(sink Sink) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sink = sink
}

// Child создаёт дочерний узел с собственным оверлеем переменных.
// Вызывающий получает узел в исключительное владение.
func (c *Context) Child(id uuid.UUID, name string) *Context {
	c.mu.Lock()
	defer c.mu.Unlock()

	child := &Context{
		ID:        id,
		Name:      name,
		Endpoints: c.Endpoints,
		parent:    c,
		sink:      c.sink,
		vars:      make(domain.Variables),
	}
	c.children = append(c.children, child)
	return child
}

// Variable возвращает значение переменной. При промахе в оверлее
// узла чтение проваливается к родителю; имена регистронезависимы.
func (c *Context) Variable(name string) (string, bool) {
	c.mu.RLock()
	val, ok := c.vars.Get(name)
	c.mu.RUnlock()

	if ok {
		return val, true
	}
	if c.parent != nil {
		return c.parent.Variable(name)
	}
	return "", false
}

// SetVariable устанавливает переменную в оверлее узла.
// Родительское значение не изменяется.
func (c *Context) SetVariable(name, value string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.vars.Set(name, value)
}

// SetJobVariable устанавливает переменную в корневом оверлее:
// значение видно всем последующим шагам job через fallthrough.
func (c *Context) SetJobVariable(name, value string) {
	root := c
	for root.parent != nil {
		root = root.parent
	}
	root.SetVariable(name, value)
}

// VariableBool возвращает булево значение переменной (см. Variable).
func (c *Context) VariableBool(name string) bool {
	val, ok := c.Variable(name)
	if !ok {
		return false
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return false
	}
	return b
}

// Endpoint возвращает сервисное подключение по имени.
func (c *Context) Endpoint(name string) (*domain.ServiceEndpoint, bool) {
	for _, ep := range c.Endpoints {
		if strings.EqualFold(ep.Name, name) {
			return ep, true
		}
	}
	return nil, false
}

// AddError накапливает текст ошибки для отчёта на сервер.
func (c *Context) AddError(msg string) {
	if msg == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errs = append(c.errs, msg)
}

// ErrorText возвращает накопленный текст ошибок.
func (c *Context) ErrorText() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return strings.Join(c.errs, "; ")
}

// Finalize устанавливает терминальный результат узла.
//
// Результат устанавливается ровно один раз; повторный вызов
// возвращает ErrResultFinalized. Финализированный узел отправляет
// timeline-запись в подключённый sink.
func (c *Context) Finalize(result domain.JobResult) error {
	c.mu.Lock()
	if c.finalized {
		c.mu.Unlock()
		return ErrResultFinalized
	}
	c.finalized = true
	c.result = result
	rec := c.record()
	sink := c.sink
	c.mu.Unlock()

	if sink != nil {
		sink.Record(rec)
	}
	return nil
}

// Result возвращает результат узла и признак финализации.
func (c *Context) Result() (domain.JobResult, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.result, c.finalized
}

// Complete финализирует узел агрегацией результатов прямых детей.
//
// Если результат уже финализирован (явно или предыдущим вызовом
// Complete), возвращается сохранённый результат без повторной
// агрегации. Нефинализированные дети в агрегации не участвуют;
// job без шагов завершается Succeeded.
func (c *Context) Complete() domain.JobResult {
	c.mu.Lock()
	if c.finalized {
		result := c.result
		c.mu.Unlock()
		return result
	}

	result := domain.ResultSucceeded
	for _, child := range c.children {
		if childResult, ok := child.Result(); ok {
			result = result.Worse(childResult)
		}
	}

	c.finalized = true
	c.result = result
	rec := c.record()
	sink := c.sink
	c.mu.Unlock()

	if sink != nil {
		sink.Record(rec)
	}
	return result
}

// record строит timeline-запись узла. Вызывается под мьютексом.
func (c *Context) record() domain.TimelineRecord {
	var parentID uuid.UUID
	if c.parent != nil {
		parentID = c.parent.ID
	}
	return domain.TimelineRecord{
		ID:         c.ID,
		ParentID:   parentID,
		Name:       c.Name,
		Result:     c.result,
		Error:      strings.Join(c.errs, "; "),
		FinishedAt: time.Now(),
	}
}

// Children возвращает прямых детей узла.
func (c *Context) Children() []*Context {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*Context, len(c.children))
	copy(out, c.children)
	return out
}
