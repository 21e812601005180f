package extension

import (
	"strings"
	"sync"
)

// Registry — реестр расширений.
//
// Порядок регистрации сохраняется: pipeline builder обходит
// совпавшие расширения в том порядке, в котором они были
// зарегистрированы. Потокобезопасен.
type Registry struct {
	mu         sync.RWMutex
	extensions []Extension
}

// NewRegistry создаёт пустой реестр.
func NewRegistry() *Registry {
	return &Registry{}
}

// DefaultRegistry создаёт реестр со встроенными расширениями.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(NewBuildExtension())
	r.Register(NewReleaseExtension())
	return r
}

// Register добавляет расширение в конец списка.
func (r *Registry) Register(ext Extension) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.extensions = append(r.extensions, ext)
}

// List возвращает все зарегистрированные расширения
// в порядке регистрации.
func (r *Registry) List() []Extension {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Extension, len(r.extensions))
	copy(out, r.extensions)
	return out
}

// Match возвращает расширения с указанным host type
// (сравнение без учёта регистра), в порядке регистрации.
func (r *Registry) Match(hostType string) []Extension {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Extension
	for _, ext := range r.extensions {
		if strings.EqualFold(ext.HostType(), hostType) {
			out = append(out, ext)
		}
	}
	return out
}
