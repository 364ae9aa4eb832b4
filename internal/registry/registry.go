package registry

import (
	"sort"
	"sync"

	"github.com/shaiso/Ingesta/internal/domain"
)

// Registry — потокобезопасный реестр tasks в памяти.
//
// Хранит снапшоты по значению: Upsert копирует запись внутрь,
// Get и List отдают копии наружу. Воркер мутирует собственный
// экземпляр task и фиксирует каждое изменение повторным Upsert,
// поэтому читатели никогда не видят запись в процессе мутации.
//
// Реестр не переживает рестарт процесса: источником истины
// по невыполненной работе остаётся брокер.
type Registry struct {
	mu       sync.RWMutex
	tasks    map[string]domain.Task
	maxTasks int
}

// New создаёт пустой реестр.
// maxTasks > 0 включает ограничение размера: при переполнении
// вытесняются самые старые терминальные записи. maxTasks = 0 —
// без ограничения.
func New(maxTasks int) *Registry {
	return &Registry{
		tasks:    make(map[string]domain.Task),
		maxTasks: maxTasks,
	}
}

// Upsert вставляет или обновляет запись task.
func (r *Registry) Upsert(task domain.Task) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.tasks[task.ID] = task
	r.evictLocked()
}

// Get возвращает копию task по ID.
func (r *Registry) Get(id string) (domain.Task, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	task, ok := r.tasks[id]
	return task, ok
}

// List возвращает tasks, отсортированные по created_at по убыванию.
// Пустой status — без фильтра. limit <= 0 — без ограничения.
func (r *Registry) List(status domain.TaskStatus, limit int) []domain.Task {
	r.mu.RLock()
	out := make([]domain.Task, 0, len(r.tasks))
	for _, task := range r.tasks {
		if status != "" && task.Status != status {
			continue
		}
		out = append(out, task)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})

	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// Len возвращает количество записей в реестре.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tasks)
}

// Stats возвращает общее количество записей и количество
// выполняющихся прямо сейчас.
func (r *Registry) Stats() (total, running int) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, task := range r.tasks {
		if task.Status == domain.TaskStatusRunning {
			running++
		}
	}
	return len(r.tasks), running
}

// evictLocked вытесняет самые старые терминальные записи,
// пока размер превышает maxTasks. Нетерминальные записи не
// вытесняются никогда — ими владеют активные воркеры, поэтому
// реестр может временно превышать границу.
// Вызывается только под write-lock.
func (r *Registry) evictLocked() {
	if r.maxTasks <= 0 || len(r.tasks) <= r.maxTasks {
		return
	}

	candidates := make([]domain.Task, 0, len(r.tasks))
	for _, task := range r.tasks {
		if task.Status.IsTerminal() {
			candidates = append(candidates, task)
		}
	}
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].CreatedAt.Before(candidates[j].CreatedAt)
	})

	for _, task := range candidates {
		if len(r.tasks) <= r.maxTasks {
			break
		}
		delete(r.tasks, task.ID)
	}
}
