package registry

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shaiso/Ingesta/internal/domain"
)

// taskAt создаёт task с заданным временем создания.
func taskAt(id string, status domain.TaskStatus, createdAt time.Time) domain.Task {
	return domain.Task{ID: id, Status: status, CreatedAt: createdAt}
}

// --- Upsert / Get Tests ---

func TestUpsertGet(t *testing.T) {
	r := New(0)

	task := domain.NewTask()
	r.Upsert(task)

	got, ok := r.Get(task.ID)
	if !ok {
		t.Fatalf("Get(%q) not found", task.ID)
	}
	if got.ID != task.ID || got.Status != domain.TaskStatusPending {
		t.Errorf("Get returned %+v, want id=%s status=pending", got, task.ID)
	}

	if _, ok := r.Get("missing"); ok {
		t.Error("Get(missing) should report not found")
	}
}

// Реестр хранит снапшоты: мутация локальной копии после Upsert
// не должна быть видна читателям до следующего Upsert.
func TestUpsertSnapshot(t *testing.T) {
	r := New(0)

	task := domain.NewTask()
	r.Upsert(task)

	task.MarkRunning()

	got, _ := r.Get(task.ID)
	if got.Status != domain.TaskStatusPending {
		t.Errorf("stored status = %s, want pending (snapshot must not alias caller's copy)", got.Status)
	}

	r.Upsert(task)
	got, _ = r.Get(task.ID)
	if got.Status != domain.TaskStatusRunning {
		t.Errorf("stored status = %s, want running after second Upsert", got.Status)
	}
}

// --- List Tests ---

func TestListOrderingAndLimit(t *testing.T) {
	r := New(0)
	base := time.Now()

	for i := 0; i < 5; i++ {
		r.Upsert(taskAt(fmt.Sprintf("t%d", i), domain.TaskStatusCompleted, base.Add(time.Duration(i)*time.Second)))
	}

	got := r.List("", 0)
	if len(got) != 5 {
		t.Fatalf("List returned %d tasks, want 5", len(got))
	}
	// Самая свежая запись первой.
	for i := 0; i < len(got)-1; i++ {
		if got[i].CreatedAt.Before(got[i+1].CreatedAt) {
			t.Errorf("List not ordered by created_at desc at index %d", i)
		}
	}
	if got[0].ID != "t4" {
		t.Errorf("List[0].ID = %s, want t4", got[0].ID)
	}

	limited := r.List("", 2)
	if len(limited) != 2 {
		t.Fatalf("List(limit=2) returned %d tasks", len(limited))
	}
	if limited[0].ID != "t4" || limited[1].ID != "t3" {
		t.Errorf("List(limit=2) = [%s %s], want [t4 t3]", limited[0].ID, limited[1].ID)
	}
}

func TestListStatusFilter(t *testing.T) {
	r := New(0)
	base := time.Now()

	r.Upsert(taskAt("a", domain.TaskStatusRunning, base))
	r.Upsert(taskAt("b", domain.TaskStatusCompleted, base.Add(time.Second)))
	r.Upsert(taskAt("c", domain.TaskStatusFailed, base.Add(2*time.Second)))
	r.Upsert(taskAt("d", domain.TaskStatusRunning, base.Add(3*time.Second)))

	running := r.List(domain.TaskStatusRunning, 0)
	if len(running) != 2 {
		t.Fatalf("List(running) returned %d tasks, want 2", len(running))
	}
	if running[0].ID != "d" || running[1].ID != "a" {
		t.Errorf("List(running) = [%s %s], want [d a]", running[0].ID, running[1].ID)
	}

	failed := r.List(domain.TaskStatusFailed, 0)
	if len(failed) != 1 || failed[0].ID != "c" {
		t.Errorf("List(failed) = %+v, want single task c", failed)
	}
}

// --- Retention Tests ---

func TestEvictionOldestTerminalFirst(t *testing.T) {
	r := New(3)
	base := time.Now()

	r.Upsert(taskAt("old-done", domain.TaskStatusCompleted, base))
	r.Upsert(taskAt("mid-done", domain.TaskStatusFailed, base.Add(time.Second)))
	r.Upsert(taskAt("new-done", domain.TaskStatusCompleted, base.Add(2*time.Second)))
	r.Upsert(taskAt("newest", domain.TaskStatusCompleted, base.Add(3*time.Second)))

	if r.Len() != 3 {
		t.Fatalf("Len = %d after eviction, want 3", r.Len())
	}
	if _, ok := r.Get("old-done"); ok {
		t.Error("oldest terminal task should have been evicted")
	}
	for _, id := range []string{"mid-done", "new-done", "newest"} {
		if _, ok := r.Get(id); !ok {
			t.Errorf("task %s should have survived eviction", id)
		}
	}
}

func TestEvictionSkipsActiveTasks(t *testing.T) {
	r := New(2)
	base := time.Now()

	// Старейшие записи не терминальные — вытеснять их нельзя.
	r.Upsert(taskAt("active-1", domain.TaskStatusRunning, base))
	r.Upsert(taskAt("active-2", domain.TaskStatusPending, base.Add(time.Second)))
	r.Upsert(taskAt("done", domain.TaskStatusCompleted, base.Add(2*time.Second)))

	// Единственный терминальный кандидат вытеснен, активные остались:
	// реестр временно превышает границу.
	if _, ok := r.Get("done"); ok {
		t.Error("terminal task should have been evicted to approach the bound")
	}
	for _, id := range []string{"active-1", "active-2"} {
		if _, ok := r.Get(id); !ok {
			t.Errorf("non-terminal task %s must never be evicted", id)
		}
	}
}

func TestUnboundedRegistry(t *testing.T) {
	r := New(0)
	base := time.Now()

	for i := 0; i < 100; i++ {
		r.Upsert(taskAt(fmt.Sprintf("t%d", i), domain.TaskStatusCompleted, base.Add(time.Duration(i)*time.Millisecond)))
	}
	if r.Len() != 100 {
		t.Errorf("Len = %d, want 100 (maxTasks=0 disables eviction)", r.Len())
	}
}

// --- Stats Tests ---

func TestStats(t *testing.T) {
	r := New(0)
	base := time.Now()

	r.Upsert(taskAt("a", domain.TaskStatusRunning, base))
	r.Upsert(taskAt("b", domain.TaskStatusRunning, base.Add(time.Second)))
	r.Upsert(taskAt("c", domain.TaskStatusCompleted, base.Add(2*time.Second)))
	r.Upsert(taskAt("d", domain.TaskStatusPending, base.Add(3*time.Second)))

	total, running := r.Stats()
	if total != 4 {
		t.Errorf("Stats total = %d, want 4", total)
	}
	if running != 2 {
		t.Errorf("Stats running = %d, want 2", running)
	}
}

// --- Concurrency Tests ---

// Параллельные писатели и читатели не должны конфликтовать
// (тест рассчитан на запуск под -race).
func TestConcurrentAccess(t *testing.T) {
	r := New(50)

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				task := domain.NewTask()
				r.Upsert(task)
				task.MarkRunning()
				r.Upsert(task)
				task.MarkCompleted()
				r.Upsert(task)

				r.Get(task.ID)
				r.List(domain.TaskStatusCompleted, 10)
				r.Stats()
			}
		}(w)
	}
	wg.Wait()

	if r.Len() > 50 {
		t.Errorf("Len = %d exceeds bound 50 with only terminal tasks stored", r.Len())
	}
}
