package mq

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// testConnection собирает Connection без реального брокера:
// достаточно для проверки ack funnel.
func testConnection() *Connection {
	return &Connection{
		logger:   testLogger(),
		closedCh: make(chan struct{}),
		ackCh:    make(chan ackRequest, 64),
		fatalCh:  make(chan error, 1),
	}
}

// fakeAcknowledger фиксирует вызовы ack/nack по delivery tag.
type fakeAcknowledger struct {
	mu      sync.Mutex
	acks    map[uint64]int
	nacks   map[uint64]int
	requeue map[uint64]bool
}

func newFakeAcknowledger() *fakeAcknowledger {
	return &fakeAcknowledger{
		acks:    make(map[uint64]int),
		nacks:   make(map[uint64]int),
		requeue: make(map[uint64]bool),
	}
}

func (f *fakeAcknowledger) Ack(tag uint64, multiple bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.acks[tag]++
	return nil
}

func (f *fakeAcknowledger) Nack(tag uint64, multiple bool, requeue bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nacks[tag]++
	f.requeue[tag] = requeue
	return nil
}

func (f *fakeAcknowledger) Reject(tag uint64, requeue bool) error {
	return f.Nack(tag, false, requeue)
}

func (f *fakeAcknowledger) total() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.acks {
		n += c
	}
	for _, c := range f.nacks {
		n += c
	}
	return n
}

// waitResolved ждёт, пока funnel выполнит want запросов.
func waitResolved(t *testing.T, f *fakeAcknowledger, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if f.total() >= want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("funnel resolved %d requests, want %d", f.total(), want)
}

// --- Ack Funnel Tests ---

// Конкурентные воркеры ставят запросы, владеющая горутина выполняет
// каждый ровно один раз с сохранением флага requeue.
func TestAckFunnelResolvesEachRequestOnce(t *testing.T) {
	c := testConnection()
	go c.ackLoop()
	defer close(c.closedCh)

	f := newFakeAcknowledger()

	const workers = 8
	const perWorker = 8

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				tag := uint64(w*perWorker + i)
				d := &Delivery{
					conn: c,
					raw:  amqp.Delivery{Acknowledger: f, DeliveryTag: tag},
				}
				switch {
				case tag%3 == 0:
					d.Ack()
				case tag%3 == 1:
					d.Nack(false)
				default:
					d.Nack(true)
				}
			}
		}(w)
	}
	wg.Wait()

	waitResolved(t, f, workers*perWorker)

	f.mu.Lock()
	defer f.mu.Unlock()
	for tag := uint64(0); tag < workers*perWorker; tag++ {
		got := f.acks[tag] + f.nacks[tag]
		if got != 1 {
			t.Errorf("tag %d resolved %d times, want exactly 1", tag, got)
		}
		switch {
		case tag%3 == 0:
			if f.acks[tag] != 1 {
				t.Errorf("tag %d should have been acked", tag)
			}
		case tag%3 == 1:
			if f.nacks[tag] != 1 || f.requeue[tag] {
				t.Errorf("tag %d should have been nacked without requeue", tag)
			}
		default:
			if f.nacks[tag] != 1 || !f.requeue[tag] {
				t.Errorf("tag %d should have been nacked with requeue", tag)
			}
		}
	}
}

// Запросы, поставленные до закрытия соединения, дорабатываются
// при останове funnel'а.
func TestAckFunnelDrainsOnClose(t *testing.T) {
	c := testConnection()
	f := newFakeAcknowledger()

	const n = 50
	for tag := uint64(0); tag < n; tag++ {
		c.ackCh <- ackRequest{
			delivery: amqp.Delivery{Acknowledger: f, DeliveryTag: tag},
			ack:      true,
		}
	}

	go c.ackLoop()
	close(c.closedCh)

	waitResolved(t, f, n)
}

// Ошибка подтверждения (устаревший tag после reconnect) логируется
// и не роняет funnel.
func TestAckFunnelSurvivesAcknowledgeError(t *testing.T) {
	c := testConnection()
	go c.ackLoop()
	defer close(c.closedCh)

	f := newFakeAcknowledger()

	failing := &Delivery{conn: c, raw: amqp.Delivery{Acknowledger: failingAcknowledger{}, DeliveryTag: 1}}
	failing.Ack()

	ok := &Delivery{conn: c, raw: amqp.Delivery{Acknowledger: f, DeliveryTag: 2}}
	ok.Ack()

	waitResolved(t, f, 1)

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.acks[2] != 1 {
		t.Error("funnel should keep resolving requests after an acknowledge error")
	}
}

type failingAcknowledger struct{}

func (failingAcknowledger) Ack(tag uint64, multiple bool) error {
	return errors.New("channel/connection is not open")
}

func (failingAcknowledger) Nack(tag uint64, multiple bool, requeue bool) error {
	return errors.New("channel/connection is not open")
}

func (failingAcknowledger) Reject(tag uint64, requeue bool) error {
	return errors.New("channel/connection is not open")
}

// --- Fatal Error Classification Tests ---

func TestIsFatal(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"access refused", &amqp.Error{Code: amqp.AccessRefused, Reason: "ACCESS_REFUSED"}, true},
		{"precondition failed", &amqp.Error{Code: amqp.PreconditionFailed, Reason: "PRECONDITION_FAILED"}, true},
		{"wrapped fatal", fmt.Errorf("declare queue: %w", &amqp.Error{Code: amqp.PreconditionFailed}), true},
		{"connection forced", &amqp.Error{Code: amqp.ConnectionForced, Reason: "CONNECTION_FORCED"}, false},
		{"not found", &amqp.Error{Code: amqp.NotFound, Reason: "NOT_FOUND"}, false},
		{"plain error", errors.New("dial tcp: connection refused"), false},
		{"nil", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isFatal(tt.err); got != tt.want {
				t.Errorf("isFatal(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

// --- Envelope Tests ---

func TestNewEnvelope(t *testing.T) {
	data := map[string]any{"status": "completed", "file_count": 3}
	env := NewEnvelope("task-123", data)

	if env.TaskID != "task-123" {
		t.Errorf("TaskID = %q, want %q", env.TaskID, "task-123")
	}
	if _, err := time.Parse(time.RFC3339, env.Timestamp); err != nil {
		t.Errorf("Timestamp %q is not RFC3339: %v", env.Timestamp, err)
	}
	if env.Data["status"] != "completed" {
		t.Errorf("Data[status] = %v, want completed", env.Data["status"])
	}
}
