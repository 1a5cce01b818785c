package clockx

import (
	"sync"
	"time"
)

// Manual is a Scheduler whose time only moves when Advance is called.
// Callbacks run synchronously on the goroutine calling Advance.
type Manual struct {
	mu    sync.Mutex
	now   time.Time
	tasks []*manualTask
}

type manualTask struct {
	period time.Duration
	next   time.Time
	fn     func()
	done   bool
}

// NewManual returns a Manual scheduler starting at start.
func NewManual(start time.Time) *Manual {
	return &Manual{now: start}
}

func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

func (m *Manual) Every(period time.Duration, fn func()) Cancel {
	m.mu.Lock()
	defer m.mu.Unlock()

	task := &manualTask{period: period, next: m.now.Add(period), fn: fn}
	m.tasks = append(m.tasks, task)

	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		task.done = true
	}
}

// Pending reports how many callbacks are still scheduled.
func (m *Manual) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for _, t := range m.tasks {
		if !t.done {
			n++
		}
	}
	return n
}

// Advance moves time forward by d, firing every callback that falls due in
// chronological order.
func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	target := m.now.Add(d)

	for {
		task := m.nextDue(target)
		if task == nil {
			break
		}

		m.now = task.next
		task.next = task.next.Add(task.period)

		m.mu.Unlock()
		task.fn()
		m.mu.Lock()
	}

	m.now = target
	m.mu.Unlock()
}

// nextDue returns the earliest live task due at or before target.
// Caller holds m.mu.
func (m *Manual) nextDue(target time.Time) *manualTask {
	var due *manualTask
	live := m.tasks[:0]

	for _, t := range m.tasks {
		if t.done {
			continue
		}
		live = append(live, t)
		if t.next.After(target) {
			continue
		}
		if due == nil || t.next.Before(due.next) {
			due = t
		}
	}

	m.tasks = live
	return due
}
