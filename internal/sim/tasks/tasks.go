// Package tasks runs suspendable work on the world loop. A task is resumed
// once per tick until it reports completion; between resumptions anything in
// the world may have changed, so tasks re-check what they depend on.
package tasks

type Task interface {
	// Step resumes the task at tick now and reports whether it finished.
	Step(now uint64) (done bool)
}

type Func func(now uint64) bool

func (f Func) Step(now uint64) bool { return f(now) }

type Handle uint64

type entry struct {
	h    Handle
	name string
	t    Task
	gone bool
}

// Scheduler is owned by the world goroutine and is not safe for concurrent use.
type Scheduler struct {
	next    Handle
	running []*entry
	started []*entry

	// OnPanic is told about tasks that panicked. The task is dropped.
	OnPanic func(name string, r any)
}

func NewScheduler() *Scheduler { return &Scheduler{} }

// Start schedules t. It is first resumed on the next Tick, never inside the
// Tick that started it.
func (s *Scheduler) Start(name string, t Task) Handle {
	if t == nil {
		return 0
	}
	s.next++
	s.started = append(s.started, &entry{h: s.next, name: name, t: t})
	return s.next
}

// After runs fn once, delayTicks ticks after now.
func (s *Scheduler) After(name string, now uint64, delayTicks int, fn func(now uint64)) Handle {
	if fn == nil {
		return 0
	}
	if delayTicks < 0 {
		delayTicks = 0
	}
	due := now + uint64(delayTicks)
	return s.Start(name, Func(func(t uint64) bool {
		if t < due {
			return false
		}
		fn(t)
		return true
	}))
}

func (s *Scheduler) find(h Handle) *entry {
	for _, list := range [][]*entry{s.running, s.started} {
		for _, e := range list {
			if e.h == h && !e.gone {
				return e
			}
		}
	}
	return nil
}

// Cancel drops a task without resuming it again. Safe to call from inside
// another task.
func (s *Scheduler) Cancel(h Handle) bool {
	e := s.find(h)
	if e == nil {
		return false
	}
	e.gone = true
	return true
}

func (s *Scheduler) Active(h Handle) bool { return s.find(h) != nil }

func (s *Scheduler) Len() int {
	n := 0
	for _, list := range [][]*entry{s.running, s.started} {
		for _, e := range list {
			if !e.gone {
				n++
			}
		}
	}
	return n
}

// Tick resumes every task once, in start order.
func (s *Scheduler) Tick(now uint64) {
	s.running = append(s.running, s.started...)
	s.started = nil

	batch := append([]*entry(nil), s.running...)
	for _, e := range batch {
		if e.gone {
			continue
		}
		if s.step(e, now) {
			e.gone = true
		}
	}
	keep := s.running[:0]
	for _, e := range s.running {
		if !e.gone {
			keep = append(keep, e)
		}
	}
	s.running = keep
}

func (s *Scheduler) step(e *entry, now uint64) (done bool) {
	defer func() {
		if r := recover(); r != nil {
			done = true
			if s.OnPanic != nil {
				s.OnPanic(e.name, r)
			}
		}
	}()
	return e.t.Step(now)
}
