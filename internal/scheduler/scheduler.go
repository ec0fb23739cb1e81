// Package scheduler drives the periodic billing sweeps. Every task runs on
// its own goroutine and ticker, so a slow bandwidth settlement never delays
// the hourly compute charge, and a task never overlaps itself.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/jmehdipour/vps-billing/internal/metrics"
	"go.uber.org/zap"
)

var (
	ErrUnknownTask = errors.New("unknown task")
	ErrPending     = errors.New("task already pending")
	// ErrLocked means another replica holds the task lock.
	ErrLocked = errors.New("task locked elsewhere")
)

// Unlock releases a lock taken by Locker.TryLock.
type Unlock func(ctx context.Context) error

// Locker serialises task runs across processes.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (Unlock, bool, error)
}

type Task struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context) error
}

type Options struct {
	Locker  Locker
	LockTTL time.Duration
	Logger  *zap.Logger
}

type entry struct {
	task    Task
	trigger chan struct{}
	mu      sync.Mutex // held for the duration of a run
}

type Scheduler struct {
	locker  Locker
	lockTTL time.Duration
	log     *zap.Logger

	tasks map[string]*entry

	stop chan struct{}
	wg   sync.WaitGroup

	startOnce sync.Once
	stopOnce  sync.Once
}

func New(opts Options) *Scheduler {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	ttl := opts.LockTTL
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &Scheduler{
		locker:  opts.Locker,
		lockTTL: ttl,
		log:     log,
		tasks:   make(map[string]*entry),
		stop:    make(chan struct{}),
	}
}

// Add registers a task. It must be called before Start.
func (s *Scheduler) Add(t Task) error {
	if t.Name == "" || t.Run == nil {
		return fmt.Errorf("task needs a name and a run func")
	}
	if _, ok := s.tasks[t.Name]; ok {
		return fmt.Errorf("task %q already registered", t.Name)
	}
	s.tasks[t.Name] = &entry{task: t, trigger: make(chan struct{}, 1)}
	return nil
}

func (s *Scheduler) Tasks() []string {
	names := make([]string, 0, len(s.tasks))
	for n := range s.tasks {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func (s *Scheduler) Start(ctx context.Context) {
	s.startOnce.Do(func() {
		for _, e := range s.tasks {
			s.wg.Add(1)
			go s.loop(ctx, e)
		}
		s.log.Info("scheduler started", zap.Strings("tasks", s.Tasks()))
	})
}

// Stop halts all task loops and waits for in-flight runs to return.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		close(s.stop)
		s.wg.Wait()
		s.log.Info("scheduler stopped")
	})
}

// Trigger queues an out-of-band run. At most one run is queued per task.
func (s *Scheduler) Trigger(name string) error {
	e, ok := s.tasks[name]
	if !ok {
		return ErrUnknownTask
	}
	select {
	case e.trigger <- struct{}{}:
		return nil
	default:
		return ErrPending
	}
}

// RunOnce runs a task synchronously, waiting for any in-flight run of the
// same task to finish first.
func (s *Scheduler) RunOnce(ctx context.Context, name string) error {
	e, ok := s.tasks[name]
	if !ok {
		return ErrUnknownTask
	}
	return s.execute(ctx, e)
}

func (s *Scheduler) loop(ctx context.Context, e *entry) {
	defer s.wg.Done()

	var tick <-chan time.Time
	if e.task.Interval > 0 {
		ticker := time.NewTicker(e.task.Interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stop:
			return
		case <-e.trigger:
		case <-tick:
		}
		if err := s.execute(ctx, e); err != nil && !errors.Is(err, ErrLocked) {
			s.log.Error("task failed", zap.String("task", e.task.Name), zap.Error(err))
		}
	}
}

func (s *Scheduler) execute(ctx context.Context, e *entry) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	name := e.task.Name
	if s.locker != nil {
		unlock, ok, err := s.locker.TryLock(ctx, lockKey(name), s.lockTTL)
		if err != nil {
			metrics.SweepErrorsTotal.WithLabelValues(name).Inc()
			return fmt.Errorf("lock %s: %w", name, err)
		}
		if !ok {
			s.log.Info("task locked by another instance, skipping", zap.String("task", name))
			return ErrLocked
		}
		defer func() {
			// the run may have consumed ctx, release on a fresh one
			rctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := unlock(rctx); err != nil {
				s.log.Warn("release task lock", zap.String("task", name), zap.Error(err))
			}
		}()
	}

	start := time.Now()
	err := e.task.Run(ctx)
	metrics.SweepDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.SweepErrorsTotal.WithLabelValues(name).Inc()
		return err
	}
	return nil
}

func lockKey(task string) string { return "vpsbill:lock:" + task }
