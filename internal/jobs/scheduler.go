package jobs

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Task is a named piece of work fired once a day at a fixed UTC wall-clock
// time. CatchUp, when set, runs once at scheduler start before the first
// arming, covering firings missed while the process was down.
type Task struct {
	Name    string
	Hour    int
	Minute  int
	Run     func(ctx context.Context) error
	CatchUp func(ctx context.Context) error
}

// Scheduler fires registered tasks at their wall-clock trigger times until
// stopped. Each task gets its own worker goroutine so a slow or failing
// task never delays the others. A failed firing is logged and the task
// re-arms for the next day regardless.
type Scheduler struct {
	tasks []Task
	now   func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewScheduler() *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		now:    time.Now,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Register adds a task. Must be called before Start.
func (s *Scheduler) Register(task Task) {
	s.tasks = append(s.tasks, task)
}

// Start launches one worker per registered task.
func (s *Scheduler) Start() {
	for _, task := range s.tasks {
		s.wg.Add(1)
		go s.runTask(task)
	}
	log.Info().Int("tasks", len(s.tasks)).Msg("scheduler started")
}

// Stop cancels pending waits and blocks until every worker has exited.
// No task fires after Stop returns.
func (s *Scheduler) Stop() {
	s.cancel()
	s.wg.Wait()
	log.Info().Msg("scheduler stopped")
}

func (s *Scheduler) runTask(task Task) {
	defer s.wg.Done()

	if task.CatchUp != nil {
		s.fire(task.Name+"_catch_up", task.CatchUp)
	}

	for {
		delay := nextFireDelay(s.now().UTC(), task.Hour, task.Minute)
		log.Debug().Str("task", task.Name).Dur("delay", delay).Msg("task armed")

		timer := time.NewTimer(delay)
		select {
		case <-s.ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		s.fire(task.Name, task.Run)
	}
}

// fire invokes the callable with panic containment. Failures are an
// operational concern only and never reach the caller.
func (s *Scheduler) fire(name string, run func(ctx context.Context) error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Str("task", name).Interface("panic", r).Msg("scheduled task panicked")
		}
	}()

	if err := run(s.ctx); err != nil {
		log.Error().Err(err).Str("task", name).Msg("scheduled task failed")
		return
	}
	log.Info().Str("task", name).Msg("scheduled task completed")
}

// nextFireDelay computes the wait until the next occurrence of the given
// UTC wall-clock time: later today if it has not passed yet, otherwise
// tomorrow.
func nextFireDelay(now time.Time, hour, minute int) time.Duration {
	next := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, time.UTC)
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next.Sub(now)
}
