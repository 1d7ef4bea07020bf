package messaging

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Scheduler runs fire-and-forget deferred tasks and recurring jobs. Each task
// fires on its own goroutine; there is no cancellation for one-shot tasks.
type Scheduler struct {
	cron   *cron.Cron
	logger *zap.Logger

	mu      sync.Mutex
	pending map[cron.EntryID]string
}

// NewScheduler builds a stopped scheduler. Call Start before tasks can fire.
func NewScheduler(logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = noOpLogger
	}
	adapter := cronLogger{logger: logger.Sugar()}
	return &Scheduler{
		cron: cron.New(
			cron.WithLogger(adapter),
			cron.WithChain(cron.Recover(adapter)),
		),
		logger:  logger,
		pending: make(map[cron.EntryID]string),
	}
}

// Start begins dispatching due tasks.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts dispatching and waits for running tasks to return.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

// At runs task once at the given wall-clock time. Past times fire immediately.
func (s *Scheduler) At(at time.Time, name string, task func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var id cron.EntryID
	id = s.cron.Schedule(&onceSchedule{at: at}, cron.FuncJob(func() {
		s.mu.Lock()
		delete(s.pending, id)
		s.mu.Unlock()
		s.cron.Remove(id)
		task()
	}))
	s.pending[id] = name
	s.logger.Debug("deferred task scheduled",
		zap.String("task", name),
		zap.Time("fire_at", at))
}

// Every registers a recurring job using a cron spec such as "@every 30s".
func (s *Scheduler) Every(spec, name string, job func()) error {
	_, err := s.cron.AddFunc(spec, job)
	if err != nil {
		return err
	}
	s.logger.Debug("recurring job registered", zap.String("job", name), zap.String("spec", spec))
	return nil
}

// Pending reports how many one-shot tasks have not fired yet.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// onceSchedule yields its instant on the first call and never again, which
// cron treats as an entry that will not run a second time.
type onceSchedule struct {
	at   time.Time
	used atomic.Bool
}

func (s *onceSchedule) Next(time.Time) time.Time {
	if s.used.Swap(true) {
		return time.Time{}
	}
	return s.at
}

type cronLogger struct {
	logger *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Errorw(msg, append(keysAndValues, "error", err)...)
}
