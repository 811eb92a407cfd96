package pipeline

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/technosupport/ts-evac/internal/metrics"
)

// Runner is one unit of scheduled work; satisfied by *Cycle.
type Runner interface {
	Run(ctx context.Context)
}

// Scheduler fires the pipeline at a fixed interval. A tick that arrives
// while the previous cycle is still running is skipped, never queued:
// a slow cycle must not build a backlog of stale work.
type Scheduler struct {
	Interval time.Duration
	Work     Runner

	busy     sync.Mutex
	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func NewScheduler(interval time.Duration, work Runner) *Scheduler {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Scheduler{
		Interval: interval,
		Work:     work,
		stopChan: make(chan struct{}),
	}
}

// Start launches the loop. The first cycle runs immediately so a restart
// does not leave displays a full interval behind.
func (s *Scheduler) Start() {
	s.wg.Add(1)
	go s.loop()
	log.Printf("[Scheduler] pipeline running every %s", s.Interval)
}

// Stop waits for an in-flight cycle to finish before returning.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stopChan) })
	s.wg.Wait()
}

// Tick runs one cycle unless another is in flight. Exposed so the admin
// surface can force a cycle outside the schedule.
func (s *Scheduler) Tick(ctx context.Context) bool {
	if !s.busy.TryLock() {
		metrics.CyclesSkipped.Inc()
		log.Println("[Scheduler] previous cycle still running, tick skipped")
		return false
	}
	defer s.busy.Unlock()
	s.Work.Run(ctx)
	return true
}

func (s *Scheduler) loop() {
	defer s.wg.Done()

	s.Tick(context.Background())

	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stopChan:
			return
		case <-ticker.C:
			s.Tick(context.Background())
		}
	}
}
