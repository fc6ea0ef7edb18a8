package server

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/gorhill/cronexpr"
	"github.com/redis/go-redis/v9"

	"github.com/mohammad-safakhou/aiworker/internal/store"
	"github.com/mohammad-safakhou/aiworker/provider"
)

// ErrUnknownJob means no configured job matches the requested name.
var ErrUnknownJob = errors.New("unknown job")

// Scheduler fires the report jobs on their cron cadences. Locking goes
// through redis so only one replica runs a given job per due window.
type Scheduler struct {
	Store    *store.Store
	Rdb      *redis.Client
	Provider provider.Provider
	Jobs     []Job
	Stop     chan struct{}
	Logger   *log.Logger
}

func (s *Scheduler) Start() {
	ticker := time.NewTicker(1 * time.Minute)
	go func() {
		for {
			select {
			case <-s.Stop:
				ticker.Stop()
				return
			case <-ticker.C:
				s.tick()
			}
		}
	}()
}

func (s *Scheduler) tick() {
	ctx := context.Background()
	for _, j := range s.Jobs {
		last, err := s.Store.LatestRunTime(ctx, j.Name)
		if err != nil {
			s.Logger.Printf("loading last run for %s failed: %v", j.Name, err)
			continue
		}
		if !isDue(j.Cron, last) {
			continue
		}

		// distributed lock to avoid duplicate runs across replicas
		lockKey := ""
		if s.Rdb != nil {
			lockKey = "sched:lock:" + j.Name
			ok, err := s.Rdb.SetNX(ctx, lockKey, "1", 2*time.Minute).Result()
			if err != nil {
				s.Logger.Printf("acquiring lock for %s failed: %v", j.Name, err)
				continue
			}
			if !ok {
				continue
			}
		}

		runID, err := s.Store.CreateRun(ctx, j.Name, store.RunStatusRunning)
		if err != nil {
			s.Logger.Printf("creating run for %s failed: %v", j.Name, err)
			s.releaseLock(ctx, lockKey)
			continue
		}
		go func(j Job, runID, lockKey string) {
			defer s.releaseLock(context.Background(), lockKey)
			s.execute(ctx, j, runID)
		}(j, runID, lockKey)
	}
}

// RunNow executes the named job immediately, outside its cadence.
func (s *Scheduler) RunNow(ctx context.Context, name string) (string, error) {
	for _, j := range s.Jobs {
		if j.Name == name {
			runID, err := s.Store.CreateRun(ctx, j.Name, store.RunStatusRunning)
			if err != nil {
				return "", err
			}
			// detach from the request context; the job outlives the response
			go s.execute(context.Background(), j, runID)
			return runID, nil
		}
	}
	return "", ErrUnknownJob
}

// Execute runs a job against an existing Run row, used by the dashboard's
// one-off task endpoint.
func (s *Scheduler) Execute(ctx context.Context, j Job, runID string) {
	s.execute(ctx, j, runID)
}

// JobByKind finds the configured job for a report kind.
func (s *Scheduler) JobByKind(kind string) (Job, bool) {
	for _, j := range s.Jobs {
		if j.Kind == kind {
			return j, true
		}
	}
	return Job{}, false
}

func (s *Scheduler) execute(ctx context.Context, j Job, runID string) {
	if err := s.Store.SetRunStatus(ctx, runID, store.RunStatusRunning); err != nil {
		s.Logger.Printf("marking run %s running failed: %v", runID, err)
	}
	if err := j.run(ctx, s.Store, s.Provider, s.Logger); err != nil {
		s.Logger.Printf("job %s failed: %v", j.Name, err)
		_ = s.Store.FinishRun(ctx, runID, store.RunStatusFailed, strPtr(err.Error()))
		return
	}
	s.Logger.Printf("job %s completed", j.Name)
	_ = s.Store.FinishRun(ctx, runID, store.RunStatusCompleted, nil)
}

// isDue determines if a job with cronSpec should run now based on last run time.
// Supports "@daily", "@hourly", and standard 5-field cron expressions.
func isDue(cronSpec string, last *time.Time) bool {
	now := time.Now()
	switch cronSpec {
	case "@daily":
		if last == nil {
			return true
		}
		return now.Sub(*last) >= 24*time.Hour
	case "@hourly":
		if last == nil {
			return true
		}
		return now.Sub(*last) >= time.Hour
	default:
		expr, err := cronexpr.Parse(cronSpec)
		if err != nil {
			// Fallback: treat as @daily if invalid
			if last == nil {
				return true
			}
			return now.Sub(*last) >= 24*time.Hour
		}
		if last == nil {
			// If never run, due now
			return true
		}
		next := expr.Next(*last)
		return !next.After(now)
	}
}

func (s *Scheduler) releaseLock(ctx context.Context, lockKey string) {
	if s.Rdb == nil || lockKey == "" {
		return
	}
	if err := s.Rdb.Del(ctx, lockKey).Err(); err != nil {
		s.Logger.Printf("releasing lock %s failed: %v", lockKey, err)
	}
}

func strPtr(s string) *string { return &s }
