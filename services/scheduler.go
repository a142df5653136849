package services

import (
	"context"
	"fmt"
	"time"

	"github.com/alitto/pond/v2"
	"github.com/go-co-op/gocron/v2"
	"go.uber.org/zap"

	"luminar-api/logger"
)

// Scheduler runs the chapter lifecycle jobs
type Scheduler struct {
	Chapters *ChapterService
	Interval time.Duration
	AutoEnd  bool
	PoolSize int

	sched gocron.Scheduler
}

func NewScheduler(chapters *ChapterService, interval time.Duration, autoEnd bool, poolSize int) *Scheduler {
	if poolSize <= 0 {
		poolSize = 1
	}
	return &Scheduler{Chapters: chapters, Interval: interval, AutoEnd: autoEnd, PoolSize: poolSize}
}

// Start registers the lifecycle job and starts the scheduler. The job never
// runs concurrently with itself.
func (s *Scheduler) Start(ctx context.Context) error {
	sched, err := gocron.NewScheduler(gocron.WithClock(s.Chapters.Clock))
	if err != nil {
		return fmt.Errorf("failed to create scheduler: %w", err)
	}

	if _, err := sched.NewJob(
		gocron.DurationJob(s.Interval),
		gocron.NewTask(func() { s.RunOnce(ctx) }),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithName("chapter-lifecycle"),
	); err != nil {
		return fmt.Errorf("failed to register lifecycle job: %w", err)
	}

	sched.Start()
	s.sched = sched
	logger.Info("Chapter scheduler started", zap.Duration("interval", s.Interval), zap.Bool("auto_end", s.AutoEnd))
	return nil
}

func (s *Scheduler) Shutdown() error {
	if s.sched == nil {
		return nil
	}
	return s.sched.Shutdown()
}

// RunOnce activates due chapters and, with AutoEnd, closes expired ones
func (s *Scheduler) RunOnce(ctx context.Context) {
	activated, err := s.Chapters.ActivateDue(ctx)
	if err != nil {
		logger.ErrorCtx(ctx, "Failed to activate chapters", err)
	} else if activated > 0 {
		logger.InfoCtx(ctx, "Activated chapters", zap.Int64("count", activated))
	}

	if !s.AutoEnd {
		return
	}

	due, err := s.Chapters.DueForClose(ctx)
	if err != nil {
		logger.ErrorCtx(ctx, "Failed to list chapters due for close", err)
		return
	}
	if len(due) == 0 {
		return
	}

	pool := pond.NewPool(s.PoolSize, pond.WithContext(ctx))
	for _, id := range due {
		pool.Submit(func() {
			if _, err := s.Chapters.EndChapter(ctx, id); err != nil {
				logger.ErrorCtx(ctx, "Failed to auto-end chapter", err, zap.Uint("chapter_id", id))
			}
		})
	}
	pool.StopAndWait()
}
