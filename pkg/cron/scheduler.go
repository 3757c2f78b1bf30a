// Package cron runs named jobs on cron expressions, sleeping until each
// job's next tick.
package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/adhocore/gronx"

	"github.com/lunarite/guildbridge/pkg/logger"
)

// Job is one scheduled task.
type Job struct {
	Name string
	Expr string
	Run  func(ctx context.Context) error
}

type Scheduler struct {
	jobs []Job
}

func NewScheduler() *Scheduler {
	return &Scheduler{}
}

// Add registers a job; the expression is validated at Start.
func (s *Scheduler) Add(job Job) {
	s.jobs = append(s.jobs, job)
}

// Start validates all expressions and launches one goroutine per job.
// Jobs run until ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) error {
	for _, job := range s.jobs {
		if !gronx.IsValid(job.Expr) {
			return fmt.Errorf("cron: invalid expression %q for job %s", job.Expr, job.Name)
		}
	}
	for _, job := range s.jobs {
		go s.runJob(ctx, job)
	}
	return nil
}

func (s *Scheduler) runJob(ctx context.Context, job Job) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		next, err := gronx.NextTickAfter(job.Expr, time.Now(), false)
		if err != nil {
			logger.ErrorCF("cron", "Next tick computation failed", map[string]interface{}{
				"job":   job.Name,
				"error": err.Error(),
			})
			select {
			case <-time.After(30 * time.Second):
			case <-ctx.Done():
				return
			}
			continue
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(time.Until(next)):
		}

		if err := job.Run(ctx); err != nil {
			logger.WarnCF("cron", "Job failed", map[string]interface{}{
				"job":   job.Name,
				"error": err.Error(),
			})
		} else {
			logger.DebugCF("cron", "Job completed", map[string]interface{}{
				"job": job.Name,
			})
		}
	}
}
