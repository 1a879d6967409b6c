package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"NewsDigest/internal/ports"
)

// CronScheduler triggers the job on a standard five-field cron expression.
type CronScheduler struct {
	expr     string
	location *time.Location
	logger   *zap.Logger

	mu   sync.Mutex
	cron *cron.Cron
}

var _ ports.Scheduler = (*CronScheduler)(nil)

// NewCronScheduler validates expr up front; loc defaults to UTC.
func NewCronScheduler(expr string, loc *time.Location, logger *zap.Logger) (*CronScheduler, error) {
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if _, err := cron.ParseStandard(expr); err != nil {
		return nil, fmt.Errorf("invalid cron expression %q: %w", expr, err)
	}
	return &CronScheduler{expr: expr, location: loc, logger: logger}, nil
}

// Start registers job and begins firing. Runs never overlap; a trigger that
// arrives while the previous run is still going is skipped.
func (c *CronScheduler) Start(ctx context.Context, job func(time.Time)) error {
	if job == nil {
		return errors.New("cron job is nil")
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cron != nil {
		return errors.New("cron scheduler already started")
	}

	c.cron = cron.New(
		cron.WithLocation(c.location),
		cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
	)
	if _, err := c.cron.AddFunc(c.expr, func() {
		trigger := time.Now().In(c.location)
		c.logger.Info("cron trigger", zap.Time("at", trigger))
		job(trigger)
	}); err != nil {
		c.cron = nil
		return fmt.Errorf("schedule job: %w", err)
	}

	c.cron.Start()
	c.logger.Info("cron scheduler started", zap.String("cron", c.expr), zap.String("timezone", c.location.String()))

	go func() {
		<-ctx.Done()
		_ = c.Stop(context.Background())
	}()
	return nil
}

// Next reports when the job fires next; zero before Start.
func (c *CronScheduler) Next() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cron == nil {
		return time.Time{}
	}
	entries := c.cron.Entries()
	if len(entries) == 0 {
		return time.Time{}
	}
	return entries[0].Next
}

// Stop prevents new triggers and waits for a running job until ctx ends.
func (c *CronScheduler) Stop(ctx context.Context) error {
	c.mu.Lock()
	running := c.cron
	c.cron = nil
	c.mu.Unlock()

	if running == nil {
		return nil
	}
	select {
	case <-running.Stop().Done():
		c.logger.Info("cron scheduler stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
