package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"dues/internal/log"
	"dues/internal/services"
)

const (
	DefaultReportSchedule = "0 6 * * *"
	reportTimeout         = 2 * time.Minute
	reportTopDebtors      = 10
)

// DuesSummarizer is the slice of MemberService the report needs.
type DuesSummarizer interface {
	DuesSummary(ctx context.Context) (services.DuesSummary, error)
}

// ReportJob logs the dues summary on a cron schedule.
type ReportJob struct {
	summarizer DuesSummarizer
	schedule   string
	logger     *log.Logger

	mu      sync.Mutex
	cron    *cron.Cron
	running bool
}

// NewReportJob validates schedule (standard five-field cron syntax).
func NewReportJob(summarizer DuesSummarizer, schedule string, logger *log.Logger) (*ReportJob, error) {
	if schedule == "" {
		schedule = DefaultReportSchedule
	}
	if _, err := cron.ParseStandard(schedule); err != nil {
		return nil, fmt.Errorf("parse report schedule %q: %w", schedule, err)
	}
	if logger == nil {
		logger = log.Discard()
	}
	return &ReportJob{
		summarizer: summarizer,
		schedule:   schedule,
		logger:     logger.WithComponent(log.ComponentReport),
	}, nil
}

// Run computes and logs one report.
func (j *ReportJob) Run(ctx context.Context) (services.DuesSummary, error) {
	start := time.Now()
	summary, err := j.summarizer.DuesSummary(ctx)
	if err != nil {
		return services.DuesSummary{}, fmt.Errorf("dues summary: %w", err)
	}

	args := []any{
		"today", summary.Today.String(),
		"members", summary.Members,
		"total_outstanding", summary.TotalOutstanding.String(),
		"debtors", len(summary.Debtors),
		log.FieldDuration, time.Since(start).Milliseconds(),
	}
	for status, n := range summary.ByStatus {
		args = append(args, "status_"+string(status), n)
	}
	j.logger.InfoContext(ctx, "Dues report", args...)

	for i, d := range summary.Debtors {
		if i == reportTopDebtors {
			break
		}
		j.logger.InfoContext(ctx, "Outstanding dues",
			log.FieldMemberID, d.MemberID,
			"name", d.Name,
			"months", d.Months,
			log.FieldAmountCents, d.TotalDue.Cents)
	}
	return summary, nil
}

// Start schedules Run. Returns an error if already running.
func (j *ReportJob) Start(ctx context.Context) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.running {
		return fmt.Errorf("report job is already running")
	}

	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	_, err := c.AddFunc(j.schedule, func() {
		runCtx, cancel := context.WithTimeout(ctx, reportTimeout)
		defer cancel()
		if _, err := j.Run(runCtx); err != nil {
			j.logger.ErrorContext(runCtx, "Dues report failed", log.FieldError, err)
		}
	})
	if err != nil {
		return fmt.Errorf("schedule report: %w", err)
	}
	c.Start()

	j.cron = c
	j.running = true
	j.logger.InfoContext(ctx, "Report job started", "schedule", j.schedule)
	return nil
}

// Stop waits for a running report to finish or ctx to expire.
func (j *ReportJob) Stop(ctx context.Context) error {
	j.mu.Lock()
	if !j.running {
		j.mu.Unlock()
		return nil
	}
	c := j.cron
	j.running = false
	j.mu.Unlock()

	select {
	case <-c.Stop().Done():
		j.logger.InfoContext(ctx, "Report job stopped gracefully")
		return nil
	case <-ctx.Done():
		j.logger.WarnContext(ctx, "Report job stop timed out")
		return ctx.Err()
	}
}
