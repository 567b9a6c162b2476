package services

import (
	"context"
	"fmt"
	"log"
	"time"

	"cater/internal/config"
	"cater/internal/domain"
	"cater/internal/metrics"

	"github.com/jinzhu/now"
	"github.com/robfig/cron/v3"
	"gorm.io/gorm"
)

// Scheduled job names
const (
	JobEventReminders   = "event_reminders"
	JobFeedbackRequests = "feedback_requests"
)

const defaultBatchSize = 50

// Scheduler runs the daily reminder and feedback-request sweeps
type Scheduler struct {
	db        *gorm.DB
	bookings  *BookingService
	cron      *cron.Cron
	loc       *time.Location
	batchSize int
	cfg       config.SchedulerConfig
	now       func() time.Time
}

// NewScheduler creates a scheduler. An unknown timezone falls back to UTC.
func NewScheduler(db *gorm.DB, bookings *BookingService, cfg config.SchedulerConfig) *Scheduler {
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		log.Printf("[SCHEDULER] Unknown timezone %q, using UTC: %v", cfg.Timezone, err)
		loc = time.UTC
	}
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	return &Scheduler{
		db:        db,
		bookings:  bookings,
		cron:      cron.New(cron.WithLocation(loc)),
		loc:       loc,
		batchSize: batchSize,
		cfg:       cfg,
		now:       time.Now,
	}
}

// Start registers both sweeps and starts the cron runner
func (s *Scheduler) Start() error {
	if _, err := s.cron.AddFunc(s.cfg.ReminderSpec, func() { s.run(JobEventReminders, s.SendEventReminders) }); err != nil {
		return fmt.Errorf("invalid reminder schedule %q: %w", s.cfg.ReminderSpec, err)
	}
	if _, err := s.cron.AddFunc(s.cfg.FeedbackSpec, func() { s.run(JobFeedbackRequests, s.SendFeedbackRequests) }); err != nil {
		return fmt.Errorf("invalid feedback request schedule %q: %w", s.cfg.FeedbackSpec, err)
	}
	s.cron.Start()
	log.Printf("[SCHEDULER] Started (reminders %q, feedback requests %q, tz %s)",
		s.cfg.ReminderSpec, s.cfg.FeedbackSpec, s.loc)
	return nil
}

// Stop stops the cron runner and waits for running jobs
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		log.Println("[SCHEDULER] Stopped")
	case <-ctx.Done():
		log.Println("[SCHEDULER] Stop timed out with jobs still running")
	}
}

func (s *Scheduler) run(job string, sweep func(context.Context) (int, error)) {
	start := time.Now()
	n, err := sweep(context.Background())
	metrics.RecordSchedulerRun(job, err)
	if err != nil {
		log.Printf("[SCHEDULER] %s failed after %d records: %v", job, n, err)
		return
	}
	log.Printf("[SCHEDULER] %s processed %d records in %v", job, n, time.Since(start))
}

// SendEventReminders messages customers whose event is tomorrow in the
// scheduler's timezone. Each booking is reminded at most once.
func (s *Scheduler) SendEventReminders(ctx context.Context) (int, error) {
	tomorrow := now.With(s.now().In(s.loc)).BeginningOfDay().AddDate(0, 0, 1)
	from := tomorrow.UTC()
	to := now.With(tomorrow).EndOfDay().UTC()

	query := s.db.WithContext(ctx).
		Preload("Customer").
		Where("state IN ?", []domain.BookingState{domain.BookingConfirmed, domain.BookingInProgress}).
		Where("reminder_sent_at IS NULL").
		Where("event_date BETWEEN ? AND ?", from, to)

	return s.sweep(ctx, JobEventReminders, query, func(ctx context.Context, b *domain.Booking) bool {
		return s.bookings.SendConfirmation(ctx, b, KindEventReminder)
	})
}

// SendFeedbackRequests asks for feedback on events completed during the last
// day that have neither a request nor feedback yet.
func (s *Scheduler) SendFeedbackRequests(ctx context.Context) (int, error) {
	current := s.now().UTC()
	hasFeedback := s.db.Model(&domain.Feedback{}).Select("1").Where("feedbacks.booking_id = bookings.id")

	query := s.db.WithContext(ctx).
		Preload("Customer").
		Where("state = ?", domain.BookingCompleted).
		Where("feedback_request_sent = ?", false).
		Where("event_date BETWEEN ? AND ?", current.Add(-24*time.Hour), current).
		Where("NOT EXISTS (?)", hasFeedback)

	return s.sweep(ctx, JobFeedbackRequests, query, func(ctx context.Context, b *domain.Booking) bool {
		return s.bookings.SendFeedbackRequest(ctx, b)
	})
}

// sweep walks the query in batches. A failing record is logged and counted
// without stopping the batch.
func (s *Scheduler) sweep(ctx context.Context, job string, query *gorm.DB, handle func(context.Context, *domain.Booking) bool) (int, error) {
	processed := 0
	var batch []domain.Booking
	res := query.FindInBatches(&batch, s.batchSize, func(tx *gorm.DB, n int) error {
		for i := range batch {
			status := s.handleOne(ctx, job, &batch[i], handle)
			metrics.RecordSchedulerRecord(job, status)
			processed++
		}
		return ctx.Err()
	})
	if res.Error != nil {
		return processed, fmt.Errorf("%s sweep: %w", job, res.Error)
	}
	return processed, nil
}

func (s *Scheduler) handleOne(ctx context.Context, job string, b *domain.Booking, handle func(context.Context, *domain.Booking) bool) (status string) {
	defer func() {
		if p := recover(); p != nil {
			log.Printf("[SCHEDULER] %s panicked on booking %s: %v", job, b.Reference, p)
			status = "error"
		}
	}()
	if handle(ctx, b) {
		return "sent"
	}
	return "skipped"
}
