package task

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/quill-api/internal/domain"
	"github.com/phrazzld/quill-api/internal/redact"
)

// Monitor resubmits Items the database says are unfinished. It backs
// durable delivery for every dispatch backend: the items table is the
// queue of record, so anything lost from a queue is found here again.
type Monitor struct {
	source    ItemSource
	submitter Submitter
	age       time.Duration
	interval  time.Duration
	logger    *slog.Logger
}

// NewMonitor creates a Monitor. Items untouched for longer than age are
// considered stuck; Run checks every interval.
func NewMonitor(source ItemSource, submitter Submitter, age, interval time.Duration, logger *slog.Logger) *Monitor {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Monitor{
		source:    source,
		submitter: submitter,
		age:       age,
		interval:  interval,
		logger:    logger.With("component", "item_monitor"),
	}
}

// Recover resubmits every pending item, and every processing item that
// has not been touched for longer than the configured age. Younger
// processing items may still be running on another instance, and the
// stuck check picks them up once they age out.
func (m *Monitor) Recover(ctx context.Context) (int, error) {
	pending, err := m.source.ListItemIDsByStatus(ctx, domain.ItemStatusPending, time.Time{})
	if err != nil {
		return 0, fmt.Errorf("failed to get pending items: %w", err)
	}

	var cutoff time.Time
	if m.age > 0 {
		cutoff = time.Now().UTC().Add(-m.age)
	}
	processing, err := m.source.ListItemIDsByStatus(ctx, domain.ItemStatusProcessing, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to get processing items: %w", err)
	}

	m.logger.Info("recovering unfinished items",
		"pending_count", len(pending),
		"processing_count", len(processing))

	return m.submit(ctx, append(pending, processing...), "recovery"), nil
}

// CheckStuck resubmits items that have sat in pending or processing for
// longer than the configured age and returns how many were accepted.
// Pending items end up here when their dispatch was rejected.
func (m *Monitor) CheckStuck(ctx context.Context) (int, error) {
	if m.age <= 0 {
		return 0, nil
	}
	cutoff := time.Now().UTC().Add(-m.age)

	var stuck []uuid.UUID
	for _, status := range []domain.ItemStatus{domain.ItemStatusPending, domain.ItemStatusProcessing} {
		ids, err := m.source.ListItemIDsByStatus(ctx, status, cutoff)
		if err != nil {
			return 0, fmt.Errorf("failed to check for stuck %s items: %w", status, err)
		}
		stuck = append(stuck, ids...)
	}
	if len(stuck) > 0 {
		m.logger.Info("found stuck items", "count", len(stuck))
	}
	return m.submit(ctx, stuck, "stuck"), nil
}

// Run checks for stuck items every interval until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := m.CheckStuck(ctx); err != nil && ctx.Err() == nil {
				m.logger.Error("stuck item check failed", redact.ErrorAttr(err))
			}
		}
	}
}

func (m *Monitor) submit(ctx context.Context, ids []uuid.UUID, reason string) int {
	accepted := 0
	for _, id := range ids {
		if err := m.submitter.Submit(ctx, id); err != nil {
			m.logger.Error("failed to resubmit item",
				"item_id", id,
				"reason", reason,
				redact.ErrorAttr(err))
			continue
		}
		accepted++
	}
	return accepted
}
