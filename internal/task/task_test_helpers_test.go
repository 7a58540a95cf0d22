package task

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/quill-api/internal/domain"
)

func setupTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

// fakeSource serves canned item IDs per status and records the cutoffs
// it was asked for. Items listed in updated are filtered by cutoff; the
// rest count as arbitrarily old.
type fakeSource struct {
	mu       sync.Mutex
	byStatus map[domain.ItemStatus][]uuid.UUID
	updated  map[uuid.UUID]time.Time
	cutoffs  []time.Time
	err      error
}

func (s *fakeSource) ListItemIDsByStatus(
	ctx context.Context,
	status domain.ItemStatus,
	olderThan time.Time,
) ([]uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cutoffs = append(s.cutoffs, olderThan)
	if s.err != nil {
		return nil, s.err
	}
	var out []uuid.UUID
	for _, id := range s.byStatus[status] {
		if at, ok := s.updated[id]; ok && !olderThan.IsZero() && !at.Before(olderThan) {
			continue
		}
		out = append(out, id)
	}
	return out, nil
}

// recordingProcessor records processed item IDs and can block until
// released.
type recordingProcessor struct {
	mu        sync.Mutex
	processed []uuid.UUID
	gate      chan struct{}
	err       error
}

func (p *recordingProcessor) ProcessItem(ctx context.Context, itemID uuid.UUID) error {
	if p.gate != nil {
		select {
		case <-p.gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.processed = append(p.processed, itemID)
	return p.err
}

func (p *recordingProcessor) Processed() []uuid.UUID {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]uuid.UUID(nil), p.processed...)
}
