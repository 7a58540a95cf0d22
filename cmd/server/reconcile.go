package main

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/phrazzld/quill-api/internal/credits"
	"golang.org/x/sync/errgroup"
)

type ownerLister interface {
	ListOwnerIDs(ctx context.Context) ([]uuid.UUID, error)
}

type balanceAuditor interface {
	Audit(ctx context.Context, ownerID uuid.UUID) (credits.AuditReport, error)
}

// reconcileBalances audits every owner with at most concurrency audits in
// flight and returns the reports whose balance disagrees with the ledger,
// ordered by owner ID.
func reconcileBalances(
	ctx context.Context,
	owners ownerLister,
	auditor balanceAuditor,
	concurrency int,
	log *slog.Logger,
) ([]credits.AuditReport, error) {
	ids, err := owners.ListOwnerIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing owners: %w", err)
	}
	if concurrency < 1 {
		concurrency = 1
	}

	var (
		mu           sync.Mutex
		inconsistent []credits.AuditReport
	)

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for _, id := range ids {
		id := id
		g.Go(func() error {
			report, err := auditor.Audit(gCtx, id)
			if err != nil {
				return fmt.Errorf("auditing owner %s: %w", id, err)
			}
			if !report.Consistent {
				mu.Lock()
				inconsistent = append(inconsistent, report)
				mu.Unlock()
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.Slice(inconsistent, func(i, j int) bool {
		return inconsistent[i].OwnerID.String() < inconsistent[j].OwnerID.String()
	})
	log.Info("reconciliation completed",
		"owners", len(ids),
		"inconsistent", len(inconsistent))
	return inconsistent, nil
}
