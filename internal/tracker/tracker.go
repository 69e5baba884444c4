// internal/tracker/tracker.go
package tracker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"golang.org/x/sync/errgroup"

	"package-health/internal/database"
	"package-health/internal/npm"
	"package-health/internal/report"
)

const defaultConcurrency = 5

// Builder produces the health report of a package.
type Builder interface {
	Build(ctx context.Context, packageRef string) (*report.Report, error)
}

// TxBeginner starts database transactions. *pgxpool.Pool satisfies it.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Tracker periodically rebuilds the reports of a watch list and stores each one as a snapshot.
type Tracker struct {
	db          TxBeginner
	builder     Builder
	logger      *slog.Logger
	packages    []string
	interval    time.Duration
	concurrency int
	querier     func(pgx.Tx) database.Querier
}

// NewTracker creates a new Tracker instance. Every watched package must be a valid
// npm name or npm package URL.
func NewTracker(db TxBeginner, builder Builder, logger *slog.Logger, packages []string, interval time.Duration, concurrency int) (*Tracker, error) {
	names := make([]string, 0, len(packages))
	for _, p := range packages {
		name, err := npm.ParsePackageRef(p)
		if err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}

	return &Tracker{
		db:          db,
		builder:     builder,
		logger:      logger,
		packages:    names,
		interval:    interval,
		concurrency: concurrency,
		querier:     func(tx pgx.Tx) database.Querier { return database.New(tx) },
	}, nil
}

// Start runs a refresh cycle immediately and then on every interval until ctx is done.
func (t *Tracker) Start(ctx context.Context) {
	t.logger.Info("Starting tracker", "interval", t.interval.String(), "concurrency", t.concurrency, "packages", len(t.packages))
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	t.runCycle(ctx) // Initial refresh

	for {
		select {
		case <-ticker.C:
			t.runCycle(ctx)
		case <-ctx.Done():
			t.logger.Info("Tracker shutting down", "reason", ctx.Err())
			return
		}
	}
}

// runCycle refreshes every watched package concurrently. A failing package is
// logged and does not stop the others.
func (t *Tracker) runCycle(ctx context.Context) {
	t.logger.Info("Starting new refresh cycle")
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(t.concurrency)

	for _, name := range t.packages {
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}
			err := t.trackPackage(gctx, name)
			if err != nil && !errors.Is(err, context.Canceled) {
				t.logger.Error("Failed to refresh package", "package", name, "error", err)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		t.logger.Error("Refresh cycle finished with an error", "error", err)
	} else {
		t.logger.Info("Refresh cycle finished")
	}
}

// trackPackage builds the report of one package and stores it in a transaction.
func (t *Tracker) trackPackage(ctx context.Context, name string) error {
	logger := t.logger.With("package", name)
	logger.Info("Refreshing package")

	r, err := t.builder.Build(ctx, name)
	if err != nil {
		return err
	}

	tx, err := t.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) // Rollback is a no-op if the transaction is already committed.

	snapshot, err := t.saveSnapshot(ctx, t.querier(tx), r)
	if err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return err
	}

	logger.Info("Stored health snapshot", "snapshot_id", snapshot.ID, "errors", len(r.Errors))
	return nil
}

func (t *Tracker) saveSnapshot(ctx context.Context, q database.Querier, r *report.Report) (database.HealthSnapshot, error) {
	params, err := SnapshotParams(r)
	if err != nil {
		return database.HealthSnapshot{}, err
	}
	return q.CreateSnapshot(ctx, params)
}

// SnapshotParams flattens a report into a snapshot row. The full report is kept as JSON.
func SnapshotParams(r *report.Report) (database.CreateSnapshotParams, error) {
	body, err := json.Marshal(r)
	if err != nil {
		return database.CreateSnapshotParams{}, fmt.Errorf("encoding report of %s: %w", r.PackageName, err)
	}

	params := database.CreateSnapshotParams{
		PackageName:               r.PackageName,
		RetrievedAt:               pgtype.Timestamptz{Time: r.RetrievedAt, Valid: true},
		CommunityAdoption:         string(r.HealthRatings.CommunityAdoption),
		ReleaseManagement:         string(r.HealthRatings.ReleaseManagement),
		ImplementationFootprint:   string(r.HealthRatings.ImplementationFootprint),
		DocumentationCompleteness: string(r.HealthRatings.DocumentationCompleteness),
		MaintenanceFrequency:      string(r.HealthRatings.MaintenanceFrequency),
		Responsiveness:            string(r.HealthRatings.Responsiveness),
		Errors:                    r.Errors,
		Report:                    body,
	}
	if params.Errors == nil {
		params.Errors = []string{}
	}
	if r.DownloadsData != nil {
		params.MonthlyDownloads = pgtype.Int8{Int64: r.DownloadsData.MonthlyDownloads, Valid: true}
	}
	if repo := r.GitHubData.Repo; repo != nil && repo.Stars != nil {
		params.Stars = pgtype.Int4{Int32: int32(*repo.Stars), Valid: true}
	}
	return params, nil
}
