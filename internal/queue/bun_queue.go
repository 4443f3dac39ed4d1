package queue

import (
	"context"
	"database/sql"
	"time"

	"github.com/lotustrader/learningcore/internal/coreerr"
	"github.com/lotustrader/learningcore/internal/domain"
	"github.com/lotustrader/learningcore/internal/store"
	"github.com/rs/zerolog"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
)

// BunQueue is the durable Queue (C2) over the outbox_items table the
// Strand Store (C1) co-commits into (spec §4.2). It shares the
// store.OutboxModel row shape so a row written by BunStore.Append's
// transaction is immediately visible to Claim.
type BunQueue struct {
	db                 *bun.DB
	defaultMaxAttempts int
	log                zerolog.Logger
}

// NewBunQueue opens a connection to the same database BunStore writes
// to. dsn is typically identical between the two.
func NewBunQueue(dsn string, defaultMaxAttempts int, log zerolog.Logger) (*BunQueue, error) {
	if defaultMaxAttempts <= 0 {
		defaultMaxAttempts = 5
	}
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	db := bun.NewDB(sqldb, pgdialect.New())
	return &BunQueue{db: db, defaultMaxAttempts: defaultMaxAttempts, log: log}, nil
}

// Enqueue implements store.Outbox, inserting directly rather than going
// through BunStore.Append's transaction — used only for items that did
// not arrive via the store's own co-commit (e.g. manual backfill).
// BunStore.Append writes the outbox row itself in the same transaction
// as the strand, so this path is not on the hot path (spec §4.2).
func (q *BunQueue) Enqueue(ctx context.Context, strandID string, kind domain.StrandKind) error {
	row := &store.OutboxModel{
		ID:          strandID,
		StrandID:    strandID,
		Kind:        string(kind),
		Status:      string(StatusPending),
		AvailableAt: time.Now().UTC(),
		CreatedAt:   time.Now().UTC(),
	}
	_, err := q.db.NewInsert().Model(row).On("CONFLICT (id) DO NOTHING").Exec(ctx)
	if err != nil {
		return coreerr.NewTransient("enqueue outbox row", err)
	}
	return nil
}

// Claim atomically marks up to n pending (or visibility-expired
// processing) rows as processing using SELECT ... FOR UPDATE SKIP
// LOCKED, so multiple dispatcher instances can drain the same queue
// concurrently without double-claiming a row.
func (q *BunQueue) Claim(ctx context.Context, n int, visibility time.Duration) ([]Item, error) {
	var claimed []Item
	err := q.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var rows []store.OutboxModel
		now := time.Now().UTC()
		err := tx.NewSelect().Model(&rows).
			Where("status IN (?, ?) AND available_at <= ?", string(StatusPending), string(StatusProcessing), now).
			OrderExpr("created_at ASC").
			Limit(n).
			For("UPDATE SKIP LOCKED").
			Scan(ctx)
		if err != nil {
			return err
		}
		for i := range rows {
			rows[i].Status = string(StatusProcessing)
			rows[i].Attempts++
			rows[i].AvailableAt = now.Add(visibility)
		}
		for i := range rows {
			if _, err := tx.NewUpdate().Model(&rows[i]).WherePK().Exec(ctx); err != nil {
				return err
			}
			claimed = append(claimed, Item{
				ID:          rows[i].ID,
				StrandID:    rows[i].StrandID,
				Kind:        domain.StrandKind(rows[i].Kind),
				Status:      Status(rows[i].Status),
				Attempts:    rows[i].Attempts,
				MaxAttempts: q.defaultMaxAttempts,
				AvailableAt: rows[i].AvailableAt,
				ParkReason:  rows[i].ParkReason,
			})
		}
		return nil
	})
	if err != nil {
		return nil, coreerr.NewTransient("claim outbox rows", err)
	}
	return claimed, nil
}

// Ack marks an item completed.
func (q *BunQueue) Ack(ctx context.Context, id string) error {
	_, err := q.db.NewUpdate().Model((*store.OutboxModel)(nil)).
		Set("status = ?", string(StatusCompleted)).
		Where("id = ?", id).Exec(ctx)
	if err != nil {
		return coreerr.NewTransient("ack outbox row", err)
	}
	return nil
}

// Nack returns an item to pending for retry, or parks it failed once
// retryable is false or attempts are exhausted.
func (q *BunQueue) Nack(ctx context.Context, id string, reason string, retryable bool) error {
	row := new(store.OutboxModel)
	if err := q.db.NewSelect().Model(row).Where("id = ?", id).Scan(ctx); err != nil {
		return coreerr.NewTransient("load outbox row for nack", err)
	}

	status := string(StatusPending)
	availableAt := time.Now().UTC()
	if !retryable || row.Attempts >= q.defaultMaxAttempts {
		status = string(StatusFailed)
	}
	_, err := q.db.NewUpdate().Model((*store.OutboxModel)(nil)).
		Set("status = ?", status).
		Set("available_at = ?", availableAt).
		Set("park_reason = ?", reason).
		Where("id = ?", id).Exec(ctx)
	if err != nil {
		return coreerr.NewTransient("nack outbox row", err)
	}
	return nil
}

// Depth reports the number of pending rows.
func (q *BunQueue) Depth(ctx context.Context) (int, error) {
	n, err := q.db.NewSelect().Model((*store.OutboxModel)(nil)).
		Where("status = ?", string(StatusPending)).Count(ctx)
	if err != nil {
		return 0, coreerr.NewTransient("count pending outbox rows", err)
	}
	return n, nil
}

// Close releases the underlying database connection.
func (q *BunQueue) Close() error {
	return q.db.Close()
}
