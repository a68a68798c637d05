package store

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/quantdesk/fno-md-ingest/internal/depth"
)

// InsertDepthSnapshot inserts all levels of a completed snapshot into
// depth_levels_200 in one batched statement (a staged CopyFrom merged
// with ON CONFLICT DO NOTHING, matching UpsertTicks's pattern in
// ticks.go), idempotent across duplicate timestamps via the composite
// primary key.
func (s *Store) InsertDepthSnapshot(ctx context.Context, snap depth.Snapshot, timeout time.Duration) error {
	ctx, cancel := batchExecTimeout(ctx, timeout)
	defer cancel()

	securityID := strconv.Itoa(int(snap.SecurityID))
	rows := make([][]any, 0, len(snap.Bids)+len(snap.Asks))
	for i, l := range snap.Bids {
		rows = append(rows, []any{snap.Time, securityID, "bid", i + 1, l.Price, l.Quantity, l.Orders})
	}
	for i, l := range snap.Asks {
		rows = append(rows, []any{snap.Time, securityID, "ask", i + 1, l.Price, l.Quantity, l.Orders})
	}
	if len(rows) == 0 {
		return nil
	}

	tx, err := s.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("store: insert depth begin: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `CREATE TEMP TABLE depth_levels_staging (LIKE depth_levels_200 INCLUDING DEFAULTS) ON COMMIT DROP`); err != nil {
		return fmt.Errorf("store: insert depth staging: %w", err)
	}

	columns := []string{"time", "security_id", "side", "level_num", "price", "quantity", "orders"}
	if _, err := tx.CopyFrom(ctx, pgx.Identifier{"depth_levels_staging"}, columns, pgx.CopyFromRows(rows)); err != nil {
		return fmt.Errorf("store: insert depth copy: %w", err)
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO depth_levels_200 SELECT * FROM depth_levels_staging
		ON CONFLICT (time, security_id, side, level_num) DO NOTHING`); err != nil {
		return fmt.Errorf("store: insert depth merge: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("store: insert depth commit: %w", err)
	}
	return nil
}
