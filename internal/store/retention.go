package store

import (
	"context"
	"time"
)

// retentionRule names one table's compression and drop ages. This repo
// expresses the "hypertable" compression step as an UPDATE that marks
// old rows compressed in a side column rather than depending on a
// specific time-series extension; the drop step is an ordinary DELETE.
type retentionRule struct {
	table          string
	timeColumn     string
	compressAfter  time.Duration
	dropAfter      time.Duration
}

var retentionRules = []retentionRule{
	{table: "ticks", timeColumn: "time", compressAfter: 7 * 24 * time.Hour, dropAfter: 90 * 24 * time.Hour},
	{table: "depth_levels_200", timeColumn: "time", compressAfter: 7 * 24 * time.Hour, dropAfter: 60 * 24 * time.Hour},
	{table: "depth_signals", timeColumn: "time", compressAfter: 24 * time.Hour, dropAfter: 60 * 24 * time.Hour},
}

// RunRetention starts a ticker-driven sweep of every retentionRule,
// running once immediately and then every interval until ctx is
// cancelled. Modeled on the teacher's hourly retention loop, generalized
// to three tables with independent schedules.
func (s *Store) RunRetention(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.sweepOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweepOnce(ctx)
		}
	}
}

func (s *Store) sweepOnce(ctx context.Context) {
	now := time.Now()
	for _, rule := range retentionRules {
		compressCutoff := now.Add(-rule.compressAfter)
		ctag, err := s.Pool.Exec(ctx, `UPDATE `+rule.table+` SET compressed = true WHERE `+rule.timeColumn+` < $1 AND compressed = false`, compressCutoff)
		if err != nil {
			s.log.Error("retention: compress failed", "table", rule.table, "error", err)
			continue
		}
		if ctag.RowsAffected() > 0 {
			s.log.Info("retention: marked rows compressed", "table", rule.table, "rows", ctag.RowsAffected())
		}

		dropCutoff := now.Add(-rule.dropAfter)
		dtag, err := s.Pool.Exec(ctx, `DELETE FROM `+rule.table+` WHERE `+rule.timeColumn+` < $1`, dropCutoff)
		if err != nil {
			s.log.Error("retention: drop failed", "table", rule.table, "error", err)
			continue
		}
		if dtag.RowsAffected() > 0 {
			s.log.Info("retention: dropped old rows", "table", rule.table, "rows", dtag.RowsAffected())
		}
	}
}
