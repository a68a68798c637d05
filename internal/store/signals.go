package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/quantdesk/fno-md-ingest/internal/signalengine"
)

// InsertSignal writes one depth_signals row per 10-second evaluation,
// with key_levels and absorptions stored as JSON documents.
func (s *Store) InsertSignal(ctx context.Context, row signalengine.SignalRow) error {
	keyLevels, err := json.Marshal(row.KeyLevels)
	if err != nil {
		return fmt.Errorf("store: marshal key_levels: %w", err)
	}
	absorptions, err := json.Marshal(row.Absorptions)
	if err != nil {
		return fmt.Errorf("store: marshal absorptions: %w", err)
	}

	_, err = s.Pool.Exec(ctx, `
		INSERT INTO depth_signals (
			time, security_id, current_price, key_levels, absorptions,
			pressure_30s, pressure_60s, pressure_120s, market_state
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (time, security_id) DO NOTHING`,
		row.Time, row.SecurityID, row.CurrentPrice, keyLevels, absorptions,
		row.Pressure30s, row.Pressure60s, row.Pressure120s, row.MarketState,
	)
	if err != nil {
		return fmt.Errorf("store: insert signal: %w", err)
	}
	return nil
}
