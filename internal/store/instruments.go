package store

import (
	"context"
	"fmt"

	"github.com/quantdesk/fno-md-ingest/internal/instrument"
)

// LoadActiveInstruments implements instrument.SQLLoader: one SQL read
// of every row with is_active = true.
func (s *Store) LoadActiveInstruments(ctx context.Context) ([]instrument.Instrument, error) {
	rows, err := s.Pool.Query(ctx, `
		SELECT instrument_token, security_id, trading_symbol, exchange, segment,
		       instrument_type, expiry, strike, tick_size, lot_size, source, is_active
		FROM instruments
		WHERE is_active = true`)
	if err != nil {
		return nil, fmt.Errorf("store: load instruments: %w", err)
	}
	defer rows.Close()

	var out []instrument.Instrument
	for rows.Next() {
		var inst instrument.Instrument
		var securityID *string
		var instType string
		if err := rows.Scan(
			&inst.InstrumentToken, &securityID, &inst.TradingSymbol, &inst.Exchange, &inst.Segment,
			&instType, &inst.Expiry, &inst.Strike, &inst.TickSize, &inst.LotSize, &inst.Source, &inst.IsActive,
		); err != nil {
			return nil, fmt.Errorf("store: scan instrument: %w", err)
		}
		if securityID != nil {
			inst.SecurityID = *securityID
		}
		inst.InstrumentType = instrument.Type(instType)
		out = append(out, inst)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: load instruments: %w", err)
	}
	return out, nil
}
