package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/quantdesk/fno-md-ingest/internal/tick"
)

// UpsertTicks executes one batched UPSERT keyed on (time,
// instrument_token), as the persistence workers (C4) require: a
// database error here is the caller's signal to nack the whole batch
// and retry with backoff, never to drop rows.
func (s *Store) UpsertTicks(ctx context.Context, batch []tick.NormalizedTick, timeout time.Duration) error {
	if len(batch) == 0 {
		return nil
	}
	ctx, cancel := batchExecTimeout(ctx, timeout)
	defer cancel()

	rows := make([][]any, 0, len(batch))
	for _, t := range batch {
		bidP, bidQ, bidO := levelArrays(t.Bids)
		askP, askQ, askO := levelArrays(t.Asks)
		rows = append(rows, []any{
			t.Time, t.InstrumentToken,
			t.LastPrice, t.AvgTradePrice, t.Open, t.High, t.Low, t.Close, t.PrevClose,
			t.LastTradedQty, t.VolumeTraded, t.TotalBuyQty, t.TotalSellQty, t.OI, t.OIDayHigh, t.OIDayLow,
			bidP, bidQ, bidO, askP, askQ, askO,
			t.TradingSymbol, t.Exchange, t.Segment, t.InstrumentType,
			t.Change, t.ChangePercent, t.Spread, t.Mid, t.OrderImbalance,
		})
	}

	tx, err := s.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("store: upsert ticks begin: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `CREATE TEMP TABLE ticks_staging (LIKE ticks INCLUDING DEFAULTS) ON COMMIT DROP`); err != nil {
		return fmt.Errorf("store: upsert ticks staging: %w", err)
	}

	columns := []string{
		"time", "instrument_token",
		"last_price", "avg_trade_price", "open", "high", "low", "close", "prev_close",
		"last_traded_qty", "volume_traded", "total_buy_qty", "total_sell_qty", "oi", "oi_day_high", "oi_day_low",
		"bid_prices", "bid_qtys", "bid_orders", "ask_prices", "ask_qtys", "ask_orders",
		"trading_symbol", "exchange", "segment", "instrument_type",
		"change", "change_percent", "spread", "mid", "order_imbalance",
	}
	if _, err := tx.CopyFrom(ctx, pgx.Identifier{"ticks_staging"}, columns, pgx.CopyFromRows(rows)); err != nil {
		return fmt.Errorf("store: upsert ticks copy: %w", err)
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO ticks SELECT * FROM ticks_staging
		ON CONFLICT (time, instrument_token) DO UPDATE SET
			last_price = EXCLUDED.last_price,
			volume_traded = EXCLUDED.volume_traded,
			oi = EXCLUDED.oi,
			bid_prices = EXCLUDED.bid_prices,
			ask_prices = EXCLUDED.ask_prices,
			change = EXCLUDED.change,
			change_percent = EXCLUDED.change_percent,
			spread = EXCLUDED.spread,
			mid = EXCLUDED.mid,
			order_imbalance = EXCLUDED.order_imbalance`); err != nil {
		return fmt.Errorf("store: upsert ticks merge: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("store: upsert ticks commit: %w", err)
	}
	return nil
}

func levelArrays(levels [5]tick.Level) ([5]float64, [5]int32, [5]int16) {
	var prices [5]float64
	var qtys [5]int32
	var orders [5]int16
	for i, l := range levels {
		prices[i] = l.Price
		qtys[i] = l.Quantity
		orders[i] = l.OrderCount
	}
	return prices, qtys, orders
}
