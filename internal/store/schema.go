package store

// schemaStatements define the four tables the core reads and writes.
// ticks, depth_levels_200, and depth_signals are modeled as
// hypertables (time-partitioned, periodically compressed and pruned);
// this schema expresses that with ordinary tables plus the retention
// sweepers in retention.go, since the core treats "hypertable" as
// "append-only table with a compression/retention job" rather than
// depending on a specific extension being installed.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS instruments (
		instrument_token INTEGER PRIMARY KEY,
		security_id      TEXT UNIQUE,
		trading_symbol   TEXT NOT NULL,
		exchange         TEXT NOT NULL,
		segment          TEXT NOT NULL,
		instrument_type  TEXT NOT NULL,
		expiry           DATE,
		strike           DOUBLE PRECISION,
		tick_size        DOUBLE PRECISION NOT NULL,
		lot_size         INTEGER NOT NULL,
		source           TEXT NOT NULL,
		is_active        BOOLEAN NOT NULL DEFAULT true
	)`,

	`CREATE TABLE IF NOT EXISTS ticks (
		time             TIMESTAMPTZ NOT NULL,
		instrument_token INTEGER NOT NULL,
		compressed       BOOLEAN NOT NULL DEFAULT false,
		last_price       DOUBLE PRECISION,
		avg_trade_price  DOUBLE PRECISION,
		open             DOUBLE PRECISION,
		high             DOUBLE PRECISION,
		low              DOUBLE PRECISION,
		close            DOUBLE PRECISION,
		prev_close       DOUBLE PRECISION,
		last_traded_qty  INTEGER,
		volume_traded    INTEGER,
		total_buy_qty    INTEGER,
		total_sell_qty   INTEGER,
		oi               INTEGER,
		oi_day_high      INTEGER,
		oi_day_low       INTEGER,
		bid_prices       DOUBLE PRECISION[5],
		bid_qtys         INTEGER[5],
		bid_orders       SMALLINT[5],
		ask_prices       DOUBLE PRECISION[5],
		ask_qtys         INTEGER[5],
		ask_orders       SMALLINT[5],
		trading_symbol   TEXT,
		exchange         TEXT,
		segment          TEXT,
		instrument_type  TEXT,
		change           DOUBLE PRECISION,
		change_percent   DOUBLE PRECISION,
		spread           DOUBLE PRECISION,
		mid              DOUBLE PRECISION,
		order_imbalance  INTEGER,
		PRIMARY KEY (time, instrument_token)
	)`,

	`CREATE TABLE IF NOT EXISTS depth_levels_200 (
		time        TIMESTAMPTZ NOT NULL,
		security_id TEXT NOT NULL,
		compressed  BOOLEAN NOT NULL DEFAULT false,
		side        TEXT NOT NULL,
		level_num   SMALLINT NOT NULL,
		price       DOUBLE PRECISION NOT NULL,
		quantity    INTEGER NOT NULL,
		orders      INTEGER NOT NULL,
		PRIMARY KEY (time, security_id, side, level_num)
	)`,

	`CREATE TABLE IF NOT EXISTS depth_signals (
		time            TIMESTAMPTZ NOT NULL,
		security_id     TEXT NOT NULL,
		compressed      BOOLEAN NOT NULL DEFAULT false,
		current_price   DOUBLE PRECISION,
		key_levels      JSONB,
		absorptions     JSONB,
		pressure_30s    DOUBLE PRECISION,
		pressure_60s    DOUBLE PRECISION,
		pressure_120s   DOUBLE PRECISION,
		market_state    TEXT,
		PRIMARY KEY (time, security_id)
	)`,
}
