package journal

import (
	"database/sql"
	"fmt"
	"time"
)

// GetTrade returns a single trade record by ID.
func (j *SQLite) GetTrade(tradeID string) (Record, error) {
	row := j.db.QueryRow(`
		SELECT trade_id, symbol, side, amount, strategy, timeframe, entry_price, exit_price,
		       result, profit, confidence, risk_score, open_time, close_time
		FROM trades
		WHERE trade_id = ?`, tradeID)

	rec, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return Record{}, fmt.Errorf("trade %q not found", tradeID)
	}
	return rec, err
}

// ListTradesBySymbol returns all trades for a symbol, oldest first.
func (j *SQLite) ListTradesBySymbol(symbol string) ([]Record, error) {
	rows, err := j.db.Query(`
		SELECT trade_id, symbol, side, amount, strategy, timeframe, entry_price, exit_price,
		       result, profit, confidence, risk_score, open_time, close_time
		FROM trades
		WHERE symbol = ?
		ORDER BY open_time ASC`, symbol)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collect(rows)
}

// ListTradesOpenedBetween returns trades whose open_time is within
// [start, end).
func (j *SQLite) ListTradesOpenedBetween(start, end time.Time) ([]Record, error) {
	rows, err := j.db.Query(`
		SELECT trade_id, symbol, side, amount, strategy, timeframe, entry_price, exit_price,
		       result, profit, confidence, risk_score, open_time, close_time
		FROM trades
		WHERE open_time >= ? AND open_time < ?
		ORDER BY open_time ASC`, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collect(rows)
}

// Summarize aggregates decided trades across the whole journal.
func (j *SQLite) Summarize() (Summary, error) {
	row := j.db.QueryRow(`
		SELECT COUNT(*),
		       COALESCE(SUM(CASE WHEN result = 'win' THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(CASE WHEN result = 'loss' THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(profit), 0)
		FROM trades`)

	var s Summary
	if err := row.Scan(&s.Trades, &s.Wins, &s.Losses, &s.NetProfit); err != nil {
		return Summary{}, err
	}
	return s, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (Record, error) {
	var rec Record
	err := row.Scan(
		&rec.TradeID, &rec.Symbol, &rec.Side, &rec.Amount, &rec.Strategy, &rec.Timeframe,
		&rec.EntryPrice, &rec.ExitPrice, &rec.Result, &rec.Profit,
		&rec.Confidence, &rec.RiskScore, &rec.OpenTime, &rec.CloseTime,
	)
	return rec, err
}

func collect(rows *sql.Rows) ([]Record, error) {
	var out []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
