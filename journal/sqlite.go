package journal

import (
	"database/sql"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

type SQLite struct {
	db *sql.DB
}

func NewSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, err
	}

	return &SQLite{db: db}, nil
}

func (j *SQLite) RecordTrade(r Record) error {
	_, err := j.db.Exec(`
		INSERT INTO trades
		(trade_id, symbol, side, amount, strategy, timeframe, entry_price, exit_price,
		 result, profit, confidence, risk_score, open_time, close_time)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.TradeID, r.Symbol, r.Side, r.Amount, r.Strategy, r.Timeframe,
		r.EntryPrice, r.ExitPrice, r.Result, r.Profit, r.Confidence, r.RiskScore,
		r.OpenTime, r.CloseTime,
	)
	return err
}

// ResolveTrade fills in the outcome columns of a previously recorded
// trade.
func (j *SQLite) ResolveTrade(tradeID, result string, profit, exitPrice float64, closeTime time.Time) error {
	_, err := j.db.Exec(`
		UPDATE trades
		SET result = ?, profit = ?, exit_price = ?, close_time = ?
		WHERE trade_id = ?`,
		result, profit, exitPrice, closeTime, tradeID,
	)
	return err
}

func (j *SQLite) Close() error {
	return j.db.Close()
}
