package journal

import (
	"database/sql"

	_ "github.com/mattn/go-sqlite3"

	"github.com/marketsim/papertrader/market"
)

// SQLite persists the journal in a single sqlite3 database, creating the
// schema on open.
type SQLite struct {
	db *sql.DB
}

func NewSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, err
	}

	return &SQLite{db: db}, nil
}

func (j *SQLite) RecordEvent(e Event) error {
	_, err := j.db.Exec(`
		INSERT INTO events
		(time, action, symbol, side, size, price, reason, details)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.Time, e.Action, e.Symbol, int(e.Side), e.Size, e.Price, e.Reason, e.Details,
	)
	return err
}

func (j *SQLite) RecordEquity(s Snapshot) error {
	_, err := j.db.Exec(`
		INSERT INTO equity
		(time, balance, equity, collateral, unrealized_pnl)
		VALUES (?, ?, ?, ?, ?)`,
		s.Time, s.Balance, s.Equity, s.Collateral, s.UnrealizedPnL,
	)
	return err
}

func (j *SQLite) Close() error {
	return j.db.Close()
}

func scanEvent(rows *sql.Rows) (Event, error) {
	var e Event
	var side int
	err := rows.Scan(&e.Time, &e.Action, &e.Symbol, &side, &e.Size, &e.Price, &e.Reason, &e.Details)
	e.Side = market.Side(side)
	return e, err
}
