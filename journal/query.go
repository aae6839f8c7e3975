package journal

import "time"

// EventsForSymbol returns every recorded event for one symbol, oldest
// first.
func (j *SQLite) EventsForSymbol(symbol string) ([]Event, error) {
	rows, err := j.db.Query(`
		SELECT time, action, symbol, side, size, price, reason, details
		FROM events
		WHERE symbol = ?
		ORDER BY time ASC`, symbol)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// EventsBetween returns events with time in [start, end), oldest first.
func (j *SQLite) EventsBetween(start, end time.Time) ([]Event, error) {
	rows, err := j.db.Query(`
		SELECT time, action, symbol, side, size, price, reason, details
		FROM events
		WHERE time >= ? AND time < ?
		ORDER BY time ASC`, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// EquityBetween returns equity snapshots with time in [start, end),
// oldest first.
func (j *SQLite) EquityBetween(start, end time.Time) ([]Snapshot, error) {
	rows, err := j.db.Query(`
		SELECT time, balance, equity, collateral, unrealized_pnl
		FROM equity
		WHERE time >= ? AND time < ?
		ORDER BY time ASC`, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Snapshot
	for rows.Next() {
		var s Snapshot
		if err := rows.Scan(&s.Time, &s.Balance, &s.Equity, &s.Collateral, &s.UnrealizedPnL); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
