package journal

const schema = `
CREATE TABLE IF NOT EXISTS events (
	time DATETIME NOT NULL,
	action TEXT NOT NULL,
	symbol TEXT NOT NULL,
	side INTEGER NOT NULL,
	size REAL NOT NULL,
	price REAL NOT NULL,
	reason TEXT NOT NULL,
	details TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS equity (
	time DATETIME NOT NULL,
	balance REAL NOT NULL,
	equity REAL NOT NULL,
	collateral REAL NOT NULL,
	unrealized_pnl REAL NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_events_symbol ON events(symbol);
CREATE INDEX IF NOT EXISTS idx_events_time ON events(time);
CREATE INDEX IF NOT EXISTS idx_equity_time ON equity(time);
`
