package journal

import (
	"encoding/csv"
	"os"
	"strconv"
	"time"
)

// CSV writes events and equity snapshots to two separate CSV files,
// flushing after every record so a crashed run still leaves a readable
// trail.
type CSV struct {
	events *csv.Writer
	equity *csv.Writer
	ef, qf *os.File
}

func NewCSV(eventsPath, equityPath string) (*CSV, error) {
	ef, err := os.Create(eventsPath)
	if err != nil {
		return nil, err
	}
	qf, err := os.Create(equityPath)
	if err != nil {
		ef.Close()
		return nil, err
	}

	ew := csv.NewWriter(ef)
	qw := csv.NewWriter(qf)

	if err := ew.Write([]string{"time", "action", "symbol", "side", "size", "price", "reason", "details"}); err != nil {
		return nil, err
	}
	if err := qw.Write([]string{"time", "balance", "equity", "collateral", "unrealized_pnl"}); err != nil {
		return nil, err
	}

	ew.Flush()
	if err := ew.Error(); err != nil {
		return nil, err
	}
	qw.Flush()
	if err := qw.Error(); err != nil {
		return nil, err
	}

	return &CSV{events: ew, equity: qw, ef: ef, qf: qf}, nil
}

func (j *CSV) RecordEvent(e Event) error {
	err := j.events.Write([]string{
		e.Time.Format(time.RFC3339),
		e.Action,
		e.Symbol,
		e.Side.String(),
		f(e.Size),
		f(e.Price),
		e.Reason,
		e.Details,
	})
	if err != nil {
		return err
	}
	j.events.Flush()
	return j.events.Error()
}

func (j *CSV) RecordEquity(s Snapshot) error {
	err := j.equity.Write([]string{
		s.Time.Format(time.RFC3339),
		f(s.Balance),
		f(s.Equity),
		f(s.Collateral),
		f(s.UnrealizedPnL),
	})
	if err != nil {
		return err
	}
	j.equity.Flush()
	return j.equity.Error()
}

func (j *CSV) Close() error {
	j.events.Flush()
	if err := j.events.Error(); err != nil {
		return err
	}
	j.equity.Flush()
	if err := j.equity.Error(); err != nil {
		return err
	}

	if err := j.ef.Close(); err != nil {
		return err
	}
	return j.qf.Close()
}

func f(x float64) string {
	return strconv.FormatFloat(x, 'f', 6, 64)
}
