package alpha

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

const pnlDateLayout = "2006-01-02"

// PnLPoint is one dated cumulative profit-and-loss value.
type PnLPoint struct {
	Date  time.Time
	Value float64
}

// PnL is either the scalar total the platform puts in a statistics block or
// the dated series returned by the pnl recordset. Total always holds the
// final cumulative value.
type PnL struct {
	Total  float64
	Points []PnLPoint
}

// UnmarshalJSON accepts a number, null, or a list of [date, value, ...]
// records. Extra columns after the first value are ignored.
func (p *PnL) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*p = PnL{}
		return nil
	}

	if data[0] != '[' {
		var total float64
		if err := json.Unmarshal(data, &total); err != nil {
			return fmt.Errorf("pnl: %w", err)
		}
		*p = PnL{Total: total}
		return nil
	}

	points, err := ParsePnLRecords(data)
	if err != nil {
		return err
	}
	*p = PnL{Points: points}
	if len(points) > 0 {
		p.Total = points[len(points)-1].Value
	}
	return nil
}

// MarshalJSON writes the series when present, the scalar total otherwise.
func (p PnL) MarshalJSON() ([]byte, error) {
	if len(p.Points) == 0 {
		return json.Marshal(p.Total)
	}
	records := make([][2]interface{}, len(p.Points))
	for i, pt := range p.Points {
		records[i] = [2]interface{}{pt.Date.Format(pnlDateLayout), pt.Value}
	}
	return json.Marshal(records)
}

// ParsePnLRecords decodes a recordset "records" array. Rows with a null
// value carry the previous value forward.
func ParsePnLRecords(data []byte) ([]PnLPoint, error) {
	var rows [][]json.RawMessage
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("pnl records: %w", err)
	}

	points := make([]PnLPoint, 0, len(rows))
	var last float64
	for i, row := range rows {
		if len(row) < 2 {
			return nil, fmt.Errorf("pnl record %d: want date and value, got %d columns", i, len(row))
		}

		var ds string
		if err := json.Unmarshal(row[0], &ds); err != nil {
			return nil, fmt.Errorf("pnl record %d date: %w", i, err)
		}
		date, err := time.Parse(pnlDateLayout, ds)
		if err != nil {
			return nil, fmt.Errorf("pnl record %d date: %w", i, err)
		}

		var v *float64
		if err := json.Unmarshal(row[1], &v); err != nil {
			return nil, fmt.Errorf("pnl record %d value: %w", i, err)
		}
		if v != nil {
			last = *v
		}
		points = append(points, PnLPoint{Date: date, Value: last})
	}
	return points, nil
}
