package klines

import (
	"encoding/json"
	"strconv"

	"github.com/shopspring/decimal"
)

// Raw row layout (positional): 0 = open time (epoch ms), 2 = high, 3 = low,
// 7 = USD limit volume, 8 = transaction count (absent on some chains).
const (
	idxTimestamp = 0
	idxHigh      = 2
	idxLow       = 3
	idxVolumeUSD = 7
	idxTxCount   = 8

	minRowLen = 8
)

// Risk thresholds on intra-bar spread percent. This is a volatility-proxy
// heuristic, not a statistical model.
var (
	spreadMedium = decimal.NewFromInt(2)
	spreadHigh   = decimal.NewFromInt(5)
	hundred      = decimal.NewFromInt(100)
)

// RiskPoint is one published hour, serialized as the positional array
// [timestampMs, volumeUsd, txCount, riskLevel].
type RiskPoint struct {
	Timestamp int64
	VolumeUSD int64
	TxCount   int64
	Risk      int64
}

func (p RiskPoint) MarshalJSON() ([]byte, error) {
	return json.Marshal([4]int64{p.Timestamp, p.VolumeUSD, p.TxCount, p.Risk})
}

func (p *RiskPoint) UnmarshalJSON(data []byte) error {
	var arr [4]int64
	if err := json.Unmarshal(data, &arr); err != nil {
		return err
	}
	p.Timestamp, p.VolumeUSD, p.TxCount, p.Risk = arr[0], arr[1], arr[2], arr[3]
	return nil
}

// Aggregate turns raw kline rows into the compact risk series. Pure
// function: identical input yields an identical sequence.
//
// Rows failing positional or numeric parsing are skipped individually.
// Rows with zero volume and zero transactions carry no signal and are
// dropped. Upstream order is preserved verbatim, duplicates included.
func Aggregate(rows []any) []RiskPoint {
	var out []RiskPoint
	for _, raw := range rows {
		row, ok := raw.([]any)
		if !ok || len(row) < minRowLen {
			continue
		}

		ts, ok := asInt64(row[idxTimestamp])
		if !ok {
			continue
		}

		high := asDecimal(row[idxHigh])
		low := asDecimal(row[idxLow])
		volume := asDecimal(row[idxVolumeUSD])

		var tx int64
		if len(row) > idxTxCount {
			tx, ok = asInt64(row[idxTxCount])
			if !ok {
				continue
			}
		}

		var risk int64
		if low.IsPositive() {
			spread := high.Sub(low).Div(low).Mul(hundred)
			switch {
			case spread.GreaterThan(spreadHigh):
				risk = 2
			case spread.GreaterThan(spreadMedium):
				risk = 1
			}
		}

		if volume.IsPositive() || tx > 0 {
			out = append(out, RiskPoint{
				Timestamp: ts,
				VolumeUSD: volume.IntPart(),
				TxCount:   tx,
				Risk:      risk,
			})
		}
	}
	return out
}

// asDecimal coerces a row field to a decimal, treating anything
// unparseable (or empty) as zero, mirroring upstream rows that pad fields
// with "" instead of omitting them.
func asDecimal(v any) decimal.Decimal {
	switch val := v.(type) {
	case string:
		d, err := decimal.NewFromString(val)
		if err != nil {
			return decimal.Zero
		}
		return d
	case float64:
		return decimal.NewFromFloat(val)
	case json.Number:
		d, err := decimal.NewFromString(val.String())
		if err != nil {
			return decimal.Zero
		}
		return d
	default:
		return decimal.Zero
	}
}

// asInt64 coerces the strictly-required integer fields; failure here
// invalidates the whole row.
func asInt64(v any) (int64, bool) {
	switch val := v.(type) {
	case float64:
		return int64(val), true
	case string:
		n, err := strconv.ParseInt(val, 10, 64)
		if err != nil {
			return 0, false
		}
		return n, true
	case json.Number:
		n, err := val.Int64()
		if err != nil {
			return 0, false
		}
		return n, true
	default:
		return 0, false
	}
}
