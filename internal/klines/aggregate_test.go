package klines

import (
	"encoding/json"
	"reflect"
	"testing"
)

func row(vals ...any) []any { return vals }

func TestAggregateDropsZeroSignalRows(t *testing.T) {
	rows := []any{
		row(float64(1000), "0", "5", "1", "0", "0", "0", "50", float64(3)),
		row(float64(2000), "0", "5", "1", "0", "0", "0", "0", float64(0)),
		row(float64(3000), "0", "5", "1", "0", "0", "0", "0", float64(2)),
		row(float64(4000), "0", "5", "1", "0", "0", "0", "12.9", float64(0)),
	}
	got := Aggregate(rows)
	if len(got) != 3 {
		t.Fatalf("got %d points, want 3 (zero-signal row kept?)", len(got))
	}
	if got[0].Timestamp != 1000 || got[1].Timestamp != 3000 || got[2].Timestamp != 4000 {
		t.Fatalf("unexpected points: %+v", got)
	}
	if got[2].VolumeUSD != 12 {
		t.Fatalf("volume not truncated: %d", got[2].VolumeUSD)
	}
}

func TestAggregateRiskThresholds(t *testing.T) {
	// riskLevel is a step function of (high-low)/low: 0 for <=2%,
	// 1 for (2%,5%], 2 for >5%.
	tests := []struct {
		high string
		low  string
		want int64
	}{
		{"100", "100", 0},
		{"102", "100", 0},
		{"102.01", "100", 1},
		{"105", "100", 1},
		{"105.01", "100", 2},
		{"500", "100", 2},
		{"10", "0", 0}, // zero low: spread treated as no-risk
	}
	for _, tt := range tests {
		rows := []any{row(float64(1000), "0", tt.high, tt.low, "0", "0", "0", "10", float64(1))}
		got := Aggregate(rows)
		if len(got) != 1 {
			t.Fatalf("high=%s low=%s: row dropped", tt.high, tt.low)
		}
		if got[0].Risk != tt.want {
			t.Fatalf("high=%s low=%s: risk=%d, want %d", tt.high, tt.low, got[0].Risk, tt.want)
		}
	}
}

func TestAggregateRowLocalRisk(t *testing.T) {
	// Each row's risk comes from its own high/low; the second row's zero
	// volume and tx count drop it regardless.
	rows := []any{
		row(float64(1000), "0", "5", "1", "0", "0", "0", "50", float64(3)),
		row(float64(2000), "0", "5", "1", "0", "0", "0", "0", float64(0)),
	}
	got := Aggregate(rows)
	if len(got) != 1 {
		t.Fatalf("got %d points, want 1", len(got))
	}
	p := got[0]
	if p.Timestamp != 1000 || p.VolumeUSD != 50 || p.TxCount != 3 || p.Risk != 2 {
		t.Fatalf("unexpected point: %+v", p)
	}
}

func TestAggregateSkipsUnparseableRows(t *testing.T) {
	rows := []any{
		row("not-a-ts", "0", "5", "1", "0", "0", "0", "50", float64(3)),
		row(float64(1000), "0", "5", "1", "0", "0", "0", "50", "bogus"),
		row(float64(2000), "0"), // too short
		"not even an array",
		row(float64(3000), "0", "5", "1", "0", "0", "0", "50", float64(3)),
	}
	got := Aggregate(rows)
	if len(got) != 1 || got[0].Timestamp != 3000 {
		t.Fatalf("unexpected points: %+v", got)
	}
}

func TestAggregateUnparseablePricesCoerceToZero(t *testing.T) {
	// Price fields follow the lenient path: garbage becomes zero, the row
	// survives on its volume.
	rows := []any{row(float64(1000), "0", "??", "??", "0", "0", "0", "50", float64(1))}
	got := Aggregate(rows)
	if len(got) != 1 {
		t.Fatalf("row dropped")
	}
	if got[0].Risk != 0 {
		t.Fatalf("risk=%d, want 0", got[0].Risk)
	}
}

func TestAggregateMissingTxCountDefaultsZero(t *testing.T) {
	rows := []any{row(float64(1000), "0", "5", "1", "0", "0", "0", "50")}
	got := Aggregate(rows)
	if len(got) != 1 || got[0].TxCount != 0 {
		t.Fatalf("unexpected points: %+v", got)
	}
}

func TestAggregatePreservesOrderAndDuplicates(t *testing.T) {
	rows := []any{
		row(float64(2000), "0", "1", "1", "0", "0", "0", "10", float64(1)),
		row(float64(1000), "0", "1", "1", "0", "0", "0", "10", float64(1)),
		row(float64(1000), "0", "1", "1", "0", "0", "0", "10", float64(1)),
	}
	got := Aggregate(rows)
	if len(got) != 3 {
		t.Fatalf("got %d points, want 3", len(got))
	}
	if got[0].Timestamp != 2000 || got[1].Timestamp != 1000 || got[2].Timestamp != 1000 {
		t.Fatalf("order or duplicates not preserved: %+v", got)
	}
}

func TestAggregateIdempotent(t *testing.T) {
	rows := []any{
		row(float64(1000), "0", "110", "100", "0", "0", "0", "42.7", float64(5)),
		row(float64(2000), "0", "103", "100", "0", "0", "0", "0", float64(9)),
	}
	first := Aggregate(rows)
	second := Aggregate(rows)
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("aggregation not idempotent:\n%+v\n%+v", first, second)
	}
}

func TestRiskPointJSONShape(t *testing.T) {
	b, err := json.Marshal(RiskPoint{Timestamp: 1000, VolumeUSD: 50, TxCount: 3, Risk: 2})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(b) != "[1000,50,3,2]" {
		t.Fatalf("marshal = %s", b)
	}
	var p RiskPoint
	if err := json.Unmarshal(b, &p); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if p.Timestamp != 1000 || p.VolumeUSD != 50 || p.TxCount != 3 || p.Risk != 2 {
		t.Fatalf("roundtrip mismatch: %+v", p)
	}
}
