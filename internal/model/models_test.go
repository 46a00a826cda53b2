package model

import (
	"testing"
	"time"
)

func TestFilterValid(t *testing.T) {
	records := []QuoteRecord{
		{Measurement: "quotes", Fields: map[string]any{"last": 1.0}},
		{Measurement: "", Fields: map[string]any{"last": 1.0}},
		{Measurement: "quotes"},
		{Measurement: "quotes", Tags: map[string]string{"symbol": "AAPL"}, Fields: map[string]any{"volume": int64(3)}},
	}

	got := FilterValid(records)
	if len(got) != 2 {
		t.Fatalf("expected 2 valid records, got %d", len(got))
	}
	if got[1].Tags["symbol"] != "AAPL" {
		t.Errorf("order not preserved: %+v", got)
	}
	if records[1].Measurement != "" {
		t.Errorf("input slice was modified")
	}
}

func TestMarketSessionContains(t *testing.T) {
	day := time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)
	s := MarketSession{
		Date:   day,
		Status: SessionOpen,
		Open:   day.Add(6*time.Hour + 30*time.Minute),
		Close:  day.Add(13 * time.Hour),
	}

	if !s.Contains(day.Add(10 * time.Hour)) {
		t.Error("10:00 should be in session")
	}
	if !s.Contains(s.Open) {
		t.Error("open boundary should be in session")
	}
	if s.Contains(s.Close) {
		t.Error("close boundary should not be in session")
	}

	s.Status = SessionClosed
	if s.Contains(day.Add(10 * time.Hour)) {
		t.Error("closed session contains nothing")
	}
}
