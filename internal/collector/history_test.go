package collector_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"quote-ingestor/internal/collector"
	"quote-ingestor/internal/testutils"
)

func TestBackfill_Run(t *testing.T) {
	fetcher := &testutils.FakeFetcher{
		HistoryRaw: map[string]json.RawMessage{
			"AAPL": json.RawMessage(`[{"date":"2024-03-01","open":1,"high":2,"low":0.5,"close":1.5,"volume":100},
				{"date":"2024-03-04","open":1.5,"high":2.5,"low":1,"close":2,"volume":120}]`),
			// 只有一天时 provider 返回对象
			"TSLA": json.RawMessage(`{"date":"2024-03-04","open":200,"high":210,"low":190,"close":205,"volume":9}`),
		},
		FailSymbols: map[string]error{"BAC": errors.New("timeout")},
	}
	sink := &testutils.RecordingSink{}
	b := collector.NewBackfill(fetcher, sink, "historical_stocks", zap.NewNop())

	end := time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)
	if err := b.Run(context.Background(), []string{"AAPL", "BAC", "TSLA"}, end, 30); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if sink.WriteCount() != 1 {
		t.Fatalf("expected one bulk write, got %d", sink.WriteCount())
	}
	records := sink.Writes[0].Records
	if len(records) != 3 {
		t.Fatalf("expected 3 history records, got %d", len(records))
	}
	last := records[2]
	if last.Measurement != collector.HistoryMeasurement || last.Tags["symbol"] != "TSLA" || last.Tags["date"] != "2024-03-04" {
		t.Errorf("unexpected record: %+v", last)
	}
	if !last.Time.Equal(end) {
		t.Errorf("time = %s, want %s", last.Time, end)
	}
}

func TestExpirations_Poll(t *testing.T) {
	fetcher := &testutils.FakeFetcher{
		ExpiryRaw: map[string]json.RawMessage{
			"AAPL": json.RawMessage(`["2024-03-08","2024-03-15"]`),
			"SPY":  json.RawMessage(`"2024-03-08"`),
		},
	}
	sink := &testutils.RecordingSink{}
	e := collector.NewExpirations(fetcher, sink, []string{"AAPL", "SPY"}, "options", zap.NewNop())

	if err := e.Poll(context.Background()); err != nil {
		t.Fatalf("Poll: %v", err)
	}
	records := sink.Writes[0].Records
	if len(records) != 3 {
		t.Fatalf("expected 3 records, got %d", len(records))
	}
	if records[2].Tags["symbol"] != "SPY" || records[2].Tags["dates"] != "2024-03-08" {
		t.Errorf("unexpected record: %+v", records[2])
	}
}

func TestOptionChains_NearestExpirations(t *testing.T) {
	fetcher := &testutils.FakeFetcher{
		ExpiryRaw: map[string]json.RawMessage{
			"AAPL": json.RawMessage(`["2024-03-08","2024-03-15","2024-03-22"]`),
			"SPY":  json.RawMessage(`"2024-03-08"`),
		},
		ChainRaw: map[string]json.RawMessage{
			"AAPL@2024-03-08": json.RawMessage(`[
				{"symbol":"AAPL240308C00170000","underlying":"AAPL","option_type":"call","expiration_date":"2024-03-08","strike":170,"bid":1.2,"ask":1.3,"open_interest":500},
				{"symbol":"AAPL240308P00170000","underlying":"AAPL","option_type":"put","expiration_date":"2024-03-08","strike":170,"bid":0.9,"ask":1.0,"open_interest":300}]`),
			// 只有一个合约时 provider 返回对象
			"SPY@2024-03-08": json.RawMessage(`{"symbol":"SPY240308C00500000","underlying":"SPY","option_type":"call","expiration_date":"2024-03-08","strike":500,"last":2.5}`),
		},
		FailSymbols: map[string]error{"AAPL@2024-03-15": errors.New("timeout")},
	}
	sink := &testutils.RecordingSink{}
	o := collector.NewOptionChains(fetcher, sink, []string{"AAPL", "SPY"}, 2, "options", zap.NewNop())

	if err := o.Poll(context.Background()); err != nil {
		t.Fatalf("Poll: %v", err)
	}

	want := []string{"AAPL@2024-03-08", "AAPL@2024-03-15", "SPY@2024-03-08"}
	if len(fetcher.ChainCalls) != len(want) {
		t.Fatalf("chain calls = %v, want %v", fetcher.ChainCalls, want)
	}
	for i := range want {
		if fetcher.ChainCalls[i] != want[i] {
			t.Fatalf("chain calls = %v, want %v", fetcher.ChainCalls, want)
		}
	}

	records := sink.Writes[0].Records
	if len(records) != 3 {
		t.Fatalf("expected 3 contract records, got %d", len(records))
	}
	spy := records[2]
	if spy.Measurement != collector.OptionChainMeasurement || spy.Tags["underlying"] != "SPY" || spy.Tags["option_type"] != "call" {
		t.Errorf("unexpected record: %+v", spy)
	}
	if spy.Fields["strike"] != 500.0 {
		t.Errorf("strike = %v, want 500", spy.Fields["strike"])
	}
}
