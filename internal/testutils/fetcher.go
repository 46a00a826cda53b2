package testutils

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

// FakeFetcher 返回预设的原始 payload
type FakeFetcher struct {
	Mu          sync.Mutex
	QuotesRaw   json.RawMessage
	QuotesErr   error
	QuoteCalls  [][]string
	HistoryRaw  map[string]json.RawMessage
	ExpiryRaw   map[string]json.RawMessage
	ChainRaw    map[string]json.RawMessage // key: symbol + "@" + expiration
	ChainCalls  []string
	FailSymbols map[string]error
}

func (f *FakeFetcher) Quotes(_ context.Context, symbols []string) (json.RawMessage, error) {
	f.Mu.Lock()
	defer f.Mu.Unlock()
	f.QuoteCalls = append(f.QuoteCalls, symbols)
	return f.QuotesRaw, f.QuotesErr
}

func (f *FakeFetcher) History(_ context.Context, symbol string, _, _ time.Time) (json.RawMessage, error) {
	if err := f.FailSymbols[symbol]; err != nil {
		return nil, err
	}
	return f.HistoryRaw[symbol], nil
}

func (f *FakeFetcher) OptionExpirations(_ context.Context, symbol string) (json.RawMessage, error) {
	if err := f.FailSymbols[symbol]; err != nil {
		return nil, err
	}
	return f.ExpiryRaw[symbol], nil
}

func (f *FakeFetcher) OptionChain(_ context.Context, symbol, expiration string) (json.RawMessage, error) {
	f.Mu.Lock()
	defer f.Mu.Unlock()
	key := symbol + "@" + expiration
	f.ChainCalls = append(f.ChainCalls, key)
	if err := f.FailSymbols[key]; err != nil {
		return nil, err
	}
	return f.ChainRaw[key], nil
}

// QuoteCallCount 返回 Quotes 的调用次数
func (f *FakeFetcher) QuoteCallCount() int {
	f.Mu.Lock()
	defer f.Mu.Unlock()
	return len(f.QuoteCalls)
}
