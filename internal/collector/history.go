package collector

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"quote-ingestor/internal/model"
	"quote-ingestor/internal/storage"
)

const (
	HistoryMeasurement     = "historical_stocks"
	ExpirationMeasurement  = "options_expiration"
	OptionChainMeasurement = "option_chain"
)

// HistoryFetcher 历史日线与期权到期日接口
type HistoryFetcher interface {
	History(ctx context.Context, symbol string, start, end time.Time) (json.RawMessage, error)
	OptionExpirations(ctx context.Context, symbol string) (json.RawMessage, error)
}

// ChainFetcher 期权链接口
type ChainFetcher interface {
	OptionExpirations(ctx context.Context, symbol string) (json.RawMessage, error)
	OptionChain(ctx context.Context, symbol, expiration string) (json.RawMessage, error)
}

// Backfill 一次性拉取历史日线；已存在的数据不做覆盖处理
type Backfill struct {
	fetcher     HistoryFetcher
	sink        storage.Sink
	destination string
	logger      *zap.Logger
}

func NewBackfill(fetcher HistoryFetcher, sink storage.Sink, destination string, logger *zap.Logger) *Backfill {
	return &Backfill{
		fetcher:     fetcher,
		sink:        sink,
		destination: destination,
		logger:      logger.With(zap.String("component", "backfill")),
	}
}

// Collect 逐个 symbol 拉取 [start, end] 的日线，单个 symbol 失败只跳过该 symbol
func (b *Backfill) Collect(ctx context.Context, symbols []string, start, end time.Time) []model.QuoteRecord {
	var records []model.QuoteRecord
	for _, symbol := range symbols {
		raw, err := b.fetcher.History(ctx, symbol, start, end)
		if err != nil {
			b.logger.Warn("History fetch failed", zap.String("symbol", symbol), zap.Error(err))
			continue
		}
		days, err := Normalize(raw)
		if err != nil {
			b.logger.Warn("History payload malformed", zap.String("symbol", symbol), zap.Error(err))
			continue
		}
		for _, day := range days {
			rec := HistorySchema.Map(HistoryMeasurement, day)
			rec.Tags["symbol"] = symbol
			if d, err := time.Parse(time.DateOnly, rec.Tags["date"]); err == nil {
				rec.Time = d
			}
			records = append(records, rec)
		}
	}
	return model.FilterValid(records)
}

// Run 拉取最近 days 天的日线并写入
func (b *Backfill) Run(ctx context.Context, symbols []string, end time.Time, days int) error {
	start := end.AddDate(0, 0, -days)
	records := b.Collect(ctx, symbols, start, end)
	if len(records) == 0 {
		b.logger.Warn("Backfill returned no data", zap.Strings("symbols", symbols))
		return nil
	}
	if err := b.sink.Write(ctx, records, b.destination); err != nil {
		return fmt.Errorf("write history: %w", err)
	}
	b.logger.Info("Backfill written", zap.Int("count", len(records)), zap.String("destination", b.destination))
	return nil
}

// Expirations 采集期权到期日，每个 (symbol, 日期) 一条记录
type Expirations struct {
	fetcher     HistoryFetcher
	sink        storage.Sink
	symbols     []string
	destination string
	logger      *zap.Logger
}

func NewExpirations(fetcher HistoryFetcher, sink storage.Sink, symbols []string, destination string, logger *zap.Logger) *Expirations {
	return &Expirations{
		fetcher:     fetcher,
		sink:        sink,
		symbols:     symbols,
		destination: destination,
		logger:      logger.With(zap.String("component", "expirations")),
	}
}

func (e *Expirations) Collect(ctx context.Context) []model.QuoteRecord {
	var records []model.QuoteRecord
	for _, symbol := range e.symbols {
		raw, err := e.fetcher.OptionExpirations(ctx, symbol)
		if err != nil {
			e.logger.Warn("Expiration fetch failed", zap.String("symbol", symbol), zap.Error(err))
			continue
		}
		dates, err := NormalizeStrings(raw)
		if err != nil {
			e.logger.Warn("Expiration payload malformed", zap.String("symbol", symbol), zap.Error(err))
			continue
		}
		for _, date := range dates {
			records = append(records, model.QuoteRecord{
				Measurement: ExpirationMeasurement,
				Tags:        map[string]string{"dates": date, "symbol": symbol},
				Fields:      map[string]any{"value": 1},
			})
		}
	}
	return records
}

// Poll 作为每日任务体
func (e *Expirations) Poll(ctx context.Context) error {
	records := e.Collect(ctx)
	if len(records) == 0 {
		return nil
	}
	if err := e.sink.Write(ctx, records, e.destination); err != nil {
		return fmt.Errorf("write expirations: %w", err)
	}
	e.logger.Info("Expirations written", zap.Int("count", len(records)))
	return nil
}

// OptionChains 采集每个标的最近 depth 个到期日的期权链
type OptionChains struct {
	fetcher     ChainFetcher
	sink        storage.Sink
	symbols     []string
	depth       int
	destination string
	logger      *zap.Logger
}

func NewOptionChains(fetcher ChainFetcher, sink storage.Sink, symbols []string, depth int, destination string, logger *zap.Logger) *OptionChains {
	if depth <= 0 {
		depth = 1
	}
	return &OptionChains{
		fetcher:     fetcher,
		sink:        sink,
		symbols:     symbols,
		depth:       depth,
		destination: destination,
		logger:      logger.With(zap.String("component", "option_chains")),
	}
}

// Collect 到期日按 provider 返回顺序 (由近到远) 取前 depth 个
func (o *OptionChains) Collect(ctx context.Context) []model.QuoteRecord {
	var records []model.QuoteRecord
	for _, symbol := range o.symbols {
		raw, err := o.fetcher.OptionExpirations(ctx, symbol)
		if err != nil {
			o.logger.Warn("Expiration fetch failed", zap.String("symbol", symbol), zap.Error(err))
			continue
		}
		dates, err := NormalizeStrings(raw)
		if err != nil {
			o.logger.Warn("Expiration payload malformed", zap.String("symbol", symbol), zap.Error(err))
			continue
		}

		for _, date := range dates[:min(o.depth, len(dates))] {
			chain, err := o.fetcher.OptionChain(ctx, symbol, date)
			if err != nil {
				o.logger.Warn("Option chain fetch failed", zap.String("symbol", symbol), zap.String("expiration", date), zap.Error(err))
				continue
			}
			contracts, err := Normalize(chain)
			if err != nil {
				o.logger.Warn("Option chain payload malformed", zap.String("symbol", symbol), zap.String("expiration", date), zap.Error(err))
				continue
			}
			for _, contract := range contracts {
				records = append(records, OptionChainSchema.Map(OptionChainMeasurement, contract))
			}
		}
	}
	return model.FilterValid(records)
}

// Poll 作为每日任务体
func (o *OptionChains) Poll(ctx context.Context) error {
	records := o.Collect(ctx)
	if len(records) == 0 {
		o.logger.Warn("Option chains returned no data", zap.Strings("symbols", o.symbols))
		return nil
	}
	if err := o.sink.Write(ctx, records, o.destination); err != nil {
		return fmt.Errorf("write option chains: %w", err)
	}
	o.logger.Info("Option chains written", zap.Int("count", len(records)))
	return nil
}
