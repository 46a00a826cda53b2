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

// QuoteMeasurement 实时行情写入的 measurement
const QuoteMeasurement = "quotes"

// QuoteFetcher 外部行情接口，返回 quotes.quote 的原始内容 (对象或数组)
type QuoteFetcher interface {
	Quotes(ctx context.Context, symbols []string) (json.RawMessage, error)
}

// Collector 调用一次 fetcher 并把结果转换为 QuoteRecord
type Collector struct {
	fetcher     QuoteFetcher
	schema      Schema
	measurement string
	logger      *zap.Logger
}

func NewCollector(fetcher QuoteFetcher, logger *zap.Logger) *Collector {
	return &Collector{
		fetcher:     fetcher,
		schema:      DefaultQuoteSchema,
		measurement: QuoteMeasurement,
		logger:      logger.With(zap.String("component", "collector")),
	}
}

// Collect 获取 symbols 的行情；没有 measurement 或字段的记录在此丢弃
func (c *Collector) Collect(ctx context.Context, symbols []string) ([]model.QuoteRecord, error) {
	raw, err := c.fetcher.Quotes(ctx, symbols)
	if err != nil {
		return nil, err
	}

	objs, err := Normalize(raw)
	if err != nil {
		return nil, fmt.Errorf("normalize quotes: %w", err)
	}

	records := make([]model.QuoteRecord, 0, len(objs))
	for _, obj := range objs {
		rec := c.schema.Map(c.measurement, obj)
		rec.Time = tradeTime(obj)
		records = append(records, rec)
	}

	valid := model.FilterValid(records)
	if dropped := len(records) - len(valid); dropped > 0 {
		c.logger.Warn("Dropped quotes without fields", zap.Int("dropped", dropped))
	}
	return valid, nil
}

// tradeTime 解析 trade_date (毫秒时间戳)，缺失时返回零值
func tradeTime(obj map[string]any) time.Time {
	n, ok := obj["trade_date"].(json.Number)
	if !ok {
		return time.Time{}
	}
	ms, err := n.Int64()
	if err != nil || ms <= 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}

// Pipeline 轮询任务体：采集后写入 Sink
type Pipeline struct {
	collector   *Collector
	sink        storage.Sink
	symbols     []string
	destination string
	logger      *zap.Logger
}

func NewPipeline(collector *Collector, sink storage.Sink, symbols []string, destination string, logger *zap.Logger) *Pipeline {
	return &Pipeline{
		collector:   collector,
		sink:        sink,
		symbols:     symbols,
		destination: destination,
		logger:      logger.With(zap.String("component", "pipeline")),
	}
}

// Poll 采集失败视为本周期无数据，只记录日志；写入失败返回给调用方记录
func (p *Pipeline) Poll(ctx context.Context) error {
	records, err := p.collector.Collect(ctx, p.symbols)
	if err != nil {
		p.logger.Warn("Quote fetch failed, no data this cycle", zap.Error(err))
		return nil
	}
	if len(records) == 0 {
		p.logger.Debug("No quotes returned", zap.Strings("symbols", p.symbols))
		return nil
	}

	if err := p.sink.Write(ctx, records, p.destination); err != nil {
		return fmt.Errorf("write quotes: %w", err)
	}
	p.logger.Info("Quotes written", zap.String("destination", p.destination), zap.Int("count", len(records)))
	return nil
}
