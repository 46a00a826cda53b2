package storage

import (
	"context"
	"fmt"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"go.uber.org/zap"

	"quote-ingestor/internal/model"
)

// InfluxConfig 定义 InfluxDB 连接信息
type InfluxConfig struct {
	URL   string
	Token string
	Org   string
}

// InfluxSink 将记录写入 InfluxDB，destination 为 bucket
// influxdb2.Client 与阻塞写 API 均可并发使用
type InfluxSink struct {
	client influxdb2.Client
	org    string
	now    func() time.Time
	logger *zap.Logger
}

func NewInfluxSink(cfg InfluxConfig, logger *zap.Logger) *InfluxSink {
	return &InfluxSink{
		client: influxdb2.NewClient(cfg.URL, cfg.Token),
		org:    cfg.Org,
		now:    time.Now,
		logger: logger.With(zap.String("sink", "influx")),
	}
}

// Ping 启动时检查服务端可用
func (s *InfluxSink) Ping(ctx context.Context) error {
	ok, err := s.client.Ping(ctx)
	if err != nil {
		return fmt.Errorf("influx ping: %w", err)
	}
	if !ok {
		return fmt.Errorf("influx ping: server not ready")
	}
	return nil
}

func (s *InfluxSink) Write(ctx context.Context, records []model.QuoteRecord, destination string) error {
	points := toPoints(model.FilterValid(records), s.now())
	if len(points) == 0 {
		return nil
	}

	if err := s.client.WriteAPIBlocking(s.org, destination).WritePoint(ctx, points...); err != nil {
		return fmt.Errorf("influx write %s: %w", destination, err)
	}
	s.logger.Debug("Points written", zap.String("bucket", destination), zap.Int("count", len(points)))
	return nil
}

func (s *InfluxSink) Close(context.Context) error {
	s.client.Close()
	return nil
}

func toPoints(records []model.QuoteRecord, now time.Time) []*write.Point {
	points := make([]*write.Point, 0, len(records))
	for _, r := range records {
		ts := r.Time
		if ts.IsZero() {
			ts = now
		}
		points = append(points, influxdb2.NewPoint(r.Measurement, r.Tags, r.Fields, ts))
	}
	return points
}
