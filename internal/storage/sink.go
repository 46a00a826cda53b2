package storage

import (
	"context"

	"quote-ingestor/internal/model"
)

// Sink 是持久化的通用接口；轮询路径与推送路径会并发调用，实现必须并发安全
type Sink interface {
	// Write 将记录写入 destination (influx bucket 或 mongo collection)
	Write(ctx context.Context, records []model.QuoteRecord, destination string) error

	Close(ctx context.Context) error
}

// EventSink 接收推送流的原始事件，一条事件一个文档
type EventSink interface {
	InsertEvent(ctx context.Context, collection string, doc map[string]any) error
}
