package testutils

import (
	"context"
	"sync"

	"quote-ingestor/internal/model"
)

// Write 记录一次 Sink.Write 调用
type Write struct {
	Destination string
	Records     []model.QuoteRecord
}

// RecordingSink 记录所有写入，可并发调用
type RecordingSink struct {
	Mu     sync.Mutex
	Writes []Write
	Events []map[string]any
	Err    error
}

func (s *RecordingSink) Write(_ context.Context, records []model.QuoteRecord, destination string) error {
	s.Mu.Lock()
	defer s.Mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	s.Writes = append(s.Writes, Write{Destination: destination, Records: records})
	return nil
}

func (s *RecordingSink) InsertEvent(_ context.Context, _ string, doc map[string]any) error {
	s.Mu.Lock()
	defer s.Mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	s.Events = append(s.Events, doc)
	return nil
}

func (s *RecordingSink) Close(context.Context) error { return nil }

// WriteCount 返回写入次数
func (s *RecordingSink) WriteCount() int {
	s.Mu.Lock()
	defer s.Mu.Unlock()
	return len(s.Writes)
}

// EventCount 返回已写入的事件数
func (s *RecordingSink) EventCount() int {
	s.Mu.Lock()
	defer s.Mu.Unlock()
	return len(s.Events)
}
