package model

import "time"

// QuoteRecord 是写入时序库的标准化记录
type QuoteRecord struct {
	Measurement string            // 例如 "quotes"
	Tags        map[string]string // 分类维度，例如 symbol
	Fields      map[string]any    // 数值或字符串字段，例如 last / volume
	Time        time.Time         // 零值表示由存储端取写入时间
}

// Valid 记录必须有 measurement 且至少一个字段
func (r QuoteRecord) Valid() bool {
	return r.Measurement != "" && len(r.Fields) > 0
}

// FilterValid 丢弃不合法的记录，保持原有顺序
func FilterValid(records []QuoteRecord) []QuoteRecord {
	out := records[:0:0]
	for _, r := range records {
		if r.Valid() {
			out = append(out, r)
		}
	}
	return out
}

// SessionStatus 交易日状态
type SessionStatus string

const (
	SessionOpen   SessionStatus = "open"
	SessionClosed SessionStatus = "closed"
)

// MarketSession 代表某一交易日的开收盘边界，按日重新计算
type MarketSession struct {
	Date        time.Time
	Status      SessionStatus
	Description string
	Open        time.Time
	Close       time.Time
}

func (s MarketSession) IsOpen() bool {
	return s.Status == SessionOpen
}

// Contains 判断 t 是否落在 [Open, Close) 内
func (s MarketSession) Contains(t time.Time) bool {
	if !s.IsOpen() {
		return false
	}
	return !t.Before(s.Open) && t.Before(s.Close)
}
