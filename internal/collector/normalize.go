package collector

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/shopspring/decimal"

	"quote-ingestor/internal/model"
)

// fieldPrecision 数值字段保留的小数位
const fieldPrecision = 6

var jsonNull = []byte("null")

// Normalize 将 provider 的返回统一为对象序列
// 单个 symbol 查询时 provider 返回的是对象而不是数组，这里包装成单元素序列
func Normalize(raw json.RawMessage) ([]map[string]any, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, jsonNull) {
		return nil, nil
	}

	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.UseNumber()

	switch trimmed[0] {
	case '[':
		var list []map[string]any
		if err := dec.Decode(&list); err != nil {
			return nil, fmt.Errorf("decode list: %w", err)
		}
		out := list[:0]
		for _, obj := range list {
			if obj != nil {
				out = append(out, obj)
			}
		}
		return out, nil
	case '{':
		var obj map[string]any
		if err := dec.Decode(&obj); err != nil {
			return nil, fmt.Errorf("decode object: %w", err)
		}
		return []map[string]any{obj}, nil
	default:
		return nil, fmt.Errorf("unexpected payload: %.32s", trimmed)
	}
}

// NormalizeStrings 同样的单值/数组差异，用于字符串列表 (例如到期日)
func NormalizeStrings(raw json.RawMessage) ([]string, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, jsonNull) {
		return nil, nil
	}
	if trimmed[0] == '[' {
		var list []string
		if err := json.Unmarshal(trimmed, &list); err != nil {
			return nil, fmt.Errorf("decode list: %w", err)
		}
		return list, nil
	}
	var one string
	if err := json.Unmarshal(trimmed, &one); err != nil {
		return nil, fmt.Errorf("decode value: %w", err)
	}
	return []string{one}, nil
}

// Map 按 Schema 将原始对象拆分为 tags 与 fields
func (s Schema) Map(measurement string, obj map[string]any) model.QuoteRecord {
	rec := model.QuoteRecord{
		Measurement: measurement,
		Tags:        make(map[string]string),
		Fields:      make(map[string]any),
	}
	for key, value := range obj {
		switch s[key] {
		case Tag:
			if tv, ok := tagValue(value); ok {
				rec.Tags[key] = tv
			}
		case Field:
			if fv, ok := fieldValue(value); ok {
				rec.Fields[key] = fv
			}
		}
	}
	return rec
}

func tagValue(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		return t, t != ""
	case json.Number:
		return t.String(), true
	case bool:
		return strconv.FormatBool(t), true
	}
	return "", false
}

// fieldValue 数值统一为 float64，避免时序库同一字段出现 int/float 类型冲突
func fieldValue(v any) (any, bool) {
	switch t := v.(type) {
	case json.Number:
		d, err := decimal.NewFromString(t.String())
		if err != nil {
			return nil, false
		}
		return d.Round(fieldPrecision).InexactFloat64(), true
	case string:
		return t, t != ""
	case bool:
		return t, true
	}
	return nil, false
}
