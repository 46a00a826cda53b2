package collector

// FieldKind 决定原始字段映射到记录的哪一部分
type FieldKind int

const (
	Ignore FieldKind = iota
	Tag
	Field
)

// Schema 字段名 -> 归类；未在 Schema 中出现的字段一律忽略
type Schema map[string]FieldKind

// DefaultQuoteSchema 对应 /v1/markets/quotes 返回的 quote 对象
var DefaultQuoteSchema = Schema{
	"symbol": Tag,
	"exch":   Tag,
	"type":   Tag,

	"last":              Field,
	"change":            Field,
	"change_percentage": Field,
	"volume":            Field,
	"average_volume":    Field,
	"last_volume":       Field,
	"open":              Field,
	"high":              Field,
	"low":               Field,
	"close":             Field,
	"prevclose":         Field,
	"bid":               Field,
	"bidsize":           Field,
	"ask":               Field,
	"asksize":           Field,
	"week_52_high":      Field,
	"week_52_low":       Field,

	"description":  Ignore,
	"bidexch":      Ignore,
	"askexch":      Ignore,
	"bid_date":     Ignore,
	"ask_date":     Ignore,
	"trade_date":   Ignore,
	"root_symbols": Ignore,
}

// HistorySchema 对应 /v1/markets/history 的 day 对象
var HistorySchema = Schema{
	"date":   Tag,
	"open":   Field,
	"high":   Field,
	"low":    Field,
	"close":  Field,
	"volume": Field,
}

// OptionChainSchema 对应 /v1/markets/options/chains 的 option 对象
var OptionChainSchema = Schema{
	"symbol":          Tag,
	"underlying":      Tag,
	"option_type":     Tag,
	"expiration_date": Tag,

	"strike":        Field,
	"last":          Field,
	"change":        Field,
	"volume":        Field,
	"open":          Field,
	"high":          Field,
	"low":           Field,
	"close":         Field,
	"bid":           Field,
	"bidsize":       Field,
	"ask":           Field,
	"asksize":       Field,
	"open_interest": Field,
	"contract_size": Field,

	"description":     Ignore,
	"root_symbol":     Ignore,
	"expiration_type": Ignore,
	"trade_date":      Ignore,
}
