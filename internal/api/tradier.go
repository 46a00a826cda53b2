package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// FetchError 外部接口的网络 / HTTP 失败；调用方记录日志并视为本周期无数据
type FetchError struct {
	Endpoint string
	Status   int // 0 表示请求未得到响应
	Err      error
}

func (e *FetchError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("fetch %s: status %d", e.Endpoint, e.Status)
	}
	return fmt.Sprintf("fetch %s: %v", e.Endpoint, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// ErrNoSession 会话接口返回中缺少 sessionid
var ErrNoSession = errors.New("stream session id missing")

const (
	quotesEndpoint      = "/v1/markets/quotes"
	calendarEndpoint    = "/v1/markets/calendar"
	historyEndpoint     = "/v1/markets/history"
	expirationsEndpoint = "/v1/markets/options/expirations"
	chainsEndpoint      = "/v1/markets/options/chains"
	sessionEndpoint     = "/v1/markets/events/session"
)

// Client 券商 REST 接口，只做请求与响应映射
type Client struct {
	http   *resty.Client
	logger *zap.Logger
}

// NewClient token 以 Bearer 方式携带；timeout 作用于每个请求
func NewClient(baseURL, token string, timeout time.Duration, logger *zap.Logger) *Client {
	rc := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetTimeout(timeout).
		SetAuthToken(token).
		SetHeader("Accept", "application/json")

	return &Client{
		http:   rc,
		logger: logger.With(zap.String("component", "tradier")),
	}
}

func (c *Client) get(ctx context.Context, endpoint string, params map[string]string, out any) error {
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(params).
		SetResult(out).
		Get(endpoint)
	return c.check(endpoint, resp, err)
}

func (c *Client) check(endpoint string, resp *resty.Response, err error) error {
	if err != nil {
		return &FetchError{Endpoint: endpoint, Err: err}
	}
	if resp.IsError() {
		c.logger.Warn("Unexpected status",
			zap.String("endpoint", endpoint),
			zap.Int("status", resp.StatusCode()),
			zap.Duration("latency", resp.Time()))
		return &FetchError{Endpoint: endpoint, Status: resp.StatusCode()}
	}
	return nil
}

type quotesResponse struct {
	Quotes struct {
		Quote json.RawMessage `json:"quote"`
	} `json:"quotes"`
}

// Quotes 返回 quotes.quote 的原始内容：单个 symbol 时是对象，多个时是数组
func (c *Client) Quotes(ctx context.Context, symbols []string) (json.RawMessage, error) {
	var out quotesResponse
	params := map[string]string{"symbols": strings.Join(symbols, ",")}
	if err := c.get(ctx, quotesEndpoint, params, &out); err != nil {
		return nil, err
	}
	return out.Quotes.Quote, nil
}

// CalendarDay 对应 calendar.days.day 的单个元素
type CalendarDay struct {
	Date        string `json:"date"`
	Status      string `json:"status"`
	Description string `json:"description"`
	Open        struct {
		Start string `json:"start"`
		End   string `json:"end"`
	} `json:"open"`
}

type calendarResponse struct {
	Calendar struct {
		Month int `json:"month"`
		Year  int `json:"year"`
		Days  struct {
			Day []CalendarDay `json:"day"`
		} `json:"days"`
	} `json:"calendar"`
}

// Calendar 返回某月的交易日历
func (c *Client) Calendar(ctx context.Context, year int, month time.Month) ([]CalendarDay, error) {
	var out calendarResponse
	params := map[string]string{
		"year":  strconv.Itoa(year),
		"month": fmt.Sprintf("%02d", int(month)),
	}
	if err := c.get(ctx, calendarEndpoint, params, &out); err != nil {
		return nil, err
	}
	return out.Calendar.Days.Day, nil
}

type historyResponse struct {
	History struct {
		Day json.RawMessage `json:"day"`
	} `json:"history"`
}

// History 返回 [start, end] 的日线，只有一天时为对象
func (c *Client) History(ctx context.Context, symbol string, start, end time.Time) (json.RawMessage, error) {
	var out historyResponse
	params := map[string]string{
		"symbol":   symbol,
		"interval": "daily",
		"start":    start.Format(time.DateOnly),
		"end":      end.Format(time.DateOnly),
	}
	if err := c.get(ctx, historyEndpoint, params, &out); err != nil {
		return nil, err
	}
	return out.History.Day, nil
}

type expirationsResponse struct {
	Expirations struct {
		Date json.RawMessage `json:"date"`
	} `json:"expirations"`
}

// OptionExpirations 返回到期日列表，只有一个时为字符串
func (c *Client) OptionExpirations(ctx context.Context, symbol string) (json.RawMessage, error) {
	var out expirationsResponse
	if err := c.get(ctx, expirationsEndpoint, map[string]string{"symbol": symbol}, &out); err != nil {
		return nil, err
	}
	return out.Expirations.Date, nil
}

type chainResponse struct {
	Options struct {
		Option json.RawMessage `json:"option"`
	} `json:"options"`
}

// OptionChain 返回某到期日的期权链，只有一个合约时为对象
func (c *Client) OptionChain(ctx context.Context, symbol, expiration string) (json.RawMessage, error) {
	var out chainResponse
	params := map[string]string{
		"symbol":     symbol,
		"expiration": expiration,
	}
	if err := c.get(ctx, chainsEndpoint, params, &out); err != nil {
		return nil, err
	}
	return out.Options.Option, nil
}

type sessionResponse struct {
	Stream struct {
		URL       string `json:"url"`
		SessionID string `json:"sessionid"`
	} `json:"stream"`
}

// CreateStreamSession 申请推送会话 ID，每次连接都需要新的 ID
func (c *Client) CreateStreamSession(ctx context.Context) (string, error) {
	var out sessionResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&out).
		Post(sessionEndpoint)
	if err := c.check(sessionEndpoint, resp, err); err != nil {
		return "", err
	}
	if out.Stream.SessionID == "" {
		return "", ErrNoSession
	}
	return out.Stream.SessionID, nil
}
