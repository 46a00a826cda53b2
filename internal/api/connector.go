package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"quote-ingestor/internal/storage"
)

// DefaultReconnectDelay 断线后固定等待时间
const DefaultReconnectDelay = 10 * time.Second

// Conn 推送连接
type Conn interface {
	WriteMessage(data []byte) error
	ReadMessage() ([]byte, error)
	Close() error
}

// Dialer 建立推送连接
type Dialer interface {
	Dial(ctx context.Context, url string) (Conn, error)
}

// SessionProvider 申请推送会话 ID
type SessionProvider interface {
	CreateStreamSession(ctx context.Context) (string, error)
}

// WSDialer 基于 gorilla/websocket 的 Dialer
type WSDialer struct {
	dialer *websocket.Dialer
}

func NewWSDialer() *WSDialer {
	return &WSDialer{dialer: &websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: 10 * time.Second,
	}}
}

func (d *WSDialer) Dial(ctx context.Context, url string) (Conn, error) {
	conn, _, err := d.dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	return &wsConn{conn: conn}, nil
}

type wsConn struct {
	conn *websocket.Conn
}

func (c *wsConn) WriteMessage(data []byte) error {
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

func (c *wsConn) ReadMessage() ([]byte, error) {
	_, data, err := c.conn.ReadMessage()
	return data, err
}

func (c *wsConn) Close() error { return c.conn.Close() }

// SubscribeMessage 连接建立后发送的唯一一条订阅消息
type SubscribeMessage struct {
	Symbols   []string `json:"symbols"`
	SessionID string   `json:"sessionid"`
	LineBreak bool     `json:"linebreak"`
}

// StreamConfig 推送流参数
type StreamConfig struct {
	URL            string
	Symbols        []string
	ReconnectDelay time.Duration
	Collection     string
}

// Streamer 长连接消费推送事件，一条事件写一个文档
// 任何一步失败都等待固定时间后从申请会话 ID 重新开始：没有退避，也没有重试上限
type Streamer struct {
	cfg      StreamConfig
	sessions SessionProvider
	dialer   Dialer
	sink     storage.EventSink
	sleep    func(ctx context.Context, d time.Duration) bool
	logger   *zap.Logger
}

type StreamerOption func(*Streamer)

// WithSleep 替换重连等待，测试中使用
func WithSleep(sleep func(ctx context.Context, d time.Duration) bool) StreamerOption {
	return func(s *Streamer) { s.sleep = sleep }
}

func NewStreamer(cfg StreamConfig, sessions SessionProvider, dialer Dialer, sink storage.EventSink, logger *zap.Logger, opts ...StreamerOption) *Streamer {
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = DefaultReconnectDelay
	}
	s := &Streamer{
		cfg:      cfg,
		sessions: sessions,
		dialer:   dialer,
		sink:     sink,
		sleep:    sleepContext,
		logger:   logger.With(zap.String("component", "streamer")),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run 正常情况下不会返回；只有 ctx 被取消 (进程退出) 时返回
func (s *Streamer) Run(ctx context.Context) error {
	s.logger.Info("Starting stream", zap.String("URL", s.cfg.URL), zap.Strings("Symbols", s.cfg.Symbols))
	for {
		err := s.consume(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}

		s.logger.Error("Stream disconnected, waiting before reconnect",
			zap.Error(err),
			zap.Bool("close_frame", isCloseError(err)),
			zap.Duration("delay", s.cfg.ReconnectDelay))
		if !s.sleep(ctx, s.cfg.ReconnectDelay) {
			return ctx.Err()
		}
	}
}

// consume 完成一轮：会话 -> 连接 -> 订阅 -> 读循环，返回导致本轮结束的错误
func (s *Streamer) consume(ctx context.Context) error {
	sessionID, err := s.sessions.CreateStreamSession(ctx)
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}

	conn, err := s.dialer.Dial(ctx, s.cfg.URL)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()

	// ctx 取消时关闭连接，解除阻塞中的 ReadMessage
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	payload, err := json.Marshal(SubscribeMessage{
		Symbols:   s.cfg.Symbols,
		SessionID: sessionID,
		LineBreak: true,
	})
	if err != nil {
		return fmt.Errorf("encode subscription: %w", err)
	}
	if err := conn.WriteMessage(payload); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	s.logger.Info("Subscribed to market events", zap.Strings("Symbols", s.cfg.Symbols))

	for {
		message, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("receive: %w", err)
		}
		s.handle(ctx, message)
	}
}

// handle linebreak 模式下一条消息可能包含多行事件
func (s *Streamer) handle(ctx context.Context, message []byte) {
	for _, line := range bytes.Split(message, []byte{'\n'}) {
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}

		var event map[string]any
		if err := json.Unmarshal(line, &event); err != nil || event == nil {
			s.logger.Warn("Malformed stream payload, dropped", zap.ByteString("payload", line), zap.Error(err))
			continue
		}

		if err := s.sink.InsertEvent(ctx, s.cfg.Collection, event); err != nil {
			s.logger.Error("Event insert failed", zap.Error(err))
		}
	}
}

func isCloseError(err error) bool {
	var closeErr *websocket.CloseError
	return errors.As(err, &closeErr)
}

func sleepContext(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
