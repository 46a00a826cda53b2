package testutils

import (
	"context"
	"errors"
	"sync"

	"quote-ingestor/internal/api"
)

// ErrConnClosed 关闭后读取返回的错误
var ErrConnClosed = errors.New("use of closed network connection")

// Read 是 ScriptedConn 的一次读取结果
type Read struct {
	Data []byte
	Err  error
}

// ScriptedConn 按脚本返回读取结果；脚本读完后阻塞直到 Close
type ScriptedConn struct {
	Mu      sync.Mutex
	Reads   []Read
	Written [][]byte
	OnWrite func(data []byte)

	closeOnce sync.Once
	closed    chan struct{}
}

func NewScriptedConn(reads ...Read) *ScriptedConn {
	return &ScriptedConn{Reads: reads, closed: make(chan struct{})}
}

func (c *ScriptedConn) WriteMessage(data []byte) error {
	c.Mu.Lock()
	c.Written = append(c.Written, data)
	hook := c.OnWrite
	c.Mu.Unlock()
	if hook != nil {
		hook(data)
	}
	return nil
}

func (c *ScriptedConn) ReadMessage() ([]byte, error) {
	c.Mu.Lock()
	if len(c.Reads) > 0 {
		r := c.Reads[0]
		c.Reads = c.Reads[1:]
		c.Mu.Unlock()
		return r.Data, r.Err
	}
	c.Mu.Unlock()

	<-c.closed
	return nil, ErrConnClosed
}

func (c *ScriptedConn) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

// WrittenMessages 返回已发送消息的副本
func (c *ScriptedConn) WrittenMessages() [][]byte {
	c.Mu.Lock()
	defer c.Mu.Unlock()
	return append([][]byte(nil), c.Written...)
}

// FakeDialer 依次返回预设的连接
type FakeDialer struct {
	Mu    sync.Mutex
	Conns []*ScriptedConn
	Dials int
	URLs  []string
}

func (d *FakeDialer) Dial(_ context.Context, url string) (api.Conn, error) {
	d.Mu.Lock()
	defer d.Mu.Unlock()
	d.URLs = append(d.URLs, url)
	if d.Dials >= len(d.Conns) {
		d.Dials++
		return nil, errors.New("no more scripted connections")
	}
	conn := d.Conns[d.Dials]
	d.Dials++
	return conn, nil
}

// DialCount 返回 Dial 调用次数
func (d *FakeDialer) DialCount() int {
	d.Mu.Lock()
	defer d.Mu.Unlock()
	return d.Dials
}

// FakeSessions 依次返回预设的会话 ID；OnCall 在每次调用时触发 (从 1 开始计数)
type FakeSessions struct {
	Mu     sync.Mutex
	IDs    []string
	Errs   []error
	Calls  int
	OnCall func(n int)
}

func (s *FakeSessions) CreateStreamSession(context.Context) (string, error) {
	s.Mu.Lock()
	s.Calls++
	n := s.Calls
	hook := s.OnCall
	var id string
	var err error
	if n <= len(s.IDs) {
		id = s.IDs[n-1]
	}
	if n <= len(s.Errs) {
		err = s.Errs[n-1]
	}
	s.Mu.Unlock()

	if hook != nil {
		hook(n)
	}
	return id, err
}

// CallCount 返回会话申请次数
func (s *FakeSessions) CallCount() int {
	s.Mu.Lock()
	defer s.Mu.Unlock()
	return s.Calls
}
