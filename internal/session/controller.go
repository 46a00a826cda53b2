package session

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"quote-ingestor/internal/model"
	"quote-ingestor/internal/scheduler"
)

const (
	DefaultPollTag   = "stock_runs"
	CalendarCheckTag = "calendar_check"
)

// CalendarAdapter 返回某日的交易时段
type CalendarAdapter interface {
	GetSession(ctx context.Context, date time.Time) (model.MarketSession, error)
}

// Poller 轮询任务体
type Poller interface {
	Poll(ctx context.Context) error
}

type Config struct {
	CheckHour    int
	CheckMinute  int
	Location     *time.Location
	PollInterval time.Duration
	Tag          string
}

// Controller 根据日历在交易时段内注册 / 注销高频轮询任务
type Controller struct {
	cfg      Config
	sched    *scheduler.Scheduler
	calendar CalendarAdapter
	poller   Poller
	now      func() time.Time
	state    *StateMachine
	logger   *zap.Logger

	mu      sync.RWMutex
	session model.MarketSession
}

type Option func(*Controller)

// WithClock 替换时钟，测试中使用
func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

func NewController(cfg Config, sched *scheduler.Scheduler, calendar CalendarAdapter, poller Poller, logger *zap.Logger, opts ...Option) *Controller {
	if cfg.Tag == "" {
		cfg.Tag = DefaultPollTag
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Minute
	}
	logger = logger.With(zap.String("component", "session"))

	c := &Controller{
		cfg:      cfg,
		sched:    sched,
		calendar: calendar,
		poller:   poller,
		now:      time.Now,
		state:    NewStateMachine(logger),
		logger:   logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Start 注册每日的日历检查任务
func (c *Controller) Start() scheduler.JobID {
	trigger := scheduler.DailyAt(c.cfg.CheckHour, c.cfg.CheckMinute, c.cfg.Location)
	id := c.sched.Schedule(trigger, func(ctx context.Context) error {
		c.CheckMarket(ctx)
		return nil
	}, CalendarCheckTag)

	c.logger.Info("Calendar check scheduled", zap.Stringer("trigger", trigger))
	return id
}

// CheckMarket 拉取当日日历并决定是否注册轮询任务
// 日历获取失败按休市处理：宁可当天不采集，也不在错误的数据上轮询
func (c *Controller) CheckMarket(ctx context.Context) {
	// 清理前一交易日遗留的任务
	c.sched.Cancel(c.cfg.Tag)
	c.state.Reset()

	now := c.now().In(c.cfg.Location)
	session, err := c.calendar.GetSession(ctx, now)
	if err != nil {
		c.logger.Warn("Calendar fetch failed, treating market as closed", zap.Error(err))
		c.setSession(model.MarketSession{Date: now, Status: model.SessionClosed})
		return
	}
	c.setSession(session)

	switch {
	case !session.IsOpen():
		c.logger.Info("Market closed today",
			zap.String("status", string(session.Status)),
			zap.String("description", session.Description))
	case now.Before(session.Open):
		// 开盘前检查：在开盘时刻唤醒一次再注册轮询
		c.sched.Schedule(scheduler.At(session.Open), func(ctx context.Context) error {
			c.openSession(ctx)
			return nil
		}, c.cfg.Tag)
		c.logger.Info("Waiting for market open", zap.Time("open", session.Open), zap.Time("close", session.Close))
	case session.Contains(now):
		c.schedulePolling(ctx, session)
	default:
		c.logger.Info("Market session already over", zap.Time("close", session.Close))
	}
}

func (c *Controller) openSession(ctx context.Context) {
	session := c.Session()
	if !session.Contains(c.now()) {
		c.logger.Warn("Wake-up outside session window, skipping", zap.Time("open", session.Open), zap.Time("close", session.Close))
		return
	}
	c.schedulePolling(ctx, session)
}

// schedulePolling 注册周期任务并立即执行第一次轮询，
// 周期任务的首次触发在一个周期之后，开盘那一刻的报价由这次执行采集
func (c *Controller) schedulePolling(ctx context.Context, session model.MarketSession) {
	if !c.state.Transition(StateScheduled) {
		return
	}
	poll := c.pollAction(session)
	c.sched.Schedule(scheduler.Every(c.cfg.PollInterval), poll, c.cfg.Tag)
	c.logger.Info("Polling scheduled",
		zap.String("tag", c.cfg.Tag),
		zap.Duration("interval", c.cfg.PollInterval),
		zap.Time("close", session.Close))

	// 返回 ErrCancelJob 时 tag 已被 expire 清空
	_ = poll(ctx)
}

// pollAction 周期任务本身没有结束时间，每次执行后检查下一次运行是否越过收盘边界，
// 越过则注销整个 tag：最后一次执行是收盘前的最后一个周期点
func (c *Controller) pollAction(session model.MarketSession) scheduler.Action {
	return func(ctx context.Context) error {
		if !c.now().Before(session.Close) {
			c.expire(session)
			return scheduler.ErrCancelJob
		}

		c.state.Transition(StatePolling)
		if err := c.poller.Poll(ctx); err != nil {
			c.logger.Error("Poll failed", zap.Error(err))
		}

		if next, ok := c.nextRun(); ok && !next.Before(session.Close) {
			c.expire(session)
		}
		return nil
	}
}

// nextRun 返回 tag 下最早的下一次运行时间
func (c *Controller) nextRun() (time.Time, bool) {
	var earliest time.Time
	for _, j := range c.sched.Jobs(c.cfg.Tag) {
		if earliest.IsZero() || j.NextRun.Before(earliest) {
			earliest = j.NextRun
		}
	}
	return earliest, !earliest.IsZero()
}

func (c *Controller) expire(session model.MarketSession) {
	n := c.sched.Cancel(c.cfg.Tag)
	c.state.Transition(StateExpired)
	c.logger.Info("Market session over, polling stopped", zap.Time("close", session.Close), zap.Int("cancelled", n))
}

func (c *Controller) setSession(s model.MarketSession) {
	c.mu.Lock()
	c.session = s
	c.mu.Unlock()
}

// Session 返回最近一次日历检查得到的交易时段
func (c *Controller) Session() model.MarketSession {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.session
}

// State 返回当前状态
func (c *Controller) State() SessionState {
	return c.state.Current()
}
