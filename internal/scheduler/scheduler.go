package scheduler

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DefaultTick 调度循环默认唤醒间隔
const DefaultTick = time.Second

// ErrCancelJob 由 Action 返回时，本次执行结束后移除该任务
var ErrCancelJob = errors.New("scheduler: cancel job")

// Action 是任务体，在调度循环所在的 goroutine 中串行执行
type Action func(ctx context.Context) error

type JobID string

// JobInfo 是任务的只读快照
type JobInfo struct {
	ID      JobID
	Trigger string
	Tags    []string
	NextRun time.Time
}

type job struct {
	id      JobID
	trigger Trigger
	action  Action
	tags    []string
	once    bool      // 一次性任务，注册后不变
	nextRun time.Time // 受 Scheduler.mu 保护
	removed bool
}

func (j *job) hasTag(tag string) bool {
	return slices.Contains(j.tags, tag)
}

func (j *job) info() JobInfo {
	return JobInfo{
		ID:      j.id,
		Trigger: j.trigger.String(),
		Tags:    slices.Clone(j.tags),
		NextRun: j.nextRun,
	}
}

// Scheduler 持有任务注册表并驱动后台执行循环
// 注册表的枚举、增加、删除都在 mu 下完成；任务体执行时不持有锁，
// 因此任务可以在执行中取消自身所属的 tag
//
// 调度器不为任务设置超时：一个挂起的任务会阻塞整个循环，
// 外部调用方 (HTTP 客户端等) 需自行设置请求超时
type Scheduler struct {
	mu     sync.Mutex
	jobs   []*job // 按注册顺序
	now    func() time.Time
	logger *zap.Logger
}

type Option func(*Scheduler)

// WithClock 替换时钟，测试中使用
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

func New(logger *zap.Logger, opts ...Option) *Scheduler {
	s := &Scheduler{
		now:    time.Now,
		logger: logger.With(zap.String("component", "scheduler")),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Schedule 注册任务并返回其 ID
func (s *Scheduler) Schedule(trigger Trigger, action Action, tags ...string) JobID {
	first := trigger.First(s.now())
	j := &job{
		id:      JobID(uuid.NewString()),
		trigger: trigger,
		action:  action,
		tags:    slices.Clone(tags),
		once:    trigger.Next(first).IsZero(),
		nextRun: first,
	}

	s.mu.Lock()
	s.jobs = append(s.jobs, j)
	s.mu.Unlock()

	s.logger.Debug("Job scheduled",
		zap.String("job", string(j.id)),
		zap.Stringer("trigger", trigger),
		zap.Strings("tags", tags),
		zap.Time("next_run", j.nextRun))
	return j.id
}

// Cancel 移除所有带 tag 的任务，返回移除数量；没有匹配时什么都不做
func (s *Scheduler) Cancel(tag string) int {
	s.mu.Lock()
	n := s.removeLocked(func(j *job) bool { return j.hasTag(tag) })
	s.mu.Unlock()

	if n > 0 {
		s.logger.Info("Jobs cancelled", zap.String("tag", tag), zap.Int("count", n))
	}
	return n
}

// CancelJob 移除单个任务
func (s *Scheduler) CancelJob(id JobID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.removeLocked(func(j *job) bool { return j.id == id }) > 0
}

func (s *Scheduler) removeLocked(match func(*job) bool) int {
	kept := s.jobs[:0]
	removed := 0
	for _, j := range s.jobs {
		if match(j) {
			j.removed = true
			removed++
			continue
		}
		kept = append(kept, j)
	}
	clear(s.jobs[len(kept):])
	s.jobs = kept
	return removed
}

// Jobs 返回带 tag 的任务快照；tag 为空时返回全部
func (s *Scheduler) Jobs(tag string) []JobInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []JobInfo
	for _, j := range s.jobs {
		if tag == "" || j.hasTag(tag) {
			out = append(out, j.info())
		}
	}
	return out
}

// NextRun 返回任务的下一次触发时间
func (s *Scheduler) NextRun(id JobID) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, j := range s.jobs {
		if j.id == id {
			return j.nextRun, true
		}
	}
	return time.Time{}, false
}

// DueJobs 返回 NextRun <= now 的任务 (按注册顺序)，并推进周期任务的 NextRun
func (s *Scheduler) DueJobs(now time.Time) []JobInfo {
	due := s.collectDue(now)

	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]JobInfo, 0, len(due))
	for _, j := range due {
		out = append(out, j.info())
	}
	return out
}

func (s *Scheduler) collectDue(now time.Time) []*job {
	s.mu.Lock()
	defer s.mu.Unlock()

	var due []*job
	for _, j := range s.jobs {
		if j.nextRun.After(now) {
			continue
		}
		due = append(due, j)
		advance(j, now)
	}
	return due
}

// advance 从原定触发时间推进一个周期，不以实际执行时间为基准，避免累积漂移；
// 若推进后仍已过期 (循环停顿了多个周期)，沿同一时间网格跳到 now 之后，
// 每个 tick 同一任务最多补跑一次
func advance(j *job, now time.Time) {
	next := j.trigger.Next(j.nextRun)
	if next.IsZero() {
		return
	}
	for !next.After(now) {
		next = j.trigger.Next(next)
	}
	j.nextRun = next
}

// RunPending 串行执行当前到期的任务
func (s *Scheduler) RunPending(ctx context.Context) {
	for _, j := range s.collectDue(s.now()) {
		if s.isRemoved(j) {
			// 同一 tick 内被前面的任务取消
			continue
		}
		s.finish(j, s.execute(ctx, j))
	}
}

func (s *Scheduler) isRemoved(j *job) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return j.removed
}

func (s *Scheduler) execute(ctx context.Context, j *job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job panicked: %v", r)
		}
	}()
	return j.action(ctx)
}

func (s *Scheduler) finish(j *job, err error) {
	switch {
	case errors.Is(err, ErrCancelJob):
		s.CancelJob(j.id)
	case err != nil:
		s.logger.Error("Job failed, keeping it scheduled",
			zap.String("job", string(j.id)),
			zap.Strings("tags", j.tags),
			zap.Error(err))
	case j.once:
		s.CancelJob(j.id)
	}
}

// Run 阻塞运行调度循环，直到 ctx 取消
func (s *Scheduler) Run(ctx context.Context, tick time.Duration) {
	if tick <= 0 {
		tick = DefaultTick
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	s.logger.Info("Scheduler loop started", zap.Duration("tick", tick))
	s.RunPending(ctx)
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Scheduler loop stopped")
			return
		case <-ticker.C:
			s.RunPending(ctx)
		}
	}
}

// Start 在独立 goroutine 中运行调度循环；返回的 stop 取消循环并等待其退出
func (s *Scheduler) Start(tick time.Duration) (stop func()) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.Run(ctx, tick)
	}()
	return func() {
		cancel()
		<-done
	}
}
