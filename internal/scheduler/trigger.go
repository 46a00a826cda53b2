package scheduler

import (
	"fmt"
	"time"

	"quote-ingestor/internal/service"
)

// Trigger 决定任务的首次与后续触发时间
type Trigger interface {
	// First 返回注册时刻 now 之后的首次触发时间
	First(now time.Time) time.Time
	// Next 返回 prev 之后的下一次触发时间，零值表示没有下一次 (一次性任务)
	Next(prev time.Time) time.Time
	String() string
}

type everyTrigger struct {
	period time.Duration
}

// Every 固定周期触发，首次触发为注册后一个周期
func Every(period time.Duration) Trigger {
	if period <= 0 {
		panic(fmt.Sprintf("scheduler: non-positive period %s", period))
	}
	return everyTrigger{period: period}
}

func (t everyTrigger) First(now time.Time) time.Time { return now.Add(t.period) }
func (t everyTrigger) Next(prev time.Time) time.Time { return prev.Add(t.period) }
func (t everyTrigger) String() string                { return "every " + service.FormatInterval(t.period) }

type dailyTrigger struct {
	hour, minute int
	loc          *time.Location
}

// DailyAt 每天在 loc 时区的 hour:minute 触发
func DailyAt(hour, minute int, loc *time.Location) Trigger {
	if loc == nil {
		loc = time.Local
	}
	return dailyTrigger{hour: hour, minute: minute, loc: loc}
}

func (t dailyTrigger) First(now time.Time) time.Time {
	at := service.ClockOn(now, t.hour, t.minute, t.loc)
	if !at.After(now) {
		at = t.Next(at)
	}
	return at
}

// Next 按日历日递增，夏令时切换日保持钟点不变
func (t dailyTrigger) Next(prev time.Time) time.Time {
	return service.ClockOn(prev.In(t.loc).AddDate(0, 0, 1), t.hour, t.minute, t.loc)
}

func (t dailyTrigger) String() string {
	return fmt.Sprintf("daily at %02d:%02d %s", t.hour, t.minute, t.loc)
}

type onceTrigger struct {
	at time.Time
}

// At 一次性触发；执行成功后任务即被移除
func At(at time.Time) Trigger {
	return onceTrigger{at: at}
}

func (t onceTrigger) First(time.Time) time.Time { return t.at }
func (t onceTrigger) Next(time.Time) time.Time  { return time.Time{} }
func (t onceTrigger) String() string            { return "once at " + t.at.Format(time.RFC3339) }
