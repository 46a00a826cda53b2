package api

import (
	"context"
	"fmt"
	"time"

	"quote-ingestor/internal/model"
	"quote-ingestor/internal/service"
)

// CalendarSource 按月返回交易日历
type CalendarSource interface {
	Calendar(ctx context.Context, year int, month time.Month) ([]CalendarDay, error)
}

// CalendarAdapter 将月度日历转换为单日的 MarketSession
// 日历中的开收盘时间是 loc 时区的钟点
type CalendarAdapter struct {
	source CalendarSource
	loc    *time.Location
}

func NewCalendarAdapter(source CalendarSource, loc *time.Location) *CalendarAdapter {
	return &CalendarAdapter{source: source, loc: loc}
}

// GetSession 每次调用都重新拉取日历
func (a *CalendarAdapter) GetSession(ctx context.Context, date time.Time) (model.MarketSession, error) {
	day := date.In(a.loc)
	key := day.Format(time.DateOnly)

	days, err := a.source.Calendar(ctx, day.Year(), day.Month())
	if err != nil {
		return model.MarketSession{}, err
	}

	for _, d := range days {
		if d.Date != key {
			continue
		}
		return a.toSession(day, d)
	}
	return model.MarketSession{}, fmt.Errorf("calendar has no entry for %s", key)
}

func (a *CalendarAdapter) toSession(day time.Time, d CalendarDay) (model.MarketSession, error) {
	session := model.MarketSession{
		Date:        service.ClockOn(day, 0, 0, a.loc),
		Status:      model.SessionStatus(d.Status),
		Description: d.Description,
	}
	if !session.IsOpen() {
		return session, nil
	}

	oh, om, err := service.ParseClock(d.Open.Start)
	if err != nil {
		return model.MarketSession{}, fmt.Errorf("calendar %s open: %w", d.Date, err)
	}
	ch, cm, err := service.ParseClock(d.Open.End)
	if err != nil {
		return model.MarketSession{}, fmt.Errorf("calendar %s close: %w", d.Date, err)
	}
	session.Open = service.ClockOn(day, oh, om, a.loc)
	session.Close = service.ClockOn(day, ch, cm, a.loc)
	if !session.Open.Before(session.Close) {
		return model.MarketSession{}, fmt.Errorf("calendar %s: open %s not before close %s", d.Date, d.Open.Start, d.Open.End)
	}
	return session, nil
}
