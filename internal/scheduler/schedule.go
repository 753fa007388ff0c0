package scheduler

import (
	"fmt"
	"time"

	"ems3/internal/domain"

	"github.com/robfig/cron/v3"
)

var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// onceSchedule fires at a single instant and is exhausted afterwards; cron
// never runs an entry whose next time is zero.
type onceSchedule struct {
	at time.Time
}

func (s onceSchedule) Next(t time.Time) time.Time {
	if t.Before(s.at) {
		return s.at
	}
	return time.Time{}
}

// buildSchedule validates a trigger and turns it into a cron schedule. Past
// one-shot times are rejected unless allowPast is set, which is used when
// reloading tasks that already fired.
func buildSchedule(t domain.Trigger, now time.Time, allowPast bool) (cron.Schedule, error) {
	switch t.Kind {
	case domain.TriggerCron:
		sched, err := cronParser.Parse(t.Cron)
		if err != nil {
			return nil, fmt.Errorf("%w: cron %q: %v", domain.ErrInvalidTrigger, t.Cron, err)
		}
		return sched, nil
	case domain.TriggerInterval:
		if t.Interval < time.Second {
			return nil, fmt.Errorf("%w: interval must be at least one second", domain.ErrInvalidTrigger)
		}
		return cron.Every(t.Interval), nil
	case domain.TriggerOnce:
		if t.At.IsZero() {
			return nil, fmt.Errorf("%w: missing date", domain.ErrInvalidTrigger)
		}
		if !allowPast && !t.At.After(now) {
			return nil, fmt.Errorf("%w: %s is in the past", domain.ErrInvalidTrigger, t.At.Format(time.RFC3339))
		}
		return onceSchedule{at: t.At}, nil
	}
	return nil, fmt.Errorf("%w: unknown trigger kind %q", domain.ErrInvalidTrigger, t.Kind)
}
