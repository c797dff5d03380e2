package icron

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

type TriggerInfo struct {
	Next       time.Time
	Last       time.Time
	Expression string

	TimeSinceLast time.Duration
	TimeUntilNext time.Duration
}

// Parse accepts standard five-field expressions and descriptors such as "@every 10m".
func Parse(cronExpr string) (cron.Schedule, error) {
	schedule, err := cron.ParseStandard(cronExpr)
	if err != nil {
		return nil, fmt.Errorf("invalid cron expression: %w", err)
	}
	return schedule, nil
}

// GetTriggerInfo describes the next run after refTime. last is the previous
// actual run, zero when nothing has run yet.
func GetTriggerInfo(cronExpr string, refTime, last time.Time) (*TriggerInfo, error) {
	schedule, err := Parse(cronExpr)
	if err != nil {
		return nil, err
	}

	nextTime := schedule.Next(refTime)
	info := &TriggerInfo{
		Expression:    cronExpr,
		Next:          nextTime,
		Last:          last,
		TimeUntilNext: nextTime.Sub(refTime),
	}
	if !last.IsZero() {
		info.TimeSinceLast = refTime.Sub(last)
	}
	return info, nil
}
