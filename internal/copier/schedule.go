package copier

import (
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// Schedule yields the next time the listing should be polled.
type Schedule interface {
	Next(now time.Time) time.Time
}

// Every polls a fixed interval after the previous cycle finished.
type Every time.Duration

func (e Every) Next(now time.Time) time.Time {
	return now.Add(time.Duration(e))
}

// ParseSchedule returns a cron schedule when expr is set (standard five fields), otherwise a fixed
// interval.
func ParseSchedule(expr string, interval time.Duration) (Schedule, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		if interval <= 0 {
			return nil, fmt.Errorf("poll interval must be positive")
		}
		return Every(interval), nil
	}
	schedule, err := cron.ParseStandard(expr)
	if err != nil {
		return nil, fmt.Errorf("parse poll schedule %q: %w", expr, err)
	}
	return schedule, nil
}
