package archive

import (
	"errors"
	"time"

	"github.com/robfig/cron/v3"
)

var errNoNextRun = errors.New("schedule never fires")

// ValidateCron reports whether expr is a schedule RunCron accepts: five
// standard fields (ranges, steps, lists and names) or an @ descriptor.
func ValidateCron(expr string) error {
	_, err := parseCron(expr)
	return err
}

func parseCron(expr string) (cron.Schedule, error) {
	return cron.ParseStandard(expr)
}

// nextRun is the first activation of s after t.
func nextRun(s cron.Schedule, t time.Time) (time.Time, error) {
	next := s.Next(t)
	if next.IsZero() {
		return time.Time{}, errNoNextRun
	}
	return next, nil
}
