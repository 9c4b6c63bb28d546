package queue

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Schedule determines when a periodic job runs next.
type Schedule interface {
	Next(from time.Time) time.Time
	String() string
}

type intervalSchedule struct {
	every time.Duration
}

func (s intervalSchedule) Next(from time.Time) time.Time {
	return from.Add(s.every)
}

func (s intervalSchedule) String() string {
	return fmt.Sprintf("every %v", s.every)
}

type hourlySchedule struct {
	minute int
}

func (s hourlySchedule) Next(from time.Time) time.Time {
	next := time.Date(from.Year(), from.Month(), from.Day(), from.Hour(), s.minute, 0, 0, from.Location())
	if !next.After(from) {
		next = next.Add(time.Hour)
	}
	return next
}

func (s hourlySchedule) String() string {
	return fmt.Sprintf("hourly at :%02d", s.minute)
}

type dailySchedule struct {
	hour   int
	minute int
}

func (s dailySchedule) Next(from time.Time) time.Time {
	next := time.Date(from.Year(), from.Month(), from.Day(), s.hour, s.minute, 0, 0, from.Location())
	if !next.After(from) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

func (s dailySchedule) String() string {
	return fmt.Sprintf("daily at %02d:%02d", s.hour, s.minute)
}

// EveryInterval runs a job every d.
func EveryInterval(d time.Duration) Schedule {
	return intervalSchedule{every: d}
}

// HourlyAt runs a job every hour at the given minute.
func HourlyAt(minute int) Schedule {
	return hourlySchedule{minute: minute}
}

// DailyAt runs a job once a day at hour:minute in the scheduler's clock location.
func DailyAt(hour, minute int) Schedule {
	return dailySchedule{hour: hour, minute: minute}
}

// ParseSchedule reads the textual forms used in configuration:
//
//	every 15m
//	hourly :05
//	daily 03:30
func ParseSchedule(s string) (Schedule, error) {
	kind, arg, ok := strings.Cut(strings.TrimSpace(s), " ")
	if !ok {
		return nil, errors.Join(ErrInvalidSchedule, fmt.Errorf("%q", s))
	}
	arg = strings.TrimSpace(arg)

	switch strings.ToLower(kind) {
	case "every":
		d, err := time.ParseDuration(arg)
		if err != nil || d <= 0 {
			return nil, errors.Join(ErrInvalidSchedule, fmt.Errorf("%q: positive duration expected", s))
		}
		return EveryInterval(d), nil
	case "hourly":
		m, err := strconv.Atoi(strings.TrimPrefix(arg, ":"))
		if err != nil || m < 0 || m > 59 {
			return nil, errors.Join(ErrInvalidSchedule, fmt.Errorf("%q: minute 0-59 expected", s))
		}
		return HourlyAt(m), nil
	case "daily":
		t, err := time.Parse("15:04", arg)
		if err != nil {
			return nil, errors.Join(ErrInvalidSchedule, fmt.Errorf("%q: HH:MM expected", s))
		}
		return DailyAt(t.Hour(), t.Minute()), nil
	}
	return nil, errors.Join(ErrInvalidSchedule, fmt.Errorf("%q: unknown kind %q", s, kind))
}
