package models

import (
	"errors"
	"fmt"
	"time"
)

const DateLayout = "2006-01-02"

var ErrInvalidRange = errors.New("date range end is before start")

// Day truncates t to a UTC calendar day.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func ParseDay(s string) (time.Time, error) {
	t, err := time.ParseInLocation(DateLayout, s, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse date %q: %w", s, err)
	}
	return t, nil
}

// DateRange is an inclusive range of calendar days.
type DateRange struct {
	Start time.Time
	End   time.Time
}

func NewDateRange(start, end time.Time) (DateRange, error) {
	r := DateRange{Start: Day(start), End: Day(end)}
	if err := r.Validate(); err != nil {
		return DateRange{}, err
	}
	return r, nil
}

func (r DateRange) Validate() error {
	if r.Start.IsZero() || r.End.IsZero() {
		return errors.New("date range bounds are required")
	}
	if Day(r.End).Before(Day(r.Start)) {
		return ErrInvalidRange
	}
	return nil
}

// Days returns the number of calendar days covered.
func (r DateRange) Days() int {
	return int(Day(r.End).Sub(Day(r.Start)).Hours()/24) + 1
}

func (r DateRange) Contains(d time.Time) bool {
	d = Day(d)
	return !d.Before(Day(r.Start)) && !d.After(Day(r.End))
}

func (r DateRange) Overlaps(o DateRange) bool {
	return !Day(r.End).Before(Day(o.Start)) && !Day(o.End).Before(Day(r.Start))
}

// Index returns the offset of d from the start of r.
func (r DateRange) Index(d time.Time) int {
	return int(Day(d).Sub(Day(r.Start)).Hours() / 24)
}

// Each calls fn for every day in the range in order.
func (r DateRange) Each(fn func(d time.Time)) {
	end := Day(r.End)
	for d := Day(r.Start); !d.After(end); d = d.AddDate(0, 0, 1) {
		fn(d)
	}
}

func (r DateRange) String() string {
	return Day(r.Start).Format(DateLayout) + ".." + Day(r.End).Format(DateLayout)
}
