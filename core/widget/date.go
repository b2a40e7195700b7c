package widget

import (
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/schoolstats/core"
	"github.com/trezcool/schoolstats/core/valuetree"
)

const dateLayout = "2006-01-02 15:04"

// DateValue converts a stored epoch-millisecond value to a time.
func DateValue(v interface{}, loc *time.Location) (time.Time, bool) {
	n := ToNumber(v)
	if n == 0 || n != n {
		return time.Time{}, false
	}
	return time.UnixMilli(int64(n)).In(loc), true
}

// SetDate stores t as an epoch-millisecond timestamp.
func SetDate(path string, t time.Time) []valuetree.Edit {
	if t.IsZero() {
		return edit(path, "")
	}
	return edit(path, t.UnixMilli())
}

// CombineDateTime returns the calendar day of day at the `HH:mm` time of day, seconds zeroed.
func CombineDateTime(day time.Time, hhmm string, loc *time.Location) (time.Time, error) {
	parts := strings.Split(strings.TrimSpace(hhmm), ":")
	if len(parts) != 2 {
		return time.Time{}, errors.Errorf("invalid time of day %q", hhmm)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return time.Time{}, errors.Errorf("invalid hours in %q", hhmm)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return time.Time{}, errors.Errorf("invalid minutes in %q", hhmm)
	}
	day = day.In(loc)
	return time.Date(day.Year(), day.Month(), day.Day(), h, m, 0, 0, loc), nil
}

// SelectDay moves the date to day, keeping the time of day of the current value.
func SelectDay(path string, current interface{}, day time.Time, loc *time.Location) []valuetree.Edit {
	hhmm := "00:00"
	if cur, ok := DateValue(current, loc); ok {
		hhmm = cur.Format("15:04")
	}
	t, _ := CombineDateTime(day, hhmm, loc)
	return SetDate(path, t)
}

// SetTimeOfDay changes the time of day of the current value, today when there is none.
func SetTimeOfDay(path string, current interface{}, hhmm string, loc *time.Location) ([]valuetree.Edit, error) {
	day, ok := DateValue(current, loc)
	if !ok {
		day = nowFunc().In(loc)
	}
	t, err := CombineDateTime(day, hhmm, loc)
	if err != nil {
		return nil, core.NewFieldError(path, err.Error())
	}
	return SetDate(path, t), nil
}

var nowFunc = time.Now

func renderDate(ctx RenderContext) (View, []valuetree.Edit) {
	v := baseView(ctx)
	v.Value = ctx.Value
	loc := ctx.Location
	if loc == nil {
		loc = time.Local
	}
	if t, ok := DateValue(ctx.Value, loc); ok {
		v.Display = t.Format(dateLayout)
	}
	return v, nil
}
