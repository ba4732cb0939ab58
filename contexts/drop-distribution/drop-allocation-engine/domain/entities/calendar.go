package entities

import "time"

const calendarDayLayout = "2006-01-02"

// CalendarDay is a YYYY-MM-DD date in a fixed zone.
type CalendarDay string

// DayOf returns the calendar day of t in loc. A nil loc means UTC.
func DayOf(t time.Time, loc *time.Location) CalendarDay {
	if loc == nil {
		loc = time.UTC
	}
	return CalendarDay(t.In(loc).Format(calendarDayLayout))
}

func (d CalendarDay) String() string {
	return string(d)
}
