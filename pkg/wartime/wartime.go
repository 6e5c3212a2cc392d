// Package wartime turns a day selector and a wall clock time into the absolute
// instant a war starts. All calculations happen in one fixed zone.
package wartime

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// ErrInvalidFormat is returned when the clock time is not HH:MM (24h)
var ErrInvalidFormat = errors.New("invalid time format, expected HH:MM")

// DefaultLocation is the war zone, UTC+7
var DefaultLocation = time.FixedZone("UTC+7", 7*60*60)

// Day is a normalized day selector
type Day string

const (
	Today     Day = "today"
	Tomorrow  Day = "tomorrow"
	NextWeek  Day = "next week"
	Monday    Day = "monday"
	Tuesday   Day = "tuesday"
	Wednesday Day = "wednesday"
	Thursday  Day = "thursday"
	Friday    Day = "friday"
	Saturday  Day = "saturday"
	Sunday    Day = "sunday"
)

// UnknownDayPolicy is what an unrecognized selector resolves to
const UnknownDayPolicy = Today

var clockPattern = regexp.MustCompile(`^([01]\d|2[0-3]):([0-5]\d)$`)

var weekdays = map[Day]time.Weekday{
	Monday:    time.Monday,
	Tuesday:   time.Tuesday,
	Wednesday: time.Wednesday,
	Thursday:  time.Thursday,
	Friday:    time.Friday,
	Saturday:  time.Saturday,
	Sunday:    time.Sunday,
}

var aliases = map[string]Day{
	"today":     Today,
	"tomorrow":  Tomorrow,
	"tmrw":      Tomorrow,
	"next week": NextWeek,
	"next_week": NextWeek,
	"nextweek":  NextWeek,
	"mon":       Monday,
	"tue":       Tuesday,
	"wed":       Wednesday,
	"thu":       Thursday,
	"fri":       Friday,
	"sat":       Saturday,
	"sun":       Sunday,
}

// ParseDay normalizes a selector. The second result is false when the
// selector was not recognized and UnknownDayPolicy was applied.
func ParseDay(selector string) (Day, bool) {
	s := strings.Join(strings.Fields(strings.ToLower(selector)), " ")
	if d, ok := aliases[s]; ok {
		return d, true
	}
	if _, ok := weekdays[Day(s)]; ok {
		return Day(s), true
	}
	return UnknownDayPolicy, false
}

// ParseClock validates an HH:MM string and returns hour and minute
func ParseClock(clock string) (int, int, error) {
	m := clockPattern.FindStringSubmatch(clock)
	if m == nil {
		return 0, 0, fmt.Errorf("%w: %q", ErrInvalidFormat, clock)
	}
	h, _ := strconv.Atoi(m[1])
	minute, _ := strconv.Atoi(m[2])
	return h, minute, nil
}

// Resolve returns the instant for daySelector at clock, relative to now, in loc.
// A nil loc means DefaultLocation.
//
// A named weekday always means a future day, never today. "today" rolls over
// to tomorrow when the time has already passed.
func Resolve(daySelector, clock string, now time.Time, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = DefaultLocation
	}
	hour, minute, err := ParseClock(clock)
	if err != nil {
		return time.Time{}, err
	}

	local := now.In(loc)
	day, _ := ParseDay(daySelector)

	offset := 0
	switch day {
	case Tomorrow:
		offset = 1
	case NextWeek:
		offset = 7
	case Today:
	default:
		offset = int(weekdays[day]-local.Weekday()+7) % 7
		if offset == 0 {
			offset = 7
		}
	}

	target := time.Date(local.Year(), local.Month(), local.Day()+offset, hour, minute, 0, 0, loc)
	if day == Today && !target.After(local) {
		target = target.AddDate(0, 0, 1)
	}
	return target, nil
}

// Display formats an instant the way it is shown to users, e.g. "Friday 20:00"
func Display(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = DefaultLocation
	}
	return t.In(loc).Format("Monday 15:04")
}

// Location returns a fixed zone for a whole-hour UTC offset
func Location(offsetHours int) *time.Location {
	if offsetHours == 7 {
		return DefaultLocation
	}
	name := fmt.Sprintf("UTC%+d", offsetHours)
	if offsetHours == 0 {
		name = "UTC"
	}
	return time.FixedZone(name, offsetHours*60*60)
}
