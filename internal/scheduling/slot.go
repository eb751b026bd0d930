package scheduling

import (
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
)

// SlotResolver turns loose date and time preferences into a concrete meeting
// start in the sales team's timezone.
type SlotResolver struct {
	loc           *time.Location
	now           func() time.Time
	defaultHour   int
	defaultMinute int
	parser        *when.Parser
}

func NewSlotResolver(loc *time.Location, now func() time.Time, defaultHour, defaultMinute int) *SlotResolver {
	if loc == nil {
		loc = time.UTC
	}
	if now == nil {
		now = time.Now
	}
	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)

	return &SlotResolver{
		loc:           loc,
		now:           now,
		defaultHour:   defaultHour,
		defaultMinute: defaultMinute,
		parser:        w,
	}
}

func (r *SlotResolver) Location() *time.Location {
	return r.loc
}

func (r *SlotResolver) today() time.Time {
	return startOfDay(r.now().In(r.loc))
}

// NextBusinessDay is tomorrow, or the following Monday when tomorrow falls
// on a weekend.
func (r *SlotResolver) NextBusinessDay() time.Time {
	return rollWeekend(r.today().AddDate(0, 0, 1))
}

// ResolveSlot picks the meeting start for the given preferences. Anything it
// cannot parse falls back to the next business day at the default time.
func (r *SlotResolver) ResolveSlot(datePref, timePref string) time.Time {
	day := r.resolveDate(datePref)
	hour, minute := r.resolveTime(timePref, day)

	slot := time.Date(day.Year(), day.Month(), day.Day(), hour, minute, 0, 0, r.loc)
	if !slot.After(r.now()) {
		next := r.NextBusinessDay()
		slot = time.Date(next.Year(), next.Month(), next.Day(), hour, minute, 0, 0, r.loc)
	}
	return slot
}

func (r *SlotResolver) resolveDate(pref string) time.Time {
	pref = strings.TrimSpace(pref)
	if pref == "" {
		return r.NextBusinessDay()
	}

	today := r.today()
	day, ok := r.parseDate(pref, today)
	if !ok {
		return r.NextBusinessDay()
	}

	// prefer the future: "monday" said on a wednesday means next monday,
	// "january 5" said in october means next january
	if day.Before(today) {
		if !day.AddDate(0, 0, 7).Before(today) {
			day = day.AddDate(0, 0, 7)
		}
		for day.Before(today) {
			day = day.AddDate(1, 0, 0)
		}
	}
	return rollWeekend(day)
}

func (r *SlotResolver) parseDate(pref string, base time.Time) (time.Time, bool) {
	if res, err := r.parser.Parse(pref, base); err == nil && res != nil {
		return startOfDay(res.Time.In(r.loc)), true
	}
	if t, err := dateparse.ParseIn(pref, r.loc); err == nil {
		return startOfDay(t.In(r.loc)), true
	}
	return time.Time{}, false
}

func (r *SlotResolver) resolveTime(pref string, day time.Time) (int, int) {
	pref = strings.TrimSpace(pref)
	if pref == "" {
		return r.defaultHour, r.defaultMinute
	}
	res, err := r.parser.Parse(pref, day)
	if err != nil || res == nil {
		return r.defaultHour, r.defaultMinute
	}
	t := res.Time.In(r.loc)
	return t.Hour(), t.Minute()
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

func rollWeekend(day time.Time) time.Time {
	switch day.Weekday() {
	case time.Saturday:
		return day.AddDate(0, 0, 2)
	case time.Sunday:
		return day.AddDate(0, 0, 1)
	}
	return day
}
