package gtfs

import (
	"fmt"
	"time"
)

// ServiceDay is the class of day a schedule is analyzed for
type ServiceDay string

const (
	Weekday  ServiceDay = "weekday"
	Saturday ServiceDay = "saturday"
	Sunday   ServiceDay = "sunday"
)

const gtfsDateLayout = "20060102"

// ServiceSelector picks the services that run on the analyzed day. When Date is
// set the calendar ranges and calendar_dates exceptions are honoured for that
// exact date and Day is ignored.
type ServiceSelector struct {
	Day  ServiceDay
	Date time.Time
}

// ParseServiceSelector builds a selector from config values. date may be empty.
func ParseServiceSelector(day, date string) (ServiceSelector, error) {
	sel := ServiceSelector{Day: ServiceDay(day)}
	switch sel.Day {
	case Weekday, Saturday, Sunday:
	case "":
		sel.Day = Weekday
	default:
		return sel, fmt.Errorf("unknown service day %q", day)
	}
	if date != "" {
		d, err := time.Parse("2006-01-02", date)
		if err != nil {
			return sel, fmt.Errorf("invalid analysis date %q: %w", date, err)
		}
		sel.Date = d
	}
	return sel, nil
}

func (s ServiceSelector) String() string {
	if !s.Date.IsZero() {
		return s.Date.Format("2006-01-02")
	}
	return string(s.Day)
}

func (c CalendarRecord) runsOn(day time.Weekday) bool {
	flags := [7]int{c.Sunday, c.Monday, c.Tuesday, c.Wednesday, c.Thursday, c.Friday, c.Saturday}
	return flags[day] == 1
}

func (c CalendarRecord) runsOnServiceDay(day ServiceDay) bool {
	switch day {
	case Weekday:
		return c.Monday == 1 && c.Tuesday == 1 && c.Wednesday == 1 && c.Thursday == 1 && c.Friday == 1
	case Saturday:
		return c.Saturday == 1
	case Sunday:
		return c.Sunday == 1
	}
	return false
}

type dateRange struct {
	start, end time.Time
}

// activeServices returns the service IDs running on the selected day. Two
// calendar rows for one service with overlapping date ranges are ambiguous
// and reported as ErrDataIntegrity.
func activeServices(feed *Feed, sel ServiceSelector, warnings *WarningAggregator) (map[string]bool, error) {
	ranges := map[string][]dateRange{}
	active := map[string]bool{}

	for _, c := range feed.Calendars {
		start, errS := time.Parse(gtfsDateLayout, c.Start)
		end, errE := time.Parse(gtfsDateLayout, c.End)
		if errS != nil || errE != nil {
			warnings.Add(WarningBadCalendarDates, c.ServiceID)
			continue
		}
		if end.Before(start) {
			return nil, fmt.Errorf("%w: calendar for service %s ends %s before it starts %s",
				ErrDataIntegrity, c.ServiceID, c.End, c.Start)
		}
		for _, r := range ranges[c.ServiceID] {
			if !start.After(r.end) && !r.start.After(end) {
				return nil, fmt.Errorf("%w: overlapping calendar entries for service %s",
					ErrDataIntegrity, c.ServiceID)
			}
		}
		ranges[c.ServiceID] = append(ranges[c.ServiceID], dateRange{start, end})

		if sel.Date.IsZero() {
			if c.runsOnServiceDay(sel.Day) {
				active[c.ServiceID] = true
			}
			continue
		}
		if !sel.Date.Before(start) && !sel.Date.After(end) && c.runsOn(sel.Date.Weekday()) {
			active[c.ServiceID] = true
		}
	}

	if sel.Date.IsZero() {
		if len(feed.Calendars) == 0 && len(feed.CalendarDates) > 0 {
			warnings.Add(WarningCalendarDatesOnly, "calendar_dates.txt")
		}
		return active, nil
	}

	want := sel.Date.Format(gtfsDateLayout)
	for _, cd := range feed.CalendarDates {
		if cd.Date != want {
			continue
		}
		switch cd.ExceptionType {
		case 1:
			active[cd.ServiceID] = true
		case 2:
			delete(active, cd.ServiceID)
		default:
			warnings.Add(WarningBadException, cd.ServiceID)
		}
	}
	return active, nil
}
