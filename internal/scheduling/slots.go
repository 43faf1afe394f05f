package scheduling

import (
	"time"
)

const (
	// SlotDuration is the fixed length of every bookable slot.
	SlotDuration = 30 * time.Minute
	// DefaultHorizonDays is today plus the following three days.
	DefaultHorizonDays = 4

	DateLayout    = "2006-01-02"
	DisplayLayout = "Monday, January 2"
	clockLayout   = "3:04 PM"
)

type WindowStatus string

const (
	WindowAvailable   WindowStatus = "AVAILABLE"
	WindowUnavailable WindowStatus = "UNAVAILABLE"
)

// Window is a doctor's recurring daily availability, interpreted in Location.
type Window struct {
	Start    TimeOfDay
	End      TimeOfDay
	Status   WindowStatus
	Location *time.Location
}

type Slot struct {
	Start time.Time `json:"start_time"`
	End   time.Time `json:"end_time"`
	Label string    `json:"formatted"`
	Day   string    `json:"day"`
}

func (s Slot) Interval() Interval {
	return Interval{Start: s.Start, End: s.End}
}

// DaySlots holds the free slots of one calendar day. Slots is never nil.
type DaySlots struct {
	Date        string `json:"date"`
	DisplayDate string `json:"display_date"`
	Slots       []Slot `json:"slots"`
}

func (w Window) location() *time.Location {
	if w.Location == nil {
		return time.UTC
	}
	return w.Location
}

// GenerateSlots lists the free slots of w for horizonDays calendar days,
// starting with the day that contains ref in the window's location.
//
// Every day of the horizon is present in the result, in ascending order, even
// when it has no free slot. Slots whose end is not after ref are skipped, and so
// are slots overlapping any of booked. A window whose end is not after its start
// yields empty days. GenerateSlots has no side effects.
func GenerateSlots(w Window, booked []Interval, ref time.Time, horizonDays int) []DaySlots {
	if horizonDays <= 0 {
		horizonDays = DefaultHorizonDays
	}
	loc := w.location()
	y, m, d := ref.In(loc).Date()

	days := make([]DaySlots, 0, horizonDays)
	for i := 0; i < horizonDays; i++ {
		date := time.Date(y, m, d+i, 0, 0, 0, 0, loc)
		day := DaySlots{
			Date:        date.Format(DateLayout),
			DisplayDate: date.Format(DisplayLayout),
			Slots:       []Slot{},
		}
		if w.Status == WindowAvailable {
			day.Slots = daySlots(w, date, booked, ref)
		}
		days = append(days, day)
	}
	return days
}

func daySlots(w Window, date time.Time, booked []Interval, ref time.Time) []Slot {
	loc := w.location()
	dayStart := w.Start.On(date.Year(), date.Month(), date.Day(), loc)
	dayEnd := w.End.On(date.Year(), date.Month(), date.Day(), loc)

	slots := []Slot{}
	if !dayEnd.After(dayStart) {
		return slots
	}

	for cursor := dayStart; cursor.Before(dayEnd); cursor = cursor.Add(SlotDuration) {
		next := cursor.Add(SlotDuration)
		if next.After(dayEnd) {
			break
		}
		if !next.After(ref) {
			continue
		}
		candidate := Interval{Start: cursor, End: next}
		if OverlapsAny(candidate, booked) {
			continue
		}
		slots = append(slots, Slot{
			Start: cursor,
			End:   next,
			Label: cursor.Format(clockLayout) + " - " + next.Format(clockLayout),
			Day:   cursor.Format(DisplayLayout),
		})
	}
	return slots
}

// Horizon returns the span from midnight of ref's day to midnight after the
// last horizon day, in loc. Bookings outside it cannot affect GenerateSlots.
func Horizon(ref time.Time, loc *time.Location, horizonDays int) Interval {
	if loc == nil {
		loc = time.UTC
	}
	if horizonDays <= 0 {
		horizonDays = DefaultHorizonDays
	}
	y, m, d := ref.In(loc).Date()
	return Interval{
		Start: time.Date(y, m, d, 0, 0, 0, 0, loc),
		End:   time.Date(y, m, d+horizonDays, 0, 0, 0, 0, loc),
	}
}
