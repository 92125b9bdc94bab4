package booking

import "time"

// Schedule is a doctor's recurring weekly availability, grouped by weekday.
// It is read-only to the booking path; slots are managed externally.
type Schedule struct {
	byDay map[time.Weekday][]TimeSlot
}

func NewSchedule(slots []TimeSlot) *Schedule {
	byDay := make(map[time.Weekday][]TimeSlot)
	for _, s := range slots {
		byDay[s.Weekday] = append(byDay[s.Weekday], s)
	}
	return &Schedule{byDay: byDay}
}

// SlotsOn returns the slots recurring on the given weekday.
func (sc *Schedule) SlotsOn(day time.Weekday) []TimeSlot {
	return sc.byDay[day]
}

// Contains reports whether [start,end) on the given date falls entirely
// inside one of the doctor's recurring slots for that weekday. A doctor with
// no slots that day is simply unavailable.
func (sc *Schedule) Contains(date time.Time, start, end TimeOfDay) bool {
	for _, slot := range sc.byDay[date.Weekday()] {
		if slot.Start <= start && end <= slot.End {
			return true
		}
	}
	return false
}

// ValidateSlots checks a doctor's slot set for the invariants the engine
// relies on: start before end and no two slots on the same weekday
// overlapping. Used when slots are loaded or edited.
func ValidateSlots(slots []TimeSlot) error {
	byDay := make(map[time.Weekday][]TimeSlot)
	for _, s := range slots {
		if s.Start >= s.End {
			return &SlotDefinitionError{Slot: s, Reason: "start must be before end"}
		}
		for _, other := range byDay[s.Weekday] {
			if Overlaps(s.Start, s.End, other.Start, other.End) {
				return &SlotDefinitionError{Slot: s, Reason: "overlaps another slot on the same weekday"}
			}
		}
		byDay[s.Weekday] = append(byDay[s.Weekday], s)
	}
	return nil
}

type SlotDefinitionError struct {
	Slot   TimeSlot
	Reason string
}

func (e *SlotDefinitionError) Error() string {
	return "invalid time slot " + e.Slot.Start.String() + "-" + e.Slot.End.String() + ": " + e.Reason
}
