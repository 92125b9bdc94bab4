package booking

import (
	"time"

	"github.com/google/uuid"
)

type AppointmentStatus string

const (
	StatusPending   AppointmentStatus = "pending"
	StatusConfirmed AppointmentStatus = "confirmed"
	StatusCancelled AppointmentStatus = "cancelled"
	StatusCompleted AppointmentStatus = "completed"
)

// Live reports whether an appointment in this status still occupies its
// interval for conflict purposes. Cancelled and completed appointments
// never block a new booking.
func (s AppointmentStatus) Live() bool {
	return s == StatusPending || s == StatusConfirmed
}

type Doctor struct {
	ID        uuid.UUID
	Name      string
	Specialty *string
	Timezone  string
	FeeCents  int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Location resolves the doctor's configured IANA timezone. All of the
// doctor's slot and appointment times are wall-clock in this location.
func (d *Doctor) Location() (*time.Location, error) {
	if d.Timezone == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(d.Timezone)
}

type Patient struct {
	ID        uuid.UUID
	Name      string
	Email     *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// TimeSlot is one recurring weekly window during which a doctor accepts
// bookings, e.g. every Monday 09:00-12:00.
type TimeSlot struct {
	ID        uuid.UUID
	DoctorID  uuid.UUID
	Weekday   time.Weekday
	Start     TimeOfDay
	End       TimeOfDay
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Appointment struct {
	ID        uuid.UUID
	DoctorID  uuid.UUID
	PatientID uuid.UUID
	Date      time.Time // calendar date, time part zero
	Start     TimeOfDay
	End       TimeOfDay
	Status    AppointmentStatus
	Notes     string
	FeeCents  int64 // doctor's consultation fee captured at booking time
	CreatedAt time.Time
	UpdatedAt time.Time
}

// StartsAt returns the appointment start as an instant in the given location.
func (a *Appointment) StartsAt(loc *time.Location) time.Time {
	y, m, d := a.Date.Date()
	return time.Date(y, m, d, 0, a.Start.Minutes(), 0, 0, loc)
}

// EndsAt returns the appointment end as an instant in the given location.
func (a *Appointment) EndsAt(loc *time.Location) time.Time {
	y, m, d := a.Date.Date()
	return time.Date(y, m, d, 0, a.End.Minutes(), 0, 0, loc)
}

type Reminder struct {
	ID            uuid.UUID
	AppointmentID uuid.UUID
	DueAt         time.Time
	Sent          bool
	SentAt        *time.Time
	CreatedAt     time.Time
}

type MonthlyReport struct {
	DoctorID           uuid.UUID
	Year               int
	Month              time.Month
	TotalAppointments  int
	TotalPatients      int
	TotalEarningsCents int64
	GeneratedAt        time.Time
}

type EventLog struct {
	ID            int64
	EventType     string
	AppointmentID *uuid.UUID
	Payload       []byte
	CreatedAt     time.Time
}
