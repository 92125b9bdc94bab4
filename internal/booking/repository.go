package booking

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrDoctorNotFound      = errors.New("doctor not found")
	ErrPatientNotFound     = errors.New("patient not found")
	ErrAppointmentNotFound = errors.New("appointment not found")
	ErrReminderNotFound    = errors.New("reminder not found")
	ErrReportNotFound      = errors.New("monthly report not found")

	// ErrIntervalTaken is returned by CreateAppointment when the storage
	// layer's no-overlap constraint rejects the row. It means this writer
	// lost a race that the in-process validation did not observe.
	ErrIntervalTaken = errors.New("interval already taken")
)

// ApptWithTimezone pairs an appointment with its doctor's timezone so batch
// jobs can anchor wall-clock times without a lookup per row.
type ApptWithTimezone struct {
	Appointment
	DoctorTimezone string
}

// MonthTotals is the raw aggregate the report builder computes over one
// doctor's month.
type MonthTotals struct {
	Appointments  int
	Patients      int
	EarningsCents int64
}

// Repository contains all DB interactions needed by the engine.
type Repository interface {
	GetDoctorByID(ctx context.Context, id uuid.UUID) (*Doctor, error)
	GetPatientByID(ctx context.Context, id uuid.UUID) (*Patient, error)

	// Weekly availability
	ListSlots(ctx context.Context, doctorID uuid.UUID) ([]TimeSlot, error)

	// Ledger
	FindOverlapping(ctx context.Context, doctorID uuid.UUID, date time.Time, start, end TimeOfDay) ([]Appointment, error)
	CreateAppointment(ctx context.Context, a *Appointment) (*Appointment, error)
	GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	ListAppointmentsForDay(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]Appointment, error)
	UpdateAppointmentStatus(ctx context.Context, id uuid.UUID, to AppointmentStatus, from ...AppointmentStatus) (*Appointment, error)

	// Reminder scheduler
	ListConfirmedBetweenDates(ctx context.Context, fromDate, toDate time.Time) ([]ApptWithTimezone, error)
	EnsureReminder(ctx context.Context, appointmentID uuid.UUID, dueAt time.Time) (*Reminder, error)
	GetReminderByID(ctx context.Context, id uuid.UUID) (*Reminder, error)
	MarkReminderSent(ctx context.Context, id uuid.UUID, at time.Time) (*Reminder, error)

	// Completion sweep
	ListLiveOnOrBefore(ctx context.Context, date time.Time) ([]ApptWithTimezone, error)

	// Monthly reports
	ListDoctorsWithAppointmentsIn(ctx context.Context, from, to time.Time) ([]uuid.UUID, error)
	AggregateMonth(ctx context.Context, doctorID uuid.UUID, from, to time.Time) (MonthTotals, error)
	UpsertMonthlyReport(ctx context.Context, r *MonthlyReport) (*MonthlyReport, error)
	GetMonthlyReport(ctx context.Context, doctorID uuid.UUID, year int, month time.Month) (*MonthlyReport, error)

	// Event logging
	InsertEvent(ctx context.Context, ev EventLog) error
}
