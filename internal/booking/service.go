package booking

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/clinicbook/booking-engine/internal/config"
	"github.com/clinicbook/booking-engine/internal/metrics"
	redisclient "github.com/clinicbook/booking-engine/internal/redis"
)

const (
	EventAppointmentBooked    = "APPOINTMENT_BOOKED"
	EventAppointmentCancelled = "APPOINTMENT_CANCELLED"
	EventAppointmentCompleted = "APPOINTMENT_COMPLETED"
	EventReminderSent         = "REMINDER_SENT"
	EventReportGenerated      = "REPORT_GENERATED"
)

var (
	ErrInvalidInterval     = errors.New("start must be before end")
	ErrDateInPast          = errors.New("date is in the past")
	ErrOutsideAvailability = errors.New("requested time is outside the doctor's availability")
	ErrSlotConflict        = errors.New("requested time conflicts with an existing appointment")
	ErrDoctorBusy          = errors.New("doctor's calendar is being updated, please retry")
	ErrAlreadyCompleted    = errors.New("appointment is already completed")
	ErrTooLateToCancel     = errors.New("too close to the appointment start to cancel")
	ErrMonthNotElapsed     = errors.New("month has not fully elapsed yet")
	ErrInvalidMonth        = errors.New("month must be between 1 and 12")
)

// ConflictError names the live appointment that blocks a requested interval.
// It matches ErrSlotConflict under errors.Is so callers can branch on the
// rejection class and still surface the conflicting ID.
type ConflictError struct {
	ConflictingID uuid.UUID
}

func (e *ConflictError) Error() string {
	if e.ConflictingID == uuid.Nil {
		return ErrSlotConflict.Error()
	}
	return fmt.Sprintf("conflicts with appointment %s", e.ConflictingID)
}

func (e *ConflictError) Is(target error) bool { return target == ErrSlotConflict }

type BookingRequest struct {
	DoctorID  uuid.UUID
	PatientID uuid.UUID
	Date      time.Time
	Start     TimeOfDay
	End       TimeOfDay
	Notes     string
}

type Service struct {
	repo    Repository
	locker  redisclient.Locker
	cfg     config.Config
	metrics *metrics.EngineMetrics
	now     func() time.Time
}

func NewService(repo Repository, locker redisclient.Locker, cfg config.Config, m *metrics.EngineMetrics) *Service {
	return &Service{
		repo:    repo,
		locker:  locker,
		cfg:     cfg,
		metrics: m,
		now:     time.Now,
	}
}

// DateOnly strips the time and location from t, keeping the calendar date.
func DateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Book validates a requested appointment against the doctor's weekly
// availability and the existing ledger, and creates it on success.
//
// Checks run in order and the first failure wins, so the caller always gets
// the most specific reason: interval shape, then date, then availability,
// then conflicts. The availability and conflict checks plus the insert run
// under the per-doctor lock so two concurrent requests cannot both observe
// the pre-write ledger and double-book.
func (s *Service) Book(ctx context.Context, req BookingRequest) (*Appointment, error) {
	started := s.now()

	appt, err := s.book(ctx, req)
	s.observeBooking(err, time.Since(started))
	return appt, err
}

func (s *Service) book(ctx context.Context, req BookingRequest) (*Appointment, error) {
	if req.Start >= req.End {
		return nil, ErrInvalidInterval
	}

	doctor, err := s.repo.GetDoctorByID(ctx, req.DoctorID)
	if err != nil {
		if errors.Is(err, ErrDoctorNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load doctor: %w", err)
	}

	if _, err := s.repo.GetPatientByID(ctx, req.PatientID); err != nil {
		if errors.Is(err, ErrPatientNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load patient: %w", err)
	}

	loc, err := doctor.Location()
	if err != nil {
		return nil, fmt.Errorf("resolve doctor timezone %q: %w", doctor.Timezone, err)
	}

	date := DateOnly(req.Date)
	today := DateOnly(s.now().In(loc))
	if date.Before(today) {
		return nil, ErrDateInPast
	}

	var created *Appointment

	err = s.locker.WithDoctorLock(ctx, doctor.ID, func(lockCtx context.Context) error {
		slots, err := s.repo.ListSlots(lockCtx, doctor.ID)
		if err != nil {
			return fmt.Errorf("load slots: %w", err)
		}
		if !NewSchedule(slots).Contains(date, req.Start, req.End) {
			return ErrOutsideAvailability
		}

		appt, err := s.insertChecked(lockCtx, doctor, req, date)
		if err != nil {
			return err
		}

		created = appt
		return nil
	})

	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			s.metrics.ObserveLockContention()
			return nil, ErrDoctorBusy
		}
		return nil, err
	}

	s.logEvent(ctx, created.ID, EventAppointmentBooked, map[string]any{
		"doctor_id":  req.DoctorID.String(),
		"patient_id": req.PatientID.String(),
		"date":       date.Format("2006-01-02"),
		"start":      req.Start.String(),
		"end":        req.End.String(),
		"status":     string(created.Status),
	})

	return created, nil
}

// insertChecked runs the conflict check and insert. If the storage layer's
// exclusion constraint still rejects the row (a writer outside this lock,
// e.g. a lock expiry during a slow request), it re-validates once against
// fresh state so the caller gets a ConflictError naming the winner.
func (s *Service) insertChecked(ctx context.Context, doctor *Doctor, req BookingRequest, date time.Time) (*Appointment, error) {
	for attempt := 0; attempt < 2; attempt++ {
		overlapping, err := s.repo.FindOverlapping(ctx, doctor.ID, date, req.Start, req.End)
		if err != nil {
			return nil, fmt.Errorf("check overlapping: %w", err)
		}
		if len(overlapping) > 0 {
			return nil, &ConflictError{ConflictingID: overlapping[0].ID}
		}

		status := StatusPending
		if s.cfg.AutoConfirm {
			status = StatusConfirmed
		}

		appt, err := s.repo.CreateAppointment(ctx, &Appointment{
			DoctorID:  doctor.ID,
			PatientID: req.PatientID,
			Date:      date,
			Start:     req.Start,
			End:       req.End,
			Status:    status,
			Notes:     req.Notes,
			FeeCents:  doctor.FeeCents,
		})
		if err == nil {
			return appt, nil
		}
		if !errors.Is(err, ErrIntervalTaken) {
			return nil, fmt.Errorf("create appointment: %w", err)
		}
	}
	return nil, &ConflictError{}
}

// Cancel marks an appointment cancelled, freeing its interval immediately.
// Cancelling an already cancelled appointment is a no-op. Completed
// appointments, including live ones whose end time has already passed, are
// rejected with ErrAlreadyCompleted.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	appt, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load appointment: %w", err)
	}

	switch appt.Status {
	case StatusCompleted:
		return nil, ErrAlreadyCompleted
	case StatusCancelled:
		return appt, nil
	}

	doctor, err := s.repo.GetDoctorByID(ctx, appt.DoctorID)
	if err != nil {
		return nil, fmt.Errorf("load doctor: %w", err)
	}
	loc, err := doctor.Location()
	if err != nil {
		return nil, fmt.Errorf("resolve doctor timezone %q: %w", doctor.Timezone, err)
	}

	now := s.now()

	// Completion is time-derived: a live appointment whose end has passed
	// counts as completed even if the sweep has not caught up with it.
	if !appt.EndsAt(loc).After(now) {
		if _, err := s.repo.UpdateAppointmentStatus(ctx, appt.ID, StatusCompleted, StatusPending, StatusConfirmed); err != nil && !errors.Is(err, ErrAppointmentNotFound) {
			log.Printf("failed to mark appointment %s completed during cancel: %v", appt.ID, err)
		}
		return nil, ErrAlreadyCompleted
	}

	if s.cfg.MinCancelNotice > 0 && appt.StartsAt(loc).Sub(now) < s.cfg.MinCancelNotice {
		return nil, ErrTooLateToCancel
	}

	updated, err := s.repo.UpdateAppointmentStatus(ctx, appt.ID, StatusCancelled, StatusPending, StatusConfirmed)
	if err != nil {
		return nil, fmt.Errorf("cancel appointment: %w", err)
	}

	s.logEvent(ctx, updated.ID, EventAppointmentCancelled, map[string]any{
		"previous_status": string(appt.Status),
	})

	return updated, nil
}

// GetAppointment retrieves an appointment by ID.
func (s *Service) GetAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	appt, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("get appointment: %w", err)
	}
	return appt, nil
}

// ListDay returns a doctor's appointments on one calendar date.
func (s *Service) ListDay(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]Appointment, error) {
	appts, err := s.repo.ListAppointmentsForDay(ctx, doctorID, DateOnly(date))
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}
	return appts, nil
}

func (s *Service) observeBooking(err error, elapsed time.Duration) {
	outcome := "booked"
	switch {
	case err == nil:
	case errors.Is(err, ErrInvalidInterval):
		outcome = "invalid_interval"
	case errors.Is(err, ErrDateInPast):
		outcome = "date_in_past"
	case errors.Is(err, ErrOutsideAvailability):
		outcome = "outside_availability"
	case errors.Is(err, ErrSlotConflict):
		outcome = "conflict"
	case errors.Is(err, ErrDoctorBusy):
		outcome = "busy"
	default:
		outcome = "error"
	}
	s.metrics.ObserveBooking(outcome, elapsed.Seconds())
}

func (s *Service) logEvent(ctx context.Context, appointmentID uuid.UUID, eventType string, payload map[string]any) {
	data, err := json.Marshal(payload)
	if err != nil {
		log.Printf("failed to marshal event payload for %s: %v", eventType, err)
		data = nil
	}

	apptID := appointmentID

	ev := EventLog{
		EventType:     eventType,
		AppointmentID: &apptID,
		Payload:       data,
		CreatedAt:     s.now(),
	}

	if err := s.repo.InsertEvent(ctx, ev); err != nil {
		log.Printf("failed to insert event log %s for appointment %s: %v", eventType, appointmentID, err)
	}
}
