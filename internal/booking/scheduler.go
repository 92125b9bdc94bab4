package booking

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
)

// DueReminders returns the reminder for every confirmed appointment whose
// due instant (doctor-local start minus the configured lead) falls within
// [now, now+lookahead) and that has not been sent yet. Reminder rows are
// created lazily the first time an appointment is considered, so the scan is
// safe to re-run: an appointment already reminded is skipped.
func (s *Service) DueReminders(ctx context.Context, now time.Time, lookahead time.Duration) ([]Reminder, error) {
	lead := s.cfg.ReminderLead

	// Appointments due in the window start somewhere in
	// [now+lead, now+lead+lookahead). Widen the date range by a day on each
	// side so no doctor timezone can push a candidate outside the query.
	fromDate := DateOnly(now.Add(lead).UTC()).AddDate(0, 0, -1)
	toDate := DateOnly(now.Add(lead + lookahead).UTC()).AddDate(0, 0, 1)

	candidates, err := s.repo.ListConfirmedBetweenDates(ctx, fromDate, toDate)
	if err != nil {
		return nil, fmt.Errorf("list confirmed appointments: %w", err)
	}

	var due []Reminder
	for _, c := range candidates {
		loc, err := time.LoadLocation(c.DoctorTimezone)
		if err != nil {
			log.Printf("skipping appointment %s: bad doctor timezone %q: %v", c.ID, c.DoctorTimezone, err)
			continue
		}

		dueAt := c.Start.On(c.Date, loc).Add(-lead)
		if dueAt.Before(now) || !dueAt.Before(now.Add(lookahead)) {
			continue
		}

		rem, err := s.repo.EnsureReminder(ctx, c.ID, dueAt)
		if err != nil {
			log.Printf("failed to ensure reminder for appointment %s: %v", c.ID, err)
			continue
		}
		if rem.Sent {
			continue
		}
		due = append(due, *rem)
	}

	return due, nil
}

// MarkSent flips a reminder to sent and records the send time. Calling it
// again is a no-op: the flag stays true and the original timestamp is kept,
// so at-least-once delivery from an external notifier cannot duplicate state.
func (s *Service) MarkSent(ctx context.Context, reminderID uuid.UUID) (*Reminder, error) {
	rem, err := s.repo.GetReminderByID(ctx, reminderID)
	if err != nil {
		if errors.Is(err, ErrReminderNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load reminder: %w", err)
	}
	if rem.Sent {
		return rem, nil
	}

	updated, err := s.repo.MarkReminderSent(ctx, reminderID, s.now())
	if err != nil {
		return nil, fmt.Errorf("mark reminder sent: %w", err)
	}

	s.metrics.ObserveReminderSent()
	s.logEvent(ctx, updated.AppointmentID, EventReminderSent, map[string]any{
		"reminder_id": updated.ID.String(),
	})

	return updated, nil
}

// CompletePastAppointments transitions live appointments whose doctor-local
// end time has passed to completed. Intended to be called periodically by
// the report worker; each run is a fresh idempotent scan.
func (s *Service) CompletePastAppointments(ctx context.Context) error {
	now := s.now()

	// A live appointment can only have ended if its date is today or
	// earlier in its doctor's timezone; one day of margin covers every
	// offset from UTC.
	toDate := DateOnly(now.UTC()).AddDate(0, 0, 1)

	candidates, err := s.repo.ListLiveOnOrBefore(ctx, toDate)
	if err != nil {
		return fmt.Errorf("list live appointments: %w", err)
	}

	for _, c := range candidates {
		loc, err := time.LoadLocation(c.DoctorTimezone)
		if err != nil {
			log.Printf("skipping appointment %s: bad doctor timezone %q: %v", c.ID, c.DoctorTimezone, err)
			continue
		}
		if c.EndsAt(loc).After(now) {
			continue
		}

		if _, err := s.repo.UpdateAppointmentStatus(ctx, c.ID, StatusCompleted, StatusPending, StatusConfirmed); err != nil {
			if !errors.Is(err, ErrAppointmentNotFound) {
				log.Printf("failed to complete appointment %s: %v", c.ID, err)
			}
			continue
		}
		s.logEvent(ctx, c.ID, EventAppointmentCompleted, map[string]any{
			"previous_status": string(c.Status),
		})
	}

	return nil
}
