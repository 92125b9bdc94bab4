package booking

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinicbook/booking-engine/internal/config"
)

func remindersCfg() config.Config {
	return config.Config{ReminderLead: 24 * time.Hour}
}

func TestDueReminders_Window(t *testing.T) {
	repo := newFakeRepo()
	doctor := repo.addDoctor("UTC", 5000)
	patient := repo.addPatient()

	// Appointment 2024-03-10 09:00, reminder due 2024-03-09 09:00.
	appt := repo.addAppointment(Appointment{
		DoctorID: doctor.ID, PatientID: patient.ID,
		Date:  time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC),
		Start: mustTOD(t, "09:00"), End: mustTOD(t, "09:30"),
		Status: StatusConfirmed,
	})

	svc := newTestService(t, repo, remindersCfg())
	ctx := context.Background()

	// 08:00 the day before with a 2h lookahead covers 09:00.
	due, err := svc.DueReminders(ctx, time.Date(2024, 3, 9, 8, 0, 0, 0, time.UTC), 2*time.Hour)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, appt.ID, due[0].AppointmentID)
	assert.Equal(t, time.Date(2024, 3, 9, 9, 0, 0, 0, time.UTC), due[0].DueAt)
	assert.False(t, due[0].Sent)

	// A day earlier the reminder is not due yet.
	due, err = svc.DueReminders(ctx, time.Date(2024, 3, 8, 8, 0, 0, 0, time.UTC), 2*time.Hour)
	require.NoError(t, err)
	assert.Empty(t, due)

	// Once its due instant has passed the window no longer covers it.
	due, err = svc.DueReminders(ctx, time.Date(2024, 3, 9, 10, 0, 0, 0, time.UTC), 2*time.Hour)
	require.NoError(t, err)
	assert.Empty(t, due)
}

func TestDueReminders_OnlyConfirmed(t *testing.T) {
	repo := newFakeRepo()
	doctor := repo.addDoctor("UTC", 5000)
	patient := repo.addPatient()

	for _, status := range []AppointmentStatus{StatusPending, StatusCancelled, StatusCompleted} {
		repo.addAppointment(Appointment{
			DoctorID: doctor.ID, PatientID: patient.ID,
			Date:  time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC),
			Start: mustTOD(t, "09:00"), End: mustTOD(t, "09:30"),
			Status: status,
		})
	}

	svc := newTestService(t, repo, remindersCfg())

	due, err := svc.DueReminders(context.Background(), time.Date(2024, 3, 9, 8, 0, 0, 0, time.UTC), 2*time.Hour)
	require.NoError(t, err)
	assert.Empty(t, due)
}

func TestDueReminders_DoctorTimezone(t *testing.T) {
	repo := newFakeRepo()
	doctor := repo.addDoctor("Asia/Dhaka", 5000)
	patient := repo.addPatient()

	// 09:00 Dhaka on 2024-03-10 is 03:00 UTC; its reminder is due at
	// 03:00 UTC on 2024-03-09.
	repo.addAppointment(Appointment{
		DoctorID: doctor.ID, PatientID: patient.ID,
		Date:  time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC),
		Start: mustTOD(t, "09:00"), End: mustTOD(t, "09:30"),
		Status: StatusConfirmed,
	})

	svc := newTestService(t, repo, remindersCfg())
	ctx := context.Background()

	due, err := svc.DueReminders(ctx, time.Date(2024, 3, 9, 2, 0, 0, 0, time.UTC), 2*time.Hour)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, time.Date(2024, 3, 9, 3, 0, 0, 0, time.UTC), due[0].DueAt.UTC())

	// The naive UTC reading of 09:00 would be due at 09:00 UTC; it is not.
	due, err = svc.DueReminders(ctx, time.Date(2024, 3, 9, 8, 0, 0, 0, time.UTC), 2*time.Hour)
	require.NoError(t, err)
	assert.Empty(t, due)
}

func TestDueReminders_RerunSkipsSent(t *testing.T) {
	repo := newFakeRepo()
	doctor := repo.addDoctor("UTC", 5000)
	patient := repo.addPatient()

	repo.addAppointment(Appointment{
		DoctorID: doctor.ID, PatientID: patient.ID,
		Date:  time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC),
		Start: mustTOD(t, "09:00"), End: mustTOD(t, "09:30"),
		Status: StatusConfirmed,
	})

	svc := newTestService(t, repo, remindersCfg())
	ctx := context.Background()
	now := time.Date(2024, 3, 9, 8, 0, 0, 0, time.UTC)

	due, err := svc.DueReminders(ctx, now, 2*time.Hour)
	require.NoError(t, err)
	require.Len(t, due, 1)

	// Unsent reminders keep showing up on re-runs.
	again, err := svc.DueReminders(ctx, now, 2*time.Hour)
	require.NoError(t, err)
	require.Len(t, again, 1)
	assert.Equal(t, due[0].ID, again[0].ID)

	_, err = svc.MarkSent(ctx, due[0].ID)
	require.NoError(t, err)

	after, err := svc.DueReminders(ctx, now, 2*time.Hour)
	require.NoError(t, err)
	assert.Empty(t, after)
}

func TestMarkSent_Idempotent(t *testing.T) {
	repo := newFakeRepo()
	doctor := repo.addDoctor("UTC", 5000)
	patient := repo.addPatient()

	appt := repo.addAppointment(Appointment{
		DoctorID: doctor.ID, PatientID: patient.ID,
		Date:  time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC),
		Start: mustTOD(t, "09:00"), End: mustTOD(t, "09:30"),
		Status: StatusConfirmed,
	})

	svc := newTestService(t, repo, remindersCfg())
	ctx := context.Background()

	rem, err := repo.EnsureReminder(ctx, appt.ID, time.Date(2024, 3, 9, 9, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	first, err := svc.MarkSent(ctx, rem.ID)
	require.NoError(t, err)
	require.True(t, first.Sent)
	require.NotNil(t, first.SentAt)

	for i := 0; i < 3; i++ {
		again, err := svc.MarkSent(ctx, rem.ID)
		require.NoError(t, err)
		assert.True(t, again.Sent)
		require.NotNil(t, again.SentAt)
		assert.True(t, again.SentAt.Equal(*first.SentAt), "sent_at must not move on repeat calls")
	}
}

func TestMarkSent_NotFound(t *testing.T) {
	svc := newTestService(t, newFakeRepo(), remindersCfg())
	_, err := svc.MarkSent(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrReminderNotFound)
}

func TestCompletePastAppointments(t *testing.T) {
	repo := newFakeRepo()
	doctor := repo.addDoctor("UTC", 5000)
	patient := repo.addPatient()

	ended := repo.addAppointment(Appointment{
		DoctorID: doctor.ID, PatientID: patient.ID,
		Date:  time.Date(2024, 2, 26, 0, 0, 0, 0, time.UTC),
		Start: mustTOD(t, "09:00"), End: mustTOD(t, "09:30"),
		Status: StatusConfirmed,
	})
	endedPending := repo.addAppointment(Appointment{
		DoctorID: doctor.ID, PatientID: patient.ID,
		Date:  time.Date(2024, 2, 26, 0, 0, 0, 0, time.UTC),
		Start: mustTOD(t, "10:00"), End: mustTOD(t, "10:30"),
		Status: StatusPending,
	})
	upcoming := repo.addAppointment(Appointment{
		DoctorID: doctor.ID, PatientID: patient.ID,
		Date:  monday,
		Start: mustTOD(t, "09:00"), End: mustTOD(t, "09:30"),
		Status: StatusConfirmed,
	})
	cancelled := repo.addAppointment(Appointment{
		DoctorID: doctor.ID, PatientID: patient.ID,
		Date:  time.Date(2024, 2, 26, 0, 0, 0, 0, time.UTC),
		Start: mustTOD(t, "11:00"), End: mustTOD(t, "11:30"),
		Status: StatusCancelled,
	})

	svc := newTestService(t, repo, config.Config{})
	ctx := context.Background()

	require.NoError(t, svc.CompletePastAppointments(ctx))

	// Re-running is harmless.
	require.NoError(t, svc.CompletePastAppointments(ctx))

	for id, want := range map[uuid.UUID]AppointmentStatus{
		ended.ID:        StatusCompleted,
		endedPending.ID: StatusCompleted,
		upcoming.ID:     StatusConfirmed,
		cancelled.ID:    StatusCancelled,
	} {
		got, err := svc.GetAppointment(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, want, got.Status)
	}
}
