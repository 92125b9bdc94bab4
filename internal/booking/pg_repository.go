package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PgxIface is the subset of pgxpool.Pool the repository uses. pgxmock
// implements it in tests.
type PgxIface interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

type PgRepository struct {
	pool PgxIface
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

func NewPgRepositoryWith(pool PgxIface) *PgRepository {
	return &PgRepository{pool: pool}
}

// Helpers

func scanDoctor(row pgx.Row) (*Doctor, error) {
	var d Doctor
	var specialty *string

	err := row.Scan(
		&d.ID,
		&d.Name,
		&specialty,
		&d.Timezone,
		&d.FeeCents,
		&d.CreatedAt,
		&d.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDoctorNotFound
		}
		return nil, err
	}

	d.Specialty = specialty
	return &d, nil
}

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	var email *string

	err := row.Scan(
		&p.ID,
		&p.Name,
		&email,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPatientNotFound
		}
		return nil, err
	}

	p.Email = email
	return &p, nil
}

func scanSlot(row pgx.Row) (*TimeSlot, error) {
	var s TimeSlot
	var weekday, startMin, endMin int

	err := row.Scan(
		&s.ID,
		&s.DoctorID,
		&weekday,
		&startMin,
		&endMin,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	s.Weekday = time.Weekday(weekday)
	s.Start = TimeOfDay(startMin)
	s.End = TimeOfDay(endMin)
	return &s, nil
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	var startMin, endMin int

	err := row.Scan(
		&a.ID,
		&a.DoctorID,
		&a.PatientID,
		&a.Date,
		&startMin,
		&endMin,
		&a.Status,
		&a.Notes,
		&a.FeeCents,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	a.Date = DateOnly(a.Date)
	a.Start = TimeOfDay(startMin)
	a.End = TimeOfDay(endMin)
	return &a, nil
}

func scanReminder(row pgx.Row) (*Reminder, error) {
	var r Reminder
	var sentAt *time.Time

	err := row.Scan(
		&r.ID,
		&r.AppointmentID,
		&r.DueAt,
		&r.Sent,
		&sentAt,
		&r.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrReminderNotFound
		}
		return nil, err
	}

	r.SentAt = sentAt
	return &r, nil
}

// isIntervalViolation reports whether err is the appointments table's
// no-overlap exclusion constraint (or the reminder unique key) firing.
func isIntervalViolation(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == "23P01" || pgErr.Code == "23505"
}

// Interface methods

func (r *PgRepository) GetDoctorByID(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, name, specialty, timezone, fee_cents, created_at, updated_at
		FROM doctors
		WHERE id = $1
	`, id)
	return scanDoctor(row)
}

func (r *PgRepository) GetPatientByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, name, email, created_at, updated_at
		FROM patients
		WHERE id = $1
	`, id)
	return scanPatient(row)
}

func (r *PgRepository) ListSlots(ctx context.Context, doctorID uuid.UUID) ([]TimeSlot, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, doctor_id, weekday, start_min, end_min, created_at, updated_at
		FROM time_slots
		WHERE doctor_id = $1
		ORDER BY weekday, start_min
	`, doctorID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []TimeSlot
	for rows.Next() {
		s, err := scanSlot(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *s)
	}

	return result, rows.Err()
}

func (r *PgRepository) FindOverlapping(ctx context.Context, doctorID uuid.UUID, date time.Time, start, end TimeOfDay) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, doctor_id, patient_id, date, start_min, end_min, status, notes, fee_cents, created_at, updated_at
		FROM appointments
		WHERE doctor_id = $1
		  AND date = $2
		  AND status IN ('pending', 'confirmed')
		  AND start_min < $4
		  AND $3 < end_min
		ORDER BY start_min
	`, doctorID, date, start.Minutes(), end.Minutes())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}

	return result, rows.Err()
}

func (r *PgRepository) CreateAppointment(ctx context.Context, a *Appointment) (*Appointment, error) {
	id := uuid.New()

	row := r.pool.QueryRow(ctx, `
		INSERT INTO appointments (id, doctor_id, patient_id, date, start_min, end_min, status, notes, fee_cents, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, now(), now())
		RETURNING id, doctor_id, patient_id, date, start_min, end_min, status, notes, fee_cents, created_at, updated_at
	`, id, a.DoctorID, a.PatientID, a.Date, a.Start.Minutes(), a.End.Minutes(), a.Status, a.Notes, a.FeeCents)

	created, err := scanAppointment(row)
	if err != nil {
		if isIntervalViolation(err) {
			return nil, ErrIntervalTaken
		}
		return nil, err
	}
	return created, nil
}

func (r *PgRepository) GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, doctor_id, patient_id, date, start_min, end_min, status, notes, fee_cents, created_at, updated_at
		FROM appointments
		WHERE id = $1
	`, id)
	return scanAppointment(row)
}

func (r *PgRepository) ListAppointmentsForDay(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, doctor_id, patient_id, date, start_min, end_min, status, notes, fee_cents, created_at, updated_at
		FROM appointments
		WHERE doctor_id = $1
		  AND date = $2
		ORDER BY start_min
	`, doctorID, date)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}

	return result, rows.Err()
}

func (r *PgRepository) UpdateAppointmentStatus(ctx context.Context, id uuid.UUID, to AppointmentStatus, from ...AppointmentStatus) (*Appointment, error) {
	fromStatuses := make([]string, len(from))
	for i, st := range from {
		fromStatuses[i] = string(st)
	}

	row := r.pool.QueryRow(ctx, `
		UPDATE appointments
		SET status = $2,
		    updated_at = now()
		WHERE id = $1
		  AND status = ANY($3)
		RETURNING id, doctor_id, patient_id, date, start_min, end_min, status, notes, fee_cents, created_at, updated_at
	`, id, to, fromStatuses)

	return scanAppointment(row)
}

func (r *PgRepository) ListConfirmedBetweenDates(ctx context.Context, fromDate, toDate time.Time) ([]ApptWithTimezone, error) {
	return r.listWithTimezone(ctx, `
		SELECT a.id, a.doctor_id, a.patient_id, a.date, a.start_min, a.end_min, a.status, a.notes, a.fee_cents, a.created_at, a.updated_at, d.timezone
		FROM appointments a
		JOIN doctors d ON d.id = a.doctor_id
		WHERE a.status = 'confirmed'
		  AND a.date >= $1
		  AND a.date <= $2
		ORDER BY a.date, a.start_min
	`, fromDate, toDate)
}

func (r *PgRepository) ListLiveOnOrBefore(ctx context.Context, date time.Time) ([]ApptWithTimezone, error) {
	return r.listWithTimezone(ctx, `
		SELECT a.id, a.doctor_id, a.patient_id, a.date, a.start_min, a.end_min, a.status, a.notes, a.fee_cents, a.created_at, a.updated_at, d.timezone
		FROM appointments a
		JOIN doctors d ON d.id = a.doctor_id
		WHERE a.status IN ('pending', 'confirmed')
		  AND a.date <= $1
		ORDER BY a.date, a.start_min
	`, date)
}

func (r *PgRepository) listWithTimezone(ctx context.Context, sql string, args ...any) ([]ApptWithTimezone, error) {
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []ApptWithTimezone
	for rows.Next() {
		var c ApptWithTimezone
		var startMin, endMin int

		err := rows.Scan(
			&c.ID,
			&c.DoctorID,
			&c.PatientID,
			&c.Date,
			&startMin,
			&endMin,
			&c.Status,
			&c.Notes,
			&c.FeeCents,
			&c.CreatedAt,
			&c.UpdatedAt,
			&c.DoctorTimezone,
		)
		if err != nil {
			return nil, err
		}

		c.Date = DateOnly(c.Date)
		c.Start = TimeOfDay(startMin)
		c.End = TimeOfDay(endMin)
		result = append(result, c)
	}

	return result, rows.Err()
}

func (r *PgRepository) EnsureReminder(ctx context.Context, appointmentID uuid.UUID, dueAt time.Time) (*Reminder, error) {
	id := uuid.New()

	// The unique key on appointment_id makes concurrent scheduler runs
	// converge on a single row; DO NOTHING loses to an existing row, whose
	// sent state must be preserved.
	_, err := r.pool.Exec(ctx, `
		INSERT INTO reminders (id, appointment_id, due_at, sent, created_at)
		VALUES ($1, $2, $3, FALSE, now())
		ON CONFLICT (appointment_id) DO NOTHING
	`, id, appointmentID, dueAt)
	if err != nil {
		return nil, fmt.Errorf("ensure reminder: %w", err)
	}

	row := r.pool.QueryRow(ctx, `
		SELECT id, appointment_id, due_at, sent, sent_at, created_at
		FROM reminders
		WHERE appointment_id = $1
	`, appointmentID)
	return scanReminder(row)
}

func (r *PgRepository) GetReminderByID(ctx context.Context, id uuid.UUID) (*Reminder, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, appointment_id, due_at, sent, sent_at, created_at
		FROM reminders
		WHERE id = $1
	`, id)
	return scanReminder(row)
}

func (r *PgRepository) MarkReminderSent(ctx context.Context, id uuid.UUID, at time.Time) (*Reminder, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE reminders
		SET sent = TRUE,
		    sent_at = COALESCE(sent_at, $2)
		WHERE id = $1
		RETURNING id, appointment_id, due_at, sent, sent_at, created_at
	`, id, at)
	return scanReminder(row)
}

func (r *PgRepository) ListDoctorsWithAppointmentsIn(ctx context.Context, from, to time.Time) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT DISTINCT doctor_id
		FROM appointments
		WHERE date >= $1
		  AND date < $2
	`, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		result = append(result, id)
	}

	return result, rows.Err()
}

func (r *PgRepository) AggregateMonth(ctx context.Context, doctorID uuid.UUID, from, to time.Time) (MonthTotals, error) {
	var t MonthTotals

	row := r.pool.QueryRow(ctx, `
		SELECT COUNT(*),
		       COUNT(DISTINCT patient_id),
		       COALESCE(SUM(fee_cents), 0)
		FROM appointments
		WHERE doctor_id = $1
		  AND date >= $2
		  AND date < $3
		  AND status IN ('completed', 'confirmed')
	`, doctorID, from, to)

	if err := row.Scan(&t.Appointments, &t.Patients, &t.EarningsCents); err != nil {
		return MonthTotals{}, err
	}
	return t, nil
}

func (r *PgRepository) UpsertMonthlyReport(ctx context.Context, m *MonthlyReport) (*MonthlyReport, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO monthly_reports (doctor_id, year, month, total_appointments, total_patients, total_earnings_cents, generated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (doctor_id, year, month) DO UPDATE SET
		    total_appointments = EXCLUDED.total_appointments,
		    total_patients = EXCLUDED.total_patients,
		    total_earnings_cents = EXCLUDED.total_earnings_cents,
		    generated_at = EXCLUDED.generated_at
		RETURNING doctor_id, year, month, total_appointments, total_patients, total_earnings_cents, generated_at
	`, m.DoctorID, m.Year, int(m.Month), m.TotalAppointments, m.TotalPatients, m.TotalEarningsCents, m.GeneratedAt)

	return scanReport(row)
}

func (r *PgRepository) GetMonthlyReport(ctx context.Context, doctorID uuid.UUID, year int, month time.Month) (*MonthlyReport, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT doctor_id, year, month, total_appointments, total_patients, total_earnings_cents, generated_at
		FROM monthly_reports
		WHERE doctor_id = $1 AND year = $2 AND month = $3
	`, doctorID, year, int(month))
	return scanReport(row)
}

func scanReport(row pgx.Row) (*MonthlyReport, error) {
	var m MonthlyReport
	var month int

	err := row.Scan(
		&m.DoctorID,
		&m.Year,
		&month,
		&m.TotalAppointments,
		&m.TotalPatients,
		&m.TotalEarningsCents,
		&m.GeneratedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrReportNotFound
		}
		return nil, err
	}

	m.Month = time.Month(month)
	return &m, nil
}

func (r *PgRepository) InsertEvent(ctx context.Context, ev EventLog) error {
	var appID *uuid.UUID
	if ev.AppointmentID != nil {
		appID = ev.AppointmentID
	}

	_, err := r.pool.Exec(ctx, `
		INSERT INTO event_logs (event_type, appointment_id, payload, created_at)
		VALUES ($1, $2, $3, COALESCE($4, now()))
	`, ev.EventType, appID, ev.Payload, nullableTime(ev.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert event log: %w", err)
	}

	return nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
