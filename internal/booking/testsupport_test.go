package booking

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// fakeRepo is an in-memory Repository for service tests. It enforces the
// same live-interval exclusion the Postgres schema does, so the lost-race
// path is testable via the beforeCreate hook.
type fakeRepo struct {
	mu        sync.Mutex
	doctors   map[uuid.UUID]*Doctor
	patients  map[uuid.UUID]*Patient
	slots     map[uuid.UUID][]TimeSlot
	appts     map[uuid.UUID]*Appointment
	reminders map[uuid.UUID]*Reminder
	remByAppt map[uuid.UUID]uuid.UUID
	reports   map[string]*MonthlyReport
	events    []EventLog

	// beforeCreate runs inside CreateAppointment before the exclusion
	// check, with the lock released, to simulate a competing writer.
	beforeCreate func()
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		doctors:   make(map[uuid.UUID]*Doctor),
		patients:  make(map[uuid.UUID]*Patient),
		slots:     make(map[uuid.UUID][]TimeSlot),
		appts:     make(map[uuid.UUID]*Appointment),
		reminders: make(map[uuid.UUID]*Reminder),
		remByAppt: make(map[uuid.UUID]uuid.UUID),
		reports:   make(map[string]*MonthlyReport),
	}
}

func (f *fakeRepo) addDoctor(tz string, feeCents int64) *Doctor {
	d := &Doctor{ID: uuid.New(), Name: "Dr. Test", Timezone: tz, FeeCents: feeCents}
	f.doctors[d.ID] = d
	return d
}

func (f *fakeRepo) addPatient() *Patient {
	p := &Patient{ID: uuid.New(), Name: "Pat Test"}
	f.patients[p.ID] = p
	return p
}

func (f *fakeRepo) addSlot(doctorID uuid.UUID, day time.Weekday, start, end TimeOfDay) {
	f.slots[doctorID] = append(f.slots[doctorID], TimeSlot{
		ID: uuid.New(), DoctorID: doctorID, Weekday: day, Start: start, End: end,
	})
}

func (f *fakeRepo) addAppointment(a Appointment) *Appointment {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	a.Date = DateOnly(a.Date)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.appts[a.ID] = &a
	return &a
}

func (f *fakeRepo) GetDoctorByID(_ context.Context, id uuid.UUID) (*Doctor, error) {
	if d, ok := f.doctors[id]; ok {
		return d, nil
	}
	return nil, ErrDoctorNotFound
}

func (f *fakeRepo) GetPatientByID(_ context.Context, id uuid.UUID) (*Patient, error) {
	if p, ok := f.patients[id]; ok {
		return p, nil
	}
	return nil, ErrPatientNotFound
}

func (f *fakeRepo) ListSlots(_ context.Context, doctorID uuid.UUID) ([]TimeSlot, error) {
	return f.slots[doctorID], nil
}

func (f *fakeRepo) FindOverlapping(_ context.Context, doctorID uuid.UUID, date time.Time, start, end TimeOfDay) ([]Appointment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.findOverlappingLocked(doctorID, date, start, end), nil
}

func (f *fakeRepo) findOverlappingLocked(doctorID uuid.UUID, date time.Time, start, end TimeOfDay) []Appointment {
	var out []Appointment
	for _, a := range f.appts {
		if a.DoctorID == doctorID && a.Date.Equal(DateOnly(date)) && a.Status.Live() && Overlaps(a.Start, a.End, start, end) {
			out = append(out, *a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start < out[j].Start })
	return out
}

func (f *fakeRepo) CreateAppointment(_ context.Context, a *Appointment) (*Appointment, error) {
	if f.beforeCreate != nil {
		f.beforeCreate()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.findOverlappingLocked(a.DoctorID, a.Date, a.Start, a.End)) > 0 {
		return nil, ErrIntervalTaken
	}
	created := *a
	created.ID = uuid.New()
	created.CreatedAt = time.Now()
	created.UpdatedAt = created.CreatedAt
	f.appts[created.ID] = &created
	return &created, nil
}

func (f *fakeRepo) GetAppointmentByID(_ context.Context, id uuid.UUID) (*Appointment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if a, ok := f.appts[id]; ok {
		cp := *a
		return &cp, nil
	}
	return nil, ErrAppointmentNotFound
}

func (f *fakeRepo) ListAppointmentsForDay(_ context.Context, doctorID uuid.UUID, date time.Time) ([]Appointment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Appointment
	for _, a := range f.appts {
		if a.DoctorID == doctorID && a.Date.Equal(DateOnly(date)) {
			out = append(out, *a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start < out[j].Start })
	return out, nil
}

func (f *fakeRepo) UpdateAppointmentStatus(_ context.Context, id uuid.UUID, to AppointmentStatus, from ...AppointmentStatus) (*Appointment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.appts[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	matched := false
	for _, st := range from {
		if a.Status == st {
			matched = true
			break
		}
	}
	if !matched {
		return nil, ErrAppointmentNotFound
	}
	a.Status = to
	a.UpdatedAt = time.Now()
	cp := *a
	return &cp, nil
}

func (f *fakeRepo) ListConfirmedBetweenDates(_ context.Context, fromDate, toDate time.Time) ([]ApptWithTimezone, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []ApptWithTimezone
	for _, a := range f.appts {
		if a.Status != StatusConfirmed || a.Date.Before(fromDate) || a.Date.After(toDate) {
			continue
		}
		out = append(out, ApptWithTimezone{Appointment: *a, DoctorTimezone: f.doctors[a.DoctorID].Timezone})
	}
	return out, nil
}

func (f *fakeRepo) EnsureReminder(_ context.Context, appointmentID uuid.UUID, dueAt time.Time) (*Reminder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if id, ok := f.remByAppt[appointmentID]; ok {
		cp := *f.reminders[id]
		return &cp, nil
	}
	r := &Reminder{ID: uuid.New(), AppointmentID: appointmentID, DueAt: dueAt, CreatedAt: time.Now()}
	f.reminders[r.ID] = r
	f.remByAppt[appointmentID] = r.ID
	cp := *r
	return &cp, nil
}

func (f *fakeRepo) GetReminderByID(_ context.Context, id uuid.UUID) (*Reminder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if r, ok := f.reminders[id]; ok {
		cp := *r
		return &cp, nil
	}
	return nil, ErrReminderNotFound
}

func (f *fakeRepo) MarkReminderSent(_ context.Context, id uuid.UUID, at time.Time) (*Reminder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.reminders[id]
	if !ok {
		return nil, ErrReminderNotFound
	}
	r.Sent = true
	if r.SentAt == nil {
		t := at
		r.SentAt = &t
	}
	cp := *r
	return &cp, nil
}

func (f *fakeRepo) ListLiveOnOrBefore(_ context.Context, date time.Time) ([]ApptWithTimezone, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []ApptWithTimezone
	for _, a := range f.appts {
		if !a.Status.Live() || a.Date.After(date) {
			continue
		}
		out = append(out, ApptWithTimezone{Appointment: *a, DoctorTimezone: f.doctors[a.DoctorID].Timezone})
	}
	return out, nil
}

func (f *fakeRepo) ListDoctorsWithAppointmentsIn(_ context.Context, from, to time.Time) ([]uuid.UUID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	seen := make(map[uuid.UUID]bool)
	var out []uuid.UUID
	for _, a := range f.appts {
		if a.Date.Before(from) || !a.Date.Before(to) || seen[a.DoctorID] {
			continue
		}
		seen[a.DoctorID] = true
		out = append(out, a.DoctorID)
	}
	return out, nil
}

func (f *fakeRepo) AggregateMonth(_ context.Context, doctorID uuid.UUID, from, to time.Time) (MonthTotals, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var t MonthTotals
	patients := make(map[uuid.UUID]bool)
	for _, a := range f.appts {
		if a.DoctorID != doctorID || a.Date.Before(from) || !a.Date.Before(to) {
			continue
		}
		if a.Status != StatusCompleted && a.Status != StatusConfirmed {
			continue
		}
		t.Appointments++
		t.EarningsCents += a.FeeCents
		patients[a.PatientID] = true
	}
	t.Patients = len(patients)
	return t, nil
}

func reportKey(doctorID uuid.UUID, year int, month time.Month) string {
	return fmt.Sprintf("%s/%d/%d", doctorID, year, month)
}

func (f *fakeRepo) UpsertMonthlyReport(_ context.Context, m *MonthlyReport) (*MonthlyReport, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *m
	f.reports[reportKey(m.DoctorID, m.Year, m.Month)] = &cp
	out := cp
	return &out, nil
}

func (f *fakeRepo) GetMonthlyReport(_ context.Context, doctorID uuid.UUID, year int, month time.Month) (*MonthlyReport, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if r, ok := f.reports[reportKey(doctorID, year, month)]; ok {
		cp := *r
		return &cp, nil
	}
	return nil, ErrReportNotFound
}

func (f *fakeRepo) InsertEvent(_ context.Context, ev EventLog) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, ev)
	return nil
}

// memLocker serializes per doctor with plain mutexes, standing in for the
// Redis locker.
type memLocker struct {
	mu    sync.Mutex
	locks map[uuid.UUID]*sync.Mutex
}

func (l *memLocker) WithDoctorLock(ctx context.Context, doctorID uuid.UUID, fn func(ctx context.Context) error) error {
	l.mu.Lock()
	if l.locks == nil {
		l.locks = make(map[uuid.UUID]*sync.Mutex)
	}
	m, ok := l.locks[doctorID]
	if !ok {
		m = &sync.Mutex{}
		l.locks[doctorID] = m
	}
	l.mu.Unlock()

	m.Lock()
	defer m.Unlock()
	return fn(ctx)
}
