package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// GenerateReport builds (or rebuilds) a doctor's report for one calendar
// month, summing completed and confirmed appointments dated inside it. The
// month must have fully elapsed in the doctor's timezone. Regeneration
// replaces the stored report for the same (doctor, year, month) key; a month
// with no qualifying appointments yields a zero-valued report, not an error.
func (s *Service) GenerateReport(ctx context.Context, doctorID uuid.UUID, year int, month time.Month) (*MonthlyReport, error) {
	if month < time.January || month > time.December {
		return nil, ErrInvalidMonth
	}

	doctor, err := s.repo.GetDoctorByID(ctx, doctorID)
	if err != nil {
		if errors.Is(err, ErrDoctorNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load doctor: %w", err)
	}

	loc, err := doctor.Location()
	if err != nil {
		return nil, fmt.Errorf("resolve doctor timezone %q: %w", doctor.Timezone, err)
	}

	monthEnd := time.Date(year, month, 1, 0, 0, 0, 0, loc).AddDate(0, 1, 0)
	if s.now().Before(monthEnd) {
		return nil, ErrMonthNotElapsed
	}

	from := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 1, 0)

	totals, err := s.repo.AggregateMonth(ctx, doctorID, from, to)
	if err != nil {
		return nil, fmt.Errorf("aggregate month: %w", err)
	}

	report, err := s.repo.UpsertMonthlyReport(ctx, &MonthlyReport{
		DoctorID:           doctorID,
		Year:               year,
		Month:              month,
		TotalAppointments:  totals.Appointments,
		TotalPatients:      totals.Patients,
		TotalEarningsCents: totals.EarningsCents,
		GeneratedAt:        s.now(),
	})
	if err != nil {
		return nil, fmt.Errorf("store monthly report: %w", err)
	}

	s.metrics.ObserveReportGenerated()

	return report, nil
}

// GetReport returns a previously generated report.
func (s *Service) GetReport(ctx context.Context, doctorID uuid.UUID, year int, month time.Month) (*MonthlyReport, error) {
	report, err := s.repo.GetMonthlyReport(ctx, doctorID, year, month)
	if err != nil {
		if errors.Is(err, ErrReportNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("get monthly report: %w", err)
	}
	return report, nil
}

// GenerateLastMonthReports regenerates last month's report for every doctor
// with at least one appointment in it. Used by the report worker after the
// month boundary.
func (s *Service) GenerateLastMonthReports(ctx context.Context) error {
	now := s.now()
	firstOfThisMonth := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	lastMonth := firstOfThisMonth.AddDate(0, -1, 0)

	doctorIDs, err := s.repo.ListDoctorsWithAppointmentsIn(ctx, lastMonth, firstOfThisMonth)
	if err != nil {
		return fmt.Errorf("list doctors for report month: %w", err)
	}

	for _, id := range doctorIDs {
		if _, err := s.GenerateReport(ctx, id, lastMonth.Year(), lastMonth.Month()); err != nil {
			// ErrMonthNotElapsed here means the doctor's timezone is
			// still inside last month; the next run picks them up.
			if errors.Is(err, ErrMonthNotElapsed) {
				continue
			}
			return fmt.Errorf("generate report for doctor %s: %w", id, err)
		}
	}

	return nil
}
