package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/clinicbook/booking-engine/internal/booking"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, details string) {
	writeJSON(w, status, ErrorResponse{Error: code, Details: details})
}

func appointmentResponse(a *booking.Appointment) AppointmentResponse {
	return AppointmentResponse{
		ID:        a.ID,
		DoctorID:  a.DoctorID,
		PatientID: a.PatientID,
		Date:      a.Date.Format("2006-01-02"),
		Start:     a.Start.String(),
		End:       a.End.String(),
		Status:    string(a.Status),
		Notes:     a.Notes,
		FeeCents:  a.FeeCents,
		CreatedAt: a.CreatedAt,
	}
}

func reminderResponse(r booking.Reminder) ReminderResponse {
	return ReminderResponse{
		ID:            r.ID,
		AppointmentID: r.AppointmentID,
		DueAt:         r.DueAt,
		Sent:          r.Sent,
		SentAt:        r.SentAt,
	}
}

func reportResponse(m *booking.MonthlyReport) MonthlyReportResponse {
	return MonthlyReportResponse{
		DoctorID:           m.DoctorID,
		Year:               m.Year,
		Month:              int(m.Month),
		TotalAppointments:  m.TotalAppointments,
		TotalPatients:      m.TotalPatients,
		TotalEarningsCents: m.TotalEarningsCents,
		GeneratedAt:        m.GeneratedAt,
	}
}

func bookAppointmentHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req BookAppointmentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		doctorID, err := uuid.Parse(req.DoctorID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_doctor_id", "doctor_id must be a valid UUID")
			return
		}

		patientID, err := uuid.Parse(req.PatientID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_patient_id", "patient_id must be a valid UUID")
			return
		}

		date, err := time.Parse("2006-01-02", req.Date)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_date", "date must be YYYY-MM-DD")
			return
		}

		start, err := booking.ParseTimeOfDay(req.Start)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_start", "start must be HH:MM")
			return
		}

		end, err := booking.ParseTimeOfDay(req.End)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_end", "end must be HH:MM")
			return
		}

		appt, err := svc.Book(r.Context(), booking.BookingRequest{
			DoctorID:  doctorID,
			PatientID: patientID,
			Date:      date,
			Start:     start,
			End:       end,
			Notes:     req.Notes,
		})
		if err != nil {
			handleBookError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, appointmentResponse(appt))
	}
}

func getAppointmentHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_appointment_id", "id must be a valid UUID")
			return
		}

		appt, err := svc.GetAppointment(r.Context(), id)
		if err != nil {
			if errors.Is(err, booking.ErrAppointmentNotFound) {
				writeError(w, http.StatusNotFound, "appointment_not_found", err.Error())
				return
			}
			writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
			return
		}

		writeJSON(w, http.StatusOK, appointmentResponse(appt))
	}
}

func cancelAppointmentHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_appointment_id", "id must be a valid UUID")
			return
		}

		appt, err := svc.Cancel(r.Context(), id)
		if err != nil {
			handleCancelError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, appointmentResponse(appt))
	}
}

func listDayHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doctorID, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_doctor_id", "id must be a valid UUID")
			return
		}

		date, err := time.Parse("2006-01-02", r.URL.Query().Get("date"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_date", "date query param must be YYYY-MM-DD")
			return
		}

		appts, err := svc.ListDay(r.Context(), doctorID, date)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
			return
		}

		resp := make([]AppointmentResponse, 0, len(appts))
		for i := range appts {
			resp = append(resp, appointmentResponse(&appts[i]))
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func dueRemindersHandler(svc *booking.Service, defaultLookahead time.Duration) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		lookahead := defaultLookahead
		if v := r.URL.Query().Get("lookahead"); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil || d <= 0 {
				writeError(w, http.StatusBadRequest, "invalid_lookahead", "lookahead must be a positive duration")
				return
			}
			lookahead = d
		}

		reminders, err := svc.DueReminders(r.Context(), time.Now(), lookahead)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
			return
		}

		resp := make([]ReminderResponse, 0, len(reminders))
		for _, rem := range reminders {
			resp = append(resp, reminderResponse(rem))
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func markReminderSentHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_reminder_id", "id must be a valid UUID")
			return
		}

		rem, err := svc.MarkSent(r.Context(), id)
		if err != nil {
			if errors.Is(err, booking.ErrReminderNotFound) {
				writeError(w, http.StatusNotFound, "reminder_not_found", err.Error())
				return
			}
			writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
			return
		}

		writeJSON(w, http.StatusOK, reminderResponse(*rem))
	}
}

func reportYearMonth(r *http.Request) (uuid.UUID, int, time.Month, error) {
	doctorID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		return uuid.Nil, 0, 0, errors.New("id must be a valid UUID")
	}
	year, err := strconv.Atoi(chi.URLParam(r, "year"))
	if err != nil {
		return uuid.Nil, 0, 0, errors.New("year must be a number")
	}
	month, err := strconv.Atoi(chi.URLParam(r, "month"))
	if err != nil {
		return uuid.Nil, 0, 0, errors.New("month must be a number")
	}
	return doctorID, year, time.Month(month), nil
}

func getReportHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doctorID, year, month, err := reportYearMonth(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
			return
		}

		report, err := svc.GetReport(r.Context(), doctorID, year, month)
		if err != nil {
			if errors.Is(err, booking.ErrReportNotFound) {
				writeError(w, http.StatusNotFound, "report_not_found", err.Error())
				return
			}
			writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
			return
		}

		writeJSON(w, http.StatusOK, reportResponse(report))
	}
}

func generateReportHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doctorID, year, month, err := reportYearMonth(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
			return
		}

		report, err := svc.GenerateReport(r.Context(), doctorID, year, month)
		if err != nil {
			handleReportError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, reportResponse(report))
	}
}

func handleBookError(w http.ResponseWriter, err error) {
	var conflict *booking.ConflictError

	switch {
	case errors.Is(err, booking.ErrDoctorNotFound):
		writeError(w, http.StatusNotFound, "doctor_not_found", err.Error())
	case errors.Is(err, booking.ErrPatientNotFound):
		writeError(w, http.StatusNotFound, "patient_not_found", err.Error())
	case errors.Is(err, booking.ErrInvalidInterval):
		writeError(w, http.StatusBadRequest, "invalid_interval", err.Error())
	case errors.Is(err, booking.ErrDateInPast):
		writeError(w, http.StatusUnprocessableEntity, "date_in_past", err.Error())
	case errors.Is(err, booking.ErrOutsideAvailability):
		writeError(w, http.StatusUnprocessableEntity, "outside_availability", err.Error())
	case errors.As(err, &conflict):
		resp := ErrorResponse{Error: "slot_conflict", Details: err.Error()}
		if conflict.ConflictingID != uuid.Nil {
			resp.ConflictingID = conflict.ConflictingID.String()
		}
		writeJSON(w, http.StatusConflict, resp)
	case errors.Is(err, booking.ErrSlotConflict):
		writeError(w, http.StatusConflict, "slot_conflict", err.Error())
	case errors.Is(err, booking.ErrDoctorBusy):
		writeError(w, http.StatusConflict, "doctor_busy", "doctor's calendar is being updated, please retry shortly")
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}

func handleCancelError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, booking.ErrAppointmentNotFound):
		writeError(w, http.StatusNotFound, "appointment_not_found", err.Error())
	case errors.Is(err, booking.ErrAlreadyCompleted):
		writeError(w, http.StatusConflict, "already_completed", err.Error())
	case errors.Is(err, booking.ErrTooLateToCancel):
		writeError(w, http.StatusConflict, "too_late_to_cancel", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}

func handleReportError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, booking.ErrDoctorNotFound):
		writeError(w, http.StatusNotFound, "doctor_not_found", err.Error())
	case errors.Is(err, booking.ErrInvalidMonth):
		writeError(w, http.StatusBadRequest, "invalid_month", err.Error())
	case errors.Is(err, booking.ErrMonthNotElapsed):
		writeError(w, http.StatusConflict, "month_not_elapsed", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}
