package api

import (
	"time"

	"github.com/google/uuid"
)

type BookAppointmentRequest struct {
	DoctorID  string `json:"doctor_id"`
	PatientID string `json:"patient_id"`
	Date      string `json:"date"`  // YYYY-MM-DD
	Start     string `json:"start"` // HH:MM, doctor-local
	End       string `json:"end"`   // HH:MM, doctor-local
	Notes     string `json:"notes,omitempty"`
}

type AppointmentResponse struct {
	ID        uuid.UUID `json:"id"`
	DoctorID  uuid.UUID `json:"doctor_id"`
	PatientID uuid.UUID `json:"patient_id"`
	Date      string    `json:"date"`
	Start     string    `json:"start"`
	End       string    `json:"end"`
	Status    string    `json:"status"`
	Notes     string    `json:"notes,omitempty"`
	FeeCents  int64     `json:"fee_cents"`
	CreatedAt time.Time `json:"created_at"`
}

type ReminderResponse struct {
	ID            uuid.UUID  `json:"id"`
	AppointmentID uuid.UUID  `json:"appointment_id"`
	DueAt         time.Time  `json:"due_at"`
	Sent          bool       `json:"sent"`
	SentAt        *time.Time `json:"sent_at,omitempty"`
}

type MonthlyReportResponse struct {
	DoctorID           uuid.UUID `json:"doctor_id"`
	Year               int       `json:"year"`
	Month              int       `json:"month"`
	TotalAppointments  int       `json:"total_appointments"`
	TotalPatients      int       `json:"total_patients"`
	TotalEarningsCents int64     `json:"total_earnings_cents"`
	GeneratedAt        time.Time `json:"generated_at"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`

	// ConflictingID is set for slot_conflict errors so the caller can show
	// which appointment blocks the request.
	ConflictingID string `json:"conflicting_id,omitempty"`
}
