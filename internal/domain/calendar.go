package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// CalendarEvent is a derived, non-persisted view of an appointment shaped for
// calendar rendering. Times marshal as RFC 3339.
type CalendarEvent struct {
	ID              string           `json:"id"`
	Title           string           `json:"title"`
	Start           time.Time        `json:"start"`
	End             time.Time        `json:"end"`
	BackgroundColor string           `json:"backgroundColor"`
	BorderColor     string           `json:"borderColor"`
	Resource        CalendarResource `json:"resource"`
}

type CalendarResource struct {
	AppointmentID uuid.UUID         `json:"appointmentId"`
	PatientID     uuid.UUID         `json:"patientId"`
	PatientName   string            `json:"patientName"`
	DoctorID      uuid.UUID         `json:"doctorId"`
	DoctorName    string            `json:"doctorName"`
	Status        AppointmentStatus `json:"status"`
	Reason        string            `json:"reason"`
}

var statusColors = map[AppointmentStatus]string{
	StatusScheduled:  "#3b82f6",
	StatusConfirmed:  "#10b981",
	StatusInProgress: "#f59e0b",
	StatusCompleted:  "#6b7280",
	StatusCancelled:  "#ef4444",
	StatusNoShow:     "#9ca3af",
}

const defaultEventColor = "#3b82f6"

// StatusColor returns the calendar color for a status. Unknown statuses fall
// back to the scheduled color.
func StatusColor(s AppointmentStatus) string {
	if c, ok := statusColors[s]; ok {
		return c
	}
	return defaultEventColor
}

// NewCalendarEvent projects an appointment into its calendar view. Patient and
// doctor relations are expected to be loaded; missing relations yield empty
// name segments rather than an error.
func NewCalendarEvent(a Appointment) CalendarEvent {
	color := StatusColor(a.Status)
	return CalendarEvent{
		ID:              a.ID.String(),
		Title:           fmt.Sprintf("%s - Dr. %s", a.PatientName(), a.DoctorName()),
		Start:           a.StartTime,
		End:             a.EndTime,
		BackgroundColor: color,
		BorderColor:     color,
		Resource: CalendarResource{
			AppointmentID: a.ID,
			PatientID:     a.PatientID,
			PatientName:   a.PatientName(),
			DoctorID:      a.DoctorID,
			DoctorName:    a.DoctorName(),
			Status:        a.Status,
			Reason:        a.Reason,
		},
	}
}
