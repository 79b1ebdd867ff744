package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/JuanHVDev/nexus-med-sub001/internal/domain"
)

// ConflictQuery describes the interval being probed for double-booking.
// ExcludeID, when non-nil, removes that appointment from consideration so a
// reschedule never conflicts with itself.
type ConflictQuery struct {
	ClinicID  uuid.UUID
	DoctorID  uuid.UUID
	StartTime time.Time
	EndTime   time.Time
	ExcludeID uuid.UUID
}

// ListFilter narrows and pages FindMany. Nil pointer fields are not applied.
type ListFilter struct {
	DoctorID  *uuid.UUID
	PatientID *uuid.UUID
	Status    *domain.AppointmentStatus
	From      *time.Time
	To        *time.Time
	Limit     int
	Offset    int
}

type AppointmentRepository interface {
	Create(ctx context.Context, appt domain.Appointment) (domain.Appointment, error)
	Update(ctx context.Context, appt domain.Appointment) (domain.Appointment, error)
	UpdateStatus(ctx context.Context, clinicID, appointmentID uuid.UUID, status domain.AppointmentStatus) error
	FindByID(ctx context.Context, clinicID, appointmentID uuid.UUID) (domain.Appointment, error)
	FindMany(ctx context.Context, clinicID uuid.UUID, filter ListFilter) ([]domain.Appointment, int, error)
	FindConflicting(ctx context.Context, q ConflictQuery) (*domain.Appointment, error)
	FindForCalendar(ctx context.Context, clinicID uuid.UUID, windowStart, windowEnd time.Time, doctorID *uuid.UUID) ([]domain.Appointment, error)
}
