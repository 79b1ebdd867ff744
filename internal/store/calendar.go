package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/JuanHVDev/nexus-med-sub001/internal/domain"
)

// ScheduleTx is the slice of repository operations available inside a
// doctor-calendar transaction. The transaction holds an advisory lock on the
// (clinic, doctor) pair, so a conflict check followed by a write is atomic
// with respect to other bookings for the same calendar. Series creation runs
// under the same lock: a standing rule and a one-off booking for the same
// doctor can never race past each other.
type ScheduleTx interface {
	FindConflicting(ctx context.Context, q ConflictQuery) (*domain.Appointment, error)
	CreateAppointment(ctx context.Context, appt domain.Appointment) (domain.Appointment, error)
	UpdateAppointment(ctx context.Context, appt domain.Appointment) (domain.Appointment, error)
	UpdateAppointmentStatus(ctx context.Context, clinicID, appointmentID uuid.UUID, status domain.AppointmentStatus) error

	ListBlockingAppointments(ctx context.Context, clinicID, doctorID uuid.UUID, windowStart, windowEnd time.Time) ([]domain.Appointment, error)
	CreateSeries(ctx context.Context, series domain.AppointmentSeries) (domain.AppointmentSeries, error)
	ListDoctorSeries(ctx context.Context, clinicID, doctorID uuid.UUID) ([]domain.AppointmentSeries, error)
	ListSeriesExceptions(ctx context.Context, seriesID uuid.UUID, windowStart, windowEnd time.Time) ([]domain.SeriesException, error)
}
