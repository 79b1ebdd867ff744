package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type AppointmentStatus string

const (
	StatusScheduled  AppointmentStatus = "SCHEDULED"
	StatusConfirmed  AppointmentStatus = "CONFIRMED"
	StatusInProgress AppointmentStatus = "IN_PROGRESS"
	StatusCompleted  AppointmentStatus = "COMPLETED"
	StatusCancelled  AppointmentStatus = "CANCELLED"
	StatusNoShow     AppointmentStatus = "NO_SHOW"
)

// AppointmentStatuses lists every accepted wire value.
var AppointmentStatuses = []AppointmentStatus{
	StatusScheduled,
	StatusConfirmed,
	StatusInProgress,
	StatusCompleted,
	StatusCancelled,
	StatusNoShow,
}

func (s AppointmentStatus) Valid() bool {
	switch s {
	case StatusScheduled, StatusConfirmed, StatusInProgress, StatusCompleted, StatusCancelled, StatusNoShow:
		return true
	}
	return false
}

// BlocksScheduling reports whether an appointment in this status occupies its
// doctor's calendar. Cancelled and no-show slots are free for re-booking.
func (s AppointmentStatus) BlocksScheduling() bool {
	return s != StatusCancelled && s != StatusNoShow
}

type Appointment struct {
	bun.BaseModel `bun:"table:appointments,alias:a"`

	ID        uuid.UUID         `bun:"id,pk,type:uuid"`
	ClinicID  uuid.UUID         `bun:"clinic_id,notnull,type:uuid"`
	PatientID uuid.UUID         `bun:"patient_id,notnull,type:uuid"`
	DoctorID  uuid.UUID         `bun:"doctor_id,notnull,type:uuid"`
	StartTime time.Time         `bun:"start_time,notnull"`
	EndTime   time.Time         `bun:"end_time,notnull"`
	Status    AppointmentStatus `bun:"status,notnull"`
	Reason    string            `bun:"reason"`
	Notes     string            `bun:"notes"`
	CreatedBy uuid.UUID         `bun:"created_by,type:uuid"`
	CreatedAt time.Time         `bun:"created_at,notnull"`
	UpdatedAt time.Time         `bun:"updated_at,notnull"`

	Patient *Patient `bun:"rel:belongs-to,join:patient_id=id"`
	Doctor  *Doctor  `bun:"rel:belongs-to,join:doctor_id=id"`
}

func (a *Appointment) BeforeAppendModel(ctx context.Context, query bun.Query) error {
	now := time.Now().UTC()
	switch query.(type) {
	case *bun.InsertQuery:
		if a.ID == uuid.Nil {
			id, err := uuid.NewV7()
			if err != nil {
				return err
			}
			a.ID = id
		}
		if a.CreatedAt.IsZero() {
			a.CreatedAt = now
		}
		if a.UpdatedAt.IsZero() {
			a.UpdatedAt = now
		}
	case *bun.UpdateQuery:
		a.UpdatedAt = now
	}
	return nil
}

// Slot returns the appointment's booked interval.
func (a *Appointment) Slot() TimeSlot {
	return TimeSlot{Start: a.StartTime, End: a.EndTime}
}

// PatientName returns the related patient's full name, or empty when the
// relation is not loaded.
func (a *Appointment) PatientName() string {
	if a.Patient == nil {
		return ""
	}
	return a.Patient.FullName()
}

// DoctorName returns the related doctor's name, or empty when the relation is
// not loaded.
func (a *Appointment) DoctorName() string {
	if a.Doctor == nil {
		return ""
	}
	return a.Doctor.Name
}
