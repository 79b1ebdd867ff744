package appointments

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/JuanHVDev/nexus-med-sub001/internal/domain"
	"github.com/JuanHVDev/nexus-med-sub001/internal/store"
)

type ValidationError struct {
	msg string
}

func (e *ValidationError) Error() string {
	return e.msg
}

func validationError(msg string) error {
	return &ValidationError{msg: msg}
}

// ConflictError rejects a booking that overlaps an existing appointment. The
// message names the conflicting patient and start time so a human can resolve
// the clash.
type ConflictError struct {
	PatientName string
	StartTime   time.Time
}

func (e *ConflictError) Error() string {
	when := e.StartTime.Format("15:04")
	if e.PatientName == "" {
		return fmt.Sprintf("this time slot conflicts with an existing appointment at %s", when)
	}
	return fmt.Sprintf("this time slot conflicts with an existing appointment for %s at %s", e.PatientName, when)
}

func conflictError(existing *domain.Appointment) error {
	return &ConflictError{
		PatientName: existing.PatientName(),
		StartTime:   existing.StartTime,
	}
}

type Service struct {
	repo  store.AppointmentRepository
	audit store.AuditRepository
	log   *slog.Logger
}

// NewService wires the orchestrator. audit may be nil, in which case mutations
// are not recorded.
func NewService(repo store.AppointmentRepository, audit store.AuditRepository, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		repo:  repo,
		audit: audit,
		log:   log.With(slog.String("component", "service.appointments")),
	}
}

type CreateInput struct {
	PatientID uuid.UUID
	DoctorID  uuid.UUID
	StartTime time.Time
	EndTime   time.Time
	Status    domain.AppointmentStatus
	Reason    string
	Notes     string
}

func (s *Service) Create(ctx context.Context, clinicID, actorID uuid.UUID, in CreateInput) (domain.Appointment, error) {
	if clinicID == uuid.Nil {
		return domain.Appointment{}, validationError("clinic_id is required")
	}
	if in.PatientID == uuid.Nil {
		return domain.Appointment{}, validationError("patient_id is required")
	}
	if in.DoctorID == uuid.Nil {
		return domain.Appointment{}, validationError("doctor_id is required")
	}

	status := in.Status
	if status == "" {
		status = domain.StatusScheduled
	}
	if !status.Valid() {
		return domain.Appointment{}, validationError("invalid status")
	}

	start := in.StartTime.UTC()
	end := in.EndTime.UTC()
	if !domain.IsValidTimeSlot(start, end) {
		return domain.Appointment{}, validationError("end time must be after start time")
	}

	if status.BlocksScheduling() {
		existing, err := s.repo.FindConflicting(ctx, store.ConflictQuery{
			ClinicID:  clinicID,
			DoctorID:  in.DoctorID,
			StartTime: start,
			EndTime:   end,
		})
		if err != nil {
			return domain.Appointment{}, err
		}
		if existing != nil {
			return domain.Appointment{}, conflictError(existing)
		}
	}

	appt, err := s.repo.Create(ctx, domain.Appointment{
		ClinicID:  clinicID,
		PatientID: in.PatientID,
		DoctorID:  in.DoctorID,
		StartTime: start,
		EndTime:   end,
		Status:    status,
		Reason:    strings.TrimSpace(in.Reason),
		Notes:     in.Notes,
		CreatedBy: actorID,
	})
	if err != nil {
		return domain.Appointment{}, err
	}

	s.recordAudit(ctx, clinicID, actorID, domain.AuditActionCreated, appt.ID,
		fmt.Sprintf("booked %s to %s", appt.StartTime.Format(time.RFC3339), appt.EndTime.Format(time.RFC3339)))
	return appt, nil
}

// UpdateInput carries a partial update. Nil fields keep the stored value; a
// non-nil pointer always overwrites, so "supplied as empty" and "not supplied"
// stay distinguishable.
type UpdateInput struct {
	PatientID *uuid.UUID
	DoctorID  *uuid.UUID
	StartTime *time.Time
	EndTime   *time.Time
	Status    *domain.AppointmentStatus
	Reason    *string
	Notes     *string
}

func (s *Service) Update(ctx context.Context, clinicID, actorID, appointmentID uuid.UUID, in UpdateInput) (domain.Appointment, error) {
	if clinicID == uuid.Nil {
		return domain.Appointment{}, validationError("clinic_id is required")
	}

	current, err := s.repo.FindByID(ctx, clinicID, appointmentID)
	if err != nil {
		return domain.Appointment{}, err
	}

	next := current
	if in.PatientID != nil {
		if *in.PatientID == uuid.Nil {
			return domain.Appointment{}, validationError("patient_id is required")
		}
		next.PatientID = *in.PatientID
	}
	if in.DoctorID != nil {
		if *in.DoctorID == uuid.Nil {
			return domain.Appointment{}, validationError("doctor_id is required")
		}
		next.DoctorID = *in.DoctorID
	}
	if in.StartTime != nil {
		next.StartTime = in.StartTime.UTC()
	}
	if in.EndTime != nil {
		next.EndTime = in.EndTime.UTC()
	}
	if in.Status != nil {
		if !in.Status.Valid() {
			return domain.Appointment{}, validationError("invalid status")
		}
		next.Status = *in.Status
	}
	if in.Reason != nil {
		next.Reason = strings.TrimSpace(*in.Reason)
	}
	if in.Notes != nil {
		next.Notes = *in.Notes
	}

	if !domain.IsValidTimeSlot(next.StartTime, next.EndTime) {
		return domain.Appointment{}, validationError("end time must be after start time")
	}

	rescheduled := next.DoctorID != current.DoctorID ||
		!next.StartTime.Equal(current.StartTime) ||
		!next.EndTime.Equal(current.EndTime)

	if rescheduled && next.Status.BlocksScheduling() {
		existing, err := s.repo.FindConflicting(ctx, store.ConflictQuery{
			ClinicID:  clinicID,
			DoctorID:  next.DoctorID,
			StartTime: next.StartTime,
			EndTime:   next.EndTime,
			ExcludeID: appointmentID,
		})
		if err != nil {
			return domain.Appointment{}, err
		}
		if existing != nil {
			return domain.Appointment{}, conflictError(existing)
		}
	}

	updated, err := s.repo.Update(ctx, next)
	if err != nil {
		return domain.Appointment{}, err
	}

	s.recordAudit(ctx, clinicID, actorID, domain.AuditActionUpdated, updated.ID,
		fmt.Sprintf("rescheduled to %s - %s", updated.StartTime.Format(time.RFC3339), updated.EndTime.Format(time.RFC3339)))
	return updated, nil
}

// UpdateStatus writes a status unconditionally; no transition graph is
// enforced, any status is reachable from any other.
func (s *Service) UpdateStatus(ctx context.Context, clinicID, actorID, appointmentID uuid.UUID, status domain.AppointmentStatus) error {
	return s.setStatus(ctx, clinicID, actorID, appointmentID, status, domain.AuditActionStatusChanged)
}

// Cancel releases the slot. Appointments are never physically deleted.
func (s *Service) Cancel(ctx context.Context, clinicID, actorID, appointmentID uuid.UUID) error {
	return s.setStatus(ctx, clinicID, actorID, appointmentID, domain.StatusCancelled, domain.AuditActionCancelled)
}

func (s *Service) setStatus(ctx context.Context, clinicID, actorID, appointmentID uuid.UUID, status domain.AppointmentStatus, action domain.AuditAction) error {
	if clinicID == uuid.Nil {
		return validationError("clinic_id is required")
	}
	if appointmentID == uuid.Nil {
		return validationError("appointment_id is required")
	}
	if !status.Valid() {
		return validationError("invalid status")
	}

	if err := s.repo.UpdateStatus(ctx, clinicID, appointmentID, status); err != nil {
		return err
	}

	s.recordAudit(ctx, clinicID, actorID, action, appointmentID, string(status))
	return nil
}

func (s *Service) GetByID(ctx context.Context, clinicID, appointmentID uuid.UUID) (domain.Appointment, error) {
	if clinicID == uuid.Nil {
		return domain.Appointment{}, validationError("clinic_id is required")
	}
	return s.repo.FindByID(ctx, clinicID, appointmentID)
}

type ListInput struct {
	DoctorID  *uuid.UUID
	PatientID *uuid.UUID
	Status    *domain.AppointmentStatus
	From      *time.Time
	To        *time.Time
	Limit     int
	Offset    int
}

func (s *Service) List(ctx context.Context, clinicID uuid.UUID, in ListInput) ([]domain.Appointment, int, error) {
	if clinicID == uuid.Nil {
		return nil, 0, validationError("clinic_id is required")
	}
	if in.Status != nil && !in.Status.Valid() {
		return nil, 0, validationError("invalid status")
	}
	if in.From != nil && in.To != nil && !in.To.After(*in.From) {
		return nil, 0, validationError("to must be after from")
	}

	return s.repo.FindMany(ctx, clinicID, store.ListFilter{
		DoctorID:  in.DoctorID,
		PatientID: in.PatientID,
		Status:    in.Status,
		From:      in.From,
		To:        in.To,
		Limit:     in.Limit,
		Offset:    in.Offset,
	})
}

func (s *Service) CalendarEvents(ctx context.Context, clinicID uuid.UUID, windowStart, windowEnd time.Time, doctorID *uuid.UUID) ([]domain.CalendarEvent, error) {
	if clinicID == uuid.Nil {
		return nil, validationError("clinic_id is required")
	}

	start := windowStart.UTC()
	end := windowEnd.UTC()
	if !end.After(start) {
		return nil, validationError("window_end must be after window_start")
	}

	appts, err := s.repo.FindForCalendar(ctx, clinicID, start, end, doctorID)
	if err != nil {
		return nil, err
	}

	events := make([]domain.CalendarEvent, 0, len(appts))
	for _, a := range appts {
		events = append(events, domain.NewCalendarEvent(a))
	}
	return events, nil
}

// recordAudit is best-effort: a failed audit write is logged, never surfaced.
func (s *Service) recordAudit(ctx context.Context, clinicID, actorID uuid.UUID, action domain.AuditAction, entityID uuid.UUID, detail string) {
	if s.audit == nil {
		return
	}
	err := s.audit.Record(ctx, domain.AuditLog{
		ClinicID: clinicID,
		ActorID:  actorID,
		Action:   action,
		Entity:   "appointment",
		EntityID: entityID,
		Detail:   detail,
	})
	if err != nil {
		s.log.Warn("audit record failed",
			slog.Any("err", err),
			slog.String("action", string(action)),
			slog.String("entity_id", entityID.String()),
		)
	}
}
