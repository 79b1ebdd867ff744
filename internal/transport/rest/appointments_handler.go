package rest

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/JuanHVDev/nexus-med-sub001/internal/domain"
	"github.com/JuanHVDev/nexus-med-sub001/internal/service/appointments"
	"github.com/JuanHVDev/nexus-med-sub001/internal/store"
)

type schedulerService interface {
	Create(ctx context.Context, clinicID, actorID uuid.UUID, in appointments.CreateInput) (domain.Appointment, error)
	Update(ctx context.Context, clinicID, actorID, appointmentID uuid.UUID, in appointments.UpdateInput) (domain.Appointment, error)
	UpdateStatus(ctx context.Context, clinicID, actorID, appointmentID uuid.UUID, status domain.AppointmentStatus) error
	Cancel(ctx context.Context, clinicID, actorID, appointmentID uuid.UUID) error
	GetByID(ctx context.Context, clinicID, appointmentID uuid.UUID) (domain.Appointment, error)
	List(ctx context.Context, clinicID uuid.UUID, in appointments.ListInput) ([]domain.Appointment, int, error)
	CalendarEvents(ctx context.Context, clinicID uuid.UUID, windowStart, windowEnd time.Time, doctorID *uuid.UUID) ([]domain.CalendarEvent, error)
}

type AppointmentsHandler struct {
	svc schedulerService
	log *slog.Logger
}

func NewAppointmentsHandler(svc schedulerService, log *slog.Logger) *AppointmentsHandler {
	if log == nil {
		log = slog.Default()
	}
	return &AppointmentsHandler{
		svc: svc,
		log: log.With(slog.String("component", "rest.appointments")),
	}
}

func (h *AppointmentsHandler) RegisterRoutes(api *echo.Group) {
	api.POST("/appointments", h.Create)
	api.GET("/appointments", h.List)
	api.GET("/appointments/:id", h.Get)
	api.PUT("/appointments/:id", h.Update)
	api.PATCH("/appointments/:id/status", h.UpdateStatus)
	api.DELETE("/appointments/:id", h.Cancel)
	api.GET("/calendar/events", h.CalendarEvents)
}

const statusValues = "SCHEDULED CONFIRMED IN_PROGRESS COMPLETED CANCELLED NO_SHOW"

type createAppointmentRequest struct {
	PatientID string    `json:"patientId" validate:"required,uuid"`
	DoctorID  string    `json:"doctorId" validate:"required,uuid"`
	StartTime time.Time `json:"startTime" validate:"required"`
	EndTime   time.Time `json:"endTime" validate:"required"`
	Status    string    `json:"status" validate:"omitempty,oneof=SCHEDULED CONFIRMED IN_PROGRESS COMPLETED CANCELLED NO_SHOW"`
	Reason    string    `json:"reason"`
	Notes     string    `json:"notes"`
}

type updateAppointmentRequest struct {
	PatientID *string    `json:"patientId" validate:"omitempty,uuid"`
	DoctorID  *string    `json:"doctorId" validate:"omitempty,uuid"`
	StartTime *time.Time `json:"startTime"`
	EndTime   *time.Time `json:"endTime"`
	Status    *string    `json:"status" validate:"omitempty,oneof=SCHEDULED CONFIRMED IN_PROGRESS COMPLETED CANCELLED NO_SHOW"`
	Reason    *string    `json:"reason"`
	Notes     *string    `json:"notes"`
}

type updateStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=SCHEDULED CONFIRMED IN_PROGRESS COMPLETED CANCELLED NO_SHOW"`
}

type patientSummary struct {
	ID         uuid.UUID `json:"id"`
	FirstName  string    `json:"firstName"`
	LastName   string    `json:"lastName"`
	MiddleName string    `json:"middleName,omitempty"`
	Phone      string    `json:"phone,omitempty"`
}

type doctorSummary struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Specialty string    `json:"specialty,omitempty"`
}

type appointmentResponse struct {
	ID        uuid.UUID       `json:"id"`
	PatientID uuid.UUID       `json:"patientId"`
	DoctorID  uuid.UUID       `json:"doctorId"`
	StartTime time.Time       `json:"startTime"`
	EndTime   time.Time       `json:"endTime"`
	Status    string          `json:"status"`
	Reason    string          `json:"reason,omitempty"`
	Notes     string          `json:"notes,omitempty"`
	CreatedAt time.Time       `json:"createdAt"`
	UpdatedAt time.Time       `json:"updatedAt"`
	Patient   *patientSummary `json:"patient,omitempty"`
	Doctor    *doctorSummary  `json:"doctor,omitempty"`
}

type listResponse struct {
	Items  []appointmentResponse `json:"items"`
	Total  int                   `json:"total"`
	Limit  int                   `json:"limit"`
	Offset int                   `json:"offset"`
}

func (h *AppointmentsHandler) Create(c echo.Context) error {
	var req createAppointmentRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed request body")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	appt, err := h.svc.Create(c.Request().Context(), ClinicID(c), UserID(c), appointments.CreateInput{
		PatientID: uuid.MustParse(req.PatientID),
		DoctorID:  uuid.MustParse(req.DoctorID),
		StartTime: req.StartTime,
		EndTime:   req.EndTime,
		Status:    domain.AppointmentStatus(req.Status),
		Reason:    req.Reason,
		Notes:     req.Notes,
	})
	if err != nil {
		return h.mapError(c, "create", err)
	}

	h.log.Info("appointment created",
		slog.String("appointment_id", appt.ID.String()),
		slog.String("clinic_id", appt.ClinicID.String()),
		slog.Time("start_time", appt.StartTime),
		slog.Time("end_time", appt.EndTime),
	)
	return c.JSON(http.StatusCreated, toAppointmentResponse(appt))
}

func (h *AppointmentsHandler) Get(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "id must be a UUID")
	}

	appt, err := h.svc.GetByID(c.Request().Context(), ClinicID(c), id)
	if err != nil {
		return h.mapError(c, "get", err)
	}
	return c.JSON(http.StatusOK, toAppointmentResponse(appt))
}

func (h *AppointmentsHandler) List(c echo.Context) error {
	var in appointments.ListInput

	if raw := c.QueryParam("doctorId"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "doctorId must be a UUID")
		}
		in.DoctorID = &id
	}
	if raw := c.QueryParam("patientId"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "patientId must be a UUID")
		}
		in.PatientID = &id
	}
	if raw := c.QueryParam("status"); raw != "" {
		status := domain.AppointmentStatus(raw)
		if !status.Valid() {
			return echo.NewHTTPError(http.StatusBadRequest, "status must be one of "+statusValues)
		}
		in.Status = &status
	}
	var err error
	if in.From, err = optionalTime(c, "from"); err != nil {
		return err
	}
	if in.To, err = optionalTime(c, "to"); err != nil {
		return err
	}
	in.Limit = intParam(c, "limit", 0)
	in.Offset = intParam(c, "offset", 0)

	appts, total, err := h.svc.List(c.Request().Context(), ClinicID(c), in)
	if err != nil {
		return h.mapError(c, "list", err)
	}

	items := make([]appointmentResponse, 0, len(appts))
	for _, a := range appts {
		items = append(items, toAppointmentResponse(a))
	}
	return c.JSON(http.StatusOK, listResponse{
		Items:  items,
		Total:  total,
		Limit:  in.Limit,
		Offset: in.Offset,
	})
}

func (h *AppointmentsHandler) Update(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "id must be a UUID")
	}

	var req updateAppointmentRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed request body")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	in := appointments.UpdateInput{
		StartTime: req.StartTime,
		EndTime:   req.EndTime,
		Reason:    req.Reason,
		Notes:     req.Notes,
	}
	if req.PatientID != nil {
		pid := uuid.MustParse(*req.PatientID)
		in.PatientID = &pid
	}
	if req.DoctorID != nil {
		did := uuid.MustParse(*req.DoctorID)
		in.DoctorID = &did
	}
	if req.Status != nil {
		status := domain.AppointmentStatus(*req.Status)
		in.Status = &status
	}

	appt, err := h.svc.Update(c.Request().Context(), ClinicID(c), UserID(c), id, in)
	if err != nil {
		return h.mapError(c, "update", err)
	}

	h.log.Info("appointment updated",
		slog.String("appointment_id", appt.ID.String()),
		slog.String("clinic_id", appt.ClinicID.String()),
	)
	return c.JSON(http.StatusOK, toAppointmentResponse(appt))
}

func (h *AppointmentsHandler) UpdateStatus(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "id must be a UUID")
	}

	var req updateStatusRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed request body")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	if err := h.svc.UpdateStatus(c.Request().Context(), ClinicID(c), UserID(c), id, domain.AppointmentStatus(req.Status)); err != nil {
		return h.mapError(c, "update_status", err)
	}

	h.log.Info("appointment status updated",
		slog.String("appointment_id", id.String()),
		slog.String("status", req.Status),
	)
	return c.NoContent(http.StatusNoContent)
}

func (h *AppointmentsHandler) Cancel(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "id must be a UUID")
	}

	if err := h.svc.Cancel(c.Request().Context(), ClinicID(c), UserID(c), id); err != nil {
		return h.mapError(c, "cancel", err)
	}

	h.log.Info("appointment cancelled", slog.String("appointment_id", id.String()))
	return c.NoContent(http.StatusNoContent)
}

func (h *AppointmentsHandler) CalendarEvents(c echo.Context) error {
	start, err := requiredTime(c, "start")
	if err != nil {
		return err
	}
	end, err := requiredTime(c, "end")
	if err != nil {
		return err
	}

	var doctorID *uuid.UUID
	if raw := c.QueryParam("doctorId"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "doctorId must be a UUID")
		}
		doctorID = &id
	}

	events, err := h.svc.CalendarEvents(c.Request().Context(), ClinicID(c), start, end, doctorID)
	if err != nil {
		return h.mapError(c, "calendar_events", err)
	}
	return c.JSON(http.StatusOK, events)
}

func (h *AppointmentsHandler) mapError(c echo.Context, op string, err error) error {
	var vErr *appointments.ValidationError
	if errors.As(err, &vErr) {
		return echo.NewHTTPError(http.StatusBadRequest, vErr.Error())
	}
	var cErr *appointments.ConflictError
	if errors.As(err, &cErr) {
		h.log.Info("booking conflict", slog.String("op", op), slog.String("clinic_id", ClinicID(c).String()))
		return echo.NewHTTPError(http.StatusConflict, cErr.Error())
	}
	if errors.Is(err, store.ErrConflict) {
		h.log.Info("booking conflict", slog.String("op", op), slog.String("clinic_id", ClinicID(c).String()))
		return echo.NewHTTPError(http.StatusConflict, "this time slot conflicts with an existing appointment")
	}
	if errors.Is(err, store.ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "appointment not found")
	}
	h.log.Error("request failed", slog.String("op", op), slog.Any("err", err))
	return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
}

func toAppointmentResponse(a domain.Appointment) appointmentResponse {
	resp := appointmentResponse{
		ID:        a.ID,
		PatientID: a.PatientID,
		DoctorID:  a.DoctorID,
		StartTime: a.StartTime,
		EndTime:   a.EndTime,
		Status:    string(a.Status),
		Reason:    a.Reason,
		Notes:     a.Notes,
		CreatedAt: a.CreatedAt,
		UpdatedAt: a.UpdatedAt,
	}
	if a.Patient != nil {
		resp.Patient = &patientSummary{
			ID:         a.Patient.ID,
			FirstName:  a.Patient.FirstName,
			LastName:   a.Patient.LastName,
			MiddleName: a.Patient.MiddleName,
			Phone:      a.Patient.Phone,
		}
	}
	if a.Doctor != nil {
		resp.Doctor = &doctorSummary{
			ID:        a.Doctor.ID,
			Name:      a.Doctor.Name,
			Specialty: a.Doctor.Specialty,
		}
	}
	return resp
}

func optionalTime(c echo.Context, name string) (*time.Time, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest, name+" must be RFC 3339")
	}
	return &t, nil
}

func requiredTime(c echo.Context, name string) (time.Time, error) {
	t, err := optionalTime(c, name)
	if err != nil {
		return time.Time{}, err
	}
	if t == nil {
		return time.Time{}, echo.NewHTTPError(http.StatusBadRequest, name+" is required")
	}
	return *t, nil
}

func intParam(c echo.Context, name string, fallback int) int {
	raw := c.QueryParam(name)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}
