package rest

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/JuanHVDev/nexus-med-sub001/internal/domain"
	"github.com/JuanHVDev/nexus-med-sub001/internal/service/appointments"
	"github.com/JuanHVDev/nexus-med-sub001/internal/store"
)

type seriesService interface {
	CreateSeries(ctx context.Context, clinicID, actorID uuid.UUID, in appointments.CreateSeriesInput) (domain.AppointmentSeries, error)
	GetSeries(ctx context.Context, clinicID, seriesID uuid.UUID) (domain.AppointmentSeries, error)
	ListSeries(ctx context.Context, clinicID uuid.UUID, doctorID *uuid.UUID) ([]domain.AppointmentSeries, error)
	CancelSeries(ctx context.Context, clinicID, actorID, seriesID uuid.UUID) error
	AmendOccurrence(ctx context.Context, clinicID, actorID, seriesID uuid.UUID, in appointments.AmendOccurrenceInput) (domain.SeriesException, error)
	Occurrences(ctx context.Context, clinicID uuid.UUID, windowStart, windowEnd time.Time, doctorID *uuid.UUID) ([]domain.SeriesOccurrence, error)
}

type SeriesHandler struct {
	svc seriesService
	log *slog.Logger
}

func NewSeriesHandler(svc seriesService, log *slog.Logger) *SeriesHandler {
	if log == nil {
		log = slog.Default()
	}
	return &SeriesHandler{
		svc: svc,
		log: log.With(slog.String("component", "rest.series")),
	}
}

func (h *SeriesHandler) RegisterRoutes(api *echo.Group) {
	api.POST("/series", h.Create)
	api.GET("/series", h.List)
	api.GET("/series/occurrences", h.Occurrences)
	api.GET("/series/:id", h.Get)
	api.DELETE("/series/:id", h.Cancel)
	api.PUT("/series/:id/occurrences", h.AmendOccurrence)
}

type recurrenceRuleRequest struct {
	Frequency string     `json:"frequency" validate:"omitempty,oneof=weekly"`
	Interval  int        `json:"interval"`
	ByWeekday []int16    `json:"byWeekday"`
	Until     *time.Time `json:"until"`
	Count     *int       `json:"count"`
	Timezone  string     `json:"timezone" validate:"required"`
}

type createSeriesRequest struct {
	PatientID string                `json:"patientId" validate:"required,uuid"`
	DoctorID  string                `json:"doctorId" validate:"required,uuid"`
	StartTime time.Time             `json:"startTime" validate:"required"`
	EndTime   time.Time             `json:"endTime" validate:"required"`
	Reason    string                `json:"reason"`
	Notes     string                `json:"notes"`
	Rule      recurrenceRuleRequest `json:"rule" validate:"required"`
}

type amendOccurrenceRequest struct {
	OccurrenceStart time.Time  `json:"occurrenceStart" validate:"required"`
	Kind            string     `json:"kind" validate:"required,oneof=skip override"`
	OverrideStart   *time.Time `json:"overrideStart"`
	OverrideEnd     *time.Time `json:"overrideEnd"`
	OverrideNotes   *string    `json:"overrideNotes"`
}

type seriesResponse struct {
	ID              uuid.UUID       `json:"id"`
	PatientID       uuid.UUID       `json:"patientId"`
	DoctorID        uuid.UUID       `json:"doctorId"`
	Reason          string          `json:"reason,omitempty"`
	Notes           string          `json:"notes,omitempty"`
	Timezone        string          `json:"timezone"`
	StartTime       time.Time       `json:"startTime"`
	DurationSeconds int             `json:"durationSeconds"`
	Frequency       string          `json:"frequency"`
	Interval        int             `json:"interval"`
	ByWeekday       []int16         `json:"byWeekday"`
	Until           *time.Time      `json:"until,omitempty"`
	Count           *int            `json:"count,omitempty"`
	CreatedAt       time.Time       `json:"createdAt"`
	UpdatedAt       time.Time       `json:"updatedAt"`
	Patient         *patientSummary `json:"patient,omitempty"`
	Doctor          *doctorSummary  `json:"doctor,omitempty"`
}

type occurrenceResponse struct {
	ID          string    `json:"id"`
	SeriesID    uuid.UUID `json:"seriesId"`
	PatientID   uuid.UUID `json:"patientId"`
	DoctorID    uuid.UUID `json:"doctorId"`
	PatientName string    `json:"patientName,omitempty"`
	DoctorName  string    `json:"doctorName,omitempty"`
	Reason      string    `json:"reason,omitempty"`
	Notes       string    `json:"notes,omitempty"`
	StartTime   time.Time `json:"startTime"`
	EndTime     time.Time `json:"endTime"`
}

type exceptionResponse struct {
	ID              uuid.UUID  `json:"id"`
	SeriesID        uuid.UUID  `json:"seriesId"`
	OccurrenceStart time.Time  `json:"occurrenceStart"`
	Kind            string     `json:"kind"`
	OverrideStart   *time.Time `json:"overrideStart,omitempty"`
	OverrideEnd     *time.Time `json:"overrideEnd,omitempty"`
	OverrideNotes   *string    `json:"overrideNotes,omitempty"`
}

func (h *SeriesHandler) Create(c echo.Context) error {
	var req createSeriesRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed request body")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	series, err := h.svc.CreateSeries(c.Request().Context(), ClinicID(c), UserID(c), appointments.CreateSeriesInput{
		PatientID: uuid.MustParse(req.PatientID),
		DoctorID:  uuid.MustParse(req.DoctorID),
		StartTime: req.StartTime,
		EndTime:   req.EndTime,
		Reason:    req.Reason,
		Notes:     req.Notes,
		Rule: appointments.RecurrenceRuleInput{
			Frequency: domain.SeriesFrequency(req.Rule.Frequency),
			Interval:  req.Rule.Interval,
			ByWeekday: req.Rule.ByWeekday,
			Until:     req.Rule.Until,
			Count:     req.Rule.Count,
			Timezone:  req.Rule.Timezone,
		},
	})
	if err != nil {
		return h.mapError(c, "create_series", err)
	}

	h.log.Info("series created",
		slog.String("series_id", series.ID.String()),
		slog.String("clinic_id", series.ClinicID.String()),
		slog.Time("dtstart", series.DTStart),
	)
	return c.JSON(http.StatusCreated, toSeriesResponse(series))
}

func (h *SeriesHandler) Get(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "id must be a UUID")
	}

	series, err := h.svc.GetSeries(c.Request().Context(), ClinicID(c), id)
	if err != nil {
		return h.mapError(c, "get_series", err)
	}
	return c.JSON(http.StatusOK, toSeriesResponse(series))
}

func (h *SeriesHandler) List(c echo.Context) error {
	var doctorID *uuid.UUID
	if raw := c.QueryParam("doctorId"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "doctorId must be a UUID")
		}
		doctorID = &id
	}

	series, err := h.svc.ListSeries(c.Request().Context(), ClinicID(c), doctorID)
	if err != nil {
		return h.mapError(c, "list_series", err)
	}

	items := make([]seriesResponse, 0, len(series))
	for _, s := range series {
		items = append(items, toSeriesResponse(s))
	}
	return c.JSON(http.StatusOK, items)
}

func (h *SeriesHandler) Cancel(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "id must be a UUID")
	}

	if err := h.svc.CancelSeries(c.Request().Context(), ClinicID(c), UserID(c), id); err != nil {
		return h.mapError(c, "cancel_series", err)
	}

	h.log.Info("series cancelled", slog.String("series_id", id.String()))
	return c.NoContent(http.StatusNoContent)
}

func (h *SeriesHandler) AmendOccurrence(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "id must be a UUID")
	}

	var req amendOccurrenceRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed request body")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	ex, err := h.svc.AmendOccurrence(c.Request().Context(), ClinicID(c), UserID(c), id, appointments.AmendOccurrenceInput{
		OccurrenceStart: req.OccurrenceStart,
		Kind:            domain.SeriesExceptionKind(req.Kind),
		OverrideStart:   req.OverrideStart,
		OverrideEnd:     req.OverrideEnd,
		OverrideNotes:   req.OverrideNotes,
	})
	if err != nil {
		return h.mapError(c, "amend_occurrence", err)
	}

	h.log.Info("series occurrence amended",
		slog.String("series_id", id.String()),
		slog.String("kind", req.Kind),
		slog.Time("occurrence_start", req.OccurrenceStart),
	)
	return c.JSON(http.StatusOK, exceptionResponse{
		ID:              ex.ID,
		SeriesID:        ex.SeriesID,
		OccurrenceStart: ex.OccurrenceStart,
		Kind:            string(ex.Kind),
		OverrideStart:   ex.OverrideStart,
		OverrideEnd:     ex.OverrideEnd,
		OverrideNotes:   ex.OverrideNotes,
	})
}

func (h *SeriesHandler) Occurrences(c echo.Context) error {
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

	occs, err := h.svc.Occurrences(c.Request().Context(), ClinicID(c), start, end, doctorID)
	if err != nil {
		return h.mapError(c, "series_occurrences", err)
	}

	items := make([]occurrenceResponse, 0, len(occs))
	for _, o := range occs {
		items = append(items, occurrenceResponse{
			ID:          o.ID,
			SeriesID:    o.SeriesID,
			PatientID:   o.PatientID,
			DoctorID:    o.DoctorID,
			PatientName: o.PatientName,
			DoctorName:  o.DoctorName,
			Reason:      o.Reason,
			Notes:       o.Notes,
			StartTime:   o.StartTime,
			EndTime:     o.EndTime,
		})
	}
	return c.JSON(http.StatusOK, items)
}

func (h *SeriesHandler) mapError(c echo.Context, op string, err error) error {
	var vErr *appointments.ValidationError
	if errors.As(err, &vErr) {
		return echo.NewHTTPError(http.StatusBadRequest, vErr.Error())
	}
	if errors.Is(err, store.ErrConflict) {
		h.log.Info("series conflict", slog.String("op", op), slog.String("clinic_id", ClinicID(c).String()))
		return echo.NewHTTPError(http.StatusConflict, "this recurrence conflicts with existing bookings")
	}
	if errors.Is(err, store.ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "series not found")
	}
	h.log.Error("request failed", slog.String("op", op), slog.Any("err", err))
	return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
}

func toSeriesResponse(s domain.AppointmentSeries) seriesResponse {
	resp := seriesResponse{
		ID:              s.ID,
		PatientID:       s.PatientID,
		DoctorID:        s.DoctorID,
		Reason:          s.Reason,
		Notes:           s.Notes,
		Timezone:        s.Timezone,
		StartTime:       s.DTStart,
		DurationSeconds: s.DurationSeconds,
		Frequency:       string(s.Frequency),
		Interval:        s.Interval,
		ByWeekday:       s.ByWeekday,
		Until:           s.Until,
		Count:           s.Count,
		CreatedAt:       s.CreatedAt,
		UpdatedAt:       s.UpdatedAt,
	}
	if s.Patient != nil {
		resp.Patient = &patientSummary{
			ID:         s.Patient.ID,
			FirstName:  s.Patient.FirstName,
			LastName:   s.Patient.LastName,
			MiddleName: s.Patient.MiddleName,
			Phone:      s.Patient.Phone,
		}
	}
	if s.Doctor != nil {
		resp.Doctor = &doctorSummary{
			ID:        s.Doctor.ID,
			Name:      s.Doctor.Name,
			Specialty: s.Doctor.Specialty,
		}
	}
	return resp
}
