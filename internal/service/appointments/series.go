package appointments

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/JuanHVDev/nexus-med-sub001/internal/domain"
	"github.com/JuanHVDev/nexus-med-sub001/internal/store"
)

// maxSeriesDuration caps a single occurrence. A standing appointment longer
// than a day is almost certainly an input error.
const maxSeriesDuration = 24 * time.Hour

type SeriesService struct {
	repo  store.SeriesRepository
	audit store.AuditRepository
	log   *slog.Logger
}

func NewSeriesService(repo store.SeriesRepository, audit store.AuditRepository, log *slog.Logger) *SeriesService {
	if log == nil {
		log = slog.Default()
	}
	return &SeriesService{
		repo:  repo,
		audit: audit,
		log:   log.With(slog.String("component", "service.series")),
	}
}

type RecurrenceRuleInput struct {
	Frequency domain.SeriesFrequency
	Interval  int
	ByWeekday []int16
	Until     *time.Time
	Count     *int
	Timezone  string
}

type CreateSeriesInput struct {
	PatientID uuid.UUID
	DoctorID  uuid.UUID
	StartTime time.Time
	EndTime   time.Time
	Reason    string
	Notes     string
	Rule      RecurrenceRuleInput
}

// CreateSeries validates a recurrence rule and books the standing slot. The
// rule must be bounded (until or count) and every occurrence in the conflict
// lookahead must be free on the doctor's calendar.
func (s *SeriesService) CreateSeries(ctx context.Context, clinicID, actorID uuid.UUID, in CreateSeriesInput) (domain.AppointmentSeries, error) {
	if clinicID == uuid.Nil {
		return domain.AppointmentSeries{}, validationError("clinic_id is required")
	}
	if in.PatientID == uuid.Nil {
		return domain.AppointmentSeries{}, validationError("patient_id is required")
	}
	if in.DoctorID == uuid.Nil {
		return domain.AppointmentSeries{}, validationError("doctor_id is required")
	}

	frequency := in.Rule.Frequency
	if frequency == "" {
		frequency = domain.SeriesFrequencyWeekly
	}
	if frequency != domain.SeriesFrequencyWeekly {
		return domain.AppointmentSeries{}, validationError("unsupported frequency")
	}

	tz := strings.TrimSpace(in.Rule.Timezone)
	if tz == "" {
		return domain.AppointmentSeries{}, validationError("timezone is required")
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return domain.AppointmentSeries{}, validationError("invalid timezone")
	}

	start := in.StartTime.UTC()
	end := in.EndTime.UTC()
	if !domain.IsValidTimeSlot(start, end) {
		return domain.AppointmentSeries{}, validationError("end time must be after start time")
	}
	if end.Sub(start) > maxSeriesDuration {
		return domain.AppointmentSeries{}, validationError("duration too long")
	}
	durationSeconds := int(end.Sub(start) / time.Second)

	interval := in.Rule.Interval
	if interval == 0 {
		interval = 1
	}
	if interval < 1 {
		return domain.AppointmentSeries{}, validationError("interval must be at least 1")
	}

	weekdays := in.Rule.ByWeekday
	if len(weekdays) == 0 {
		weekday := start.In(loc).Weekday()
		if weekday == time.Sunday {
			weekdays = []int16{7}
		} else {
			weekdays = []int16{int16(weekday)}
		}
	}

	dedup := make(map[int16]struct{}, len(weekdays))
	normalized := make([]int16, 0, len(weekdays))
	for _, wd := range weekdays {
		if wd < 1 || wd > 7 {
			return domain.AppointmentSeries{}, validationError("invalid weekday")
		}
		if _, ok := dedup[wd]; ok {
			continue
		}
		dedup[wd] = struct{}{}
		normalized = append(normalized, wd)
	}
	sort.Slice(normalized, func(i, j int) bool { return normalized[i] < normalized[j] })

	var untilUTC *time.Time
	if in.Rule.Until != nil {
		u := in.Rule.Until.UTC()
		if u.Before(start) {
			return domain.AppointmentSeries{}, validationError("until must be after start time")
		}
		untilUTC = &u
	}

	var count *int
	if in.Rule.Count != nil {
		c := *in.Rule.Count
		if c < 1 {
			return domain.AppointmentSeries{}, validationError("count must be at least 1")
		}
		count = &c
	}

	if untilUTC == nil && count == nil {
		return domain.AppointmentSeries{}, validationError("until or count is required")
	}

	series := domain.AppointmentSeries{
		ClinicID:        clinicID,
		PatientID:       in.PatientID,
		DoctorID:        in.DoctorID,
		Reason:          strings.TrimSpace(in.Reason),
		Notes:           in.Notes,
		Timezone:        tz,
		DTStart:         start,
		DurationSeconds: durationSeconds,
		Frequency:       frequency,
		Interval:        interval,
		ByWeekday:       normalized,
		Until:           untilUTC,
		Count:           count,
		CreatedBy:       actorID,
	}

	lookaheadEnd := start.Add(store.SeriesConflictLookahead)
	duration := time.Duration(durationSeconds) * time.Second

	if count == nil && untilUTC != nil && untilUTC.After(lookaheadEnd) {
		return domain.AppointmentSeries{}, validationError("until must be within 180 days of start time")
	}

	occLimitEnd := lookaheadEnd
	if untilUTC != nil && untilUTC.Before(occLimitEnd) {
		occLimitEnd = *untilUTC
	}

	// Expand once without the count cap to learn how many slots the rule can
	// actually produce inside its bounds.
	probe := series
	probe.Until = &occLimitEnd
	probe.Count = nil
	occs, err := domain.GenerateWeeklyOccurrences(probe, start, occLimitEnd.Add(duration))
	if err != nil {
		return domain.AppointmentSeries{}, err
	}
	if len(occs) == 0 {
		return domain.AppointmentSeries{}, validationError("recurrence rule produces no occurrences")
	}
	if count != nil && *count > len(occs) {
		if untilUTC != nil && untilUTC.Before(lookaheadEnd) {
			return domain.AppointmentSeries{}, validationError("count exceeds occurrences available before until")
		}
		return domain.AppointmentSeries{}, validationError("count exceeds occurrences available within 180 days of start time")
	}

	created, err := s.repo.CreateSeries(ctx, series)
	if err != nil {
		return domain.AppointmentSeries{}, err
	}

	s.recordAudit(ctx, clinicID, actorID, domain.AuditActionCreated, created.ID,
		fmt.Sprintf("weekly series from %s, %d min", created.DTStart.Format(time.RFC3339), created.DurationSeconds/60))
	return created, nil
}

func (s *SeriesService) GetSeries(ctx context.Context, clinicID, seriesID uuid.UUID) (domain.AppointmentSeries, error) {
	if clinicID == uuid.Nil {
		return domain.AppointmentSeries{}, validationError("clinic_id is required")
	}
	return s.repo.FindSeriesByID(ctx, clinicID, seriesID)
}

func (s *SeriesService) ListSeries(ctx context.Context, clinicID uuid.UUID, doctorID *uuid.UUID) ([]domain.AppointmentSeries, error) {
	if clinicID == uuid.Nil {
		return nil, validationError("clinic_id is required")
	}
	return s.repo.FindSeries(ctx, clinicID, doctorID)
}

// CancelSeries removes the rule and all its future occurrences. Unlike a
// single appointment, a series leaves no tombstone; its exceptions go with it.
func (s *SeriesService) CancelSeries(ctx context.Context, clinicID, actorID, seriesID uuid.UUID) error {
	if clinicID == uuid.Nil {
		return validationError("clinic_id is required")
	}
	if seriesID == uuid.Nil {
		return validationError("series_id is required")
	}

	if err := s.repo.DeleteSeries(ctx, clinicID, seriesID); err != nil {
		return err
	}

	s.recordAudit(ctx, clinicID, actorID, domain.AuditActionCancelled, seriesID, "series cancelled")
	return nil
}

type AmendOccurrenceInput struct {
	OccurrenceStart time.Time
	Kind            domain.SeriesExceptionKind
	OverrideStart   *time.Time
	OverrideEnd     *time.Time
	OverrideNotes   *string
}

// AmendOccurrence skips or moves a single occurrence without touching the
// rule. Amending the same occurrence again replaces the earlier exception.
func (s *SeriesService) AmendOccurrence(ctx context.Context, clinicID, actorID, seriesID uuid.UUID, in AmendOccurrenceInput) (domain.SeriesException, error) {
	if clinicID == uuid.Nil {
		return domain.SeriesException{}, validationError("clinic_id is required")
	}
	if seriesID == uuid.Nil {
		return domain.SeriesException{}, validationError("series_id is required")
	}
	if in.OccurrenceStart.IsZero() {
		return domain.SeriesException{}, validationError("occurrence_start is required")
	}

	switch in.Kind {
	case domain.SeriesExceptionKindSkip:
		if in.OverrideStart != nil || in.OverrideEnd != nil || in.OverrideNotes != nil {
			return domain.SeriesException{}, validationError("skip cannot carry overrides")
		}
	case domain.SeriesExceptionKindOverride:
		if in.OverrideStart == nil && in.OverrideEnd == nil && in.OverrideNotes == nil {
			return domain.SeriesException{}, validationError("override requires at least one override field")
		}
		if in.OverrideStart != nil && in.OverrideEnd != nil && !domain.IsValidTimeSlot(in.OverrideStart.UTC(), in.OverrideEnd.UTC()) {
			return domain.SeriesException{}, validationError("end time must be after start time")
		}
	default:
		return domain.SeriesException{}, validationError("invalid exception kind")
	}

	ex := domain.SeriesException{
		SeriesID:        seriesID,
		OccurrenceStart: in.OccurrenceStart.UTC(),
		Kind:            in.Kind,
		OverrideNotes:   in.OverrideNotes,
	}
	if in.OverrideStart != nil {
		t := in.OverrideStart.UTC()
		ex.OverrideStart = &t
	}
	if in.OverrideEnd != nil {
		t := in.OverrideEnd.UTC()
		ex.OverrideEnd = &t
	}

	saved, err := s.repo.UpsertException(ctx, clinicID, ex)
	if err != nil {
		return domain.SeriesException{}, err
	}

	s.recordAudit(ctx, clinicID, actorID, domain.AuditActionUpdated, seriesID,
		fmt.Sprintf("%s occurrence %s", in.Kind, ex.OccurrenceStart.Format(time.RFC3339)))
	return saved, nil
}

func (s *SeriesService) Occurrences(ctx context.Context, clinicID uuid.UUID, windowStart, windowEnd time.Time, doctorID *uuid.UUID) ([]domain.SeriesOccurrence, error) {
	if clinicID == uuid.Nil {
		return nil, validationError("clinic_id is required")
	}

	start := windowStart.UTC()
	end := windowEnd.UTC()
	if !end.After(start) {
		return nil, validationError("window_end must be after window_start")
	}

	return s.repo.ExpandOccurrences(ctx, clinicID, start, end, doctorID)
}

func (s *SeriesService) recordAudit(ctx context.Context, clinicID, actorID uuid.UUID, action domain.AuditAction, seriesID uuid.UUID, detail string) {
	if s.audit == nil {
		return
	}
	err := s.audit.Record(ctx, domain.AuditLog{
		ClinicID: clinicID,
		ActorID:  actorID,
		Action:   action,
		Entity:   "series",
		EntityID: seriesID,
		Detail:   detail,
	})
	if err != nil {
		s.log.Warn("audit record failed",
			slog.Any("err", err),
			slog.String("action", string(action)),
			slog.String("entity_id", seriesID.String()),
		)
	}
}
