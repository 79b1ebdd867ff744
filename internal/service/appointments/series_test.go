package appointments

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/JuanHVDev/nexus-med-sub001/internal/domain"
	"github.com/JuanHVDev/nexus-med-sub001/internal/store"
)

var seriesID = uuid.MustParse("00000000-0000-0000-0000-000000000041")

type fakeSeriesRepo struct {
	createSeriesFn      func(ctx context.Context, series domain.AppointmentSeries) (domain.AppointmentSeries, error)
	findSeriesByIDFn    func(ctx context.Context, clinicID, seriesID uuid.UUID) (domain.AppointmentSeries, error)
	findSeriesFn        func(ctx context.Context, clinicID uuid.UUID, doctorID *uuid.UUID) ([]domain.AppointmentSeries, error)
	deleteSeriesFn      func(ctx context.Context, clinicID, seriesID uuid.UUID) error
	upsertExceptionFn   func(ctx context.Context, clinicID uuid.UUID, ex domain.SeriesException) (domain.SeriesException, error)
	expandOccurrencesFn func(ctx context.Context, clinicID uuid.UUID, windowStart, windowEnd time.Time, doctorID *uuid.UUID) ([]domain.SeriesOccurrence, error)
}

func (f *fakeSeriesRepo) CreateSeries(ctx context.Context, series domain.AppointmentSeries) (domain.AppointmentSeries, error) {
	if f.createSeriesFn == nil {
		panic("CreateSeries not configured")
	}
	return f.createSeriesFn(ctx, series)
}

func (f *fakeSeriesRepo) FindSeriesByID(ctx context.Context, clinicID, seriesID uuid.UUID) (domain.AppointmentSeries, error) {
	if f.findSeriesByIDFn == nil {
		panic("FindSeriesByID not configured")
	}
	return f.findSeriesByIDFn(ctx, clinicID, seriesID)
}

func (f *fakeSeriesRepo) FindSeries(ctx context.Context, clinicID uuid.UUID, doctorID *uuid.UUID) ([]domain.AppointmentSeries, error) {
	if f.findSeriesFn == nil {
		panic("FindSeries not configured")
	}
	return f.findSeriesFn(ctx, clinicID, doctorID)
}

func (f *fakeSeriesRepo) DeleteSeries(ctx context.Context, clinicID, seriesID uuid.UUID) error {
	if f.deleteSeriesFn == nil {
		panic("DeleteSeries not configured")
	}
	return f.deleteSeriesFn(ctx, clinicID, seriesID)
}

func (f *fakeSeriesRepo) UpsertException(ctx context.Context, clinicID uuid.UUID, ex domain.SeriesException) (domain.SeriesException, error) {
	if f.upsertExceptionFn == nil {
		panic("UpsertException not configured")
	}
	return f.upsertExceptionFn(ctx, clinicID, ex)
}

func (f *fakeSeriesRepo) ExpandOccurrences(ctx context.Context, clinicID uuid.UUID, windowStart, windowEnd time.Time, doctorID *uuid.UUID) ([]domain.SeriesOccurrence, error) {
	if f.expandOccurrencesFn == nil {
		panic("ExpandOccurrences not configured")
	}
	return f.expandOccurrencesFn(ctx, clinicID, windowStart, windowEnd, doctorID)
}

func validSeriesInput() CreateSeriesInput {
	until := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	return CreateSeriesInput{
		PatientID: patientID,
		DoctorID:  doctorID,
		StartTime: time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC),
		EndTime:   time.Date(2026, 1, 5, 9, 30, 0, 0, time.UTC),
		Reason:    "  physiotherapy  ",
		Rule: RecurrenceRuleInput{
			Timezone: "UTC",
			Until:    &until,
		},
	}
}

func TestCreateSeries_Validation(t *testing.T) {
	svc := NewSeriesService(&fakeSeriesRepo{}, nil, nil)

	tooFar := time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC)
	beforeStart := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	zero := 0
	bigCount := 100

	tests := []struct {
		name    string
		mutate  func(in *CreateSeriesInput)
		wantMsg string
	}{
		{
			name:    "missing patient",
			mutate:  func(in *CreateSeriesInput) { in.PatientID = uuid.Nil },
			wantMsg: "patient_id is required",
		},
		{
			name:    "missing doctor",
			mutate:  func(in *CreateSeriesInput) { in.DoctorID = uuid.Nil },
			wantMsg: "doctor_id is required",
		},
		{
			name:    "unsupported frequency",
			mutate:  func(in *CreateSeriesInput) { in.Rule.Frequency = "daily" },
			wantMsg: "unsupported frequency",
		},
		{
			name:    "missing timezone",
			mutate:  func(in *CreateSeriesInput) { in.Rule.Timezone = " " },
			wantMsg: "timezone is required",
		},
		{
			name:    "invalid timezone",
			mutate:  func(in *CreateSeriesInput) { in.Rule.Timezone = "Not/AZone" },
			wantMsg: "invalid timezone",
		},
		{
			name:    "empty slot",
			mutate:  func(in *CreateSeriesInput) { in.EndTime = in.StartTime },
			wantMsg: "end time must be after start time",
		},
		{
			name:    "duration too long",
			mutate:  func(in *CreateSeriesInput) { in.EndTime = in.StartTime.Add(25 * time.Hour) },
			wantMsg: "duration too long",
		},
		{
			name:    "negative interval",
			mutate:  func(in *CreateSeriesInput) { in.Rule.Interval = -1 },
			wantMsg: "interval must be at least 1",
		},
		{
			name:    "invalid weekday",
			mutate:  func(in *CreateSeriesInput) { in.Rule.ByWeekday = []int16{8} },
			wantMsg: "invalid weekday",
		},
		{
			name:    "until before start",
			mutate:  func(in *CreateSeriesInput) { in.Rule.Until = &beforeStart },
			wantMsg: "until must be after start time",
		},
		{
			name: "count below one",
			mutate: func(in *CreateSeriesInput) {
				in.Rule.Until = nil
				in.Rule.Count = &zero
			},
			wantMsg: "count must be at least 1",
		},
		{
			name: "unbounded rule",
			mutate: func(in *CreateSeriesInput) {
				in.Rule.Until = nil
				in.Rule.Count = nil
			},
			wantMsg: "until or count is required",
		},
		{
			name:    "until beyond lookahead",
			mutate:  func(in *CreateSeriesInput) { in.Rule.Until = &tooFar },
			wantMsg: "until must be within 180 days of start time",
		},
		{
			name:    "count exceeds bounded occurrences",
			mutate:  func(in *CreateSeriesInput) { in.Rule.Count = &bigCount },
			wantMsg: "count exceeds occurrences available before until",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := validSeriesInput()
			tt.mutate(&in)

			_, err := svc.CreateSeries(context.Background(), clinicID, actorID, in)
			var vErr *ValidationError
			if !errors.As(err, &vErr) {
				t.Fatalf("error = %v, want ValidationError", err)
			}
			if vErr.Error() != tt.wantMsg {
				t.Fatalf("message = %q, want %q", vErr.Error(), tt.wantMsg)
			}
		})
	}
}

func TestCreateSeries_NormalizesRule(t *testing.T) {
	var got domain.AppointmentSeries
	repo := &fakeSeriesRepo{
		createSeriesFn: func(ctx context.Context, series domain.AppointmentSeries) (domain.AppointmentSeries, error) {
			got = series
			series.ID = seriesID
			return series, nil
		},
	}
	audit := &fakeAudit{}
	svc := NewSeriesService(repo, audit, nil)

	in := validSeriesInput()
	in.Rule.ByWeekday = []int16{3, 1, 3}

	created, err := svc.CreateSeries(context.Background(), clinicID, actorID, in)
	if err != nil {
		t.Fatalf("CreateSeries error: %v", err)
	}

	if got.ClinicID != clinicID || got.CreatedBy != actorID {
		t.Fatalf("identity = %+v", got)
	}
	if got.Frequency != domain.SeriesFrequencyWeekly || got.Interval != 1 {
		t.Fatalf("rule defaults = %s / %d", got.Frequency, got.Interval)
	}
	if len(got.ByWeekday) != 2 || got.ByWeekday[0] != 1 || got.ByWeekday[1] != 3 {
		t.Fatalf("weekdays = %v, want [1 3]", got.ByWeekday)
	}
	if got.DurationSeconds != 1800 {
		t.Fatalf("duration = %d, want 1800", got.DurationSeconds)
	}
	if got.Reason != "physiotherapy" {
		t.Fatalf("reason = %q", got.Reason)
	}
	if got.DTStart.Location() != time.UTC {
		t.Fatalf("dtstart not UTC: %v", got.DTStart)
	}

	if len(audit.entries) != 1 {
		t.Fatalf("audit entries = %d, want 1", len(audit.entries))
	}
	entry := audit.entries[0]
	if entry.Entity != "series" || entry.Action != domain.AuditActionCreated || entry.EntityID != created.ID {
		t.Fatalf("audit entry = %+v", entry)
	}
}

func TestCreateSeries_DefaultsWeekdayFromStart(t *testing.T) {
	var got domain.AppointmentSeries
	repo := &fakeSeriesRepo{
		createSeriesFn: func(ctx context.Context, series domain.AppointmentSeries) (domain.AppointmentSeries, error) {
			got = series
			return series, nil
		},
	}
	svc := NewSeriesService(repo, nil, nil)

	in := validSeriesInput()
	// 2026-01-05 is a Monday.
	if _, err := svc.CreateSeries(context.Background(), clinicID, actorID, in); err != nil {
		t.Fatalf("CreateSeries error: %v", err)
	}
	if len(got.ByWeekday) != 1 || got.ByWeekday[0] != 1 {
		t.Fatalf("weekdays = %v, want [1]", got.ByWeekday)
	}
}

func TestCreateSeries_PropagatesConflict(t *testing.T) {
	repo := &fakeSeriesRepo{
		createSeriesFn: func(ctx context.Context, series domain.AppointmentSeries) (domain.AppointmentSeries, error) {
			return domain.AppointmentSeries{}, store.ErrConflict
		},
	}
	svc := NewSeriesService(repo, nil, nil)

	_, err := svc.CreateSeries(context.Background(), clinicID, actorID, validSeriesInput())
	if !errors.Is(err, store.ErrConflict) {
		t.Fatalf("error = %v, want store.ErrConflict", err)
	}
}

func TestCancelSeries(t *testing.T) {
	var deleted uuid.UUID
	repo := &fakeSeriesRepo{
		deleteSeriesFn: func(ctx context.Context, cID, sID uuid.UUID) error {
			deleted = sID
			return nil
		},
	}
	audit := &fakeAudit{}
	svc := NewSeriesService(repo, audit, nil)

	if err := svc.CancelSeries(context.Background(), clinicID, actorID, seriesID); err != nil {
		t.Fatalf("CancelSeries error: %v", err)
	}
	if deleted != seriesID {
		t.Fatalf("deleted = %s, want %s", deleted, seriesID)
	}
	if len(audit.entries) != 1 || audit.entries[0].Action != domain.AuditActionCancelled {
		t.Fatalf("audit entries = %+v", audit.entries)
	}
}

func TestCancelSeries_NotFound(t *testing.T) {
	repo := &fakeSeriesRepo{
		deleteSeriesFn: func(ctx context.Context, cID, sID uuid.UUID) error {
			return store.ErrNotFound
		},
	}
	svc := NewSeriesService(repo, nil, nil)

	err := svc.CancelSeries(context.Background(), clinicID, actorID, seriesID)
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("error = %v, want store.ErrNotFound", err)
	}
}

func TestAmendOccurrence_Validation(t *testing.T) {
	svc := NewSeriesService(&fakeSeriesRepo{}, nil, nil)
	occStart := time.Date(2026, 1, 12, 9, 0, 0, 0, time.UTC)
	note := "moved"
	end := occStart.Add(30 * time.Minute)
	badEnd := occStart.Add(-time.Hour)

	tests := []struct {
		name    string
		in      AmendOccurrenceInput
		wantMsg string
	}{
		{
			name:    "missing occurrence start",
			in:      AmendOccurrenceInput{Kind: domain.SeriesExceptionKindSkip},
			wantMsg: "occurrence_start is required",
		},
		{
			name: "skip with override",
			in: AmendOccurrenceInput{
				OccurrenceStart: occStart,
				Kind:            domain.SeriesExceptionKindSkip,
				OverrideNotes:   &note,
			},
			wantMsg: "skip cannot carry overrides",
		},
		{
			name: "override without fields",
			in: AmendOccurrenceInput{
				OccurrenceStart: occStart,
				Kind:            domain.SeriesExceptionKindOverride,
			},
			wantMsg: "override requires at least one override field",
		},
		{
			name: "inverted override slot",
			in: AmendOccurrenceInput{
				OccurrenceStart: occStart,
				Kind:            domain.SeriesExceptionKindOverride,
				OverrideStart:   &occStart,
				OverrideEnd:     &badEnd,
			},
			wantMsg: "end time must be after start time",
		},
		{
			name: "unknown kind",
			in: AmendOccurrenceInput{
				OccurrenceStart: occStart,
				Kind:            "reschedule",
				OverrideEnd:     &end,
			},
			wantMsg: "invalid exception kind",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.AmendOccurrence(context.Background(), clinicID, actorID, seriesID, tt.in)
			var vErr *ValidationError
			if !errors.As(err, &vErr) {
				t.Fatalf("error = %v, want ValidationError", err)
			}
			if vErr.Error() != tt.wantMsg {
				t.Fatalf("message = %q, want %q", vErr.Error(), tt.wantMsg)
			}
		})
	}
}

func TestAmendOccurrence_Skip(t *testing.T) {
	var got domain.SeriesException
	repo := &fakeSeriesRepo{
		upsertExceptionFn: func(ctx context.Context, cID uuid.UUID, ex domain.SeriesException) (domain.SeriesException, error) {
			got = ex
			return ex, nil
		},
	}
	audit := &fakeAudit{}
	svc := NewSeriesService(repo, audit, nil)

	loc := time.FixedZone("CET", 3600)
	occStart := time.Date(2026, 1, 12, 10, 0, 0, 0, loc)

	_, err := svc.AmendOccurrence(context.Background(), clinicID, actorID, seriesID, AmendOccurrenceInput{
		OccurrenceStart: occStart,
		Kind:            domain.SeriesExceptionKindSkip,
	})
	if err != nil {
		t.Fatalf("AmendOccurrence error: %v", err)
	}
	if got.SeriesID != seriesID || got.Kind != domain.SeriesExceptionKindSkip {
		t.Fatalf("exception = %+v", got)
	}
	if got.OccurrenceStart.Location() != time.UTC || !got.OccurrenceStart.Equal(occStart) {
		t.Fatalf("occurrence start not normalized: %v", got.OccurrenceStart)
	}
	if len(audit.entries) != 1 || audit.entries[0].Action != domain.AuditActionUpdated {
		t.Fatalf("audit entries = %+v", audit.entries)
	}
}

func TestOccurrences_WindowValidation(t *testing.T) {
	svc := NewSeriesService(&fakeSeriesRepo{}, nil, nil)
	at := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)

	_, err := svc.Occurrences(context.Background(), clinicID, at, at, nil)
	var vErr *ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("error = %v, want ValidationError", err)
	}
}

func TestOccurrences_PassesWindowAndFilter(t *testing.T) {
	var gotStart, gotEnd time.Time
	var gotDoctor *uuid.UUID
	repo := &fakeSeriesRepo{
		expandOccurrencesFn: func(ctx context.Context, cID uuid.UUID, windowStart, windowEnd time.Time, dID *uuid.UUID) ([]domain.SeriesOccurrence, error) {
			gotStart, gotEnd, gotDoctor = windowStart, windowEnd, dID
			return []domain.SeriesOccurrence{{SeriesID: seriesID}}, nil
		},
	}
	svc := NewSeriesService(repo, nil, nil)

	start := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)
	end := start.Add(14 * 24 * time.Hour)

	occs, err := svc.Occurrences(context.Background(), clinicID, start, end, &doctorID)
	if err != nil {
		t.Fatalf("Occurrences error: %v", err)
	}
	if len(occs) != 1 {
		t.Fatalf("len(occs) = %d, want 1", len(occs))
	}
	if !gotStart.Equal(start) || !gotEnd.Equal(end) {
		t.Fatalf("window = %v - %v", gotStart, gotEnd)
	}
	if gotDoctor == nil || *gotDoctor != doctorID {
		t.Fatalf("doctor filter not forwarded")
	}
}
