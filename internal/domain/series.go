package domain

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type SeriesFrequency string

const (
	SeriesFrequencyWeekly SeriesFrequency = "weekly"
)

// AppointmentSeries is a standing booking rule: the same patient sees the same
// doctor on a weekly cadence. Occurrences are never materialized as rows;
// they are expanded on demand from the rule and the exception list.
type AppointmentSeries struct {
	bun.BaseModel `bun:"table:appointment_series,alias:s"`

	ID              uuid.UUID       `bun:"id,pk,type:uuid"`
	ClinicID        uuid.UUID       `bun:"clinic_id,notnull,type:uuid"`
	PatientID       uuid.UUID       `bun:"patient_id,notnull,type:uuid"`
	DoctorID        uuid.UUID       `bun:"doctor_id,notnull,type:uuid"`
	Reason          string          `bun:"reason"`
	Notes           string          `bun:"notes"`
	Timezone        string          `bun:"timezone,notnull"`
	DTStart         time.Time       `bun:"dtstart,notnull"`
	DurationSeconds int             `bun:"duration_seconds,notnull"`
	Frequency       SeriesFrequency `bun:"frequency,notnull"`
	Interval        int             `bun:"interval,notnull"`
	ByWeekday       []int16         `bun:"byweekday,array,notnull"`
	Until           *time.Time      `bun:"until"`
	Count           *int            `bun:"count"`
	CreatedBy       uuid.UUID       `bun:"created_by,type:uuid"`
	CreatedAt       time.Time       `bun:"created_at,notnull"`
	UpdatedAt       time.Time       `bun:"updated_at,notnull"`

	Patient *Patient `bun:"rel:belongs-to,join:patient_id=id"`
	Doctor  *Doctor  `bun:"rel:belongs-to,join:doctor_id=id"`
}

func (s *AppointmentSeries) BeforeAppendModel(ctx context.Context, query bun.Query) error {
	now := time.Now().UTC()
	switch query.(type) {
	case *bun.InsertQuery:
		if s.ID == uuid.Nil {
			id, err := uuid.NewV7()
			if err != nil {
				return err
			}
			s.ID = id
		}
		if s.CreatedAt.IsZero() {
			s.CreatedAt = now
		}
		if s.UpdatedAt.IsZero() {
			s.UpdatedAt = now
		}
	case *bun.UpdateQuery:
		s.UpdatedAt = now
	}
	return nil
}

type SeriesExceptionKind string

const (
	SeriesExceptionKindSkip     SeriesExceptionKind = "skip"
	SeriesExceptionKindOverride SeriesExceptionKind = "override"
)

// SeriesException amends a single occurrence of a series: skip drops it (the
// patient cancelled that week), override moves it or annotates it. Keyed by
// the occurrence's unmodified start time.
type SeriesException struct {
	bun.BaseModel `bun:"table:series_exceptions,alias:se"`

	ID              uuid.UUID           `bun:"id,pk,type:uuid"`
	SeriesID        uuid.UUID           `bun:"series_id,notnull,type:uuid"`
	OccurrenceStart time.Time           `bun:"occurrence_start,notnull"`
	Kind            SeriesExceptionKind `bun:"kind,notnull"`
	OverrideStart   *time.Time          `bun:"override_start"`
	OverrideEnd     *time.Time          `bun:"override_end"`
	OverrideNotes   *string             `bun:"override_notes"`
	CreatedAt       time.Time           `bun:"created_at,notnull"`
	UpdatedAt       time.Time           `bun:"updated_at,notnull"`
}

func (e *SeriesException) BeforeAppendModel(ctx context.Context, query bun.Query) error {
	now := time.Now().UTC()
	switch query.(type) {
	case *bun.InsertQuery:
		if e.ID == uuid.Nil {
			id, err := uuid.NewV7()
			if err != nil {
				return err
			}
			e.ID = id
		}
		if e.CreatedAt.IsZero() {
			e.CreatedAt = now
		}
		if e.UpdatedAt.IsZero() {
			e.UpdatedAt = now
		}
	case *bun.UpdateQuery:
		e.UpdatedAt = now
	}
	return nil
}

// SeriesOccurrence is one expanded instance of a series. It exists only in
// responses; the ID is derived from the series and the occurrence start so it
// is stable across expansions.
type SeriesOccurrence struct {
	ID          string
	SeriesID    uuid.UUID
	ClinicID    uuid.UUID
	PatientID   uuid.UUID
	DoctorID    uuid.UUID
	PatientName string
	DoctorName  string
	Reason      string
	Notes       string
	StartTime   time.Time
	EndTime     time.Time
}

// GenerateWeeklyOccurrences expands a weekly series into the occurrences that
// overlap [windowStart, windowEnd). Occurrence times keep the series' local
// wall-clock hour across DST transitions, which is what a standing clinic
// appointment means to the patient.
func GenerateWeeklyOccurrences(series AppointmentSeries, windowStart, windowEnd time.Time) ([]SeriesOccurrence, error) {
	if series.Frequency != SeriesFrequencyWeekly {
		return nil, errors.New("unsupported recurrence frequency")
	}
	if series.DurationSeconds <= 0 {
		return nil, errors.New("invalid duration")
	}

	loc, err := time.LoadLocation(series.Timezone)
	if err != nil {
		return nil, errors.New("invalid timezone")
	}

	dtstartUTC := series.DTStart.UTC()
	dtstartLocal := series.DTStart.In(loc)
	duration := time.Duration(series.DurationSeconds) * time.Second

	weekdays := make([]int16, 0, len(series.ByWeekday))
	seen := make(map[int16]struct{}, len(series.ByWeekday))
	for _, wd := range series.ByWeekday {
		if wd < 1 || wd > 7 {
			return nil, errors.New("invalid weekday")
		}
		if _, ok := seen[wd]; ok {
			continue
		}
		seen[wd] = struct{}{}
		weekdays = append(weekdays, wd)
	}
	if len(weekdays) == 0 {
		return nil, errors.New("at least one weekday is required")
	}
	sort.Slice(weekdays, func(i, j int) bool { return weekdays[i] < weekdays[j] })

	interval := series.Interval
	if interval < 1 {
		interval = 1
	}

	windowStartLocal := windowStart.In(loc)
	windowEndLocal := windowEnd.In(loc)
	startWeekMondayUTC := mondayDateUTC(dtstartLocal)
	windowStartWeekMondayUTC := mondayDateUTC(windowStartLocal)
	windowEndWeekBoundaryUTC := mondayDateUTC(windowEndLocal).AddDate(0, 0, 7)

	startWeekIndex := 0
	if windowStartWeekMondayUTC.After(startWeekMondayUTC) {
		daysDiff := int(windowStartWeekMondayUTC.Sub(startWeekMondayUTC) / (24 * time.Hour))
		startWeekIndex = daysDiff / (7 * interval)
		if startWeekIndex < 0 {
			startWeekIndex = 0
		}
	}

	maxCount := -1
	if series.Count != nil {
		maxCount = *series.Count
	}

	// Count-limited series number their occurrences from dtstart, so weekdays
	// in the first week that fall before dtstart must not consume slots.
	occPerWeek := len(weekdays)
	skippedInFirstWeek := 0
	for _, wd := range weekdays {
		occDateUTC := startWeekMondayUTC.AddDate(0, 0, weekdayOffsetFromMonday(wd))
		startLocal := time.Date(
			occDateUTC.Year(),
			occDateUTC.Month(),
			occDateUTC.Day(),
			dtstartLocal.Hour(),
			dtstartLocal.Minute(),
			dtstartLocal.Second(),
			dtstartLocal.Nanosecond(),
			loc,
		)
		if startLocal.UTC().Before(dtstartUTC) {
			skippedInFirstWeek++
		}
	}

	out := make([]SeriesOccurrence, 0, 16)

	for weekIndex := startWeekIndex; ; weekIndex++ {
		weekStartMondayUTC := startWeekMondayUTC.AddDate(0, 0, weekIndex*interval*7)
		if !weekStartMondayUTC.Before(windowEndWeekBoundaryUTC) {
			break
		}

		for weekdayIndex, wd := range weekdays {
			occDateUTC := weekStartMondayUTC.AddDate(0, 0, weekdayOffsetFromMonday(wd))
			startLocal := time.Date(
				occDateUTC.Year(),
				occDateUTC.Month(),
				occDateUTC.Day(),
				dtstartLocal.Hour(),
				dtstartLocal.Minute(),
				dtstartLocal.Second(),
				dtstartLocal.Nanosecond(),
				loc,
			)
			startUTC := startLocal.UTC()
			if startUTC.Before(dtstartUTC) {
				continue
			}

			if series.Until != nil && startUTC.After(series.Until.UTC()) {
				return out, nil
			}

			if maxCount >= 0 {
				globalIndex := weekIndex*occPerWeek + weekdayIndex - skippedInFirstWeek
				if globalIndex >= maxCount {
					return out, nil
				}
			}

			endUTC := startUTC.Add(duration)
			if startUTC.Before(windowEnd) && endUTC.After(windowStart) {
				out = append(out, newSeriesOccurrence(series, startUTC, endUTC))
			}
		}
	}

	return out, nil
}

func newSeriesOccurrence(series AppointmentSeries, start, end time.Time) SeriesOccurrence {
	occ := SeriesOccurrence{
		ID:        series.ID.String() + ":" + strconv.FormatInt(start.Unix(), 10),
		SeriesID:  series.ID,
		ClinicID:  series.ClinicID,
		PatientID: series.PatientID,
		DoctorID:  series.DoctorID,
		Reason:    series.Reason,
		Notes:     series.Notes,
		StartTime: start,
		EndTime:   end,
	}
	if series.Patient != nil {
		occ.PatientName = series.Patient.FullName()
	}
	if series.Doctor != nil {
		occ.DoctorName = series.Doctor.Name
	}
	return occ
}

func mondayDateUTC(t time.Time) time.Time {
	wd := t.Weekday()
	offset := 0
	if wd == time.Sunday {
		offset = 6
	} else {
		offset = int(wd) - 1
	}
	d := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	return d.AddDate(0, 0, -offset)
}

func weekdayOffsetFromMonday(weekday int16) int {
	if weekday == 7 {
		return 6
	}
	return int(weekday) - 1
}
