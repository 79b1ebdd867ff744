package domain

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func weeklySeries() AppointmentSeries {
	return AppointmentSeries{
		ID:              uuid.MustParse("00000000-0000-0000-0000-000000000001"),
		ClinicID:        uuid.MustParse("00000000-0000-0000-0000-0000000000c1"),
		PatientID:       uuid.MustParse("00000000-0000-0000-0000-000000000011"),
		DoctorID:        uuid.MustParse("00000000-0000-0000-0000-000000000021"),
		Reason:          "physiotherapy",
		Timezone:        "UTC",
		DTStart:         time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC),
		DurationSeconds: 3600,
		Frequency:       SeriesFrequencyWeekly,
		Interval:        1,
		ByWeekday:       []int16{1},
	}
}

func TestGenerateWeeklyOccurrences_Validation(t *testing.T) {
	base := weeklySeries()
	windowStart := base.DTStart
	windowEnd := windowStart.Add(7 * 24 * time.Hour)

	tests := []struct {
		name    string
		mutate  func(s *AppointmentSeries)
		wantErr string
	}{
		{
			name:    "unsupported frequency",
			mutate:  func(s *AppointmentSeries) { s.Frequency = "daily" },
			wantErr: "unsupported recurrence frequency",
		},
		{
			name:    "invalid duration",
			mutate:  func(s *AppointmentSeries) { s.DurationSeconds = 0 },
			wantErr: "invalid duration",
		},
		{
			name:    "invalid timezone",
			mutate:  func(s *AppointmentSeries) { s.Timezone = "Not/AZone" },
			wantErr: "invalid timezone",
		},
		{
			name:    "invalid weekday",
			mutate:  func(s *AppointmentSeries) { s.ByWeekday = []int16{0} },
			wantErr: "invalid weekday",
		},
		{
			name:    "empty weekday set",
			mutate:  func(s *AppointmentSeries) { s.ByWeekday = nil },
			wantErr: "at least one weekday is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			series := base
			tt.mutate(&series)
			_, err := GenerateWeeklyOccurrences(series, windowStart, windowEnd)
			if err == nil {
				t.Fatalf("expected error")
			}
			if err.Error() != tt.wantErr {
				t.Fatalf("error = %q, want %q", err.Error(), tt.wantErr)
			}
		})
	}
}

func TestGenerateWeeklyOccurrences_NormalizesIntervalAndWeekdays(t *testing.T) {
	series := weeklySeries()
	series.Interval = 0
	series.ByWeekday = []int16{3, 1, 3}

	windowStart := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)
	windowEnd := time.Date(2026, 1, 19, 0, 0, 0, 0, time.UTC)

	occs, err := GenerateWeeklyOccurrences(series, windowStart, windowEnd)
	if err != nil {
		t.Fatalf("GenerateWeeklyOccurrences error: %v", err)
	}
	if len(occs) != 4 {
		t.Fatalf("len(occs) = %d, want 4", len(occs))
	}
	for i := 1; i < len(occs); i++ {
		if !occs[i-1].StartTime.Before(occs[i].StartTime) {
			t.Fatalf("occurrences not sorted by start time: %v then %v", occs[i-1].StartTime, occs[i].StartTime)
		}
	}
}

func TestGenerateWeeklyOccurrences_CarriesSeriesIdentity(t *testing.T) {
	series := weeklySeries()
	series.Patient = &Patient{FirstName: "Jane", LastName: "Doe"}
	series.Doctor = &Doctor{Name: "House"}

	windowStart := series.DTStart
	windowEnd := windowStart.Add(24 * time.Hour)

	occs, err := GenerateWeeklyOccurrences(series, windowStart, windowEnd)
	if err != nil {
		t.Fatalf("GenerateWeeklyOccurrences error: %v", err)
	}
	if len(occs) != 1 {
		t.Fatalf("len(occs) = %d, want 1", len(occs))
	}
	occ := occs[0]
	if occ.SeriesID != series.ID || occ.ClinicID != series.ClinicID {
		t.Fatalf("occurrence identity = %+v", occ)
	}
	if occ.PatientID != series.PatientID || occ.DoctorID != series.DoctorID {
		t.Fatalf("occurrence references = %+v", occ)
	}
	if occ.PatientName != "Jane Doe" || occ.DoctorName != "House" {
		t.Fatalf("occurrence names = %q / %q", occ.PatientName, occ.DoctorName)
	}
	if occ.ID == "" {
		t.Fatalf("occurrence id must be stable and non-empty")
	}
}

func TestGenerateWeeklyOccurrences_IncludesWindowOverlap(t *testing.T) {
	series := weeklySeries()
	series.DurationSeconds = int((2 * time.Hour) / time.Second)

	windowStart := time.Date(2026, 1, 5, 10, 0, 0, 0, time.UTC)
	windowEnd := time.Date(2026, 1, 5, 10, 30, 0, 0, time.UTC)

	occs, err := GenerateWeeklyOccurrences(series, windowStart, windowEnd)
	if err != nil {
		t.Fatalf("GenerateWeeklyOccurrences error: %v", err)
	}
	if len(occs) != 1 {
		t.Fatalf("len(occs) = %d, want 1", len(occs))
	}
	if !occs[0].StartTime.Before(windowEnd) || !occs[0].EndTime.After(windowStart) {
		t.Fatalf("occurrence does not overlap window: start=%v end=%v", occs[0].StartTime, occs[0].EndTime)
	}
}

func TestGenerateWeeklyOccurrences_RespectsUntilAndCount(t *testing.T) {
	until := time.Date(2026, 1, 20, 0, 0, 0, 0, time.UTC)
	count := 2

	series := weeklySeries()
	series.Until = &until
	series.Count = &count

	windowStart := series.DTStart
	windowEnd := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	occs, err := GenerateWeeklyOccurrences(series, windowStart, windowEnd)
	if err != nil {
		t.Fatalf("GenerateWeeklyOccurrences error: %v", err)
	}
	if len(occs) != 2 {
		t.Fatalf("len(occs) = %d, want 2", len(occs))
	}
}

func TestGenerateWeeklyOccurrences_DSTMaintainsLocalHour(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Fatalf("LoadLocation error: %v", err)
	}

	series := weeklySeries()
	series.Timezone = "America/New_York"
	series.DTStart = time.Date(2026, 3, 1, 9, 0, 0, 0, loc)
	series.ByWeekday = []int16{7}

	windowStart := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	windowEnd := time.Date(2026, 3, 22, 0, 0, 0, 0, time.UTC)

	occs, err := GenerateWeeklyOccurrences(series, windowStart, windowEnd)
	if err != nil {
		t.Fatalf("GenerateWeeklyOccurrences error: %v", err)
	}
	if len(occs) == 0 {
		t.Fatalf("expected occurrences")
	}

	for _, o := range occs {
		if o.StartTime.In(loc).Hour() != 9 {
			t.Fatalf("local hour = %d, want 9 (start=%v)", o.StartTime.In(loc).Hour(), o.StartTime)
		}
		if !o.StartTime.Before(o.EndTime) {
			t.Fatalf("start must be before end: %v %v", o.StartTime, o.EndTime)
		}
	}
}
