package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/JuanHVDev/nexus-med-sub001/internal/domain"
)

// SeriesConflictLookahead bounds how far ahead a new series is checked against
// the doctor's calendar. Open-ended rules must fit inside it so the check
// stays finite.
const SeriesConflictLookahead = 180 * 24 * time.Hour

type SeriesRepository interface {
	CreateSeries(ctx context.Context, series domain.AppointmentSeries) (domain.AppointmentSeries, error)
	FindSeriesByID(ctx context.Context, clinicID, seriesID uuid.UUID) (domain.AppointmentSeries, error)
	FindSeries(ctx context.Context, clinicID uuid.UUID, doctorID *uuid.UUID) ([]domain.AppointmentSeries, error)
	DeleteSeries(ctx context.Context, clinicID, seriesID uuid.UUID) error
	UpsertException(ctx context.Context, clinicID uuid.UUID, ex domain.SeriesException) (domain.SeriesException, error)
	ExpandOccurrences(ctx context.Context, clinicID uuid.UUID, windowStart, windowEnd time.Time, doctorID *uuid.UUID) ([]domain.SeriesOccurrence, error)
}
