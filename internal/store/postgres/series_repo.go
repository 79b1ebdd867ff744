package postgres

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/JuanHVDev/nexus-med-sub001/internal/domain"
	"github.com/JuanHVDev/nexus-med-sub001/internal/store"
)

// exceptionFetchPadding widens the exception query window so an override that
// moved an occurrence into the window is still found, and one moved out is
// still dropped.
const exceptionFetchPadding = 14 * 24 * time.Hour

type SeriesRepo struct {
	db *bun.DB
}

func NewSeriesRepo(db *bun.DB) *SeriesRepo {
	return &SeriesRepo{db: db}
}

func (r *SeriesRepo) CreateSeries(ctx context.Context, series domain.AppointmentSeries) (domain.AppointmentSeries, error) {
	var out domain.AppointmentSeries
	err := r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if err := lockDoctorCalendar(ctx, tx, series.ClinicID, series.DoctorID); err != nil {
			return err
		}
		stx := scheduleTx{tx: tx}
		if err := ensureNoSeriesConflicts(ctx, stx, series); err != nil {
			return err
		}
		s, err := stx.CreateSeries(ctx, series)
		if err != nil {
			return err
		}
		out = s
		return nil
	})
	if err != nil {
		return domain.AppointmentSeries{}, err
	}
	return r.FindSeriesByID(ctx, out.ClinicID, out.ID)
}

func (r *SeriesRepo) FindSeriesByID(ctx context.Context, clinicID, seriesID uuid.UUID) (domain.AppointmentSeries, error) {
	var series domain.AppointmentSeries
	err := r.db.NewSelect().
		Model(&series).
		Relation("Patient").
		Relation("Doctor").
		Where("s.clinic_id = ?", clinicID).
		Where("s.id = ?", seriesID).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.AppointmentSeries{}, store.ErrNotFound
	}
	if err != nil {
		return domain.AppointmentSeries{}, err
	}
	return series, nil
}

func (r *SeriesRepo) FindSeries(ctx context.Context, clinicID uuid.UUID, doctorID *uuid.UUID) ([]domain.AppointmentSeries, error) {
	var rows []domain.AppointmentSeries
	q := r.db.NewSelect().
		Model(&rows).
		Relation("Patient").
		Relation("Doctor").
		Where("s.clinic_id = ?", clinicID)
	if doctorID != nil {
		q = q.Where("s.doctor_id = ?", *doctorID)
	}
	err := q.OrderExpr("s.dtstart ASC").Scan(ctx)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *SeriesRepo) DeleteSeries(ctx context.Context, clinicID, seriesID uuid.UUID) error {
	res, err := r.db.NewDelete().
		Model((*domain.AppointmentSeries)(nil)).
		Where("clinic_id = ?", clinicID).
		Where("id = ?", seriesID).
		Exec(ctx)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (r *SeriesRepo) UpsertException(ctx context.Context, clinicID uuid.UUID, ex domain.SeriesException) (domain.SeriesException, error) {
	// The exception row itself has no clinic column; scope through the series.
	if _, err := r.FindSeriesByID(ctx, clinicID, ex.SeriesID); err != nil {
		return domain.SeriesException{}, err
	}

	m := ex
	_, err := r.db.NewInsert().
		Model(&m).
		On("CONFLICT (series_id, occurrence_start) DO UPDATE").
		Set("kind = EXCLUDED.kind").
		Set("override_start = EXCLUDED.override_start").
		Set("override_end = EXCLUDED.override_end").
		Set("override_notes = EXCLUDED.override_notes").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return domain.SeriesException{}, err
	}
	return m, nil
}

func (r *SeriesRepo) ExpandOccurrences(ctx context.Context, clinicID uuid.UUID, windowStart, windowEnd time.Time, doctorID *uuid.UUID) ([]domain.SeriesOccurrence, error) {
	var seriesRows []domain.AppointmentSeries
	q := r.db.NewSelect().
		Model(&seriesRows).
		Relation("Patient").
		Relation("Doctor").
		Where("s.clinic_id = ?", clinicID).
		Where("s.dtstart < ?", windowEnd)
	if doctorID != nil {
		q = q.Where("s.doctor_id = ?", *doctorID)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, err
	}

	out := make([]domain.SeriesOccurrence, 0, len(seriesRows))
	exWindowStart := windowStart.Add(-exceptionFetchPadding)
	exWindowEnd := windowEnd.Add(exceptionFetchPadding)

	for _, s := range seriesRows {
		occs, err := domain.GenerateWeeklyOccurrences(s, windowStart, windowEnd)
		if err != nil {
			return nil, err
		}
		if len(occs) == 0 {
			continue
		}

		var exRows []domain.SeriesException
		err = r.db.NewSelect().
			Model(&exRows).
			Where("series_id = ?", s.ID).
			Where("occurrence_start >= ?", exWindowStart).
			Where("occurrence_start < ?", exWindowEnd).
			Scan(ctx)
		if err != nil {
			return nil, err
		}

		out = append(out, applySeriesExceptions(occs, exRows, windowStart, windowEnd)...)
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].StartTime.Before(out[j].StartTime)
	})

	return out, nil
}

func (t scheduleTx) ListBlockingAppointments(ctx context.Context, clinicID, doctorID uuid.UUID, windowStart, windowEnd time.Time) ([]domain.Appointment, error) {
	var rows []domain.Appointment
	err := t.tx.NewSelect().
		Model(&rows).
		Where("a.clinic_id = ?", clinicID).
		Where("a.doctor_id = ?", doctorID).
		Where("a.status NOT IN (?)", bun.In([]domain.AppointmentStatus{domain.StatusCancelled, domain.StatusNoShow})).
		Where("a.start_time < ?", windowEnd).
		Where("a.end_time > ?", windowStart).
		OrderExpr("a.start_time ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (t scheduleTx) CreateSeries(ctx context.Context, series domain.AppointmentSeries) (domain.AppointmentSeries, error) {
	m := series
	m.Patient = nil
	m.Doctor = nil

	_, err := t.tx.NewInsert().Model(&m).Exec(ctx)
	if err != nil {
		return domain.AppointmentSeries{}, err
	}
	series.ID = m.ID
	series.CreatedAt = m.CreatedAt
	series.UpdatedAt = m.UpdatedAt
	return series, nil
}

func (t scheduleTx) ListDoctorSeries(ctx context.Context, clinicID, doctorID uuid.UUID) ([]domain.AppointmentSeries, error) {
	var rows []domain.AppointmentSeries
	err := t.tx.NewSelect().
		Model(&rows).
		Where("s.clinic_id = ?", clinicID).
		Where("s.doctor_id = ?", doctorID).
		OrderExpr("s.dtstart ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (t scheduleTx) ListSeriesExceptions(ctx context.Context, seriesID uuid.UUID, windowStart, windowEnd time.Time) ([]domain.SeriesException, error) {
	var rows []domain.SeriesException
	err := t.tx.NewSelect().
		Model(&rows).
		Where("series_id = ?", seriesID).
		Where("occurrence_start >= ?", windowStart).
		Where("occurrence_start < ?", windowEnd).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

type timeSpan struct {
	Start time.Time
	End   time.Time
}

// ensureNoSeriesConflicts expands the candidate series over the conflict
// lookahead and checks every occurrence against the doctor's booked
// appointments and the occurrences of the doctor's other series. Runs inside
// the calendar lock, so nothing can book into a probed slot concurrently.
func ensureNoSeriesConflicts(ctx context.Context, tx store.ScheduleTx, series domain.AppointmentSeries) error {
	windowStart := series.DTStart.UTC()
	windowEnd := windowStart.Add(store.SeriesConflictLookahead)
	if series.Until != nil && series.Until.UTC().Before(windowEnd) {
		windowEnd = series.Until.UTC()
	}
	windowEnd = windowEnd.Add(time.Duration(series.DurationSeconds) * time.Second)

	newOccs, err := domain.GenerateWeeklyOccurrences(series, windowStart, windowEnd)
	if err != nil {
		return err
	}
	if len(newOccs) == 0 {
		return nil
	}
	sort.Slice(newOccs, func(i, j int) bool {
		return newOccs[i].StartTime.Before(newOccs[j].StartTime)
	})
	windowEnd = newOccs[len(newOccs)-1].EndTime.UTC()

	for i := 1; i < len(newOccs); i++ {
		if newOccs[i-1].EndTime.After(newOccs[i].StartTime) {
			return store.ErrConflict
		}
	}

	appts, err := tx.ListBlockingAppointments(ctx, series.ClinicID, series.DoctorID, windowStart, windowEnd)
	if err != nil {
		return err
	}

	existing := make([]timeSpan, 0, len(appts))
	for _, a := range appts {
		existing = append(existing, timeSpan{Start: a.StartTime.UTC(), End: a.EndTime.UTC()})
	}

	seriesRows, err := tx.ListDoctorSeries(ctx, series.ClinicID, series.DoctorID)
	if err != nil {
		return err
	}

	exWindowStart := windowStart.Add(-exceptionFetchPadding)
	exWindowEnd := windowEnd.Add(exceptionFetchPadding)

	for _, s := range seriesRows {
		occs, err := domain.GenerateWeeklyOccurrences(s, windowStart, windowEnd)
		if err != nil {
			return err
		}
		if len(occs) == 0 {
			continue
		}

		exRows, err := tx.ListSeriesExceptions(ctx, s.ID, exWindowStart, exWindowEnd)
		if err != nil {
			return err
		}

		occs = applySeriesExceptions(occs, exRows, windowStart, windowEnd)
		for _, o := range occs {
			existing = append(existing, timeSpan{Start: o.StartTime.UTC(), End: o.EndTime.UTC()})
		}
	}

	for _, n := range newOccs {
		ns := n.StartTime.UTC()
		ne := n.EndTime.UTC()
		for _, e := range existing {
			if ns.Before(e.End) && ne.After(e.Start) {
				return store.ErrConflict
			}
		}
	}

	return nil
}

func applySeriesExceptions(occs []domain.SeriesOccurrence, exs []domain.SeriesException, windowStart, windowEnd time.Time) []domain.SeriesOccurrence {
	if len(exs) == 0 {
		return occs
	}

	byOccurrenceStart := make(map[int64]domain.SeriesException, len(exs))
	for _, e := range exs {
		byOccurrenceStart[e.OccurrenceStart.UTC().UnixNano()] = e
	}

	out := make([]domain.SeriesOccurrence, 0, len(occs))
	for _, o := range occs {
		ex, ok := byOccurrenceStart[o.StartTime.UTC().UnixNano()]
		if !ok {
			out = append(out, o)
			continue
		}

		if ex.Kind == domain.SeriesExceptionKindSkip {
			continue
		}

		moved := o
		if ex.OverrideStart != nil {
			moved.StartTime = ex.OverrideStart.UTC()
		}
		if ex.OverrideEnd != nil {
			moved.EndTime = ex.OverrideEnd.UTC()
		}
		if ex.OverrideNotes != nil {
			moved.Notes = *ex.OverrideNotes
		}

		if moved.StartTime.Before(windowEnd) && moved.EndTime.After(windowStart) {
			out = append(out, moved)
		}
	}

	return out
}
