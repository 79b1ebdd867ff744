package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/uptrace/bun"

	"github.com/JuanHVDev/nexus-med-sub001/internal/domain"
	"github.com/JuanHVDev/nexus-med-sub001/internal/store"
)

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

type AppointmentRepo struct {
	db *bun.DB
}

func NewAppointmentRepo(db *bun.DB) *AppointmentRepo {
	return &AppointmentRepo{db: db}
}

type scheduleTx struct {
	tx bun.Tx
}

func (r *AppointmentRepo) Create(ctx context.Context, appt domain.Appointment) (domain.Appointment, error) {
	var out domain.Appointment
	err := r.InScheduleTransaction(ctx, appt.ClinicID, appt.DoctorID, func(ctx context.Context, tx store.ScheduleTx) error {
		a, err := tx.CreateAppointment(ctx, appt)
		if err != nil {
			return err
		}
		out = a
		return nil
	})
	if err != nil {
		return domain.Appointment{}, err
	}
	return r.FindByID(ctx, out.ClinicID, out.ID)
}

func (r *AppointmentRepo) Update(ctx context.Context, appt domain.Appointment) (domain.Appointment, error) {
	err := r.InScheduleTransaction(ctx, appt.ClinicID, appt.DoctorID, func(ctx context.Context, tx store.ScheduleTx) error {
		_, err := tx.UpdateAppointment(ctx, appt)
		return err
	})
	if err != nil {
		return domain.Appointment{}, err
	}
	return r.FindByID(ctx, appt.ClinicID, appt.ID)
}

func (r *AppointmentRepo) UpdateStatus(ctx context.Context, clinicID, appointmentID uuid.UUID, status domain.AppointmentStatus) error {
	res, err := r.db.NewUpdate().
		Model((*domain.Appointment)(nil)).
		Set("status = ?", status).
		Set("updated_at = ?", time.Now().UTC()).
		Where("clinic_id = ?", clinicID).
		Where("id = ?", appointmentID).
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

func (r *AppointmentRepo) FindByID(ctx context.Context, clinicID, appointmentID uuid.UUID) (domain.Appointment, error) {
	var appt domain.Appointment
	err := r.db.NewSelect().
		Model(&appt).
		Relation("Patient").
		Relation("Doctor").
		Where("a.clinic_id = ?", clinicID).
		Where("a.id = ?", appointmentID).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Appointment{}, store.ErrNotFound
	}
	if err != nil {
		return domain.Appointment{}, err
	}
	return appt, nil
}

func (r *AppointmentRepo) FindMany(ctx context.Context, clinicID uuid.UUID, filter store.ListFilter) ([]domain.Appointment, int, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	var rows []domain.Appointment
	q := r.db.NewSelect().
		Model(&rows).
		Relation("Patient").
		Relation("Doctor").
		Where("a.clinic_id = ?", clinicID)
	q = applyListFilter(q, filter)

	total, err := q.Count(ctx)
	if err != nil {
		return nil, 0, err
	}

	err = q.OrderExpr("a.start_time ASC").
		Limit(limit).
		Offset(offset).
		Scan(ctx)
	if err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}

func applyListFilter(q *bun.SelectQuery, filter store.ListFilter) *bun.SelectQuery {
	if filter.DoctorID != nil {
		q = q.Where("a.doctor_id = ?", *filter.DoctorID)
	}
	if filter.PatientID != nil {
		q = q.Where("a.patient_id = ?", *filter.PatientID)
	}
	if filter.Status != nil {
		q = q.Where("a.status = ?", *filter.Status)
	}
	if filter.From != nil {
		q = q.Where("a.end_time > ?", *filter.From)
	}
	if filter.To != nil {
		q = q.Where("a.start_time < ?", *filter.To)
	}
	return q
}

func (r *AppointmentRepo) FindConflicting(ctx context.Context, q store.ConflictQuery) (*domain.Appointment, error) {
	return findConflicting(ctx, r.db.NewSelect(), q)
}

func (r *AppointmentRepo) FindForCalendar(ctx context.Context, clinicID uuid.UUID, windowStart, windowEnd time.Time, doctorID *uuid.UUID) ([]domain.Appointment, error) {
	var rows []domain.Appointment
	q := r.db.NewSelect().
		Model(&rows).
		Relation("Patient").
		Relation("Doctor").
		Where("a.clinic_id = ?", clinicID).
		Where("a.start_time < ?", windowEnd).
		Where("a.end_time > ?", windowStart)
	if doctorID != nil {
		q = q.Where("a.doctor_id = ?", *doctorID)
	}
	err := q.OrderExpr("a.start_time ASC").Scan(ctx)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// InScheduleTransaction runs fn inside a transaction that holds an advisory
// lock on the (clinic, doctor) calendar, serializing the conflict check and
// the write against concurrent bookings for the same doctor.
func (r *AppointmentRepo) InScheduleTransaction(ctx context.Context, clinicID, doctorID uuid.UUID, fn func(ctx context.Context, tx store.ScheduleTx) error) error {
	return r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if err := lockDoctorCalendar(ctx, tx, clinicID, doctorID); err != nil {
			return err
		}
		return fn(ctx, scheduleTx{tx: tx})
	})
}

func lockDoctorCalendar(ctx context.Context, tx bun.Tx, clinicID, doctorID uuid.UUID) error {
	_, err := tx.NewRaw("SELECT pg_advisory_xact_lock(hashtext(?))", clinicID.String()+":"+doctorID.String()).Exec(ctx)
	return err
}

// findConflicting probes for a booked appointment overlapping [StartTime,
// EndTime). The predicate mirrors domain.HasTimeConflict clause for clause:
// the candidate starts during an existing appointment, ends during one, or
// encompasses one. Cancelled and no-show rows never block.
func findConflicting(ctx context.Context, sel *bun.SelectQuery, q store.ConflictQuery) (*domain.Appointment, error) {
	var appt domain.Appointment
	sel = sel.
		Model(&appt).
		Relation("Patient").
		Relation("Doctor").
		Where("a.clinic_id = ?", q.ClinicID).
		Where("a.doctor_id = ?", q.DoctorID).
		Where("a.status NOT IN (?)", bun.In([]domain.AppointmentStatus{domain.StatusCancelled, domain.StatusNoShow})).
		Where("((a.start_time <= ? AND a.end_time > ?) OR (a.start_time < ? AND a.end_time >= ?) OR (a.start_time >= ? AND a.end_time <= ?))",
			q.StartTime, q.StartTime, q.EndTime, q.EndTime, q.StartTime, q.EndTime)
	if q.ExcludeID != uuid.Nil {
		sel = sel.Where("a.id != ?", q.ExcludeID)
	}
	err := sel.OrderExpr("a.start_time ASC").Limit(1).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &appt, nil
}

func (t scheduleTx) FindConflicting(ctx context.Context, q store.ConflictQuery) (*domain.Appointment, error) {
	return findConflicting(ctx, t.tx.NewSelect(), q)
}

func (t scheduleTx) CreateAppointment(ctx context.Context, appt domain.Appointment) (domain.Appointment, error) {
	m := appt
	m.Patient = nil
	m.Doctor = nil

	_, err := t.tx.NewInsert().Model(&m).Exec(ctx)
	if err != nil {
		return domain.Appointment{}, mapScheduleError(err)
	}
	appt.ID = m.ID
	appt.CreatedAt = m.CreatedAt
	appt.UpdatedAt = m.UpdatedAt
	return appt, nil
}

func (t scheduleTx) UpdateAppointment(ctx context.Context, appt domain.Appointment) (domain.Appointment, error) {
	m := appt
	m.Patient = nil
	m.Doctor = nil

	res, err := t.tx.NewUpdate().
		Model(&m).
		Column("patient_id", "doctor_id", "start_time", "end_time", "status", "reason", "notes", "updated_at").
		Where("clinic_id = ?", appt.ClinicID).
		Where("id = ?", appt.ID).
		Exec(ctx)
	if err != nil {
		return domain.Appointment{}, mapScheduleError(err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return domain.Appointment{}, err
	}
	if affected == 0 {
		return domain.Appointment{}, store.ErrNotFound
	}
	return m, nil
}

func (t scheduleTx) UpdateAppointmentStatus(ctx context.Context, clinicID, appointmentID uuid.UUID, status domain.AppointmentStatus) error {
	res, err := t.tx.NewUpdate().
		Model((*domain.Appointment)(nil)).
		Set("status = ?", status).
		Set("updated_at = ?", time.Now().UTC()).
		Where("clinic_id = ?", clinicID).
		Where("id = ?", appointmentID).
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

// mapScheduleError turns an exclusion-constraint violation on
// appointments_no_overlap into store.ErrConflict. The constraint is the
// storage-level backstop: even if two requests pass the in-transaction check
// on different connections, only one insert can commit.
func mapScheduleError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if pgErr.Code == "23P01" && pgErr.ConstraintName == "appointments_no_overlap" {
			return store.ErrConflict
		}
	}
	return err
}
