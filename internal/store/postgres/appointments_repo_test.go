package postgres

import (
	"errors"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/JuanHVDev/nexus-med-sub001/internal/store"
)

func TestMapScheduleError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{
			name: "overlap exclusion violation",
			err:  &pgconn.PgError{Code: "23P01", ConstraintName: "appointments_no_overlap"},
			want: store.ErrConflict,
		},
		{
			name: "other exclusion constraint",
			err:  &pgconn.PgError{Code: "23P01", ConstraintName: "some_other_constraint"},
		},
		{
			name: "unique violation passes through",
			err:  &pgconn.PgError{Code: "23505", ConstraintName: "appointments_pkey"},
		},
		{
			name: "plain error passes through",
			err:  errors.New("connection reset"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := mapScheduleError(tt.err)
			if tt.want != nil {
				if !errors.Is(got, tt.want) {
					t.Fatalf("mapScheduleError() = %v, want %v", got, tt.want)
				}
				return
			}
			if !errors.Is(got, tt.err) {
				t.Fatalf("mapScheduleError() = %v, want original error", got)
			}
		})
	}
}
