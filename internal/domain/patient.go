package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Patient is referenced by appointments, never owned by them. Only the fields
// needed for scheduling projections live here.
type Patient struct {
	bun.BaseModel `bun:"table:patients,alias:p"`

	ID         uuid.UUID `bun:"id,pk,type:uuid"`
	ClinicID   uuid.UUID `bun:"clinic_id,notnull,type:uuid"`
	FirstName  string    `bun:"first_name,notnull"`
	LastName   string    `bun:"last_name,notnull"`
	MiddleName string    `bun:"middle_name"`
	Phone      string    `bun:"phone"`
	CreatedAt  time.Time `bun:"created_at,notnull"`
	UpdatedAt  time.Time `bun:"updated_at,notnull"`
}

func (p *Patient) FullName() string {
	parts := make([]string, 0, 3)
	for _, s := range []string{p.FirstName, p.MiddleName, p.LastName} {
		if s = strings.TrimSpace(s); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, " ")
}

type Doctor struct {
	bun.BaseModel `bun:"table:doctors,alias:d"`

	ID        uuid.UUID `bun:"id,pk,type:uuid"`
	ClinicID  uuid.UUID `bun:"clinic_id,notnull,type:uuid"`
	Name      string    `bun:"name,notnull"`
	Specialty string    `bun:"specialty"`
	CreatedAt time.Time `bun:"created_at,notnull"`
	UpdatedAt time.Time `bun:"updated_at,notnull"`
}
