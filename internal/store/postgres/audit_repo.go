package postgres

import (
	"context"

	"github.com/uptrace/bun"

	"github.com/JuanHVDev/nexus-med-sub001/internal/domain"
)

type AuditRepo struct {
	db *bun.DB
}

func NewAuditRepo(db *bun.DB) *AuditRepo {
	return &AuditRepo{db: db}
}

func (r *AuditRepo) Record(ctx context.Context, entry domain.AuditLog) error {
	_, err := r.db.NewInsert().Model(&entry).Exec(ctx)
	return err
}
