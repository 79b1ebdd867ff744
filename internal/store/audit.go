package store

import (
	"context"

	"github.com/JuanHVDev/nexus-med-sub001/internal/domain"
)

// AuditRepository records entity mutations. Implementations must be safe to
// call best-effort; callers ignore failures beyond logging them.
type AuditRepository interface {
	Record(ctx context.Context, entry domain.AuditLog) error
}
