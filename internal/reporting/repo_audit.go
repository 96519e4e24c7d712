package reporting

import (
	"context"

	"dataroom/internal/audit"
)

const pageSize = 500

// AuditRepo reads the audit trail page by page using the Seq cursor.
type AuditRepo struct {
	events audit.Repository
}

func NewAuditRepo(events audit.Repository) *AuditRepo { return &AuditRepo{events: events} }

func (r *AuditRepo) ListEvents(ctx context.Context, f audit.Filter) ([]audit.Event, error) {
	var out []audit.Event
	f.AfterSeq = 0
	f.Limit = pageSize
	for {
		rows, err := r.events.List(ctx, f)
		if err != nil {
			return nil, err
		}
		out = append(out, rows...)
		if len(rows) < pageSize {
			return out, nil
		}
		f.AfterSeq = rows[len(rows)-1].Seq
	}
}
