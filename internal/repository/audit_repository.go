package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mesaservicio/ticket-engine/internal/domain"
)

// AuditRepository reads a ticket's append-only trail. Writes happen only
// through TicketRepository so they stay atomic with the mutation.
type AuditRepository interface {
	ListByTicket(ctx context.Context, ticketID string, kinds []domain.AuditKind) ([]domain.AuditEvent, error)
	Tail(ctx context.Context, ticketID string, limit int) ([]domain.AuditEvent, error)
}

type auditRepository struct {
	pool *pgxpool.Pool
}

// NewAuditRepository builds repository.
func NewAuditRepository(pool *pgxpool.Pool) AuditRepository {
	return &auditRepository{pool: pool}
}

const auditColumns = `id, ticket_id, seq, kind, COALESCE(field,''), old_value, new_value, COALESCE(reason,''), actor_id, created_at`

func (r *auditRepository) ListByTicket(ctx context.Context, ticketID string, kinds []domain.AuditKind) ([]domain.AuditEvent, error) {
	clauses := []string{"ticket_id=$1"}
	args := []any{ticketID}

	if len(kinds) > 0 {
		placeholders := make([]string, len(kinds))
		for i, kind := range kinds {
			args = append(args, kind)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		clauses = append(clauses, fmt.Sprintf("kind IN (%s)", strings.Join(placeholders, ",")))
	}

	query := fmt.Sprintf(`SELECT %s FROM ticket_events WHERE %s ORDER BY seq ASC`,
		auditColumns, strings.Join(clauses, " AND "))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEvents(rows)
}

func (r *auditRepository) Tail(ctx context.Context, ticketID string, limit int) ([]domain.AuditEvent, error) {
	if limit <= 0 {
		limit = 20
	}
	query := fmt.Sprintf(`
        SELECT * FROM (
            SELECT %s FROM ticket_events WHERE ticket_id=$1 ORDER BY seq DESC LIMIT %d
        ) tail ORDER BY seq ASC`, auditColumns, limit)

	rows, err := r.pool.Query(ctx, query, ticketID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEvents(rows)
}

func scanEvents(rows pgx.Rows) ([]domain.AuditEvent, error) {
	var result []domain.AuditEvent
	for rows.Next() {
		var event domain.AuditEvent
		if err := rows.Scan(
			&event.ID,
			&event.TicketID,
			&event.Seq,
			&event.Kind,
			&event.Field,
			&event.OldValue,
			&event.NewValue,
			&event.Reason,
			&event.ActorID,
			&event.CreatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, event)
	}
	return result, rows.Err()
}
