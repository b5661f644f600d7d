package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mesaservicio/ticket-engine/internal/domain"
)

// TicketRepository encapsulates ticket persistence. Mutations land together
// with their audit events in one transaction: a ticket write never succeeds
// without its trail entry, and vice versa.
type TicketRepository interface {
	Create(ctx context.Context, ticket *domain.Ticket, event *domain.AuditEvent) error
	Update(ctx context.Context, ticket *domain.Ticket, events []*domain.AuditEvent) error
	AppendEvents(ctx context.Context, ticketID string, events []*domain.AuditEvent) error
	GetByID(ctx context.Context, id string) (*domain.Ticket, error)
	GetByCode(ctx context.Context, code string) (*domain.Ticket, error)
	NextCode(ctx context.Context, origin domain.TicketOrigin, year int) (string, error)
}

type ticketRepository struct {
	pool *pgxpool.Pool
}

// NewTicketRepository instantiates repository.
func NewTicketRepository(pool *pgxpool.Pool) TicketRepository {
	return &ticketRepository{pool: pool}
}

const ticketColumns = `
        id, code, title, description, type, category, subcategory, service, modality,
        impact, urgency, priority, status, origin, company_id, creator_id, assignee_id,
        configured_by, configured_at, resolution_summary, component_changed,
        sla_applies, sla_response_minutes, sla_resolution_minutes, sla_alert_markers,
        sla_phase, response_started_at, response_elapsed_min,
        resolution_started_at, resolution_elapsed_min,
        sla_paused, pause_started_at, pause_reason,
        attachments, asset_ids, reporter_ids,
        created_at, updated_at, closed_at`

func (r *ticketRepository) Create(ctx context.Context, ticket *domain.Ticket, event *domain.AuditEvent) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	const query = `
        INSERT INTO tickets (
            code, title, description, type, category, subcategory, service, modality,
            impact, urgency, priority, status, origin, company_id, creator_id, assignee_id,
            configured_by, configured_at,
            sla_applies, sla_response_minutes, sla_resolution_minutes, sla_alert_markers,
            sla_phase, response_started_at,
            attachments, asset_ids, reporter_ids)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23,$24,$25,$26,$27)
        RETURNING id, created_at, updated_at`
	if err := tx.QueryRow(ctx, query,
		ticket.Code,
		ticket.Title,
		ticket.Description,
		ticket.Type,
		ticket.Category,
		ticket.Subcategory,
		ticket.Service,
		ticket.Modality,
		ticket.Impact,
		ticket.Urgency,
		ticket.Priority,
		ticket.Status,
		ticket.Origin,
		ticket.CompanyID,
		ticket.CreatorID,
		ticket.AssigneeID,
		ticket.ConfiguredBy,
		ticket.ConfiguredAt,
		ticket.SLA.Applies,
		ticket.SLA.ResponseMinutes,
		ticket.SLA.ResolutionMinutes,
		ticket.SLA.AlertMarkers,
		ticket.Clock.Phase,
		ticket.Clock.ResponseStartedAt,
		ticket.Attachments,
		ticket.AssetIDs,
		ticket.ReporterIDs,
	).Scan(&ticket.ID, &ticket.CreatedAt, &ticket.UpdatedAt); err != nil {
		return err
	}

	event.TicketID = ticket.ID
	if err := appendEventsTx(ctx, tx, ticket.ID, []*domain.AuditEvent{event}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (r *ticketRepository) Update(ctx context.Context, ticket *domain.Ticket, events []*domain.AuditEvent) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	const query = `
        UPDATE tickets SET
            title=$1, description=$2, type=$3, category=$4, subcategory=$5, service=$6,
            modality=$7, impact=$8, urgency=$9, priority=$10, status=$11, assignee_id=$12,
            configured_by=$13, configured_at=$14, resolution_summary=$15, component_changed=$16,
            sla_applies=$17, sla_response_minutes=$18, sla_resolution_minutes=$19, sla_alert_markers=$20,
            sla_phase=$21, response_started_at=$22, response_elapsed_min=$23,
            resolution_started_at=$24, resolution_elapsed_min=$25,
            sla_paused=$26, pause_started_at=$27, pause_reason=$28,
            closed_at=$29, updated_at=NOW()
        WHERE id=$30`
	cmd, err := tx.Exec(ctx, query,
		ticket.Title,
		ticket.Description,
		ticket.Type,
		ticket.Category,
		ticket.Subcategory,
		ticket.Service,
		ticket.Modality,
		ticket.Impact,
		ticket.Urgency,
		ticket.Priority,
		ticket.Status,
		ticket.AssigneeID,
		ticket.ConfiguredBy,
		ticket.ConfiguredAt,
		ticket.ResolutionSummary,
		ticket.ComponentChanged,
		ticket.SLA.Applies,
		ticket.SLA.ResponseMinutes,
		ticket.SLA.ResolutionMinutes,
		ticket.SLA.AlertMarkers,
		ticket.Clock.Phase,
		ticket.Clock.ResponseStartedAt,
		ticket.Clock.ResponseElapsedMin,
		ticket.Clock.ResolutionStartedAt,
		ticket.Clock.ResolutionElapsedMin,
		ticket.Clock.Paused,
		ticket.Clock.PauseStartedAt,
		nullableString(ticket.Clock.PauseReason),
		ticket.ClosedAt,
		ticket.ID,
	)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}

	// Closed pause intervals are append-only; persist the ones the clock
	// accumulated in memory but the store has not seen yet.
	for i := range ticket.Clock.Pauses {
		pause := &ticket.Clock.Pauses[i]
		if pause.ID != "" {
			continue
		}
		const pauseQuery = `
            INSERT INTO sla_pauses (ticket_id, started_at, ended_at, reason)
            VALUES ($1,$2,$3,$4)
            RETURNING id`
		if err := tx.QueryRow(ctx, pauseQuery, ticket.ID, pause.Start, pause.End, pause.Reason).Scan(&pause.ID); err != nil {
			return err
		}
	}

	if err := appendEventsTx(ctx, tx, ticket.ID, events); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (r *ticketRepository) AppendEvents(ctx context.Context, ticketID string, events []*domain.AuditEvent) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if err := appendEventsTx(ctx, tx, ticketID, events); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func appendEventsTx(ctx context.Context, tx pgx.Tx, ticketID string, events []*domain.AuditEvent) error {
	var seq int64
	if err := tx.QueryRow(ctx,
		`SELECT COALESCE(MAX(seq), 0) FROM ticket_events WHERE ticket_id=$1`, ticketID,
	).Scan(&seq); err != nil {
		return err
	}

	const query = `
        INSERT INTO ticket_events (ticket_id, seq, kind, field, old_value, new_value, reason, actor_id)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
        RETURNING id, created_at`
	for _, event := range events {
		seq++
		event.TicketID = ticketID
		event.Seq = seq
		if err := tx.QueryRow(ctx, query,
			ticketID,
			seq,
			event.Kind,
			nullableString(event.Field),
			event.OldValue,
			event.NewValue,
			nullableString(event.Reason),
			event.ActorID,
		).Scan(&event.ID, &event.CreatedAt); err != nil {
			return err
		}
	}
	return nil
}

func (r *ticketRepository) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	query := fmt.Sprintf(`SELECT %s FROM tickets WHERE id=$1`, ticketColumns)
	return r.fetchSingle(ctx, query, id)
}

func (r *ticketRepository) GetByCode(ctx context.Context, code string) (*domain.Ticket, error) {
	query := fmt.Sprintf(`SELECT %s FROM tickets WHERE code=$1`, ticketColumns)
	return r.fetchSingle(ctx, query, code)
}

func (r *ticketRepository) fetchSingle(ctx context.Context, query string, arg any) (*domain.Ticket, error) {
	var (
		ticket      domain.Ticket
		pauseReason *string
	)
	if err := r.pool.QueryRow(ctx, query, arg).Scan(
		&ticket.ID,
		&ticket.Code,
		&ticket.Title,
		&ticket.Description,
		&ticket.Type,
		&ticket.Category,
		&ticket.Subcategory,
		&ticket.Service,
		&ticket.Modality,
		&ticket.Impact,
		&ticket.Urgency,
		&ticket.Priority,
		&ticket.Status,
		&ticket.Origin,
		&ticket.CompanyID,
		&ticket.CreatorID,
		&ticket.AssigneeID,
		&ticket.ConfiguredBy,
		&ticket.ConfiguredAt,
		&ticket.ResolutionSummary,
		&ticket.ComponentChanged,
		&ticket.SLA.Applies,
		&ticket.SLA.ResponseMinutes,
		&ticket.SLA.ResolutionMinutes,
		&ticket.SLA.AlertMarkers,
		&ticket.Clock.Phase,
		&ticket.Clock.ResponseStartedAt,
		&ticket.Clock.ResponseElapsedMin,
		&ticket.Clock.ResolutionStartedAt,
		&ticket.Clock.ResolutionElapsedMin,
		&ticket.Clock.Paused,
		&ticket.Clock.PauseStartedAt,
		&pauseReason,
		&ticket.Attachments,
		&ticket.AssetIDs,
		&ticket.ReporterIDs,
		&ticket.CreatedAt,
		&ticket.UpdatedAt,
		&ticket.ClosedAt,
	); err != nil {
		return nil, err
	}
	if pauseReason != nil {
		ticket.Clock.PauseReason = *pauseReason
	}

	pauses, err := r.listPauses(ctx, ticket.ID)
	if err != nil {
		return nil, err
	}
	ticket.Clock.Pauses = pauses
	return &ticket, nil
}

func (r *ticketRepository) listPauses(ctx context.Context, ticketID string) ([]domain.PauseInterval, error) {
	const query = `
        SELECT id, started_at, ended_at, reason
        FROM sla_pauses WHERE ticket_id=$1 ORDER BY started_at ASC`
	rows, err := r.pool.Query(ctx, query, ticketID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.PauseInterval
	for rows.Next() {
		var pause domain.PauseInterval
		if err := rows.Scan(&pause.ID, &pause.Start, &pause.End, &pause.Reason); err != nil {
			return nil, err
		}
		result = append(result, pause)
	}
	return result, rows.Err()
}

var originCodes = map[domain.TicketOrigin]string{
	domain.OriginInterno:  "INT",
	domain.OriginPortal:   "POR",
	domain.OriginQR:       "QR",
	domain.OriginEmail:    "EML",
	domain.OriginTelefono: "TEL",
}

func (r *ticketRepository) NextCode(ctx context.Context, origin domain.TicketOrigin, year int) (string, error) {
	originCode, ok := originCodes[origin]
	if !ok {
		originCode = "GEN"
	}

	const query = `
        INSERT INTO ticket_sequences (origin_code, year, last_value)
        VALUES ($1, $2, 1)
        ON CONFLICT (origin_code, year)
        DO UPDATE SET last_value = ticket_sequences.last_value + 1
        RETURNING last_value`
	var value int64
	if err := r.pool.QueryRow(ctx, query, originCode, year).Scan(&value); err != nil {
		return "", err
	}
	return fmt.Sprintf("TCK-%s-%d-%06d", originCode, year, value), nil
}

func nullableString(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}
