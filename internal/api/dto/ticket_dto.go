package dto

import (
	"time"

	"github.com/mesaservicio/ticket-engine/internal/domain"
)

// CreateTicketRequest payload.
type CreateTicketRequest struct {
	CompanyID   string              `json:"company_id"`
	Title       string              `json:"title"`
	Description string              `json:"description"`
	Origin      domain.TicketOrigin `json:"origin,omitempty"`
	Type        string              `json:"tipo,omitempty"`
	Category    string              `json:"categoria,omitempty"`
	Subcategory string              `json:"subcategoria,omitempty"`
	Service     string              `json:"servicio,omitempty"`
	Modality    domain.Modality     `json:"modalidad,omitempty"`
	Impact      domain.Impact       `json:"impacto,omitempty"`
	Urgency     domain.Urgency      `json:"urgencia,omitempty"`
	AssigneeID  *string             `json:"assignee_id,omitempty"`
	Attachments []string            `json:"attachments,omitempty"`
	AssetIDs    []string            `json:"asset_ids,omitempty"`
	ReporterIDs []string            `json:"reporter_ids,omitempty"`
}

// ConfigureTicketRequest completes a ticket's classification.
type ConfigureTicketRequest struct {
	Type        string          `json:"tipo"`
	Category    string          `json:"categoria"`
	Subcategory string          `json:"subcategoria"`
	Service     string          `json:"servicio"`
	Modality    domain.Modality `json:"modalidad"`
	Impact      domain.Impact   `json:"impacto"`
	Urgency     domain.Urgency  `json:"urgencia"`
	Reason      string          `json:"reason,omitempty"`
}

// ReasonRequest carries the justification for hold, cancel and SLA pause.
type ReasonRequest struct {
	Reason string `json:"reason"`
}

// ResolveTicketRequest carries the mandatory resolution payload.
type ResolveTicketRequest struct {
	Summary          string `json:"summary"`
	ComponentChanged *bool  `json:"component_changed"`
}

// AssignTicketRequest names the technician to assign.
type AssignTicketRequest struct {
	TechnicianID string `json:"technician_id"`
}

// EditTicketRequest updates editable fields; omitted fields stay unchanged.
type EditTicketRequest struct {
	Title       *string         `json:"title,omitempty"`
	Description *string         `json:"description,omitempty"`
	Impact      *domain.Impact  `json:"impacto,omitempty"`
	Urgency     *domain.Urgency `json:"urgencia,omitempty"`
	Reason      string          `json:"reason"`
}

// CommentRequest payload.
type CommentRequest struct {
	Text string `json:"text"`
}

// TicketSummary is the write-path response shape.
type TicketSummary struct {
	ID         string              `json:"id"`
	Code       string              `json:"code"`
	Title      string              `json:"title"`
	Status     domain.TicketStatus `json:"status"`
	Priority   domain.Priority     `json:"priority,omitempty"`
	Origin     domain.TicketOrigin `json:"origin"`
	CompanyID  string              `json:"company_id"`
	AssigneeID *string             `json:"assignee_id,omitempty"`
	SLApplies  bool                `json:"sla_applies"`
	SLAPhase   domain.SLAPhase     `json:"sla_phase"`
	SLAPaused  bool                `json:"sla_paused"`
	CreatedAt  time.Time           `json:"created_at"`
	UpdatedAt  time.Time           `json:"updated_at"`
	ClosedAt   *time.Time          `json:"closed_at,omitempty"`
}

// HistoryEventResponse is one audit entry.
type HistoryEventResponse struct {
	ID        string           `json:"id"`
	Seq       int64            `json:"seq"`
	Kind      domain.AuditKind `json:"kind"`
	Field     string           `json:"field,omitempty"`
	OldValue  *string          `json:"old_value,omitempty"`
	NewValue  *string          `json:"new_value,omitempty"`
	Reason    string           `json:"reason,omitempty"`
	ActorID   string           `json:"actor_id"`
	CreatedAt time.Time        `json:"created_at"`
}

// CanTransitionResponse answers the guard query for a target state.
type CanTransitionResponse struct {
	Target  domain.TicketStatus `json:"target"`
	Allowed bool                `json:"allowed"`
}
