package service

import (
	"time"

	"github.com/mesaservicio/ticket-engine/internal/domain"
)

// SLAPhaseView carries the live-computed numbers for one SLA phase.
// Percentage is unclamped; RemainingMinutes may be negative on overrun.
type SLAPhaseView struct {
	Phase            domain.SLAPhase `json:"phase"`
	AllottedMinutes  int             `json:"allotted_minutes"`
	ElapsedMinutes   float64         `json:"elapsed_minutes"`
	Percentage       float64         `json:"percentage"`
	RemainingMinutes float64         `json:"remaining_minutes"`
	Band             domain.SLABand  `json:"band"`
	Deadline         *time.Time      `json:"deadline,omitempty"`
}

// TicketSLAView is the SLA block of the read model.
type TicketSLAView struct {
	Applies      bool            `json:"applies"`
	Phase        domain.SLAPhase `json:"phase"`
	Paused       bool            `json:"paused"`
	PauseReason  string          `json:"pause_reason,omitempty"`
	AlertMarkers []int           `json:"alert_markers,omitempty"`
	Response     *SLAPhaseView   `json:"response,omitempty"`
	Resolution   *SLAPhaseView   `json:"resolution,omitempty"`
}

// AuditEventView is one history entry as exposed to callers.
type AuditEventView struct {
	Seq       int64            `json:"seq"`
	Kind      domain.AuditKind `json:"kind"`
	Field     string           `json:"field,omitempty"`
	OldValue  *string          `json:"old_value,omitempty"`
	NewValue  *string          `json:"new_value,omitempty"`
	Reason    string           `json:"reason,omitempty"`
	ActorID   string           `json:"actor_id"`
	CreatedAt time.Time        `json:"created_at"`
}

// TicketView is the read model polled by clients for live countdowns. All
// SLA numbers are computed from the supplied now, never from a stored value.
type TicketView struct {
	ID                string              `json:"id"`
	Code              string              `json:"code"`
	Title             string              `json:"title"`
	Description       string              `json:"description"`
	Type              string              `json:"type,omitempty"`
	Category          string              `json:"category,omitempty"`
	Subcategory       string              `json:"subcategory,omitempty"`
	Service           string              `json:"service,omitempty"`
	Modality          domain.Modality     `json:"modality,omitempty"`
	Impact            domain.Impact       `json:"impact,omitempty"`
	Urgency           domain.Urgency      `json:"urgency,omitempty"`
	Priority          domain.Priority     `json:"priority,omitempty"`
	Status            domain.TicketStatus `json:"status"`
	Origin            domain.TicketOrigin `json:"origin"`
	CompanyID         string              `json:"company_id"`
	CreatorID         string              `json:"creator_id"`
	AssigneeID        *string             `json:"assignee_id,omitempty"`
	Configured        bool                `json:"configured"`
	ResolutionSummary *string             `json:"resolution_summary,omitempty"`
	ComponentChanged  *bool               `json:"component_changed,omitempty"`
	SLA               TicketSLAView       `json:"sla"`
	History           []AuditEventView    `json:"history"`
	CreatedAt         time.Time           `json:"created_at"`
	UpdatedAt         time.Time           `json:"updated_at"`
	ClosedAt          *time.Time          `json:"closed_at,omitempty"`
	ComputedAt        time.Time           `json:"computed_at"`
}

// BuildTicketView projects a ticket and its audit tail into the read model.
func BuildTicketView(ticket *domain.Ticket, tail []domain.AuditEvent, now time.Time) *TicketView {
	view := &TicketView{
		ID:                ticket.ID,
		Code:              ticket.Code,
		Title:             ticket.Title,
		Description:       ticket.Description,
		Type:              ticket.Type,
		Category:          ticket.Category,
		Subcategory:       ticket.Subcategory,
		Service:           ticket.Service,
		Modality:          ticket.Modality,
		Impact:            ticket.Impact,
		Urgency:           ticket.Urgency,
		Priority:          ticket.Priority,
		Status:            ticket.Status,
		Origin:            ticket.Origin,
		CompanyID:         ticket.CompanyID,
		CreatorID:         ticket.CreatorID,
		AssigneeID:        ticket.AssigneeID,
		Configured:        ticket.IsConfigured(),
		ResolutionSummary: ticket.ResolutionSummary,
		ComponentChanged:  ticket.ComponentChanged,
		CreatedAt:         ticket.CreatedAt,
		UpdatedAt:         ticket.UpdatedAt,
		ClosedAt:          ticket.ClosedAt,
		ComputedAt:        now,
		SLA: TicketSLAView{
			Applies:      ticket.SLA.Applies,
			Phase:        ticket.Clock.Phase,
			Paused:       ticket.Clock.Paused,
			PauseReason:  ticket.Clock.PauseReason,
			AlertMarkers: ticket.SLA.AlertMarkers,
		},
	}

	if ticket.SLA.Applies {
		if ticket.Clock.ResponseStartedAt != nil {
			view.SLA.Response = buildPhaseView(ticket, domain.PhaseResponse, now)
		}
		if ticket.Clock.ResolutionStartedAt != nil {
			view.SLA.Resolution = buildPhaseView(ticket, domain.PhaseResolution, now)
		}
	}

	view.History = make([]AuditEventView, 0, len(tail))
	for _, event := range tail {
		view.History = append(view.History, AuditEventView{
			Seq:       event.Seq,
			Kind:      event.Kind,
			Field:     event.Field,
			OldValue:  event.OldValue,
			NewValue:  event.NewValue,
			Reason:    event.Reason,
			ActorID:   event.ActorID,
			CreatedAt: event.CreatedAt,
		})
	}
	return view
}

func buildPhaseView(ticket *domain.Ticket, phase domain.SLAPhase, now time.Time) *SLAPhaseView {
	percentage := ticket.Clock.Percentage(ticket.SLA, phase, now)
	return &SLAPhaseView{
		Phase:            phase,
		AllottedMinutes:  ticket.SLA.AllottedMinutes(phase),
		ElapsedMinutes:   ticket.Clock.Elapsed(phase, now),
		Percentage:       percentage,
		RemainingMinutes: ticket.Clock.Remaining(ticket.SLA, phase, now),
		Band:             domain.BandFor(percentage),
		Deadline:         ticket.Clock.Deadline(ticket.SLA, phase),
	}
}
