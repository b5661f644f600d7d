package events

import (
	"time"

	"github.com/mesaservicio/ticket-engine/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventTicketCreated         EventType = "ticket_created"
	EventTicketStatusChanged   EventType = "ticket_status_changed"
	EventTicketAssigned        EventType = "ticket_assigned"
	EventTicketFieldsEdited    EventType = "ticket_fields_edited"
	EventTicketPriorityChanged EventType = "ticket_priority_changed"
	EventSLAPaused             EventType = "sla_paused"
	EventSLAResumed            EventType = "sla_resumed"
	EventTicketCommented       EventType = "ticket_commented"
)

// Event represents a domain event emitted by the ticket aggregate.
type Event struct {
	ID        string       `json:"id"`
	Type      EventType    `json:"type"`
	TicketID  string       `json:"ticket_id"`
	Actor     domain.Actor `json:"actor"`
	Timestamp time.Time    `json:"timestamp"`
	Payload   interface{}  `json:"payload"`
}

// TicketCreatedPayload payload.
type TicketCreatedPayload struct {
	Code      string              `json:"code"`
	CompanyID string              `json:"company_id"`
	Origin    domain.TicketOrigin `json:"origin"`
	Status    domain.TicketStatus `json:"status"`
	Priority  domain.Priority     `json:"priority,omitempty"`
	SLApplies bool                `json:"sla_applies"`
}

// TicketStatusChangedPayload payload.
type TicketStatusChangedPayload struct {
	OldStatus domain.TicketStatus `json:"old_status"`
	NewStatus domain.TicketStatus `json:"new_status"`
	Reason    string              `json:"reason,omitempty"`
	SLAPhase  domain.SLAPhase     `json:"sla_phase"`
}

// TicketAssignedPayload payload.
type TicketAssignedPayload struct {
	OldAssigneeID *string `json:"old_assignee_id,omitempty"`
	NewAssigneeID string  `json:"new_assignee_id"`
	Reassignment  bool    `json:"reassignment"`
}

// TicketFieldsEditedPayload payload.
type TicketFieldsEditedPayload struct {
	Fields []string `json:"fields"`
	Reason string   `json:"reason"`
}

// TicketPriorityChangedPayload payload.
type TicketPriorityChangedPayload struct {
	OldPriority domain.Priority `json:"old_priority"`
	NewPriority domain.Priority `json:"new_priority"`
}

// SLAPausedPayload payload.
type SLAPausedPayload struct {
	Phase  domain.SLAPhase `json:"phase"`
	Reason string          `json:"reason"`
}

// SLAResumedPayload payload.
type SLAResumedPayload struct {
	Phase        domain.SLAPhase `json:"phase"`
	PausedMin    float64         `json:"paused_minutes"`
	ElapsedMin   float64         `json:"elapsed_minutes"`
	PercentageAt float64         `json:"percentage"`
}

// TicketCommentedPayload payload.
type TicketCommentedPayload struct {
	Preview string `json:"preview"`
}
