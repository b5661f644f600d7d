package domain

import "time"

// TicketStatus enumerates lifecycle states for tickets.
type TicketStatus string

const (
	StatusEspera           TicketStatus = "ESPERA"
	StatusAbierto          TicketStatus = "ABIERTO"
	StatusEnProceso        TicketStatus = "EN_PROCESO"
	StatusPendienteCliente TicketStatus = "PENDIENTE_CLIENTE"
	StatusResuelto         TicketStatus = "RESUELTO"
	StatusCerrado          TicketStatus = "CERRADO"
	StatusCancelado        TicketStatus = "CANCELADO"
)

// IsTerminal reports whether no further transitions are permitted.
func (s TicketStatus) IsTerminal() bool {
	return s == StatusCerrado || s == StatusCancelado
}

// TicketOrigin records the channel the ticket arrived through.
type TicketOrigin string

const (
	OriginInterno  TicketOrigin = "INTERNO"
	OriginPortal   TicketOrigin = "PORTAL_PUBLICO"
	OriginQR       TicketOrigin = "QR"
	OriginEmail    TicketOrigin = "EMAIL"
	OriginTelefono TicketOrigin = "TELEFONO"
)

// Modality distinguishes on-site from remote attention.
type Modality string

const (
	ModalityRemoto  Modality = "REMOTO"
	ModalityEnSitio Modality = "EN_SITIO"
)

// Ticket is the aggregate: lifecycle state, SLA clock, assignment and the
// fields the state machine guards. It is mutated only through the service
// operations; every mutation lands with its audit event.
type Ticket struct {
	ID   string
	Code string // human code, e.g. TCK-INT-2026-000001, immutable

	Title       string
	Description string

	Type        string
	Category    string
	Subcategory string
	Service     string
	Modality    Modality

	Impact   Impact
	Urgency  Urgency
	Priority Priority // always priorityMatrix[Impact][Urgency]

	Status TicketStatus
	Origin TicketOrigin

	CompanyID  string
	CreatorID  string
	AssigneeID *string

	ConfiguredBy *string
	ConfiguredAt *time.Time

	ResolutionSummary *string
	ComponentChanged  *bool

	SLA   SLAProfile
	Clock SLAClock

	Attachments []string
	AssetIDs    []string
	ReporterIDs []string

	CreatedAt time.Time
	UpdatedAt time.Time
	ClosedAt  *time.Time
}

// IsConfigured reports whether classification, impact, urgency and modality
// are all set. Portal-origin tickets must be configured before resolution.
func (t *Ticket) IsConfigured() bool {
	return t.Type != "" &&
		t.Category != "" &&
		t.Subcategory != "" &&
		t.Service != "" &&
		t.Impact != "" &&
		t.Urgency != "" &&
		t.Modality != ""
}

// IsAssignedTo reports whether the actor is the current technician.
func (t *Ticket) IsAssignedTo(actorID string) bool {
	return t.AssigneeID != nil && *t.AssigneeID == actorID
}
