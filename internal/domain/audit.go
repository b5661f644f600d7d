package domain

import "time"

// AuditKind captures what happened in an audit entry.
type AuditKind string

const (
	AuditCreacion        AuditKind = "CREACION"
	AuditCambioEstado    AuditKind = "CAMBIO_ESTADO"
	AuditAsignacion      AuditKind = "ASIGNACION"
	AuditReasignacion    AuditKind = "REASIGNACION"
	AuditEdicionCampo    AuditKind = "EDICION_CAMPO"
	AuditCambioPrioridad AuditKind = "CAMBIO_PRIORIDAD"
	AuditPausaSLA        AuditKind = "PAUSA_SLA"
	AuditReanudacionSLA  AuditKind = "REANUDACION_SLA"
	AuditComentario      AuditKind = "COMENTARIO"
)

// IsValid reports whether the kind is one of the known audit kinds.
func (k AuditKind) IsValid() bool {
	switch k {
	case AuditCreacion, AuditCambioEstado, AuditAsignacion, AuditReasignacion,
		AuditEdicionCampo, AuditCambioPrioridad, AuditPausaSLA,
		AuditReanudacionSLA, AuditComentario:
		return true
	}
	return false
}

// AuditEvent is one immutable entry in a ticket's append-only trail.
// Seq is assigned at persistence time and increases per ticket.
type AuditEvent struct {
	ID        string
	TicketID  string
	Seq       int64
	Kind      AuditKind
	Field     string
	OldValue  *string
	NewValue  *string
	Reason    string
	ActorID   string
	CreatedAt time.Time
}
