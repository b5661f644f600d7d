package domain

// allowedTransitions is the authoritative shape of the state machine.
// Cancellation is reachable from every non-terminal state.
var allowedTransitions = map[TicketStatus][]TicketStatus{
	StatusEspera:           {StatusEnProceso, StatusCancelado},
	StatusAbierto:          {StatusEnProceso, StatusCancelado},
	StatusEnProceso:        {StatusPendienteCliente, StatusResuelto, StatusCancelado},
	StatusPendienteCliente: {StatusEnProceso, StatusCancelado},
	StatusResuelto:         {StatusCerrado, StatusCancelado},
	StatusCerrado:          {},
	StatusCancelado:        {},
}

// ValidTransition reports whether the edge exists in the state machine,
// ignoring actor permissions and payload requirements.
func ValidTransition(from, to TicketStatus) bool {
	for _, candidate := range allowedTransitions[from] {
		if candidate == to {
			return true
		}
	}
	return false
}

// CanTransition is the single source of truth for "who may move a ticket
// where". It checks edge validity plus the actor guard, but not payload
// requirements (reasons, resolution summary), which the operations validate.
func CanTransition(t *Ticket, actor Actor, target TicketStatus) bool {
	if t.Status.IsTerminal() {
		return false
	}
	if !ValidTransition(t.Status, target) {
		return false
	}
	switch target {
	case StatusEnProceso:
		// Taking (or resuming work on) a ticket: the assigned technician,
		// or any technician/admin when unassigned.
		if t.AssigneeID == nil {
			return actor.IsTechnician()
		}
		return t.IsAssignedTo(actor.ID) || actor.IsAdmin()
	case StatusPendienteCliente:
		return t.IsAssignedTo(actor.ID) || actor.IsAdmin()
	case StatusResuelto:
		return t.IsAssignedTo(actor.ID) || actor.IsAdmin()
	case StatusCerrado:
		return actor.IsAdmin() || t.CreatorID == actor.ID
	case StatusCancelado:
		return actor.IsAdmin() || t.IsAssignedTo(actor.ID) || t.CreatorID == actor.ID
	}
	return false
}
