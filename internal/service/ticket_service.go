package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/mesaservicio/ticket-engine/internal/domain"
	"github.com/mesaservicio/ticket-engine/internal/events"
	"github.com/mesaservicio/ticket-engine/internal/repository"
	apperrors "github.com/mesaservicio/ticket-engine/pkg/util/errorutil"
)

// TicketService is the aggregate coordinating the state machine, the SLA
// clock, assignment and the audit trail as one transactional unit. Every
// write runs under the per-ticket lock and lands atomically with its audit
// events.
type TicketService struct {
	tickets         repository.TicketRepository
	audit           repository.AuditRepository
	policy          *PolicyResolver
	dispatcher      events.Dispatcher
	cache           *ViewCache
	locks           *ticketLocks
	historyTailSize int
	now             func() time.Time
}

// TicketDependencies bundles collaborators for the ticket service.
type TicketDependencies struct {
	TicketRepo      repository.TicketRepository
	AuditRepo       repository.AuditRepository
	Policy          *PolicyResolver
	Dispatcher      events.Dispatcher
	Cache           *ViewCache
	HistoryTailSize int
	Now             func() time.Time
}

// NewTicketService constructs the service.
func NewTicketService(deps TicketDependencies) *TicketService {
	nowFn := deps.Now
	if nowFn == nil {
		nowFn = time.Now
	}
	tailSize := deps.HistoryTailSize
	if tailSize <= 0 {
		tailSize = 20
	}
	return &TicketService{
		tickets:         deps.TicketRepo,
		audit:           deps.AuditRepo,
		policy:          deps.Policy,
		dispatcher:      deps.Dispatcher,
		cache:           deps.Cache,
		locks:           newTicketLocks(),
		historyTailSize: tailSize,
		now:             nowFn,
	}
}

// TicketCreateInput describes ticket creation payload. Classification,
// impact, urgency and modality may be left empty for portal-origin tickets;
// they are then required at Configure time.
type TicketCreateInput struct {
	CompanyID   string
	Title       string
	Description string
	Origin      domain.TicketOrigin
	Type        string
	Category    string
	Subcategory string
	Service     string
	Modality    domain.Modality
	Impact      domain.Impact
	Urgency     domain.Urgency
	AssigneeID  *string
	Attachments []string
	AssetIDs    []string
	ReporterIDs []string
}

// TicketConfigureInput completes a ticket's classification.
type TicketConfigureInput struct {
	Type        string
	Category    string
	Subcategory string
	Service     string
	Modality    domain.Modality
	Impact      domain.Impact
	Urgency     domain.Urgency
	Reason      string
}

// TicketResolveInput carries the mandatory resolution payload.
type TicketResolveInput struct {
	Summary          string
	ComponentChanged *bool
}

// TicketEditInput lists the editable fields; nil means unchanged.
type TicketEditInput struct {
	Title       *string
	Description *string
	Impact      *domain.Impact
	Urgency     *domain.Urgency
}

// CreateTicket creates a ticket, snapshotting the SLA profile when the
// classification is complete, and appends the CREACION event.
func (s *TicketService) CreateTicket(ctx context.Context, actor domain.Actor, input TicketCreateInput) (*domain.Ticket, error) {
	title := strings.TrimSpace(input.Title)
	description := strings.TrimSpace(input.Description)
	if input.CompanyID == "" || title == "" || description == "" {
		return nil, apperrors.NewValidationError("company_id, title and description are required", nil)
	}
	origin := input.Origin
	if origin == "" {
		origin = domain.OriginInterno
	}
	if input.AssigneeID != nil && !actor.IsAdmin() {
		return nil, apperrors.NewPermissionDenied("only administrators may assign at creation")
	}

	now := s.now()
	ticket := &domain.Ticket{
		Title:       title,
		Description: description,
		Type:        input.Type,
		Category:    input.Category,
		Subcategory: input.Subcategory,
		Service:     input.Service,
		Modality:    input.Modality,
		Impact:      input.Impact,
		Urgency:     input.Urgency,
		Origin:      origin,
		CompanyID:   input.CompanyID,
		CreatorID:   actor.ID,
		AssigneeID:  input.AssigneeID,
		Attachments: input.Attachments,
		AssetIDs:    input.AssetIDs,
		ReporterIDs: input.ReporterIDs,
		Status:      domain.StatusEspera,
		Clock:       domain.SLAClock{Phase: domain.PhaseNone},
	}
	if input.AssigneeID != nil {
		ticket.Status = domain.StatusAbierto
	}

	if input.Impact != "" || input.Urgency != "" {
		priority, err := domain.CalculatePriority(input.Impact, input.Urgency)
		if err != nil {
			return nil, apperrors.NewValidationError(err.Error(), nil)
		}
		ticket.Priority = priority
	}

	if ticket.IsConfigured() {
		if err := s.snapshotSLA(ctx, ticket, now); err != nil {
			return nil, err
		}
		ticket.ConfiguredBy = &actor.ID
		ticket.ConfiguredAt = &now
	}

	code, err := s.tickets.NextCode(ctx, origin, now.Year())
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	ticket.Code = code

	created := string(ticket.Status)
	event := &domain.AuditEvent{
		Kind:     domain.AuditCreacion,
		NewValue: &created,
		ActorID:  actor.ID,
	}
	if err := s.tickets.Create(ctx, ticket, event); err != nil {
		return nil, apperrors.MapError(err)
	}

	s.publish(ctx, events.Event{
		Type:     events.EventTicketCreated,
		TicketID: ticket.ID,
		Actor:    actor,
		Payload: events.TicketCreatedPayload{
			Code:      ticket.Code,
			CompanyID: ticket.CompanyID,
			Origin:    ticket.Origin,
			Status:    ticket.Status,
			Priority:  ticket.Priority,
			SLApplies: ticket.SLA.Applies,
		},
	})
	return ticket, nil
}

// Configure completes a ticket's classification, recomputes priority and,
// for tickets created unconfigured, snapshots the SLA profile. Required for
// portal-origin tickets before they can be resolved.
func (s *TicketService) Configure(ctx context.Context, actor domain.Actor, ticketID string, input TicketConfigureInput) (*domain.Ticket, error) {
	if !actor.IsTechnician() {
		return nil, apperrors.NewPermissionDenied("technician role required")
	}
	if input.Type == "" || input.Category == "" || input.Subcategory == "" || input.Service == "" || input.Modality == "" {
		return nil, apperrors.NewValidationError("tipo, categoria, subcategoria, servicio and modalidad are required", nil)
	}
	priority, err := domain.CalculatePriority(input.Impact, input.Urgency)
	if err != nil {
		return nil, apperrors.NewValidationError(err.Error(), nil)
	}

	unlock := s.locks.Lock(ticketID)
	defer unlock()

	ticket, err := s.getTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if ticket.Status.IsTerminal() {
		return nil, apperrors.NewInvalidTransition("ticket is in a terminal state", statusDetails(ticket))
	}

	now := s.now()
	var auditEvents []*domain.AuditEvent
	var changed []string

	apply := func(field, oldValue, newValue string) {
		if oldValue == newValue {
			return
		}
		auditEvents = append(auditEvents, fieldEvent(field, oldValue, newValue, input.Reason, actor.ID))
		changed = append(changed, field)
	}
	apply("tipo", ticket.Type, input.Type)
	apply("categoria", ticket.Category, input.Category)
	apply("subcategoria", ticket.Subcategory, input.Subcategory)
	apply("servicio", ticket.Service, input.Service)
	apply("modalidad", string(ticket.Modality), string(input.Modality))
	apply("impacto", string(ticket.Impact), string(input.Impact))
	apply("urgencia", string(ticket.Urgency), string(input.Urgency))

	ticket.Type = input.Type
	ticket.Category = input.Category
	ticket.Subcategory = input.Subcategory
	ticket.Service = input.Service
	ticket.Modality = input.Modality
	ticket.Impact = input.Impact
	ticket.Urgency = input.Urgency

	if ticket.Priority != priority {
		oldPriority := string(ticket.Priority)
		newPriority := string(priority)
		auditEvents = append(auditEvents, &domain.AuditEvent{
			Kind:     domain.AuditCambioPrioridad,
			OldValue: nilIfEmpty(oldPriority),
			NewValue: &newPriority,
			ActorID:  actor.ID,
		})
		ticket.Priority = priority
	}

	firstConfig := ticket.ConfiguredBy == nil
	if firstConfig {
		ticket.ConfiguredBy = &actor.ID
		ticket.ConfiguredAt = &now
	}

	if ticket.Clock.Phase == domain.PhaseNone {
		// The SLA profile was never snapshotted: the ticket arrived without
		// classification. The response clock is backdated to creation so
		// slow triage cannot hide consumed response time.
		if err := s.snapshotSLA(ctx, ticket, ticket.CreatedAt); err != nil {
			return nil, err
		}
		if err := s.alignClockToStatus(ctx, ticket, now); err != nil {
			return nil, err
		}
	}

	if len(auditEvents) == 0 && !firstConfig {
		return ticket, nil
	}
	if err := s.tickets.Update(ctx, ticket, auditEvents); err != nil {
		return nil, apperrors.MapError(err)
	}
	s.cache.Invalidate(ctx, ticket.ID)
	s.publish(ctx, events.Event{
		Type:     events.EventTicketFieldsEdited,
		TicketID: ticket.ID,
		Actor:    actor,
		Payload:  events.TicketFieldsEditedPayload{Fields: changed, Reason: input.Reason},
	})
	return ticket, nil
}

// Take moves a waiting/open ticket into EN_PROCESO for the acting
// technician, assigning it when unassigned. This is the response-phase
// boundary: the response clock freezes and the resolution clock starts.
func (s *TicketService) Take(ctx context.Context, actor domain.Actor, ticketID string) (*domain.Ticket, error) {
	unlock := s.locks.Lock(ticketID)
	defer unlock()

	ticket, err := s.getTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if ticket.Status != domain.StatusEspera && ticket.Status != domain.StatusAbierto {
		return nil, apperrors.NewInvalidTransition("ticket cannot be taken in its current state", statusDetails(ticket))
	}
	if !actor.IsTechnician() {
		return nil, apperrors.NewPermissionDenied("technician role required")
	}
	if ticket.AssigneeID != nil && !ticket.IsAssignedTo(actor.ID) && !actor.IsAdmin() {
		return nil, apperrors.NewInvalidTransition("ticket is assigned to another technician", statusDetails(ticket))
	}

	now := s.now()
	var auditEvents []*domain.AuditEvent

	if ticket.AssigneeID == nil {
		assignee := actor.ID
		ticket.AssigneeID = &assignee
		auditEvents = append(auditEvents, &domain.AuditEvent{
			Kind:     domain.AuditAsignacion,
			Field:    "tecnico_asignado",
			NewValue: &assignee,
			ActorID:  actor.ID,
		})
	} else if !ticket.IsAssignedTo(actor.ID) {
		// Admin override: whoever works the ticket becomes its assignee,
		// so EN_PROCESO always points at the acting technician.
		oldAssignee := ticket.AssigneeID
		assignee := actor.ID
		ticket.AssigneeID = &assignee
		auditEvents = append(auditEvents, &domain.AuditEvent{
			Kind:     domain.AuditReasignacion,
			Field:    "tecnico_asignado",
			OldValue: oldAssignee,
			NewValue: &assignee,
			ActorID:  actor.ID,
		})
	}

	oldStatus := ticket.Status
	ticket.Status = domain.StatusEnProceso
	auditEvents = append(auditEvents, statusEvent(oldStatus, ticket.Status, "", actor.ID))

	if ticket.SLA.Applies && ticket.Clock.Phase == domain.PhaseResponse {
		ticket.Clock.BeginResolution(now)
	}

	if err := s.tickets.Update(ctx, ticket, auditEvents); err != nil {
		return nil, apperrors.MapError(err)
	}
	s.cache.Invalidate(ctx, ticket.ID)
	s.publishStatusChange(ctx, actor, ticket, oldStatus, "")
	return ticket, nil
}

// Hold parks an in-progress ticket on the customer. The justification is
// mandatory; the SLA clock is not touched (pausing is a separate call).
func (s *TicketService) Hold(ctx context.Context, actor domain.Actor, ticketID, reason string) (*domain.Ticket, error) {
	if strings.TrimSpace(reason) == "" {
		return nil, apperrors.NewValidationError("reason is required", nil)
	}
	return s.simpleTransition(ctx, actor, ticketID, domain.StatusPendienteCliente, reason, nil)
}

// ResumeWork brings a customer-parked ticket back into EN_PROCESO.
func (s *TicketService) ResumeWork(ctx context.Context, actor domain.Actor, ticketID string) (*domain.Ticket, error) {
	return s.simpleTransition(ctx, actor, ticketID, domain.StatusEnProceso, "", nil)
}

// Resolve culminates an in-progress ticket. Requires a non-empty summary
// and an explicit component-change answer; portal-origin tickets must have
// been configured. Freezes the resolution clock.
func (s *TicketService) Resolve(ctx context.Context, actor domain.Actor, ticketID string, input TicketResolveInput) (*domain.Ticket, error) {
	summary := strings.TrimSpace(input.Summary)
	if summary == "" {
		return nil, apperrors.NewValidationError("resolution summary is required", nil)
	}
	if input.ComponentChanged == nil {
		return nil, apperrors.NewValidationError("component change question must be answered", nil)
	}

	unlock := s.locks.Lock(ticketID)
	defer unlock()

	ticket, err := s.getTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if ticket.Status != domain.StatusEnProceso {
		return nil, apperrors.NewInvalidTransition("only in-progress tickets can be resolved", statusDetails(ticket))
	}
	if !actor.IsTechnician() {
		return nil, apperrors.NewPermissionDenied("technician role required")
	}
	if !ticket.IsAssignedTo(actor.ID) && !actor.IsAdmin() {
		return nil, apperrors.NewInvalidTransition("only the assigned technician may resolve", statusDetails(ticket))
	}
	if ticket.Origin == domain.OriginPortal && !ticket.IsConfigured() {
		return nil, apperrors.NewValidationError("portal ticket must be configured before resolution", nil)
	}

	now := s.now()
	oldStatus := ticket.Status
	ticket.Status = domain.StatusResuelto
	ticket.ResolutionSummary = &summary
	ticket.ComponentChanged = input.ComponentChanged
	if ticket.Clock.Active() {
		ticket.Clock.Complete(now)
	}

	auditEvents := []*domain.AuditEvent{statusEvent(oldStatus, ticket.Status, summary, actor.ID)}
	if err := s.tickets.Update(ctx, ticket, auditEvents); err != nil {
		return nil, apperrors.MapError(err)
	}
	s.cache.Invalidate(ctx, ticket.ID)
	s.publishStatusChange(ctx, actor, ticket, oldStatus, summary)
	return ticket, nil
}

// Close archives a resolved ticket.
func (s *TicketService) Close(ctx context.Context, actor domain.Actor, ticketID string) (*domain.Ticket, error) {
	now := s.now()
	return s.simpleTransition(ctx, actor, ticketID, domain.StatusCerrado, "", func(ticket *domain.Ticket) {
		ticket.ClosedAt = &now
	})
}

// Cancel terminates a ticket from any non-terminal state. The reason is
// mandatory; cancellation is irreversible.
func (s *TicketService) Cancel(ctx context.Context, actor domain.Actor, ticketID, reason string) (*domain.Ticket, error) {
	if strings.TrimSpace(reason) == "" {
		return nil, apperrors.NewValidationError("cancellation reason is required", nil)
	}
	now := s.now()
	return s.simpleTransition(ctx, actor, ticketID, domain.StatusCancelado, reason, func(ticket *domain.Ticket) {
		ticket.ClosedAt = &now
		if ticket.Clock.Active() {
			ticket.Clock.Complete(now)
		}
	})
}

// Assign sets or changes the assigned technician without transitioning
// state. Admin only; a reassignment must name a different technician and,
// unlike cancellation or pausing, needs no reason.
func (s *TicketService) Assign(ctx context.Context, actor domain.Actor, ticketID, technicianID string) (*domain.Ticket, error) {
	if technicianID == "" {
		return nil, apperrors.NewValidationError("technician_id is required", nil)
	}
	if !actor.IsAdmin() {
		return nil, apperrors.NewPermissionDenied("administrator role required")
	}

	unlock := s.locks.Lock(ticketID)
	defer unlock()

	ticket, err := s.getTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if ticket.Status.IsTerminal() {
		return nil, apperrors.NewInvalidTransition("ticket is in a terminal state", statusDetails(ticket))
	}
	if ticket.IsAssignedTo(technicianID) {
		return nil, apperrors.NewAlreadyInRequestedState("ticket already assigned to that technician")
	}

	oldAssignee := ticket.AssigneeID
	ticket.AssigneeID = &technicianID

	kind := domain.AuditAsignacion
	if oldAssignee != nil {
		kind = domain.AuditReasignacion
	}
	event := &domain.AuditEvent{
		Kind:     kind,
		Field:    "tecnico_asignado",
		OldValue: oldAssignee,
		NewValue: &technicianID,
		ActorID:  actor.ID,
	}
	if err := s.tickets.Update(ctx, ticket, []*domain.AuditEvent{event}); err != nil {
		return nil, apperrors.MapError(err)
	}
	s.cache.Invalidate(ctx, ticket.ID)
	s.publish(ctx, events.Event{
		Type:     events.EventTicketAssigned,
		TicketID: ticket.ID,
		Actor:    actor,
		Payload: events.TicketAssignedPayload{
			OldAssigneeID: oldAssignee,
			NewAssigneeID: technicianID,
			Reassignment:  oldAssignee != nil,
		},
	})
	return ticket, nil
}

// EditFields updates title/description/impact/urgency with a mandatory
// reason. Each changed field yields one EDICION_CAMPO event; priority is
// recomputed atomically when impact or urgency changed, with a
// CAMBIO_PRIORIDAD event only when the derived value actually moved.
func (s *TicketService) EditFields(ctx context.Context, actor domain.Actor, ticketID string, input TicketEditInput, reason string) (*domain.Ticket, error) {
	if strings.TrimSpace(reason) == "" {
		return nil, apperrors.NewValidationError("edit reason is required", nil)
	}
	if !actor.IsTechnician() {
		return nil, apperrors.NewPermissionDenied("technician role required")
	}

	unlock := s.locks.Lock(ticketID)
	defer unlock()

	ticket, err := s.getTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if ticket.Status.IsTerminal() {
		return nil, apperrors.NewInvalidTransition("ticket is in a terminal state", statusDetails(ticket))
	}

	var auditEvents []*domain.AuditEvent
	var changed []string

	if input.Title != nil {
		title := strings.TrimSpace(*input.Title)
		if title == "" {
			return nil, apperrors.NewValidationError("title cannot be empty", nil)
		}
		if title != ticket.Title {
			auditEvents = append(auditEvents, fieldEvent("titulo", ticket.Title, title, reason, actor.ID))
			changed = append(changed, "titulo")
			ticket.Title = title
		}
	}
	if input.Description != nil {
		description := strings.TrimSpace(*input.Description)
		if description == "" {
			return nil, apperrors.NewValidationError("description cannot be empty", nil)
		}
		if description != ticket.Description {
			auditEvents = append(auditEvents, fieldEvent("descripcion", ticket.Description, description, reason, actor.ID))
			changed = append(changed, "descripcion")
			ticket.Description = description
		}
	}
	priorityInputsChanged := false
	if input.Impact != nil && *input.Impact != ticket.Impact {
		if !input.Impact.IsValid() {
			return nil, apperrors.NewValidationError("invalid impact", nil)
		}
		auditEvents = append(auditEvents, fieldEvent("impacto", string(ticket.Impact), string(*input.Impact), reason, actor.ID))
		changed = append(changed, "impacto")
		ticket.Impact = *input.Impact
		priorityInputsChanged = true
	}
	if input.Urgency != nil && *input.Urgency != ticket.Urgency {
		if !input.Urgency.IsValid() {
			return nil, apperrors.NewValidationError("invalid urgency", nil)
		}
		auditEvents = append(auditEvents, fieldEvent("urgencia", string(ticket.Urgency), string(*input.Urgency), reason, actor.ID))
		changed = append(changed, "urgencia")
		ticket.Urgency = *input.Urgency
		priorityInputsChanged = true
	}

	if len(auditEvents) == 0 {
		return nil, apperrors.NewValidationError("no field changes supplied", nil)
	}

	var priorityPayload *events.TicketPriorityChangedPayload
	if priorityInputsChanged && ticket.Impact != "" && ticket.Urgency != "" {
		priority, err := domain.CalculatePriority(ticket.Impact, ticket.Urgency)
		if err != nil {
			return nil, apperrors.NewValidationError(err.Error(), nil)
		}
		if priority != ticket.Priority {
			oldPriority := string(ticket.Priority)
			newPriority := string(priority)
			auditEvents = append(auditEvents, &domain.AuditEvent{
				Kind:     domain.AuditCambioPrioridad,
				OldValue: nilIfEmpty(oldPriority),
				NewValue: &newPriority,
				ActorID:  actor.ID,
			})
			priorityPayload = &events.TicketPriorityChangedPayload{
				OldPriority: ticket.Priority,
				NewPriority: priority,
			}
			ticket.Priority = priority
		}
	}

	if err := s.tickets.Update(ctx, ticket, auditEvents); err != nil {
		return nil, apperrors.MapError(err)
	}
	s.cache.Invalidate(ctx, ticket.ID)
	s.publish(ctx, events.Event{
		Type:     events.EventTicketFieldsEdited,
		TicketID: ticket.ID,
		Actor:    actor,
		Payload:  events.TicketFieldsEditedPayload{Fields: changed, Reason: reason},
	})
	if priorityPayload != nil {
		s.publish(ctx, events.Event{
			Type:     events.EventTicketPriorityChanged,
			TicketID: ticket.ID,
			Actor:    actor,
			Payload:  *priorityPayload,
		})
	}
	return ticket, nil
}

// PauseSLA stops the SLA clock with a mandatory justification. Ticket
// state is untouched; a ticket stays EN_PROCESO while its clock is paused.
func (s *TicketService) PauseSLA(ctx context.Context, actor domain.Actor, ticketID, reason string) (*domain.Ticket, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, apperrors.NewValidationError("pause reason is required", nil)
	}
	if !actor.IsTechnician() {
		return nil, apperrors.NewPermissionDenied("technician role required")
	}

	unlock := s.locks.Lock(ticketID)
	defer unlock()

	ticket, err := s.getTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if !ticket.IsAssignedTo(actor.ID) && !actor.IsAdmin() {
		return nil, apperrors.NewPermissionDenied("only the assigned technician may pause the clock")
	}
	if !ticket.SLA.Applies {
		return nil, apperrors.NewInvalidTransition("ticket has no SLA", statusDetails(ticket))
	}

	now := s.now()
	if err := ticket.Clock.Pause(now, reason); err != nil {
		return nil, mapClockError(err)
	}

	event := &domain.AuditEvent{
		Kind:    domain.AuditPausaSLA,
		Reason:  reason,
		ActorID: actor.ID,
	}
	if err := s.tickets.Update(ctx, ticket, []*domain.AuditEvent{event}); err != nil {
		return nil, apperrors.MapError(err)
	}
	s.cache.Invalidate(ctx, ticket.ID)
	s.publish(ctx, events.Event{
		Type:     events.EventSLAPaused,
		TicketID: ticket.ID,
		Actor:    actor,
		Payload:  events.SLAPausedPayload{Phase: ticket.Clock.Phase, Reason: reason},
	})
	return ticket, nil
}

// ResumeSLA closes the open pause interval and restarts the clock.
func (s *TicketService) ResumeSLA(ctx context.Context, actor domain.Actor, ticketID string) (*domain.Ticket, error) {
	if !actor.IsTechnician() {
		return nil, apperrors.NewPermissionDenied("technician role required")
	}

	unlock := s.locks.Lock(ticketID)
	defer unlock()

	ticket, err := s.getTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if !ticket.IsAssignedTo(actor.ID) && !actor.IsAdmin() {
		return nil, apperrors.NewPermissionDenied("only the assigned technician may resume the clock")
	}
	if !ticket.SLA.Applies {
		return nil, apperrors.NewInvalidTransition("ticket has no SLA", statusDetails(ticket))
	}

	now := s.now()
	var pausedMinutes float64
	if ticket.Clock.PauseStartedAt != nil {
		pausedMinutes = now.Sub(*ticket.Clock.PauseStartedAt).Minutes()
	}
	if err := ticket.Clock.Resume(now); err != nil {
		return nil, mapClockError(err)
	}

	event := &domain.AuditEvent{
		Kind:    domain.AuditReanudacionSLA,
		ActorID: actor.ID,
	}
	if err := s.tickets.Update(ctx, ticket, []*domain.AuditEvent{event}); err != nil {
		return nil, apperrors.MapError(err)
	}
	s.cache.Invalidate(ctx, ticket.ID)
	s.publish(ctx, events.Event{
		Type:     events.EventSLAResumed,
		TicketID: ticket.ID,
		Actor:    actor,
		Payload: events.SLAResumedPayload{
			Phase:        ticket.Clock.Phase,
			PausedMin:    pausedMinutes,
			ElapsedMin:   ticket.Clock.Elapsed(ticket.Clock.Phase, now),
			PercentageAt: ticket.Clock.Percentage(ticket.SLA, ticket.Clock.Phase, now),
		},
	})
	return ticket, nil
}

// AddComment appends a COMENTARIO event to the trail.
func (s *TicketService) AddComment(ctx context.Context, actor domain.Actor, ticketID, text string) (*domain.AuditEvent, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, apperrors.NewValidationError("comment text is required", nil)
	}

	unlock := s.locks.Lock(ticketID)
	defer unlock()

	ticket, err := s.getTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}

	event := &domain.AuditEvent{
		Kind:     domain.AuditComentario,
		NewValue: &text,
		ActorID:  actor.ID,
	}
	if err := s.tickets.AppendEvents(ctx, ticket.ID, []*domain.AuditEvent{event}); err != nil {
		return nil, apperrors.MapError(err)
	}
	s.cache.Invalidate(ctx, ticket.ID)
	s.publish(ctx, events.Event{
		Type:     events.EventTicketCommented,
		TicketID: ticket.ID,
		Actor:    actor,
		Payload:  events.TicketCommentedPayload{Preview: stringPreview(text, 120)},
	})
	return event, nil
}

// GetTicketView returns the read model with SLA numbers computed at server
// time. Views are served from the short-TTL cache when present.
func (s *TicketService) GetTicketView(ctx context.Context, ticketID string) (*TicketView, error) {
	if view, ok := s.cache.Get(ctx, ticketID); ok {
		return view, nil
	}

	view, err := s.buildView(ctx, ticketID, s.now())
	if err != nil {
		return nil, err
	}
	s.cache.Set(ctx, ticketID, view)
	return view, nil
}

// GetTicketViewAt computes the view at a caller-supplied instant. Such reads
// never touch the cache: a view computed at an arbitrary instant must not be
// served to, or stored for, pollers reading at server time.
func (s *TicketService) GetTicketViewAt(ctx context.Context, ticketID string, now time.Time) (*TicketView, error) {
	return s.buildView(ctx, ticketID, now)
}

func (s *TicketService) buildView(ctx context.Context, ticketID string, now time.Time) (*TicketView, error) {
	ticket, err := s.getTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	tail, err := s.audit.Tail(ctx, ticket.ID, s.historyTailSize)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return BuildTicketView(ticket, tail, now), nil
}

// GetHistory returns the full audit trail in append order, optionally
// filtered by kind.
func (s *TicketService) GetHistory(ctx context.Context, ticketID string, kinds []domain.AuditKind) ([]domain.AuditEvent, error) {
	if _, err := s.getTicket(ctx, ticketID); err != nil {
		return nil, err
	}
	history, err := s.audit.ListByTicket(ctx, ticketID, kinds)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return history, nil
}

// CanTransition exposes the state-machine guard as a query so any front end
// can decide which actions to offer.
func (s *TicketService) CanTransition(ctx context.Context, actor domain.Actor, ticketID string, target domain.TicketStatus) (bool, error) {
	ticket, err := s.getTicket(ctx, ticketID)
	if err != nil {
		return false, err
	}
	return domain.CanTransition(ticket, actor, target), nil
}

// simpleTransition handles the transitions whose only payload is an
// optional reason: hold, resume-work, close, cancel.
func (s *TicketService) simpleTransition(ctx context.Context, actor domain.Actor, ticketID string, target domain.TicketStatus, reason string, mutate func(*domain.Ticket)) (*domain.Ticket, error) {
	unlock := s.locks.Lock(ticketID)
	defer unlock()

	ticket, err := s.getTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if !domain.ValidTransition(ticket.Status, target) {
		return nil, apperrors.NewInvalidTransition("transition not allowed from current state", statusDetails(ticket))
	}
	if !domain.CanTransition(ticket, actor, target) {
		return nil, apperrors.NewPermissionDenied("actor may not perform this transition")
	}

	oldStatus := ticket.Status
	ticket.Status = target
	if mutate != nil {
		mutate(ticket)
	}

	auditEvents := []*domain.AuditEvent{statusEvent(oldStatus, target, reason, actor.ID)}
	if err := s.tickets.Update(ctx, ticket, auditEvents); err != nil {
		return nil, apperrors.MapError(err)
	}
	s.cache.Invalidate(ctx, ticket.ID)
	s.publishStatusChange(ctx, actor, ticket, oldStatus, reason)
	return ticket, nil
}

func (s *TicketService) snapshotSLA(ctx context.Context, ticket *domain.Ticket, responseStart time.Time) error {
	resolution, err := s.policy.Resolve(ctx, ticket.CompanyID, ticket.Priority)
	if err != nil {
		return err
	}
	if !resolution.Applies {
		ticket.SLA = domain.SLAProfile{Applies: false}
		ticket.Clock.Phase = domain.PhaseSinSLA
		return nil
	}
	ticket.SLA = domain.SLAProfile{
		Applies:           true,
		ResponseMinutes:   resolution.ResponseMinutes,
		ResolutionMinutes: resolution.ResolutionMinutes,
		AlertMarkers:      resolution.AlertMarkers,
	}
	ticket.Clock.StartResponse(responseStart)
	return nil
}

// alignClockToStatus advances a freshly snapshotted clock past the phase
// boundaries the ticket already crossed while unconfigured. A portal ticket
// can be taken before configuration; its response phase ended when work
// started, not when the classification was finally filled in. Boundary
// instants come from the audit trail, falling back to now.
func (s *TicketService) alignClockToStatus(ctx context.Context, ticket *domain.Ticket, now time.Time) error {
	if ticket.Clock.Phase != domain.PhaseResponse {
		return nil
	}
	switch ticket.Status {
	case domain.StatusEnProceso, domain.StatusPendienteCliente, domain.StatusResuelto:
	default:
		return nil
	}

	changes, err := s.audit.ListByTicket(ctx, ticket.ID, []domain.AuditKind{domain.AuditCambioEstado})
	if err != nil {
		return apperrors.MapError(err)
	}
	ticket.Clock.BeginResolution(statusChangeTime(changes, domain.StatusEnProceso, now))
	if ticket.Status == domain.StatusResuelto {
		ticket.Clock.Complete(statusChangeTime(changes, domain.StatusResuelto, now))
	}
	return nil
}

func statusChangeTime(changes []domain.AuditEvent, target domain.TicketStatus, fallback time.Time) time.Time {
	for _, event := range changes {
		if event.NewValue != nil && *event.NewValue == string(target) {
			return event.CreatedAt
		}
	}
	return fallback
}

func (s *TicketService) getTicket(ctx context.Context, ticketID string) (*domain.Ticket, error) {
	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("ticket", map[string]any{"ticket_id": ticketID})
		}
		return nil, apperrors.MapError(err)
	}
	return ticket, nil
}

func (s *TicketService) publish(ctx context.Context, event events.Event) {
	if s.dispatcher == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = s.now()
	}
	_ = s.dispatcher.Publish(ctx, event)
}

func (s *TicketService) publishStatusChange(ctx context.Context, actor domain.Actor, ticket *domain.Ticket, oldStatus domain.TicketStatus, reason string) {
	s.publish(ctx, events.Event{
		Type:     events.EventTicketStatusChanged,
		TicketID: ticket.ID,
		Actor:    actor,
		Payload: events.TicketStatusChangedPayload{
			OldStatus: oldStatus,
			NewStatus: ticket.Status,
			Reason:    reason,
			SLAPhase:  ticket.Clock.Phase,
		},
	})
}

func statusEvent(oldStatus, newStatus domain.TicketStatus, reason, actorID string) *domain.AuditEvent {
	oldValue := string(oldStatus)
	newValue := string(newStatus)
	return &domain.AuditEvent{
		Kind:     domain.AuditCambioEstado,
		Field:    "estado",
		OldValue: &oldValue,
		NewValue: &newValue,
		Reason:   reason,
		ActorID:  actorID,
	}
}

func fieldEvent(field, oldValue, newValue, reason, actorID string) *domain.AuditEvent {
	return &domain.AuditEvent{
		Kind:     domain.AuditEdicionCampo,
		Field:    field,
		OldValue: nilIfEmpty(oldValue),
		NewValue: &newValue,
		Reason:   reason,
		ActorID:  actorID,
	}
}

func mapClockError(err error) error {
	switch {
	case errors.Is(err, domain.ErrClockPaused):
		return apperrors.NewAlreadyInRequestedState("sla clock already paused")
	case errors.Is(err, domain.ErrClockNotPaused):
		return apperrors.NewAlreadyInRequestedState("sla clock is not paused")
	case errors.Is(err, domain.ErrClockInactive):
		return apperrors.NewInvalidTransition("sla clock has no active phase", nil)
	}
	return apperrors.MapError(err)
}

func statusDetails(ticket *domain.Ticket) map[string]any {
	return map[string]any{"status": ticket.Status}
}

func nilIfEmpty(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}

func stringPreview(body string, max int) string {
	body = strings.TrimSpace(body)
	if len(body) <= max {
		return body
	}
	if max <= 3 {
		return body[:max]
	}
	return body[:max-3] + "..."
}
