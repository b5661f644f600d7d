package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/mesaservicio/ticket-engine/internal/api/dto"
	"github.com/mesaservicio/ticket-engine/internal/auth"
	"github.com/mesaservicio/ticket-engine/internal/domain"
	"github.com/mesaservicio/ticket-engine/internal/service"
	apperrors "github.com/mesaservicio/ticket-engine/pkg/util/errorutil"
)

// TicketsHandler exposes the ticket lifecycle endpoints.
type TicketsHandler struct {
	service *service.TicketService
}

// NewTicketsHandler constructs handler.
func NewTicketsHandler(ticketService *service.TicketService) *TicketsHandler {
	return &TicketsHandler{service: ticketService}
}

// CreateTicket POST /tickets.
func (h *TicketsHandler) CreateTicket(c *fiber.Ctx) error {
	actor, ok := auth.ActorFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	var req dto.CreateTicketRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}

	input := service.TicketCreateInput{
		CompanyID:   req.CompanyID,
		Title:       req.Title,
		Description: req.Description,
		Origin:      req.Origin,
		Type:        req.Type,
		Category:    req.Category,
		Subcategory: req.Subcategory,
		Service:     req.Service,
		Modality:    req.Modality,
		Impact:      req.Impact,
		Urgency:     req.Urgency,
		AssigneeID:  req.AssigneeID,
		Attachments: req.Attachments,
		AssetIDs:    req.AssetIDs,
		ReporterIDs: req.ReporterIDs,
	}
	ticket, err := h.service.CreateTicket(c.UserContext(), actor, input)
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": ticketSummary(ticket)})
}

// ConfigureTicket POST /tickets/:id/configure.
func (h *TicketsHandler) ConfigureTicket(c *fiber.Ctx) error {
	actor, ok := auth.ActorFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	var req dto.ConfigureTicketRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	ticket, err := h.service.Configure(c.UserContext(), actor, c.Params("id"), service.TicketConfigureInput{
		Type:        req.Type,
		Category:    req.Category,
		Subcategory: req.Subcategory,
		Service:     req.Service,
		Modality:    req.Modality,
		Impact:      req.Impact,
		Urgency:     req.Urgency,
		Reason:      req.Reason,
	})
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketSummary(ticket)})
}

// TakeTicket POST /tickets/:id/take.
func (h *TicketsHandler) TakeTicket(c *fiber.Ctx) error {
	actor, ok := auth.ActorFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	ticket, err := h.service.Take(c.UserContext(), actor, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketSummary(ticket)})
}

// HoldTicket POST /tickets/:id/hold.
func (h *TicketsHandler) HoldTicket(c *fiber.Ctx) error {
	actor, ok := auth.ActorFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	var req dto.ReasonRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	ticket, err := h.service.Hold(c.UserContext(), actor, c.Params("id"), req.Reason)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketSummary(ticket)})
}

// ResumeWork POST /tickets/:id/resume-work.
func (h *TicketsHandler) ResumeWork(c *fiber.Ctx) error {
	actor, ok := auth.ActorFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	ticket, err := h.service.ResumeWork(c.UserContext(), actor, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketSummary(ticket)})
}

// ResolveTicket POST /tickets/:id/resolve.
func (h *TicketsHandler) ResolveTicket(c *fiber.Ctx) error {
	actor, ok := auth.ActorFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	var req dto.ResolveTicketRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	ticket, err := h.service.Resolve(c.UserContext(), actor, c.Params("id"), service.TicketResolveInput{
		Summary:          req.Summary,
		ComponentChanged: req.ComponentChanged,
	})
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketSummary(ticket)})
}

// CloseTicket POST /tickets/:id/close.
func (h *TicketsHandler) CloseTicket(c *fiber.Ctx) error {
	actor, ok := auth.ActorFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	ticket, err := h.service.Close(c.UserContext(), actor, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketSummary(ticket)})
}

// CancelTicket POST /tickets/:id/cancel.
func (h *TicketsHandler) CancelTicket(c *fiber.Ctx) error {
	actor, ok := auth.ActorFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	var req dto.ReasonRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	ticket, err := h.service.Cancel(c.UserContext(), actor, c.Params("id"), req.Reason)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketSummary(ticket)})
}

// AssignTicket POST /tickets/:id/assign.
func (h *TicketsHandler) AssignTicket(c *fiber.Ctx) error {
	actor, ok := auth.ActorFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	var req dto.AssignTicketRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	ticket, err := h.service.Assign(c.UserContext(), actor, c.Params("id"), req.TechnicianID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketSummary(ticket)})
}

// EditTicket PATCH /tickets/:id.
func (h *TicketsHandler) EditTicket(c *fiber.Ctx) error {
	actor, ok := auth.ActorFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	var req dto.EditTicketRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	ticket, err := h.service.EditFields(c.UserContext(), actor, c.Params("id"), service.TicketEditInput{
		Title:       req.Title,
		Description: req.Description,
		Impact:      req.Impact,
		Urgency:     req.Urgency,
	}, req.Reason)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketSummary(ticket)})
}

// PauseSLA POST /tickets/:id/sla/pause.
func (h *TicketsHandler) PauseSLA(c *fiber.Ctx) error {
	actor, ok := auth.ActorFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	var req dto.ReasonRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	ticket, err := h.service.PauseSLA(c.UserContext(), actor, c.Params("id"), req.Reason)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketSummary(ticket)})
}

// ResumeSLA POST /tickets/:id/sla/resume.
func (h *TicketsHandler) ResumeSLA(c *fiber.Ctx) error {
	actor, ok := auth.ActorFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	ticket, err := h.service.ResumeSLA(c.UserContext(), actor, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketSummary(ticket)})
}

// AddComment POST /tickets/:id/comments.
func (h *TicketsHandler) AddComment(c *fiber.Ctx) error {
	actor, ok := auth.ActorFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	var req dto.CommentRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	event, err := h.service.AddComment(c.UserContext(), actor, c.Params("id"), req.Text)
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": historyEventResponse(event)})
}

// GetTicket GET /tickets/:id. The view's SLA numbers are computed at the
// optional now query parameter (RFC3339), defaulting to server time.
// Explicit-instant reads skip the view cache.
func (h *TicketsHandler) GetTicket(c *fiber.Ctx) error {
	if _, ok := auth.ActorFromContext(c); !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	var (
		view *service.TicketView
		err  error
	)
	if raw := c.Query("now"); raw != "" {
		parsed, parseErr := time.Parse(time.RFC3339, raw)
		if parseErr != nil {
			return apperrors.NewValidationError("now must be RFC3339", nil)
		}
		view, err = h.service.GetTicketViewAt(c.UserContext(), c.Params("id"), parsed)
	} else {
		view, err = h.service.GetTicketView(c.UserContext(), c.Params("id"))
	}
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": view})
}

// GetHistory GET /tickets/:id/history?kind=CAMBIO_ESTADO,COMENTARIO.
func (h *TicketsHandler) GetHistory(c *fiber.Ctx) error {
	if _, ok := auth.ActorFromContext(c); !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	var kinds []domain.AuditKind
	if raw := c.Query("kind"); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			kind := domain.AuditKind(strings.TrimSpace(part))
			if !kind.IsValid() {
				return apperrors.NewValidationError("unknown audit kind: "+string(kind), nil)
			}
			kinds = append(kinds, kind)
		}
	}
	history, err := h.service.GetHistory(c.UserContext(), c.Params("id"), kinds)
	if err != nil {
		return err
	}
	items := make([]dto.HistoryEventResponse, 0, len(history))
	for i := range history {
		items = append(items, historyEventResponse(&history[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// CanTransition GET /tickets/:id/can-transition?target=EN_PROCESO.
func (h *TicketsHandler) CanTransition(c *fiber.Ctx) error {
	actor, ok := auth.ActorFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	target := domain.TicketStatus(c.Query("target"))
	if target == "" {
		return apperrors.NewValidationError("target query parameter is required", nil)
	}
	allowed, err := h.service.CanTransition(c.UserContext(), actor, c.Params("id"), target)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.CanTransitionResponse{Target: target, Allowed: allowed}})
}

func ticketSummary(ticket *domain.Ticket) dto.TicketSummary {
	return dto.TicketSummary{
		ID:         ticket.ID,
		Code:       ticket.Code,
		Title:      ticket.Title,
		Status:     ticket.Status,
		Priority:   ticket.Priority,
		Origin:     ticket.Origin,
		CompanyID:  ticket.CompanyID,
		AssigneeID: ticket.AssigneeID,
		SLApplies:  ticket.SLA.Applies,
		SLAPhase:   ticket.Clock.Phase,
		SLAPaused:  ticket.Clock.Paused,
		CreatedAt:  ticket.CreatedAt,
		UpdatedAt:  ticket.UpdatedAt,
		ClosedAt:   ticket.ClosedAt,
	}
}

func historyEventResponse(event *domain.AuditEvent) dto.HistoryEventResponse {
	return dto.HistoryEventResponse{
		ID:        event.ID,
		Seq:       event.Seq,
		Kind:      event.Kind,
		Field:     event.Field,
		OldValue:  event.OldValue,
		NewValue:  event.NewValue,
		Reason:    event.Reason,
		ActorID:   event.ActorID,
		CreatedAt: event.CreatedAt,
	}
}
