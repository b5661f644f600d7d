package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/mesaservicio/ticket-engine/internal/api/http/handlers"
	"github.com/mesaservicio/ticket-engine/internal/auth"
	"github.com/mesaservicio/ticket-engine/internal/domain"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Tickets        *handlers.TicketsHandler
	AuthMiddleware *auth.AuthMiddleware
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)

	tickets := app.Group("/tickets", cfg.AuthMiddleware.Handle, auth.RequireRole())
	tickets.Post("", cfg.Tickets.CreateTicket)
	tickets.Get("/:id", cfg.Tickets.GetTicket)
	tickets.Get("/:id/history", cfg.Tickets.GetHistory)
	tickets.Get("/:id/can-transition", cfg.Tickets.CanTransition)
	tickets.Post("/:id/comments", cfg.Tickets.AddComment)

	technician := tickets.Group("", auth.RequireTechnician())
	technician.Post("/:id/configure", cfg.Tickets.ConfigureTicket)
	technician.Post("/:id/take", cfg.Tickets.TakeTicket)
	technician.Post("/:id/hold", cfg.Tickets.HoldTicket)
	technician.Post("/:id/resume-work", cfg.Tickets.ResumeWork)
	technician.Post("/:id/resolve", cfg.Tickets.ResolveTicket)
	technician.Patch("/:id", cfg.Tickets.EditTicket)
	technician.Post("/:id/sla/pause", cfg.Tickets.PauseSLA)
	technician.Post("/:id/sla/resume", cfg.Tickets.ResumeSLA)

	// Close is creator-or-admin and cancel is role-dependent per state, so
	// the fine-grained guard lives in the service layer.
	tickets.Post("/:id/close", cfg.Tickets.CloseTicket)
	tickets.Post("/:id/cancel", cfg.Tickets.CancelTicket)

	admin := tickets.Group("", auth.RequireRole(domain.RoleAdmin))
	admin.Post("/:id/assign", cfg.Tickets.AssignTicket)
}
