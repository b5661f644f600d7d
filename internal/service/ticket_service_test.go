package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesaservicio/ticket-engine/internal/domain"
	apperrors "github.com/mesaservicio/ticket-engine/pkg/util/errorutil"
)

var baseTime = time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

// fakeStore is an in-memory TicketRepository + AuditRepository sharing one
// event log, mirroring the transactional coupling of the real store.
type fakeStore struct {
	tickets  map[string]*domain.Ticket
	events   map[string][]*domain.AuditEvent
	codeSeq  map[string]int64
	idSeq    int
	clock    func() time.Time
	failNext error
}

func newFakeStore(clock func() time.Time) *fakeStore {
	return &fakeStore{
		tickets: map[string]*domain.Ticket{},
		events:  map[string][]*domain.AuditEvent{},
		codeSeq: map[string]int64{},
		clock:   clock,
	}
}

func (s *fakeStore) Create(_ context.Context, ticket *domain.Ticket, event *domain.AuditEvent) error {
	if s.failNext != nil {
		err := s.failNext
		s.failNext = nil
		return err
	}
	s.idSeq++
	ticket.ID = fmt.Sprintf("t-%03d", s.idSeq)
	ticket.CreatedAt = s.clock()
	ticket.UpdatedAt = ticket.CreatedAt
	stored := *ticket
	s.tickets[ticket.ID] = &stored
	return s.append(ticket.ID, []*domain.AuditEvent{event})
}

func (s *fakeStore) Update(_ context.Context, ticket *domain.Ticket, events []*domain.AuditEvent) error {
	if s.failNext != nil {
		err := s.failNext
		s.failNext = nil
		return err
	}
	if _, ok := s.tickets[ticket.ID]; !ok {
		return pgx.ErrNoRows
	}
	ticket.UpdatedAt = s.clock()
	stored := *ticket
	s.tickets[ticket.ID] = &stored
	return s.append(ticket.ID, events)
}

func (s *fakeStore) AppendEvents(_ context.Context, ticketID string, events []*domain.AuditEvent) error {
	if _, ok := s.tickets[ticketID]; !ok {
		return pgx.ErrNoRows
	}
	return s.append(ticketID, events)
}

func (s *fakeStore) append(ticketID string, events []*domain.AuditEvent) error {
	seq := int64(len(s.events[ticketID]))
	for _, event := range events {
		seq++
		event.TicketID = ticketID
		event.Seq = seq
		event.ID = fmt.Sprintf("e-%s-%d", ticketID, seq)
		event.CreatedAt = s.clock()
		s.events[ticketID] = append(s.events[ticketID], event)
	}
	return nil
}

func (s *fakeStore) GetByID(_ context.Context, id string) (*domain.Ticket, error) {
	stored, ok := s.tickets[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	copied := *stored
	return &copied, nil
}

func (s *fakeStore) GetByCode(_ context.Context, code string) (*domain.Ticket, error) {
	for _, ticket := range s.tickets {
		if ticket.Code == code {
			copied := *ticket
			return &copied, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (s *fakeStore) NextCode(_ context.Context, origin domain.TicketOrigin, year int) (string, error) {
	key := fmt.Sprintf("%s-%d", origin, year)
	s.codeSeq[key]++
	return fmt.Sprintf("TCK-INT-%d-%06d", year, s.codeSeq[key]), nil
}

func (s *fakeStore) ListByTicket(_ context.Context, ticketID string, kinds []domain.AuditKind) ([]domain.AuditEvent, error) {
	var result []domain.AuditEvent
	for _, event := range s.events[ticketID] {
		if len(kinds) > 0 && !containsKind(kinds, event.Kind) {
			continue
		}
		result = append(result, *event)
	}
	return result, nil
}

func (s *fakeStore) Tail(_ context.Context, ticketID string, limit int) ([]domain.AuditEvent, error) {
	all, _ := s.ListByTicket(context.Background(), ticketID, nil)
	if len(all) > limit {
		all = all[len(all)-limit:]
	}
	return all, nil
}

func containsKind(kinds []domain.AuditKind, kind domain.AuditKind) bool {
	for _, k := range kinds {
		if k == kind {
			return true
		}
	}
	return false
}

// fakeContracts backs the policy resolver.
type fakeContracts struct {
	contract *domain.CompanyContract
	err      error
}

func (f *fakeContracts) GetContract(context.Context, string) (*domain.CompanyContract, error) {
	if f.err != nil {
		return nil, f.err
	}
	if f.contract == nil {
		return nil, pgx.ErrNoRows
	}
	return f.contract, nil
}

func activeContract() *domain.CompanyContract {
	return &domain.CompanyContract{
		CompanyID:          "acme",
		State:              domain.ContractActivo,
		ConfiguredSections: domain.SLAConfigSections,
		Budgets: map[domain.Priority]domain.SLABudget{
			domain.PriorityCritica: {ResponseMinutes: 30, ResolutionMinutes: 240},
			domain.PriorityAlta:    {ResponseMinutes: 60, ResolutionMinutes: 480},
			domain.PriorityMedia:   {ResponseMinutes: 120, ResolutionMinutes: 960},
			domain.PriorityBaja:    {ResponseMinutes: 240, ResolutionMinutes: 1920},
		},
	}
}

type fixture struct {
	svc   *TicketService
	store *fakeStore
	now   time.Time
}

func newFixture(t *testing.T, contracts *fakeContracts) *fixture {
	t.Helper()
	fx := &fixture{now: baseTime}
	fx.store = newFakeStore(func() time.Time { return fx.now })
	fx.svc = NewTicketService(TicketDependencies{
		TicketRepo:      fx.store,
		AuditRepo:       fx.store,
		Policy:          NewPolicyResolver(contracts),
		HistoryTailSize: 20,
		Now:             func() time.Time { return fx.now },
	})
	return fx
}

func (fx *fixture) advance(d time.Duration) {
	fx.now = fx.now.Add(d)
}

var (
	admin      = domain.Actor{ID: "adm-1", Role: domain.RoleAdmin}
	technician = domain.Actor{ID: "tec-1", Role: domain.RoleTecnico}
	otherTech  = domain.Actor{ID: "tec-2", Role: domain.RoleTecnico}
	endUser    = domain.Actor{ID: "usr-1", Role: domain.RoleUsuario}
)

func configuredInput() TicketCreateInput {
	return TicketCreateInput{
		CompanyID:   "acme",
		Title:       "Impresora sin red",
		Description: "La impresora de planta no responde",
		Origin:      domain.OriginInterno,
		Type:        "INCIDENTE",
		Category:    "HARDWARE",
		Subcategory: "IMPRESORA",
		Service:     "SOPORTE_EN_SITIO",
		Modality:    domain.ModalityEnSitio,
		Impact:      domain.ImpactAlto,
		Urgency:     domain.UrgencyAlta,
	}
}

func TestCreateTicketSnapshotsSLAAndStartsResponse(t *testing.T) {
	fx := newFixture(t, &fakeContracts{contract: activeContract()})

	ticket, err := fx.svc.CreateTicket(context.Background(), endUser, configuredInput())
	require.NoError(t, err)

	assert.Equal(t, domain.StatusEspera, ticket.Status)
	assert.Equal(t, domain.PriorityAlta, ticket.Priority)
	assert.True(t, ticket.SLA.Applies)
	assert.Equal(t, 60, ticket.SLA.ResponseMinutes)
	assert.Equal(t, domain.PhaseResponse, ticket.Clock.Phase)
	require.NotNil(t, ticket.Clock.ResponseStartedAt)
	assert.Equal(t, baseTime, *ticket.Clock.ResponseStartedAt)
	assert.Contains(t, ticket.Code, "TCK-INT-2026-")

	events := fx.store.events[ticket.ID]
	require.Len(t, events, 1)
	assert.Equal(t, domain.AuditCreacion, events[0].Kind)
	assert.Equal(t, endUser.ID, events[0].ActorID)
}

func TestCreateTicketPreAssignmentIsAdminOnly(t *testing.T) {
	fx := newFixture(t, &fakeContracts{contract: activeContract()})
	assignee := "tec-1"

	input := configuredInput()
	input.AssigneeID = &assignee

	_, err := fx.svc.CreateTicket(context.Background(), technician, input)
	require.Error(t, err)
	assert.Equal(t, apperrors.CodePermissionDenied, apperrors.ToDomainError(err).Code)

	ticket, err := fx.svc.CreateTicket(context.Background(), admin, input)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusAbierto, ticket.Status)
}

func TestCreateTicketPortalWithoutClassification(t *testing.T) {
	fx := newFixture(t, &fakeContracts{contract: activeContract()})

	ticket, err := fx.svc.CreateTicket(context.Background(), endUser, TicketCreateInput{
		CompanyID:   "acme",
		Title:       "No puedo entrar al correo",
		Description: "Error de credenciales desde ayer",
		Origin:      domain.OriginPortal,
	})
	require.NoError(t, err)

	assert.False(t, ticket.SLA.Applies)
	assert.Equal(t, domain.PhaseNone, ticket.Clock.Phase)
	assert.False(t, ticket.IsConfigured())
}

func TestCreateTicketNoSLAWhenContractInactive(t *testing.T) {
	contract := activeContract()
	contract.State = domain.ContractVencido
	fx := newFixture(t, &fakeContracts{contract: contract})

	ticket, err := fx.svc.CreateTicket(context.Background(), endUser, configuredInput())
	require.NoError(t, err)

	assert.False(t, ticket.SLA.Applies)
	assert.Equal(t, domain.PhaseSinSLA, ticket.Clock.Phase)
}

func TestCreateTicketPolicyUnavailable(t *testing.T) {
	fx := newFixture(t, &fakeContracts{err: fmt.Errorf("connection refused")})

	_, err := fx.svc.CreateTicket(context.Background(), endUser, configuredInput())
	require.Error(t, err)
	assert.Equal(t, apperrors.CodePolicyUnavailable, apperrors.ToDomainError(err).Code)
}

func TestConfigureBackdatesResponseStart(t *testing.T) {
	fx := newFixture(t, &fakeContracts{contract: activeContract()})

	ticket, err := fx.svc.CreateTicket(context.Background(), endUser, TicketCreateInput{
		CompanyID:   "acme",
		Title:       "Portal: pantalla azul",
		Description: "El equipo se reinicia solo",
		Origin:      domain.OriginPortal,
	})
	require.NoError(t, err)
	createdAt := ticket.CreatedAt

	fx.advance(30 * time.Minute)
	ticket, err = fx.svc.Configure(context.Background(), technician, ticket.ID, TicketConfigureInput{
		Type:        "INCIDENTE",
		Category:    "HARDWARE",
		Subcategory: "EQUIPO",
		Service:     "SOPORTE_REMOTO",
		Modality:    domain.ModalityRemoto,
		Impact:      domain.ImpactMedio,
		Urgency:     domain.UrgencyMedia,
	})
	require.NoError(t, err)

	assert.True(t, ticket.SLA.Applies)
	assert.Equal(t, domain.PhaseResponse, ticket.Clock.Phase)
	require.NotNil(t, ticket.Clock.ResponseStartedAt)
	// The response clock starts at creation, not at configuration, so slow
	// triage cannot hide consumed response time.
	assert.Equal(t, createdAt, *ticket.Clock.ResponseStartedAt)
	assert.InDelta(t, 30, ticket.Clock.Elapsed(domain.PhaseResponse, fx.now), 0.001)

	require.NotNil(t, ticket.ConfiguredBy)
	assert.Equal(t, technician.ID, *ticket.ConfiguredBy)

	events := fx.store.events[ticket.ID]
	var fieldEdits int
	for _, event := range events {
		if event.Kind == domain.AuditEdicionCampo {
			fieldEdits++
		}
	}
	assert.Equal(t, 7, fieldEdits)
}

func TestConfigureAfterTakeAlignsClockPhases(t *testing.T) {
	fx := newFixture(t, &fakeContracts{contract: activeContract()})

	ticket, err := fx.svc.CreateTicket(context.Background(), endUser, TicketCreateInput{
		CompanyID:   "acme",
		Title:       "Portal: disco lleno",
		Description: "El servidor de archivos no deja guardar",
		Origin:      domain.OriginPortal,
	})
	require.NoError(t, err)

	fx.advance(10 * time.Minute)
	ticket, err = fx.svc.Take(context.Background(), technician, ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusEnProceso, ticket.Status)
	assert.Equal(t, domain.PhaseNone, ticket.Clock.Phase)

	fx.advance(5 * time.Minute)
	ticket, err = fx.svc.Configure(context.Background(), technician, ticket.ID, TicketConfigureInput{
		Type:        "INCIDENTE",
		Category:    "INFRAESTRUCTURA",
		Subcategory: "ALMACENAMIENTO",
		Service:     "SOPORTE_REMOTO",
		Modality:    domain.ModalityRemoto,
		Impact:      domain.ImpactAlto,
		Urgency:     domain.UrgencyAlta,
	})
	require.NoError(t, err)

	// The ticket is already being worked: the response phase ended at the
	// take, and the resolution clock runs from there.
	assert.Equal(t, domain.PhaseResolution, ticket.Clock.Phase)
	require.NotNil(t, ticket.Clock.ResponseElapsedMin)
	assert.InDelta(t, 10, *ticket.Clock.ResponseElapsedMin, 0.001)
	require.NotNil(t, ticket.Clock.ResolutionStartedAt)
	assert.Equal(t, baseTime.Add(10*time.Minute), *ticket.Clock.ResolutionStartedAt)
	assert.InDelta(t, 5, ticket.Clock.Elapsed(domain.PhaseResolution, fx.now), 0.001)

	fx.advance(20 * time.Minute)
	componentChanged := false
	ticket, err = fx.svc.Resolve(context.Background(), technician, ticket.ID, TicketResolveInput{
		Summary:          "Se depuraron los logs antiguos",
		ComponentChanged: &componentChanged,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.PhaseCompleted, ticket.Clock.Phase)
	require.NotNil(t, ticket.Clock.ResolutionElapsedMin)
	assert.InDelta(t, 25, *ticket.Clock.ResolutionElapsedMin, 0.001)
	assert.InDelta(t, 10, *ticket.Clock.ResponseElapsedMin, 0.001)
}

func TestConfigureRequiresTechnician(t *testing.T) {
	fx := newFixture(t, &fakeContracts{contract: activeContract()})
	ticket, err := fx.svc.CreateTicket(context.Background(), endUser, configuredInput())
	require.NoError(t, err)

	_, err = fx.svc.Configure(context.Background(), endUser, ticket.ID, TicketConfigureInput{})
	require.Error(t, err)
	assert.Equal(t, apperrors.CodePermissionDenied, apperrors.ToDomainError(err).Code)
}

func TestTakeAssignsAndBeginsResolution(t *testing.T) {
	fx := newFixture(t, &fakeContracts{contract: activeContract()})
	ticket, err := fx.svc.CreateTicket(context.Background(), endUser, configuredInput())
	require.NoError(t, err)

	fx.advance(45 * time.Minute)
	ticket, err = fx.svc.Take(context.Background(), technician, ticket.ID)
	require.NoError(t, err)

	assert.Equal(t, domain.StatusEnProceso, ticket.Status)
	require.NotNil(t, ticket.AssigneeID)
	assert.Equal(t, technician.ID, *ticket.AssigneeID)
	assert.Equal(t, domain.PhaseResolution, ticket.Clock.Phase)
	require.NotNil(t, ticket.Clock.ResponseElapsedMin)
	assert.InDelta(t, 45, *ticket.Clock.ResponseElapsedMin, 0.001)

	events := fx.store.events[ticket.ID]
	require.Len(t, events, 3)
	assert.Equal(t, domain.AuditAsignacion, events[1].Kind)
	assert.Equal(t, domain.AuditCambioEstado, events[2].Kind)
}

func TestTakeRejectsWhenAssignedToAnother(t *testing.T) {
	fx := newFixture(t, &fakeContracts{contract: activeContract()})
	assignee := technician.ID
	input := configuredInput()
	input.AssigneeID = &assignee

	ticket, err := fx.svc.CreateTicket(context.Background(), admin, input)
	require.NoError(t, err)

	_, err = fx.svc.Take(context.Background(), otherTech, ticket.ID)
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeInvalidTransition, apperrors.ToDomainError(err).Code)
}

func TestTakeByAdminReassignsToSelf(t *testing.T) {
	fx := newFixture(t, &fakeContracts{contract: activeContract()})
	assignee := technician.ID
	input := configuredInput()
	input.AssigneeID = &assignee

	ticket, err := fx.svc.CreateTicket(context.Background(), admin, input)
	require.NoError(t, err)

	ticket, err = fx.svc.Take(context.Background(), admin, ticket.ID)
	require.NoError(t, err)

	assert.Equal(t, domain.StatusEnProceso, ticket.Status)
	require.NotNil(t, ticket.AssigneeID)
	assert.Equal(t, admin.ID, *ticket.AssigneeID)

	events := fx.store.events[ticket.ID]
	require.Len(t, events, 3)
	assert.Equal(t, domain.AuditReasignacion, events[1].Kind)
	assert.Equal(t, technician.ID, *events[1].OldValue)
	assert.Equal(t, admin.ID, *events[1].NewValue)
	assert.Equal(t, domain.AuditCambioEstado, events[2].Kind)
}

func TestTakeRejectsEndUser(t *testing.T) {
	fx := newFixture(t, &fakeContracts{contract: activeContract()})
	ticket, err := fx.svc.CreateTicket(context.Background(), endUser, configuredInput())
	require.NoError(t, err)

	_, err = fx.svc.Take(context.Background(), endUser, ticket.ID)
	require.Error(t, err)
	assert.Equal(t, apperrors.CodePermissionDenied, apperrors.ToDomainError(err).Code)
}

func TestHoldAndResumeWork(t *testing.T) {
	fx := newFixture(t, &fakeContracts{contract: activeContract()})
	ticket, err := fx.svc.CreateTicket(context.Background(), endUser, configuredInput())
	require.NoError(t, err)
	_, err = fx.svc.Take(context.Background(), technician, ticket.ID)
	require.NoError(t, err)

	_, err = fx.svc.Hold(context.Background(), technician, ticket.ID, "")
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeValidationFailed, apperrors.ToDomainError(err).Code)

	ticket, err = fx.svc.Hold(context.Background(), technician, ticket.ID, "esperando repuesto del cliente")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPendienteCliente, ticket.Status)
	// Holding for the customer does not touch the clock.
	assert.Equal(t, domain.PhaseResolution, ticket.Clock.Phase)

	ticket, err = fx.svc.ResumeWork(context.Background(), technician, ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusEnProceso, ticket.Status)
}

func TestResolveValidations(t *testing.T) {
	fx := newFixture(t, &fakeContracts{contract: activeContract()})
	ticket, err := fx.svc.CreateTicket(context.Background(), endUser, configuredInput())
	require.NoError(t, err)
	_, err = fx.svc.Take(context.Background(), technician, ticket.ID)
	require.NoError(t, err)

	componentChanged := false

	_, err = fx.svc.Resolve(context.Background(), technician, ticket.ID, TicketResolveInput{ComponentChanged: &componentChanged})
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeValidationFailed, apperrors.ToDomainError(err).Code)

	_, err = fx.svc.Resolve(context.Background(), technician, ticket.ID, TicketResolveInput{Summary: "Se reinstalo el driver"})
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeValidationFailed, apperrors.ToDomainError(err).Code)

	fx.advance(90 * time.Minute)
	ticket, err = fx.svc.Resolve(context.Background(), technician, ticket.ID, TicketResolveInput{
		Summary:          "Se reinstalo el driver de red",
		ComponentChanged: &componentChanged,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusResuelto, ticket.Status)
	assert.Equal(t, domain.PhaseCompleted, ticket.Clock.Phase)
	require.NotNil(t, ticket.Clock.ResolutionElapsedMin)
	assert.InDelta(t, 90, *ticket.Clock.ResolutionElapsedMin, 0.001)
}

func TestResolveRequiresConfigurationForPortalTickets(t *testing.T) {
	fx := newFixture(t, &fakeContracts{contract: activeContract()})
	ticket, err := fx.svc.CreateTicket(context.Background(), endUser, TicketCreateInput{
		CompanyID:   "acme",
		Title:       "Portal: correo caido",
		Description: "Nadie de la oficina puede enviar",
		Origin:      domain.OriginPortal,
	})
	require.NoError(t, err)
	_, err = fx.svc.Take(context.Background(), technician, ticket.ID)
	require.NoError(t, err)

	componentChanged := false
	_, err = fx.svc.Resolve(context.Background(), technician, ticket.ID, TicketResolveInput{
		Summary:          "Se reinicio el servidor de correo",
		ComponentChanged: &componentChanged,
	})
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeValidationFailed, apperrors.ToDomainError(err).Code)
}

func TestCloseOnlyFromResueltoByAdminOrCreator(t *testing.T) {
	fx := newFixture(t, &fakeContracts{contract: activeContract()})
	ticket, err := fx.svc.CreateTicket(context.Background(), endUser, configuredInput())
	require.NoError(t, err)

	_, err = fx.svc.Close(context.Background(), admin, ticket.ID)
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeInvalidTransition, apperrors.ToDomainError(err).Code)

	_, err = fx.svc.Take(context.Background(), technician, ticket.ID)
	require.NoError(t, err)
	componentChanged := false
	_, err = fx.svc.Resolve(context.Background(), technician, ticket.ID, TicketResolveInput{
		Summary:          "Listo",
		ComponentChanged: &componentChanged,
	})
	require.NoError(t, err)

	_, err = fx.svc.Close(context.Background(), otherTech, ticket.ID)
	require.Error(t, err)
	assert.Equal(t, apperrors.CodePermissionDenied, apperrors.ToDomainError(err).Code)

	ticket, err = fx.svc.Close(context.Background(), endUser, ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCerrado, ticket.Status)
	require.NotNil(t, ticket.ClosedAt)
}

func TestCancelRequiresReasonAndFreezesClock(t *testing.T) {
	fx := newFixture(t, &fakeContracts{contract: activeContract()})
	ticket, err := fx.svc.CreateTicket(context.Background(), endUser, configuredInput())
	require.NoError(t, err)

	_, err = fx.svc.Cancel(context.Background(), endUser, ticket.ID, "  ")
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeValidationFailed, apperrors.ToDomainError(err).Code)

	ticket, err = fx.svc.Cancel(context.Background(), endUser, ticket.ID, "duplicado del TCK-INT-2026-000001")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCancelado, ticket.Status)
	assert.Equal(t, domain.PhaseCompleted, ticket.Clock.Phase)
	require.NotNil(t, ticket.ClosedAt)

	// Terminal: nothing moves out of CANCELADO.
	_, err = fx.svc.Take(context.Background(), technician, ticket.ID)
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeInvalidTransition, apperrors.ToDomainError(err).Code)
}

func TestAssignAndReassign(t *testing.T) {
	fx := newFixture(t, &fakeContracts{contract: activeContract()})
	ticket, err := fx.svc.CreateTicket(context.Background(), endUser, configuredInput())
	require.NoError(t, err)

	_, err = fx.svc.Assign(context.Background(), technician, ticket.ID, technician.ID)
	require.Error(t, err)
	assert.Equal(t, apperrors.CodePermissionDenied, apperrors.ToDomainError(err).Code)

	ticket, err = fx.svc.Assign(context.Background(), admin, ticket.ID, technician.ID)
	require.NoError(t, err)
	// Assignment alone never transitions state.
	assert.Equal(t, domain.StatusEspera, ticket.Status)

	_, err = fx.svc.Assign(context.Background(), admin, ticket.ID, technician.ID)
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeAlreadyInRequestedState, apperrors.ToDomainError(err).Code)

	ticket, err = fx.svc.Assign(context.Background(), admin, ticket.ID, otherTech.ID)
	require.NoError(t, err)
	require.NotNil(t, ticket.AssigneeID)
	assert.Equal(t, otherTech.ID, *ticket.AssigneeID)

	events := fx.store.events[ticket.ID]
	require.Len(t, events, 3)
	assert.Equal(t, domain.AuditAsignacion, events[1].Kind)
	assert.Equal(t, domain.AuditReasignacion, events[2].Kind)
	assert.Equal(t, technician.ID, *events[2].OldValue)
	assert.Equal(t, otherTech.ID, *events[2].NewValue)
}

func TestEditFieldsRecomputesPriority(t *testing.T) {
	fx := newFixture(t, &fakeContracts{contract: activeContract()})
	ticket, err := fx.svc.CreateTicket(context.Background(), endUser, configuredInput())
	require.NoError(t, err)
	require.Equal(t, domain.PriorityAlta, ticket.Priority)

	impact := domain.ImpactCritico
	urgency := domain.UrgencyCritica

	_, err = fx.svc.EditFields(context.Background(), technician, ticket.ID, TicketEditInput{Impact: &impact}, "")
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeValidationFailed, apperrors.ToDomainError(err).Code)

	ticket, err = fx.svc.EditFields(context.Background(), technician, ticket.ID, TicketEditInput{
		Impact:  &impact,
		Urgency: &urgency,
	}, "el incidente afecta a toda la sede")
	require.NoError(t, err)
	assert.Equal(t, domain.PriorityCritica, ticket.Priority)

	events := fx.store.events[ticket.ID]
	var edits, priorityChanges int
	for _, event := range events {
		switch event.Kind {
		case domain.AuditEdicionCampo:
			edits++
		case domain.AuditCambioPrioridad:
			priorityChanges++
		}
	}
	assert.Equal(t, 2, edits)
	assert.Equal(t, 1, priorityChanges)
}

func TestEditFieldsNoOpPriorityEmitsNoChangeEvent(t *testing.T) {
	fx := newFixture(t, &fakeContracts{contract: activeContract()})
	ticket, err := fx.svc.CreateTicket(context.Background(), endUser, configuredInput())
	require.NoError(t, err)

	// ALTO/ALTA and ALTO/MEDIA both derive ALTA: the field changes, the
	// priority does not.
	urgency := domain.UrgencyMedia
	ticket, err = fx.svc.EditFields(context.Background(), technician, ticket.ID, TicketEditInput{
		Urgency: &urgency,
	}, "el cliente puede esperar hasta manana")
	require.NoError(t, err)
	assert.Equal(t, domain.PriorityAlta, ticket.Priority)

	for _, event := range fx.store.events[ticket.ID] {
		assert.NotEqual(t, domain.AuditCambioPrioridad, event.Kind)
	}
}

func TestPauseAndResumeSLA(t *testing.T) {
	fx := newFixture(t, &fakeContracts{contract: activeContract()})
	ticket, err := fx.svc.CreateTicket(context.Background(), endUser, configuredInput())
	require.NoError(t, err)
	_, err = fx.svc.Take(context.Background(), technician, ticket.ID)
	require.NoError(t, err)

	_, err = fx.svc.PauseSLA(context.Background(), technician, ticket.ID, "")
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeValidationFailed, apperrors.ToDomainError(err).Code)

	_, err = fx.svc.PauseSLA(context.Background(), otherTech, ticket.ID, "espera de terceros")
	require.Error(t, err)
	assert.Equal(t, apperrors.CodePermissionDenied, apperrors.ToDomainError(err).Code)

	fx.advance(100 * time.Minute)
	ticket, err = fx.svc.PauseSLA(context.Background(), technician, ticket.ID, "esperando al proveedor")
	require.NoError(t, err)
	assert.True(t, ticket.Clock.Paused)

	_, err = fx.svc.PauseSLA(context.Background(), technician, ticket.ID, "otra vez")
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeAlreadyInRequestedState, apperrors.ToDomainError(err).Code)

	// Elapsed is flat while paused.
	fx.advance(30 * time.Minute)
	current, err := fx.store.GetByID(context.Background(), ticket.ID)
	require.NoError(t, err)
	assert.InDelta(t, 100, current.Clock.Elapsed(domain.PhaseResolution, fx.now), 0.001)

	ticket, err = fx.svc.ResumeSLA(context.Background(), technician, ticket.ID)
	require.NoError(t, err)
	assert.False(t, ticket.Clock.Paused)
	require.Len(t, ticket.Clock.Pauses, 1)
	assert.Equal(t, "esperando al proveedor", ticket.Clock.Pauses[0].Reason)

	_, err = fx.svc.ResumeSLA(context.Background(), technician, ticket.ID)
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeAlreadyInRequestedState, apperrors.ToDomainError(err).Code)

	fx.advance(50 * time.Minute)
	current, err = fx.store.GetByID(context.Background(), ticket.ID)
	require.NoError(t, err)
	assert.InDelta(t, 150, current.Clock.Elapsed(domain.PhaseResolution, fx.now), 0.001)
}

func TestPauseSLARejectedWithoutSLA(t *testing.T) {
	contract := activeContract()
	contract.State = domain.ContractSuspendido
	fx := newFixture(t, &fakeContracts{contract: contract})

	ticket, err := fx.svc.CreateTicket(context.Background(), endUser, configuredInput())
	require.NoError(t, err)
	_, err = fx.svc.Take(context.Background(), technician, ticket.ID)
	require.NoError(t, err)

	_, err = fx.svc.PauseSLA(context.Background(), technician, ticket.ID, "no aplica")
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeInvalidTransition, apperrors.ToDomainError(err).Code)
}

func TestAddCommentAppendsAuditEvent(t *testing.T) {
	fx := newFixture(t, &fakeContracts{contract: activeContract()})
	ticket, err := fx.svc.CreateTicket(context.Background(), endUser, configuredInput())
	require.NoError(t, err)

	_, err = fx.svc.AddComment(context.Background(), endUser, ticket.ID, "   ")
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeValidationFailed, apperrors.ToDomainError(err).Code)

	event, err := fx.svc.AddComment(context.Background(), endUser, ticket.ID, "sigue fallando tras el reinicio")
	require.NoError(t, err)
	assert.Equal(t, domain.AuditComentario, event.Kind)
	assert.Equal(t, int64(2), event.Seq)
}

func TestGetTicketViewAtComputesAtInstant(t *testing.T) {
	fx := newFixture(t, &fakeContracts{contract: activeContract()})
	ticket, err := fx.svc.CreateTicket(context.Background(), endUser, configuredInput())
	require.NoError(t, err)

	// 90 of 60 allotted response minutes: 150%, -30 remaining, BREACHED.
	at := baseTime.Add(90 * time.Minute)
	view, err := fx.svc.GetTicketViewAt(context.Background(), ticket.ID, at)
	require.NoError(t, err)

	require.NotNil(t, view.SLA.Response)
	assert.InDelta(t, 150, view.SLA.Response.Percentage, 0.001)
	assert.InDelta(t, -30, view.SLA.Response.RemainingMinutes, 0.001)
	assert.Equal(t, domain.BandBreached, view.SLA.Response.Band)
	require.NotNil(t, view.SLA.Response.Deadline)
	assert.Equal(t, baseTime.Add(60*time.Minute), *view.SLA.Response.Deadline)
	assert.Equal(t, at, view.ComputedAt)
	require.Len(t, view.History, 1)

	// A different instant yields a different computation, never a reused one.
	later, err := fx.svc.GetTicketViewAt(context.Background(), ticket.ID, at.Add(30*time.Minute))
	require.NoError(t, err)
	assert.InDelta(t, 200, later.SLA.Response.Percentage, 0.001)
	assert.Equal(t, at.Add(30*time.Minute), later.ComputedAt)
}

func TestGetTicketViewUsesServerTime(t *testing.T) {
	fx := newFixture(t, &fakeContracts{contract: activeContract()})
	ticket, err := fx.svc.CreateTicket(context.Background(), endUser, configuredInput())
	require.NoError(t, err)

	fx.advance(45 * time.Minute)
	view, err := fx.svc.GetTicketView(context.Background(), ticket.ID)
	require.NoError(t, err)

	require.NotNil(t, view.SLA.Response)
	assert.InDelta(t, 75, view.SLA.Response.Percentage, 0.001)
	assert.Equal(t, fx.now, view.ComputedAt)
}

func TestGetTicketViewNotFound(t *testing.T) {
	fx := newFixture(t, &fakeContracts{contract: activeContract()})

	_, err := fx.svc.GetTicketView(context.Background(), "missing")
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeNotFound, apperrors.ToDomainError(err).Code)
}

func TestGetHistoryKindFilter(t *testing.T) {
	fx := newFixture(t, &fakeContracts{contract: activeContract()})
	ticket, err := fx.svc.CreateTicket(context.Background(), endUser, configuredInput())
	require.NoError(t, err)
	_, err = fx.svc.Take(context.Background(), technician, ticket.ID)
	require.NoError(t, err)
	_, err = fx.svc.AddComment(context.Background(), endUser, ticket.ID, "gracias por el avance")
	require.NoError(t, err)

	all, err := fx.svc.GetHistory(context.Background(), ticket.ID, nil)
	require.NoError(t, err)
	require.Len(t, all, 4)
	for i, event := range all {
		assert.Equal(t, int64(i+1), event.Seq)
	}

	comments, err := fx.svc.GetHistory(context.Background(), ticket.ID, []domain.AuditKind{domain.AuditComentario})
	require.NoError(t, err)
	require.Len(t, comments, 1)
	assert.Equal(t, domain.AuditComentario, comments[0].Kind)
}

func TestCanTransitionQuery(t *testing.T) {
	fx := newFixture(t, &fakeContracts{contract: activeContract()})
	ticket, err := fx.svc.CreateTicket(context.Background(), endUser, configuredInput())
	require.NoError(t, err)

	allowed, err := fx.svc.CanTransition(context.Background(), technician, ticket.ID, domain.StatusEnProceso)
	require.NoError(t, err)
	assert.True(t, allowed)

	allowed, err = fx.svc.CanTransition(context.Background(), endUser, ticket.ID, domain.StatusEnProceso)
	require.NoError(t, err)
	assert.False(t, allowed)

	allowed, err = fx.svc.CanTransition(context.Background(), admin, ticket.ID, domain.StatusResuelto)
	require.NoError(t, err)
	assert.False(t, allowed)
}
