package service

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/mesaservicio/ticket-engine/internal/domain"
	"github.com/mesaservicio/ticket-engine/internal/repository"
	apperrors "github.com/mesaservicio/ticket-engine/pkg/util/errorutil"
)

// PolicyResolver decides whether an SLA applies to a company and supplies
// the per-priority time budgets. Pure lookup; the result is snapshotted onto
// the ticket at configuration time and never re-evaluated.
type PolicyResolver struct {
	contracts repository.CompanyContractRepository
}

// NewPolicyResolver constructs the resolver.
func NewPolicyResolver(contracts repository.CompanyContractRepository) *PolicyResolver {
	return &PolicyResolver{contracts: contracts}
}

// Resolve answers for one company/priority pair. A missing or non-active
// contract forces non-application even with full configuration; fewer than
// the six named config sections forces non-application regardless of
// contract state.
func (r *PolicyResolver) Resolve(ctx context.Context, companyID string, priority domain.Priority) (domain.SLAResolution, error) {
	contract, err := r.contracts.GetContract(ctx, companyID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.SLAResolution{Applies: false, Reason: domain.PolicyReasonContractInactive}, nil
		}
		return domain.SLAResolution{}, apperrors.NewPolicyUnavailable(err)
	}

	if !contract.HasFullSLAConfig() {
		return domain.SLAResolution{Applies: false, Reason: domain.PolicyReasonNotConfigured}, nil
	}
	if contract.State != domain.ContractActivo {
		return domain.SLAResolution{Applies: false, Reason: domain.PolicyReasonContractInactive}, nil
	}

	budget, ok := contract.Budgets[priority]
	if !ok {
		return domain.SLAResolution{Applies: false, Reason: domain.PolicyReasonNotConfigured}, nil
	}

	markers := contract.AlertMarkers
	if len(markers) == 0 {
		markers = domain.DefaultAlertMarkers
	}

	return domain.SLAResolution{
		Applies:           true,
		Reason:            domain.PolicyReasonActive,
		ResponseMinutes:   budget.ResponseMinutes,
		ResolutionMinutes: budget.ResolutionMinutes,
		AlertMarkers:      markers,
	}, nil
}
