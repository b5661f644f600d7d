package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mesaservicio/ticket-engine/internal/domain"
)

// CompanyContractRepository is the narrow read interface onto the contract
// catalog the SLA policy resolver consults. The catalog itself is maintained
// elsewhere.
type CompanyContractRepository interface {
	GetContract(ctx context.Context, companyID string) (*domain.CompanyContract, error)
}

type companyContractRepository struct {
	pool *pgxpool.Pool
}

// NewCompanyContractRepository builds repository.
func NewCompanyContractRepository(pool *pgxpool.Pool) CompanyContractRepository {
	return &companyContractRepository{pool: pool}
}

func (r *companyContractRepository) GetContract(ctx context.Context, companyID string) (*domain.CompanyContract, error) {
	const query = `
        SELECT company_id, state, alert_markers
        FROM company_contracts WHERE company_id=$1`
	contract := &domain.CompanyContract{Budgets: map[domain.Priority]domain.SLABudget{}}
	if err := r.pool.QueryRow(ctx, query, companyID).Scan(
		&contract.CompanyID,
		&contract.State,
		&contract.AlertMarkers,
	); err != nil {
		return nil, err
	}

	const sectionsQuery = `
        SELECT section FROM sla_config_sections WHERE company_id=$1`
	rows, err := r.pool.Query(ctx, sectionsQuery, companyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var section string
		if err := rows.Scan(&section); err != nil {
			return nil, err
		}
		contract.ConfiguredSections = append(contract.ConfiguredSections, section)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	const budgetsQuery = `
        SELECT priority, response_minutes, resolution_minutes
        FROM sla_budgets WHERE company_id=$1`
	budgetRows, err := r.pool.Query(ctx, budgetsQuery, companyID)
	if err != nil {
		return nil, err
	}
	defer budgetRows.Close()
	for budgetRows.Next() {
		var (
			priority domain.Priority
			budget   domain.SLABudget
		)
		if err := budgetRows.Scan(&priority, &budget.ResponseMinutes, &budget.ResolutionMinutes); err != nil {
			return nil, err
		}
		contract.Budgets[priority] = budget
	}
	return contract, budgetRows.Err()
}
