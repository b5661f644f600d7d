package domain

// ContractState is the lifecycle state of a company's service contract.
type ContractState string

const (
	ContractActivo     ContractState = "ACTIVO"
	ContractVencido    ContractState = "VENCIDO"
	ContractSuspendido ContractState = "SUSPENDIDO"
)

// SLAConfigSections are the named configuration sections a contract must
// fill in before its SLA is considered configured at all.
var SLAConfigSections = []string{
	"alcance",
	"tiempos",
	"horarios",
	"requisitos",
	"exclusiones",
	"alertas",
}

// SLABudget holds per-priority time budgets in minutes.
type SLABudget struct {
	ResponseMinutes   int
	ResolutionMinutes int
}

// CompanyContract is the read-only contract context consulted by the SLA
// policy resolver. The catalog that maintains it is out of scope.
type CompanyContract struct {
	CompanyID          string
	State              ContractState
	ConfiguredSections []string
	Budgets            map[Priority]SLABudget
	AlertMarkers       []int
}

// HasFullSLAConfig reports whether every named section is present.
func (c *CompanyContract) HasFullSLAConfig() bool {
	present := make(map[string]struct{}, len(c.ConfiguredSections))
	for _, section := range c.ConfiguredSections {
		present[section] = struct{}{}
	}
	for _, required := range SLAConfigSections {
		if _, ok := present[required]; !ok {
			return false
		}
	}
	return true
}

// SLAPolicyReason explains the resolver's decision.
type SLAPolicyReason string

const (
	PolicyReasonNotConfigured    SLAPolicyReason = "NOT_CONFIGURED"
	PolicyReasonContractInactive SLAPolicyReason = "CONTRACT_INACTIVE"
	PolicyReasonActive           SLAPolicyReason = "ACTIVE"
)

// SLAResolution is the resolver's answer for one company/priority pair.
type SLAResolution struct {
	Applies           bool
	Reason            SLAPolicyReason
	ResponseMinutes   int
	ResolutionMinutes int
	AlertMarkers      []int
}
