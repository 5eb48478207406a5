package models

import "time"

// AccountStage represents the lifecycle stage of an account.
type AccountStage string

const (
	AccountStageVisitor        AccountStage = "visitor"
	AccountStageTrialStarted   AccountStage = "trial_started"
	AccountStageActivated      AccountStage = "activated"
	AccountStageEngaged        AccountStage = "engaged"
	AccountStageAtRisk         AccountStage = "at_risk"
	AccountStageExpansionReady AccountStage = "expansion_ready"
	AccountStageChurnRisk      AccountStage = "churn_risk"
	AccountStageChurned        AccountStage = "churned"
)

// Account represents an external company tracked for an organization. Accounts
// are data about customers, not platform users; they are created the first time
// an event references a previously-unseen external company id.
//
// ExternalIDs maps an external-id kind (e.g. "hubspot_company_id",
// "stripe_customer_id") to the id assigned by that platform. An account starts
// with one entry and may gain more as other sources reference the same company.
// Within an organization at most one account exists per (kind, value) pair;
// the store enforces this, not callers.
type Account struct {
	ID             int64
	OrganizationID int64
	Name           string
	Domain         string
	ExternalIDs    map[string]string
	Stage          AccountStage
	StageUpdatedAt time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// CompanyExternalIDKind returns the external-id map key under which a source
// stores its company identifier.
func CompanyExternalIDKind(source string) string {
	return source + "_company_id"
}
