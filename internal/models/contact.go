package models

import "time"

// ContactStage represents the lifecycle stage of a contact.
type ContactStage string

const (
	ContactStageLead        ContactStage = "lead"
	ContactStageMQL         ContactStage = "mql"
	ContactStageSQL         ContactStage = "sql"
	ContactStageOpportunity ContactStage = "opportunity"
	ContactStageCustomer    ContactStage = "customer"
	ContactStageEvangelist  ContactStage = "evangelist"
	ContactStageChurned     ContactStage = "churned"
)

// Contact represents an external person tracked for an organization. Like
// accounts, contacts are data plane entities: people seen in CRM, billing and
// product-analytics events, never users of this system.
//
// AccountID optionally links the contact to the account it belongs to. The
// contact references the account but does not own it.
type Contact struct {
	ID             int64
	OrganizationID int64
	AccountID      *int64
	Email          string
	Name           string
	ExternalIDs    map[string]string
	Stage          ContactStage
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// ContactExternalIDKind returns the external-id map key under which a source
// stores its person identifier.
func ContactExternalIDKind(source string) string {
	return source + "_contact_id"
}
