// Package identity maps external identifiers extracted from webhook events to
// internal contact and account entities.
package identity

import (
	"context"
	"fmt"

	"github.com/revsignal/revsignal/internal/store"
	"github.com/revsignal/revsignal/internal/telemetry"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// ContactRef carries the person identifiers an adapter extracted from one raw
// event. All fields are best-effort; an empty ExternalID means no person was
// identified.
type ContactRef struct {
	ExternalID string
	Email      string
	Name       string
}

// AccountRef carries the company identifiers an adapter extracted from one raw
// event. An empty ExternalID means no company was identified directly.
type AccountRef struct {
	ExternalID string
	Name       string
}

// Identity is the outcome of resolving one event. Both fields may be nil:
// an event with no resolvable identifiers is unresolved, not failed.
type Identity struct {
	ContactID *int64
	AccountID *int64
}

// Resolver resolves extracted external identifiers to internal entities using
// the stores' find-or-create operations.
//
// Resolution is two-step: the contact first, then the account either from a
// direct company identifier or, as a fallback, from the resolved contact's
// existing account link. The fallback is deliberate: events without an
// explicit company field still inherit the association already established
// for that person.
type Resolver struct {
	accounts store.AccountStore
	contacts store.ContactStore
}

// NewResolver creates a new Resolver backed by the given stores.
func NewResolver(accounts store.AccountStore, contacts store.ContactStore) *Resolver {
	return &Resolver{
		accounts: accounts,
		contacts: contacts,
	}
}

// Resolve maps one event's extracted identifiers to internal entity IDs.
// Business-logic misses (no identifiers present) are not errors and are not
// retried; only store failures are returned.
func (r *Resolver) Resolve(ctx context.Context, orgID int64, source string, contactRef ContactRef, accountRef AccountRef) (Identity, error) {
	var resolved Identity
	m := telemetry.GetMetrics()
	sourceAttr := metric.WithAttributes(attribute.String("source", source))

	var contactAccountID *int64
	if contactRef.ExternalID != "" {
		contact, err := r.contacts.FindOrCreateByExternalID(ctx, orgID, source, contactRef.ExternalID, contactRef.Email, contactRef.Name)
		if err != nil {
			return Identity{}, fmt.Errorf("failed to resolve contact %q: %w", contactRef.ExternalID, err)
		}
		resolved.ContactID = &contact.ID
		contactAccountID = contact.AccountID
		m.ContactsResolvedTotal.Add(ctx, 1, sourceAttr)
	}

	switch {
	case accountRef.ExternalID != "":
		account, err := r.accounts.FindOrCreateByExternalID(ctx, orgID, source, accountRef.ExternalID, accountRef.Name)
		if err != nil {
			return Identity{}, fmt.Errorf("failed to resolve account %q: %w", accountRef.ExternalID, err)
		}
		resolved.AccountID = &account.ID
		m.AccountsResolvedTotal.Add(ctx, 1, sourceAttr)

	case contactAccountID != nil:
		// Inherit the account already linked to the resolved contact
		resolved.AccountID = contactAccountID
	}

	if resolved.ContactID == nil && resolved.AccountID == nil {
		m.IdentityMissesTotal.Add(ctx, 1, sourceAttr)
		zerolog.Ctx(ctx).Debug().
			Int64("org_id", orgID).
			Str("source", source).
			Msg("No resolvable identifiers in event")
	}

	return resolved, nil
}
