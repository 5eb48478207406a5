package models

import "time"

// Organization represents a tenant in the system. Every account, contact and
// signal is scoped to exactly one organization. Organizations are created and
// administered outside the ingestion pipeline; the pipeline only reads them.
type Organization struct {
	ID        int64
	Name      string
	CreatedAt time.Time
	UpdatedAt time.Time
}
