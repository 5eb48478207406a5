// Package mapping translates source-specific raw event types into the
// canonical event vocabulary. The table is plain data so new mappings can be
// added without touching adapter code.
package mapping

import (
	"fmt"

	"github.com/revsignal/revsignal/internal/models"
	"gopkg.in/yaml.v3"
)

// Table is an immutable dictionary from (source, raw event type) to canonical
// event type. Construct one with Parse or through a Loader; a constructed
// table is never modified, so it is safe for concurrent use.
type Table struct {
	sources map[string]map[string]string
}

// Parse builds a Table from YAML of the form:
//
//	hubspot:
//	  contact.creation: contact_created
//	stripe:
//	  customer.created: customer_created
func Parse(data []byte) (*Table, error) {
	var sources map[string]map[string]string
	if err := yaml.Unmarshal(data, &sources); err != nil {
		return nil, fmt.Errorf("failed to parse mapping table: %w", err)
	}

	return &Table{sources: sources}, nil
}

// CanonicalType returns the canonical event type for a raw event type from a
// source. Unknown sources and unmapped raw types return
// models.EventTypeUnknown; this function never fails. Callers observe misses
// via Lookup when they need to log or meter them.
func (t *Table) CanonicalType(source, rawType string) string {
	canonical, _ := t.Lookup(source, rawType)
	return canonical
}

// Lookup is CanonicalType plus a hit indicator, so callers can make misses
// observable with payload context the table does not have.
func (t *Table) Lookup(source, rawType string) (string, bool) {
	types, ok := t.sources[source]
	if !ok {
		return models.EventTypeUnknown, false
	}

	canonical, ok := types[rawType]
	if !ok || canonical == "" {
		return models.EventTypeUnknown, false
	}

	return canonical, true
}

// Sources returns the source labels the table has entries for.
func (t *Table) Sources() []string {
	sources := make([]string, 0, len(t.sources))
	for source := range t.sources {
		sources = append(sources, source)
	}
	return sources
}
