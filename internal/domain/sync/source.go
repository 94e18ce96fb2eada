// Package sync holds the domain model of the external-inventory
// synchronization subsystem: data sources, run lifecycle, per-source
// health, connection credentials and the error taxonomy shared by the
// orchestrator and both ingestion paths.
package sync

import (
	"fmt"
	"strings"
)

// Source identifies one synchronized data source in the external
// inventory system.
type Source string

const (
	SourceVendors        Source = "vendors"
	SourceInventory      Source = "inventory"
	SourceBOMs           Source = "boms"
	SourcePurchaseOrders Source = "purchase_orders"
)

// sourceRank fixes the required execution order within one run:
// vendors before inventory before BOMs. Purchase orders have no
// ordering dependency and are placed last by normalization.
var sourceRank = map[Source]int{
	SourceVendors:        0,
	SourceInventory:      1,
	SourceBOMs:           2,
	SourcePurchaseOrders: 3,
}

// AllSources returns every source in canonical execution order.
func AllSources() []Source {
	return []Source{SourceVendors, SourceInventory, SourceBOMs, SourcePurchaseOrders}
}

// IsValid reports whether s is a known source.
func (s Source) IsValid() bool {
	_, ok := sourceRank[s]
	return ok
}

// String returns the wire name of the source.
func (s Source) String() string {
	return string(s)
}

// ParseSource converts a wire name into a Source.
func ParseSource(raw string) (Source, error) {
	s := Source(strings.ToLower(strings.TrimSpace(raw)))
	if !s.IsValid() {
		return "", fmt.Errorf("unknown sync source %q", raw)
	}
	return s, nil
}

// NormalizeSources dedupes the requested set and returns it in canonical
// execution order. Unknown sources are dropped; callers validate input
// before reaching this point.
func NormalizeSources(requested []Source) []Source {
	seen := make(map[Source]bool, len(requested))
	for _, s := range requested {
		if s.IsValid() {
			seen[s] = true
		}
	}
	ordered := make([]Source, 0, len(seen))
	for _, s := range AllSources() {
		if seen[s] {
			ordered = append(ordered, s)
		}
	}
	return ordered
}

// IngestionPath selects how a source's raw records are fetched.
type IngestionPath string

const (
	// IngestAPI pulls records directly from the external system's API.
	IngestAPI IngestionPath = "api"
	// IngestCSV reads records from a previously uploaded CSV staging buffer.
	IngestCSV IngestionPath = "csv"
)

// IsValid reports whether p is a known ingestion path.
func (p IngestionPath) IsValid() bool {
	return p == IngestAPI || p == IngestCSV
}
