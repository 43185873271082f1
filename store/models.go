// ABOUTME: Domain types for the outreach store: leads, composed messages, runs, and audit entries.
// ABOUTME: Encodes the lead status state machine NEW -> ENRICHED -> COMPOSED -> DELIVERED | FAILED.
package store

import "time"

// LeadStatus is the position of a lead in the pipeline.
type LeadStatus string

const (
	StatusNew       LeadStatus = "NEW"
	StatusEnriched  LeadStatus = "ENRICHED"
	StatusComposed  LeadStatus = "COMPOSED"
	StatusDelivered LeadStatus = "DELIVERED"
	StatusFailed    LeadStatus = "FAILED"
)

// AllStatuses returns every lead status in pipeline order.
func AllStatuses() []LeadStatus {
	return []LeadStatus{StatusNew, StatusEnriched, StatusComposed, StatusDelivered, StatusFailed}
}

// rank orders statuses along the forward path. FAILED is terminal and ranks
// alongside DELIVERED so neither can be overwritten.
func (s LeadStatus) rank() int {
	switch s {
	case StatusNew:
		return 0
	case StatusEnriched:
		return 1
	case StatusComposed:
		return 2
	case StatusDelivered, StatusFailed:
		return 3
	}
	return -1
}

// CanAdvanceTo reports whether a transition from s to next is legal.
// Statuses only move forward; FAILED is reachable only from COMPOSED.
func (s LeadStatus) CanAdvanceTo(next LeadStatus) bool {
	if next.rank() < 0 || s.rank() < 0 {
		return false
	}
	if next == StatusFailed {
		return s == StatusComposed
	}
	return next.rank() == s.rank()+1
}

// Lead is the unit of work flowing through the pipeline.
type Lead struct {
	ID       string
	FullName string
	Company  string
	Title    string
	Industry string
	Website  string
	Email    string
	LinkedIn string
	Country  string

	// Enrichment fields, empty until the enrich stage runs.
	CompanySize string
	Persona     string
	Pains       string
	Triggers    string
	Confidence  float64

	Status    LeadStatus
	LastError string
	UpdatedAt time.Time
}

// Message holds the A/B email and DM variants composed for one lead.
type Message struct {
	ID        string
	LeadID    string
	EmailA    string
	EmailB    string
	DMA       string
	DMB       string
	CTA       string
	CreatedAt time.Time
}

// Run records one end-to-end pipeline execution.
type Run struct {
	ID        string
	StartedAt time.Time
	Mode      string // "dry" or "live"
	AIMode    bool
	Seed      *int64
	Total     int
	Succeeded int
	Failed    int
}

// AuditEntry is one structured audit event persisted alongside the run.
type AuditEntry struct {
	ID      int64
	RunID   string
	LeadID  string
	Stage   string
	Level   string
	Message string
	TS      time.Time
}
