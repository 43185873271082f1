// ABOUTME: JSON view types mapping store records to the wire shapes the API serves.
package web

import (
	"time"

	"github.com/2389-research/outreach/store"
)

type leadJSON struct {
	ID          string    `json:"id"`
	FullName    string    `json:"full_name"`
	Company     string    `json:"company"`
	Title       string    `json:"title"`
	Industry    string    `json:"industry"`
	Website     string    `json:"website"`
	Email       string    `json:"email"`
	LinkedIn    string    `json:"linkedin"`
	Country     string    `json:"country"`
	CompanySize string    `json:"company_size,omitempty"`
	Persona     string    `json:"persona,omitempty"`
	Pains       string    `json:"pains,omitempty"`
	Triggers    string    `json:"triggers,omitempty"`
	Confidence  float64   `json:"confidence"`
	Status      string    `json:"status"`
	LastError   string    `json:"last_error,omitempty"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func toLeadJSON(l *store.Lead) leadJSON {
	return leadJSON{
		ID:          l.ID,
		FullName:    l.FullName,
		Company:     l.Company,
		Title:       l.Title,
		Industry:    l.Industry,
		Website:     l.Website,
		Email:       l.Email,
		LinkedIn:    l.LinkedIn,
		Country:     l.Country,
		CompanySize: l.CompanySize,
		Persona:     l.Persona,
		Pains:       l.Pains,
		Triggers:    l.Triggers,
		Confidence:  l.Confidence,
		Status:      string(l.Status),
		LastError:   l.LastError,
		UpdatedAt:   l.UpdatedAt,
	}
}

type messageJSON struct {
	ID        string    `json:"id"`
	LeadID    string    `json:"lead_id"`
	EmailA    string    `json:"email_a"`
	EmailB    string    `json:"email_b"`
	DMA       string    `json:"dm_a"`
	DMB       string    `json:"dm_b"`
	CTA       string    `json:"cta"`
	CreatedAt time.Time `json:"created_at"`
}

func toMessageJSON(m *store.Message) messageJSON {
	return messageJSON{
		ID:        m.ID,
		LeadID:    m.LeadID,
		EmailA:    m.EmailA,
		EmailB:    m.EmailB,
		DMA:       m.DMA,
		DMB:       m.DMB,
		CTA:       m.CTA,
		CreatedAt: m.CreatedAt,
	}
}

type auditJSON struct {
	ID      int64     `json:"id"`
	RunID   string    `json:"run_id,omitempty"`
	LeadID  string    `json:"lead_id,omitempty"`
	Stage   string    `json:"stage"`
	Level   string    `json:"level"`
	Message string    `json:"message"`
	TS      time.Time `json:"ts"`
}

func toAuditJSON(e *store.AuditEntry) auditJSON {
	return auditJSON{
		ID:      e.ID,
		RunID:   e.RunID,
		LeadID:  e.LeadID,
		Stage:   e.Stage,
		Level:   e.Level,
		Message: e.Message,
		TS:      e.TS,
	}
}
