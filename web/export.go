// ABOUTME: CSV export endpoints for leads and messages.
package web

import (
	"encoding/csv"
	"net/http"
	"strconv"
)

// handleExportLeads streams every lead as a CSV download.
func (s *Server) handleExportLeads(w http.ResponseWriter, r *http.Request) {
	leads, err := s.store.AllLeads()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="leads.csv"`)

	cw := csv.NewWriter(w)
	defer cw.Flush()

	header := []string{"id", "full_name", "company", "title", "industry", "website", "email",
		"linkedin", "country", "company_size", "persona", "pains", "triggers",
		"confidence", "status", "last_error", "updated_at"}
	if err := cw.Write(header); err != nil {
		s.logger.Error("csv write failed", "error", err)
		return
	}
	for i := range leads {
		l := &leads[i]
		row := []string{l.ID, l.FullName, l.Company, l.Title, l.Industry, l.Website, l.Email,
			l.LinkedIn, l.Country, l.CompanySize, l.Persona, l.Pains, l.Triggers,
			strconv.FormatFloat(l.Confidence, 'f', 1, 64), string(l.Status), l.LastError,
			l.UpdatedAt.Format("2006-01-02T15:04:05Z07:00")}
		if err := cw.Write(row); err != nil {
			s.logger.Error("csv write failed", "error", err)
			return
		}
	}
}

// handleExportMessages streams every composed message as a CSV download.
func (s *Server) handleExportMessages(w http.ResponseWriter, r *http.Request) {
	msgs, err := s.store.AllMessages()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="messages.csv"`)

	cw := csv.NewWriter(w)
	defer cw.Flush()

	header := []string{"id", "lead_id", "email_a", "email_b", "dm_a", "dm_b", "cta", "created_at"}
	if err := cw.Write(header); err != nil {
		s.logger.Error("csv write failed", "error", err)
		return
	}
	for i := range msgs {
		m := &msgs[i]
		row := []string{m.ID, m.LeadID, m.EmailA, m.EmailB, m.DMA, m.DMB, m.CTA,
			m.CreatedAt.Format("2006-01-02T15:04:05Z07:00")}
		if err := cw.Write(row); err != nil {
			s.logger.Error("csv write failed", "error", err)
			return
		}
	}
}
