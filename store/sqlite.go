// ABOUTME: SQLite-backed store for leads, messages, runs, and the audit log.
// ABOUTME: Enforces forward-only lead status transitions at the persistence boundary.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/oklog/ulid/v2"
)

const timeFormat = "2006-01-02T15:04:05.000Z07:00"

// Store wraps the SQLite database holding all pipeline state.
type Store struct {
	db *sql.DB
}

// Open opens or creates the SQLite database at the given path and runs the
// schema migration. Parent directories are created as needed.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	schema := `
		CREATE TABLE IF NOT EXISTS leads (
			lead_id TEXT PRIMARY KEY,
			full_name TEXT NOT NULL,
			company TEXT NOT NULL,
			title TEXT NOT NULL,
			industry TEXT NOT NULL,
			website TEXT NOT NULL,
			email TEXT NOT NULL,
			linkedin TEXT NOT NULL,
			country TEXT NOT NULL,
			company_size TEXT NOT NULL DEFAULT '',
			persona TEXT NOT NULL DEFAULT '',
			pains TEXT NOT NULL DEFAULT '',
			triggers TEXT NOT NULL DEFAULT '',
			confidence REAL NOT NULL DEFAULT 0,
			status TEXT NOT NULL,
			last_error TEXT NOT NULL DEFAULT '',
			updated_at TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_leads_status ON leads(status);

		CREATE TABLE IF NOT EXISTS messages (
			message_id TEXT PRIMARY KEY,
			lead_id TEXT NOT NULL,
			email_a TEXT NOT NULL DEFAULT '',
			email_b TEXT NOT NULL DEFAULT '',
			dm_a TEXT NOT NULL DEFAULT '',
			dm_b TEXT NOT NULL DEFAULT '',
			cta TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL,
			FOREIGN KEY (lead_id) REFERENCES leads(lead_id)
		);

		CREATE TABLE IF NOT EXISTS runs (
			run_id TEXT PRIMARY KEY,
			started_at TEXT NOT NULL,
			mode TEXT NOT NULL,
			ai_mode INTEGER NOT NULL,
			seed INTEGER,
			total INTEGER NOT NULL DEFAULT 0,
			succeeded INTEGER NOT NULL DEFAULT 0,
			failed INTEGER NOT NULL DEFAULT 0
		);

		CREATE TABLE IF NOT EXISTS audit_log (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT NOT NULL DEFAULT '',
			lead_id TEXT NOT NULL DEFAULT '',
			stage TEXT NOT NULL,
			level TEXT NOT NULL,
			message TEXT NOT NULL,
			ts TEXT NOT NULL
		);`

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// InsertLead persists a new lead in NEW status and assigns it a ULID.
func (s *Store) InsertLead(l *Lead) error {
	if l.ID == "" {
		l.ID = ulid.Make().String()
	}
	if l.Status == "" {
		l.Status = StatusNew
	}
	l.UpdatedAt = time.Now().UTC()

	_, err := s.db.Exec(
		`INSERT INTO leads (lead_id, full_name, company, title, industry, website,
			email, linkedin, country, company_size, persona, pains, triggers,
			confidence, status, last_error, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		l.ID, l.FullName, l.Company, l.Title, l.Industry, l.Website,
		l.Email, l.LinkedIn, l.Country, l.CompanySize, l.Persona, l.Pains,
		l.Triggers, l.Confidence, string(l.Status), l.LastError,
		l.UpdatedAt.Format(timeFormat),
	)
	if err != nil {
		return fmt.Errorf("insert lead: %w", err)
	}
	return nil
}

// UpdateEnrichment writes the enrichment fields of a lead.
func (s *Store) UpdateEnrichment(l *Lead) error {
	_, err := s.db.Exec(
		`UPDATE leads SET company_size = ?, persona = ?, pains = ?, triggers = ?,
			confidence = ?, updated_at = ? WHERE lead_id = ?`,
		l.CompanySize, l.Persona, l.Pains, l.Triggers, l.Confidence,
		time.Now().UTC().Format(timeFormat), l.ID,
	)
	if err != nil {
		return fmt.Errorf("update enrichment: %w", err)
	}
	return nil
}

// SetLeadStatus advances a lead's status, enforcing the forward-only state
// machine. lastError replaces the stored error; pass "" to clear it.
func (s *Store) SetLeadStatus(leadID string, next LeadStatus, lastError string) error {
	var current string
	err := s.db.QueryRow(`SELECT status FROM leads WHERE lead_id = ?`, leadID).Scan(&current)
	if err == sql.ErrNoRows {
		return fmt.Errorf("lead %s not found", leadID)
	}
	if err != nil {
		return fmt.Errorf("read lead status: %w", err)
	}

	if !LeadStatus(current).CanAdvanceTo(next) {
		return fmt.Errorf("illegal status transition %s -> %s for lead %s", current, next, leadID)
	}

	_, err = s.db.Exec(
		`UPDATE leads SET status = ?, last_error = ?, updated_at = ? WHERE lead_id = ?`,
		string(next), lastError, time.Now().UTC().Format(timeFormat), leadID,
	)
	if err != nil {
		return fmt.Errorf("update lead status: %w", err)
	}
	return nil
}

// LeadsByStatus returns leads in the given status, oldest first.
// limit <= 0 means no limit.
func (s *Store) LeadsByStatus(status LeadStatus, limit int) ([]Lead, error) {
	q := `SELECT ` + leadColumns + ` FROM leads WHERE status = ? ORDER BY lead_id`
	args := []any{string(status)}
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}
	return s.queryLeads(q, args...)
}

// ListLeads returns leads newest first, optionally filtered by status.
func (s *Store) ListLeads(status string, limit, offset int) ([]Lead, error) {
	q := `SELECT ` + leadColumns + ` FROM leads`
	var args []any
	if status != "" {
		q += ` WHERE status = ?`
		args = append(args, status)
	}
	q += ` ORDER BY lead_id DESC LIMIT ? OFFSET ?`
	args = append(args, limit, offset)
	return s.queryLeads(q, args...)
}

// AllLeads returns every lead ordered by id, for export.
func (s *Store) AllLeads() ([]Lead, error) {
	return s.queryLeads(`SELECT ` + leadColumns + ` FROM leads ORDER BY lead_id`)
}

// GetLead returns a single lead by id.
func (s *Store) GetLead(leadID string) (*Lead, error) {
	leads, err := s.queryLeads(`SELECT `+leadColumns+` FROM leads WHERE lead_id = ?`, leadID)
	if err != nil {
		return nil, err
	}
	if len(leads) == 0 {
		return nil, fmt.Errorf("lead %s not found", leadID)
	}
	return &leads[0], nil
}

const leadColumns = `lead_id, full_name, company, title, industry, website,
	email, linkedin, country, company_size, persona, pains, triggers,
	confidence, status, last_error, updated_at`

func (s *Store) queryLeads(query string, args ...any) ([]Lead, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query leads: %w", err)
	}
	defer rows.Close()

	var leads []Lead
	for rows.Next() {
		var l Lead
		var status, updatedAt string
		if err := rows.Scan(&l.ID, &l.FullName, &l.Company, &l.Title, &l.Industry,
			&l.Website, &l.Email, &l.LinkedIn, &l.Country, &l.CompanySize,
			&l.Persona, &l.Pains, &l.Triggers, &l.Confidence, &status,
			&l.LastError, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan lead: %w", err)
		}
		l.Status = LeadStatus(status)
		l.UpdatedAt, _ = time.Parse(timeFormat, updatedAt)
		leads = append(leads, l)
	}
	return leads, rows.Err()
}

// CountStatuses returns the number of leads in each status. Every status is
// present in the result, zero-valued when empty.
func (s *Store) CountStatuses() (map[string]int, error) {
	counts := make(map[string]int, len(AllStatuses()))
	for _, st := range AllStatuses() {
		counts[string(st)] = 0
	}

	rows, err := s.db.Query(`SELECT status, COUNT(*) FROM leads GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("count statuses: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan status count: %w", err)
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

// InsertMessage persists a composed message and assigns it a ULID.
func (s *Store) InsertMessage(m *Message) error {
	if m.ID == "" {
		m.ID = ulid.Make().String()
	}
	m.CreatedAt = time.Now().UTC()

	_, err := s.db.Exec(
		`INSERT INTO messages (message_id, lead_id, email_a, email_b, dm_a, dm_b, cta, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.LeadID, m.EmailA, m.EmailB, m.DMA, m.DMB, m.CTA,
		m.CreatedAt.Format(timeFormat),
	)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

// LatestMessage returns the most recent message for a lead, or nil when the
// lead has none.
func (s *Store) LatestMessage(leadID string) (*Message, error) {
	msgs, err := s.queryMessages(
		`SELECT message_id, lead_id, email_a, email_b, dm_a, dm_b, cta, created_at
		 FROM messages WHERE lead_id = ? ORDER BY message_id DESC LIMIT 1`, leadID)
	if err != nil {
		return nil, err
	}
	if len(msgs) == 0 {
		return nil, nil
	}
	return &msgs[0], nil
}

// MessagesForLead returns all messages for a lead, newest first.
func (s *Store) MessagesForLead(leadID string) ([]Message, error) {
	return s.queryMessages(
		`SELECT message_id, lead_id, email_a, email_b, dm_a, dm_b, cta, created_at
		 FROM messages WHERE lead_id = ? ORDER BY message_id DESC`, leadID)
}

// AllMessages returns every message ordered by id, for export.
func (s *Store) AllMessages() ([]Message, error) {
	return s.queryMessages(
		`SELECT message_id, lead_id, email_a, email_b, dm_a, dm_b, cta, created_at
		 FROM messages ORDER BY message_id`)
}

func (s *Store) queryMessages(query string, args ...any) ([]Message, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var msgs []Message
	for rows.Next() {
		var m Message
		var createdAt string
		if err := rows.Scan(&m.ID, &m.LeadID, &m.EmailA, &m.EmailB, &m.DMA,
			&m.DMB, &m.CTA, &createdAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		m.CreatedAt, _ = time.Parse(timeFormat, createdAt)
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// StartRun creates a run record and returns its id.
func (s *Store) StartRun(mode string, aiMode bool, seed *int64, total int) (string, error) {
	runID := uuid.NewString()
	var seedVal any
	if seed != nil {
		seedVal = *seed
	}

	_, err := s.db.Exec(
		`INSERT INTO runs (run_id, started_at, mode, ai_mode, seed, total)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		runID, time.Now().UTC().Format(timeFormat), mode, boolToInt(aiMode), seedVal, total,
	)
	if err != nil {
		return "", fmt.Errorf("start run: %w", err)
	}

	_ = s.LogEvent(runID, "", "run", "INFO", "run started")
	return runID, nil
}

// FinishRun records final tallies for a run.
func (s *Store) FinishRun(runID string, succeeded, failed int) error {
	_, err := s.db.Exec(
		`UPDATE runs SET succeeded = ?, failed = ? WHERE run_id = ?`,
		succeeded, failed, runID,
	)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	_ = s.LogEvent(runID, "", "run", "INFO", "run finished")
	return nil
}

// GetRun returns one run by id.
func (s *Store) GetRun(runID string) (*Run, error) {
	var r Run
	var startedAt string
	var aiMode int
	var seed sql.NullInt64
	err := s.db.QueryRow(
		`SELECT run_id, started_at, mode, ai_mode, seed, total, succeeded, failed
		 FROM runs WHERE run_id = ?`, runID,
	).Scan(&r.ID, &startedAt, &r.Mode, &aiMode, &seed, &r.Total, &r.Succeeded, &r.Failed)
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	r.StartedAt, _ = time.Parse(timeFormat, startedAt)
	r.AIMode = aiMode != 0
	if seed.Valid {
		v := seed.Int64
		r.Seed = &v
	}
	return &r, nil
}

// LogEvent appends a structured audit entry.
func (s *Store) LogEvent(runID, leadID, stage, level, message string) error {
	_, err := s.db.Exec(
		`INSERT INTO audit_log (run_id, lead_id, stage, level, message, ts)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		runID, leadID, stage, level, message, time.Now().UTC().Format(timeFormat),
	)
	if err != nil {
		return fmt.Errorf("log event: %w", err)
	}
	return nil
}

// RecentAudit returns the newest audit entries up to limit.
func (s *Store) RecentAudit(limit int) ([]AuditEntry, error) {
	rows, err := s.db.Query(
		`SELECT id, run_id, lead_id, stage, level, message, ts
		 FROM audit_log ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query audit log: %w", err)
	}
	defer rows.Close()

	var entries []AuditEntry
	for rows.Next() {
		var e AuditEntry
		var ts string
		if err := rows.Scan(&e.ID, &e.RunID, &e.LeadID, &e.Stage, &e.Level, &e.Message, &ts); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		e.TS, _ = time.Parse(timeFormat, ts)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Reset clears leads, messages, and the audit log. Runs are kept as history.
func (s *Store) Reset() error {
	for _, table := range []string{"messages", "audit_log", "leads"} {
		if _, err := s.db.Exec(`DELETE FROM ` + table); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
