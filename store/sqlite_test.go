// ABOUTME: Tests for the SQLite store: schema round-trips, status transitions, counts, runs, and audit log.
package store

import (
	"path/filepath"
	"testing"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func insertTestLead(t *testing.T, s *Store) *Lead {
	t.Helper()
	l := &Lead{
		FullName: "Ada Example",
		Company:  "Example Corp",
		Title:    "VP Engineering",
		Industry: "Software",
		Website:  "https://example.com",
		Email:    "ada@example.com",
		LinkedIn: "https://www.linkedin.com/in/ada-example",
		Country:  "US",
	}
	if err := s.InsertLead(l); err != nil {
		t.Fatalf("InsertLead: %v", err)
	}
	return l
}

func TestInsertAndGetLead(t *testing.T) {
	s := openTestStore(t)
	l := insertTestLead(t, s)

	if l.ID == "" {
		t.Fatal("expected ULID assigned on insert")
	}
	got, err := s.GetLead(l.ID)
	if err != nil {
		t.Fatalf("GetLead: %v", err)
	}
	if got.Status != StatusNew {
		t.Errorf("expected NEW, got %s", got.Status)
	}
	if got.FullName != "Ada Example" {
		t.Errorf("unexpected name %q", got.FullName)
	}
}

func TestSetLeadStatusEnforcesMachine(t *testing.T) {
	s := openTestStore(t)
	l := insertTestLead(t, s)

	if err := s.SetLeadStatus(l.ID, StatusEnriched, ""); err != nil {
		t.Fatalf("NEW -> ENRICHED: %v", err)
	}
	if err := s.SetLeadStatus(l.ID, StatusNew, ""); err == nil {
		t.Error("expected regression ENRICHED -> NEW to fail")
	}
	if err := s.SetLeadStatus(l.ID, StatusDelivered, ""); err == nil {
		t.Error("expected skip ENRICHED -> DELIVERED to fail")
	}
	if err := s.SetLeadStatus(l.ID, StatusComposed, ""); err != nil {
		t.Fatalf("ENRICHED -> COMPOSED: %v", err)
	}
	if err := s.SetLeadStatus(l.ID, StatusFailed, "smtp timeout"); err != nil {
		t.Fatalf("COMPOSED -> FAILED: %v", err)
	}

	got, err := s.GetLead(l.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != StatusFailed {
		t.Errorf("expected FAILED, got %s", got.Status)
	}
	if got.LastError != "smtp timeout" {
		t.Errorf("expected stored error, got %q", got.LastError)
	}
}

func TestSetLeadStatusUnknownLead(t *testing.T) {
	s := openTestStore(t)
	if err := s.SetLeadStatus("nope", StatusEnriched, ""); err == nil {
		t.Error("expected error for unknown lead")
	}
}

func TestCountStatusesIncludesZeroes(t *testing.T) {
	s := openTestStore(t)
	insertTestLead(t, s)
	insertTestLead(t, s)

	counts, err := s.CountStatuses()
	if err != nil {
		t.Fatalf("CountStatuses: %v", err)
	}
	if counts["NEW"] != 2 {
		t.Errorf("expected NEW=2, got %d", counts["NEW"])
	}
	for _, st := range []string{"ENRICHED", "COMPOSED", "DELIVERED", "FAILED"} {
		if n, ok := counts[st]; !ok || n != 0 {
			t.Errorf("expected %s present and zero, got %d (present=%v)", st, n, ok)
		}
	}
}

func TestLeadsByStatusAndListing(t *testing.T) {
	s := openTestStore(t)
	a := insertTestLead(t, s)
	insertTestLead(t, s)

	if err := s.SetLeadStatus(a.ID, StatusEnriched, ""); err != nil {
		t.Fatal(err)
	}

	fresh, err := s.LeadsByStatus(StatusNew, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(fresh) != 1 {
		t.Fatalf("expected 1 NEW lead, got %d", len(fresh))
	}

	page, err := s.ListLeads("", 10, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(page) != 2 {
		t.Fatalf("expected 2 leads, got %d", len(page))
	}

	enriched, err := s.ListLeads("ENRICHED", 10, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(enriched) != 1 || enriched[0].ID != a.ID {
		t.Errorf("expected only lead %s in ENRICHED listing", a.ID)
	}
}

func TestMessagesRoundTrip(t *testing.T) {
	s := openTestStore(t)
	l := insertTestLead(t, s)

	if m, err := s.LatestMessage(l.ID); err != nil || m != nil {
		t.Fatalf("expected no message yet, got %v err=%v", m, err)
	}

	first := &Message{LeadID: l.ID, EmailA: "first", CTA: "call?"}
	second := &Message{LeadID: l.ID, EmailA: "second", CTA: "call?"}
	if err := s.InsertMessage(first); err != nil {
		t.Fatal(err)
	}
	if err := s.InsertMessage(second); err != nil {
		t.Fatal(err)
	}

	latest, err := s.LatestMessage(l.ID)
	if err != nil {
		t.Fatal(err)
	}
	if latest == nil || latest.EmailA != "second" {
		t.Errorf("expected latest message to be the second insert, got %+v", latest)
	}

	all, err := s.MessagesForLead(l.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 2 {
		t.Errorf("expected 2 messages, got %d", len(all))
	}
}

func TestRunLifecycle(t *testing.T) {
	s := openTestStore(t)
	seed := int64(42)

	runID, err := s.StartRun("dry", true, &seed, 5)
	if err != nil {
		t.Fatalf("StartRun: %v", err)
	}
	if err := s.FinishRun(runID, 4, 1); err != nil {
		t.Fatalf("FinishRun: %v", err)
	}

	r, err := s.GetRun(runID)
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if r.Mode != "dry" || !r.AIMode || r.Total != 5 {
		t.Errorf("unexpected run %+v", r)
	}
	if r.Seed == nil || *r.Seed != 42 {
		t.Errorf("expected seed 42, got %v", r.Seed)
	}
	if r.Succeeded != 4 || r.Failed != 1 {
		t.Errorf("expected tallies 4/1, got %d/%d", r.Succeeded, r.Failed)
	}
}

func TestAuditLogAndReset(t *testing.T) {
	s := openTestStore(t)
	l := insertTestLead(t, s)

	if err := s.LogEvent("", l.ID, "deliver", "ERROR", "attempt 1: boom"); err != nil {
		t.Fatal(err)
	}
	entries, err := s.RecentAudit(10)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Stage != "deliver" {
		t.Fatalf("unexpected audit entries %+v", entries)
	}

	if err := s.Reset(); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	counts, err := s.CountStatuses()
	if err != nil {
		t.Fatal(err)
	}
	if counts["NEW"] != 0 {
		t.Errorf("expected leads cleared, got NEW=%d", counts["NEW"])
	}
	entries, err = s.RecentAudit(10)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("expected audit log cleared, got %d entries", len(entries))
	}
}
