// ABOUTME: Tests for delivery outcomes: dry runs, live sends, retries to failure, and message-less skips.
package stages

import (
	"context"
	"testing"

	"github.com/2389-research/outreach/pipeline"
	"github.com/2389-research/outreach/store"
)

func composeAll(t *testing.T, stages *Stages) {
	t.Helper()
	if _, err := stages.Compose(context.Background(), pipeline.RunConfig{}); err != nil {
		t.Fatalf("compose: %v", err)
	}
}

func TestDeliverDryRunMarksDelivered(t *testing.T) {
	st := openTestStore(t)
	stages := newTestStages(t, st, Config{MaxRetries: 2})
	seedLeads(t, st, 3, store.StatusEnriched)
	composeAll(t, stages)

	result, err := stages.Deliver(context.Background(), pipeline.RunConfig{DryRun: true})
	if err != nil {
		t.Fatalf("deliver: %v", err)
	}
	if result.Count != 3 {
		t.Errorf("delivered = %d, want 3", result.Count)
	}

	counts, err := st.CountStatuses()
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if counts["DELIVERED"] != 3 || counts["FAILED"] != 0 {
		t.Errorf("counts = %v", counts)
	}
}

func TestDeliverLiveSendsThroughTransports(t *testing.T) {
	st := openTestStore(t)
	email := &fakeTransport{}
	dm := &fakeTransport{}
	stages := newTestStages(t, st, Config{Email: email, DM: dm, RatePerMinute: 600})
	seedLeads(t, st, 2, store.StatusEnriched)
	composeAll(t, stages)

	result, err := stages.Deliver(context.Background(), pipeline.RunConfig{})
	if err != nil {
		t.Fatalf("deliver: %v", err)
	}
	if result.Count != 2 {
		t.Errorf("delivered = %d, want 2", result.Count)
	}
	if len(email.sent) != 2 {
		t.Errorf("emails sent = %d, want 2", len(email.sent))
	}
	if len(dm.sent) != 2 {
		t.Errorf("DMs sent = %d, want 2", len(dm.sent))
	}

	leads, err := st.LeadsByStatus(store.StatusDelivered, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	for _, lead := range leads {
		if lead.LastError != "" {
			t.Errorf("lead %s last error %q, want cleared", lead.ID, lead.LastError)
		}
	}
}

func TestDeliverExhaustedRetriesMarkFailed(t *testing.T) {
	st := openTestStore(t)
	email := &fakeTransport{err: &pipeline.TransientDeliveryError{Cause: errAIDown}}
	stages := newTestStages(t, st, Config{Email: email, MaxRetries: 2})
	seedLeads(t, st, 1, store.StatusEnriched)
	composeAll(t, stages)

	result, err := stages.Deliver(context.Background(), pipeline.RunConfig{})
	if err != nil {
		t.Fatalf("deliver: %v", err)
	}
	if result.Count != 0 {
		t.Errorf("delivered = %d, want 0", result.Count)
	}
	if got := result.Extra["failed"]; got != 1 {
		t.Errorf("failed extra = %v, want 1", got)
	}

	leads, err := st.LeadsByStatus(store.StatusFailed, 0)
	if err != nil || len(leads) != 1 {
		t.Fatalf("FAILED leads = %d (err %v)", len(leads), err)
	}
	if leads[0].LastError == "" {
		t.Error("failed lead missing stored error")
	}

	// Each failed attempt plus the terminal failure is audited.
	entries, err := st.RecentAudit(20)
	if err != nil {
		t.Fatalf("audit: %v", err)
	}
	errorEntries := 0
	for _, e := range entries {
		if e.Level == "ERROR" && e.LeadID == leads[0].ID {
			errorEntries++
		}
	}
	if errorEntries < 3 {
		t.Errorf("error audit entries = %d, want one per attempt", errorEntries)
	}
}

func TestDeliverSkipsLeadWithoutMessage(t *testing.T) {
	st := openTestStore(t)
	stages := newTestStages(t, st, Config{})
	leads := seedLeads(t, st, 1, store.StatusComposed) // composed status, no message row

	result, err := stages.Deliver(context.Background(), pipeline.RunConfig{DryRun: true})
	if err != nil {
		t.Fatalf("deliver: %v", err)
	}
	if result.Count != 0 {
		t.Errorf("delivered = %d, want 0", result.Count)
	}
	if len(result.Skips) != 1 || result.Skips[0].LeadID != leads[0].ID {
		t.Fatalf("skips = %+v, want the message-less lead", result.Skips)
	}

	lead, err := st.GetLead(leads[0].ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if lead.Status != store.StatusComposed {
		t.Errorf("status = %s, want unchanged COMPOSED", lead.Status)
	}
}

func TestDeliverConfigurationErrorNotRetried(t *testing.T) {
	st := openTestStore(t)
	email := &SMTPTransport{} // no host configured
	stages := newTestStages(t, st, Config{Email: email, MaxRetries: 5})
	seedLeads(t, st, 1, store.StatusEnriched)
	composeAll(t, stages)

	result, err := stages.Deliver(context.Background(), pipeline.RunConfig{})
	if err != nil {
		t.Fatalf("deliver: %v", err)
	}
	if result.Count != 0 {
		t.Errorf("delivered = %d, want 0", result.Count)
	}

	leads, err := st.LeadsByStatus(store.StatusFailed, 0)
	if err != nil || len(leads) != 1 {
		t.Fatalf("FAILED leads = %d (err %v)", len(leads), err)
	}

	// One attempt only: the configuration error short-circuits the retries.
	entries, err := st.RecentAudit(20)
	if err != nil {
		t.Fatalf("audit: %v", err)
	}
	attempts := 0
	for _, e := range entries {
		if e.Level == "ERROR" && e.LeadID == leads[0].ID && e.Stage == "deliver" {
			attempts++
		}
	}
	if attempts != 2 { // one per-attempt entry plus the terminal entry
		t.Errorf("error audit entries = %d, want 2", attempts)
	}
}
