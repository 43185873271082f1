// ABOUTME: Deliver stage: sends each COMPOSED lead's latest message through the rate-limited guard.
// ABOUTME: Success marks DELIVERED with a cleared error; exhaustion marks FAILED with the last error.
package stages

import (
	"context"
	"fmt"

	"github.com/2389-research/outreach/pipeline"
	"github.com/2389-research/outreach/store"
)

const emailSubject = "Quick idea for your team"

// Deliver sends outreach for every COMPOSED lead. Leads without a composed
// message are skipped with a warning and keep their status.
func (s *Stages) Deliver(ctx context.Context, cfg pipeline.RunConfig) (pipeline.StageResult, error) {
	leads, err := s.store.LeadsByStatus(store.StatusComposed, 0)
	if err != nil {
		return pipeline.StageResult{}, fmt.Errorf("load COMPOSED leads: %w", err)
	}

	runID := pipeline.RunIDFrom(ctx)
	audit := func(leadID, level, message string) {
		if err := s.store.LogEvent(runID, leadID, "deliver", level, message); err != nil {
			s.logger.Warn("audit log write failed", "error", err)
		}
	}

	guard := pipeline.NewGuard(pipeline.GuardConfig{
		RatePerMinute: s.ratePerMinute,
		MaxRetries:    s.maxRetries,
		Clock:         s.clock,
		Sleep:         s.sleep,
		Audit:         audit,
	})

	var skips []pipeline.RecordSkip
	delivered := 0
	failed := 0

	for i := range leads {
		select {
		case <-ctx.Done():
			return pipeline.StageResult{Count: delivered, Skips: skips}, ctx.Err()
		default:
		}

		lead := &leads[i]
		msg, err := s.store.LatestMessage(lead.ID)
		if err != nil {
			return pipeline.StageResult{Count: delivered, Skips: skips}, fmt.Errorf("load message for %s: %w", lead.ID, err)
		}
		if msg == nil {
			s.logger.Warn("no message for lead, skipping", "lead", lead.ID)
			skips = append(skips, pipeline.RecordSkip{LeadID: lead.ID, Reason: "no composed message"})
			audit(lead.ID, "WARNING", "no composed message, skipped")
			continue
		}

		outcome := guard.Deliver(ctx, lead.ID, !cfg.DryRun, func() error {
			return s.send(lead, msg, cfg.DryRun, audit)
		})

		if outcome.Delivered() {
			if err := s.store.SetLeadStatus(lead.ID, store.StatusDelivered, ""); err != nil {
				return pipeline.StageResult{Count: delivered, Skips: skips}, fmt.Errorf("advance %s: %w", lead.ID, err)
			}
			delivered++
			audit(lead.ID, "INFO", "send succeeded")
			continue
		}

		if err := s.store.SetLeadStatus(lead.ID, store.StatusFailed, outcome.Err.Error()); err != nil {
			return pipeline.StageResult{Count: delivered, Skips: skips}, fmt.Errorf("fail %s: %w", lead.ID, err)
		}
		failed++
		audit(lead.ID, "ERROR", fmt.Sprintf("send failed after %d attempts: %v", outcome.Attempts, outcome.Err))
	}

	s.logger.Info("delivery finished", "delivered", delivered, "failed", failed,
		"skipped", len(skips), "dry_run", cfg.DryRun)
	if err := s.store.LogEvent(runID, "", "deliver", "INFO",
		fmt.Sprintf("Delivered %d, failed %d of %d leads", delivered, failed, len(leads))); err != nil {
		s.logger.Warn("audit log write failed", "error", err)
	}

	result := pipeline.StageResult{Count: delivered, Skips: skips}
	if failed > 0 {
		result.Extra = map[string]any{"failed": failed}
	}
	return result, nil
}

// send performs one delivery attempt: email plus simulated DM in live mode,
// log-only in dry-run mode.
func (s *Stages) send(lead *store.Lead, msg *store.Message, dryRun bool, audit pipeline.AuditFunc) error {
	if dryRun {
		s.logger.Info("dry-run send", "lead", lead.FullName, "email", lead.Email)
		audit(lead.ID, "INFO", fmt.Sprintf("Dry-run send to %s", lead.Email))
		return nil
	}

	if s.email == nil {
		return &pipeline.ConfigurationError{Missing: "email transport"}
	}
	if err := s.email.Send(emailSubject, msg.EmailA, lead.Email); err != nil {
		return err
	}
	return s.dm.Send("", msg.DMA, lead.LinkedIn)
}
