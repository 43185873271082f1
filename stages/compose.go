// ABOUTME: Compose stage: writes A/B email and DM variants for every ENRICHED lead.
// ABOUTME: Per-lead failures skip the lead explicitly and leave its status unchanged.
package stages

import (
	"context"
	"fmt"
	"strings"

	"github.com/2389-research/outreach/llm"
	"github.com/2389-research/outreach/pipeline"
	"github.com/2389-research/outreach/store"
)

// CallToAction closes every outbound message.
const CallToAction = "Would you be open to a 15-minute call next week?"

const (
	emailMaxWords = 120
	dmMaxWords    = 60
)

const composeSystemPrompt = `You are an expert B2B sales copywriter. Generate highly personalized outreach messages.
Return ONLY a valid JSON object (no markdown, no explanation) with these exact keys:
- email_a: A pain-focused email (max 120 words). Empathize with their challenges.
- email_b: A trigger/opportunity-focused email (max 120 words). Highlight timing and opportunity.
- dm_a: A brief LinkedIn DM (max 60 words). Pain-focused, conversational.
- dm_b: A brief LinkedIn DM (max 60 words). Opportunity-focused, forward-looking.

Each message MUST use their first name, reference their company and role, mention
their specific pain points or triggers, sound natural, and end with a clear CTA
for a 15-minute call.`

// MessageContent holds the variants produced for one lead.
type MessageContent struct {
	EmailA string
	EmailB string
	DMA    string
	DMB    string
}

// Compose builds messages for every ENRICHED lead and advances each to
// COMPOSED. A lead whose message cannot be produced or stored is skipped and
// reported; the rest of the batch continues.
func (s *Stages) Compose(ctx context.Context, cfg pipeline.RunConfig) (pipeline.StageResult, error) {
	leads, err := s.store.LeadsByStatus(store.StatusEnriched, 0)
	if err != nil {
		return pipeline.StageResult{}, fmt.Errorf("load ENRICHED leads: %w", err)
	}

	var skips []pipeline.RecordSkip
	composed := 0

	for i := range leads {
		select {
		case <-ctx.Done():
			return pipeline.StageResult{Count: composed, Skips: skips}, ctx.Err()
		default:
		}

		lead := &leads[i]
		content, err := s.build(ctx, cfg.AIMode && s.client != nil, lead)
		if err != nil {
			s.logger.Warn("message build failed, skipping lead", "lead", lead.ID, "error", err)
			skips = append(skips, pipeline.RecordSkip{LeadID: lead.ID, Reason: err.Error()})
			s.auditWarn(ctx, lead.ID, "compose", fmt.Sprintf("skipped: %v", err))
			continue
		}

		msg := &store.Message{
			LeadID: lead.ID,
			EmailA: content.EmailA,
			EmailB: content.EmailB,
			DMA:    content.DMA,
			DMB:    content.DMB,
			CTA:    CallToAction,
		}
		if err := s.store.InsertMessage(msg); err != nil {
			s.logger.Warn("message insert failed, skipping lead", "lead", lead.ID, "error", err)
			skips = append(skips, pipeline.RecordSkip{LeadID: lead.ID, Reason: err.Error()})
			s.auditWarn(ctx, lead.ID, "compose", fmt.Sprintf("skipped: %v", err))
			continue
		}
		if err := s.store.SetLeadStatus(lead.ID, store.StatusComposed, ""); err != nil {
			return pipeline.StageResult{Count: composed, Skips: skips}, fmt.Errorf("advance %s: %w", lead.ID, err)
		}
		composed++
	}

	s.logger.Info("composed messages", "count", composed, "skipped", len(skips), "ai_mode", cfg.AIMode)
	if err := s.store.LogEvent(pipeline.RunIDFrom(ctx), "", "compose", "INFO",
		fmt.Sprintf("Composed messages for %d leads (ai_mode=%v)", composed, cfg.AIMode)); err != nil {
		s.logger.Warn("audit log write failed", "error", err)
	}

	return pipeline.StageResult{Count: composed, Skips: skips}, nil
}

func (s *Stages) auditWarn(ctx context.Context, leadID, stage, message string) {
	if err := s.store.LogEvent(pipeline.RunIDFrom(ctx), leadID, stage, "WARNING", message); err != nil {
		s.logger.Warn("audit log write failed", "error", err)
	}
}

// defaultBuild produces content with the LLM when AI mode is on, falling
// back to the templates on any AI failure.
func (s *Stages) defaultBuild(ctx context.Context, aiMode bool, lead *store.Lead) (MessageContent, error) {
	if aiMode {
		content, err := s.composeWithAI(ctx, lead)
		if err == nil {
			return content, nil
		}
		s.logger.Warn("AI compose failed, using templates", "lead", lead.ID, "error", err)
	}
	return templateContent(lead), nil
}

// composeReply mirrors the JSON shape requested from the model.
type composeReply struct {
	EmailA string `json:"email_a"`
	EmailB string `json:"email_b"`
	DMA    string `json:"dm_a"`
	DMB    string `json:"dm_b"`
}

func (s *Stages) composeWithAI(ctx context.Context, lead *store.Lead) (MessageContent, error) {
	user := fmt.Sprintf(`Generate personalized outreach messages for this lead:

Name: %s
Title: %s
Company: %s
Industry: %s
Country: %s
Company Size: %s
Persona: %s
Pain Points: %s
Buying Triggers: %s`,
		lead.FullName, lead.Title, lead.Company, lead.Industry, lead.Country,
		orDefault(lead.CompanySize, "Unknown"),
		orDefault(lead.Persona, "Business Leader"),
		orDefault(lead.Pains, "Operational challenges"),
		orDefault(lead.Triggers, "Growth initiatives"))

	text, err := s.client.Complete(ctx, composeSystemPrompt, user)
	if err != nil {
		return MessageContent{}, err
	}

	var reply composeReply
	if err := llm.DecodeJSON(text, &reply); err != nil {
		return MessageContent{}, err
	}
	if reply.EmailA == "" || reply.DMA == "" {
		return MessageContent{}, fmt.Errorf("compose reply incomplete")
	}

	return MessageContent{
		EmailA: truncateWords(reply.EmailA, emailMaxWords),
		EmailB: truncateWords(reply.EmailB, emailMaxWords),
		DMA:    truncateWords(reply.DMA, dmMaxWords),
		DMB:    truncateWords(reply.DMB, dmMaxWords),
	}, nil
}

// templateContent renders the four variants from the built-in templates.
func templateContent(lead *store.Lead) MessageContent {
	first := firstName(lead.FullName)
	pains := orDefault(lead.Pains, "operational friction")
	persona := orDefault(lead.Persona, "teams")
	triggers := orDefault(lead.Triggers, "upcoming initiatives")
	firstPain := strings.TrimSpace(strings.SplitN(orDefault(lead.Pains, "common challenges"), ";", 2)[0])
	firstTrigger := strings.TrimSpace(strings.SplitN(orDefault(lead.Triggers, "growth phase"), ";", 2)[0])

	emailA := fmt.Sprintf(
		"Hi %s,\n\nI noticed your role at %s in %s. Many %s leaders I work with face similar challenges: %s. "+
			"I've helped teams reduce these friction points significantly.\n\n%s\n\nBest regards",
		first, lead.Company, lead.Industry, persona, pains, CallToAction)

	emailB := fmt.Sprintf(
		"Hi %s,\n\nWith %s happening in %s, teams like yours at %s often see this as the right moment to "+
			"optimize operations. I'd love to share a quick framework that's helped similar organizations.\n\n%s\n\nCheers",
		first, triggers, lead.Industry, lead.Company, CallToAction)

	dmA := fmt.Sprintf(
		"Hi %s, noticed your work at %s. Many in similar roles tackle %s. Happy to share a 10-min teardown if useful. %s",
		first, lead.Company, firstPain, CallToAction)

	dmB := fmt.Sprintf(
		"Hi %s, saw your profile and %s's momentum. With %s, now could be ideal timing to streamline operations. Quick call? %s",
		first, lead.Company, firstTrigger, CallToAction)

	return MessageContent{
		EmailA: truncateWords(emailA, emailMaxWords),
		EmailB: truncateWords(emailB, emailMaxWords),
		DMA:    truncateWords(dmA, dmMaxWords),
		DMB:    truncateWords(dmB, dmMaxWords),
	}
}

// truncateWords caps text at max words, closing with an ellipsis when the
// cut does not land on sentence punctuation.
func truncateWords(text string, max int) string {
	words := strings.Fields(text)
	if len(words) <= max {
		return text
	}
	truncated := strings.Join(words[:max], " ")
	if !strings.HasSuffix(truncated, ".") && !strings.HasSuffix(truncated, "!") && !strings.HasSuffix(truncated, "?") {
		truncated = strings.TrimRight(truncated, ",;:") + "..."
	}
	return truncated
}

func firstName(full string) string {
	if fields := strings.Fields(full); len(fields) > 0 {
		return fields[0]
	}
	return full
}

func orDefault(v, fallback string) string {
	if strings.TrimSpace(v) == "" {
		return fallback
	}
	return v
}
