// ABOUTME: Enrich stage: fills company size, persona, pains, triggers, and confidence for NEW leads.
// ABOUTME: AI mode asks the LLM and falls back to rule heuristics; every lead still advances to ENRICHED.
package stages

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"strings"

	"github.com/2389-research/outreach/llm"
	"github.com/2389-research/outreach/pipeline"
	"github.com/2389-research/outreach/store"
)

const enrichSystemPrompt = `You are a B2B sales research assistant. Given a lead, infer their firmographic profile.
Return ONLY a JSON object with these exact keys:
- company_size: one of "SMB", "Mid-Market", "Enterprise"
- persona: a short persona tag such as "Executive", "C-Suite", "Director"
- pains: an array of 2 likely pain points for this industry and role
- triggers: an array of 1 likely buying trigger
- confidence: a number between 55 and 98 scoring how confident you are`

// Enrich processes every NEW lead. AI failures fall back to heuristics and
// are counted; only store failures abort the stage.
func (s *Stages) Enrich(ctx context.Context, cfg pipeline.RunConfig) (pipeline.StageResult, error) {
	leads, err := s.store.LeadsByStatus(store.StatusNew, 0)
	if err != nil {
		return pipeline.StageResult{}, fmt.Errorf("load NEW leads: %w", err)
	}

	rng := newRNG(cfg.Seed)
	rules := s.rules.Current()
	aiFailures := 0

	for i := range leads {
		select {
		case <-ctx.Done():
			return pipeline.StageResult{Count: i}, ctx.Err()
		default:
		}

		lead := &leads[i]
		useAI := cfg.AIMode && s.client != nil
		if useAI {
			if err := s.enrichWithAI(ctx, lead); err != nil {
				s.logger.Warn("AI enrichment failed, using heuristics",
					"lead", lead.ID, "error", err)
				aiFailures++
				applyHeuristics(lead, rules, rng)
			}
		} else {
			applyHeuristics(lead, rules, rng)
		}

		if err := s.store.UpdateEnrichment(lead); err != nil {
			return pipeline.StageResult{Count: i}, fmt.Errorf("store enrichment for %s: %w", lead.ID, err)
		}
		if err := s.store.SetLeadStatus(lead.ID, store.StatusEnriched, ""); err != nil {
			return pipeline.StageResult{Count: i}, fmt.Errorf("advance %s: %w", lead.ID, err)
		}
	}

	s.logger.Info("enriched leads", "count", len(leads), "ai_mode", cfg.AIMode, "ai_failures", aiFailures)
	if err := s.store.LogEvent(pipeline.RunIDFrom(ctx), "", "enrich", "INFO",
		fmt.Sprintf("Enriched %d leads ai_mode=%v", len(leads), cfg.AIMode)); err != nil {
		s.logger.Warn("audit log write failed", "error", err)
	}

	result := pipeline.StageResult{Count: len(leads)}
	if aiFailures > 0 {
		result.Extra = map[string]any{"ai_failures": aiFailures}
	}
	return result, nil
}

// enrichmentReply mirrors the JSON shape requested from the model.
type enrichmentReply struct {
	CompanySize string   `json:"company_size"`
	Persona     string   `json:"persona"`
	Pains       []string `json:"pains"`
	Triggers    []string `json:"triggers"`
	Confidence  float64  `json:"confidence"`
}

func (s *Stages) enrichWithAI(ctx context.Context, lead *store.Lead) error {
	user := fmt.Sprintf("Name: %s\nTitle: %s\nCompany: %s\nIndustry: %s\nCountry: %s",
		lead.FullName, lead.Title, lead.Company, lead.Industry, lead.Country)

	text, err := s.client.Complete(ctx, enrichSystemPrompt, user)
	if err != nil {
		return err
	}

	var reply enrichmentReply
	if err := llm.DecodeJSON(text, &reply); err != nil {
		return err
	}
	if reply.CompanySize == "" || reply.Persona == "" {
		return fmt.Errorf("enrichment reply incomplete")
	}

	lead.CompanySize = reply.CompanySize
	lead.Persona = reply.Persona
	lead.Pains = strings.Join(reply.Pains, "; ")
	lead.Triggers = strings.Join(reply.Triggers, "; ")
	lead.Confidence = clampConfidence(reply.Confidence)
	return nil
}

// applyHeuristics fills enrichment fields from the targeting rules.
func applyHeuristics(lead *store.Lead, rules *RuleSet, rng *rand.Rand) {
	size, sizeKnown := rules.CompanySizeRules[lead.Industry]
	if !sizeKnown {
		size = "Mid-Market"
	}
	lead.CompanySize = size
	lead.Persona = rules.PersonaFor(lead.Title)

	pains := sample(rng, rules.PainPoints[lead.Industry], 2)
	if len(pains) == 0 {
		pains = sample(rng, rules.DefaultPains, 2)
	}
	lead.Pains = strings.Join(pains, "; ")

	triggers := sample(rng, rules.Triggers[lead.Industry], 1)
	if len(triggers) == 0 {
		triggers = sample(rng, rules.DefaultTriggers, 1)
	}
	lead.Triggers = strings.Join(triggers, "; ")

	lead.Confidence = scoreConfidence(lead, rules, sizeKnown, rng)
}

// scoreConfidence estimates data quality from industry coverage, title
// seniority, and market tier, with a little jitter.
func scoreConfidence(lead *store.Lead, rules *RuleSet, industryKnown bool, rng *rand.Rand) float64 {
	confidence := 50.0
	if industryKnown {
		confidence += 15
	}

	title := strings.ToLower(lead.Title)
	switch {
	case containsAny(title, "cto", "ceo", "cfo", "coo", "vp", "chief"):
		confidence += 20
	case containsAny(title, "director", "head"):
		confidence += 15
	case containsAny(title, "manager", "lead", "senior"):
		confidence += 10
	default:
		confidence += 5 + rng.Float64()*7
	}

	if containsString(rules.Tier1Countries, lead.Country) {
		confidence += 10
	} else {
		confidence += 3 + rng.Float64()*5
	}

	confidence += rng.Float64()*10 - 5
	return clampConfidence(confidence)
}

func clampConfidence(v float64) float64 {
	return math.Round(math.Max(55, math.Min(98, v))*10) / 10
}

// sample picks up to k distinct items from items.
func sample(rng *rand.Rand, items []string, k int) []string {
	if len(items) == 0 {
		return nil
	}
	if k > len(items) {
		k = len(items)
	}
	perm := rng.Perm(len(items))
	out := make([]string, 0, k)
	for _, idx := range perm[:k] {
		out = append(out, items[idx])
	}
	return out
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func containsString(items []string, v string) bool {
	for _, item := range items {
		if item == v {
			return true
		}
	}
	return false
}
