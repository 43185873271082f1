// ABOUTME: Generate stage: seeds the store with synthetic leads whose titles fit their industry.
package stages

import (
	"context"
	"fmt"
	"strings"

	"github.com/brianvoe/gofakeit/v6"

	"github.com/2389-research/outreach/pipeline"
	"github.com/2389-research/outreach/store"
)

// industryRoles keeps generated titles plausible for the industry.
var industryRoles = map[string][]string{
	"Software":      {"VP Engineering", "Head of Product", "CTO", "Engineering Manager"},
	"Manufacturing": {"VP Operations", "Plant Manager", "Supply Chain Director"},
	"Retail":        {"VP Merchandising", "Director of E-commerce", "Operations Lead"},
	"Healthcare":    {"Director of Nursing", "VP Clinical Operations", "Health IT Lead"},
	"Logistics":     {"VP Logistics", "Head of Procurement", "Supply Chain Lead"},
}

var industries = []string{"Software", "Manufacturing", "Retail", "Healthcare", "Logistics"}

var countries = []string{"US", "UK", "CA", "DE", "FR", "IN", "SG", "AU"}

// Generate inserts cfg.Count synthetic leads in NEW status. A seed makes the
// batch reproducible.
func (s *Stages) Generate(ctx context.Context, cfg pipeline.RunConfig) (pipeline.StageResult, error) {
	var faker *gofakeit.Faker
	if cfg.Seed != nil {
		faker = gofakeit.New(*cfg.Seed)
	} else {
		faker = gofakeit.New(0)
	}
	rng := newRNG(cfg.Seed)

	for i := 0; i < cfg.Count; i++ {
		select {
		case <-ctx.Done():
			return pipeline.StageResult{Count: i}, ctx.Err()
		default:
		}

		industry := industries[rng.Intn(len(industries))]
		name := faker.Name()
		company := faker.Company()
		domain := faker.DomainName()
		roles := industryRoles[industry]

		lead := &store.Lead{
			FullName: name,
			Company:  company,
			Title:    roles[rng.Intn(len(roles))],
			Industry: industry,
			Website:  "https://" + domain,
			Email:    leadEmail(name, domain),
			LinkedIn: linkedInURL(name, company),
			Country:  countries[rng.Intn(len(countries))],
			Status:   store.StatusNew,
		}
		if err := s.store.InsertLead(lead); err != nil {
			return pipeline.StageResult{Count: i}, fmt.Errorf("insert lead: %w", err)
		}
	}

	s.logger.Info("generated leads", "count", cfg.Count)
	if err := s.store.LogEvent(pipeline.RunIDFrom(ctx), "", "generate", "INFO",
		fmt.Sprintf("Generated %d leads", cfg.Count)); err != nil {
		s.logger.Warn("audit log write failed", "error", err)
	}
	return pipeline.StageResult{Count: cfg.Count}, nil
}

// leadEmail builds name@domain with the name lowercased and dot-joined.
func leadEmail(name, domain string) string {
	base := strings.ToLower(strings.ReplaceAll(name, " ", "."))
	return base + "@" + domain
}

// linkedInURL builds a profile URL from a name-and-company slug, capped at
// 60 characters.
func linkedInURL(name, company string) string {
	slug := strings.Join(strings.Fields(strings.ToLower(name+" "+company)), "-")
	if len(slug) > 60 {
		slug = slug[:60]
	}
	return "https://www.linkedin.com/in/" + slug
}
