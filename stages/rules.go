// ABOUTME: Targeting rules driving heuristic enrichment, loaded from YAML with built-in defaults.
// ABOUTME: The manager caches the active set and supports reload and validated replacement.
package stages

import (
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// RuleSet holds the targeting rules consulted by heuristic enrichment.
type RuleSet struct {
	CompanySizeRules map[string]string   `yaml:"company_size_rules" json:"company_size_rules"`
	PersonaRules     map[string]string   `yaml:"persona_rules" json:"persona_rules"`
	PainPoints       map[string][]string `yaml:"pain_points" json:"pain_points"`
	Triggers         map[string][]string `yaml:"triggers" json:"triggers"`
	DefaultPains     []string            `yaml:"default_pains" json:"default_pains"`
	DefaultTriggers  []string            `yaml:"default_triggers" json:"default_triggers"`
	Tier1Countries   []string            `yaml:"tier1_countries" json:"tier1_countries"`
}

// DefaultRules returns the built-in rule set used when no rules file exists.
func DefaultRules() *RuleSet {
	return &RuleSet{
		CompanySizeRules: map[string]string{
			"Software":      "SMB",
			"Manufacturing": "Enterprise",
			"Retail":        "Mid-Market",
			"Healthcare":    "Mid-Market",
			"Logistics":     "Mid-Market",
		},
		PersonaRules: map[string]string{
			"VP":       "Executive",
			"Head":     "Department Head",
			"Director": "Director",
			"Manager":  "Manager",
			"Lead":     "Team Lead",
			"CTO":      "C-Suite",
			"CEO":      "C-Suite",
			"CFO":      "C-Suite",
		},
		PainPoints: map[string][]string{
			"Software":      {"Release velocity bottlenecks", "Rising cloud costs", "Technical debt"},
			"Manufacturing": {"Downtime and maintenance", "Supplier risk", "Quality control"},
			"Retail":        {"Inventory accuracy", "Cart abandonment", "Customer retention"},
			"Healthcare":    {"Staffing shortages", "Compliance overhead", "Patient satisfaction"},
			"Logistics":     {"On-time delivery", "Route inefficiency", "Fuel cost management"},
		},
		Triggers: map[string][]string{
			"Software":      {"New product launch", "Security incidents", "Scaling challenges"},
			"Manufacturing": {"Line expansions", "New plant", "Automation initiatives"},
			"Retail":        {"Peak season", "New store openings", "E-commerce expansion"},
			"Healthcare":    {"Regulatory change", "EHR upgrade", "Facility expansion"},
			"Logistics":     {"Fuel spikes", "Network redesign", "Fleet modernization"},
		},
		DefaultPains:    []string{"Operational inefficiency", "Cost optimization needs"},
		DefaultTriggers: []string{"Budget cycle", "Strategic planning phase"},
		Tier1Countries:  []string{"USA", "UK", "Canada", "Germany", "France", "Australia"},
	}
}

// Validate checks that the rule set covers every section enrichment consults.
func (r *RuleSet) Validate() error {
	var missing []string
	if len(r.CompanySizeRules) == 0 {
		missing = append(missing, "company_size_rules")
	}
	if len(r.PersonaRules) == 0 {
		missing = append(missing, "persona_rules")
	}
	if len(r.PainPoints) == 0 {
		missing = append(missing, "pain_points")
	}
	if len(r.Triggers) == 0 {
		missing = append(missing, "triggers")
	}
	if len(missing) > 0 {
		return fmt.Errorf("targeting rules missing sections: %s", strings.Join(missing, ", "))
	}
	return nil
}

// PersonaFor derives a persona tag from a job title by keyword match. Keys
// are tried longest first so "CTO" cannot shadow a longer match; ties break
// alphabetically to keep the result deterministic.
func (r *RuleSet) PersonaFor(title string) string {
	keys := make([]string, 0, len(r.PersonaRules))
	for k := range r.PersonaRules {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if len(keys[i]) != len(keys[j]) {
			return len(keys[i]) > len(keys[j])
		}
		return keys[i] < keys[j]
	})

	lower := strings.ToLower(title)
	for _, k := range keys {
		if strings.Contains(lower, strings.ToLower(k)) {
			return r.PersonaRules[k]
		}
	}
	return "Professional"
}

// Rules manages the active rule set: lazy file load, cache, reload, and
// validated replacement.
type Rules struct {
	path   string
	logger *slog.Logger

	mu     sync.RWMutex
	active *RuleSet
}

// NewRules creates a manager reading from path. The file is loaded on first
// use; a missing or malformed file falls back to the defaults.
func NewRules(path string, logger *slog.Logger) *Rules {
	if logger == nil {
		logger = slog.Default()
	}
	return &Rules{path: path, logger: logger}
}

// Current returns the active rule set, loading it on first call.
func (r *Rules) Current() *RuleSet {
	r.mu.RLock()
	active := r.active
	r.mu.RUnlock()
	if active != nil {
		return active
	}
	return r.Reload()
}

// Reload re-reads the rules file, falling back to defaults on any problem.
func (r *Rules) Reload() *RuleSet {
	rs := r.load()

	r.mu.Lock()
	r.active = rs
	r.mu.Unlock()
	return rs
}

func (r *Rules) load() *RuleSet {
	if r.path == "" {
		return DefaultRules()
	}

	data, err := os.ReadFile(r.path)
	if err != nil {
		if !os.IsNotExist(err) {
			r.logger.Warn("targeting rules unreadable, using defaults", "path", r.path, "error", err)
		}
		return DefaultRules()
	}

	var rs RuleSet
	if err := yaml.Unmarshal(data, &rs); err != nil {
		r.logger.Warn("targeting rules malformed, using defaults", "path", r.path, "error", err)
		return DefaultRules()
	}
	if err := rs.Validate(); err != nil {
		r.logger.Warn("targeting rules incomplete, using defaults", "path", r.path, "error", err)
		return DefaultRules()
	}

	r.logger.Info("loaded targeting rules", "path", r.path)
	return &rs
}

// Replace validates rs, persists it to the rules file, and makes it active.
func (r *Rules) Replace(rs *RuleSet) error {
	if err := rs.Validate(); err != nil {
		return err
	}

	if r.path != "" {
		data, err := yaml.Marshal(rs)
		if err != nil {
			return fmt.Errorf("encode targeting rules: %w", err)
		}
		if err := os.WriteFile(r.path, data, 0o644); err != nil {
			return fmt.Errorf("write targeting rules: %w", err)
		}
	}

	r.mu.Lock()
	r.active = rs
	r.mu.Unlock()
	return nil
}
