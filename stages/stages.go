// ABOUTME: Wiring for the four pipeline stages over the store, rules, LLM client, and transports.
package stages

import (
	"context"
	"log/slog"
	"math/rand"
	"time"

	"github.com/2389-research/outreach/llm"
	"github.com/2389-research/outreach/pipeline"
	"github.com/2389-research/outreach/store"
)

// Config collects the collaborators the stages need.
type Config struct {
	Store  *store.Store
	Rules  *Rules
	Client llm.Client // nil disables AI mode regardless of run config
	Email  Transport
	DM     Transport
	Logger *slog.Logger

	// Delivery guard settings. A fresh guard is built per run so pacing
	// state never leaks across runs.
	RatePerMinute int
	MaxRetries    int

	// Clock and Sleep are test hooks passed through to the guard.
	Clock pipeline.Clock
	Sleep func(time.Duration)
}

// Stages bundles the four stage implementations.
type Stages struct {
	store         *store.Store
	rules         *Rules
	client        llm.Client
	email         Transport
	dm            Transport
	logger        *slog.Logger
	ratePerMinute int
	maxRetries    int
	clock         pipeline.Clock
	sleep         func(time.Duration)

	// build produces message content for one lead. Swappable in tests.
	build func(ctx context.Context, aiMode bool, lead *store.Lead) (MessageContent, error)
}

// New wires the stages from cfg, filling defaults for optional pieces.
func New(cfg Config) *Stages {
	s := &Stages{
		store:         cfg.Store,
		rules:         cfg.Rules,
		client:        cfg.Client,
		email:         cfg.Email,
		dm:            cfg.DM,
		logger:        cfg.Logger,
		ratePerMinute: cfg.RatePerMinute,
		maxRetries:    cfg.MaxRetries,
		clock:         cfg.Clock,
		sleep:         cfg.Sleep,
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.rules == nil {
		s.rules = NewRules("", s.logger)
	}
	if s.dm == nil {
		s.dm = SimulatedDM{Logger: s.logger}
	}
	s.build = s.defaultBuild
	return s
}

// Pipeline returns the stages in execution order for the controller.
func (s *Stages) Pipeline() []pipeline.Stage {
	return []pipeline.Stage{
		{Name: "generate", Run: s.Generate},
		{Name: "enrich", Run: s.Enrich},
		{Name: "compose", Run: s.Compose},
		{Name: "deliver", Run: s.Deliver},
	}
}

// newRNG returns a rand source, deterministic when a seed is supplied.
func newRNG(seed *int64) *rand.Rand {
	if seed != nil {
		return rand.New(rand.NewSource(*seed))
	}
	return rand.New(rand.NewSource(time.Now().UnixNano()))
}
