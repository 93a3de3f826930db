// Package registry tracks live simulations: it creates them, serializes
// stepping, streams step records to subscribers and evicts idle runs.
package registry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/policylab/tradewar/internal/domain"
	"github.com/policylab/tradewar/internal/results"
	"github.com/policylab/tradewar/internal/sim"
	"github.com/policylab/tradewar/pkg/logger"
)

const (
	// idleTTL is how long a simulation may go without a step before the
	// cleanup job evicts it. Stored results survive eviction.
	idleTTL = 2 * time.Hour

	cleanupSchedule = "@every 10m"
)

// Simulation is one live run: an engine, its stability analyzer and the
// step bookkeeping. All stepping is serialized through mu.
type Simulation struct {
	ID           string
	Seed         int64
	StepsPerYear int
	CreatedAt    time.Time

	engine   *sim.Engine
	analyzer *sim.StabilityAnalyzer

	mu          sync.Mutex
	stepsTaken  int
	lastActive  time.Time
	subscribers map[chan results.StepRecord]struct{}
}

// Registry owns every live simulation.
type Registry struct {
	mu   sync.RWMutex
	sims map[string]*Simulation

	repo    *results.Repository
	cron    *cron.Cron
	log     zerolog.Logger
	idleTTL time.Duration
}

// New creates a registry and starts its idle-eviction job. repo may be
// nil to disable persistence.
func New(repo *results.Repository, log zerolog.Logger) *Registry {
	r := &Registry{
		sims:    make(map[string]*Simulation),
		repo:    repo,
		cron:    cron.New(),
		log:     logger.ForComponent(log, "registry"),
		idleTTL: idleTTL,
	}

	if _, err := r.cron.AddFunc(cleanupSchedule, r.evictIdle); err != nil {
		r.log.Error().Err(err).Msg("Failed to schedule cleanup job")
	}
	r.cron.Start()

	return r
}

// Close stops the cleanup job.
func (r *Registry) Close() {
	r.cron.Stop()
}

// CreateConfig describes a new simulation.
type CreateConfig struct {
	Engine       sim.EngineConfig
	StepsPerYear int
}

// Create builds a simulation from the engine configuration and registers
// it under a fresh ID.
func (r *Registry) Create(cfg CreateConfig) (*Simulation, error) {
	engine, err := sim.NewEngine(cfg.Engine)
	if err != nil {
		return nil, err
	}

	// More steps per year than quarters would let Period indices collide
	// across year boundaries, so the value is clamped, not just defaulted.
	stepsPerYear := cfg.StepsPerYear
	if stepsPerYear <= 0 || stepsPerYear > domain.QuartersPerYear {
		stepsPerYear = domain.QuartersPerYear
	}

	s := &Simulation{
		ID:           uuid.New().String(),
		Seed:         cfg.Engine.Seed,
		StepsPerYear: stepsPerYear,
		CreatedAt:    time.Now(),
		engine:       engine,
		analyzer:     sim.NewStabilityAnalyzer(sim.DefaultStabilityThresholds(), cfg.Engine.Log),
		lastActive:   time.Now(),
		subscribers:  make(map[chan results.StepRecord]struct{}),
	}

	r.mu.Lock()
	r.sims[s.ID] = s
	r.mu.Unlock()

	if r.repo != nil {
		countries := make([]string, 0)
		for _, c := range engine.State().Countries() {
			countries = append(countries, c.Name)
		}
		if err := r.repo.CreateRun(s.ID, s.Seed, countries); err != nil {
			r.log.Error().Err(err).Str("simulation_id", s.ID).Msg("Failed to register run for persistence")
		}
	}

	r.log.Info().Str("simulation_id", s.ID).Int64("seed", s.Seed).Msg("Simulation created")
	return s, nil
}

// Get returns a live simulation by ID.
func (r *Registry) Get(id string) (*Simulation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sims[id]
	if !ok {
		return nil, fmt.Errorf("no live simulation with id %s", id)
	}
	return s, nil
}

// Delete evicts a live simulation. Stored results are untouched.
func (r *Registry) Delete(id string) {
	r.mu.Lock()
	s, ok := r.sims[id]
	delete(r.sims, id)
	r.mu.Unlock()

	if ok {
		s.closeSubscribers()
		r.log.Info().Str("simulation_id", id).Msg("Simulation evicted")
	}
}

// List returns the IDs of live simulations.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.sims))
	for id := range r.sims {
		ids = append(ids, id)
	}
	return ids
}

func (r *Registry) evictIdle() {
	cutoff := time.Now().Add(-r.idleTTL)

	r.mu.RLock()
	var stale []string
	for id, s := range r.sims {
		s.mu.Lock()
		idle := s.lastActive.Before(cutoff)
		s.mu.Unlock()
		if idle {
			stale = append(stale, id)
		}
	}
	r.mu.RUnlock()

	for _, id := range stale {
		r.log.Info().Str("simulation_id", id).Msg("Evicting idle simulation")
		r.Delete(id)
	}
}

// Step advances the simulation one quarter, scores stability, persists
// the record and fans it out to subscribers.
func (r *Registry) Step(ctx context.Context, id string) (results.StepRecord, error) {
	s, err := r.Get(id)
	if err != nil {
		return results.StepRecord{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	year := 1 + s.stepsTaken/s.StepsPerYear
	quarter := s.stepsTaken % s.StepsPerYear

	state, summary, err := s.engine.Step(ctx, year, quarter)
	if err != nil {
		return results.StepRecord{}, err
	}
	s.stepsTaken++
	s.lastActive = time.Now()

	record := buildStepRecord(s, state, summary)

	if r.repo != nil {
		if err := r.repo.SaveStep(record); err != nil {
			r.log.Error().Err(err).Str("simulation_id", s.ID).Msg("Failed to persist step record")
		}
	}

	for ch := range s.subscribers {
		select {
		case ch <- record:
		default:
			// Slow consumer; drop rather than stall the step.
		}
	}

	return record, nil
}

// buildStepRecord snapshots the post-step state and scores stability.
// Caller holds s.mu.
func buildStepRecord(s *Simulation, state *sim.State, summary sim.StepSummary) results.StepRecord {
	global := s.analyzer.GlobalStability(state)
	s.analyzer.Observe(global.Value)

	record := results.StepRecord{
		SimulationID: s.ID,
		Period:       summary.Period,
		Actions:      state.ActionsAt(summary.Period),
		EventsFired:  summary.EventsFired,
		Global:       global,
		Stability:    make(map[string]domain.StabilityScore),
	}

	factors := s.engine.GrowthFactors()
	for _, c := range state.Countries() {
		snap := results.CountrySnapshot{
			Country:       c.Name,
			GDP:           c.GDP,
			CurrencyValue: c.CurrencyValue,
			TradeBalance:  state.TradeBalances(c.Name),
			GrowthFactors: factors[c.Name],
		}
		if latest, ok := state.LatestIndicator(c.Name); ok {
			snap.GDPGrowth = latest.GDPGrowth
			snap.Inflation = latest.Inflation
			snap.Unemployment = latest.Unemployment
			snap.Consumer = latest.ConsumerConfidence
			snap.Business = latest.BusinessConfidence
		}
		record.Countries = append(record.Countries, snap)
		record.Stability[c.Name] = s.analyzer.CountryStability(state, c.Name)
	}

	return record
}

// State exposes the live state for read handlers. Callers must not
// mutate it.
func (s *Simulation) State() *sim.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine.State()
}

// Stability scores the current state without advancing it.
func (s *Simulation) Stability() (domain.StabilityScore, map[string]domain.StabilityScore) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state := s.engine.State()
	global := s.analyzer.GlobalStability(state)
	countries := make(map[string]domain.StabilityScore)
	for _, c := range state.Countries() {
		countries[c.Name] = s.analyzer.CountryStability(state, c.Name)
	}
	return global, countries
}

// StepsTaken reports how many quarters have run.
func (s *Simulation) StepsTaken() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stepsTaken
}

// Subscribe registers a live step-record stream. The channel is buffered;
// records are dropped for consumers that fall behind.
func (s *Simulation) Subscribe() chan results.StepRecord {
	ch := make(chan results.StepRecord, 8)
	s.mu.Lock()
	s.subscribers[ch] = struct{}{}
	s.mu.Unlock()
	return ch
}

// Unsubscribe removes a stream registered with Subscribe. Safe to call
// after the simulation was evicted.
func (s *Simulation) Unsubscribe(ch chan results.StepRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.subscribers[ch]; ok {
		delete(s.subscribers, ch)
		close(ch)
	}
}

func (s *Simulation) closeSubscribers() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for ch := range s.subscribers {
		delete(s.subscribers, ch)
		close(ch)
	}
}
