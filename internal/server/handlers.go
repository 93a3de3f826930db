package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/policylab/tradewar/internal/agents"
	"github.com/policylab/tradewar/internal/clients/modelapi"
	"github.com/policylab/tradewar/internal/domain"
	"github.com/policylab/tradewar/internal/registry"
	"github.com/policylab/tradewar/internal/results"
	"github.com/policylab/tradewar/internal/sim"
)

// handleHealth handles health check requests
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	response := map[string]interface{}{
		"status":  "healthy",
		"version": "1.0.0",
		"service": "tradewar",
	}

	s.writeJSON(w, http.StatusOK, response)
}

// CountrySetup is one country's profile plus its decision strategy.
type CountrySetup struct {
	sim.Profile
	Strategy       string                `json:"strategy,omitempty"`
	StrategyParams agents.StrategyParams `json:"strategy_params,omitempty"`
}

// CreateSimulationRequest describes a new simulation.
type CreateSimulationRequest struct {
	Seed         int64                   `json:"seed"`
	StepsPerYear int                     `json:"steps_per_year,omitempty"`
	Countries    map[string]CountrySetup `json:"countries"`
	TradeFlows   []domain.TradeFlow      `json:"trade_flows,omitempty"`
}

// handleCreateSimulation builds a simulation from profiles, strategies
// and initial trade flows.
func (s *Server) handleCreateSimulation(w http.ResponseWriter, r *http.Request) {
	var req CreateSimulationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	seed := req.Seed
	if seed == 0 {
		seed = s.cfg.RandomSeed
	}

	// Zero means the default; more steps than quarters would collide
	// period indices across year boundaries.
	if req.StepsPerYear < 0 || req.StepsPerYear > domain.QuartersPerYear {
		s.writeError(w, http.StatusBadRequest, "steps_per_year must be between 1 and 4")
		return
	}

	profiles := make(map[string]sim.Profile, len(req.Countries))
	strategies := make(map[string]string)
	params := make(map[string]agents.StrategyParams)
	for name, setup := range req.Countries {
		profiles[name] = setup.Profile
		if setup.Strategy != "" {
			strategies[name] = setup.Strategy
			params[name] = setup.StrategyParams
		}
	}

	factory := agents.NewFactory(s.modelClient())
	providers, err := factory.CreateAll(strategies, params)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	simulation, err := s.registry.Create(registry.CreateConfig{
		Engine: sim.EngineConfig{
			Profiles:  profiles,
			Seed:      seed,
			Providers: providers,
			Log:       s.log,
		},
		StepsPerYear: req.StepsPerYear,
	})
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, domain.ErrNoCountries) {
			status = http.StatusBadRequest
		}
		s.writeError(w, status, err.Error())
		return
	}

	state := simulation.State()
	for _, flow := range req.TradeFlows {
		if err := state.AddTradeFlow(flow); err != nil {
			s.registry.Delete(simulation.ID)
			// Create already registered a run row for the simulation;
			// leaving it behind would strand a zero-step run.
			if s.results != nil {
				if delErr := s.results.DeleteRun(simulation.ID); delErr != nil {
					s.log.Error().Err(delErr).Str("simulation_id", simulation.ID).Msg("Failed to remove run for rejected simulation")
				}
			}
			s.writeError(w, http.StatusBadRequest, "invalid trade flow: "+err.Error())
			return
		}
	}

	s.writeJSON(w, http.StatusCreated, map[string]interface{}{
		"simulation_id":  simulation.ID,
		"seed":           simulation.Seed,
		"steps_per_year": simulation.StepsPerYear,
	})
}

// modelClient builds the chat-completions client when credentials are
// configured; rule-based strategies work without one.
func (s *Server) modelClient() agents.PolicyModel {
	if s.cfg.ModelAPIKey == "" {
		return nil
	}
	return modelapi.New(modelapi.Config{
		BaseURL:     s.cfg.ModelBaseURL,
		APIKey:      s.cfg.ModelAPIKey,
		Model:       s.cfg.ModelName,
		Temperature: s.cfg.ModelTemperature,
		MaxTokens:   s.cfg.ModelMaxTokens,
	}, s.log)
}

// handleListSimulations lists live simulation IDs.
func (s *Server) handleListSimulations(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"simulations": s.registry.List(),
	})
}

// handleDeleteSimulation evicts a live simulation.
func (s *Server) handleDeleteSimulation(w http.ResponseWriter, r *http.Request) {
	s.registry.Delete(chi.URLParam(r, "id"))
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// handleStep advances a simulation. The optional count query parameter
// runs several quarters and returns the records in order.
func (s *Server) handleStep(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	count := 1
	if raw := r.URL.Query().Get("count"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 400 {
			s.writeError(w, http.StatusBadRequest, "count must be an integer in [1,400]")
			return
		}
		count = n
	}

	records := make([]results.StepRecord, 0, count)
	for i := 0; i < count; i++ {
		record, err := s.registry.Step(r.Context(), id)
		if err != nil {
			s.writeError(w, http.StatusNotFound, err.Error())
			return
		}
		records = append(records, record)
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"steps":   len(records),
		"records": records,
	})
}

// handleState returns the live state of a simulation.
func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	simulation, err := s.registry.Get(chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, http.StatusNotFound, err.Error())
		return
	}

	state := simulation.State()

	countries := make([]map[string]interface{}, 0)
	for _, c := range state.Countries() {
		entry := map[string]interface{}{
			"name":           c.Name,
			"gdp":            c.GDP,
			"currency_value": c.CurrencyValue,
			"unemployment":   c.Unemployment,
			"trade_balance":  state.TradeBalances(c.Name),
		}
		if latest, ok := state.LatestIndicator(c.Name); ok {
			entry["indicators"] = latest
		}
		countries = append(countries, entry)
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"period":      state.Now,
		"steps_taken": simulation.StepsTaken(),
		"countries":   countries,
		"policies":    state.Policies,
		"events":      state.Events,
		"trade_flows": state.Flows,
	})
}

// handleStability scores the live state without advancing it.
func (s *Server) handleStability(w http.ResponseWriter, r *http.Request) {
	simulation, err := s.registry.Get(chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, http.StatusNotFound, err.Error())
		return
	}

	global, countries := simulation.Stability()
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"global":    global,
		"countries": countries,
	})
}

// handleListRuns lists stored simulation runs.
func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	if s.results == nil {
		s.writeError(w, http.StatusServiceUnavailable, "results persistence not configured")
		return
	}

	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}

	runs, err := s.results.ListRuns(limit)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"runs": runs})
}

// handleGetRun returns one stored run summary.
func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	if s.results == nil {
		s.writeError(w, http.StatusServiceUnavailable, "results persistence not configured")
		return
	}

	run, err := s.results.GetRun(chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if run == nil {
		s.writeError(w, http.StatusNotFound, "no stored run with that id")
		return
	}
	s.writeJSON(w, http.StatusOK, run)
}

// handleCountryHistory returns a country's stored snapshots.
func (s *Server) handleCountryHistory(w http.ResponseWriter, r *http.Request) {
	if s.results == nil {
		s.writeError(w, http.StatusServiceUnavailable, "results persistence not configured")
		return
	}

	snaps, err := s.results.CountryHistory(chi.URLParam(r, "id"), chi.URLParam(r, "country"))
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"snapshots": snaps})
}

// handleStabilityHistory returns stored global stability scores.
func (s *Server) handleStabilityHistory(w http.ResponseWriter, r *http.Request) {
	if s.results == nil {
		s.writeError(w, http.StatusServiceUnavailable, "results persistence not configured")
		return
	}

	scores, err := s.results.StabilityHistory(chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"scores": scores})
}

// writeJSON writes a JSON response
func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// writeError writes an error response
func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{
		"error": message,
	})
}
