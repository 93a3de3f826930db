// Command simulate runs a full multi-year simulation from the command
// line and prints the trajectory, with optional SQLite persistence.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/rs/zerolog"

	"github.com/policylab/tradewar/internal/agents"
	"github.com/policylab/tradewar/internal/database"
	"github.com/policylab/tradewar/internal/domain"
	"github.com/policylab/tradewar/internal/registry"
	"github.com/policylab/tradewar/internal/results"
	"github.com/policylab/tradewar/internal/sim"
	"github.com/policylab/tradewar/pkg/logger"
)

// scenario mirrors the server's create request so the same JSON drives
// both entry points.
type scenario struct {
	Seed      int64                      `json:"seed"`
	Countries map[string]scenarioCountry `json:"countries"`
	Flows     []domain.TradeFlow         `json:"trade_flows"`
}

type scenarioCountry struct {
	sim.Profile
	Strategy       string                `json:"strategy"`
	StrategyParams agents.StrategyParams `json:"strategy_params"`
}

func main() {
	var (
		years        = flag.Int("years", 5, "number of simulation years")
		seed         = flag.Int64("seed", 42, "random seed (scenario file overrides)")
		scenarioPath = flag.String("scenario", "", "path to a scenario JSON file (default: built-in US/China/Indonesia)")
		dbPath       = flag.String("db", "", "SQLite path for result persistence (empty disables)")
		logLevel     = flag.String("log-level", "warn", "log level")
	)
	flag.Parse()

	log := logger.New(logger.Config{Level: *logLevel, Pretty: true})

	scn := defaultScenario(*seed)
	if *scenarioPath != "" {
		loaded, err := loadScenario(*scenarioPath)
		if err != nil {
			log.Fatal().Err(err).Str("path", *scenarioPath).Msg("Failed to load scenario")
		}
		scn = loaded
	}

	var repo *results.Repository
	if *dbPath != "" {
		db, err := database.New(*dbPath)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to open results database")
		}
		defer db.Close()

		repo, err = results.NewRepository(db.Conn(), log)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize results repository")
		}
	}

	if err := run(scn, *years, repo, log); err != nil {
		log.Fatal().Err(err).Msg("Simulation failed")
	}
}

func run(scn scenario, years int, repo *results.Repository, log zerolog.Logger) error {
	profiles := make(map[string]sim.Profile, len(scn.Countries))
	strategies := make(map[string]string)
	params := make(map[string]agents.StrategyParams)
	for name, c := range scn.Countries {
		profiles[name] = c.Profile
		if c.Strategy != "" {
			strategies[name] = c.Strategy
			params[name] = c.StrategyParams
		}
	}

	providers, err := agents.NewFactory(nil).CreateAll(strategies, params)
	if err != nil {
		return err
	}

	reg := registry.New(repo, log)
	defer reg.Close()

	simulation, err := reg.Create(registry.CreateConfig{
		Engine: sim.EngineConfig{
			Profiles:  profiles,
			Seed:      scn.Seed,
			Providers: providers,
			Log:       log,
		},
	})
	if err != nil {
		return err
	}

	state := simulation.State()
	for _, flow := range scn.Flows {
		if err := state.AddTradeFlow(flow); err != nil {
			return fmt.Errorf("invalid trade flow: %w", err)
		}
	}

	fmt.Printf("Simulation %s (seed %d, %d years)\n\n", simulation.ID, scn.Seed, years)

	ctx := context.Background()
	quarters := years * domain.QuartersPerYear
	for i := 0; i < quarters; i++ {
		record, err := reg.Step(ctx, simulation.ID)
		if err != nil {
			return err
		}
		printQuarter(record)
	}

	printFinal(simulation)
	return nil
}

func printQuarter(record results.StepRecord) {
	fmt.Printf("%s  global stability %.3f (%s)\n", record.Period, record.Global.Value, record.Global.Trend)
	for _, a := range record.Actions {
		if a.Type == domain.ActionStatusQuo {
			continue
		}
		line := fmt.Sprintf("  %s: %s", a.Country, a.Type)
		if a.TargetCountry != "" {
			line += " vs " + a.TargetCountry
		}
		fmt.Printf("%s (%.2f) %s\n", line, a.Magnitude, a.Justification)
	}
	for _, name := range record.EventsFired {
		fmt.Printf("  event: %s\n", name)
	}
}

func printFinal(simulation *registry.Simulation) {
	state := simulation.State()
	fmt.Printf("\nFinal positions after %d quarters:\n", simulation.StepsTaken())
	for _, c := range state.Countries() {
		fmt.Printf("  %-12s GDP %10.2f  currency %.3f", c.Name, c.GDP, c.CurrencyValue)
		if latest, ok := state.LatestIndicator(c.Name); ok {
			fmt.Printf("  growth %+.2f%%  inflation %.2f%%  unemployment %.1f%%",
				latest.GDPGrowth*100, latest.Inflation*100, latest.Unemployment*100)
		}
		fmt.Println()
	}
}

func loadScenario(path string) (scenario, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return scenario{}, err
	}
	var scn scenario
	if err := json.Unmarshal(raw, &scn); err != nil {
		return scenario{}, fmt.Errorf("invalid scenario JSON: %w", err)
	}
	return scn, nil
}

// defaultScenario is the US/China/Indonesia baseline. GDP figures are in
// trillions of USD, flows in the same unit.
func defaultScenario(seed int64) scenario {
	return scenario{
		Seed: seed,
		Countries: map[string]scenarioCountry{
			"US": {
				Profile: sim.Profile{
					GDP:            27.4,
					Population:     335_000_000,
					BaselineGrowth: 0.022,
					Sectors: map[string]float64{
						"technology":    0.25,
						"manufacturing": 0.15,
						"agriculture":   0.05,
						"services":      0.40,
					},
				},
				Strategy: agents.StrategyDeficitHawk,
			},
			"China": {
				Profile: sim.Profile{
					GDP:            17.8,
					Population:     1_410_000_000,
					BaselineGrowth: 0.048,
					Sectors: map[string]float64{
						"technology":    0.15,
						"manufacturing": 0.35,
						"raw_materials": 0.10,
					},
				},
				Strategy: agents.StrategyRetaliator,
			},
			"Indonesia": {
				Profile: sim.Profile{
					GDP:            1.42,
					Population:     277_000_000,
					BaselineGrowth: 0.050,
					Sectors: map[string]float64{
						"agriculture":       0.13,
						"manufacturing":     0.20,
						"natural_resources": 0.12,
						"tourism":           0.05,
					},
				},
				Strategy: agents.StrategyDiversifier,
			},
		},
		Flows: []domain.TradeFlow{
			{Exporter: "China", Importer: "US", Sector: "manufacturing", Volume: 0.30},
			{Exporter: "China", Importer: "US", Sector: "technology", Volume: 0.12},
			{Exporter: "US", Importer: "China", Sector: "agriculture", Volume: 0.03},
			{Exporter: "US", Importer: "China", Sector: "technology", Volume: 0.05},
			{Exporter: "Indonesia", Importer: "US", Sector: "manufacturing", Volume: 0.02},
			{Exporter: "Indonesia", Importer: "China", Sector: "natural_resources", Volume: 0.04},
			{Exporter: "China", Importer: "Indonesia", Sector: "manufacturing", Volume: 0.06},
		},
	}
}
