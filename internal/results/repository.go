package results

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/policylab/tradewar/internal/domain"
)

// Repository handles simulation result database operations.
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a results repository and ensures the schema
// exists.
func NewRepository(db *sql.DB, log zerolog.Logger) (*Repository, error) {
	r := &Repository{
		db:  db,
		log: log.With().Str("repo", "results").Logger(),
	}
	if err := r.init(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Repository) init() error {
	schema := `
		CREATE TABLE IF NOT EXISTS simulations (
			id TEXT PRIMARY KEY,
			seed INTEGER NOT NULL,
			countries BLOB NOT NULL,
			created_at TEXT NOT NULL
		);
		CREATE TABLE IF NOT EXISTS snapshots (
			simulation_id TEXT NOT NULL,
			year INTEGER NOT NULL,
			quarter INTEGER NOT NULL,
			country TEXT NOT NULL,
			gdp REAL NOT NULL,
			currency_value REAL NOT NULL,
			gdp_growth REAL NOT NULL,
			inflation REAL NOT NULL,
			unemployment REAL NOT NULL,
			consumer_confidence REAL NOT NULL,
			business_confidence REAL NOT NULL,
			trade_balance BLOB,
			growth_factors BLOB,
			PRIMARY KEY (simulation_id, year, quarter, country)
		);
		CREATE TABLE IF NOT EXISTS actions (
			simulation_id TEXT NOT NULL,
			year INTEGER NOT NULL,
			quarter INTEGER NOT NULL,
			country TEXT NOT NULL,
			action_type TEXT NOT NULL,
			target_country TEXT,
			sectors BLOB,
			magnitude REAL NOT NULL,
			justification TEXT
		);
		CREATE TABLE IF NOT EXISTS stability (
			simulation_id TEXT NOT NULL,
			year INTEGER NOT NULL,
			quarter INTEGER NOT NULL,
			scope TEXT NOT NULL,
			country TEXT NOT NULL DEFAULT '',
			value REAL NOT NULL,
			trend TEXT,
			factors BLOB,
			PRIMARY KEY (simulation_id, year, quarter, scope, country)
		);
		CREATE TABLE IF NOT EXISTS events_fired (
			simulation_id TEXT NOT NULL,
			year INTEGER NOT NULL,
			quarter INTEGER NOT NULL,
			name TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_snapshots_sim ON snapshots(simulation_id);
		CREATE INDEX IF NOT EXISTS idx_actions_sim ON actions(simulation_id);
	`
	if _, err := r.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create results schema: %w", err)
	}
	return nil
}

// CreateRun registers a simulation before its first step is stored.
func (r *Repository) CreateRun(simulationID string, seed int64, countries []string) error {
	blob, err := msgpack.Marshal(countries)
	if err != nil {
		return fmt.Errorf("failed to encode country list: %w", err)
	}

	_, err = r.db.Exec(
		`INSERT INTO simulations (id, seed, countries, created_at) VALUES (?, ?, ?, ?)`,
		simulationID, seed, blob, time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to create simulation run: %w", err)
	}

	r.log.Info().Str("simulation_id", simulationID).Int64("seed", seed).Msg("Simulation run registered")
	return nil
}

// SaveStep stores one quarter's record atomically.
func (r *Repository) SaveStep(record StepRecord) error {
	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, snap := range record.Countries {
		balance, err := msgpack.Marshal(snap.TradeBalance)
		if err != nil {
			return fmt.Errorf("failed to encode trade balance: %w", err)
		}
		factors, err := msgpack.Marshal(snap.GrowthFactors)
		if err != nil {
			return fmt.Errorf("failed to encode growth factors: %w", err)
		}

		_, err = tx.Exec(`
			INSERT OR REPLACE INTO snapshots
			(simulation_id, year, quarter, country, gdp, currency_value,
			 gdp_growth, inflation, unemployment, consumer_confidence,
			 business_confidence, trade_balance, growth_factors)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			record.SimulationID, record.Period.Year, record.Period.Quarter,
			snap.Country, snap.GDP, snap.CurrencyValue,
			snap.GDPGrowth, snap.Inflation, snap.Unemployment,
			snap.Consumer, snap.Business, balance, factors,
		)
		if err != nil {
			return fmt.Errorf("failed to save snapshot for %s: %w", snap.Country, err)
		}
	}

	for _, a := range record.Actions {
		sectors, err := msgpack.Marshal(a.Sectors)
		if err != nil {
			return fmt.Errorf("failed to encode sectors: %w", err)
		}
		_, err = tx.Exec(`
			INSERT INTO actions
			(simulation_id, year, quarter, country, action_type,
			 target_country, sectors, magnitude, justification)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			record.SimulationID, record.Period.Year, record.Period.Quarter,
			a.Country, string(a.Type), a.TargetCountry, sectors,
			a.Magnitude, a.Justification,
		)
		if err != nil {
			return fmt.Errorf("failed to save action: %w", err)
		}
	}

	scores := make([]domain.StabilityScore, 0, len(record.Stability)+1)
	scores = append(scores, record.Global)
	for _, s := range record.Stability {
		scores = append(scores, s)
	}
	for _, s := range scores {
		factors, err := msgpack.Marshal(s.Factors)
		if err != nil {
			return fmt.Errorf("failed to encode stability factors: %w", err)
		}
		_, err = tx.Exec(`
			INSERT OR REPLACE INTO stability
			(simulation_id, year, quarter, scope, country, value, trend, factors)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			record.SimulationID, record.Period.Year, record.Period.Quarter,
			string(s.Scope), s.Country, s.Value, s.Trend, factors,
		)
		if err != nil {
			return fmt.Errorf("failed to save stability score: %w", err)
		}
	}

	for _, name := range record.EventsFired {
		_, err = tx.Exec(`
			INSERT INTO events_fired (simulation_id, year, quarter, name)
			VALUES (?, ?, ?, ?)`,
			record.SimulationID, record.Period.Year, record.Period.Quarter, name,
		)
		if err != nil {
			return fmt.Errorf("failed to save fired event: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit step record: %w", err)
	}

	r.log.Debug().
		Str("simulation_id", record.SimulationID).
		Stringer("period", record.Period).
		Int("countries", len(record.Countries)).
		Msg("Step record saved")

	return nil
}

// GetRun retrieves one run's summary, or nil when unknown.
func (r *Repository) GetRun(simulationID string) (*RunSummary, error) {
	row := r.db.QueryRow(
		`SELECT id, seed, countries, created_at FROM simulations WHERE id = ?`,
		simulationID,
	)

	var summary RunSummary
	var blob []byte
	err := row.Scan(&summary.SimulationID, &summary.Seed, &blob, &summary.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get simulation run: %w", err)
	}
	if err := msgpack.Unmarshal(blob, &summary.Countries); err != nil {
		return nil, fmt.Errorf("failed to decode country list: %w", err)
	}

	err = r.db.QueryRow(`
		SELECT COUNT(DISTINCT year*4+quarter)
		FROM snapshots WHERE simulation_id = ?`,
		simulationID,
	).Scan(&summary.Steps)
	if err != nil {
		return nil, fmt.Errorf("failed to count steps: %w", err)
	}

	var year, quarter int
	err = r.db.QueryRow(`
		SELECT year, quarter FROM snapshots WHERE simulation_id = ?
		ORDER BY year DESC, quarter DESC LIMIT 1`,
		simulationID,
	).Scan(&year, &quarter)
	if err == nil {
		summary.LastPeriod = domain.Period{Year: year, Quarter: quarter}
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to get last period: %w", err)
	}

	return &summary, nil
}

// ListRuns returns summaries of stored runs, most recent first.
func (r *Repository) ListRuns(limit int) ([]RunSummary, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.Query(
		`SELECT id FROM simulations ORDER BY created_at DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list simulation runs: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan run id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	summaries := make([]RunSummary, 0, len(ids))
	for _, id := range ids {
		s, err := r.GetRun(id)
		if err != nil {
			return nil, err
		}
		if s != nil {
			summaries = append(summaries, *s)
		}
	}
	return summaries, nil
}

// CountryHistory returns a country's stored snapshots in period order.
func (r *Repository) CountryHistory(simulationID, country string) ([]CountrySnapshot, error) {
	rows, err := r.db.Query(`
		SELECT country, gdp, currency_value, gdp_growth, inflation,
		       unemployment, consumer_confidence, business_confidence,
		       trade_balance, growth_factors
		FROM snapshots
		WHERE simulation_id = ? AND country = ?
		ORDER BY year, quarter`,
		simulationID, country,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query country history: %w", err)
	}
	defer rows.Close()

	var snaps []CountrySnapshot
	for rows.Next() {
		var snap CountrySnapshot
		var balance, factors []byte
		err := rows.Scan(
			&snap.Country, &snap.GDP, &snap.CurrencyValue,
			&snap.GDPGrowth, &snap.Inflation, &snap.Unemployment,
			&snap.Consumer, &snap.Business, &balance, &factors,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan snapshot: %w", err)
		}
		if len(balance) > 0 {
			if err := msgpack.Unmarshal(balance, &snap.TradeBalance); err != nil {
				return nil, fmt.Errorf("failed to decode trade balance: %w", err)
			}
		}
		if len(factors) > 0 {
			if err := msgpack.Unmarshal(factors, &snap.GrowthFactors); err != nil {
				return nil, fmt.Errorf("failed to decode growth factors: %w", err)
			}
		}
		snaps = append(snaps, snap)
	}
	return snaps, rows.Err()
}

// StabilityHistory returns stored global stability scores in period
// order.
func (r *Repository) StabilityHistory(simulationID string) ([]domain.StabilityScore, error) {
	rows, err := r.db.Query(`
		SELECT scope, country, value, trend, factors
		FROM stability
		WHERE simulation_id = ? AND scope = ?
		ORDER BY year, quarter`,
		simulationID, string(domain.ScopeGlobal),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query stability history: %w", err)
	}
	defer rows.Close()

	var scores []domain.StabilityScore
	for rows.Next() {
		var s domain.StabilityScore
		var scope string
		var factors []byte
		if err := rows.Scan(&scope, &s.Country, &s.Value, &s.Trend, &factors); err != nil {
			return nil, fmt.Errorf("failed to scan stability score: %w", err)
		}
		s.Scope = domain.StabilityScope(scope)
		if len(factors) > 0 {
			if err := msgpack.Unmarshal(factors, &s.Factors); err != nil {
				return nil, fmt.Errorf("failed to decode stability factors: %w", err)
			}
		}
		scores = append(scores, s)
	}
	return scores, rows.Err()
}

// DeleteRun removes a run and all of its records.
func (r *Repository) DeleteRun(simulationID string) error {
	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, table := range []string{"snapshots", "actions", "stability", "events_fired"} {
		if _, err := tx.Exec(
			fmt.Sprintf("DELETE FROM %s WHERE simulation_id = ?", table), simulationID,
		); err != nil {
			return fmt.Errorf("failed to delete from %s: %w", table, err)
		}
	}
	if _, err := tx.Exec("DELETE FROM simulations WHERE id = ?", simulationID); err != nil {
		return fmt.Errorf("failed to delete simulation: %w", err)
	}

	return tx.Commit()
}
