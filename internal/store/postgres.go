package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore is a PostgreSQL implementation of the Store interface.
//
// Experiment definitions live in one table (id, feature, name, type, status,
// method, audience jsonb, variations jsonb); counters live in a companion
// stats table keyed by (experiment_id, variation). Increments are a single
// INSERT ... ON CONFLICT DO UPDATE ... RETURNING statement, so the
// first-write initialization and every later increment are one atomic
// operation - there is no conditional-update-then-set fallback and no window
// where two concurrent initializers can clobber each other.
type PostgresStore struct {
	pool       *pgxpool.Pool
	table      string
	statsTable string
}

// NewPostgresStore creates a PostgreSQL-backed store over the named
// experiment strategy table. The stats table name is derived from it.
func NewPostgresStore(pool *pgxpool.Pool, table string) *PostgresStore {
	return &PostgresStore{
		pool:       pool,
		table:      pgx.Identifier{table}.Sanitize(),
		statsTable: pgx.Identifier{table + "_stats"}.Sanitize(),
	}
}

// EnsureSchema creates the experiment tables if they do not exist.
func (p *PostgresStore) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id         TEXT PRIMARY KEY,
			feature    TEXT NOT NULL,
			name       TEXT NOT NULL,
			type       TEXT NOT NULL,
			status     TEXT NOT NULL,
			method     TEXT NOT NULL DEFAULT '',
			audience   JSONB,
			variations JSONB NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`, p.table),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_experiment_feature_status ON %s (feature, status)`, p.table),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			experiment_id TEXT NOT NULL,
			variation     INT NOT NULL,
			exposures     BIGINT NOT NULL DEFAULT 0,
			conversions   BIGINT NOT NULL DEFAULT 0,
			PRIMARY KEY (experiment_id, variation)
		)`, p.statsTable),
	}
	for _, stmt := range stmts {
		if _, err := p.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to ensure schema: %w", err)
		}
	}
	return nil
}

// GetByID retrieves an experiment by id, with counters merged in.
func (p *PostgresStore) GetByID(ctx context.Context, id string) (*Experiment, error) {
	row := p.pool.QueryRow(ctx, fmt.Sprintf(
		`SELECT id, feature, name, type, status, method, audience, variations, updated_at FROM %s WHERE id = $1`,
		p.table), id)

	exp, err := p.scanExperiment(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if err := p.mergeStats(ctx, exp); err != nil {
		return nil, err
	}
	return exp, nil
}

// GetActiveByFeature returns the active experiment for a feature, or nil.
// Activation-time checks guarantee at most one row matches.
func (p *PostgresStore) GetActiveByFeature(ctx context.Context, feature string) (*Experiment, error) {
	row := p.pool.QueryRow(ctx, fmt.Sprintf(
		`SELECT id, feature, name, type, status, method, audience, variations, updated_at FROM %s
		 WHERE feature = $1 AND status = $2 LIMIT 1`,
		p.table), feature, StatusActive)

	exp, err := p.scanExperiment(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if err := p.mergeStats(ctx, exp); err != nil {
		return nil, err
	}
	return exp, nil
}

// List returns experiments, optionally filtered by feature.
func (p *PostgresStore) List(ctx context.Context, feature string) ([]Experiment, error) {
	query := fmt.Sprintf(
		`SELECT id, feature, name, type, status, method, audience, variations, updated_at FROM %s`, p.table)
	args := []any{}
	if feature != "" {
		query += ` WHERE feature = $1`
		args = append(args, feature)
	}
	query += ` ORDER BY updated_at DESC`

	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Experiment
	for rows.Next() {
		exp, err := p.scanExperiment(rows)
		if err != nil {
			return nil, err
		}
		if err := p.mergeStats(ctx, exp); err != nil {
			return nil, err
		}
		result = append(result, *exp)
	}
	return result, rows.Err()
}

// Create persists a new experiment, enforcing the single-active invariant
// inside a transaction when the experiment is created already active.
func (p *PostgresStore) Create(ctx context.Context, exp Experiment) error {
	audienceJSON, variationsJSON, err := marshalDefinition(&exp)
	if err != nil {
		return err
	}

	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if exp.Status == StatusActive {
		if err := checkNoActiveTx(ctx, tx, p.table, exp.Feature, exp.ID); err != nil {
			return err
		}
	}

	_, err = tx.Exec(ctx, fmt.Sprintf(
		`INSERT INTO %s (id, feature, name, type, status, method, audience, variations, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		p.table),
		exp.ID, exp.Feature, exp.Name, exp.Type, exp.Status, exp.Method,
		audienceJSON, variationsJSON, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to insert experiment: %w", err)
	}

	return tx.Commit(ctx)
}

// SetStatus transitions an experiment's status, enforcing the single-active
// invariant on activation.
func (p *PostgresStore) SetStatus(ctx context.Context, id, status string) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	var feature string
	err = tx.QueryRow(ctx, fmt.Sprintf(`SELECT feature FROM %s WHERE id = $1 FOR UPDATE`, p.table), id).Scan(&feature)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return err
	}

	if status == StatusActive {
		if err := checkNoActiveTx(ctx, tx, p.table, feature, id); err != nil {
			return err
		}
	}

	_, err = tx.Exec(ctx, fmt.Sprintf(
		`UPDATE %s SET status = $2, updated_at = $3 WHERE id = $1`, p.table),
		id, status, time.Now().UTC())
	if err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// Delete removes an experiment and its stats. Idempotent.
func (p *PostgresStore) Delete(ctx context.Context, id string) error {
	if _, err := p.pool.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE experiment_id = $1`, p.statsTable), id); err != nil {
		return err
	}
	_, err := p.pool.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE id = $1`, p.table), id)
	return err
}

// IncrementExposures atomically adds delta to a variation's exposure counter.
func (p *PostgresStore) IncrementExposures(ctx context.Context, id string, variation int, delta int64) (int64, error) {
	return p.increment(ctx, id, variation, delta, "exposures")
}

// IncrementConversions atomically adds delta to a variation's conversion counter.
func (p *PostgresStore) IncrementConversions(ctx context.Context, id string, variation int, delta int64) (int64, error) {
	return p.increment(ctx, id, variation, delta, "conversions")
}

// Close closes the database connection pool.
func (p *PostgresStore) Close() error {
	p.pool.Close()
	return nil
}

// increment performs the atomic upsert for one counter field. The variation
// index is bounds-checked against the stored definition first so a stale
// correlation token cannot create phantom stats rows.
func (p *PostgresStore) increment(ctx context.Context, id string, variation int, delta int64, field string) (int64, error) {
	var count int
	err := p.pool.QueryRow(ctx, fmt.Sprintf(
		`SELECT jsonb_array_length(variations) FROM %s WHERE id = $1`, p.table), id).Scan(&count)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrNotFound
		}
		return 0, err
	}
	if variation < 0 || variation >= count {
		return 0, ErrVariationOutOfRange
	}

	// field is one of two compile-time constants, never user input.
	var newCount int64
	err = p.pool.QueryRow(ctx, fmt.Sprintf(
		`INSERT INTO %s (experiment_id, variation, %s) VALUES ($1, $2, $3)
		 ON CONFLICT (experiment_id, variation)
		 DO UPDATE SET %s = %s.%s + EXCLUDED.%s
		 RETURNING %s`,
		p.statsTable, field, field, p.statsTable, field, field, field),
		id, variation, delta).Scan(&newCount)
	if err != nil {
		return 0, fmt.Errorf("failed to increment %s: %w", field, err)
	}
	return newCount, nil
}

// mergeStats copies the counter rows into the experiment's variation list.
func (p *PostgresStore) mergeStats(ctx context.Context, exp *Experiment) error {
	rows, err := p.pool.Query(ctx, fmt.Sprintf(
		`SELECT variation, exposures, conversions FROM %s WHERE experiment_id = $1`, p.statsTable), exp.ID)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var variation int
		var exposures, conversions int64
		if err := rows.Scan(&variation, &exposures, &conversions); err != nil {
			return err
		}
		if variation >= 0 && variation < len(exp.Variations) {
			exp.Variations[variation].Exposures = exposures
			exp.Variations[variation].Conversions = conversions
		}
	}
	return rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (p *PostgresStore) scanExperiment(row rowScanner) (*Experiment, error) {
	var exp Experiment
	var audienceJSON, variationsJSON []byte
	err := row.Scan(&exp.ID, &exp.Feature, &exp.Name, &exp.Type, &exp.Status,
		&exp.Method, &audienceJSON, &variationsJSON, &exp.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if len(audienceJSON) > 0 {
		var aud Audience
		if err := json.Unmarshal(audienceJSON, &aud); err != nil {
			return nil, fmt.Errorf("failed to decode audience: %w", err)
		}
		exp.Audience = &aud
	}
	if err := json.Unmarshal(variationsJSON, &exp.Variations); err != nil {
		return nil, fmt.Errorf("failed to decode variations: %w", err)
	}
	return &exp, nil
}

func marshalDefinition(exp *Experiment) (audienceJSON, variationsJSON []byte, err error) {
	if exp.Audience != nil {
		audienceJSON, err = json.Marshal(exp.Audience)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to encode audience: %w", err)
		}
	}
	variationsJSON, err = json.Marshal(exp.Variations)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to encode variations: %w", err)
	}
	return audienceJSON, variationsJSON, nil
}

func checkNoActiveTx(ctx context.Context, tx pgx.Tx, table, feature, excludeID string) error {
	var exists bool
	err := tx.QueryRow(ctx, fmt.Sprintf(
		`SELECT EXISTS (SELECT 1 FROM %s WHERE feature = $1 AND status = $2 AND id <> $3)`,
		table), feature, StatusActive, excludeID).Scan(&exists)
	if err != nil {
		return err
	}
	if exists {
		return ErrFeatureHasActive
	}
	return nil
}
