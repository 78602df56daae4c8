package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/edipietro-895n3/Star-Trader-Fhe/protocol"
)

// PostgresStore implements MarketStore with PostgreSQL persistence. State
// snapshots live in a single row per market instance so each write-through
// save is one atomic upsert; audit events append to their own table.
type PostgresStore struct {
	db         *sql.DB
	instanceID string
}

// PostgresConfig contains PostgreSQL connection settings.
type PostgresConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

// ConnectionString returns the PostgreSQL connection string.
func (c *PostgresConfig) ConnectionString() string {
	sslMode := c.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, sslMode)
}

// NewPostgresStore creates a new PostgreSQL-backed store scoped to one
// market instance.
func NewPostgresStore(config *PostgresConfig, instanceID string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", config.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	store := &PostgresStore{db: db, instanceID: instanceID}
	if err := store.migrate(); err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return store, nil
}

func (s *PostgresStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS market_state (
		instance_id VARCHAR(128) PRIMARY KEY,
		state JSONB NOT NULL,
		updated_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
	);

	CREATE TABLE IF NOT EXISTS market_events (
		id BIGSERIAL PRIMARY KEY,
		instance_id VARCHAR(128) NOT NULL,
		kind VARCHAR(64) NOT NULL,
		payload JSONB NOT NULL,
		created_at TIMESTAMP WITH TIME ZONE NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_events_instance ON market_events(instance_id, id);
	CREATE INDEX IF NOT EXISTS idx_events_kind ON market_events(kind);
	`

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// SaveState persists a full state snapshot.
func (s *PostgresStore) SaveState(state *protocol.MarketState) error {
	encoded, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encoding state: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	query := `
	INSERT INTO market_state (instance_id, state, updated_at)
	VALUES ($1, $2, NOW())
	ON CONFLICT (instance_id) DO UPDATE SET
		state = EXCLUDED.state,
		updated_at = NOW()
	`

	_, err = s.db.ExecContext(ctx, query, s.instanceID, encoded)
	return err
}

// LoadState retrieves the persisted snapshot for this instance.
func (s *PostgresStore) LoadState() (*protocol.MarketState, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var encoded []byte
	err := s.db.QueryRowContext(ctx,
		"SELECT state FROM market_state WHERE instance_id = $1", s.instanceID,
	).Scan(&encoded)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var state protocol.MarketState
	if err := json.Unmarshal(encoded, &state); err != nil {
		return nil, fmt.Errorf("decoding state: %w", err)
	}
	return &state, nil
}

// AppendEvent appends one audit record.
func (s *PostgresStore) AppendEvent(record *EventRecord) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO market_events (instance_id, kind, payload, created_at)
		VALUES ($1, $2, $3, $4)
	`, s.instanceID, record.Kind, []byte(record.Payload), record.Time)
	return err
}

// Events retrieves the most recent limit records, oldest first.
func (s *PostgresStore) Events(limit int) ([]*EventRecord, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	query := `
		SELECT kind, payload, created_at FROM (
			SELECT id, kind, payload, created_at FROM market_events
			WHERE instance_id = $1
			ORDER BY id DESC
			LIMIT $2
		) recent ORDER BY id ASC
	`
	args := []any{s.instanceID, limit}
	if limit <= 0 {
		query = `
			SELECT kind, payload, created_at FROM market_events
			WHERE instance_id = $1
			ORDER BY id ASC
		`
		args = []any{s.instanceID}
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*EventRecord
	for rows.Next() {
		var (
			kind    string
			payload []byte
			created time.Time
		)
		if err := rows.Scan(&kind, &payload, &created); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		result = append(result, &EventRecord{
			Kind:    kind,
			Time:    created,
			Payload: json.RawMessage(payload),
		})
	}

	return result, rows.Err()
}

// Close closes the database connection.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}
