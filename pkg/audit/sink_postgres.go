package audit

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

// PostgresSink persists audit events to a PostgreSQL table for deployments
// that need a durable security trail.
type PostgresSink struct {
	db *sql.DB
}

// PostgresConfig holds database connection settings.
type PostgresConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// NewPostgresSink connects, verifies the connection, and ensures the events
// table exists.
func NewPostgresSink(config PostgresConfig) (*PostgresSink, error) {
	connStr := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		config.Host,
		config.Port,
		config.User,
		config.Password,
		config.DBName,
		config.SSLMode,
	)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("audit: failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("audit: failed to ping database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	sink := &PostgresSink{db: db}
	if err := sink.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("audit: failed to initialize schema: %w", err)
	}

	return sink, nil
}

func (s *PostgresSink) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS audit_events (
		id BIGSERIAL PRIMARY KEY,
		event_type VARCHAR(64) NOT NULL,
		peer_id VARCHAR(128) NOT NULL,
		reason TEXT,
		occurred_at TIMESTAMP NOT NULL,
		recorded_at TIMESTAMP DEFAULT NOW()
	);

	CREATE INDEX IF NOT EXISTS idx_audit_events_peer ON audit_events(peer_id);
	CREATE INDEX IF NOT EXISTS idx_audit_events_type ON audit_events(event_type);
	CREATE INDEX IF NOT EXISTS idx_audit_events_occurred ON audit_events(occurred_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Write inserts one event row.
func (s *PostgresSink) Write(event Event) error {
	_, err := s.db.Exec(
		`INSERT INTO audit_events (event_type, peer_id, reason, occurred_at) VALUES ($1, $2, $3, $4)`,
		string(event.Type), event.PeerID, event.Reason, event.Time.UTC(),
	)
	if err != nil {
		return fmt.Errorf("audit: failed to insert event: %w", err)
	}
	return nil
}

// Close releases the database connection pool.
func (s *PostgresSink) Close() error {
	return s.db.Close()
}
