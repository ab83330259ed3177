package database

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// DB wraps the database connection with pooling and prepared statements.
type DB struct {
	*sql.DB
	prepared map[string]*sql.Stmt
	mutex    sync.RWMutex
}

// NewDB opens the reputation database, runs migrations, and prepares the hot
// statements.
func NewDB(dataDir string) (*DB, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, "reputation_engine.db")
	connStr := fmt.Sprintf("%s?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(ON)&_pragma=busy_timeout(5000)", dbPath)

	db, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	database := &DB{
		DB:       db,
		prepared: make(map[string]*sql.Stmt),
	}

	if err := database.migrate(); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	if err := database.initPreparedStatements(); err != nil {
		return nil, fmt.Errorf("failed to initialize prepared statements: %w", err)
	}

	slog.Info("Database initialized", "path", dbPath)

	return database, nil
}

// migrate creates the necessary tables
func (db *DB) migrate() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS reputation_transactions (
			id TEXT PRIMARY KEY,
			user_address TEXT NOT NULL,
			event_type TEXT NOT NULL,
			impact_score REAL NOT NULL,
			context TEXT NOT NULL, -- JSON
			validator_address TEXT,
			blockchain_evidence TEXT,
			created_at DATETIME NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS category_scores (
			user_address TEXT NOT NULL,
			category TEXT NOT NULL,
			score REAL NOT NULL,
			updated_at DATETIME NOT NULL,
			PRIMARY KEY (user_address, category)
		)`,

		`CREATE TABLE IF NOT EXISTS oracles (
			oracle_id TEXT PRIMARY KEY,
			oracle_address TEXT NOT NULL UNIQUE,
			name TEXT NOT NULL,
			specializations TEXT NOT NULL, -- JSON array
			stake_amount REAL NOT NULL,
			is_active BOOLEAN NOT NULL,
			total_evaluations INTEGER NOT NULL DEFAULT 0,
			successful_evaluations INTEGER NOT NULL DEFAULT 0,
			reputation_score REAL NOT NULL,
			slashed_amount REAL NOT NULL DEFAULT 0,
			slash_reason TEXT,
			registered_at DATETIME NOT NULL,
			slashed_at DATETIME
		)`,

		`CREATE TABLE IF NOT EXISTS work_evaluations (
			evaluation_id TEXT PRIMARY KEY,
			user_address TEXT NOT NULL,
			oracle_address TEXT NOT NULL,
			skill_token_ids TEXT NOT NULL, -- JSON array
			work_description TEXT,
			work_content TEXT,
			overall_score INTEGER NOT NULL,
			skill_scores TEXT NOT NULL, -- JSON array, parallel to skill_token_ids
			feedback TEXT,
			ipfs_hash TEXT,
			status TEXT NOT NULL,
			transaction_id TEXT,
			blockchain_verified BOOLEAN NOT NULL DEFAULT FALSE,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS evaluation_challenges (
			challenge_id TEXT PRIMARY KEY,
			evaluation_id TEXT NOT NULL,
			challenger_address TEXT NOT NULL,
			reason TEXT NOT NULL,
			evidence TEXT NOT NULL, -- JSON array
			stake_amount REAL NOT NULL,
			status TEXT NOT NULL,
			resolution TEXT,
			uphold_original BOOLEAN NOT NULL DEFAULT FALSE,
			created_at DATETIME NOT NULL,
			resolved_at DATETIME,
			FOREIGN KEY (evaluation_id) REFERENCES work_evaluations(evaluation_id)
		)`,

		`CREATE TABLE IF NOT EXISTS audit_log (
			id TEXT PRIMARY KEY,
			actor_address TEXT NOT NULL,
			action TEXT NOT NULL,
			resource_type TEXT NOT NULL,
			resource_id TEXT NOT NULL,
			details TEXT, -- JSON
			success BOOLEAN NOT NULL,
			created_at DATETIME NOT NULL
		)`,

		// Indexes for performance
		`CREATE INDEX IF NOT EXISTS idx_transactions_user_created ON reputation_transactions(user_address, created_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_transactions_created ON reputation_transactions(created_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_oracles_active ON oracles(is_active)`,
		`CREATE INDEX IF NOT EXISTS idx_evaluations_user ON work_evaluations(user_address)`,
		`CREATE INDEX IF NOT EXISTS idx_evaluations_oracle ON work_evaluations(oracle_address)`,
		`CREATE INDEX IF NOT EXISTS idx_evaluations_status ON work_evaluations(status)`,
		`CREATE INDEX IF NOT EXISTS idx_challenges_evaluation ON evaluation_challenges(evaluation_id)`,
		`CREATE INDEX IF NOT EXISTS idx_audit_actor ON audit_log(actor_address, created_at DESC)`,
	}

	for _, query := range queries {
		if _, err := db.Exec(query); err != nil {
			return fmt.Errorf("failed to execute migration: %w", err)
		}
	}

	return nil
}

// initPreparedStatements initializes frequently used prepared statements
func (db *DB) initPreparedStatements() error {
	statements := map[string]string{
		"insert_transaction": `INSERT INTO reputation_transactions (
			id, user_address, event_type, impact_score, context,
			validator_address, blockchain_evidence, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,

		"count_recent_transactions": `SELECT COUNT(*) FROM reputation_transactions
			WHERE user_address = ? AND created_at >= ?`,

		"get_category_score": `SELECT score, updated_at FROM category_scores
			WHERE user_address = ? AND category = ?`,

		"upsert_category_score": `INSERT INTO category_scores (user_address, category, score, updated_at)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(user_address, category) DO UPDATE SET
			score = excluded.score,
			updated_at = excluded.updated_at`,

		"insert_audit": `INSERT INTO audit_log (
			id, actor_address, action, resource_type, resource_id, details, success, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
	}

	db.mutex.Lock()
	defer db.mutex.Unlock()

	for name, query := range statements {
		stmt, err := db.Prepare(query)
		if err != nil {
			return fmt.Errorf("failed to prepare statement %s: %w", name, err)
		}
		db.prepared[name] = stmt
	}

	return nil
}

// stmt retrieves a prepared statement by name.
func (db *DB) stmt(name string) (*sql.Stmt, error) {
	db.mutex.RLock()
	defer db.mutex.RUnlock()

	stmt, exists := db.prepared[name]
	if !exists {
		return nil, fmt.Errorf("prepared statement %s not found", name)
	}

	return stmt, nil
}

// Close closes the database connection and prepared statements.
func (db *DB) Close() error {
	db.mutex.Lock()
	defer db.mutex.Unlock()

	for name, stmt := range db.prepared {
		if err := stmt.Close(); err != nil {
			slog.Warn("Failed to close prepared statement", "name", name, "error", err)
		}
	}
	db.prepared = make(map[string]*sql.Stmt)

	return db.DB.Close()
}
