package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/skillchain/reputation-engine/internal/types"
)

// Repository handles database operations for the reputation engine.
type Repository struct {
	db *DB
}

// NewRepository creates a new repository.
func NewRepository(db *DB) *Repository {
	return &Repository{db: db}
}

// TxFilter narrows a ledger query. Zero values mean "no constraint".
type TxFilter struct {
	EventType types.EventType
	Category  types.Category
	Since     time.Time
	Limit     int
}

// InsertTransaction appends an immutable ledger row.
func (r *Repository) InsertTransaction(ctx context.Context, tx *types.Transaction) error {
	contextJSON, err := marshalJSON(tx.Context)
	if err != nil {
		return err
	}

	stmt, err := r.db.stmt("insert_transaction")
	if err != nil {
		return err
	}

	_, err = stmt.ExecContext(ctx,
		tx.ID, tx.UserAddress, string(tx.EventType), tx.ImpactScore, contextJSON,
		nullString(tx.ValidatorAddress), nullString(tx.BlockchainEvidence), tx.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert transaction: %w", err)
	}

	return nil
}

// QueryTransactions returns a user's ledger entries, most recent first.
func (r *Repository) QueryTransactions(ctx context.Context, user string, f TxFilter) ([]types.Transaction, error) {
	query := `SELECT id, user_address, event_type, impact_score, context,
		validator_address, blockchain_evidence, created_at
		FROM reputation_transactions WHERE user_address = ?`
	args := []any{user}

	if f.EventType != "" {
		query += ` AND event_type = ?`
		args = append(args, string(f.EventType))
	}
	if f.Category != "" {
		query += ` AND json_extract(context, '$.category') = ?`
		args = append(args, string(f.Category))
	}
	if !f.Since.IsZero() {
		query += ` AND created_at >= ?`
		args = append(args, f.Since)
	}
	query += ` ORDER BY created_at DESC`
	if f.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, f.Limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer rows.Close()

	var transactions []types.Transaction
	for rows.Next() {
		var tx types.Transaction
		var contextJSON string
		var validator, evidence sql.NullString

		if err := rows.Scan(&tx.ID, &tx.UserAddress, &tx.EventType, &tx.ImpactScore,
			&contextJSON, &validator, &evidence, &tx.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}

		tx.Context, err = unmarshalContext(contextJSON)
		if err != nil {
			return nil, err
		}
		tx.ValidatorAddress = validator.String
		tx.BlockchainEvidence = evidence.String

		transactions = append(transactions, tx)
	}

	return transactions, rows.Err()
}

// CountTransactionsSince counts a user's ledger entries newer than the cutoff.
func (r *Repository) CountTransactionsSince(ctx context.Context, user string, since time.Time) (int, error) {
	stmt, err := r.db.stmt("count_recent_transactions")
	if err != nil {
		return 0, err
	}

	var count int
	if err := stmt.QueryRowContext(ctx, user, since).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count transactions: %w", err)
	}

	return count, nil
}

// GetCategoryScore returns the stored score for (user, category). The second
// return is false when no row exists yet.
func (r *Repository) GetCategoryScore(ctx context.Context, user string, category types.Category) (float64, bool, error) {
	stmt, err := r.db.stmt("get_category_score")
	if err != nil {
		return 0, false, err
	}

	var score float64
	var updatedAt time.Time
	err = stmt.QueryRowContext(ctx, user, string(category)).Scan(&score, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to get category score: %w", err)
	}

	return score, true, nil
}

// UpsertCategoryScore writes the (user, category) score row.
func (r *Repository) UpsertCategoryScore(ctx context.Context, user string, category types.Category, score float64, now time.Time) error {
	stmt, err := r.db.stmt("upsert_category_score")
	if err != nil {
		return err
	}

	if _, err := stmt.ExecContext(ctx, user, string(category), score, now); err != nil {
		return fmt.Errorf("failed to upsert category score: %w", err)
	}

	return nil
}

// ListCategoryScores returns all stored category rows for a user.
func (r *Repository) ListCategoryScores(ctx context.Context, user string) ([]types.CategoryScore, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT user_address, category, score, updated_at
		FROM category_scores WHERE user_address = ?
	`, user)
	if err != nil {
		return nil, fmt.Errorf("failed to list category scores: %w", err)
	}
	defer rows.Close()

	return scanCategoryScores(rows)
}

// ListAllCategoryScores returns every category row, for leaderboard assembly.
func (r *Repository) ListAllCategoryScores(ctx context.Context) ([]types.CategoryScore, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT user_address, category, score, updated_at FROM category_scores
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list category scores: %w", err)
	}
	defer rows.Close()

	return scanCategoryScores(rows)
}

func scanCategoryScores(rows *sql.Rows) ([]types.CategoryScore, error) {
	var scores []types.CategoryScore
	for rows.Next() {
		var cs types.CategoryScore
		if err := rows.Scan(&cs.UserAddress, &cs.Category, &cs.Score, &cs.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan category score: %w", err)
		}
		scores = append(scores, cs)
	}
	return scores, rows.Err()
}

// InsertOracle records a newly registered oracle.
func (r *Repository) InsertOracle(ctx context.Context, o *types.Oracle) error {
	specsJSON, err := marshalJSON(o.Specializations)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO oracles (
			oracle_id, oracle_address, name, specializations, stake_amount,
			is_active, total_evaluations, successful_evaluations, reputation_score,
			slashed_amount, slash_reason, registered_at, slashed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, o.OracleID, o.OracleAddress, o.Name, specsJSON, o.StakeAmount,
		o.IsActive, o.TotalEvaluations, o.SuccessfulEvaluations, o.ReputationScore,
		o.SlashedAmount, nullString(o.SlashReason), o.RegisteredAt, nullTime(o.SlashedAt))
	if err != nil {
		return fmt.Errorf("failed to insert oracle: %w", err)
	}

	return nil
}

// GetOracleByAddress returns the oracle row, or nil when none exists.
func (r *Repository) GetOracleByAddress(ctx context.Context, address string) (*types.Oracle, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT oracle_id, oracle_address, name, specializations, stake_amount,
			is_active, total_evaluations, successful_evaluations, reputation_score,
			slashed_amount, slash_reason, registered_at, slashed_at
		FROM oracles WHERE oracle_address = ?
	`, address)

	oracle, err := scanOracle(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return oracle, err
}

// UpdateOracle overwrites the mutable oracle fields.
func (r *Repository) UpdateOracle(ctx context.Context, o *types.Oracle) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE oracles SET
			name = ?, stake_amount = ?, is_active = ?,
			total_evaluations = ?, successful_evaluations = ?, reputation_score = ?,
			slashed_amount = ?, slash_reason = ?, slashed_at = ?
		WHERE oracle_address = ?
	`, o.Name, o.StakeAmount, o.IsActive,
		o.TotalEvaluations, o.SuccessfulEvaluations, o.ReputationScore,
		o.SlashedAmount, nullString(o.SlashReason), nullTime(o.SlashedAt),
		o.OracleAddress)
	if err != nil {
		return fmt.Errorf("failed to update oracle: %w", err)
	}

	return nil
}

// ListActiveOracles returns all oracles with is_active=true.
func (r *Repository) ListActiveOracles(ctx context.Context) ([]types.Oracle, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT oracle_id, oracle_address, name, specializations, stake_amount,
			is_active, total_evaluations, successful_evaluations, reputation_score,
			slashed_amount, slash_reason, registered_at, slashed_at
		FROM oracles WHERE is_active = TRUE ORDER BY registered_at ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list active oracles: %w", err)
	}
	defer rows.Close()

	var oracles []types.Oracle
	for rows.Next() {
		oracle, err := scanOracle(rows)
		if err != nil {
			return nil, err
		}
		oracles = append(oracles, *oracle)
	}

	return oracles, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOracle(row rowScanner) (*types.Oracle, error) {
	var o types.Oracle
	var specsJSON string
	var slashReason sql.NullString
	var slashedAt sql.NullTime

	err := row.Scan(&o.OracleID, &o.OracleAddress, &o.Name, &specsJSON, &o.StakeAmount,
		&o.IsActive, &o.TotalEvaluations, &o.SuccessfulEvaluations, &o.ReputationScore,
		&o.SlashedAmount, &slashReason, &o.RegisteredAt, &slashedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan oracle: %w", err)
	}

	o.Specializations, err = unmarshalStrings(specsJSON)
	if err != nil {
		return nil, err
	}
	o.SlashReason = slashReason.String
	o.SlashedAt = slashedAt.Time

	return &o, nil
}

// InsertEvaluation records a submitted work evaluation.
func (r *Repository) InsertEvaluation(ctx context.Context, e *types.WorkEvaluation) error {
	tokenJSON, err := marshalJSON(e.SkillTokenIDs)
	if err != nil {
		return err
	}
	scoresJSON, err := marshalJSON(e.SkillScores)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO work_evaluations (
			evaluation_id, user_address, oracle_address, skill_token_ids,
			work_description, work_content, overall_score, skill_scores,
			feedback, ipfs_hash, status, transaction_id, blockchain_verified,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, e.EvaluationID, e.UserAddress, e.OracleAddress, tokenJSON,
		e.WorkDescription, e.WorkContent, e.OverallScore, scoresJSON,
		e.Feedback, nullString(e.IPFSHash), string(e.Status),
		nullString(e.TransactionID), e.BlockchainVerified,
		e.CreatedAt, e.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert evaluation: %w", err)
	}

	return nil
}

// GetEvaluation returns an evaluation, or nil when none exists.
func (r *Repository) GetEvaluation(ctx context.Context, evaluationID string) (*types.WorkEvaluation, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT evaluation_id, user_address, oracle_address, skill_token_ids,
			work_description, work_content, overall_score, skill_scores,
			feedback, ipfs_hash, status, transaction_id, blockchain_verified,
			created_at, updated_at
		FROM work_evaluations WHERE evaluation_id = ?
	`, evaluationID)

	eval, err := scanEvaluation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return eval, err
}

// ListEvaluationsByUser returns a user's evaluations, most recent first.
func (r *Repository) ListEvaluationsByUser(ctx context.Context, user string) ([]types.WorkEvaluation, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT evaluation_id, user_address, oracle_address, skill_token_ids,
			work_description, work_content, overall_score, skill_scores,
			feedback, ipfs_hash, status, transaction_id, blockchain_verified,
			created_at, updated_at
		FROM work_evaluations WHERE user_address = ? ORDER BY created_at DESC
	`, user)
	if err != nil {
		return nil, fmt.Errorf("failed to list evaluations: %w", err)
	}
	defer rows.Close()

	var evaluations []types.WorkEvaluation
	for rows.Next() {
		eval, err := scanEvaluation(rows)
		if err != nil {
			return nil, err
		}
		evaluations = append(evaluations, *eval)
	}

	return evaluations, rows.Err()
}

// UpdateEvaluationStatus moves an evaluation through its lifecycle.
func (r *Repository) UpdateEvaluationStatus(ctx context.Context, evaluationID string, status types.EvaluationStatus, now time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE work_evaluations SET status = ?, updated_at = ? WHERE evaluation_id = ?
	`, string(status), now, evaluationID)
	if err != nil {
		return fmt.Errorf("failed to update evaluation status: %w", err)
	}

	return nil
}

func scanEvaluation(row rowScanner) (*types.WorkEvaluation, error) {
	var e types.WorkEvaluation
	var tokenJSON, scoresJSON string
	var ipfsHash, transactionID sql.NullString

	err := row.Scan(&e.EvaluationID, &e.UserAddress, &e.OracleAddress, &tokenJSON,
		&e.WorkDescription, &e.WorkContent, &e.OverallScore, &scoresJSON,
		&e.Feedback, &ipfsHash, &e.Status, &transactionID, &e.BlockchainVerified,
		&e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan evaluation: %w", err)
	}

	e.SkillTokenIDs, err = unmarshalInt64s(tokenJSON)
	if err != nil {
		return nil, err
	}
	e.SkillScores, err = unmarshalInt64s(scoresJSON)
	if err != nil {
		return nil, err
	}
	e.IPFSHash = ipfsHash.String
	e.TransactionID = transactionID.String

	return &e, nil
}

// InsertChallenge records a new evaluation challenge.
func (r *Repository) InsertChallenge(ctx context.Context, c *types.EvaluationChallenge) error {
	evidenceJSON, err := marshalJSON(c.Evidence)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO evaluation_challenges (
			challenge_id, evaluation_id, challenger_address, reason, evidence,
			stake_amount, status, resolution, uphold_original, created_at, resolved_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, c.ChallengeID, c.EvaluationID, c.ChallengerAddress, c.Reason, evidenceJSON,
		c.StakeAmount, string(c.Status), nullString(c.Resolution), c.UpholdOriginal,
		c.CreatedAt, nullTime(c.ResolvedAt))
	if err != nil {
		return fmt.Errorf("failed to insert challenge: %w", err)
	}

	return nil
}

// GetChallenge returns a challenge, or nil when none exists.
func (r *Repository) GetChallenge(ctx context.Context, challengeID string) (*types.EvaluationChallenge, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT challenge_id, evaluation_id, challenger_address, reason, evidence,
			stake_amount, status, resolution, uphold_original, created_at, resolved_at
		FROM evaluation_challenges WHERE challenge_id = ?
	`, challengeID)

	var c types.EvaluationChallenge
	var evidenceJSON string
	var resolution sql.NullString
	var resolvedAt sql.NullTime

	err := row.Scan(&c.ChallengeID, &c.EvaluationID, &c.ChallengerAddress, &c.Reason,
		&evidenceJSON, &c.StakeAmount, &c.Status, &resolution, &c.UpholdOriginal,
		&c.CreatedAt, &resolvedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan challenge: %w", err)
	}

	c.Evidence, err = unmarshalStrings(evidenceJSON)
	if err != nil {
		return nil, err
	}
	c.Resolution = resolution.String
	c.ResolvedAt = resolvedAt.Time

	return &c, nil
}

// UpdateChallengeResolution marks a challenge resolved.
func (r *Repository) UpdateChallengeResolution(ctx context.Context, challengeID, resolution string, upholdOriginal bool, now time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE evaluation_challenges SET
			status = ?, resolution = ?, uphold_original = ?, resolved_at = ?
		WHERE challenge_id = ?
	`, string(types.ChallengeResolved), resolution, upholdOriginal, now, challengeID)
	if err != nil {
		return fmt.Errorf("failed to update challenge resolution: %w", err)
	}

	return nil
}

// InsertAudit writes one audit row for a mutating call.
func (r *Repository) InsertAudit(ctx context.Context, id, actor, action, resourceType, resourceID string, details map[string]any, success bool, now time.Time) error {
	detailsJSON, err := marshalJSON(details)
	if err != nil {
		return err
	}

	stmt, err := r.db.stmt("insert_audit")
	if err != nil {
		return err
	}

	if _, err := stmt.ExecContext(ctx, id, actor, action, resourceType, resourceID, detailsJSON, success, now); err != nil {
		return fmt.Errorf("failed to insert audit row: %w", err)
	}

	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}
