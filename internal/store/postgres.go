package store

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/claimcheck/internal/claimerr"
	"github.com/sells-group/claimcheck/internal/model"
)

// Pool is the subset of pgxpool.Pool used by the claim store. It is also
// satisfied by pgxmock for tests.
type Pool interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
	Close()
}

// PostgresStore implements ClaimStore using pgxpool.
type PostgresStore struct {
	pool Pool
}

// preparedStatements lists queries to prepare on each new connection for
// faster execution of the hot path operations.
var preparedStatements = map[string]string{
	"put_claim": `INSERT INTO claims (
			claim_id, customer_id, damage_detected, confidence, quality_score,
			system_status, effective_status, user_override, override_reason,
			override_at, submitted_at, processing_time_ms, model_version
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (claim_id) DO UPDATE SET
			customer_id        = excluded.customer_id,
			damage_detected    = excluded.damage_detected,
			confidence         = excluded.confidence,
			quality_score      = excluded.quality_score,
			system_status      = excluded.system_status,
			effective_status   = excluded.effective_status,
			user_override      = excluded.user_override,
			override_reason    = excluded.override_reason,
			override_at        = excluded.override_at,
			submitted_at       = excluded.submitted_at,
			processing_time_ms = excluded.processing_time_ms,
			model_version      = excluded.model_version`,
	"get_claim": `SELECT claim_id, customer_id, damage_detected, confidence, quality_score,
			system_status, effective_status, user_override, override_reason,
			override_at, submitted_at, processing_time_ms, model_version
		FROM claims WHERE claim_id = $1`,
	"override_claim": `UPDATE claims SET
			effective_status = $1, user_override = true, override_reason = $2, override_at = $3
		WHERE claim_id = $4 AND effective_status = $5`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, storageErr(eris.Wrap(err, "postgres: parse config"))
	}

	pgxCfg.MaxConns = 10
	pgxCfg.MinConns = 2
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, storageErr(eris.Wrap(err, "postgres: create pool"))
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, storageErr(eris.Wrap(err, "postgres: ping"))
	}
	return &PostgresStore{pool: pool}, nil
}

// NewPostgresWithPool wraps an existing pool. Used by tests.
func NewPostgresWithPool(pool Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS claims (
	claim_id           TEXT PRIMARY KEY,
	customer_id        TEXT NOT NULL,
	damage_detected    BOOLEAN NOT NULL,
	confidence         DOUBLE PRECISION NOT NULL,
	quality_score      DOUBLE PRECISION NOT NULL,
	system_status      TEXT NOT NULL,
	effective_status   TEXT NOT NULL,
	user_override      BOOLEAN NOT NULL DEFAULT false,
	override_reason    TEXT,
	override_at        TIMESTAMPTZ,
	submitted_at       TIMESTAMPTZ NOT NULL,
	processing_time_ms BIGINT NOT NULL,
	model_version      TEXT NOT NULL
);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return storageErr(eris.Wrap(err, "postgres: migrate"))
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) Put(ctx context.Context, rec model.ClaimRecord) (*model.ClaimRecord, error) {
	_, err := s.pool.Exec(ctx, preparedStatements["put_claim"],
		rec.ClaimID, rec.CustomerID, rec.DamageDetected, rec.Confidence, rec.QualityScore,
		string(rec.SystemStatus), string(rec.EffectiveStatus), rec.UserOverride,
		rec.OverrideReason, rec.OverrideTimestamp,
		rec.SubmittedAt, rec.ProcessingTimeMS, rec.ModelVersion,
	)
	if err != nil {
		return nil, storageErr(eris.Wrapf(err, "postgres: put claim %s", rec.ClaimID))
	}
	return &rec, nil
}

func (s *PostgresStore) Get(ctx context.Context, claimID string) (*model.ClaimRecord, error) {
	row := s.pool.QueryRow(ctx, preparedStatements["get_claim"], claimID)

	var rec model.ClaimRecord
	var systemStatus, effectiveStatus string
	err := row.Scan(
		&rec.ClaimID, &rec.CustomerID, &rec.DamageDetected, &rec.Confidence, &rec.QualityScore,
		&systemStatus, &effectiveStatus, &rec.UserOverride, &rec.OverrideReason,
		&rec.OverrideTimestamp, &rec.SubmittedAt, &rec.ProcessingTimeMS, &rec.ModelVersion,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, claimerr.New(claimerr.CodeClaimNotFound, "no claim found with ID: "+claimID)
	}
	if err != nil {
		return nil, storageErr(eris.Wrapf(err, "postgres: get claim %s", claimID))
	}
	rec.SystemStatus = model.ClaimStatus(systemStatus)
	rec.EffectiveStatus = model.ClaimStatus(effectiveStatus)
	return &rec, nil
}

// ApplyOverride flips a REJECTED claim to APPROVED. The eligibility predicate
// is repeated in the UPDATE, so racing overrides have a single winner.
func (s *PostgresStore) ApplyOverride(ctx context.Context, claimID, reason string) (*model.ClaimRecord, error) {
	rec, err := s.Get(ctx, claimID)
	if err != nil {
		return nil, err
	}
	if rec.EffectiveStatus != model.StatusRejected {
		return nil, claimerr.New(claimerr.CodeOverrideNotPermitted,
			"nothing to override: claim "+claimID+" is already approved")
	}

	now := time.Now().UTC()
	tag, err := s.pool.Exec(ctx, preparedStatements["override_claim"],
		string(model.StatusApproved), reason, now, claimID, string(model.StatusRejected),
	)
	if err != nil {
		return nil, storageErr(eris.Wrapf(err, "postgres: override claim %s", claimID))
	}
	if tag.RowsAffected() == 0 {
		return nil, claimerr.New(claimerr.CodeOverrideNotPermitted,
			"nothing to override: claim "+claimID+" is already approved")
	}

	rec.EffectiveStatus = model.StatusApproved
	rec.UserOverride = true
	rec.OverrideReason = &reason
	rec.OverrideTimestamp = &now
	return rec, nil
}

// ListClaims returns up to limit records, newest first.
func (s *PostgresStore) ListClaims(ctx context.Context, limit int) ([]model.ClaimRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx,
		`SELECT claim_id, customer_id, damage_detected, confidence, quality_score,
		        system_status, effective_status, user_override, override_reason,
		        override_at, submitted_at, processing_time_ms, model_version
		 FROM claims ORDER BY submitted_at DESC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, storageErr(eris.Wrap(err, "postgres: list claims"))
	}
	defer rows.Close()

	var recs []model.ClaimRecord
	for rows.Next() {
		var rec model.ClaimRecord
		var systemStatus, effectiveStatus string
		if err := rows.Scan(
			&rec.ClaimID, &rec.CustomerID, &rec.DamageDetected, &rec.Confidence, &rec.QualityScore,
			&systemStatus, &effectiveStatus, &rec.UserOverride, &rec.OverrideReason,
			&rec.OverrideTimestamp, &rec.SubmittedAt, &rec.ProcessingTimeMS, &rec.ModelVersion,
		); err != nil {
			return nil, storageErr(eris.Wrap(err, "postgres: scan claim"))
		}
		rec.SystemStatus = model.ClaimStatus(systemStatus)
		rec.EffectiveStatus = model.ClaimStatus(effectiveStatus)
		recs = append(recs, rec)
	}
	return recs, storageErr(eris.Wrap(rows.Err(), "postgres: list claims iterate"))
}
