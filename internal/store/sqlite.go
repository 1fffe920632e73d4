package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/claimcheck/internal/claimerr"
	"github.com/sells-group/claimcheck/internal/model"
)

// SQLiteStore implements ClaimStore using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, claimerr.Wrap(claimerr.CodeStorage, eris.Wrap(err, "sqlite: open"), "storage unavailable")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, claimerr.Wrap(claimerr.CodeStorage, eris.Wrapf(err, "sqlite: exec %s", pragma), "storage unavailable")
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS claims (
	claim_id           TEXT PRIMARY KEY,
	customer_id        TEXT NOT NULL,
	damage_detected    INTEGER NOT NULL,
	confidence         REAL NOT NULL,
	quality_score      REAL NOT NULL,
	system_status      TEXT NOT NULL,
	effective_status   TEXT NOT NULL,
	user_override      INTEGER NOT NULL DEFAULT 0,
	override_reason    TEXT,
	override_at        DATETIME,
	submitted_at       DATETIME NOT NULL,
	processing_time_ms INTEGER NOT NULL,
	model_version      TEXT NOT NULL
);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return storageErr(eris.Wrap(err, "sqlite: migrate"))
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Put upserts the record, replacing every column. Override fields from any
// prior record under the same id are reset, never carried over.
func (s *SQLiteStore) Put(ctx context.Context, rec model.ClaimRecord) (*model.ClaimRecord, error) {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO claims (
			claim_id, customer_id, damage_detected, confidence, quality_score,
			system_status, effective_status, user_override, override_reason,
			override_at, submitted_at, processing_time_ms, model_version
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(claim_id) DO UPDATE SET
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
		rec.ClaimID, rec.CustomerID, rec.DamageDetected, rec.Confidence, rec.QualityScore,
		string(rec.SystemStatus), string(rec.EffectiveStatus), rec.UserOverride,
		nullString(rec.OverrideReason), nullTime(rec.OverrideTimestamp),
		rec.SubmittedAt, rec.ProcessingTimeMS, rec.ModelVersion,
	)
	if err != nil {
		return nil, storageErr(eris.Wrapf(err, "sqlite: put claim %s", rec.ClaimID))
	}
	return &rec, nil
}

func (s *SQLiteStore) Get(ctx context.Context, claimID string) (*model.ClaimRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT claim_id, customer_id, damage_detected, confidence, quality_score,
		        system_status, effective_status, user_override, override_reason,
		        override_at, submitted_at, processing_time_ms, model_version
		 FROM claims WHERE claim_id = ?`,
		claimID,
	)
	rec, err := scanClaim(row)
	if err == sql.ErrNoRows {
		return nil, claimerr.New(claimerr.CodeClaimNotFound, "no claim found with ID: "+claimID)
	}
	if err != nil {
		return nil, storageErr(eris.Wrapf(err, "sqlite: get claim %s", claimID))
	}
	return rec, nil
}

// ApplyOverride flips a REJECTED claim to APPROVED. The eligibility predicate
// is repeated in the UPDATE itself, so two racing overrides cannot both win.
func (s *SQLiteStore) ApplyOverride(ctx context.Context, claimID, reason string) (*model.ClaimRecord, error) {
	rec, err := s.Get(ctx, claimID)
	if err != nil {
		return nil, err
	}
	if rec.EffectiveStatus != model.StatusRejected {
		return nil, claimerr.New(claimerr.CodeOverrideNotPermitted,
			"nothing to override: claim "+claimID+" is already approved")
	}

	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`UPDATE claims SET
			effective_status = ?, user_override = 1, override_reason = ?, override_at = ?
		 WHERE claim_id = ? AND effective_status = ?`,
		string(model.StatusApproved), reason, now, claimID, string(model.StatusRejected),
	)
	if err != nil {
		return nil, storageErr(eris.Wrapf(err, "sqlite: override claim %s", claimID))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, storageErr(eris.Wrap(err, "sqlite: rows affected"))
	}
	if n == 0 {
		// Lost a race with a concurrent override.
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
func (s *SQLiteStore) ListClaims(ctx context.Context, limit int) ([]model.ClaimRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT claim_id, customer_id, damage_detected, confidence, quality_score,
		        system_status, effective_status, user_override, override_reason,
		        override_at, submitted_at, processing_time_ms, model_version
		 FROM claims ORDER BY submitted_at DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, storageErr(eris.Wrap(err, "sqlite: list claims"))
	}
	defer rows.Close()

	var recs []model.ClaimRecord
	for rows.Next() {
		rec, err := scanClaim(rows)
		if err != nil {
			return nil, storageErr(eris.Wrap(err, "sqlite: scan claim"))
		}
		recs = append(recs, *rec)
	}
	return recs, storageErr(eris.Wrap(rows.Err(), "sqlite: list claims iterate"))
}

// helpers

type scannable interface {
	Scan(dest ...any) error
}

func scanClaim(row scannable) (*model.ClaimRecord, error) {
	var rec model.ClaimRecord
	var systemStatus, effectiveStatus string
	var reason sql.NullString
	var overrideAt sql.NullTime

	err := row.Scan(
		&rec.ClaimID, &rec.CustomerID, &rec.DamageDetected, &rec.Confidence, &rec.QualityScore,
		&systemStatus, &effectiveStatus, &rec.UserOverride, &reason,
		&overrideAt, &rec.SubmittedAt, &rec.ProcessingTimeMS, &rec.ModelVersion,
	)
	if err != nil {
		return nil, err
	}

	rec.SystemStatus = model.ClaimStatus(systemStatus)
	rec.EffectiveStatus = model.ClaimStatus(effectiveStatus)
	if reason.Valid {
		rec.OverrideReason = &reason.String
	}
	if overrideAt.Valid {
		t := overrideAt.Time.UTC()
		rec.OverrideTimestamp = &t
	}
	return &rec, nil
}

func nullString(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}

func storageErr(err error) error {
	if err == nil {
		return nil
	}
	return claimerr.Wrap(claimerr.CodeStorage, err, "storage operation failed")
}
