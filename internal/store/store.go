package store

import (
	"context"

	"github.com/sells-group/claimcheck/internal/model"
)

// ClaimStore defines the persistence contract for claim records.
//
// Put is an unconditional upsert by claim id that replaces any prior record
// wholesale — resubmission under the same id is the idempotency contract, not
// a merge. ApplyOverride enforces override eligibility (the stored effective
// status must be REJECTED) and mutates only the override fields; the system
// status is never touched after creation. Deletion is intentionally absent:
// records are an append/overwrite-only audit trail.
//
// Failures carry claimerr codes: CLAIM_NOT_FOUND for absent ids,
// OVERRIDE_NOT_PERMITTED for ineligible overrides, STORAGE_ERROR for backend
// faults.
type ClaimStore interface {
	Put(ctx context.Context, rec model.ClaimRecord) (*model.ClaimRecord, error)
	Get(ctx context.Context, claimID string) (*model.ClaimRecord, error)
	ApplyOverride(ctx context.Context, claimID, reason string) (*model.ClaimRecord, error)

	Migrate(ctx context.Context) error
	Close() error
}

// Lister is an optional capability for backends that can enumerate records.
// The pipeline itself never scans; listing exists for the audit export and
// metrics commands. The DynamoDB backend does not implement it.
type Lister interface {
	ListClaims(ctx context.Context, limit int) ([]model.ClaimRecord, error)
}
