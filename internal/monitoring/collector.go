// Package monitoring aggregates claim outcomes into a point-in-time
// snapshot. It is a reporting aid over the store, not pipeline logic.
package monitoring

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/claimcheck/internal/model"
	"github.com/sells-group/claimcheck/internal/store"
)

// Snapshot holds a point-in-time view of claim decisions.
type Snapshot struct {
	Total      int `json:"total"`
	Approved   int `json:"approved"`
	Rejected   int `json:"rejected"`
	Overridden int `json:"overridden"`

	ApprovalRate  float64 `json:"approval_rate"`
	OverrideRate  float64 `json:"override_rate"`
	AvgConfidence float64 `json:"avg_confidence"`
	AvgQuality    float64 `json:"avg_quality"`

	CollectedAt time.Time `json:"collected_at"`
}

// Collector gathers metrics from the claim store.
type Collector struct {
	store store.ClaimStore
}

// NewCollector creates a metrics collector.
func NewCollector(st store.ClaimStore) *Collector {
	return &Collector{store: st}
}

// Collect builds a snapshot over up to limit records. The store must support
// listing; the DynamoDB backend does not, and reports so.
func (c *Collector) Collect(ctx context.Context, limit int) (*Snapshot, error) {
	lister, ok := c.store.(store.Lister)
	if !ok {
		return nil, eris.New("monitoring: store backend does not support listing")
	}

	recs, err := lister.ListClaims(ctx, limit)
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: list claims")
	}

	snap := &Snapshot{
		Total:       len(recs),
		CollectedAt: time.Now().UTC(),
	}

	var sumConfidence, sumQuality float64
	for _, r := range recs {
		switch r.EffectiveStatus {
		case model.StatusApproved:
			snap.Approved++
		case model.StatusRejected:
			snap.Rejected++
		}
		if r.UserOverride {
			snap.Overridden++
		}
		sumConfidence += r.Confidence
		sumQuality += r.QualityScore
	}

	if snap.Total > 0 {
		snap.ApprovalRate = float64(snap.Approved) / float64(snap.Total)
		snap.OverrideRate = float64(snap.Overridden) / float64(snap.Total)
		snap.AvgConfidence = sumConfidence / float64(snap.Total)
		snap.AvgQuality = sumQuality / float64(snap.Total)
	}

	return snap, nil
}
