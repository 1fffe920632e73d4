package main

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync/atomic"
	"syscall"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/sells-group/claimcheck/internal/claimerr"
	"github.com/sells-group/claimcheck/internal/model"
	"github.com/sells-group/claimcheck/internal/pipeline"
)

var (
	batchDir        string
	batchCustomerID string
	batchLimit      int
)

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Batch validate a directory of claim photos",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		images, err := collectImages(batchDir)
		if err != nil {
			return err
		}

		return processBatch(ctx, env.Pipeline, images, batchLimit)
	},
}

func init() {
	batchCmd.Flags().StringVar(&batchDir, "dir", "", "directory of claim photos")
	batchCmd.Flags().StringVar(&batchCustomerID, "customer-id", "", "customer id applied to every submission")
	batchCmd.Flags().IntVar(&batchLimit, "limit", 0, "max number of photos to process (0 = all)")
	batchCmd.MarkFlagRequired("dir")
	batchCmd.MarkFlagRequired("customer-id")
	rootCmd.AddCommand(batchCmd)
}

// collectImages walks dir non-recursively and returns paths of supported photo files.
func collectImages(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, eris.Wrapf(err, "read directory %s", dir)
	}

	var images []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(entry.Name())) {
		case ".jpg", ".jpeg", ".png":
			images = append(images, filepath.Join(dir, entry.Name()))
		}
	}
	return images, nil
}

// processBatch submits images concurrently, bounded by the configured
// concurrency and submission rate. Individual failures don't abort the batch.
func processBatch(ctx context.Context, p *pipeline.Pipeline, images []string, limit int) error {
	if len(images) == 0 {
		zap.L().Info("no photos found")
		return nil
	}

	if limit > 0 && len(images) > limit {
		images = images[:limit]
	}

	zap.L().Info("processing batch",
		zap.Int("photos", len(images)),
		zap.Int("concurrency", cfg.Batch.Concurrency),
	)

	limiter := rate.NewLimiter(rate.Limit(cfg.Batch.RatePerSec), 1)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.Batch.Concurrency)

	var approved, rejected, failed atomic.Int64

	for _, path := range images {
		g.Go(func() error {
			log := zap.L().With(zap.String("photo", path))

			if err := limiter.Wait(gctx); err != nil {
				return err
			}

			imageBytes, err := os.ReadFile(path)
			if err != nil {
				failed.Add(1)
				log.Error("read photo failed", zap.Error(err))
				return nil
			}

			outcome, err := p.Submit(gctx, pipeline.SubmitRequest{
				ClaimID:    uuid.New().String(),
				CustomerID: batchCustomerID,
				Image:      imageBytes,
			})
			if err != nil {
				failed.Add(1)
				log.Error("submission failed",
					zap.String("code", string(claimerr.CodeOf(err))),
					zap.Error(err),
				)
				return nil // don't abort batch on individual failure
			}

			if outcome.QualityRejected {
				rejected.Add(1)
				log.Info("photo rejected on quality",
					zap.Float64("quality_score", outcome.Quality.Overall),
				)
				return nil
			}

			if outcome.Record.EffectiveStatus == model.StatusApproved {
				approved.Add(1)
			} else {
				rejected.Add(1)
			}
			log.Info("photo processed",
				zap.String("claim_id", outcome.ClaimID),
				zap.String("status", string(outcome.Record.EffectiveStatus)),
				zap.Float64("confidence", outcome.Record.Confidence),
			)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return eris.Wrap(err, "batch processing")
	}

	zap.L().Info("batch complete",
		zap.Int64("approved", approved.Load()),
		zap.Int64("rejected", rejected.Load()),
		zap.Int64("failed", failed.Load()),
	)
	return nil
}
