package main

import (
	"encoding/json"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/seattlelisted/listing-cli/internal/listing"
	"github.com/seattlelisted/listing-cli/internal/model"
	"github.com/seattlelisted/listing-cli/internal/resolver"
)

var ingestConcurrency int

var ingestCmd = &cobra.Command{
	Use:   "ingest <listings.json>",
	Short: "Ingest a scraped listings file: upsert and resolve each row",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx, "ingest")
		if err != nil {
			return err
		}
		defer env.Close()

		data, err := os.ReadFile(args[0])
		if err != nil {
			return eris.Wrapf(err, "read %s", args[0])
		}

		var rows []model.Listing
		if err := json.Unmarshal(data, &rows); err != nil {
			return eris.Wrapf(err, "parse %s", args[0])
		}
		if len(rows) == 0 {
			zap.L().Info("nothing to ingest")
			return nil
		}

		concurrency := ingestConcurrency
		if concurrency == 0 {
			concurrency = cfg.Ingest.MaxConcurrent
		}

		zap.L().Info("ingesting listings",
			zap.Int("rows", len(rows)),
			zap.Int("concurrency", concurrency))

		upserter := listing.NewUpserter(env.store)

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(concurrency)

		var created, updated, priceChanges, unresolved, failed atomic.Int64

		for _, row := range rows {
			g.Go(func() error {
				log := zap.L().With(zap.String("address", row.FullAddress))

				res, err := env.resolver.Resolve(gctx, resolver.Request{Address: row.FullAddress})
				if err != nil {
					failed.Add(1)
					log.Error("resolution failed", zap.Error(err))
					return nil // one bad row never aborts the batch
				}

				var canon *model.CanonicalAddress
				if res.OK && res.Result != nil {
					canon = &model.CanonicalAddress{
						ID:      res.Result.ID,
						PlaceID: res.Result.PlaceID,
					}
				} else {
					unresolved.Add(1)
					log.Warn("no canonical match, storing unlinked",
						zap.Int("near_candidates", len(res.NearCandidates)))
				}

				out, err := upserter.Upsert(gctx, row, canon)
				if err != nil {
					failed.Add(1)
					log.Error("upsert failed", zap.Error(err))
					return nil
				}

				if out.Created {
					created.Add(1)
				} else {
					updated.Add(1)
				}
				if out.PriceChanged {
					priceChanges.Add(1)
				}
				return nil
			})
		}

		if err := g.Wait(); err != nil {
			return eris.Wrap(err, "ingest")
		}

		zap.L().Info("ingest complete",
			zap.Int64("created", created.Load()),
			zap.Int64("updated", updated.Load()),
			zap.Int64("price_changes", priceChanges.Load()),
			zap.Int64("unresolved", unresolved.Load()),
			zap.Int64("failed", failed.Load()))
		return nil
	},
}

func init() {
	ingestCmd.Flags().IntVar(&ingestConcurrency, "concurrency", 0, "concurrent resolutions (default from config)")
	rootCmd.AddCommand(ingestCmd)
}
