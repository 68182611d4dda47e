package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/seattlelisted/listing-cli/internal/parcel"
	"github.com/seattlelisted/listing-cli/internal/store"
	"github.com/seattlelisted/listing-cli/internal/worker"
)

var workerOnce bool

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run the periodic parcel-job sweep",
	Long: `Claims queued parcel jobs on a cron schedule and links canonical addresses
to the loaded parcel dataset. Without a Postgres parcel dataset the sweep
still drains the queue, completing jobs without a linkage.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("worker"); err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		var matcher worker.ParcelMatcher
		if ps, ok := st.(*store.PostgresStore); ok {
			matcher = parcel.NewMatcher(ps.Pool())
		} else {
			zap.L().Warn("no parcel dataset available for this driver, jobs complete unlinked",
				zap.String("driver", cfg.Store.Driver))
		}

		sweeper := worker.NewSweeper(st, matcher, cfg.Worker.BatchSize)

		if workerOnce {
			done, failed, err := sweeper.RunOnce(ctx)
			if err != nil {
				return err
			}
			zap.L().Info("sweep finished", zap.Int("done", done), zap.Int("failed", failed))
			return nil
		}

		return sweeper.Run(ctx, cfg.Worker.SweepCron)
	},
}

func init() {
	workerCmd.Flags().BoolVar(&workerOnce, "once", false, "run a single sweep and exit")
	rootCmd.AddCommand(workerCmd)
}
