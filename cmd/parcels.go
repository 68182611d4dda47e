package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/seattlelisted/listing-cli/internal/parcel"
	"github.com/seattlelisted/listing-cli/internal/store"
)

var parcelsReplace bool

var parcelsCmd = &cobra.Command{
	Use:   "parcels <extract.csv>",
	Short: "Load a county parcel extract into Postgres",
	Long: `Loads a parcel CSV (parcel_number,situs_address,latitude,longitude) into
the parcels table. The worker sweep matches canonical addresses against it.
Requires the postgres store driver.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("migrate"); err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		ps, ok := st.(*store.PostgresStore)
		if !ok {
			return eris.Errorf("parcels requires the postgres driver, not %s", cfg.Store.Driver)
		}

		f, err := os.Open(args[0])
		if err != nil {
			return eris.Wrapf(err, "open %s", args[0])
		}
		defer f.Close() //nolint:errcheck

		recs, err := parcel.ParseCSV(f)
		if err != nil {
			return err
		}

		n, err := parcel.Load(ctx, ps.Pool(), recs, parcelsReplace)
		if err != nil {
			return err
		}

		zap.L().Info("parcel load complete",
			zap.Int("parsed", len(recs)),
			zap.Int64("written", n),
			zap.Bool("replace", parcelsReplace))
		return nil
	},
}

func init() {
	parcelsCmd.Flags().BoolVar(&parcelsReplace, "replace", false, "truncate and reload instead of upserting")
	rootCmd.AddCommand(parcelsCmd)
}
