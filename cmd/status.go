package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/seattlelisted/listing-cli/internal/model"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show provider call volume and parcel queue depth",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("status"); err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		calls, err := st.CallStats(ctx)
		if err != nil {
			return err
		}
		jobs, err := st.ParcelJobCounts(ctx)
		if err != nil {
			return err
		}

		fmt.Println("API calls:")
		fmt.Printf("  today:      %d\n", calls.Today)
		fmt.Printf("  last week:  %d\n", calls.LastWeek)
		fmt.Printf("  last month: %d\n", calls.LastMonth)

		fmt.Println("Parcel jobs:")
		for _, status := range []model.ParcelJobStatus{
			model.ParcelJobQueued, model.ParcelJobRunning,
			model.ParcelJobDone, model.ParcelJobFailed,
		} {
			fmt.Printf("  %-8s %d\n", string(status)+":", jobs[status])
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
