package main

import (
	"encoding/json"
	"fmt"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/seattlelisted/listing-cli/internal/resolver"
)

var (
	resolvePlaceID   string
	resolveListingID int64
)

var resolveCmd = &cobra.Command{
	Use:   "resolve [address]",
	Short: "Resolve one address to a canonical place",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		var address string
		if len(args) > 0 {
			address = strings.TrimSpace(args[0])
		}
		if address == "" && resolvePlaceID == "" {
			return eris.New("an address argument or --place-id is required")
		}

		env, err := initEnv(ctx, "resolve")
		if err != nil {
			return err
		}
		defer env.Close()

		req := resolver.Request{Address: address, PlaceID: resolvePlaceID}
		if resolveListingID > 0 {
			req.ListingID = &resolveListingID
		}

		res, err := env.resolver.Resolve(ctx, req)
		if err != nil {
			return eris.Wrap(err, "resolve")
		}

		out, err := json.MarshalIndent(res, "", "  ")
		if err != nil {
			return eris.Wrap(err, "marshal result")
		}
		fmt.Println(string(out))
		return nil
	},
}

func init() {
	resolveCmd.Flags().StringVar(&resolvePlaceID, "place-id", "", "resolve by provider place ID instead of address")
	resolveCmd.Flags().Int64Var(&resolveListingID, "listing-id", 0, "listing row to back-link on success")
	rootCmd.AddCommand(resolveCmd)
}
