package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/seattlelisted/listing-cli/internal/resolver"
	"github.com/seattlelisted/listing-cli/internal/store"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the resolution HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx, "serve")
		if err != nil {
			return err
		}
		defer env.Close()

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: buildMux(env.resolver, env.store),
		}

		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			srv.Shutdown(context.Background()) //nolint:errcheck
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

// buildMux assembles the API routes over a resolver and a store.
func buildMux(r *resolver.Resolver, st store.Store) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	mux.HandleFunc("POST /resolve", func(w http.ResponseWriter, req *http.Request) {
		reqID := uuid.NewString()
		w.Header().Set("X-Request-ID", reqID)
		log := zap.L().With(zap.String("request_id", reqID))

		var rreq resolver.Request
		if err := json.NewDecoder(req.Body).Decode(&rreq); err != nil {
			http.Error(w, `{"error":"invalid request body"}`, http.StatusBadRequest)
			return
		}

		res, err := r.Resolve(req.Context(), rreq)
		if err != nil {
			log.Error("resolution failed",
				zap.String("address", rreq.Address), zap.Error(err))
			http.Error(w, `{"error":"resolution failed"}`, http.StatusInternalServerError)
			return
		}

		log.Info("resolution",
			zap.String("address", rreq.Address),
			zap.Bool("ok", res.OK),
			zap.Bool("skipped_api_calls", res.SkippedAPICalls))

		status := http.StatusOK
		if !res.OK && res.Error == "address or place_id required" {
			status = http.StatusBadRequest
		}
		writeJSON(w, status, res)
	})

	mux.HandleFunc("POST /listings/{id}/match", func(w http.ResponseWriter, req *http.Request) {
		listingID, err := strconv.ParseInt(req.PathValue("id"), 10, 64)
		if err != nil {
			http.Error(w, `{"error":"invalid listing id"}`, http.StatusBadRequest)
			return
		}

		var body struct {
			PlaceID string `json:"place_id"`
		}
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			http.Error(w, `{"error":"invalid request body"}`, http.StatusBadRequest)
			return
		}
		if body.PlaceID == "" {
			http.Error(w, `{"error":"place_id is required"}`, http.StatusBadRequest)
			return
		}

		res, err := r.ManualMatch(req.Context(), listingID, body.PlaceID)
		if err != nil {
			zap.L().Error("manual match failed",
				zap.Int64("listing_id", listingID), zap.Error(err))
			http.Error(w, `{"error":"manual match failed"}`, http.StatusInternalServerError)
			return
		}

		status := http.StatusOK
		if !res.OK {
			status = http.StatusNotFound
		}
		writeJSON(w, status, res)
	})

	mux.HandleFunc("GET /stats", func(w http.ResponseWriter, req *http.Request) {
		calls, err := st.CallStats(req.Context())
		if err != nil {
			zap.L().Error("call stats failed", zap.Error(err))
			http.Error(w, `{"error":"stats unavailable"}`, http.StatusInternalServerError)
			return
		}
		jobs, err := st.ParcelJobCounts(req.Context())
		if err != nil {
			zap.L().Error("parcel job counts failed", zap.Error(err))
			http.Error(w, `{"error":"stats unavailable"}`, http.StatusInternalServerError)
			return
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"api_calls":   calls,
			"parcel_jobs": jobs,
		})
	})

	return mux
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
