package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/stars4all/nixnox-cli/internal/export"
	"github.com/stars4all/nixnox-cli/internal/store"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the observation download server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		mux := newServeMux(st)

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: mux,
		}

		go shutdownServer(ctx, srv)

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

// shutdownServer drains in-flight requests once the signal context fires.
// The signal context is already canceled at that point, so draining runs on
// its own deadline.
func shutdownServer(ctx context.Context, srv *http.Server) {
	<-ctx.Done()
	zap.L().Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zap.L().Warn("shutdown incomplete", zap.Error(err))
	}
}

func newServeMux(st store.Store) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	})

	mux.HandleFunc("GET /api/observations", func(w http.ResponseWriter, r *http.Request) {
		summaries, err := st.ListObservations(r.Context())
		if err != nil {
			zap.L().Error("list observations failed", zap.Error(err))
			http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(summaries)
	})

	mux.HandleFunc("GET /api/observations/{identifier}/ecsv", func(w http.ResponseWriter, r *http.Request) {
		identifier := r.PathValue("identifier")

		bundle, err := st.Bundle(r.Context(), identifier)
		if errors.Is(err, store.ErrNotFound) {
			http.Error(w, `{"error":"observation not found"}`, http.StatusNotFound)
			return
		}
		if err != nil {
			zap.L().Error("load observation failed",
				zap.String("identifier", identifier), zap.Error(err))
			http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
			return
		}

		table, err := export.Table(bundle)
		if err != nil {
			var unsupported *export.UnsupportedModelError
			if errors.As(err, &unsupported) {
				http.Error(w, `{"error":"`+unsupported.Error()+`"}`, http.StatusUnprocessableEntity)
				return
			}
			zap.L().Error("export failed", zap.String("identifier", identifier), zap.Error(err))
			http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
			return
		}

		var buf bytes.Buffer
		if err := table.Write(&buf); err != nil {
			zap.L().Error("encode failed", zap.String("identifier", identifier), zap.Error(err))
			http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Header().Set("Content-Disposition",
			fmt.Sprintf("attachment; filename=%q", export.Filename(identifier)))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(buf.Bytes())
	})

	return mux
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
