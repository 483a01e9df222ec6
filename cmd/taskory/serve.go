package main

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/taskory"
	"github.com/spf13/cobra"
)

func serveCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the engine over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := buildEngine(cmd.Context())
			if err != nil {
				return err
			}

			srv := newServer(engine)
			slog.Info("listening", "addr", addr)

			httpServer := &http.Server{
				Addr:              addr,
				Handler:           srv,
				ReadHeaderTimeout: 10 * time.Second,
			}
			if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				return goerr.Wrap(err, "server failed")
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&addr, "addr", ":8475", "listen address")
	return cmd
}

type server struct {
	engine *taskory.Engine
	mux    *http.ServeMux
}

func newServer(engine *taskory.Engine) *server {
	s := &server{
		engine: engine,
		mux:    http.NewServeMux(),
	}
	s.mux.HandleFunc("POST /v1/chat", s.handleChat)
	s.mux.HandleFunc("POST /v1/approve", s.handleApprove)
	s.mux.HandleFunc("POST /v1/confirm", s.handleConfirm)
	s.mux.HandleFunc("GET /v1/plan", s.handlePlan)
	return s
}

func (s *server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}
