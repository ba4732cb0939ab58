package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"

	dropallocationengine "dropvault/contexts/drop-distribution/drop-allocation-engine"
	_ "dropvault/internal/platform/httpserver/docs"
	"dropvault/internal/platform/timeouts"

	httpSwagger "github.com/swaggo/http-swagger"
)

const (
	moduleName   = "internal/platform/httpserver"
	maxBodyBytes = 64 << 10
)

type Server struct {
	mux    *http.ServeMux
	logger *slog.Logger
	addr   string
	drops  dropallocationengine.Module
}

func New(drops dropallocationengine.Module, logger *slog.Logger, addr string) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if addr == "" {
		addr = ":8080"
	}

	s := &Server{
		mux:    http.NewServeMux(),
		logger: logger,
		addr:   addr,
		drops:  drops,
	}
	s.registerRoutes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.mux
}

// Start serves until ctx is cancelled, then drains in-flight requests within
// timeouts.Shutdown.
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.mux,
		ReadHeaderTimeout: timeouts.ReadHeader,
		ReadTimeout:       timeouts.Read,
		WriteTimeout:      timeouts.Write,
		IdleTimeout:       timeouts.Idle,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	s.logger.Info("http server starting",
		"event", "http_server_starting",
		"module", moduleName,
		"layer", "platform",
		"addr", s.addr,
	)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeouts.Shutdown)
	defer cancel()
	s.logger.Info("http server shutting down",
		"event", "http_server_shutdown",
		"module", moduleName,
		"layer", "platform",
	)
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) registerRoutes() {
	s.mux.Handle("/swagger/", httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
	))

	s.mux.HandleFunc("GET /healthz", s.handleHealth)

	s.mux.HandleFunc("POST /v1/drops/claim", s.handleClaimDrop)
	s.mux.HandleFunc("GET /v1/drops/available", s.handleAvailableDrops)
	s.mux.HandleFunc("GET /v1/drops/requesters/{requester_id}", s.handleGetRequester)
	s.mux.HandleFunc("GET /v1/drops/requesters/{requester_id}/allocations", s.handleListAllocations)
	s.mux.HandleFunc("POST /v1/gateway/commands", s.handleGatewayCommand)
}

// decodeJSON reads a bounded JSON body into target. Unknown fields are
// rejected.
func decodeJSON(w http.ResponseWriter, r *http.Request, target any) error {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(target); err != nil {
		return err
	}
	if err := decoder.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return errors.New("request body must contain a single JSON object")
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
