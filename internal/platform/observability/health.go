package observability

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	db "github.com/leadscan/leadscan/internal/storage"
)

const (
	shutdownTimeout   = 5 * time.Second
	readHeaderTimeout = 10 * time.Second
	operatorPathBase  = "/ops/"
)

// Server serves health checks, Prometheus metrics, and the optional operator
// hooks (trigger/status).
type Server struct {
	db              *db.DB
	port            int
	logger          *zerolog.Logger
	operatorHandler http.Handler
}

func NewServer(database *db.DB, port int, logger *zerolog.Logger) *Server {
	return &Server{
		db:     database,
		port:   port,
		logger: logger,
	}
}

// NewServerWithOperator creates a server that also mounts the operator hooks
// under /ops/.
func NewServerWithOperator(database *db.DB, port int, operatorHandler http.Handler, logger *zerolog.Logger) *Server {
	return &Server{
		db:              database,
		port:            port,
		logger:          logger,
		operatorHandler: operatorHandler,
	}
}

func (s *Server) Start(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = fmt.Fprint(w, "OK")
	})

	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if err := s.db.Ping(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = fmt.Fprintf(w, "DB error: %v", err)

			return
		}

		w.WriteHeader(http.StatusOK)
		_, _ = fmt.Fprint(w, "OK")
	})

	mux.Handle("/metrics", promhttp.Handler())

	if s.operatorHandler != nil {
		mux.Handle(operatorPathBase, http.StripPrefix(operatorPathBase[:len(operatorPathBase)-1], s.operatorHandler))
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.port),
		Handler:           mux,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	go func() {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)

		defer cancel()

		//nolint:errcheck,contextcheck // shutdown in signal handler is best-effort, non-inherited context intentional
		_ = srv.Shutdown(shutdownCtx)
	}()

	s.logger.Info().Int("port", s.port).Msg("Health check server starting")

	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server error: %w", err)
	}

	return nil
}
