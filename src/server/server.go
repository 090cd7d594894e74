package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	logger "github.com/sirupsen/logrus"
)

// Routes are the read-only status endpoints.
type Routes struct {
	Status       http.HandlerFunc
	Weights      http.HandlerFunc
	Positions    http.HandlerFunc
	Trades       http.HandlerFunc
	TradeSummary http.HandlerFunc
}

func NewRouter(routes Routes) chi.Router {
	r := chi.NewRouter()
	// === Global Middleware ===
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(10 * time.Second))

	// Public routes
	r.Get("/healthcheck", func(w http.ResponseWriter, r *http.Request) {
		if _, err := w.Write([]byte("OK")); err != nil {
			logger.WithError(err).Error(" \"/health error")
		}
	})

	mount := func(path string, h http.HandlerFunc) {
		if h != nil {
			r.Get(path, h)
		}
	}
	mount("/status", routes.Status)
	mount("/weights", routes.Weights)
	mount("/positions", routes.Positions)
	mount("/trades", routes.Trades)
	mount("/trades/summary", routes.TradeSummary)

	return r
}

// StartServer listens on port and serves handler until ctx is cancelled.
func StartServer(ctx context.Context, port string, handler http.Handler) error {
	ln, err := net.Listen("tcp", ":"+port)
	if err != nil {
		return err
	}
	return Serve(ctx, ln, handler)
}

// Serve serves handler on ln and shuts down gracefully once ctx is done.
func Serve(ctx context.Context, ln net.Listener, handler http.Handler) error {
	srv := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Infof("Listening on %s", ln.Addr())
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			logger.WithError(err).Error("Server crashed")
		}
		return err
	case <-ctx.Done():
	}

	logger.Info("Shutting down gracefully...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("Shutdown error")
		return err
	}
	return nil
}
