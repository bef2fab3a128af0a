package status

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"
	"github.com/srg/polarhr/internal/groutine"
)

// Server exposes a Store over HTTP.
type Server struct {
	store  *Store
	logger *logrus.Logger
	srv    *http.Server
}

// NewServer builds the router for store. Nothing listens until Serve.
func NewServer(addr string, store *Store, logger *logrus.Logger) *Server {
	s := &Server{store: store, logger: logger}
	s.srv = &http.Server{
		Addr:         addr,
		Handler:      s.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Router returns the HTTP handler: /health, /status and /sample.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(10 * time.Second))

	r.Get("/health", s.health)
	r.Get("/status", s.status)
	r.Get("/sample", s.sample)
	return r
}

// Serve listens until ctx is cancelled, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return fmt.Errorf("status listener: %w", err)
	}
	s.logger.WithFields(logrus.Fields{
		"addr":      ln.Addr().String(),
		"goroutine": groutine.Name(ctx),
	}).Info("Status endpoint listening")

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.srv.Shutdown(shutdownCtx)
	}
}

func jsonResponse(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	snap, _ := s.store.Load()
	code := http.StatusOK
	state := "ok"
	if snap.Phase != "subscribed" {
		code = http.StatusServiceUnavailable
		state = "degraded"
	}
	jsonResponse(w, code, map[string]interface{}{
		"status": state,
		"phase":  snap.Phase,
	})
}

func (s *Server) status(w http.ResponseWriter, _ *http.Request) {
	snap, _ := s.store.Load()
	jsonResponse(w, http.StatusOK, snap.Document())
}

func (s *Server) sample(w http.ResponseWriter, _ *http.Request) {
	snap, _ := s.store.Load()
	if snap.LastSample == nil {
		jsonResponse(w, http.StatusNotFound, map[string]interface{}{
			"error": "no sample received yet",
			"code":  http.StatusNotFound,
		})
		return
	}
	jsonResponse(w, http.StatusOK, SampleDocument(*snap.LastSample))
}
