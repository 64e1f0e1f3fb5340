package statusserver

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/cors"

	"github.com/kazz187/asmith/internal/failure"
	"github.com/kazz187/asmith/internal/metrics"
	"github.com/kazz187/asmith/pkg/cerr"
	"github.com/kazz187/asmith/pkg/clog"
)

const shutdownTimeout = 10 * time.Second

type Snapshots interface {
	List(ctx context.Context) ([]string, error)
	RoomSizes() map[string]int
	SessionID() string
}

type Failures interface {
	StatusReport() string
	Stats() failure.Stats
}

type Server struct {
	addr           string
	allowedOrigins []string
	snapshots      Snapshots
	failures       Failures
	metrics        *metrics.Metrics
}

func NewServer(addr string, allowedOrigins []string, snapshots Snapshots, failures Failures, m *metrics.Metrics) *Server {
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}
	return &Server{
		addr:           addr,
		allowedOrigins: allowedOrigins,
		snapshots:      snapshots,
		failures:       failures,
		metrics:        m,
	}
}

func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(clog.SlogChiMiddleware(clog.WithChiFilter(func(r *http.Request) bool {
		return r.URL.Path != "/health" && r.URL.Path != "/metrics"
	})))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	r.Get("/status", s.status)
	r.Handle("/metrics", s.metrics.Handler())

	r.Group(func(r chi.Router) {
		r.Use(cerr.NewJSONResponseChiMiddleware())
		r.Get("/snapshots", s.listSnapshots)
		r.Get("/rooms", s.rooms)
		r.Get("/failures", s.failureStats)
		r.NotFound(func(w http.ResponseWriter, r *http.Request) {
			cerr.RespondError(r.Context(), cerr.NotFound, "not found")
		})
	})

	return cors.New(cors.Options{
		AllowedOrigins: s.allowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"*"},
	}).Handler(r)
}

// Run serves until ctx is cancelled and then shuts the server down.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(_ net.Listener) context.Context { return ctx },
	}
	slog.Info("starting status server", "addr", s.addr)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) status(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(s.failures.StatusReport() + "\n"))
}

type snapshotsResponse struct {
	SessionID string   `json:"session_id"`
	Files     []string `json:"files"`
}

func (s *Server) listSnapshots(_ http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	names, err := s.snapshots.List(ctx)
	if err != nil {
		cerr.Respond(ctx, nil, err)
		return
	}
	if names == nil {
		names = []string{}
	}
	cerr.Respond(ctx, snapshotsResponse{SessionID: s.snapshots.SessionID(), Files: names}, nil)
}

type roomsResponse struct {
	Rooms map[string]int `json:"rooms"`
	Tasks int            `json:"tasks"`
}

func (s *Server) rooms(_ http.ResponseWriter, r *http.Request) {
	sizes := s.snapshots.RoomSizes()
	total := 0
	for _, n := range sizes {
		total += n
	}
	cerr.Respond(r.Context(), roomsResponse{Rooms: sizes, Tasks: total}, nil)
}

type failuresResponse struct {
	MaxRetries  int            `json:"max_retries"`
	Consecutive int            `json:"consecutive"`
	Total       int            `json:"total"`
	Kinds       map[string]int `json:"kinds"`
	First       *time.Time     `json:"first,omitempty"`
	Last        *time.Time     `json:"last,omitempty"`
}

func (s *Server) failureStats(_ http.ResponseWriter, r *http.Request) {
	st := s.failures.Stats()
	resp := failuresResponse{
		MaxRetries:  st.MaxRetries,
		Consecutive: st.Consecutive,
		Total:       st.Total,
		Kinds:       make(map[string]int, len(st.Kinds)),
	}
	for _, k := range st.Kinds {
		resp.Kinds[string(k.Kind)] = k.Count
	}
	if !st.First.IsZero() {
		resp.First = &st.First
		resp.Last = &st.Last
	}
	cerr.Respond(r.Context(), resp, nil)
}
