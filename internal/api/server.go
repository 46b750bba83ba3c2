// Package api exposes the verification core over HTTP: parliamentary group
// lookups, the extraction log, manual verification and extraction submission.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sagebase/sagebase/internal/extraction"
	"github.com/sagebase/sagebase/internal/membership"
	"github.com/sagebase/sagebase/internal/store"
)

// Options configures the router.
type Options struct {
	AllowedOrigins         []string
	DefaultPipelineVersion string
	RequestTimeout         time.Duration
}

// Server holds the handlers' collaborators.
type Server struct {
	store    store.Store
	resolver *membership.Resolver
	service  *extraction.Service
	verifier *extraction.Verifier
	opts     Options
}

// NewServer wires the use cases over st.
func NewServer(st store.Store, opts Options) *Server {
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 30 * time.Second
	}
	return &Server{
		store:    st,
		resolver: membership.NewResolver(st),
		service:  extraction.NewService(st, st),
		verifier: extraction.NewVerifier(st),
		opts:     opts,
	}
}

// Router returns the HTTP handler for all routes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(s.opts.RequestTimeout))
	if len(s.opts.AllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: s.opts.AllowedOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
			AllowedHeaders: []string{"Accept", "Content-Type", requestIDHeader},
			ExposedHeaders: []string{requestIDHeader},
			MaxAge:         300,
		}))
	}

	r.Get("/health", s.handleHealth)
	r.Get("/governing-bodies/{id}/parliamentary-groups", s.handleListGroups)

	r.Route("/extraction-logs", func(r chi.Router) {
		r.Get("/", s.handleSearchLogs)
		r.Get("/stats", s.handleLogStats)
		r.Get("/{id}", s.handleGetLog)
	})

	r.Route("/entities/{type}/{id}", func(r chi.Router) {
		r.Put("/verification", s.handleSetVerification)
		r.Post("/extractions", s.handleSubmitExtraction)
	})

	return r
}

const requestIDHeader = "X-Request-ID"

type requestIDKey struct{}

// requestID propagates an incoming X-Request-ID or assigns a new UUID.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)
		ctx := context.WithValue(r.Context(), requestIDKey{}, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func getRequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		fields := []zap.Field{
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", status),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", getRequestID(r.Context())),
		}
		if status >= http.StatusInternalServerError {
			zap.L().Warn("http request", fields...)
			return
		}
		zap.L().Debug("http request", fields...)
	})
}
