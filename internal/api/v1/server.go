package v1

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	catalogAPI "github.com/icebergrest/catalog/internal/api/v1/catalog"
	"github.com/icebergrest/catalog/internal/api/v1/common"
	"github.com/icebergrest/catalog/internal/api/v1/health"
	"github.com/icebergrest/catalog/internal/catalog/service"
	"github.com/icebergrest/catalog/internal/catalog/storage"
	"github.com/icebergrest/catalog/internal/catalog/store"
	"github.com/icebergrest/catalog/internal/config"
	"github.com/icebergrest/catalog/internal/metrics"
)

// Server wires the catalog service and HTTP handlers together and
// multiplexes their routes onto a single http.ServeMux.
type Server struct {
	config   *config.Config
	recorder metrics.Recorder
	handlers []interface{ Routes() []common.Route }
}

// New constructs the catalog commit pipeline and its HTTP surface.
func New(cfg *config.Config, db *pgxpool.Pool, collector *metrics.Collector) (*Server, error) {
	recorder := metrics.NewRecorder(collector)

	var s3Backend storage.Backend
	if cfg.Warehouse.S3Endpoint != "" || strings.HasPrefix(cfg.Warehouse.Path, "s3://") {
		backend, err := storage.NewS3Backend(context.Background(), cfg.Warehouse.S3Endpoint)
		if err != nil {
			return nil, err
		}
		s3Backend = backend
	}

	accessor := storage.New(cfg.Warehouse.Path, s3Backend)
	catalogStore := store.NewPostgresStore(db, recorder)
	svc := service.New(catalogStore, accessor, recorder, cfg.Warehouse.Path)

	server := &Server{
		config:   cfg,
		recorder: recorder,
		handlers: []interface{ Routes() []common.Route }{
			health.NewHandler(),
			catalogAPI.NewHandler(svc, cfg),
		},
	}
	return server, nil
}

func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	var routes []common.Route
	for _, handler := range s.handlers {
		routes = append(routes, handler.Routes()...)
	}

	routesByPath := make(map[string][]common.Route)
	for _, route := range routes {
		path := route.Path
		pathWithoutSlash := strings.TrimSuffix(path, "/")
		pathWithSlash := pathWithoutSlash + "/"

		routesByPath[pathWithoutSlash] = append(routesByPath[pathWithoutSlash], route)
		routesByPath[pathWithSlash] = append(routesByPath[pathWithSlash], route)
	}

	for path, pathRoutes := range routesByPath {
		handlers := make(map[string]http.HandlerFunc)
		for _, route := range pathRoutes {
			handler := route.Handler
			for i := len(route.Middleware) - 1; i >= 0; i-- {
				handler = route.Middleware[i](handler)
			}
			handlers[route.Method] = handler
		}

		mux.HandleFunc(path, func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			if r.Method == http.MethodOptions {
				return
			}

			handler, ok := handlers[r.Method]
			if !ok {
				http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
				return
			}

			wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
			handler(wrapped, r)

			duration := time.Since(start)
			s.recorder.RecordDBQuery(r.Context(), "http_"+r.Method+"_"+path, duration, wrapped.statusCode < 500)
		})
	}
}

type responseWriter struct {
	http.ResponseWriter
	statusCode int
	written    bool
}

func (rw *responseWriter) WriteHeader(code int) {
	if !rw.written {
		rw.statusCode = code
		rw.written = true
	}
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	if !rw.written {
		rw.written = true
	}
	return rw.ResponseWriter.Write(b)
}
