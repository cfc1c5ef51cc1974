package gateway

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"

	"glossa/bot/internal/store"
)

// dbStatus is the slice of the store the health and admin endpoints need.
type dbStatus interface {
	Ping(ctx context.Context) error
	Marker(ctx context.Context, id string) (store.MigrationMarker, error)
}

// Server exposes the signed event webhook plus health and admin routes.
type Server struct {
	dispatcher *Dispatcher
	db         dbStatus
	adminToken string
	verify     func(http.Handler) http.Handler
	log        *zap.SugaredLogger
}

func NewServer(dispatcher *Dispatcher, db *store.MongoStore, publicKeyHex, adminToken string, log *zap.SugaredLogger) (*Server, error) {
	verify, err := verifySignature(publicKeyHex)
	if err != nil {
		return nil, err
	}
	return &Server{
		dispatcher: dispatcher,
		db:         db,
		adminToken: adminToken,
		verify:     verify,
		log:        log,
	}, nil
}

func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(s.withLogging)

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)

	r.Group(func(r chi.Router) {
		r.Use(s.verify)
		r.Post("/gateway/events", s.handleEvent)
	})

	r.Group(func(r chi.Router) {
		r.Use(s.requireAdmin)
		r.Post("/admin/reindex", s.handleReindex)
		r.Get("/admin/migration", s.handleMigration)
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "ready"
	statusCode := http.StatusOK
	checks := map[string]any{
		"database": map[string]any{"status": "ok"},
	}

	if err := s.db.Ping(ctx); err != nil {
		status = "not_ready"
		statusCode = http.StatusServiceUnavailable
		checks["database"] = map[string]any{
			"status": "error",
			"error":  err.Error(),
		}
	}

	writeJSON(w, statusCode, map[string]any{
		"ok":     status == "ready",
		"status": status,
		"checks": checks,
	})
}

func (s *Server) handleEvent(w http.ResponseWriter, r *http.Request) {
	var event Event
	if err := decodeBody(r, &event); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	if event.ID == "" || event.Type == "" {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", "event id and type are required", nil)
		return
	}
	writeJSON(w, http.StatusOK, s.dispatcher.Dispatch(r.Context(), event))
}

func (s *Server) handleReindex(w http.ResponseWriter, r *http.Request) {
	count, err := s.dispatcher.Reindex(r.Context())
	if err != nil {
		s.log.Errorw("reindex failed", "error", err)
		writeError(w, http.StatusInternalServerError, "SERVER_ERROR", "Reindex failed", nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"indexed": count})
}

func (s *Server) handleMigration(w http.ResponseWriter, r *http.Request) {
	marker, err := s.db.Marker(r.Context(), store.MarkerID)
	if errors.Is(err, mongo.ErrNoDocuments) {
		writeJSON(w, http.StatusOK, map[string]any{"migrated": false})
		return
	}
	if err != nil {
		s.log.Errorw("migration marker lookup failed", "error", err)
		writeError(w, http.StatusInternalServerError, "SERVER_ERROR", "Could not read migration marker", nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"migrated":    true,
		"entries":     marker.Migrated,
		"skipped":     marker.Skipped,
		"completedAt": marker.CompletedAt,
	})
}

// requireAdmin gates the operational routes behind the configured bearer
// token. With no token configured the routes do not exist.
func (s *Server) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.adminToken == "" {
			writeError(w, http.StatusNotFound, "NOT_FOUND", "admin endpoints are disabled", nil)
			return
		}
		token := bearerToken(r)
		if subtle.ConstantTimeCompare([]byte(token), []byte(s.adminToken)) != 1 {
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}

		started := time.Now()
		writer := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		writer.Header().Set("X-Request-ID", requestID)

		next.ServeHTTP(writer, r)

		s.log.Infow("request",
			"request_id", requestID,
			"method", r.Method,
			"path", r.URL.Path,
			"status", writer.status,
			"duration_ms", time.Since(started).Milliseconds(),
		)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	response := map[string]any{
		"code":  code,
		"error": message,
	}
	if details != nil {
		response["details"] = details
	}
	writeJSON(w, status, response)
}

func decodeBody(r *http.Request, target any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(target); err != nil {
		return fmt.Errorf("invalid JSON body")
	}
	return nil
}

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
}
