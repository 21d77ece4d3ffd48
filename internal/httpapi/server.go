// Package httpapi exposes the drive facade over HTTP for local UIs.
//
// The gateway holds one session: a configured owner plus the capability
// grants issued for it. Every file mutation is authorized against those
// grants before it reaches the store; reads require a read grant. Cache
// and health endpoints are not capability-scoped.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/gillohner/pubky-tools/internal/capability"
	"github.com/gillohner/pubky-tools/internal/drive"
	"github.com/gillohner/pubky-tools/internal/errs"
	"github.com/gillohner/pubky-tools/internal/keys"
	"github.com/gillohner/pubky-tools/internal/logger"
)

// Config holds gateway settings.
type Config struct {
	// Listen is the bind address, e.g. ":8080".
	Listen string

	// Owner is the public key the session grants were issued for.
	Owner string

	// Grants scope what the gateway may read and write.
	Grants []capability.Grant
}

// Server is the HTTP gateway over a Drive.
type Server struct {
	drive  *drive.Drive
	log    *logger.Logger
	cfg    Config
	router chi.Router
}

// New builds the gateway. A nil log discards log output.
func New(d *drive.Drive, log *logger.Logger, cfg Config) *Server {
	if log == nil {
		log = logger.Nop()
	}
	s := &Server{drive: d, log: log, cfg: cfg}
	s.router = s.routes()
	return s
}

// Handler returns the fully wired router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe runs the gateway until ctx is cancelled, then shuts it
// down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.InfoWith("gateway listening", map[string]any{"addr": s.cfg.Listen})
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return errs.Wrap(errs.ErrKindNetworkFailure, "gateway stopped", err)
	}
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)

	r.Get("/healthz", s.handleHealth)
	r.Get("/cache/stats", s.handleCacheStats)
	r.Post("/cache/clear", s.handleCacheClear)

	r.Route("/files/{owner}/pub", func(r chi.Router) {
		r.Get("/*", s.handleGetFile)
		r.Put("/*", s.handlePutFile)
		r.Delete("/*", s.handleDeleteFile)
	})
	r.Get("/list/{owner}/pub/*", s.handleListDirectory)
	r.Post("/dirs/{owner}/pub/*", s.handleCreateDirectory)
	r.Post("/upload/{owner}/pub/*", s.handleUpload)

	return r
}

// requestLogger emits one structured line per request.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()

		next.ServeHTTP(ww, r)

		s.log.InfoWith("request", map[string]any{
			"method":     r.Method,
			"path":       r.URL.Path,
			"status":     ww.Status(),
			"bytes":      ww.BytesWritten(),
			"duration":   time.Since(start).String(),
			"request_id": middleware.GetReqID(r.Context()),
		})
	})
}

// targetKey rebuilds the pubky:// key from the route parameters.
func targetKey(r *http.Request) (keys.Key, error) {
	owner := chi.URLParam(r, "owner")
	rest := chi.URLParam(r, "*")
	return keys.Parse(keys.Scheme + owner + keys.PubPrefix + rest)
}

// authorize checks the session grants for perm on key.
func (s *Server) authorize(key keys.Key, perm capability.Permission) bool {
	return capability.Authorize(s.cfg.Grants, s.cfg.Owner, key, perm)
}

func freshRequested(r *http.Request) []drive.ReadOption {
	if r.URL.Query().Get("fresh") == "1" {
		return []drive.ReadOption{drive.NoCache()}
	}
	return nil
}

// --- handlers ---

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleCacheStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.drive.Stats())
}

func (s *Server) handleCacheClear(w http.ResponseWriter, r *http.Request) {
	s.drive.ClearCache(r.URL.Query().Get("pattern"))
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleGetFile(w http.ResponseWriter, r *http.Request) {
	key, err := targetKey(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if !s.authorize(key, capability.PermissionRead) {
		writeDenied(w, key)
		return
	}

	content, err := s.drive.ReadFile(r.Context(), key.String(), freshRequested(r)...)
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", drive.DetectContentType(key.Name(), content))
	w.WriteHeader(http.StatusOK)
	w.Write(content)
}

func (s *Server) handlePutFile(w http.ResponseWriter, r *http.Request) {
	key, err := targetKey(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if !s.authorize(key, capability.PermissionWrite) {
		writeDenied(w, key)
		return
	}

	content, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, errs.Wrap(errs.ErrKindInvalidInput, "read request body", err))
		return
	}

	exists, err := s.drive.FileExists(r.Context(), key.String())
	if err != nil {
		writeError(w, err)
		return
	}

	if exists {
		if err := s.drive.UpdateFile(r.Context(), key.String(), content); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
		return
	}

	if err := s.drive.CreateFile(r.Context(), key.String(), content); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

func (s *Server) handleDeleteFile(w http.ResponseWriter, r *http.Request) {
	key, err := targetKey(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if !s.authorize(key, capability.PermissionWrite) {
		writeDenied(w, key)
		return
	}

	if err := s.drive.DeleteFile(r.Context(), key.String()); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListDirectory(w http.ResponseWriter, r *http.Request) {
	key, err := targetKey(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if !s.authorize(key, capability.PermissionRead) {
		writeDenied(w, key)
		return
	}

	nodes, err := s.drive.ListDirectory(r.Context(), key.String(), freshRequested(r)...)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nodes)
}

func (s *Server) handleCreateDirectory(w http.ResponseWriter, r *http.Request) {
	key, err := targetKey(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if !s.authorize(key, capability.PermissionWrite) {
		writeDenied(w, key)
		return
	}

	if err := s.drive.CreateDirectory(r.Context(), key.String()); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	key, err := targetKey(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if !s.authorize(key, capability.PermissionWrite) {
		writeDenied(w, key)
		return
	}

	name := r.URL.Query().Get("name")
	if name == "" {
		writeError(w, errs.New(errs.ErrKindInvalidInput, "upload requires a name query parameter"))
		return
	}

	data, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, errs.Wrap(errs.ErrKindInvalidInput, "read request body", err))
		return
	}

	upload, err := s.drive.UploadBinary(r.Context(), key.AsDirectory().String(), name, data)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, upload)
}

// --- response helpers ---

type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

// statusFor maps error kinds to HTTP statuses in one place.
func statusFor(kind errs.ErrKind) int {
	switch kind {
	case errs.ErrKindValidation, errs.ErrKindInvalidInput:
		return http.StatusBadRequest
	case errs.ErrKindUnauthorized:
		return http.StatusForbidden
	case errs.ErrKindNotFound:
		return http.StatusNotFound
	case errs.ErrKindTimeout:
		return http.StatusGatewayTimeout
	case errs.ErrKindNetworkFailure:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	kind := errs.KindOf(err)
	writeJSON(w, statusFor(kind), errorResponse{Error: err.Error(), Kind: kind.String()})
}

func writeDenied(w http.ResponseWriter, key keys.Key) {
	writeError(w, errs.Newf(errs.ErrKindUnauthorized, "no grant covers %s", key))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
