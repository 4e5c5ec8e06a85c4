// Package api provides the JSON HTTP server over the source archive.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"

	"github.com/klauspost/compress/gzhttp"
	"go.uber.org/zap"

	"github.com/debsources/debsources/internal/archerr"
	"github.com/debsources/debsources/internal/archive"
	"github.com/debsources/debsources/internal/auth"
	"github.com/debsources/debsources/internal/checksum"
	"github.com/debsources/debsources/internal/logging"
	"github.com/debsources/debsources/internal/metrics"
	"github.com/debsources/debsources/internal/ratelimit"
	"github.com/debsources/debsources/internal/status"
	"github.com/debsources/debsources/internal/storage"
	"github.com/debsources/debsources/pkg/protocol"
)

// Pinger checks that the registry backend is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Purger is a read-through cache that can be dropped after an import.
type Purger interface {
	Purge() int
}

// Deps holds the collaborators the server is built from.
type Deps struct {
	Resolver  *archive.Resolver
	Lister    *archive.Lister
	Inspector *archive.Inspector
	Checksums *checksum.Index
	Content   storage.Backend
	Auth      *auth.Auth
	Limiter   *ratelimit.RateLimiter
	Pinger    Pinger
	Caches    map[string]Purger

	PTSPrefix string
	CacheDir  string
	// RawPrefix is the path raw content is served under, e.g. "/data".
	RawPrefix string
}

// Server is the HTTP server.
type Server struct {
	Deps
}

// NewServer creates a new server.
func NewServer(d Deps) *Server {
	if d.Lister == nil {
		d.Lister = archive.NewLister(nil)
	}
	if d.RawPrefix == "" {
		d.RawPrefix = "/data"
	}
	if d.Inspector == nil {
		d.Inspector = archive.NewInspector(d.RawPrefix, 0)
	}
	if d.Limiter == nil {
		d.Limiter = ratelimit.New(0)
	}
	if d.Auth == nil {
		d.Auth = auth.New("")
	}
	return &Server{Deps: d}
}

// Handler returns the HTTP handler with logging, rate limiting and metrics
// middleware. Metrics wraps the mux directly so it sees the matched pattern.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	gz := gzhttp.GzipHandler

	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("GET /api/ping/", gz(http.HandlerFunc(s.handlePing)))
	mux.Handle("GET /api/src/{path...}", gz(http.HandlerFunc(s.handleSource)))
	mux.Handle("GET /api/sha256/{checksum}", gz(http.HandlerFunc(s.handleChecksum)))
	mux.HandleFunc("GET "+s.RawPrefix+"/{path...}", s.handleRaw)

	// Admin endpoints exist only when a token source is configured.
	if s.Auth.Enabled() {
		mux.Handle("POST /api/admin/cache/purge", s.Auth.RequireAdmin(http.HandlerFunc(s.handlePurge)))
		mux.Handle("GET /api/admin/loglevel", s.Auth.RequireAdmin(http.HandlerFunc(s.handleGetLogLevel)))
		mux.Handle("PUT /api/admin/loglevel", s.Auth.RequireAdmin(http.HandlerFunc(s.handleSetLogLevel)))
	}

	return logging.Middleware(s.Limiter.Middleware(metrics.Middleware(mux)))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.sendJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handlePing handles GET /api/ping/
func (s *Server) handlePing(w http.ResponseWriter, r *http.Request) {
	resp := protocol.PingResponse{
		Status:     "ok",
		LastUpdate: status.LastUpdate(s.CacheDir),
	}
	code := http.StatusOK
	if s.Pinger != nil {
		if err := s.Pinger.Ping(r.Context()); err != nil {
			logging.WithContext(r.Context()).Error("registry ping failed", zap.Error(err))
			resp.Status = "db error"
			code = http.StatusInternalServerError
		}
	}
	s.sendJSON(w, code, resp)
}

// ptsLink returns the package tracker link for pkg.
func (s *Server) ptsLink(pkg string) string {
	if s.PTSPrefix == "" {
		return ""
	}
	return s.PTSPrefix + strings.ReplaceAll(url.PathEscape(pkg), "+", "%2B")
}

// redirect sends a 302 to the concrete address under prefix, keeping a
// trailing slash and the query string.
func (s *Server) redirect(w http.ResponseWriter, r *http.Request, prefix string, target archive.Address) {
	segs := append([]string{target.Package, target.Version}, target.Path...)
	for i, seg := range segs {
		segs[i] = url.PathEscape(seg)
	}
	loc := strings.TrimSuffix(prefix, "/") + "/" + strings.Join(segs, "/")
	if strings.HasSuffix(r.URL.Path, "/") {
		loc += "/"
	}
	if r.URL.RawQuery != "" {
		loc += "?" + r.URL.RawQuery
	}
	http.Redirect(w, r, loc, http.StatusFound)
}

// statusFor maps an archive error class to an HTTP status code.
func statusFor(c archerr.Class) int {
	switch c {
	case archerr.ClassNotFound:
		return http.StatusNotFound
	case archerr.ClassForbidden:
		return http.StatusForbidden
	case archerr.ClassBadRequest:
		return http.StatusBadRequest
	case archerr.ClassUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// sendArchiveError writes err with the status its class maps to. Internal
// and availability failures are logged and reported without detail.
func (s *Server) sendArchiveError(w http.ResponseWriter, r *http.Request, err error) {
	// Nobody is left to read the response.
	if r.Context().Err() != nil {
		return
	}
	class := archerr.ClassOf(err)
	code := statusFor(class)
	msg := err.Error()
	switch class {
	case archerr.ClassInternal:
		logging.WithContext(r.Context()).Error("request failed", zap.String("path", r.URL.Path), zap.Error(err))
		msg = "internal error"
	case archerr.ClassUnavailable:
		logging.WithContext(r.Context()).Warn("registry unavailable", zap.String("path", r.URL.Path), zap.Error(err))
		msg = "registry unavailable"
	}
	s.sendError(w, code, msg)
}

func (s *Server) sendJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func (s *Server) sendError(w http.ResponseWriter, code int, message string) {
	s.sendJSON(w, code, protocol.ErrorResponse{
		Error: message,
		Code:  code,
	})
}

// splitPath splits a slash path into its non-empty segments.
func splitPath(p string) []string {
	var segs []string
	for _, seg := range strings.Split(p, "/") {
		if seg != "" {
			segs = append(segs, seg)
		}
	}
	return segs
}
