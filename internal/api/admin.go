package api

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/debsources/debsources/internal/auth"
	"github.com/debsources/debsources/internal/logging"
	"github.com/debsources/debsources/pkg/protocol"
)

// handlePurge handles POST /api/admin/cache/purge
// Dropping every cached entry makes an import visible immediately instead of
// after the cache TTL.
func (s *Server) handlePurge(w http.ResponseWriter, r *http.Request) {
	resp := protocol.PurgeResponse{Purged: make(map[string]int, len(s.Caches))}
	for name, c := range s.Caches {
		resp.Purged[name] = c.Purge()
	}

	user := ""
	if claims := auth.GetClaims(r.Context()); claims != nil {
		user = claims.Username
	}
	logging.WithContext(r.Context()).Info("caches purged",
		zap.String("by", user),
		zap.Any("purged", resp.Purged))

	s.sendJSON(w, http.StatusOK, resp)
}

// handleGetLogLevel handles GET /api/admin/loglevel
func (s *Server) handleGetLogLevel(w http.ResponseWriter, r *http.Request) {
	s.sendJSON(w, http.StatusOK, protocol.LogLevelResponse{Level: logging.Level()})
}

// handleSetLogLevel handles PUT /api/admin/loglevel
func (s *Server) handleSetLogLevel(w http.ResponseWriter, r *http.Request) {
	var req protocol.LogLevelRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<10)).Decode(&req); err != nil {
		s.sendError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := logging.SetLevel(req.Level); err != nil {
		s.sendError(w, http.StatusBadRequest, err.Error())
		return
	}

	logging.WithContext(r.Context()).Info("log level changed", zap.String("level", req.Level))
	s.sendJSON(w, http.StatusOK, protocol.LogLevelResponse{Level: logging.Level()})
}
