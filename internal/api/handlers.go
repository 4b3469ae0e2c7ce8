package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/pageview-counter/internal/counter"
)

const (
	defaultPageviewLimit = 100
	maxPageviewLimit     = 1000
)

// importChunk handles POST /v1/import/chunks/{index}. It returns the chunk
// summary on success, 400 for a malformed index, 401 without credentials and
// 502 when the provider rejects the query.
func (s *Server) importChunk(w http.ResponseWriter, r *http.Request) {
	if s.deps.Importer == nil {
		writeError(w, http.StatusServiceUnavailable, "importer unavailable")
		return
	}
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil || index < 0 {
		writeError(w, http.StatusBadRequest, "index must be a non-negative integer")
		return
	}
	summary, err := s.deps.Importer.RunChunk(r.Context(), index)
	if err != nil {
		s.writeDomainError(w, err, "import chunk")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"summary": summary})
}

// aggregateResource handles GET /v1/resources/{resource_id}/total.
func (s *Server) aggregateResource(w http.ResponseWriter, r *http.Request) {
	if s.deps.Aggregator == nil {
		writeError(w, http.StatusServiceUnavailable, "aggregator unavailable")
		return
	}
	id, err := parseResourceID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	total, err := s.deps.Aggregator.Aggregate(r.Context(), id)
	if err != nil {
		s.writeDomainError(w, err, "aggregate resource")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"total": total})
}

// storedTotal handles GET /v1/resources/{resource_id}/stored-total without
// recomputing. Returns 404 when the resource was never aggregated.
func (s *Server) storedTotal(w http.ResponseWriter, r *http.Request) {
	if s.deps.Totals == nil {
		writeError(w, http.StatusServiceUnavailable, "totals store unavailable")
		return
	}
	id, err := parseResourceID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), s.timeout)
	defer cancel()
	total, err := s.deps.Totals.GetTotal(ctx, id)
	if err != nil {
		s.writeDomainError(w, err, "load total")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"total": total})
}

func (s *Server) variants(w http.ResponseWriter, r *http.Request) {
	if s.deps.Aggregator == nil {
		writeError(w, http.StatusServiceUnavailable, "aggregator unavailable")
		return
	}
	id, err := parseResourceID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"variants": s.deps.Aggregator.Variants(id)})
}

// countPath handles GET /v1/paths/count?path=.
func (s *Server) countPath(w http.ResponseWriter, r *http.Request) {
	if s.deps.Aggregator == nil {
		writeError(w, http.StatusServiceUnavailable, "aggregator unavailable")
		return
	}
	path := r.URL.Query().Get("path")
	if strings.TrimSpace(path) == "" {
		writeError(w, http.StatusBadRequest, "path is required")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), s.timeout)
	defer cancel()
	n, err := s.deps.Aggregator.CountForPath(ctx, path)
	if err != nil {
		s.writeDomainError(w, err, "count path")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"path": path, "pageviews": n})
}

// listPageviews handles GET /v1/pageviews?limit=&offset=.
func (s *Server) listPageviews(w http.ResponseWriter, r *http.Request) {
	if s.deps.Pageviews == nil {
		writeError(w, http.StatusServiceUnavailable, "pageview store unavailable")
		return
	}
	limit, offset, err := parseLimitOffset(r, defaultPageviewLimit, maxPageviewLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), s.timeout)
	defer cancel()
	rows, err := s.deps.Pageviews.ListPageviews(ctx, limit, offset)
	if err != nil {
		s.logger.Error("list pageviews failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list pageviews")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"pageviews": rows})
}

// listProfiles handles GET /v1/profiles. Without a live provider or a usable
// credential the list is empty.
func (s *Server) listProfiles(w http.ResponseWriter, r *http.Request) {
	if s.deps.Profiles == nil {
		writeJSON(w, http.StatusOK, map[string]any{"properties": []counter.Property{}})
		return
	}
	props, err := s.deps.Profiles.ListProfiles(r.Context())
	if err != nil {
		s.writeDomainError(w, err, "list profiles")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"properties": props})
}

func (s *Server) authStatus(w http.ResponseWriter, _ *http.Request) {
	if s.deps.Credentials == nil {
		writeError(w, http.StatusServiceUnavailable, "credentials unavailable")
		return
	}
	writeJSON(w, http.StatusOK, s.deps.Credentials.Status())
}

// revokeAuth handles POST /v1/auth/revoke. Live imports fail with 401 until
// new credentials are configured.
func (s *Server) revokeAuth(w http.ResponseWriter, _ *http.Request) {
	if s.deps.Credentials == nil {
		writeError(w, http.StatusServiceUnavailable, "credentials unavailable")
		return
	}
	s.deps.Credentials.Revoke()
	w.WriteHeader(http.StatusNoContent)
}

func parseResourceID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "resource_id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.New("resource id must be a positive integer")
	}
	return id, nil
}

func parseLimitOffset(r *http.Request, def, maxLimit int) (int, int, error) {
	q := r.URL.Query()
	limit := def
	if limStr := q.Get("limit"); limStr != "" {
		val, err := strconv.Atoi(limStr)
		if err != nil || val <= 0 {
			return 0, 0, errors.New("invalid limit")
		}
		if val > maxLimit {
			val = maxLimit
		}
		limit = val
	}
	offset := 0
	if offStr := q.Get("offset"); offStr != "" {
		val, err := strconv.Atoi(offStr)
		if err != nil || val < 0 {
			return 0, 0, errors.New("invalid offset")
		}
		offset = val
	}
	return limit, offset, nil
}
