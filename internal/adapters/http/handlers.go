package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"strconv"

	"github.com/jobrunner/modisfetch/internal/adapters/manifest"
	"github.com/jobrunner/modisfetch/internal/domain"
)

const (
	defaultGranuleLimit = 100
	maxGranuleLimit     = 1000
)

// handleHealth returns detailed health status.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	details := s.health.GetHealthDetails(r.Context())

	status := http.StatusOK
	if !details.Healthy {
		status = http.StatusServiceUnavailable
	}

	resp := map[string]interface{}{
		"status":       boolToStatus(details.Healthy),
		"ready":        details.Ready,
		"last_fetched": details.LastFetched,
		"components":   details.Components,
	}
	if !details.LastRun.IsZero() {
		resp["last_run"] = details.LastRun
	}
	if details.LastError != "" {
		resp["last_error"] = details.LastError
	}

	s.writeJSON(w, status, resp)
}

// handleLiveness returns liveness status.
func (s *Server) handleLiveness(w http.ResponseWriter, r *http.Request) {
	if s.health.IsHealthy(r.Context()) {
		s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	} else {
		s.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy"})
	}
}

// handleReadiness returns readiness status.
func (s *Server) handleReadiness(w http.ResponseWriter, r *http.Request) {
	if s.health.IsReady(r.Context()) {
		s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	} else {
		s.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not ready"})
	}
}

// handleSync runs a session immediately.
func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	result, err := s.syncService.TriggerSync(r.Context())
	if err != nil {
		if errors.Is(err, domain.ErrRateLimited) {
			w.Header().Set("Retry-After", "30")
			s.writeError(w, http.StatusTooManyRequests, "Rate limit exceeded. Try again in 30 seconds.")
			return
		}
		s.logger.Error("sync failed", "error", err)
		s.writeError(w, http.StatusBadGateway, "Sync failed: "+err.Error())
		return
	}

	s.writeJSON(w, http.StatusOK, result)
}

// handleStatus returns the outcome of the last session.
func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	status := s.syncService.Status()

	resp := map[string]interface{}{
		"interval":   s.syncService.Interval().String(),
		"last_error": status.LastError,
	}
	if !status.LastRun.IsZero() {
		resp["last_run"] = status.LastRun
	}
	if !status.NextScheduledAt.IsZero() {
		resp["next_scheduled_at"] = status.NextScheduledAt
	}
	if status.LastReport != nil {
		resp["last_report"] = formatReport(status.LastReport)
	}

	s.writeJSON(w, http.StatusOK, resp)
}

// handleManifest returns the file names recorded by the last session.
func (s *Server) handleManifest(w http.ResponseWriter, _ *http.Request) {
	report := s.syncService.Status().LastReport
	if report == nil || report.ManifestPath == "" {
		s.writeError(w, http.StatusNotFound, "No manifest recorded yet")
		return
	}

	names, err := manifest.Read(report.ManifestPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			s.writeError(w, http.StatusNotFound, "Manifest no longer exists")
			return
		}
		s.logger.Error("failed to read manifest", "path", report.ManifestPath, "error", err)
		s.writeError(w, http.StatusInternalServerError, "Failed to read manifest")
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"path":  report.ManifestPath,
		"files": names,
		"count": len(names),
	})
}

// handleGranules lists granules from the archive index.
func (s *Server) handleGranules(w http.ResponseWriter, r *http.Request) {
	q, err := parseGranuleQuery(r)
	if err != nil {
		s.handleQueryError(w, err)
		return
	}

	granules, err := s.archive.Query(r.Context(), q)
	if err != nil {
		s.handleQueryError(w, err)
		return
	}

	items := make([]map[string]interface{}, len(granules))
	for i := range granules {
		items[i] = formatGranule(&granules[i])
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"granules": items,
		"count":    len(items),
	})
}

// handleReindex reconciles the archive index with the destination directory.
func (s *Server) handleReindex(w http.ResponseWriter, r *http.Request) {
	stats, err := s.archive.Reindex(r.Context())
	if err != nil {
		s.logger.Error("reindex failed", "error", err)
		s.writeError(w, http.StatusInternalServerError, "Reindex failed")
		return
	}
	s.writeJSON(w, http.StatusOK, stats)
}

// handleTile returns the sinusoidal grid tile containing a coordinate.
func (s *Server) handleTile(w http.ResponseWriter, r *http.Request) {
	c, err := parseCoordinate(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	tile, err := domain.TileFor(c)
	if err != nil {
		s.handleQueryError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"lon":  c.Lon,
		"lat":  c.Lat,
		"tile": tile,
	})
}

// handleOpenAPI returns the OpenAPI specification.
func (s *Server) handleOpenAPI(w http.ResponseWriter, _ *http.Request) {
	spec, err := getOpenAPIJSON()
	if err != nil {
		s.logger.Error("failed to get OpenAPI spec", "error", err)
		s.writeError(w, http.StatusInternalServerError, "Failed to load OpenAPI specification")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(spec)
}

// parseCoordinate parses the lon and lat query parameters.
func parseCoordinate(r *http.Request) (domain.Coordinate, error) {
	q := r.URL.Query()
	lonParam, latParam := q.Get("lon"), q.Get("lat")
	if lonParam == "" || latParam == "" {
		return domain.Coordinate{}, errors.New("coordinates required: use lon and lat")
	}

	lon, err := strconv.ParseFloat(lonParam, 64)
	if err != nil {
		return domain.Coordinate{}, errors.New("invalid lon parameter")
	}
	lat, err := strconv.ParseFloat(latParam, 64)
	if err != nil {
		return domain.Coordinate{}, errors.New("invalid lat parameter")
	}

	return domain.Coordinate{Lon: lon, Lat: lat}, nil
}

// parseGranuleQuery parses the archive filter from the query string.
func parseGranuleQuery(r *http.Request) (domain.ArchiveQuery, error) {
	params := r.URL.Query()
	q := domain.ArchiveQuery{
		Product: params.Get("product"),
		Limit:   defaultGranuleLimit,
	}

	if tile := params.Get("tile"); tile != "" {
		if _, err := domain.NewTileFilter(tile); err != nil {
			return q, err
		}
		q.Tile = tile
	}

	if from := params.Get("from"); from != "" {
		t, err := domain.ParseDate(from)
		if err != nil {
			return q, err
		}
		q.From = domain.NewDayID(t)
	}

	if to := params.Get("to"); to != "" {
		t, err := domain.ParseDate(to)
		if err != nil {
			return q, err
		}
		q.To = domain.NewDayID(t)
	}

	if limit := params.Get("limit"); limit != "" {
		v, err := strconv.Atoi(limit)
		if err != nil || v < 1 || v > maxGranuleLimit {
			return q, &domain.ValidationError{
				Field:      "limit",
				Value:      limit,
				Constraint: "1-1000",
				Message:    "limit must be between 1 and 1000",
			}
		}
		q.Limit = v
	}

	if q.From != "" && q.To != "" && q.To.Before(q.From) {
		return q, &domain.ValidationError{
			Field:      "to",
			Value:      q.To,
			Constraint: ">= from",
			Message:    "to must not be before from",
		}
	}

	return q, nil
}

// formatReport formats a session report for JSON output.
func formatReport(r *domain.Report) map[string]interface{} {
	days := make([]string, len(r.Days))
	for i, d := range r.Days {
		days[i] = d.String()
	}
	return map[string]interface{}{
		"days":        days,
		"selected":    r.Selected,
		"fetched":     r.Fetched,
		"replaced":    r.Replaced,
		"skipped":     r.Skipped,
		"failed":      r.Failed,
		"conflicts":   r.Conflicts,
		"bytes":       r.Bytes,
		"manifest":    r.ManifestPath,
		"started_at":  r.StartedAt,
		"duration_ms": r.Duration.Milliseconds(),
		"dry_run":     r.DryRun,
	}
}

// formatGranule formats an archived granule for JSON output.
func formatGranule(g *domain.ArchivedGranule) map[string]interface{} {
	return map[string]interface{}{
		"name":          g.Name,
		"product":       g.Product,
		"acquisition":   g.Acquisition,
		"tile":          g.Tile,
		"version":       g.Version,
		"timestamp":     g.Timestamp,
		"day":           g.Day.String(),
		"size":          g.Size,
		"downloaded_at": g.DownloadedAt,
	}
}

// handleQueryError maps query errors to HTTP statuses.
func (s *Server) handleQueryError(w http.ResponseWriter, err error) {
	var validationErr *domain.ValidationError
	if errors.As(err, &validationErr) {
		s.writeError(w, http.StatusBadRequest, validationErr.Message)
		return
	}

	if errors.Is(err, domain.ErrInvalidInput) {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.logger.Error("query error", "error", err)
	s.writeError(w, http.StatusInternalServerError, "Query failed")
}

// writeJSON writes a JSON response.
func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes an error response.
func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]interface{}{
		"error":   http.StatusText(status),
		"message": message,
	})
}

func boolToStatus(b bool) string {
	if b {
		return "ok"
	}
	return "unhealthy"
}
