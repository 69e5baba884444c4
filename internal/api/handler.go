// internal/api/handler.go
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5"

	"package-health/internal/database"
	perrors "package-health/internal/errors"
	"package-health/internal/model"
	"package-health/internal/npm"
	"package-health/internal/rating"
	"package-health/internal/report"
)

const version = "0.1.0"

// Registry is the npm side of the API.
type Registry interface {
	report.Registry
	Search(ctx context.Context, query string, size int) ([]model.SearchResult, error)
}

// ReportBuilder builds comprehensive reports.
type ReportBuilder interface {
	Build(ctx context.Context, packageRef string) (*report.Report, error)
}

// UpstreamStatus reports the circuit state ("open" or "closed") of each upstream host.
type UpstreamStatus interface {
	BreakerStates() map[string]string
}

// Handler is the container for API dependencies.
type Handler struct {
	registry  Registry
	host      report.SourceHost
	reports   ReportBuilder
	db        database.Querier
	upstreams UpstreamStatus
	logger    *slog.Logger
}

// Option configures optional Handler dependencies.
type Option func(*Handler)

// WithUpstreamStatus adds per-host circuit states to GET /health.
func WithUpstreamStatus(u UpstreamStatus) Option {
	return func(h *Handler) {
		h.upstreams = u
	}
}

// NewRouter creates and configures a new chi router with all API routes.
// db may be nil, in which case snapshot history is unavailable.
func NewRouter(registry Registry, host report.SourceHost, reports ReportBuilder, db database.Querier, logger *slog.Logger, opts ...Option) http.Handler {
	h := &Handler{
		registry: registry,
		host:     host,
		reports:  reports,
		db:       db,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(h)
	}

	r := chi.NewRouter()

	// Middleware stack
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger) // Chi's default logger
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/", h.root)
	r.Get("/health", h.healthCheck)

	r.Route("/npm", func(r chi.Router) {
		r.Get("/search", h.searchPackages)
		r.Get("/metadata/*", h.getMetadata)
		r.Get("/downloads/*", h.getDownloads)
	})
	r.Route("/github", func(r chi.Router) {
		r.Get("/repo/{owner}/{repo}", h.getRepository)
		r.Get("/health/{owner}/{repo}", h.getCommunityHealth)
		r.Get("/activity/{owner}/{repo}", h.getActivity)
	})
	r.Route("/v1", func(r chi.Router) {
		r.Get("/report", h.getReport)
		r.Get("/report/history", h.getReportHistory)
		r.Get("/report/latest", h.getLatestSnapshot)
	})

	return r
}

type endpoint struct {
	Path        string `json:"path"`
	Description string `json:"description"`
	Example     string `json:"example"`
}

// root describes the service and its endpoints.
func (h *Handler) root(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, map[string]any{
		"message":     "Welcome to the JavaScript Package Health API",
		"description": "Aggregates health and usability signals for JavaScript packages from npm and GitHub.",
		"version":     version,
		"available_endpoints": []endpoint{
			{"/npm/metadata/{package}", "Registry metadata of the latest release", "/npm/metadata/react"},
			{"/npm/downloads/{package}", "Monthly downloads and the weekly trend", "/npm/downloads/react"},
			{"/npm/search?q={query}&size={n}", "Search the registry", "/npm/search?q=react&size=5"},
			{"/github/repo/{owner}/{repo}", "Stars, forks, last push and archive status", "/github/repo/facebook/react"},
			{"/github/health/{owner}/{repo}", "Community profile", "/github/health/facebook/react"},
			{"/github/activity/{owner}/{repo}", "Issue counts and the last merged pull request", "/github/activity/facebook/react"},
			{"/v1/report?package={package}", "Comprehensive rated health report", "/v1/report?package=react"},
			{"/v1/report/history?package={package}&limit={n}", "Stored report snapshots", "/v1/report/history?package=react"},
			{"/v1/report/latest?package={package}", "Most recent stored snapshot", "/v1/report/latest?package=react"},
		},
	})
}

// healthCheck reports liveness and, when known, the circuit state of each upstream host.
// An open circuit marks the service degraded but still answers 200.
func (h *Handler) healthCheck(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{"status": "ok"}
	if h.upstreams != nil {
		states := h.upstreams.BreakerStates()
		for _, state := range states {
			if state == "open" {
				body["status"] = "degraded"
			}
		}
		body["upstreams"] = states
	}
	respondWithJSON(w, http.StatusOK, body)
}

// getMetadata handles GET /npm/metadata/{package}, scoped names included.
func (h *Handler) getMetadata(w http.ResponseWriter, r *http.Request) {
	name, ok := h.packageParam(w, r)
	if !ok {
		return
	}
	meta, err := h.registry.FetchMetadata(r.Context(), name)
	if err != nil {
		h.respondWithFailure(w, "Failed to fetch npm metadata", err)
		return
	}
	respondWithJSON(w, http.StatusOK, meta)
}

// getDownloads handles GET /npm/downloads/{package}.
func (h *Handler) getDownloads(w http.ResponseWriter, r *http.Request) {
	name, ok := h.packageParam(w, r)
	if !ok {
		return
	}
	stats, err := h.registry.FetchDownloads(r.Context(), name)
	if err != nil {
		h.respondWithFailure(w, "Failed to fetch download stats", err)
		return
	}
	respondWithJSON(w, http.StatusOK, stats)
}

// searchPackages handles GET /npm/search?q=&size=
func (h *Handler) searchPackages(w http.ResponseWriter, r *http.Request) {
	size, ok := intParam(w, r, "size", 10, 1, 50)
	if !ok {
		return
	}
	results, err := h.registry.Search(r.Context(), r.URL.Query().Get("q"), size)
	if err != nil {
		h.respondWithFailure(w, "Failed to search npm", err)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]any{"results": results, "total": len(results)})
}

// getRepository handles GET /github/repo/{owner}/{repo}
func (h *Handler) getRepository(w http.ResponseWriter, r *http.Request) {
	owner, repo, ok := repoParams(w, r)
	if !ok {
		return
	}
	meta, err := h.host.GetRepository(r.Context(), owner, repo)
	if err != nil {
		h.respondWithFailure(w, "Failed to fetch GitHub repository", err)
		return
	}
	respondWithJSON(w, http.StatusOK, meta)
}

// getCommunityHealth handles GET /github/health/{owner}/{repo}
func (h *Handler) getCommunityHealth(w http.ResponseWriter, r *http.Request) {
	owner, repo, ok := repoParams(w, r)
	if !ok {
		return
	}
	health, err := h.host.GetCommunityHealth(r.Context(), owner, repo)
	if err != nil {
		h.respondWithFailure(w, "Failed to fetch GitHub community health", err)
		return
	}
	respondWithJSON(w, http.StatusOK, health)
}

// getActivity handles GET /github/activity/{owner}/{repo}
func (h *Handler) getActivity(w http.ResponseWriter, r *http.Request) {
	owner, repo, ok := repoParams(w, r)
	if !ok {
		return
	}
	activity, err := h.host.GetActivity(r.Context(), owner, repo)
	if err != nil {
		h.respondWithFailure(w, "Failed to fetch GitHub activity", err)
		return
	}
	respondWithJSON(w, http.StatusOK, activity)
}

// getReport handles GET /v1/report?package={name or purl}
func (h *Handler) getReport(w http.ResponseWriter, r *http.Request) {
	ref := r.URL.Query().Get("package")
	if ref == "" {
		respondWithError(w, http.StatusBadRequest, "Missing 'package' query parameter")
		return
	}
	rep, err := h.reports.Build(r.Context(), ref)
	if err != nil {
		h.respondWithFailure(w, "Failed to build health report", err)
		return
	}
	respondWithJSON(w, http.StatusOK, rep)
}

// Snapshot is a stored report as returned by the history endpoint.
type Snapshot struct {
	ID               int64           `json:"id"`
	PackageName      string          `json:"package_name"`
	RetrievedAt      time.Time       `json:"retrieved_at"`
	HealthRatings    rating.Ratings  `json:"health_ratings"`
	MonthlyDownloads *int64          `json:"monthly_downloads,omitempty"`
	Stars            *int            `json:"stars,omitempty"`
	Errors           []string        `json:"errors"`
	Report           json.RawMessage `json:"report"`
}

// getReportHistory handles GET /v1/report/history?package=&limit=N
func (h *Handler) getReportHistory(w http.ResponseWriter, r *http.Request) {
	if h.db == nil {
		respondWithError(w, http.StatusServiceUnavailable, "Snapshot history requires a database")
		return
	}
	name, err := npm.ParsePackageRef(r.URL.Query().Get("package"))
	if err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	limit, ok := intParam(w, r, "limit", 10, 1, 100)
	if !ok {
		return
	}

	rows, err := h.db.ListSnapshotsByPackage(r.Context(), database.ListSnapshotsByPackageParams{
		PackageName: name,
		Limit:       int32(limit),
	})
	if err != nil {
		h.logger.Error("Failed to list snapshots", "package", name, "error", err)
		respondWithError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	snapshots := make([]Snapshot, 0, len(rows))
	for _, row := range rows {
		snapshots = append(snapshots, toSnapshot(row))
	}
	respondWithJSON(w, http.StatusOK, snapshots)
}

// getLatestSnapshot handles GET /v1/report/latest?package=
func (h *Handler) getLatestSnapshot(w http.ResponseWriter, r *http.Request) {
	if h.db == nil {
		respondWithError(w, http.StatusServiceUnavailable, "Snapshot history requires a database")
		return
	}
	name, err := npm.ParsePackageRef(r.URL.Query().Get("package"))
	if err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	row, err := h.db.GetLatestSnapshot(r.Context(), name)
	if errors.Is(err, pgx.ErrNoRows) {
		respondWithError(w, http.StatusNotFound, "No snapshot stored for "+name)
		return
	}
	if err != nil {
		h.logger.Error("Failed to load latest snapshot", "package", name, "error", err)
		respondWithError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	respondWithJSON(w, http.StatusOK, toSnapshot(row))
}

func toSnapshot(row database.HealthSnapshot) Snapshot {
	s := Snapshot{
		ID:          row.ID,
		PackageName: row.PackageName,
		RetrievedAt: row.RetrievedAt.Time,
		HealthRatings: rating.Ratings{
			CommunityAdoption:         rating.Label(row.CommunityAdoption),
			ReleaseManagement:         rating.Label(row.ReleaseManagement),
			ImplementationFootprint:   rating.Label(row.ImplementationFootprint),
			DocumentationCompleteness: rating.Label(row.DocumentationCompleteness),
			MaintenanceFrequency:      rating.Label(row.MaintenanceFrequency),
			Responsiveness:            rating.Label(row.Responsiveness),
		},
		Errors: row.Errors,
		Report: json.RawMessage(row.Report),
	}
	if row.MonthlyDownloads.Valid {
		s.MonthlyDownloads = &row.MonthlyDownloads.Int64
	}
	if row.Stars.Valid {
		s.Stars = model.Int(int(row.Stars.Int32))
	}
	return s
}

// packageParam reads the package name from the wildcard path segment.
func (h *Handler) packageParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	raw, err := url.PathUnescape(chi.URLParam(r, "*"))
	if err == nil {
		var name string
		name, err = npm.ParsePackageRef(raw)
		if err == nil {
			return name, true
		}
	}
	respondWithError(w, http.StatusBadRequest, err.Error())
	return "", false
}

var repoSegment = regexp.MustCompile(`^[A-Za-z0-9_.-]+$`)

// repoParams reads and validates the owner and repository path segments.
func repoParams(w http.ResponseWriter, r *http.Request) (string, string, bool) {
	owner, repo := chi.URLParam(r, "owner"), chi.URLParam(r, "repo")
	if !repoSegment.MatchString(owner) || !repoSegment.MatchString(repo) {
		respondWithError(w, http.StatusBadRequest, (&perrors.ErrInvalidRepoFormat{Repo: owner + "/" + repo}).Error())
		return "", "", false
	}
	return owner, repo, true
}

func intParam(w http.ResponseWriter, r *http.Request, key string, def, lo, hi int) (int, bool) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < lo || n > hi {
		respondWithError(w, http.StatusBadRequest,
			"Invalid '"+key+"' parameter. Must be an integer between "+strconv.Itoa(lo)+" and "+strconv.Itoa(hi)+".")
		return 0, false
	}
	return n, true
}

// respondWithFailure maps a domain error to its status code.
func (h *Handler) respondWithFailure(w http.ResponseWriter, msg string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error(msg, "error", err)
	} else {
		h.logger.Warn(msg, "error", err)
	}
	respondWithError(w, status, err.Error())
}

func statusFor(err error) int {
	var refErr *perrors.ErrInvalidPackageRef
	var repoErr *perrors.ErrInvalidRepoFormat
	switch {
	case errors.As(err, &refErr), errors.As(err, &repoErr):
		return http.StatusBadRequest
	case errors.Is(err, perrors.ErrPackageNotFound), errors.Is(err, perrors.ErrRepositoryNotFound):
		return http.StatusNotFound
	case errors.Is(err, perrors.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, perrors.ErrUpstream):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func respondWithJSON(w http.ResponseWriter, status int, payload any) {
	body, err := json.Marshal(payload)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

func respondWithError(w http.ResponseWriter, status int, message string) {
	respondWithJSON(w, status, map[string]string{"error": message})
}
