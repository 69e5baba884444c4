//go:build integration

// cmd/service/integration_test.go
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"package-health/internal/api"
	"package-health/internal/config"
	"package-health/internal/database"
)

func setupTestDatabase(ctx context.Context, t *testing.T) (*pgxpool.Pool, string) {
	t.Helper()

	pgContainer, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("test-db"),
		postgres.WithUsername("user"),
		postgres.WithPassword("password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, pgContainer.Terminate(context.Background()))
	})

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	require.NoError(t, database.Migrate(connStr))

	dbpool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)
	t.Cleanup(dbpool.Close)

	return dbpool, connStr
}

// fakeNpm serves both the registry document and the downloads range of left-pad.
func fakeNpm(t *testing.T) *httptest.Server {
	t.Helper()
	now := time.Now().UTC()

	mux := http.NewServeMux()
	mux.HandleFunc("/left-pad", func(w http.ResponseWriter, r *http.Request) {
		released := now.AddDate(0, 0, -10).Format(time.RFC3339)
		fmt.Fprintf(w, `{
			"name": "left-pad",
			"dist-tags": {"latest": "1.3.0"},
			"versions": {"1.3.0": {
				"description": "String left pad",
				"license": "WTFPL",
				"repository": {"type": "git", "url": "git+https://github.com/stevemao/left-pad.git"},
				"dist": {"unpackedSize": 10240}
			}},
			"time": {"created": "2014-03-01T00:00:00Z", "modified": %q, "1.3.0": %q},
			"maintainers": [{"name": "stevemao"}]
		}`, released, released)
	})
	mux.HandleFunc("/downloads/range/", func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/left-pad"), r.URL.Path)
		days := make([]map[string]any, 0, 140)
		for i := 139; i >= 0; i-- {
			days = append(days, map[string]any{
				"day":       now.AddDate(0, 0, -i).Format(time.DateOnly),
				"downloads": 100_000,
			})
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"package": "left-pad", "downloads": days})
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func fakeGitHub(t *testing.T) *httptest.Server {
	t.Helper()
	now := time.Now().UTC()

	mux := http.NewServeMux()
	mux.HandleFunc("/repos/stevemao/left-pad", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"stargazers_count": 1200, "forks_count": 100, "archived": false, "pushed_at": %q}`,
			now.AddDate(0, 0, -3).Format(time.RFC3339))
	})
	mux.HandleFunc("/repos/stevemao/left-pad/community/profile", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"health_percentage": 75, "files": {"readme": {"url": "r"}, "license": {"url": "l"}}}`)
	})
	mux.HandleFunc("/search/issues", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query().Get("q")
		switch {
		case strings.Contains(q, "is:open"):
			fmt.Fprint(w, `{"total_count": 5, "items": []}`)
		case strings.Contains(q, "is:closed"):
			fmt.Fprint(w, `{"total_count": 45, "items": []}`)
		default:
			fmt.Fprint(w, `{"total_count": 1, "items": [{"number": 7, "html_url": "https://github.com/stevemao/left-pad/pull/7"}]}`)
		}
	})
	mux.HandleFunc("/repos/stevemao/left-pad/pulls/7", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"number": 7, "created_at": %q, "merged_at": %q}`,
			now.AddDate(0, 0, -2).Format(time.RFC3339), now.AddDate(0, 0, -1).Format(time.RFC3339))
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func TestServiceIntegration(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	dbpool, connStr := setupTestDatabase(ctx, t)
	npmServer := fakeNpm(t)
	ghServer := fakeGitHub(t)

	cfg := &config.Config{
		HTTPAddr:           ":0",
		NpmRegistryURL:     npmServer.URL,
		NpmDownloadsURL:    npmServer.URL,
		GithubAPIURL:       ghServer.URL,
		RequestTimeout:     5 * time.Second,
		DBURL:              connStr,
		WatchPackages:      []string{"pkg:npm/left-pad@1.3.0"},
		RefreshInterval:    time.Hour,
		TrackerConcurrency: 1,
	}
	require.NoError(t, cfg.Validate())

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	a, err := newApp(cfg, dbpool, logger)
	require.NoError(t, err)
	t.Cleanup(a.Close)
	require.NotNil(t, a.tracker)

	// The first cycle runs as soon as the tracker starts.
	trackerCtx, stopTracker := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		a.tracker.Start(trackerCtx)
		close(done)
	}()

	server := httptest.NewServer(a.router)
	defer server.Close()

	var snapshots []api.Snapshot
	require.Eventually(t, func() bool {
		resp, err := http.Get(server.URL + "/v1/report/history?package=left-pad")
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return false
		}
		snapshots = nil
		return json.NewDecoder(resp.Body).Decode(&snapshots) == nil && len(snapshots) == 1
	}, 30*time.Second, 200*time.Millisecond)

	stopTracker()
	<-done

	s := snapshots[0]
	assert.Equal(t, "left-pad", s.PackageName)
	assert.Empty(t, s.Errors)
	assert.Equal(t, "Strong", string(s.HealthRatings.CommunityAdoption))
	assert.Equal(t, "Lightweight", string(s.HealthRatings.ImplementationFootprint))
	assert.Equal(t, "Adequate", string(s.HealthRatings.DocumentationCompleteness))
	assert.Equal(t, "Responsive", string(s.HealthRatings.Responsiveness))
	require.NotNil(t, s.MonthlyDownloads)
	assert.Equal(t, int64(2_800_000), *s.MonthlyDownloads)

	// A live report goes through the same clients.
	resp, err := http.Get(server.URL + "/v1/report?package=left-pad")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var live map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&live))
	assert.Equal(t, true, live["success"])
	assert.Equal(t, "https://github.com/stevemao/left-pad", live["npm_data"].(map[string]any)["repository"])

	// The stored snapshot and the upstream circuits are visible too.
	latest, err := http.Get(server.URL + "/v1/report/latest?package=left-pad")
	require.NoError(t, err)
	defer latest.Body.Close()
	assert.Equal(t, http.StatusOK, latest.StatusCode)

	health, err := http.Get(server.URL + "/health")
	require.NoError(t, err)
	defer health.Body.Close()
	var status map[string]any
	require.NoError(t, json.NewDecoder(health.Body).Decode(&status))
	assert.Equal(t, "ok", status["status"])
	assert.Contains(t, status["upstreams"], strings.TrimPrefix(npmServer.URL, "http://"))
}
