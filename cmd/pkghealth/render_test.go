package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"package-health/internal/model"
	"package-health/internal/rating"
	"package-health/internal/report"
)

var now = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func init() {
	color.NoColor = true
}

func sampleReport() *report.Report {
	in := rating.Inputs{
		Registry: &model.RegistryMetadata{
			Name:              "left-pad",
			LatestVersion:     "1.3.0",
			Description:       "String left pad",
			BundleSize:        "600.00 KB",
			DependenciesCount: model.Int(20),
		},
		Downloads: &model.DownloadStats{MonthlyDownloads: 3_000_000},
	}
	cats := rating.Evaluate(in, now)
	return &report.Report{
		PackageName:   "left-pad",
		RetrievedAt:   now,
		NpmData:       in.Registry,
		DownloadsData: in.Downloads,
		HealthRatings: cats.Ratings(),
		Categories:    cats,
		Success:       true,
		Errors:        []string{"no_github_repository"},
	}
}

func TestRenderReport_Table(t *testing.T) {
	var buf bytes.Buffer

	require.NoError(t, renderReport(&buf, sampleReport(), outputTable))

	out := buf.String()
	assert.Contains(t, out, "left-pad@1.3.0")
	assert.Contains(t, out, "String left pad")
	assert.Contains(t, out, "Strong")
	assert.Contains(t, out, "Heavy")
	assert.Contains(t, out, "Unavailable")
	assert.Contains(t, out, "! no_github_repository")
}

func TestRenderReport_JSON(t *testing.T) {
	var buf bytes.Buffer

	require.NoError(t, renderReport(&buf, sampleReport(), outputJSON))

	var got map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, "left-pad", got["package_name"])
	assert.Equal(t, "Heavy", got["health_ratings"].(map[string]any)["implementation_footprint"])
}

func TestRenderReport_YAMLKeepsFieldNamesAndOrder(t *testing.T) {
	var buf bytes.Buffer

	require.NoError(t, renderReport(&buf, sampleReport(), outputYAML))

	out := buf.String()
	assert.True(t, strings.HasPrefix(out, "package_name: left-pad\n"), out)
	assert.Less(t, strings.Index(out, "npm_data:"), strings.Index(out, "health_ratings:"))
	assert.NotContains(t, out, "{", "block style only")

	var got struct {
		HealthRatings rating.Ratings `yaml:"health_ratings"`
		Errors        []string       `yaml:"errors"`
	}
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, rating.Strong, got.HealthRatings.CommunityAdoption)
	assert.Equal(t, []string{"no_github_repository"}, got.Errors)
}

func TestRenderReport_UnknownOutput(t *testing.T) {
	err := renderReport(&bytes.Buffer{}, sampleReport(), "xml")
	assert.EqualError(t, err, `unknown output format "xml" (use table, json or yaml)`)
}

func TestRenderSearch(t *testing.T) {
	results := []model.SearchResult{
		{Name: "react", Version: "19.1.0", Date: "2025-03-28T19:59:42.053Z", Score: 0.98, Description: strings.Repeat("x", 80)},
	}

	var buf bytes.Buffer
	require.NoError(t, renderSearch(&buf, results, outputTable))
	assert.Contains(t, buf.String(), "react")
	assert.Contains(t, buf.String(), "2025-03-28")
	assert.Contains(t, buf.String(), "0.98")
	assert.NotContains(t, buf.String(), strings.Repeat("x", 61))

	buf.Reset()
	require.NoError(t, renderSearch(&buf, nil, outputTable))
	assert.Equal(t, "No packages found.\n", buf.String())
}

func TestColorLabel(t *testing.T) {
	color.NoColor = false
	t.Cleanup(func() { color.NoColor = true })

	assert.Contains(t, colorLabel(rating.Strong), "\x1b[32")
	assert.Contains(t, colorLabel(rating.Limited), "\x1b[31")
	assert.Contains(t, colorLabel(rating.Error), "\x1b[35")
	assert.Contains(t, colorLabel(rating.Label("Mystery")), "Mystery")
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abcd…", truncate("abcdefgh", 5))
}

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&bytes.Buffer{})
	rootCmd.SetArgs(args)
	t.Cleanup(func() { rootCmd.SetArgs(nil) })
	err := rootCmd.Execute()
	return out.String(), err
}

func TestCommands(t *testing.T) {
	registry := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/-/v1/search":
			assert.Equal(t, "left pad", r.URL.Query().Get("text"))
			assert.Equal(t, "3", r.URL.Query().Get("size"))
			fmt.Fprint(w, `{"objects": [{"package": {"name": "left-pad", "version": "1.3.0"}, "score": {"final": 0.5}}], "total": 1}`)
		case strings.HasPrefix(r.URL.Path, "/downloads/range/"):
			fmt.Fprint(w, `{"package": "left-pad", "downloads": []}`)
		case r.URL.Path == "/left-pad":
			fmt.Fprint(w, `{"name": "left-pad", "dist-tags": {"latest": "1.3.0"}, "versions": {"1.3.0": {"license": "WTFPL"}}, "time": {}}`)
		default:
			http.NotFound(w, r)
		}
	}))
	defer registry.Close()
	t.Setenv("NPM_REGISTRY_URL", registry.URL)
	t.Setenv("NPM_DOWNLOADS_URL", registry.URL)

	t.Run("version", func(t *testing.T) {
		out, err := runCLI(t, "version")
		require.NoError(t, err)
		assert.Equal(t, "pkghealth dev\n", out)
	})

	t.Run("report as json", func(t *testing.T) {
		out, err := runCLI(t, "report", "pkg:npm/left-pad@1.3.0", "--output", "json")
		require.NoError(t, err)

		var got report.Report
		require.NoError(t, json.Unmarshal([]byte(out), &got))
		assert.Equal(t, "left-pad", got.PackageName)
		assert.True(t, got.Success)
		assert.Equal(t, []string{"no_github_repository"}, got.Errors)
		assert.Equal(t, rating.Limited, got.HealthRatings.CommunityAdoption)
	})

	t.Run("report rejects unknown output", func(t *testing.T) {
		_, err := runCLI(t, "report", "left-pad", "--output", "csv")
		assert.Error(t, err)
	})

	t.Run("report of a missing package", func(t *testing.T) {
		_, err := runCLI(t, "report", "nope", "--output", "json")
		assert.ErrorContains(t, err, "package not found")
	})

	t.Run("search", func(t *testing.T) {
		out, err := runCLI(t, "search", "left", "pad", "--size", "3", "--output", "json")
		require.NoError(t, err)

		var got []model.SearchResult
		require.NoError(t, json.Unmarshal([]byte(out), &got))
		require.Len(t, got, 1)
		assert.Equal(t, "left-pad", got[0].Name)
	})

	t.Run("search size out of range", func(t *testing.T) {
		_, err := runCLI(t, "search", "react", "--size", "51")
		assert.ErrorContains(t, err, "--size must be between 1 and 50")
	})
}
