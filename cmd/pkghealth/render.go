package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"gopkg.in/yaml.v3"

	"package-health/internal/format"
	"package-health/internal/model"
	"package-health/internal/rating"
	"package-health/internal/report"
)

const (
	outputTable = "table"
	outputJSON  = "json"
	outputYAML  = "yaml"
)

var tierColors = map[rating.Tier]*color.Color{
	rating.TierPositive:       color.New(color.FgGreen, color.Bold),
	rating.TierNeutralCaution: color.New(color.FgYellow),
	rating.TierNegative:       color.New(color.FgRed),
	rating.TierCaution:        color.New(color.FgMagenta),
	rating.TierNeutral:        color.New(color.FgWhite),
}

// colorLabel renders a rating in its tier's color.
func colorLabel(l rating.Label) string {
	c, ok := tierColors[rating.TierOf(l)]
	if !ok {
		return string(l)
	}
	return c.Sprint(string(l))
}

func checkOutput(output string) error {
	switch output {
	case outputTable, outputJSON, outputYAML:
		return nil
	default:
		return fmt.Errorf("unknown output format %q (use table, json or yaml)", output)
	}
}

func renderReport(w io.Writer, r *report.Report, output string) error {
	switch output {
	case outputJSON:
		return writeJSON(w, r)
	case outputYAML:
		return writeYAML(w, r)
	case outputTable:
	default:
		return checkOutput(output)
	}

	title := r.PackageName
	if r.NpmData != nil && r.NpmData.LatestVersion != "" {
		title += "@" + r.NpmData.LatestVersion
	}
	fmt.Fprintf(w, "%s  (retrieved %s)\n", color.New(color.Bold).Sprint(title), r.RetrievedAt.UTC().Format("2006-01-02 15:04 MST"))
	if r.NpmData != nil && r.NpmData.Description != "" {
		fmt.Fprintln(w, r.NpmData.Description)
	}

	table := tablewriter.NewTable(w)
	table.Header([]string{"Category", "Rating", "Details"})
	for _, c := range r.Categories.List() {
		if err := table.Append([]string{c.Name, colorLabel(c.Rating), metricLines(c.Metrics)}); err != nil {
			return err
		}
	}
	if err := table.Render(); err != nil {
		return err
	}

	warn := color.New(color.FgYellow)
	for _, e := range r.Errors {
		fmt.Fprintln(w, warn.Sprint("! "+e))
	}
	return nil
}

func metricLines(metrics []rating.Metric) string {
	lines := make([]string, 0, len(metrics))
	for _, m := range metrics {
		lines = append(lines, m.Label+": "+m.Value)
	}
	return strings.Join(lines, "\n")
}

func renderSearch(w io.Writer, results []model.SearchResult, output string) error {
	switch output {
	case outputJSON:
		return writeJSON(w, results)
	case outputYAML:
		return writeYAML(w, results)
	case outputTable:
	default:
		return checkOutput(output)
	}

	if len(results) == 0 {
		fmt.Fprintln(w, "No packages found.")
		return nil
	}

	table := tablewriter.NewTable(w)
	table.Header([]string{"Package", "Version", "Published", "Score", "Description"})
	for _, res := range results {
		published := ""
		if t, ok := format.ParseTimestamp(res.Date); ok {
			published = t.Format("2006-01-02")
		}
		row := []string{res.Name, res.Version, published, fmt.Sprintf("%.2f", res.Score), truncate(res.Description, 60)}
		if err := table.Append(row); err != nil {
			return err
		}
	}
	return table.Render()
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// writeYAML emits v with its JSON field names and field order by re-reading the JSON
// encoding as a YAML node tree and switching it to block style.
func writeYAML(w io.Writer, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	var node yaml.Node
	if err := yaml.Unmarshal(data, &node); err != nil {
		return err
	}
	blockStyle(&node)

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(&node); err != nil {
		return err
	}
	if err := enc.Close(); err != nil {
		return err
	}
	_, err = w.Write(buf.Bytes())
	return err
}

func blockStyle(n *yaml.Node) {
	n.Style = 0
	for _, child := range n.Content {
		blockStyle(child)
	}
}
