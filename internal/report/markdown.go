// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package report renders finished jobs as Markdown reports and bundles
// their datasets for download.
package report

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mattn/go-runewidth"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/pdiddy/batchblast/internal/classify"
	"github.com/pdiddy/batchblast/pkg/types"
)

// Report file names inside a job's work directory.
const (
	AnomalyReportFile = "anomaly_report.md"
	FullReportFile    = "full_report.md"
)

// Display limits.
const (
	maxSampleGroups   = 6
	maxNormalSamples  = 8
	maxCrossPatterns  = 10
	maxTopEntries     = 10
	nameColumnWidth   = 40
	titleColumnWidth  = 60
	accessionColWidth = 15
)

// MarkdownReporter writes anomaly_report.md and full_report.md.
type MarkdownReporter struct {
	Label      string
	Keywords   []string
	SampleSize int

	Now func() time.Time
}

// New returns a reporter configured from cfg.
func New(cfg types.Config) *MarkdownReporter {
	return &MarkdownReporter{
		Label:      cfg.Report.Label,
		Keywords:   cfg.Classify.NonAnomalyKeywords,
		SampleSize: cfg.Classify.NormalSampleSize,
	}
}

// Report writes both reports into the job's work directory.
func (m *MarkdownReporter) Report(ctx context.Context, job *types.Job, datasets []types.QueryDataset, classified []types.ClassifiedDataset) error {
	var anomaly bytes.Buffer
	if err := m.WriteAnomalyReport(&anomaly, job, classified); err != nil {
		return err
	}
	if err := writeFileAtomic(filepath.Join(job.WorkDir, AnomalyReportFile), anomaly.Bytes()); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	var full bytes.Buffer
	if err := m.WriteFullReport(&full, datasets); err != nil {
		return err
	}
	return writeFileAtomic(filepath.Join(job.WorkDir, FullReportFile), full.Bytes())
}

// Title returns label in title case, or "Sample" when empty.
func Title(label string) string {
	label = strings.TrimSpace(label)
	if label == "" {
		label = "Sample"
	}
	return cases.Title(language.English).String(label)
}

// WriteAnomalyReport renders the per-dataset anomaly analysis.
func (m *MarkdownReporter) WriteAnomalyReport(w io.Writer, job *types.Job, classified []types.ClassifiedDataset) error {
	b := &strings.Builder{}

	fmt.Fprintf(b, "# %s BLAST Anomaly Report\n\n", Title(m.Label))
	fmt.Fprintf(b, "Generated on: %s\n\n", m.now().Format("2006-01-02 15:04:05"))

	var totalRecords, totalAnomalies int
	for _, c := range classified {
		totalRecords += c.Total
		totalAnomalies += len(c.Anomalies)
	}

	b.WriteString("## Overall Statistics\n\n")
	table{
		headers: []string{"Metric", "Value"},
		rows: [][]string{
			{"Total Sequences Analyzed", fmt.Sprint(len(classified))},
			{"Total Records", fmt.Sprint(totalRecords)},
			{"Total Anomalies", fmt.Sprint(totalAnomalies)},
			{"Anomaly Rate", percent(totalAnomalies, totalRecords)},
		},
	}.render(b)

	sampleSize := m.SampleSize
	if sampleSize <= 0 {
		sampleSize = classify.DefaultSampleSize
	}
	b.WriteString("\n## Analysis Configuration\n\n")
	fmt.Fprintf(b, "- Non-anomaly keywords: %s\n", strings.Join(m.Keywords, ", "))
	fmt.Fprintf(b, "- Normal sample size: %d\n", sampleSize)
	if job != nil {
		fmt.Fprintf(b, "- BatchBLAST ID: %s\n", job.ID)
		if job.RequestID != "" {
			fmt.Fprintf(b, "- Request ID: %s\n", job.RequestID)
		}
	}

	b.WriteString("\n## Detailed File Analysis\n\n")
	summary := table{headers: []string{"Input Sequence Name", "Total", "Normal", "Anomalies", "Anomaly %"}}
	for _, c := range classified {
		summary.rows = append(summary.rows, []string{
			truncate(c.Name, nameColumnWidth),
			fmt.Sprint(c.Total),
			fmt.Sprint(len(c.Normals)),
			fmt.Sprint(len(c.Anomalies)),
			formatPercent(c.AnomalyRate()),
		})
	}
	summary.render(b)

	for _, c := range classified {
		writeDatasetAnalysis(b, c)
	}

	if len(classified) > 1 {
		b.WriteString("\n## Cross-File Anomaly Patterns\n\n")
		patterns := classify.Patterns(classified)
		if len(patterns) == 0 {
			b.WriteString("No cross-file anomaly patterns detected.\n")
		} else {
			if len(patterns) > maxCrossPatterns {
				patterns = patterns[:maxCrossPatterns]
			}
			t := table{headers: []string{"Species Group", "Total Occurrences"}}
			for _, p := range patterns {
				t.rows = append(t.rows, []string{truncate(p.Signature, 50), fmt.Sprint(p.Count)})
			}
			t.render(b)
		}
	}

	_, err := io.WriteString(w, b.String())
	return err
}

func writeDatasetAnalysis(b *strings.Builder, c types.ClassifiedDataset) {
	fmt.Fprintf(b, "\n## Analysis: %s\n\n", c.Name)
	table{
		headers: []string{"Metric", "Value"},
		rows: [][]string{
			{"Total Records", fmt.Sprint(c.Total)},
			{"Normal Results", fmt.Sprint(len(c.Normals))},
			{"Anomalous Results", fmt.Sprint(len(c.Anomalies))},
			{"Anomaly Percentage", formatPercent(c.AnomalyRate())},
		},
	}.render(b)

	if len(c.Groups) == 0 {
		b.WriteString("\nNo anomalies detected in this file.\n")
	} else {
		b.WriteString("\n### Anomaly Groups\n\n")
		groups := table{headers: []string{"Species Group", "Count", "Percentage"}}
		for _, g := range c.Groups {
			groups.rows = append(groups.rows, []string{
				truncate(g.Signature, nameColumnWidth),
				fmt.Sprint(g.Count),
				percent(g.Count, len(c.Anomalies)),
			})
		}
		groups.render(b)

		b.WriteString("\n#### Sample Anomalies\n\n")
		samples := table{headers: []string{"Species Group", "Count", "Sample Title", "Accession"}}
		for i, g := range c.Groups {
			if i == maxSampleGroups {
				break
			}
			samples.rows = append(samples.rows, []string{
				truncate(g.Signature, 25),
				fmt.Sprint(g.Count),
				truncate(g.Sample.SubjectTitle, titleColumnWidth),
				truncate(g.Sample.SubjectAccession, accessionColWidth),
			})
		}
		samples.render(b)
	}

	if len(c.NormalSamples) > 0 {
		b.WriteString("\n### Normal Results Sample\n\n")
		normals := table{headers: []string{"Title", "Accession", "E-value"}}
		for i, r := range c.NormalSamples {
			if i == maxNormalSamples {
				break
			}
			normals.rows = append(normals.rows, []string{
				truncate(r.SubjectTitle, 80),
				truncate(r.SubjectAccession, accessionColWidth),
				fmt.Sprintf("%g", r.EValue),
			})
		}
		normals.render(b)
	}
}

// WriteFullReport renders summary statistics and every hit of every
// dataset.
func (m *MarkdownReporter) WriteFullReport(w io.Writer, datasets []types.QueryDataset) error {
	b := &strings.Builder{}
	s := Summarize(datasets)

	fmt.Fprintf(b, "# %s BLAST Full Report\n\n", Title(m.Label))
	b.WriteString("## Summary Statistics\n\n")
	table{
		headers: []string{"Metric", "Value"},
		rows: [][]string{
			{"Total Hits", fmt.Sprint(s.TotalHits)},
			{"Unique Queries", fmt.Sprint(s.Datasets)},
			{"Unique Subjects", fmt.Sprint(s.UniqueTaxIDs)},
			{"Average Identity %", fmt.Sprintf("%.2f", s.MeanIdentity)},
			{"Maximum Identity %", fmt.Sprintf("%.2f", s.MaxIdentity)},
			{"Minimum Identity %", fmt.Sprintf("%.2f", s.MinIdentity)},
		},
	}.render(b)

	b.WriteString("\n## Source Files\n\n")
	for _, f := range s.Files {
		fmt.Fprintf(b, "- %s (%d hits, %d unique taxids)\n", f.Name, f.Hits, f.UniqueTaxIDs)
	}

	b.WriteString("\n## Top Species by Hit Count\n\n")
	species := table{headers: []string{"Species", "Hit Count"}}
	for _, c := range s.TopSpecies {
		species.rows = append(species.rows, []string{c.Name, fmt.Sprint(c.Count)})
	}
	species.render(b)

	b.WriteString("\n## Top Queries by Hit Count\n\n")
	queries := table{headers: []string{"Query Title", "Hit Count"}}
	for _, c := range s.TopQueries {
		queries.rows = append(queries.rows, []string{c.Name, fmt.Sprint(c.Count)})
	}
	queries.render(b)

	for _, ds := range datasets {
		fmt.Fprintf(b, "\n## Sequence: %s\n\n", ds.Name)
		hits := table{headers: []string{"Subject Title", "TaxID", "Identity %", "Bit Score", "E-value"}}
		for _, r := range ds.Records {
			hits.rows = append(hits.rows, []string{
				truncate(r.SubjectTitle, titleColumnWidth),
				fmt.Sprint(r.TaxID),
				fmt.Sprintf("%.1f", r.IdentityPct),
				fmt.Sprintf("%.4f", r.BitScore),
				fmt.Sprintf("%.6f", r.EValue),
			})
		}
		hits.render(b)
		fmt.Fprintf(b, "\nTotal records in %s: %d\n", ds.Name, len(ds.Records))
	}

	_, err := io.WriteString(w, b.String())
	return err
}

func (m *MarkdownReporter) now() time.Time {
	if m.Now != nil {
		return m.Now()
	}
	return time.Now()
}

func percent(part, whole int) string {
	if whole == 0 {
		return formatPercent(0)
	}
	return formatPercent(float64(part) / float64(whole) * 100)
}

func formatPercent(pct float64) string {
	return fmt.Sprintf("%.1f%%", pct)
}

// truncate shortens s to at most width display cells.
func truncate(s string, width int) string {
	return runewidth.Truncate(s, width, "...")
}

// table is a Markdown pipe table whose columns are padded to equal
// display width.
type table struct {
	headers []string
	rows    [][]string
}

func (t table) render(b *strings.Builder) {
	widths := make([]int, len(t.headers))
	for i, h := range t.headers {
		widths[i] = max(3, runewidth.StringWidth(h))
	}
	for _, row := range t.rows {
		for i := range widths {
			if i < len(row) {
				widths[i] = max(widths[i], runewidth.StringWidth(escapeCell(row[i])))
			}
		}
	}

	line := func(cells []string) {
		b.WriteString("|")
		for i, wd := range widths {
			cell := ""
			if i < len(cells) {
				cell = escapeCell(cells[i])
			}
			b.WriteString(" " + runewidth.FillRight(cell, wd) + " |")
		}
		b.WriteString("\n")
	}

	line(t.headers)
	b.WriteString("|")
	for _, wd := range widths {
		b.WriteString(" " + strings.Repeat("-", wd) + " |")
	}
	b.WriteString("\n")
	for _, row := range t.rows {
		line(row)
	}
}

func escapeCell(s string) string {
	s = strings.ReplaceAll(s, "\n", " ")
	return strings.ReplaceAll(s, "|", `\|`)
}

func writeFileAtomic(path string, data []byte) error {
	tmpFile, err := os.CreateTemp(filepath.Dir(path), ".report-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	if _, err := tmpFile.Write(data); err != nil {
		tmpFile.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("writing %s: %w", filepath.Base(path), err)
	}
	if err := tmpFile.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("renaming temp file: %w", err)
	}
	return nil
}
