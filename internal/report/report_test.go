// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package report

import (
	"archive/zip"
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/mattn/go-runewidth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/batchblast/internal/classify"
	"github.com/pdiddy/batchblast/internal/normalize"
	"github.com/pdiddy/batchblast/pkg/types"
)

func fixedNow() time.Time { return time.Date(2026, 4, 2, 9, 15, 0, 0, time.UTC) }

func sampleDatasets() []types.QueryDataset {
	return []types.QueryDataset{
		{Name: "lot 1", Records: []types.HitRecord{
			{QueryTitle: "lot 1", SubjectTitle: "Bos taurus mitochondrion", SubjectAccession: "A1", TaxID: 9913, ScientificName: "Bos taurus", IdentityPct: 100, BitScore: 300, EValue: 1e-80},
			{QueryTitle: "lot 1", SubjectTitle: "Sus scrofa clone | 7", SubjectAccession: "A2", TaxID: 9823, ScientificName: "Sus scrofa", IdentityPct: 90, BitScore: 200, EValue: 1e-40},
		}},
		{Name: "lot 2", Records: []types.HitRecord{
			{QueryTitle: "lot 2", SubjectTitle: "Sus scrofa breed Duroc", SubjectAccession: "B1", TaxID: 9823, ScientificName: "Sus scrofa", IdentityPct: 80},
		}},
		{Name: "empty"},
	}
}

func newReporter() *MarkdownReporter {
	return &MarkdownReporter{
		Label:      "beef lot",
		Keywords:   []string{"bos taurus"},
		SampleSize: 5,
		Now:        fixedNow,
	}
}

func TestTitle(t *testing.T) {
	assert.Equal(t, "Beef Lot", Title("beef lot"))
	assert.Equal(t, "Sample", Title("  "))
}

func TestWriteAnomalyReport(t *testing.T) {
	datasets := sampleDatasets()
	classified := (&classify.Classifier{Keywords: []string{"bos taurus"}}).ClassifyAll(datasets)
	job := &types.Job{ID: "job-9", RequestID: "RID9"}

	var buf bytes.Buffer
	require.NoError(t, newReporter().WriteAnomalyReport(&buf, job, classified))
	out := buf.String()

	assert.True(t, strings.HasPrefix(out, "# Beef Lot BLAST Anomaly Report\n"))
	assert.Contains(t, out, "Generated on: 2026-04-02 09:15:00")
	assert.Contains(t, out, "| Total Sequences Analyzed | 3     |")
	assert.Contains(t, out, "| Anomaly Rate             | 66.7% |")
	assert.Contains(t, out, "- Non-anomaly keywords: bos taurus")
	assert.Contains(t, out, "- BatchBLAST ID: job-9")
	assert.Contains(t, out, "## Analysis: lot 2")
	assert.Contains(t, out, "| Anomaly Percentage | 50.0% |")
	assert.Contains(t, out, "| Anomaly Percentage | 100.0% |")
	assert.Contains(t, out, "| Anomaly Percentage | 0.0%  |", "empty datasets report 0%")
	assert.Contains(t, out, "No anomalies detected in this file.")
	assert.Contains(t, out, `Sus scrofa clone \| 7`, "pipes are escaped")
	assert.Contains(t, out, "## Cross-File Anomaly Patterns")

	cross := out[strings.Index(out, "## Cross-File Anomaly Patterns"):]
	assert.Contains(t, cross, "| Sus scrofa    | 2                 |")
}

func TestTableColumnsAligned(t *testing.T) {
	b := &strings.Builder{}
	table{
		headers: []string{"Name", "N"},
		rows:    [][]string{{"牛肉", "1"}, {"x", "22"}},
	}.render(b)

	lines := strings.Split(strings.TrimSpace(b.String()), "\n")
	require.Len(t, lines, 4)
	width := runewidth.StringWidth(lines[0])
	for _, l := range lines[1:] {
		assert.Equal(t, width, runewidth.StringWidth(l), l)
	}
}

func TestSummarize(t *testing.T) {
	s := Summarize(sampleDatasets())

	assert.Equal(t, 3, s.TotalHits)
	assert.Equal(t, 3, s.Datasets)
	assert.InDelta(t, 87.5, s.MeanIdentity, 1e-9)
	assert.Equal(t, 95.0, s.MaxIdentity)
	assert.Equal(t, 80.0, s.MinIdentity)
	assert.Equal(t, 3, s.UniqueTaxIDs)
	assert.Equal(t, []NameCount{{"Sus scrofa", 2}, {"Bos taurus", 1}}, s.TopSpecies)
	assert.Equal(t, []NameCount{{"lot 1", 2}, {"lot 2", 1}}, s.TopQueries)
	require.Len(t, s.Files, 3)
	assert.Equal(t, 0, s.Files[2].Hits)
}

func TestWriteFullReport(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, newReporter().WriteFullReport(&buf, sampleDatasets()))
	out := buf.String()

	assert.True(t, strings.HasPrefix(out, "# Beef Lot BLAST Full Report\n"))
	assert.Contains(t, out, "- lot 1 (2 hits, 2 unique taxids)")
	assert.Contains(t, out, "## Sequence: lot 2")
	assert.Contains(t, out, "Total records in empty: 0")
	assert.Contains(t, out, "| 9913  | 100.0      | 300.0000  | 0.000000 |")
}

func TestReportWritesFiles(t *testing.T) {
	dir := t.TempDir()
	datasets := sampleDatasets()
	classified := classify.New(types.ClassifyConfig{NonAnomalyKeywords: []string{"bos taurus"}}).ClassifyAll(datasets)

	err := newReporter().Report(context.Background(), &types.Job{ID: "j", WorkDir: dir}, datasets, classified)
	require.NoError(t, err)

	for _, name := range []string{AnomalyReportFile, FullReportFile} {
		data, err := os.ReadFile(filepath.Join(dir, name))
		require.NoError(t, err, name)
		assert.NotEmpty(t, data)
	}
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 2, "no temp files left behind")
}

func TestBundle(t *testing.T) {
	dir := t.TempDir()
	for _, ds := range sampleDatasets() {
		require.NoError(t, normalize.WriteDataset(dir, ds))
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "inputs.fasta"), []byte(">q\nA\n"), 0o644))

	var buf bytes.Buffer
	n, err := Bundle(dir, &buf)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	zr, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	require.NoError(t, err)
	var names []string
	for _, f := range zr.File {
		names = append(names, f.Name)
	}
	assert.Equal(t, []string{"empty.csv", "lot 1.csv", "lot 2.csv"}, names)

	rc, err := zr.File[1].Open()
	require.NoError(t, err)
	defer rc.Close()
	body, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(body), strings.Join(normalize.Columns, ",")))
}
