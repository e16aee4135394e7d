// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package normalize

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/pdiddy/batchblast/pkg/types"
)

// DatasetExt is the file extension of persisted datasets.
const DatasetExt = ".csv"

// Columns is the CSV header of a persisted dataset.
var Columns = []string{
	"query_id", "query_title", "subject_id", "subject_accession",
	"subject_title", "taxid", "sci_name", "identity_pct",
	"bit_score", "evalue",
}

// DatasetPath returns the CSV path of the named dataset inside workDir.
func DatasetPath(workDir, name string) string {
	return filepath.Join(workDir, name+DatasetExt)
}

// WriteDataset persists ds as CSV, writing a temp file and renaming it so
// readers never observe a partial dataset. An empty dataset still gets a
// header row.
func WriteDataset(workDir string, ds types.QueryDataset) error {
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return fmt.Errorf("creating directory %s: %w", workDir, err)
	}

	tmpFile, err := os.CreateTemp(workDir, ".dataset-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	writeErr := encodeDataset(tmpFile, ds.Records)
	closeErr := tmpFile.Close()
	if writeErr != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("writing dataset: %w", writeErr)
	}
	if closeErr != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("closing temp file: %w", closeErr)
	}

	if err := os.Rename(tmpPath, DatasetPath(workDir, ds.Name)); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("renaming temp file: %w", err)
	}
	return nil
}

func encodeDataset(w io.Writer, records []types.HitRecord) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Columns); err != nil {
		return err
	}
	for _, r := range records {
		row := []string{
			r.QueryID,
			r.QueryTitle,
			r.SubjectID,
			r.SubjectAccession,
			r.SubjectTitle,
			strconv.Itoa(r.TaxID),
			r.ScientificName,
			formatFloat(r.IdentityPct),
			formatFloat(r.BitScore),
			formatFloat(r.EValue),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// ReadDataset loads a persisted dataset. Columns are matched by header
// name; unknown columns are ignored and unparsable numbers read as 0.
func ReadDataset(path string) (types.QueryDataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return types.QueryDataset{}, err
	}
	defer f.Close()

	ds := types.QueryDataset{
		Name: strings.TrimSuffix(filepath.Base(path), DatasetExt),
	}

	cr := csv.NewReader(f)
	header, err := cr.Read()
	if err == io.EOF {
		return ds, nil
	}
	if err != nil {
		return ds, fmt.Errorf("reading header of %s: %w", path, err)
	}
	index := make(map[string]int, len(header))
	for i, h := range header {
		index[h] = i
	}
	field := func(row []string, name string) string {
		if i, ok := index[name]; ok && i < len(row) {
			return row[i]
		}
		return ""
	}

	ds.Records = []types.HitRecord{}
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return ds, fmt.Errorf("reading %s: %w", path, err)
		}
		taxID, _ := strconv.Atoi(field(row, "taxid"))
		identity, _ := strconv.ParseFloat(field(row, "identity_pct"), 64)
		bitScore, _ := strconv.ParseFloat(field(row, "bit_score"), 64)
		eValue, _ := strconv.ParseFloat(field(row, "evalue"), 64)
		ds.Records = append(ds.Records, types.HitRecord{
			QueryID:          field(row, "query_id"),
			QueryTitle:       field(row, "query_title"),
			SubjectID:        field(row, "subject_id"),
			SubjectAccession: field(row, "subject_accession"),
			SubjectTitle:     field(row, "subject_title"),
			TaxID:            taxID,
			ScientificName:   field(row, "sci_name"),
			IdentityPct:      identity,
			BitScore:         bitScore,
			EValue:           eValue,
		})
	}
	return ds, nil
}

// ReadDatasets loads every dataset in workDir, sorted by name.
func ReadDatasets(workDir string) ([]types.QueryDataset, error) {
	entries, err := os.ReadDir(workDir)
	if err != nil {
		return nil, fmt.Errorf("reading work directory %s: %w", workDir, err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), DatasetExt) {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	datasets := make([]types.QueryDataset, 0, len(names))
	for _, name := range names {
		ds, err := ReadDataset(filepath.Join(workDir, name))
		if err != nil {
			return nil, err
		}
		datasets = append(datasets, ds)
	}
	return datasets, nil
}
