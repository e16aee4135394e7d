// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package normalize unpacks a zipped JSON2 result bundle into one
// QueryDataset per query and persists each dataset as CSV in the job's
// work directory.
package normalize

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"path"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/pdiddy/batchblast/pkg/types"
)

// ErrArchiveUnreadable means the payload is not a readable zip archive.
var ErrArchiveUnreadable = errors.New("archive unreadable")

const documentExt = ".json"

// SkippedEntry records an archive entry that could not be normalized.
type SkippedEntry struct {
	Name   string
	Reason string
}

// Result holds the datasets written and the entries skipped on the way.
type Result struct {
	Datasets []types.QueryDataset
	Skipped  []SkippedEntry
}

// JSON2 document structures. Only the fields we keep are declared.
type document struct {
	Report *struct {
		Results *struct {
			Search *searchResult `json:"search"`
		} `json:"results"`
	} `json:"report"`
}

type searchResult struct {
	QueryID    string            `json:"query_id"`
	QueryTitle string            `json:"query_title"`
	Hits       []json.RawMessage `json:"hits"`
}

type hit struct {
	Description []hitDescription `json:"description"`
	HSPs        []hsp            `json:"hsps"`
}

type hitDescription struct {
	ID        string `json:"id"`
	Accession string `json:"accession"`
	Title     string `json:"title"`
	TaxID     int    `json:"taxid"`
	SciName   string `json:"sciname"`
}

type hsp struct {
	Identity float64 `json:"identity"`
	AlignLen float64 `json:"align_len"`
	BitScore float64 `json:"bit_score"`
	EValue   float64 `json:"evalue"`
}

// Normalize reads every JSON document in the zip payload and writes one
// dataset per query into workDir. A malformed entry is skipped and listed
// in Result.Skipped, as is one whose dataset file cannot be written. Only
// an unopenable archive fails, with ErrArchiveUnreadable. Datasets are
// returned in archive order.
func Normalize(payload []byte, workDir string) (Result, error) {
	zr, err := zip.NewReader(bytes.NewReader(payload), int64(len(payload)))
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrArchiveUnreadable, err)
	}

	var result Result
	used := make(map[string]int)

	for _, f := range zr.File {
		if f.FileInfo().IsDir() || !strings.HasSuffix(strings.ToLower(f.Name), documentExt) {
			continue
		}

		ds, skip, reason := parseEntry(f)
		if skip {
			if reason != "" {
				result.Skipped = append(result.Skipped, SkippedEntry{Name: f.Name, Reason: reason})
			}
			continue
		}

		ds.Name = uniqueName(ds.Name, used)
		if err := WriteDataset(workDir, ds); err != nil {
			result.Skipped = append(result.Skipped, SkippedEntry{
				Name:   f.Name,
				Reason: fmt.Sprintf("writing dataset %s: %v", ds.Name, err),
			})
			continue
		}
		result.Datasets = append(result.Datasets, ds)
	}
	return result, nil
}

// parseEntry decodes one archive entry. A wrapper document is skipped with
// an empty reason; malformed entries carry the reason they were dropped.
func parseEntry(f *zip.File) (ds types.QueryDataset, skip bool, reason string) {
	rc, err := f.Open()
	if err != nil {
		return ds, true, fmt.Sprintf("opening entry: %v", err)
	}
	data, err := io.ReadAll(rc)
	rc.Close()
	if err != nil {
		return ds, true, fmt.Sprintf("reading entry: %v", err)
	}

	var top map[string]json.RawMessage
	if err := json.Unmarshal(data, &top); err != nil {
		return ds, true, fmt.Sprintf("parsing JSON: %v", err)
	}
	if _, ok := top["BlastJSON"]; ok {
		return ds, true, ""
	}

	raw, ok := top["BlastOutput2"]
	if !ok {
		return ds, true, "missing BlastOutput2"
	}
	var doc document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return ds, true, fmt.Sprintf("parsing BlastOutput2: %v", err)
	}
	if doc.Report == nil || doc.Report.Results == nil || doc.Report.Results.Search == nil {
		return ds, true, "missing report.results.search"
	}
	search := doc.Report.Results.Search

	ds.Name = DatasetName(search.QueryTitle, f.Name)
	ds.Records = make([]types.HitRecord, 0, len(search.Hits))
	for _, rawHit := range search.Hits {
		if rec, ok := toRecord(search, rawHit); ok {
			ds.Records = append(ds.Records, rec)
		}
	}
	return ds, false, ""
}

// toRecord collapses a hit to its first description and first HSP.
func toRecord(search *searchResult, rawHit json.RawMessage) (types.HitRecord, bool) {
	var h hit
	if err := json.Unmarshal(rawHit, &h); err != nil {
		return types.HitRecord{}, false
	}
	if len(h.Description) == 0 || len(h.HSPs) == 0 {
		return types.HitRecord{}, false
	}
	desc, first := h.Description[0], h.HSPs[0]
	return types.HitRecord{
		QueryID:          search.QueryID,
		QueryTitle:       search.QueryTitle,
		SubjectID:        desc.ID,
		SubjectAccession: desc.Accession,
		SubjectTitle:     desc.Title,
		TaxID:            desc.TaxID,
		ScientificName:   desc.SciName,
		IdentityPct:      IdentityPct(first.Identity, first.AlignLen),
		BitScore:         first.BitScore,
		EValue:           first.EValue,
	}, true
}

// IdentityPct returns 100*identity/max(alignLen, 1) rounded to 2 decimals.
func IdentityPct(identity, alignLen float64) float64 {
	pct := 100 * identity / math.Max(alignLen, 1)
	return math.Round(pct*100) / 100
}

const (
	maxNameLen = 100
	// Leaves room for a uniqueness suffix and DatasetExt under the usual
	// 255-byte file name limit.
	maxNameBytes = 240
)

var unsafeChars = strings.NewReplacer(
	"<", "_", ">", "_", ":", "_", `"`, "_", "/", "_",
	`\`, "_", "|", "_", "?", "_", "*", "_",
)

// DatasetName derives a filesystem-safe dataset name from the query title,
// falling back to the archive entry's base name when the title is empty.
func DatasetName(queryTitle, entryName string) string {
	name := queryTitle
	if name == "" {
		base := path.Base(entryName)
		name = base[:len(base)-len(path.Ext(base))]
	}
	name = strings.Map(replaceControl, unsafeChars.Replace(name))
	if r := []rune(name); len(r) > maxNameLen {
		name = string(r[:maxNameLen])
	}
	if len(name) > maxNameBytes {
		cut := maxNameBytes
		for cut > 0 && !utf8.RuneStart(name[cut]) {
			cut--
		}
		name = name[:cut]
	}
	if name == "" || name == "." || name == ".." {
		name = "_"
	}
	return name
}

// replaceControl maps NUL, CR, LF and the other control characters to "_".
func replaceControl(r rune) rune {
	if unicode.IsControl(r) {
		return '_'
	}
	return r
}

// uniqueName suffixes repeated names within one bundle with _2, _3, ...
func uniqueName(name string, used map[string]int) string {
	used[name]++
	n := used[name]
	if n == 1 {
		return name
	}
	for {
		candidate := fmt.Sprintf("%s_%d", name, n)
		if used[candidate] == 0 {
			used[candidate] = 1
			return candidate
		}
		n++
	}
}
